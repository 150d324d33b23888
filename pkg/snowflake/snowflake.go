package snowflake

// Snowflake hands out time-ordered unique ids.
type Snowflake interface {
	Generate() int64
	// GenerateString renders the next id in base58, suitable for request ids.
	GenerateString() string
}
