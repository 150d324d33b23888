package bootstrap

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/jt828/go-autometric/pkg/apperror"
	"github.com/jt828/go-autometric/pkg/snowflake"
	snowflakeImpl "github.com/jt828/go-autometric/pkg/snowflake/implementation"
)

func InitializeSnowflake() (snowflake.Snowflake, error) {
	nodeID, err := PodNodeID()
	if err != nil {
		return nil, err
	}
	return snowflakeImpl.NewSnowflake(nodeID)
}

// PodNodeID derives a node id from HOSTNAME so replicas of one deployment get
// distinct ids.
func PodNodeID() (int64, error) {
	hostname := os.Getenv("HOSTNAME")
	if hostname == "" {
		return 0, fmt.Errorf("%w: HOSTNAME is not set", apperror.ErrConfiguration)
	}
	return nodeIDFor(hostname), nil
}

func nodeIDFor(hostname string) int64 {
	h := fnv.New64a()
	h.Write([]byte(hostname))
	return int64(binary.BigEndian.Uint64(h.Sum(nil)) % 1024)
}
