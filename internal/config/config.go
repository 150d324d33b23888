package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jt828/go-autometric/pkg/apperror"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceName   string    `yaml:"service_name"`
	ListenAddr    string    `yaml:"listen_addr"`
	MetricsAddr   string    `yaml:"metrics_addr"`
	LogLevel      string    `yaml:"log_level"`
	TraceEndpoint string    `yaml:"trace_endpoint"`
	Upstream      Upstream  `yaml:"upstream"`
	Stations      []Station `yaml:"stations"`
}

type Upstream struct {
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    uint64        `yaml:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	// FailureThreshold consecutive failures open the circuit breaker.
	FailureThreshold uint32        `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

// Station is one relayed upstream stream, served at /streams/{Name}.
type Station struct {
	Name        string `yaml:"name"`
	Broadcaster string `yaml:"broadcaster"`
	Quality     string `yaml:"quality"`
	URL         string `yaml:"url"`
	ContentType string `yaml:"content_type"`
}

func Default() Config {
	return Config{
		ServiceName: "autometric-demo",
		ListenAddr:  ":9090",
		LogLevel:    "info",
		Upstream: Upstream{
			Timeout:          10 * time.Second,
			MaxRetries:       3,
			RetryInterval:    100 * time.Millisecond,
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
		},
		Stations: []Station{
			{
				Name:        "1live-hq",
				Broadcaster: "1-live",
				Quality:     "hq",
				URL:         "http://wdr-1live-live.icecast.wdr.de/wdr/1live/live/mp3/128/stream.mp3",
				ContentType: "audio/mp3",
			},
			{
				Name:        "1live-lq",
				Broadcaster: "1-live",
				Quality:     "lq",
				URL:         "http://wdr-1live-live.icecast.wdr.de/wdr/1live/live/mp3/56/stream.mp3",
				ContentType: "audio/mp3",
			},
			{
				Name:        "radio1-hq",
				Broadcaster: "radio-1",
				Quality:     "hq",
				URL:         "http://rbb-radioeins-live.cast.addradio.de/rbb/radioeins/live/mp3/128/stream.mp3",
				ContentType: "audio/mp3",
			},
		},
	}
}

// Load reads path over the defaults, then applies environment overrides. An
// empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AUTOMETRIC_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("AUTOMETRIC_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("AUTOMETRIC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AUTOMETRIC_TRACE_ENDPOINT"); v != "" {
		cfg.TraceEndpoint = v
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, errors.New("upstream.timeout must be positive"))
	}
	seen := make(map[string]bool, len(c.Stations))
	for i, s := range c.Stations {
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Errorf("stations[%d]: name is required", i))
		case s.URL == "":
			errs = append(errs, fmt.Errorf("station %q: url is required", s.Name))
		case seen[s.Name]:
			errs = append(errs, fmt.Errorf("station %q declared twice", s.Name))
		}
		seen[s.Name] = true
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", apperror.ErrInvalidArgument, errors.Join(errs...))
	}
	return nil
}
