package configuration

import (
	"time"

	"github.com/G-Research/flotilla/internal/common/config"
)

const (
	StoreTypeRedis      = "redis"
	StoreTypeFilesystem = "filesystem"
)

type ClientConfig struct {
	BrokerUrl  string `validate:"required"`
	ForceNoTls bool
	// User owns submitted instances; empty means the current OS user.
	User       string
	RpcTimeout time.Duration
	// AcceptTimeout bounds the wait for a new instance to be accepted by the broker.
	AcceptTimeout time.Duration `validate:"gt=0"`
	PollInterval  time.Duration `validate:"gt=0"`
	Provider      string
	Store         StoreConfig
	Submission    SubmissionConfig
	Placement     PlacementConfig
	Metrics       MetricsConfig
}

type StoreConfig struct {
	Type string `validate:"oneof=redis filesystem"`
	// Root is the base directory of the filesystem store or the key prefix of the redis store.
	// Empty selects ~/.flotilla and "flotilla:" respectively.
	Root string

	Redis config.RedisConfig `validate:"-"`
}

type SubmissionConfig struct {
	ApplicationType string `validate:"required"`
	Queue           string `validate:"required"`
	Priority        int
	// Resource shape of the coordinator when its role does not set one.
	MemoryMb      int      `validate:"gt=0"`
	VirtualCores  int      `validate:"gt=0"`
	LaunchCommand []string `validate:"required,min=1"`
	Classpath     []string
}

type PlacementConfig struct {
	MaxAge          time.Duration `validate:"gt=0"`
	SweepInterval   time.Duration `validate:"gt=0"`
	ObserveInterval time.Duration `validate:"gt=0"`
	Parallelism     int           `validate:"gte=0"`
}

type MetricsConfig struct {
	Port uint16
}

// Default returns the configuration used for every key not set by a config file, flag or environment variable.
func Default() ClientConfig {
	return ClientConfig{
		BrokerUrl:     "localhost:50061",
		RpcTimeout:    10 * time.Second,
		AcceptTimeout: 60 * time.Second,
		PollInterval:  time.Second,
		Store: StoreConfig{
			Type: StoreTypeFilesystem,
		},
		Submission: SubmissionConfig{
			ApplicationType: "flotilla",
			Queue:           "default",
			MemoryMb:        256,
			VirtualCores:    1,
			LaunchCommand:   []string{"flotilla-coordinator"},
		},
		Placement: PlacementConfig{
			MaxAge:          time.Hour,
			SweepInterval:   time.Minute,
			ObserveInterval: 10 * time.Second,
			Parallelism:     8,
		},
		Metrics: MetricsConfig{
			Port: 9011,
		},
	}
}

// Validate checks the struct tags, and the redis settings when the redis store is selected.
func (c ClientConfig) Validate() error {
	if err := config.Validate(c); err != nil {
		return err
	}
	if c.Store.Type == StoreTypeRedis {
		return config.Validate(c.Store.Redis)
	}
	return nil
}
