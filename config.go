package mason

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eclab/mason-sub011/geom"
	"github.com/eclab/mason-sub011/partition"
	"github.com/eclab/mason-sub011/remote"
	"github.com/eclab/mason-sub011/types"
)

// BalanceConfig controls periodic load balancing.
type BalanceConfig struct {
	// Interval is the number of synchronization points between two balancing
	// rounds. Zero disables periodic balancing; Balance can still be called
	// directly.
	Interval int `yaml:"interval"`
}

// RemoteConfig configures remote writes over NATS.
type RemoteConfig struct {
	// Bucket is the JetStream KV bucket holding the endpoint registry.
	Bucket string `yaml:"bucket"`

	// SubjectPrefix prefixes the subjects remote servers listen on. Runs
	// sharing a NATS server need distinct prefixes.
	SubjectPrefix string `yaml:"subjectPrefix"`
}

// CommConfig configures the NATS communicator.
type CommConfig struct {
	// SubjectPrefix prefixes the per-rank subjects of the world communicator.
	SubjectPrefix string `yaml:"subjectPrefix"`
}

// RanksConfig configures automatic rank assignment for processes started
// with AutoRank.
type RanksConfig struct {
	// Bucket is the JetStream KV bucket holding rank claims.
	Bucket string `yaml:"bucket"`

	// TTL is how long a claim survives a process that stopped renewing it.
	TTL time.Duration `yaml:"ttl"`
}

// StatusConfig configures status publishing for NATS runs.
type StatusConfig struct {
	// Enabled publishes each node's region, state and topology version after
	// startup and every balance.
	Enabled bool `yaml:"enabled"`

	// Bucket is the JetStream KV bucket holding the statuses.
	Bucket string `yaml:"bucket"`
}

// Config is the configuration of one distributed run. Every process of the
// run must use the same Config.
//
// All duration fields accept standard Go duration strings like "500ms" or "5s".
type Config struct {
	// Field describes the partitioned field.
	Field partition.Config `yaml:"field"`

	// Processes is the number of processes in the run. Without Splits it must
	// be a power of 2^D for a D-dimensional field.
	Processes int `yaml:"processes"`

	// Splits optionally lists split origins applied in order, each to the leaf
	// containing it. When set, len(Splits)*(2^D-1)+1 must equal Processes.
	Splits []geom.Point `yaml:"splits,omitempty"`

	// Balance controls periodic load balancing.
	Balance BalanceConfig `yaml:"balance"`

	// OperationTimeout bounds one remote request/reply call.
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// StartupTimeout bounds communicator setup and partition initialization.
	StartupTimeout time.Duration `yaml:"startupTimeout"`

	// Remote configures remote writes.
	Remote RemoteConfig `yaml:"remote"`

	// Comm configures the NATS communicator. Its SubjectPrefix also
	// namespaces rank claims and statuses.
	Comm CommConfig `yaml:"comm"`

	// Ranks configures automatic rank assignment.
	Ranks RanksConfig `yaml:"ranks"`

	// Status configures status publishing.
	Status StatusConfig `yaml:"status"`
}

// DefaultConfig returns a Config for a 100x100 toroidal field split over four
// processes.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		Field: partition.Config{
			FieldSize:      geom.Point{100, 100},
			Toroidal:       true,
			AreaOfInterest: geom.Point{1, 1},
		},
		Processes:        4,
		Balance:          BalanceConfig{Interval: 100},
		OperationTimeout: remote.DefaultTimeout,
		StartupTimeout:   30 * time.Second,
		Remote: RemoteConfig{
			Bucket:        remote.DefaultBucket,
			SubjectPrefix: remote.DefaultSubjectPrefix,
		},
		Comm: CommConfig{
			SubjectPrefix: "mason.comm",
		},
		Ranks: RanksConfig{
			Bucket: "mason-ranks",
			TTL:    15 * time.Second,
		},
		Status: StatusConfig{
			Enabled: true,
			Bucket:  "mason-status",
		},
	}
}

// SetDefaults fills in missing operational values. Field geometry and the
// process count describe the model and are never defaulted.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = defaults.StartupTimeout
	}
	if cfg.Remote.Bucket == "" {
		cfg.Remote.Bucket = defaults.Remote.Bucket
	}
	if cfg.Remote.SubjectPrefix == "" {
		cfg.Remote.SubjectPrefix = defaults.Remote.SubjectPrefix
	}
	if cfg.Comm.SubjectPrefix == "" {
		cfg.Comm.SubjectPrefix = defaults.Comm.SubjectPrefix
	}
	if cfg.Ranks.Bucket == "" {
		cfg.Ranks.Bucket = defaults.Ranks.Bucket
	}
	if cfg.Ranks.TTL == 0 {
		cfg.Ranks.TTL = defaults.Ranks.TTL
	}
	if cfg.Status.Bucket == "" {
		cfg.Status.Bucket = defaults.Status.Bucket
	}
	// Balance.Interval of 0 is valid (no periodic balancing), so no default
}

// Validate checks configuration constraints.
//
// Hard Validation Rules:
//   - Field passes partition.Config.Validate
//   - Processes >= 2
//   - Without Splits, Processes is a power of 2^D
//   - With Splits, Processes = len(Splits)*(2^D-1)+1 and every origin has D coordinates
//   - Balance.Interval >= 0
//   - OperationTimeout > 0, StartupTimeout > 0 and Ranks.TTL > 0
//
// Returns:
//   - error: Wrapping types.ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	if err := cfg.Field.Validate(); err != nil {
		return err
	}

	d := len(cfg.Field.FieldSize)
	fanout := 1 << d
	if cfg.Processes < 2 {
		return fmt.Errorf("%w: at least 2 processes are required, got %d", types.ErrInvalidConfig, cfg.Processes)
	}
	if len(cfg.Splits) == 0 {
		n := cfg.Processes
		for n%fanout == 0 {
			n /= fanout
		}
		if n != 1 {
			return fmt.Errorf("%w: %d processes is not a power of %d", types.ErrInvalidConfig, cfg.Processes, fanout)
		}
	} else {
		if want := len(cfg.Splits)*(fanout-1) + 1; want != cfg.Processes {
			return fmt.Errorf("%w: %d splits make %d leaves, not %d processes",
				types.ErrInvalidConfig, len(cfg.Splits), want, cfg.Processes)
		}
		for i, o := range cfg.Splits {
			if len(o) != d {
				return fmt.Errorf("%w: split %d %v does not have %d dimensions", types.ErrInvalidConfig, i, o, d)
			}
		}
	}

	if cfg.Balance.Interval < 0 {
		return fmt.Errorf("%w: balance interval must be >= 0, got %d", types.ErrInvalidConfig, cfg.Balance.Interval)
	}
	if cfg.OperationTimeout <= 0 {
		return fmt.Errorf("%w: operation timeout must be > 0, got %v", types.ErrInvalidConfig, cfg.OperationTimeout)
	}
	if cfg.StartupTimeout <= 0 {
		return fmt.Errorf("%w: startup timeout must be > 0, got %v", types.ErrInvalidConfig, cfg.StartupTimeout)
	}
	if cfg.Ranks.TTL <= 0 {
		return fmt.Errorf("%w: rank claim TTL must be > 0, got %v", types.ErrInvalidConfig, cfg.Ranks.TTL)
	}

	return nil
}

// LoadConfig parses a YAML document, applies defaults and validates it.
//
// Example:
//
//	cfg, err := mason.LoadConfig([]byte(`
//	field:
//	  fieldSize: [200, 200]
//	  toroidal: true
//	  areaOfInterest: [2, 2]
//	processes: 16
//	`))
func LoadConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", types.ErrInvalidConfig, err)
	}
	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadConfigFile reads and parses the YAML file at path.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return LoadConfig(data)
}

// TestConfig returns a small configuration with short timeouts for tests:
// a 20x20 torus over four processes with a unit area of interest.
func TestConfig() Config {
	cfg := DefaultConfig()
	cfg.Field.FieldSize = geom.Point{20, 20}
	cfg.Balance.Interval = 0
	cfg.OperationTimeout = 2 * time.Second
	cfg.StartupTimeout = 10 * time.Second

	return cfg
}
