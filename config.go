package qbdt

import (
	"fmt"
	"runtime"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

type Config struct {
	// Workers bounds the goroutines of one parallel loop.
	Workers int `mapstructure:"workers"`
	// ParallelGrain is the chunk of indices a worker claims at a time.
	ParallelGrain uint64 `mapstructure:"parallel_grain"`
	// Seed for measurement sampling. Zero draws a random seed.
	Seed uint64 `mapstructure:"seed"`
	// HybridNodeRatio is the fraction of 2^n tree nodes past which a
	// hybrid register moves to the flat engine.
	HybridNodeRatio float64 `mapstructure:"hybrid_node_ratio"`
	// HybridMinQubits keeps narrow hybrid registers on the tree.
	HybridMinQubits int `mapstructure:"hybrid_min_qubits"`
	// SparseEngine selects map-backed storage for the flat engine.
	SparseEngine bool `mapstructure:"sparse_engine"`
	// SnapshotCodec is one of "none", "zstd" or "lz4".
	SnapshotCodec string `mapstructure:"snapshot_codec"`
	LogLevel      string `mapstructure:"log_level"`

	Dispatcher *Dispatcher `mapstructure:"-"`
	Metrics    *Metrics    `mapstructure:"-"`
	Logger     *log.Logger `mapstructure:"-"`
}

func NewConfig() *Config {
	return &Config{
		Workers:         runtime.GOMAXPROCS(0),
		ParallelGrain:   256,
		HybridNodeRatio: 0.5,
		HybridMinQubits: 4,
		SnapshotCodec:   "zstd",
		LogLevel:        "warn",
	}
}

// Option adjusts a Config before a register is built from it.
type Option func(*Config)

func WithWorkers(n int) Option {
	return func(c *Config) { c.Workers = n }
}

func WithSeed(seed uint64) Option {
	return func(c *Config) { c.Seed = seed }
}

func WithSnapshotCodec(codec string) Option {
	return func(c *Config) { c.SnapshotCodec = codec }
}

func WithSparseEngine(sparse bool) Option {
	return func(c *Config) { c.SparseEngine = sparse }
}

func WithHybridThreshold(ratio float64, minQubits int) Option {
	return func(c *Config) {
		c.HybridNodeRatio = ratio
		c.HybridMinQubits = minQubits
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

func WithConfig(cfg *Config) Option {
	return func(c *Config) { *c = *cfg }
}

// resolve applies opts to a copy of the defaults and fills in the shared
// runtime collaborators.
func resolve(opts []Option) *Config {
	cfg := NewConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = NewDispatcher(cfg.Workers, cfg.ParallelGrain)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = NewLogger(cfg.LogLevel)
	}
	return cfg
}

/*
LoadConfig reads a Config from a YAML (or any viper-supported) file, with
QBDT_* environment variables taking precedence. An empty path reads only
the environment.
*/
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	v := viper.New()
	v.SetDefault("workers", cfg.Workers)
	v.SetDefault("parallel_grain", cfg.ParallelGrain)
	v.SetDefault("seed", cfg.Seed)
	v.SetDefault("hybrid_node_ratio", cfg.HybridNodeRatio)
	v.SetDefault("hybrid_min_qubits", cfg.HybridMinQubits)
	v.SetDefault("sparse_engine", cfg.SparseEngine)
	v.SetDefault("snapshot_codec", cfg.SnapshotCodec)
	v.SetDefault("log_level", cfg.LogLevel)

	v.SetEnvPrefix("QBDT")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	return cfg, nil
}
