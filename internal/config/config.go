// Package config loads miner configuration from an optional YAML file
// and layers CLI flag overrides on top, following the same
// load-or-create-default, YAML-file-plus-overrides pattern the rest of
// this lineage uses for its own config files.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/atomicalminer/atomicalminer/internal/netparams"
)

// Config holds every setting the miner needs beyond the per-run
// --ticker flag: network selection, where to find the indexer and fee
// oracle, fee bounds, thread count, and where to keep data.
type Config struct {
	Network     netparams.Network `yaml:"network"`
	ElectrumX   string            `yaml:"electrumx"`
	FeeOracle   string            `yaml:"fee_oracle"`
	FeeMin      uint64            `yaml:"fee_min"`
	FeeMax      uint64            `yaml:"fee_max"`
	ThreadCount int               `yaml:"thread_count"`
	DataDir     string            `yaml:"data_dir"`
	LogLevel    string            `yaml:"log_level"`
}

// ConfigFileName is the default config file name, resolved relative to
// --data-dir unless --config names an explicit path.
const ConfigFileName = "atomicalminer.yaml"

// DefaultConfig returns a Config with sensible defaults: mainnet,
// the public ElectrumX-proxy and mempool.space endpoints, a
// conservative fee band, one worker thread per CPU, and info logging.
func DefaultConfig() *Config {
	return &Config{
		Network:     netparams.Mainnet,
		ElectrumX:   "https://ep.atomicals.xyz/proxy",
		FeeOracle:   "https://mempool.space/api",
		FeeMin:      1,
		FeeMax:      200,
		ThreadCount: 0, // 0 means "use runtime.NumCPU()"
		DataDir:     ".",
		LogLevel:    "info",
	}
}

// LoadConfig loads configuration from a YAML file at path. If the file
// does not exist, it creates one populated with defaults and returns
// those defaults.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as YAML to path, creating its parent directory if
// necessary.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	header := []byte("# atomicalminer configuration\n# generated automatically on first run\n\n")
	data = append(header, data...)

	return os.WriteFile(path, data, 0o600)
}

// Validate checks invariants LoadConfig cannot: a known network and a
// sane fee band.
func (c *Config) Validate() error {
	if _, ok := netparams.Params(c.Network); !ok {
		return fmt.Errorf("unknown network %q", c.Network)
	}
	if c.FeeMin > c.FeeMax {
		return fmt.Errorf("fee_min %d exceeds fee_max %d", c.FeeMin, c.FeeMax)
	}
	return nil
}
