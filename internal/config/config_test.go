package config

import (
	"path/filepath"
	"testing"

	"github.com/atomicalminer/atomicalminer/internal/netparams"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Network != netparams.Mainnet {
		t.Errorf("default network = %q, want %q", cfg.Network, netparams.Mainnet)
	}
	if cfg.FeeMin > cfg.FeeMax {
		t.Errorf("default fee band invalid: min=%d max=%d", cfg.FeeMin, cfg.FeeMax)
	}

	reloaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("reload LoadConfig: %v", err)
	}
	if *reloaded != *cfg {
		t.Errorf("reloaded config %+v does not match original %+v", reloaded, cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "unknown network", mutate: func(c *Config) { c.Network = "regtest" }, wantErr: true},
		{name: "inverted fee band", mutate: func(c *Config) { c.FeeMin, c.FeeMax = 10, 5 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
