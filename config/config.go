package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultTokensPerPower   = "1000"
	DefaultMinBond          = "1"
	DefaultMaxDistributions = 6
	DefaultQuotaEpoch       = 60
)

// Load loads the genesis configuration from the given path.
func Load(path string) (*StakeConfig, error) {
	cfg := &StakeConfig{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown field %s", path, undecoded[0])
	}
	normalize(cfg)
	if err := ValidateStake(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a genesis configuration held in memory.
func Parse(data string) (*StakeConfig, error) {
	cfg := &StakeConfig{}
	if _, err := toml.Decode(data, cfg); err != nil {
		return nil, err
	}
	normalize(cfg)
	if err := ValidateStake(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func normalize(cfg *StakeConfig) {
	cfg.StakedToken = strings.TrimSpace(cfg.StakedToken)
	if strings.TrimSpace(cfg.TokensPerPower) == "" {
		cfg.TokensPerPower = DefaultTokensPerPower
	}
	if strings.TrimSpace(cfg.MinBond) == "" {
		cfg.MinBond = DefaultMinBond
	}
	if cfg.MaxDistributions == 0 {
		cfg.MaxDistributions = DefaultMaxDistributions
	}
	if cfg.Quota.EpochSeconds == 0 {
		cfg.Quota.EpochSeconds = DefaultQuotaEpoch
	}
	if cfg.UnbondingPeriods == nil {
		cfg.UnbondingPeriods = []uint64{}
	}
}

// Save writes cfg to path, creating the parent directory.
func Save(path string, cfg *StakeConfig) error {
	return persist(path, cfg)
}

func persist(path string, cfg *StakeConfig) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
