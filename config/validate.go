package config

import (
	"fmt"
	"math/big"
	"strings"

	"tokend/crypto"
	"tokend/native/recovery"
)

// Validate checks the loaded configuration for out-of-bounds values and
// malformed addresses before any component consumes it.
func (cfg *Config) Validate() error {
	switch strings.TrimSpace(cfg.DBBackend) {
	case "leveldb", "bolt", "memory":
	default:
		return fmt.Errorf("config: unsupported DBBackend %q", cfg.DBBackend)
	}
	if cfg.ChainID == 0 {
		return fmt.Errorf("config: ChainID must not be zero")
	}
	if cfg.Recovery.LimitBps > recovery.MaxLimitBps {
		return fmt.Errorf("config: Recovery.LimitBps %d exceeds %d", cfg.Recovery.LimitBps, recovery.MaxLimitBps)
	}
	if cfg.Recovery.TimelockSeconds < 0 || cfg.Recovery.TimelockSeconds > recovery.MaxTimelockSeconds {
		return fmt.Errorf("config: Recovery.TimelockSeconds %d outside [0, %d]", cfg.Recovery.TimelockSeconds, recovery.MaxTimelockSeconds)
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"Token.Owner", cfg.Token.Owner},
		{"Token.ModuleAddress", cfg.Token.ModuleAddress},
		{"Token.Treasury", cfg.Token.Treasury},
		{"Recovery.Receiver", cfg.Recovery.Receiver},
	} {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("config: %s required", field.name)
		}
		if _, err := crypto.DecodeAddress(field.value); err != nil {
			return fmt.Errorf("config: %s: %w", field.name, err)
		}
	}
	if strings.TrimSpace(cfg.Token.GenesisSupply) != "" {
		if _, err := cfg.GenesisSupply(); err != nil {
			return err
		}
	}
	return nil
}

// GenesisSupply parses the configured genesis supply as a base-10 integer.
func (cfg *Config) GenesisSupply() (*big.Int, error) {
	trimmed := strings.TrimSpace(cfg.Token.GenesisSupply)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("config: invalid Token.GenesisSupply %q", cfg.Token.GenesisSupply)
	}
	return value, nil
}

// Address decodes a configured bech32 address into its raw form. It must only
// be called after Validate has passed.
func Address(value string) [20]byte {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		panic(err)
	}
	return addr.Raw()
}
