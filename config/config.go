package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultChainID is the chain identifier bound into permit digests unless the
// configuration overrides it.
const DefaultChainID uint64 = 240011

// TokenConfig describes the token identity and genesis allocation.
type TokenConfig struct {
	Name          string `toml:"Name"`
	Symbol        string `toml:"Symbol"`
	Decimals      uint8  `toml:"Decimals"`
	Owner         string `toml:"Owner"`
	ModuleAddress string `toml:"ModuleAddress"`
	Treasury      string `toml:"Treasury"`
	GenesisSupply string `toml:"GenesisSupply"`
}

// RecoveryConfig describes the timelocked recovery parameters.
type RecoveryConfig struct {
	Receiver        string `toml:"Receiver"`
	LimitBps        uint64 `toml:"LimitBps"`
	TimelockSeconds int64  `toml:"TimelockSeconds"`
}

// AuditConfig describes the optional audit event store.
type AuditConfig struct {
	DSN string `toml:"DSN"`
}

// TelemetryConfig describes the optional OTLP trace exporter.
type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
}

type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	DBBackend      string `toml:"DBBackend"`
	NetworkName    string `toml:"NetworkName"`
	ChainID        uint64 `toml:"ChainID"`
	RPCAuthToken   string `toml:"RPCAuthToken"`
	RPCJWTSecret   string `toml:"RPCJWTSecret"`
	LogFile        string `toml:"LogFile"`
	LogMaxSizeMB   int    `toml:"LogMaxSizeMB"`

	Token     TokenConfig     `toml:"Token"`
	Recovery  RecoveryConfig  `toml:"Recovery"`
	Audit     AuditConfig     `toml:"Audit"`
	Telemetry TelemetryConfig `toml:"Telemetry"`
}

// Load reads the configuration from the given path, applying defaults for
// omitted fields. A missing file yields the defaults outright.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8545"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = "127.0.0.1:9464"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./tokend-data"
	}
	if strings.TrimSpace(cfg.DBBackend) == "" {
		cfg.DBBackend = "leveldb"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "tokend-local"
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = DefaultChainID
	}
	if cfg.LogMaxSizeMB <= 0 {
		cfg.LogMaxSizeMB = 100
	}
	if strings.TrimSpace(cfg.Token.Name) == "" {
		cfg.Token.Name = "Guarded Token"
	}
	if strings.TrimSpace(cfg.Token.Symbol) == "" {
		cfg.Token.Symbol = "TKD"
	}
	if cfg.Token.Decimals == 0 {
		cfg.Token.Decimals = 18
	}
	if cfg.Recovery.TimelockSeconds == 0 {
		cfg.Recovery.TimelockSeconds = 24 * 60 * 60
	}
}
