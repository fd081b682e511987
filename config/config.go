package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Telemetry configures the optional OTLP exporters.
type Telemetry struct {
	Enabled     bool   `toml:"Enabled"`
	Endpoint    string `toml:"Endpoint"`
	Insecure    bool   `toml:"Insecure"`
	Environment string `toml:"Environment"`
}

// RateLimit bounds per-client request rates on the RPC listener. Zero
// disables throttling.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

type Config struct {
	ListenAddress string    `toml:"ListenAddress"`
	OpsAddress    string    `toml:"OpsAddress"`
	DataDir       string    `toml:"DataDir"`
	GenesisFile   string    `toml:"GenesisFile"`
	NetworkName   string    `toml:"NetworkName"`
	SubmissionFee string    `toml:"SubmissionFee"`
	ArchivePath   string    `toml:"ArchivePath"`
	RateLimit     RateLimit `toml:"RateLimit"`
	Telemetry     Telemetry `toml:"Telemetry"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return nil, fmt.Errorf("config file %s contains unknown keys: %s", path, strings.Join(keys, ", "))
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Fee parses the configured submission fee.
func (c *Config) Fee() (*big.Int, error) {
	trimmed := strings.TrimSpace(c.SubmissionFee)
	fee, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || fee.Sign() < 0 {
		return nil, fmt.Errorf("config: invalid SubmissionFee %q", c.SubmissionFee)
	}
	return fee, nil
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if _, err := c.Fee(); err != nil {
		return err
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("config: RateLimit.RequestsPerSecond must not be negative")
	}
	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("config: Telemetry.Endpoint required when telemetry is enabled")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "powergrid-local"
	}
	if strings.TrimSpace(cfg.SubmissionFee) == "" {
		cfg.SubmissionFee = "1000"
	}
	if strings.TrimSpace(cfg.OpsAddress) == "" {
		cfg.OpsAddress = ":9090"
	}
	if strings.TrimSpace(cfg.Telemetry.Environment) == "" {
		cfg.Telemetry.Environment = "dev"
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8545",
		OpsAddress:    ":9090",
		DataDir:       "./powergrid-data",
		GenesisFile:   "",
		NetworkName:   "powergrid-local",
		SubmissionFee: "1000",
		ArchivePath:   "./powergrid-data/audit.db",
	}
	cfg.Telemetry.Environment = "dev"

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
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
