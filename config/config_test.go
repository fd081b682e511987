package config

import (
	"os"
	"path/filepath"
	"testing"

	"powergrid/crypto"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.ListenAddress == "" || cfg.DataDir == "" {
		t.Fatalf("default config incomplete: %+v", cfg)
	}
	fee, err := cfg.Fee()
	if err != nil {
		t.Fatalf("fee: %v", err)
	}
	if fee.Sign() <= 0 {
		t.Fatalf("default fee must be positive, got %s", fee)
	}

	// Reloading the written file round-trips.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.NetworkName != cfg.NetworkName {
		t.Fatalf("network name changed on reload: %s vs %s", reloaded.NetworkName, cfg.NetworkName)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "ListenAddress = \":8545\"\nDataDir = \"./data\"\nValidatorKey = \"deadbeef\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected unknown-key error")
	}
}

func TestLoadRejectsBadFee(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "ListenAddress = \":8545\"\nDataDir = \"./data\"\nSubmissionFee = \"not-a-number\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected fee parse error")
	}
}

func TestValidateTelemetryEndpoint(t *testing.T) {
	cfg := &Config{ListenAddress: ":8545", DataDir: "./data", SubmissionFee: "10"}
	cfg.Telemetry.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing telemetry endpoint error")
	}
	cfg.Telemetry.Endpoint = "localhost:4318"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadGenesis(t *testing.T) {
	raw := make([]byte, crypto.AddressLength)
	raw[crypto.AddressLength-1] = 0x22
	first := crypto.MustAddress(raw).String()
	raw[crypto.AddressLength-1] = 0x33
	second := crypto.MustAddress(raw).String()

	path := filepath.Join(t.TempDir(), "genesis.yaml")
	content := "participants:\n  - " + first + "\n  - " + second + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write genesis: %v", err)
	}
	participants, err := LoadGenesis(path)
	if err != nil {
		t.Fatalf("load genesis: %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(participants))
	}
	if participants[0].String() != first {
		t.Fatalf("participant order not preserved: %s", participants[0])
	}
}

func TestLoadGenesisRejectsDuplicates(t *testing.T) {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = 0x01
	addr := crypto.MustAddress(raw).String()

	path := filepath.Join(t.TempDir(), "genesis.yaml")
	content := "participants:\n  - " + addr + "\n  - " + addr + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write genesis: %v", err)
	}
	if _, err := LoadGenesis(path); err == nil {
		t.Fatal("expected duplicate participant error")
	}
}
