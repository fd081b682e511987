package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"powergrid/crypto"
)

// Genesis seeds the participant ledger on first boot.
type Genesis struct {
	Participants []string `yaml:"participants"`
}

// LoadGenesis reads and decodes the participant list at path.
func LoadGenesis(path string) ([]crypto.Address, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read genesis %s: %w", path, err)
	}
	var genesis Genesis
	if err := yaml.Unmarshal(raw, &genesis); err != nil {
		return nil, fmt.Errorf("config: parse genesis %s: %w", path, err)
	}
	participants := make([]crypto.Address, 0, len(genesis.Participants))
	seen := make(map[string]struct{}, len(genesis.Participants))
	for i, entry := range genesis.Participants {
		addr, err := crypto.DecodeAddress(entry)
		if err != nil {
			return nil, fmt.Errorf("config: genesis participant %d: %w", i, err)
		}
		key := addr.String()
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("config: genesis participant %d duplicates %s", i, key)
		}
		seen[key] = struct{}{}
		participants = append(participants, addr)
	}
	return participants, nil
}
