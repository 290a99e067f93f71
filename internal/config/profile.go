package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AgentProfile describes the agent's identity on the message network.
// Loaded from a YAML file so deployments can swap identities without
// touching the environment.
type AgentProfile struct {
	Name      string   `yaml:"name"`
	Address   string   `yaml:"address"`
	Seed      string   `yaml:"seed"`
	Network   string   `yaml:"network"`
	Endpoints []string `yaml:"endpoints"`
	// Auth selects the mailbox authentication strategy: "bearer" or
	// "attestation".
	Auth string `yaml:"auth"`
}

// LoadAgentProfile reads and validates an agent profile YAML file.
func LoadAgentProfile(path string) (AgentProfile, error) {
	var profile AgentProfile

	data, err := os.ReadFile(path)
	if err != nil {
		return profile, fmt.Errorf("read agent profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return profile, fmt.Errorf("parse agent profile: %w", err)
	}

	if profile.Name == "" {
		profile.Name = "hearthfind"
	}
	if profile.Network == "" {
		profile.Network = "testnet"
	}
	if profile.Address == "" {
		return profile, fmt.Errorf("agent profile missing address")
	}
	return profile, nil
}
