package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Terminal is one entry of the static terminal -> facility table.
type Terminal struct {
	// ID is the physical payment terminal identifier.
	ID int64 `yaml:"terminal_id"`

	// Description is the human label used in receipt descriptions.
	Description string `yaml:"description"`

	// Parking is the facility (parking zone) code. It keys the credential
	// table on delivery.
	Parking string `yaml:"parking"`
}

type terminalsFile struct {
	Terminals []Terminal `yaml:"terminals"`
}

// LoadTerminals reads the terminal association table. The table is
// read-only for the lifetime of the process; it is registered into the
// checkpoint store once at startup.
func LoadTerminals(path string) ([]Terminal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read terminals file: %w", err)
	}

	var f terminalsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse terminals file %s: %w", path, err)
	}

	for i, t := range f.Terminals {
		if t.ID == 0 {
			return nil, fmt.Errorf("terminals file %s: entry %d missing terminal_id", path, i)
		}
	}

	return f.Terminals, nil
}

type tokensFile struct {
	// Tokens maps a facility code to its Authorization credential.
	Tokens map[string]string `yaml:"tokens"`
}

// LoadTokens reads the facility -> credential table.
func LoadTokens(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokens file: %w", err)
	}

	var f tokensFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tokens file %s: %w", path, err)
	}
	if len(f.Tokens) == 0 {
		return nil, fmt.Errorf("tokens file %s: no tokens defined", path)
	}

	return f.Tokens, nil
}
