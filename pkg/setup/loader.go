package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a setup configuration file.
//
// The format is chosen by extension: .json for JSON, anything else is read
// as YAML (a superset of JSON). The document is validated against the
// embedded schema before it is decoded, so unknown fields are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("setup config not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read setup config: %w", err)
	}
	cfg, err := LoadFromBytes(data, path)
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	cfg.ApplyDefaults(filepath.Base(filepath.Dir(path)))
	return cfg, nil
}

// LoadFromBytes parses and validates a setup configuration. path is used
// for format detection and error messages.
func LoadFromBytes(data []byte, path string) (*Config, error) {
	if len(data) == 0 {
		return nil, errors.New("setup config is empty")
	}

	jsonData, err := toJSON(data, path)
	if err != nil {
		return nil, err
	}
	if err := ValidateRaw(jsonData); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("invalid setup config %s: %w", path, err)
	}
	return &cfg, nil
}

// toJSON normalises YAML or JSON input to JSON.
func toJSON(data []byte, path string) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		var raw any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid JSON in setup config: %w", err)
		}
		return data, nil
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML in setup config: %w", err)
	}
	out, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert setup config to JSON: %w", err)
	}
	return out, nil
}
