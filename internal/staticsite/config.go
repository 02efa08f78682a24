package staticsite

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const DefaultStackName = "StaticSiteCn"

// Config is the site file: the site props plus where to deploy them.
type Config struct {
	StackName string `yaml:"stackName"`
	Region    string `yaml:"region"`
	Props     `yaml:",inline"`
}

// LoadConfig reads a YAML site file. A relative path is resolved against the
// directory holding the file.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", filename, err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filename, err)
	}

	if cfg.StackName == "" {
		cfg.StackName = DefaultStackName
	}
	if cfg.Path != "" && !filepath.IsAbs(cfg.Path) {
		cfg.Path = filepath.Join(filepath.Dir(filename), cfg.Path)
	}

	return &cfg, nil
}
