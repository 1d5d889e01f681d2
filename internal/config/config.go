package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models adventdrop.yml, the season configuration.
type Config struct {
	Season struct {
		Tag       string `yaml:"tag"`
		StartDate string `yaml:"start_date"`
		Days      int    `yaml:"days"`
	} `yaml:"season"`
	NGO struct {
		Wallet string `yaml:"wallet"`
	} `yaml:"ngo"`
	Token struct {
		Mint string `yaml:"mint"`
	} `yaml:"token"`
	Reveal struct {
		// Override forces full disclosure regardless of date. Never set in
		// production; it exists for rehearsing a season end to end.
		Override bool `yaml:"override"`
	} `yaml:"reveal"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with adventdrop init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Season.Tag == "" {
		return fmt.Errorf("config.season.tag is required")
	}
	if c.Season.Days <= 0 {
		return fmt.Errorf("config.season.days must be positive")
	}
	if _, err := time.Parse("2006-01-02", c.Season.StartDate); err != nil {
		return fmt.Errorf("config.season.start_date must be YYYY-MM-DD: %w", err)
	}
	return nil
}

// StartDate returns the season start as midnight UTC. Validate must have
// passed.
func (c *Config) StartDate() time.Time {
	t, _ := time.Parse("2006-01-02", c.Season.StartDate)
	return t.UTC()
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "adventdrop.yml")
}

// Default returns the default Config struct for a season tag.
func Default(tag string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(fmt.Sprintf(defaultTemplate, tag, time.Now().UTC().Format("2006-01-02"))), &cfg)
	cfg.Season.Tag = tag
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML for a season tag.
func GenerateDefault(tag string) string {
	return fmt.Sprintf(defaultTemplate, tag, time.Now().UTC().Format("2006-01-02"))
}

const defaultTemplate = `season:
  tag: %s
  start_date: %s
  days: 24

ngo:
  wallet: ""

token:
  mint: ""

reveal:
  override: false
`
