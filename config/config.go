package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/robofleet/core/metrics"
	"github.com/kilianp07/robofleet/infra/mqtt"
)

// Config is the application configuration.
type Config struct {
	Graph       GraphConfig       `json:"graph"`
	Simulation  SimulationConfig  `json:"simulation"`
	Metrics     metrics.Config    `json:"metrics"`
	MQTT        mqtt.Config       `json:"mqtt"`
	Logging     LoggingConfig     `json:"logging"`
	Sentry      SentryConfig      `json:"sentry"`
	Persistence PersistenceConfig `json:"persistence"`
	API         APIConfig         `json:"api"`
}

// GraphConfig locates the navigation graph document.
type GraphConfig struct {
	// Path is a JSON or YAML graph file.
	Path string `json:"path"`
}

// Default returns a configuration holding every default value.
func Default() Config {
	cfg := Config{Simulation: DefaultSimulation()}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills unset fields of every section.
func (c *Config) SetDefaults() {
	c.Simulation.SetDefaults()
	c.Logging.SetDefaults()
	c.Persistence.SetDefaults()
	if c.MQTT.Enabled() {
		c.MQTT.SetDefaults()
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	var errs []error
	if err := c.Simulation.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("simulation: %w", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if err := c.Persistence.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("persistence: %w", err))
	}
	if c.MQTT.Enabled() {
		if err := c.MQTT.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load reads the configuration file at path, applies K_ prefixed environment
// overrides (K_SIMULATION__TICK=0.05 sets simulation.tick), fills defaults and
// validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	cfg := Config{Simulation: DefaultSimulation()}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if cfg.Graph.Path != "" && !filepath.IsAbs(cfg.Graph.Path) {
		cfg.Graph.Path = filepath.Join(filepath.Dir(path), cfg.Graph.Path)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
