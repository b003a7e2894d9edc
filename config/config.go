package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/chargewatch/core/metrics"
	"github.com/kilianp07/chargewatch/core/reconciler"
	"github.com/kilianp07/chargewatch/core/session"
	"github.com/kilianp07/chargewatch/core/supervisor"
	"github.com/kilianp07/chargewatch/infra/httpapi"
	"github.com/kilianp07/chargewatch/infra/monitoring"
	"github.com/kilianp07/chargewatch/infra/mqtt"
	"github.com/kilianp07/chargewatch/infra/telemetry"
)

type Config struct {
	Database   DatabaseConfig    `json:"database"`
	MQTT       mqtt.Config       `json:"mqtt"`
	Telemetry  telemetry.Config  `json:"telemetry"`
	Probe      ProbeConfig       `json:"probe"`
	Session    session.Config    `json:"session"`
	Supervisor supervisor.Config `json:"supervisor"`
	Reconciler reconciler.Config `json:"reconciler"`
	Metrics    metrics.Config    `json:"metrics"`
	Logging    LoggingConfig     `json:"logging"`
	Sentry     monitoring.Config `json:"sentry"`
	HTTP       httpapi.Config    `json:"http"`
}

// Load reads a yaml or json file, applies K_ prefixed environment overrides
// (K_DATABASE__URL sets database.url), fills defaults and validates.
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
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Database.SetDefaults()
	c.MQTT.SetDefaults()
	c.Telemetry.SetDefaults()
	c.Probe.SetDefaults()
	c.Session.SetDefaults()
	c.Supervisor.SetDefaults()
	c.Reconciler.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section and reports the first failure.
func (c Config) Validate() error {
	checks := []struct {
		section string
		fn      func() error
	}{
		{"database", c.Database.Validate},
		{"mqtt", c.MQTT.Validate},
		{"telemetry", c.Telemetry.Validate},
		{"probe", c.Probe.Validate},
		{"session", c.Session.Validate},
		{"supervisor", c.Supervisor.Validate},
		{"reconciler", c.Reconciler.Validate},
		{"logging", c.Logging.Validate},
	}
	for _, chk := range checks {
		if err := chk.fn(); err != nil {
			return fmt.Errorf("%s: %w", chk.section, err)
		}
	}
	return nil
}
