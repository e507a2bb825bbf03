package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig                 `json:"app" yaml:"app"`
	Gateways   map[string]GatewayConfig  `json:"gateways" yaml:"gateways"`
	Providers  map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Memory     MemoryConfig              `json:"memory" yaml:"memory"`
	Engine     EngineConfig              `json:"engine" yaml:"engine"`
	Events     EventsConfig              `json:"events" yaml:"events"`
	Governance GovernanceConfig          `json:"governance" yaml:"governance"`
}

type AppConfig struct {
	Name      string `json:"name" yaml:"name"`
	Workspace string `json:"workspace" yaml:"workspace"`
	Prompts   string `json:"prompts" yaml:"prompts"`
	Headless  *bool  `json:"headless,omitempty" yaml:"headless,omitempty"`
}

type GatewayConfig struct {
	Token   string `json:"token" yaml:"token"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type MemoryConfig struct {
	// sqlite or postgres
	Driver string `json:"driver" yaml:"driver"`
	Path   string `json:"path" yaml:"path"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// Source returns the data source name for the configured driver.
func (m MemoryConfig) Source() string {
	if m.Driver == "postgres" {
		return m.DSN
	}
	return m.Path
}

type EngineConfig struct {
	MaxDynamicSteps      int      `json:"max_dynamic_steps" yaml:"max_dynamic_steps"`
	ConfidenceThreshold  float64  `json:"confidence_threshold" yaml:"confidence_threshold"`
	MediumAcceptance     float64  `json:"medium_acceptance" yaml:"medium_acceptance"`
	LowAcceptance        float64  `json:"low_acceptance" yaml:"low_acceptance"`
	DirectTimeout        Duration `json:"direct_timeout" yaml:"direct_timeout"`
	RemoteTimeout        Duration `json:"remote_timeout" yaml:"remote_timeout"`
	MaxStepsPerExpansion int      `json:"max_steps_per_expansion" yaml:"max_steps_per_expansion"`
	DynamicTools         []string `json:"dynamic_tools" yaml:"dynamic_tools"`
}

type EventsConfig struct {
	NATSURL       string `json:"nats_url,omitempty" yaml:"nats_url,omitempty"`
	SubjectPrefix string `json:"subject_prefix" yaml:"subject_prefix"`
}

type GovernanceConfig struct {
	DenyTools     []string `json:"deny_tools" yaml:"deny_tools"`
	DenyArguments []string `json:"deny_arguments" yaml:"deny_arguments"`
}

// Duration accepts "30s"-style strings in both JSON and YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var secs float64
		if err := json.Unmarshal(b, &secs); err != nil {
			return fmt.Errorf("duration must be a string like \"30s\" or a number of seconds")
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	return d.parse(s)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// LoadConfig reads a JSON or YAML file, chosen by extension, then applies
// environment overrides and defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyEnv lets secrets come from the environment instead of the file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SYNAPSE_TELEGRAM_TOKEN"); v != "" {
		c.setGatewayToken("telegram", v)
	}
	if v := os.Getenv("SYNAPSE_DISCORD_TOKEN"); v != "" {
		c.setGatewayToken("discord", v)
	}
	if v := os.Getenv("SYNAPSE_OPENAI_API_KEY"); v != "" {
		if c.Providers == nil {
			c.Providers = make(map[string]ProviderConfig)
		}
		p := c.Providers["openai"]
		p.APIKey = v
		c.Providers["openai"] = p
	}
	if v := os.Getenv("SYNAPSE_DATABASE_URL"); v != "" {
		c.Memory.Driver = "postgres"
		c.Memory.DSN = v
	}
}

func (c *Config) setGatewayToken(name, token string) {
	if c.Gateways == nil {
		c.Gateways = make(map[string]GatewayConfig)
	}
	g := c.Gateways[name]
	g.Token = token
	c.Gateways[name] = g
}

func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "synapse"
	}
	if c.App.Workspace == "" {
		c.App.Workspace = "./workspace"
	}
	if c.App.Prompts == "" {
		c.App.Prompts = "./prompts"
	}
	if c.Memory.Driver == "" {
		c.Memory.Driver = "sqlite"
	}
	if c.Memory.Path == "" {
		c.Memory.Path = "synapse.db"
	}

	e := &c.Engine
	if e.MaxDynamicSteps <= 0 {
		e.MaxDynamicSteps = 5
	}
	if e.ConfidenceThreshold <= 0 {
		e.ConfidenceThreshold = 0.6
	}
	if e.MediumAcceptance <= 0 {
		e.MediumAcceptance = 0.7
	}
	if e.LowAcceptance <= 0 {
		e.LowAcceptance = 0.4
	}
	if e.DirectTimeout <= 0 {
		e.DirectTimeout = Duration(30 * time.Second)
	}
	if e.RemoteTimeout <= 0 {
		e.RemoteTimeout = Duration(60 * time.Second)
	}
	if e.MaxStepsPerExpansion <= 0 {
		e.MaxStepsPerExpansion = 3
	}
	if len(e.DynamicTools) == 0 {
		e.DynamicTools = []string{"llm"}
	}

	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = "synapse.events"
	}
}

// Headless reports whether the browser tool runs without a window.
func (c *Config) Headless() bool {
	return c.App.Headless == nil || *c.App.Headless
}

// GetDefaultProvider returns the first enabled provider in name order.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetGatewayConfig returns the named gateway if it is enabled and has a token.
func (c *Config) GetGatewayConfig(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled && g.Token != "" {
		return g, true
	}
	return GatewayConfig{}, false
}
