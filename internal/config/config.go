package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/mca/internal/logger"
	"github.com/spf13/viper"
)

// DefaultFileName is the config file looked up when no path is given.
const DefaultFileName = "agents_config.json"

// Defaults mirrored into viper so MCA_* environment overrides work for every key.
const (
	DefaultLauncher         = "ccc"
	DefaultAutoFlag         = "-auto"
	DefaultPortEnv          = "PORT"
	DefaultHealthInterval   = 500 * time.Millisecond
	DefaultHealthMaxRetries = 60 // 30s / 0.5s
	DefaultStopGrace        = 5 * time.Second
	DefaultAgentTimeout     = 500 * time.Second
	DefaultModel            = "claude-opus-4.5"
	DefaultMaxTokens        = 8192
	DefaultSystemPrompt     = "You are an expert analyst. Provide comprehensive and well-structured analysis with a focus on practical solutions, using Chinese."
)

// DefaultModelEnv lists the role-oriented variables that all receive the worker name.
var DefaultModelEnv = []string{"BIG_MODEL", "MIDDLE_MODEL", "SMALL_MODEL"}

// DefaultWorkers is written by WriteDefault.
var DefaultWorkers = []Worker{
	{Name: "copilotcode-13", Port: 4900, SystemPrompt: DefaultSystemPrompt, Enabled: true},
	{Name: "lyra-flash-6", Port: 4901, SystemPrompt: DefaultSystemPrompt, Enabled: true},
	{Name: "cortex-15", Port: 4902, SystemPrompt: DefaultSystemPrompt, Enabled: true},
	{Name: "cortex-12", Port: 4903, SystemPrompt: DefaultSystemPrompt, Enabled: true},
}

var (
	// ErrNoAgents is returned when the file has no "agents" list.
	ErrNoAgents = errors.New("config: missing 'agents' list")
	// ErrNotFound is returned by ResolvePath when no candidate exists.
	ErrNotFound = errors.New("config: file not found")
)

// Worker is one configured backend target reachable through its own proxy port.
type Worker struct {
	Name         string `json:"name" yaml:"name"`
	Port         int    `json:"port" yaml:"port"`
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	Launcher     string `json:"launcher,omitempty" yaml:"launcher,omitempty"` // overrides proxy.command
}

// Launch describes how a worker's proxy process is started and probed.
// The binary and flag spelling are a deployment contract with the proxy tool.
type Launch struct {
	Command          string            `mapstructure:"command"`
	Args             []string          `mapstructure:"args"`
	ModelEnv         []string          `mapstructure:"model_env"`
	PortEnv          string            `mapstructure:"port_env"`
	AssignmentArgs   bool              `mapstructure:"assignment_args"` // also pass KEY=VALUE positional args
	Env              []string          `mapstructure:"env"`
	EnvFiles         []string          `mapstructure:"env_files"`
	WorkDir          string            `mapstructure:"work_dir"`
	HealthInterval   time.Duration     `mapstructure:"health_interval"`
	HealthMaxRetries int               `mapstructure:"health_max_retries"`
	StopGrace        time.Duration     `mapstructure:"stop_grace"`
	Log              logger.FileConfig `mapstructure:"log"`
}

// StartupTimeout is the total readiness budget (interval x retries).
func (l Launch) StartupTimeout() time.Duration {
	return l.HealthInterval * time.Duration(l.HealthMaxRetries)
}

// Agent configures the per-worker call.
type Agent struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	Model     string        `mapstructure:"model"`
	MaxTokens int64         `mapstructure:"max_tokens"`
	APIKey    string        `mapstructure:"api_key"`
	Host      string        `mapstructure:"host"`
}

type Metrics struct {
	Enabled        bool          `mapstructure:"enabled"`
	Listen         string        `mapstructure:"listen"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

type History struct {
	Enabled bool     `mapstructure:"enabled"`
	DSNs    []string `mapstructure:"dsns"`
}

type Tracing struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// Config is the fully loaded and validated configuration.
type Config struct {
	Path    string
	Agents  []Worker
	Proxy   Launch
	Agent   Agent
	Log     logger.Config
	Metrics Metrics
	History History
	Tracing Tracing
}

// Enabled returns the workers with Enabled set, preserving file order.
func (c *Config) Enabled() []Worker {
	out := make([]Worker, 0, len(c.Agents))
	for _, w := range c.Agents {
		if w.Enabled {
			out = append(out, w)
		}
	}
	return out
}

// fileConfig is the on-disk shape. Agents are decoded separately so that
// "enabled" can default to true per entry.
type fileConfig struct {
	Agents  []agentEntry  `mapstructure:"agents"`
	Proxy   Launch        `mapstructure:"proxy"`
	Agent   Agent         `mapstructure:"agent"`
	Log     logger.Config `mapstructure:"log"`
	Metrics Metrics       `mapstructure:"metrics"`
	History History       `mapstructure:"history"`
	Tracing Tracing       `mapstructure:"tracing"`
}

type agentEntry struct {
	Name         string `mapstructure:"name"`
	Port         int    `mapstructure:"port"`
	SystemPrompt string `mapstructure:"system_prompt"`
	Enabled      *bool  `mapstructure:"enabled"`
	Launcher     string `mapstructure:"launcher"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("proxy.command", DefaultLauncher)
	v.SetDefault("proxy.args", []string{DefaultAutoFlag})
	v.SetDefault("proxy.model_env", DefaultModelEnv)
	v.SetDefault("proxy.port_env", DefaultPortEnv)
	v.SetDefault("proxy.assignment_args", true)
	v.SetDefault("proxy.work_dir", "")
	v.SetDefault("proxy.health_interval", DefaultHealthInterval)
	v.SetDefault("proxy.health_max_retries", DefaultHealthMaxRetries)
	v.SetDefault("proxy.stop_grace", DefaultStopGrace)
	v.SetDefault("proxy.log.dir", "")

	v.SetDefault("agent.timeout", DefaultAgentTimeout)
	v.SetDefault("agent.model", DefaultModel)
	v.SetDefault("agent.max_tokens", DefaultMaxTokens)
	v.SetDefault("agent.api_key", "")
	v.SetDefault("agent.host", "localhost")

	v.SetDefault("log.slog.level", logger.LevelInfo)
	v.SetDefault("log.slog.format", logger.FormatText)
	v.SetDefault("log.slog.color", false)
	v.SetDefault("log.slog.timestamps", true)
	v.SetDefault("log.file.app", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("metrics.sample_interval", 5*time.Second)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.dsns", []string{})

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "mca")
	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.otlp_insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Load reads the config at path (JSON, YAML or TOML chosen by extension),
// applies defaults and MCA_* environment overrides, and validates it.
func Load(path string) (*Config, error) {
	clean := filepath.Clean(path)
	if _, err := os.Stat(clean); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, clean)
		}
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(clean)
	v.SetConfigType(configType(clean))
	v.SetEnvPrefix("MCA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", clean, err)
	}
	if !v.IsSet("agents") {
		return nil, ErrNoAgents
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", clean, err)
	}

	cfg := &Config{
		Path:    clean,
		Agents:  make([]Worker, 0, len(fc.Agents)),
		Proxy:   fc.Proxy,
		Agent:   fc.Agent,
		Log:     fc.Log,
		Metrics: fc.Metrics,
		History: fc.History,
		Tracing: fc.Tracing,
	}
	for _, a := range fc.Agents {
		enabled := true
		if a.Enabled != nil {
			enabled = *a.Enabled
		}
		cfg.Agents = append(cfg.Agents, Worker{
			Name:         strings.TrimSpace(a.Name),
			Port:         a.Port,
			SystemPrompt: a.SystemPrompt,
			Enabled:      enabled,
			Launcher:     strings.TrimSpace(a.Launcher),
		})
	}

	// env files are resolved relative to the config file
	for i, p := range cfg.Proxy.EnvFiles {
		if !filepath.IsAbs(p) {
			cfg.Proxy.EnvFiles[i] = filepath.Join(filepath.Dir(clean), p)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks worker entries and launch settings.
func (c *Config) Validate() error {
	names := make(map[string]int, len(c.Agents))
	ports := make(map[int]string, len(c.Agents))
	for i, w := range c.Agents {
		if w.Name == "" {
			return fmt.Errorf("agent #%d: missing 'name'", i)
		}
		if w.Port == 0 {
			return fmt.Errorf("agent #%d (%s): missing 'port'", i, w.Name)
		}
		if w.Port < 1 || w.Port > 65535 {
			return fmt.Errorf("agent #%d (%s): port %d out of range", i, w.Name, w.Port)
		}
		if j, dup := names[w.Name]; dup {
			return fmt.Errorf("agent #%d: duplicate name %q (also agent #%d)", i, w.Name, j)
		}
		names[w.Name] = i
		if !w.Enabled {
			continue
		}
		if other, dup := ports[w.Port]; dup {
			return fmt.Errorf("agent #%d (%s): port %d already used by %s", i, w.Name, w.Port, other)
		}
		ports[w.Port] = w.Name
	}
	if strings.TrimSpace(c.Proxy.Command) == "" {
		return errors.New("proxy.command must not be empty")
	}
	if c.Proxy.HealthInterval <= 0 {
		return fmt.Errorf("proxy.health_interval must be positive, got %s", c.Proxy.HealthInterval)
	}
	if c.Proxy.HealthMaxRetries <= 0 {
		return fmt.Errorf("proxy.health_max_retries must be positive, got %d", c.Proxy.HealthMaxRetries)
	}
	if c.Proxy.StopGrace < 0 {
		return fmt.Errorf("proxy.stop_grace cannot be negative")
	}
	if c.Agent.Timeout <= 0 {
		return fmt.Errorf("agent.timeout must be positive, got %s", c.Agent.Timeout)
	}
	return nil
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return "json"
	}
}
