package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestLoadJSONDefaults(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "agents_config.json", `{
  "agents": [
    {"name": "a", "port": 4900, "system_prompt": "be brief"},
    {"name": "b", "port": 4901, "enabled": false}
  ]
}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(cfg.Agents))
	}
	if !cfg.Agents[0].Enabled || cfg.Agents[1].Enabled {
		t.Fatalf("unexpected enabled flags: %+v", cfg.Agents)
	}
	if cfg.Agents[0].SystemPrompt != "be brief" {
		t.Fatalf("system prompt not decoded: %q", cfg.Agents[0].SystemPrompt)
	}
	en := cfg.Enabled()
	if len(en) != 1 || en[0].Name != "a" {
		t.Fatalf("Enabled() = %+v", en)
	}

	if cfg.Proxy.Command != DefaultLauncher {
		t.Fatalf("default command = %q", cfg.Proxy.Command)
	}
	if got := strings.Join(cfg.Proxy.Args, " "); got != DefaultAutoFlag {
		t.Fatalf("default args = %q", got)
	}
	if got := strings.Join(cfg.Proxy.ModelEnv, ","); got != "BIG_MODEL,MIDDLE_MODEL,SMALL_MODEL" {
		t.Fatalf("default model env = %q", got)
	}
	if cfg.Proxy.HealthInterval != 500*time.Millisecond || cfg.Proxy.HealthMaxRetries != 60 {
		t.Fatalf("probe defaults = %s x %d", cfg.Proxy.HealthInterval, cfg.Proxy.HealthMaxRetries)
	}
	if cfg.Proxy.StartupTimeout() != 30*time.Second {
		t.Fatalf("startup timeout = %s", cfg.Proxy.StartupTimeout())
	}
	if cfg.Proxy.StopGrace != 5*time.Second {
		t.Fatalf("stop grace = %s", cfg.Proxy.StopGrace)
	}
	if cfg.Agent.Timeout != 500*time.Second || cfg.Agent.Model != DefaultModel {
		t.Fatalf("agent defaults = %+v", cfg.Agent)
	}
}

func TestLoadYAMLAndTOML(t *testing.T) {
	dir := t.TempDir()
	y := writeFile(t, dir, "agents.yaml", `
agents:
  - name: a
    port: 5000
proxy:
  command: /usr/local/bin/proxy
  health_interval: 100ms
  health_max_retries: 10
agent:
  timeout: 30s
`)
	cfg, err := Load(y)
	if err != nil {
		t.Fatalf("yaml load: %v", err)
	}
	if cfg.Proxy.Command != "/usr/local/bin/proxy" || cfg.Proxy.StartupTimeout() != time.Second {
		t.Fatalf("yaml proxy = %+v", cfg.Proxy)
	}
	if cfg.Agent.Timeout != 30*time.Second {
		t.Fatalf("yaml agent timeout = %s", cfg.Agent.Timeout)
	}

	tm := writeFile(t, dir, "agents.toml", `
[[agents]]
name = "a"
port = 5001

[[agents]]
name = "b"
port = 5002
`)
	cfg, err = Load(tm)
	if err != nil {
		t.Fatalf("toml load: %v", err)
	}
	if len(cfg.Agents) != 2 || cfg.Agents[1].Port != 5002 {
		t.Fatalf("toml agents = %+v", cfg.Agents)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "c.json", `{"agents":[{"name":"a","port":4900}]}`)
	t.Setenv("MCA_AGENT_TIMEOUT", "45s")
	t.Setenv("MCA_PROXY_COMMAND", "my-proxy")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Agent.Timeout != 45*time.Second {
		t.Fatalf("timeout override = %s", cfg.Agent.Timeout)
	}
	if cfg.Proxy.Command != "my-proxy" {
		t.Fatalf("command override = %q", cfg.Proxy.Command)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing agents", `{"proxy":{"command":"x"}}`, "missing 'agents'"},
		{"missing name", `{"agents":[{"port":1}]}`, "missing 'name'"},
		{"missing port", `{"agents":[{"name":"a"}]}`, "missing 'port'"},
		{"port range", `{"agents":[{"name":"a","port":70000}]}`, "out of range"},
		{"dup name", `{"agents":[{"name":"a","port":1},{"name":"a","port":2}]}`, "duplicate name"},
		{"dup port", `{"agents":[{"name":"a","port":1},{"name":"b","port":1}]}`, "already used"},
		{"bad interval", `{"agents":[{"name":"a","port":1}],"proxy":{"health_interval":"0s"}}`, "health_interval"},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := writeFile(t, dir, "c"+string(rune('a'+i))+".json", tc.body)
			_, err := Load(p)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}

	if _, err := Load(filepath.Join(dir, "nope.json")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDisabledPortMayRepeat(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "c.json", `{"agents":[{"name":"a","port":1},{"name":"b","port":1,"enabled":false}]}`)
	if _, err := Load(p); err != nil {
		t.Fatalf("disabled duplicate port should load: %v", err)
	}
}

func TestEnvFilesRelativeToConfig(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "c.json", `{"agents":[{"name":"a","port":1}],"proxy":{"env_files":["proxy.env"]}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.Proxy.EnvFiles[0]; got != filepath.Join(dir, "proxy.env") {
		t.Fatalf("env file = %q", got)
	}
}
