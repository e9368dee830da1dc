package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/satellite-agent/internal/ndk"
	"github.com/signalsfoundry/satellite-agent/internal/satellite"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "satellite.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Agent.Name != DefaultAgentName || cfg.Agent.JsPath != DefaultJsPath {
		t.Fatalf("agent defaults = %+v", cfg.Agent)
	}
	if cfg.Agent.Interval != DefaultInterval {
		t.Fatalf("interval = %v, want %v", cfg.Agent.Interval, DefaultInterval)
	}
	if cfg.NDK.Address != ndk.DefaultAddress {
		t.Fatalf("ndk address = %q", cfg.NDK.Address)
	}
	if cfg.Source.Kind != SourceAPI || cfg.Source.URL != satellite.DefaultAPIURL || cfg.Source.TLEURL != satellite.DefaultTLEURL {
		t.Fatalf("source defaults = %+v", cfg.Source)
	}
	if cfg.Source.TLERefresh != DefaultTLERefresh || cfg.Admin.Address != DefaultAdminAddress {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Admin.Address != "127.0.0.1:9090" {
		t.Fatalf("admin address = %q, want loopback", cfg.Admin.Address)
	}
	if cfg.Trace.Enabled || cfg.Trace.Exporter != "stdout" || *cfg.Trace.SampleRatio != 1 {
		t.Fatalf("tracing defaults = %+v", cfg.Trace)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "satellite.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.Interval != 10*time.Second || cfg.Source.Kind != SourceAPI {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Log.File != "/var/log/srlinux/stdout/satellite.log" {
		t.Fatalf("log file = %q", cfg.Log.File)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
agent:
  interval: 30s
source:
  kind: TLE
  tle_refresh: 2h
admin:
  disabled: true
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.Interval != 30*time.Second {
		t.Fatalf("interval = %v, want 30s", cfg.Agent.Interval)
	}
	if cfg.Source.Kind != SourceTLE || cfg.Source.TLERefresh != 2*time.Hour {
		t.Fatalf("source = %+v", cfg.Source)
	}
	if !cfg.Admin.Disabled {
		t.Fatalf("admin should be disabled")
	}
	lc := cfg.Logging()
	if lc.Level != "debug" || lc.Format != "json" {
		t.Fatalf("logging = %+v", lc)
	}
}

func TestLoadBareSecondDurations(t *testing.T) {
	path := writeConfig(t, `
agent:
  interval: 20
  call_timeout: 2.5
  unregister_timeout: 3s
source:
  timeout: 7
  tle_refresh: 3600
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	checks := []struct {
		name      string
		got, want time.Duration
	}{
		{"agent.interval", cfg.Agent.Interval, 20 * time.Second},
		{"agent.call_timeout", cfg.Agent.CallTimeout, 2500 * time.Millisecond},
		{"agent.unregister_timeout", cfg.Agent.UnregisterTimeout, 3 * time.Second},
		{"source.timeout", cfg.Source.Timeout, 7 * time.Second},
		{"source.tle_refresh", cfg.Source.TLERefresh, time.Hour},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	if _, err := Load(writeConfig(t, "agent:\n  interval: often\n")); err == nil {
		t.Fatalf("expected error for unparsable interval")
	}
	if _, err := Load(writeConfig(t, "source:\n  timeout: [1, 2]\n")); err == nil {
		t.Fatalf("expected error for non-scalar timeout")
	}
}

func TestLoadTracingSection(t *testing.T) {
	path := writeConfig(t, `
agent:
  name: iss
ndk:
  address: 10.0.0.1:50053
tracing:
  enabled: true
  exporter: OTLP
  endpoint: collector:4317
  sample_ratio: 0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tc := cfg.Tracing()
	if !tc.Enabled || tc.Exporter != "otlp" || tc.Endpoint != "collector:4317" {
		t.Fatalf("tracing = %+v", tc)
	}
	if tc.SampleRatio != 0 {
		t.Fatalf("explicit zero sample ratio was replaced: %v", tc.SampleRatio)
	}
	if tc.ServiceName != "satellite-agent" || tc.AgentName != "iss" || tc.NDKAddress != "10.0.0.1:50053" {
		t.Fatalf("tracing identity = %+v", tc)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "agent: [not, a, map]")); err == nil {
		t.Fatalf("expected parse error")
	}
	_, err := Load(writeConfig(t, "source:\n  kind: carrier-pigeon\n"))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("Load error = %v, want ErrInvalid", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Config{Agent: AgentConfig{Interval: 30 * time.Second}}
	err := cfg.ApplyEnv(envMap(map[string]string{
		"SATELLITE_INTERVAL":    "15",
		"SATELLITE_NDK_ADDR":    "10.0.0.1:50053",
		"SATELLITE_SOURCE":      "tle",
		"SATELLITE_TLE_REFRESH": "90m",
		"SATELLITE_ADMIN_ADDR":  ":9191",
		"LOG_LEVEL":             "warn",
		"SATELLITE_JS_PATH":     "",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	cfg.ApplyDefaults()

	if cfg.Agent.Interval != 15*time.Second {
		t.Fatalf("interval = %v, want 15s", cfg.Agent.Interval)
	}
	if cfg.NDK.Address != "10.0.0.1:50053" || cfg.Source.Kind != SourceTLE || cfg.Admin.Address != ":9191" {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	if cfg.Source.TLERefresh != 90*time.Minute || cfg.Log.Level != "warn" {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	if cfg.Agent.JsPath != DefaultJsPath {
		t.Fatalf("empty env value should not override, js_path = %q", cfg.Agent.JsPath)
	}
}

func TestApplyEnvTracing(t *testing.T) {
	var cfg Config
	err := cfg.ApplyEnv(envMap(map[string]string{
		"SATELLITE_TRACING_ENABLED":      "TRUE",
		"SATELLITE_TRACING_EXPORTER":     "otlp",
		"SATELLITE_TRACING_SERVICE_NAME": "iss-agent",
		"SATELLITE_TRACING_SAMPLE_RATIO": "0.25",
		"SATELLITE_OTLP_ENDPOINT":        "collector:4317",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	tc := cfg.Tracing()
	if !tc.Enabled || tc.Exporter != "otlp" || tc.ServiceName != "iss-agent" {
		t.Fatalf("tracing = %+v", tc)
	}
	if tc.SampleRatio != 0.25 || tc.Endpoint != "collector:4317" {
		t.Fatalf("tracing = %+v", tc)
	}

	for key, bad := range map[string]string{
		"SATELLITE_TRACING_ENABLED":      "sometimes",
		"SATELLITE_TRACING_SAMPLE_RATIO": "half",
	} {
		var c Config
		if err := c.ApplyEnv(envMap(map[string]string{key: bad})); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s=%q: error = %v, want ErrInvalid", key, bad, err)
		}
	}
}

func TestApplyEnvRejectsBadDuration(t *testing.T) {
	var cfg Config
	err := cfg.ApplyEnv(envMap(map[string]string{"SATELLITE_INTERVAL": "often"}))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("ApplyEnv error = %v, want ErrInvalid", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		var c Config
		c.ApplyDefaults()
		return c
	}
	cases := map[string]func(*Config){
		"negative interval":  func(c *Config) { c.Agent.Interval = -time.Second },
		"js path":            func(c *Config) { c.Agent.JsPath = "satellite" },
		"source kind":        func(c *Config) { c.Source.Kind = "gps" },
		"tle refresh":        func(c *Config) { c.Source.TLERefresh = -time.Minute },
		"source timeout":     func(c *Config) { c.Source.Timeout = -1 },
		"call timeout":       func(c *Config) { c.Agent.CallTimeout = -1 },
		"unregister timeout": func(c *Config) { c.Agent.UnregisterTimeout = -1 },
		"trace exporter":     func(c *Config) { c.Trace.Exporter = "zipkin" },
		"trace ratio":        func(c *Config) { r := 1.5; c.Trace.SampleRatio = &r },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(&c)
			if err := c.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}

	ok := base()
	if err := ok.ApplyEnv(noEnv); err != nil {
		t.Fatalf("ApplyEnv(noEnv): %v", err)
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate() on defaults = %v", err)
	}
}
