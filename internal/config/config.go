// Package config loads the agent configuration from a YAML file and
// SATELLITE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/satellite-agent/internal/logging"
	"github.com/signalsfoundry/satellite-agent/internal/ndk"
	"github.com/signalsfoundry/satellite-agent/internal/observability"
	"github.com/signalsfoundry/satellite-agent/internal/satellite"
)

// Source kinds.
const (
	SourceAPI = "api"
	SourceTLE = "tle"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultAgentName         = "satellite"
	DefaultJsPath            = ".satellite"
	DefaultInterval          = 10 * time.Second
	DefaultCallTimeout       = 10 * time.Second
	DefaultUnregisterTimeout = 5 * time.Second
	DefaultSourceTimeout     = 10 * time.Second
	DefaultTLERefresh        = 6 * time.Hour
	DefaultAdminAddress      = "127.0.0.1:9090"
	DefaultTraceExporter     = observability.ExporterStdout
	DefaultTraceSampleRatio  = 1.0
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Duration is a YAML duration written either in Go syntax ("15s") or as bare
// seconds (15).
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if node.Tag == "!!null" {
		return nil
	}
	v, err := parseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, node.Value, err)
	}
	*d = Duration(v)
	return nil
}

type AgentConfig struct {
	Name              string        `yaml:"name"`
	JsPath            string        `yaml:"js_path"`
	Interval          time.Duration `yaml:"interval"`
	CallTimeout       time.Duration `yaml:"call_timeout"`
	UnregisterTimeout time.Duration `yaml:"unregister_timeout"`
}

// UnmarshalYAML decodes the agent section with Duration semantics for its
// timing keys.
func (a *AgentConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name              string   `yaml:"name"`
		JsPath            string   `yaml:"js_path"`
		Interval          Duration `yaml:"interval"`
		CallTimeout       Duration `yaml:"call_timeout"`
		UnregisterTimeout Duration `yaml:"unregister_timeout"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*a = AgentConfig{
		Name:              raw.Name,
		JsPath:            raw.JsPath,
		Interval:          time.Duration(raw.Interval),
		CallTimeout:       time.Duration(raw.CallTimeout),
		UnregisterTimeout: time.Duration(raw.UnregisterTimeout),
	}
	return nil
}

type NDKConfig struct {
	Address string `yaml:"address"`
}

type SourceConfig struct {
	Kind       string        `yaml:"kind"` // "api" or "tle"
	URL        string        `yaml:"url"`
	TLEURL     string        `yaml:"tle_url"`
	Timeout    time.Duration `yaml:"timeout"`
	TLERefresh time.Duration `yaml:"tle_refresh"`
}

// UnmarshalYAML decodes the source section with Duration semantics for
// timeout and tle_refresh.
func (s *SourceConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Kind       string   `yaml:"kind"`
		URL        string   `yaml:"url"`
		TLEURL     string   `yaml:"tle_url"`
		Timeout    Duration `yaml:"timeout"`
		TLERefresh Duration `yaml:"tle_refresh"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*s = SourceConfig{
		Kind:       raw.Kind,
		URL:        raw.URL,
		TLEURL:     raw.TLEURL,
		Timeout:    time.Duration(raw.Timeout),
		TLERefresh: time.Duration(raw.TLERefresh),
	}
	return nil
}

type AdminConfig struct {
	Address  string `yaml:"address"`
	Disabled bool   `yaml:"disabled"`
}

type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
	File      string `yaml:"file"`
}

// TraceConfig is the tracing section. A nil SampleRatio means "sample
// everything".
type TraceConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Exporter    string   `yaml:"exporter"` // "stdout" or "otlp"
	Endpoint    string   `yaml:"endpoint"`
	SampleRatio *float64 `yaml:"sample_ratio"`
	ServiceName string   `yaml:"service_name"`
}

// Config is the top-level structure of satellite.yaml.
type Config struct {
	Agent  AgentConfig  `yaml:"agent"`
	NDK    NDKConfig    `yaml:"ndk"`
	Source SourceConfig `yaml:"source"`
	Admin  AdminConfig  `yaml:"admin"`
	Log    LogConfig    `yaml:"log"`
	Trace  TraceConfig  `yaml:"tracing"`
}

// Load reads path (if non-empty), applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays SATELLITE_* and LOG_* variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}
	invalid := func(key, v string, err error) error {
		return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, key, v, err)
	}

	for key, dst := range map[string]*string{
		"SATELLITE_AGENT_NAME":           &c.Agent.Name,
		"SATELLITE_JS_PATH":              &c.Agent.JsPath,
		"SATELLITE_NDK_ADDR":             &c.NDK.Address,
		"SATELLITE_SOURCE":               &c.Source.Kind,
		"SATELLITE_SOURCE_URL":           &c.Source.URL,
		"SATELLITE_TLE_URL":              &c.Source.TLEURL,
		"SATELLITE_ADMIN_ADDR":           &c.Admin.Address,
		"SATELLITE_TRACING_EXPORTER":     &c.Trace.Exporter,
		"SATELLITE_TRACING_SERVICE_NAME": &c.Trace.ServiceName,
		"SATELLITE_OTLP_ENDPOINT":        &c.Trace.Endpoint,
		"LOG_LEVEL":                      &c.Log.Level,
		"LOG_FORMAT":                     &c.Log.Format,
		"LOG_FILE":                       &c.Log.File,
	} {
		if v, ok := get(key); ok {
			*dst = v
		}
	}

	for key, dst := range map[string]*time.Duration{
		"SATELLITE_INTERVAL":    &c.Agent.Interval,
		"SATELLITE_TLE_REFRESH": &c.Source.TLERefresh,
	} {
		if v, ok := get(key); ok {
			d, err := parseDuration(v)
			if err != nil {
				return invalid(key, v, err)
			}
			*dst = d
		}
	}

	if v, ok := get("SATELLITE_TRACING_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return invalid("SATELLITE_TRACING_ENABLED", v, err)
		}
		c.Trace.Enabled = enabled
	}
	if v, ok := get("SATELLITE_TRACING_SAMPLE_RATIO"); ok {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return invalid("SATELLITE_TRACING_SAMPLE_RATIO", v, err)
		}
		c.Trace.SampleRatio = &ratio
	}
	return nil
}

// parseDuration accepts Go duration strings ("15s") and bare seconds ("15").
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if seconds, err := strconv.ParseFloat(v, 64); err == nil {
		if math.IsNaN(seconds) || math.IsInf(seconds, 0) || math.Abs(seconds) > math.MaxInt64/float64(time.Second) {
			return 0, fmt.Errorf("%s seconds is out of range", v)
		}
		return time.Duration(seconds * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

// ApplyDefaults fills every zero field with its default.
func (c *Config) ApplyDefaults() {
	if c.Agent.Name == "" {
		c.Agent.Name = DefaultAgentName
	}
	if c.Agent.JsPath == "" {
		c.Agent.JsPath = DefaultJsPath
	}
	if c.Agent.Interval == 0 {
		c.Agent.Interval = DefaultInterval
	}
	if c.Agent.CallTimeout == 0 {
		c.Agent.CallTimeout = DefaultCallTimeout
	}
	if c.Agent.UnregisterTimeout == 0 {
		c.Agent.UnregisterTimeout = DefaultUnregisterTimeout
	}
	if c.NDK.Address == "" {
		c.NDK.Address = ndk.DefaultAddress
	}
	c.Source.Kind = strings.ToLower(strings.TrimSpace(c.Source.Kind))
	if c.Source.Kind == "" {
		c.Source.Kind = SourceAPI
	}
	if c.Source.URL == "" {
		c.Source.URL = satellite.DefaultAPIURL
	}
	if c.Source.TLEURL == "" {
		c.Source.TLEURL = satellite.DefaultTLEURL
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = DefaultSourceTimeout
	}
	if c.Source.TLERefresh == 0 {
		c.Source.TLERefresh = DefaultTLERefresh
	}
	if c.Admin.Address == "" {
		c.Admin.Address = DefaultAdminAddress
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Trace.Exporter = strings.ToLower(c.Trace.Exporter)
	if c.Trace.Exporter == "" {
		c.Trace.Exporter = DefaultTraceExporter
	}
	if c.Trace.ServiceName == "" {
		c.Trace.ServiceName = observability.DefaultServiceName
	}
	if c.Trace.SampleRatio == nil {
		ratio := DefaultTraceSampleRatio
		c.Trace.SampleRatio = &ratio
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Agent.Interval <= 0:
		return fmt.Errorf("%w: agent.interval must be positive, got %s", ErrInvalid, c.Agent.Interval)
	case c.Agent.CallTimeout <= 0:
		return fmt.Errorf("%w: agent.call_timeout must be positive, got %s", ErrInvalid, c.Agent.CallTimeout)
	case c.Agent.UnregisterTimeout <= 0:
		return fmt.Errorf("%w: agent.unregister_timeout must be positive, got %s", ErrInvalid, c.Agent.UnregisterTimeout)
	case !strings.HasPrefix(c.Agent.JsPath, "."):
		return fmt.Errorf("%w: agent.js_path %q must start with '.'", ErrInvalid, c.Agent.JsPath)
	case c.Source.Kind != SourceAPI && c.Source.Kind != SourceTLE:
		return fmt.Errorf("%w: source.kind %q must be %q or %q", ErrInvalid, c.Source.Kind, SourceAPI, SourceTLE)
	case c.Source.Timeout <= 0:
		return fmt.Errorf("%w: source.timeout must be positive, got %s", ErrInvalid, c.Source.Timeout)
	case c.Source.TLERefresh <= 0:
		return fmt.Errorf("%w: source.tle_refresh must be positive, got %s", ErrInvalid, c.Source.TLERefresh)
	case c.Trace.Exporter != observability.ExporterStdout && c.Trace.Exporter != observability.ExporterOTLP:
		return fmt.Errorf("%w: tracing.exporter %q must be %q or %q", ErrInvalid, c.Trace.Exporter, observability.ExporterStdout, observability.ExporterOTLP)
	case c.Trace.SampleRatio != nil && (*c.Trace.SampleRatio < 0 || *c.Trace.SampleRatio > 1):
		return fmt.Errorf("%w: tracing.sample_ratio must be within [0, 1], got %v", ErrInvalid, *c.Trace.SampleRatio)
	}
	return nil
}

// Logging converts the log section for logging.New.
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:     c.Log.Level,
		Format:    c.Log.Format,
		AddSource: c.Log.AddSource,
		File:      c.Log.File,
	}
}

// Tracing converts the tracing section for observability.StartTracing. The
// agent name and NDK address are attached to every exported span.
func (c *Config) Tracing() observability.TracingConfig {
	ratio := DefaultTraceSampleRatio
	if c.Trace.SampleRatio != nil {
		ratio = *c.Trace.SampleRatio
	}
	return observability.TracingConfig{
		Enabled:     c.Trace.Enabled,
		Exporter:    c.Trace.Exporter,
		Endpoint:    c.Trace.Endpoint,
		SampleRatio: ratio,
		ServiceName: c.Trace.ServiceName,
		AgentName:   c.Agent.Name,
		NDKAddress:  c.NDK.Address,
	}
}
