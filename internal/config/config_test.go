package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/wearctl/internal/testutil/testlog"
	"github.com/danmuck/wearctl/internal/wearable"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadTOMLDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "config.toml", `
start_in_verbose_mode = true
request_signal_updates = false
minimum_signal_to_stay_connected = -85
disconnect_below_minimum = true
signal_update_rate_override = "750ms"

[bridge]
address = "10.0.0.5:7878"
peripheral = "feather-7c"

[admin]
token = "s3cret"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.StartInVerboseMode || cfg.RequestSignalUpdates || !cfg.DisconnectBelowMinimum {
		t.Fatalf("unexpected flags: %+v", cfg)
	}
	if cfg.MinimumSignal != -85 {
		t.Fatalf("unexpected minimum signal: %d", cfg.MinimumSignal)
	}
	if cfg.Bridge.Address != "10.0.0.5:7878" || cfg.Bridge.Peripheral != "feather-7c" {
		t.Fatalf("unexpected bridge config: %+v", cfg.Bridge)
	}
	// untouched keys keep defaults
	if cfg.HandshakeTimeout != "5s" || cfg.Admin.ListenAddr != "127.0.0.1:7080" {
		t.Fatalf("defaults not preserved: %+v", cfg)
	}
	if cfg.Admin.Token != "s3cret" || len(cfg.Admin.CorsOrigins) != 1 {
		t.Fatalf("unexpected admin config: %+v", cfg.Admin)
	}

	sess := cfg.Session()
	want := wearable.Config{
		Verbose:                true,
		RequestSignalUpdates:   false,
		SignalUpdateRate:       750 * time.Millisecond,
		MinimumSignal:          -85,
		DisconnectBelowMinimum: true,
		HandshakeTimeout:       5 * time.Second,
	}
	if sess != want {
		t.Fatalf("unexpected session config: got %+v want %+v", sess, want)
	}
	if b := cfg.BridgeConfig(); b.Address != "10.0.0.5:7878" || b.Peripheral != "feather-7c" || b.DialTimeout <= 0 {
		t.Fatalf("unexpected bridge conversion: %+v", b)
	}
	if a := cfg.AdminConfig(); a.Token != "s3cret" || a.ListenAddr != "127.0.0.1:7080" {
		t.Fatalf("unexpected admin conversion: %+v", a)
	}
}

func TestLoadTOMLRejectsUnknownKeys(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "config.toml", "start_in_verbose = true\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "config.yml", `
handshake_timeout: 2s
bridge:
  peripheral: " feather-01 "
  max_connect_attempts: 3
admin:
  cors_origins: ["*"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Bridge.Peripheral != "feather-01" || cfg.Bridge.MaxConnectAttempts != 3 {
		t.Fatalf("unexpected bridge config: %+v", cfg.Bridge)
	}
	if cfg.Bridge.Address != "127.0.0.1:7878" || !cfg.RequestSignalUpdates {
		t.Fatalf("defaults not preserved: %+v", cfg)
	}
	if got := cfg.Session().HandshakeTimeout; got != 2*time.Second {
		t.Fatalf("unexpected handshake timeout: %v", got)
	}
	if len(cfg.Admin.CorsOrigins) != 1 || cfg.Admin.CorsOrigins[0] != "*" {
		t.Fatalf("unexpected cors origins: %v", cfg.Admin.CorsOrigins)
	}

	bad := writeFile(t, "bad.yaml", "unknown_key: 1\n")
	if _, err := Load(bad); err == nil {
		t.Fatalf("expected error for unknown yaml key")
	}
}

func TestLoadRejectsUnsupportedExtension(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "config.json", "{}")
	if _, err := Load(path); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero handshake timeout", mutate: func(c *Config) { c.HandshakeTimeout = "0s" }},
		{name: "garbage handshake timeout", mutate: func(c *Config) { c.HandshakeTimeout = "soon" }},
		{name: "unitless handshake timeout", mutate: func(c *Config) { c.HandshakeTimeout = "5" }},
		{name: "unitless update rate", mutate: func(c *Config) { c.SignalUpdateRateOverride = "1000" }},
		{name: "negative update rate", mutate: func(c *Config) { c.SignalUpdateRateOverride = "-1s" }},
		{name: "missing bridge address", mutate: func(c *Config) { c.Bridge.Address = "" }},
		{name: "negative attempts", mutate: func(c *Config) { c.Bridge.MaxConnectAttempts = -1 }},
	}
	if err := Validate(Default()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	withUnits := Default()
	withUnits.HandshakeTimeout = "2500ms"
	withUnits.SignalUpdateRateOverride = "1000ms"
	if err := Validate(withUnits); err != nil {
		t.Fatalf("duration strings rejected: %v", err)
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestTemplatesLoadBack(t *testing.T) {
	testlog.Start(t)
	for _, format := range []Format{FormatTOML, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config."+string(format))
			if err := WriteTemplate(path, format, false); err != nil {
				t.Fatalf("write template: %v", err)
			}
			if err := WriteTemplate(path, format, false); err == nil {
				t.Fatalf("expected refusal to overwrite")
			}
			if err := WriteTemplate(path, format, true); err != nil {
				t.Fatalf("overwrite template: %v", err)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("load template: %v", err)
			}
			if cfg.Session() != wearable.DefaultConfig() {
				t.Fatalf("template does not round trip to defaults: %+v", cfg.Session())
			}
		})
	}
	if _, err := Template("ini"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
