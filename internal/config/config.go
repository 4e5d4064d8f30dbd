// Package config loads wearctl settings from TOML or YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/danmuck/wearctl/internal/wearable"
)

var ErrUnsupportedFormat = errors.New("config: unsupported format")

// Format names an on-disk encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "toml":
		return FormatTOML, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Config is the file-level configuration. Durations are kept as strings so
// both encodings read them the same way. handshake_timeout and
// signal_update_rate_override take Go duration syntax ("5s", "1000ms"), not
// bare seconds or milliseconds.
type Config struct {
	StartInVerboseMode       bool         `toml:"start_in_verbose_mode" yaml:"start_in_verbose_mode"`
	RequestSignalUpdates     bool         `toml:"request_signal_updates" yaml:"request_signal_updates"`
	MinimumSignal            int          `toml:"minimum_signal_to_stay_connected" yaml:"minimum_signal_to_stay_connected"`
	DisconnectBelowMinimum   bool         `toml:"disconnect_below_minimum" yaml:"disconnect_below_minimum"`
	SignalUpdateRateOverride string       `toml:"signal_update_rate_override" yaml:"signal_update_rate_override"`
	HandshakeTimeout         string       `toml:"handshake_timeout" yaml:"handshake_timeout"`
	Bridge                   BridgeConfig `toml:"bridge" yaml:"bridge"`
	Admin                    AdminConfig  `toml:"admin" yaml:"admin"`
}

type BridgeConfig struct {
	Address            string `toml:"address" yaml:"address"`
	Peripheral         string `toml:"peripheral" yaml:"peripheral"`
	MaxConnectAttempts int    `toml:"max_connect_attempts" yaml:"max_connect_attempts"`
}

type AdminConfig struct {
	ListenAddr  string   `toml:"listen_addr" yaml:"listen_addr"`
	Token       string   `toml:"token" yaml:"token"`
	CorsOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
}

func Default() Config {
	return Config{
		RequestSignalUpdates: true,
		MinimumSignal:        wearable.DefaultMinimumSignal,
		HandshakeTimeout:     wearable.DefaultHandshakeTimeout.String(),
		Bridge: BridgeConfig{
			Address: "127.0.0.1:7878",
		},
		Admin: AdminConfig{
			ListenAddr:  "127.0.0.1:7080",
			CorsOrigins: []string{"http://localhost:3000"},
		},
	}
}

// Load reads path, picking the decoder from its extension, overlays the
// result on Default and validates it.
func Load(path string) (Config, error) {
	format, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var cfg Config
	switch format {
	case FormatTOML:
		cfg, err = loadTOML(path)
	case FormatYAML:
		cfg, err = loadYAML(path)
	}
	if err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func loadTOML(path string) (Config, error) {
	cfg := Default()

	var raw Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config parse failed (%s): unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("start_in_verbose_mode") {
		cfg.StartInVerboseMode = raw.StartInVerboseMode
	}
	if meta.IsDefined("request_signal_updates") {
		cfg.RequestSignalUpdates = raw.RequestSignalUpdates
	}
	if meta.IsDefined("minimum_signal_to_stay_connected") {
		cfg.MinimumSignal = raw.MinimumSignal
	}
	if meta.IsDefined("disconnect_below_minimum") {
		cfg.DisconnectBelowMinimum = raw.DisconnectBelowMinimum
	}
	if meta.IsDefined("signal_update_rate_override") {
		cfg.SignalUpdateRateOverride = strings.TrimSpace(raw.SignalUpdateRateOverride)
	}
	if meta.IsDefined("handshake_timeout") {
		cfg.HandshakeTimeout = strings.TrimSpace(raw.HandshakeTimeout)
	}
	if meta.IsDefined("bridge", "address") {
		cfg.Bridge.Address = strings.TrimSpace(raw.Bridge.Address)
	}
	if meta.IsDefined("bridge", "peripheral") {
		cfg.Bridge.Peripheral = strings.TrimSpace(raw.Bridge.Peripheral)
	}
	if meta.IsDefined("bridge", "max_connect_attempts") {
		cfg.Bridge.MaxConnectAttempts = raw.Bridge.MaxConnectAttempts
	}
	if meta.IsDefined("admin", "listen_addr") {
		cfg.Admin.ListenAddr = strings.TrimSpace(raw.Admin.ListenAddr)
	}
	if meta.IsDefined("admin", "token") {
		cfg.Admin.Token = strings.TrimSpace(raw.Admin.Token)
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.Admin.CorsOrigins = raw.Admin.CorsOrigins
	}
	return cfg, nil
}

// loadYAML decodes on top of Default so absent keys keep their defaults.
func loadYAML(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	cfg.SignalUpdateRateOverride = strings.TrimSpace(cfg.SignalUpdateRateOverride)
	cfg.HandshakeTimeout = strings.TrimSpace(cfg.HandshakeTimeout)
	cfg.Bridge.Address = strings.TrimSpace(cfg.Bridge.Address)
	cfg.Bridge.Peripheral = strings.TrimSpace(cfg.Bridge.Peripheral)
	cfg.Admin.ListenAddr = strings.TrimSpace(cfg.Admin.ListenAddr)
	cfg.Admin.Token = strings.TrimSpace(cfg.Admin.Token)
	return cfg, nil
}

func Validate(cfg Config) error {
	timeout, err := parseDuration(cfg.HandshakeTimeout)
	if err != nil {
		return fmt.Errorf("handshake_timeout: %w", err)
	}
	if timeout <= 0 {
		return fmt.Errorf("handshake_timeout must be positive")
	}
	rate, err := parseDuration(cfg.SignalUpdateRateOverride)
	if err != nil {
		return fmt.Errorf("signal_update_rate_override: %w", err)
	}
	if rate < 0 {
		return fmt.Errorf("signal_update_rate_override must not be negative")
	}
	if cfg.Bridge.Address == "" {
		return fmt.Errorf("bridge.address is required")
	}
	if cfg.Bridge.MaxConnectAttempts < 0 {
		return fmt.Errorf("bridge.max_connect_attempts must not be negative")
	}
	return nil
}

// parseDuration treats an empty string as zero.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
