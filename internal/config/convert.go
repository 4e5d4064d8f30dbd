package config

import (
	"github.com/danmuck/wearctl/internal/admin"
	"github.com/danmuck/wearctl/internal/link/bridge"
	"github.com/danmuck/wearctl/internal/wearable"
)

// Session maps the file settings to a wearable.Config. cfg must have passed
// Validate.
func (cfg Config) Session() wearable.Config {
	timeout, _ := parseDuration(cfg.HandshakeTimeout)
	rate, _ := parseDuration(cfg.SignalUpdateRateOverride)
	return wearable.Config{
		Verbose:                cfg.StartInVerboseMode,
		RequestSignalUpdates:   cfg.RequestSignalUpdates,
		SignalUpdateRate:       rate,
		MinimumSignal:          cfg.MinimumSignal,
		DisconnectBelowMinimum: cfg.DisconnectBelowMinimum,
		HandshakeTimeout:       timeout,
	}.WithDefaults()
}

func (cfg Config) BridgeConfig() bridge.Config {
	out := bridge.DefaultConfig()
	out.Address = cfg.Bridge.Address
	out.Peripheral = cfg.Bridge.Peripheral
	out.MaxConnectAttempts = cfg.Bridge.MaxConnectAttempts
	return out
}

func (cfg Config) AdminConfig() admin.Config {
	return admin.Config{
		ListenAddr:  cfg.Admin.ListenAddr,
		Token:       cfg.Admin.Token,
		CorsOrigins: append([]string(nil), cfg.Admin.CorsOrigins...),
	}
}
