package wearable

import (
	"time"

	"github.com/danmuck/wearctl/internal/link"
)

const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultMinimumSignal    = -1000
	DefaultHapticPulses     = 1
)

// Config is the read-only per-session configuration.
type Config struct {
	Verbose              bool
	RequestSignalUpdates bool
	// SignalUpdateRate overrides the Link's RSSI interval; zero keeps the Link default.
	SignalUpdateRate time.Duration
	MinimumSignal    int
	// DisconnectBelowMinimum restores the older policy of tearing the link
	// down when a signal update falls below MinimumSignal. Off by default:
	// observers decide through the signal notification instead.
	DisconnectBelowMinimum bool
	HandshakeTimeout       time.Duration
}

func DefaultConfig() Config {
	return Config{
		Verbose:              false,
		RequestSignalUpdates: true,
		MinimumSignal:        DefaultMinimumSignal,
		HandshakeTimeout:     DefaultHandshakeTimeout,
	}
}

// WithDefaults fills unset durations.
func (c Config) WithDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.SignalUpdateRate < 0 {
		c.SignalUpdateRate = 0
	}
	return c
}

// LinkOptions derives the options a Link is constructed with.
func (c Config) LinkOptions() link.Options {
	return link.Options{
		Verbose:              c.Verbose,
		RequestSignalUpdates: c.RequestSignalUpdates,
		SignalUpdateRate:     c.SignalUpdateRate,
	}
}
