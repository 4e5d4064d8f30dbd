// Package link defines the radio link capability a wearable session runs on.
//
// A Link owns the physical connection to exactly one peripheral. It is never
// shared between sessions. Scanning, link-layer connection, RSSI sampling and
// reconnect policy all live behind this interface.
package link

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrClosed       = errors.New("link: closed")
	ErrNotConnected = errors.New("link: not connected")
)

// UARTServiceUUID is the Nordic UART service advertised by compatible wearables.
const UARTServiceUUID = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"

// CompatibleNamePrefix matches wearables that advertise a local name only.
const CompatibleNamePrefix = "Feather"

// EventKind classifies a Link event.
type EventKind int

const (
	EventReady EventKind = iota + 1
	EventDisconnected
	EventMessage
	EventSignal
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventDisconnected:
		return "disconnected"
	case EventMessage:
		return "message"
	case EventSignal:
		return "signal"
	default:
		return "unknown"
	}
}

// Event is one low-level notification from the Link.
//
// Err is set on a failed EventReady or EventSignal. Text carries the raw
// envelope of an EventMessage. Strength carries the RSSI of an EventSignal.
type Event struct {
	Kind     EventKind
	Err      error
	Text     string
	Strength int
}

// Options are handed to a Link at construction.
type Options struct {
	Verbose              bool
	RequestSignalUpdates bool
	// SignalUpdateRate overrides the Link's RSSI sampling interval. Zero keeps
	// the Link default.
	SignalUpdateRate time.Duration
}

// Link is the radio connection consumed by a session.
//
// Setup starts link establishment and returns without waiting for it; the
// outcome arrives as EventReady. Events returns the single event stream for
// the Link. The channel is closed after EventDisconnected has been delivered.
type Link interface {
	Setup(ctx context.Context) error
	Send(text string) error
	Disconnect() error
	Events() <-chan Event
}

// Peripheral is an advertisement seen during a scan.
type Peripheral struct {
	Address   string
	LocalName string
	Services  []string
	RSSI      int
}

// IsCompatiblePeripheral reports whether p looks like a wearable a session
// can be constructed against.
func IsCompatiblePeripheral(p Peripheral) bool {
	for _, svc := range p.Services {
		if strings.EqualFold(strings.TrimSpace(svc), UARTServiceUUID) {
			return true
		}
	}
	return strings.HasPrefix(strings.TrimSpace(p.LocalName), CompatibleNamePrefix)
}
