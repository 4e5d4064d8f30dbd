package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/wearctl/internal/link"
	"github.com/danmuck/wearctl/internal/protocol/tlv"
)

// Setup frame field IDs.
const (
	FieldSetupPeripheral    uint16 = 1
	FieldSetupVerbose       uint16 = 2
	FieldSetupSignalUpdates uint16 = 3
	FieldSetupSignalRateMS  uint16 = 4
)

// Signal frame field IDs.
const (
	FieldSignalStrength uint16 = 1
	FieldSignalError    uint16 = 2
)

// FieldErrorMessage carries the reason in setup_error and disconnected frames.
const FieldErrorMessage uint16 = 1

// SetupRequest is the payload of a setup frame.
type SetupRequest struct {
	Peripheral       string
	Verbose          bool
	SignalUpdates    bool
	SignalUpdateRate time.Duration
}

func newSetupRequest(peripheral string, opts link.Options) SetupRequest {
	return SetupRequest{
		Peripheral:       peripheral,
		Verbose:          opts.Verbose,
		SignalUpdates:    opts.RequestSignalUpdates,
		SignalUpdateRate: opts.SignalUpdateRate,
	}
}

func EncodeSetup(req SetupRequest) []byte {
	fields := []tlv.Field{
		tlv.String(FieldSetupPeripheral, req.Peripheral),
		tlv.Bool(FieldSetupVerbose, req.Verbose),
		tlv.Bool(FieldSetupSignalUpdates, req.SignalUpdates),
	}
	if req.SignalUpdateRate > 0 {
		fields = append(fields, tlv.U32(FieldSetupSignalRateMS, uint32(req.SignalUpdateRate/time.Millisecond)))
	}
	return tlv.EncodeFields(fields...)
}

func DecodeSetup(payload []byte) (SetupRequest, error) {
	fields, err := tlv.DecodeFields(payload)
	if err != nil {
		return SetupRequest{}, err
	}
	var req SetupRequest
	if f, ok := tlv.GetField(fields, FieldSetupPeripheral); ok {
		if req.Peripheral, err = f.AsString(); err != nil {
			return SetupRequest{}, err
		}
	}
	if f, ok := tlv.GetField(fields, FieldSetupVerbose); ok {
		if req.Verbose, err = f.AsBool(); err != nil {
			return SetupRequest{}, err
		}
	}
	if f, ok := tlv.GetField(fields, FieldSetupSignalUpdates); ok {
		if req.SignalUpdates, err = f.AsBool(); err != nil {
			return SetupRequest{}, err
		}
	}
	if f, ok := tlv.GetField(fields, FieldSetupSignalRateMS); ok {
		ms, err := f.AsU32()
		if err != nil {
			return SetupRequest{}, err
		}
		req.SignalUpdateRate = time.Duration(ms) * time.Millisecond
	}
	return req, nil
}

// Signal is the payload of a signal frame.
type Signal struct {
	Strength int
	Err      string
}

func EncodeSignal(s Signal) []byte {
	fields := []tlv.Field{tlv.I32(FieldSignalStrength, int32(s.Strength))}
	if s.Err != "" {
		fields = append(fields, tlv.String(FieldSignalError, s.Err))
	}
	return tlv.EncodeFields(fields...)
}

func DecodeSignal(payload []byte) (Signal, error) {
	fields, err := tlv.DecodeFields(payload)
	if err != nil {
		return Signal{}, err
	}
	var s Signal
	if f, ok := tlv.GetField(fields, FieldSignalError); ok {
		if s.Err, err = f.AsString(); err != nil {
			return Signal{}, err
		}
	}
	f, ok := tlv.GetField(fields, FieldSignalStrength)
	if !ok {
		if s.Err != "" {
			return s, nil
		}
		return Signal{}, errors.New("bridge: signal frame missing strength")
	}
	v, err := f.AsI32()
	if err != nil {
		return Signal{}, err
	}
	s.Strength = int(v)
	return s, nil
}

func EncodeErrorMessage(msg string) []byte {
	return tlv.EncodeFields(tlv.String(FieldErrorMessage, msg))
}

// DecodeErrorMessage returns the reason carried in payload. An empty or
// unreadable payload yields fallback.
func DecodeErrorMessage(payload []byte, fallback string) string {
	fields, err := tlv.DecodeFields(payload)
	if err != nil {
		return fallback
	}
	f, ok := tlv.GetField(fields, FieldErrorMessage)
	if !ok {
		return fallback
	}
	msg, err := f.AsString()
	if err != nil || msg == "" {
		return fallback
	}
	return msg
}

// RemoteError is an error reported by the bridge.
type RemoteError struct {
	Op     string
	Reason string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("bridge: %s: %s", e.Op, e.Reason)
}
