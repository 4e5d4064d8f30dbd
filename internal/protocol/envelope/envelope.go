package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MsgType selects envelope semantics.
type MsgType string

const (
	TypeIdentity       MsgType = "Identity"
	TypeLike           MsgType = "Like"
	TypeDismiss        MsgType = "Dismiss"
	TypeSignalStrength MsgType = "SignalStrength"
	TypeHaptic         MsgType = "Haptic"
	TypeSetLights      MsgType = "SetLights"
)

// MaxEnvelopeBytes caps inbound envelope text.
const MaxEnvelopeBytes = 16 * 1024

var (
	ErrMissingMsgType = errors.New("envelope: missing msgType")
	ErrEncode         = errors.New("envelope: encode failed")
)

// Known reports whether t is one of the protocol message types.
func (t MsgType) Known() bool {
	switch t {
	case TypeIdentity, TypeLike, TypeDismiss, TypeSignalStrength, TypeHaptic, TypeSetLights:
		return true
	default:
		return false
	}
}

// Envelope is one decoded wire message.
type Envelope struct {
	MsgType MsgType         `json:"msgType"`
	Data    json.RawMessage `json:"data,omitempty"`
	UserID  json.RawMessage `json:"userID,omitempty"`
}

// Identity returns the trimmed top-level userID of an identity response, or
// "" when it is absent, blank, or not a string.
func (e Envelope) Identity() string {
	if len(e.UserID) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(e.UserID, &id); err != nil {
		return ""
	}
	return strings.TrimSpace(id)
}

// DecodeData unmarshals the data payload into v.
func (e Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("envelope: %s has no data", e.MsgType)
	}
	return json.Unmarshal(e.Data, v)
}

// IdentityRequest is the data payload of an outbound identity request.
type IdentityRequest struct {
	Request string `json:"request"`
}

// RGB is a LED color triple. Components are not range checked here.
type RGB struct {
	R int `json:"R"`
	G int `json:"G"`
	B int `json:"B"`
}

// LightsPayload is the data payload of a SetLights command.
type LightsPayload struct {
	Color RGB `json:"color"`
}

type outbound struct {
	MsgType MsgType `json:"msgType"`
	Data    any     `json:"data,omitempty"`
}

// Encode renders a canonical envelope. A nil data value yields a
// msgType-only envelope.
func Encode(msgType MsgType, data any) (string, error) {
	if strings.TrimSpace(string(msgType)) == "" {
		return "", ErrMissingMsgType
	}
	raw, err := json.Marshal(outbound{MsgType: msgType, Data: data})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrEncode, msgType, err)
	}
	return string(raw), nil
}

// Decoded is the result of Decode: either OK with an Envelope, or malformed
// with a Reason suitable for debug logging.
type Decoded struct {
	Envelope Envelope
	OK       bool
	Reason   string
}

func malformed(reason string) Decoded {
	return Decoded{Reason: reason}
}

// Decode parses raw envelope text. It never panics and never returns an
// error; malformed input yields Decoded.OK == false.
func Decode(raw string) Decoded {
	if len(raw) > MaxEnvelopeBytes {
		return malformed("too large")
	}
	if !utf8.ValidString(raw) {
		return malformed("invalid utf-8")
	}
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return malformed("not an object")
	}
	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return malformed("invalid json")
	}
	if strings.TrimSpace(string(env.MsgType)) == "" {
		return malformed("missing msgType")
	}
	return Decoded{Envelope: env, OK: true}
}
