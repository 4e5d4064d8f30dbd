package wearable

import (
	"fmt"

	"github.com/danmuck/wearctl/internal/observability"
	"github.com/danmuck/wearctl/internal/protocol/envelope"
)

// SendMessage encodes an envelope and forwards it through the Link. It is
// usable in any state; before StateReady the device may not act on it.
func (s *Session) SendMessage(msgType envelope.MsgType, data any) error {
	text, err := envelope.Encode(msgType, data)
	if err != nil {
		observability.RecordCommand(string(msgType), false)
		return err
	}
	if err := s.link.Send(text); err != nil {
		observability.RecordCommand(string(msgType), false)
		return fmt.Errorf("wearable: send %s: %w", msgType, err)
	}
	observability.RecordCommand(string(msgType), true)
	s.logger.Debug().Str("msg_type", string(msgType)).Msg("message sent")
	return nil
}

// SendHaptic pulses the haptic motor times times. times <= 0 sends the
// default single pulse.
func (s *Session) SendHaptic(times int) error {
	if times <= 0 {
		times = DefaultHapticPulses
	}
	return s.SendMessage(envelope.TypeHaptic, times)
}

// SetColor sets the LED color. Range checks are left to the device.
func (s *Session) SetColor(red, green, blue int) error {
	return s.SendMessage(envelope.TypeSetLights, envelope.LightsPayload{
		Color: envelope.RGB{R: red, G: green, B: blue},
	})
}

// Disconnect asks the Link to tear down the connection. Disconnect observers
// are notified only once the Link reports the disconnect.
func (s *Session) Disconnect() error {
	if err := s.link.Disconnect(); err != nil {
		return fmt.Errorf("wearable: disconnect: %w", err)
	}
	s.logger.Debug().Msg("disconnect requested")
	return nil
}
