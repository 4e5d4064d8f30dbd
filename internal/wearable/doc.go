// Package wearable owns one wearable device session.
//
// A Session drives the handshake over a link.Link (link ready, identity
// request, identity response), decodes inbound envelopes, applies the signal
// policy and fans notifications out through a hub.Hub. Outbound commands
// (haptic pulses, LED color, signal acknowledgments) go back through the same
// Link.
//
// Ownership boundary:
// - lifecycle states and the handshake timeout
// - inbound envelope dispatch
// - outbound command encoding
//
// All transitions run on one event-loop goroutine per Session, so observers
// never run concurrently with each other or with a transition. Observers must
// not block for long; they delay every later event of the Session.
package wearable
