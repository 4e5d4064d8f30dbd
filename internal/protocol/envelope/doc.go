// Package envelope owns the JSON message envelope exchanged with the wearable.
//
// Every frame on the link is one UTF-8 JSON object with a "msgType" tag and an
// optional, type-dependent "data" payload. Identity responses are the one
// asymmetric shape: the device reports its identity in a top-level "userID"
// field rather than under "data". That shape is defined by device firmware and
// is preserved as-is.
//
// Decode never fails loudly. Callers branch on Decoded.OK and drop anything
// that is not a well-formed envelope.
package envelope
