package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/wearctl/internal/protocol/tlv"
	"github.com/danmuck/wearctl/internal/testutil/testlog"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	payload := tlv.EncodeFields(tlv.String(1, "feather-7c"), tlv.Bool(2, true))
	var buf bytes.Buffer
	if err := WriteFrame(&buf, New(KindSetup, payload), DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if buf.Len() != FixedHeaderLen+len(payload) {
		t.Fatalf("unexpected encoded size: %d", buf.Len())
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if out.Header.Kind != KindSetup || out.Header.Magic != Magic || out.Header.Version != Version {
		t.Fatalf("header mismatch: %+v", out.Header)
	}
	if !bytes.Equal(out.Payload, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestEmptyPayloadFrame(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	if err := WriteFrame(&buf, New(KindReady, nil), DefaultLimits()); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Header.Kind != KindReady || len(out.Payload) != 0 {
		t.Fatalf("unexpected frame: %+v", out)
	}
}

func TestReadFrameMalformedHeaderIsDeterministic(t *testing.T) {
	testlog.Start(t)
	_, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestReadFrameRejectsBadMagicAndVersion(t *testing.T) {
	testlog.Start(t)
	bad := EncodeHeader(Header{Magic: 0xDEADBEEF, Version: Version, Kind: KindData})
	if _, err := ReadFrame(bytes.NewReader(bad), DefaultLimits()); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
	future := EncodeHeader(Header{Magic: Magic, Version: 9, Kind: KindData})
	if _, err := ReadFrame(bytes.NewReader(future), DefaultLimits()); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestPayloadLimits(t *testing.T) {
	testlog.Start(t)
	limits := Limits{MaxPayloadBytes: 4}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, New(KindData, []byte("too long")), limits); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge on write, got %v", err)
	}
	big := EncodeHeader(Header{Magic: Magic, Version: Version, Kind: KindData, PayloadLen: 5})
	if _, err := ReadFrame(bytes.NewReader(big), limits); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge on read, got %v", err)
	}
}

func TestKindString(t *testing.T) {
	testlog.Start(t)
	if KindSignal.String() != "signal" || Kind(99).String() != "kind(99)" {
		t.Fatalf("unexpected kind strings")
	}
}
