package console

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/danmuck/wearctl/internal/hub"
	"github.com/danmuck/wearctl/internal/link/linktest"
	"github.com/danmuck/wearctl/internal/testutil/testlog"
	"github.com/danmuck/wearctl/internal/wearable"
)

func newSession(t *testing.T) (*wearable.Session, *linktest.Link) {
	t.Helper()
	testlog.Start(t)
	l := linktest.New()
	s, err := wearable.New(l, wearable.DefaultConfig(), wearable.WithLogger(zerolog.Nop()), wearable.WithID("session.console"))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s, l
}

func TestExecCommandsReachTheLink(t *testing.T) {
	s, l := newSession(t)
	var out bytes.Buffer
	lines := []string{
		"haptic",
		"haptic 2",
		"lights 1 2 3",
		`send Like`,
		`send SetLights {"color": {"R": 9, "G": 9, "B": 9}}`,
	}
	for _, line := range lines {
		if err := Exec(s, line, &out); err != nil {
			t.Fatalf("exec %q: %v", line, err)
		}
	}
	want := []string{
		`{"msgType":"Haptic","data":1}`,
		`{"msgType":"Haptic","data":2}`,
		`{"msgType":"SetLights","data":{"color":{"R":1,"G":2,"B":3}}}`,
		`{"msgType":"Like"}`,
		`{"msgType":"SetLights","data":{"color":{"R":9,"G":9,"B":9}}}`,
	}
	sent := l.Sent()
	if len(sent) != len(want) {
		t.Fatalf("unexpected sent count: %d (%v)", len(sent), sent)
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Fatalf("sent[%d]: got %s want %s", i, sent[i], want[i])
		}
	}
}

func TestExecRejectsBadArguments(t *testing.T) {
	s, l := newSession(t)
	var out bytes.Buffer
	for _, line := range []string{"haptic many", "lights 1 2", "lights a b c", "send", "send Like {nope"} {
		if err := Exec(s, line, &out); err == nil {
			t.Fatalf("expected error for %q", line)
		}
	}
	if len(l.Sent()) != 0 {
		t.Fatalf("bad commands reached the link: %v", l.Sent())
	}
	if !strings.Contains(out.String(), "Error:") {
		t.Fatalf("errors not printed: %s", out.String())
	}
}

func TestExecStatusQuitAndUnknown(t *testing.T) {
	s, l := newSession(t)
	var out bytes.Buffer
	if err := Exec(s, "status", &out); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out.String(), "state:    connecting") {
		t.Fatalf("unexpected status output: %s", out.String())
	}
	if err := Exec(s, "frobnicate", &out); err != nil {
		t.Fatalf("unknown command should not fail: %v", err)
	}
	if !strings.Contains(out.String(), "Unknown command: frobnicate") {
		t.Fatalf("unknown command not reported")
	}
	if err := Exec(s, "   ", &out); err != nil {
		t.Fatalf("blank line: %v", err)
	}
	if err := Exec(s, "disconnect", &out); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if l.DisconnectCalls() != 1 {
		t.Fatalf("expected link disconnect")
	}
	if err := Exec(s, "quit", &out); !errors.Is(err, errQuit) {
		t.Fatalf("expected errQuit, got %v", err)
	}
}

func TestPrintNotification(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	printNotification(&out, hub.Notification{Kind: hub.KindSignal, Strength: -60})
	printNotification(&out, hub.Notification{Kind: hub.KindReady, Err: wearable.ErrHandshakeTimeout})
	printNotification(&out, hub.Notification{Kind: hub.KindLike})
	got := out.String()
	for _, want := range []string{"[signal] strength=-60", "[ready] error: wearable: handshake timeout", "[like]"} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %q", want, got)
		}
	}
}

func TestDropFields(t *testing.T) {
	testlog.Start(t)
	if got := dropFields("send  end   {\"a\": 1} ", 2); got != `{"a": 1}` {
		t.Fatalf("unexpected rest: %q", got)
	}
	if got := dropFields("send Like", 2); got != "" {
		t.Fatalf("unexpected rest: %q", got)
	}
}
