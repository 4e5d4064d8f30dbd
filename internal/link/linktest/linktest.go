// Package linktest provides an in-memory link.Link for tests.
package linktest

import (
	"context"
	"sync"
	"time"

	"github.com/danmuck/wearctl/internal/link"
)

// Link records outbound traffic and lets tests inject events.
type Link struct {
	mu              sync.Mutex
	events          chan link.Event
	closed          bool
	sent            []string
	setupCalls      int
	disconnectCalls int

	// SetupErr is returned from Setup when set.
	SetupErr error
	// SendErr is returned from Send when set.
	SendErr error
}

var _ link.Link = (*Link)(nil)

func New() *Link {
	return &Link{events: make(chan link.Event, 256)}
}

func (l *Link) Setup(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setupCalls++
	return l.SetupErr
}

func (l *Link) Send(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SendErr != nil {
		return l.SendErr
	}
	if l.closed {
		return link.ErrClosed
	}
	l.sent = append(l.sent, text)
	return nil
}

func (l *Link) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnectCalls++
	return nil
}

func (l *Link) Events() <-chan link.Event {
	return l.events
}

func (l *Link) EmitReady(err error) {
	l.emit(link.Event{Kind: link.EventReady, Err: err})
}

func (l *Link) EmitMessage(text string) {
	l.emit(link.Event{Kind: link.EventMessage, Text: text})
}

func (l *Link) EmitSignal(err error, strength int) {
	l.emit(link.Event{Kind: link.EventSignal, Err: err, Strength: strength})
}

// EmitDisconnected delivers EventDisconnected and closes the event stream.
func (l *Link) EmitDisconnected() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.events <- link.Event{Kind: link.EventDisconnected}
	l.closed = true
	close(l.events)
}

// Close ends the event stream without a disconnect event.
func (l *Link) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.events)
}

func (l *Link) emit(ev link.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.events <- ev
}

// Sent returns a copy of every text passed to Send.
func (l *Link) Sent() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.sent...)
}

// WaitSent polls until at least n texts were sent or the timeout elapses.
func (l *Link) WaitSent(n int, timeout time.Duration) ([]string, bool) {
	deadline := time.Now().Add(timeout)
	for {
		sent := l.Sent()
		if len(sent) >= n {
			return sent, true
		}
		if time.Now().After(deadline) {
			return sent, false
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (l *Link) SetupCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.setupCalls
}

func (l *Link) DisconnectCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.disconnectCalls
}
