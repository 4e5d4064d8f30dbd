// Package bridge implements link.Link over a TCP connection to a BLE-UART
// bridge process.
//
// The bridge owns the radio. The host dials it, names the peripheral in a
// setup frame and then exchanges framed UART text. RSSI samples and link
// loss arrive as their own frame kinds.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/wearctl/internal/link"
	"github.com/danmuck/wearctl/internal/protocol/frame"
)

var (
	ErrAddressRequired = errors.New("bridge: address required")
	ErrAlreadyStarted  = errors.New("bridge: setup already called")
)

const eventBuffer = 64

// Dialer opens the transport to the bridge.
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

type Config struct {
	Address            string
	Peripheral         string
	DialTimeout        time.Duration
	WriteTimeout       time.Duration
	MaxConnectAttempts int
	Backoff            BackoffConfig
	Limits             frame.Limits
}

func DefaultConfig() Config {
	return Config{
		Address:            "127.0.0.1:7878",
		DialTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxConnectAttempts: 5,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
		Limits: frame.DefaultLimits(),
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = d.Backoff
	}
	if c.Limits.MaxPayloadBytes == 0 {
		c.Limits = d.Limits
	}
	return c
}

type Option func(*Link)

func WithDialer(d Dialer) Option {
	return func(l *Link) {
		if d != nil {
			l.dial = d
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Link) {
		l.logger = logger
	}
}

// Link is a link.Link backed by one bridge connection.
type Link struct {
	cfg    Config
	opts   link.Options
	dial   Dialer
	rng    *rand.Rand
	logger zerolog.Logger
	events chan link.Event

	mu      sync.Mutex
	started bool
	closing bool
	conn    net.Conn
	cancel  context.CancelFunc

	writeMu sync.Mutex
}

var _ link.Link = (*Link)(nil)

func New(cfg Config, opts link.Options, options ...Option) (*Link, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	dialer := net.Dialer{}
	l := &Link{
		cfg:    cfg.WithDefaults(),
		opts:   opts,
		dial:   dialer.DialContext,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: log.Logger,
		events: make(chan link.Event, eventBuffer),
	}
	for _, opt := range options {
		opt(l)
	}
	l.logger = l.logger.With().Str("component", "bridge").Str("addr", l.cfg.Address).Logger()
	return l, nil
}

func (l *Link) Events() <-chan link.Event {
	return l.events
}

// Setup starts dialing in the background. The outcome arrives as
// link.EventReady.
func (l *Link) Setup(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closing {
		return link.ErrClosed
	}
	if l.started {
		return ErrAlreadyStarted
	}
	l.started = true
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	go l.run(runCtx)
	return nil
}

func (l *Link) Send(text string) error {
	l.mu.Lock()
	conn := l.conn
	closing := l.closing
	l.mu.Unlock()
	if closing {
		return link.ErrClosed
	}
	if conn == nil {
		return link.ErrNotConnected
	}
	return l.write(conn, frame.New(frame.KindData, []byte(text)))
}

// Disconnect asks the bridge to drop the peripheral and closes the
// transport. link.EventDisconnected follows on the event stream.
func (l *Link) Disconnect() error {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return nil
	}
	l.closing = true
	started := l.started
	conn := l.conn
	cancel := l.cancel
	l.mu.Unlock()

	if !started {
		// no run goroutine owns the stream yet
		l.events <- link.Event{Kind: link.EventDisconnected}
		close(l.events)
		return nil
	}

	var err error
	if conn != nil {
		if werr := l.write(conn, frame.New(frame.KindDisconnect, nil)); werr != nil {
			err = fmt.Errorf("bridge: write disconnect: %w", werr)
		}
	}
	cancel()
	return err
}

func (l *Link) write(conn net.Conn, f frame.Frame) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout))
	return frame.WriteFrame(conn, f, l.cfg.Limits)
}

func (l *Link) isClosing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closing
}

// run owns the event stream: it is the only sender and closes it on exit.
func (l *Link) run(ctx context.Context) {
	defer close(l.events)

	conn, err := l.connect(ctx)
	if err != nil {
		if ctx.Err() == nil || !l.isClosing() {
			l.logger.Warn().Err(err).Msg("bridge connect failed")
			l.events <- link.Event{Kind: link.EventReady, Err: err}
			<-ctx.Done()
		}
		l.events <- link.Event{Kind: link.EventDisconnected}
		return
	}

	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		_ = conn.Close()
		l.events <- link.Event{Kind: link.EventDisconnected}
		return
	}
	l.conn = conn
	l.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	l.events <- link.Event{Kind: link.EventDisconnected, Err: l.readLoop(conn)}
}

func (l *Link) connect(ctx context.Context) (net.Conn, error) {
	var attempt int
	for {
		attempt++
		conn, err := l.dialOnce(ctx)
		if err == nil {
			return conn, nil
		}
		l.logger.Warn().Int("attempt", attempt).Err(err).Msg("bridge dial failed")
		if ctx.Err() != nil || !l.shouldRetry(attempt) {
			return nil, err
		}
		if err := l.sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (l *Link) dialOnce(ctx context.Context) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, l.cfg.DialTimeout)
	defer cancel()
	conn, err := l.dial(dialCtx, "tcp", l.cfg.Address)
	if err != nil {
		return nil, err
	}
	req := newSetupRequest(l.cfg.Peripheral, l.opts)
	if err := l.write(conn, frame.New(frame.KindSetup, EncodeSetup(req))); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("bridge: write setup: %w", err)
	}
	l.logger.Debug().Str("peripheral", req.Peripheral).Msg("setup sent")
	return conn, nil
}

func (l *Link) shouldRetry(attempt int) bool {
	if l.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < l.cfg.MaxConnectAttempts
}

func (l *Link) sleepBackoff(ctx context.Context, attempt int) error {
	delay := NextBackoffDelay(l.cfg.Backoff, attempt, l.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// readLoop translates bridge frames into link events until the transport
// ends. It returns the cause for an unrequested loss, nil otherwise.
func (l *Link) readLoop(conn net.Conn) error {
	ready := false
	for {
		f, err := frame.ReadFrame(conn, l.cfg.Limits)
		if err != nil {
			if l.isClosing() {
				return nil
			}
			l.logger.Debug().Err(err).Msg("bridge read ended")
			if !ready {
				l.events <- link.Event{Kind: link.EventReady, Err: fmt.Errorf("%w: %v", link.ErrClosed, err)}
			}
			return err
		}

		switch f.Header.Kind {
		case frame.KindReady:
			ready = true
			l.events <- link.Event{Kind: link.EventReady}
		case frame.KindSetupError:
			ready = true
			reason := DecodeErrorMessage(f.Payload, "setup failed")
			l.events <- link.Event{Kind: link.EventReady, Err: &RemoteError{Op: "setup", Reason: reason}}
		case frame.KindData:
			l.events <- link.Event{Kind: link.EventMessage, Text: string(f.Payload)}
		case frame.KindSignal:
			sig, err := DecodeSignal(f.Payload)
			if err != nil {
				l.logger.Debug().Err(err).Msg("malformed signal frame dropped")
				continue
			}
			ev := link.Event{Kind: link.EventSignal, Strength: sig.Strength}
			if sig.Err != "" {
				ev.Err = &RemoteError{Op: "signal", Reason: sig.Err}
			}
			l.events <- ev
		case frame.KindDisconnected:
			_ = conn.Close()
			if l.isClosing() {
				return nil
			}
			lost := &RemoteError{Op: "disconnected", Reason: DecodeErrorMessage(f.Payload, "peripheral lost")}
			if !ready {
				l.events <- link.Event{Kind: link.EventReady, Err: lost}
			}
			return lost
		default:
			l.logger.Debug().Str("kind", f.Header.Kind.String()).Msg("unexpected frame ignored")
		}
	}
}
