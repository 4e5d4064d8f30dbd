package wearable

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/wearctl/internal/hub"
	"github.com/danmuck/wearctl/internal/link"
	"github.com/danmuck/wearctl/internal/observability"
	"github.com/danmuck/wearctl/internal/protocol/envelope"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrHandshakeTimeout    = errors.New("wearable: handshake timeout")
	ErrIdentityNotObtained = errors.New("wearable: identity not obtained")
	ErrLinkSetup           = errors.New("wearable: link setup failed")
	ErrAlreadySetup        = errors.New("wearable: session already set up")
	ErrNilLink             = errors.New("wearable: nil link")
	ErrLinkLost            = errors.New("wearable: link disconnected before handshake outcome")
	ErrSessionEnded        = errors.New("wearable: session already disconnected")
)

// Session is one handshake-to-disconnect lifecycle with a wearable. It is
// never reused: construct a new Session for every physical connection.
type Session struct {
	id     string
	link   link.Link
	cfg    Config
	hub    *hub.Hub
	logger zerolog.Logger

	mu        sync.RWMutex
	state     State
	identity  string
	startedAt time.Time
	endedAt   time.Time
	setupAt   time.Time
	timer     *time.Timer

	setupCalled atomic.Bool
	// settled is the one-shot handshake outcome guard: only the first of
	// {link setup error, identity response, timeout} may notify ready.
	settled atomic.Bool

	// loop-owned
	disconnected bool

	timeouts  chan struct{}
	setupErrs chan error
	done      chan struct{}
}

// Option customizes a Session at construction.
type Option func(*Session)

// WithLogger replaces the session logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithID fixes the session ID instead of generating one.
func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// New builds a Session in StateConnecting and starts consuming l's events,
// so a disconnect is reported from any state. l is not set up until Setup.
func New(l link.Link, cfg Config, opts ...Option) (*Session, error) {
	if l == nil {
		return nil, ErrNilLink
	}
	cfg = cfg.WithDefaults()
	s := &Session{
		id:        uuid.NewString(),
		link:      l,
		cfg:       cfg,
		logger:    log.Logger,
		state:     StateConnecting,
		timeouts:  make(chan struct{}, 1),
		setupErrs: make(chan error, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	level := zerolog.InfoLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	s.logger = s.logger.With().Str("session", s.id).Logger().Level(level)
	s.hub = hub.New(s.logger)
	go s.run(l.Events())
	return s, nil
}

// On registers o for kind. Observers of one kind run in registration order.
// Registering an observer for the kind currently being dispatched from inside
// that observer is not supported.
func (s *Session) On(kind hub.Kind, o hub.Observer) {
	s.hub.On(kind, o)
}

// OnReady registers fn for the handshake outcome. err is nil on success.
func (s *Session) OnReady(fn func(err error)) {
	s.On(hub.KindReady, hub.ObserverFunc(func(n hub.Notification) { fn(n.Err) }))
}

// OnLike registers fn for Like messages from the device.
func (s *Session) OnLike(fn func()) {
	s.On(hub.KindLike, hub.ObserverFunc(func(hub.Notification) { fn() }))
}

// OnDismiss registers fn for Dismiss messages from the device.
func (s *Session) OnDismiss(fn func()) {
	s.On(hub.KindDismiss, hub.ObserverFunc(func(hub.Notification) { fn() }))
}

// OnSignal registers fn for signal updates. On error strength is zero and
// ack is nil.
func (s *Session) OnSignal(fn func(err error, strength int, ack hub.AckFunc)) {
	s.On(hub.KindSignal, hub.ObserverFunc(func(n hub.Notification) { fn(n.Err, n.Strength, n.Ack) }))
}

// OnDisconnect registers fn for the single disconnect notification.
func (s *Session) OnDisconnect(fn func()) {
	s.On(hub.KindDisconnect, hub.ObserverFunc(func(hub.Notification) { fn() }))
}

// Setup starts the handshake timer and asks the Link to connect. Link
// failures are reported through the ready channel, not returned. Setup fails
// only when repeated or when the Link already disconnected.
func (s *Session) Setup(ctx context.Context) error {
	if !s.setupCalled.CompareAndSwap(false, true) {
		return ErrAlreadySetup
	}
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	s.setupAt = time.Now()
	s.timer = time.AfterFunc(s.cfg.HandshakeTimeout, s.fireTimeout)
	prev := s.state
	s.state = StateAwaitingIdentity
	s.mu.Unlock()
	s.recordTransition(prev, StateAwaitingIdentity)

	s.logger.Debug().Dur("handshake_timeout", s.cfg.HandshakeTimeout).Msg("link setup")
	if err := s.link.Setup(ctx); err != nil {
		s.setupErrs <- err
	}
	return nil
}

// Done is closed once the Session has processed its disconnect.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) fireTimeout() {
	select {
	case s.timeouts <- struct{}{}:
	default:
	}
}

func (s *Session) run(events <-chan link.Event) {
	defer close(s.done)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				s.handleDisconnected()
				return
			}
			s.handleEvent(ev)
			if s.disconnected {
				return
			}
		case <-s.timeouts:
			s.handleTimeout()
		case err := <-s.setupErrs:
			s.handleReady(err)
		}
	}
}

func (s *Session) handleEvent(ev link.Event) {
	if ev.Kind != link.EventDisconnected && s.State() == StateConnecting {
		s.logger.Debug().Stringer("kind", ev.Kind).Msg("link event before setup ignored")
		return
	}
	switch ev.Kind {
	case link.EventReady:
		s.handleReady(ev.Err)
	case link.EventDisconnected:
		s.handleDisconnected()
	case link.EventMessage:
		s.handleMessage(ev.Text)
	case link.EventSignal:
		s.handleSignal(ev.Err, ev.Strength)
	default:
		s.logger.Debug().Int("kind", int(ev.Kind)).Msg("unknown link event ignored")
	}
}

func (s *Session) handleReady(err error) {
	if err != nil {
		s.stopTimer()
		if !s.settle("setup_error") {
			return
		}
		s.logger.Warn().Err(err).Msg("link setup failed")
		s.notify(hub.KindReady, hub.Notification{Err: fmt.Errorf("%w: %w", ErrLinkSetup, err)})
		return
	}
	if s.settled.Load() {
		s.logger.Debug().Msg("link ready after handshake outcome ignored")
		return
	}

	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	if err := s.SendMessage(envelope.TypeIdentity, envelope.IdentityRequest{Request: "GET"}); err != nil {
		s.logger.Warn().Err(err).Msg("identity request failed")
		return
	}
	s.logger.Debug().Msg("identity requested")
}

func (s *Session) handleTimeout() {
	if !s.settle("timeout") {
		return
	}
	s.logger.Warn().Dur("handshake_timeout", s.cfg.HandshakeTimeout).Msg("handshake timed out")
	s.notify(hub.KindReady, hub.Notification{Err: ErrHandshakeTimeout})
}

func (s *Session) handleMessage(text string) {
	decoded := envelope.Decode(text)
	if !decoded.OK {
		observability.RecordDropped(decoded.Reason)
		s.logger.Debug().Str("reason", decoded.Reason).Int("bytes", len(text)).Msg("malformed message dropped")
		return
	}
	env := decoded.Envelope
	observability.RecordInbound(string(env.MsgType))

	switch env.MsgType {
	case envelope.TypeIdentity:
		s.handleIdentity(env)
	case envelope.TypeLike:
		s.notify(hub.KindLike, hub.Notification{})
	case envelope.TypeDismiss:
		s.notify(hub.KindDismiss, hub.Notification{})
	default:
		s.logger.Debug().Str("msg_type", string(env.MsgType)).Msg("unhandled message type ignored")
	}
}

func (s *Session) handleIdentity(env envelope.Envelope) {
	s.stopTimer()
	id := env.Identity()
	outcome := "ready"
	if id == "" {
		outcome = "no_identity"
	}
	if !s.settle(outcome) {
		s.logger.Debug().Msg("identity after handshake outcome ignored")
		return
	}
	if id == "" {
		s.logger.Warn().Msg("identity response without userID")
		s.notify(hub.KindReady, hub.Notification{Err: ErrIdentityNotObtained})
		return
	}

	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
	s.transition(StateReady)
	s.logger.Info().Str("identity", id).Msg("session ready")
	s.notify(hub.KindReady, hub.Notification{})
}

func (s *Session) handleSignal(err error, strength int) {
	if s.State() != StateReady {
		return
	}
	if err != nil {
		s.notify(hub.KindSignal, hub.Notification{Err: err})
		return
	}
	if s.cfg.DisconnectBelowMinimum && strength < s.cfg.MinimumSignal {
		s.logger.Warn().
			Int("strength", strength).
			Int("minimum", s.cfg.MinimumSignal).
			Msg("signal below minimum, disconnecting")
		if err := s.Disconnect(); err != nil {
			s.logger.Warn().Err(err).Msg("disconnect below minimum failed")
		}
		return
	}
	s.notify(hub.KindSignal, hub.Notification{Strength: strength, Ack: s.ackSignal})
}

func (s *Session) ackSignal(strength int) error {
	return s.SendMessage(envelope.TypeSignalStrength, strength)
}

// handleDisconnected ends the session. A handshake still in flight is
// settled with ErrLinkLost first so ready observers always get an outcome.
func (s *Session) handleDisconnected() {
	if s.disconnected {
		return
	}
	s.disconnected = true

	s.mu.Lock()
	prev := s.state
	timer := s.timer
	s.state = StateDisconnected
	s.endedAt = time.Now()
	s.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
	s.recordTransition(prev, StateDisconnected)

	if prev == StateAwaitingIdentity && s.settle("link_lost") {
		s.logger.Warn().Msg("link lost before handshake outcome")
		s.notify(hub.KindReady, hub.Notification{Err: ErrLinkLost})
	}
	s.logger.Info().Msg("session disconnected")
	s.notify(hub.KindDisconnect, hub.Notification{})
}

// settle claims the handshake outcome. It returns false when an outcome was
// already produced.
func (s *Session) settle(outcome string) bool {
	if !s.settled.CompareAndSwap(false, true) {
		return false
	}
	s.mu.RLock()
	setupAt := s.setupAt
	s.mu.RUnlock()
	observability.RecordHandshake(outcome, time.Since(setupAt))
	return true
}

func (s *Session) stopTimer() {
	s.mu.RLock()
	timer := s.timer
	s.mu.RUnlock()
	if timer != nil {
		timer.Stop()
	}
}

func (s *Session) transition(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	s.recordTransition(prev, next)
}

func (s *Session) recordTransition(prev, next State) {
	observability.RecordTransition(next.String())
	s.logger.Debug().Stringer("from", prev).Stringer("to", next).Msg("state transition")
}

func (s *Session) notify(kind hub.Kind, n hub.Notification) {
	n.Session = s.id
	n.At = time.Now()
	s.hub.Trigger(kind, n)
}

// ID returns the session ID used in logs and notifications.
func (s *Session) ID() string {
	return s.id
}

// Config returns the normalized configuration the session runs with.
func (s *Session) Config() Config {
	return s.cfg
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Identity returns the device identity, or "" before the handshake succeeds.
func (s *Session) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// StartedAt returns when the Link reported ready, or the zero time.
func (s *Session) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// EndedAt returns when the disconnect was processed, or the zero time.
func (s *Session) EndedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endedAt
}

// Snapshot is a point-in-time view of a Session.
type Snapshot struct {
	ID        string     `json:"id"`
	Identity  string     `json:"identity,omitempty"`
	State     State      `json:"state"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Snapshot returns a consistent copy of the observable session fields.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		ID:       s.id,
		Identity: s.identity,
		State:    s.state,
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		snap.StartedAt = &started
	}
	if !s.endedAt.IsZero() {
		ended := s.endedAt
		snap.EndedAt = &ended
	}
	return snap
}
