package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/danmuck/wearctl/internal/hub"
	"github.com/danmuck/wearctl/internal/link"
	"github.com/danmuck/wearctl/internal/testutil/testlog"
	"github.com/danmuck/wearctl/internal/wearable"
)

type stubSession struct {
	mu          sync.Mutex
	snap        wearable.Snapshot
	haptics     []int
	colors      [][3]int
	disconnects int
	err         error
	hub         *hub.Hub
}

func newStubSession() *stubSession {
	return &stubSession{
		snap: wearable.Snapshot{ID: "session.test", State: wearable.StateAwaitingIdentity},
		hub:  hub.New(zerolog.Nop()),
	}
}

func (s *stubSession) Snapshot() wearable.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *stubSession) SendHaptic(times int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.haptics = append(s.haptics, times)
	return s.err
}

func (s *stubSession) SetColor(r, g, b int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.colors = append(s.colors, [3]int{r, g, b})
	return s.err
}

func (s *stubSession) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
	return s.err
}

func (s *stubSession) On(kind hub.Kind, o hub.Observer) {
	s.hub.On(kind, o)
}

func newTestServer(t *testing.T, cfg Config) (*Server, *stubSession) {
	t.Helper()
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	sess := newStubSession()
	return New(cfg, sess), sess
}

func do(t *testing.T, s *Server, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthAndReady(t *testing.T) {
	s, sess := newTestServer(t, DefaultConfig())
	if w := do(t, s, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Fatalf("health status=%d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/ready", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", w.Code)
	}

	sess.mu.Lock()
	sess.snap.State = wearable.StateReady
	sess.snap.Identity = "user-42"
	sess.mu.Unlock()

	if w := do(t, s, http.MethodGet, "/ready", "", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 when ready, got %d", w.Code)
	}
	w := do(t, s, http.MethodGet, "/session", "", nil)
	var snap wearable.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v body=%s", err, w.Body.String())
	}
	if snap.Identity != "user-42" || snap.State != wearable.StateReady {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestMetricsRouteServesPrometheus(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig())
	do(t, s, http.MethodGet, "/health", "", nil)
	w := do(t, s, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "wearctl_http_requests_total") {
		t.Fatalf("unexpected metrics response: %d", w.Code)
	}
}

func TestCommandRoutes(t *testing.T) {
	s, sess := newTestServer(t, DefaultConfig())

	if w := do(t, s, http.MethodPost, "/session/haptic", `{"times":3}`, nil); w.Code != http.StatusOK {
		t.Fatalf("haptic status=%d body=%s", w.Code, w.Body.String())
	}
	if w := do(t, s, http.MethodPost, "/session/haptic", "", nil); w.Code != http.StatusOK {
		t.Fatalf("empty haptic status=%d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/session/lights", `{"r":255,"g":0,"b":12}`, nil); w.Code != http.StatusOK {
		t.Fatalf("lights status=%d body=%s", w.Code, w.Body.String())
	}
	if w := do(t, s, http.MethodPost, "/session/lights", `{"r":255}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for partial color, got %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/session/disconnect", "", nil); w.Code != http.StatusAccepted {
		t.Fatalf("disconnect status=%d", w.Code)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.haptics) != 2 || sess.haptics[0] != 3 || sess.haptics[1] != 0 {
		t.Fatalf("unexpected haptics: %v", sess.haptics)
	}
	if len(sess.colors) != 1 || sess.colors[0] != [3]int{255, 0, 12} {
		t.Fatalf("unexpected colors: %v", sess.colors)
	}
	if sess.disconnects != 1 {
		t.Fatalf("unexpected disconnects: %d", sess.disconnects)
	}
}

func TestCommandErrorsMapToBadGateway(t *testing.T) {
	s, sess := newTestServer(t, DefaultConfig())
	sess.err = link.ErrNotConnected
	if w := do(t, s, http.MethodPost, "/session/haptic", `{"times":1}`, nil); w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

func TestTokenGuardsSessionRoutes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Token = "s3cret"
	s, _ := newTestServer(t, cfg)

	if w := do(t, s, http.MethodGet, "/session", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	bad := http.Header{"Authorization": []string{"Bearer nope"}}
	if w := do(t, s, http.MethodGet, "/session", "", bad); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", w.Code)
	}
	good := http.Header{"Authorization": []string{"Bearer s3cret"}}
	if w := do(t, s, http.MethodGet, "/session", "", good); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/session?token=s3cret", "", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with query token, got %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Fatalf("health must stay open, got %d", w.Code)
	}
}

func TestEventsStreamRelaysNotifications(t *testing.T) {
	s, sess := newTestServer(t, DefaultConfig())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/session/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial events: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.events.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("events client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sess.hub.Trigger(hub.KindLike, hub.Notification{Kind: hub.KindLike, Session: "session.test", At: time.Now()})
	sess.hub.Trigger(hub.KindSignal, hub.Notification{Kind: hub.KindSignal, Session: "session.test", At: time.Now(), Strength: -70})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var like, signal Event
	if err := conn.ReadJSON(&like); err != nil {
		t.Fatalf("read like: %v", err)
	}
	if err := conn.ReadJSON(&signal); err != nil {
		t.Fatalf("read signal: %v", err)
	}
	if like.Kind != hub.KindLike || like.Session != "session.test" || like.Strength != nil {
		t.Fatalf("unexpected like event: %+v", like)
	}
	if signal.Kind != hub.KindSignal || signal.Strength == nil || *signal.Strength != -70 {
		t.Fatalf("unexpected signal event: %+v", signal)
	}
}

func TestEventsRejectsForeignOrigin(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig())
	r := httptest.NewRequest(http.MethodGet, "/session/events", nil)
	r.Header.Set("Origin", "http://evil.example")
	if s.checkOrigin(r) {
		t.Fatalf("foreign origin accepted")
	}
	r.Header.Set("Origin", "http://localhost:3000")
	if !s.checkOrigin(r) {
		t.Fatalf("configured origin rejected")
	}
}
