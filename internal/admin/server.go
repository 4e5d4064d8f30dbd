// Package admin serves the HTTP control surface for a running session.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/wearctl/internal/auth"
	"github.com/danmuck/wearctl/internal/hub"
	"github.com/danmuck/wearctl/internal/observability"
	"github.com/danmuck/wearctl/internal/wearable"
)

const DefaultListenAddr = "127.0.0.1:7080"

var ErrListenAddrRequired = errors.New("admin: listen address required")

type Config struct {
	ListenAddr  string
	Token       string
	CorsOrigins []string
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:  DefaultListenAddr,
		CorsOrigins: []string{"http://localhost:3000"},
	}
}

// Controller is the session surface the admin routes drive.
type Controller interface {
	Snapshot() wearable.Snapshot
	SendHaptic(times int) error
	SetColor(red, green, blue int) error
	Disconnect() error
	On(kind hub.Kind, o hub.Observer)
}

var _ Controller = (*wearable.Session)(nil)

type Server struct {
	cfg       Config
	sess      Controller
	validator auth.Validator
	router    *gin.Engine
	events    *broadcaster
	logger    zerolog.Logger
	appeared  time.Time
}

func New(cfg Config, sess Controller) *Server {
	observability.RegisterMetrics()
	logger := log.Logger.With().Str("component", "admin").Logger()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.SessionRequestLogger(logger, func() (string, string) {
		snap := sess.Snapshot()
		return snap.ID, snap.State.String()
	}))
	r.Use(observability.SessionRequestMetrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:       cfg,
		sess:      sess,
		validator: auth.ForToken(cfg.Token),
		router:    r,
		events:    newBroadcaster(logger),
		logger:    logger,
		appeared:  time.Now(),
	}
	for _, kind := range hub.Kinds() {
		sess.On(kind, s.events)
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.ListenAddr) == "" {
		return ErrListenAddrRequired
	}
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("admin listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": "wearctl",
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		snap := s.sess.Snapshot()
		status := http.StatusOK
		if snap.State != wearable.StateReady {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready": snap.State == wearable.StateReady,
			"state": snap.State,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	session := s.router.Group("/session", s.requireToken())
	session.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.sess.Snapshot())
	})
	session.POST("/haptic", s.handleHaptic)
	session.POST("/lights", s.handleLights)
	session.POST("/disconnect", func(c *gin.Context) {
		if err := s.sess.Disconnect(); err != nil {
			reqLog := observability.RequestLog(c, s.logger)
			reqLog.Warn().Err(err).Msg("disconnect command failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "disconnecting"})
	})
	session.GET("/events", s.handleEvents)
}

type hapticRequest struct {
	Times int `json:"times"`
}

func (s *Server) handleHaptic(c *gin.Context) {
	var req hapticRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if err := s.sess.SendHaptic(req.Times); err != nil {
		reqLog := observability.RequestLog(c, s.logger)
		reqLog.Warn().Err(err).Int("times", req.Times).Msg("haptic command failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type lightsRequest struct {
	R *int `json:"r" binding:"required"`
	G *int `json:"g" binding:"required"`
	B *int `json:"b" binding:"required"`
}

func (s *Server) handleLights(c *gin.Context) {
	var req lightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.sess.SetColor(*req.R, *req.G, *req.B); err != nil {
		reqLog := observability.RequestLog(c, s.logger)
		reqLog.Warn().Err(err).Msg("lights command failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleEvents(c *gin.Context) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		reqLog := observability.RequestLog(c, s.logger)
		reqLog.Warn().Err(err).Msg("events upgrade failed")
		return
	}
	cl := s.events.add(conn)
	reqLog := observability.RequestLog(c, s.logger)
	reqLog.Debug().Str("remote", c.Request.RemoteAddr).Msg("events client connected")

	go func() {
		defer s.events.remove(cl)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// requireToken enforces the bearer token when one is configured. Websocket
// clients that cannot set headers may pass ?token= instead.
func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.validator == nil {
			c.Next()
			return
		}
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			token = c.Query("token")
		}
		if err := s.validator.Validate(token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range normalizeOrigins(s.cfg.CorsOrigins) {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
