package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/cwrk-planet/race-service/internal/domain"
	"github.com/cwrk-planet/race-service/internal/metrics"
	"github.com/cwrk-planet/race-service/internal/security"
	"github.com/cwrk-planet/race-service/internal/tracking"
	"github.com/cwrk-planet/race-service/pkg/logger"
)

const writeWait = 5 * time.Second

// Engine is the subset of the race engine driven by socket events.
type Engine interface {
	Connect(connID string)
	Disconnect(connID string)
	CreateRace(ctx context.Context, connID string, cmd tracking.CreateRace) error
	JoinRace(ctx context.Context, connID string, cmd tracking.JoinRace) error
	LeaveRace(ctx context.Context, connID string, cmd tracking.LeaveRace) error
	StartRace(ctx context.Context, connID string, cmd tracking.RaceStarted) error
	UpdateParticipant(ctx context.Context, connID string, cmd tracking.ParticipantUpdate) error
	EndRace(ctx context.Context, connID string, cmd tracking.RaceEnded) error
}

type Config struct {
	PingEvery     time.Duration
	ReadLimit     int64
	SendBuffer    int
	RatePerSecond float64
	Burst         int
}

func (c Config) withDefaults() Config {
	if c.PingEvery <= 0 {
		c.PingEvery = 15 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 64 << 10
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 20
	}
	if c.Burst <= 0 {
		c.Burst = 40
	}
	return c
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	engine   Engine
	verifier *security.Verifier // nil disables identity binding
	cfg      Config
}

func NewServer(hub *Hub, engine Engine, verifier *security.Verifier, cfg Config) *Server {
	return &Server{
		hub:      hub,
		engine:   engine,
		verifier: verifier,
		cfg:      cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS serves GET /ws. With auth configured the token comes from the
// Authorization header or the access_token query parameter.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	var subject string
	if s.verifier != nil {
		token := security.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			token = strings.TrimSpace(r.URL.Query().Get("access_token"))
		}
		if token == "" {
			http.Error(w, "missing access_token", http.StatusUnauthorized)
			return
		}
		sub, err := s.verifier.UserID(token)
		if err != nil {
			slog.Debug("ws auth rejected", "err", err)
			http.Error(w, "invalid access_token", http.StatusUnauthorized)
			return
		}
		subject = sub
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newClient(uuid.NewString(), subject, s.cfg.SendBuffer)
	log := slog.Default().With("conn_id", c.id)
	if subject != "" {
		log = log.With("subject", subject)
	}
	ctx := logger.WithContext(r.Context(), log)

	s.hub.Register(c)
	s.engine.Connect(c.id)
	metrics.WSConnections.Inc()
	log.Debug("ws connected", "remote", r.RemoteAddr)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(conn, c)
	}()

	s.readLoop(ctx, conn, c)

	s.hub.Remove(c.id)
	s.engine.Disconnect(c.id)
	metrics.WSConnections.Dec()

	<-writerDone
	if err := conn.Close(); err != nil {
		log.Debug("ws close failed", "err", err)
	}
	log.Debug("ws disconnected")
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	limiter := rate.NewLimiter(rate.Limit(s.cfg.RatePerSecond), s.cfg.Burst)

	conn.SetReadLimit(s.cfg.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingEvery))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingEvery))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.FromContext(ctx).Debug("ws read failed", "err", err)
			}
			return
		}
		s.handle(ctx, c, limiter, data)
	}
}

// handle decodes one frame and routes it to the engine. Anything malformed
// is dropped without a reply. Only position updates count against limiter.
func (s *Server) handle(ctx context.Context, c *client, limiter *rate.Limiter, data []byte) {
	log := logger.FromContext(ctx)

	typ, cmd, err := decodeEvent(data)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, ErrUnknownEvent) {
			reason = "unknown_type"
		}
		metrics.WSEventsDropped.WithLabelValues(reason).Inc()
		log.Debug("ws event dropped", "reason", reason, "err", err)
		return
	}
	if typ == tracking.EventParticipantUpdate && !limiter.Allow() {
		metrics.WSEventsDropped.WithLabelValues("rate_limited").Inc()
		return
	}
	metrics.WSEventsReceived.WithLabelValues(typ).Inc()

	if c.userID != "" {
		if claimed, ok := claimedUser(cmd); ok && strings.TrimSpace(claimed) != c.userID {
			metrics.WSEventsDropped.WithLabelValues("identity").Inc()
			log.Warn("ws event dropped: userId does not match token", "type", typ, "claimed", claimed)
			return
		}
	}

	switch err := s.dispatch(ctx, c.id, cmd); {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidEvent):
		metrics.WSEventsDropped.WithLabelValues("invalid").Inc()
		log.Debug("ws event dropped", "type", typ, "reason", "invalid", "err", err)
	default:
		log.Warn("ws event failed", "type", typ, "err", err)
	}
}

func (s *Server) dispatch(ctx context.Context, connID string, cmd any) error {
	switch c := cmd.(type) {
	case *tracking.CreateRace:
		return s.engine.CreateRace(ctx, connID, *c)
	case *tracking.JoinRace:
		return s.engine.JoinRace(ctx, connID, *c)
	case *tracking.LeaveRace:
		return s.engine.LeaveRace(ctx, connID, *c)
	case *tracking.RaceStarted:
		return s.engine.StartRace(ctx, connID, *c)
	case *tracking.ParticipantUpdate:
		return s.engine.UpdateParticipant(ctx, connID, *c)
	case *tracking.RaceEnded:
		return s.engine.EndRace(ctx, connID, *c)
	}
	return ErrUnknownEvent
}

// writeLoop drains the outbox and keeps the peer alive with pings. It exits
// when the hub closes the outbox or a write fails.
func (s *Server) writeLoop(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(s.cfg.PingEvery)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = conn.Close() // unblocks the read loop
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
