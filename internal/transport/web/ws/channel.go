// Package ws: websocket-транспорт канала заметки поверх collab.Session.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/EgorLis/collab-notes/internal/collab"
	"github.com/EgorLis/collab-notes/internal/domain"
	"github.com/EgorLis/collab-notes/internal/transport/web/logx"
	"github.com/EgorLis/collab-notes/internal/transport/web/mw"
	v1 "github.com/EgorLis/collab-notes/internal/transport/web/v1"
)

// Управляющие кадры пишет сам транспорт, мимо шины.
const (
	FrameConfirm = "confirm_subscription"
	FrameReject  = "reject_subscription"
	FrameError   = "error"
)

type controlFrame struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
}

type Config struct {
	MaxMessageBytes int64
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	RateLimit       float64
	RateBurst       int
	// Пусто → только same-origin, "*" → любой origin.
	AllowedOrigins []string
	// Сколько даём на user_left и уборку присутствия после разрыва
	CloseTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 64 << 10
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 50
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 100
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 5 * time.Second
	}
	return c
}

type UserFinder interface {
	UserByID(ctx context.Context, id domain.UserID) (domain.User, error)
}

type Handler struct {
	log      *log.Logger
	deps     collab.Deps
	users    UserFinder
	cfg      Config
	upgrader websocket.Upgrader
	// живые обработчики канала; http.Server.Shutdown не ждёт hijacked-соединений
	live sync.WaitGroup
}

var errPeerClosed = errors.New("peer closed")

func New(l *log.Logger, deps collab.Deps, users UserFinder, cfg Config) *Handler {
	cfg = cfg.withDefaults()
	h := &Handler{log: l, deps: deps, users: users, cfg: cfg}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4 << 10,
		WriteBufferSize: 4 << 10,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

// Wait ждёт, пока все сессии отработают Close (presence leave, user_left).
// Вызывать после отмены базового контекста сервера.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.live.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sessions still closing: %w", ctx.Err())
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Channel godoc
// @Summary     Note channel (websocket)
// @Description Апгрейд до websocket. Первый кадр: confirm_subscription, reject_subscription или {"type":"error","error":"not_found"}.
// @Tags        channel
// @Security    BearerAuth
// @Param       id    path  int    true  "note id"
// @Param       token query string false "JWT (браузерный websocket не шлёт заголовки)"
// @Success     101
// @Failure     400 {object} domain.APIEnvelope
// @Failure     401 {object} domain.APIEnvelope
// @Router      /api/v1/notes/{id}/channel [get]
func (h *Handler) Channel(w http.ResponseWriter, r *http.Request) {
	const op = "ws.channel"
	reqID := mw.RequestIDFromCtx(r.Context())

	// Add до Upgrade: пока соединение не hijacked, его ждёт Shutdown,
	// значит Add всегда случается раньше Wait.
	h.live.Add(1)
	defer h.live.Done()

	p, err := v1.Principal(r)
	if err != nil {
		v1.WriteDomainError(w, r, err)
		return
	}
	noteID, err := v1.PathID(r, "id")
	if err != nil {
		logx.Error(h.log, reqID, op, "bad id", err)
		v1.WriteDomainError(w, r, err)
		return
	}
	u, err := h.users.UserByID(r.Context(), p.UserID)
	if err != nil {
		logx.Error(h.log, reqID, op, "user lookup failed", err, "user_id", p.UserID)
		v1.WriteDomainError(w, r, domain.ErrUnauth)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// апгрейдер уже ответил клиенту
		logx.Error(h.log, reqID, op, "upgrade failed", err, "note_id", noteID)
		return
	}
	defer conn.Close()

	sess := collab.NewSession(h.deps, u.Public(), noteID)
	logx.Info(h.log, reqID, op, "connected", "session", sess.ID(), "note_id", noteID, "user_id", u.ID)

	outcome, err := sess.Open(r.Context())
	switch {
	case errors.Is(err, domain.ErrNotFound):
		logx.Error(h.log, reqID, op, "note not found", err, "note_id", noteID)
		h.finish(conn, controlFrame{Type: FrameError, Error: "not_found"})
		return
	case err != nil:
		logx.Error(h.log, reqID, op, "open failed", err, "note_id", noteID)
		h.finish(conn, controlFrame{Type: FrameError, Error: "unexpected"})
		return
	case outcome == collab.OutcomeRejected:
		logx.Info(h.log, reqID, op, "rejected", "note_id", noteID, "user_id", u.ID)
		h.finish(conn, controlFrame{Type: FrameReject})
		return
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.cfg.CloseTimeout)
		defer cancel()
		sess.Close(ctx)
		logx.Info(h.log, reqID, op, "disconnected", "session", sess.ID(), "dropped", sess.Subscription().Dropped())
	}()

	if err := h.writeJSON(conn, controlFrame{Type: FrameConfirm}); err != nil {
		logx.Error(h.log, reqID, op, "confirm write failed", err)
		return
	}

	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error { return h.readPump(gctx, conn, sess, reqID) })
	g.Go(func() error { return h.writePump(gctx, conn, sess) })
	g.Go(func() error {
		// разблокировать ReadMessage при отмене
		<-gctx.Done()
		_ = conn.SetReadDeadline(time.Now())
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errPeerClosed) && !errors.Is(err, context.Canceled) {
		logx.Error(h.log, reqID, op, "session ended", err, "session", sess.ID())
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(h.cfg.WriteTimeout))
}

func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, sess *collab.Session, reqID string) error {
	const op = "ws.read"
	conn.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})
	limiter := rate.NewLimiter(rate.Limit(h.cfg.RateLimit), h.cfg.RateBurst)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return errPeerClosed
			}
			return fmt.Errorf("read: %w", err)
		}
		// любой кадр от клиента продлевает дедлайн
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))

		if !limiter.Allow() {
			logx.Error(h.log, reqID, op, "rate limited", domain.ErrBadParams, "session", sess.ID())
			continue
		}
		if err := sess.Receive(ctx, msg); err != nil {
			if errors.Is(err, collab.ErrNotSubscribed) {
				return err
			}
			// malformed, forbidden и прочее: молча дропаем
			logx.Error(h.log, reqID, op, "message dropped", err, "session", sess.ID(), "size", len(msg))
		}
	}
}

func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, sess *collab.Session) error {
	pingEvery := h.cfg.PongTimeout * 9 / 10
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	sub := sess.Subscription()
	self := sess.ID()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.Done():
			return fmt.Errorf("subscription closed: %w", domain.ErrUnexpected)
		case msg := <-sub.C():
			if collab.IsEcho(msg, self) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func (h *Handler) writeJSON(conn *websocket.Conn, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, raw)
}

// finish пишет последний управляющий кадр и закрывает соединение.
func (h *Handler) finish(conn *websocket.Conn, f controlFrame) {
	if err := h.writeJSON(conn, f); err != nil {
		h.log.Printf("write %s frame: %v", f.Type, err)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, f.Type),
		time.Now().Add(h.cfg.WriteTimeout))
}
