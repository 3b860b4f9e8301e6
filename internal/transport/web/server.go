package web

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/EgorLis/collab-notes/internal/access"
	"github.com/EgorLis/collab-notes/internal/collab"
	"github.com/EgorLis/collab-notes/internal/config"
	"github.com/EgorLis/collab-notes/internal/domain"
	"github.com/EgorLis/collab-notes/internal/transport/web/mw"
	v1 "github.com/EgorLis/collab-notes/internal/transport/web/v1"
	"github.com/EgorLis/collab-notes/internal/transport/web/v1/auth"
	"github.com/EgorLis/collab-notes/internal/transport/web/v1/collaborations"
	"github.com/EgorLis/collab-notes/internal/transport/web/v1/health"
	"github.com/EgorLis/collab-notes/internal/transport/web/v1/notes"
	"github.com/EgorLis/collab-notes/internal/transport/web/v1/operations"
	"github.com/EgorLis/collab-notes/internal/transport/web/v1/users"
	"github.com/EgorLis/collab-notes/internal/transport/web/ws"
)

type Server struct {
	log     *log.Logger
	server  *http.Server
	cfg     *config.Config
	channel *ws.Handler
}

func child(l *log.Logger, name string) *log.Logger {
	return log.New(l.Writer(), l.Prefix()+"["+name+"] ", l.Flags())
}

// New собирает хендлеры. ctx становится базовым контекстом всех запросов,
// его отмена закрывает живые websocket-сессии.
func New(ctx context.Context, logger *log.Logger, cfg *config.Config, rep Repos, ad AuthDeps, rt Realtime, blobs domain.BlobStorage, probes Probes) *Server {
	checker := access.NewChecker(rep.Grants)
	na := v1.NoteAccess{Notes: rep.Notes, Policy: checker}
	authLog := child(logger, "auth")

	h := handlers{
		health:   &health.Handler{Log: child(logger, "health"), DB: probes.DB, Cache: probes.Cache, Storage: probes.Storage},
		register: &auth.HandlerRegister{Log: authLog, Users: rep.Users, Hasher: ad.Hasher, Tokens: ad.Tokens},
		login:    &auth.HandlerLogin{Log: authLog, Users: rep.Users, Hasher: ad.Hasher, Tokens: ad.Tokens},
		logout:   &auth.HandlerLogout{Log: authLog, Blacklist: ad.Blacklist},
		me:       &auth.HandlerMe{Log: authLog, Users: rep.Users},
		users:    &users.Handler{Log: child(logger, "users"), Users: rep.Users, Hasher: ad.Hasher, Storage: blobs},
		notes:    &notes.Handler{Log: child(logger, "notes"), Notes: rep.Notes, Access: na},
		collabs:  &collaborations.Handler{Log: child(logger, "collaborations"), Users: rep.Users, Grants: rep.Grants, Access: na},
		ops:      &operations.Handler{Log: child(logger, "operations"), Ops: rep.Ops, Access: na},
		channel: ws.New(child(logger, "ws"), collab.Deps{
			Log:      child(logger, "collab"),
			Notes:    rep.Notes,
			Policy:   checker,
			Ops:      rep.Ops,
			Presence: rt.Presence,
			Bus:      rt.Bus,
			Now:      time.Now,
		}, rep.Users, ws.Config{
			MaxMessageBytes: cfg.WSMaxMessageBytes,
			WriteTimeout:    cfg.WSWriteTimeout,
			PongTimeout:     cfg.WSPongTimeout,
			RateLimit:       cfg.WSRateLimit,
			RateBurst:       cfg.WSRateBurst,
			AllowedOrigins:  cfg.WSAllowedOrigins,
		}),
	}

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           newRouter(h, mw.AuthDeps{Tokens: ad.Tokens, Blacklist: ad.Blacklist}, logger),
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 2 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &Server{server: srv, cfg: cfg, log: logger, channel: h.channel}
}

func (s *Server) Run() {
	s.log.Printf("started on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Fatalf("error: %v", err)
	}
}

// Close останавливает listener и ждёт закрытия websocket-сессий.
// Базовый контекст к этому моменту должен быть отменён, иначе сессии живут до ctx.
func (s *Server) Close(ctx context.Context) {
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Printf("forced to shutdown: %v", err)
	}
	if err := s.channel.Wait(ctx); err != nil {
		s.log.Printf("ws: %v", err)
	}
	s.log.Println("exited gracefully")
}
