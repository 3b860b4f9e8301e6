package web

import (
	"log"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/EgorLis/collab-notes/internal/docs"
	"github.com/EgorLis/collab-notes/internal/transport/web/mw"
	"github.com/EgorLis/collab-notes/internal/transport/web/v1/auth"
	"github.com/EgorLis/collab-notes/internal/transport/web/v1/collaborations"
	"github.com/EgorLis/collab-notes/internal/transport/web/v1/health"
	"github.com/EgorLis/collab-notes/internal/transport/web/v1/notes"
	"github.com/EgorLis/collab-notes/internal/transport/web/v1/operations"
	"github.com/EgorLis/collab-notes/internal/transport/web/v1/users"
	"github.com/EgorLis/collab-notes/internal/transport/web/ws"
)

type handlers struct {
	health   *health.Handler
	register *auth.HandlerRegister
	login    *auth.HandlerLogin
	logout   *auth.HandlerLogout
	me       *auth.HandlerMe
	users    *users.Handler
	notes    *notes.Handler
	collabs  *collaborations.Handler
	ops      *operations.Handler
	channel  *ws.Handler
}

func newRouter(h handlers, ad mw.AuthDeps, logger *log.Logger) http.Handler {
	mux := http.NewServeMux()
	private := func(f http.HandlerFunc) http.Handler { return mw.RequireAuth(ad, f) }

	// health
	mux.HandleFunc("GET /healthz", h.health.Liveness)
	mux.HandleFunc("GET /readyz", h.health.Readiness)

	// auth
	mux.HandleFunc("POST /api/v1/users", h.register.Register)
	mux.HandleFunc("POST /api/v1/auth/login", h.login.Login)
	mux.Handle("DELETE /api/v1/auth/logout", private(h.logout.Logout))
	mux.Handle("GET /api/v1/auth/me", private(h.me.Me))

	// users
	mux.Handle("GET /api/v1/users/search", private(h.users.Search))
	mux.Handle("PATCH /api/v1/users/me", private(h.users.UpdateMe))
	mux.Handle("PUT /api/v1/users/me/avatar", private(h.users.UploadAvatar))
	mux.Handle("GET /api/v1/users/{id}", private(h.users.GetOne))

	// notes
	mux.Handle("GET /api/v1/notes", private(h.notes.List))
	mux.Handle("POST /api/v1/notes", private(h.notes.Create))
	mux.Handle("GET /api/v1/notes/{id}", private(h.notes.GetOne))
	mux.Handle("PATCH /api/v1/notes/{id}", private(h.notes.Update))
	mux.Handle("DELETE /api/v1/notes/{id}", private(h.notes.Delete))

	// collaborations
	mux.Handle("GET /api/v1/notes/{id}/collaborations", private(h.collabs.List))
	mux.Handle("POST /api/v1/notes/{id}/collaborations", private(h.collabs.Create))
	mux.Handle("PATCH /api/v1/notes/{id}/collaborations/{cid}", private(h.collabs.Update))
	mux.Handle("DELETE /api/v1/notes/{id}/collaborations/{cid}", private(h.collabs.Delete))

	// operations
	mux.Handle("GET /api/v1/notes/{id}/operations", private(h.ops.List))
	mux.Handle("POST /api/v1/notes/{id}/operations", private(h.ops.Create))
	mux.Handle("POST /api/v1/notes/{id}/operations/{op_id}/apply", private(h.ops.Apply))

	// real-time
	mux.Handle("GET /api/v1/notes/{id}/channel", private(h.channel.Channel))

	// swagger
	mux.Handle("GET /swagger/", httpSwagger.WrapHandler)

	return mw.WithRequestID(mw.Logging(logger)(mux))
}
