package auth

import (
	"log"
	"net/http"

	"github.com/EgorLis/collab-notes/internal/domain"
	"github.com/EgorLis/collab-notes/internal/transport/web/logx"
	"github.com/EgorLis/collab-notes/internal/transport/web/mw"
	v1 "github.com/EgorLis/collab-notes/internal/transport/web/v1"
)

type HandlerMe struct {
	Log   *log.Logger
	Users domain.UsersRepo
}

// Me godoc
// @Summary     Current user
// @Tags        auth
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} domain.APIEnvelope{data=domain.User}
// @Failure     401 {object} domain.APIEnvelope
// @Failure     404 {object} domain.APIEnvelope
// @Router      /api/v1/auth/me [get]
func (h *HandlerMe) Me(w http.ResponseWriter, r *http.Request) {
	const op = "auth.me"
	reqID := mw.RequestIDFromCtx(r.Context())

	p, err := v1.Principal(r)
	if err != nil {
		logx.Error(h.Log, reqID, op, "no principal", err)
		v1.WriteDomainError(w, r, err)
		return
	}

	u, err := h.Users.UserByID(r.Context(), p.UserID)
	if err != nil {
		logx.Error(h.Log, reqID, op, "user lookup failed", err, "user_id", p.UserID)
		v1.WriteDomainError(w, r, err)
		return
	}

	logx.Info(h.Log, reqID, op, "ok", "user_id", u.ID)
	v1.WriteOKData(w, r, u)
}
