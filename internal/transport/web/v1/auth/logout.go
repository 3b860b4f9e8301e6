package auth

import (
	"log"
	"net/http"

	"github.com/EgorLis/collab-notes/internal/domain"
	"github.com/EgorLis/collab-notes/internal/transport/web/logx"
	"github.com/EgorLis/collab-notes/internal/transport/web/mw"
	v1 "github.com/EgorLis/collab-notes/internal/transport/web/v1"
)

type HandlerLogout struct {
	Log       *log.Logger
	Blacklist domain.TokenBlacklist
}

type logoutResponse struct {
	Revoked string `json:"revoked"` // jti
}

// Logout godoc
// @Summary     Logout (revoke token)
// @Description Помечает текущий токен как отозванный до истечения exp.
// @Tags        auth
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} domain.APIEnvelope{data=logoutResponse}
// @Failure     401 {object} domain.APIEnvelope
// @Failure     500 {object} domain.APIEnvelope
// @Router      /api/v1/auth/logout [delete]
func (h *HandlerLogout) Logout(w http.ResponseWriter, r *http.Request) {
	const op = "auth.logout"
	reqID := mw.RequestIDFromCtx(r.Context())
	logx.Info(h.Log, reqID, op, "start", "method", r.Method, "path", r.URL.Path)

	p, err := v1.Principal(r)
	if err != nil {
		logx.Error(h.Log, reqID, op, "no principal", err)
		v1.WriteDomainError(w, r, err)
		return
	}

	if err := h.Blacklist.Revoke(r.Context(), p.JTI, p.ExpiresAt); err != nil {
		logx.Error(h.Log, reqID, op, "revoke failed", err, "jti", p.JTI)
		v1.WriteDomainError(w, r, domain.ErrUnexpected)
		return
	}

	logx.Info(h.Log, reqID, op, "ok", "user_id", p.UserID, "jti", p.JTI)
	v1.WriteOKMessage(w, r, logoutResponse{Revoked: p.JTI}, "logged out")
}
