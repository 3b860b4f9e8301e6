package auth

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/EgorLis/collab-notes/internal/domain"
	"github.com/EgorLis/collab-notes/internal/transport/web/logx"
	"github.com/EgorLis/collab-notes/internal/transport/web/mw"
	v1 "github.com/EgorLis/collab-notes/internal/transport/web/v1"
)

// HandlerRegister обрабатывает POST /api/v1/users
type HandlerRegister struct {
	Log    *log.Logger
	Users  domain.UsersRepo
	Hasher domain.PasswordHasher
	Tokens domain.TokenManager
}

type registerRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	AvatarURL string `json:"avatar_url"`
}

// tokenResponse: ответ регистрации и логина
type tokenResponse struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

func (req *registerRequest) validate() error {
	var details []string
	if !domain.ValidName(req.Name) {
		details = append(details, "name: required")
	}
	if !domain.ValidEmail(req.Email) {
		details = append(details, "email: invalid")
	}
	if !domain.ValidPassword(req.Password) {
		details = append(details, "password: at least 6 characters")
	}
	return domain.Invalid(details...)
}

// Register godoc
// @Summary     Register new user
// @Description Создаёт пользователя и сразу выдаёт JWT.
// @Tags        auth
// @Accept      json
// @Produce     json
// @Param       request body registerRequest true "name, email, password, avatar_url"
// @Success     201 {object} domain.APIEnvelope{data=tokenResponse}
// @Failure     400 {object} domain.APIEnvelope
// @Failure     409 {object} domain.APIEnvelope
// @Failure     422 {object} domain.APIEnvelope
// @Failure     500 {object} domain.APIEnvelope
// @Router      /api/v1/users [post]
func (h *HandlerRegister) Register(w http.ResponseWriter, r *http.Request) {
	const op = "auth.register"
	reqID := mw.RequestIDFromCtx(r.Context())
	logx.Info(h.Log, reqID, op, "start", "method", r.Method, "path", r.URL.Path)

	var req registerRequest
	if err := v1.DecodeJSON(w, r, &req); err != nil {
		logx.Error(h.Log, reqID, op, "bad json", err)
		v1.WriteDomainError(w, r, err)
		return
	}
	req.Email = domain.NormalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)

	if err := req.validate(); err != nil {
		logx.Error(h.Log, reqID, op, "validation failed", err, "email", req.Email)
		v1.WriteDomainError(w, r, err)
		return
	}

	hash, err := h.Hasher.Hash(req.Password)
	if err != nil {
		logx.Error(h.Log, reqID, op, "hash failed", err)
		v1.WriteDomainError(w, r, domain.ErrUnexpected)
		return
	}

	u, err := h.Users.CreateUser(r.Context(), domain.User{
		Email:     req.Email,
		Name:      req.Name,
		AvatarURL: strings.TrimSpace(req.AvatarURL),
		PassHash:  []byte(hash),
	})
	if err != nil {
		logx.Error(h.Log, reqID, op, "create user failed", err, "email", req.Email)
		if errors.Is(err, domain.ErrConflict) {
			v1.WriteDomainError(w, r, domain.Invalid("email: already taken"))
			return
		}
		v1.WriteDomainError(w, r, err)
		return
	}

	token, _, err := h.Tokens.Issue(r.Context(), u.ID, u.Email)
	if err != nil {
		logx.Error(h.Log, reqID, op, "issue token failed", err, "user_id", u.ID)
		v1.WriteDomainError(w, r, domain.ErrUnexpected)
		return
	}

	logx.Info(h.Log, reqID, op, "ok", "user_id", u.ID, "email", u.Email)
	v1.WriteCreated(w, r, tokenResponse{User: u, Token: string(token)}, "user registered")
}
