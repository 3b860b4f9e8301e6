package users

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/EgorLis/collab-notes/internal/domain"
	"github.com/EgorLis/collab-notes/internal/transport/web/logx"
	"github.com/EgorLis/collab-notes/internal/transport/web/mw"
	v1 "github.com/EgorLis/collab-notes/internal/transport/web/v1"
)

const (
	searchMinQuery = 2
	searchLimit    = 10
	// запас на multipart-обвязку вокруг файла
	avatarFormLimit = 6 << 20
)

type Handler struct {
	Log     *log.Logger
	Users   domain.UsersRepo
	Hasher  domain.PasswordHasher
	Storage domain.BlobStorage
}

type updateRequest struct {
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatar_url"`
	Password  *string `json:"password"`
}

// GetOne godoc
// @Summary     Get user profile
// @Description Доступно самому пользователю и его соавторам по общей заметке.
// @Tags        users
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "user id"
// @Success     200 {object} domain.APIEnvelope{data=domain.PublicUser}
// @Failure     401 {object} domain.APIEnvelope
// @Failure     403 {object} domain.APIEnvelope
// @Failure     404 {object} domain.APIEnvelope
// @Router      /api/v1/users/{id} [get]
func (h *Handler) GetOne(w http.ResponseWriter, r *http.Request) {
	const op = "users.get"
	reqID := mw.RequestIDFromCtx(r.Context())

	p, err := v1.Principal(r)
	if err != nil {
		v1.WriteDomainError(w, r, err)
		return
	}
	id, err := v1.PathID(r, "id")
	if err != nil {
		logx.Error(h.Log, reqID, op, "bad id", err)
		v1.WriteDomainError(w, r, err)
		return
	}

	u, err := h.Users.UserByID(r.Context(), id)
	if err != nil {
		logx.Error(h.Log, reqID, op, "user lookup failed", err, "id", id)
		v1.WriteDomainError(w, r, err)
		return
	}
	if id != p.UserID {
		shared, err := h.Users.UsersShareNote(r.Context(), p.UserID, id)
		if err != nil {
			logx.Error(h.Log, reqID, op, "share check failed", err, "id", id)
			v1.WriteDomainError(w, r, err)
			return
		}
		if !shared {
			logx.Error(h.Log, reqID, op, "no common note", domain.ErrForbidden, "user_id", p.UserID, "id", id)
			v1.WriteDomainError(w, r, domain.ErrForbidden)
			return
		}
	}

	logx.Info(h.Log, reqID, op, "ok", "user_id", p.UserID, "id", id)
	v1.WriteOKData(w, r, u.Public())
}

// UpdateMe godoc
// @Summary     Update own profile
// @Tags        users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body updateRequest true "name, avatar_url, password"
// @Success     200 {object} domain.APIEnvelope{data=domain.User}
// @Failure     400 {object} domain.APIEnvelope
// @Failure     401 {object} domain.APIEnvelope
// @Failure     422 {object} domain.APIEnvelope
// @Router      /api/v1/users/me [patch]
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	const op = "users.update_me"
	reqID := mw.RequestIDFromCtx(r.Context())

	p, err := v1.Principal(r)
	if err != nil {
		v1.WriteDomainError(w, r, err)
		return
	}

	var req updateRequest
	if err := v1.DecodeJSON(w, r, &req); err != nil {
		logx.Error(h.Log, reqID, op, "bad json", err)
		v1.WriteDomainError(w, r, err)
		return
	}

	upd, err := h.buildUpdate(req)
	if err != nil {
		logx.Error(h.Log, reqID, op, "validation failed", err, "user_id", p.UserID)
		v1.WriteDomainError(w, r, err)
		return
	}

	u, err := h.Users.UpdateUser(r.Context(), p.UserID, upd)
	if err != nil {
		logx.Error(h.Log, reqID, op, "update failed", err, "user_id", p.UserID)
		v1.WriteDomainError(w, r, err)
		return
	}

	logx.Info(h.Log, reqID, op, "ok", "user_id", u.ID)
	v1.WriteOKMessage(w, r, u, "profile updated")
}

func (h *Handler) buildUpdate(req updateRequest) (domain.UserUpdate, error) {
	var (
		upd     domain.UserUpdate
		details []string
	)
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if !domain.ValidName(name) {
			details = append(details, "name: required")
		}
		upd.Name = &name
	}
	if req.AvatarURL != nil {
		url := strings.TrimSpace(*req.AvatarURL)
		upd.AvatarURL = &url
	}
	if req.Password != nil {
		if !domain.ValidPassword(*req.Password) {
			details = append(details, "password: at least 6 characters")
		}
	}
	if err := domain.Invalid(details...); err != nil {
		return domain.UserUpdate{}, err
	}
	if req.Password != nil {
		hash, err := h.Hasher.Hash(*req.Password)
		if err != nil {
			return domain.UserUpdate{}, fmt.Errorf("hash: %w", err)
		}
		upd.PassHash = []byte(hash)
	}
	return upd, nil
}

// Search godoc
// @Summary     Search users
// @Description Поиск по имени или email (минимум 2 символа), не включая себя; до 10 результатов.
// @Tags        users
// @Produce     json
// @Security    BearerAuth
// @Param       q query string true "query"
// @Success     200 {object} domain.APIEnvelope{data=[]domain.PublicUser}
// @Failure     400 {object} domain.APIEnvelope
// @Failure     401 {object} domain.APIEnvelope
// @Router      /api/v1/users/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	const op = "users.search"
	reqID := mw.RequestIDFromCtx(r.Context())

	p, err := v1.Principal(r)
	if err != nil {
		v1.WriteDomainError(w, r, err)
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if utf8.RuneCountInString(q) < searchMinQuery {
		logx.Error(h.Log, reqID, op, "query too short", domain.ErrBadParams, "q", q)
		v1.WriteDomainError(w, r, domain.ErrBadParams)
		return
	}

	found, err := h.Users.SearchUsers(r.Context(), q, p.UserID, searchLimit)
	if err != nil {
		logx.Error(h.Log, reqID, op, "search failed", err, "q", q)
		v1.WriteDomainError(w, r, err)
		return
	}
	out := make([]domain.PublicUser, 0, len(found))
	for _, u := range found {
		out = append(out, u.Public())
	}

	logx.Info(h.Log, reqID, op, "ok", "q", q, "found", len(out))
	v1.WriteOKData(w, r, out)
}

// UploadAvatar godoc
// @Summary     Upload avatar
// @Description multipart: avatar(file, image/*, до 5MB). Кладёт файл в S3 и обновляет avatar_url.
// @Tags        users
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       avatar formData file true "image"
// @Success     200 {object} domain.APIEnvelope{data=domain.User}
// @Failure     400 {object} domain.APIEnvelope
// @Failure     401 {object} domain.APIEnvelope
// @Failure     500 {object} domain.APIEnvelope
// @Router      /api/v1/users/me/avatar [put]
func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	const op = "users.upload_avatar"
	reqID := mw.RequestIDFromCtx(r.Context())

	p, err := v1.Principal(r)
	if err != nil {
		v1.WriteDomainError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, avatarFormLimit)
	if err := r.ParseMultipartForm(avatarFormLimit); err != nil {
		logx.Error(h.Log, reqID, op, "parse form failed", err)
		v1.WriteDomainError(w, r, domain.ErrBadParams)
		return
	}
	file, hdr, err := r.FormFile("avatar")
	if err != nil {
		logx.Error(h.Log, reqID, op, "missing avatar", err)
		v1.WriteDomainError(w, r, domain.ErrBadParams)
		return
	}
	defer file.Close()

	mime := hdr.Header.Get("Content-Type")
	if !strings.HasPrefix(mime, "image/") {
		logx.Error(h.Log, reqID, op, "not an image", domain.ErrBadParams, "mime", mime)
		v1.WriteDomainError(w, r, domain.Invalid("avatar: must be an image"))
		return
	}

	res, err := h.Storage.Put(r.Context(), file, hdr.Filename, mime)
	if err != nil {
		logx.Error(h.Log, reqID, op, "storage put failed", err)
		if errors.Is(err, domain.ErrBadParams) {
			v1.WriteDomainError(w, r, err)
			return
		}
		v1.WriteDomainError(w, r, domain.ErrUnexpected)
		return
	}

	url := h.Storage.PublicURL(res.StorageKey)
	u, err := h.Users.UpdateUser(r.Context(), p.UserID, domain.UserUpdate{AvatarURL: &url})
	if err != nil {
		logx.Error(h.Log, reqID, op, "update user failed", err, "user_id", p.UserID)
		v1.WriteDomainError(w, r, err)
		return
	}

	logx.Info(h.Log, reqID, op, "ok", "user_id", u.ID, "key", res.StorageKey, "size", res.Size)
	v1.WriteOKData(w, r, u)
}
