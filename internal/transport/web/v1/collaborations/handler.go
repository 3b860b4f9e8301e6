package collaborations

import (
	"log"
	"net/http"

	"github.com/EgorLis/collab-notes/internal/domain"
	"github.com/EgorLis/collab-notes/internal/transport/web/logx"
	"github.com/EgorLis/collab-notes/internal/transport/web/mw"
	v1 "github.com/EgorLis/collab-notes/internal/transport/web/v1"
)

type Handler struct {
	Log    *log.Logger
	Users  domain.UsersRepo
	Grants domain.CollaborationsRepo
	Access v1.NoteAccess
}

type createRequest struct {
	Email string            `json:"email"`
	Role  *domain.GrantRole `json:"role"`
}

type updateRequest struct {
	Role *domain.GrantRole `json:"role"`
}

// List godoc
// @Summary     List collaborators
// @Tags        collaborations
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "note id"
// @Success     200 {object} domain.APIEnvelope{data=[]domain.Collaboration}
// @Failure     403 {object} domain.APIEnvelope
// @Failure     404 {object} domain.APIEnvelope
// @Router      /api/v1/notes/{id}/collaborations [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	const op = "collaborations.list"
	reqID := mw.RequestIDFromCtx(r.Context())

	_, n, _, err := h.Access.FromRequest(r)
	if err != nil {
		logx.Error(h.Log, reqID, op, "access check failed", err, "path", r.URL.Path)
		v1.WriteDomainError(w, r, err)
		return
	}

	list, err := h.Grants.ListCollaborations(r.Context(), n.ID)
	if err != nil {
		logx.Error(h.Log, reqID, op, "list failed", err, "note_id", n.ID)
		v1.WriteDomainError(w, r, err)
		return
	}

	logx.Info(h.Log, reqID, op, "ok", "note_id", n.ID, "count", len(list))
	v1.WriteOKData(w, r, list)
}

// Create godoc
// @Summary     Add collaborator
// @Description Только владелец. Пользователь ищется по email; роль по умолчанию viewer.
// @Tags        collaborations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "note id"
// @Param       request body createRequest true "email, role (editor|viewer)"
// @Success     201 {object} domain.APIEnvelope{data=domain.Collaboration}
// @Failure     400 {object} domain.APIEnvelope
// @Failure     403 {object} domain.APIEnvelope
// @Failure     404 {object} domain.APIEnvelope
// @Failure     409 {object} domain.APIEnvelope
// @Failure     422 {object} domain.APIEnvelope
// @Router      /api/v1/notes/{id}/collaborations [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "collaborations.create"
	reqID := mw.RequestIDFromCtx(r.Context())

	n, ok := h.ownerOnly(w, r, op)
	if !ok {
		return
	}

	var req createRequest
	if err := v1.DecodeJSON(w, r, &req); err != nil {
		logx.Error(h.Log, reqID, op, "bad json", err)
		v1.WriteDomainError(w, r, err)
		return
	}
	email := domain.NormalizeEmail(req.Email)
	if !domain.ValidEmail(email) {
		err := domain.Invalid("email: invalid")
		logx.Error(h.Log, reqID, op, "validation failed", err)
		v1.WriteDomainError(w, r, err)
		return
	}
	role := domain.GrantViewer
	if req.Role != nil {
		role = *req.Role
	}

	u, err := h.Users.UserByEmail(r.Context(), email)
	if err != nil {
		logx.Error(h.Log, reqID, op, "user lookup failed", err, "email", email)
		v1.WriteDomainError(w, r, err)
		return
	}
	if u.ID == n.OwnerID {
		err := domain.Invalid("email: owner cannot be added as collaborator")
		logx.Error(h.Log, reqID, op, "owner as collaborator", err, "note_id", n.ID)
		v1.WriteDomainError(w, r, err)
		return
	}

	c, err := h.Grants.CreateCollaboration(r.Context(), n.ID, u.ID, role)
	if err != nil {
		logx.Error(h.Log, reqID, op, "create failed", err, "note_id", n.ID, "user_id", u.ID)
		v1.WriteDomainError(w, r, err)
		return
	}

	logx.Info(h.Log, reqID, op, "ok", "note_id", n.ID, "user_id", u.ID, "role", role.String())
	v1.WriteCreated(w, r, c, "collaborator added")
}

// Update godoc
// @Summary     Change collaborator role
// @Tags        collaborations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id  path int true "note id"
// @Param       cid path int true "collaboration id"
// @Param       request body updateRequest true "role (editor|viewer)"
// @Success     200 {object} domain.APIEnvelope{data=domain.Collaboration}
// @Failure     400 {object} domain.APIEnvelope
// @Failure     403 {object} domain.APIEnvelope
// @Failure     404 {object} domain.APIEnvelope
// @Router      /api/v1/notes/{id}/collaborations/{cid} [patch]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	const op = "collaborations.update"
	reqID := mw.RequestIDFromCtx(r.Context())

	n, ok := h.ownerOnly(w, r, op)
	if !ok {
		return
	}
	cid, err := v1.PathID(r, "cid")
	if err != nil {
		logx.Error(h.Log, reqID, op, "bad cid", err)
		v1.WriteDomainError(w, r, err)
		return
	}

	var req updateRequest
	if err := v1.DecodeJSON(w, r, &req); err != nil {
		logx.Error(h.Log, reqID, op, "bad json", err)
		v1.WriteDomainError(w, r, err)
		return
	}
	if req.Role == nil {
		err := domain.Invalid("role: required")
		logx.Error(h.Log, reqID, op, "validation failed", err)
		v1.WriteDomainError(w, r, err)
		return
	}

	c, err := h.Grants.UpdateCollaborationRole(r.Context(), n.ID, cid, *req.Role)
	if err != nil {
		logx.Error(h.Log, reqID, op, "update failed", err, "note_id", n.ID, "cid", cid)
		v1.WriteDomainError(w, r, err)
		return
	}

	logx.Info(h.Log, reqID, op, "ok", "note_id", n.ID, "cid", cid, "role", req.Role.String())
	v1.WriteOKMessage(w, r, c, "role updated")
}

// Delete godoc
// @Summary     Remove collaborator
// @Tags        collaborations
// @Produce     json
// @Security    BearerAuth
// @Param       id  path int true "note id"
// @Param       cid path int true "collaboration id"
// @Success     200 {object} domain.APIEnvelope
// @Failure     403 {object} domain.APIEnvelope
// @Failure     404 {object} domain.APIEnvelope
// @Router      /api/v1/notes/{id}/collaborations/{cid} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	const op = "collaborations.delete"
	reqID := mw.RequestIDFromCtx(r.Context())

	n, ok := h.ownerOnly(w, r, op)
	if !ok {
		return
	}
	cid, err := v1.PathID(r, "cid")
	if err != nil {
		logx.Error(h.Log, reqID, op, "bad cid", err)
		v1.WriteDomainError(w, r, err)
		return
	}

	if err := h.Grants.DeleteCollaboration(r.Context(), n.ID, cid); err != nil {
		logx.Error(h.Log, reqID, op, "delete failed", err, "note_id", n.ID, "cid", cid)
		v1.WriteDomainError(w, r, err)
		return
	}

	logx.Info(h.Log, reqID, op, "ok", "note_id", n.ID, "cid", cid)
	v1.WriteOKMessage(w, r, map[string]any{"id": cid}, "collaborator removed")
}

func (h *Handler) ownerOnly(w http.ResponseWriter, r *http.Request, op string) (domain.Note, bool) {
	reqID := mw.RequestIDFromCtx(r.Context())
	_, n, role, err := h.Access.FromRequest(r)
	if err == nil {
		err = v1.RequireOwner(role)
	}
	if err != nil {
		logx.Error(h.Log, reqID, op, "access check failed", err, "path", r.URL.Path)
		v1.WriteDomainError(w, r, err)
		return domain.Note{}, false
	}
	return n, true
}

