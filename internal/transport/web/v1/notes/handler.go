package notes

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/EgorLis/collab-notes/internal/domain"
	"github.com/EgorLis/collab-notes/internal/transport/web/logx"
	"github.com/EgorLis/collab-notes/internal/transport/web/mw"
	v1 "github.com/EgorLis/collab-notes/internal/transport/web/v1"
)

type Handler struct {
	Log    *log.Logger
	Notes  domain.NotesRepo
	Access v1.NoteAccess
}

type noteRequest struct {
	Title         *string               `json:"title"`
	Content       json.RawMessage       `json:"content"`
	DocumentState *domain.DocumentState `json:"document_state"`
}

// documentState: nil, если клиент поле не прислал
func (req noteRequest) documentState() (*domain.DocumentState, error) {
	if req.DocumentState == nil {
		return nil, nil
	}
	st := *req.DocumentState
	if st.Version < 0 {
		return nil, domain.Invalid("document_state: version must be >= 0")
	}
	if st.Operations == nil {
		st.Operations = []domain.OperationSummary{}
	}
	return &st, nil
}

type noteResponse struct {
	domain.Note
	UserRole domain.Role `json:"user_role"`
}

// List godoc
// @Summary     List notes
// @Description Свои и расшаренные заметки с ролью и числом соавторов.
// @Tags        notes
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} domain.APIEnvelope{data=[]domain.NoteSummary}
// @Failure     401 {object} domain.APIEnvelope
// @Router      /api/v1/notes [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	const op = "notes.list"
	reqID := mw.RequestIDFromCtx(r.Context())

	p, err := v1.Principal(r)
	if err != nil {
		v1.WriteDomainError(w, r, err)
		return
	}

	list, err := h.Notes.NotesAccessibleBy(r.Context(), p.UserID)
	if err != nil {
		logx.Error(h.Log, reqID, op, "list failed", err, "user_id", p.UserID)
		v1.WriteDomainError(w, r, err)
		return
	}

	logx.Info(h.Log, reqID, op, "ok", "user_id", p.UserID, "count", len(list))
	v1.WriteOKData(w, r, list)
}

// Create godoc
// @Summary     Create note
// @Tags        notes
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body noteRequest true "title, content, document_state"
// @Success     201 {object} domain.APIEnvelope{data=noteResponse}
// @Failure     400 {object} domain.APIEnvelope
// @Failure     401 {object} domain.APIEnvelope
// @Failure     422 {object} domain.APIEnvelope
// @Router      /api/v1/notes [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "notes.create"
	reqID := mw.RequestIDFromCtx(r.Context())

	p, err := v1.Principal(r)
	if err != nil {
		v1.WriteDomainError(w, r, err)
		return
	}

	var req noteRequest
	if err := v1.DecodeJSON(w, r, &req); err != nil {
		logx.Error(h.Log, reqID, op, "bad json", err)
		v1.WriteDomainError(w, r, err)
		return
	}
	var title string
	if req.Title != nil {
		title = strings.TrimSpace(*req.Title)
	}
	if !domain.ValidTitle(title) {
		err := domain.Invalid("title: required")
		logx.Error(h.Log, reqID, op, "validation failed", err)
		v1.WriteDomainError(w, r, err)
		return
	}
	st, err := req.documentState()
	if err != nil {
		logx.Error(h.Log, reqID, op, "validation failed", err)
		v1.WriteDomainError(w, r, err)
		return
	}

	n := domain.Note{OwnerID: p.UserID, Title: title, Content: req.Content, DocumentState: domain.NewDocumentState()}
	if st != nil {
		n.DocumentState = *st
	}
	n.ApplyDefaults()
	n, err = h.Notes.CreateNote(r.Context(), n)
	if err != nil {
		logx.Error(h.Log, reqID, op, "create failed", err, "user_id", p.UserID)
		v1.WriteDomainError(w, r, err)
		return
	}

	logx.Info(h.Log, reqID, op, "ok", "user_id", p.UserID, "note_id", n.ID)
	v1.WriteCreated(w, r, noteResponse{Note: n, UserRole: domain.RoleOwner}, "note created")
}

// GetOne godoc
// @Summary     Get note
// @Tags        notes
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "note id"
// @Success     200 {object} domain.APIEnvelope{data=noteResponse}
// @Failure     401 {object} domain.APIEnvelope
// @Failure     403 {object} domain.APIEnvelope
// @Failure     404 {object} domain.APIEnvelope
// @Router      /api/v1/notes/{id} [get]
func (h *Handler) GetOne(w http.ResponseWriter, r *http.Request) {
	const op = "notes.get"
	reqID := mw.RequestIDFromCtx(r.Context())

	n, role, ok := h.load(w, r, op)
	if !ok {
		return
	}

	logx.Info(h.Log, reqID, op, "ok", "note_id", n.ID, "role", string(role))
	v1.WriteOKData(w, r, noteResponse{Note: n, UserRole: role})
}

// Update godoc
// @Summary     Update note
// @Description Требует права редактирования.
// @Tags        notes
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "note id"
// @Param       request body noteRequest true "title, content, document_state"
// @Success     200 {object} domain.APIEnvelope{data=noteResponse}
// @Failure     400 {object} domain.APIEnvelope
// @Failure     403 {object} domain.APIEnvelope
// @Failure     404 {object} domain.APIEnvelope
// @Failure     422 {object} domain.APIEnvelope
// @Router      /api/v1/notes/{id} [patch]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	const op = "notes.update"
	reqID := mw.RequestIDFromCtx(r.Context())

	n, role, ok := h.load(w, r, op)
	if !ok {
		return
	}
	if err := v1.RequireEdit(role); err != nil {
		logx.Error(h.Log, reqID, op, "edit denied", err, "note_id", n.ID)
		v1.WriteDomainError(w, r, err)
		return
	}

	var req noteRequest
	if err := v1.DecodeJSON(w, r, &req); err != nil {
		logx.Error(h.Log, reqID, op, "bad json", err)
		v1.WriteDomainError(w, r, err)
		return
	}
	var upd domain.NoteUpdate
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if !domain.ValidTitle(title) {
			err := domain.Invalid("title: must not be blank")
			logx.Error(h.Log, reqID, op, "validation failed", err)
			v1.WriteDomainError(w, r, err)
			return
		}
		upd.Title = &title
	}
	if len(req.Content) > 0 && string(req.Content) != "null" {
		upd.Content = req.Content
	}
	st, err := req.documentState()
	if err != nil {
		logx.Error(h.Log, reqID, op, "validation failed", err)
		v1.WriteDomainError(w, r, err)
		return
	}
	upd.DocumentState = st

	updated, err := h.Notes.UpdateNote(r.Context(), n.ID, upd)
	if err != nil {
		logx.Error(h.Log, reqID, op, "update failed", err, "note_id", n.ID)
		v1.WriteDomainError(w, r, err)
		return
	}

	logx.Info(h.Log, reqID, op, "ok", "note_id", n.ID)
	v1.WriteOKMessage(w, r, noteResponse{Note: updated, UserRole: role}, "note updated")
}

// Delete godoc
// @Summary     Delete note
// @Description Только владелец.
// @Tags        notes
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "note id"
// @Success     200 {object} domain.APIEnvelope
// @Failure     403 {object} domain.APIEnvelope
// @Failure     404 {object} domain.APIEnvelope
// @Router      /api/v1/notes/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	const op = "notes.delete"
	reqID := mw.RequestIDFromCtx(r.Context())

	n, role, ok := h.load(w, r, op)
	if !ok {
		return
	}
	if err := v1.RequireOwner(role); err != nil {
		logx.Error(h.Log, reqID, op, "delete denied", err, "note_id", n.ID)
		v1.WriteDomainError(w, r, err)
		return
	}

	if err := h.Notes.DeleteNote(r.Context(), n.ID); err != nil {
		logx.Error(h.Log, reqID, op, "delete failed", err, "note_id", n.ID)
		v1.WriteDomainError(w, r, err)
		return
	}

	logx.Info(h.Log, reqID, op, "ok", "note_id", n.ID)
	v1.WriteOKMessage(w, r, map[string]any{"id": n.ID}, "note deleted")
}

// load — при ошибке ответ уже записан.
func (h *Handler) load(w http.ResponseWriter, r *http.Request, op string) (domain.Note, domain.Role, bool) {
	_, n, role, err := h.Access.FromRequest(r)
	if err != nil {
		logx.Error(h.Log, mw.RequestIDFromCtx(r.Context()), op, "access check failed", err, "path", r.URL.Path)
		v1.WriteDomainError(w, r, err)
		return domain.Note{}, domain.RoleNone, false
	}
	return n, role, true
}
