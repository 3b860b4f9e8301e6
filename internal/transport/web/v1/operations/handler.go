package operations

import (
	"log"
	"net/http"
	"time"

	"github.com/EgorLis/collab-notes/internal/domain"
	"github.com/EgorLis/collab-notes/internal/transport/web/logx"
	"github.com/EgorLis/collab-notes/internal/transport/web/mw"
	v1 "github.com/EgorLis/collab-notes/internal/transport/web/v1"
)

type Handler struct {
	Log    *log.Logger
	Ops    domain.OperationsRepo
	Access v1.NoteAccess
	Now    func() time.Time
}

type createRequest struct {
	Type     string  `json:"type"`
	Position *int    `json:"position"`
	Content  *string `json:"content"`
}

type listResponse struct {
	Operations    []domain.Operation   `json:"operations"`
	DocumentState domain.DocumentState `json:"document_state"`
}

// validate собирает все ошибки полей разом.
func (req createRequest) validate() (domain.OperationType, error) {
	var (
		details []string
		typ     domain.OperationType
	)
	if req.Type == "" {
		details = append(details, "type: required")
	} else if t, err := domain.ParseOperationType(req.Type); err != nil {
		details = append(details, "type: must be one of insert, delete, retain")
	} else {
		typ = t
	}
	switch {
	case req.Position == nil:
		details = append(details, "position: required")
	case *req.Position < 0:
		details = append(details, "position: must be >= 0")
	}
	return typ, domain.Invalid(details...)
}

// List godoc
// @Summary     List operations
// @Description Операции заметки по времени; since (RFC3339) — строго после. Только owner/editor.
// @Tags        operations
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  int    true  "note id"
// @Param       since query string false "RFC3339 timestamp"
// @Success     200 {object} domain.APIEnvelope{data=listResponse}
// @Failure     400 {object} domain.APIEnvelope
// @Failure     403 {object} domain.APIEnvelope
// @Failure     404 {object} domain.APIEnvelope
// @Router      /api/v1/notes/{id}/operations [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	const op = "operations.list"
	reqID := mw.RequestIDFromCtx(r.Context())

	n, ok := h.editorOnly(w, r, op)
	if !ok {
		return
	}

	var since *time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			logx.Error(h.Log, reqID, op, "bad since", err, "since", s)
			v1.WriteDomainError(w, r, domain.ErrBadParams)
			return
		}
		since = &t
	}

	list, err := h.Ops.ListOperations(r.Context(), n.ID, since)
	if err != nil {
		logx.Error(h.Log, reqID, op, "list failed", err, "note_id", n.ID)
		v1.WriteDomainError(w, r, err)
		return
	}

	logx.Info(h.Log, reqID, op, "ok", "note_id", n.ID, "count", len(list))
	v1.WriteOKData(w, r, listResponse{Operations: list, DocumentState: n.DocumentState})
}

// Create godoc
// @Summary     Record operation
// @Description Пишет операцию в лог (applied=false); document_state не меняется. Только owner/editor.
// @Tags        operations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "note id"
// @Param       request body createRequest true "type, position, content"
// @Success     201 {object} domain.APIEnvelope{data=domain.Operation}
// @Failure     400 {object} domain.APIEnvelope
// @Failure     403 {object} domain.APIEnvelope
// @Failure     404 {object} domain.APIEnvelope
// @Failure     422 {object} domain.APIEnvelope
// @Router      /api/v1/notes/{id}/operations [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "operations.create"
	reqID := mw.RequestIDFromCtx(r.Context())

	p, n, role, err := h.Access.FromRequest(r)
	if err == nil {
		err = v1.RequireEdit(role)
	}
	if err != nil {
		logx.Error(h.Log, reqID, op, "access check failed", err, "path", r.URL.Path)
		v1.WriteDomainError(w, r, err)
		return
	}

	var req createRequest
	if err := v1.DecodeJSON(w, r, &req); err != nil {
		logx.Error(h.Log, reqID, op, "bad json", err)
		v1.WriteDomainError(w, r, err)
		return
	}
	typ, err := req.validate()
	if err != nil {
		logx.Error(h.Log, reqID, op, "validation failed", err, "note_id", n.ID)
		v1.WriteDomainError(w, r, err)
		return
	}

	rec, err := h.Ops.CreateOperation(r.Context(), domain.OperationInput{
		NoteID:    n.ID,
		UserID:    p.UserID,
		Type:      typ,
		Position:  *req.Position,
		Content:   req.Content,
		Timestamp: h.now().UTC().Truncate(time.Millisecond),
	})
	if err != nil {
		logx.Error(h.Log, reqID, op, "create failed", err, "note_id", n.ID)
		v1.WriteDomainError(w, r, err)
		return
	}

	logx.Info(h.Log, reqID, op, "ok", "note_id", n.ID, "op_id", rec.ID, "type", typ.String())
	v1.WriteCreated(w, r, rec, "operation recorded")
}

// Apply godoc
// @Summary     Mark operation applied
// @Tags        operations
// @Produce     json
// @Security    BearerAuth
// @Param       id    path int true "note id"
// @Param       op_id path int true "operation id"
// @Success     200 {object} domain.APIEnvelope{data=domain.Operation}
// @Failure     403 {object} domain.APIEnvelope
// @Failure     404 {object} domain.APIEnvelope
// @Router      /api/v1/notes/{id}/operations/{op_id}/apply [post]
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	const op = "operations.apply"
	reqID := mw.RequestIDFromCtx(r.Context())

	n, ok := h.editorOnly(w, r, op)
	if !ok {
		return
	}
	opID, err := v1.PathID(r, "op_id")
	if err != nil {
		logx.Error(h.Log, reqID, op, "bad op_id", err)
		v1.WriteDomainError(w, r, err)
		return
	}

	rec, err := h.Ops.MarkApplied(r.Context(), n.ID, opID)
	if err != nil {
		logx.Error(h.Log, reqID, op, "mark applied failed", err, "note_id", n.ID, "op_id", opID)
		v1.WriteDomainError(w, r, err)
		return
	}

	logx.Info(h.Log, reqID, op, "ok", "note_id", n.ID, "op_id", opID)
	v1.WriteOKMessage(w, r, rec, "operation applied")
}

func (h *Handler) editorOnly(w http.ResponseWriter, r *http.Request, op string) (domain.Note, bool) {
	_, n, role, err := h.Access.FromRequest(r)
	if err == nil {
		err = v1.RequireEdit(role)
	}
	if err != nil {
		logx.Error(h.Log, mw.RequestIDFromCtx(r.Context()), op, "access check failed", err, "path", r.URL.Path)
		v1.WriteDomainError(w, r, err)
		return domain.Note{}, false
	}
	return n, true
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
