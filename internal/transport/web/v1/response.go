package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/EgorLis/collab-notes/internal/domain"
	"github.com/EgorLis/collab-notes/internal/transport/web/mw"
)

type errMapping struct {
	err    error
	status int
	code   int
	text   string
}

// Порядок важен: первая совпавшая sentinel-ошибка выигрывает.
var errMappings = []errMapping{
	{domain.ErrBadParams, http.StatusBadRequest, domain.ErrCodeBadParams, "bad params"},
	{domain.ErrUnauth, http.StatusUnauthorized, domain.ErrCodeUnauth, "unauthorized"},
	{domain.ErrForbidden, http.StatusForbidden, domain.ErrCodeForbidden, "forbidden"},
	{domain.ErrNotFound, http.StatusNotFound, domain.ErrCodeNotFound, "not found"},
	{domain.ErrConflict, http.StatusConflict, domain.ErrCodeConflict, "conflict"},
	{domain.ErrMethodNotAllowed, http.StatusMethodNotAllowed, domain.ErrCodeMethodNotAllowed, "method not allowed"},
	{domain.ErrNotImplemented, http.StatusNotImplemented, domain.ErrCodeNotImplemented, "not implemented"},
}

// MapDomainError решает HTTP-статус + error.code/text для конверта.
// ValidationError отдаётся 422 с деталями по полям.
func MapDomainError(err error) (int, domain.APIEnvelope) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return http.StatusUnprocessableEntity, domain.Fail(domain.ErrCodeBadParams, "validation failed", ve.Details...)
	}
	for _, m := range errMappings {
		if errors.Is(err, m.err) {
			return m.status, domain.Fail(m.code, m.text)
		}
	}
	// таймауты, отмены и прочее: 500
	return http.StatusInternalServerError, domain.Fail(domain.ErrCodeUnexpected, "unexpected")
}

// WriteEnvelope пишет конверт; для HEAD: без тела
func WriteEnvelope(w http.ResponseWriter, r *http.Request, status int, env domain.APIEnvelope) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(mw.HeaderRequestID, mw.RequestIDFromCtx(r.Context()))
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(env)
}

func WriteOKData(w http.ResponseWriter, r *http.Request, data any) {
	WriteEnvelope(w, r, http.StatusOK, domain.OkData(data))
}

func WriteOKMessage(w http.ResponseWriter, r *http.Request, data any, msg string) {
	WriteEnvelope(w, r, http.StatusOK, domain.OkMessage(data, msg))
}

func WriteCreated(w http.ResponseWriter, r *http.Request, data any, msg string) {
	WriteEnvelope(w, r, http.StatusCreated, domain.OkMessage(data, msg))
}

func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, env := MapDomainError(err)
	WriteEnvelope(w, r, status, env)
}
