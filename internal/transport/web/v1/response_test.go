package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EgorLis/collab-notes/internal/domain"
)

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   int
	}{
		{fmt.Errorf("path: %w", domain.ErrBadParams), http.StatusBadRequest, domain.ErrCodeBadParams},
		{domain.ErrUnauth, http.StatusUnauthorized, domain.ErrCodeUnauth},
		{fmt.Errorf("role: %w", domain.ErrForbidden), http.StatusForbidden, domain.ErrCodeForbidden},
		{domain.ErrNotFound, http.StatusNotFound, domain.ErrCodeNotFound},
		{domain.ErrConflict, http.StatusConflict, domain.ErrCodeConflict},
		{domain.Invalid("title: required"), http.StatusUnprocessableEntity, domain.ErrCodeBadParams},
		{context.DeadlineExceeded, http.StatusInternalServerError, domain.ErrCodeUnexpected},
		{errors.New("boom"), http.StatusInternalServerError, domain.ErrCodeUnexpected},
	}
	for _, tt := range tests {
		status, env := MapDomainError(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		require.NotNil(t, env.Error)
		assert.Equal(t, tt.code, env.Error.Code, tt.err.Error())
	}

	_, env := MapDomainError(domain.Invalid("a: x", "b: y"))
	assert.Equal(t, []string{"a: x", "b: y"}, env.Error.Details)
}

func TestPathID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/notes/42", nil)
	r.SetPathValue("id", "42")
	id, err := PathID(r, "id")
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)

	for _, bad := range []string{"", "0", "-3", "abc"} {
		r.SetPathValue("id", bad)
		_, err := PathID(r, "id")
		assert.ErrorIs(t, err, domain.ErrBadParams, bad)
	}
}

func TestWriteEnvelope_Head(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteOKData(rec, httptest.NewRequest(http.MethodHead, "/", nil), "ok")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
