package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/EgorLis/collab-notes/internal/domain"
)

// MaxJSONBody — предел тела JSON-запроса
const MaxJSONBody = 1 << 20

// PathID читает положительный int64 из {name} маршрута.
func PathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("path %s=%q: %w", name, r.PathValue(name), domain.ErrBadParams)
	}
	return id, nil
}

// DecodeJSON читает тело с ограничением размера; неизвестные поля допускаются.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("bad json: %v: %w", err, domain.ErrBadParams)
	}
	return nil
}

// Principal: аутентифицированный пользователь или ErrUnauth.
func Principal(r *http.Request) (domain.Principal, error) {
	p, ok := domain.PrincipalFromCtx(r.Context())
	if !ok {
		return domain.Principal{}, domain.ErrUnauth
	}
	return p, nil
}
