package mw

import (
	"net/http"
	"strings"

	"github.com/EgorLis/collab-notes/internal/domain"
)

type AuthDeps struct {
	Tokens    domain.TokenManager
	Blacklist domain.TokenBlacklist
}

const unauthorizedBody = `{"error":{"code":1001,"text":"unauthorized"}}`

// RequireAuth кладёт domain.Principal в контекст. Токен берётся из
// Authorization — Bearer, а для websocket (браузер не шлёт заголовки) берём ?token=.
func RequireAuth(deps AuthDeps, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := TokenFromRequest(r)
		if raw == "" {
			writeUnauthorized(w)
			return
		}
		claims, err := deps.Tokens.Parse(r.Context(), domain.Token(raw))
		if err != nil {
			writeUnauthorized(w)
			return
		}
		revoked, err := deps.Blacklist.IsRevoked(r.Context(), claims.JTI)
		if err != nil || revoked {
			writeUnauthorized(w)
			return
		}
		ctx := domain.WithPrincipal(r.Context(), domain.Principal{
			UserID:    claims.UserID,
			Email:     claims.Email,
			JTI:       claims.JTI,
			ExpiresAt: claims.ExpiresAt,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(unauthorizedBody))
}

func TokenFromRequest(r *http.Request) string {
	if t := extractBearer(r.Header.Get("Authorization")); t != "" {
		return t
	}
	return r.URL.Query().Get("token")
}

func extractBearer(h string) string {
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
