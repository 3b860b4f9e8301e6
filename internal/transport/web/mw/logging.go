package mw

import (
	"log"
	"net/http"
	"strings"
	"time"
)

// Logging пишет одну строку на запрос. Путь без query: там бывает ?token=.
// Для websocket строка появляется после закрытия канала, duration: длина сессии.
func Logging(l *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			mw := &metaWriter{ResponseWriter: w}

			next.ServeHTTP(mw, r)

			lvl := "info"
			if mw.status >= http.StatusInternalServerError {
				lvl = "error"
			}
			kind := "http"
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				kind = "ws"
			}
			l.Printf("lvl=%s req_id=%s kind=%s method=%s path=%q status=%d size=%d duration_ms=%d",
				lvl, RequestIDFromCtx(r.Context()), kind, r.Method, r.URL.Path,
				mw.status, mw.size, time.Since(start).Milliseconds())
		})
	}
}
