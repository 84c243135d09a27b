// Package middleware holds HTTP middleware shared by the coordinator's
// routes.
package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// LogMiddleware emits one structured logrus line per request with the
// response status and elapsed time. chi's WrapResponseWriter is used
// for status capture since it keeps Hijacker intact for the WebSocket
// route; hijacked connections report status 0 and are logged as such.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.WithFields(logrus.Fields{
				"method":  r.Method,
				"path":    r.URL.Path,
				"status":  ww.Status(),
				"bytes":   ww.BytesWritten(),
				"elapsed": time.Since(start),
				"remote":  r.RemoteAddr,
			}).Info("http request")
		})
	}
}
