package middleware

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// Recover catches panics from the wrapped handler and turns them into a
// 500 response instead of crashing the server. http.ErrAbortHandler is
// re-panicked untouched: it is net/http's own signal to silently abort the
// response without writing anything further, used by the server package to
// drop the receiver's connection when a multipart sender's body never
// resolves to a valid payload.
func Recover(log *logrus.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.WithFields(logrus.Fields{
						"method": r.Method,
						"path":   r.URL.Path,
						"panic":  rec,
					}).Error("recovered from panic")
					http.Error(w, "[ERROR] Internal server error.\n", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
