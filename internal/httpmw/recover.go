package httpmw

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/keithlinneman/sitestore/internal/log"
	"github.com/keithlinneman/sitestore/internal/xerrors"
)

// Recover turns a handler panic into a logged error and a 500 response.
// onPanic, when set, runs after logging (metrics.ServerMetrics.IncPanic).
func Recover(base log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if base == nil {
		base = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				// let net/http abort the connection as it would without us
				if v == http.ErrAbortHandler {
					panic(v)
				}

				err, ok := v.(error)
				if !ok {
					err = fmt.Errorf("%v", v)
				}
				base.With(
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
				).Error(r.Context(), xerrors.Wrap(err, "panic"), "httpserver panic recovered",
					"panic.stack", string(debug.Stack()),
				)
				if onPanic != nil {
					onPanic()
				}

				w.Header().Set("Cache-Control", "no-store")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
