package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/docsearch/pkg/logger"
)

var discardLogger = logger.Discard

func status(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}
}

// serveWithChi mounts mw and handler on a chi router so RouteContext is set.
func serveWithChi(mw func(http.Handler) http.Handler, pattern string, handler http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(mw)
	r.Method(http.MethodGet, pattern, handler)
	return r
}
