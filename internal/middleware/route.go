package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Route returns the chi route pattern r matched, or "unmatched". Logs and
// metrics use it instead of the raw path, whose segments may hold
// capability tokens.
func Route(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return "unmatched"
}
