package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mikoto-dev/banchod/internal/dispatch"
)

// SetupRoutes builds the router with the dispatcher injected.
func SetupRoutes(d *dispatch.Dispatcher, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/", Poll(d, log))
	r.Post("/api/v1/system-message", SystemMessage(d))
	r.Get("/healthz", Healthz)
	return r
}
