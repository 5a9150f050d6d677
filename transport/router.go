package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Handler mounts this Transport at cfg.Path behind a chi router carrying
// standard ambient middleware (request ID, real IP, panic recovery) plus
// CORS, generalized from a multi-route REST API's
// setupRouter/setupMiddlewareChain down to a single streamable endpoint.
func (t *Transport) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(t.setupCORS())

	router.Handle(t.config.Path, t)
	return router
}

func (t *Transport) setupCORS() func(http.Handler) http.Handler {
	origins := t.config.CORSOrigins
	opts := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", headerSessionID, headerProtocolVer, headerLastEventID},
		ExposedHeaders:   []string{headerSessionID, headerProtocolVer},
		AllowCredentials: true,
		MaxAge:           600,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		opts.AllowedOrigins = []string{"*"}
		opts.AllowCredentials = false
	}
	return cors.Handler(opts)
}
