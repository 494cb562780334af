package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminKeyHeader carries the shared admin secret.
const AdminKeyHeader = "X-Admin-Key"

// Routes builds the router. adminPerMinute limits admin requests per client
// IP; zero disables the limit.
func (h *Handler) Routes(adminPerMinute int) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/artists/search", h.SearchArtists)
		r.Get("/artists/{slug}", h.GetArtist)
		r.Get("/artists/{slug}/items", h.ListItems)
		r.Get("/oembed/audio", h.AudioOEmbed)

		r.Group(func(r chi.Router) {
			if adminPerMinute > 0 {
				r.Use(httprate.LimitByIP(adminPerMinute, time.Minute))
			}
			r.Use(h.requireAdmin)

			r.Post("/artists", h.UpsertArtist)
			r.Post("/admin/items/{id}/pin", h.PinItem)
			r.Post("/admin/items/{id}/note", h.NoteItem)
			r.Post("/admin/artists/{id}/refresh", h.RefreshArtist)
		})
	})

	return r
}

// requireAdmin rejects requests without a valid admin key before any body
// is read.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.admin.Authorize(r.Header.Get(AdminKeyHeader)); err != nil {
			h.logger.Warn("admin request rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
			h.respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		})
	}
}
