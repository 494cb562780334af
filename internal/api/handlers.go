package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"musicfeed/internal/domain"
	"musicfeed/internal/fetch"
	"musicfeed/internal/service"
)

type healthResponse struct {
	Status   string                         `json:"status"`
	Services map[string]bool                `json:"services"`
	Sources  map[domain.Kind]sourceHealth   `json:"sources"`
	Breakers map[string]fetch.BreakerStatus `json:"breakers"`
}

type sourceHealth struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// Health answers 503 "degraded" when the store is unreachable. Missing
// provider credentials only show up in the body.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	resp := healthResponse{
		Status:   "ok",
		Services: h.services,
		Sources:  make(map[domain.Kind]sourceHealth, len(h.sources)),
		Breakers: map[string]fetch.BreakerStatus{},
	}
	for _, src := range h.sources {
		resp.Sources[src.Kind()] = sourceHealth{Name: src.Name(), Available: src.Available()}
	}
	if h.breakers != nil {
		resp.Breakers = h.breakers.Snapshot()
	}
	if h.store != nil {
		if err := h.store.PingContext(r.Context()); err != nil {
			h.logger.Warn("store health check failed", "error", err)
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	h.respondJSON(w, status, resp)
}

func (h *Handler) GetArtist(w http.ResponseWriter, r *http.Request) {
	artist, err := h.artists.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, artist)
}

type listResponse struct {
	Artist *domain.Artist       `json:"artist"`
	Region domain.Region        `json:"region"`
	Window domain.Window        `json:"window"`
	Items  []domain.ContentItem `json:"items"`
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	artist, err := h.artists.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	items, err := h.listing.ListItems(r.Context(), artist.ID, q)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.ContentItem{}
	}

	h.respondJSON(w, http.StatusOK, listResponse{
		Artist: artist,
		Region: q.Region,
		Window: q.Window,
		Items:  items,
	})
}

func parseListQuery(r *http.Request) (service.ListQuery, error) {
	values := r.URL.Query()

	region, err := domain.ParseRegion(strings.ToUpper(values.Get("region")))
	if err != nil {
		return service.ListQuery{}, badRequest("%v", err)
	}
	window, err := domain.ParseWindow(values.Get("window"))
	if err != nil {
		return service.ListQuery{}, badRequest("%v", err)
	}

	q := service.ListQuery{Region: region, Window: window}
	if raw := values.Get("kind"); raw != "" {
		kind, err := domain.ParseKind(raw)
		if err != nil {
			return service.ListQuery{}, badRequest("%v", err)
		}
		q.Kind = &kind
	}
	return q, nil
}

func (h *Handler) SearchArtists(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		h.respondError(w, r, badRequest("name is required"))
		return
	}
	region, err := domain.ParseRegion(strings.ToUpper(r.URL.Query().Get("region")))
	if err != nil {
		h.respondError(w, r, badRequest("%v", err))
		return
	}

	artists, err := h.artists.SearchByName(r.Context(), name, region)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if artists == nil {
		artists = []domain.Artist{}
	}
	h.respondJSON(w, http.StatusOK, artists)
}

func (h *Handler) AudioOEmbed(w http.ResponseWriter, r *http.Request) {
	trackURL := r.URL.Query().Get("url")
	if trackURL == "" {
		h.respondError(w, r, badRequest("url is required"))
		return
	}

	embed, err := h.oembed.ResolveOEmbed(r.Context(), trackURL)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, embed)
}

type upsertArtistRequest struct {
	Name        string            `json:"name" validate:"required,max=200"`
	Slug        string            `json:"slug" validate:"omitempty,max=200"`
	ImageURL    *string           `json:"imageUrl" validate:"omitempty,url"`
	PlatformIDs map[string]string `json:"platformIds" validate:"required,min=1"`
}

func (h *Handler) UpsertArtist(w http.ResponseWriter, r *http.Request) {
	var req upsertArtistRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	artist, err := h.artists.UpsertFromCatalog(r.Context(), &domain.Artist{
		Name:        req.Name,
		Slug:        req.Slug,
		ImageURL:    req.ImageURL,
		PlatformIDs: req.PlatformIDs,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, artist)
}

type pinRequest struct {
	Pinned *bool `json:"pinned" validate:"required"`
}

func (h *Handler) PinItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req pinRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.admin.SetPinned(r.Context(), r.Header.Get(AdminKeyHeader), id, *req.Pinned); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type noteRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

func (h *Handler) NoteItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req noteRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.admin.SetNote(r.Context(), r.Header.Get(AdminKeyHeader), id, req.Note); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RefreshArtist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	report, err := h.admin.TriggerRefresh(r.Context(), r.Header.Get(AdminKeyHeader), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, report)
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id %q", raw)
	}
	return id, nil
}
