package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"gql-dashboard/internal/api/response"
	"gql-dashboard/internal/storage"
)

// HistoryHandler serves the saved query history
type HistoryHandler struct {
	store *storage.HistoryStore
}

// NewHistoryHandler creates a history handler
func NewHistoryHandler(store *storage.HistoryStore) *HistoryHandler {
	return &HistoryHandler{store: store}
}

// List handles GET /history?endpointId=&favorite=true&limit=&offset=
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit", 50)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	offset, err := parseIntParam(r, "offset", 0)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	entries, err := h.store.List(r.Context(), storage.HistoryFilter{
		EndpointID:   r.URL.Query().Get("endpointId"),
		FavoriteOnly: r.URL.Query().Get("favorite") == "true",
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteOK(w, entries)
}

// Create handles POST /history
func (h *HistoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var entry storage.HistoryEntry
	if err := decodeJSON(r, &entry); err != nil {
		response.WriteError(w, err)
		return
	}
	saved, err := h.store.Add(r.Context(), entry)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteSuccess(w, http.StatusCreated, saved)
}

// Get handles GET /history/{id}
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteOK(w, entry)
}

// Delete handles DELETE /history/{id}
func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /history
func (h *HistoryHandler) Clear(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Clear(r.Context())
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteOK(w, map[string]int{"deleted": n})
}

type favoriteRequest struct {
	Favorite bool `json:"favorite"`
}

// SetFavorite handles PUT /history/{id}/favorite
func (h *HistoryHandler) SetFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if err := decodeJSON(r, &req); err != nil {
		response.WriteError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.store.SetFavorite(r.Context(), id, req.Favorite); err != nil {
		response.WriteError(w, err)
		return
	}
	h.Get(w, r)
}

// MarkUsed handles POST /history/{id}/use
func (h *HistoryHandler) MarkUsed(w http.ResponseWriter, r *http.Request) {
	if err := h.store.MarkUsed(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.WriteError(w, err)
		return
	}
	h.Get(w, r)
}

// Usage handles GET /history/usage?endpointId=&limit=
func (h *HistoryHandler) Usage(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit", 20)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	usage, err := h.store.Usage(r.Context(), r.URL.Query().Get("endpointId"), limit)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteOK(w, usage)
}
