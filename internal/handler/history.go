package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/codemind/internal/auth"
	"github.com/sakif/codemind/internal/service"
)

// HistoryHandler exposes the caller's saved generations. Every route sits
// behind auth.RequireAuth, so the user ID in the context is always present.
type HistoryHandler struct {
	svc     *service.HistoryService
	warning string
	logger  *slog.Logger
}

func NewHistoryHandler(svc *service.HistoryService, storeWarning string, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{svc: svc, warning: storeWarning, logger: logger}
}

// HandleList returns one page of summaries.
//
// HTTP: GET /api/history?language=&isFavorite=true&search=&sort=-createdAt&page=1&limit=20
func (h *HistoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := service.ListParams{
		Language:      q.Get("language"),
		FavoritesOnly: q.Get("isFavorite") == "true",
		Search:        q.Get("search"),
		Sort:          q.Get("sort"),
		Page:          atoiOr(q.Get("page"), 1),
		Limit:         atoiOr(q.Get("limit"), 0),
	}

	page, err := h.svc.List(r.Context(), userID(r), params)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{
		Success: true,
		Count:   len(page.Items),
		Total:   page.Total,
		Page:    page.Page,
		Pages:   page.Pages,
		Data:    page.Items,
		Warning: h.warning,
	})
}

// HandleCreate saves a record the client produced itself.
//
// HTTP: POST /api/history → 201
func (h *HistoryHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.CreateHistoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	rec, err := h.svc.Create(r.Context(), userID(r), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Success: true, Data: rec, Warning: h.warning})
}

// HandleGet returns one record and counts the view.
//
// HTTP: GET /api/history/{id}
func (h *HistoryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: rec, Warning: h.warning})
}

// HTTP: PUT /api/history/{id}
func (h *HistoryHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateHistoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	rec, err := h.svc.Update(r.Context(), userID(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: rec, Warning: h.warning})
}

// HTTP: DELETE /api/history/{id}
func (h *HistoryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Code history deleted successfully", Warning: h.warning})
}

// HTTP: PATCH /api/history/{id}/favorite
func (h *HistoryHandler) HandleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fav, err := h.svc.ToggleFavorite(r.Context(), userID(r), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    map[string]any{"id": id, "isFavorite": fav},
		Warning: h.warning,
	})
}

// HTTP: GET /api/history/stats
func (h *HistoryHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context(), userID(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: stats, Warning: h.warning})
}

func userID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

// atoiOr parses s, returning def for empty or malformed input.
func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
