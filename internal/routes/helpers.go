package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/coah80/pastvoices/internal/catalog"
	"github.com/coah80/pastvoices/internal/media"
	"github.com/coah80/pastvoices/internal/services"
	"github.com/coah80/pastvoices/internal/tasks"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondMessage(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"message": msg})
}

// respondError maps service errors onto status codes. fallback replaces the
// message of unclassified errors.
func respondError(w http.ResponseWriter, err error, fallback string) {
	var verr *services.ValidationError
	var serr *services.StorageError
	switch {
	case errors.As(err, &verr):
		respondMessage(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, catalog.ErrNotFound):
		respondMessage(w, http.StatusNotFound, "Sub not found")
	case errors.Is(err, tasks.ErrUnknownTask):
		respondMessage(w, http.StatusNotFound, "Task not found")
	case errors.Is(err, media.ErrUnsupportedType), errors.Is(err, media.ErrNoFile):
		respondMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrChatUnavailable), errors.Is(err, services.ErrVoiceUnavailable):
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"message":       err.Error(),
			"missingApiKey": true,
		})
	case errors.Is(err, tasks.ErrQueueFull), errors.Is(err, tasks.ErrClosed):
		respondMessage(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &serr):
		respondMessage(w, http.StatusInternalServerError, "Upload processing error: "+serr.Error())
	default:
		if fallback == "" {
			fallback = err.Error()
		}
		respondMessage(w, http.StatusInternalServerError, fallback)
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		respondMessage(w, http.StatusBadRequest, "Invalid sub id")
		return 0, false
	}
	return id, true
}

func decodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
