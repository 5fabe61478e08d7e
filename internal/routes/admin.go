package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coah80/pastvoices/internal/middleware"
	"github.com/coah80/pastvoices/internal/services"
	"github.com/coah80/pastvoices/internal/tasks"
)

type TaskLookup interface {
	Get(id string) (tasks.Snapshot, error)
	List() []tasks.Snapshot
}

type adminHandler struct {
	media *services.MediaService
	tasks TaskLookup
}

func AdminRoutes(r chi.Router, svc *services.MediaService, lookup TaskLookup, token string) {
	h := &adminHandler{media: svc, tasks: lookup}
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.AdminGate(token))
		r.Post("/optimize-videos", h.accepted("Video optimization started", svc.OptimizeAllTask))
		r.Post("/cleanup-storage", h.accepted("Storage cleanup started", svc.MaintenanceTask))
		r.Post("/generate-thumbnails", h.accepted("Thumbnail generation started", svc.GenerateThumbnailsTask))
		r.Get("/storage-stats", h.storageStats)
		r.Get("/tasks", h.listTasks)
		r.Get("/tasks/{id}", h.getTask)
	})
}

// accepted queues a job and answers 202 without waiting for it.
func (h *adminHandler) accepted(msg string, enqueue func() (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := enqueue()
		if err != nil {
			respondError(w, err, "")
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]string{
			"message": msg,
			"status":  "processing",
			"taskId":  id,
		})
	}
}

func (h *adminHandler) storageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.media.StorageStats(r.Context())
	if err != nil {
		respondError(w, err, "Failed to get storage stats")
		return
	}
	respondJSON(w, 200, stats)
}

func (h *adminHandler) listTasks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, 200, h.tasks.List())
}

func (h *adminHandler) getTask(w http.ResponseWriter, r *http.Request) {
	snap, err := h.tasks.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err, "")
		return
	}
	respondJSON(w, 200, snap)
}
