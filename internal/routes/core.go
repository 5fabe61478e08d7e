package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coah80/pastvoices/internal/config"
)

func CoreRoutes(r chi.Router) {
	r.Get("/health", handleHealth)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, 200, map[string]interface{}{
		"status":  "ok",
		"name":    config.AppName,
		"version": config.Version,
	})
}
