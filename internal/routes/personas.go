package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coah80/pastvoices/internal/models"
	"github.com/coah80/pastvoices/internal/services"
)

type personaHandler struct {
	personas *services.PersonaService
}

func PersonaRoutes(r chi.Router, personas *services.PersonaService) {
	h := &personaHandler{personas: personas}
	r.Get("/api/subs", h.list)
	r.Post("/api/subs", h.create)
	r.Get("/api/subs/{id}", h.get)
	r.Patch("/api/subs/{id}", h.update)
	r.Delete("/api/subs/{id}", h.delete)
}

func (h *personaHandler) list(w http.ResponseWriter, r *http.Request) {
	subs, err := h.personas.List(r.Context())
	if err != nil {
		respondError(w, err, "Failed to fetch subs")
		return
	}
	respondJSON(w, 200, subs)
}

func (h *personaHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	sub, err := h.personas.Get(r.Context(), id)
	if err != nil {
		respondError(w, err, "Failed to fetch sub")
		return
	}
	respondJSON(w, 200, sub)
}

func (h *personaHandler) create(w http.ResponseWriter, r *http.Request) {
	var in models.InsertPersona
	if err := decodeJSON(r, &in); err != nil {
		respondMessage(w, 400, "Invalid sub data")
		return
	}
	sub, err := h.personas.Create(r.Context(), in)
	if err != nil {
		respondError(w, err, "Failed to create sub")
		return
	}
	respondJSON(w, 201, sub)
}

func (h *personaHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var patch models.PersonaPatch
	if err := decodeJSON(r, &patch); err != nil {
		respondMessage(w, 400, "Invalid sub data")
		return
	}
	sub, err := h.personas.Update(r.Context(), id, patch)
	if err != nil {
		respondError(w, err, "Failed to update sub")
		return
	}
	respondJSON(w, 200, sub)
}

func (h *personaHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.personas.Delete(r.Context(), id); err != nil {
		respondError(w, err, "Failed to delete sub")
		return
	}
	respondMessage(w, 200, "Sub deleted successfully")
}
