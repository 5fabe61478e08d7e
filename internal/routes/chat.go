package routes

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/coah80/pastvoices/internal/models"
	"github.com/coah80/pastvoices/internal/services"
)

type chatHandler struct {
	chat *services.ChatService
}

func ChatRoutes(r chi.Router, chat *services.ChatService) {
	h := &chatHandler{chat: chat}
	r.Get("/api/subs/{id}/messages", h.messages)
	r.Post("/api/messages", h.send)
	r.Get("/api/voice", h.voice)
}

func (h *chatHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	msgs, err := h.chat.Messages(r.Context(), id)
	if err != nil {
		respondError(w, err, "Failed to fetch messages")
		return
	}
	respondJSON(w, 200, msgs)
}

func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var in models.InsertMessage
	if err := decodeJSON(r, &in); err != nil {
		respondMessage(w, 400, "Invalid message data")
		return
	}
	msg, err := h.chat.Send(r.Context(), in)
	if err != nil {
		respondError(w, err, "Failed to send message")
		return
	}
	respondJSON(w, 201, msg)
}

func (h *chatHandler) voice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var subID int64
	if v := q.Get("subId"); v != "" {
		subID, _ = strconv.ParseInt(v, 10, 64)
	}
	url, err := h.chat.Voice(r.Context(), q.Get("text"), q.Get("figure"), subID)
	if err != nil {
		respondError(w, err, "Failed to generate voice response")
		return
	}
	respondJSON(w, 200, map[string]string{"audioUrl": url})
}
