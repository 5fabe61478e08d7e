package routes

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coah80/pastvoices/internal/media"
	"github.com/coah80/pastvoices/internal/services"
)

type uploadHandler struct {
	media *services.MediaService
}

func UploadRoutes(r chi.Router, svc *services.MediaService) {
	h := &uploadHandler{media: svc}
	r.Post("/api/subs/{id}/upload", h.handle(media.KindVideo))
	r.Post("/api/subs/{id}/upload-voice", h.handle(media.KindVoice))
}

// handle streams the kind's multipart part straight to disk. The persona is
// looked up before the body is read and the MIME type is checked before
// anything is written.
func (h *uploadHandler) handle(kind media.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		if err := h.media.CheckPersona(r.Context(), id); err != nil {
			respondError(w, err, "")
			return
		}

		mr, err := r.MultipartReader()
		if err != nil {
			respondMessage(w, 400, "Upload error: "+err.Error())
			return
		}

		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				respondMessage(w, 400, "No "+kind.Field()+" file uploaded")
				return
			}
			if err != nil {
				respondMessage(w, 400, "Upload error: "+err.Error())
				return
			}
			if part.FormName() != kind.Field() || part.FileName() == "" {
				part.Close()
				continue
			}

			sub, err := h.media.Upload(r.Context(), id, kind, services.UploadPart{
				Filename:    part.FileName(),
				ContentType: part.Header.Get("Content-Type"),
				Body:        part,
			})
			part.Close()
			if err != nil {
				respondError(w, err, "")
				return
			}
			respondJSON(w, 200, sub)
			return
		}
	}
}
