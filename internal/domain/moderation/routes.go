package moderation

import (
	"github.com/go-chi/chi/v5"
)

// Routes returns moderation routes. Every method reaches the handler so it
// can answer 405 itself.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.HandleFunc("/events", h.HandleEvent)

	return r
}
