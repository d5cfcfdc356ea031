package moderation

import (
	"errors"
	"io"
	"net/http"

	"github.com/salehop/salehop-api/internal/pkg/logger"
	"github.com/salehop/salehop-api/internal/pkg/response"
)

// MaxEventBytes bounds the size of an event body.
const MaxEventBytes = 1 << 20

// Handler handles storage event deliveries
type Handler struct {
	provider Provider
}

// NewHandler creates moderation handler
func NewHandler(provider Provider) *Handler {
	return &Handler{provider: provider}
}

// HandleEvent processes one storage event.
// POST /moderation/events
//
// 200 acknowledges (including ignored events), 400 rejects a malformed body
// for good, and 500 asks for redelivery.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.MethodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	log := logger.FromContext(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxEventBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn().Int64("limit", tooLarge.Limit).Msg("Event body too large")
			response.RequestTooLarge(w)
			return
		}
		log.Error().Err(err).Msg("Failed to read event body")
		response.Retry(w, "failed to read body")
		return
	}

	pipeline, err := h.provider.Pipeline(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Moderation pipeline unavailable")
		response.Retry(w, "pipeline unavailable")
		return
	}

	outcome, err := pipeline.Handle(ctx, body)
	if err != nil {
		log.Warn().Err(err).Msg("Malformed event")
		response.BadRequest(w, "Malformed event body")
		return
	}

	if outcome.Retry {
		reason := "retry"
		if outcome.Reason != nil {
			reason = outcome.Reason.Error()
		}
		response.Retry(w, reason)
		return
	}

	response.OK(w, map[string]string{"outcome": string(outcome.Resolution)})
}
