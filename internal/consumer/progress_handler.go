package consumer

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Gamified-Coaching-App/challenges-user-progress/internal/domain"
	"github.com/Gamified-Coaching-App/challenges-user-progress/internal/event"
)

// ProgressHandler applies consumed workout envelopes to the transition
// engine.
type ProgressHandler struct {
	service *domain.Service
	logger  *zap.Logger
}

// NewProgressHandler constructs a handler over the engine.
func NewProgressHandler(service *domain.Service, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{service: service, logger: logger}
}

// Handle normalizes the envelope and applies it. Malformed envelopes are
// dropped (returning nil commits the offset); store failures propagate so the
// record is redelivered.
func (h *ProgressHandler) Handle(ctx context.Context, msg Message) error {
	details, err := event.Normalize(msg.Payload)
	if err != nil {
		if errors.Is(err, event.ErrMalformedEvent) {
			h.logger.Warn("dropping malformed workout event",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			recordMalformedEvent(msg.Topic)
			return nil
		}
		return err
	}

	outcome, err := h.service.ApplyWorkout(ctx, details)
	if err != nil {
		return err
	}

	h.logger.Info("workout event applied",
		zap.String("user_id", details.UserID),
		zap.String("outcome", string(outcome.Kind)),
		zap.Int("updated", outcome.Updated),
		zap.Int("completed", outcome.Completed),
		zap.Int("replayed", outcome.Replayed))
	return nil
}
