// Package event decodes and normalizes inbound workout-completion envelopes.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gamified-Coaching-App/challenges-user-progress/internal/domain"
)

// ErrMalformedEvent indicates the envelope lacks an identifiable user id or a
// defined distance value. Malformed events are never retried.
var ErrMalformedEvent = errors.New("malformed workout event")

// Envelope is the trigger record. Only the detail block is read; the rest of
// the envelope is ignored.
type Envelope struct {
	Detail *Detail `json:"detail"`
}

// Detail carries the workout fields the engine consumes. DistanceMeters is a
// pointer so a missing field can be told apart from a zero-distance workout.
type Detail struct {
	UserID         string   `json:"user_id"`
	DistanceMeters *float64 `json:"distance_in_meters"`
	TimestampLocal int64    `json:"timestamp_local"`
	ActivityType   string   `json:"activity_type"`
	EventID        string   `json:"event_id"`
}

// Normalize validates the raw envelope and extracts typed fields. The workout
// timestamp (epoch seconds) is converted to a UTC instant so it compares
// exactly against the store's start_date/end_date columns. No side effects.
func Normalize(raw []byte) (domain.WorkoutDetails, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return domain.WorkoutDetails{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	detail := envelope.Detail
	if detail == nil {
		return domain.WorkoutDetails{}, fmt.Errorf("%w: missing detail", ErrMalformedEvent)
	}
	if strings.TrimSpace(detail.UserID) == "" {
		return domain.WorkoutDetails{}, fmt.Errorf("%w: missing user_id", ErrMalformedEvent)
	}
	if detail.DistanceMeters == nil {
		return domain.WorkoutDetails{}, fmt.Errorf("%w: missing distance_in_meters", ErrMalformedEvent)
	}
	if *detail.DistanceMeters < 0 {
		return domain.WorkoutDetails{}, fmt.Errorf("%w: negative distance_in_meters", ErrMalformedEvent)
	}

	return domain.WorkoutDetails{
		UserID:       detail.UserID,
		Distance:     *detail.DistanceMeters,
		WorkoutTime:  time.Unix(detail.TimestampLocal, 0).UTC(),
		ActivityType: detail.ActivityType,
		EventID:      detail.EventID,
	}, nil
}
