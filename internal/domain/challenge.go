// Package domain defines the challenge progress model and transition engine.
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSelectionFailed indicates the store query for active challenges failed.
	// The whole invocation is safe to retry.
	ErrSelectionFailed = errors.New("challenge selection failed")
	// ErrUpdateFailed aggregates per-challenge write failures within one invocation.
	ErrUpdateFailed = errors.New("challenge update failed")
	// ErrChallengeNotActive is returned by the store when the keyed row is
	// missing or no longer in the current state.
	ErrChallengeNotActive = errors.New("challenge is not active")
)

// ChallengeStatus is the lifecycle state of a challenge enrollment.
type ChallengeStatus string

const (
	StatusCurrent   ChallengeStatus = "current"
	StatusCompleted ChallengeStatus = "completed"
)

// Challenge is a per-user, time-bounded distance goal with a point reward.
type Challenge struct {
	UserID          string
	ChallengeID     string
	StartDate       time.Time
	EndDate         time.Time
	Status          ChallengeStatus
	CompletedMeters float64
	TargetMeters    float64
	Points          int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// WorkoutDetails is the normalized form of an inbound workout-completion
// event, derived once per invocation and discarded on return.
type WorkoutDetails struct {
	UserID       string
	Distance     float64
	WorkoutTime  time.Time
	ActivityType string
	// EventID is the caller-supplied idempotency key. Empty means the event
	// carries no dedup identity and re-delivery will accrue again.
	EventID string
}

// ProgressUpdate reports the store's view of a single challenge after an
// atomic progress increment.
type ProgressUpdate struct {
	CompletedMeters float64
	Status          ChallengeStatus
	Points          int
	// Transitioned is true when this increment flipped the challenge from
	// current to completed.
	Transitioned bool
	// Replayed is true when the event id was already applied to this
	// challenge and no increment happened.
	Replayed bool
}

// CompletionNotice is the outbound payload reporting points earned. It has no
// persisted identity and no delivery guarantee beyond "attempted".
type CompletionNotice struct {
	UserID       string `json:"userId"`
	PointsEarned int    `json:"pointsEarned"`
}

// ChallengeStore captures the persistence contract the engine depends on.
type ChallengeStore interface {
	// ListActive returns the user's challenges with status current whose
	// window covers the given instant. An empty slice is a normal result.
	ListActive(ctx context.Context, userID string, at time.Time) ([]Challenge, error)
	// ApplyProgress atomically adds distance to the keyed challenge and flips
	// its status to completed when the target is met, guarded so a completed
	// challenge never accrues again. A non-empty eventID dedupes re-delivery.
	ApplyProgress(ctx context.Context, userID, challengeID string, distance float64, eventID string) (ProgressUpdate, error)
}

// CompletionNotifier delivers completion notices best-effort; implementations
// must never block the caller on delivery.
type CompletionNotifier interface {
	NotifyCompletion(ctx context.Context, notice CompletionNotice)
}

// OutcomeKind classifies how an invocation terminated.
type OutcomeKind string

const (
	// OutcomeUpdated means challenges were selected and updates attempted.
	OutcomeUpdated OutcomeKind = "updated"
	// OutcomeNoChallenges means the selection returned no matching rows.
	OutcomeNoChallenges OutcomeKind = "no_challenges"
	// OutcomeSkippedActivity means the event's activity type is not tracked
	// and no store access occurred.
	OutcomeSkippedActivity OutcomeKind = "skipped_activity"
)

// Outcome summarizes one invocation of the transition engine.
// Replayed counts challenges the event had already been applied to;
// they are excluded from Updated.
type Outcome struct {
	Kind      OutcomeKind
	Updated   int
	Completed int
	Replayed  int
}
