package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Gamified-Coaching-App/challenges-user-progress/internal/observability"
)

// Service aggregates workout distance onto active challenges and coordinates
// the completion side effect with the persistence update.
type Service struct {
	store           ChallengeStore
	notifier        CompletionNotifier
	trackedActivity string
	logger          *zap.Logger
}

// NewService constructs a Service. trackedActivity is the only activity type
// that accrues progress (e.g. "RUNNING").
func NewService(store ChallengeStore, notifier CompletionNotifier, trackedActivity string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:           store,
		notifier:        notifier,
		trackedActivity: trackedActivity,
		logger:          logger,
	}
}

// TrackedActivity returns the activity type this engine accrues progress for.
func (s *Service) TrackedActivity() string {
	return s.trackedActivity
}

// ApplyWorkout applies one workout event to every matching challenge.
//
// A failure updating one challenge does not prevent processing of the others;
// all failures are collected and the invocation reports ErrUpdateFailed if at
// least one update failed. Once the context is done, remaining challenges are
// abandoned and reported as part of that aggregate rather than left unknown.
func (s *Service) ApplyWorkout(ctx context.Context, details WorkoutDetails) (Outcome, error) {
	logger := s.logger.With(
		zap.String("user_id", details.UserID),
		zap.String("event_id", details.EventID),
	)

	if details.ActivityType != s.trackedActivity {
		logger.Info("activity type not tracked, skipping",
			zap.String("activity_type", details.ActivityType))
		return Outcome{Kind: OutcomeSkippedActivity}, nil
	}

	challenges, err := s.store.ListActive(ctx, details.UserID, details.WorkoutTime)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrSelectionFailed, err)
	}
	if len(challenges) == 0 {
		logger.Info("no current challenges for user")
		return Outcome{Kind: OutcomeNoChallenges}, nil
	}

	outcome := Outcome{Kind: OutcomeUpdated}
	var failures []error
	for _, challenge := range challenges {
		if ctxErr := ctx.Err(); ctxErr != nil {
			failures = append(failures, fmt.Errorf("challenge %s abandoned: %w", challenge.ChallengeID, ctxErr))
			continue
		}

		update, err := s.store.ApplyProgress(ctx, details.UserID, challenge.ChallengeID, details.Distance, details.EventID)
		if err != nil {
			if errors.Is(err, ErrChallengeNotActive) {
				// Raced with a concurrent completion between selection and
				// update; the status guard already protected the row.
				logger.Info("challenge no longer active, skipping",
					zap.String("challenge_id", challenge.ChallengeID))
				continue
			}
			logger.Error("challenge update failed",
				zap.String("challenge_id", challenge.ChallengeID),
				zap.Error(err))
			failures = append(failures, fmt.Errorf("challenge %s: %w", challenge.ChallengeID, err))
			continue
		}

		if update.Replayed {
			outcome.Replayed++
			logger.Info("event already applied to challenge, skipping",
				zap.String("challenge_id", challenge.ChallengeID))
			continue
		}

		outcome.Updated++
		observability.RecordProgressApplied(details.Distance, time.Now().UTC())

		if update.Transitioned {
			outcome.Completed++
			observability.RecordChallengeCompleted()
			logger.Info("challenge completed",
				zap.String("challenge_id", challenge.ChallengeID),
				zap.Float64("completed_meters", update.CompletedMeters),
				zap.Int("points", update.Points))
			s.notifier.NotifyCompletion(ctx, CompletionNotice{
				UserID:       details.UserID,
				PointsEarned: update.Points,
			})
		}
	}

	if len(failures) > 0 {
		return outcome, fmt.Errorf("%w: %v", ErrUpdateFailed, errors.Join(failures...))
	}

	logger.Info("challenges updated",
		zap.Int("updated", outcome.Updated),
		zap.Int("completed", outcome.Completed),
		zap.Int("replayed", outcome.Replayed))
	return outcome, nil
}

// ListActiveChallenges returns the user's challenges currently accepting
// progress, evaluated at the present instant.
func (s *Service) ListActiveChallenges(ctx context.Context, userID string) ([]Challenge, error) {
	challenges, err := s.store.ListActive(ctx, userID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSelectionFailed, err)
	}
	return challenges, nil
}
