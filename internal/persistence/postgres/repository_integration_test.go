//go:build integration

package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/Gamified-Coaching-App/challenges-user-progress/internal/domain"
)

func setupRepository(t *testing.T, ctx context.Context) *Repository {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("challenges"),
		postgrescontainer.WithUsername("coaching"),
		postgrescontainer.WithPassword("coaching"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))
	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return NewRepository(pool)
}

func insertChallenge(t *testing.T, ctx context.Context, repo *Repository, ch domain.Challenge) {
	t.Helper()
	const stmt = `INSERT INTO challenges (user_id, challenge_id, start_date, end_date, status, completed_meters, target_meters, points)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := repo.pool.Exec(ctx, stmt,
		ch.UserID, ch.ChallengeID, ch.StartDate, ch.EndDate, ch.Status, ch.CompletedMeters, ch.TargetMeters, ch.Points)
	require.NoError(t, err)
}

func TestRepositorySelectionAndTransitions(t *testing.T) {
	ctx := context.Background()
	repo := setupRepository(t, ctx)

	userID := uuid.NewString()
	otherUser := uuid.NewString()
	workoutTime := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)

	inWindow := domain.Challenge{
		UserID:       userID,
		ChallengeID:  "c-active",
		StartDate:    workoutTime.Add(-48 * time.Hour),
		EndDate:      workoutTime.Add(48 * time.Hour),
		Status:       domain.StatusCurrent,
		TargetMeters: 800,
		Points:       50,
	}
	insertChallenge(t, ctx, repo, inWindow)
	insertChallenge(t, ctx, repo, domain.Challenge{
		UserID:       userID,
		ChallengeID:  "c-expired",
		StartDate:    workoutTime.Add(-96 * time.Hour),
		EndDate:      workoutTime.Add(-48 * time.Hour),
		Status:       domain.StatusCurrent,
		TargetMeters: 800,
	})
	insertChallenge(t, ctx, repo, domain.Challenge{
		UserID:          userID,
		ChallengeID:     "c-done",
		StartDate:       workoutTime.Add(-48 * time.Hour),
		EndDate:         workoutTime.Add(48 * time.Hour),
		Status:          domain.StatusCompleted,
		CompletedMeters: 900,
		TargetMeters:    800,
	})
	insertChallenge(t, ctx, repo, domain.Challenge{
		UserID:       otherUser,
		ChallengeID:  "c-foreign",
		StartDate:    workoutTime.Add(-48 * time.Hour),
		EndDate:      workoutTime.Add(48 * time.Hour),
		Status:       domain.StatusCurrent,
		TargetMeters: 800,
	})

	t.Run("selection matches user, status and window", func(t *testing.T) {
		challenges, err := repo.ListActive(ctx, userID, workoutTime)
		require.NoError(t, err)
		require.Len(t, challenges, 1)
		require.Equal(t, "c-active", challenges[0].ChallengeID)
	})

	t.Run("window boundaries are inclusive", func(t *testing.T) {
		challenges, err := repo.ListActive(ctx, userID, inWindow.StartDate)
		require.NoError(t, err)
		require.Len(t, challenges, 1)

		challenges, err = repo.ListActive(ctx, userID, inWindow.EndDate)
		require.NoError(t, err)
		require.Len(t, challenges, 1)
	})

	t.Run("progress accrues below target", func(t *testing.T) {
		upd, err := repo.ApplyProgress(ctx, userID, "c-active", 400, "")
		require.NoError(t, err)
		require.Equal(t, 400.0, upd.CompletedMeters)
		require.Equal(t, domain.StatusCurrent, upd.Status)
		require.False(t, upd.Transitioned)
	})

	t.Run("reaching the target completes inclusively", func(t *testing.T) {
		upd, err := repo.ApplyProgress(ctx, userID, "c-active", 400, "")
		require.NoError(t, err)
		require.Equal(t, 800.0, upd.CompletedMeters)
		require.Equal(t, domain.StatusCompleted, upd.Status)
		require.True(t, upd.Transitioned)
		require.Equal(t, 50, upd.Points)
	})

	t.Run("completed challenges never accrue again", func(t *testing.T) {
		_, err := repo.ApplyProgress(ctx, userID, "c-active", 100, "")
		require.ErrorIs(t, err, domain.ErrChallengeNotActive)

		challenges, err := repo.ListActive(ctx, userID, workoutTime)
		require.NoError(t, err)
		require.Empty(t, challenges)
	})
}

func TestRepositoryDeduplicatesEvents(t *testing.T) {
	ctx := context.Background()
	repo := setupRepository(t, ctx)

	userID := uuid.NewString()
	now := time.Now().UTC()
	insertChallenge(t, ctx, repo, domain.Challenge{
		UserID:       userID,
		ChallengeID:  "c1",
		StartDate:    now.Add(-time.Hour),
		EndDate:      now.Add(time.Hour),
		Status:       domain.StatusCurrent,
		TargetMeters: 1000,
	})

	first, err := repo.ApplyProgress(ctx, userID, "c1", 300, "evt-1")
	require.NoError(t, err)
	require.False(t, first.Replayed)
	require.Equal(t, 300.0, first.CompletedMeters)

	replay, err := repo.ApplyProgress(ctx, userID, "c1", 300, "evt-1")
	require.NoError(t, err)
	require.True(t, replay.Replayed)

	challenges, err := repo.ListActive(ctx, userID, now)
	require.NoError(t, err)
	require.Len(t, challenges, 1)
	require.Equal(t, 300.0, challenges[0].CompletedMeters,
		"a replayed event must not accrue distance twice")

	second, err := repo.ApplyProgress(ctx, userID, "c1", 200, "evt-2")
	require.NoError(t, err)
	require.False(t, second.Replayed)
	require.Equal(t, 500.0, second.CompletedMeters)
}

func TestRepositorySerializesConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	repo := setupRepository(t, ctx)

	userID := uuid.NewString()
	now := time.Now().UTC()

	const workers = 16
	const distance = 250.0

	t.Run("no increment is lost below the target", func(t *testing.T) {
		insertChallenge(t, ctx, repo, domain.Challenge{
			UserID:       userID,
			ChallengeID:  "c-race",
			StartDate:    now.Add(-time.Hour),
			EndDate:      now.Add(time.Hour),
			Status:       domain.StatusCurrent,
			TargetMeters: workers * distance * 10,
		})

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.ApplyProgress(ctx, userID, "c-race", distance, "")
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		challenges, err := repo.ListActive(ctx, userID, now)
		require.NoError(t, err)
		require.Len(t, challenges, 1)
		require.Equal(t, workers*distance, challenges[0].CompletedMeters,
			"concurrent increments on one challenge key must serialize without loss")
		require.Equal(t, domain.StatusCurrent, challenges[0].Status)
	})

	t.Run("exactly one transition when concurrent events cross the target", func(t *testing.T) {
		insertChallenge(t, ctx, repo, domain.Challenge{
			UserID:       userID,
			ChallengeID:  "c-finish",
			StartDate:    now.Add(-time.Hour),
			EndDate:      now.Add(time.Hour),
			Status:       domain.StatusCurrent,
			TargetMeters: workers * distance / 2,
			Points:       50,
		})

		var wg sync.WaitGroup
		var mu sync.Mutex
		accrued := 0
		transitions := 0
		rejected := 0
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				upd, err := repo.ApplyProgress(ctx, userID, "c-finish", distance, "")
				mu.Lock()
				defer mu.Unlock()
				switch {
				case errors.Is(err, domain.ErrChallengeNotActive):
					rejected++
				case err == nil:
					accrued++
					if upd.Transitioned {
						transitions++
					}
				default:
					require.NoError(t, err)
				}
			}()
		}
		wg.Wait()

		require.Equal(t, 1, transitions,
			"crossing the target must flip the status exactly once")
		require.Equal(t, workers, accrued+rejected)

		var completed float64
		var status string
		err := repo.pool.QueryRow(ctx,
			`SELECT completed_meters, status FROM challenges WHERE user_id = $1 AND challenge_id = $2`,
			userID, "c-finish").Scan(&completed, &status)
		require.NoError(t, err)
		require.Equal(t, string(domain.StatusCompleted), status)
		require.Equal(t, float64(accrued)*distance, completed,
			"meters from rejected post-completion events must not accrue")
	})
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	files := []string{
		"../../../db/postgres/migrations/0001_init.up.sql",
		"../../../db/postgres/migrations/0002_progress_events.up.sql",
	}

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, rel := range files {
		path := resolvePath(t, rel)
		contents, readErr := os.ReadFile(path)
		require.NoError(t, readErr)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoError(t, execErr)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
