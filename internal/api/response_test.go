package api

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Gamified-Coaching-App/challenges-user-progress/internal/domain"
)

func TestBuildResponse(t *testing.T) {
	cases := []struct {
		name       string
		outcome    domain.Outcome
		err        error
		wantStatus int
		wantBody   interface{}
	}{
		{
			name:       "updated",
			outcome:    domain.Outcome{Kind: domain.OutcomeUpdated, Updated: 2},
			wantStatus: 200,
			wantBody:   SuccessBody{Message: "Challenges updated successfully."},
		},
		{
			name:       "no challenges",
			outcome:    domain.Outcome{Kind: domain.OutcomeNoChallenges},
			wantStatus: 200,
			wantBody:   SuccessBody{Message: "No current challenges found for the user."},
		},
		{
			name:       "untracked activity",
			outcome:    domain.Outcome{Kind: domain.OutcomeSkippedActivity},
			wantStatus: 200,
			wantBody:   SuccessBody{Message: "No operation performed as the activity type is not RUNNING."},
		},
		{
			name:       "failure",
			outcome:    domain.Outcome{Kind: domain.OutcomeUpdated, Updated: 1},
			err:        errors.New("pg: connection refused"),
			wantStatus: 500,
			wantBody:   ErrorBody{Error: "Failed to process event due to an internal error."},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := BuildResponse("RUNNING", tc.outcome, tc.err)
			require.Equal(t, tc.wantStatus, status)
			require.Equal(t, tc.wantBody, body)
		})
	}
}
