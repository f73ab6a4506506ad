package api

import (
	"fmt"

	"github.com/Gamified-Coaching-App/challenges-user-progress/internal/domain"
)

// SuccessBody is the 2xx response shape.
type SuccessBody struct {
	Message string `json:"message"`
}

// ErrorBody is the failure response shape. Internal error detail is never
// exposed to the caller.
type ErrorBody struct {
	Error string `json:"error"`
}

const (
	updatedMessage       = "Challenges updated successfully."
	noChallengesMessage  = "No current challenges found for the user."
	internalErrorMessage = "Failed to process event due to an internal error."
)

// BuildResponse maps an invocation outcome to a status code and body. Only
// two shapes are ever produced: a 200 informational body, or a 500 generic
// error body. An empty challenge set is a normal terminal state, not an
// error, so it maps to 200.
func BuildResponse(trackedActivity string, outcome domain.Outcome, err error) (int, interface{}) {
	if err != nil {
		return 500, ErrorBody{Error: internalErrorMessage}
	}

	switch outcome.Kind {
	case domain.OutcomeSkippedActivity:
		return 200, SuccessBody{Message: fmt.Sprintf("No operation performed as the activity type is not %s.", trackedActivity)}
	case domain.OutcomeNoChallenges:
		return 200, SuccessBody{Message: noChallengesMessage}
	default:
		return 200, SuccessBody{Message: updatedMessage}
	}
}
