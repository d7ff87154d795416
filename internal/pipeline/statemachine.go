// internal/pipeline/statemachine.go
package pipeline

import (
	"loan-pipeline/internal/common/errors"
	"loan-pipeline/internal/models"
)

// transitions is the static table of caller-invoked moves. Anything not
// listed is invalid without an override. NEW, APPROVED and DECLINED have no
// entries: NEW is resolved at creation time and the other two are terminal.
var transitions = map[models.PipelineState][]models.PipelineState{
	models.StateRequiresDocs:    {models.StateUnderReview},
	models.StateUnderReview:     {models.StateLenderSubmitted},
	models.StateLenderSubmitted: {models.StateApproved, models.StateDeclined},
}

var allStates = map[models.PipelineState]struct{}{
	models.StateNew:             {},
	models.StateRequiresDocs:    {},
	models.StateUnderReview:     {},
	models.StateLenderSubmitted: {},
	models.StateApproved:        {},
	models.StateDeclined:        {},
}

// Valid reports whether s is a member of the pipeline state enumeration.
func Valid(s models.PipelineState) bool {
	_, ok := allStates[s]
	return ok
}

// AttemptTransition validates a move from current to requested. An override
// bypasses the table but not the enumeration: the target must still be one of
// the six states. The override decision itself belongs to the caller's
// authorization layer.
func AttemptTransition(current, requested models.PipelineState, overrideGranted bool) (models.PipelineState, error) {
	if !Valid(requested) {
		return "", errors.NewInvalidTransitionError(string(current), string(requested))
	}
	if overrideGranted {
		return requested, nil
	}
	for _, next := range transitions[current] {
		if next == requested {
			return requested, nil
		}
	}
	return "", errors.NewInvalidTransitionError(string(current), string(requested))
}

// InitialState resolves the transient NEW state at creation time.
func InitialState(allRequiredAccepted bool) models.PipelineState {
	if allRequiredAccepted {
		return models.StateUnderReview
	}
	return models.StateRequiresDocs
}
