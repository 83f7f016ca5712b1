package workflow

import (
	"testmgmt-service/internal/apperror"
	"testmgmt-service/internal/model"
)

// CanTransitionResult reports whether a run result may move between the two
// statuses. NotRun may move to any executed status; executed statuses may
// move between each other on re-execution; nothing returns to NotRun.
func CanTransitionResult(from, to model.ResultStatus) bool {
	if to == model.ResultNotRun {
		return from == model.ResultNotRun
	}
	switch to {
	case model.ResultPassed, model.ResultFailed, model.ResultBlocked, model.ResultSkipped:
		return true
	}
	return false
}

// ValidateResultTransition returns an InvalidStateTransition error when the
// requested result status change is not allowed.
func ValidateResultTransition(from, to model.ResultStatus) error {
	if !CanTransitionResult(from, to) {
		return apperror.InvalidTransition(string(from), string(to))
	}
	return nil
}
