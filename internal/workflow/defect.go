package workflow

import (
	"testmgmt-service/internal/apperror"
	"testmgmt-service/internal/model"
)

// Defect history action names.
const (
	ActionCreated      = "created"
	ActionUpdated      = "updated"
	ActionTransitioned = "status_changed"
	ActionReopened     = "reopened"
	ActionAssigned     = "assigned"
)

// defectTransitions enumerates the allowed defect status transitions. The
// forward path is Open → InProgress → Resolved → Closed; Reopen moves
// Resolved or Closed back to Open. Nothing else is valid.
var defectTransitions = map[model.DefectStatus][]model.DefectStatus{
	model.DefectOpen:       {model.DefectInProgress},
	model.DefectInProgress: {model.DefectResolved},
	model.DefectResolved:   {model.DefectClosed, model.DefectOpen},
	model.DefectClosed:     {model.DefectOpen},
}

// CanTransitionDefect reports whether a defect may move between the two
// statuses.
func CanTransitionDefect(from, to model.DefectStatus) bool {
	for _, next := range defectTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateDefectTransition returns an InvalidStateTransition error when the
// requested transition is not in the allowed set. Invalid transitions are
// rejected, never clamped to the nearest valid state.
func ValidateDefectTransition(from, to model.DefectStatus) error {
	if !CanTransitionDefect(from, to) {
		return apperror.InvalidTransition(string(from), string(to))
	}
	return nil
}

// IsReopen reports whether the transition is a reopen, which history records
// under its own action name.
func IsReopen(from, to model.DefectStatus) bool {
	return to == model.DefectOpen &&
		(from == model.DefectResolved || from == model.DefectClosed)
}
