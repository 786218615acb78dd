package session

import (
	"errors"
	"fmt"
)

// Domain errors surfaced by the controller.
var (
	ErrExamUnavailable        = errors.New("exam is not available")
	ErrNotInProgress          = errors.New("session is not in progress")
	ErrSubmissionInProgress   = errors.New("a submission is already in progress")
	ErrAlreadySubmitted       = errors.New("session has already been submitted")
	ErrIndexOutOfRange        = errors.New("question index out of range")
	ErrTimeExpired            = errors.New("time is up, answers can no longer change")
	ErrPersistence            = errors.New("failed to save exam result")
	ErrProfileUpdate          = errors.New("result saved but profile update failed")
	ErrNoPendingProfileUpdate = errors.New("no pending profile update")
	ErrConfirmationRequired   = errors.New("submission requires confirmation")
)

// ConfirmationError is returned by a manual submit while questions are still unanswered and
// time remains. It matches ErrConfirmationRequired with errors.Is.
type ConfirmationError struct {
	Unanswered int
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("%d unanswered questions, submission requires confirmation", e.Unanswered)
}

func (e *ConfirmationError) Is(target error) bool {
	return target == ErrConfirmationRequired
}
