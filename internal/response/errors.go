package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrExamNotAvailable       ErrCode = "EXAM_NOT_AVAILABLE"
	ErrNoQuestions            ErrCode = "NO_QUESTIONS"
	ErrSessionNotFound        ErrCode = "SESSION_NOT_FOUND"
	ErrSessionNotInProgress   ErrCode = "SESSION_NOT_IN_PROGRESS"
	ErrSubmissionInProgress   ErrCode = "SUBMISSION_IN_PROGRESS"
	ErrAlreadySubmitted       ErrCode = "ALREADY_SUBMITTED"
	ErrQuestionOutOfRange     ErrCode = "QUESTION_OUT_OF_RANGE"
	ErrTimeExpired            ErrCode = "TIME_EXPIRED"
	ErrConfirmationRequired   ErrCode = "CONFIRMATION_REQUIRED"
	ErrPersistenceFailed      ErrCode = "PERSISTENCE_FAILED"
	ErrProfileUpdateFailed    ErrCode = "PROFILE_UPDATE_FAILED"
	ErrNoPendingProfileUpdate ErrCode = "NO_PENDING_PROFILE_UPDATE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "This exam is currently not available."
	case ErrNoQuestions:
		return "This exam has no questions."
	case ErrSessionNotFound:
		return "Exam session not found or already closed."
	case ErrSessionNotInProgress:
		return "This exam session is not in progress."
	case ErrSubmissionInProgress:
		return "A submission for this exam is already in progress."
	case ErrAlreadySubmitted:
		return "This exam has already been submitted."
	case ErrQuestionOutOfRange:
		return "Question number is out of range."
	case ErrTimeExpired:
		return "Time is up. Your answers are being submitted and can no longer change."
	case ErrConfirmationRequired:
		return "Some questions are still unanswered. Confirm to submit anyway."
	case ErrPersistenceFailed:
		return "Your answers could not be saved. Please try submitting again."
	case ErrProfileUpdateFailed:
		return "Your result was saved but your points could not be updated yet."
	case ErrNoPendingProfileUpdate:
		return "There is no pending points update for this exam."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
