package response

import "testing"

func TestLocalizedMessage(t *testing.T) {
	tests := []struct {
		name   string
		header string
		code   ErrCode
		want   string
	}{
		{"no header is english", "", ErrNoQuestions, "This exam has no questions."},
		{"indonesian", "id-ID,id;q=0.9,en;q=0.8", ErrNoQuestions, "Ujian ini tidak memiliki pertanyaan."},
		{"unsupported language falls back", "fr-FR", ErrExamNotAvailable, "This exam is currently not available."},
		{"english preferred", "en-US,id;q=0.5", ErrConfirmationRequired, GetMessage(ErrConfirmationRequired)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LocalizedMessage(tt.header, tt.code); got != tt.want {
				t.Fatalf("LocalizedMessage(%q, %s) = %q, want %q", tt.header, tt.code, got, tt.want)
			}
		})
	}
}

func TestEveryCodeHasAMessage(t *testing.T) {
	codes := []ErrCode{
		ErrTokenRequired, ErrTokenInvalid, ErrTokenExpired, ErrForbidden, ErrStudentAccessOnly,
		ErrValidation, ErrInvalidID, ErrInvalidPayload, ErrNotFound, ErrExamNotAvailable,
		ErrNoQuestions, ErrSessionNotFound, ErrSessionNotInProgress, ErrSubmissionInProgress,
		ErrAlreadySubmitted, ErrQuestionOutOfRange, ErrTimeExpired, ErrConfirmationRequired, ErrPersistenceFailed,
		ErrProfileUpdateFailed, ErrNoPendingProfileUpdate, ErrRateLimitExceeded, ErrInternal,
	}
	fallback := GetMessage("SOMETHING_ELSE")
	for _, code := range codes {
		if GetMessage(code) == fallback {
			t.Fatalf("%s has no dedicated message", code)
		}
		if LocalizedMessage("id", code) == GetMessage(code) {
			t.Fatalf("%s has no Indonesian translation", code)
		}
	}
}
