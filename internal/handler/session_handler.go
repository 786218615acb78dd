package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/examquest-backend/internal/middleware"
	"github.com/stemsi/examquest-backend/internal/model"
	"github.com/stemsi/examquest-backend/internal/response"
	"github.com/stemsi/examquest-backend/internal/service"
	"github.com/stemsi/examquest-backend/internal/session"
	"github.com/stemsi/examquest-backend/internal/validator"
)

// SessionHandler exposes the exam session lifecycle to students.
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// StartSession godoc
// POST /api/v1/student/exams/:exam_id/sessions
// Opens the student's session for an exam, or returns the one already running.
func (h *SessionHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID := c.Param("exam_id")
	if examID == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	student := model.Profile{UserID: claims.UserID, DisplayName: claims.Name}
	sessionID, snap, err := h.sessionService.Start(c.Request.Context(), student, examID)
	if err != nil {
		failSession(c, err)
		return
	}

	if snap.EndReason == session.EndNoQuestions {
		response.SuccessWithWarning(c, http.StatusOK, gin.H{"session": snap}, response.ErrNoQuestions)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session_id": sessionID, "session": snap})
}

// GetSession godoc
// GET /api/v1/student/sessions/:session_id
// Returns the session state, used to redraw the exam page after a reload.
func (h *SessionHandler) GetSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	ctrl, err := h.sessionService.Get(claims.UserID, c.Param("session_id"))
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": ctrl.Snapshot()})
}

// SaveAnswer godoc
// PUT /api/v1/student/sessions/:session_id/answers/:index
func (h *SessionHandler) SaveAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	index, ok := questionIndex(c)
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.sessionService.SetAnswer(c.Request.Context(), claims.UserID, c.Param("session_id"), index, req.Answer); err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_index": index, "status": "saved"})
}

// PlaceItem godoc
// POST /api/v1/student/sessions/:session_id/answers/:index/placements
func (h *SessionHandler) PlaceItem(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	index, ok := questionIndex(c)
	if !ok {
		return
	}

	var req model.PlaceItemRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	pairs, err := h.sessionService.PlaceItem(c.Request.Context(), claims.UserID, c.Param("session_id"), index, req.Item, req.Target)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_index": index, "placements": pairs})
}

// RemovePlacement godoc
// DELETE /api/v1/student/sessions/:session_id/answers/:index/placements/:target
func (h *SessionHandler) RemovePlacement(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	index, ok := questionIndex(c)
	if !ok {
		return
	}

	pairs, err := h.sessionService.RemovePlacement(c.Request.Context(), claims.UserID, c.Param("session_id"), index, c.Param("target"))
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_index": index, "placements": pairs})
}

// Navigate godoc
// POST /api/v1/student/sessions/:session_id/navigate
func (h *SessionHandler) Navigate(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	current, err := h.sessionService.Navigate(claims.UserID, c.Param("session_id"), service.Move(req.Move), req.Index)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"current_index": current})
}

// Submit godoc
// POST /api/v1/student/sessions/:session_id/submit
// Grades and saves the attempt. A saved result whose profile write failed is still a 200,
// carrying PROFILE_UPDATE_FAILED next to the summary.
func (h *SessionHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SubmitRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	summary, err := h.sessionService.Submit(c.Request.Context(), claims.UserID, c.Param("session_id"), req.Confirmed)
	switch {
	case err == nil:
		response.Success(c, http.StatusOK, gin.H{"summary": summary})
	case errors.Is(err, session.ErrProfileUpdate):
		response.SuccessWithWarning(c, http.StatusOK, gin.H{"summary": summary, "profile_pending": true}, response.ErrProfileUpdateFailed)
	default:
		failSession(c, err)
	}
}

// RetryProfile godoc
// POST /api/v1/student/sessions/:session_id/profile-retry
func (h *SessionHandler) RetryProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.sessionService.RetryProfileUpdate(c.Request.Context(), claims.UserID, c.Param("session_id")); err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "profile updated"})
}

// LeaveSession godoc
// DELETE /api/v1/student/sessions/:session_id
// Abandons a live session without saving, or forgets a finished one.
func (h *SessionHandler) LeaveSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.sessionService.Leave(c.Request.Context(), claims.UserID, c.Param("session_id")); err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "left"})
}

// ─── Helpers ────────────────────────────────────────────────────────

func questionIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrQuestionOutOfRange)
		return 0, false
	}
	return index, true
}

// failSession maps session and service errors onto the response envelope.
func failSession(c *gin.Context, err error) {
	var confirm *session.ConfirmationError
	if errors.As(err, &confirm) {
		response.FailWithFields(c, http.StatusConflict, response.ErrConfirmationRequired, map[string]string{
			"unanswered": strconv.Itoa(confirm.Unanswered),
		})
		return
	}

	status, code := sessionErrCode(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	response.Fail(c, status, code)
}

// sessionErrCode picks the HTTP status and error code of a session error. The WebSocket
// stream reuses the codes.
func sessionErrCode(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, session.ErrConfirmationRequired):
		return http.StatusConflict, response.ErrConfirmationRequired
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, response.ErrSessionNotFound
	case errors.Is(err, session.ErrExamUnavailable):
		return http.StatusNotFound, response.ErrExamNotAvailable
	case errors.Is(err, session.ErrSubmissionInProgress):
		return http.StatusConflict, response.ErrSubmissionInProgress
	case errors.Is(err, session.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrAlreadySubmitted
	case errors.Is(err, session.ErrNotInProgress):
		return http.StatusConflict, response.ErrSessionNotInProgress
	case errors.Is(err, session.ErrTimeExpired):
		return http.StatusConflict, response.ErrTimeExpired
	case errors.Is(err, session.ErrIndexOutOfRange):
		return http.StatusBadRequest, response.ErrQuestionOutOfRange
	case errors.Is(err, service.ErrUnknownMove):
		return http.StatusBadRequest, response.ErrValidation
	case errors.Is(err, session.ErrPersistence):
		return http.StatusServiceUnavailable, response.ErrPersistenceFailed
	case errors.Is(err, session.ErrProfileUpdate):
		return http.StatusBadGateway, response.ErrProfileUpdateFailed
	case errors.Is(err, session.ErrNoPendingProfileUpdate):
		return http.StatusConflict, response.ErrNoPendingProfileUpdate
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}
