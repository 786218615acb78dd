package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/examquest-backend/internal/middleware"
	"github.com/stemsi/examquest-backend/internal/response"
	"github.com/stemsi/examquest-backend/internal/service"
	"github.com/stemsi/examquest-backend/internal/session"
	ws "github.com/stemsi/examquest-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live session: countdown ticks and grading go out, answer and
// navigation actions come in.
type WSHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/student/sessions/:session_id/stream
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID := c.Param("session_id")
	studentID := claims.UserID

	// Subscribe before upgrading so a foreign or unknown session never gets a socket.
	events, unsubscribe, err := h.sessionService.Subscribe(studentID, sessionID)
	if err != nil {
		failSession(c, err)
		return
	}
	defer unsubscribe()

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Str("student_id", studentID).
		Str("session_id", sessionID).
		Logger()

	wsLog.Info().Msg("Student connected")

	if ctrl, err := h.sessionService.Get(studentID, sessionID); err == nil {
		snap := ctrl.Snapshot()
		conn.WriteTyped(ws.TickResponse{Event: ws.EventTick, Remaining: snap.Remaining})
	}

	go h.pump(conn, wsLog, events)

	for {
		var msg ws.ActionRequest
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		h.handleAction(c.Request.Context(), conn, wsLog, studentID, sessionID, &msg)
	}
}

// pump forwards timer-driven events until the session is forgotten.
func (h *WSHandler) pump(conn *ws.Conn, wsLog zerolog.Logger, events <-chan service.SessionEvent) {
	for ev := range events {
		var err error
		switch ev.Type {
		case service.EventTick:
			err = conn.WriteTyped(ws.TickResponse{Event: ws.EventTick, Remaining: ev.Remaining})
		case service.EventFinished:
			if ev.Summary != nil {
				err = conn.WriteTyped(ws.GradedResponse{Event: ws.EventGraded, Reason: ws.ReasonExpired, Summary: *ev.Summary})
			}
		case service.EventFailed:
			_, code := sessionErrCode(ev.Err)
			err = conn.WriteError(string(code), ev.Err.Error(), nil)
		}
		if err != nil {
			wsLog.Debug().Err(err).Msg("Event write failed")
			return
		}
	}
	conn.CloseWith(websocket.CloseNormalClosure, "session closed")
}

func (h *WSHandler) handleAction(ctx context.Context, conn *ws.Conn, wsLog zerolog.Logger, studentID, sessionID string, msg *ws.ActionRequest) {
	svc := h.sessionService

	switch msg.Action {
	case ws.ActionAnswer:
		if len(msg.Answer) == 0 {
			conn.WriteError(string(response.ErrInvalidPayload), "answer is required", nil)
			return
		}
		if err := svc.SetAnswer(ctx, studentID, sessionID, msg.Index, msg.Answer); err != nil {
			h.writeSessionError(conn, err)
			return
		}
		conn.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, Index: msg.Index})

	case ws.ActionPlace:
		pairs, err := svc.PlaceItem(ctx, studentID, sessionID, msg.Index, msg.Item, msg.Target)
		if err != nil {
			h.writeSessionError(conn, err)
			return
		}
		conn.WriteTyped(ws.PlacementsResponse{Event: ws.EventPlacements, Index: msg.Index, Placements: pairs})

	case ws.ActionRemove:
		pairs, err := svc.RemovePlacement(ctx, studentID, sessionID, msg.Index, msg.Target)
		if err != nil {
			h.writeSessionError(conn, err)
			return
		}
		conn.WriteTyped(ws.PlacementsResponse{Event: ws.EventPlacements, Index: msg.Index, Placements: pairs})

	case ws.ActionNavigate:
		current, err := svc.Navigate(studentID, sessionID, service.Move(msg.Move), msg.Index)
		if err != nil {
			h.writeSessionError(conn, err)
			return
		}
		conn.WriteTyped(ws.NavigatedResponse{Event: ws.EventNavigated, CurrentIndex: current})

	case ws.ActionSubmit:
		summary, err := svc.Submit(ctx, studentID, sessionID, msg.Confirmed)
		pending := errors.Is(err, session.ErrProfileUpdate)
		if err != nil && !pending {
			h.writeSessionError(conn, err)
			return
		}
		wsLog.Info().
			Int("score", summary.Score).
			Int("total", summary.TotalPoints).
			Msg("Exam submitted and graded")
		conn.WriteTyped(ws.GradedResponse{Event: ws.EventGraded, Reason: ws.ReasonSubmitted, Summary: summary, ProfilePending: pending})

	case ws.ActionPing:
		conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})

	default:
		wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action), nil)
	}
}

func (h *WSHandler) writeSessionError(conn *ws.Conn, err error) {
	var confirm *session.ConfirmationError
	if errors.As(err, &confirm) {
		conn.WriteError(string(response.ErrConfirmationRequired), err.Error(), map[string]string{
			"unanswered": strconv.Itoa(confirm.Unanswered),
		})
		return
	}
	_, code := sessionErrCode(err)
	conn.WriteError(string(code), err.Error(), nil)
}
