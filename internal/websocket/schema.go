package websocket

import (
	"encoding/json"

	"github.com/stemsi/examquest-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionPlace    Action = "place"
	ActionRemove   Action = "remove"
	ActionNavigate Action = "navigate"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// ActionRequest carries every client action; each action reads only its own fields.
type ActionRequest struct {
	Action    Action          `json:"action"`
	Index     int             `json:"index"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Item      string          `json:"item,omitempty"`
	Target    string          `json:"target,omitempty"`
	Move      string          `json:"move,omitempty"`
	Confirmed bool            `json:"confirmed,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError      Event = "error"
	EventSaved      Event = "saved"
	EventPlacements Event = "placements"
	EventNavigated  Event = "navigated"
	EventTick       Event = "tick"
	EventGraded     Event = "graded"
	EventPong       Event = "pong"
)

// Finish reasons carried by GradedResponse.
const (
	ReasonSubmitted = "submitted"
	ReasonExpired   = "expired"
)

type SavedResponse struct {
	Event Event `json:"event"`
	Index int   `json:"index"`
}

type PlacementsResponse struct {
	Event      Event        `json:"event"`
	Index      int          `json:"index"`
	Placements []model.Pair `json:"placements"`
}

type NavigatedResponse struct {
	Event        Event `json:"event"`
	CurrentIndex int   `json:"current_index"`
}

type TickResponse struct {
	Event     Event `json:"event"`
	Remaining int   `json:"remaining_seconds"`
}

type GradedResponse struct {
	Event          Event         `json:"event"`
	Reason         string        `json:"reason"`
	Summary        model.Summary `json:"summary"`
	ProfilePending bool          `json:"profile_pending"`
}

type ErrorResponse struct {
	Event  Event             `json:"event"`
	Code   string            `json:"code"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
