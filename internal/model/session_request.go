package model

import "encoding/json"

// ─── Session Requests ───────────────────────────────────────────────

// SaveAnswerRequest replaces the answer of one question.
type SaveAnswerRequest struct {
	Answer json.RawMessage `json:"answer" binding:"required"`
}

// PlaceItemRequest drops a drag-drop item on a target slot.
type PlaceItemRequest struct {
	Item   string `json:"item" binding:"required"`
	Target string `json:"target" binding:"required"`
}

// NavigateRequest moves the current question.
type NavigateRequest struct {
	Move  string `json:"move" binding:"required,oneof=next previous jump"`
	Index int    `json:"index"`
}

// SubmitRequest ends the session. Confirmed acknowledges unanswered questions.
type SubmitRequest struct {
	Confirmed bool `json:"confirmed"`
}
