package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// QuestionType enumerates the supported question shapes.
type QuestionType string

const (
	QuestionTypeMultipleChoice       QuestionType = "multiple-choice"
	QuestionTypeTrueFalse            QuestionType = "true-false"
	QuestionTypeShortAnswer          QuestionType = "short-answer"
	QuestionTypeDragDrop             QuestionType = "drag-drop"
	QuestionTypeReadingComprehension QuestionType = "reading-comprehension"

	// questionTypeLegacyMCQ is how older question documents spell multiple-choice.
	questionTypeLegacyMCQ QuestionType = "mcq"
)

// NormalizeQuestionType maps legacy and empty spellings onto the canonical type.
func NormalizeQuestionType(t QuestionType) QuestionType {
	switch QuestionType(strings.ToLower(strings.TrimSpace(string(t)))) {
	case "", questionTypeLegacyMCQ, QuestionTypeMultipleChoice:
		return QuestionTypeMultipleChoice
	case QuestionTypeTrueFalse:
		return QuestionTypeTrueFalse
	case QuestionTypeShortAnswer:
		return QuestionTypeShortAnswer
	case QuestionTypeDragDrop:
		return QuestionTypeDragDrop
	case QuestionTypeReadingComprehension:
		return QuestionTypeReadingComprehension
	default:
		return t
	}
}

// Difficulty is informational only; it never affects scoring.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Pair is one drag-drop placement: an item dropped on a target slot.
type Pair struct {
	Item   string `json:"item" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// UnmarshalJSON accepts the legacy "match" key as an alias for "target".
func (p *Pair) UnmarshalJSON(data []byte) error {
	var raw struct {
		Item   string  `json:"item"`
		Target *string `json:"target"`
		Match  *string `json:"match"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Item = raw.Item
	switch {
	case raw.Target != nil:
		p.Target = *raw.Target
	case raw.Match != nil:
		p.Target = *raw.Match
	default:
		p.Target = ""
	}
	return nil
}

// Question is a single exam question document.
//
// The correct answer is stored in CorrectText for the text-comparison types and in
// CorrectPairs for drag-drop; both travel in the single JSON field "correctAnswer".
type Question struct {
	ID           string       `json:"id" validate:"required"`
	Type         QuestionType `json:"type" validate:"required,oneof=multiple-choice true-false short-answer drag-drop reading-comprehension"`
	Category     string       `json:"category"`
	Prompt       string       `json:"question"`
	Passage      string       `json:"passage,omitempty"`
	ImageURL     string       `json:"imageUrl,omitempty"`
	Options      []string     `json:"options,omitempty"`
	Items        []string     `json:"items,omitempty"`
	Matches      []string     `json:"matches,omitempty"`
	CorrectText  string       `json:"-"`
	CorrectPairs []Pair       `json:"-" validate:"omitempty,dive"`
	Points       int          `json:"points" validate:"gte=0"`
	Difficulty   Difficulty   `json:"difficulty,omitempty"`
	Explanation  string       `json:"explanation,omitempty"`
}

// questionDoc is the wire shape of a question document.
type questionDoc struct {
	ID            string          `json:"id"`
	Type          QuestionType    `json:"type"`
	Category      string          `json:"category"`
	Question      string          `json:"question"`
	Prompt        string          `json:"prompt"`
	Passage       string          `json:"passage"`
	ImageURL      string          `json:"imageUrl"`
	Options       []string        `json:"options"`
	Items         []string        `json:"items"`
	Matches       []string        `json:"matches"`
	CorrectAnswer json.RawMessage `json:"correctAnswer"`
	Points        json.RawMessage `json:"points"`
	Difficulty    Difficulty      `json:"difficulty"`
	Explanation   string          `json:"explanation"`
}

// UnmarshalJSON decodes a question document leniently: the type is normalised, points may be
// a number or a numeric string, and the correct answer shape follows the type.
func (q *Question) UnmarshalJSON(data []byte) error {
	var doc questionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	*q = Question{
		ID:          doc.ID,
		Type:        NormalizeQuestionType(doc.Type),
		Category:    doc.Category,
		Prompt:      doc.Question,
		Passage:     doc.Passage,
		ImageURL:    doc.ImageURL,
		Options:     doc.Options,
		Items:       doc.Items,
		Matches:     doc.Matches,
		Points:      coercePoints(doc.Points),
		Difficulty:  doc.Difficulty,
		Explanation: doc.Explanation,
	}
	if q.Prompt == "" {
		q.Prompt = doc.Prompt
	}

	answer := bytes.TrimSpace(doc.CorrectAnswer)
	if len(answer) == 0 || bytes.Equal(answer, []byte("null")) {
		return nil
	}

	if q.Type == QuestionTypeDragDrop {
		var pairs []Pair
		if err := json.Unmarshal(answer, &pairs); err == nil {
			q.CorrectPairs = pairs
		}
		if len(q.Items) == 0 && len(q.Matches) == 0 {
			for _, p := range q.CorrectPairs {
				q.Items = append(q.Items, p.Item)
				q.Matches = append(q.Matches, p.Target)
			}
		}
		return nil
	}

	var text string
	if err := json.Unmarshal(answer, &text); err == nil {
		q.CorrectText = text
		return nil
	}
	// Booleans and numbers keep their literal spelling ("true", "3").
	q.CorrectText = string(answer)
	return nil
}

// MarshalJSON writes the correct answer back under "correctAnswer".
func (q Question) MarshalJSON() ([]byte, error) {
	type alias Question
	out := struct {
		alias
		CorrectAnswer interface{} `json:"correctAnswer"`
	}{alias: alias(q)}

	if q.Type == QuestionTypeDragDrop {
		pairs := q.CorrectPairs
		if pairs == nil {
			pairs = []Pair{}
		}
		out.CorrectAnswer = pairs
	} else {
		out.CorrectAnswer = q.CorrectText
	}
	return json.Marshal(out)
}

// LooksLikeQuestion reports whether a decoded JSON object carries question content rather than
// being a bare {id: ...} reference.
func LooksLikeQuestion(obj map[string]json.RawMessage) bool {
	for _, k := range []string{"type", "question", "prompt", "correctAnswer", "options", "passage"} {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

func coercePoints(raw json.RawMessage) int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		n = parsed
	}
	if n <= 0 {
		return 0
	}
	return int(n)
}
