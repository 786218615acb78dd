package model

import (
	"encoding/json"
	"time"
)

// DefaultPassingScore applies when an exam document carries no passing score.
const DefaultPassingScore = 60

// Exam represents an exam document. It is read-only to the session engine.
type Exam struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	Duration     int    `json:"duration"`
	PassingScore int    `json:"passingScore"`
	IsActive     bool   `json:"isActive"`
	// QuestionRefs is the raw question reference collection, resolved at session start.
	QuestionRefs json.RawMessage `json:"selectedQuestions"`
	// TotalQuestions and TotalPoints are cached at authoring time and never used for scoring.
	TotalQuestions int       `json:"totalQuestions"`
	TotalPoints    int       `json:"totalPoints"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// UnmarshalJSON accepts the alternative reference keys "questionRefs" and "questions" and
// defaults isActive to true when absent.
func (e *Exam) UnmarshalJSON(data []byte) error {
	type alias Exam
	raw := struct {
		*alias
		IsActive     *bool           `json:"isActive"`
		QuestionRefs json.RawMessage `json:"questionRefs"`
		Questions    json.RawMessage `json:"questions"`
	}{alias: (*alias)(e)}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.IsActive = raw.IsActive == nil || *raw.IsActive
	if len(e.QuestionRefs) == 0 {
		e.QuestionRefs = raw.QuestionRefs
	}
	if len(e.QuestionRefs) == 0 {
		e.QuestionRefs = raw.Questions
	}
	return nil
}

// EffectivePassingScore returns the passing percentage, falling back to the default.
func (e *Exam) EffectivePassingScore() int {
	if e.PassingScore <= 0 {
		return DefaultPassingScore
	}
	return e.PassingScore
}

// DurationSeconds returns the exam duration in seconds, clamped at zero.
func (e *Exam) DurationSeconds() int {
	if e.Duration <= 0 {
		return 0
	}
	return e.Duration * 60
}
