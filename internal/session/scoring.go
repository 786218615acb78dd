package session

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/stemsi/examquest-backend/internal/model"
	"github.com/stemsi/examquest-backend/internal/validator"
)

// Verdict explains how a single question was scored.
type Verdict string

const (
	VerdictCorrect         Verdict = "correct"
	VerdictIncorrect       Verdict = "incorrect"
	VerdictUnanswered      Verdict = "unanswered"
	VerdictMalformedAnswer Verdict = "malformed_answer"
	VerdictInvalidQuestion Verdict = "invalid_question"
)

// AnswerSource exposes captured answers by question position. *AnswerStore implements it.
type AnswerSource interface {
	Answer(index int) (json.RawMessage, bool)
}

// QuestionScore is the scoring detail of one question.
type QuestionScore struct {
	Index      int     `json:"questionIndex"`
	QuestionID string  `json:"questionId"`
	Points     int     `json:"points"`
	Earned     int     `json:"earned"`
	Verdict    Verdict `json:"verdict"`
}

// Outcome is the result of Score. Earned never exceeds Total.
type Outcome struct {
	Earned    int             `json:"earned"`
	Total     int             `json:"total"`
	Breakdown []QuestionScore `json:"breakdown"`
}

// Score grades answers against the question sequence. It has no side effects and never fails:
// missing or malformed answers earn nothing, and questions that fail validation are skipped
// while their points still count toward the total.
func Score(questions []model.Question, answers AnswerSource) Outcome {
	out := Outcome{Breakdown: make([]QuestionScore, 0, len(questions))}

	for i := range questions {
		q := questions[i]
		q.Type = model.NormalizeQuestionType(q.Type)
		points := max(q.Points, 0)
		out.Total += points

		qs := QuestionScore{Index: i, QuestionID: q.ID, Points: points}
		qs.Verdict = grade(&q, answers, i)
		if qs.Verdict == VerdictCorrect {
			qs.Earned = points
			out.Earned += points
		}
		out.Breakdown = append(out.Breakdown, qs)
	}
	return out
}

func grade(q *model.Question, answers AnswerSource, index int) Verdict {
	if err := validator.Question(q); err != nil {
		return VerdictInvalidQuestion
	}

	var raw json.RawMessage
	var ok bool
	if answers != nil {
		raw, ok = answers.Answer(index)
	}
	raw = bytes.TrimSpace(raw)
	if !ok || len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return VerdictUnanswered
	}

	var correct bool
	switch q.Type {
	case model.QuestionTypeMultipleChoice, model.QuestionTypeTrueFalse, model.QuestionTypeReadingComprehension:
		text, ok := answerText(raw)
		if !ok {
			return VerdictMalformedAnswer
		}
		correct = text == q.CorrectText
	case model.QuestionTypeShortAnswer:
		text, ok := answerText(raw)
		if !ok {
			return VerdictMalformedAnswer
		}
		correct = strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(q.CorrectText))
	case model.QuestionTypeDragDrop:
		var submitted []model.Pair
		if err := json.Unmarshal(raw, &submitted); err != nil {
			return VerdictMalformedAnswer
		}
		correct = pairsMatch(q.CorrectPairs, submitted)
	default:
		return VerdictInvalidQuestion
	}

	if correct {
		return VerdictCorrect
	}
	return VerdictIncorrect
}

// answerText reads a scalar answer. Strings compare by value, booleans and numbers by their
// literal spelling.
func answerText(raw json.RawMessage) (string, bool) {
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case '{', '[':
		return "", false
	default:
		if !json.Valid(raw) {
			return "", false
		}
		return string(raw), true
	}
}

// pairsMatch is all-or-nothing: every correct pair must be submitted and nothing else.
func pairsMatch(correct, submitted []model.Pair) bool {
	if len(submitted) != len(correct) {
		return false
	}

	want := make(map[model.Pair]int, len(correct))
	for _, p := range correct {
		want[p]++
	}
	for _, p := range submitted {
		if want[p] == 0 {
			return false
		}
		want[p]--
	}
	return true
}

// Percentage rounds earned/total to a whole percent. A zero total yields 0.
func Percentage(earned, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(earned) * 100 / float64(total)))
}
