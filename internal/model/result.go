package model

import (
	"encoding/json"
	"time"
)

// ResultAnswer is one captured answer inside a Result.
type ResultAnswer struct {
	QuestionIndex int             `json:"questionIndex"`
	QuestionID    string          `json:"questionId"`
	Answer        json.RawMessage `json:"answer"`
}

// Result is the immutable record of one completed exam attempt.
type Result struct {
	ID               string         `json:"id"`
	ExamID           string         `json:"examId"`
	ExamTitle        string         `json:"examTitle"`
	StudentID        string         `json:"studentId"`
	StudentName      string         `json:"studentName"`
	Answers          []ResultAnswer `json:"answers"`
	Score            int            `json:"score"`
	TotalPoints      int            `json:"totalPoints"`
	Percentage       int            `json:"percentage"`
	CompletedAt      time.Time      `json:"completedAt"`
	TimeTakenSeconds int            `json:"timeTaken"`
}

// Summary is handed to the result view when a session ends.
type Summary struct {
	ResultID     string `json:"resultId"`
	Score        int    `json:"score"`
	TotalPoints  int    `json:"totalPoints"`
	Percentage   int    `json:"percentage"`
	PointsEarned int    `json:"pointsEarned"`
	Passed       bool   `json:"passed"`
}
