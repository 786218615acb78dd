package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamDocKey returns the cache key for an exam document
func (r *CacheKeyStruct) ExamDocKey(examID string) string {
	return fmt.Sprintf("exam:%s:doc", examID)
}

// QuestionDocKey returns the cache key for a question document
func (r *CacheKeyStruct) QuestionDocKey(questionID string) string {
	return fmt.Sprintf("question:%s:doc", questionID)
}

// AnswerDraftKey returns the cache key holding a student's in-flight answers for an exam
func (r *CacheKeyStruct) AnswerDraftKey(studentID, examID string) string {
	return fmt.Sprintf("student:%s:exam:%s:draft", studentID, examID)
}

// RateLimitKey returns the fixed-window request counter of a client
func (r *CacheKeyStruct) RateLimitKey(clientID string, window int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", clientID, window)
}

var CacheKey = NewCacheKeyStruct()
