package model

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a document does not exist.
var ErrNotFound = errors.New("document not found")

// PointsPerLevel is the width of one level band.
const PointsPerLevel = 100

// Profile holds the gamification fields of a student.
type Profile struct {
	UserID      string `json:"uid"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	Points      int    `json:"points"`
	Level       int    `json:"level"`
}

// ProfileUpdate credits the points one result earned. Stores apply it at most once per
// ResultID, adding PointsEarned to the stored total and deriving the level in the same write.
// Points and Level are the totals the attempt expected from its starting profile; they are
// shown to the student and never written.
type ProfileUpdate struct {
	ResultID     string `json:"result_id"`
	PointsEarned int    `json:"points_earned"`
	Points       int    `json:"points"`
	Level        int    `json:"level"`
}

// LevelForPoints maps cumulative points to a level: 0-99 is level 1, 100-199 level 2, ...
func LevelForPoints(points int) int {
	if points < 0 {
		points = 0
	}
	return points/PointsPerLevel + 1
}

// ProfileSyncJob is a deferred profile credit queued after the result was saved but the
// profile update failed. Credits are keyed by result, so replaying a job adds nothing.
type ProfileSyncJob struct {
	UserID       string    `json:"user_id"`
	ResultID     string    `json:"result_id"`
	PointsEarned int       `json:"points_earned"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// Update returns the credit the job carries.
func (j ProfileSyncJob) Update() ProfileUpdate {
	return ProfileUpdate{ResultID: j.ResultID, PointsEarned: j.PointsEarned}
}
