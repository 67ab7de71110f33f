package models

import "time"

// AttendancePolicy is the per-course configuration governing parent
// notification thresholds. One row per course, created lazily on first write.
type AttendancePolicy struct {
	ID                 string    `db:"id" json:"id"`
	CourseID           string    `db:"course_id" json:"course_id"`
	NoticeThreshold    int       `db:"notice_threshold" json:"notice_threshold"`
	AlertThreshold     int       `db:"alert_threshold" json:"alert_threshold"`
	MinimumPercent     float64   `db:"minimum_percent" json:"minimum_percent"`
	NotifyParents      bool      `db:"notify_parents" json:"notify_parents"`
	NotifyEveryAbsence bool      `db:"notify_every_absence" json:"notify_every_absence"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultPolicy returns the system-wide fallback used when a course has no
// stored configuration.
func DefaultPolicy(courseID string, notice, alert int, minimum float64) *AttendancePolicy {
	return &AttendancePolicy{
		CourseID:           courseID,
		NoticeThreshold:    notice,
		AlertThreshold:     alert,
		MinimumPercent:     minimum,
		NotifyParents:      true,
		NotifyEveryAbsence: false,
	}
}
