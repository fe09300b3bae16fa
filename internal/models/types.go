package models

import (
	"encoding/json"
	"time"
)

// Message kinds pushed to the admin websocket.
const (
	MsgViolationAlert = "violation_alert"
	MsgSessionUpdate  = "session_update"
)

// PushMessage is the envelope for every frame on /ws/admin.
type PushMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// LiveAlert mirrors the violation_alert payload. It is schema-compatible
// with Violation but has no id: the alert goes out before the persisted
// record is visible to readers.
type LiveAlert struct {
	SessionID     string    `json:"session_id"`
	StudentID     string    `json:"student_id"`
	StudentName   string    `json:"student_name"`
	ViolationType string    `json:"violation_type"`
	Severity      string    `json:"severity"`
	Message       string    `json:"message"`
	SnapshotURL   *string   `json:"snapshot_url,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type SessionStats struct {
	TotalSessions     int `json:"total_sessions"`
	ActiveSessions    int `json:"active_sessions"`
	CompletedSessions int `json:"completed_sessions"`
	TotalViolations   int `json:"total_violations"`
}

type AverageStatistics struct {
	AvgViolationsPerStudent float64 `json:"avg_violations_per_student"`
	AvgExamDurationMinutes  float64 `json:"avg_exam_duration_minutes"`
	TotalStudents           int     `json:"total_students"`
}

type TimelinePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

type ViolationsTimeline struct {
	Timeline []TimelinePoint `json:"timeline"`
}

type HealthStatus struct {
	Status         string `json:"status"`
	ActiveClients  int    `json:"active_clients"`
	BroadcastsSent int64  `json:"broadcasts_sent"`
	Timestamp      string `json:"timestamp"`
}
