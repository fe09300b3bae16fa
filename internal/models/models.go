package models

import "time"

type Student struct {
	StudentID    string    `json:"student_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registered_at"`
}

type ExamSession struct {
	ID              string     `json:"id"`
	StudentID       string     `json:"student_id"`
	StudentName     string     `json:"student_name"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	Status          string     `json:"status"`
	CalibratedPitch float64    `json:"calibrated_pitch"`
	CalibratedYaw   float64    `json:"calibrated_yaw"`
	TotalFrames     int        `json:"total_frames"`
	ViolationCount  int        `json:"violation_count"`
}

type HeadPose struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

type Violation struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	StudentID     string    `json:"student_id"`
	StudentName   string    `json:"student_name"`
	Timestamp     time.Time `json:"timestamp"`
	ViolationType string    `json:"violation_type"`
	Severity      string    `json:"severity"`
	Message       string    `json:"message"`
	SnapshotURL   *string   `json:"snapshot_url,omitempty"`
	HeadPose      *HeadPose `json:"head_pose,omitempty"`
}

type RegisterStudentRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type StartSessionRequest struct {
	StudentID       string  `json:"student_id"`
	StudentName     string  `json:"student_name"`
	CalibratedPitch float64 `json:"calibrated_pitch"`
	CalibratedYaw   float64 `json:"calibrated_yaw"`
}

type ReportViolationRequest struct {
	SessionID     string    `json:"session_id"`
	ViolationType string    `json:"violation_type"`
	Severity      string    `json:"severity"`
	Message       string    `json:"message"`
	SnapshotURL   *string   `json:"snapshot_url,omitempty"`
	HeadPose      *HeadPose `json:"head_pose,omitempty"`
}
