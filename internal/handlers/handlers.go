package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"exameye/shield/internal/database"
	"exameye/shield/internal/models"
	"exameye/shield/internal/services"
	"exameye/shield/internal/ws"
)

const queryTimeout = 5 * time.Second

type Handlers struct {
	hub     *ws.Hub
	metrics *services.Metrics
	cors    string
}

func NewHandlers(hub *ws.Hub, metrics *services.Metrics, corsOrigins string) *Handlers {
	return &Handlers{hub: hub, metrics: metrics, cors: corsOrigins}
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) bool {
	return emailRegex.MatchString(email) && len(email) <= 255
}

const studentIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// generateStudentID builds IDs like STU-ABC123.
func generateStudentID() string {
	b := make([]byte, 6)
	for i := 0; i < 3; i++ {
		b[i] = studentIDAlphabet[rand.Intn(len(studentIDAlphabet))]
	}
	for i := 3; i < 6; i++ {
		b[i] = byte('0' + rand.Intn(10))
	}
	return "STU-" + string(b)
}

func (h *Handlers) enableCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", h.cors)
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RegisterStudent creates a student record with a generated STU- id.
func (h *Handlers) RegisterStudent(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	var req models.RegisterStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.Email == "" {
		http.Error(w, "Name and email are required", http.StatusBadRequest)
		return
	}
	if !validateEmail(req.Email) {
		http.Error(w, "Invalid email format", http.StatusBadRequest)
		return
	}

	student := models.Student{
		StudentID:    generateStudentID(),
		Name:         req.Name,
		Email:        req.Email,
		RegisteredAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	_, err := database.DB.ExecContext(ctx,
		"INSERT INTO students (student_id, name, email, registered_at) VALUES ($1, $2, $3, $4)",
		student.StudentID, student.Name, student.Email, student.RegisteredAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "students_email_key") {
			http.Error(w, "Email already registered", http.StatusConflict)
			return
		}
		log.Printf("Registration failed: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, student)
	log.Printf("Student registered: %s", student.StudentID)
}

// StartSession opens an exam session and notifies admin consoles.
func (h *Handlers) StartSession(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	var req models.StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.StudentID == "" || req.StudentName == "" {
		http.Error(w, "Student ID and name are required", http.StatusBadRequest)
		return
	}

	session := models.ExamSession{
		ID:              uuid.New().String(),
		StudentID:       req.StudentID,
		StudentName:     req.StudentName,
		StartTime:       time.Now().UTC(),
		Status:          "active",
		CalibratedPitch: req.CalibratedPitch,
		CalibratedYaw:   req.CalibratedYaw,
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	_, err := database.DB.ExecContext(ctx,
		`INSERT INTO exam_sessions (id, student_id, student_name, start_time, status, calibrated_pitch, calibrated_yaw)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.StudentID, session.StudentName, session.StartTime,
		session.Status, session.CalibratedPitch, session.CalibratedYaw,
	)
	if err != nil {
		log.Printf("Session start error: %v", err)
		http.Error(w, "Failed to start session", http.StatusInternalServerError)
		return
	}

	h.hub.BroadcastSessionUpdate()

	writeJSON(w, http.StatusCreated, session)
	log.Printf("Exam session started: %s for %s", session.ID, session.StudentName)
}

// EndSession completes a session and notifies admin consoles.
func (h *Handlers) EndSession(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	sessionID := r.PathValue("id")
	if sessionID == "" {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	result, err := database.DB.ExecContext(ctx,
		"UPDATE exam_sessions SET end_time = $1, status = 'completed' WHERE id = $2",
		time.Now().UTC(), sessionID,
	)
	if err != nil {
		log.Printf("Session end error: %v", err)
		http.Error(w, "Failed to end session", http.StatusInternalServerError)
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	h.hub.BroadcastSessionUpdate()

	writeJSON(w, http.StatusOK, map[string]string{"message": "Session ended successfully"})
	log.Printf("Session ended: %s", sessionID)
}

// ReportViolation persists a detected violation, bumps the session counter
// and broadcasts a violation_alert.
func (h *Handlers) ReportViolation(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	var req models.ReportViolationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || req.ViolationType == "" {
		http.Error(w, "Session ID and violation type are required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	var studentID, studentName string
	err := database.DB.QueryRowContext(ctx,
		"SELECT student_id, student_name FROM exam_sessions WHERE id = $1",
		req.SessionID,
	).Scan(&studentID, &studentName)
	if err == sql.ErrNoRows {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	} else if err != nil {
		log.Printf("Failed to verify session: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	violation := models.Violation{
		ID:            uuid.New().String(),
		SessionID:     req.SessionID,
		StudentID:     studentID,
		StudentName:   studentName,
		Timestamp:     time.Now().UTC(),
		ViolationType: req.ViolationType,
		Severity:      req.Severity,
		Message:       req.Message,
		SnapshotURL:   req.SnapshotURL,
		HeadPose:      req.HeadPose,
	}

	var headPitch, headYaw *float64
	if violation.HeadPose != nil {
		headPitch = &violation.HeadPose.Pitch
		headYaw = &violation.HeadPose.Yaw
	}

	_, err = database.DB.ExecContext(ctx,
		`INSERT INTO violations (id, session_id, student_id, student_name, violation_type, severity, message, snapshot_url, head_pitch, head_yaw, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		violation.ID, violation.SessionID, violation.StudentID, violation.StudentName,
		violation.ViolationType, violation.Severity, violation.Message,
		violation.SnapshotURL, headPitch, headYaw, violation.Timestamp,
	)
	if err != nil {
		log.Printf("Failed to save violation: %v", err)
		http.Error(w, "Failed to save violation", http.StatusInternalServerError)
		return
	}

	_, err = database.DB.ExecContext(ctx,
		"UPDATE exam_sessions SET violation_count = violation_count + 1 WHERE id = $1",
		req.SessionID,
	)
	if err != nil {
		log.Printf("Failed to update violation count: %v", err)
	}

	h.metrics.IncrementViolations()
	h.hub.BroadcastViolationAlert(models.LiveAlert{
		SessionID:     violation.SessionID,
		StudentID:     violation.StudentID,
		StudentName:   violation.StudentName,
		ViolationType: violation.ViolationType,
		Severity:      violation.Severity,
		Message:       violation.Message,
		SnapshotURL:   violation.SnapshotURL,
		Timestamp:     violation.Timestamp,
	})

	writeJSON(w, http.StatusCreated, violation)
	log.Printf("Violation detected: %s - %s", violation.ViolationType, violation.StudentName)
}

// GetActiveSessions lists sessions with status 'active'.
func (h *Handlers) GetActiveSessions(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)
	h.listSessions(w, r, "SELECT id, student_id, student_name, start_time, end_time, status, calibrated_pitch, calibrated_yaw, total_frames, violation_count FROM exam_sessions WHERE status = 'active' ORDER BY start_time DESC")
}

// GetAllSessions lists every session, newest first.
func (h *Handlers) GetAllSessions(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)
	h.listSessions(w, r, "SELECT id, student_id, student_name, start_time, end_time, status, calibrated_pitch, calibrated_yaw, total_frames, violation_count FROM exam_sessions ORDER BY start_time DESC")
}

func (h *Handlers) listSessions(w http.ResponseWriter, r *http.Request, query string, args ...interface{}) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	rows, err := database.DB.QueryContext(ctx, query, args...)
	if err != nil {
		log.Printf("Failed to fetch sessions: %v", err)
		http.Error(w, "Failed to fetch sessions", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	sessions := []models.ExamSession{}
	for rows.Next() {
		var s models.ExamSession
		var endTime sql.NullTime
		err := rows.Scan(&s.ID, &s.StudentID, &s.StudentName, &s.StartTime, &endTime,
			&s.Status, &s.CalibratedPitch, &s.CalibratedYaw, &s.TotalFrames, &s.ViolationCount)
		if err != nil {
			continue
		}
		if endTime.Valid {
			s.EndTime = &endTime.Time
		}
		sessions = append(sessions, s)
	}

	writeJSON(w, http.StatusOK, sessions)
}

const violationColumns = "id, session_id, student_id, student_name, violation_type, severity, message, snapshot_url, head_pitch, head_yaw, timestamp"

func scanViolations(rows *sql.Rows) []models.Violation {
	violations := []models.Violation{}
	for rows.Next() {
		var v models.Violation
		var snapshotURL sql.NullString
		var headPitch, headYaw sql.NullFloat64
		err := rows.Scan(&v.ID, &v.SessionID, &v.StudentID, &v.StudentName,
			&v.ViolationType, &v.Severity, &v.Message, &snapshotURL, &headPitch, &headYaw, &v.Timestamp)
		if err != nil {
			continue
		}
		if snapshotURL.Valid {
			v.SnapshotURL = &snapshotURL.String
		}
		if headPitch.Valid && headYaw.Valid {
			v.HeadPose = &models.HeadPose{Pitch: headPitch.Float64, Yaw: headYaw.Float64}
		}
		violations = append(violations, v)
	}
	return violations
}

// GetSessionViolations lists all violations for one session.
func (h *Handlers) GetSessionViolations(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	sessionID := r.PathValue("id")
	if sessionID == "" {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	rows, err := database.DB.QueryContext(ctx,
		"SELECT "+violationColumns+" FROM violations WHERE session_id = $1 ORDER BY timestamp DESC",
		sessionID,
	)
	if err != nil {
		log.Printf("Failed to fetch session violations: %v", err)
		http.Error(w, "Failed to fetch violations", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	writeJSON(w, http.StatusOK, scanViolations(rows))
}

// GetStudentViolations lists all violations for one student.
func (h *Handlers) GetStudentViolations(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	studentID := r.PathValue("id")
	if studentID == "" {
		http.Error(w, "Invalid student ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	rows, err := database.DB.QueryContext(ctx,
		"SELECT "+violationColumns+" FROM violations WHERE student_id = $1 ORDER BY timestamp DESC",
		studentID,
	)
	if err != nil {
		log.Printf("Failed to fetch student violations: %v", err)
		http.Error(w, "Failed to fetch violations", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	writeJSON(w, http.StatusOK, scanViolations(rows))
}

// GetRecentViolations lists the newest violations across all sessions.
func (h *Handlers) GetRecentViolations(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	rows, err := database.DB.QueryContext(ctx,
		"SELECT "+violationColumns+" FROM violations ORDER BY timestamp DESC LIMIT $1",
		limit,
	)
	if err != nil {
		log.Printf("Failed to fetch recent violations: %v", err)
		http.Error(w, "Failed to fetch violations", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	writeJSON(w, http.StatusOK, scanViolations(rows))
}

// GetStats returns the aggregate dashboard counters.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	var stats models.SessionStats
	err := database.DB.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM exam_sessions),
			(SELECT count(*) FROM exam_sessions WHERE status = 'active'),
			(SELECT count(*) FROM exam_sessions WHERE status = 'completed'),
			(SELECT count(*) FROM violations)`,
	).Scan(&stats.TotalSessions, &stats.ActiveSessions, &stats.CompletedSessions, &stats.TotalViolations)
	if err != nil {
		log.Printf("Stats error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GetAverageStatistics returns per-student and per-session averages.
func (h *Handlers) GetAverageStatistics(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	var avg models.AverageStatistics
	err := database.DB.QueryRowContext(ctx, `
		SELECT
			coalesce((SELECT count(*)::float8 FROM violations) / nullif((SELECT count(*) FROM students), 0), 0),
			coalesce((SELECT avg(extract(epoch FROM (end_time - start_time)) / 60.0) FROM exam_sessions WHERE end_time IS NOT NULL), 0),
			(SELECT count(*) FROM students)`,
	).Scan(&avg.AvgViolationsPerStudent, &avg.AvgExamDurationMinutes, &avg.TotalStudents)
	if err != nil {
		log.Printf("Average statistics error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, avg)
}

// GetViolationsTimeline returns per-minute violation counts, oldest first.
func (h *Handlers) GetViolationsTimeline(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	limit := 60
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	rows, err := database.DB.QueryContext(ctx, `
		SELECT bucket, cnt FROM (
			SELECT date_trunc('minute', timestamp) AS bucket, count(*) AS cnt
			FROM violations
			GROUP BY bucket
			ORDER BY bucket DESC
			LIMIT $1
		) t ORDER BY bucket ASC`,
		limit,
	)
	if err != nil {
		log.Printf("Timeline error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	timeline := models.ViolationsTimeline{Timeline: []models.TimelinePoint{}}
	for rows.Next() {
		var p models.TimelinePoint
		if err := rows.Scan(&p.Timestamp, &p.Count); err != nil {
			continue
		}
		timeline.Timeline = append(timeline.Timeline, p)
	}

	writeJSON(w, http.StatusOK, timeline)
}

// Health reports server and hub status.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	writeJSON(w, http.StatusOK, models.HealthStatus{
		Status:         "healthy",
		ActiveClients:  h.hub.ClientCount(),
		BroadcastsSent: h.metrics.GetBroadcasts(),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	})
}
