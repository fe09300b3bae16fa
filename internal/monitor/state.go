package monitor

import (
	"time"

	"exameye/shield/internal/models"
)

// SessionDetail is the drilled-into session and its violation history,
// always replaced as a unit.
type SessionDetail struct {
	SessionID  string
	Violations []models.Violation
}

// DashboardState is a point-in-time copy of everything the console renders.
// The presentation layer never mutates it.
type DashboardState struct {
	Stats            models.SessionStats
	ActiveSessions   []models.ExamSession
	RecentViolations []models.Violation
	Averages         models.AverageStatistics
	Timeline         []models.TimelinePoint
	Alerts           []models.LiveAlert
	Selected         *SessionDetail
	Connected        bool
	LastRefresh      time.Time
}
