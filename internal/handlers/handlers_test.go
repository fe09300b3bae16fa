package handlers

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateStudentID(t *testing.T) {
	pattern := regexp.MustCompile(`^STU-[A-Z]{3}[0-9]{3}$`)
	for i := 0; i < 100; i++ {
		id := generateStudentID()
		assert.True(t, pattern.MatchString(id), "unexpected id %q", id)
	}
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, validateEmail("jane@example.com"))
	assert.True(t, validateEmail("j.doe+exam@uni.edu"))
	assert.False(t, validateEmail("not-an-email"))
	assert.False(t, validateEmail("@missing.local"))
	assert.False(t, validateEmail(""))
}

func TestReportTemplateRenders(t *testing.T) {
	var sb strings.Builder
	err := reportTemplate.Execute(&sb, &exportData{
		Generated:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		TotalStudents:   4,
		TotalSessions:   10,
		TotalViolations: 5,
		TypeCounts:      []typeCount{{Type: "phone_detected", Count: 3}, {Type: "looking_away", Count: 2}},
		StudentCounts:   []studentCount{{StudentID: "STU-ABC123", StudentName: "Jane", Count: 3}},
	})
	require.NoError(t, err)

	html := sb.String()
	assert.Contains(t, html, "Exam Proctoring Summary Report")
	assert.Contains(t, html, "phone_detected")
	assert.Contains(t, html, "STU-ABC123")
	assert.Contains(t, html, `<div class="stat-number">5</div>`)
}
