package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exameye/shield/internal/models"
)

func TestGetStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/admin/stats", r.URL.Path)
		json.NewEncoder(w).Encode(models.SessionStats{TotalSessions: 10, TotalViolations: 5})
	}))
	defer srv.Close()

	stats, err := NewClient(srv.URL).GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.TotalSessions)
	assert.Equal(t, 5, stats.TotalViolations)
}

func TestNon2xxIsNeverSuccess(t *testing.T) {
	// A JSON body on an error status must still fail.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(models.SessionStats{TotalSessions: 99})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetStats(context.Background())
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.Status)
}

func TestFetchErrorCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database unavailable", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetActiveSessions(context.Background())
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "database unavailable", fetchErr.Message)
	assert.Contains(t, fetchErr.Error(), "500")
}

func TestTransportErrorHasNoStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	_, err := NewClient(srv.URL).GetStats(context.Background())
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 0, fetchErr.Status)
}

func TestRecentViolationsLimit(t *testing.T) {
	var gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		json.NewEncoder(w).Encode([]models.Violation{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	_, err := c.GetRecentViolations(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "10", gotLimit)

	// Zero falls back to the default.
	_, err = c.GetRecentViolations(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "50", gotLimit)
}

func TestGetSessionViolationsEscapesID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode([]models.Violation{{ID: "v-1", SessionID: "sess-1"}})
	}))
	defer srv.Close()

	violations, err := NewClient(srv.URL).GetSessionViolations(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "/api/violations/session/sess-1", gotPath)
}

func TestGetViolationsTimeline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/violations/timeline", r.URL.Path)
		assert.Equal(t, "30", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(models.ViolationsTimeline{
			Timeline: []models.TimelinePoint{{Count: 2}, {Count: 7}},
		})
	}))
	defer srv.Close()

	timeline, err := NewClient(srv.URL).GetViolationsTimeline(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, timeline.Timeline, 2)
	assert.Equal(t, 7, timeline.Timeline[1].Count)
}

func TestUnknownEnumValuesDecode(t *testing.T) {
	// violation_type and severity are open sets; new values must pass
	// through untouched.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]models.Violation{
			{ID: "v-1", ViolationType: "quantum_entanglement", Severity: "apocalyptic"},
		})
	}))
	defer srv.Close()

	violations, err := NewClient(srv.URL).GetRecentViolations(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "quantum_entanglement", violations[0].ViolationType)
	assert.Equal(t, "apocalyptic", violations[0].Severity)
}
