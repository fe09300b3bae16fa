package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"exameye/shield/internal/models"
)

// DefaultRecentLimit bounds getRecentViolations when the caller passes 0.
const DefaultRecentLimit = 50

// FetchError is any non-2xx or transport-level failure from the backend.
type FetchError struct {
	Status  int
	Message string
}

func (e *FetchError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("fetch failed: %s", e.Message)
	}
	return fmt.Sprintf("fetch failed: status %d: %s", e.Status, e.Message)
}

// Client is a stateless accessor for the monitoring read endpoints. Retry
// policy belongs to the caller.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &FetchError{Message: err.Error()}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &FetchError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &FetchError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &FetchError{Status: resp.StatusCode, Message: "invalid response body: " + err.Error()}
	}
	return nil
}

func (c *Client) GetStats(ctx context.Context) (models.SessionStats, error) {
	var stats models.SessionStats
	err := c.get(ctx, "/api/admin/stats", &stats)
	return stats, err
}

func (c *Client) GetActiveSessions(ctx context.Context) ([]models.ExamSession, error) {
	var sessions []models.ExamSession
	err := c.get(ctx, "/api/sessions/active/list", &sessions)
	return sessions, err
}

// GetRecentViolations returns the newest violations first.
func (c *Client) GetRecentViolations(ctx context.Context, limit int) ([]models.Violation, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	var violations []models.Violation
	err := c.get(ctx, "/api/violations/recent?limit="+strconv.Itoa(limit), &violations)
	return violations, err
}

func (c *Client) GetAverageStatistics(ctx context.Context) (models.AverageStatistics, error) {
	var avg models.AverageStatistics
	err := c.get(ctx, "/api/admin/statistics/average", &avg)
	return avg, err
}

func (c *Client) GetViolationsTimeline(ctx context.Context, limit int) (models.ViolationsTimeline, error) {
	path := "/api/violations/timeline"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var timeline models.ViolationsTimeline
	err := c.get(ctx, path, &timeline)
	return timeline, err
}

// GetSessionViolations returns all violations for one session, in whatever
// order the server chose.
func (c *Client) GetSessionViolations(ctx context.Context, sessionID string) ([]models.Violation, error) {
	var violations []models.Violation
	err := c.get(ctx, "/api/violations/session/"+url.PathEscape(sessionID), &violations)
	return violations, err
}
