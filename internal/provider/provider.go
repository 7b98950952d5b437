// Package provider is the HTTP client for the sports-data provider.
//
// It exposes the provider's achievement list, activity list, and per-activity
// achievement detail, and maps HTTP outcomes onto the model error taxonomy:
// 404 is model.ErrNotFound, 429 is *model.RateLimitError, and anything else
// that fails is model.ErrTransient (or model.ErrUpstreamUnavailable for list
// endpoints, which have no per-item fallback).
package provider

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ashita-ai/kiroku/internal/model"
)

// Client talks to the provider's JSON API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client. An empty apiKey sends unauthenticated requests.
// Requests carry the caller's trace context and are recorded as client spans.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type achievementsResponse struct {
	Achievements []model.AchievementRecord `json:"achievements"`
}

type activitiesResponse struct {
	Activities []model.ActivityRecord `json:"activities"`
}

// FetchCurrentAchievements returns the competitor's cumulative achievement
// list. Every failure wraps model.ErrUpstreamUnavailable.
func (c *Client) FetchCurrentAchievements(ctx context.Context, competitorID string) ([]model.AchievementRecord, error) {
	var out achievementsResponse
	if err := c.getJSON(ctx, "/competitors/"+url.PathEscape(competitorID)+"/achievements", &out); err != nil {
		return nil, fmt.Errorf("provider: achievements for %s: %w: %w", competitorID, model.ErrUpstreamUnavailable, err)
	}
	return out.Achievements, nil
}

// ListActivities returns the competitor's full activity list. Records
// without a competitor id are attributed to competitorID.
func (c *Client) ListActivities(ctx context.Context, competitorID string) ([]model.ActivityRecord, error) {
	var out activitiesResponse
	if err := c.getJSON(ctx, "/competitors/"+url.PathEscape(competitorID)+"/activities", &out); err != nil {
		return nil, fmt.Errorf("provider: activities for %s: %w: %w", competitorID, model.ErrUpstreamUnavailable, err)
	}
	for i := range out.Activities {
		if out.Activities[i].CompetitorID == "" {
			out.Activities[i].CompetitorID = competitorID
		}
	}
	return out.Activities, nil
}

// FetchActivityDetail returns the achievement snapshot of one activity.
func (c *Client) FetchActivityDetail(ctx context.Context, activityID string) (model.ActivitySnapshot, error) {
	var snap model.ActivitySnapshot
	if err := c.getJSON(ctx, "/activities/"+url.PathEscape(activityID)+"/achievements", &snap); err != nil {
		return model.ActivitySnapshot{}, fmt.Errorf("provider: activity %s: %w", activityID, err)
	}
	if snap.ActivityID == "" {
		snap.ActivityID = activityID
	}
	return snap, nil
}

// getJSON performs a GET and decodes a 200 response into target.
func (c *Client) getJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: send request: %w", model.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return model.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return &model.RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: status %d: %s", model.ErrTransient, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("%w: decode response: %w", model.ErrTransient, err)
	}
	return nil
}

// parseRetryAfter accepts delay-seconds or an HTTP date; zero if absent or invalid.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
