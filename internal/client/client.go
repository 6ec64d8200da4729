// Package client is a typed HTTP client for the fittrack API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"example.com/fittrack/internal/api"
)

// APIError is a non-2xx response decoded from the API error envelope.
type APIError struct {
	Status int
	Type   string
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api error (%d): %s", e.Status, e.Type)
	}
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Detail)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// Client calls the fittrack API with a bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New constructs a Client. An empty token sends unauthenticated requests.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// LoginURL returns the API endpoint that starts a browser login returning to returnTo.
func (c *Client) LoginURL(returnTo string) string {
	return c.baseURL + "/v1/auth/login?return_to=" + url.QueryEscape(returnTo)
}

// CreateActivity posts a new activity. A non-empty idempotency key makes retries safe.
func (c *Client) CreateActivity(ctx context.Context, req api.ActivityRequest, idempotencyKey string) (api.CreateActivityResponse, error) {
	var out api.CreateActivityResponse
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}
	err := c.do(ctx, http.MethodPost, "/v1/activities", req, &out, headers)
	return out, err
}

// ListActivities fetches one page of activities, newest first.
func (c *Client) ListActivities(ctx context.Context, limit int, cursor string) (api.ListActivitiesResponse, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	path := "/v1/activities"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out api.ListActivitiesResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out, nil)
	return out, err
}

// GetActivity fetches a single activity.
func (c *Client) GetActivity(ctx context.Context, id string) (api.ActivityView, error) {
	var out api.ActivityView
	err := c.do(ctx, http.MethodGet, "/v1/activities/"+url.PathEscape(id), nil, &out, nil)
	return out, err
}

// UpdateActivity replaces an activity.
func (c *Client) UpdateActivity(ctx context.Context, id string, req api.ActivityRequest) (api.ActivityView, error) {
	var out api.ActivityView
	err := c.do(ctx, http.MethodPut, "/v1/activities/"+url.PathEscape(id), req, &out, nil)
	return out, err
}

// DeleteActivity removes an activity.
func (c *Client) DeleteActivity(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/activities/"+url.PathEscape(id), nil, nil, nil)
}

// Dashboard fetches the aggregate statistics.
func (c *Client) Dashboard(ctx context.Context) (api.DashboardView, error) {
	var out api.DashboardView
	err := c.do(ctx, http.MethodGet, "/v1/dashboard", nil, &out, nil)
	return out, err
}

// Recommendations lists advice for every activity.
func (c *Client) Recommendations(ctx context.Context) ([]api.RecommendationView, error) {
	var out api.ListRecommendationsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/recommendations", nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ActivityRecommendation returns advice for one activity, or nil when none
// has been generated yet.
func (c *Client) ActivityRecommendation(ctx context.Context, activityID string) (*api.RecommendationView, error) {
	var out api.RecommendationView
	err := c.do(ctx, http.MethodGet, "/v1/recommendations/activities/"+url.PathEscape(activityID), nil, &out, nil)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Preferences fetches the server-side preferences.
func (c *Client) Preferences(ctx context.Context) (api.PreferencesView, error) {
	var out api.PreferencesView
	err := c.do(ctx, http.MethodGet, "/v1/preferences", nil, &out, nil)
	return out, err
}

// UpdatePreferences applies a partial preferences update.
func (c *Client) UpdatePreferences(ctx context.Context, req api.PreferencesRequest) (api.PreferencesView, error) {
	var out api.PreferencesView
	err := c.do(ctx, http.MethodPut, "/v1/preferences", req, &out, nil)
	return out, err
}

// Me describes the token holder.
func (c *Client) Me(ctx context.Context) (api.UserView, error) {
	var out api.UserView
	err := c.do(ctx, http.MethodGet, "/v1/auth/me", nil, &out, nil)
	return out, err
}

// Logout asks the API for the provider end-session URL.
func (c *Client) Logout(ctx context.Context) (api.LogoutResponse, error) {
	var out api.LogoutResponse
	err := c.do(ctx, http.MethodPost, "/v1/auth/logout", nil, &out, nil)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Type   string `json:"type"`
			Detail string `json:"detail"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &envelope) == nil {
			apiErr.Type, apiErr.Detail = envelope.Type, envelope.Detail
		} else {
			apiErr.Detail = strings.TrimSpace(string(data))
		}
		if apiErr.Type == "" {
			apiErr.Type = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
