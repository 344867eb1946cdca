package mcp

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

	"github.com/claude/formreps/internal/exercise"
	"github.com/claude/formreps/internal/session"
	"github.com/claude/formreps/internal/storage"
)

// HTTPClient implements DataSource by calling the FormReps REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// the camera and session live on another machine.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL. apiKey
// is sent as X-API-Key when non-empty.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// statusError is a non-200 response.
type statusError struct {
	path string
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("httpclient: %s returned %d: %s", e.path, e.code, e.body)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{path: path, code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	return body, nil
}

func (c *HTTPClient) ExerciseData(ctx context.Context) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodGet, "/exercise_data", nil)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("httpclient: decode exercise data: invalid JSON")
	}
	return json.RawMessage(body), nil
}

func (c *HTTPClient) Status(ctx context.Context) (session.Info, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/status", nil)
	if err != nil {
		return session.Info{}, err
	}

	var info session.Info
	if err := json.Unmarshal(body, &info); err != nil {
		return session.Info{}, fmt.Errorf("httpclient: decode status: %w", err)
	}
	return info, nil
}

func (c *HTTPClient) TogglePause(ctx context.Context) (bool, error) {
	body, err := c.do(ctx, http.MethodPost, "/toggle_detection_pause", nil)
	if se, ok := err.(*statusError); ok && se.code == http.StatusBadRequest {
		return false, session.ErrNoActiveSession
	}
	if err != nil {
		return false, err
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("httpclient: decode toggle: %w", err)
	}
	return resp.Status == "Pausado", nil
}

func (c *HTTPClient) ListSessions(ctx context.Context, exercise string, limit int) ([]storage.Session, error) {
	params := url.Values{}
	if exercise != "" {
		params.Set("exercise", exercise)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.do(ctx, http.MethodGet, "/api/v1/sessions", params)
	if err != nil {
		return nil, err
	}

	var sessions []storage.Session
	if err := json.Unmarshal(body, &sessions); err != nil {
		return nil, fmt.Errorf("httpclient: decode sessions: %w", err)
	}
	return sessions, nil
}

func (c *HTTPClient) GetSession(ctx context.Context, id string) (*storage.SessionDetail, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(id), nil)
	if se, ok := err.(*statusError); ok && se.code == http.StatusNotFound {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var detail storage.SessionDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("httpclient: decode session: %w", err)
	}
	return &detail, nil
}

func (c *HTTPClient) Exercises(ctx context.Context) ([]exercise.ID, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/exercises", nil)
	if err != nil {
		return nil, err
	}

	var ids []exercise.ID
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, fmt.Errorf("httpclient: decode exercises: %w", err)
	}
	return ids, nil
}
