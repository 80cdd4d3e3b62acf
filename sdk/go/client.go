// Package opexsdk is a typed client for the OpEx Hub HTTP API.
//
// Anonymous calls (register, login, lookups) hang off Client. Everything
// else needs a Session, obtained from Client.Login or Client.WithAPIKey and
// ended with Session.Logout.
package opexsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"opexhub/internal/domain"
	"opexhub/internal/forms"
)

type (
	User                = domain.User
	Initiative          = domain.Initiative
	WorkflowTransaction = domain.WorkflowTransaction
	WorkflowMaster      = domain.WorkflowMaster
	MonitoringEntry     = domain.MonitoringEntry
	TimelineEntry       = domain.TimelineEntry
	Event               = domain.Event
	APIKey              = domain.APIKey

	SignupForm     = forms.Signup
	InitiativeForm = forms.InitiativeForm
	DraftForm      = forms.InitiativeDraft
	MonitoringForm = forms.Monitoring
	TimelineForm   = forms.Timeline
)

// Client is an OpEx Hub HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/api",
		Timeout:  10 * time.Second,
	}
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// FieldErrors returns the per-field messages of a validation_failed error.
func (e *APIError) FieldErrors() map[string]string {
	raw, _ := e.Details["fields"].(map[string]any)
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprint(v)
	}
	return out
}

type Page[T any] struct {
	Content       []T  `json:"content"`
	Page          int  `json:"page"`
	Size          int  `json:"size"`
	TotalElements int  `json:"total_elements"`
	TotalPages    int  `json:"total_pages"`
	HasNext       bool `json:"has_next"`
	HasPrevious   bool `json:"has_previous"`
}

type Lookups struct {
	Sites       []Item `json:"sites"`
	Disciplines []Item `json:"disciplines"`
	Roles       []Item `json:"roles"`
	Stages      []struct {
		Number int    `json:"number"`
		Name   string `json:"name"`
		Role   string `json:"role"`
	} `json:"stages"`
}

type Item struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Health reports whether the server answers.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "", http.MethodGet, "health", nil, nil)
}

func (c *Client) Lookups(ctx context.Context) (Lookups, error) {
	var resp Lookups
	err := c.do(ctx, "", http.MethodGet, "lookups", nil, &resp)
	return resp, err
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, form SignupForm) (User, error) {
	var resp User
	err := c.do(ctx, "", http.MethodPost, "auth/register", form, &resp)
	return resp, err
}

// Login exchanges credentials for a Session.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var resp struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
		User      User   `json:"user"`
		SessionID string `json:"session_id"`
	}
	body := forms.Login{Email: email, Password: password}
	if err := c.do(ctx, "", http.MethodPost, "auth/login", body, &resp); err != nil {
		return nil, err
	}
	s := &Session{client: c, token: resp.Token, User: resp.User, ID: resp.SessionID}
	if t, err := time.Parse(time.RFC3339, resp.ExpiresAt); err == nil {
		s.ExpiresAt = t
	}
	return s, nil
}

// WithAPIKey returns a Session authenticated by an API key. The session's
// User is loaded from /me.
func (c *Client) WithAPIKey(ctx context.Context, key string) (*Session, error) {
	s := &Session{client: c, apiKey: key}
	me, err := s.Me(ctx)
	if err != nil {
		return nil, err
	}
	s.User = me.User
	return s, nil
}

func (c *Client) do(ctx context.Context, auth, method, endpoint string, body any, out any) error {
	resp, err := c.send(ctx, auth, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// send performs the request and returns the open response for 2xx codes.
func (c *Client) send(ctx context.Context, auth, method, endpoint string, body any) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), &buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case strings.HasPrefix(auth, "Bearer "):
		req.Header.Set("Authorization", auth)
	case auth != "":
		req.Header.Set("X-Api-Key", auth)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message, apiErr.Details = env.Error.Code, env.Error.Message, env.Error.Details
		}
		return nil, apiErr
	}
	return resp, nil
}

func (c *Client) url(endpoint string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}

func pathf(format string, args ...string) string {
	escaped := make([]any, len(args))
	for i, a := range args {
		escaped[i] = url.PathEscape(a)
	}
	return fmt.Sprintf(format, escaped...)
}

func withQuery(endpoint string, q url.Values) string {
	for k, v := range q {
		if len(v) == 0 || v[0] == "" {
			delete(q, k)
		}
	}
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}
