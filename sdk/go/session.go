package opexsdk

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrSessionClosed is returned by calls on a session after Logout.
var ErrSessionClosed = errors.New("session closed")

// Session is an authenticated caller. It is created by Client.Login or
// Client.WithAPIKey and is unusable after Logout.
type Session struct {
	client    *Client
	token     string
	apiKey    string
	closed    bool
	ID        string
	User      User
	ExpiresAt time.Time
}

func (s *Session) auth() (string, error) {
	if s == nil || s.closed {
		return "", ErrSessionClosed
	}
	if s.token != "" {
		return "Bearer " + s.token, nil
	}
	return s.apiKey, nil
}

func (s *Session) do(ctx context.Context, method, endpoint string, body, out any) error {
	auth, err := s.auth()
	if err != nil {
		return err
	}
	return s.client.do(ctx, auth, method, endpoint, body, out)
}

// Token returns the bearer token, empty for API key sessions.
func (s *Session) Token() string { return s.token }

// Logout revokes the server session. API key sessions are only closed locally.
func (s *Session) Logout(ctx context.Context) error {
	if s.closed {
		return nil
	}
	if s.token != "" {
		if err := s.do(ctx, http.MethodPost, "auth/logout", nil, nil); err != nil {
			return err
		}
	}
	s.closed = true
	return nil
}

type Me struct {
	User        User     `json:"user"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source"`
}

func (s *Session) Me(ctx context.Context) (Me, error) {
	var resp Me
	err := s.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// CreatedAPIKey carries the raw key, shown only once.
type CreatedAPIKey struct {
	APIKey
	Key string `json:"key"`
}

func (s *Session) CreateAPIKey(ctx context.Context, name string) (CreatedAPIKey, error) {
	var resp CreatedAPIKey
	err := s.do(ctx, http.MethodPost, "auth/api-keys", map[string]any{"name": name}, &resp)
	return resp, err
}

func (s *Session) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	var resp []APIKey
	err := s.do(ctx, http.MethodGet, "auth/api-keys", nil, &resp)
	return resp, err
}

func (s *Session) DeleteAPIKey(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodDelete, pathf("auth/api-keys/%s", id), nil, nil)
}

// InitiativeQuery filters and pages an initiative listing. Zero values
// mean no filter and the server defaults.
type InitiativeQuery struct {
	Status string
	Site   string
	Search string
	Page   int
	Size   int
}

func (q InitiativeQuery) values() url.Values {
	v := url.Values{"status": {q.Status}, "site": {q.Site}, "search": {q.Search}}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Size > 0 {
		v.Set("size", strconv.Itoa(q.Size))
	}
	return v
}

func (s *Session) ListInitiatives(ctx context.Context, q InitiativeQuery) (Page[Initiative], error) {
	var resp Page[Initiative]
	err := s.do(ctx, http.MethodGet, withQuery("initiatives", q.values()), nil, &resp)
	return resp, err
}

func (s *Session) CreateInitiative(ctx context.Context, form InitiativeForm) (Initiative, error) {
	var resp Initiative
	err := s.do(ctx, http.MethodPost, "initiatives", form, &resp)
	return resp, err
}

func (s *Session) GetInitiative(ctx context.Context, id string) (Initiative, error) {
	var resp Initiative
	err := s.do(ctx, http.MethodGet, pathf("initiatives/%s", id), nil, &resp)
	return resp, err
}

func (s *Session) UpdateInitiative(ctx context.Context, id string, draft DraftForm) (Initiative, error) {
	var resp Initiative
	err := s.do(ctx, http.MethodPut, pathf("initiatives/%s", id), draft, &resp)
	return resp, err
}

func (s *Session) DeleteInitiative(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodDelete, pathf("initiatives/%s", id), nil, nil)
}

type Progress struct {
	ProgressPercentage int `json:"progress_percentage"`
	ApprovedStages     int `json:"approved_stages"`
	TotalStages        int `json:"total_stages"`
}

func (s *Session) Progress(ctx context.Context, id string) (Progress, error) {
	var resp Progress
	err := s.do(ctx, http.MethodGet, pathf("initiatives/%s/progress", id), nil, &resp)
	return resp, err
}

// CurrentStage returns the pending stage of an initiative.
func (s *Session) CurrentStage(ctx context.Context, id string) (WorkflowTransaction, error) {
	var resp WorkflowTransaction
	err := s.do(ctx, http.MethodGet, pathf("initiatives/%s/current-stage", id), nil, &resp)
	return resp, err
}

func (s *Session) Transactions(ctx context.Context, initiativeID string) ([]WorkflowTransaction, error) {
	var resp []WorkflowTransaction
	err := s.do(ctx, http.MethodGet, pathf("workflow/initiatives/%s/transactions", initiativeID), nil, &resp)
	return resp, err
}

// PendingStages lists pending stages for role; empty role means the
// caller's own.
func (s *Session) PendingStages(ctx context.Context, role string) ([]WorkflowTransaction, error) {
	var resp []WorkflowTransaction
	err := s.do(ctx, http.MethodGet, withQuery("workflow/pending", url.Values{"role": {role}}), nil, &resp)
	return resp, err
}

func (s *Session) PendingStagesAt(ctx context.Context, site, role string) ([]WorkflowTransaction, error) {
	var resp []WorkflowTransaction
	err := s.do(ctx, http.MethodGet, pathf("workflow/pending/sites/%s/roles/%s", site, role), nil, &resp)
	return resp, err
}

type ProcessRequest struct {
	Action              string `json:"action"`
	Comment             string `json:"comment,omitempty"`
	InitiativeLeadEmail string `json:"initiative_lead_email,omitempty"`
}

type ProcessResult struct {
	Transaction WorkflowTransaction  `json:"transaction"`
	Initiative  Initiative           `json:"initiative"`
	Next        *WorkflowTransaction `json:"next,omitempty"`
}

// ProcessStage approves or rejects a pending stage.
func (s *Session) ProcessStage(ctx context.Context, transactionID string, req ProcessRequest) (ProcessResult, error) {
	var resp ProcessResult
	err := s.do(ctx, http.MethodPost, pathf("workflow/transactions/%s/process", transactionID), req, &resp)
	return resp, err
}

func (s *Session) ReassignStage(ctx context.Context, transactionID, email string) (WorkflowTransaction, error) {
	var resp WorkflowTransaction
	err := s.do(ctx, http.MethodPut, pathf("workflow/transactions/%s/assignee", transactionID), map[string]any{"email": email}, &resp)
	return resp, err
}

func (s *Session) Masters(ctx context.Context, site string) ([]WorkflowMaster, error) {
	var resp []WorkflowMaster
	err := s.do(ctx, http.MethodGet, withQuery("workflow/masters", url.Values{"site": {site}}), nil, &resp)
	return resp, err
}

func (s *Session) SetMaster(ctx context.Context, site string, stage int, email string) (WorkflowMaster, error) {
	var resp WorkflowMaster
	body := map[string]any{"site": site, "stage_number": stage, "email": email}
	err := s.do(ctx, http.MethodPut, "workflow/masters", body, &resp)
	return resp, err
}

// EligibleQuery filters the initiatives open for monitoring or timeline entry.
type EligibleQuery struct {
	Status string
	Site   string
	Search string
	Page   int
}

func (q EligibleQuery) values() url.Values {
	v := url.Values{"status": {q.Status}, "site": {q.Site}, "search": {q.Search}}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	return v
}

func (s *Session) MonitoringInitiatives(ctx context.Context, q EligibleQuery) (Page[Initiative], error) {
	var resp Page[Initiative]
	err := s.do(ctx, http.MethodGet, withQuery("monitoring/initiatives", q.values()), nil, &resp)
	return resp, err
}

func (s *Session) MonitoringEntries(ctx context.Context, initiativeID string) ([]MonitoringEntry, error) {
	var resp []MonitoringEntry
	err := s.do(ctx, http.MethodGet, pathf("monitoring/initiatives/%s/entries", initiativeID), nil, &resp)
	return resp, err
}

// MonitoringEntriesForMonth lists entries of one YYYY-MM month.
func (s *Session) MonitoringEntriesForMonth(ctx context.Context, initiativeID, month string) ([]MonitoringEntry, error) {
	var resp []MonitoringEntry
	err := s.do(ctx, http.MethodGet, pathf("monitoring/initiatives/%s/entries/month/%s", initiativeID, month), nil, &resp)
	return resp, err
}

func (s *Session) PendingFAApprovals(ctx context.Context, initiativeID string) ([]MonitoringEntry, error) {
	var resp []MonitoringEntry
	err := s.do(ctx, http.MethodGet, pathf("monitoring/initiatives/%s/pending-fa-approvals", initiativeID), nil, &resp)
	return resp, err
}

func (s *Session) CreateMonitoringEntry(ctx context.Context, initiativeID string, form MonitoringForm) (MonitoringEntry, error) {
	var resp MonitoringEntry
	err := s.do(ctx, http.MethodPost, pathf("monitoring/initiatives/%s/entries", initiativeID), form, &resp)
	return resp, err
}

func (s *Session) GetMonitoringEntry(ctx context.Context, id string) (MonitoringEntry, error) {
	var resp MonitoringEntry
	err := s.do(ctx, http.MethodGet, pathf("monitoring/entries/%s", id), nil, &resp)
	return resp, err
}

func (s *Session) UpdateMonitoringEntry(ctx context.Context, id string, form MonitoringForm) (MonitoringEntry, error) {
	var resp MonitoringEntry
	err := s.do(ctx, http.MethodPut, pathf("monitoring/entries/%s", id), form, &resp)
	return resp, err
}

func (s *Session) FinalizeMonitoringEntry(ctx context.Context, id string, finalized bool) (MonitoringEntry, error) {
	var resp MonitoringEntry
	err := s.do(ctx, http.MethodPut, pathf("monitoring/entries/%s/finalize", id), map[string]any{"is_finalized": finalized}, &resp)
	return resp, err
}

func (s *Session) ApproveMonitoringEntry(ctx context.Context, id string, approved bool, comments string) (MonitoringEntry, error) {
	body := map[string]any{"fa_approval": approved}
	if comments != "" {
		body["fa_comments"] = comments
	}
	var resp MonitoringEntry
	err := s.do(ctx, http.MethodPut, pathf("monitoring/entries/%s/fa-approval", id), body, &resp)
	return resp, err
}

func (s *Session) DeleteMonitoringEntry(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodDelete, pathf("monitoring/entries/%s", id), nil, nil)
}

func (s *Session) TimelineInitiatives(ctx context.Context, q EligibleQuery) (Page[Initiative], error) {
	var resp Page[Initiative]
	err := s.do(ctx, http.MethodGet, withQuery("timeline/initiatives", q.values()), nil, &resp)
	return resp, err
}

func (s *Session) TimelineEntries(ctx context.Context, initiativeID string) ([]TimelineEntry, error) {
	var resp []TimelineEntry
	err := s.do(ctx, http.MethodGet, pathf("timeline/initiatives/%s/entries", initiativeID), nil, &resp)
	return resp, err
}

func (s *Session) PendingTimelineApprovals(ctx context.Context, initiativeID string) ([]TimelineEntry, error) {
	var resp []TimelineEntry
	err := s.do(ctx, http.MethodGet, pathf("timeline/initiatives/%s/pending-approvals", initiativeID), nil, &resp)
	return resp, err
}

func (s *Session) CreateTimelineEntry(ctx context.Context, initiativeID string, form TimelineForm) (TimelineEntry, error) {
	var resp TimelineEntry
	err := s.do(ctx, http.MethodPost, pathf("timeline/initiatives/%s/entries", initiativeID), form, &resp)
	return resp, err
}

func (s *Session) GetTimelineEntry(ctx context.Context, id string) (TimelineEntry, error) {
	var resp TimelineEntry
	err := s.do(ctx, http.MethodGet, pathf("timeline/entries/%s", id), nil, &resp)
	return resp, err
}

func (s *Session) UpdateTimelineEntry(ctx context.Context, id string, form TimelineForm) (TimelineEntry, error) {
	var resp TimelineEntry
	err := s.do(ctx, http.MethodPut, pathf("timeline/entries/%s", id), form, &resp)
	return resp, err
}

// SetTimelineApprovals updates either approval flag; nil leaves it as is.
func (s *Session) SetTimelineApprovals(ctx context.Context, id string, siteLead, initiativeLead *bool) (TimelineEntry, error) {
	body := map[string]any{}
	if siteLead != nil {
		body["site_lead_approval"] = *siteLead
	}
	if initiativeLead != nil {
		body["initiative_lead_approval"] = *initiativeLead
	}
	var resp TimelineEntry
	err := s.do(ctx, http.MethodPut, pathf("timeline/entries/%s/approvals", id), body, &resp)
	return resp, err
}

func (s *Session) DeleteTimelineEntry(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodDelete, pathf("timeline/entries/%s", id), nil, nil)
}

// Report is a downloaded tracker report.
type Report struct {
	Filename    string
	ContentType string
	Body        []byte
}

// TrackerReport downloads the initiative tracker for a financial year.
// Zero year means the current one; empty format means csv.
func (s *Session) TrackerReport(ctx context.Context, site string, year int, format string) (Report, error) {
	auth, err := s.auth()
	if err != nil {
		return Report{}, err
	}
	q := url.Values{"site": {site}, "format": {format}}
	if year > 0 {
		q.Set("year", strconv.Itoa(year))
	}
	resp, err := s.client.send(ctx, auth, http.MethodGet, withQuery("reports/initiative-tracker", q), nil)
	if err != nil {
		return Report{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Report{}, err
	}
	r := Report{ContentType: resp.Header.Get("Content-Type"), Body: body}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		r.Filename = params["filename"]
	}
	return r, nil
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

type EventQuery struct {
	Type       string
	EntityKind string
	EntityID   string
	Limit      int
	Cursor     string
}

// Events returns one page of the event log, newest first.
func (s *Session) Events(ctx context.Context, q EventQuery) (PaginatedEvents, error) {
	v := url.Values{"type": {q.Type}, "entity_kind": {q.EntityKind}, "entity_id": {q.EntityID}, "cursor": {q.Cursor}}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	var resp PaginatedEvents
	err := s.do(ctx, http.MethodGet, withQuery("events", v), nil, &resp)
	return resp, err
}
