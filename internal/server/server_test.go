package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"opexhub/internal/app"
	"opexhub/internal/config"
	"opexhub/internal/db"
	"opexhub/internal/domain"
	"opexhub/internal/engine"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestHandler(t *testing.T) (http.Handler, engine.Engine, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	e, err := app.Bootstrap(context.Background(), conn, config.Default())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, err := e.SeedDemo(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/api", Auth: AuthConfig{JWTSecret: testSecret}, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	return handler, e, func() { conn.Close() }
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	handler, e, closeDB := newTestHandler(t)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			closeDB()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode error envelope: %v: %s", err, string(data))
	}
	return env
}

func expectError(t *testing.T, res *http.Response, data []byte, status int, code string) errorEnvelope {
	t.Helper()
	if res.StatusCode != status {
		t.Fatalf("expected status %d, got %d: %s", status, res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Error.Code != code {
		t.Fatalf("expected code %s, got %s: %s", code, env.Error.Code, string(data))
	}
	return env
}

// login returns bearer headers for a demo user.
func login(t *testing.T, srv *testServer, email string) map[string]string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/auth/login", map[string]any{
		"email":    email,
		"password": engine.DemoPassword,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login %s status %d: %s", email, res.StatusCode, string(data))
	}
	var out engine.LoginResult
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + out.Token}
}

func initiativeBody(capex float64) map[string]any {
	return map[string]any{
		"title":            "Reduce steam losses in dryer",
		"initiator_name":   "Manoj Tiwari",
		"site":             "NDS",
		"discipline":       "OP",
		"date":             "2025-04-01",
		"description":      "Insulate the dryer header, recover flash steam and fix failed traps on line two.",
		"baseline_data":    "4.2 t/h",
		"target_outcome":   "3.8 t/h",
		"target_value":     3.8,
		"expected_value":   12.5,
		"confidence_level": 80,
		"estimated_capex":  capex,
		"assumption1":      "Stable production",
		"assumption2":      "Steam price unchanged",
		"assumption3":      "Shutdown window available",
	}
}

func TestPublicAndProtectedRoutes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	for _, path := range []string{"/api/health", "/api/lookups", "/api/openapi.json", "/docs"} {
		res, data := doJSON(t, client, http.MethodGet, srv.URL+path, nil, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s status %d: %s", path, res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/lookups", nil, nil)
	var lookups LookupsResponse
	if err := json.Unmarshal(data, &lookups); err != nil {
		t.Fatalf("decode lookups: %v", err)
	}
	if len(lookups.Sites) != 7 || len(lookups.Stages) != 11 || lookups.Stages[3].Name != "MOC Stage" {
		t.Fatalf("unexpected lookups %+v", lookups)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/initiatives", nil, nil)
	expectError(t, res, data, http.StatusUnauthorized, "unauthorized")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/initiatives", nil, map[string]string{"Authorization": "Bearer nope"})
	expectError(t, res, data, http.StatusUnauthorized, "invalid_credentials")
}

func TestOpenAPIListsFormAndDomainSchemas(t *testing.T) {
	handler, _, closeDB := newTestHandler(t)
	defer closeDB()

	var wg sync.WaitGroup
	bodies := make([][]byte, 8)
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/openapi.json", nil))
			if rec.Code == http.StatusOK {
				bodies[i] = rec.Body.Bytes()
			}
		}(i)
	}
	wg.Wait()

	for i, b := range bodies {
		if !bytes.Equal(b, bodies[0]) || len(b) == 0 {
			t.Fatalf("openapi response %d differs or failed", i)
		}
	}
	var doc struct {
		Components struct {
			Schemas map[string]json.RawMessage `json:"schemas"`
		} `json:"components"`
	}
	if err := json.Unmarshal(bodies[0], &doc); err != nil {
		t.Fatalf("decode openapi: %v", err)
	}
	for _, name := range []string{"Initiative", "InitiativeForm", "InitiativeDraft"} {
		if _, ok := doc.Components.Schemas[name]; !ok {
			t.Fatalf("schema %s missing", name)
		}
	}
}

func TestRegisterAndLoginErrors(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/register", map[string]any{
		"email":    "new.user@godeepak.com",
		"password": "secret",
	}, nil)
	env := expectError(t, res, data, http.StatusBadRequest, "validation_failed")
	fields, _ := env.Error.Details["fields"].(map[string]any)
	for _, f := range []string{"full_name", "site", "discipline", "role"} {
		if _, ok := fields[f]; !ok {
			t.Fatalf("expected field error for %s, got %v", f, fields)
		}
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/register", map[string]any{
		"full_name": "Dup", "email": "priya.sharma@godeepak.com", "password": "secret",
		"site": "NDS", "discipline": "OP", "role": "SH",
	}, nil)
	expectError(t, res, data, http.StatusConflict, "email_taken")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/register", map[string]any{
		"full_name": "New User", "email": "new.user@godeepak.com", "password": "secret",
		"site": "HSD1", "discipline": "QA", "role": "STLD",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d: %s", res.StatusCode, string(data))
	}
	if strings.Contains(string(data), "password") {
		t.Fatalf("user response leaks password: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/login", map[string]any{}, nil)
	expectError(t, res, data, http.StatusBadRequest, "validation_failed")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/login", map[string]any{
		"email": "new.user@godeepak.com", "password": "wrong",
	}, nil)
	env = expectError(t, res, data, http.StatusUnauthorized, "invalid_credentials")
	if env.Error.Message != "Invalid credentials" {
		t.Fatalf("unexpected message %q", env.Error.Message)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers := login(t, srv, "priya.sharma@godeepak.com")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/me", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me MeResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.User.Role != "SH" || me.Source != "jwt" || len(me.Permissions) == 0 {
		t.Fatalf("unexpected me %+v", me)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/logout", nil, headers)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/me", nil, headers)
	expectError(t, res, data, http.StatusUnauthorized, "invalid_credentials")
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers := login(t, srv, "admin@godeepak.com")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/api-keys", map[string]any{"name": "ci"}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("decode key: %v", err)
	}
	keyHeaders := map[string]string{"X-Api-Key": key.Key}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/events?limit=2", nil, keyHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events with api key status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected a full page with cursor, got %d items cursor=%q", len(page.Items), page.NextCursor)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/events?cursor="+page.NextCursor, nil, keyHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events page 2 status %d: %s", res.StatusCode, string(data))
	}
	var next paginatedEvents
	json.Unmarshal(data, &next)
	if len(next.Items) == 0 || next.Items[0].ID >= page.Items[1].ID {
		t.Fatalf("second page must continue below the cursor")
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/logout", nil, keyHeaders)
	expectError(t, res, data, http.StatusBadRequest, "bad_request")

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/api/auth/api-keys/"+key.ID, nil, headers)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete key status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/events", nil, keyHeaders)
	expectError(t, res, data, http.StatusUnauthorized, "invalid_credentials")
}

func TestInitiativeWorkflowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	manoj := login(t, srv, "manoj.tiwari@godeepak.com")
	priya := login(t, srv, "priya.sharma@godeepak.com")
	amit := login(t, srv, "amit.patel@godeepak.com")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/initiatives", initiativeBody(0), priya)
	expectError(t, res, data, http.StatusForbidden, "forbidden")

	bad := initiativeBody(0)
	bad["title"] = "short"
	bad["confidence_level"] = 0
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/initiatives", bad, manoj)
	env := expectError(t, res, data, http.StatusBadRequest, "validation_failed")
	fields, _ := env.Error.Details["fields"].(map[string]any)
	if _, ok := fields["title"]; !ok {
		t.Fatalf("expected title error, got %v", fields)
	}
	if _, ok := fields["confidence_level"]; !ok {
		t.Fatalf("expected confidence_level error, got %v", fields)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/initiatives", initiativeBody(0), manoj)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var in domain.Initiative
	if err := json.Unmarshal(data, &in); err != nil {
		t.Fatalf("decode initiative: %v", err)
	}
	if in.RequiresMoc || in.RequiresCapex || in.EndDate != "2026-04-01" {
		t.Fatalf("unexpected derived fields %+v", in)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/initiatives/"+in.ID+"/current-stage", nil, priya)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("current stage status %d: %s", res.StatusCode, string(data))
	}
	var stage domain.WorkflowTransaction
	json.Unmarshal(data, &stage)
	if stage.StageNumber != 2 {
		t.Fatalf("expected stage 2 pending, got %d", stage.StageNumber)
	}

	processURL := srv.URL + "/api/workflow/transactions/" + stage.ID + "/process"
	res, data = doJSON(t, client, http.MethodPost, processURL, map[string]any{"action": "approved"}, amit)
	expectError(t, res, data, http.StatusForbidden, "forbidden")
	res, data = doJSON(t, client, http.MethodPost, processURL, map[string]any{"action": "approved", "comment": "go"}, priya)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("process status %d: %s", res.StatusCode, string(data))
	}
	var result engine.ProcessResult
	json.Unmarshal(data, &result)
	if result.Next == nil || result.Next.StageNumber != 3 || result.Initiative.Status != domain.InitiativeInProgress {
		t.Fatalf("unexpected process result %s", string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, processURL, map[string]any{"action": "approved"}, priya)
	expectError(t, res, data, http.StatusConflict, "stage_not_pending")

	stage3URL := srv.URL + "/api/workflow/transactions/" + result.Next.ID + "/process"
	res, data = doJSON(t, client, http.MethodPost, stage3URL, map[string]any{"action": "approved"}, amit)
	env = expectError(t, res, data, http.StatusBadRequest, "validation_failed")
	if fields, _ := env.Error.Details["fields"].(map[string]any); fields["initiative_lead_email"] == nil {
		t.Fatalf("expected initiative_lead_email error: %s", string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, stage3URL, map[string]any{
		"action": "approved", "initiative_lead_email": "rajesh.kumar@godeepak.com",
	}, amit)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stage 3 status %d: %s", res.StatusCode, string(data))
	}
	json.Unmarshal(data, &result)
	if result.Next == nil || result.Next.StageNumber != 6 {
		t.Fatalf("expected MOC and CAPEX skipped, next=%s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/workflow/pending?role=IL", nil, priya)
	var pending []domain.WorkflowTransaction
	json.Unmarshal(data, &pending)
	if res.StatusCode != http.StatusOK || len(pending) != 1 || pending[0].ID != result.Next.ID {
		t.Fatalf("pending by role: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/workflow/pending/sites/HSD1/roles/IL", nil, priya)
	json.Unmarshal(data, &pending)
	if res.StatusCode != http.StatusOK || len(pending) != 0 {
		t.Fatalf("pending for other site: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/initiatives/"+in.ID+"/progress", nil, priya)
	var progress engine.Progress
	json.Unmarshal(data, &progress)
	if progress.ApprovedStages != 5 || progress.TotalStages != 11 || progress.ProgressPercentage != 45 {
		t.Fatalf("unexpected progress %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/workflow/initiatives/"+in.ID+"/transactions", nil, priya)
	var txs []domain.WorkflowTransaction
	json.Unmarshal(data, &txs)
	if len(txs) != 6 || *txs[4].Comment != "not required" {
		t.Fatalf("unexpected transactions %s", string(data))
	}
}

func TestListInitiativesFiltersAndPages(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	manoj := login(t, srv, "manoj.tiwari@godeepak.com")
	for i := 0; i < 3; i++ {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/initiatives", initiativeBody(float64(i)), manoj)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create status %d: %s", res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/initiatives?size=2&page=1", nil, manoj)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var page struct {
		Content       []domain.Initiative `json:"content"`
		TotalElements int                 `json:"total_elements"`
		TotalPages    int                 `json:"total_pages"`
		HasNext       bool                `json:"has_next"`
	}
	json.Unmarshal(data, &page)
	if len(page.Content) != 2 || page.TotalElements != 3 || page.TotalPages != 2 || !page.HasNext {
		t.Fatalf("unexpected first page %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/initiatives?search=/003&status=pend&site=NDS", nil, manoj)
	json.Unmarshal(data, &page)
	if len(page.Content) != 1 || !strings.HasSuffix(page.Content[0].InitiativeNumber, "/003") {
		t.Fatalf("unexpected filtered page %s", string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/initiatives?site=HSD1", nil, manoj)
	json.Unmarshal(data, &page)
	if page.TotalElements != 0 || page.Content == nil {
		t.Fatalf("expected empty non-null page %s", string(data))
	}
}

func TestTrackerReportDownload(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	manoj := login(t, srv, "manoj.tiwari@godeepak.com")
	doJSON(t, client, http.MethodPost, srv.URL+"/api/initiatives", initiativeBody(5), manoj)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/reports/initiative-tracker?year=2025&format=csv", nil, manoj)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("report status %d: %s", res.StatusCode, string(data))
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := res.Header.Get("Content-Disposition"); !strings.Contains(cd, "Monthly_Initiative_Report_") || !strings.Contains(cd, ".csv") {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if !strings.Contains(string(data), "Reduce steam losses in dryer") {
		t.Fatalf("report missing initiative: %s", string(data))
	}

	rajesh := login(t, srv, "rajesh.kumar@godeepak.com")
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/reports/initiative-tracker", nil, rajesh)
	expectError(t, res, data, http.StatusForbidden, "forbidden")
}

func TestEventsRequirePermission(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	priya := login(t, srv, "priya.sharma@godeepak.com")
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/events", nil, priya)
	expectError(t, res, data, http.StatusForbidden, "forbidden")
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/events?cursor=abc", nil, login(t, srv, "admin@godeepak.com"))
	expectError(t, res, data, http.StatusBadRequest, "bad_request")
}
