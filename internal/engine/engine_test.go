package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"opexhub/internal/app"
	"opexhub/internal/config"
	"opexhub/internal/db"
	"opexhub/internal/domain"
	"opexhub/internal/engine"
	"opexhub/internal/engine/auth"
	"opexhub/internal/forms"
	"opexhub/internal/listing"
	"opexhub/internal/repo"
)

var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Users  map[string]domain.User
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	eng, err := app.Bootstrap(ctx, conn, config.Default())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	eng.Now = func() time.Time { return testNow }
	created, err := eng.SeedDemo(ctx)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	users := map[string]domain.User{}
	for _, u := range created {
		users[strings.Split(u.Email, ".")[0]] = u
	}
	return testEnv{Engine: eng, Ctx: ctx, Users: users}
}

func (env testEnv) user(t *testing.T, name string) domain.User {
	t.Helper()
	u, ok := env.Users[name]
	if !ok {
		t.Fatalf("no demo user %s", name)
	}
	return u
}

func initiativeForm(capex float64) forms.InitiativeForm {
	return forms.InitiativeForm{
		Title:           "Reduce steam losses in dryer",
		InitiatorName:   "Manoj Tiwari",
		Site:            "NDS",
		Discipline:      "OP",
		Date:            "2025-04-01",
		Description:     "Insulate the dryer header, recover flash steam and fix failed traps on line two.",
		BaselineData:    "4.2 t/h",
		TargetOutcome:   "3.8 t/h",
		TargetValue:     3.8,
		ExpectedValue:   12.5,
		ConfidenceLevel: 80,
		EstimatedCapex:  capex,
		Assumption1:     "Stable production",
		Assumption2:     "Steam price unchanged",
		Assumption3:     "Shutdown window available",
	}
}

func (env testEnv) createInitiative(t *testing.T, capex float64) domain.Initiative {
	t.Helper()
	in, err := env.Engine.CreateInitiative(env.Ctx, env.user(t, "manoj"), initiativeForm(capex))
	if err != nil {
		t.Fatalf("create initiative: %v", err)
	}
	return in
}

// approve processes the current pending stage as the named user.
func (env testEnv) approve(t *testing.T, initiativeID, as, lead string) engine.ProcessResult {
	t.Helper()
	cur, err := env.Engine.CurrentStage(env.Ctx, initiativeID)
	if err != nil {
		t.Fatalf("current stage: %v", err)
	}
	res, err := env.Engine.ProcessStage(env.Ctx, env.user(t, as), engine.ProcessOptions{
		TransactionID:       cur.ID,
		Action:              domain.StageApproved,
		Comment:             "ok",
		InitiativeLeadEmail: lead,
	})
	if err != nil {
		t.Fatalf("approve stage %d as %s: %v", cur.StageNumber, as, err)
	}
	return res
}

func fieldErrors(t *testing.T, err error) forms.FieldErrors {
	t.Helper()
	var verr forms.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	return verr.Fields
}

func TestRegisterRejectsMissingFieldsWithoutWriting(t *testing.T) {
	env := newTestEnv(t)
	before, err := env.Engine.Repo.ListUsers(env.Ctx, "", "")
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []forms.Signup{
		{Email: "x@example.com", Password: "pw", Site: "NDS", Discipline: "OP", Role: "STLD"},
		{FullName: "X", Email: "x@example.com", Password: "pw", Discipline: "OP", Role: "STLD"},
		{FullName: "X", Email: "x@example.com", Password: "pw", Site: "NDS", Role: "STLD"},
		{FullName: "X", Email: "x@example.com", Password: "pw", Site: "NDS", Discipline: "OP"},
	} {
		_, err := env.Engine.Register(env.Ctx, s)
		fieldErrors(t, err)
	}
	after, err := env.Engine.Repo.ListUsers(env.Ctx, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(before) {
		t.Fatalf("expected no writes, users %d -> %d", len(before), len(after))
	}

	_, err = env.Engine.Register(env.Ctx, forms.Signup{FullName: "Dup", Email: "MANOJ.TIWARI@godeepak.com", Password: "pw", Site: "NDS", Discipline: "OP", Role: "STLD"})
	if !errors.Is(err, engine.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLoginEmptyCredentialsSkipsLookup(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.DB.Close()
	_, err := env.Engine.Login(env.Ctx, engine.LoginOptions{Form: forms.Login{Email: "", Password: ""}, Secret: "s"})
	fields := fieldErrors(t, err)
	if len(fields) != 2 {
		t.Fatalf("expected email and password errors, got %v", fields)
	}
}

func TestLoginSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Login(env.Ctx, engine.LoginOptions{Form: forms.Login{Email: "priya.sharma@godeepak.com", Password: "nope"}, Secret: "s"})
	if !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	_, err = env.Engine.Login(env.Ctx, engine.LoginOptions{Form: forms.Login{Email: "ghost@godeepak.com", Password: "x"}, Secret: "s"})
	if !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}

	res, err := env.Engine.Login(env.Ctx, engine.LoginOptions{Form: forms.Login{Email: "Priya.Sharma@godeepak.com", Password: engine.DemoPassword}, Secret: "s"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := env.Engine.ParseToken(res.Token, "s")
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Role != "SH" || claims.Site != "NDS" || claims.SessionID != res.SessionID {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if res.ExpiresAt != testNow.Add(engine.DefaultTokenTTL).Format(time.RFC3339) {
		t.Fatalf("unexpected expiry %s", res.ExpiresAt)
	}
	u, err := env.Engine.SessionUser(env.Ctx, res.SessionID, res.User.ID)
	if err != nil || u.Email != "priya.sharma@godeepak.com" {
		t.Fatalf("session user: %v %+v", err, u)
	}
	if err := env.Engine.Logout(env.Ctx, u, res.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := env.Engine.SessionUser(env.Ctx, res.SessionID, res.User.ID); !errors.Is(err, engine.ErrSessionInvalid) {
		t.Fatalf("expected revoked session, got %v", err)
	}
}

func TestAPIKeys(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(t, "admin@godeepak")
	k, raw, err := env.Engine.CreateAPIKey(env.Ctx, admin, "ci")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	u, err := env.Engine.APIKeyUser(env.Ctx, raw)
	if err != nil || u.ID != admin.ID {
		t.Fatalf("api key user: %v", err)
	}
	keys, _ := env.Engine.ListAPIKeys(env.Ctx, admin)
	if len(keys) != 1 || keys[0].ID != k.ID {
		t.Fatalf("unexpected keys %+v", keys)
	}
	if err := env.Engine.DeleteAPIKey(env.Ctx, env.user(t, "priya"), k.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found deleting another user's key, got %v", err)
	}
	if err := env.Engine.DeleteAPIKey(env.Ctx, admin, k.ID); err != nil {
		t.Fatalf("delete key: %v", err)
	}
	if _, err := env.Engine.APIKeyUser(env.Ctx, raw); err == nil {
		t.Fatalf("expected deleted key to fail")
	}
}

func TestCreateInitiative(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateInitiative(env.Ctx, env.user(t, "priya"), initiativeForm(0))
	var forbidden auth.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden for SH, got %v", err)
	}

	in := env.createInitiative(t, 15)
	if in.InitiativeNumber != "NDS/2025/001" {
		t.Fatalf("unexpected number %s", in.InitiativeNumber)
	}
	if !in.RequiresMoc || !in.RequiresCapex || in.EndDate != "2026-04-01" || in.Priority != "Medium" {
		t.Fatalf("unexpected derived fields %+v", in)
	}
	if in.Status != domain.InitiativePending || in.CurrentStage != 2 || in.ProgressPercentage != 9 {
		t.Fatalf("unexpected workflow fields status=%s stage=%d progress=%d", in.Status, in.CurrentStage, in.ProgressPercentage)
	}
	txs, err := env.Engine.Transactions(env.Ctx, in.ID)
	if err != nil || len(txs) != 2 {
		t.Fatalf("transactions: %v %d", err, len(txs))
	}
	if txs[0].ApproveStatus != domain.StageApproved || txs[1].ApproveStatus != domain.StagePending {
		t.Fatalf("unexpected statuses %s %s", txs[0].ApproveStatus, txs[1].ApproveStatus)
	}
	if txs[1].AssignedUserEmail == nil || *txs[1].AssignedUserEmail != "priya.sharma@godeepak.com" {
		t.Fatalf("stage 2 not assigned from master")
	}

	second := env.createInitiative(t, 0)
	if second.InitiativeNumber != "NDS/2025/002" || second.RequiresMoc || second.RequiresCapex {
		t.Fatalf("unexpected second initiative %+v", second)
	}

	page, err := env.Engine.ListInitiatives(env.Ctx, repo.InitiativeFilter{Filter: listing.Filter{Search: "002"}})
	if err != nil || page.TotalElements != 1 || page.Content[0].ID != second.ID {
		t.Fatalf("search by number: %v %+v", err, page.PageInfo)
	}
}

func TestWorkflowRunsToCompletion(t *testing.T) {
	env := newTestEnv(t)
	in := env.createInitiative(t, 5)

	env.approve(t, in.ID, "priya", "")

	cur, _ := env.Engine.CurrentStage(env.Ctx, in.ID)
	_, err := env.Engine.ProcessStage(env.Ctx, env.user(t, "amit"), engine.ProcessOptions{TransactionID: cur.ID, Action: "approved"})
	if fields := fieldErrors(t, err); fields["initiative_lead_email"] == "" {
		t.Fatalf("expected lead email error")
	}
	_, err = env.Engine.ProcessStage(env.Ctx, env.user(t, "amit"), engine.ProcessOptions{TransactionID: cur.ID, Action: "approved", InitiativeLeadEmail: "priya.sharma@godeepak.com"})
	fieldErrors(t, err)

	res := env.approve(t, in.ID, "amit", "rajesh.kumar@godeepak.com")
	if res.Next == nil || res.Next.StageNumber != 5 {
		t.Fatalf("expected MOC stage skipped, next=%+v", res.Next)
	}
	txs, _ := env.Engine.Transactions(env.Ctx, in.ID)
	moc := txs[3]
	if moc.StageNumber != 4 || moc.ApproveStatus != domain.StageApproved || *moc.ActionBy != "system" || *moc.Comment != "not required" {
		t.Fatalf("unexpected MOC stage %+v", moc)
	}
	if *res.Next.AssignedUserEmail != "rajesh.kumar@godeepak.com" {
		t.Fatalf("lead stage not assigned to lead")
	}

	// Processing an already approved stage.
	_, err = env.Engine.ProcessStage(env.Ctx, env.user(t, "admin@godeepak"), engine.ProcessOptions{TransactionID: moc.ID, Action: "approved"})
	if !errors.Is(err, engine.ErrStageNotPending) {
		t.Fatalf("expected ErrStageNotPending, got %v", err)
	}

	for _, as := range []string{"rajesh", "rajesh", "vikram", "kavya", "suresh", "rohit"} {
		env.approve(t, in.ID, as, "")
	}
	res = env.approve(t, in.ID, "ananya", "")
	if res.Initiative.Status != domain.InitiativeCompleted || res.Initiative.ProgressPercentage != 100 || res.Next != nil {
		t.Fatalf("expected completed initiative, got %+v", res.Initiative)
	}
	p, err := env.Engine.Progress(env.Ctx, in.ID)
	if err != nil || p.ApprovedStages != 11 || p.ProgressPercentage != 100 {
		t.Fatalf("progress: %v %+v", err, p)
	}
	if _, err := env.Engine.CurrentStage(env.Ctx, in.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected no pending stage, got %v", err)
	}
}

func TestProcessStagePermissions(t *testing.T) {
	env := newTestEnv(t)
	in := env.createInitiative(t, 0)
	cur, _ := env.Engine.CurrentStage(env.Ctx, in.ID)

	var forbidden auth.ForbiddenError
	_, err := env.Engine.ProcessStage(env.Ctx, env.user(t, "amit"), engine.ProcessOptions{TransactionID: cur.ID, Action: "approved"})
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected wrong role forbidden, got %v", err)
	}
	other, err := env.Engine.Register(env.Ctx, forms.Signup{FullName: "Other Head", Email: "other.head@godeepak.com", Password: "pw", Site: "NDS", Discipline: "OP", Role: "SH"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.ProcessStage(env.Ctx, other, engine.ProcessOptions{TransactionID: cur.ID, Action: "approved"})
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected unassigned user forbidden, got %v", err)
	}
	_, err = env.Engine.ProcessStage(env.Ctx, other, engine.ProcessOptions{TransactionID: cur.ID, Action: "maybe"})
	fieldErrors(t, err)

	res, err := env.Engine.ProcessStage(env.Ctx, env.user(t, "priya"), engine.ProcessOptions{TransactionID: cur.ID, Action: "Rejected", Comment: "no budget"})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if res.Initiative.Status != domain.InitiativeRejected || res.Next != nil {
		t.Fatalf("unexpected reject result %+v", res)
	}
	if _, err := env.Engine.CurrentStage(env.Ctx, in.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("rejected initiative has no pending stage, got %v", err)
	}
}

func TestReassignAndPending(t *testing.T) {
	env := newTestEnv(t)
	in := env.createInitiative(t, 0)
	pending, err := env.Engine.PendingStages(env.Ctx, "SH", "NDS")
	if err != nil || len(pending) != 1 || pending[0].InitiativeID != in.ID {
		t.Fatalf("pending: %v %+v", err, pending)
	}
	if _, err := env.Engine.ReassignStage(env.Ctx, env.user(t, "priya"), pending[0].ID, "x@godeepak.com"); err == nil {
		t.Fatalf("expected non-admin reassign to fail")
	}
	tx, err := env.Engine.ReassignStage(env.Ctx, env.user(t, "admin@godeepak"), pending[0].ID, "Other.Head@godeepak.com")
	if err != nil || *tx.AssignedUserEmail != "other.head@godeepak.com" {
		t.Fatalf("reassign: %v", err)
	}
}

// driveTo approves stages until stage n is approved.
func (env testEnv) driveTo(t *testing.T, in domain.Initiative, n int) {
	t.Helper()
	approvers := []string{"", "", "priya", "amit", "rajesh", "rajesh", "rajesh", "vikram", "kavya", "suresh", "rohit", "ananya"}
	for {
		cur, err := env.Engine.CurrentStage(env.Ctx, in.ID)
		if err != nil || cur.StageNumber > n {
			return
		}
		lead := ""
		if cur.StageNumber == 3 {
			lead = "rajesh.kumar@godeepak.com"
		}
		env.approve(t, in.ID, approvers[cur.StageNumber], lead)
	}
}

func TestMonitoringEntries(t *testing.T) {
	env := newTestEnv(t)
	in := env.createInitiative(t, 15)
	suresh := env.user(t, "suresh")

	page, err := env.Engine.EligibleInitiatives(env.Ctx, suresh, engine.TrackingMonitoring, listing.Filter{}, 1)
	if err != nil || page.TotalElements != 0 {
		t.Fatalf("expected nothing eligible yet: %v %d", err, page.TotalElements)
	}
	env.driveTo(t, in, 9)
	page, err = env.Engine.EligibleInitiatives(env.Ctx, suresh, engine.TrackingMonitoring, listing.Filter{}, 1)
	if err != nil || page.TotalElements != 1 || page.Size != 6 {
		t.Fatalf("eligible: %v %+v", err, page.PageInfo)
	}

	target, achieved := 40.0, 50.0
	m, err := env.Engine.CreateMonitoring(env.Ctx, suresh, in.ID, forms.Monitoring{
		MonitoringMonth: "2025-05", KPIDescription: "Steam saved", TargetValue: &target, AchievedValue: &achieved,
	})
	if err != nil {
		t.Fatalf("create monitoring: %v", err)
	}
	if m.Deviation == nil || *m.Deviation != 10 || m.DeviationPercentage == nil || *m.DeviationPercentage != 25 {
		t.Fatalf("unexpected deviation %+v", m)
	}
	if _, err := env.Engine.CreateMonitoring(env.Ctx, env.user(t, "neha"), in.ID, forms.Monitoring{MonitoringMonth: "2025-05", KPIDescription: "x"}); err == nil {
		t.Fatalf("expected FA create to be forbidden")
	}

	var forbidden auth.ForbiddenError
	if _, err := env.Engine.UpdateMonitoring(env.Ctx, env.user(t, "manoj"), m.ID, forms.Monitoring{MonitoringMonth: "2025-05", KPIDescription: "x", TargetValue: &target}); !errors.As(err, &forbidden) {
		t.Fatalf("expected other site lead forbidden, got %v", err)
	}
	if _, err := env.Engine.FinalizeMonitoring(env.Ctx, env.user(t, "neha"), m.ID, true); !errors.As(err, &forbidden) {
		t.Fatalf("expected FA finalize forbidden, got %v", err)
	}
	if _, err := env.Engine.FinalizeMonitoring(env.Ctx, suresh, m.ID, true); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	pending, _ := env.Engine.PendingFAApprovals(env.Ctx, in.ID)
	if len(pending) != 1 {
		t.Fatalf("expected one pending FA approval, got %d", len(pending))
	}
	comment := "verified"
	m, err = env.Engine.ApproveMonitoring(env.Ctx, env.user(t, "neha"), m.ID, true, &comment)
	if err != nil || !m.FAApproval || *m.FAComments != "verified" {
		t.Fatalf("approve: %v %+v", err, m)
	}
	pending, _ = env.Engine.PendingFAApprovals(env.Ctx, in.ID)
	if len(pending) != 0 {
		t.Fatalf("expected no pending FA approvals")
	}

	byMonth, err := env.Engine.ListMonitoring(env.Ctx, in.ID, "2025-05")
	if err != nil || len(byMonth) != 1 {
		t.Fatalf("list by month: %v %d", err, len(byMonth))
	}
	if err := env.Engine.DeleteMonitoring(env.Ctx, suresh, m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetMonitoring(env.Ctx, m.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected deleted entry to be gone, got %v", err)
	}
}

func TestTimelineEntries(t *testing.T) {
	env := newTestEnv(t)
	in := env.createInitiative(t, 15)
	env.driveTo(t, in, 6)
	rajesh := env.user(t, "rajesh")

	page, err := env.Engine.EligibleInitiatives(env.Ctx, rajesh, engine.TrackingTimeline, listing.Filter{Status: "progress"}, 1)
	if err != nil || page.TotalElements != 1 {
		t.Fatalf("eligible timeline: %v %+v", err, page.PageInfo)
	}

	form := forms.Timeline{StageName: "Trial run", PlannedStartDate: "2025-06-10", PlannedEndDate: "2025-06-20", ResponsiblePerson: "Rajesh", Status: domain.TimelineInProgress}
	var forbidden auth.ForbiddenError
	if _, err := env.Engine.CreateTimeline(env.Ctx, env.user(t, "manoj"), in.ID, form); !errors.As(err, &forbidden) {
		t.Fatalf("expected non-lead create forbidden, got %v", err)
	}
	entry, err := env.Engine.CreateTimeline(env.Ctx, rajesh, in.ID, form)
	if err != nil {
		t.Fatalf("create timeline: %v", err)
	}
	if entry.ProgressPercentage != 54 {
		t.Fatalf("expected 54%% progress, got %d", entry.ProgressPercentage)
	}

	yes := true
	if _, err := env.Engine.SetTimelineApprovals(env.Ctx, env.user(t, "manoj"), entry.ID, nil, &yes); !errors.As(err, &forbidden) {
		t.Fatalf("expected site lead to be refused initiative lead approval, got %v", err)
	}
	entry, err = env.Engine.SetTimelineApprovals(env.Ctx, env.user(t, "manoj"), entry.ID, &yes, nil)
	if err != nil || !entry.SiteLeadApproval || entry.InitiativeLeadApproval {
		t.Fatalf("site lead approval: %v %+v", err, entry)
	}
	pending, _ := env.Engine.PendingTimelineApprovals(env.Ctx, in.ID)
	if len(pending) != 1 {
		t.Fatalf("expected entry pending initiative lead approval")
	}
	if _, err := env.Engine.SetTimelineApprovals(env.Ctx, rajesh, entry.ID, nil, &yes); err != nil {
		t.Fatalf("lead approval: %v", err)
	}
	pending, _ = env.Engine.PendingTimelineApprovals(env.Ctx, in.ID)
	if len(pending) != 0 {
		t.Fatalf("expected no pending approvals")
	}

	form.Status = domain.TimelineCompleted
	entry, err = env.Engine.UpdateTimeline(env.Ctx, rajesh, entry.ID, form)
	if err != nil || entry.ProgressPercentage != 100 || *entry.UpdatedBy != rajesh.Email {
		t.Fatalf("update timeline: %v %+v", err, entry)
	}
	if err := env.Engine.DeleteTimeline(env.Ctx, rajesh, entry.ID); err != nil {
		t.Fatalf("delete timeline: %v", err)
	}
}

func TestUpdateAndDeleteInitiative(t *testing.T) {
	env := newTestEnv(t)
	in := env.createInitiative(t, 5)

	d := forms.DraftOf(in)
	d.Title = "Reduce steam losses in dryer and header"
	d.EstimatedCapex = 20
	var forbidden auth.ForbiddenError
	if _, err := env.Engine.UpdateInitiative(env.Ctx, env.user(t, "priya"), in.ID, d); !errors.As(err, &forbidden) {
		t.Fatalf("expected SH update forbidden, got %v", err)
	}
	out, err := env.Engine.UpdateInitiative(env.Ctx, env.user(t, "manoj"), in.ID, d)
	if err != nil || out.Title != d.Title || !out.RequiresMoc {
		t.Fatalf("update: %v %+v", err, out)
	}
	d.ConfidenceLevel = 0
	if _, err := env.Engine.UpdateInitiative(env.Ctx, env.user(t, "manoj"), in.ID, d); err == nil {
		t.Fatalf("expected validation error")
	}
	got, _ := env.Engine.GetInitiative(env.Ctx, in.ID)
	if got.ConfidenceLevel != 80 {
		t.Fatalf("failed update must not write, confidence=%d", got.ConfidenceLevel)
	}

	if err := env.Engine.DeleteInitiative(env.Ctx, env.user(t, "manoj"), in.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetInitiative(env.Ctx, in.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	evts, err := env.Engine.EventLog(env.Ctx, env.user(t, "admin@godeepak"), repo.EventFilter{EntityKind: "initiative", EntityID: in.ID})
	if err != nil || len(evts) == 0 || evts[0].Type != "initiative.deleted" {
		t.Fatalf("events: %v %+v", err, evts)
	}
}

func TestTrackerReport(t *testing.T) {
	env := newTestEnv(t)
	env.createInitiative(t, 5)
	tr, err := env.Engine.TrackerReport(env.Ctx, env.user(t, "priya"), engine.TrackerOptions{Site: "NDS"})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if tr.FiscalYear != 2025 || len(tr.Sheets) != 12 || len(tr.Sheets[0].Rows) != 1 {
		t.Fatalf("unexpected tracker %+v", tr)
	}
	if tr.Sheets[0].Rows[0].Remarks != "Approval" {
		t.Fatalf("remarks should name the current stage, got %q", tr.Sheets[0].Rows[0].Remarks)
	}
	if _, err := env.Engine.TrackerReport(env.Ctx, env.user(t, "rajesh"), engine.TrackerOptions{}); err == nil {
		t.Fatalf("expected IL to lack report.export")
	}
}
