package engine

import (
	"context"
	"database/sql"
	"fmt"

	"opexhub/internal/derive"
	"opexhub/internal/domain"
	"opexhub/internal/engine/auth"
	"opexhub/internal/events"
	"opexhub/internal/forms"
	"opexhub/internal/listing"
	"opexhub/internal/policy"
	"opexhub/internal/repo"
	"opexhub/internal/report"
)

// CreateInitiative registers an initiative from the form. Stage 1 is recorded
// as approved by the creator and stage 2 opens as pending.
func (e Engine) CreateInitiative(ctx context.Context, actor domain.User, form forms.InitiativeForm) (domain.Initiative, error) {
	if !policy.CanCreateInitiative(actor, e.Config.CreatorRole()) {
		return domain.Initiative{}, auth.ForbiddenError{Permission: "initiative.create"}
	}
	now := e.now()
	if err := form.Validate(now, e.Config); err != nil {
		return domain.Initiative{}, err
	}
	p, err := form.Payload()
	if err != nil {
		return domain.Initiative{}, err
	}
	if e.Config.Initiative.DefaultPriority != "" && form.Priority == "" {
		p.Priority = e.Config.Initiative.DefaultPriority
	}
	ts := e.stamp()
	in := domain.Initiative{
		ID:              newID(),
		Title:           p.Title,
		Description:     p.Description,
		InitiatorName:   p.InitiatorName,
		Status:          domain.InitiativePending,
		Priority:        p.Priority,
		ExpectedSavings: p.ExpectedSavings,
		EstimatedCapex:  p.EstimatedCapex,
		Site:            p.Site,
		Discipline:      p.Discipline,
		StartDate:       p.StartDate,
		EndDate:         p.EndDate,
		CurrentStage:    1,
		RequiresMoc:     p.RequiresMoc,
		RequiresCapex:   p.RequiresCapex,
		BaselineData:    p.BaselineData,
		TargetOutcome:   p.TargetOutcome,
		TargetValue:     p.TargetValue,
		ConfidenceLevel: p.ConfidenceLevel,
		IsBudgeted:      p.IsBudgeted,
		Assumptions:     p.Assumptions,
		CreatedBy:       actor.ID,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		seq, err := e.Repo.NextInitiativeSequence(ctx, tx, in.Site, now.UTC().Year())
		if err != nil {
			return fmt.Errorf("next initiative number: %w", err)
		}
		in.InitiativeNumber = fmt.Sprintf("%s/%d/%03d", in.Site, now.UTC().Year(), seq)
		if err := e.Repo.InsertInitiative(ctx, tx, in); err != nil {
			return fmt.Errorf("insert initiative: %w", err)
		}
		if err := e.events().Append(ctx, tx, events.InitiativeCreated, "initiative", in.ID, actor.Email,
			events.Payload{"initiative_number": in.InitiativeNumber, "site": in.Site, "estimated_capex": in.EstimatedCapex}); err != nil {
			return err
		}
		first, _ := e.Config.Stage(1)
		email := actor.Email
		comment := "Initiative registered"
		t := domain.WorkflowTransaction{
			ID:                newID(),
			InitiativeID:      in.ID,
			StageNumber:       1,
			StageName:         first.Name,
			RequiredRole:      first.Role,
			ApproveStatus:     domain.StageApproved,
			AssignedUserEmail: &email,
			Site:              in.Site,
			ActionBy:          &email,
			ActionDate:        &ts,
			Comment:           &comment,
			CreatedAt:         ts,
		}
		if err := e.Repo.InsertTransaction(ctx, tx, t); err != nil {
			return fmt.Errorf("insert stage 1: %w", err)
		}
		if err := e.events().Append(ctx, tx, events.StageApproved, "initiative", in.ID, actor.Email,
			events.Payload{"stage": 1, "transaction_id": t.ID}); err != nil {
			return err
		}
		if in, err = e.openStage(ctx, tx, in, 2); err != nil {
			return err
		}
		return e.Repo.UpdateInitiative(ctx, tx, in)
	})
	if err != nil {
		return domain.Initiative{}, err
	}
	return in, nil
}

func (e Engine) GetInitiative(ctx context.Context, id string) (domain.Initiative, error) {
	in, err := e.Repo.GetInitiative(ctx, nil, id)
	return in, notFound("initiative", id, err)
}

func (e Engine) ListInitiatives(ctx context.Context, f repo.InitiativeFilter) (listing.Page[domain.Initiative], error) {
	return e.Repo.ListInitiatives(ctx, f)
}

// UpdateInitiative saves a full draft in one transaction.
func (e Engine) UpdateInitiative(ctx context.Context, actor domain.User, id string, draft forms.InitiativeDraft) (domain.Initiative, error) {
	if err := e.requirePermission(actor.Role, "initiative.update"); err != nil {
		return domain.Initiative{}, err
	}
	if err := draft.Validate(e.Config); err != nil {
		return domain.Initiative{}, err
	}
	var out domain.Initiative
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		in, err := e.Repo.GetInitiative(ctx, tx, id)
		if err != nil {
			return notFound("initiative", id, err)
		}
		out = draft.Apply(in)
		out.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateInitiative(ctx, tx, out); err != nil {
			return fmt.Errorf("update initiative: %w", err)
		}
		return e.events().Append(ctx, tx, events.InitiativeUpdated, "initiative", id, actor.Email, nil)
	})
	if err != nil {
		return domain.Initiative{}, err
	}
	return out, nil
}

func (e Engine) DeleteInitiative(ctx context.Context, actor domain.User, id string) error {
	if err := e.requirePermission(actor.Role, "initiative.delete"); err != nil {
		return err
	}
	return e.withTx(ctx, func(tx *sql.Tx) error {
		in, err := e.Repo.GetInitiative(ctx, tx, id)
		if err != nil {
			return notFound("initiative", id, err)
		}
		if err := e.Repo.DeleteInitiative(ctx, tx, id); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.InitiativeDeleted, "initiative", id, actor.Email,
			events.Payload{"initiative_number": in.InitiativeNumber})
	})
}

type Progress struct {
	ProgressPercentage int `json:"progress_percentage"`
	ApprovedStages     int `json:"approved_stages"`
	TotalStages        int `json:"total_stages"`
}

func (e Engine) Progress(ctx context.Context, id string) (Progress, error) {
	if _, err := e.GetInitiative(ctx, id); err != nil {
		return Progress{}, err
	}
	approved, err := e.Repo.CountApproved(ctx, nil, id)
	if err != nil {
		return Progress{}, err
	}
	total := e.Config.LastStage()
	return Progress{ProgressPercentage: derive.StageProgress(approved, total), ApprovedStages: approved, TotalStages: total}, nil
}

// CurrentStage returns the first pending transaction, or ErrNotFound when the
// workflow is finished or rejected.
func (e Engine) CurrentStage(ctx context.Context, id string) (domain.WorkflowTransaction, error) {
	txs, err := e.Transactions(ctx, id)
	if err != nil {
		return domain.WorkflowTransaction{}, err
	}
	t, ok := derive.NextPending(txs)
	if !ok {
		return t, notFound("pending stage of initiative", id, repo.ErrNotFound)
	}
	return t, nil
}

// TrackerOptions narrows the initiative tracker report. A zero FiscalYear
// means the financial year containing now.
type TrackerOptions struct {
	Site       string
	FiscalYear int
}

// TrackerReport builds the monthly initiative tracker.
func (e Engine) TrackerReport(ctx context.Context, actor domain.User, opts TrackerOptions) (report.Tracker, error) {
	if err := e.requirePermission(actor.Role, "report.export"); err != nil {
		return report.Tracker{}, err
	}
	if opts.Site == "all" {
		opts.Site = ""
	}
	items, err := e.Repo.AllInitiatives(ctx, opts.Site)
	if err != nil {
		return report.Tracker{}, err
	}
	names := map[string]string{}
	creator := func(id string) string {
		if n, ok := names[id]; ok {
			return n
		}
		u, err := e.Repo.GetUser(ctx, id)
		if err != nil {
			return ""
		}
		names[id] = u.FullName
		return u.FullName
	}
	fy := opts.FiscalYear
	if fy <= 0 {
		fy = report.FiscalYearOf(e.now())
	}
	return report.Build(items, report.Options{
		Site:        opts.Site,
		FiscalYear:  fy,
		GeneratedAt: e.now(),
		StageName:   e.StageName,
		CreatorName: creator,
	}), nil
}

// StageName names a stage number, or "" when out of range.
func (e Engine) StageName(n int) string {
	s, _ := e.Config.Stage(n)
	return s.Name
}
