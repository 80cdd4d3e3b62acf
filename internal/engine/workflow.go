package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"opexhub/internal/derive"
	"opexhub/internal/domain"
	"opexhub/internal/engine/auth"
	"opexhub/internal/events"
	"opexhub/internal/forms"
	"opexhub/internal/policy"
	"opexhub/internal/repo"
)

const systemActor = "system"

// Transactions lists an initiative's workflow in stage order.
func (e Engine) Transactions(ctx context.Context, initiativeID string) ([]domain.WorkflowTransaction, error) {
	if _, err := e.GetInitiative(ctx, initiativeID); err != nil {
		return nil, err
	}
	return e.Repo.ListTransactions(ctx, nil, initiativeID)
}

// PendingStages lists pending transactions for a role, optionally at one site.
func (e Engine) PendingStages(ctx context.Context, role, site string) ([]domain.WorkflowTransaction, error) {
	return e.Repo.ListPendingTransactions(ctx, role, site)
}

type ProcessOptions struct {
	TransactionID       string
	Action              string
	Comment             string
	InitiativeLeadEmail string
}

type ProcessResult struct {
	Transaction domain.WorkflowTransaction  `json:"transaction"`
	Initiative  domain.Initiative           `json:"initiative"`
	Next        *domain.WorkflowTransaction `json:"next,omitempty"`
}

// ProcessStage approves or rejects a pending stage on behalf of actor.
func (e Engine) ProcessStage(ctx context.Context, actor domain.User, opts ProcessOptions) (ProcessResult, error) {
	action := strings.ToLower(strings.TrimSpace(opts.Action))
	if action != domain.StageApproved && action != domain.StageRejected {
		return ProcessResult{}, forms.ValidationError{Fields: forms.FieldErrors{"action": "must be approved or rejected"}}
	}
	var res ProcessResult
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		t, err := e.Repo.GetTransaction(ctx, tx, opts.TransactionID)
		if err != nil {
			return notFound("workflow transaction", opts.TransactionID, err)
		}
		if t.ApproveStatus != domain.StagePending {
			return ErrStageNotPending
		}
		if !policy.CanProcessStage(actor, t) {
			return auth.ForbiddenError{Permission: "workflow.stage." + t.RequiredRole}
		}
		in, err := e.Repo.GetInitiative(ctx, tx, t.InitiativeID)
		if err != nil {
			return notFound("initiative", t.InitiativeID, err)
		}

		if action == domain.StageApproved && t.StageNumber == e.Config.Workflow.LeadAssignmentStage && len(e.Config.Workflow.LeadStages) > 0 {
			lead, err := e.resolveLead(ctx, tx, opts.InitiativeLeadEmail)
			if err != nil {
				return err
			}
			in.InitiativeLeadEmail = &lead
		}

		ts := e.stamp()
		t.ApproveStatus = action
		t.ActionBy = &actor.Email
		t.ActionDate = &ts
		if c := strings.TrimSpace(opts.Comment); c != "" {
			t.Comment = &c
		}
		if err := e.Repo.CompleteTransaction(ctx, tx, t); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrStageNotPending
			}
			return fmt.Errorf("complete stage %d: %w", t.StageNumber, err)
		}
		evt := events.StageApproved
		if action == domain.StageRejected {
			evt = events.StageRejected
		}
		if err := e.events().Append(ctx, tx, evt, "initiative", in.ID, actor.Email,
			events.Payload{"stage": t.StageNumber, "transaction_id": t.ID, "comment": opts.Comment}); err != nil {
			return err
		}

		if action == domain.StageRejected {
			in.Status = domain.InitiativeRejected
			in.CurrentStage = t.StageNumber
		} else {
			if in, err = e.openStage(ctx, tx, in, t.StageNumber+1); err != nil {
				return err
			}
			if in.Status != domain.InitiativeCompleted {
				in.Status = domain.InitiativeInProgress
			}
		}
		in.UpdatedAt = ts
		if err := e.Repo.UpdateInitiative(ctx, tx, in); err != nil {
			return fmt.Errorf("update initiative: %w", err)
		}
		res.Transaction = t
		res.Initiative = in
		if in.Status != domain.InitiativeRejected && in.Status != domain.InitiativeCompleted {
			txs, err := e.Repo.ListTransactions(ctx, tx, in.ID)
			if err != nil {
				return err
			}
			if next, ok := derive.NextPending(txs); ok {
				res.Next = &next
			}
		}
		return nil
	})
	if err != nil {
		return ProcessResult{}, err
	}
	return res, nil
}

func (e Engine) resolveLead(ctx context.Context, tx *sql.Tx, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", forms.ValidationError{Fields: forms.FieldErrors{"initiative_lead_email": "is required to approve this stage"}}
	}
	u, err := e.Repo.GetUserByEmail(ctx, tx, email)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && u.Role != e.Config.Workflow.LeadRole) {
		return "", forms.ValidationError{Fields: forms.FieldErrors{
			"initiative_lead_email": fmt.Sprintf("must be a registered %s user", e.Config.Workflow.LeadRole),
		}}
	}
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

// openStage creates the transaction for stage n. MOC and CAPEX stages that
// the initiative does not require are approved by the system and skipped.
// Past the last stage the initiative is completed.
func (e Engine) openStage(ctx context.Context, tx *sql.Tx, in domain.Initiative, n int) (domain.Initiative, error) {
	wf := e.Config.Workflow
	for ; n <= e.Config.LastStage(); n++ {
		stage, _ := e.Config.Stage(n)
		ts := e.stamp()
		t := domain.WorkflowTransaction{
			ID:            newID(),
			InitiativeID:  in.ID,
			StageNumber:   n,
			StageName:     stage.Name,
			RequiredRole:  stage.Role,
			ApproveStatus: domain.StagePending,
			Site:          in.Site,
			CreatedAt:     ts,
		}
		skip := (n == wf.MocStage && !in.RequiresMoc) || (n == wf.CapexStage && !in.RequiresCapex)
		if assignee := e.assignee(ctx, tx, in, n); assignee != "" {
			t.AssignedUserEmail = &assignee
		}
		if skip {
			actor, comment := systemActor, "not required"
			t.ApproveStatus = domain.StageApproved
			t.ActionBy = &actor
			t.ActionDate = &ts
			t.Comment = &comment
		}
		if err := e.Repo.InsertTransaction(ctx, tx, t); err != nil {
			return in, fmt.Errorf("insert stage %d: %w", n, err)
		}
		in.CurrentStage = n
		if skip {
			if err := e.events().Append(ctx, tx, events.StageApproved, "initiative", in.ID, systemActor,
				events.Payload{"stage": n, "transaction_id": t.ID, "comment": "not required"}); err != nil {
				return in, err
			}
			continue
		}
		payload := events.Payload{"stage": n, "stage_name": t.StageName, "transaction_id": t.ID, "required_role": t.RequiredRole, "site": in.Site}
		if t.AssignedUserEmail != nil {
			payload["assigned_user_email"] = *t.AssignedUserEmail
		}
		if err := e.events().Append(ctx, tx, events.StagePending, "initiative", in.ID, systemActor, payload); err != nil {
			return in, err
		}
		return e.refreshProgress(ctx, tx, in)
	}
	in.Status = domain.InitiativeCompleted
	in.CurrentStage = e.Config.LastStage()
	in.ProgressPercentage = 100
	return in, nil
}

// assignee picks the approver for stage n: the initiative lead for lead
// stages, otherwise the site's workflow master.
func (e Engine) assignee(ctx context.Context, tx *sql.Tx, in domain.Initiative, n int) string {
	if e.Config.IsLeadStage(n) && in.InitiativeLeadEmail != nil {
		return *in.InitiativeLeadEmail
	}
	if m, err := e.Repo.GetMaster(ctx, tx, in.Site, n); err == nil {
		return m.UserEmail
	}
	return e.Config.MasterEmail(in.Site, n)
}

func (e Engine) refreshProgress(ctx context.Context, tx *sql.Tx, in domain.Initiative) (domain.Initiative, error) {
	approved, err := e.Repo.CountApproved(ctx, tx, in.ID)
	if err != nil {
		return in, err
	}
	in.ProgressPercentage = derive.StageProgress(approved, e.Config.LastStage())
	return in, nil
}

// ReassignStage changes the assignee of a pending stage. Admin only.
func (e Engine) ReassignStage(ctx context.Context, actor domain.User, transactionID, email string) (domain.WorkflowTransaction, error) {
	if !policy.IsAdmin(actor) {
		return domain.WorkflowTransaction{}, auth.ForbiddenError{Permission: "workflow.assign"}
	}
	var t domain.WorkflowTransaction
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		t, err = e.Repo.GetTransaction(ctx, tx, transactionID)
		if err != nil {
			return notFound("workflow transaction", transactionID, err)
		}
		if t.ApproveStatus != domain.StagePending {
			return ErrStageNotPending
		}
		email = strings.ToLower(strings.TrimSpace(email))
		if err := e.Repo.AssignTransaction(ctx, tx, t.ID, email); err != nil {
			return err
		}
		if email == "" {
			t.AssignedUserEmail = nil
		} else {
			t.AssignedUserEmail = &email
		}
		return e.events().Append(ctx, tx, events.StageReassigned, "initiative", t.InitiativeID, actor.Email,
			events.Payload{"stage": t.StageNumber, "transaction_id": t.ID, "assigned_user_email": email})
	})
	return t, err
}

// SetMaster stores the default approver of a stage at a site. Admin only.
func (e Engine) SetMaster(ctx context.Context, actor domain.User, site string, stage int, email string) (domain.WorkflowMaster, error) {
	if !policy.IsAdmin(actor) {
		return domain.WorkflowMaster{}, auth.ForbiddenError{Permission: "workflow.assign"}
	}
	st, ok := e.Config.Stage(stage)
	if !ok {
		return domain.WorkflowMaster{}, forms.ValidationError{Fields: forms.FieldErrors{"stage": "unknown stage"}}
	}
	if !e.Config.HasSite(site) {
		return domain.WorkflowMaster{}, forms.ValidationError{Fields: forms.FieldErrors{"site": "unknown site"}}
	}
	m := domain.WorkflowMaster{Site: site, StageNumber: stage, Role: st.Role, UserEmail: strings.ToLower(strings.TrimSpace(email))}
	return m, e.Repo.UpsertMaster(ctx, nil, m)
}
