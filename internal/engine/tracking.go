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
)

// TrackingKind selects which approved stage makes an initiative eligible.
type TrackingKind string

const (
	TrackingMonitoring TrackingKind = "monitoring"
	TrackingTimeline   TrackingKind = "timeline"
)

// EligibleInitiatives pages the initiatives whose monitoring (or timeline)
// stage was approved and assigned to actor.
func (e Engine) EligibleInitiatives(ctx context.Context, actor domain.User, kind TrackingKind, f listing.Filter, page int) (listing.Page[domain.Initiative], error) {
	stage := e.Config.Tracking.MonitoringStage
	if kind == TrackingTimeline {
		stage = e.Config.Tracking.TimelineStage
	}
	return e.Repo.ListTrackedInitiatives(ctx, stage, actor.Email, repo.InitiativeFilter{Filter: f, Page: page, Size: e.Config.PageSize()})
}

func (e Engine) ListMonitoring(ctx context.Context, initiativeID, month string) ([]domain.MonitoringEntry, error) {
	if _, err := e.GetInitiative(ctx, initiativeID); err != nil {
		return nil, err
	}
	if month != "" {
		if _, err := derive.ParseMonth(month); err != nil {
			return nil, forms.ValidationError{Fields: forms.FieldErrors{"month": "must be a YYYY-MM month"}}
		}
	}
	return e.Repo.ListMonitoring(ctx, initiativeID, month)
}

func (e Engine) PendingFAApprovals(ctx context.Context, initiativeID string) ([]domain.MonitoringEntry, error) {
	if _, err := e.GetInitiative(ctx, initiativeID); err != nil {
		return nil, err
	}
	return e.Repo.ListPendingFA(ctx, initiativeID)
}

func (e Engine) GetMonitoring(ctx context.Context, id string) (domain.MonitoringEntry, error) {
	m, err := e.Repo.GetMonitoring(ctx, nil, id)
	return m, notFound("monitoring entry", id, err)
}

func (e Engine) CreateMonitoring(ctx context.Context, actor domain.User, initiativeID string, form forms.Monitoring) (domain.MonitoringEntry, error) {
	if !policy.CanCreateMonitoring(actor) {
		return domain.MonitoringEntry{}, auth.ForbiddenError{Permission: "monitoring.create"}
	}
	if err := form.Validate(); err != nil {
		return domain.MonitoringEntry{}, err
	}
	ts := e.stamp()
	m := form.Apply(domain.MonitoringEntry{
		ID:           newID(),
		InitiativeID: initiativeID,
		EnteredBy:    actor.Email,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	})
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetInitiative(ctx, tx, initiativeID); err != nil {
			return notFound("initiative", initiativeID, err)
		}
		if err := e.Repo.InsertMonitoring(ctx, tx, m); err != nil {
			return fmt.Errorf("insert monitoring entry: %w", err)
		}
		return e.events().Append(ctx, tx, events.MonitoringCreated, "monitoring_entry", m.ID, actor.Email,
			events.Payload{"initiative_id": initiativeID, "month": m.MonitoringMonth})
	})
	if err != nil {
		return domain.MonitoringEntry{}, err
	}
	return m, nil
}

// mutateMonitoring loads an entry, checks allowed, applies fn and saves it.
func (e Engine) mutateMonitoring(ctx context.Context, actor domain.User, id, perm, evt string,
	allowed func(domain.MonitoringEntry) bool, fn func(domain.MonitoringEntry) domain.MonitoringEntry) (domain.MonitoringEntry, error) {
	var out domain.MonitoringEntry
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		m, err := e.Repo.GetMonitoring(ctx, tx, id)
		if err != nil {
			return notFound("monitoring entry", id, err)
		}
		if !allowed(m) {
			return auth.ForbiddenError{Permission: perm}
		}
		out = fn(m)
		out.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateMonitoring(ctx, tx, out); err != nil {
			return fmt.Errorf("update monitoring entry: %w", err)
		}
		return e.events().Append(ctx, tx, evt, "monitoring_entry", id, actor.Email,
			events.Payload{"initiative_id": out.InitiativeID, "is_finalized": out.IsFinalized, "fa_approval": out.FAApproval})
	})
	return out, err
}

func (e Engine) UpdateMonitoring(ctx context.Context, actor domain.User, id string, form forms.Monitoring) (domain.MonitoringEntry, error) {
	if err := form.Validate(); err != nil {
		return domain.MonitoringEntry{}, err
	}
	return e.mutateMonitoring(ctx, actor, id, "monitoring.update", events.MonitoringUpdated,
		func(m domain.MonitoringEntry) bool { return policy.CanEditMonitoring(actor, m) },
		form.Apply)
}

func (e Engine) FinalizeMonitoring(ctx context.Context, actor domain.User, id string, finalized bool) (domain.MonitoringEntry, error) {
	return e.mutateMonitoring(ctx, actor, id, "monitoring.finalize", events.MonitoringFinal,
		func(m domain.MonitoringEntry) bool { return policy.CanFinalizeMonitoring(actor, m) },
		func(m domain.MonitoringEntry) domain.MonitoringEntry {
			m.IsFinalized = finalized
			return m
		})
}

func (e Engine) ApproveMonitoring(ctx context.Context, actor domain.User, id string, approved bool, comments *string) (domain.MonitoringEntry, error) {
	return e.mutateMonitoring(ctx, actor, id, "monitoring.fa_approval", events.MonitoringFA,
		func(domain.MonitoringEntry) bool { return policy.CanApproveMonitoring(actor) },
		func(m domain.MonitoringEntry) domain.MonitoringEntry {
			m.FAApproval = approved
			if comments != nil {
				m.FAComments = comments
			}
			return m
		})
}

func (e Engine) DeleteMonitoring(ctx context.Context, actor domain.User, id string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		m, err := e.Repo.GetMonitoring(ctx, tx, id)
		if err != nil {
			return notFound("monitoring entry", id, err)
		}
		if !policy.CanEditMonitoring(actor, m) {
			return auth.ForbiddenError{Permission: "monitoring.delete"}
		}
		if err := e.Repo.DeleteMonitoring(ctx, tx, id); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.MonitoringDeleted, "monitoring_entry", id, actor.Email,
			events.Payload{"initiative_id": m.InitiativeID})
	})
}

func (e Engine) withProgress(items []domain.TimelineEntry) []domain.TimelineEntry {
	now := e.now()
	for i := range items {
		items[i].ProgressPercentage = derive.EntryProgress(items[i], now)
	}
	return items
}

func leadOf(in domain.Initiative) string {
	if in.InitiativeLeadEmail == nil {
		return ""
	}
	return *in.InitiativeLeadEmail
}

func (e Engine) ListTimeline(ctx context.Context, initiativeID string) ([]domain.TimelineEntry, error) {
	if _, err := e.GetInitiative(ctx, initiativeID); err != nil {
		return nil, err
	}
	items, err := e.Repo.ListTimeline(ctx, initiativeID)
	return e.withProgress(items), err
}

func (e Engine) PendingTimelineApprovals(ctx context.Context, initiativeID string) ([]domain.TimelineEntry, error) {
	if _, err := e.GetInitiative(ctx, initiativeID); err != nil {
		return nil, err
	}
	items, err := e.Repo.ListPendingTimelineApprovals(ctx, initiativeID)
	return e.withProgress(items), err
}

func (e Engine) GetTimeline(ctx context.Context, id string) (domain.TimelineEntry, error) {
	t, err := e.Repo.GetTimeline(ctx, nil, id)
	if err != nil {
		return t, notFound("timeline entry", id, err)
	}
	t.ProgressPercentage = derive.EntryProgress(t, e.now())
	return t, nil
}

func (e Engine) CreateTimeline(ctx context.Context, actor domain.User, initiativeID string, form forms.Timeline) (domain.TimelineEntry, error) {
	if err := form.Validate(); err != nil {
		return domain.TimelineEntry{}, err
	}
	ts := e.stamp()
	t := form.Apply(domain.TimelineEntry{
		ID:           newID(),
		InitiativeID: initiativeID,
		EnteredBy:    actor.Email,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	})
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		in, err := e.Repo.GetInitiative(ctx, tx, initiativeID)
		if err != nil {
			return notFound("initiative", initiativeID, err)
		}
		if !policy.CanManageTimeline(actor, leadOf(in)) {
			return auth.ForbiddenError{Permission: "timeline.create"}
		}
		if err := e.Repo.InsertTimeline(ctx, tx, t); err != nil {
			return fmt.Errorf("insert timeline entry: %w", err)
		}
		return e.events().Append(ctx, tx, events.TimelineCreated, "timeline_entry", t.ID, actor.Email,
			events.Payload{"initiative_id": initiativeID, "status": t.Status})
	})
	if err != nil {
		return domain.TimelineEntry{}, err
	}
	t.ProgressPercentage = derive.EntryProgress(t, e.now())
	return t, nil
}

// mutateTimeline loads an entry with its initiative, checks allowed, applies
// fn and saves it.
func (e Engine) mutateTimeline(ctx context.Context, actor domain.User, id, perm, evt string,
	allowed func(domain.Initiative) bool, fn func(domain.TimelineEntry) domain.TimelineEntry) (domain.TimelineEntry, error) {
	var out domain.TimelineEntry
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		t, err := e.Repo.GetTimeline(ctx, tx, id)
		if err != nil {
			return notFound("timeline entry", id, err)
		}
		in, err := e.Repo.GetInitiative(ctx, tx, t.InitiativeID)
		if err != nil {
			return notFound("initiative", t.InitiativeID, err)
		}
		if !allowed(in) {
			return auth.ForbiddenError{Permission: perm}
		}
		out = fn(t)
		out.UpdatedBy = &actor.Email
		out.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateTimeline(ctx, tx, out); err != nil {
			return fmt.Errorf("update timeline entry: %w", err)
		}
		return e.events().Append(ctx, tx, evt, "timeline_entry", id, actor.Email, events.Payload{
			"initiative_id":            out.InitiativeID,
			"status":                   out.Status,
			"site_lead_approval":       out.SiteLeadApproval,
			"initiative_lead_approval": out.InitiativeLeadApproval,
		})
	})
	if err != nil {
		return domain.TimelineEntry{}, err
	}
	out.ProgressPercentage = derive.EntryProgress(out, e.now())
	return out, nil
}

func (e Engine) UpdateTimeline(ctx context.Context, actor domain.User, id string, form forms.Timeline) (domain.TimelineEntry, error) {
	if err := form.Validate(); err != nil {
		return domain.TimelineEntry{}, err
	}
	return e.mutateTimeline(ctx, actor, id, "timeline.update", events.TimelineUpdated,
		func(in domain.Initiative) bool { return policy.CanManageTimeline(actor, leadOf(in)) },
		form.Apply)
}

// SetTimelineApprovals sets either approval flag; nil leaves it unchanged.
func (e Engine) SetTimelineApprovals(ctx context.Context, actor domain.User, id string, siteLead, initiativeLead *bool) (domain.TimelineEntry, error) {
	if siteLead == nil && initiativeLead == nil {
		return domain.TimelineEntry{}, forms.ValidationError{Fields: forms.FieldErrors{"approvals": "site_lead_approval or initiative_lead_approval is required"}}
	}
	return e.mutateTimeline(ctx, actor, id, "timeline.approve", events.TimelineApprovals,
		func(in domain.Initiative) bool {
			if siteLead != nil && !policy.CanApproveSiteLead(actor) {
				return false
			}
			if initiativeLead != nil && !policy.CanApproveInitiativeLead(actor, leadOf(in)) {
				return false
			}
			return true
		},
		func(t domain.TimelineEntry) domain.TimelineEntry {
			if siteLead != nil {
				t.SiteLeadApproval = *siteLead
			}
			if initiativeLead != nil {
				t.InitiativeLeadApproval = *initiativeLead
			}
			return t
		})
}

func (e Engine) DeleteTimeline(ctx context.Context, actor domain.User, id string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		t, err := e.Repo.GetTimeline(ctx, tx, id)
		if err != nil {
			return notFound("timeline entry", id, err)
		}
		in, err := e.Repo.GetInitiative(ctx, tx, t.InitiativeID)
		if err != nil {
			return notFound("initiative", t.InitiativeID, err)
		}
		if !policy.CanManageTimeline(actor, leadOf(in)) {
			return auth.ForbiddenError{Permission: "timeline.delete"}
		}
		if err := e.Repo.DeleteTimeline(ctx, tx, id); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.TimelineDeleted, "timeline_entry", id, actor.Email,
			events.Payload{"initiative_id": t.InitiativeID})
	})
}

// EventLog returns the event log newest first.
func (e Engine) EventLog(ctx context.Context, actor domain.User, f repo.EventFilter) ([]domain.Event, error) {
	if err := e.requirePermission(actor.Role, "events.read"); err != nil {
		return nil, err
	}
	return e.Repo.LatestEvents(ctx, f)
}
