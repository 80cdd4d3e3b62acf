package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written by the engine.
const (
	InitiativeCreated = "initiative.created"
	InitiativeUpdated = "initiative.updated"
	InitiativeDeleted = "initiative.deleted"
	StageApproved     = "workflow.stage.approved"
	StageRejected     = "workflow.stage.rejected"
	StagePending      = "workflow.stage.pending"
	StageReassigned   = "workflow.stage.reassigned"
	MonitoringCreated = "monitoring.entry.created"
	MonitoringUpdated = "monitoring.entry.updated"
	MonitoringDeleted = "monitoring.entry.deleted"
	MonitoringFinal   = "monitoring.entry.finalized"
	MonitoringFA      = "monitoring.entry.fa_approval"
	TimelineCreated   = "timeline.entry.created"
	TimelineUpdated   = "timeline.entry.updated"
	TimelineDeleted   = "timeline.entry.deleted"
	TimelineApprovals = "timeline.entry.approvals"
	UserRegistered    = "user.registered"
	UserLoggedIn      = "user.login"
	UserLoggedOut     = "user.logout"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

// Append records an event inside the caller's transaction.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actor string, payload Payload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if actor == "" {
		actor = "system"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actor, string(data))
	if err != nil {
		return fmt.Errorf("append event %s: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
