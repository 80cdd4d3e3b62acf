package repo

import (
	"context"
	"database/sql"
	"errors"

	"opexhub/internal/domain"
)

const monitoringColumns = `id,initiative_id,monitoring_month,kpi_description,category,target_value,achieved_value,deviation,deviation_percentage,remarks,is_finalized,fa_approval,fa_comments,entered_by,created_at,updated_at`

func scanMonitoring(s scanner) (domain.MonitoringEntry, error) {
	var m domain.MonitoringEntry
	var category, remarks, faComments sql.NullString
	var achieved, deviation, pct sql.NullFloat64
	var finalized, fa int
	err := s.Scan(&m.ID, &m.InitiativeID, &m.MonitoringMonth, &m.KPIDescription, &category, &m.TargetValue,
		&achieved, &deviation, &pct, &remarks, &finalized, &fa, &faComments, &m.EnteredBy, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	m.Category = stringPtr(category)
	m.AchievedValue = floatPtr(achieved)
	m.Deviation = floatPtr(deviation)
	m.DeviationPercentage = floatPtr(pct)
	m.Remarks = stringPtr(remarks)
	m.FAComments = stringPtr(faComments)
	m.IsFinalized = finalized != 0
	m.FAApproval = fa != 0
	return m, err
}

func (r Repo) queryMonitoring(ctx context.Context, where string, args ...any) ([]domain.MonitoringEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+monitoringColumns+` FROM monitoring_entries WHERE `+where+` ORDER BY monitoring_month, created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.MonitoringEntry{}
	for rows.Next() {
		m, err := scanMonitoring(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) InsertMonitoring(ctx context.Context, tx *sql.Tx, m domain.MonitoringEntry) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO monitoring_entries(`+monitoringColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.InitiativeID, m.MonitoringMonth, m.KPIDescription, nullableStringPtr(m.Category), m.TargetValue,
		nullableFloatPtr(m.AchievedValue), nullableFloatPtr(m.Deviation), nullableFloatPtr(m.DeviationPercentage),
		nullableStringPtr(m.Remarks), boolInt(m.IsFinalized), boolInt(m.FAApproval), nullableStringPtr(m.FAComments),
		m.EnteredBy, m.CreatedAt, m.UpdatedAt)
	return err
}

// UpdateMonitoring rewrites every mutable column of the entry.
func (r Repo) UpdateMonitoring(ctx context.Context, tx *sql.Tx, m domain.MonitoringEntry) error {
	return affectedOne(r.on(tx).ExecContext(ctx, `UPDATE monitoring_entries SET monitoring_month=?,kpi_description=?,category=?,
target_value=?,achieved_value=?,deviation=?,deviation_percentage=?,remarks=?,is_finalized=?,fa_approval=?,fa_comments=?,updated_at=?
WHERE id=?`,
		m.MonitoringMonth, m.KPIDescription, nullableStringPtr(m.Category), m.TargetValue,
		nullableFloatPtr(m.AchievedValue), nullableFloatPtr(m.Deviation), nullableFloatPtr(m.DeviationPercentage),
		nullableStringPtr(m.Remarks), boolInt(m.IsFinalized), boolInt(m.FAApproval), nullableStringPtr(m.FAComments),
		m.UpdatedAt, m.ID))
}

func (r Repo) GetMonitoring(ctx context.Context, tx *sql.Tx, id string) (domain.MonitoringEntry, error) {
	return scanMonitoring(r.on(tx).QueryRowContext(ctx, `SELECT `+monitoringColumns+` FROM monitoring_entries WHERE id=?`, id))
}

func (r Repo) DeleteMonitoring(ctx context.Context, tx *sql.Tx, id string) error {
	return affectedOne(r.on(tx).ExecContext(ctx, `DELETE FROM monitoring_entries WHERE id=?`, id))
}

// ListMonitoring returns an initiative's entries, optionally for one YYYY-MM month.
func (r Repo) ListMonitoring(ctx context.Context, initiativeID, month string) ([]domain.MonitoringEntry, error) {
	if month != "" {
		return r.queryMonitoring(ctx, `initiative_id=? AND monitoring_month=?`, initiativeID, month)
	}
	return r.queryMonitoring(ctx, `initiative_id=?`, initiativeID)
}

// ListPendingFA returns finalized entries still awaiting F&A approval.
func (r Repo) ListPendingFA(ctx context.Context, initiativeID string) ([]domain.MonitoringEntry, error) {
	return r.queryMonitoring(ctx, `initiative_id=? AND is_finalized=1 AND fa_approval=0`, initiativeID)
}

const timelineColumns = `id,initiative_id,stage_name,planned_start_date,planned_end_date,actual_start_date,actual_end_date,status,responsible_person,remarks,document_path,site_lead_approval,initiative_lead_approval,entered_by,updated_by,created_at,updated_at`

func scanTimeline(s scanner) (domain.TimelineEntry, error) {
	var t domain.TimelineEntry
	var actualStart, actualEnd, remarks, doc, updatedBy sql.NullString
	var siteLead, initLead int
	err := s.Scan(&t.ID, &t.InitiativeID, &t.StageName, &t.PlannedStartDate, &t.PlannedEndDate, &actualStart, &actualEnd,
		&t.Status, &t.ResponsiblePerson, &remarks, &doc, &siteLead, &initLead, &t.EnteredBy, &updatedBy, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	t.ActualStartDate = stringPtr(actualStart)
	t.ActualEndDate = stringPtr(actualEnd)
	t.Remarks = stringPtr(remarks)
	t.DocumentPath = stringPtr(doc)
	t.UpdatedBy = stringPtr(updatedBy)
	t.SiteLeadApproval = siteLead != 0
	t.InitiativeLeadApproval = initLead != 0
	return t, err
}

func (r Repo) queryTimeline(ctx context.Context, where string, args ...any) ([]domain.TimelineEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+timelineColumns+` FROM timeline_entries WHERE `+where+` ORDER BY planned_start_date, created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.TimelineEntry{}
	for rows.Next() {
		t, err := scanTimeline(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) InsertTimeline(ctx context.Context, tx *sql.Tx, t domain.TimelineEntry) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO timeline_entries(`+timelineColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.InitiativeID, t.StageName, t.PlannedStartDate, t.PlannedEndDate,
		nullableStringPtr(t.ActualStartDate), nullableStringPtr(t.ActualEndDate), t.Status, t.ResponsiblePerson,
		nullableStringPtr(t.Remarks), nullableStringPtr(t.DocumentPath), boolInt(t.SiteLeadApproval), boolInt(t.InitiativeLeadApproval),
		t.EnteredBy, nullableStringPtr(t.UpdatedBy), t.CreatedAt, t.UpdatedAt)
	return err
}

// UpdateTimeline rewrites every mutable column of the entry.
func (r Repo) UpdateTimeline(ctx context.Context, tx *sql.Tx, t domain.TimelineEntry) error {
	return affectedOne(r.on(tx).ExecContext(ctx, `UPDATE timeline_entries SET stage_name=?,planned_start_date=?,planned_end_date=?,
actual_start_date=?,actual_end_date=?,status=?,responsible_person=?,remarks=?,document_path=?,site_lead_approval=?,
initiative_lead_approval=?,updated_by=?,updated_at=? WHERE id=?`,
		t.StageName, t.PlannedStartDate, t.PlannedEndDate, nullableStringPtr(t.ActualStartDate), nullableStringPtr(t.ActualEndDate),
		t.Status, t.ResponsiblePerson, nullableStringPtr(t.Remarks), nullableStringPtr(t.DocumentPath),
		boolInt(t.SiteLeadApproval), boolInt(t.InitiativeLeadApproval), nullableStringPtr(t.UpdatedBy), t.UpdatedAt, t.ID))
}

func (r Repo) GetTimeline(ctx context.Context, tx *sql.Tx, id string) (domain.TimelineEntry, error) {
	return scanTimeline(r.on(tx).QueryRowContext(ctx, `SELECT `+timelineColumns+` FROM timeline_entries WHERE id=?`, id))
}

func (r Repo) DeleteTimeline(ctx context.Context, tx *sql.Tx, id string) error {
	return affectedOne(r.on(tx).ExecContext(ctx, `DELETE FROM timeline_entries WHERE id=?`, id))
}

func (r Repo) ListTimeline(ctx context.Context, initiativeID string) ([]domain.TimelineEntry, error) {
	return r.queryTimeline(ctx, `initiative_id=?`, initiativeID)
}

// ListPendingTimelineApprovals returns entries missing either approval.
func (r Repo) ListPendingTimelineApprovals(ctx context.Context, initiativeID string) ([]domain.TimelineEntry, error) {
	return r.queryTimeline(ctx, `initiative_id=? AND (site_lead_approval=0 OR initiative_lead_approval=0)`, initiativeID)
}
