package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"opexhub/internal/domain"
	"opexhub/internal/listing"
)

const initiativeColumns = `i.id,i.initiative_number,i.title,i.description,i.initiator_name,i.status,i.priority,` +
	`i.expected_savings,i.actual_savings,i.estimated_capex,i.site,i.discipline,i.start_date,i.end_date,` +
	`i.progress_percentage,i.current_stage,i.requires_moc,i.requires_capex,i.moc_number,i.capex_number,` +
	`i.initiative_lead_email,i.baseline_data,i.target_outcome,i.target_value,i.confidence_level,i.is_budgeted,` +
	`i.assumptions_json,i.created_by,i.created_at,i.updated_at`

// InitiativeFilter selects one page of initiatives. The predicate matches
// listing.Filter.
type InitiativeFilter struct {
	listing.Filter
	Page int
	Size int
}

// initiativeWhere renders the filter as SQL clauses over alias i.
func initiativeWhere(f listing.Filter) ([]string, []any) {
	f = f.Normalized()
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, `lower(i.status) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Status))
	}
	if f.Site != "" {
		clauses = append(clauses, "i.site=?")
		args = append(args, f.Site)
	}
	if f.Search != "" {
		p := likePattern(f.Search)
		clauses = append(clauses, `(lower(i.title) LIKE ? ESCAPE '\' OR lower(i.initiative_number) LIKE ? ESCAPE '\' OR lower(i.id) LIKE ? ESCAPE '\')`)
		args = append(args, p, p, p)
	}
	return clauses, args
}

func scanInitiative(s scanner) (domain.Initiative, error) {
	var in domain.Initiative
	var actual sql.NullFloat64
	var start, end, moc, capex, lead sql.NullString
	var requiresMoc, requiresCapex, budgeted int
	var assumptions string
	err := s.Scan(&in.ID, &in.InitiativeNumber, &in.Title, &in.Description, &in.InitiatorName, &in.Status, &in.Priority,
		&in.ExpectedSavings, &actual, &in.EstimatedCapex, &in.Site, &in.Discipline, &start, &end,
		&in.ProgressPercentage, &in.CurrentStage, &requiresMoc, &requiresCapex, &moc, &capex,
		&lead, &in.BaselineData, &in.TargetOutcome, &in.TargetValue, &in.ConfidenceLevel, &budgeted,
		&assumptions, &in.CreatedBy, &in.CreatedAt, &in.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return in, ErrNotFound
	}
	if err != nil {
		return in, err
	}
	in.ActualSavings = floatPtr(actual)
	in.StartDate = start.String
	in.EndDate = end.String
	in.RequiresMoc = requiresMoc != 0
	in.RequiresCapex = requiresCapex != 0
	in.IsBudgeted = budgeted != 0
	in.MocNumber = stringPtr(moc)
	in.CapexNumber = stringPtr(capex)
	in.InitiativeLeadEmail = stringPtr(lead)
	in.Assumptions = []string{}
	if assumptions != "" {
		if err := json.Unmarshal([]byte(assumptions), &in.Assumptions); err != nil {
			return in, fmt.Errorf("decode assumptions of %s: %w", in.ID, err)
		}
	}
	return in, nil
}

func assumptionsJSON(a []string) (string, error) {
	if a == nil {
		a = []string{}
	}
	b, err := json.Marshal(a)
	return string(b), err
}

func (r Repo) InsertInitiative(ctx context.Context, tx *sql.Tx, in domain.Initiative) error {
	assumptions, err := assumptionsJSON(in.Assumptions)
	if err != nil {
		return err
	}
	_, err = r.on(tx).ExecContext(ctx, `INSERT INTO initiatives(
id,initiative_number,title,description,initiator_name,status,priority,expected_savings,actual_savings,estimated_capex,
site,discipline,start_date,end_date,progress_percentage,current_stage,requires_moc,requires_capex,moc_number,capex_number,
initiative_lead_email,baseline_data,target_outcome,target_value,confidence_level,is_budgeted,assumptions_json,created_by,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		in.ID, in.InitiativeNumber, in.Title, in.Description, in.InitiatorName, in.Status, in.Priority,
		in.ExpectedSavings, nullableFloatPtr(in.ActualSavings), in.EstimatedCapex,
		in.Site, in.Discipline, nullable(in.StartDate), nullable(in.EndDate), in.ProgressPercentage, in.CurrentStage,
		boolInt(in.RequiresMoc), boolInt(in.RequiresCapex), nullableStringPtr(in.MocNumber), nullableStringPtr(in.CapexNumber),
		nullableStringPtr(in.InitiativeLeadEmail), in.BaselineData, in.TargetOutcome, in.TargetValue, in.ConfidenceLevel,
		boolInt(in.IsBudgeted), assumptions, in.CreatedBy, in.CreatedAt, in.UpdatedAt)
	return err
}

// UpdateInitiative rewrites every mutable column of the initiative.
func (r Repo) UpdateInitiative(ctx context.Context, tx *sql.Tx, in domain.Initiative) error {
	assumptions, err := assumptionsJSON(in.Assumptions)
	if err != nil {
		return err
	}
	return affectedOne(r.on(tx).ExecContext(ctx, `UPDATE initiatives SET
title=?,description=?,initiator_name=?,status=?,priority=?,expected_savings=?,actual_savings=?,estimated_capex=?,
site=?,discipline=?,start_date=?,end_date=?,progress_percentage=?,current_stage=?,requires_moc=?,requires_capex=?,
moc_number=?,capex_number=?,initiative_lead_email=?,baseline_data=?,target_outcome=?,target_value=?,confidence_level=?,
is_budgeted=?,assumptions_json=?,updated_at=? WHERE id=?`,
		in.Title, in.Description, in.InitiatorName, in.Status, in.Priority, in.ExpectedSavings,
		nullableFloatPtr(in.ActualSavings), in.EstimatedCapex, in.Site, in.Discipline,
		nullable(in.StartDate), nullable(in.EndDate), in.ProgressPercentage, in.CurrentStage,
		boolInt(in.RequiresMoc), boolInt(in.RequiresCapex), nullableStringPtr(in.MocNumber), nullableStringPtr(in.CapexNumber),
		nullableStringPtr(in.InitiativeLeadEmail), in.BaselineData, in.TargetOutcome, in.TargetValue, in.ConfidenceLevel,
		boolInt(in.IsBudgeted), assumptions, in.UpdatedAt, in.ID))
}

func (r Repo) GetInitiative(ctx context.Context, tx *sql.Tx, id string) (domain.Initiative, error) {
	return scanInitiative(r.on(tx).QueryRowContext(ctx, `SELECT `+initiativeColumns+` FROM initiatives i WHERE i.id=?`, id))
}

func (r Repo) DeleteInitiative(ctx context.Context, tx *sql.Tx, id string) error {
	return affectedOne(r.on(tx).ExecContext(ctx, `DELETE FROM initiatives WHERE id=?`, id))
}

// ListInitiatives returns one page, newest first.
func (r Repo) ListInitiatives(ctx context.Context, f InitiativeFilter) (listing.Page[domain.Initiative], error) {
	clauses, args := initiativeWhere(f.Filter)
	return r.pageInitiatives(ctx, "", nil, clauses, args, f.Page, f.Size)
}

// ListTrackedInitiatives pages the initiatives whose given stage was approved
// and assigned to email.
func (r Repo) ListTrackedInitiatives(ctx context.Context, stage int, email string, f InitiativeFilter) (listing.Page[domain.Initiative], error) {
	join := ` JOIN workflow_transactions wt ON wt.initiative_id=i.id AND wt.stage_number=? AND wt.approve_status='approved' AND lower(wt.assigned_user_email)=lower(?)`
	clauses, args := initiativeWhere(f.Filter)
	return r.pageInitiatives(ctx, join, []any{stage, strings.TrimSpace(email)}, clauses, args, f.Page, f.Size)
}

func (r Repo) pageInitiatives(ctx context.Context, join string, joinArgs []any, clauses []string, args []any, page, size int) (listing.Page[domain.Initiative], error) {
	page, size = listing.Normalize(page, size)
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	all := append(append([]any{}, joinArgs...), args...)

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM initiatives i`+join+where, all...).Scan(&total); err != nil {
		return listing.Page[domain.Initiative]{}, fmt.Errorf("count initiatives: %w", err)
	}
	query := `SELECT ` + initiativeColumns + ` FROM initiatives i` + join + where + ` ORDER BY i.created_at DESC, i.id DESC LIMIT ? OFFSET ?`
	rows, err := r.DB.QueryContext(ctx, query, append(all, size, listing.Offset(page, size))...)
	if err != nil {
		return listing.Page[domain.Initiative]{}, fmt.Errorf("list initiatives: %w", err)
	}
	defer rows.Close()
	content := []domain.Initiative{}
	for rows.Next() {
		in, err := scanInitiative(rows)
		if err != nil {
			return listing.Page[domain.Initiative]{}, err
		}
		content = append(content, in)
	}
	if err := rows.Err(); err != nil {
		return listing.Page[domain.Initiative]{}, err
	}
	return listing.Page[domain.Initiative]{Content: content, PageInfo: listing.Info(page, size, total)}, nil
}

// AllInitiatives returns every initiative of a site (or all sites), oldest first.
func (r Repo) AllInitiatives(ctx context.Context, site string) ([]domain.Initiative, error) {
	query := `SELECT ` + initiativeColumns + ` FROM initiatives i`
	var args []any
	if site != "" {
		query += ` WHERE i.site=?`
		args = append(args, site)
	}
	query += ` ORDER BY i.start_date, i.created_at, i.id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Initiative{}
	for rows.Next() {
		in, err := scanInitiative(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	return res, rows.Err()
}

// NextInitiativeSequence increments and returns the per-site, per-year counter.
func (r Repo) NextInitiativeSequence(ctx context.Context, tx *sql.Tx, site string, year int) (int, error) {
	q := r.on(tx)
	if _, err := q.ExecContext(ctx, `INSERT INTO initiative_sequences(site,year,last_value) VALUES (?,?,0) ON CONFLICT(site,year) DO NOTHING`, site, year); err != nil {
		return 0, err
	}
	if _, err := q.ExecContext(ctx, `UPDATE initiative_sequences SET last_value=last_value+1 WHERE site=? AND year=?`, site, year); err != nil {
		return 0, err
	}
	var v int
	err := q.QueryRowContext(ctx, `SELECT last_value FROM initiative_sequences WHERE site=? AND year=?`, site, year).Scan(&v)
	return v, err
}
