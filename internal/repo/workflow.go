package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"opexhub/internal/domain"
)

const transactionColumns = `id,initiative_id,stage_number,stage_name,required_role,approve_status,assigned_user_email,site,action_by,action_date,comment,created_at`

func scanTransaction(s scanner) (domain.WorkflowTransaction, error) {
	var t domain.WorkflowTransaction
	var assigned, actionBy, actionDate, comment sql.NullString
	err := s.Scan(&t.ID, &t.InitiativeID, &t.StageNumber, &t.StageName, &t.RequiredRole, &t.ApproveStatus,
		&assigned, &t.Site, &actionBy, &actionDate, &comment, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	t.AssignedUserEmail = stringPtr(assigned)
	t.ActionBy = stringPtr(actionBy)
	t.ActionDate = stringPtr(actionDate)
	t.Comment = stringPtr(comment)
	return t, err
}

func scanTransactions(rows *sql.Rows) ([]domain.WorkflowTransaction, error) {
	defer rows.Close()
	res := []domain.WorkflowTransaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) InsertTransaction(ctx context.Context, tx *sql.Tx, t domain.WorkflowTransaction) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO workflow_transactions(`+transactionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.InitiativeID, t.StageNumber, t.StageName, t.RequiredRole, t.ApproveStatus,
		nullableStringPtr(t.AssignedUserEmail), t.Site, nullableStringPtr(t.ActionBy), nullableStringPtr(t.ActionDate),
		nullableStringPtr(t.Comment), t.CreatedAt)
	return err
}

// CompleteTransaction records the decision on a still-pending transaction.
// It returns ErrNotFound when the row is missing or already decided.
func (r Repo) CompleteTransaction(ctx context.Context, tx *sql.Tx, t domain.WorkflowTransaction) error {
	return affectedOne(r.on(tx).ExecContext(ctx, `UPDATE workflow_transactions SET approve_status=?, action_by=?, action_date=?, comment=?
WHERE id=? AND approve_status='pending'`,
		t.ApproveStatus, nullableStringPtr(t.ActionBy), nullableStringPtr(t.ActionDate), nullableStringPtr(t.Comment), t.ID))
}

// AssignTransaction sets the assignee of a transaction.
func (r Repo) AssignTransaction(ctx context.Context, tx *sql.Tx, id, email string) error {
	return affectedOne(r.on(tx).ExecContext(ctx, `UPDATE workflow_transactions SET assigned_user_email=? WHERE id=?`, nullable(email), id))
}

func (r Repo) GetTransaction(ctx context.Context, tx *sql.Tx, id string) (domain.WorkflowTransaction, error) {
	return scanTransaction(r.on(tx).QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM workflow_transactions WHERE id=?`, id))
}

// ListTransactions returns an initiative's transactions in stage order.
func (r Repo) ListTransactions(ctx context.Context, tx *sql.Tx, initiativeID string) ([]domain.WorkflowTransaction, error) {
	rows, err := r.on(tx).QueryContext(ctx, `SELECT `+transactionColumns+` FROM workflow_transactions WHERE initiative_id=? ORDER BY stage_number`, initiativeID)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// ListPendingTransactions returns pending transactions for a role, optionally
// narrowed to one site, oldest first.
func (r Repo) ListPendingTransactions(ctx context.Context, role, site string) ([]domain.WorkflowTransaction, error) {
	clauses := []string{"approve_status='pending'"}
	var args []any
	if role != "" {
		clauses = append(clauses, "required_role=?")
		args = append(args, role)
	}
	if site != "" {
		clauses = append(clauses, "site=?")
		args = append(args, site)
	}
	query := `SELECT ` + transactionColumns + ` FROM workflow_transactions WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// CountApproved returns how many stages of an initiative are approved.
func (r Repo) CountApproved(ctx context.Context, tx *sql.Tx, initiativeID string) (int, error) {
	var n int
	err := r.on(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM workflow_transactions WHERE initiative_id=? AND approve_status='approved'`, initiativeID).Scan(&n)
	return n, err
}

// UpsertMaster sets the default approver of a stage at a site.
func (r Repo) UpsertMaster(ctx context.Context, tx *sql.Tx, m domain.WorkflowMaster) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO workflow_masters(site,stage_number,role,user_email) VALUES (?,?,?,?)
ON CONFLICT(site,stage_number) DO UPDATE SET role=excluded.role, user_email=excluded.user_email`,
		m.Site, m.StageNumber, m.Role, m.UserEmail)
	return err
}

func (r Repo) GetMaster(ctx context.Context, tx *sql.Tx, site string, stage int) (domain.WorkflowMaster, error) {
	var m domain.WorkflowMaster
	err := r.on(tx).QueryRowContext(ctx, `SELECT site,stage_number,role,user_email FROM workflow_masters WHERE site=? AND stage_number=?`, site, stage).
		Scan(&m.Site, &m.StageNumber, &m.Role, &m.UserEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) ListMasters(ctx context.Context, site string) ([]domain.WorkflowMaster, error) {
	query := `SELECT site,stage_number,role,user_email FROM workflow_masters`
	var args []any
	if site != "" {
		query += ` WHERE site=?`
		args = append(args, site)
	}
	query += ` ORDER BY site, stage_number`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.WorkflowMaster{}
	for rows.Next() {
		var m domain.WorkflowMaster
		if err := rows.Scan(&m.Site, &m.StageNumber, &m.Role, &m.UserEmail); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
