package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"opexhub/internal/domain"
)

const userColumns = `id,email,full_name,password_hash,site,discipline,role,role_name,created_at`

func scanUser(s scanner) (domain.User, error) {
	var u domain.User
	err := s.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.Site, &u.Discipline, &u.Role, &u.RoleName, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		u.ID, u.Email, u.FullName, u.PasswordHash, u.Site, u.Discipline, u.Role, u.RoleName, u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

// GetUserByEmail matches email case-insensitively.
func (r Repo) GetUserByEmail(ctx context.Context, tx *sql.Tx, email string) (domain.User, error) {
	return scanUser(r.on(tx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, strings.TrimSpace(email)))
}

// EmailTaken reports whether an account already uses email.
func (r Repo) EmailTaken(ctx context.Context, tx *sql.Tx, email string) (bool, error) {
	var n int
	err := r.on(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email=?`, strings.TrimSpace(email)).Scan(&n)
	return n > 0, err
}

// ListUsers returns users ordered by email, optionally narrowed by site and role.
func (r Repo) ListUsers(ctx context.Context, site, role string) ([]domain.User, error) {
	var clauses []string
	var args []any
	if site != "" {
		clauses = append(clauses, "site=?")
		args = append(args, site)
	}
	if role != "" {
		clauses = append(clauses, "role=?")
		args = append(args, role)
	}
	query := `SELECT ` + userColumns + ` FROM users`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY email"
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) InsertSession(ctx context.Context, tx *sql.Tx, s domain.Session) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO sessions(id,user_id,created_at,expires_at) VALUES (?,?,?,?)`,
		s.ID, s.UserID, s.CreatedAt, s.ExpiresAt)
	return err
}

func (r Repo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	var s domain.Session
	var revoked sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,user_id,created_at,expires_at,revoked_at FROM sessions WHERE id=?`, id).
		Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.ExpiresAt, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	s.RevokedAt = stringPtr(revoked)
	return s, err
}

// RevokeSession marks an active session revoked. Revoking twice is not an error.
func (r Repo) RevokeSession(ctx context.Context, tx *sql.Tx, id, at string) error {
	_, err := r.on(tx).ExecContext(ctx, `UPDATE sessions SET revoked_at=? WHERE id=? AND revoked_at IS NULL`, at, id)
	return err
}
