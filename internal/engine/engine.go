package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"opexhub/internal/config"
	"opexhub/internal/domain"
	"opexhub/internal/engine/auth"
	"opexhub/internal/events"
	"opexhub/internal/policy"
	"opexhub/internal/repo"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrStageNotPending    = errors.New("workflow stage is not pending")
	ErrSessionInvalid     = errors.New("session expired or revoked")
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) events() events.Writer {
	w := e.Events
	w.Now = e.now
	return w
}

func newID() string { return uuid.NewString() }

// withTx runs fn inside one SQL transaction and commits when fn succeeds.
func (e Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// requirePermission checks the acting user's role against the configured
// permission list.
func (e Engine) requirePermission(role, perm string) error {
	if e.Config == nil {
		return errors.New("config not loaded")
	}
	if !policy.HasPermission(e.Config.RolePermissions(role), perm) {
		return auth.ForbiddenError{Permission: perm}
	}
	return nil
}

// RequirePermission reports a ForbiddenError unless u's role grants perm.
func (e Engine) RequirePermission(u domain.User, perm string) error {
	return e.requirePermission(u.Role, perm)
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, repo.ErrNotFound)
	}
	return err
}
