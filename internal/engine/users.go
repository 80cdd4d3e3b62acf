package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"opexhub/internal/domain"
	"opexhub/internal/engine/auth"
	"opexhub/internal/events"
	"opexhub/internal/forms"
	"opexhub/internal/repo"
)

// DefaultTokenTTL is used when LoginOptions.TTL is zero.
const DefaultTokenTTL = 12 * time.Hour

// Register creates an account. Nothing is written unless the form is valid.
func (e Engine) Register(ctx context.Context, form forms.Signup) (domain.User, error) {
	if err := form.Validate(e.Config); err != nil {
		return domain.User{}, err
	}
	form = form.Normalized()
	hash, err := auth.HashPassword(form.Password)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:           newID(),
		Email:        form.Email,
		FullName:     form.FullName,
		PasswordHash: hash,
		Site:         form.Site,
		Discipline:   form.Discipline,
		Role:         form.Role,
		RoleName:     e.Config.RoleName(form.Role),
		CreatedAt:    e.stamp(),
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		taken, err := e.Repo.EmailTaken(ctx, tx, u.Email)
		if err != nil {
			return err
		}
		if taken {
			return ErrEmailTaken
		}
		if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		return e.events().Append(ctx, tx, events.UserRegistered, "user", u.ID, u.Email,
			events.Payload{"site": u.Site, "role": u.Role})
	})
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

type LoginOptions struct {
	Form   forms.Login
	Secret string
	TTL    time.Duration
}

type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expires_at" format:"date-time"`
	User      domain.User `json:"user"`
	SessionID string      `json:"session_id"`
}

// Login checks credentials, opens a session and mints its bearer token.
// Empty credentials are rejected before any lookup.
func (e Engine) Login(ctx context.Context, opts LoginOptions) (LoginResult, error) {
	if err := opts.Form.Validate(); err != nil {
		return LoginResult{}, err
	}
	u, err := e.Repo.GetUserByEmail(ctx, nil, opts.Form.Email)
	if errors.Is(err, repo.ErrNotFound) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}
	if !auth.CheckPassword(u.PasswordHash, opts.Form.Password) {
		return LoginResult{}, ErrInvalidCredentials
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	issued := e.now().UTC()
	s := domain.Session{
		ID:        newID(),
		UserID:    u.ID,
		CreatedAt: issued.Format(time.RFC3339),
		ExpiresAt: issued.Add(ttl).Format(time.RFC3339),
	}
	token, err := auth.MintToken(opts.Secret, auth.SessionClaims(u.ID, s.ID, u.Role, u.Site, u.Email, issued, issued.Add(ttl)))
	if err != nil {
		return LoginResult{}, err
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertSession(ctx, tx, s); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return e.events().Append(ctx, tx, events.UserLoggedIn, "user", u.ID, u.Email, events.Payload{"session_id": s.ID})
	})
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, ExpiresAt: s.ExpiresAt, User: u, SessionID: s.ID}, nil
}

// Logout revokes a session of the acting user.
func (e Engine) Logout(ctx context.Context, actor domain.User, sessionID string) error {
	s, err := e.Repo.GetSession(ctx, sessionID)
	if err != nil {
		return notFound("session", sessionID, err)
	}
	if s.UserID != actor.ID {
		return auth.ForbiddenError{Permission: "session.revoke"}
	}
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.RevokeSession(ctx, tx, sessionID, e.stamp()); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.UserLoggedOut, "user", actor.ID, actor.Email, events.Payload{"session_id": sessionID})
	})
}

// ParseToken verifies a bearer token against the engine clock.
func (e Engine) ParseToken(token, secret string) (auth.Claims, error) {
	return auth.ParseToken(token, secret, e.now)
}

// SessionUser resolves the user behind a live session.
func (e Engine) SessionUser(ctx context.Context, sessionID, userID string) (domain.User, error) {
	s, err := e.Repo.GetSession(ctx, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, ErrSessionInvalid
	}
	if err != nil {
		return domain.User{}, err
	}
	if s.UserID != userID || s.RevokedAt != nil {
		return domain.User{}, ErrSessionInvalid
	}
	if exp, err := time.Parse(time.RFC3339, s.ExpiresAt); err == nil && !e.now().Before(exp) {
		return domain.User{}, ErrSessionInvalid
	}
	return e.Repo.GetUser(ctx, userID)
}

// APIKeyUser resolves the owner of a raw API key.
func (e Engine) APIKeyUser(ctx context.Context, key string) (domain.User, error) {
	k, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, k.UserID)
}

// UserByEmail is used by local commands acting as a given user.
func (e Engine) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	u, err := e.Repo.GetUserByEmail(ctx, nil, email)
	return u, notFound("user", email, err)
}

// CreateAPIKey returns the stored key and the raw secret, which is shown once.
func (e Engine) CreateAPIKey(ctx context.Context, actor domain.User, name string) (domain.APIKey, string, error) {
	raw, err := auth.NewAPIKey()
	if err != nil {
		return domain.APIKey{}, "", err
	}
	k := domain.APIKey{ID: newID(), UserID: actor.ID, Name: name, KeyHash: repo.HashAPIKey(raw), CreatedAt: e.stamp()}
	if err := e.Repo.InsertAPIKey(ctx, nil, k); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("insert api key: %w", err)
	}
	return k, raw, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, actor domain.User) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, actor.ID)
}

func (e Engine) DeleteAPIKey(ctx context.Context, actor domain.User, id string) error {
	return notFound("api key", id, e.Repo.DeleteAPIKey(ctx, nil, actor.ID, id))
}
