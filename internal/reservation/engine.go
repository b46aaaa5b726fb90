package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parkpro-backend/internal/components/assert"
	"parkpro-backend/internal/components/telemetry"
	"parkpro-backend/internal/db"
	"parkpro-backend/internal/portal"
	"parkpro-backend/internal/session"
	"parkpro-backend/internal/vault"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	report_engine_ensure_logged_in = "engine.ensure-logged-in"
	report_engine_persist          = "engine.persist"
	report_engine_login            = "engine.login"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrNoStoredCredentials = errors.New("no stored credentials")
	ErrCredentialsUnusable = errors.New("stored credentials cannot be decrypted")
	ErrSessionExpired      = errors.New("session expired")
	ErrInvalidCommand      = errors.New("invalid command")
	ErrRefreshRefused      = errors.New("portal refused refresh")
)

// IsCredentialError reports whether err can only be fixed by the user logging
// in again, retrying will not help.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrNoStoredCredentials) ||
		errors.Is(err, ErrCredentialsUnusable) ||
		errors.Is(err, ErrSessionExpired)
}

type Options struct {
	// CalendarTTL is how long a fetched month stays cached for Calendar,
	// defaults to 5 minutes.
	CalendarTTL time.Duration
}

type Engine struct {
	qry      db.Querier
	vault    vault.Vault
	sessions *session.Registry
	portal   portal.Client
	tel      telemetry.API

	calendars *expirable.LRU[string, portal.Calendar]
}

func NewEngine(qry db.Querier, v vault.Vault, sessions *session.Registry, tel telemetry.API, opts Options) *Engine {
	assert.NotNil(qry, "querier")
	assert.NotNil(sessions, "session registry")
	assert.NotNil(tel, "telemetry")

	if opts.CalendarTTL <= 0 {
		opts.CalendarTTL = 5 * time.Minute
	}

	return &Engine{
		qry:       qry,
		vault:     v,
		sessions:  sessions,
		portal:    sessions.Portal(),
		tel:       telemetry.NewScopedAPI("reservation", tel),
		calendars: expirable.NewLRU[string, portal.Calendar](256, nil, opts.CalendarTTL),
	}
}

// Identity is what the portal exposes about a freshly logged in account.
type Identity struct {
	Email        string `json:"email"`
	TicketID     string `json:"ticket_id"`
	LongTicketID string `json:"long_ticket_id"`
	ArticleID    string `json:"article_id"`
}

func (e *Engine) getAccount(ctx context.Context, email string, missing error) (db.Account, error) {
	account, err := e.qry.GetAccount(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Account{}, missing
	}
	if err != nil {
		e.tel.ReportBroken(report_engine_persist, fmt.Errorf("get account: %w", err), email)
		return db.Account{}, err
	}
	return account, nil
}

// persistSession stores the cookies and identifiers of a successful login, it
// is best-effort since the portal session itself is already established.
func (e *Engine) persistSession(ctx context.Context, s *session.Session, landing portal.Landing) {
	cookies, err := e.sessions.SealCookies(s)
	if err != nil {
		e.tel.ReportBroken(report_engine_persist, fmt.Errorf("seal cookies: %w", err), s.Email)
		return
	}
	err = e.qry.UpdateAccountSession(ctx, db.UpdateAccountSessionParams{
		TicketID:     landing.TicketID,
		LongTicketID: landing.LongTicketID,
		ArticleID:    landing.ArticleID,
		LastCsrf:     landing.CSRFToken,
		Cookies:      cookies,
		Email:        s.Email,
	})
	if err != nil {
		e.tel.ReportBroken(report_engine_persist, fmt.Errorf("update account session: %w", err), s.Email)
	}
}

// EnsureLoggedIn makes sure the session of email is authenticated, logging in
// with the stored password if it is not. It is safe to call before every
// portal interaction.
func (e *Engine) EnsureLoggedIn(ctx context.Context, email string) error {
	s, err := e.sessions.Get(ctx, email)
	if err != nil {
		return err
	}
	s.Lock()
	defer s.Unlock()
	return e.ensureLoggedIn(ctx, s)
}

// ensureLoggedIn expects the session to be locked.
func (e *Engine) ensureLoggedIn(ctx context.Context, s *session.Session) error {
	if s.Authenticated() && s.HasPortalCookies() {
		return nil
	}

	account, err := e.getAccount(ctx, s.Email, ErrNoStoredCredentials)
	if err != nil {
		return err
	}
	if account.Password == "" {
		return ErrNoStoredCredentials
	}
	password, err := e.vault.DecryptString(account.Password)
	if err != nil {
		e.tel.ReportWarning(report_engine_ensure_logged_in, err, s.Email)
		return fmt.Errorf("%w: %w", ErrCredentialsUnusable, err)
	}

	err = s.ResetCookies()
	if err != nil {
		return err
	}
	landing, err := e.portal.Login(ctx, s.Http(), s.Email, password)
	if err != nil {
		s.Invalidate()
		return err
	}

	e.persistSession(ctx, s, landing)
	s.MarkAuthenticated()
	e.tel.ReportDebug("re-authenticated", s.Email)
	return nil
}

// retryExpired runs one portal sequence with the current account. If the
// portal reports the session expired, the session is logged in again and the
// sequence runs a second time. The session must be locked.
func retryExpired[T any](ctx context.Context, e *Engine, s *session.Session, run func(account db.Account) (T, error)) (T, error) {
	account, err := e.getAccount(ctx, s.Email, ErrUserNotFound)
	if err != nil {
		var empty T
		return empty, err
	}
	out, err := run(account)
	if !errors.Is(err, ErrSessionExpired) {
		return out, err
	}

	e.tel.ReportDebug("portal session expired, logging in again", s.Email)
	err = e.ensureLoggedIn(ctx, s)
	if err != nil {
		var empty T
		if errors.Is(err, ErrSessionExpired) {
			return empty, err
		}
		return empty, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	account, err = e.getAccount(ctx, s.Email, ErrUserNotFound)
	if err != nil {
		var empty T
		return empty, err
	}
	return run(account)
}

// Login is the first login of an account with a password given by the user,
// on success the encrypted password and session are stored.
func (e *Engine) Login(ctx context.Context, email, password string) (Identity, error) {
	s, err := e.sessions.Get(ctx, email)
	if err != nil {
		return Identity{}, err
	}
	s.Lock()
	defer s.Unlock()

	err = s.ResetCookies()
	if err != nil {
		return Identity{}, err
	}
	s.Invalidate()
	landing, err := e.portal.Login(ctx, s.Http(), email, password)
	if err != nil {
		return Identity{}, err
	}
	s.MarkAuthenticated()

	sealedPassword, err := e.vault.EncryptString(password)
	if err != nil {
		return Identity{}, fmt.Errorf("encrypt password: %w", err)
	}
	cookies, err := e.sessions.SealCookies(s)
	if err != nil {
		return Identity{}, fmt.Errorf("seal cookies: %w", err)
	}
	err = e.qry.UpsertAccountLogin(ctx, db.UpsertAccountLoginParams{
		Email:        email,
		Password:     sealedPassword,
		TicketID:     landing.TicketID,
		LongTicketID: landing.LongTicketID,
		ArticleID:    landing.ArticleID,
		LastCsrf:     landing.CSRFToken,
		Cookies:      cookies,
	})
	if err != nil {
		e.tel.ReportBroken(report_engine_login, fmt.Errorf("store account: %w", err), email)
		return Identity{}, err
	}

	return Identity{
		Email:        email,
		TicketID:     landing.TicketID,
		LongTicketID: landing.LongTicketID,
		ArticleID:    landing.ArticleID,
	}, nil
}
