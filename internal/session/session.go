package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"parkpro-backend/internal/components/assert"
	"parkpro-backend/internal/components/telemetry"
	"parkpro-backend/internal/db"
	"parkpro-backend/internal/portal"
	"parkpro-backend/internal/vault"

	"github.com/go-resty/resty/v2"
)

const (
	report_registry_hydrate = "registry.hydrate"
)

// Session is the in-memory portal session of one email. There is at most one
// per email per Registry, its cookie jar is shared by every operation of that
// email.
type Session struct {
	Email string

	portal portal.Client
	http   *resty.Client

	// serializes portal sequences for this email
	sequence sync.Mutex

	hydrateMutex sync.Mutex
	hydrated     bool

	stateMutex    sync.Mutex
	authenticated bool
}

func (s *Session) Http() *resty.Client {
	return s.http
}

// Lock is held for the duration of a multi-request portal sequence.
func (s *Session) Lock() {
	s.sequence.Lock()
}

func (s *Session) Unlock() {
	s.sequence.Unlock()
}

func (s *Session) Authenticated() bool {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	return s.authenticated
}

func (s *Session) MarkAuthenticated() {
	s.stateMutex.Lock()
	s.authenticated = true
	s.stateMutex.Unlock()
}

// Invalidate drops the authenticated flag after the portal reported the
// session as expired, the next EnsureLoggedIn logs in again.
func (s *Session) Invalidate() {
	s.stateMutex.Lock()
	s.authenticated = false
	s.stateMutex.Unlock()
}

func (s *Session) Hydrated() bool {
	s.hydrateMutex.Lock()
	defer s.hydrateMutex.Unlock()
	return s.hydrated
}

func (s *Session) jar() http.CookieJar {
	return s.http.GetClient().Jar
}

func (s *Session) ExportCookies() []StoredCookie {
	return cookiesFor(s.jar(), s.portal.BaseURL())
}

func (s *Session) HasPortalCookies() bool {
	return len(s.ExportCookies()) > 0
}

// ResetCookies replaces the jar with an empty one, used before a fresh login.
func (s *Session) ResetCookies() error {
	return s.portal.ResetJar(s.http)
}

func (s *Session) restoreCookies(cookies []StoredCookie) {
	httpCookies := make([]*http.Cookie, len(cookies))
	for i, c := range cookies {
		httpCookies[i] = c.ToHttp()
	}
	s.jar().SetCookies(s.portal.BaseURL(), httpCookies)
}

// Registry owns every Session of the process.
type Registry struct {
	portal portal.Client
	qry    db.Querier
	vault  vault.Vault
	tel    telemetry.API

	mutex    sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(client portal.Client, qry db.Querier, v vault.Vault, tel telemetry.API) *Registry {
	assert.NotNil(qry, "querier")
	assert.NotNil(tel, "telemetry")

	return &Registry{
		portal:   client,
		qry:      qry,
		vault:    v,
		tel:      telemetry.NewScopedAPI("session", tel),
		sessions: map[string]*Session{},
	}
}

func (r *Registry) getOrCreate(email string) (*Session, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s, ok := r.sessions[email]
	if ok {
		return s, nil
	}
	httpClient, err := r.portal.NewHttpClient(email)
	if err != nil {
		return nil, err
	}
	s = &Session{
		Email:  email,
		portal: r.portal,
		http:   httpClient,
	}
	r.sessions[email] = s
	return s, nil
}

// Get returns the Session of email, creating it on first use. The first Get
// restores the cookies persisted for the account, concurrent first calls wait
// for that restore instead of repeating it.
func (r *Registry) Get(ctx context.Context, email string) (*Session, error) {
	s, err := r.getOrCreate(email)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.hydrateMutex.Lock()
	defer s.hydrateMutex.Unlock()
	if !s.hydrated {
		r.hydrate(ctx, s)
		s.hydrated = true
	}
	return s, nil
}

// Peek returns the Session of email without creating or hydrating it.
func (r *Registry) Peek(email string) (*Session, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	s, ok := r.sessions[email]
	return s, ok
}

func (r *Registry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.sessions)
}

func (r *Registry) hydrate(ctx context.Context, s *Session) {
	account, err := r.qry.GetAccount(ctx, s.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return
	}
	if err != nil {
		r.tel.ReportBroken(report_registry_hydrate, fmt.Errorf("get account: %w", err), s.Email)
		return
	}
	if account.Cookies == "" {
		return
	}

	cookies, err := OpenCookies(r.vault, account.Cookies)
	if err != nil {
		r.tel.ReportWarning(report_registry_hydrate, fmt.Errorf("open cookies: %w", err), s.Email)
		return
	}
	if len(cookies) == 0 {
		return
	}
	s.restoreCookies(cookies)
	s.MarkAuthenticated()
	r.tel.ReportDebug("restored cookies", s.Email, len(cookies))
}

// SealCookies encrypts the current cookies of a session for storage.
func (r *Registry) SealCookies(s *Session) (string, error) {
	return SealCookies(r.vault, s.ExportCookies())
}

func (r *Registry) Portal() portal.Client {
	return r.portal
}
