package reservation

import (
	"context"
	"testing"
	"time"

	"parkpro-backend/internal/components/telemetry"
	"parkpro-backend/internal/db"
	"parkpro-backend/internal/portal"
	"parkpro-backend/internal/portal/portaltest"
	"parkpro-backend/internal/session"
	"parkpro-backend/internal/vault"
	"parkpro-backend/lib/testutil"

	"github.com/stretchr/testify/require"
)

const (
	alice    = "alice@example.com"
	password = "hunter2"
	plate    = "BA123XY"
)

type harness struct {
	fake   *portaltest.Portal
	qry    *db.Queries
	vault  vault.Vault
	tel    *telemetry.TestAPI
	engine *Engine
}

func newEngine(t *testing.T, h harness) *Engine {
	client, err := portal.NewClient(portal.Config{
		BaseUrl:           h.fake.URL(),
		RequestsPerSecond: 100,
	}, h.tel, nil)
	require.NoError(t, err)
	sessions := session.NewRegistry(client, h.qry, h.vault, h.tel)
	return NewEngine(h.qry, h.vault, sessions, h.tel, Options{CalendarTTL: time.Minute})
}

func setup(t *testing.T) harness {
	fake := portaltest.New()
	t.Cleanup(fake.Close)
	fake.AddAccount(alice, portaltest.Account{
		Password:     password,
		TicketID:     "5521",
		LongTicketID: "9005521",
	})

	v, err := vault.New("reservation-test-secret")
	require.NoError(t, err)

	h := harness{
		fake:  fake,
		qry:   testutil.OpenQueries(t),
		vault: v,
		tel:   telemetry.NewTestAPI(t),
	}
	h.engine = newEngine(t, h)
	return h
}

func (h harness) login(t *testing.T) {
	_, err := h.engine.Login(context.Background(), alice, password)
	require.NoError(t, err)
}

func TestNoStoredCredentials(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	err := h.engine.EnsureLoggedIn(ctx, alice)
	require.ErrorIs(t, err, ErrNoStoredCredentials)

	err = h.qry.UpsertAccountLogin(ctx, db.UpsertAccountLoginParams{Email: alice})
	require.NoError(t, err)
	err = h.engine.EnsureLoggedIn(ctx, alice)
	require.ErrorIs(t, err, ErrNoStoredCredentials)
	require.True(t, IsCredentialError(err))

	_, err = h.engine.InstantReserve(ctx, "nobody@example.com", "2026-01-20", plate, portal.CommandAdd)
	require.ErrorIs(t, err, ErrUserNotFound)

	require.Equal(t, 0, h.fake.Requests())
}

func TestCredentialsUnusable(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	err := h.qry.UpsertAccountLogin(ctx, db.UpsertAccountLoginParams{
		Email:    alice,
		Password: "not:a-token",
	})
	require.NoError(t, err)

	err = h.engine.EnsureLoggedIn(ctx, alice)
	require.ErrorIs(t, err, ErrCredentialsUnusable)
	require.True(t, IsCredentialError(err))

	_, err = h.engine.InstantReserve(ctx, alice, "2026-01-20", plate, portal.CommandAdd)
	require.ErrorIs(t, err, ErrSessionExpired)
	require.ErrorIs(t, err, ErrCredentialsUnusable)
	require.Equal(t, 0, h.fake.Requests())
}

func TestLoginPersistsAccount(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	identity, err := h.engine.Login(ctx, alice, password)
	require.NoError(t, err)
	require.Equal(t, Identity{
		Email:        alice,
		TicketID:     "5521",
		LongTicketID: "9005521",
		ArticleID:    portaltest.ArticleID,
	}, identity)

	account, err := h.qry.GetAccount(ctx, alice)
	require.NoError(t, err)
	stored, err := h.vault.DecryptString(account.Password)
	require.NoError(t, err)
	require.Equal(t, password, stored)
	require.NotEmpty(t, account.LastCsrf)

	cookies, err := session.OpenCookies(h.vault, account.Cookies)
	require.NoError(t, err)
	names := []string{}
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	require.Contains(t, names, "sessionid")

	// a new process restores the cookies and does not log in again
	logins := h.fake.RequestsTo("/login/")
	restarted := newEngine(t, h)
	result, err := restarted.InstantReserve(ctx, alice, "2026-02-03", plate, portal.CommandAdd)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, logins, h.fake.RequestsTo("/login/"))
}

func TestLoginWrongPassword(t *testing.T) {
	h := setup(t)
	_, err := h.engine.Login(context.Background(), alice, "wrong")
	require.ErrorIs(t, err, portal.ErrLoginRejected)

	_, err = h.qry.GetAccount(context.Background(), alice)
	require.Error(t, err)
}

func TestAlreadyReservedSkipsSubmit(t *testing.T) {
	h := setup(t)
	h.login(t)
	h.fake.Reserve(alice, "2026-01-20", plate)

	result, err := h.engine.InstantReserve(context.Background(), alice, "2026-01-20", plate, portal.CommandAdd)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.True(t, result.AlreadyReserved)
	require.NotEmpty(t, result.LotID)
	require.Equal(t, 0, h.fake.Commands(portal.CommandAdd))
}

func TestInstantReserveFullThenFree(t *testing.T) {
	h := setup(t)
	h.login(t)
	ctx := context.Background()

	h.fake.SetFull("2026-01-21", true)
	result, err := h.engine.InstantReserve(ctx, alice, "2026-01-21", plate, portal.CommandAdd)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, portaltest.FullMessage, result.Message)
	require.NotEmpty(t, result.Raw)

	h.fake.SetFull("2026-01-21", false)
	result, err = h.engine.InstantReserve(ctx, alice, "2026-01-21", plate, portal.CommandAdd)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotEmpty(t, result.LotID)
	require.True(t, h.fake.IsReserved(alice, "2026-01-21"))

	result, err = h.engine.InstantReserve(ctx, alice, "2026-01-21", plate, portal.CommandDelete)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "deleted", result.Message)
	require.False(t, h.fake.IsReserved(alice, "2026-01-21"))
}

func TestInstantReserveValidation(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	_, err := h.engine.InstantReserve(ctx, alice, "2026-01-21", plate, "PUT")
	require.ErrorIs(t, err, ErrInvalidCommand)
	_, err = h.engine.InstantReserve(ctx, alice, "21.01.2026", plate, portal.CommandAdd)
	require.Error(t, err)
	require.Equal(t, 0, h.fake.Requests())
}

func TestExpiredSessionLogsInAgain(t *testing.T) {
	h := setup(t)
	h.login(t)
	ctx := context.Background()
	logins := h.fake.RequestsTo("/login/")

	h.fake.ExpireSessions()
	result, err := h.engine.InstantReserve(ctx, alice, "2026-01-22", plate, portal.CommandAdd)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.True(t, h.fake.IsReserved(alice, "2026-01-22"))
	require.Greater(t, h.fake.RequestsTo("/login/"), logins)

	h.fake.ExpireSessions()
	calendar, err := h.engine.Calendar(ctx, alice, 2026, 2)
	require.NoError(t, err)
	require.Equal(t, 2, calendar.Month)

	h.fake.ExpireSessions()
	h.fake.SetFull("2026-03-04", true)
	days, err := h.engine.Refresh(ctx, alice, 2026, 3)
	require.NoError(t, err)
	require.Equal(t, []int{4}, days)

	account, err := h.qry.GetAccount(ctx, alice)
	require.NoError(t, err)
	h.fake.ExpireSessions()
	h.fake.SetFull("2026-01-23", true)
	result, err = h.engine.Attempt(ctx, alice, "2026-01-23", plate, account.LastCsrf)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, portaltest.FullMessage, result.Message)
}

func TestExpiredSessionWithChangedPassword(t *testing.T) {
	h := setup(t)
	h.login(t)

	h.fake.ExpireSessions()
	h.fake.AddAccount(alice, portaltest.Account{
		Password:     "changed",
		TicketID:     "5521",
		LongTicketID: "9005521",
	})
	_, err := h.engine.InstantReserve(context.Background(), alice, "2026-01-22", plate, portal.CommandAdd)
	require.ErrorIs(t, err, ErrSessionExpired)
	require.True(t, IsCredentialError(err))
	require.False(t, h.fake.IsReserved(alice, "2026-01-22"))
}

func TestAttempt(t *testing.T) {
	h := setup(t)
	h.login(t)
	ctx := context.Background()

	account, err := h.qry.GetAccount(ctx, alice)
	require.NoError(t, err)

	h.fake.SetFull("2026-01-23", true)
	result, err := h.engine.Attempt(ctx, alice, "2026-01-23", plate, account.LastCsrf)
	require.NoError(t, err)
	require.False(t, result.Success)

	h.fake.SetFull("2026-01-23", false)
	result, err = h.engine.Attempt(ctx, alice, "2026-01-23", plate, account.LastCsrf)
	require.NoError(t, err)
	require.True(t, result.Success)

	// reserved by the previous attempt, the portal reports it as its own
	result, err = h.engine.Attempt(ctx, alice, "2026-01-23", plate, account.LastCsrf)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.True(t, result.AlreadyReserved)
}

func TestCalendarCache(t *testing.T) {
	h := setup(t)
	h.login(t)
	ctx := context.Background()
	path := "/en/reserv_single/sk_ba_panoramacity2/5521/2026/1/"

	h.fake.SetFull("2026-01-05", true)
	calendar, err := h.engine.Calendar(ctx, alice, 2026, 1)
	require.NoError(t, err)
	require.Contains(t, calendar.Full, 5)
	require.Equal(t, "9005521", calendar.RealTicketID)
	require.Equal(t, 1, h.fake.RequestsTo(path))

	_, err = h.engine.Calendar(ctx, alice, 2026, 1)
	require.NoError(t, err)
	require.Equal(t, 1, h.fake.RequestsTo(path))

	_, err = h.engine.InstantReserve(ctx, alice, "2026-01-06", plate, portal.CommandAdd)
	require.NoError(t, err)
	fetches := h.fake.RequestsTo(path)

	calendar, err = h.engine.Calendar(ctx, alice, 2026, 1)
	require.NoError(t, err)
	require.Equal(t, fetches+1, h.fake.RequestsTo(path))
	_, ok := calendar.ReservedOn("2026-01-06")
	require.True(t, ok)
}

func TestRefresh(t *testing.T) {
	h := setup(t)
	h.login(t)

	h.fake.SetFull("2026-04-02", true)
	h.fake.SetFull("2026-04-09", true)
	h.fake.SetFull("2026-05-01", true)

	days, err := h.engine.Refresh(context.Background(), alice, 2026, 4)
	require.NoError(t, err)
	require.Equal(t, []int{2, 9}, days)
}
