package service

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"parkpro-backend/internal/components/chrono"
	"parkpro-backend/internal/components/telemetry"
	"parkpro-backend/internal/notify"
	"parkpro-backend/internal/portal"
	"parkpro-backend/internal/portal/portaltest"
	"parkpro-backend/internal/reservation"
	"parkpro-backend/internal/rules"
	"parkpro-backend/lib/testutil"

	"github.com/stretchr/testify/require"
)

const (
	alice    = "alice@example.com"
	password = "hunter2"
	plate    = "BA123XY"
)

type harness struct {
	fake     *portaltest.Portal
	config   Config
	notifier *notify.Recorder
	svc      *Service
}

func setup(t *testing.T) harness {
	fake := portaltest.New()
	t.Cleanup(fake.Close)
	fake.AddAccount(alice, portaltest.Account{
		Password:     password,
		TicketID:     "5521",
		LongTicketID: "9005521",
	})

	h := harness{
		fake:     fake,
		notifier: &notify.Recorder{},
		config: Config{
			Secret: "service-test-secret",
			Portal: portal.Config{
				BaseUrl:           fake.URL(),
				RequestsPerSecond: 100,
			},
			Sniper: SniperConfig{IntervalSeconds: 1},
		},
	}
	sqldb := testutil.OpenDB(t)
	h.svc = h.open(t, sqldb)
	return h
}

func (h harness) open(t *testing.T, sqldb *sql.DB) *Service {
	t.Helper()
	svc, err := New(context.Background(), sqldb, h.config, Options{
		Telemetry: telemetry.NewTestAPI(t),
		Clock:     chrono.FixedTime{At: time.Date(2026, time.January, 19, 9, 0, 0, 0, time.UTC)},
		Notifier:  h.notifier,
	})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestRuleFallsBackToSniper(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	_, err := h.svc.Login(ctx, alice, password)
	require.NoError(t, err)

	h.fake.SetFull("2026-01-23", true)
	rule, outcomes, err := h.svc.SaveRule(ctx, rules.Rule{
		Email:  alice,
		Days:   []int{5},
		Months: []int{1},
		Plate:  plate,
		Name:   "fridays",
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	require.True(t, outcomes[0].Sniper)
	require.True(t, outcomes[1].Success)
	require.True(t, h.fake.IsReserved(alice, "2026-01-30"))

	snipers, err := h.svc.ActiveSnipers(ctx, alice)
	require.NoError(t, err)
	require.Len(t, snipers, 1)
	require.Equal(t, "2026-01-23", snipers[0].Date)
	require.True(t, snipers[0].Running)

	h.fake.SetFull("2026-01-23", false)
	require.Eventually(t, func() bool {
		return h.fake.IsReserved(alice, "2026-01-23")
	}, 10*time.Second, 50*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(h.notifier.Sent()) == 1
	}, 5*time.Second, 50*time.Millisecond)
	require.Zero(t, h.svc.RunningSnipers())

	snipers, err = h.svc.ActiveSnipers(ctx, alice)
	require.NoError(t, err)
	require.Empty(t, snipers)

	require.Equal(t, "2026-01-23", h.notifier.Sent()[0].Date)

	logs, err := h.svc.Logs(ctx, alice, 0)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	require.Contains(t, logs[0].Message, "2026-01-23")

	rulesList, err := h.svc.ListRules(ctx, alice)
	require.NoError(t, err)
	require.Len(t, rulesList, 1)
	require.Equal(t, rule.ID, rulesList[0].ID)
}

func TestSnipersSurviveRestart(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	_, err := h.svc.Login(ctx, alice, password)
	require.NoError(t, err)
	h.fake.SetFull("2026-01-23", true)

	started, err := h.svc.StartSniper(ctx, alice, "2026-01-23", "ba 123-xy")
	require.NoError(t, err)
	require.True(t, started)
	snipers, err := h.svc.ActiveSnipers(ctx, alice)
	require.NoError(t, err)
	require.Len(t, snipers, 1)
	require.Equal(t, plate, snipers[0].Plate)
	require.NoError(t, h.svc.Close())

	restarted := h.open(t, h.svc.sqldb)
	resumed, err := restarted.ResumeOnStartup(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, resumed)
	require.Equal(t, 1, restarted.RunningSnipers())

	stopped, err := restarted.StopSniper(ctx, alice, "2026-01-23")
	require.NoError(t, err)
	require.True(t, stopped)

	resumed, err = restarted.ResumeOnStartup(ctx)
	require.NoError(t, err)
	require.Zero(t, resumed)
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	_, err := h.svc.Login(ctx, alice, "")
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = h.svc.Calendar(ctx, alice, 2026, 13)
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = h.svc.StartSniper(ctx, alice, "2026-01-23", "")
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = h.svc.InstantReserve(ctx, alice, "2026-01-23", plate, portal.CommandAdd)
	require.ErrorIs(t, err, reservation.ErrUserNotFound)
	require.Zero(t, h.fake.Requests())
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New(context.Background(), testutil.OpenDB(t), Config{}, Options{Telemetry: telemetry.NewTestAPI(t)})
	require.Error(t, err)

	_, err = Open(context.Background(), Config{}, Options{})
	require.ErrorIs(t, err, ErrMissingSecret)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigName)
	err := os.WriteFile(path, []byte(strings.Join([]string{
		"{",
		`  secret: "from-file",`,
		`  database: { file: "/tmp/parkpro-test.db" },`,
		`  sniper: { interval_seconds: 9 },`,
		`  rules: { timezone: "Europe/Bratislava" },`,
		"}",
	}, "\n")), 0600)
	require.NoError(t, err)
	t.Setenv(EnvConfig, path)

	t.Setenv(EnvSecret, "")
	config, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "from-file", config.Secret)
	require.Equal(t, 9*time.Second, config.Sniper.Interval())
	require.Equal(t, rules.DefaultHorizon, config.Rules.Horizon())
	require.Equal(t, DefaultRulesCron, config.Rules.CronSpec())

	t.Setenv(EnvSecret, "from-env")
	config, err = LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "from-env", config.Secret)
}

func TestLoadConfigWithoutSecret(t *testing.T) {
	t.Setenv(EnvConfig, filepath.Join(t.TempDir(), ConfigName))
	t.Setenv(EnvSecret, "")

	_, err := LoadConfig()
	require.ErrorIs(t, err, ErrMissingSecret)
}
