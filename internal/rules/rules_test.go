package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"parkpro-backend/internal/components/chrono"
	"parkpro-backend/internal/components/telemetry"
	"parkpro-backend/internal/db"
	"parkpro-backend/internal/portal/portaltest"
	"parkpro-backend/internal/reservation"
	"parkpro-backend/internal/sniper"
	"parkpro-backend/lib/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const (
	alice = "alice@example.com"
	plate = "BA123XY"

	monday = 1
	friday = 5
)

var today = time.Date(2026, time.January, 19, 9, 0, 0, 0, time.UTC)

type fakeReserver struct {
	mutex  sync.Mutex
	calls  []string
	result func(date string) (reservation.Result, error)
}

func (f *fakeReserver) InstantReserve(_ context.Context, _, date, _, _ string) (reservation.Result, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.calls = append(f.calls, date)
	if f.result == nil {
		return reservation.Result{Message: portaltest.FullMessage}, nil
	}
	return f.result(date)
}

func (f *fakeReserver) Calls() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]string(nil), f.calls...)
}

// sniperEngine never gets called since the interval is longer than any test.
type sniperEngine struct{}

func (sniperEngine) EnsureLoggedIn(context.Context, string) error { return nil }

func (sniperEngine) Attempt(context.Context, string, string, string, string) (reservation.Result, error) {
	return reservation.Result{}, errors.New("unexpected attempt")
}

type harness struct {
	qry      *db.Queries
	reserver *fakeReserver
	snipers  *sniper.Registry
	engine   *Engine
}

func setup(t *testing.T) harness {
	tel := telemetry.NewTestAPI(t)
	h := harness{
		qry:      testutil.OpenQueries(t),
		reserver: &fakeReserver{},
	}
	h.snipers = sniper.NewRegistry(context.Background(), h.qry, sniperEngine{}, tel, sniper.Options{
		Interval: time.Hour,
	})
	t.Cleanup(h.snipers.Close)
	h.engine = NewEngine(h.qry, h.reserver, h.snipers, chrono.FixedTime{At: today}, tel, Options{})
	return h
}

func (h harness) activeRows(t *testing.T) []string {
	rows, err := h.qry.ListSnipersByStatus(context.Background(), db.SniperActive)
	require.NoError(t, err)
	out := []string{}
	for _, row := range rows {
		out = append(out, row.Date)
	}
	return out
}

func TestExpandStableAcrossOffsets(t *testing.T) {
	expected := []string{"2026-01-19", "2026-01-26"}

	for _, offset := range []int{14, 2, 0, -5, -12} {
		location := time.FixedZone(fmt.Sprintf("UTC%+d", offset), offset*60*60)
		for _, clock := range [][2]int{{0, 30}, {12, 0}, {23, 30}} {
			now := time.Date(2026, time.January, 19, clock[0], clock[1], 0, 0, location)
			diff := cmp.Diff(expected, Expand(now, DefaultHorizon, []int{monday}, []int{1}))
			require.Empty(t, diff, "offset %d at %02d:%02d", offset, clock[0], clock[1])
		}
	}
}

func TestExpandHorizon(t *testing.T) {
	dates := Expand(today, DefaultHorizon, []int{monday}, []int{1, 2})
	require.Empty(t, cmp.Diff([]string{"2026-01-19", "2026-01-26", "2026-02-02"}, dates))

	dates = Expand(today, 1, []int{0, 1, 2, 3, 4, 5, 6}, []int{1})
	require.Empty(t, cmp.Diff([]string{"2026-01-19"}, dates))

	require.Empty(t, Expand(today, DefaultHorizon, []int{monday}, []int{3}))
	require.Empty(t, Expand(today, DefaultHorizon, nil, []int{1}))
}

func TestCovers(t *testing.T) {
	rule := Rule{Days: []int{friday}, Months: []int{1}}
	require.True(t, Covers(rule, "2026-01-23"))
	require.False(t, Covers(rule, "2026-01-22"))
	require.False(t, Covers(rule, "2026-02-06"))
	require.False(t, Covers(rule, "garbage"))
}

func TestValidate(t *testing.T) {
	rule, err := Validate(Rule{Email: alice, Plate: plate, Days: []int{5, 1, 5}, Months: []int{2, 1}})
	require.NoError(t, err)
	require.Equal(t, []int{1, 5}, rule.Days)
	require.Equal(t, []int{1, 2}, rule.Months)

	for _, invalid := range []Rule{
		{Plate: plate},
		{Email: alice},
		{Email: alice, Plate: plate, Days: []int{7}},
		{Email: alice, Plate: plate, Months: []int{0}},
		{Email: alice, Plate: plate, Months: []int{13}},
	} {
		_, err := Validate(invalid)
		require.ErrorIs(t, err, ErrInvalidRule)
	}
}

func TestFullDateSpawnsOneSniper(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	h.reserver.result = func(date string) (reservation.Result, error) {
		if date == "2026-01-23" {
			return reservation.Result{Message: portaltest.FullMessage}, nil
		}
		return reservation.Result{Success: true, LotID: "101", Message: "reserved"}, nil
	}

	rule, outcomes, err := h.engine.SaveRule(ctx, Rule{
		Email:  alice,
		Days:   []int{friday},
		Months: []int{1},
		Plate:  plate,
		Name:   "fridays",
	})
	require.NoError(t, err)
	require.NotZero(t, rule.ID)
	require.Equal(t, []Outcome{
		{Date: "2026-01-23", Message: portaltest.FullMessage, Sniper: true},
		{Date: "2026-01-30", Success: true, LotID: "101", Message: "reserved"},
	}, outcomes)

	require.Equal(t, []string{"2026-01-23"}, h.activeRows(t))
	require.Equal(t, []string{"2026-01-23"}, h.snipers.Keys(alice))

	_, err = h.engine.ExecuteRule(ctx, rule)
	require.NoError(t, err)
	require.Equal(t, []string{"2026-01-23"}, h.activeRows(t))
	require.Equal(t, 1, h.snipers.Count())
}

func TestTransportErrorSpawnsSniper(t *testing.T) {
	h := setup(t)
	h.reserver.result = func(string) (reservation.Result, error) {
		return reservation.Result{}, errors.New("connection reset")
	}

	outcomes, err := h.engine.ExecuteRule(context.Background(), Rule{
		Email:  alice,
		Days:   []int{monday},
		Months: []int{1},
		Plate:  plate,
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	for _, outcome := range outcomes {
		require.True(t, outcome.Sniper)
		require.Equal(t, "connection reset", outcome.Message)
	}
	require.Equal(t, []string{"2026-01-19", "2026-01-26"}, h.snipers.Keys(alice))
}

func TestCredentialErrorAborts(t *testing.T) {
	h := setup(t)
	h.reserver.result = func(string) (reservation.Result, error) {
		return reservation.Result{}, reservation.ErrNoStoredCredentials
	}

	_, err := h.engine.ExecuteRule(context.Background(), Rule{
		Email:  alice,
		Days:   []int{monday},
		Months: []int{1},
		Plate:  plate,
	})
	require.ErrorIs(t, err, reservation.ErrNoStoredCredentials)
	require.Len(t, h.reserver.Calls(), 1)
	require.Zero(t, h.snipers.Count())
	require.Empty(t, h.activeRows(t))
}

func TestDeleteStopsOrphanedSnipers(t *testing.T) {
	ctx := context.Background()

	t.Run("uncovered", func(t *testing.T) {
		h := setup(t)
		_, _, err := h.engine.SaveRule(ctx, Rule{Email: alice, Days: []int{monday}, Months: []int{1}, Plate: plate, Name: "R1"})
		require.NoError(t, err)
		r2, _, err := h.engine.SaveRule(ctx, Rule{Email: alice, Days: []int{friday}, Months: []int{1}, Plate: plate, Name: "R2"})
		require.NoError(t, err)
		require.Equal(t, []string{"2026-01-19", "2026-01-23", "2026-01-26", "2026-01-30"}, h.snipers.Keys(alice))

		stopped, err := h.engine.DeleteRule(ctx, alice, r2.ID)
		require.NoError(t, err)
		require.Equal(t, []string{"2026-01-23", "2026-01-30"}, stopped)
		require.Equal(t, []string{"2026-01-19", "2026-01-26"}, h.snipers.Keys(alice))

		row, err := h.qry.GetSniper(ctx, db.GetSniperParams{Email: alice, Date: "2026-01-23"})
		require.NoError(t, err)
		require.Equal(t, db.SniperStopped, row.Status)
	})

	t.Run("still covered", func(t *testing.T) {
		h := setup(t)
		_, _, err := h.engine.SaveRule(ctx, Rule{Email: alice, Days: []int{monday, friday}, Months: []int{1}, Plate: plate, Name: "R1"})
		require.NoError(t, err)
		r2, _, err := h.engine.SaveRule(ctx, Rule{Email: alice, Days: []int{friday}, Months: []int{1}, Plate: plate, Name: "R2"})
		require.NoError(t, err)

		stopped, err := h.engine.DeleteRule(ctx, alice, r2.ID)
		require.NoError(t, err)
		require.Empty(t, stopped)
		require.Equal(t, []string{"2026-01-19", "2026-01-23", "2026-01-26", "2026-01-30"}, h.snipers.Keys(alice))
	})
}

func TestReconcileStopsPersistedOrphans(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	// a sniper started by another process
	err := h.qry.UpsertSniper(ctx, db.UpsertSniperParams{Email: alice, Date: "2026-01-23", Plate: plate})
	require.NoError(t, err)

	stopped, err := h.engine.Reconcile(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, []string{"2026-01-23"}, stopped)
	require.Empty(t, h.activeRows(t))
}

func TestEditReconciles(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	rule, _, err := h.engine.SaveRule(ctx, Rule{Email: alice, Days: []int{friday}, Months: []int{1}, Plate: plate})
	require.NoError(t, err)
	require.Equal(t, []string{"2026-01-23", "2026-01-30"}, h.snipers.Keys(alice))

	rule.Days = []int{monday}
	_, _, err = h.engine.SaveRule(ctx, rule)
	require.NoError(t, err)
	require.Equal(t, []string{"2026-01-19", "2026-01-26"}, h.snipers.Keys(alice))

	rules, err := h.engine.ListRules(ctx, alice)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, []int{monday}, rules[0].Days)
}

func TestMissingRule(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	_, err := h.engine.DeleteRule(ctx, alice, 42)
	require.ErrorIs(t, err, ErrRuleNotFound)

	_, _, err = h.engine.SaveRule(ctx, Rule{ID: 42, Email: alice, Plate: plate})
	require.ErrorIs(t, err, ErrRuleNotFound)
}

func TestRunAll(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	const bob = "bob@example.com"

	_, err := h.qry.CreateBulkRule(ctx, db.CreateBulkRuleParams{Email: alice, Days: "[1]", Months: "[1]", Plate: plate})
	require.NoError(t, err)
	_, err = h.qry.CreateBulkRule(ctx, db.CreateBulkRuleParams{Email: bob, Days: "[5]", Months: "[1]", Plate: plate})
	require.NoError(t, err)

	h.reserver.result = func(date string) (reservation.Result, error) {
		if date == "2026-01-19" {
			return reservation.Result{}, reservation.ErrSessionExpired
		}
		return reservation.Result{Success: true, Message: "reserved"}, nil
	}

	failed, err := h.engine.RunAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, failed)
	require.Equal(t, []string{"2026-01-19", "2026-01-23", "2026-01-30"}, h.reserver.Calls())
	require.Zero(t, h.snipers.Count())
}

func TestSaveRuleKeepsManualSnipers(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	started, err := h.snipers.Start(ctx, alice, "2026-01-21", plate)
	require.NoError(t, err)
	require.True(t, started)

	rule, _, err := h.engine.SaveRule(ctx, Rule{Email: alice, Days: []int{friday}, Months: []int{1}, Plate: plate})
	require.NoError(t, err)
	require.Equal(t, []string{"2026-01-21", "2026-01-23", "2026-01-30"}, h.snipers.Keys(alice))

	// The edit only prunes what the previous version covered.
	rule.Days = []int{monday}
	_, _, err = h.engine.SaveRule(ctx, rule)
	require.NoError(t, err)
	require.Equal(t, []string{"2026-01-19", "2026-01-21", "2026-01-26"}, h.snipers.Keys(alice))
	require.Equal(t, []string{"2026-01-19", "2026-01-21", "2026-01-26"}, h.activeRows(t))
}

func TestRunAllSkipsStoppedSnipers(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	_, _, err := h.engine.SaveRule(ctx, Rule{Email: alice, Days: []int{friday}, Months: []int{1}, Plate: plate})
	require.NoError(t, err)
	require.Equal(t, []string{"2026-01-23", "2026-01-30"}, h.snipers.Keys(alice))

	stopped, err := h.snipers.Stop(ctx, alice, "2026-01-23")
	require.NoError(t, err)
	require.True(t, stopped)

	failed, err := h.engine.RunAll(ctx)
	require.NoError(t, err)
	require.Zero(t, failed)

	require.Equal(t, []string{"2026-01-23", "2026-01-30", "2026-01-30"}, h.reserver.Calls())
	require.Equal(t, []string{"2026-01-30"}, h.snipers.Keys(alice))
	require.Equal(t, []string{"2026-01-30"}, h.activeRows(t))

	row, err := h.qry.GetSniper(ctx, db.GetSniperParams{Email: alice, Date: "2026-01-23"})
	require.NoError(t, err)
	require.Equal(t, db.SniperStopped, row.Status)
}
