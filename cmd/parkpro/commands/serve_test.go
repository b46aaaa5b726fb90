package commands

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"parkpro-backend/internal/components/chrono"
	"parkpro-backend/internal/components/telemetry"
	"parkpro-backend/internal/notify"
	"parkpro-backend/internal/portal"
	"parkpro-backend/internal/portal/portaltest"
	"parkpro-backend/internal/service"
	"parkpro-backend/lib/testutil"

	"github.com/stretchr/testify/require"
)

const (
	alice    = "alice@example.com"
	password = "hunter2"
	plate    = "BA123XY"
)

type lockedBuffer struct {
	mutex sync.Mutex
	buf   bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buf.String()
}

func captureLogs(t *testing.T) *lockedBuffer {
	out := &lockedBuffer{}
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(out, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })
	return out
}

func openService(t *testing.T, sqldb *sql.DB, fake *portaltest.Portal) *service.Service {
	t.Helper()
	config := service.Config{
		Secret: "serve-test-secret",
		Portal: portal.Config{
			BaseUrl:           fake.URL(),
			RequestsPerSecond: 100,
		},
		Sniper: service.SniperConfig{IntervalSeconds: 3600},
	}
	svc, err := service.New(context.Background(), sqldb, config, service.Options{
		Telemetry: telemetry.NewTestAPI(t),
		Clock:     chrono.FixedTime{At: time.Date(2026, time.January, 19, 9, 0, 0, 0, time.UTC)},
		Notifier:  &notify.Recorder{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

// runAdopt runs adoptSnipers until the returned stop func is called.
func runAdopt(svc *service.Service) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		adoptSnipers(ctx, svc, 5*time.Millisecond)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestAdoptSnipersLogsAdopted(t *testing.T) {
	ctx := context.Background()
	fake := portaltest.New()
	t.Cleanup(fake.Close)
	fake.AddAccount(alice, portaltest.Account{Password: password, TicketID: "5521", LongTicketID: "9005521"})
	fake.SetFull("2026-01-23", true)
	sqldb := testutil.OpenDB(t)

	// a sniper started by another process, for example the cli
	other := openService(t, sqldb, fake)
	_, err := other.Login(ctx, alice, password)
	require.NoError(t, err)
	started, err := other.StartSniper(ctx, alice, "2026-01-23", plate)
	require.NoError(t, err)
	require.True(t, started)

	svc := openService(t, sqldb, fake)
	logs := captureLogs(t)
	stop := runAdopt(svc)
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "adopted snipers")
	}, 5*time.Second, 5*time.Millisecond)
	stop()

	require.Equal(t, 1, svc.RunningSnipers())
	require.Contains(t, logs.String(), "count=1")
	require.Equal(t, 1, strings.Count(logs.String(), "adopted snipers"))
}

func TestAdoptSnipersLogsFailure(t *testing.T) {
	fake := portaltest.New()
	t.Cleanup(fake.Close)
	svc := openService(t, testutil.OpenDB(t), fake)
	require.NoError(t, svc.Close())

	logs := captureLogs(t)
	stop := runAdopt(svc)
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "adopting snipers failed")
	}, 5*time.Second, 5*time.Millisecond)
	stop()

	require.Contains(t, logs.String(), "sniper registry closed")
}
