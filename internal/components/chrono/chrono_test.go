package chrono

import (
	"testing"
	"time"

	"parkpro-backend/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

func TestNewStandardTime(t *testing.T) {
	clock, err := NewStandardTime("")
	require.NoError(t, err)
	require.Equal(t, DefaultTimezone, clock.Location().String())
	require.Equal(t, clock.Location(), clock.Now().Location())

	_, err = NewStandardTime("Mars/Olympus_Mons")
	require.Error(t, err)
}

func TestFixedTime(t *testing.T) {
	at := time.Date(2026, time.January, 19, 23, 30, 0, 0, time.FixedZone("UTC-12", -12*60*60))
	clock := FixedTime{At: at}
	require.Equal(t, at, clock.Now())
	require.Equal(t, "UTC-12", clock.Location().String())
}

func TestCronRejectsBadSpec(t *testing.T) {
	clock, err := NewStandardTime("UTC")
	require.NoError(t, err)
	cron := NewStandardCron(clock, telemetry.NewTestAPI(t))
	defer cron.Stop()

	require.Error(t, cron.Cron("not a spec", func() {}))
	require.NoError(t, cron.Cron("5 0 * * *", func() {}))
}
