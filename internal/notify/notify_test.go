package notify

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPicksImplementation(t *testing.T) {
	require.IsType(t, Noop{}, New(SmtpConfig{}))
	require.IsType(t, Smtp{}, New(SmtpConfig{
		Server:       "smtp.example.com",
		EmailAddress: "parkpro@example.com",
	}))
}

func TestCompose(t *testing.T) {
	s := NewSmtp(SmtpConfig{
		Server:       "smtp.example.com",
		EmailAddress: "parkpro@example.com",
	})
	require.Equal(t, 587, s.config.Port)

	mail := s.compose(Reserved{
		Email: "alice@example.com",
		Date:  "2026-01-20",
		Plate: "BA123XY",
		LotID: "B-12",
	})
	require.Equal(t, "ParkPro <parkpro@example.com>", mail.From)
	require.Equal(t, []string{"alice@example.com"}, mail.To)
	require.Equal(t, "Parking reserved for 2026-01-20", mail.Subject)
	require.True(t, strings.Contains(string(mail.Text), "Plate: BA123XY"))
	require.True(t, strings.Contains(string(mail.Text), "Lot:   B-12"))
}

func TestRecorder(t *testing.T) {
	var r Recorder
	require.NoError(t, r.Reserved(context.Background(), Reserved{Email: "a", Date: "2026-01-20"}))
	require.Len(t, r.Sent(), 1)
	require.NoError(t, Noop{}.Reserved(context.Background(), Reserved{}))
}
