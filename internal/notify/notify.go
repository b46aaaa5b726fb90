package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"

	"github.com/jordan-wright/email"
)

// Reserved describes a reservation a sniper obtained in the background.
type Reserved struct {
	Email string
	Date  string
	Plate string
	LotID string
}

// Notifier tells a user that a sniper succeeded.
type Notifier interface {
	Reserved(ctx context.Context, r Reserved) error
}

type Noop struct{}

func (Noop) Reserved(context.Context, Reserved) error {
	return nil
}

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

func (c SmtpConfig) Enabled() bool {
	return c.Server != "" && c.EmailAddress != ""
}

type Smtp struct {
	config SmtpConfig
}

func NewSmtp(config SmtpConfig) Smtp {
	if config.Port == 0 {
		config.Port = 587
	}
	return Smtp{config: config}
}

// New returns an Smtp notifier if smtp is configured, otherwise Noop.
func New(config SmtpConfig) Notifier {
	if !config.Enabled() {
		return Noop{}
	}
	return NewSmtp(config)
}

func (s Smtp) compose(r Reserved) *email.Email {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("ParkPro <%s>", s.config.EmailAddress)
	mail.To = []string{r.Email}
	mail.Subject = fmt.Sprintf("Parking reserved for %s", r.Date)

	lot := r.LotID
	if lot == "" {
		lot = "(not reported)"
	}
	mail.Text = []byte(fmt.Sprintf(`A parking spot became free and was reserved for you.

Date:  %s
Plate: %s
Lot:   %s

The sniper for this date has stopped.`, r.Date, r.Plate, lot))
	return mail
}

func (s Smtp) Reserved(ctx context.Context, r Reserved) error {
	mail := s.compose(r)
	addr := fmt.Sprintf("%s:%d", s.config.Server, s.config.Port)

	err := mail.Send(addr, smtp.PlainAuth("", s.config.EmailAddress, s.config.Password, s.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		return fmt.Errorf("send reservation mail to %s: %w", r.Email, err)
	}
	return nil
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mutex sync.Mutex
	sent  []Reserved
}

func (r *Recorder) Reserved(_ context.Context, reserved Reserved) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.sent = append(r.sent, reserved)
	return nil
}

func (r *Recorder) Sent() []Reserved {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]Reserved(nil), r.sent...)
}
