// Package portal is the only place that speaks to the reservation portal, every
// request it sends and every scrape of the returned html lives here.
package portal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	DefaultBaseUrl    = "https://clients.villapro.eu"
	DefaultGarageSlug = "sk_ba_panoramacity2"
	// DefaultArticleID is used when the landing page does not declare
	// `var article_id`.
	DefaultArticleID = "273"

	DateLayout = "2006-01-02"
)

const (
	CommandAdd     = "ADD"
	CommandDelete  = "DEL"
	CommandRefresh = "REFRESH"
)

var (
	ErrNoCSRFToken      = errors.New("portal: no csrf token on page")
	ErrLoginRejected    = errors.New("portal: login rejected")
	ErrNoTicketID       = errors.New("portal: could not find ticket id")
	ErrSessionExpired   = errors.New("portal: session expired")
	ErrUnexpectedStatus = errors.New("portal: unexpected http status")
)

type Config struct {
	BaseUrl           string  `json:"base_url"`
	GarageSlug        string  `json:"garage_slug"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

func (c Config) withDefaults() Config {
	if c.BaseUrl == "" {
		c.BaseUrl = DefaultBaseUrl
	}
	c.BaseUrl = strings.TrimRight(c.BaseUrl, "/")
	if c.GarageSlug == "" {
		c.GarageSlug = DefaultGarageSlug
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 2
	}
	return c
}

func (c Client) LoginPath() string {
	return "/login/"
}

// ReservePath is the landing page of the garage, it redirects to the
// calendar of the logged in user's ticket.
func (c Client) ReservePath() string {
	return fmt.Sprintf("/en/reserv_single/%s/", c.config.GarageSlug)
}

func (c Client) CalendarPath(ticketID string, year, month int) string {
	return fmt.Sprintf("/en/reserv_single/%s/%s/%d/%d/", c.config.GarageSlug, ticketID, year, month)
}

func (c Client) CommandPath() string {
	return fmt.Sprintf("/en/reserv_single/misc/%s/", c.config.GarageSlug)
}

func (c Client) BaseURL() *url.URL {
	copied := *c.baseUrl
	return &copied
}

// ReserveURL is the absolute landing url, used as the Referer of commands.
func (c Client) ReserveURL() string {
	return c.config.BaseUrl + c.ReservePath()
}

func (c Client) CalendarURL(ticketID string, year, month int) string {
	return c.config.BaseUrl + c.CalendarPath(ticketID, year, month)
}

var alreadyReservedPhrases = []string{
	"již bylo uživatelem rezervováno",
	"already reserved",
}

// IsAlreadyReserved reports whether a command error message says the date is
// already reserved by the same user, which counts as a successful reservation.
func IsAlreadyReserved(message string) bool {
	message = strings.ToLower(message)
	for _, phrase := range alreadyReservedPhrases {
		if strings.Contains(message, phrase) {
			return true
		}
	}
	return false
}
