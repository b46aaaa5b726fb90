package portal

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"parkpro-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const (
	classReservedEdit   = "day-reserved-edit"
	classReservedNoedit = "day-reserved-noedit"
	classFreeEdit       = "day-free-edit"
	classFullEdit       = "day-full-edit"
	classFreeNoedit     = "day-free-noedit"
)

type ReservedDay struct {
	Date  string `json:"date"`
	Day   int    `json:"day"`
	LotID string `json:"lot_id"`
	// Editable is false once the portal no longer allows cancelling the day.
	Editable bool `json:"editable"`
}

// Calendar is one month of the user's ticket as rendered by the portal.
type Calendar struct {
	Year  int `json:"year"`
	Month int `json:"month"`

	RealTicketID string `json:"real_ticket_id"`
	// Degraded is set when the page did not declare its ticket id and the
	// requested one was used instead.
	Degraded  bool   `json:"degraded"`
	CSRFToken string `json:"-"`

	Reserved    []ReservedDay `json:"reserved"`
	Free        []int         `json:"free"`
	Full        []int         `json:"full"`
	Locked      []int         `json:"locked"`
	ActivePlate string        `json:"active_plate"`
}

// ReservedOn looks up a reservation of the user by YYYY-MM-DD date.
func (c Calendar) ReservedOn(date string) (ReservedDay, bool) {
	for _, day := range c.Reserved {
		if day.Date == date {
			return day, true
		}
	}
	return ReservedDay{}, false
}

func (c Client) FetchCalendar(ctx context.Context, httpClient *resty.Client, ticketID string, year, month int) (Calendar, error) {
	fetchError := func(err error) error {
		return fmt.Errorf("portal: fetch calendar %d/%d: %w", month, year, err)
	}

	res, err := httpClient.R().
		SetContext(ctx).
		Get(c.CalendarPath(ticketID, year, month))
	if err != nil {
		c.tel.ReportWarning(report_client_fetch_calendar, err)
		return Calendar{}, fetchError(err)
	}
	if res.StatusCode() != http.StatusOK {
		err := fmt.Errorf("%w: %s", ErrUnexpectedStatus, res.Status())
		c.tel.ReportWarning(report_client_fetch_calendar, err)
		return Calendar{}, fetchError(err)
	}
	doc, err := parseDocument(res)
	if err != nil {
		c.tel.ReportBroken(report_client_fetch_calendar, fmt.Errorf("parse calendar: %w", err))
		return Calendar{}, fetchError(err)
	}
	if strings.HasPrefix(finalPath(res), c.LoginPath()) || hasLoginForm(doc) {
		return Calendar{}, fetchError(ErrSessionExpired)
	}

	calendar := c.parseCalendar(doc, ticketID)
	calendar.Year = year
	calendar.Month = month
	if calendar.CSRFToken == "" {
		calendar.CSRFToken = c.cookie(httpClient, "csrftoken")
	}
	if calendar.CSRFToken == "" {
		c.tel.ReportBroken(report_client_fetch_calendar, ErrNoCSRFToken)
		return Calendar{}, fetchError(ErrNoCSRFToken)
	}
	if calendar.Degraded {
		c.tel.ReportWarning(report_client_fetch_calendar, fmt.Errorf("ticket id missing from page, using %s", ticketID))
	}
	return calendar, nil
}

// parseCalendar extracts everything but the cookie fallback of the csrf token.
func (c Client) parseCalendar(doc *goquery.Document, ticketID string) Calendar {
	calendar := Calendar{
		Reserved: []ReservedDay{},
		Free:     []int{},
		Full:     []int{},
		Locked:   []int{},
	}

	realTicket, ok := htmlutil.ScriptMatch(doc, longTicketIDRegex)
	if ok {
		calendar.RealTicketID = realTicket
	} else {
		calendar.RealTicketID = ticketID
		calendar.Degraded = true
	}
	calendar.CSRFToken, _ = htmlutil.InputValue(doc, "csrfmiddlewaretoken")

	doc.Find("[data-date]").Each(func(_ int, s *goquery.Selection) {
		date := strings.TrimSpace(s.AttrOr("data-date", ""))
		parsed, err := time.Parse(DateLayout, date)
		if err != nil {
			c.tel.ReportWarning(report_client_fetch_calendar, fmt.Errorf("bad data-date %q: %w", date, err))
			return
		}
		day := parsed.Day()

		switch {
		case s.HasClass(classReservedEdit), s.HasClass(classReservedNoedit):
			editable := s.HasClass(classReservedEdit)
			calendar.Reserved = append(calendar.Reserved, ReservedDay{
				Date:     date,
				Day:      day,
				LotID:    lotID(s),
				Editable: editable,
			})
			if !editable {
				calendar.Locked = append(calendar.Locked, day)
			}
		case s.HasClass(classFreeEdit):
			calendar.Free = append(calendar.Free, day)
		case s.HasClass(classFullEdit):
			calendar.Full = append(calendar.Full, day)
		case s.HasClass(classFreeNoedit):
			calendar.Locked = append(calendar.Locked, day)
		}
	})

	plate, ok := htmlutil.InputValue(doc, "car_id")
	if !ok {
		plate = strings.TrimSpace(doc.Find("select[name=car_id] option[selected]").First().AttrOr("value", ""))
	}
	calendar.ActivePlate = plate

	return calendar
}

func lotID(day *goquery.Selection) string {
	if lot, ok := day.Attr("data-lot"); ok && strings.TrimSpace(lot) != "" {
		return strings.TrimSpace(lot)
	}
	return htmlutil.CleanText(day.Find(".lot").First())
}

// DaysIn returns the number of days of a month.
func DaysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 12, 0, 0, 0, time.UTC).Day()
}

// ParseDate splits a YYYY-MM-DD date into its year and month.
func ParseDate(date string) (year, month int, err error) {
	parsed, err := time.Parse(DateLayout, date)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return parsed.Year(), int(parsed.Month()), nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
