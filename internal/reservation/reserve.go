package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"parkpro-backend/internal/db"
	"parkpro-backend/internal/portal"
	"parkpro-backend/internal/session"
)

const (
	report_engine_reserve = "engine.reserve"
)

// Result is the normalized outcome of a reservation command, Raw is the
// portal's json answer when one was received.
type Result struct {
	Success         bool            `json:"success"`
	LotID           string          `json:"lot_id,omitempty"`
	Message         string          `json:"message,omitempty"`
	AlreadyReserved bool            `json:"already_reserved,omitempty"`
	Raw             json.RawMessage `json:"raw,omitempty"`
}

func calendarKey(email string, year, month int) string {
	return fmt.Sprintf("%s|%d|%d", email, year, month)
}

func (e *Engine) rememberCSRF(ctx context.Context, email, csrf string) {
	if csrf == "" {
		return
	}
	err := e.qry.UpdateAccountCSRF(ctx, db.UpdateAccountCSRFParams{
		LastCsrf: csrf,
		Email:    email,
	})
	if err != nil {
		e.tel.ReportBroken(report_engine_persist, fmt.Errorf("update csrf: %w", err), email)
	}
}

// fetchCalendar expects the session to be locked, it keeps the account's
// cached csrf token and long ticket id in sync with the page.
func (e *Engine) fetchCalendar(ctx context.Context, s *session.Session, account db.Account, year, month int) (portal.Calendar, error) {
	calendar, err := e.portal.FetchCalendar(ctx, s.Http(), account.TicketID, year, month)
	if errors.Is(err, portal.ErrSessionExpired) {
		s.Invalidate()
		return portal.Calendar{}, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	if err != nil {
		return portal.Calendar{}, err
	}

	e.rememberCSRF(ctx, account.Email, calendar.CSRFToken)
	if !calendar.Degraded && calendar.RealTicketID != account.LongTicketID {
		err = e.qry.UpdateAccountLongTicketID(ctx, db.UpdateAccountLongTicketIDParams{
			LongTicketID: calendar.RealTicketID,
			Email:        account.Email,
		})
		if err != nil {
			e.tel.ReportBroken(report_engine_persist, fmt.Errorf("update long ticket id: %w", err), account.Email)
		}
	}
	e.calendars.Add(calendarKey(account.Email, year, month), calendar)
	return calendar, nil
}

func validCommand(command string) bool {
	return command == portal.CommandAdd || command == portal.CommandDelete
}

type attempt struct {
	date    string
	plate   string
	command string
	// cachedCSRF is used when the calendar could not be fetched.
	cachedCSRF string
}

// reserve expects the session to be locked and logged in.
func (e *Engine) reserve(ctx context.Context, s *session.Session, account db.Account, a attempt) (Result, error) {
	year, month, err := portal.ParseDate(a.date)
	if err != nil {
		return Result{}, err
	}

	csrf := a.cachedCSRF
	ticketID := account.LongTicketID
	calendar, err := e.fetchCalendar(ctx, s, account, year, month)
	switch {
	case err == nil:
		csrf = calendar.CSRFToken
		if !calendar.Degraded || ticketID == "" {
			ticketID = calendar.RealTicketID
		}
		if a.command == portal.CommandAdd {
			if day, ok := calendar.ReservedOn(a.date); ok {
				return Result{
					Success:         true,
					LotID:           day.LotID,
					Message:         "already reserved",
					AlreadyReserved: true,
				}, nil
			}
		}
	case errors.Is(err, ErrSessionExpired) || a.cachedCSRF == "":
		return Result{}, err
	default:
		e.tel.ReportWarning(report_engine_reserve, fmt.Errorf("calendar unavailable, using cached csrf: %w", err), account.Email)
	}
	if ticketID == "" {
		ticketID = account.TicketID
	}

	articleID := account.ArticleID
	if articleID == "" {
		articleID = portal.DefaultArticleID
	}
	res, err := e.portal.SubmitCommand(ctx, s.Http(), portal.Command{
		Cmd:       a.command,
		Date:      a.date,
		ArticleID: articleID,
		TicketID:  ticketID,
		Plate:     a.plate,
		CSRFToken: csrf,
	}, e.portal.CalendarURL(account.TicketID, year, month))
	if errors.Is(err, portal.ErrSessionExpired) {
		s.Invalidate()
		return Result{}, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	if err != nil {
		return Result{}, err
	}
	e.calendars.Remove(calendarKey(account.Email, year, month))

	result := Result{
		Success: res.Status,
		LotID:   res.LotID,
		Message: res.ErrorMessage,
		Raw:     res.Raw,
	}
	if !res.Status && a.command == portal.CommandAdd && portal.IsAlreadyReserved(res.ErrorMessage) {
		result.Success = true
		result.AlreadyReserved = true
	}
	if result.Success && result.Message == "" {
		switch a.command {
		case portal.CommandAdd:
			result.Message = "reserved"
		case portal.CommandDelete:
			result.Message = "deleted"
		}
	}
	return result, nil
}

// InstantReserve performs a single ADD or DEL of a date (YYYY-MM-DD) for
// email. A portal refusal is a Result with Success false, not an error.
func (e *Engine) InstantReserve(ctx context.Context, email, date, plate, command string) (Result, error) {
	if !validCommand(command) {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidCommand, command)
	}
	_, _, err := portal.ParseDate(date)
	if err != nil {
		return Result{}, err
	}

	_, err = e.getAccount(ctx, email, ErrUserNotFound)
	if err != nil {
		return Result{}, err
	}
	s, err := e.sessions.Get(ctx, email)
	if err != nil {
		return Result{}, err
	}
	s.Lock()
	defer s.Unlock()

	err = e.ensureLoggedIn(ctx, s)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	return retryExpired(ctx, e, s, func(account db.Account) (Result, error) {
		return e.reserve(ctx, s, account, attempt{
			date:    date,
			plate:   plate,
			command: command,
		})
	})
}

// Attempt is the ADD performed by a sniper tick, csrf is the token cached on
// the account which is used if the calendar cannot be fetched.
func (e *Engine) Attempt(ctx context.Context, email, date, plate, csrf string) (Result, error) {
	s, err := e.sessions.Get(ctx, email)
	if err != nil {
		return Result{}, err
	}
	s.Lock()
	defer s.Unlock()

	err = e.ensureLoggedIn(ctx, s)
	if err != nil {
		return Result{}, err
	}
	return retryExpired(ctx, e, s, func(account db.Account) (Result, error) {
		return e.reserve(ctx, s, account, attempt{
			date:       date,
			plate:      plate,
			command:    portal.CommandAdd,
			cachedCSRF: csrf,
		})
	})
}
