package reservation

import (
	"context"
	"errors"
	"fmt"

	"parkpro-backend/internal/db"
	"parkpro-backend/internal/portal"
	"parkpro-backend/internal/session"
)

// Calendar returns one month of the user's ticket, served from a short-lived
// cache. Reservations made through the engine evict the month.
func (e *Engine) Calendar(ctx context.Context, email string, year, month int) (portal.Calendar, error) {
	if cached, ok := e.calendars.Get(calendarKey(email, year, month)); ok {
		return cached, nil
	}

	_, err := e.getAccount(ctx, email, ErrUserNotFound)
	if err != nil {
		return portal.Calendar{}, err
	}
	s, err := e.sessions.Get(ctx, email)
	if err != nil {
		return portal.Calendar{}, err
	}
	s.Lock()
	defer s.Unlock()

	err = e.ensureLoggedIn(ctx, s)
	if err != nil {
		return portal.Calendar{}, err
	}
	return retryExpired(ctx, e, s, func(account db.Account) (portal.Calendar, error) {
		return e.fetchCalendar(ctx, s, account, year, month)
	})
}

// Refresh returns the days of a month without a free lot.
func (e *Engine) Refresh(ctx context.Context, email string, year, month int) ([]int, error) {
	s, err := e.sessions.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	s.Lock()
	defer s.Unlock()

	err = e.ensureLoggedIn(ctx, s)
	if err != nil {
		return nil, err
	}
	return retryExpired(ctx, e, s, func(account db.Account) ([]int, error) {
		return e.refresh(ctx, s, account, year, month)
	})
}

func (e *Engine) refresh(ctx context.Context, s *session.Session, account db.Account, year, month int) ([]int, error) {
	csrf := account.LastCsrf
	if csrf == "" {
		calendar, err := e.fetchCalendar(ctx, s, account, year, month)
		if err != nil {
			return nil, err
		}
		csrf = calendar.CSRFToken
	}
	articleID := account.ArticleID
	if articleID == "" {
		articleID = portal.DefaultArticleID
	}

	res, err := e.portal.Refresh(ctx, s.Http(), portal.RefreshRequest{
		ArticleID: articleID,
		Year:      year,
		Month:     month,
		CSRFToken: csrf,
	}, e.portal.CalendarURL(account.TicketID, year, month))
	if err != nil {
		if errors.Is(err, portal.ErrSessionExpired) {
			s.Invalidate()
			return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
		}
		return nil, err
	}
	if !res.Status {
		return nil, fmt.Errorf("%w: %s", ErrRefreshRefused, res.ErrorMessage)
	}
	if res.FullDays == nil {
		return []int{}, nil
	}
	return res.FullDays, nil
}
