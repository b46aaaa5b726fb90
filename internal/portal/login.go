package portal

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"parkpro-backend/lib/htmlutil"

	"github.com/go-resty/resty/v2"
)

// Landing holds the identifiers found on the garage page right after login.
type Landing struct {
	TicketID     string `json:"ticket_id"`
	LongTicketID string `json:"long_ticket_id"`
	ArticleID    string `json:"article_id"`
	CSRFToken    string `json:"csrf_token"`
}

func (c Client) ticketIDRegex() *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`/%s/(\d+)/`, regexp.QuoteMeta(c.config.GarageSlug)))
}

// Login signs in on the session's http client and reads the landing page.
// The cookie jar of httpClient holds the authenticated session afterwards.
func (c Client) Login(ctx context.Context, httpClient *resty.Client, email, password string) (Landing, error) {
	loginError := func(err error) error {
		return fmt.Errorf("portal: login failed: %w", err)
	}

	res, err := httpClient.R().
		SetContext(ctx).
		Get(c.LoginPath())
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("login page request: %w", err))
		return Landing{}, loginError(err)
	}
	doc, err := parseDocument(res)
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("parse login page: %w", err))
		return Landing{}, loginError(err)
	}
	csrf, ok := htmlutil.InputValue(doc, "csrfmiddlewaretoken")
	if !ok {
		c.tel.ReportBroken(report_client_login, ErrNoCSRFToken)
		return Landing{}, loginError(ErrNoCSRFToken)
	}

	_, err = httpClient.R().
		SetContext(ctx).
		SetHeader("Referer", c.config.BaseUrl+c.LoginPath()).
		SetFormData(map[string]string{
			"csrfmiddlewaretoken": csrf,
			"username":            email,
			"password":            password,
			"next":                c.ReservePath(),
		}).
		Post(c.LoginPath())
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("login request: %w", err))
		return Landing{}, loginError(err)
	}

	res, err = httpClient.R().
		SetContext(ctx).
		Get(c.ReservePath())
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("landing page request: %w", err))
		return Landing{}, loginError(err)
	}
	doc, err = parseDocument(res)
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("parse landing page: %w", err))
		return Landing{}, loginError(err)
	}

	path := finalPath(res)
	if !strings.HasPrefix(path, c.ReservePath()) || hasLoginForm(doc) {
		c.tel.ReportWarning(report_client_login, ErrLoginRejected, email, path)
		return Landing{}, loginError(ErrLoginRejected)
	}

	groups := c.ticketIDRegex().FindStringSubmatch(path)
	if len(groups) < 2 {
		c.tel.ReportBroken(report_client_login, ErrNoTicketID, path)
		return Landing{}, loginError(ErrNoTicketID)
	}

	landing := Landing{TicketID: groups[1]}
	landing.LongTicketID, ok = htmlutil.ScriptMatch(doc, longTicketIDRegex)
	if !ok {
		landing.LongTicketID = landing.TicketID
	}
	landing.ArticleID, ok = htmlutil.ScriptMatch(doc, articleIDRegex)
	if !ok {
		landing.ArticleID = DefaultArticleID
	}
	landing.CSRFToken, ok = htmlutil.InputValue(doc, "csrfmiddlewaretoken")
	if !ok {
		landing.CSRFToken = c.cookie(httpClient, "csrftoken")
	}

	c.tel.ReportDebug("logged in", email, landing.TicketID)
	return landing, nil
}
