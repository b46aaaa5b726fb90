package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// Command is one form post to the misc endpoint of the garage.
type Command struct {
	Cmd       string
	Date      string
	ArticleID string
	TicketID  string
	Plate     string
	CSRFToken string
}

type RefreshRequest struct {
	ArticleID string
	Year      int
	Month     int
	CSRFToken string
}

// Response is the json answer of the misc endpoint, Raw is the body as sent.
type Response struct {
	Raw          json.RawMessage `json:"raw"`
	Status       bool            `json:"status"`
	LotID        string          `json:"lot_id,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	FullDays     []int           `json:"full_days,omitempty"`
}

type rawResponse struct {
	Status       bool            `json:"status"`
	LotID        json.RawMessage `json:"lot_id"`
	Lot          json.RawMessage `json:"lot"`
	ErrorMessage string          `json:"error_message"`
	Error        string          `json:"error"`
	Msg          string          `json:"msg"`
	FullDays     []int           `json:"full_days"`
}

// scalarString renders a json string or number without quotes.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var str string
	if json.Unmarshal(raw, &str) == nil {
		return str
	}
	return strings.TrimSpace(string(raw))
}

func decodeResponse(body []byte) (Response, error) {
	var raw rawResponse
	err := json.Unmarshal(body, &raw)
	if err != nil {
		return Response{}, err
	}

	res := Response{
		Raw:          json.RawMessage(append([]byte(nil), body...)),
		Status:       raw.Status,
		LotID:        scalarString(raw.LotID),
		ErrorMessage: raw.ErrorMessage,
		FullDays:     raw.FullDays,
	}
	if res.LotID == "" {
		res.LotID = scalarString(raw.Lot)
	}
	if res.ErrorMessage == "" {
		res.ErrorMessage = raw.Error
	}
	if res.ErrorMessage == "" {
		res.ErrorMessage = raw.Msg
	}
	return res, nil
}

func (c Client) post(ctx context.Context, httpClient *resty.Client, form map[string]string, csrf, referer string) (Response, error) {
	res, err := httpClient.R().
		SetContext(ctx).
		SetHeader("X-Requested-With", "XMLHttpRequest").
		SetHeader("X-CSRFToken", csrf).
		SetHeader("Referer", referer).
		SetHeader("Origin", c.config.BaseUrl).
		SetHeader("Accept", "application/json, text/javascript, */*; q=0.01").
		SetFormData(form).
		Post(c.CommandPath())
	if err != nil {
		c.tel.ReportWarning(report_client_submit_command, form["cmd"], err)
		return Response{}, err
	}
	if res.StatusCode() >= 500 {
		err := fmt.Errorf("%w: %s", ErrUnexpectedStatus, res.Status())
		c.tel.ReportWarning(report_client_submit_command, form["cmd"], err)
		return Response{}, err
	}

	decoded, err := decodeResponse(res.Body())
	if err != nil {
		// the portal answers with the html login page once the session is gone
		c.tel.ReportWarning(report_client_submit_command, form["cmd"], "non-json response", res.Status())
		return Response{}, ErrSessionExpired
	}
	return decoded, nil
}

// SubmitCommand posts an ADD or DEL command, a portal refusal is not an error
// but a Response with Status false.
func (c Client) SubmitCommand(ctx context.Context, httpClient *resty.Client, cmd Command, referer string) (Response, error) {
	if referer == "" {
		referer = c.ReserveURL()
	}
	return c.post(ctx, httpClient, map[string]string{
		"cmd":                 cmd.Cmd,
		"date":                cmd.Date,
		"article_id":          cmd.ArticleID,
		"ticket_id":           cmd.TicketID,
		"car_id":              cmd.Plate,
		"csrfmiddlewaretoken": cmd.CSRFToken,
	}, cmd.CSRFToken, referer)
}

// Refresh asks for the days of a month that have no free lot left.
func (c Client) Refresh(ctx context.Context, httpClient *resty.Client, req RefreshRequest, referer string) (Response, error) {
	if referer == "" {
		referer = c.ReserveURL()
	}
	return c.post(ctx, httpClient, map[string]string{
		"cmd":                 CommandRefresh,
		"article_id":          req.ArticleID,
		"month":               itoa(req.Month),
		"year":                itoa(req.Year),
		"csrfmiddlewaretoken": req.CSRFToken,
	}, req.CSRFToken, referer)
}
