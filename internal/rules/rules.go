package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"

	"parkpro-backend/internal/components/assert"
	"parkpro-backend/internal/components/chrono"
	"parkpro-backend/internal/components/telemetry"
	"parkpro-backend/internal/db"
	"parkpro-backend/internal/portal"
	"parkpro-backend/internal/reservation"
)

const (
	report_engine_execute   = "engine.execute"
	report_engine_reconcile = "engine.reconcile"
	report_engine_run_all   = "engine.run-all"
	report_activity         = "activity"
)

var (
	ErrInvalidRule  = errors.New("invalid rule")
	ErrRuleNotFound = errors.New("rule not found")
)

// Reserver performs a one-shot reservation.
type Reserver interface {
	InstantReserve(ctx context.Context, email, date, plate, command string) (reservation.Result, error)
}

// Snipers is the part of the sniper registry rules drive.
type Snipers interface {
	Start(ctx context.Context, email, date, plate string) (bool, error)
	Stop(ctx context.Context, email, date string) (bool, error)
	Keys(email string) []string
}

// Rule is a bulk rule with its day and month sets decoded.
type Rule struct {
	ID     int64  `json:"id"`
	Email  string `json:"email"`
	Days   []int  `json:"days"`
	Months []int  `json:"months"`
	Plate  string `json:"plate"`
	Name   string `json:"name"`
}

// Outcome is what happened to one date of a rule execution.
type Outcome struct {
	Date            string `json:"date"`
	Success         bool   `json:"success"`
	AlreadyReserved bool   `json:"already_reserved,omitempty"`
	LotID           string `json:"lot_id,omitempty"`
	Message         string `json:"message,omitempty"`
	// Sniper is set when the date could not be reserved and a sniper was
	// started (or was already running) for it.
	Sniper bool `json:"sniper,omitempty"`
}

type Options struct {
	// Horizon defaults to DefaultHorizon.
	Horizon int
}

type Engine struct {
	qry      db.Querier
	reserver Reserver
	snipers  Snipers
	clock    chrono.TimeAPI
	tel      telemetry.API
	horizon  int
}

func NewEngine(qry db.Querier, reserver Reserver, snipers Snipers, clock chrono.TimeAPI, tel telemetry.API, opts Options) *Engine {
	assert.NotNil(qry, "querier")
	assert.NotNil(reserver, "reserver")
	assert.NotNil(snipers, "snipers")
	assert.NotNil(clock, "clock")
	assert.NotNil(tel, "telemetry")

	if opts.Horizon <= 0 {
		opts.Horizon = DefaultHorizon
	}
	return &Engine{
		qry:      qry,
		reserver: reserver,
		snipers:  snipers,
		clock:    clock,
		tel:      telemetry.NewScopedAPI("rules", tel),
		horizon:  opts.Horizon,
	}
}

func normalize(values []int, lo, hi int, name string) ([]int, error) {
	out := []int{}
	for _, v := range values {
		if v < lo || v > hi {
			return nil, fmt.Errorf("%w: %s must be between %d and %d, got %d", ErrInvalidRule, name, lo, hi, v)
		}
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out, nil
}

// Validate checks and normalizes (dedupes and sorts) a rule.
func Validate(rule Rule) (Rule, error) {
	if rule.Email == "" {
		return Rule{}, fmt.Errorf("%w: email is required", ErrInvalidRule)
	}
	if rule.Plate == "" {
		return Rule{}, fmt.Errorf("%w: plate is required", ErrInvalidRule)
	}
	days, err := normalize(rule.Days, 0, 6, "days")
	if err != nil {
		return Rule{}, err
	}
	months, err := normalize(rule.Months, 1, 12, "months")
	if err != nil {
		return Rule{}, err
	}
	rule.Days = days
	rule.Months = months
	return rule, nil
}

// FromRow decodes the json day and month sets of a stored rule.
func FromRow(row db.BulkRule) (Rule, error) {
	rule := Rule{
		ID:    row.ID,
		Email: row.Email,
		Plate: row.Plate,
		Name:  row.Name,
	}
	err := json.Unmarshal([]byte(row.Days), &rule.Days)
	if err != nil {
		return Rule{}, fmt.Errorf("decode days of rule %d: %w", row.ID, err)
	}
	err = json.Unmarshal([]byte(row.Months), &rule.Months)
	if err != nil {
		return Rule{}, fmt.Errorf("decode months of rule %d: %w", row.ID, err)
	}
	return rule, nil
}

func encodeSet(values []int) string {
	if values == nil {
		values = []int{}
	}
	encoded, _ := json.Marshal(values)
	return string(encoded)
}

func (e *Engine) activity(ctx context.Context, email, message string) {
	err := e.qry.CreateActivity(ctx, db.CreateActivityParams{Email: email, Message: message})
	if err != nil {
		e.tel.ReportBroken(report_activity, err, email)
	}
}

// Dates returns the dates a rule currently expands to.
func (e *Engine) Dates(rule Rule) []string {
	return Expand(e.clock.Now(), e.horizon, rule.Days, rule.Months)
}

// ExecuteRule tries to reserve every date the rule expands to and starts a
// sniper for every date that could not be reserved. Credential errors abort
// the execution since every other date would fail the same way.
func (e *Engine) ExecuteRule(ctx context.Context, rule Rule) ([]Outcome, error) {
	return e.execute(ctx, rule, false)
}

// stoppedDates returns the dates of email whose sniper row is stopped.
func (e *Engine) stoppedDates(ctx context.Context, email string) ([]string, error) {
	rows, err := e.qry.ListSnipers(ctx, email)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, row := range rows {
		if row.Status == db.SniperStopped {
			out = append(out, row.Date)
		}
	}
	return out, nil
}

// execute runs a rule, a scheduled run leaves alone the dates whose sniper
// was stopped since stopping is final.
func (e *Engine) execute(ctx context.Context, rule Rule, scheduled bool) ([]Outcome, error) {
	var stopped []string
	if scheduled {
		var err error
		stopped, err = e.stoppedDates(ctx, rule.Email)
		if err != nil {
			e.tel.ReportBroken(report_engine_execute, fmt.Errorf("list snipers: %w", err), rule.Email)
			return nil, err
		}
	}

	outcomes := []Outcome{}
	for _, date := range e.Dates(rule) {
		if slices.Contains(stopped, date) {
			e.tel.ReportDebug("sniper was stopped, skipping date", rule.Email, date)
			continue
		}
		result, err := e.reserver.InstantReserve(ctx, rule.Email, date, rule.Plate, portal.CommandAdd)
		if err != nil && reservation.IsCredentialError(err) {
			e.activity(ctx, rule.Email, fmt.Sprintf("rule %q stopped: %s", rule.Name, err.Error()))
			return outcomes, err
		}

		outcome := Outcome{Date: date}
		switch {
		case err != nil:
			e.tel.ReportWarning(report_engine_execute, err, rule.Email, date)
			outcome.Message = err.Error()
			e.activity(ctx, rule.Email, fmt.Sprintf("could not reserve %s (%s), starting sniper", date, err.Error()))
		case result.Success:
			outcome.Success = true
			outcome.AlreadyReserved = result.AlreadyReserved
			outcome.LotID = result.LotID
			outcome.Message = result.Message
			if !result.AlreadyReserved {
				e.activity(ctx, rule.Email, fmt.Sprintf("reserved %s (%s), lot %s", date, rule.Plate, result.LotID))
			}
			outcomes = append(outcomes, outcome)
			continue
		default:
			outcome.Message = result.Message
			e.activity(ctx, rule.Email, fmt.Sprintf("%s is full, starting sniper", date))
		}

		_, err = e.snipers.Start(ctx, rule.Email, date, rule.Plate)
		if err != nil {
			e.tel.ReportBroken(report_engine_execute, fmt.Errorf("start sniper: %w", err), rule.Email, date)
		} else {
			outcome.Sniper = true
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// SaveRule creates (ID == 0) or updates a rule and executes it right away.
// After an edit the snipers of dates only the previous version covered are
// stopped, other snipers are left alone.
func (e *Engine) SaveRule(ctx context.Context, rule Rule) (Rule, []Outcome, error) {
	rule, err := Validate(rule)
	if err != nil {
		return Rule{}, nil, err
	}

	var row db.BulkRule
	var previous *Rule
	if rule.ID == 0 {
		row, err = e.qry.CreateBulkRule(ctx, db.CreateBulkRuleParams{
			Email:  rule.Email,
			Days:   encodeSet(rule.Days),
			Months: encodeSet(rule.Months),
			Plate:  rule.Plate,
			Name:   rule.Name,
		})
	} else {
		var old Rule
		old, err = e.getRule(ctx, rule.Email, rule.ID)
		if err != nil {
			return Rule{}, nil, err
		}
		previous = &old

		row, err = e.qry.UpdateBulkRule(ctx, db.UpdateBulkRuleParams{
			Days:   encodeSet(rule.Days),
			Months: encodeSet(rule.Months),
			Plate:  rule.Plate,
			Name:   rule.Name,
			ID:     rule.ID,
			Email:  rule.Email,
		})
		if errors.Is(err, sql.ErrNoRows) {
			return Rule{}, nil, fmt.Errorf("%w: %d", ErrRuleNotFound, rule.ID)
		}
	}
	if err != nil {
		return Rule{}, nil, err
	}
	rule.ID = row.ID

	if previous != nil {
		_, err := e.reconcile(ctx, rule.Email, func(date string) bool {
			return Covers(*previous, date)
		})
		if err != nil {
			e.tel.ReportBroken(report_engine_reconcile, err, rule.Email)
		}
	}
	outcomes, err := e.ExecuteRule(ctx, rule)
	return rule, outcomes, err
}

func (e *Engine) getRule(ctx context.Context, email string, id int64) (Rule, error) {
	row, err := e.qry.GetBulkRule(ctx, db.GetBulkRuleParams{ID: id, Email: email})
	if errors.Is(err, sql.ErrNoRows) {
		return Rule{}, fmt.Errorf("%w: %d", ErrRuleNotFound, id)
	}
	if err != nil {
		return Rule{}, err
	}
	return FromRow(row)
}

// DeleteRule deletes a rule and stops the snipers it leaves uncovered,
// returning their dates.
func (e *Engine) DeleteRule(ctx context.Context, email string, id int64) ([]string, error) {
	affected, err := e.qry.DeleteBulkRule(ctx, db.DeleteBulkRuleParams{ID: id, Email: email})
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: %d", ErrRuleNotFound, id)
	}
	return e.Reconcile(ctx, email)
}

func (e *Engine) ListRules(ctx context.Context, email string) ([]Rule, error) {
	rows, err := e.qry.ListBulkRules(ctx, email)
	if err != nil {
		return nil, err
	}
	out := make([]Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := FromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// Reconcile stops every sniper of email, running or persisted as active,
// whose date none of the user's current rules covers. It returns the stopped
// dates.
func (e *Engine) Reconcile(ctx context.Context, email string) ([]string, error) {
	return e.reconcile(ctx, email, func(string) bool { return true })
}

// reconcile is Reconcile restricted to the dates `consider` accepts.
func (e *Engine) reconcile(ctx context.Context, email string, consider func(date string) bool) ([]string, error) {
	rules, err := e.ListRules(ctx, email)
	if err != nil {
		return nil, err
	}
	active, err := e.qry.ListSnipers(ctx, email)
	if err != nil {
		return nil, err
	}

	dates := e.snipers.Keys(email)
	for _, row := range active {
		if row.Status == db.SniperActive && !slices.Contains(dates, row.Date) {
			dates = append(dates, row.Date)
		}
	}
	sort.Strings(dates)

	stopped := []string{}
	for _, date := range dates {
		if !consider(date) {
			continue
		}
		covered := slices.ContainsFunc(rules, func(rule Rule) bool {
			return Covers(rule, date)
		})
		if covered {
			continue
		}
		_, err := e.snipers.Stop(ctx, email, date)
		if err != nil {
			e.tel.ReportBroken(report_engine_reconcile, err, email, date)
			continue
		}
		stopped = append(stopped, date)
	}
	if len(stopped) > 0 {
		e.activity(ctx, email, fmt.Sprintf("stopped snipers no rule covers anymore: %v", stopped))
	}
	return stopped, nil
}

// RuleRun is the result of executing one rule as part of a batch.
type RuleRun struct {
	Rule     Rule      `json:"rule"`
	Outcomes []Outcome `json:"outcomes"`
}

// RunRules executes every rule of one user.
func (e *Engine) RunRules(ctx context.Context, email string) ([]RuleRun, error) {
	return e.runRules(ctx, email, false)
}

func (e *Engine) runRules(ctx context.Context, email string, scheduled bool) ([]RuleRun, error) {
	rules, err := e.ListRules(ctx, email)
	if err != nil {
		return nil, err
	}
	runs := []RuleRun{}
	for _, rule := range rules {
		outcomes, err := e.execute(ctx, rule, scheduled)
		runs = append(runs, RuleRun{Rule: rule, Outcomes: outcomes})
		if err != nil {
			return runs, err
		}
	}
	return runs, nil
}

// RunAll executes the rules of every user, a failing user does not keep the
// others from running. Dates whose sniper was stopped are skipped. It returns
// the number of users whose rules failed.
func (e *Engine) RunAll(ctx context.Context) (int, error) {
	rows, err := e.qry.ListAllBulkRules(ctx)
	if err != nil {
		e.tel.ReportBroken(report_engine_run_all, err)
		return 0, err
	}

	emails := []string{}
	for _, row := range rows {
		if !slices.Contains(emails, row.Email) {
			emails = append(emails, row.Email)
		}
	}

	failed := 0
	for _, email := range emails {
		if ctx.Err() != nil {
			return failed, ctx.Err()
		}
		_, err := e.runRules(ctx, email, true)
		if err != nil {
			failed++
			e.tel.ReportWarning(report_engine_run_all, err, email)
		}
	}
	return failed, nil
}
