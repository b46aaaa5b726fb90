package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parkpro-backend/internal/components/assert"
	"parkpro-backend/internal/components/chrono"
	"parkpro-backend/internal/components/telemetry"
	"parkpro-backend/internal/db"
	"parkpro-backend/internal/notify"
	"parkpro-backend/internal/portal"
	"parkpro-backend/internal/reservation"
	"parkpro-backend/internal/rules"
	"parkpro-backend/internal/session"
	"parkpro-backend/internal/sniper"
	"parkpro-backend/internal/vault"
	"parkpro-backend/lib/restyutil"
	"parkpro-backend/lib/textutil"
	"parkpro-backend/pkg/migrations"
)

const (
	report_service_resume = "service.resume"
	report_db_query       = "db.query"
)

var ErrInvalidRequest = errors.New("invalid request")

type Options struct {
	// Telemetry defaults to telemetry.SlogAPI.
	Telemetry telemetry.API
	// Clock defaults to the wall clock in the configured rules timezone.
	Clock chrono.TimeAPI
	// Notifier defaults to notify.New of the smtp config.
	Notifier notify.Notifier
	// Dump receives every portal http exchange, may be nil.
	Dump restyutil.Output
}

// Service wires the reservation core together and exposes the operations
// callers (the cli, a future http layer) use.
type Service struct {
	sqldb   *sql.DB
	ownsDB  bool
	config  Config
	clock   chrono.TimeAPI
	tel     telemetry.API
	qry     *db.Queries
	engine  *reservation.Engine
	snipers *sniper.Registry
	rules   *rules.Engine
}

// Open opens and migrates the configured database then creates a Service
// that closes it on Close.
func Open(ctx context.Context, config Config, opts Options) (*Service, error) {
	err := config.Validate()
	if err != nil {
		return nil, err
	}
	sqldb, err := config.Database.OpenDB()
	if err != nil {
		return nil, err
	}
	err = migrations.Migrate(ctx, sqldb, db.Schema)
	if err != nil {
		sqldb.Close()
		return nil, err
	}
	svc, err := New(ctx, sqldb, config, opts)
	if err != nil {
		sqldb.Close()
		return nil, err
	}
	svc.ownsDB = true
	return svc, nil
}

// New creates a Service on an already migrated database. Snipers live until
// ctx is done or Close is called.
func New(ctx context.Context, sqldb *sql.DB, config Config, opts Options) (*Service, error) {
	assert.NotNil(sqldb, "sql db")

	v, err := vault.New(config.Secret)
	if err != nil {
		return nil, err
	}

	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.SlogAPI{}
	}
	clock := opts.Clock
	if clock == nil {
		clock, err = chrono.NewStandardTime(config.Rules.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load rules timezone: %w", err)
		}
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.New(config.Smtp)
	}

	client, err := portal.NewClient(config.Portal, tel, opts.Dump)
	if err != nil {
		return nil, err
	}

	qry := db.New(sqldb)
	sessions := session.NewRegistry(client, qry, v, tel)
	engine := reservation.NewEngine(qry, v, sessions, tel, reservation.Options{})
	snipers := sniper.NewRegistry(ctx, qry, engine, tel, sniper.Options{
		Interval: config.Sniper.Interval(),
		Notifier: notifier,
	})
	ruleEngine := rules.NewEngine(qry, engine, snipers, clock, tel, rules.Options{
		Horizon: config.Rules.Horizon(),
	})

	return &Service{
		sqldb:   sqldb,
		config:  config,
		clock:   clock,
		tel:     telemetry.NewScopedAPI("service", tel),
		qry:     qry,
		engine:  engine,
		snipers: snipers,
		rules:   ruleEngine,
	}, nil
}

func (s *Service) Config() Config {
	return s.config
}

func (s *Service) Clock() chrono.TimeAPI {
	return s.clock
}

// Close stops every sniper of this process without marking them stopped, so
// the next process resumes them.
func (s *Service) Close() error {
	s.snipers.Close()
	if s.ownsDB {
		return s.sqldb.Close()
	}
	return nil
}

func (s *Service) Login(ctx context.Context, email, password string) (reservation.Identity, error) {
	if email == "" || password == "" {
		return reservation.Identity{}, fmt.Errorf("%w: email and password are required", ErrInvalidRequest)
	}
	return s.engine.Login(ctx, email, password)
}

func (s *Service) InstantReserve(ctx context.Context, email, date, plate, command string) (reservation.Result, error) {
	return s.engine.InstantReserve(ctx, email, date, textutil.NormalizePlate(plate), command)
}

func (s *Service) Calendar(ctx context.Context, email string, year, month int) (portal.Calendar, error) {
	if month < 1 || month > 12 {
		return portal.Calendar{}, fmt.Errorf("%w: month %d", ErrInvalidRequest, month)
	}
	return s.engine.Calendar(ctx, email, year, month)
}

func (s *Service) Refresh(ctx context.Context, email string, year, month int) ([]int, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("%w: month %d", ErrInvalidRequest, month)
	}
	return s.engine.Refresh(ctx, email, year, month)
}

func (s *Service) SaveRule(ctx context.Context, rule rules.Rule) (rules.Rule, []rules.Outcome, error) {
	rule.Plate = textutil.NormalizePlate(rule.Plate)
	return s.rules.SaveRule(ctx, rule)
}

func (s *Service) DeleteRule(ctx context.Context, email string, id int64) ([]string, error) {
	return s.rules.DeleteRule(ctx, email, id)
}

func (s *Service) ListRules(ctx context.Context, email string) ([]rules.Rule, error) {
	return s.rules.ListRules(ctx, email)
}

func (s *Service) RunRules(ctx context.Context, email string) ([]rules.RuleRun, error) {
	return s.rules.RunRules(ctx, email)
}

func (s *Service) RunAllRules(ctx context.Context) (int, error) {
	return s.rules.RunAll(ctx)
}

func (s *Service) StartSniper(ctx context.Context, email, date, plate string) (bool, error) {
	plate = textutil.NormalizePlate(plate)
	if email == "" || plate == "" {
		return false, fmt.Errorf("%w: email and plate are required", ErrInvalidRequest)
	}
	return s.snipers.Start(ctx, email, date, plate)
}

func (s *Service) StopSniper(ctx context.Context, email, date string) (bool, error) {
	return s.snipers.Stop(ctx, email, date)
}

// SniperView is a persisted sniper row joined with the state of its worker,
// if one runs in this process.
type SniperView struct {
	Date        string    `json:"date"`
	Plate       string    `json:"plate"`
	Status      string    `json:"status"`
	Running     bool      `json:"running"`
	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"last_attempt,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// ActiveSnipers lists the active snipers of email, the ones running in other
// processes included.
func (s *Service) ActiveSnipers(ctx context.Context, email string) ([]SniperView, error) {
	rows, err := s.qry.ListSnipers(ctx, email)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, email)
		return nil, err
	}
	running := map[string]sniper.Status{}
	for _, status := range s.snipers.Active(email) {
		running[status.Date] = status
	}

	out := []SniperView{}
	for _, row := range rows {
		if row.Status != db.SniperActive {
			continue
		}
		view := SniperView{
			Date:   row.Date,
			Plate:  row.Plate,
			Status: row.Status,
		}
		if status, ok := running[row.Date]; ok {
			view.Running = true
			view.Attempts = status.Attempts
			view.LastAttempt = status.LastAttempt
			view.LastError = status.LastError
		}
		out = append(out, view)
	}
	return out, nil
}

// RunningSnipers is the number of sniper workers in this process.
func (s *Service) RunningSnipers() int {
	return s.snipers.Count()
}

func (s *Service) ResumeOnStartup(ctx context.Context) (int, error) {
	started, err := s.snipers.Resume(ctx)
	if err != nil {
		s.tel.ReportBroken(report_service_resume, err)
		return started, err
	}
	if started > 0 {
		s.tel.ReportDebug("resumed snipers", "count", started)
	}
	return started, nil
}

type LogEntry struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Logs returns the newest activity of email first, at most limit entries.
func (s *Service) Logs(ctx context.Context, email string, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.qry.ListActivity(ctx, db.ListActivityParams{
		Email: email,
		Limit: int64(limit),
	})
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, email)
		return nil, err
	}
	out := make([]LogEntry, len(rows))
	for i, row := range rows {
		out[i] = LogEntry{
			ID:        row.ID,
			Message:   row.Message,
			CreatedAt: time.Unix(row.CreatedAt, 0).In(s.clock.Location()),
		}
	}
	return out, nil
}
