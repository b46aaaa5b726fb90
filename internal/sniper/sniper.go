// Package sniper keeps retrying reservations of full dates in the background
// until a lot frees up or the sniper is stopped.
package sniper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"parkpro-backend/internal/components/assert"
	"parkpro-backend/internal/components/telemetry"
	"parkpro-backend/internal/db"
	"parkpro-backend/internal/notify"
	"parkpro-backend/internal/portal"
	"parkpro-backend/internal/reservation"
)

const (
	report_registry_start  = "registry.start"
	report_registry_stop   = "registry.stop"
	report_registry_resume = "registry.resume"
	report_worker_tick     = "worker.tick"
	report_worker_succeed  = "worker.succeed"
	report_activity        = "activity"
)

const DefaultInterval = 5 * time.Second

var ErrRegistryClosed = errors.New("sniper registry closed")

// Reserver is the part of the reservation engine a sniper needs.
type Reserver interface {
	EnsureLoggedIn(ctx context.Context, email string) error
	Attempt(ctx context.Context, email, date, plate, csrf string) (reservation.Result, error)
}

type Options struct {
	// Interval between two attempts of one sniper, defaults to DefaultInterval.
	Interval time.Duration
	Notifier notify.Notifier
}

type key struct {
	email string
	date  string
}

// Status is a snapshot of a running sniper.
type Status struct {
	Email       string    `json:"email"`
	Date        string    `json:"date"`
	Plate       string    `json:"plate"`
	StartedAt   time.Time `json:"started_at"`
	LastAttempt time.Time `json:"last_attempt,omitempty"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
}

type worker struct {
	key
	plate     string
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	// active is cleared exactly once, by whoever ends the worker first
	active atomic.Bool
	done   chan struct{}

	mutex       sync.Mutex
	attempts    int
	lastAttempt time.Time
	lastError   string
}

func (w *worker) status() Status {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return Status{
		Email:       w.email,
		Date:        w.date,
		Plate:       w.plate,
		StartedAt:   w.startedAt,
		LastAttempt: w.lastAttempt,
		Attempts:    w.attempts,
		LastError:   w.lastError,
	}
}

// recordFailure returns true if message differs from the previous failure.
func (w *worker) recordFailure(message string) bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.attempts++
	w.lastAttempt = time.Now()
	changed := w.lastError != message
	w.lastError = message
	return changed
}

// Registry owns every running sniper of the process, at most one per
// (email, date).
type Registry struct {
	ctx    context.Context
	qry    db.Querier
	engine Reserver
	tel    telemetry.API
	opts   Options

	mutex   sync.Mutex
	workers map[key]*worker
	closed  bool
	wg      sync.WaitGroup
}

// NewRegistry creates a registry whose workers live at most as long as ctx.
func NewRegistry(ctx context.Context, qry db.Querier, engine Reserver, tel telemetry.API, opts Options) *Registry {
	assert.NotNil(qry, "querier")
	assert.NotNil(engine, "reserver")
	assert.NotNil(tel, "telemetry")

	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Noop{}
	}
	return &Registry{
		ctx:     ctx,
		qry:     qry,
		engine:  engine,
		tel:     telemetry.NewScopedAPI("sniper", tel),
		opts:    opts,
		workers: map[key]*worker{},
	}
}

func (r *Registry) activity(ctx context.Context, email, message string) {
	err := r.qry.CreateActivity(context.WithoutCancel(ctx), db.CreateActivityParams{
		Email:   email,
		Message: message,
	})
	if err != nil {
		r.tel.ReportBroken(report_activity, err, email)
	}
}

// remove deletes w from the registry only if it is still the registered
// worker of its key, so a finishing worker never removes its successor.
func (r *Registry) remove(w *worker) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.workers[w.key] == w {
		delete(r.workers, w.key)
	}
}

// Start launches a sniper for (email, date) and marks it active in storage.
// It returns false if one is already running and ErrRegistryClosed once the
// registry was closed.
func (r *Registry) Start(ctx context.Context, email, date, plate string) (bool, error) {
	_, _, err := portal.ParseDate(date)
	if err != nil {
		return false, err
	}
	k := key{email: email, date: date}

	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return false, ErrRegistryClosed
	}
	if _, running := r.workers[k]; running {
		r.mutex.Unlock()
		return false, nil
	}
	workerCtx, cancel := context.WithCancel(r.ctx)
	w := &worker{
		key:       k,
		plate:     plate,
		startedAt: time.Now(),
		ctx:       workerCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	w.active.Store(true)
	r.workers[k] = w
	r.wg.Add(1)
	r.mutex.Unlock()

	err = r.qry.UpsertSniper(ctx, db.UpsertSniperParams{
		Email: email,
		Date:  date,
		Plate: plate,
	})
	if err != nil {
		r.tel.ReportBroken(report_registry_start, fmt.Errorf("upsert sniper: %w", err), email, date)
		if w.active.CompareAndSwap(true, false) {
			cancel()
			r.remove(w)
		}
		r.wg.Done()
		return false, err
	}
	if !w.active.Load() {
		r.wg.Done()
		if r.isClosed() {
			// the row stays active for the next process
			return false, ErrRegistryClosed
		}
		// stopped while the row was being written
		r.markStopped(ctx, k)
		return false, nil
	}

	go r.run(w)

	r.activity(ctx, email, fmt.Sprintf("sniper started for %s (%s)", date, plate))
	r.tel.ReportDebug("started", email, date)
	return true, nil
}

func (r *Registry) markStopped(ctx context.Context, k key) error {
	err := r.qry.SetSniperStatus(context.WithoutCancel(ctx), db.SetSniperStatusParams{
		Status: db.SniperStopped,
		Email:  k.email,
		Date:   k.date,
	})
	if err != nil {
		r.tel.ReportBroken(report_registry_stop, fmt.Errorf("set sniper status: %w", err), k.email, k.date)
	}
	return err
}

// Stop cancels the sniper of (email, date) and marks it stopped in storage,
// a stopped sniper is never resumed. It returns false if none was running in
// this process.
func (r *Registry) Stop(ctx context.Context, email, date string) (bool, error) {
	k := key{email: email, date: date}

	r.mutex.Lock()
	w, running := r.workers[k]
	if running {
		delete(r.workers, k)
	}
	r.mutex.Unlock()

	if running {
		w.active.Store(false)
		w.cancel()
	}
	err := r.markStopped(ctx, k)
	if err != nil {
		return running, err
	}
	if running {
		r.activity(ctx, email, fmt.Sprintf("sniper stopped for %s", date))
	}
	return running, nil
}

func (r *Registry) Running(email, date string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, ok := r.workers[key{email: email, date: date}]
	return ok
}

// Keys returns the dates with a running sniper for email, sorted.
func (r *Registry) Keys(email string) []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	dates := []string{}
	for k := range r.workers {
		if k.email == email {
			dates = append(dates, k.date)
		}
	}
	sort.Strings(dates)
	return dates
}

// Active returns the status of every running sniper of email, sorted by date.
func (r *Registry) Active(email string) []Status {
	r.mutex.Lock()
	workers := []*worker{}
	for k, w := range r.workers {
		if k.email == email {
			workers = append(workers, w)
		}
	}
	r.mutex.Unlock()

	out := make([]Status, len(workers))
	for i, w := range workers {
		out[i] = w.status()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date < out[j].Date
	})
	return out
}

// Count is the number of running snipers across all emails.
func (r *Registry) Count() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.workers)
}

func (r *Registry) isClosed() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.closed
}

// Close cancels every worker without touching storage, so they are resumed
// by the next process, and waits for them to exit. Later starts fail.
func (r *Registry) Close() {
	r.mutex.Lock()
	r.closed = true
	workers := make([]*worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	r.workers = map[key]*worker{}
	r.mutex.Unlock()

	for _, w := range workers {
		w.active.Store(false)
		w.cancel()
	}
	r.wg.Wait()
}

// Resume starts every sniper persisted as active that is not already running,
// logging in once per email first. Emails that cannot log in are skipped and
// keep their rows active. It returns the number of snipers started.
func (r *Registry) Resume(ctx context.Context) (int, error) {
	if r.isClosed() {
		return 0, ErrRegistryClosed
	}
	rows, err := r.qry.ListSnipersByStatus(ctx, db.SniperActive)
	if err != nil {
		r.tel.ReportBroken(report_registry_resume, err)
		return 0, err
	}

	pending := map[string][]db.Sniper{}
	emails := []string{}
	for _, row := range rows {
		if r.Running(row.Email, row.Date) {
			continue
		}
		if _, seen := pending[row.Email]; !seen {
			emails = append(emails, row.Email)
		}
		pending[row.Email] = append(pending[row.Email], row)
	}

	started := 0
	for _, email := range emails {
		err := r.engine.EnsureLoggedIn(ctx, email)
		if err != nil {
			r.tel.ReportWarning(report_registry_resume, err, email)
			r.activity(ctx, email, fmt.Sprintf("could not resume snipers: %s", err.Error()))
			continue
		}
		for _, row := range pending[email] {
			ok, err := r.Start(ctx, row.Email, row.Date, row.Plate)
			if errors.Is(err, ErrRegistryClosed) {
				return started, err
			}
			if err != nil {
				continue
			}
			if ok {
				started++
			}
		}
	}
	return started, nil
}

func (r *Registry) run(w *worker) {
	defer r.wg.Done()
	defer close(w.done)

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		}
		if !w.active.Load() {
			return
		}
		if r.tick(w) {
			return
		}
	}
}

// tick performs one attempt, it returns true once the worker is finished.
func (r *Registry) tick(w *worker) bool {
	account, err := r.qry.GetAccount(w.ctx, w.email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) && w.ctx.Err() == nil {
			r.tel.ReportBroken(report_worker_tick, fmt.Errorf("get account: %w", err), w.email)
		}
		return false
	}
	if account.LastCsrf == "" {
		r.tel.ReportDebug("no csrf token cached yet, skipping tick", w.email, w.date)
		return false
	}

	row, err := r.qry.GetSniper(w.ctx, db.GetSniperParams{Email: w.email, Date: w.date})
	if errors.Is(err, sql.ErrNoRows) || (err == nil && row.Status != db.SniperActive) {
		// stopped by another process
		if w.active.CompareAndSwap(true, false) {
			w.cancel()
			r.remove(w)
		}
		return true
	}
	if err != nil {
		if w.ctx.Err() == nil {
			r.tel.ReportBroken(report_worker_tick, fmt.Errorf("get sniper: %w", err), w.email)
		}
		return false
	}

	result, err := r.engine.Attempt(w.ctx, w.email, w.date, w.plate, account.LastCsrf)
	if !w.active.Load() {
		return true
	}
	if err != nil {
		r.tel.ReportWarning(report_worker_tick, err, w.email, w.date)
		if w.recordFailure(err.Error()) {
			r.activity(w.ctx, w.email, fmt.Sprintf("sniper for %s: %s", w.date, err.Error()))
		}
		return false
	}
	if result.Success || portal.IsAlreadyReserved(result.Message) {
		r.succeed(w, result)
		return true
	}

	message := result.Message
	if message == "" {
		message = "refused"
	}
	if w.recordFailure(message) {
		r.activity(w.ctx, w.email, fmt.Sprintf("sniper for %s is waiting: %s", w.date, message))
	}
	return false
}

func (r *Registry) succeed(w *worker, result reservation.Result) {
	if !w.active.CompareAndSwap(true, false) {
		return
	}
	ctx := context.WithoutCancel(w.ctx)
	w.cancel()
	r.remove(w)

	w.mutex.Lock()
	w.attempts++
	w.lastAttempt = time.Now()
	w.lastError = ""
	w.mutex.Unlock()

	r.markStopped(ctx, w.key)
	r.activity(ctx, w.email, fmt.Sprintf("sniper reserved %s (%s), lot %s", w.date, w.plate, result.LotID))
	r.tel.ReportDebug("succeeded", w.email, w.date, result.LotID)

	err := r.opts.Notifier.Reserved(ctx, notify.Reserved{
		Email: w.email,
		Date:  w.date,
		Plate: w.plate,
		LotID: result.LotID,
	})
	if err != nil {
		r.tel.ReportWarning(report_worker_succeed, err, w.email)
	}
}
