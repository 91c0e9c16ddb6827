// Package autoseq drives extraction across a map results list: focus the
// next result, wait for its profile to load, extract, store and enrich it,
// then move on. Progress is persisted after every item so a run can resume.
package autoseq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/maps-harvest/internal/browser"
	"github.com/sells-group/maps-harvest/internal/enrich"
	"github.com/sells-group/maps-harvest/internal/model"
	"github.com/sells-group/maps-harvest/internal/records"
	"github.com/sells-group/maps-harvest/internal/store"
)

// State is the controller's run state.
type State string

const (
	Idle                State = "idle"
	Running             State = "running"
	AwaitingProfileLoad State = "awaitingProfileLoad"
	Stopped             State = "stopped"
)

// PollResult is the outcome of waiting for a focused profile.
type PollResult int

const (
	// PollPending means the profile was not confirmed because the run was
	// stopped while waiting.
	PollPending PollResult = iota
	PollReady
	PollExhausted
)

func (p PollResult) String() string {
	switch p {
	case PollReady:
		return "ready"
	case PollExhausted:
		return "exhausted"
	}
	return "pending"
}

// ErrAlreadyRunning is returned by Run while another run is active.
var ErrAlreadyRunning = eris.New("autoseq: already running")

// Page is the subset of the page channel the controller drives.
// *browser.Client satisfies it.
type Page interface {
	ClickNext(ctx context.Context, index int) (bool, error)
	CheckProfileLoaded(ctx context.Context) (bool, error)
	ExtractData(ctx context.Context) (model.BusinessRecord, error)
}

// Enricher fetches and mines a record's website. Report receives the
// outcome of every Enrich call the controller keeps.
type Enricher interface {
	Enrich(ctx context.Context, rec model.BusinessRecord) (model.EnrichmentResult, error)
	Report(ctx context.Context, rec model.BusinessRecord, err error)
}

// Timing holds the fixed delays of a run.
type Timing struct {
	PollInterval time.Duration
	MaxPolls     int
	Settle       time.Duration
	InterItem    time.Duration
}

// DefaultTiming returns the standard delays: poll every 500ms up to 24
// times, settle 3s after load, wait 4s between items.
func DefaultTiming() Timing {
	return Timing{
		PollInterval: 500 * time.Millisecond,
		MaxPolls:     24,
		Settle:       3 * time.Second,
		InterItem:    4 * time.Second,
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Status is a point-in-time snapshot of the controller.
type Status struct {
	State       State  `json:"state"`
	CursorIndex int    `json:"cursorIndex"`
	IsActive    bool   `json:"isActive"`
	Processed   int    `json:"processed"`
	Skipped     int    `json:"skipped"`
	Added       int    `json:"added"`
	Enriched    int    `json:"enriched"`
	LastError   string `json:"lastError,omitempty"`
}

// Controller runs the auto-sequence. Iterations are strictly sequential;
// Stop may be called from any goroutine.
type Controller struct {
	page     Page
	recs     *records.Store
	enricher Enricher
	kv       store.KV
	timing   Timing
	sleep    SleepFunc
	now      func() time.Time

	stop atomic.Bool

	mu      sync.Mutex
	running bool
	// armed marks a run claimed by Begin that Run has not entered yet.
	armed bool
	status  Status
}

// Option configures a Controller.
type Option func(*Controller)

// WithEnricher enables website enrichment of every accepted record.
func WithEnricher(e Enricher) Option {
	return func(c *Controller) { c.enricher = e }
}

// WithTiming overrides the default delays.
func WithTiming(t Timing) Option {
	return func(c *Controller) { c.timing = t }
}

// WithSleep replaces the wait function, letting tests run without delays.
func WithSleep(fn SleepFunc) Option {
	return func(c *Controller) { c.sleep = fn }
}

// WithClock overrides the time source for persisted state.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New creates an idle Controller. Call Load to pick up a saved cursor.
func New(page Page, recs *records.Store, kv store.KV, opts ...Option) *Controller {
	c := &Controller{
		page:   page,
		recs:   recs,
		kv:     kv,
		timing: DefaultTiming(),
		sleep:  sleepCtx,
		now:    time.Now,
		status: Status{State: Idle},
	}
	for _, o := range opts {
		o(c)
	}
	if c.timing.MaxPolls <= 0 {
		c.timing.MaxPolls = 1
	}
	return c
}

// Load restores the persisted cursor. A run interrupted without a clean stop
// is left inactive; the cursor is kept.
func (c *Controller) Load(ctx context.Context) error {
	var st model.SequenceState
	if _, err := store.GetJSON(ctx, c.kv, model.KeyAutoSequence, &st); err != nil {
		return eris.Wrap(err, "autoseq: load state")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.CursorIndex = max(st.CursorIndex, 0)
	c.status.IsActive = false
	return nil
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Stop asks the current run to halt. It is checked between steps and inside
// the readiness poll; in-flight calls complete and their results are
// discarded.
func (c *Controller) Stop() {
	c.stop.Store(true)
}

// Reset moves the cursor back to the first result. It fails while running.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.status.CursorIndex = 0
	c.mu.Unlock()
	return c.persist(ctx)
}

// Begin claims the controller for a Run started later, for callers that
// launch Run on another goroutine. It clears any earlier stop request, so a
// Stop issued after Begin halts that run even before Run is entered.
func (c *Controller) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}
	c.running = true
	c.armed = true
	c.stop.Store(false)
	return nil
}

// Run processes results from the saved cursor until the list ends, Stop is
// called, ctx is done or the page channel fails. When the cursor is not at
// the start, confirmRestart decides whether to begin again from zero; a nil
// confirmRestart continues. Run returns the channel error that ended the
// run, if any.
func (c *Controller) Run(ctx context.Context, confirmRestart func(cursor int) bool) error {
	c.mu.Lock()
	if c.running && !c.armed {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	if !c.armed {
		c.running = true
		c.stop.Store(false)
	}
	c.armed = false
	cursor := c.status.CursorIndex
	c.mu.Unlock()

	if cursor > 0 && confirmRestart != nil && confirmRestart(cursor) {
		cursor = 0
	}

	c.mu.Lock()
	c.status = Status{State: Running, CursorIndex: cursor, IsActive: true}
	c.mu.Unlock()
	log := zap.L().With(zap.String("component", "autoseq"))
	log.Info("autoseq: started", zap.Int("cursor", cursor))
	if err := c.persist(ctx); err != nil {
		log.Error("autoseq: persist state", zap.Error(err))
	}

	var runErr error
	for !c.halted(ctx) {
		more, err := c.step(ctx)
		if err != nil {
			runErr = err
			break
		}
		if !more {
			break
		}
	}

	c.mu.Lock()
	c.running = false
	c.status.State = Stopped
	c.status.IsActive = false
	if runErr != nil {
		c.status.LastError = runErr.Error()
	}
	final := c.status
	c.mu.Unlock()
	if err := c.persist(ctx); err != nil {
		log.Error("autoseq: persist state", zap.Error(err))
	}

	if runErr != nil {
		log.Error("autoseq: stopped on channel error", zap.Int("cursor", final.CursorIndex), zap.Error(runErr))
		return runErr
	}
	log.Info("autoseq: stopped",
		zap.Int("cursor", final.CursorIndex),
		zap.Int("processed", final.Processed),
		zap.Int("skipped", final.Skipped),
		zap.Int("added", final.Added),
		zap.Int("enriched", final.Enriched),
	)
	return nil
}

// step handles the item at the cursor. It reports whether the run should
// continue.
func (c *Controller) step(ctx context.Context) (bool, error) {
	log := zap.L().With(zap.String("component", "autoseq"))
	cursor := c.Status().CursorIndex

	found, err := c.page.ClickNext(ctx, cursor)
	if err != nil {
		return false, err
	}
	if !found {
		log.Info("autoseq: end of results", zap.Int("cursor", cursor))
		return false, nil
	}

	c.setState(AwaitingProfileLoad)
	res, err := c.awaitProfile(ctx)
	if err == nil {
		switch res {
		case PollReady:
			err = c.process(ctx, cursor)
		case PollExhausted:
			log.Warn("autoseq: profile never loaded, skipping", zap.Int("index", cursor))
			c.update(func(s *Status) { s.Skipped++ })
		}
	}

	c.advance(ctx)
	if err != nil {
		return false, err
	}
	if c.halted(ctx) {
		return false, nil
	}
	c.setState(Running)
	_ = c.sleep(ctx, c.timing.InterItem)
	return true, nil
}

// awaitProfile polls the page until the focused profile is showing.
func (c *Controller) awaitProfile(ctx context.Context) (PollResult, error) {
	for range c.timing.MaxPolls {
		_ = c.sleep(ctx, c.timing.PollInterval)
		if c.halted(ctx) {
			return PollPending, nil
		}
		loaded, err := c.page.CheckProfileLoaded(ctx)
		if err != nil {
			return PollPending, err
		}
		if loaded {
			return PollReady, nil
		}
	}
	return PollExhausted, nil
}

// process extracts the loaded profile, stores it and enriches it when it
// was accepted. Only channel errors are returned.
func (c *Controller) process(ctx context.Context, index int) error {
	log := zap.L().With(zap.String("component", "autoseq"), zap.Int("index", index))

	_ = c.sleep(ctx, c.timing.Settle)
	if c.halted(ctx) {
		return nil
	}
	rec, err := c.page.ExtractData(ctx)
	if err != nil {
		return err
	}
	if c.halted(ctx) {
		log.Debug("autoseq: discarding extraction after stop")
		return nil
	}
	c.update(func(s *Status) { s.Processed++ })

	rec.Sanitize()
	accepted, err := c.recs.Add(ctx, rec)
	switch {
	case errors.Is(err, records.ErrMissingName):
		log.Warn("autoseq: extracted record has no name", zap.Strings("missing", rec.MissingFields()))
		return nil
	case err != nil:
		log.Error("autoseq: add record", zap.String("name", rec.Name), zap.Error(err))
		return nil
	case !accepted:
		log.Info("autoseq: duplicate record", zap.String("name", rec.Name))
		return nil
	}
	c.update(func(s *Status) { s.Added++ })
	if missing := rec.MissingFields(); len(missing) > 0 {
		log.Debug("autoseq: incomplete record", zap.String("name", rec.Name), zap.Strings("missing", missing))
	}

	if c.enricher == nil {
		return nil
	}
	stored, ok := c.recs.Find(rec.Key())
	if !ok {
		return nil
	}
	c.enrich(ctx, stored)
	return nil
}

func (c *Controller) enrich(ctx context.Context, rec model.BusinessRecord) {
	log := zap.L().With(zap.String("component", "autoseq"), zap.String("name", rec.Name))

	res, err := c.enricher.Enrich(ctx, rec)
	if errors.Is(err, enrich.ErrNoWebsite) {
		log.Debug("autoseq: no website to enrich")
		return
	}
	if c.halted(ctx) {
		log.Debug("autoseq: discarding enrichment after stop")
		return
	}
	c.enricher.Report(ctx, rec, err)
	if err != nil {
		log.Warn("autoseq: enrichment failed", zap.Error(err))
		return
	}
	merged, err := c.recs.MergeEnrichmentByID(ctx, rec.ID, res)
	if err != nil {
		log.Error("autoseq: merge enrichment", zap.Error(err))
		return
	}
	if merged {
		c.update(func(s *Status) { s.Enriched++ })
	}
}

// advance moves the cursor past the current item and persists it.
func (c *Controller) advance(ctx context.Context) {
	c.update(func(s *Status) { s.CursorIndex++ })
	if err := c.persist(ctx); err != nil {
		zap.L().Error("autoseq: persist state", zap.String("component", "autoseq"), zap.Error(err))
	}
}

func (c *Controller) persist(ctx context.Context) error {
	st := c.Status()
	return store.SetJSON(context.WithoutCancel(ctx), c.kv, model.KeyAutoSequence, model.SequenceState{
		CursorIndex: st.CursorIndex,
		IsActive:    st.IsActive,
		UpdatedAt:   c.now().UTC(),
	})
}

func (c *Controller) halted(ctx context.Context) bool {
	return c.stop.Load() || ctx.Err() != nil
}

func (c *Controller) setState(s State) {
	c.update(func(st *Status) { st.State = s })
}

func (c *Controller) update(fn func(*Status)) {
	c.mu.Lock()
	fn(&c.status)
	c.mu.Unlock()
}

var _ Page = (*browser.Client)(nil)

var _ Enricher = (*enrich.Coordinator)(nil)
