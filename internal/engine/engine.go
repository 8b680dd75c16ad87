// Package engine runs outreach campaigns: it turns a campaign's target list
// into a throttled, jittered sequence of external actions and persists
// progress so a run can be resumed after a restart.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/logger"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// EventsTopic is the default topic lifecycle events are published on.
const EventsTopic = "campaign_events"

// Config tunes throttling and lease timing of every run.
type Config struct {
	DailyCap  int
	BatchSize int
	Window    time.Duration
	MaxJitter time.Duration
	LeaseTTL  time.Duration
	Topic     string
}

func (c *Config) setDefaults() {
	if c.DailyCap <= 0 {
		c.DailyCap = 25
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 25
	}
	if c.Window <= 0 {
		c.Window = 5 * time.Minute
	}
	if c.MaxJitter < 0 {
		c.MaxJitter = 0
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = time.Minute
	}
	if c.Topic == "" {
		c.Topic = EventsTopic
	}
}

// Engine owns one run loop per active campaign.
type Engine struct {
	cfg        Config
	states     StateStore
	campaigns  CampaignStore
	dispatcher *Dispatcher
	governor   Governor
	events     Publisher
	lease      Lease
	metrics    Metrics
	clock      Clock
	jitter     func(max time.Duration) time.Duration
	log        logger.Logger

	mu       sync.Mutex
	runs     map[string]*run
	final    map[string]Phase
	pending  map[string]chan struct{}
	closed   bool
	inflight sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sets where lifecycle events go.
func WithPublisher(p Publisher) Option { return func(e *Engine) { e.events = p } }

// WithLease makes runs hold a cross-process lease per campaign.
func WithLease(l Lease) Option { return func(e *Engine) { e.lease = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option { return func(e *Engine) { e.log = l } }

// WithJitter replaces the uniform per-unit delay.
func WithJitter(f func(max time.Duration) time.Duration) Option {
	return func(e *Engine) { e.jitter = f }
}

// New creates an engine with no running campaigns.
func New(cfg Config, states StateStore, campaigns CampaignStore, actions ActionService, opts ...Option) *Engine {
	cfg.setDefaults()
	e := &Engine{
		cfg:       cfg,
		states:    states,
		campaigns: campaigns,
		governor:  Governor{Cap: cfg.DailyCap, Window: cfg.Window},
		metrics:   nopMetrics{},
		clock:     realClock{},
		jitter:    uniformJitter,
		log:       logger.NewNop(),
		runs:      make(map[string]*run),
		final:     make(map[string]Phase),
		pending:   make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.dispatcher = &Dispatcher{Actions: actions, Campaigns: campaigns, Log: e.log}
	return e
}

func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max) + 1))
}

func leaseKey(campaignID string) string {
	return "campaign-run:" + campaignID
}

func validateStart(t model.CampaignType, d *model.CampaignDetail) error {
	if !t.Valid() {
		return appErrors.Invalid("unknown campaign type %q", t)
	}
	if d == nil {
		return appErrors.Invalid("campaign detail is required")
	}
	if strings.TrimSpace(d.CampaignID) == "" {
		return appErrors.Invalid("campaign id is required")
	}
	if strings.TrimSpace(d.AccountID) == "" {
		return appErrors.Invalid("account id is required")
	}
	return nil
}

// Start begins or resumes a campaign. When it returns nil the first pass has
// been evaluated and its tasks are scheduled.
func (e *Engine) Start(ctx context.Context, t model.CampaignType, detail *model.CampaignDetail) error {
	if err := validateStart(t, detail); err != nil {
		return err
	}
	d := *detail
	d.Type = t

	if err := e.campaigns.SetToggled(ctx, t, d.CampaignID, true); err != nil {
		e.log.Warn("failed to toggle campaign on", logger.String("campaign_id", d.CampaignID), logger.Error(err))
	}
	return e.launch(ctx, &d)
}

func (e *Engine) launch(ctx context.Context, d *model.CampaignDetail) error {
	reply := make(chan struct{}, 1)

	if err := e.lockSettled(ctx, d.CampaignID); err != nil {
		return err
	}
	if e.closed {
		e.mu.Unlock()
		return appErrors.ErrEngineClosed
	}
	if r, ok := e.runs[d.CampaignID]; ok {
		posted := r.box.post(func() {
			r.resume(d)
			reply <- struct{}{}
		})
		if posted {
			e.mu.Unlock()
			return wait(ctx, reply)
		}
	}
	starting := make(chan struct{})
	e.pending[d.CampaignID] = starting
	e.mu.Unlock()

	state, err := e.prepare(ctx, d)

	e.mu.Lock()
	delete(e.pending, d.CampaignID)
	close(starting)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if e.closed {
		e.mu.Unlock()
		e.releaseKey(d.CampaignID)
		return appErrors.ErrEngineClosed
	}

	r := newRun(e, d, state)
	e.runs[d.CampaignID] = r
	delete(e.final, d.CampaignID)
	e.metrics.ActiveRuns(len(e.runs))
	r.box.post(func() {
		r.begin()
		reply <- struct{}{}
	})
	e.mu.Unlock()

	go r.loop()
	return wait(ctx, reply)
}

// prepare loads or creates the persisted state of a campaign about to get a
// run loop and takes its lease. It runs without e.mu held.
func (e *Engine) prepare(ctx context.Context, d *model.CampaignDetail) (*model.CampaignState, error) {
	log := e.log.With(logger.String("campaign_id", d.CampaignID))

	state, err := e.states.Find(ctx, d.CampaignID)
	created := false
	switch {
	case errors.Is(err, appErrors.ErrStateNotFound):
		state = model.NewCampaignState(d.CampaignID, d.AccountID, e.clock.Now())
		created = true
	case err != nil:
		return nil, fmt.Errorf("find campaign state: %w", err)
	}

	if e.lease != nil {
		held, err := e.lease.Acquire(ctx, leaseKey(d.CampaignID))
		if err != nil {
			return nil, fmt.Errorf("acquire campaign lease: %w", err)
		}
		if !held {
			return nil, appErrors.ErrCampaignBusy
		}
	}

	if created {
		if err := e.states.Create(ctx, state); err != nil {
			e.releaseKey(d.CampaignID)
			return nil, fmt.Errorf("create campaign state: %w", err)
		}
		log.Info("campaign state created")
	} else {
		log.Info("campaign state found, resuming from persisted progress",
			logger.Int("processed", len(state.Processed(d.Type))))
	}
	return state, nil
}

// lockSettled waits until no run of the campaign is starting or retiring and
// returns with e.mu held.
func (e *Engine) lockSettled(ctx context.Context, campaignID string) error {
	for {
		e.mu.Lock()
		busy, ok := e.pending[campaignID]
		if !ok {
			return nil
		}
		e.mu.Unlock()
		if err := wait(ctx, busy); err != nil {
			return err
		}
	}
}

func wait[T any](ctx context.Context, reply <-chan T) error {
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels every pending task of a campaign and marks it not running.
// Calls already in flight complete and are still recorded. The returned bool
// reports whether the campaign was running.
func (e *Engine) Stop(ctx context.Context, campaignID string, t model.CampaignType) (bool, error) {
	if strings.TrimSpace(campaignID) == "" {
		return false, appErrors.Invalid("campaign id is required")
	}
	if !t.Valid() {
		return false, appErrors.Invalid("unknown campaign type %q", t)
	}
	log := e.log.With(logger.String("campaign_id", campaignID))

	if err := e.campaigns.SetToggled(ctx, t, campaignID, false); err != nil {
		if appErrors.IsCampaignNotFound(err) {
			return false, err
		}
		log.Warn("failed to toggle campaign off", logger.Error(err))
	}

	reply := make(chan bool, 1)
	if err := e.lockSettled(ctx, campaignID); err != nil {
		return false, err
	}
	r, ok := e.runs[campaignID]
	posted := ok && r.box.post(func() { reply <- r.stop() })
	e.mu.Unlock()

	if posted {
		select {
		case wasRunning := <-reply:
			return wasRunning, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	state, err := e.states.Find(ctx, campaignID)
	if errors.Is(err, appErrors.ErrStateNotFound) {
		log.Info("campaign is not running")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find campaign state: %w", err)
	}
	if !state.IsRunning {
		log.Info("campaign is not running")
		return false, nil
	}

	state.IsRunning = false
	state.PendingTaskHandles = []string{}
	state.UpdatedAt = e.clock.Now()
	if err := e.states.Save(ctx, state); err != nil {
		return false, fmt.Errorf("save campaign state: %w", err)
	}
	log.Info("campaign stopped without an active run loop")
	return true, nil
}

// RecoverAll restarts every campaign whose persisted state is running. A
// campaign whose detail cannot be loaded is logged and skipped.
func (e *Engine) RecoverAll(ctx context.Context) (int, error) {
	e.log.Info("attempting to restart all running campaigns")

	states, err := e.states.ListRunning(ctx)
	if err != nil {
		return 0, fmt.Errorf("list running campaign states: %w", err)
	}

	recovered := 0
	for _, s := range states {
		log := e.log.With(logger.String("campaign_id", s.CampaignID))

		detail, err := e.campaigns.LoadDetail(ctx, s.CampaignID)
		if err != nil {
			if appErrors.IsCampaignNotFound(err) {
				log.Warn("no campaign details found, skipping recovery")
			} else {
				log.Error("failed to load campaign details", logger.Error(err))
			}
			continue
		}
		detail.AccountID = s.AccountID

		if err := e.launch(ctx, detail); err != nil {
			log.Error("failed to restart campaign", logger.Error(err))
			continue
		}
		recovered++
	}
	e.log.Info("campaign recovery finished", logger.Int("running", len(states)), logger.Int("recovered", recovered))
	return recovered, nil
}

// Phase reports the run-loop phase of a campaign in this process. A retired
// run reports the phase it finished in.
func (e *Engine) Phase(campaignID string) Phase {
	e.mu.Lock()
	r, ok := e.runs[campaignID]
	final, retired := e.final[campaignID]
	e.mu.Unlock()
	switch {
	case ok:
		return r.Phase()
	case retired:
		return final
	default:
		return PhaseIdle
	}
}

// Shutdown halts every run loop without marking campaigns stopped and waits
// for in-flight external calls. Start fails afterwards.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	halting := make([]*run, 0, len(e.runs))
	for _, r := range e.runs {
		if r.box.post(func() { r.halt(true) }) {
			halting = append(halting, r)
		}
	}
	e.mu.Unlock()

	e.log.Info("halting campaign run loops", logger.Int("runs", len(halting)))
	for _, r := range halting {
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	drained := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retire removes a finished run. It fails if messages arrived meanwhile.
func (e *Engine) retire(r *run) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !r.box.closeIfEmpty() {
		return false
	}
	if e.runs[r.id] == r {
		delete(e.runs, r.id)
		e.final[r.id] = r.Phase()
		e.pending[r.id] = r.done
		e.metrics.ActiveRuns(len(e.runs))
	}
	return true
}

// finish releases the lease of an exited run loop. A Start or Stop for the
// same campaign waits on r.done, so the release cannot land on a newer run.
func (e *Engine) finish(r *run) {
	e.releaseKey(r.id)
	e.mu.Lock()
	if e.pending[r.id] == r.done {
		delete(e.pending, r.id)
	}
	e.mu.Unlock()
	close(r.done)
}

func (e *Engine) releaseKey(campaignID string) {
	if e.lease == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := e.lease.Release(ctx, leaseKey(campaignID)); err != nil {
		e.log.Warn("failed to release campaign lease", logger.String("campaign_id", campaignID), logger.Error(err))
	}
}
