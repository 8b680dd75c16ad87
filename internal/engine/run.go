package engine

import (
	"context"
	"sync"
	"time"

	"github.com/unclebandit/outreach-backend/internal/logger"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDispatching Phase = "dispatching"
	PhaseCapReached  Phase = "cap_reached"
	PhaseWaiting     Phase = "waiting"
	PhaseCompleted   Phase = "completed"
	PhaseStopped     Phase = "stopped"
	PhaseHalted      Phase = "halted"
)

const (
	storeTimeout = 10 * time.Second
	callTimeout  = 60 * time.Second
)

// run is the actor that owns one campaign's state. Every method without a
// lock runs on the actor goroutine only.
type run struct {
	e     *Engine
	id    string
	log   logger.Logger
	box   *mailbox
	tasks *Registry
	done  chan struct{}

	detail    *model.CampaignDetail
	state     *model.CampaignState
	executing map[string]struct{}

	phaseMu sync.RWMutex
	phase   Phase
}

func newRun(e *Engine, detail *model.CampaignDetail, state *model.CampaignState) *run {
	return &run{
		e:         e,
		id:        detail.CampaignID,
		log:       e.log.With(logger.String("campaign_id", detail.CampaignID)),
		box:       newMailbox(),
		tasks:     NewRegistry(),
		done:      make(chan struct{}),
		detail:    detail,
		state:     state,
		executing: make(map[string]struct{}),
		phase:     PhaseIdle,
	}
}

func (r *run) Phase() Phase {
	r.phaseMu.RLock()
	defer r.phaseMu.RUnlock()
	return r.phase
}

func (r *run) setPhase(p Phase) {
	r.phaseMu.Lock()
	r.phase = p
	r.phaseMu.Unlock()
}

func (r *run) loop() {
	defer r.e.finish(r)

	var renew <-chan time.Time
	if r.e.lease != nil {
		t := time.NewTicker(r.e.cfg.LeaseTTL / 2)
		defer t.Stop()
		renew = t.C
	}

	for {
		select {
		case <-r.box.signal:
			for _, fn := range r.box.drain() {
				fn()
			}
			if r.finished() && r.e.retire(r) {
				return
			}
		case <-renew:
			r.extendLease()
		}
	}
}

// finished reports whether the actor has nothing left to own. Follow-up
// tasks of a completed run keep running on their own.
func (r *run) finished() bool {
	switch r.Phase() {
	case PhaseCompleted, PhaseStopped, PhaseHalted:
	default:
		return false
	}
	return len(r.executing) == 0 &&
		r.tasks.Count(taskUnit) == 0 &&
		r.tasks.Count(taskContinuation) == 0
}

func (r *run) begin() {
	r.state.IsRunning = true
	r.state.PendingTaskHandles = []string{}
	r.log.Info("campaign started", logger.String("type", string(r.detail.Type)))
	r.publish(model.EventStarted)
	r.evaluate()
}

// resume restarts the pass from persisted progress with a fresh detail.
func (r *run) resume(detail *model.CampaignDetail) {
	n := r.tasks.CancelAll()
	r.state.PendingTaskHandles = []string{}
	r.state.IsRunning = true
	r.detail = detail
	r.log.Info("resuming campaign", logger.Int("cancelled_tasks", n))
	r.publish(model.EventStarted)
	r.evaluate()
}

func (r *run) stop() bool {
	wasRunning := r.state.IsRunning
	n := r.tasks.CancelAll()
	r.state.PendingTaskHandles = []string{}
	r.state.IsRunning = false
	r.setPhase(PhaseStopped)
	r.persist()
	r.publish(model.EventStopped)
	r.log.Info("campaign stopped", logger.Int("cancelled_tasks", n), logger.Int("in_flight", len(r.executing)))
	return wasRunning
}

// halt drops every pending task but leaves the campaign marked running so
// the next process recovers it. A run that lost its lease must not write.
func (r *run) halt(persist bool) {
	n := r.tasks.CancelAll()
	r.state.PendingTaskHandles = []string{}
	r.setPhase(PhaseHalted)
	if persist {
		r.persist()
	}
	r.log.Info("campaign halted", logger.Int("cancelled_tasks", n))
}

func (r *run) evaluate() {
	r.setPhase(PhaseDispatching)
	if r.e.governor.Roll(r.state, r.e.clock.Now()) {
		r.log.Info("window elapsed, request counter reset")
	}

	remaining := Remaining(unitsOf(r.detail), r.state.Processed(r.detail.Type), r.reservedKeys())
	batches := Partition(remaining, r.e.cfg.BatchSize)
	r.log.Info("evaluating campaign",
		logger.Int("remaining", len(remaining)),
		logger.Int("batches", len(batches)),
		logger.Int("requests_sent_today", r.state.RequestsSentToday))

	for _, batch := range batches {
		for _, u := range batch {
			if !r.e.governor.Allow(r.state.RequestsSentToday, r.reserved()) {
				r.capReached()
				return
			}
			r.dispatch(u)
		}
		r.persist()
	}
	if len(batches) == 0 {
		r.persist()
	}
	if r.idle() {
		r.settle()
	}
}

func (r *run) reservedKeys() map[string]struct{} {
	keys := r.tasks.Reserved()
	for k := range r.executing {
		keys[k] = struct{}{}
	}
	return keys
}

// reserved counts units that will increment the counter but have not yet.
func (r *run) reserved() int {
	return r.tasks.Count(taskUnit) + len(r.executing)
}

func (r *run) idle() bool {
	return r.tasks.Count(taskUnit) == 0 && len(r.executing) == 0
}

func (r *run) dispatch(u Unit) {
	if u.Post != nil && !u.Post.Approved() {
		r.log.Debug("comment is not approved yet", logger.String("post_id", u.Post.PostID))
		return
	}

	delay := r.e.jitter(r.e.cfg.MaxJitter)
	id := r.tasks.Schedule(r.e.clock, delay, taskUnit, u.Key, func(id string) {
		r.box.post(func() { r.fire(id, u) })
	})

	if u.Post != nil {
		at := r.e.clock.Now().Add(delay)
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := r.e.campaigns.UpdatePostStatus(ctx, r.id, u.Post.ID, model.ScheduledAtStatus(at), &at); err != nil {
			r.log.Error("failed to mark post as scheduled", logger.String("post_id", u.Post.PostID), logger.Error(err))
		}
	}
	r.log.Debug("unit scheduled", logger.String("task_id", id), logger.String("unit", u.Key), logger.Duration("delay", delay))
}

func (r *run) fire(id string, u Unit) {
	if !r.tasks.Take(id) {
		return
	}
	r.executing[u.Key] = struct{}{}
	detail := r.detail

	r.e.inflight.Add(1)
	go func() {
		defer r.e.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		res := r.e.dispatcher.Execute(ctx, detail, u)
		r.box.post(func() { r.complete(u, res) })
	}()
}

func (r *run) complete(u Unit, res Result) {
	delete(r.executing, u.Key)
	r.e.metrics.UnitDone(r.detail.Type, outcome(res))
	r.state.RequestsSentToday++
	r.state.MarkProcessed(u.campaignType(), u.Key)
	r.persist()

	phase := r.Phase()
	if res.FollowUp != nil && phase != PhaseStopped && phase != PhaseHalted {
		r.scheduleFollowUp(*res.FollowUp)
	}
	if phase == PhaseDispatching && r.idle() {
		r.settle()
	}
}

func (r *run) scheduleFollowUp(f FollowUp) {
	id := r.tasks.Schedule(r.e.clock, f.Delay, taskFollowUp, "", func(id string) {
		if !r.tasks.Take(id) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		err := r.e.dispatcher.SendFollowUp(ctx, f)
		r.e.metrics.FollowUpDone(err == nil)
	})
	r.log.Debug("follow-up scheduled", logger.String("task_id", id), logger.String("user_id", f.UserID), logger.Duration("delay", f.Delay))
}

func (r *run) capReached() {
	r.setPhase(PhaseCapReached)
	r.tasks.Schedule(r.e.clock, r.e.cfg.Window, taskContinuation, "", func(id string) {
		r.box.post(func() { r.continueAfterCap(id) })
	})
	r.persist()
	r.publish(model.EventCapReached)
	r.log.Info("request cap reached, continuing after window",
		logger.Int("requests_sent_today", r.state.RequestsSentToday),
		logger.Duration("window", r.e.cfg.Window))
}

func (r *run) continueAfterCap(id string) {
	if !r.tasks.Take(id) {
		return
	}
	r.e.governor.Reset(r.state, r.e.clock.Now())
	r.evaluate()
}

// settle closes a drained pass: Completed when nothing is left, otherwise a
// rerun one window later.
func (r *run) settle() {
	if len(Remaining(unitsOf(r.detail), r.state.Processed(r.detail.Type), nil)) == 0 {
		r.setPhase(PhaseCompleted)
		r.state.IsRunning = false
		r.persist()
		r.publish(model.EventCompleted)
		r.log.Info("all batches are processed")
		return
	}

	r.setPhase(PhaseWaiting)
	r.tasks.Schedule(r.e.clock, r.e.cfg.Window, taskContinuation, "", func(id string) {
		r.box.post(func() { r.rerun(id) })
	})
	r.persist()
	r.log.Info("pass drained with work remaining, rerun scheduled", logger.Duration("window", r.e.cfg.Window))
}

func (r *run) rerun(id string) {
	if !r.tasks.Take(id) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	fresh, err := r.e.campaigns.LoadDetail(ctx, r.id)
	if err != nil {
		r.log.Warn("could not refresh campaign detail, reusing snapshot", logger.Error(err))
	} else {
		fresh.AccountID = r.detail.AccountID
		r.detail = fresh
	}
	r.evaluate()
}

func (r *run) persist() {
	r.state.PendingTaskHandles = r.tasks.IDs()
	r.state.UpdatedAt = r.e.clock.Now()
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := r.e.states.Save(ctx, r.state.Clone()); err != nil {
		r.log.Error("failed to save campaign state", logger.Error(err))
	}
}

func outcome(res Result) string {
	switch {
	case !res.Called:
		return OutcomeSkipped
	case res.Err != nil:
		return OutcomeFailed
	default:
		return OutcomeSent
	}
}

func (r *run) publish(eventType string) {
	r.e.metrics.Lifecycle(eventType)
	if r.e.events == nil {
		return
	}
	evt := model.CampaignEvent{
		Type:              eventType,
		CampaignID:        r.id,
		AccountID:         r.state.AccountID,
		CampaignType:      r.detail.Type,
		RequestsSentToday: r.state.RequestsSentToday,
		Processed:         len(r.state.Processed(r.detail.Type)),
		At:                r.e.clock.Now(),
	}
	if err := r.e.events.Publish(r.e.cfg.Topic, evt); err != nil {
		r.log.Warn("failed to publish campaign event", logger.String("event", eventType), logger.Error(err))
	}
}

func (r *run) extendLease() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	held, err := r.e.lease.Extend(ctx, leaseKey(r.id))
	switch {
	case err != nil:
		r.log.Warn("failed to extend campaign lease", logger.Error(err))
	case !held:
		r.log.Error("campaign lease lost, halting run")
		r.halt(false)
	}
}
