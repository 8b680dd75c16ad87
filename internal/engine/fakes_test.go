package engine

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// fakeClock only moves when Advance is called. Due callbacks run on the
// caller's goroutine in due order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	fired   bool
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.fired || t.stopped || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.f()
	}
}

// Pending counts timers that are neither fired nor stopped.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

type memStates struct {
	mu      sync.Mutex
	states  map[string]*model.CampaignState
	saves   int
	saveErr error
}

func newMemStates(seed ...*model.CampaignState) *memStates {
	m := &memStates{states: make(map[string]*model.CampaignState)}
	for _, s := range seed {
		m.states[s.CampaignID] = s.Clone()
	}
	return m
}

func (m *memStates) Find(_ context.Context, id string) (*model.CampaignState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	if !ok {
		return nil, appErrors.ErrStateNotFound
	}
	return s.Clone(), nil
}

func (m *memStates) ListRunning(context.Context) ([]*model.CampaignState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CampaignState
	for _, s := range m.states {
		if s.IsRunning {
			out = append(out, s.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *model.CampaignState) int {
		switch {
		case a.CampaignID < b.CampaignID:
			return -1
		case a.CampaignID > b.CampaignID:
			return 1
		}
		return 0
	})
	return out, nil
}

func (m *memStates) Create(_ context.Context, s *model.CampaignState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[s.CampaignID]; ok {
		return errors.New("duplicate campaign state")
	}
	m.states[s.CampaignID] = s.Clone()
	return nil
}

func (m *memStates) Save(_ context.Context, s *model.CampaignState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.states[s.CampaignID] = s.Clone()
	return nil
}

func (m *memStates) get(id string) *model.CampaignState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	if !ok {
		return nil
	}
	return s.Clone()
}

type memCampaigns struct {
	mu      sync.Mutex
	details map[string]*model.CampaignDetail
	toggled map[string]bool
	status  map[string]string
	sent    map[string]bool
}

func newMemCampaigns(details ...*model.CampaignDetail) *memCampaigns {
	m := &memCampaigns{
		details: make(map[string]*model.CampaignDetail),
		toggled: make(map[string]bool),
		status:  make(map[string]string),
		sent:    make(map[string]bool),
	}
	for _, d := range details {
		m.details[d.CampaignID] = copyDetail(d)
	}
	return m
}

func copyDetail(d *model.CampaignDetail) *model.CampaignDetail {
	c := *d
	c.Users = slices.Clone(d.Users)
	c.Posts = slices.Clone(d.Posts)
	return &c
}

func (m *memCampaigns) LoadDetail(_ context.Context, id string) (*model.CampaignDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.details[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return copyDetail(d), nil
}

func (m *memCampaigns) SetToggled(_ context.Context, _ model.CampaignType, id string, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.details[id]; !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	m.toggled[id] = on
	return nil
}

func (m *memCampaigns) UpdatePostStatus(_ context.Context, _ string, postID, status string, _ *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[postID] = status
	return nil
}

func (m *memCampaigns) MarkUserSent(_ context.Context, _ string, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[userID] = true
	return nil
}

func (m *memCampaigns) postStatus(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status[id]
}

func (m *memCampaigns) userSent(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[id]
}

func (m *memCampaigns) isToggled(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.toggled[id]
}

func (m *memCampaigns) approve(campaignID, postID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.details[campaignID]
	for i := range d.Posts {
		if d.Posts[i].ID == postID {
			d.Posts[i].Action = model.ActionApproved
		}
	}
}

type call struct {
	kind    string
	account string
	target  string
	text    string
}

type fakeActions struct {
	mu      sync.Mutex
	calls   []call
	fail    map[string]bool
	block   chan struct{}
	started int
}

func newFakeActions() *fakeActions {
	return &fakeActions{fail: make(map[string]bool)}
}

func (a *fakeActions) record(kind, account, target, text string) error {
	a.mu.Lock()
	a.started++
	block := a.block
	a.mu.Unlock()
	if block != nil {
		<-block
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call{kind: kind, account: account, target: target, text: text})
	if a.fail[target] {
		return errors.New("action service returned 500")
	}
	return nil
}

func (a *fakeActions) PostComment(_ context.Context, account, postID, text string) error {
	return a.record("comment", account, postID, text)
}

func (a *fakeActions) SendConnectionRequest(_ context.Context, account, identifier, message string) error {
	return a.record("connect", account, identifier, message)
}

func (a *fakeActions) SendDM(_ context.Context, account, identifier, text string) error {
	return a.record("dm", account, identifier, text)
}

func (a *fakeActions) count(kind string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

func (a *fakeActions) targets(kind string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, c := range a.calls {
		if c.kind == kind {
			out = append(out, c.target)
		}
	}
	return out
}

func (a *fakeActions) startedCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.CampaignEvent
}

func (p *recordingPublisher) Publish(topic string, payload any) error {
	if topic != EventsTopic {
		return errors.New("unexpected topic " + topic)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, payload.(model.CampaignEvent))
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeLease struct {
	mu       sync.Mutex
	held     map[string]bool
	deny     bool
	released []string
}

func (l *fakeLease) Acquire(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deny || l.held[key] {
		return false, nil
	}
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLease) Extend(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key], nil
}

func (l *fakeLease) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	l.released = append(l.released, key)
	return nil
}

func (l *fakeLease) releasedKeys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.released)
}

// gatedLease parks Acquire (or Release) calls for one key until open is
// called.
type gatedLease struct {
	Lease
	key     string
	acquire bool
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newGatedLease(inner Lease, key string, acquire bool) *gatedLease {
	return &gatedLease{
		Lease:   inner,
		key:     key,
		acquire: acquire,
		entered: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
}

func (l *gatedLease) open() { l.once.Do(func() { close(l.gate) }) }

func (l *gatedLease) park(key string) {
	if key != l.key {
		return
	}
	select {
	case l.entered <- struct{}{}:
	default:
	}
	<-l.gate
}

func (l *gatedLease) Acquire(ctx context.Context, key string) (bool, error) {
	if l.acquire {
		l.park(key)
	}
	return l.Lease.Acquire(ctx, key)
}

func (l *gatedLease) Release(ctx context.Context, key string) error {
	if !l.acquire {
		l.park(key)
	}
	return l.Lease.Release(ctx, key)
}

type fakeMetrics struct {
	mu        sync.Mutex
	units     map[string]int
	followUps map[bool]int
	events    []string
	active    []int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{units: map[string]int{}, followUps: map[bool]int{}}
}

func (m *fakeMetrics) UnitDone(t model.CampaignType, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units[string(t)+"/"+outcome]++
}

func (m *fakeMetrics) FollowUpDone(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.followUps[ok]++
}

func (m *fakeMetrics) Lifecycle(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *fakeMetrics) ActiveRuns(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = append(m.active, n)
}

func (m *fakeMetrics) snapshot() (map[string]int, map[bool]int, []string, []int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.units), maps.Clone(m.followUps), slices.Clone(m.events), slices.Clone(m.active)
}
