package engine

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type taskKind int

const (
	taskUnit taskKind = iota
	taskContinuation
	taskFollowUp
)

type task struct {
	id      string
	kind    taskKind
	unitKey string
	timer   Timer
}

// Registry is the set of scheduled, not yet fired tasks of one campaign.
// A task is consumed exactly once, either by Take when it fires or by
// CancelAll.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*task
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*task)}
}

// Schedule arms f to run after d and returns the task handle. The handle is
// registered before f can observe it.
func (r *Registry) Schedule(clock Clock, d time.Duration, kind taskKind, unitKey string, f func(id string)) string {
	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &task{id: id, kind: kind, unitKey: unitKey}
	t.timer = clock.AfterFunc(d, func() { f(id) })
	r.tasks[id] = t
	return id
}

// Take consumes the task. It returns false if the task was cancelled.
func (r *Registry) Take(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return false
	}
	delete(r.tasks, id)
	return true
}

// CancelAll stops every pending task and returns how many were cancelled.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.tasks)
	for id, t := range r.tasks {
		t.timer.Stop()
		delete(r.tasks, id)
	}
	return n
}

func (r *Registry) Count(kind taskKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tasks {
		if t.kind == kind {
			n++
		}
	}
	return n
}

// Reserved returns the unit keys that have a pending unit task.
func (r *Registry) Reserved() map[string]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make(map[string]struct{})
	for _, t := range r.tasks {
		if t.kind == taskUnit {
			keys[t.unitKey] = struct{}{}
		}
	}
	return keys
}

// IDs returns the pending handles in a stable order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
