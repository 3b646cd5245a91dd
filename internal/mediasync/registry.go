package mediasync

import (
	"context"
	"sync"

	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
)

// SaveState is the externally visible lifecycle of a registered save.
type SaveState string

const (
	SaveRunning   SaveState = "running"
	SaveSucceeded SaveState = "succeeded"
	SaveFailed    SaveState = "failed"
	SaveCanceled  SaveState = "canceled"
)

// ProgressUpdate is one progress event streamed to subscribers.
type ProgressUpdate struct {
	SaveID  string    `json:"saveId"`
	Percent float64   `json:"percent"`
	State   SaveState `json:"state"`
	Error   string    `json:"error,omitempty"`
}

// Registry tracks in-flight saves so transport handlers can stream progress
// and cancel a running save by ID.
type Registry struct {
	mu    sync.Mutex
	saves map[string]*saveEntry
}

type saveEntry struct {
	cancel  context.CancelFunc
	last    ProgressUpdate
	subs    map[chan ProgressUpdate]struct{}
	settled bool
}

func NewRegistry() *Registry {
	return &Registry{saves: make(map[string]*saveEntry)}
}

// Handle is the running save's side of the registry: the derived context,
// a progress sink, and a finisher.
type Handle struct {
	Ctx      context.Context
	registry *Registry
	id       string
}

// Begin registers a save and returns its handle. The caller must invoke
// Finish exactly once.
func (r *Registry) Begin(parent context.Context, saveID string) (*Handle, error) {
	if saveID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "save id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.saves[saveID]; exists {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "save already in progress")
	}

	ctx, cancel := context.WithCancel(parent)
	r.saves[saveID] = &saveEntry{
		cancel: cancel,
		last:   ProgressUpdate{SaveID: saveID, State: SaveRunning},
		subs:   make(map[chan ProgressUpdate]struct{}),
	}
	return &Handle{Ctx: ctx, registry: r, id: saveID}, nil
}

// Progress publishes the current aggregate percentage to all subscribers.
func (h *Handle) Progress(percent float64) {
	h.registry.publish(h.id, func(entry *saveEntry) {
		entry.last.Percent = percent
	})
}

// Finish settles the save with a terminal state derived from err, broadcasts
// the final update, and closes all subscriber channels.
func (h *Handle) Finish(err error) {
	h.registry.mu.Lock()
	entry, ok := h.registry.saves[h.id]
	if !ok || entry.settled {
		h.registry.mu.Unlock()
		return
	}
	entry.settled = true
	switch {
	case err == nil:
		entry.last.State = SaveSucceeded
		entry.last.Percent = 100
	case pkgerrors.IsCode(err, pkgerrors.CodeCanceled):
		entry.last.State = SaveCanceled
		entry.last.Error = err.Error()
	default:
		entry.last.State = SaveFailed
		entry.last.Error = err.Error()
	}
	final := entry.last
	subs := entry.subs
	entry.subs = make(map[chan ProgressUpdate]struct{})
	delete(h.registry.saves, h.id)
	h.registry.mu.Unlock()

	entry.cancel()
	for ch := range subs {
		select {
		case ch <- final:
		default:
		}
		close(ch)
	}
}

func (r *Registry) publish(saveID string, mutate func(*saveEntry)) {
	r.mu.Lock()
	entry, ok := r.saves[saveID]
	if !ok || entry.settled {
		r.mu.Unlock()
		return
	}
	mutate(entry)
	update := entry.last
	var targets []chan ProgressUpdate
	for ch := range entry.subs {
		targets = append(targets, ch)
	}
	r.mu.Unlock()

	for _, ch := range targets {
		// Slow subscribers drop intermediate updates rather than stall the save.
		select {
		case ch <- update:
		default:
		}
	}
}

// Subscribe returns a channel of progress updates for a running save plus an
// unsubscribe func. The channel closes when the save settles; an unsubscribed
// channel is merely detached and left to the collector.
func (r *Registry) Subscribe(saveID string) (<-chan ProgressUpdate, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.saves[saveID]
	if !ok {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "no save in progress with that id")
	}

	ch := make(chan ProgressUpdate, 16)
	ch <- entry.last
	entry.subs[ch] = struct{}{}

	// Only Finish closes subscriber channels. publish sends outside the
	// lock, so closing here would race it.
	unsubscribe := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if current, stillThere := r.saves[saveID]; stillThere {
			delete(current.subs, ch)
		}
	}
	return ch, unsubscribe, nil
}

// Cancel aborts a running save. The save settles as canceled through its
// handle once the upload loop observes the context.
func (r *Registry) Cancel(saveID string) error {
	r.mu.Lock()
	entry, ok := r.saves[saveID]
	r.mu.Unlock()
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no save in progress with that id")
	}
	entry.cancel()
	return nil
}
