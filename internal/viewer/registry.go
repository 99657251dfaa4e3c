package viewer

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/gaitlog/internal/domain/types"
	"github.com/okian/gaitlog/pkg/logger"
)

// RowState is the selection state of one listed session.
type RowState int

// Row states. A row only moves Inactive -> Loading -> Active -> Inactive;
// toggling a Loading row cancels the fetch and returns it to Inactive.
const (
	Inactive RowState = iota
	Loading
	Active
)

func (s RowState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Active:
		return "active"
	default:
		return "inactive"
	}
}

// Fetcher is the read side of the API the registry depends on.
type Fetcher interface {
	List(ctx context.Context) ([]types.Entry, error)
	Detail(ctx context.Context, id string) (types.Detail, error)
}

type pendingFetch struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry lists sessions and moves them in and out of a Selection.
type Registry struct {
	fetcher  Fetcher
	sel      *Selection
	onChange func()
	logger   logger.Logger

	mu       sync.Mutex
	entries  []types.Entry
	pending  map[string]*pendingFetch
	failures map[string]error
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithOnChange is called after the selection gains or loses a session.
func WithOnChange(fn func()) RegistryOption {
	return func(r *Registry) {
		r.onChange = fn
	}
}

// WithRegistryLogger sets the logger used for failed fetches.
func WithRegistryLogger(l logger.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates a registry that activates sessions into sel.
func NewRegistry(f Fetcher, sel *Selection, opts ...RegistryOption) *Registry {
	r := &Registry{
		fetcher:  f,
		sel:      sel,
		pending:  make(map[string]*pendingFetch),
		failures: make(map[string]error),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List fetches the session list, newest start time first. On failure the
// previously fetched list is kept and the error returned.
func (r *Registry) List(ctx context.Context) ([]types.Entry, error) {
	entries, err := r.fetcher.List(ctx)
	if err != nil {
		return nil, err
	}
	sortEntries(entries)

	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()
	return append([]types.Entry(nil), entries...), nil
}

// Entries returns the last successfully fetched list.
func (r *Registry) Entries() []types.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Entry(nil), r.entries...)
}

func sortEntries(entries []types.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartTimeEpochMs > entries[j].StartTimeEpochMs
	})
}

// Toggle flips id and returns its new state. An Inactive row starts a
// background detail fetch and becomes Loading; the row turns Active when the
// fetch lands. Toggling a Loading row cancels it and discards the result.
func (r *Registry) Toggle(ctx context.Context, id string) RowState {
	r.mu.Lock()

	if p, ok := r.pending[id]; ok {
		p.cancel()
		delete(r.pending, id)
		r.mu.Unlock()
		return Inactive
	}

	if r.sel.Has(id) {
		r.sel.Remove(id)
		r.mu.Unlock()
		r.changed()
		return Inactive
	}

	fctx, cancel := context.WithCancel(ctx)
	p := &pendingFetch{cancel: cancel, done: make(chan struct{})}
	r.pending[id] = p
	delete(r.failures, id)
	r.mu.Unlock()

	go r.load(fctx, id, p)
	return Loading
}

func (r *Registry) load(ctx context.Context, id string, p *pendingFetch) {
	defer close(p.done)
	defer p.cancel()

	d, err := r.fetcher.Detail(ctx, id)

	r.mu.Lock()
	if r.pending[id] != p {
		// Toggled off (and maybe on again) while in flight.
		r.mu.Unlock()
		return
	}
	delete(r.pending, id)
	if err != nil {
		r.failures[id] = err
		r.mu.Unlock()
		if r.logger != nil {
			r.logger.Warn(ctx, "session fetch failed", logger.String("session_id", id), logger.Error(err))
		}
		return
	}
	d.SessionID = id
	r.sel.Add(d)
	r.mu.Unlock()
	r.changed()
}

func (r *Registry) changed() {
	if r.onChange != nil {
		r.onChange()
	}
}

// State returns the current state of id.
func (r *Registry) State(id string) RowState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[id]; ok {
		return Loading
	}
	if r.sel.Has(id) {
		return Active
	}
	return Inactive
}

// Err returns the error of the last failed fetch for id, if any. A failed
// fetch leaves the row Inactive.
func (r *Registry) Err(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[id]
}

// Wait blocks until every fetch pending at call time has settled.
func (r *Registry) Wait(ctx context.Context) error {
	r.mu.Lock()
	waits := make([]chan struct{}, 0, len(r.pending))
	for _, p := range r.pending {
		waits = append(waits, p.done)
	}
	r.mu.Unlock()

	for _, done := range waits {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
