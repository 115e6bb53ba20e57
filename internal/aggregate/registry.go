package aggregate

import (
	"context"
	"fmt"
	"sync"
)

// Loader restores a previously saved snapshot for an owner.
type Loader interface {
	Load(ctx context.Context, ownerID string) (*Snapshot, bool, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, ownerID string) (*Snapshot, bool, error)

func (f LoaderFunc) Load(ctx context.Context, ownerID string) (*Snapshot, bool, error) {
	return f(ctx, ownerID)
}

// Chain tries each loader in order and returns the first snapshot found.
func Chain(loaders ...Loader) Loader {
	return LoaderFunc(func(ctx context.Context, ownerID string) (*Snapshot, bool, error) {
		for _, l := range loaders {
			snap, ok, err := l.Load(ctx, ownerID)
			if err != nil {
				return nil, false, err
			}
			if ok {
				return snap, true, nil
			}
		}
		return nil, false, nil
	})
}

// Registry keeps one Store per owner, seeded from the loader on first use.
// Loading runs outside the registry lock; concurrent callers for the same
// owner wait for the one load in progress.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	loader  Loader
	hooks   []func(*Snapshot)
}

type entry struct {
	ready chan struct{}
	store *Store
	err   error
}

func NewRegistry(loader Loader, hooks ...func(*Snapshot)) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		loader:  loader,
		hooks:   hooks,
	}
}

func (r *Registry) Get(ctx context.Context, ownerID string) (*Store, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}

	r.mu.Lock()
	e, ok := r.entries[ownerID]
	if !ok {
		e = &entry{ready: make(chan struct{})}
		r.entries[ownerID] = e
	}
	r.mu.Unlock()

	if ok {
		select {
		case <-e.ready:
			return e.store, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e.store, e.err = r.load(ctx, ownerID)
	if e.err != nil {
		// forget the failure so the next caller retries
		r.mu.Lock()
		delete(r.entries, ownerID)
		r.mu.Unlock()
	}
	close(e.ready)
	return e.store, e.err
}

func (r *Registry) load(ctx context.Context, ownerID string) (*Store, error) {
	initial := NewSnapshot(ownerID)
	if r.loader != nil {
		snap, ok, err := r.loader.Load(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("load snapshot for %s: %w", ownerID, err)
		}
		if ok {
			initial = snap
		}
	}
	return NewStore(initial, r.hooks...), nil
}

// Owners lists the owners whose stores are loaded.
func (r *Registry) Owners() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for id, e := range r.entries {
		select {
		case <-e.ready:
			if e.err == nil {
				out = append(out, id)
			}
		default:
		}
	}
	return out
}
