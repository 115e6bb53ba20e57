package flight

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInFlight is returned when another mutation on the same record has not
// finished yet.
var ErrInFlight = errors.New("a change to this record is already being submitted")

// Guard allows at most one in-flight mutation per key.
type Guard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

func Key(ownerID, kind, id string) string {
	return fmt.Sprintf("flight:commerce:%s:%s:%s", ownerID, kind, id)
}

// AcquireAll takes every key or none. Keys already held are released when a
// later one is busy.
func AcquireAll(ctx context.Context, g Guard, keys []string) (func(), error) {
	releases := make([]func(), 0, len(keys))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, key := range keys {
		release, err := g.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

// MemoryGuard is a process-local Guard.
type MemoryGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: map[string]struct{}{}}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; busy {
		return nil, ErrInFlight
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}
