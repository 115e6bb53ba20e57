package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"github.com/fekuna/omnipos-commerce-service/internal/aggregate"
	"github.com/fekuna/omnipos-commerce-service/pkg/logger"
	"go.uber.org/zap"
)

const keyPrefix = "snapshot/"

// PebbleStore keeps the latest accepted snapshot of every owner so a restart
// does not need a full rebuild from the record store.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func key(ownerID string) []byte { return []byte(keyPrefix + ownerID) }

func (p *PebbleStore) Save(s *aggregate.Snapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return p.db.Set(key(s.OwnerID), b, pebble.Sync)
}

// Load implements aggregate.Loader.
func (p *PebbleStore) Load(_ context.Context, ownerID string) (*aggregate.Snapshot, bool, error) {
	v, closer, err := p.db.Get(key(ownerID))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	var s aggregate.Snapshot
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, false, fmt.Errorf("decode snapshot of %s: %w", ownerID, err)
	}
	if s.OwnerID != ownerID {
		return nil, false, fmt.Errorf("checkpoint under %s belongs to %s", ownerID, s.OwnerID)
	}
	return aggregate.Restore(&s), true, nil
}

// Hook persists every replaced snapshot. A failed write only costs a longer
// warm-up, so it is logged and not propagated.
func (p *PebbleStore) Hook(log logger.ZapLogger) func(*aggregate.Snapshot) {
	return func(s *aggregate.Snapshot) {
		if err := p.Save(s); err != nil {
			log.Warn("failed to checkpoint snapshot",
				zap.String("owner_id", s.OwnerID),
				zap.Uint64("version", s.Version),
				zap.Error(err))
		}
	}
}
