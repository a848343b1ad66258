package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/compass-harvester/internal/cache"
	"github.com/jonathan/compass-harvester/internal/config"
	"github.com/jonathan/compass-harvester/internal/db"
)

// RunHistory records harvest runs. Only the PostgreSQL backend keeps one.
type RunHistory interface {
	CreateRun(ctx context.Context, runID uuid.UUID, queueLength int) error
	CompleteRun(ctx context.Context, runID uuid.UUID, status string, successCount, errorCount int) error
}

// RunLister lists recorded runs, newest first. Only the PostgreSQL backend
// keeps a run history.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]db.Run, error)
}

// Backend bundles the opened key-value store with its typed views.
type Backend struct {
	KV          KV
	Checkpoints *Checkpoints
	Handles     *Handles
	Runs        RunHistory

	lockDir string
	lock    RunLock
}

// pgKV adapts *db.DB to KV.
type pgKV struct {
	*db.DB
}

func (p pgKV) Close() error {
	p.DB.Close()
	return nil
}

// Open connects the configured backend.
func Open(ctx context.Context, cfg config.StoreConfig, log *logrus.Entry) (*Backend, error) {
	b := &Backend{lockDir: cfg.Dir}

	switch cfg.Backend {
	case config.BackendFile, "":
		kv, err := NewFileKV(cfg.Dir)
		if err != nil {
			return nil, err
		}
		b.KV = kv
	case config.BackendPostgres:
		conn, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := conn.EnsureSchema(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		b.KV = pgKV{conn}
		b.Runs = conn
	case config.BackendRedis:
		r, err := cache.Connect(ctx, cache.Options{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		b.KV = r
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	b.Checkpoints = NewCheckpoints(b.KV)
	b.Handles = NewHandles(b.KV)
	if log != nil {
		log.WithField("backend", cfg.Backend).Debug("store opened")
	}
	return b, nil
}

// NewBackend wraps an already opened KV.
func NewBackend(kv KV, lockDir string) *Backend {
	return &Backend{
		KV:          kv,
		Checkpoints: NewCheckpoints(kv),
		Handles:     NewHandles(kv),
		lockDir:     lockDir,
	}
}

// Lock takes the single-harvest run lock in the store directory. Without a
// directory there is nothing to lock and Lock succeeds.
func (b *Backend) Lock() error {
	if b.lockDir == "" {
		return nil
	}
	lock, err := AcquireRunLock(b.lockDir)
	if err != nil {
		return err
	}
	b.lock = lock
	return nil
}

// ForceUnlock removes the run lock whoever holds it.
func (b *Backend) ForceUnlock() error {
	return ForceUnlock(b.lockDir)
}

// Close releases the run lock and closes the KV.
func (b *Backend) Close() error {
	lockErr := b.lock.Release()
	b.lock = RunLock{}
	if err := b.KV.Close(); err != nil {
		return err
	}
	return lockErr
}
