// Package badger provides an embedded key-value persistence backed by Badger.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v3"
	"github.com/dukex/flowgate/pkg/persistence"
	json "github.com/goccy/go-json"
)

const (
	graphPrefix    = "graph/"
	runPrefix      = "run/"
	approvalPrefix = "approval/"

	maxConflictRetries = 16
)

// Persistence implements persistence.Persistence on a Badger database.
type Persistence struct {
	db     *badger.DB
	logger *slog.Logger

	graphRepo    *GraphRepository
	runRepo      *RunRepository
	approvalRepo *ApprovalRepository
}

// NewPersistence opens the database at databaseURL (badger://<dir>).
// An empty directory opens an in-memory database.
func NewPersistence(logger *slog.Logger, databaseURL string) (*Persistence, error) {
	dir := strings.TrimPrefix(databaseURL, "badger://")

	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return newPersistence(logger, db), nil
}

func newPersistence(logger *slog.Logger, db *badger.DB) *Persistence {
	p := &Persistence{db: db, logger: logger}
	p.graphRepo = &GraphRepository{store: p}
	p.runRepo = &RunRepository{store: p}
	p.approvalRepo = &ApprovalRepository{store: p}

	return p
}

func (p *Persistence) GraphRepository() persistence.GraphRepository {
	return p.graphRepo
}

func (p *Persistence) RunRepository() persistence.RunRepository {
	return p.runRepo
}

func (p *Persistence) ApprovalRepository() persistence.ApprovalRepository {
	return p.approvalRepo
}

// HealthCheck reports an error once the database has been closed.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if p.db.IsClosed() {
		return errors.New("badger database is closed")
	}

	return nil
}

// Close closes the database.
func (p *Persistence) Close(_ context.Context) error {
	err := p.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	return nil
}

// get decodes key into target. It returns badger.ErrKeyNotFound untouched.
func get(txn *badger.Txn, key string, target any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}

	value, err := item.ValueCopy(nil)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}

	err = json.Unmarshal(value, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}

	return nil
}

func set(txn *badger.Txn, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	return txn.Set([]byte(key), data)
}

// update runs fn in a read-write transaction, retrying when a concurrent
// transaction committed a conflicting write first.
func (p *Persistence) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = p.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		p.logger.DebugContext(ctx, "retrying badger transaction after conflict", "attempt", attempt+1)
	}

	return err
}
