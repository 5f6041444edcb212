// Package guest persists the cart of an unauthenticated visitor on the local device.
package guest

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/hpungsan/tote/internal/cart"
	"github.com/hpungsan/tote/internal/db"
	"github.com/hpungsan/tote/internal/errors"
)

// DefaultKey is the storage key of the guest cart record.
const DefaultKey = "guest_cart"

// Store loads and saves the whole guest cart record.
//
// Load never fails: a missing or unreadable record is reported as an empty
// cart. Save overwrites the record in one write.
type Store interface {
	Load(ctx context.Context) []cart.GuestItem
	Save(ctx context.Context, items []cart.GuestItem) error
}

// Clearer is implemented by stores that can delete the record outright
// instead of saving an empty one.
type Clearer interface {
	Clear(ctx context.Context) error
}

// SQLiteStore keeps the record in the local_storage table.
type SQLiteStore struct {
	db  *sql.DB
	key string
	log *zap.Logger
}

// NewSQLiteStore returns a store for key. An empty key means DefaultKey.
func NewSQLiteStore(database *sql.DB, key string, log *zap.Logger) *SQLiteStore {
	if key == "" {
		key = DefaultKey
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLiteStore{db: database, key: key, log: log.Named("guest")}
}

// Key returns the storage key this store reads and writes.
func (s *SQLiteStore) Key() string {
	return s.key
}

func (s *SQLiteStore) Load(ctx context.Context) []cart.GuestItem {
	raw, found, err := db.GetItem(ctx, s.db, s.key)
	if err != nil {
		s.log.Error("read guest cart", zap.String("key", s.key), zap.Error(err))
		return []cart.GuestItem{}
	}
	if !found {
		return []cart.GuestItem{}
	}
	return decodeRecord([]byte(raw), s.key, s.log)
}

func (s *SQLiteStore) Save(ctx context.Context, items []cart.GuestItem) error {
	data, err := encodeRecord(items)
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := db.SetItem(ctx, s.db, s.key, string(data)); err != nil {
		return errors.NewStorage(err)
	}
	return nil
}

// Clear removes the record entirely.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if err := db.RemoveItem(ctx, s.db, s.key); err != nil {
		return errors.NewStorage(err)
	}
	return nil
}

// MemoryStore is an in-process Store holding the raw encoded record, so tests
// can inject corrupted data.
type MemoryStore struct {
	mu   sync.Mutex
	raw  []byte
	log  *zap.Logger
	fail error
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(log *zap.Logger) *MemoryStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &MemoryStore{log: log.Named("guest")}
}

func (m *MemoryStore) Load(_ context.Context) []cart.GuestItem {
	m.mu.Lock()
	raw := m.raw
	m.mu.Unlock()

	if raw == nil {
		return []cart.GuestItem{}
	}
	return decodeRecord(raw, "memory", m.log)
}

func (m *MemoryStore) Save(_ context.Context, items []cart.GuestItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return errors.NewStorage(m.fail)
	}
	data, err := encodeRecord(items)
	if err != nil {
		return errors.NewInternal(err)
	}
	m.raw = data
	return nil
}

// Clear removes the record entirely.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return errors.NewStorage(m.fail)
	}
	m.raw = nil
	return nil
}

// SetRaw replaces the stored record bytes verbatim.
func (m *MemoryStore) SetRaw(raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = raw
}

// Raw returns the stored record bytes.
func (m *MemoryStore) Raw() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.raw
}

// FailWrites makes every later Save return err (nil restores writes).
func (m *MemoryStore) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func decodeRecord(raw []byte, key string, log *zap.Logger) []cart.GuestItem {
	var items []cart.GuestItem
	if err := json.Unmarshal(raw, &items); err != nil {
		log.Warn("discarding corrupted guest cart", zap.String("key", key), zap.Error(err))
		return []cart.GuestItem{}
	}
	if items == nil {
		return []cart.GuestItem{}
	}
	return items
}

func encodeRecord(items []cart.GuestItem) ([]byte, error) {
	if items == nil {
		items = []cart.GuestItem{}
	}
	return json.Marshal(items)
}
