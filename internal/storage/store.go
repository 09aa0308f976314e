package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// defaultSaveDelay is the debounce window for SaveDelayed.
const defaultSaveDelay = 5 * time.Second

// flushTimeout bounds the database writes performed by a debounced save
// firing in the background.
const flushTimeout = 10 * time.Second

// ErrNotFound is returned by Meta for keys that were never saved.
var ErrNotFound = errors.New("storage: key not found")

// Logger is the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Error(string, ...any) {}

// DB is the database surface the store needs. Satisfied by
// database.DB.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Config contains store options.
type Config struct {
	// SaveDelay is the debounce window for SaveDelayed. Repeated calls
	// for the same key within the window coalesce into one write.
	// Default: 5s.
	SaveDelay time.Duration
}

// Meta describes a stored document without its payload.
type Meta struct {
	Key       string
	Version   int64
	UpdatedAt time.Time
}

// pendingSave is one debounced write waiting for its timer.
type pendingSave struct {
	timer *time.Timer
	value any
}

// Store persists JSON documents keyed by string, with a version counter
// bumped on every write. All methods are safe for concurrent use.
type Store struct {
	db     DB
	delay  time.Duration
	logger Logger

	mu      sync.Mutex
	pending map[string]*pendingSave
}

// NewStore creates a Store writing through db.
func NewStore(db DB, cfg Config) *Store {
	if cfg.SaveDelay <= 0 {
		cfg.SaveDelay = defaultSaveDelay
	}
	return &Store{
		db:      db,
		delay:   cfg.SaveDelay,
		logger:  noopLogger{},
		pending: make(map[string]*pendingSave),
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Save writes v under key immediately, bumping the version counter.
// Any debounced write pending for the same key is superseded.
func (s *Store) Save(ctx context.Context, key string, v any) error {
	s.mu.Lock()
	if p, ok := s.pending[key]; ok {
		p.timer.Stop()
		delete(s.pending, key)
	}
	s.mu.Unlock()

	return s.write(ctx, key, v)
}

// SaveDelayed schedules a debounced write of v under key. Repeated
// calls within the delay window reset the timer and keep only the
// latest value. The write happens on a background goroutine; failures
// are logged, not returned.
func (s *Store) SaveDelayed(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[key]; ok {
		p.value = v
		p.timer.Reset(s.delay)
		return
	}

	p := &pendingSave{value: v}
	p.timer = time.AfterFunc(s.delay, func() { s.firePending(key) })
	s.pending[key] = p
}

func (s *Store) firePending(key string) {
	s.mu.Lock()
	p, ok := s.pending[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	value := p.value
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := s.write(ctx, key, value); err != nil {
		s.logger.Error("delayed save failed", "key", key, "error", err.Error())
	}
}

// Flush writes every pending debounced save immediately. Called during
// the final-write shutdown stage so nothing is lost at exit.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	due := make(map[string]any, len(s.pending))
	for key, p := range s.pending {
		p.timer.Stop()
		due[key] = p.value
	}
	s.pending = make(map[string]*pendingSave)
	s.mu.Unlock()

	var firstErr error
	for key, value := range due {
		if err := s.write(ctx, key, value); err != nil {
			s.logger.Error("flush write failed", "key", key, "error", err.Error())
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// PendingSaves reports how many debounced writes are waiting.
func (s *Store) PendingSaves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Store) write(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: marshalling %q: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hub_storage (key, version, data, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			version = version + 1,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, key, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("storage: writing %q: %w", key, err)
	}

	s.logger.Debug("document saved", "key", key)
	return nil
}

// Load reads the document under key into v and reports whether a
// document existed. A pending debounced value for the key is returned
// in preference to the last committed row.
func (s *Store) Load(ctx context.Context, key string, v any) (bool, error) {
	s.mu.Lock()
	if p, ok := s.pending[key]; ok {
		value := p.value
		s.mu.Unlock()
		// Round-trip through JSON so callers always see the stored shape.
		data, err := json.Marshal(value)
		if err != nil {
			return false, fmt.Errorf("storage: marshalling pending %q: %w", key, err)
		}
		if err := json.Unmarshal(data, v); err != nil {
			return false, fmt.Errorf("storage: decoding pending %q: %w", key, err)
		}
		return true, nil
	}
	s.mu.Unlock()

	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM hub_storage WHERE key = ?", key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: reading %q: %w", key, err)
	}

	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, fmt.Errorf("storage: decoding %q: %w", key, err)
	}
	return true, nil
}

// Meta returns version and timestamp for a stored key, or ErrNotFound.
func (s *Store) Meta(ctx context.Context, key string) (Meta, error) {
	var m Meta
	var updatedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT key, version, updated_at FROM hub_storage WHERE key = ?", key,
	).Scan(&m.Key, &m.Version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Meta{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return Meta{}, fmt.Errorf("storage: reading meta %q: %w", key, err)
	}
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return m, nil
}

// Delete removes a stored document and any pending write for its key.
// Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	if p, ok := s.pending[key]; ok {
		p.timer.Stop()
		delete(s.pending, key)
	}
	s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM hub_storage WHERE key = ?", key); err != nil {
		return fmt.Errorf("storage: deleting %q: %w", key, err)
	}
	return nil
}

// Keys lists every stored key in lexical order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM hub_storage ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("storage: listing keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("storage: scanning key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterating keys: %w", err)
	}
	return keys, nil
}
