package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrShuttingDown rejects new work once teardown has begun.
	ErrShuttingDown = errors.New("tenant pool manager is shutting down")

	// ErrConnectionFailed wraps failures to open a tenant's pool.
	ErrConnectionFailed = errors.New("tenant connection failed")
)

// Entry is one live, bootstrapped tenant connection. The underlying pool is
// safe for concurrent use by many requests; entries live until Shutdown,
// there is no idle eviction because the tenant set is small and long lived.
type Entry struct {
	schema   TenantID
	pool     *pgxpool.Pool
	lastUsed atomic.Int64
}

// Pool returns the pooled handle for the tenant schema.
func (e *Entry) Pool() *pgxpool.Pool { return e.pool }

// Schema returns the tenant this entry belongs to.
func (e *Entry) Schema() TenantID { return e.schema }

// LastUsed returns the time of the most recent Get that touched this entry.
func (e *Entry) LastUsed() time.Time { return time.Unix(0, e.lastUsed.Load()) }

func (e *Entry) touch() { e.lastUsed.Store(time.Now().UnixNano()) }

// connectFunc opens a pool for a schema and leaves it fully bootstrapped.
// Swapped out by tests.
type connectFunc func(ctx context.Context, schema TenantID) (*pgxpool.Pool, error)

// Manager owns the schema to connection map. It lazily creates entries,
// single-flights concurrent creation per schema, and tears everything down
// on shutdown. No other component writes to the map.
type Manager struct {
	databaseURL   string
	maxConns      int32
	minConns      int32
	createTimeout time.Duration
	registry      *Registry
	connect       connectFunc
	logger        zerolog.Logger

	mu      sync.RWMutex
	entries map[TenantID]*Entry
	closed  bool

	flight singleflight.Group
}

// ManagerConfig carries the shared connection template; only the schema
// portion varies per tenant.
type ManagerConfig struct {
	DatabaseURL   string
	MaxConns      int32
	MinConns      int32
	CreateTimeout time.Duration
	// Registry, when set, is consulted before a schema's first connection
	// is created so unprovisioned schemas are never lazily materialized.
	Registry *Registry
	Logger   zerolog.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.CreateTimeout <= 0 {
		cfg.CreateTimeout = 30 * time.Second
	}
	m := &Manager{
		databaseURL:   cfg.DatabaseURL,
		maxConns:      cfg.MaxConns,
		minConns:      cfg.MinConns,
		createTimeout: cfg.CreateTimeout,
		registry:      cfg.Registry,
		logger:        cfg.Logger,
		entries:       make(map[TenantID]*Entry),
	}
	m.connect = m.openAndBootstrap
	return m
}

// Get returns the live entry for schema, creating it on first access. Under
// a burst of concurrent callers at most one connection-and-bootstrap
// sequence runs; every waiter shares its outcome. A caller whose ctx is
// cancelled while waiting stops waiting locally, but creation itself keeps
// running for the remaining waiters.
func (m *Manager) Get(ctx context.Context, schema TenantID) (*Entry, error) {
	if schema.IsZero() {
		return nil, ErrNoTenant
	}

	m.mu.RLock()
	e, ok := m.entries[schema]
	closed := m.closed
	m.mu.RUnlock()

	if closed {
		return nil, ErrShuttingDown
	}
	if ok {
		e.touch()
		return e, nil
	}

	ch := m.flight.DoChan(schema.String(), func() (interface{}, error) {
		return m.create(schema)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		entry := res.Val.(*Entry)
		entry.touch()
		return entry, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// create runs under the single flight. It deliberately detaches from any
// caller context: the first caller disconnecting must not poison
// initialization for everyone queued behind it.
func (m *Manager) create(schema TenantID) (*Entry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.createTimeout)
	defer cancel()

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrShuttingDown
	}

	if m.registry != nil {
		exists, err := m.registry.Exists(ctx, schema)
		if err != nil {
			return nil, fmt.Errorf("%w: registry check for %s: %v", ErrConnectionFailed, schema, err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, schema)
		}
	}

	pool, err := m.connect(ctx, schema)
	if err != nil {
		m.logger.Error().Err(err).Str("tenant", schema.String()).Msg("tenant pool creation failed")
		return nil, err
	}

	e := &Entry{schema: schema, pool: pool}
	e.touch()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		pool.Close()
		return nil, ErrShuttingDown
	}
	m.entries[schema] = e
	m.mu.Unlock()

	m.logger.Info().Str("tenant", schema.String()).Msg("tenant pool created")
	return e, nil
}

// openAndBootstrap is the production connectFunc: open the schema-scoped
// pool, then make sure the schema's baseline objects exist. The pool is only
// published after both succeed.
func (m *Manager) openAndBootstrap(ctx context.Context, schema TenantID) (*pgxpool.Pool, error) {
	pool, err := newTenantPool(ctx, m.databaseURL, schema, m.maxConns, m.minConns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	if err := EnsureBootstrapped(ctx, pool, schema); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// Shutdown rejects new callers immediately, then closes every published
// pool. Close is best effort per entry so one slow tenant cannot block the
// rest from being torn down.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	entries := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.entries = make(map[TenantID]*Entry)
	m.mu.Unlock()

	for _, e := range entries {
		done := make(chan struct{})
		go func(e *Entry) {
			e.pool.Close()
			close(done)
		}(e)

		select {
		case <-done:
			m.logger.Info().Str("tenant", e.schema.String()).Msg("tenant pool closed")
		case <-ctx.Done():
			m.logger.Warn().Str("tenant", e.schema.String()).Msg("tenant pool close abandoned on shutdown deadline")
		}
	}
}

// EntryStats is a point-in-time snapshot of one tenant's pool.
type EntryStats struct {
	Schema        string    `json:"schema"`
	TotalConns    int32     `json:"total_conns"`
	IdleConns     int32     `json:"idle_conns"`
	AcquiredConns int32     `json:"acquired_conns"`
	MaxConns      int32     `json:"max_conns"`
	LastUsedAt    time.Time `json:"last_used_at"`
}

// Stats snapshots every live entry, keyed by schema name.
func (m *Manager) Stats() map[string]EntryStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]EntryStats, len(m.entries))
	for schema, e := range m.entries {
		st := e.pool.Stat()
		out[schema.String()] = EntryStats{
			Schema:        schema.String(),
			TotalConns:    st.TotalConns(),
			IdleConns:     st.IdleConns(),
			AcquiredConns: st.AcquiredConns(),
			MaxConns:      st.MaxConns(),
			LastUsedAt:    e.LastUsed(),
		}
	}
	return out
}
