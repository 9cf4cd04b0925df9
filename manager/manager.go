// Package manager executes compiled statements over sessions of a
// connection pool.
//
// A Manager owns the pool and a registry of sessions keyed by SessionID.
// Every session holds at most one connection, opened on first use:
//
//	m, err := manager.Open(cfg, reg)
//	if err != nil {
//		return err
//	}
//	defer m.Close()
//	s, err := m.Session(manager.SessionID("worker-1"))
//	if err != nil {
//		return err
//	}
//	res, err := s.Select(ctx, users, execution.New(execution.WithWhere(query.C("active").Is(true))))
//
// Statements that lose their connection are retried on a new one. Write
// batches hold the locks of the tables they write, so that two writers of
// the same table never interleave. Errors are the typed errors of the
// orbql package.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/syssam/orbql"
	"github.com/syssam/orbql/dialect/sql"
	"github.com/syssam/orbql/schema"
)

var (
	// ErrClosed is returned by a closed manager.
	ErrClosed = errors.New("manager: closed")
	// ErrReleased is returned by a released session.
	ErrReleased = errors.New("manager: session released")
	// ErrTxDone is returned by a transaction used after its function
	// returned.
	ErrTxDone = errors.New("manager: transaction done")
)

// Pool hands out dedicated connections. *sql.Driver implements it.
type Pool interface {
	Acquire(ctx context.Context) (*sql.ConnDriver, error)
	Dialect() string
	Close() error
}

var _ Pool = (*sql.Driver)(nil)

// Manager executes statements of one dialect over the sessions of a pool.
type Manager struct {
	pool     Pool
	compiler sql.Compiler
	reg      *schema.Registry
	cfg      Config
	log      *slog.Logger
	stats    *sql.QueryStats
	sem      *semaphore.Weighted
	locks    *tableLocks

	mu       sync.RWMutex
	sessions map[SessionID]*Session
	closed   bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfig replaces the configuration. Options given after it override
// its fields.
func WithConfig(cfg Config) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// WithLogger sets the logger. It defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithRetries sets the maximum number of attempts of a call whose
// connection was lost.
func WithRetries(n int) Option {
	return func(m *Manager) { m.cfg.Retries = n }
}

// WithBackoff sets the base delay between two attempts.
func WithBackoff(d time.Duration) Option {
	return func(m *Manager) { m.cfg.Backoff = d }
}

// WithStatementTimeout bounds every call of a session.
func WithStatementTimeout(d time.Duration) Option {
	return func(m *Manager) { m.cfg.StatementTimeout = d }
}

// WithMaxSessions bounds the number of connected sessions.
func WithMaxSessions(n int) Option {
	return func(m *Manager) { m.cfg.MaxSessions = n }
}

// WithSessionVar sets a session variable before every statement.
func WithSessionVar(name, value string) Option {
	return func(m *Manager) {
		if m.cfg.SessionVars == nil {
			m.cfg.SessionVars = make(map[string]string)
		}
		m.cfg.SessionVars[name] = value
	}
}

// WithStats collects the query statistics of all sessions into stats.
func WithStats(stats *sql.QueryStats) Option {
	return func(m *Manager) { m.stats = stats }
}

// New returns a manager executing over pool the statements compiled
// against the schemas of reg.
func New(pool Pool, reg *schema.Registry, opts ...Option) (*Manager, error) {
	if pool == nil {
		return nil, errors.New("manager: nil pool")
	}
	m := &Manager{
		pool:     pool,
		reg:      reg,
		cfg:      Defaults(),
		log:      slog.Default(),
		stats:    &sql.QueryStats{},
		locks:    newTableLocks(),
		sessions: make(map[SessionID]*Session),
	}
	m.cfg.Dialect = pool.Dialect()
	for _, opt := range opts {
		opt(m)
	}
	if err := m.cfg.Validate(); err != nil {
		return nil, err
	}
	if m.cfg.Dialect != pool.Dialect() {
		return nil, fmt.Errorf("manager: config dialect %q does not match pool dialect %q", m.cfg.Dialect, pool.Dialect())
	}
	c, err := sql.NewCompiler(m.cfg.Dialect, reg)
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	m.compiler = c
	if m.cfg.MaxSessions > 0 {
		m.sem = semaphore.NewWeighted(int64(m.cfg.MaxSessions))
	}
	return m, nil
}

// Dialect returns the dialect of the manager.
func (m *Manager) Dialect() string { return m.cfg.Dialect }

// Compiler returns the statement compiler of the manager.
func (m *Manager) Compiler() sql.Compiler { return m.compiler }

// Registry returns the schemas the manager compiles against.
func (m *Manager) Registry() *schema.Registry { return m.reg }

// Stats returns a snapshot of the query statistics.
func (m *Manager) Stats() sql.StatsSnapshot { return m.stats.Stats() }

// Session returns the session with the given id, registering it on first
// use. Its connection is opened by its first call.
func (m *Manager) Session(id SessionID) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	closed := m.closed
	m.mu.RUnlock()
	switch {
	case ok:
		return s, nil
	case closed:
		return nil, ErrClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	s = &Session{id: id, m: m}
	m.sessions[id] = s
	return s, nil
}

// NewSession registers a session with a random id.
func (m *Manager) NewSession() (*Session, error) {
	return m.Session(NewSessionID())
}

// Sessions returns the number of registered sessions.
func (m *Manager) Sessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Release interrupts the in-flight call of the session, closes its
// connection and removes it from the registry.
func (m *Manager) Release(id SessionID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return s.release()
}

// Interrupt cancels the in-flight call of the session. The call fails
// with an orbql.InterruptedError. It reports if a call was interrupted.
func (m *Manager) Interrupt(id SessionID) bool {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	return ok && s.interrupt()
}

// Close releases all sessions concurrently and closes the pool. The
// errors of every session and of the pool are returned together as an
// orbql.AggregateError.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[SessionID]*Session)
	m.mu.Unlock()

	var (
		wg   sync.WaitGroup
		emu  sync.Mutex
		errs []error
	)
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.release(); err != nil {
				emu.Lock()
				errs = append(errs, fmt.Errorf("manager: release session %s: %w", s.id, err))
				emu.Unlock()
			}
		}(s)
	}
	wg.Wait()
	errs = append(errs, m.pool.Close())
	return orbql.NewAggregateError(errs...)
}
