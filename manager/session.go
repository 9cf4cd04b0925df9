package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/orbql"
	"github.com/syssam/orbql/dialect"
	"github.com/syssam/orbql/dialect/sql"
)

// SessionID identifies a session of the manager. Callers pick the id of
// their worker, or use NewSessionID.
type SessionID string

// NewSessionID returns a random session id.
func NewSessionID() SessionID { return SessionID(uuid.NewString()) }

// State is the state of the connection of a session.
type State uint8

// Session states.
const (
	StateClosed State = iota
	StateOpen
	StateInUse
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateInUse:
		return "in use"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Session owns one connection of the pool. The connection is opened on
// first use and kept until the session is released. Calls on a session
// run one at a time.
type Session struct {
	id SessionID
	m  *Manager

	// mu serializes calls.
	mu sync.Mutex

	// smu guards the fields below. It is never held while waiting on the
	// database, so that another goroutine may interrupt the session.
	smu         sync.Mutex
	state       State
	conn        *sql.ConnDriver
	drv         dialect.Driver
	cancel      context.CancelFunc
	interrupted bool
	connected   bool
	released    bool
	permit      bool
}

// ID returns the session id.
func (s *Session) ID() SessionID { return s.id }

// State returns the state of the session connection.
func (s *Session) State() State {
	s.smu.Lock()
	defer s.smu.Unlock()
	return s.state
}

// Close closes the connection of the session. The session reconnects on
// its next call.
func (s *Session) Close() error {
	s.interrupt()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnect()
}

// release closes the session for good.
func (s *Session) release() error {
	s.interrupt()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.smu.Lock()
	s.released = true
	s.smu.Unlock()
	return s.disconnect()
}

// connect opens the connection of a closed session.
func (s *Session) connect(ctx context.Context) error {
	s.smu.Lock()
	switch {
	case s.released:
		s.smu.Unlock()
		return fmt.Errorf("manager: session %s: %w", s.id, ErrReleased)
	case s.state != StateClosed:
		s.smu.Unlock()
		return nil
	}
	s.smu.Unlock()
	if s.m.sem != nil && !s.permit {
		if err := s.m.sem.Acquire(ctx, 1); err != nil {
			return &orbql.ConnectionFailedError{Err: err}
		}
		s.permit = true
	}
	conn, err := s.m.pool.Acquire(ctx)
	if err == nil {
		if err = conn.Ping(ctx); err != nil {
			err = errors.Join(err, conn.Close())
		}
	}
	if err != nil {
		if s.permit {
			s.m.sem.Release(1)
			s.permit = false
		}
		s.m.log.LogAttrs(ctx, slog.LevelWarn, "connect failed",
			slog.String("session", string(s.id)), slog.Any("error", err))
		return &orbql.ConnectionFailedError{Err: err}
	}
	s.smu.Lock()
	defer s.smu.Unlock()
	s.conn, s.state, s.connected = conn, StateOpen, true
	s.drv = sql.NewStatsDriver(conn,
		sql.WithStats(s.m.stats),
		sql.WithSlowThreshold(s.m.cfg.SlowThreshold),
	)
	return nil
}

// disconnect closes the connection and gives its permit back. It must be
// called with mu held.
func (s *Session) disconnect() error {
	s.smu.Lock()
	conn := s.conn
	s.conn, s.drv, s.state = nil, nil, StateClosed
	s.smu.Unlock()
	if s.permit {
		s.m.sem.Release(1)
		s.permit = false
	}
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// interrupt cancels the in-flight call of the session, if any.
func (s *Session) interrupt() bool {
	s.smu.Lock()
	defer s.smu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.interrupted = true
	s.cancel()
	return true
}

// begin marks the session in use and returns the driver of the call.
func (s *Session) begin(cancel context.CancelFunc) dialect.Driver {
	s.smu.Lock()
	defer s.smu.Unlock()
	s.state, s.cancel, s.interrupted = StateInUse, cancel, false
	return s.drv
}

// end marks the session idle and reports if the call was interrupted.
func (s *Session) end() bool {
	s.smu.Lock()
	defer s.smu.Unlock()
	if s.state == StateInUse {
		s.state = StateOpen
	}
	s.cancel = nil
	return s.interrupted
}

// run executes fn on the connection of the session while holding the
// write locks of tables. A lost connection is reopened and fn is run
// again, for at most Retries attempts in total. A session that never
// connected fails on the first error.
func (s *Session) run(ctx context.Context, tables []string, fn func(*runner) error) error {
	return s.retry(ctx, tables, s.m.cfg.Retries, fn)
}

func (s *Session) retry(ctx context.Context, tables []string, attempts int, fn func(*runner) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock := s.m.locks.Lock(tables...)
	defer unlock()
	var err error
	for attempt := 0; ; attempt++ {
		if err = s.connect(ctx); err == nil {
			err = s.call(ctx, fn)
		} else if !s.connected || errors.Is(err, ErrReleased) {
			return err
		}
		if err == nil || attempt+1 >= attempts {
			return err
		}
		if !orbql.IsConnectionLost(err) && !orbql.IsConnectionFailed(err) {
			return err
		}
		s.m.log.LogAttrs(ctx, slog.LevelWarn, "retrying after connection error",
			slog.String("session", string(s.id)), slog.Int("attempt", attempt+1), slog.Any("error", err))
		if cerr := s.disconnect(); cerr != nil {
			s.m.log.LogAttrs(ctx, slog.LevelDebug, "close lost connection",
				slog.String("session", string(s.id)), slog.Any("error", cerr))
		}
		if werr := s.m.wait(ctx, attempt); werr != nil {
			return errors.Join(err, werr)
		}
	}
}

// call runs fn once, bounded by the statement timeout.
func (s *Session) call(ctx context.Context, fn func(*runner) error) error {
	var (
		cctx   context.Context
		cancel context.CancelFunc
	)
	if t := s.m.cfg.StatementTimeout; t > 0 {
		cctx, cancel = context.WithTimeout(ctx, t)
	} else {
		cctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	for k, v := range s.m.cfg.SessionVars {
		cctx = sql.WithVar(cctx, k, v)
	}
	r := &runner{s: s, ctx: cctx, drv: s.begin(cancel)}
	r.ex = r.drv
	err := fn(r)
	if s.end() && err != nil && !orbql.IsInterrupted(err) {
		err = &orbql.InterruptedError{Err: err}
	}
	return err
}

// fail classifies an error raised by stmt during the call of ctx.
func (s *Session) fail(ctx context.Context, err error, stmt *sql.Statement) error {
	s.smu.Lock()
	interrupted := s.interrupted
	s.smu.Unlock()
	switch {
	case err == nil:
		return nil
	case interrupted && !orbql.IsInterrupted(err):
		return &orbql.InterruptedError{Err: err}
	case errors.Is(ctx.Err(), context.DeadlineExceeded) && !orbql.IsQueryTimeout(err):
		return &orbql.QueryTimeoutError{Statement: stmt.String(), Err: err}
	default:
		return sql.TranslateError(err, stmt)
	}
}

// wait sleeps before the next attempt.
func (m *Manager) wait(ctx context.Context, attempt int) error {
	d := m.cfg.Backoff * time.Duration(attempt+1)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
