// Package engine wraps an embedded analytical database behind a single
// pinned connection with lazy initialization, one-shot reconnect on a lost
// connection, cancellation of the running statement, and fully materialized
// results.
package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marcboeker/go-duckdb"

	errs "github.com/usaschooldata/schooldata/internal/errors"
	"github.com/usaschooldata/schooldata/internal/logctx"
	"github.com/usaschooldata/schooldata/internal/observability"
)

// ErrCanceled is returned when a statement was interrupted by CancelPending
// or by its context.
var ErrCanceled = errors.New("engine: statement canceled")

// Opener opens a fresh database handle. The engine pins one connection of it.
type Opener func(ctx context.Context) (*sql.DB, error)

// DuckDBOpener opens DuckDB at path; an empty path is an in-memory database.
func DuckDBOpener(path string) Opener {
	return func(ctx context.Context) (*sql.DB, error) {
		connector, err := duckdb.NewConnector(path, nil)
		if err != nil {
			return nil, fmt.Errorf("open duckdb: %w", err)
		}
		return sql.OpenDB(connector), nil
	}
}

// Options configures engine initialization.
type Options struct {
	// Extensions are installed and loaded on every (re)initialization.
	Extensions []string
	// MaxExpressionDepth is applied with SET when positive.
	MaxExpressionDepth int
	// Metrics receives statement timings and reinitializations. May be nil.
	Metrics *observability.Metrics
}

// DefaultOptions returns the options used against the published dataset.
func DefaultOptions() Options {
	return Options{
		Extensions:         []string{"httpfs"},
		MaxExpressionDepth: 20,
	}
}

// Engine is the embedded query engine adapter. It is safe for concurrent
// use; statements are serialized on the pinned connection.
type Engine struct {
	opener Opener
	opts   Options

	mu   sync.Mutex // serializes statements and lifecycle transitions
	db   *sql.DB
	conn *sql.Conn

	stateMu sync.RWMutex
	ready   bool
	err     error

	// gens counts successful initializations; live is the generation of the
	// open session, 0 when none is open. Session state such as working
	// tables belongs to exactly one generation.
	gens atomic.Uint64
	live atomic.Uint64

	pendingMu sync.Mutex
	cancel    context.CancelFunc
}

// New creates an engine. Nothing is opened until Initialize or the first
// statement.
func New(opener Opener, opts Options) *Engine {
	if opener == nil {
		opener = DuckDBOpener("")
	}
	return &Engine{opener: opener, opts: opts}
}

// Initialize opens the engine and prepares its session. Calling it on an
// initialized engine is a no-op; calling it after a failure retries.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn != nil {
		return nil
	}
	return e.initLocked(ctx)
}

// Ready reports whether the engine is initialized with no outstanding fatal error.
func (e *Engine) Ready() bool {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.ready
}

// Err returns the last initialization failure, or nil.
func (e *Engine) Err() error {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.err
}

// Generation identifies the open database session, or is 0 when none is
// open. It advances on every successful (re)initialization, including the
// lazy one after Close. Anything created in a session is gone once it moves.
func (e *Engine) Generation() uint64 {
	return e.live.Load()
}

// Query runs a statement and materializes every row.
func (e *Engine) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	var res *Result
	err := e.run(ctx, "query", func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		res, err = collect(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Exec runs a statement that returns no rows.
func (e *Engine) Exec(ctx context.Context, query string, args ...any) error {
	_, err := e.Build(ctx, query, args...)
	return err
}

// Build runs a statement that returns no rows and reports the generation it
// ran under, which is the generation owning whatever it created.
func (e *Engine) Build(ctx context.Context, query string, args ...any) (uint64, error) {
	var gen uint64
	err := e.run(ctx, "exec", func(ctx context.Context, conn *sql.Conn) error {
		gen = e.live.Load()
		_, err := conn.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return 0, err
	}
	return gen, nil
}

// CancelPending interrupts the statement currently executing, whichever
// caller issued it. It reports whether there was one. To stop only its own
// statement, a caller cancels the context it passed in.
func (e *Engine) CancelPending() bool {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	if e.cancel == nil {
		return false
	}
	e.cancel()
	e.cancel = nil
	return true
}

// Close tears down the connection and the database. A later statement
// reinitializes lazily.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.teardownLocked()
	e.setState(false, nil)
	return err
}

func (e *Engine) run(ctx context.Context, kind string, fn func(context.Context, *sql.Conn) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn == nil {
		if err := e.initLocked(ctx); err != nil {
			return err
		}
	}

	err := e.execLocked(ctx, kind, fn)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCanceled) || !isConnectionError(err) {
		return statementError(err)
	}

	logger := logctx.FromContext(ctx)
	logger.Warn().Err(err).Msg("engine connection lost, reinitializing")
	e.opts.Metrics.ObserveReinitialization()

	_ = e.teardownLocked()
	if rerr := e.initLocked(ctx); rerr != nil {
		return errs.NewConnectionLostError("engine: reinitialization failed", errors.Join(err, rerr))
	}
	if err := e.execLocked(ctx, kind, fn); err != nil {
		return statementError(err)
	}
	return nil
}

func (e *Engine) execLocked(ctx context.Context, kind string, fn func(context.Context, *sql.Conn) error) error {
	stmtCtx, cancel := context.WithCancel(ctx)
	e.pendingMu.Lock()
	e.cancel = cancel
	e.pendingMu.Unlock()

	start := time.Now()
	err := fn(stmtCtx, e.conn)
	e.opts.Metrics.ObserveStatement(kind, time.Since(start).Seconds())

	e.pendingMu.Lock()
	e.cancel = nil
	e.pendingMu.Unlock()
	canceled := stmtCtx.Err() != nil
	cancel()

	if err != nil && canceled {
		return fmt.Errorf("%w: %w", ErrCanceled, context.Cause(stmtCtx))
	}
	return err
}

func (e *Engine) initLocked(ctx context.Context) error {
	fail := func(msg string, cause error) error {
		_ = e.teardownLocked()
		err := errs.NewEngineInitError(msg, cause)
		e.setState(false, err)
		return err
	}

	db, err := e.opener(ctx)
	if err != nil {
		return fail("engine: open failed", err)
	}
	db.SetMaxOpenConns(1)
	e.db = db

	conn, err := db.Conn(ctx)
	if err != nil {
		return fail("engine: connect failed", err)
	}
	e.conn = conn

	for _, ext := range e.opts.Extensions {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			return fail("engine: load extension "+ext, err)
		}
	}
	if e.opts.MaxExpressionDepth > 0 {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET max_expression_depth TO %d", e.opts.MaxExpressionDepth)); err != nil {
			return fail("engine: configure session", err)
		}
	}

	gen := e.gens.Add(1)
	e.live.Store(gen)
	e.setState(true, nil)
	logger := logctx.FromContext(ctx)
	logger.Debug().Strs("extensions", e.opts.Extensions).Uint64("generation", gen).Msg("engine initialized")
	return nil
}

func (e *Engine) teardownLocked() error {
	e.live.Store(0)
	var errConn, errDB error
	if e.conn != nil {
		errConn = e.conn.Close()
		e.conn = nil
	}
	if e.db != nil {
		errDB = e.db.Close()
		e.db = nil
	}
	if errors.Is(errConn, sql.ErrConnDone) {
		errConn = nil
	}
	return errors.Join(errConn, errDB)
}

func (e *Engine) setState(ready bool, err error) {
	e.stateMu.Lock()
	e.ready = ready
	e.err = err
	e.stateMu.Unlock()
}

// connectionErrorPrefixes are the DuckDB error classes that leave the
// session unusable. Statement failures such as a missing or truncated
// partition file carry other prefixes.
var connectionErrorPrefixes = []string{"Connection Error: ", "FATAL Error: "}

// isConnectionError reports failures that indicate the connection itself
// is unusable rather than the statement.
func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var dErr *duckdb.Error
	if errors.As(err, &dErr) {
		return dErr.Type == duckdb.ErrorTypeConnection || dErr.Type == duckdb.ErrorTypeFatal
	}
	msg := err.Error()
	for _, prefix := range connectionErrorPrefixes {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

func statementError(err error) error {
	if errors.Is(err, ErrCanceled) {
		return err
	}
	return errs.NewQueryError("engine: statement failed", err)
}
