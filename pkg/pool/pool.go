package pool

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/ormerr"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/stores"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/telemetry"
)

// Engine is the storage engine a pool manages.
type Engine interface {
	stores.Session

	Init(ctx context.Context) error
	EnsureSchema(ctx context.Context) error
	Begin(ctx context.Context) (*stores.Tx, error)
	Close() error
}

// TxMode sets the transaction boundary of handle operations.
type TxMode int

const (
	// TxModeOperation commits every handle operation independently.
	TxModeOperation TxMode = iota

	// TxModeHandle runs all operations of a handle in one transaction,
	// committed on Checkin and rolled back on Abort.
	TxModeHandle
)

// String returns the configuration name of the mode.
func (m TxMode) String() string {
	switch m {
	case TxModeOperation:
		return "operation"
	case TxModeHandle:
		return "handle"
	default:
		return fmt.Sprintf("TxMode(%d)", int(m))
	}
}

// ParseTxMode parses "operation" or "handle".
func ParseTxMode(s string) (TxMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "operation":
		return TxModeOperation, nil
	case "handle":
		return TxModeHandle, nil
	}
	return 0, fmt.Errorf("invalid transaction mode %q (must be 'operation' or 'handle')", s)
}

// Option configures a Pool.
type Option func(*Pool)

// WithTxMode sets the transaction mode. The default is TxModeOperation.
func WithTxMode(mode TxMode) Option {
	return func(p *Pool) {
		p.mode = mode
	}
}

// WithTelemetry sets the telemetry used for logs and metrics.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(p *Pool) {
		p.tel = telemetry.OrNop(tel)
	}
}

// Pool manages session handles over one engine.
type Pool struct {
	engine Engine
	mode   TxMode
	tel    *telemetry.Telemetry
	log    *telemetry.Logger

	// initMu serializes Initialize and Cleanup.
	initMu sync.Mutex

	mu          sync.Mutex
	initialized bool
	cleaned     bool
	handles     map[string]*Handle
}

// New creates a pool over engine. The engine is not touched until Initialize.
func New(engine Engine, opts ...Option) *Pool {
	p := &Pool{
		engine:  engine,
		mode:    TxModeOperation,
		tel:     telemetry.Nop(),
		handles: make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.tel.Logger.NewComponentLogger("pool")
	return p
}

// Mode returns the pool's transaction mode.
func (p *Pool) Mode() TxMode {
	return p.mode
}

// Initialize opens the engine and ensures the schema. The first caller does
// the work; concurrent and later callers wait for and share its outcome. A
// failed initialization closes the engine and may be retried.
func (p *Pool) Initialize(ctx context.Context) error {
	p.initMu.Lock()
	defer p.initMu.Unlock()

	p.mu.Lock()
	initialized, cleaned := p.initialized, p.cleaned
	p.mu.Unlock()
	if cleaned {
		return ormerr.New(ormerr.KindNotInitialized, "pool has been cleaned up").WithOp("initialize")
	}
	if initialized {
		return nil
	}

	if err := p.engine.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	if err := p.engine.EnsureSchema(ctx); err != nil {
		if cerr := p.engine.Close(); cerr != nil {
			p.log.WithError(cerr).Warn("failed to close engine after schema error")
		}
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	p.mu.Lock()
	p.initialized = true
	p.mu.Unlock()

	p.tel.Metrics.RecordEngineInit()
	p.log.Infof("engine initialized (tx mode %s)", p.mode)
	return nil
}

// Initialized reports whether Initialize has succeeded and Cleanup has not run.
func (p *Pool) Initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized && !p.cleaned
}

// Checkout returns a new handle. It fails with NotInitialized before
// Initialize or after Cleanup. In TxModeHandle it waits for the writer lock;
// ctx bounds that wait only, and the handle's transaction stays open until
// Checkin or Abort even after ctx ends.
func (p *Pool) Checkout(ctx context.Context) (*Handle, error) {
	if err := p.checkReady(); err != nil {
		p.tel.Metrics.RecordCheckout(string(ormerr.KindOf(err)))
		return nil, err
	}

	h := &Handle{id: uuid.NewString(), session: p.engine}
	if p.mode == TxModeHandle {
		tx, err := p.engine.Begin(ctx)
		if err != nil {
			p.tel.Metrics.RecordCheckout(outcome(err))
			return nil, fmt.Errorf("failed to begin handle transaction: %w", err)
		}
		h.tx = tx
		h.session = tx
	}

	p.mu.Lock()
	if !p.initialized || p.cleaned {
		p.mu.Unlock()
		if h.tx != nil {
			_ = h.tx.Rollback()
		}
		err := ormerr.New(ormerr.KindNotInitialized, "pool was cleaned up during checkout").WithOp("checkout")
		p.tel.Metrics.RecordCheckout(string(err.Kind))
		return nil, err
	}
	p.handles[h.id] = h
	p.mu.Unlock()

	p.tel.Metrics.RecordCheckout("ok")
	p.log.WithHandle(h.id).Debug("handle checked out")
	return h, nil
}

// Checkin releases a handle, committing its transaction in TxModeHandle.
// Checking in a released handle fails with HandleClosed.
func (p *Pool) Checkin(h *Handle) error {
	return p.release(h, true)
}

// Abort releases a handle, rolling back its transaction in TxModeHandle.
// Aborting a released handle fails with HandleClosed.
func (p *Pool) Abort(h *Handle) error {
	return p.release(h, false)
}

// With checks out a handle, runs fn, and checks the handle in. If fn returns
// an error or panics the handle is aborted instead; a panic is re-raised.
func (p *Pool) With(ctx context.Context, fn func(h *Handle) error) (err error) {
	h, err := p.Checkout(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if aerr := p.Abort(h); aerr != nil && !ormerr.IsProgrammerError(aerr) {
				p.log.WithHandle(h.id).WithError(aerr).Warn("abort after panic failed")
			}
			panic(r)
		}
	}()

	if err := fn(h); err != nil {
		if aerr := p.Abort(h); aerr != nil && !ormerr.IsProgrammerError(aerr) {
			p.log.WithHandle(h.id).WithError(aerr).Warn("abort failed")
		}
		return err
	}
	return p.Checkin(h)
}

// Outstanding returns the number of checked-out handles.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Cleanup aborts outstanding handles and closes the engine. Afterwards the
// pool refuses checkouts. Calling Cleanup again is a no-op.
func (p *Pool) Cleanup() error {
	p.initMu.Lock()
	defer p.initMu.Unlock()

	p.mu.Lock()
	if p.cleaned {
		p.mu.Unlock()
		return nil
	}
	p.cleaned = true
	wasInitialized := p.initialized
	outstanding := make([]*Handle, 0, len(p.handles))
	for _, h := range p.handles {
		outstanding = append(outstanding, h)
	}
	p.mu.Unlock()

	for _, h := range outstanding {
		p.log.WithHandle(h.id).Warn("aborting handle still checked out at cleanup")
		if err := p.Abort(h); err != nil && !ormerr.IsProgrammerError(err) {
			p.log.WithHandle(h.id).WithError(err).Warn("abort during cleanup failed")
		}
	}

	if !wasInitialized {
		return nil
	}
	if err := p.engine.Close(); err != nil {
		return fmt.Errorf("failed to close engine: %w", err)
	}
	p.log.Info("engine closed")
	return nil
}

func (p *Pool) checkReady() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.cleaned:
		return ormerr.New(ormerr.KindNotInitialized, "pool has been cleaned up").WithOp("checkout")
	case !p.initialized:
		return ormerr.New(ormerr.KindNotInitialized, "pool is not initialized").WithOp("checkout")
	}
	return nil
}

func (p *Pool) release(h *Handle, commit bool) error {
	op := "abort"
	if commit {
		op = "checkin"
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ormerr.New(ormerr.KindHandleClosed, "handle already checked in").WithOp(op)
	}
	h.closed = true
	h.mu.Unlock()

	p.mu.Lock()
	delete(p.handles, h.id)
	p.mu.Unlock()
	p.tel.Metrics.RecordCheckin()

	var err error
	if h.tx != nil {
		if commit {
			err = h.tx.Commit()
		} else {
			err = h.tx.Rollback()
		}
	}
	p.log.WithHandle(h.id).Debugf("handle released (%s)", op)
	return err
}

func outcome(err error) string {
	if kind := ormerr.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

// Handle is a checked-out session. It is valid until Checkin or Abort.
type Handle struct {
	id      string
	session stores.Session
	tx      *stores.Tx

	mu     sync.Mutex
	closed bool
}

// ID returns the handle's unique identifier.
func (h *Handle) ID() string {
	return h.id
}

// Closed reports whether the handle has been released.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// DeleteAll removes every record of a type.
func (h *Handle) DeleteAll(ctx context.Context, typeName string) (int64, error) {
	if err := h.check("delete_all"); err != nil {
		return 0, err
	}
	return h.session.DeleteAll(ctx, typeName)
}

// InsertBatch inserts records atomically and returns their IDs.
func (h *Handle) InsertBatch(ctx context.Context, typeName string, records []*stores.Record) ([]int64, error) {
	if err := h.check("insert_batch"); err != nil {
		return nil, err
	}
	return h.session.InsertBatch(ctx, typeName, records)
}

// QueryAll yields every record of a type in insertion order. Iteration stops
// with HandleClosed once the handle is released, even mid-range.
func (h *Handle) QueryAll(ctx context.Context, typeName string) iter.Seq2[*stores.Record, error] {
	return func(yield func(*stores.Record, error) bool) {
		if err := h.check("query_all"); err != nil {
			yield(nil, err)
			return
		}
		for rec, err := range h.session.QueryAll(ctx, typeName) {
			if cerr := h.check("query_all"); cerr != nil {
				yield(nil, cerr)
				return
			}
			if !yield(rec, err) {
				return
			}
		}
	}
}

func (h *Handle) check(op string) error {
	if h.Closed() {
		return ormerr.New(ormerr.KindHandleClosed, "handle already checked in").WithOp(op)
	}
	return nil
}
