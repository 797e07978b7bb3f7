package stores

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"sync"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/ormerr"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/schema"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/telemetry"
)

// Tx is a unit of work spanning several record operations. It holds the
// writer permit from Begin until Commit or Rollback, so other writers wait
// while readers outside the transaction keep seeing the last committed state.
type Tx struct {
	store *SQLiteStore
	tx    *sql.Tx

	mu   sync.Mutex
	done bool
	// broken is set when a rejected batch could not be undone; the
	// transaction then only rolls back.
	broken error
	// inserted IDs are assigned to records only once the transaction commits.
	pending []pendingIDs
}

type pendingIDs struct {
	records []*Record
	ids     []int64
}

// Begin starts a transaction. ctx bounds the wait for the writer permit only;
// the transaction lives until Commit or Rollback, whatever happens to ctx.
func (s *SQLiteStore) Begin(ctx context.Context) (*Tx, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	actx, cancel := s.opContext(ctx)
	err = s.acquire(actx)
	cancel()
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		s.writer.Release(1)
		return nil, storageIO("begin", "failed to begin transaction", err)
	}
	return &Tx{store: s, tx: tx}, nil
}

// DeleteAll removes every record of a type within the transaction.
func (t *Tx) DeleteAll(ctx context.Context, typeName string) (n int64, err error) {
	desc, err := t.resolve(typeName)
	if err != nil {
		return 0, err
	}

	op := t.store.tel.StartOperation(ctx, "delete_all", typeName, telemetry.AttrTable.String(desc.Table))
	defer func() { op.End(err) }()

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable("delete_all"); err != nil {
		return 0, err
	}
	return t.store.deleteAll(op.Ctx, t.tx, desc)
}

// InsertBatch inserts records within the transaction. A rejected batch leaves
// the transaction unchanged; IDs are assigned to the records on Commit.
func (t *Tx) InsertBatch(ctx context.Context, typeName string, records []*Record) (ids []int64, err error) {
	desc, err := t.resolve(typeName)
	if err != nil {
		return nil, err
	}

	op := t.store.tel.StartOperation(ctx, "insert_batch", typeName,
		telemetry.AttrTable.String(desc.Table), telemetry.AttrRecords.Int(len(records)))
	defer func() { op.End(err) }()

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable("insert_batch"); err != nil {
		return nil, err
	}

	if _, err := t.tx.ExecContext(op.Ctx, "SAVEPOINT insert_batch"); err != nil {
		return nil, storageIO("insert_batch", "failed to create savepoint", err)
	}
	ids, err = t.store.insertBatch(op.Ctx, t.tx, desc, records)
	if err != nil {
		// op.Ctx may already be done.
		undo := context.WithoutCancel(op.Ctx)
		if _, rbErr := t.tx.ExecContext(undo, "ROLLBACK TO SAVEPOINT insert_batch"); rbErr != nil {
			t.broken = storageIO("insert_batch", "failed to undo rejected batch", rbErr).WithType(typeName)
			t.store.log.WithError(rbErr).Error("rollback to savepoint failed, transaction will roll back")
			return nil, err
		}
		if _, relErr := t.tx.ExecContext(undo, "RELEASE SAVEPOINT insert_batch"); relErr != nil {
			t.broken = storageIO("insert_batch", "failed to release savepoint", relErr).WithType(typeName)
		}
		return nil, err
	}
	if _, err := t.tx.ExecContext(context.WithoutCancel(op.Ctx), "RELEASE SAVEPOINT insert_batch"); err != nil {
		t.broken = storageIO("insert_batch", "failed to release savepoint", err).WithType(typeName)
		return nil, t.broken
	}

	t.pending = append(t.pending, pendingIDs{records: records, ids: ids})
	return ids, nil
}

// QueryAll yields every record of a type as seen inside the transaction,
// including uncommitted changes.
func (t *Tx) QueryAll(ctx context.Context, typeName string) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		desc, err := t.resolve(typeName)
		if err != nil {
			yield(nil, err)
			return
		}

		t.mu.Lock()
		err = t.usable("query_all")
		t.mu.Unlock()
		if err != nil {
			yield(nil, err)
			return
		}

		op := t.store.tel.StartOperation(ctx, "query_all", typeName, telemetry.AttrTable.String(desc.Table))
		err = t.store.queryAll(op.Ctx, t.tx, desc, yield)
		op.End(err)
	}
}

// Commit makes the transaction's changes durable and releases the writer permit.
// A transaction holding a batch that could not be undone is rolled back
// instead and Commit returns the StorageIO error that broke it.
func (t *Tx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return errTxDone("commit")
	}
	t.done = true
	defer t.store.writer.Release(1)

	if t.broken != nil {
		t.pending = nil
		if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.store.log.WithError(err).Warn("rollback of broken transaction failed")
		}
		return t.broken
	}

	if err := t.tx.Commit(); err != nil {
		return storageIO("commit", "failed to commit transaction", err)
	}
	for _, p := range t.pending {
		assignIDs(p.records, p.ids)
	}
	t.pending = nil
	return nil
}

// Rollback discards the transaction's changes and releases the writer permit.
// Rolling back a finished transaction is a no-op.
func (t *Tx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	t.pending = nil
	defer t.store.writer.Release(1)

	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return storageIO("rollback", "failed to roll back transaction", err)
	}
	return nil
}

func (t *Tx) resolve(typeName string) (*schema.TypeDescriptor, error) {
	desc, _, err := t.store.resolve(typeName)
	return desc, err
}

// usable must be called with t.mu held.
func (t *Tx) usable(op string) error {
	if t.done {
		return errTxDone(op)
	}
	if t.broken != nil {
		return t.broken
	}
	return nil
}

func errTxDone(op string) error {
	return ormerr.New(ormerr.KindHandleClosed, "transaction already finished").WithOp(op)
}
