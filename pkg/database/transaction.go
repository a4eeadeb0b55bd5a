package database

import (
	"github.com/google/uuid"

	"github.com/vertexdb/vertexdb/pkg/concept/thing"
	"github.com/vertexdb/vertexdb/pkg/concept/typesystem"
	"github.com/vertexdb/vertexdb/pkg/isolation"
	"github.com/vertexdb/vertexdb/pkg/metrics"
	"github.com/vertexdb/vertexdb/pkg/snapshot"
	"github.com/vertexdb/vertexdb/pkg/vterr"
)

// TransactionKind distinguishes the three transaction shapes a database
// supports. Read holds only a snapshot; Write holds a write snapshot and
// the schema lock in shared mode; Schema holds a write snapshot and the
// schema lock exclusively.
type TransactionKind int

const (
	Read TransactionKind = iota
	Write
	Schema
)

func (k TransactionKind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	case Schema:
		return "schema"
	default:
		return "unknown"
	}
}

func (k TransactionKind) commitType() isolation.CommitType {
	if k == Schema {
		return isolation.CommitSchema
	}
	return isolation.CommitData
}

// Transaction is one open unit of work against a Database. It carries
// its own view of storage (a read or write snapshot), the type and
// thing managers it reads concepts through, and a QueryManager that
// compiles and runs pattern queries against that view.
type Transaction struct {
	ID   string
	Kind TransactionKind

	db *Database

	read    *snapshot.ReadSnapshot
	write   *snapshot.WriteSnapshot
	openSN  uint64 // write snapshots only: open_sn registered with the isolation manager
	release func() // unlocks the schema lock acquired at open time

	Types  *typesystem.Manager
	Things *thing.Manager
	Query  *QueryManager

	closed bool
}

func newTransaction(db *Database, kind TransactionKind) *Transaction {
	release := db.iso.AcquireSchemaLock(kind.commitType())

	tx := &Transaction{
		ID:      uuid.NewString(),
		Kind:    kind,
		db:      db,
		release: release,
		Types:   db.types,
		Things:  db.things,
	}

	if kind == Read {
		tx.read = snapshot.NewReadSnapshot(db.store, db.iso.Watermark())
	} else {
		// OpenWriteSnapshot both reads the watermark and registers it as
		// live in the same locked step, so a concurrent commit's history
		// pruning can never drop a record this transaction's eventual
		// Commit will still need to validate against.
		tx.openSN = db.iso.OpenWriteSnapshot()
		tx.write = snapshot.NewWriteSnapshot(db.store, tx.openSN)
	}
	tx.Query = newQueryManager(tx)

	metrics.TransactionsOpenTotal.WithLabelValues(kind.String()).Inc()
	metrics.SnapshotsOpenTotal.Inc()
	db.logger.Debug().Str("transaction_id", tx.ID).Str("kind", kind.String()).Msg("transaction opened")
	return tx
}

// reader returns the thing.Reader this transaction scans against,
// whichever of its two snapshot kinds is live.
func (tx *Transaction) reader() thing.Reader {
	if tx.write != nil {
		return tx.write
	}
	return tx.read
}

// writeSnapshot returns the transaction's write snapshot, or an error if
// this is a read transaction attempting a write operation.
func (tx *Transaction) writeSnapshot() (*snapshot.WriteSnapshot, error) {
	if tx.write == nil {
		return nil, vterr.New(vterr.CodeMissingInputVariable, "transaction is read-only")
	}
	return tx.write, nil
}

// Commit durably applies a write or schema transaction. Read
// transactions simply close, releasing the shared schema lock.
func (tx *Transaction) Commit() error {
	if tx.closed {
		return nil
	}
	defer tx.finish()

	if tx.write == nil {
		return nil
	}

	commitSN, err := tx.db.iso.Commit(tx.write, tx.Kind.commitType())
	if err != nil {
		return err
	}
	if tx.Kind == Schema {
		// Republish the type cache from a fresh, unbuffered view at the
		// commit's own sequence number so it observes exactly what just
		// landed, per schema commits swapping the cache out atomically.
		view := snapshot.NewWriteSnapshot(tx.db.store, commitSN)
		if err := tx.Types.Rebuild(view); err != nil {
			return err
		}
	}
	tx.db.logger.Debug().Str("transaction_id", tx.ID).Uint64("commit_sn", commitSN).Msg("transaction committed")
	return nil
}

// Close discards any buffered writes and releases the transaction's
// schema lock without committing. Safe to call after Commit.
func (tx *Transaction) Close() {
	if tx.closed {
		return
	}
	if tx.write != nil {
		tx.write.Discard()
	}
	tx.finish()
}

func (tx *Transaction) finish() {
	tx.closed = true
	if tx.write != nil {
		tx.db.iso.CloseWriteSnapshot(tx.openSN)
	}
	tx.release()
	metrics.TransactionsOpenTotal.WithLabelValues(tx.Kind.String()).Dec()
	metrics.SnapshotsOpenTotal.Dec()
}
