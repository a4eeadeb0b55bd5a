// Package database wires storage, durability, isolation, schema, and
// thing management into a single opened database, and exposes the
// transaction and query surface that runs pattern queries against it.
package database

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/vertexdb/vertexdb/pkg/concept/thing"
	"github.com/vertexdb/vertexdb/pkg/concept/typesystem"
	"github.com/vertexdb/vertexdb/pkg/durability"
	"github.com/vertexdb/vertexdb/pkg/isolation"
	"github.com/vertexdb/vertexdb/pkg/kv"
	"github.com/vertexdb/vertexdb/pkg/log"
	"github.com/vertexdb/vertexdb/pkg/snapshot"
	"github.com/vertexdb/vertexdb/pkg/vterr"
)

// Database bundles one database directory's storage, durability log,
// isolation manager, and concept managers. One Database instance serves
// every transaction opened against it.
type Database struct {
	Name string
	Dir  string

	store *kv.Store
	wal   *durability.WAL

	iso    *isolation.Manager
	types  *typesystem.Manager
	things *thing.Manager

	logger zerolog.Logger
}

// open starts every component over an already-created directory.
func open(name, dir string) (*Database, error) {
	store, err := kv.OpenStore(dir)
	if err != nil {
		return nil, vterr.Wrap(vterr.CodeStorageIO, err, "open keyspaces for database %q", name)
	}

	wal, err := durability.Open(dir)
	if err != nil {
		store.Close()
		return nil, vterr.Wrap(vterr.CodeDurabilityIO, err, "open durability log for database %q", name)
	}

	gen, err := thing.NewObjectIDGenerator(store)
	if err != nil {
		wal.Close()
		store.Close()
		return nil, err
	}

	iso := isolation.NewManager(store, wal)

	bootstrap := snapshot.NewWriteSnapshot(store, iso.Watermark())
	types, err := typesystem.NewManager(iso, bootstrap)
	if err != nil {
		wal.Close()
		store.Close()
		return nil, err
	}

	return &Database{
		Name:   name,
		Dir:    dir,
		store:  store,
		wal:    wal,
		iso:    iso,
		types:  types,
		things: thing.NewManager(gen),
		logger: log.WithDatabase(name),
	}, nil
}

// Close releases the database's durability log and keyspace files.
// Open transactions are not tracked here; the caller is responsible for
// closing every transaction it opened first.
func (db *Database) Close() error {
	walErr := db.wal.Close()
	storeErr := db.store.Close()
	if walErr != nil {
		return walErr
	}
	return storeErr
}

// Begin opens a new transaction of the given kind.
func (db *Database) Begin(kind TransactionKind) *Transaction {
	return newTransaction(db, kind)
}

func databaseDir(root, name string) string {
	return filepath.Join(root, name)
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
