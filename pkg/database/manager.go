package database

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vertexdb/vertexdb/pkg/log"
	"github.com/vertexdb/vertexdb/pkg/vterr"
)

// reservedPrefix marks database names internal to the server itself;
// user-facing database APIs reject any name carrying it.
const reservedPrefix = "_vertexdb_"

// Manager owns every open Database under one root directory, keyed by
// name. Create, Delete, Reset, CloseAll and Open's first reference hold
// the map's write lock; List and Open of an already-open database only
// need the read lock.
type Manager struct {
	root string

	mu        sync.RWMutex
	databases map[string]*Database
}

// NewManager prepares a database manager rooted at dir, creating dir if
// it does not already exist. It does not eagerly open any database.
func NewManager(dir string) (*Manager, error) {
	if err := ensureDir(dir); err != nil {
		return nil, vterr.Wrap(vterr.CodeStorageIO, err, "create database root %q", dir)
	}
	return &Manager{root: dir, databases: make(map[string]*Database)}, nil
}

// IsReserved reports whether name is reserved for internal use.
func IsReserved(name string) bool {
	return strings.HasPrefix(name, reservedPrefix)
}

// Create opens a brand new database named name, failing if one already
// exists on disk or name is reserved.
func (m *Manager) Create(name string) (*Database, error) {
	if IsReserved(name) {
		return nil, vterr.New(vterr.CodeReservedDatabase, "database name "+name+" is reserved")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.databases[name]; ok {
		return nil, vterr.New(vterr.CodeDatabaseExists, "database "+name+" already open")
	}

	dir := databaseDir(m.root, name)
	if _, err := os.Stat(dir); err == nil {
		return nil, vterr.New(vterr.CodeDatabaseExists, "database "+name+" already exists on disk")
	}
	if err := ensureDir(dir); err != nil {
		return nil, vterr.Wrap(vterr.CodeStorageIO, err, "create database directory %q", dir)
	}

	db, err := open(name, dir)
	if err != nil {
		return nil, err
	}
	m.databases[name] = db
	log.Logger.Info().Str("database", name).Msg("database created")
	return db, nil
}

// Open returns the named database, opening it from disk on first
// reference. Reserved names are permitted here since internal callers
// (not user-facing APIs) are the only ones expected to open them.
func (m *Manager) Open(name string) (*Database, error) {
	m.mu.RLock()
	if db, ok := m.databases[name]; ok {
		m.mu.RUnlock()
		return db, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if db, ok := m.databases[name]; ok {
		return db, nil
	}

	dir := databaseDir(m.root, name)
	if _, err := os.Stat(dir); err != nil {
		return nil, vterr.New(vterr.CodeDatabaseNotFound, "database "+name+" not found")
	}
	db, err := open(name, dir)
	if err != nil {
		return nil, err
	}
	m.databases[name] = db
	return db, nil
}

// Delete closes and permanently removes the named database. Reserved
// names are rejected before the map or the disk is touched.
func (m *Manager) Delete(name string) error {
	if IsReserved(name) {
		return vterr.New(vterr.CodeReservedDatabase, "database name "+name+" is reserved")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if db, ok := m.databases[name]; ok {
		if err := db.Close(); err != nil {
			return err
		}
		delete(m.databases, name)
	}

	dir := databaseDir(m.root, name)
	if err := os.RemoveAll(dir); err != nil {
		return vterr.Wrap(vterr.CodeStorageIO, err, "delete database directory %q", dir)
	}
	log.Logger.Info().Str("database", name).Msg("database deleted")
	return nil
}

// Reset closes, deletes, and recreates the named database empty. It is
// Delete followed by Create, each taking the map's write lock on its
// own, so the wipe is not atomic: between the two steps the name is
// free and another caller's Create can take it, in which case Reset
// fails with CodeDatabaseExists.
func (m *Manager) Reset(name string) (*Database, error) {
	if err := m.Delete(name); err != nil {
		return nil, err
	}
	return m.Create(name)
}

// List returns the names of every database currently open in this
// manager.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.databases))
	for name := range m.databases {
		names = append(names, name)
	}
	return names
}

// ListOnDisk returns the names of every database directory under the
// manager's root, whether or not it is currently open, for callers
// (like the CLI) that want to see what exists across restarts.
func (m *Manager) ListOnDisk() ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, vterr.Wrap(vterr.CodeStorageIO, err, "list database root %q", m.root)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// ServerID returns the root directory's persisted server identifier,
// generating and persisting a fresh one on first start.
func (m *Manager) ServerID() (string, error) {
	path := filepath.Join(m.root, "server_id")
	if data, err := os.ReadFile(path); err == nil {
		return strings.TrimSpace(string(data)), nil
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id), 0o644); err != nil {
		return "", vterr.Wrap(vterr.CodeStorageIO, err, "persist server_id at %q", path)
	}
	return id, nil
}

// CloseAll closes every open database, for server shutdown.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for name, db := range m.databases {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.databases, name)
	}
	return firstErr
}
