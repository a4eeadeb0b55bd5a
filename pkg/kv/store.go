package kv

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/vertexdb/vertexdb/pkg/vterr"
)

const serverIDLength = 16

// bloomFilterKeyspaces lists the fixed-width-prefix keyspaces for which a
// bloom filter pays for itself: type and thing vertex lookups dominate
// point-read traffic.
var bloomFilterKeyspaces = map[string]bool{
	"type-vertex":  true,
	"thing-vertex": true,
}

// Store owns every open keyspace for one database directory, plus the
// database's server_id file.
type Store struct {
	dir string

	mu        sync.RWMutex
	keyspaces map[string]*Keyspace
}

// OpenStore opens the storage/ directory for a database, creating
// server_id on first start.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, vterr.Wrap(vterr.CodeStorageIO, err, "create database directory %s", dir)
	}
	if _, err := ServerID(dir); err != nil {
		return nil, err
	}
	return &Store{dir: dir, keyspaces: make(map[string]*Keyspace)}, nil
}

// Keyspace returns the named keyspace, opening it on first use.
func (s *Store) Keyspace(name string) (*Keyspace, error) {
	s.mu.RLock()
	ks, ok := s.keyspaces[name]
	s.mu.RUnlock()
	if ok {
		return ks, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ks, ok := s.keyspaces[name]; ok {
		return ks, nil
	}
	ks, err := Open(s.dir, name, bloomFilterKeyspaces[name])
	if err != nil {
		return nil, err
	}
	s.keyspaces[name] = ks
	return ks, nil
}

// Close closes every opened keyspace.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, ks := range s.keyspaces {
		if err := ks.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Checkpoint writes a consistent, per-keyspace snapshot of every open
// keyspace under checkpoint/<timestamp>/, plus a STORAGE_METADATA file
// recording watermark in decimal.
func (s *Store) Checkpoint(watermark uint64) (string, error) {
	stamp := strconv.FormatInt(time.Now().UnixNano(), 10)
	dir := filepath.Join(s.dir, "checkpoint", stamp)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ks := range s.keyspaces {
		if err := ks.Checkpoint(dir); err != nil {
			return "", err
		}
	}

	metaPath := filepath.Join(dir, "STORAGE_METADATA")
	if err := os.WriteFile(metaPath, []byte(fmt.Sprintf("%d", watermark)), 0o644); err != nil {
		return "", vterr.Wrap(vterr.CodeStorageIO, err, "write checkpoint metadata")
	}
	return dir, nil
}

// ReadCheckpointWatermark reads the watermark recorded at checkpoint time
// from a checkpoint directory's STORAGE_METADATA file.
func ReadCheckpointWatermark(checkpointDir string) (uint64, error) {
	data, err := os.ReadFile(filepath.Join(checkpointDir, "STORAGE_METADATA"))
	if err != nil {
		return 0, vterr.Wrap(vterr.CodeCheckpointMissing, err, "read checkpoint metadata in %s", checkpointDir)
	}
	watermark, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, vterr.Wrap(vterr.CodeCheckpointCorrupt, err, "parse checkpoint watermark in %s", checkpointDir)
	}
	return watermark, nil
}

// ServerID reads dir/server_id, generating and persisting a new random
// identifier on first start.
func ServerID(dir string) (string, error) {
	path := filepath.Join(dir, "server_id")
	if data, err := os.ReadFile(path); err == nil {
		return string(data), nil
	}

	raw := make([]byte, serverIDLength)
	if _, err := rand.Read(raw); err != nil {
		return "", vterr.Wrap(vterr.CodeStorageIO, err, "generate server_id")
	}
	id := hex.EncodeToString(raw)
	if err := os.WriteFile(path, []byte(id), 0o600); err != nil {
		return "", vterr.Wrap(vterr.CodeStorageIO, err, "persist server_id")
	}
	return id, nil
}
