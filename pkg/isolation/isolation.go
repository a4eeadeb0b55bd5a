// Package isolation implements the commit pipeline and conflict detection
// described for the isolation manager: optimistic validation of a write
// snapshot's buffered operations against every commit that landed
// concurrently, between the snapshot's open sequence number and its own
// commit sequence number.
package isolation

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/vertexdb/vertexdb/pkg/durability"
	"github.com/vertexdb/vertexdb/pkg/kv"
	"github.com/vertexdb/vertexdb/pkg/log"
	"github.com/vertexdb/vertexdb/pkg/metrics"
	"github.com/vertexdb/vertexdb/pkg/snapshot"
	"github.com/vertexdb/vertexdb/pkg/vterr"
)

// CommitType distinguishes data commits from schema commits; schema
// commits take the schema lock exclusively, data commits share it.
type CommitType int

const (
	CommitData CommitType = iota
	CommitSchema
)

// committedRecord is the in-memory record of a successful commit, kept
// only long enough to validate commits that opened before it landed.
type committedRecord struct {
	sequence   uint64
	operations map[string][]snapshot.Entry // keyspace -> entries
	locks      map[string]snapshot.LockType
}

// Manager validates and durably applies write-snapshot commits. One
// Manager instance serves one database.
type Manager struct {
	store *kv.Store
	wal   *durability.WAL

	mu        sync.Mutex
	commitSeq uint64
	watermark uint64
	history   []*committedRecord // ordered by sequence, pruned once no live snapshot needs it

	// openWriteSnapshots counts, per open_sn, how many write snapshots
	// are currently live at that open_sn. A history record can only be
	// discarded once every one of them has an open_sn at or past it --
	// each is a future Commit call that will validate against history.
	openWriteSnapshots map[uint64]int

	schemaLock sync.RWMutex

	logger zerolog.Logger
}

// NewManager constructs a Manager over an already-open store and WAL.
func NewManager(store *kv.Store, wal *durability.WAL) *Manager {
	return &Manager{
		store:  store,
		wal:    wal,
		logger: log.Component("isolation"),
	}
}

// Watermark returns the largest sequence number every live snapshot may
// safely observe.
func (m *Manager) Watermark() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watermark
}

// OpenWriteSnapshot returns the current watermark as an open_sn and
// registers it as live, so history pruning will retain every record
// this snapshot might still need to validate against when it commits.
// Callers must pair this with CloseWriteSnapshot once the write
// snapshot it was opened for is committed or discarded. Read snapshots
// never call validate and have no need to register here.
func (m *Manager) OpenWriteSnapshot() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	sn := m.watermark
	if m.openWriteSnapshots == nil {
		m.openWriteSnapshots = make(map[uint64]int)
	}
	m.openWriteSnapshots[sn]++
	return sn
}

// CloseWriteSnapshot releases the registration made by
// OpenWriteSnapshot for the given open_sn, then prunes the history
// records that no remaining live write snapshot needs.
func (m *Manager) CloseWriteSnapshot(openSN uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openWriteSnapshots[openSN] <= 1 {
		delete(m.openWriteSnapshots, openSN)
	} else {
		m.openWriteSnapshots[openSN]--
	}

	floor := m.watermark
	if minOpen, ok := m.minOpenSequenceLocked(); ok && minOpen < floor {
		floor = minOpen
	}
	kept := m.history[:0]
	for _, rec := range m.history {
		if rec.sequence > floor {
			kept = append(kept, rec)
		}
	}
	m.history = kept
}

// minOpenSequenceLocked returns the smallest open_sn among currently
// live write snapshots. Callers must hold m.mu.
func (m *Manager) minOpenSequenceLocked() (uint64, bool) {
	var min uint64
	found := false
	for sn, count := range m.openWriteSnapshots {
		if count <= 0 {
			continue
		}
		if !found || sn < min {
			min = sn
			found = true
		}
	}
	return min, found
}

// AcquireSchemaLock takes the schema commit lock for the given commit
// type: exclusive for schema commits, shared for data commits.
func (m *Manager) AcquireSchemaLock(ct CommitType) func() {
	if ct == CommitSchema {
		m.schemaLock.Lock()
		return m.schemaLock.Unlock
	}
	m.schemaLock.RLock()
	return m.schemaLock.RUnlock
}

// Commit runs the full commit pipeline for ws: append, validate against
// concurrent predecessors, apply on success or roll back on conflict.
func (m *Manager) Commit(ws *snapshot.WriteSnapshot, ct CommitType) (commitSN uint64, err error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CommitDuration)

	record := encodeCommitRecord(ws, ct)
	commitSN, err = m.wal.SequencedWrite(durability.RecordTypeCommit, record)
	if err != nil {
		metrics.CommitsTotal.WithLabelValues("durability_error").Inc()
		return 0, err
	}

	predecessors := m.publish(commitSN)

	if conflictErr := m.validate(ws, ws.OpenSequence, commitSN, predecessors); conflictErr != nil {
		m.writeStatus(commitSN, false)
		ws.Discard()
		metrics.ConflictsTotal.WithLabelValues(string(conflictErr.(*vterr.Error).Code)).Inc()
		metrics.CommitsTotal.WithLabelValues("conflict").Inc()
		return commitSN, conflictErr
	}

	if err := m.apply(ws, commitSN); err != nil {
		m.writeStatus(commitSN, false)
		metrics.CommitsTotal.WithLabelValues("apply_error").Inc()
		return commitSN, err
	}

	m.writeStatus(commitSN, true)
	m.recordCommitted(ws, commitSN)
	m.advanceWatermark()

	metrics.CommitsTotal.WithLabelValues("success").Inc()
	metrics.Watermark.WithLabelValues("commit").Set(float64(m.Watermark()))
	return commitSN, nil
}

// publish registers commitSN as pending and returns every committed
// record whose sequence lies in history, for the caller to filter to the
// (open_sn, commit_sn) window. The critical section here is exactly the
// "assign commit-sn and publish to predecessors list" step the commit
// pipeline requires to observe all predecessors atomically.
func (m *Manager) publish(commitSN uint64) []*committedRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if commitSN > m.commitSeq {
		m.commitSeq = commitSN
	}
	out := make([]*committedRecord, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Manager) validate(ws *snapshot.WriteSnapshot, openSN, commitSN uint64, predecessors []*committedRecord) error {
	for _, pred := range predecessors {
		if pred.sequence <= openSN || pred.sequence >= commitSN {
			continue
		}
		if err := validateAgainstPredecessor(ws, pred); err != nil {
			return err
		}
	}
	return nil
}

func validateAgainstPredecessor(ws *snapshot.WriteSnapshot, pred *committedRecord) error {
	for keyspace, buf := range ws.Buffers() {
		predOps, ok := pred.operations[keyspace]
		if !ok {
			continue
		}
		predByKey := make(map[string]snapshot.Entry, len(predOps))
		for _, e := range predOps {
			predByKey[string(e.Key)] = e
		}

		for _, entry := range buf.All() {
			predEntry, hasPred := predByKey[string(entry.Key)]
			if !hasPred {
				continue
			}

			switch entry.Write.Kind {
			case snapshot.WritePut:
				if predEntry.Write.Kind == snapshot.WriteInsert || predEntry.Write.Kind == snapshot.WritePut {
					buf.MarkReinsert(entry.Key)
				}
				if predEntry.Write.Kind == snapshot.WriteDelete {
					buf.MarkReinsert(entry.Key)
				}
			case snapshot.WriteDelete:
				if lockType, ok := pred.locks[string(entry.Key)]; ok && lockType == snapshot.LockUnmodifiable {
					return vterr.RequireDeletedKey(string(entry.Key))
				}
			}
		}

		for key, lockType := range ws.Locks.All() {
			predLock, ok := pred.locks[key]
			if !ok {
				continue
			}
			if lockType == snapshot.LockUnmodifiable {
				if _, deleted := predByKey[key]; deleted && predByKey[key].Write.Kind == snapshot.WriteDelete {
					return vterr.RequireDeletedKey(key)
				}
			}
			if lockType == snapshot.LockExclusive && predLock == snapshot.LockExclusive {
				return vterr.ExclusiveLock(key)
			}
		}
	}
	return nil
}

func (m *Manager) apply(ws *snapshot.WriteSnapshot, commitSN uint64) error {
	for keyspaceName, buf := range ws.Buffers() {
		ks, err := m.store.Keyspace(keyspaceName)
		if err != nil {
			return err
		}
		for _, entry := range buf.All() {
			value := entry.Write.Value
			if entry.Write.Kind == snapshot.WriteDelete {
				value = nil
			}
			if err := snapshot.CommitVersion(ks, entry.Key, commitSN, value); err != nil {
				return vterr.Wrap(vterr.CodeStorageIO, err, "apply commit %d", commitSN)
			}
		}
	}
	return nil
}

func (m *Manager) writeStatus(commitSN uint64, wasCommitted bool) {
	data := encodeStatusRecord(commitSN, wasCommitted)
	if err := m.wal.UnsequencedWrite(durability.RecordTypeStatus, data); err != nil {
		m.logger.Error().Err(err).Uint64("commit_sequence", commitSN).Msg("failed to write status record")
	}
}

func (m *Manager) recordCommitted(ws *snapshot.WriteSnapshot, commitSN uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ops := make(map[string][]snapshot.Entry, len(ws.Buffers()))
	for keyspace, buf := range ws.Buffers() {
		ops[keyspace] = buf.All()
	}
	locks := make(map[string]snapshot.LockType, len(ws.Locks.All()))
	for k, v := range ws.Locks.All() {
		locks[k] = v
	}

	m.history = append(m.history, &committedRecord{sequence: commitSN, operations: ops, locks: locks})
}

// advanceWatermark moves the watermark to the largest contiguous
// committed sequence number and prunes history entries that neither a
// future snapshot (one that will open at the new watermark) nor any
// currently live write snapshot could still need to validate against.
//
// This implementation advances conservatively: it only looks at commits
// already recorded in-memory, so gaps from in-flight commits still being
// validated naturally stall the watermark until they land.
func (m *Manager) advanceWatermark() {
	m.mu.Lock()
	defer m.mu.Unlock()

	seqSet := make(map[uint64]bool, len(m.history))
	for _, rec := range m.history {
		seqSet[rec.sequence] = true
	}

	next := m.watermark + 1
	for seqSet[next] {
		m.watermark = next
		next++
	}

	// A record is only safe to discard once its sequence is at or below
	// every live write snapshot's open_sn; otherwise that snapshot's
	// eventual Commit still needs to validate against it, even though
	// the record is already below the contiguous commit frontier.
	floor := m.watermark
	if minOpen, ok := m.minOpenSequenceLocked(); ok && minOpen < floor {
		floor = minOpen
	}

	kept := m.history[:0]
	for _, rec := range m.history {
		if rec.sequence > floor {
			kept = append(kept, rec)
		}
	}
	m.history = kept
}
