package isolation

import (
	"encoding/json"

	"github.com/vertexdb/vertexdb/pkg/snapshot"
)

// commitRecordOp is the JSON-serializable shape of one buffered write,
// persisted as part of a CommitRecord.
type commitRecordOp struct {
	Keyspace string `json:"keyspace"`
	Key      []byte `json:"key"`
	Kind     int    `json:"kind"`
	Value    []byte `json:"value,omitempty"`
}

type commitRecordPayload struct {
	OpenSequenceNumber uint64           `json:"open_sequence_number"`
	CommitType         int              `json:"commit_type"`
	Operations         []commitRecordOp `json:"operations"`
	Locks              map[string]int   `json:"locks"`
}

// encodeCommitRecord serializes a write snapshot's buffered operations
// and locks into the persisted CommitRecord payload, matching the
// teacher's Command{Op,Data}-style JSON envelope idiom used throughout
// its FSM.
func encodeCommitRecord(ws *snapshot.WriteSnapshot, ct CommitType) []byte {
	payload := commitRecordPayload{
		OpenSequenceNumber: ws.OpenSequence,
		CommitType:         int(ct),
		Locks:              make(map[string]int),
	}
	for keyspace, buf := range ws.Buffers() {
		for _, entry := range buf.All() {
			payload.Operations = append(payload.Operations, commitRecordOp{
				Keyspace: keyspace,
				Key:      entry.Key,
				Kind:     int(entry.Write.Kind),
				Value:    entry.Write.Value,
			})
		}
	}
	for key, lockType := range ws.Locks.All() {
		payload.Locks[key] = int(lockType)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		// Operations buffers contain only []byte and primitives; this
		// cannot fail in practice.
		panic(err)
	}
	return data
}

// statusRecordPayload is the persisted StatusRecord shape.
type statusRecordPayload struct {
	CommitSN     uint64 `json:"commit_sn"`
	WasCommitted bool   `json:"was_committed"`
}

func encodeStatusRecord(commitSN uint64, wasCommitted bool) []byte {
	data, err := json.Marshal(statusRecordPayload{CommitSN: commitSN, WasCommitted: wasCommitted})
	if err != nil {
		panic(err)
	}
	return data
}

// DecodeStatusRecord parses a StatusRecord read back from the durability
// log during recovery.
func DecodeStatusRecord(data []byte) (commitSN uint64, wasCommitted bool, err error) {
	var payload statusRecordPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, false, err
	}
	return payload.CommitSN, payload.WasCommitted, nil
}
