package durability

// RecordType tags the payload kind of a durability record, mirroring the
// raft.LogType byte so the underlying log store needs no translation.
type RecordType uint8

const (
	RecordTypeCommit RecordType = iota + 1
	RecordTypeStatus
	RecordTypeSchema
)

// Record is one typed entry in the durability log.
type Record struct {
	Sequence uint64
	Type     RecordType
	Data     []byte
}

// registry maps a RecordType to its declared name, populated by
// RegisterRecordType and consulted only for logging.
var registry = map[RecordType]string{
	RecordTypeCommit: "commit_record",
	RecordTypeStatus: "status_record",
	RecordTypeSchema: "schema_record",
}

// RegisterRecordType declares a name for a record type tag. Built-in types
// are pre-registered; callers may register additional tags for their own
// record kinds.
func RegisterRecordType(t RecordType, name string) {
	registry[t] = name
}

// RecordTypeName returns the declared name for t, or "unknown".
func RecordTypeName(t RecordType) string {
	if name, ok := registry[t]; ok {
		return name
	}
	return "unknown"
}
