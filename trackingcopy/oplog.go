package trackingcopy

import (
	"sort"

	"github.com/vireonet/txcore/key"
)

// Op classifies the strongest operation observed against a key: a later
// Write or Add always supersedes an earlier Read in the recorded log, since
// callers asking "what did this deploy touch" care about the strongest
// guarantee, not every intermediate step.
type Op int

const (
	OpRead Op = iota
	OpAdd
	OpWrite
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "Read"
	case OpAdd:
		return "Add"
	case OpWrite:
		return "Write"
	default:
		return "Unknown"
	}
}

// OpEntry pairs a key with the strongest op recorded against it.
type OpEntry struct {
	Key key.Key
	Op  Op
}

// OpLog tracks, per key, the strongest operation a tracking copy has
// performed against it. It mirrors AdditiveMap's shape (byte-keyed,
// deterministically ordered Entries) without sharing its Transform
// semantics.
type OpLog struct {
	byKeyBytes map[string]Op
	keys       map[string]key.Key
}

func newOpLog() *OpLog {
	return &OpLog{byKeyBytes: make(map[string]Op), keys: make(map[string]key.Key)}
}

func (l *OpLog) record(k key.Key, op Op) {
	id := string(k.Bytes())
	l.keys[id] = k
	if existing, ok := l.byKeyBytes[id]; !ok || op > existing {
		l.byKeyBytes[id] = op
	}
}

func (l *OpLog) clone() *OpLog {
	out := newOpLog()
	for id, op := range l.byKeyBytes {
		out.byKeyBytes[id] = op
		out.keys[id] = l.keys[id]
	}
	return out
}

// Entries returns every (key, op) pair in ascending canonical-byte order.
func (l *OpLog) Entries() []OpEntry {
	ids := make([]string, 0, len(l.byKeyBytes))
	for id := range l.byKeyBytes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]OpEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, OpEntry{Key: l.keys[id], Op: l.byKeyBytes[id]})
	}
	return out
}

func (l *OpLog) Len() int { return len(l.byKeyBytes) }
