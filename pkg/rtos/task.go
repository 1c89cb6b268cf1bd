package rtos

import (
	"sort"
	"time"
)

// TaskState is the scheduling state a task was reconstructed from.
type TaskState int

const (
	StateReady TaskState = iota
	StateBlocked
	StateSuspended
	StateTerminated
	StateRunning
)

var taskStateStrings = [...]string{
	StateReady:      "READY",
	StateBlocked:    "BLOCKED",
	StateSuspended:  "SUSPENDED",
	StateTerminated: "TERMINATED",
	StateRunning:    "RUNNING",
}

func (s TaskState) String() string {
	if int(s) < len(taskStateStrings) {
		return taskStateStrings[s]
	}
	return "UNKNOWN"
}

// Growth is the direction a stack grows in, derived once per task from
// the sign of (stack base - stack end) and consumed by both the raw-read
// address calculation and the byte-order normalization.
type Growth int

const (
	GrowsDown Growth = iota // base above end, top moves toward lower addresses
	GrowsUp
)

func (g Growth) String() string {
	if g == GrowsUp {
		return "up"
	}
	return "down"
}

// StackInfo holds the stack bounds and usage of one task. EndAddr, Size,
// PeakUsed and Free are only present when the kernel build records a
// static end-of-stack bound; absence means not measurable, never zero.
type StackInfo struct {
	StartAddr uint64 `json:"start_addr"`
	TopAddr   uint64 `json:"top_addr"`
	CurUsed   uint64 `json:"cur_used"`
	Growth    Growth `json:"-"`

	EndAddr  *uint64 `json:"end_addr,omitempty"`
	Size     *uint64 `json:"size,omitempty"`
	PeakUsed *uint64 `json:"peak_used,omitempty"`
	Free     *uint64 `json:"free,omitempty"`
}

// TaskRecord is one reconstructed task. Records are built fresh on every
// collection pass and never mutated after creation; Addr is the TCB
// address and doubles as identity and fallback sort key.
type TaskRecord struct {
	ID           *uint64   `json:"id,omitempty"`
	Addr         uint64    `json:"addr"`
	Name         string    `json:"name"`
	State        TaskState `json:"-"`
	Priority     uint64    `json:"priority"`
	BasePriority *uint64   `json:"base_priority,omitempty"`
	RuntimePct   *string   `json:"runtime_pct,omitempty"`
	Stack        StackInfo `json:"stack"`
}

// Snapshot is the published, immutable result of one collection pass.
type Snapshot struct {
	Records       []TaskRecord  `json:"tasks"`
	DeclaredCount int           `json:"declared_count"`
	Stale         bool          `json:"stale"`
	TakenAt       time.Time     `json:"taken_at"`
	Elapsed       time.Duration `json:"elapsed_ns"`

	// Warning carries non-fatal findings (count mismatch); Diagnostic
	// explains an empty or degraded snapshot.
	Warning    string `json:"warning,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// sortRecords orders by ID when every record carries one, otherwise by
// TCB address. Ascending and deterministic either way.
func sortRecords(records []TaskRecord) {
	byID := true
	for i := range records {
		if records[i].ID == nil {
			byID = false
			break
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		if byID {
			return *records[i].ID < *records[j].ID
		}
		return records[i].Addr < records[j].Addr
	})
}
