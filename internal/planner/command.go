package planner

import (
	"time"

	"github.com/benvon/family-planner/internal/models"
)

// CommandKind names a persistence operation
type CommandKind string

const (
	CmdUpsertStatus CommandKind = "upsert_status"
	CmdDeleteStatus CommandKind = "delete_status"
	CmdInsertDay    CommandKind = "insert_day"
	CmdUpdateDay    CommandKind = "update_day"
	CmdDeleteDay    CommandKind = "delete_day"
	CmdInsertItem   CommandKind = "insert_item"
	CmdDeleteItem   CommandKind = "delete_item"
	CmdReorderDay   CommandKind = "reorder_day"
	CmdUpsertNote   CommandKind = "upsert_note"
	CmdDeleteNote   CommandKind = "delete_note"
)

// Command is one durable write produced by a store mutation. Commands are
// idempotent and stamped with IssuedAt, so a failed one can be retried or
// replayed later as-is without overwriting newer writes.
//
// Field use by kind:
//   - status:      ActivityID, Status
//   - insert_day:  DayID, Label, Date, SortOrder, ActivityIDs (seeded items)
//   - update_day:  DayID, Label, Date
//   - delete_day:  DayID
//   - insert_item: DayID, ActivityID, SortOrder, ActivityIDs (full sequence)
//   - delete_item: DayID, ActivityID, ActivityIDs (remaining sequence)
//   - reorder_day: DayID, ActivityIDs (full sequence)
//   - note:        ActivityID, Note
type Command struct {
	Kind        CommandKind           `json:"kind"`
	PlanID      string                `json:"plan_id"`
	ActivityID  string                `json:"activity_id,omitempty"`
	DayID       string                `json:"day_id,omitempty"`
	Status      models.ActivityStatus `json:"status,omitempty"`
	Label       string                `json:"label,omitempty"`
	Date        *string               `json:"date,omitempty"`
	SortOrder   int                   `json:"sort_order"`
	ActivityIDs []string              `json:"activity_ids,omitempty"`
	Note        string                `json:"note,omitempty"`
	IssuedAt    time.Time             `json:"issued_at"`
	Attempts    int                   `json:"attempts"`
}

// Key identifies the record a command writes, for logging and de-duplication
func (c Command) Key() string {
	switch c.Kind {
	case CmdUpsertStatus, CmdDeleteStatus:
		return "status:" + c.ActivityID
	case CmdUpsertNote, CmdDeleteNote:
		return "note:" + c.ActivityID
	case CmdInsertItem, CmdDeleteItem:
		return "item:" + c.DayID + ":" + c.ActivityID
	default:
		return "day:" + c.DayID
	}
}

// Sink receives commands after the in-memory change is applied. Dispatch is
// called with the store lock held, so commands arrive in mutation order; it
// must not block on I/O or call back into the store.
type Sink interface {
	Dispatch(cmd Command)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(cmd Command)

// Dispatch calls f(cmd)
func (f SinkFunc) Dispatch(cmd Command) { f(cmd) }

type discardSink struct{}

func (discardSink) Dispatch(Command) {}
