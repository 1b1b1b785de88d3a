package bus

import "time"

// Event kinds published by the sync core. Subscribers filter by prefix,
// e.g. "action." or "directory.".
const (
	DirectoryChanged    = "directory.changed"
	DirectoryRefreshed  = "directory.refreshed"
	DirectoryCleared    = "directory.cleared"
	ChatMessageMerged   = "chat.message_merged"
	ChatMessageDropped  = "chat.message_dropped"
	ActionCommitted     = "action.committed"
	ActionRolledBack    = "action.rolled_back"
	ActionCompensated   = "action.compensated"
	SearchFinished      = "search.finished"
	SessionStatusChange = "session.status_changed"
)

// Event represents a state change published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
