package favorites

// EventKind names a favorites change.
type EventKind string

const (
	EventToggled   EventKind = "toggled"
	EventReverted  EventKind = "reverted"
	EventRefreshed EventKind = "refreshed"
	EventLoaded    EventKind = "loaded"
)

// Event carries the favorite ids after the change.
type Event struct {
	Kind      EventKind
	ProductID int64
	IDs       []int64
}
