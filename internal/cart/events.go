package cart

// EventKind names a cart mutation.
type EventKind string

const (
	EventItemAdded   EventKind = "item_added"
	EventItemUpdated EventKind = "item_updated"
	EventItemRemoved EventKind = "item_removed"
	EventCleared     EventKind = "cleared"
	EventLoaded      EventKind = "loaded"
	EventCheckedOut  EventKind = "checked_out"
)

// Event is delivered to subscribers after a mutation commits. Items is the
// cart contents after the change.
type Event struct {
	Kind      EventKind
	ProductID int64
	Items     []Item
}
