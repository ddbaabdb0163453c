package models

// Push event names delivered over the websocket channel.
const (
	EventNewMessage      = "newMessage"
	EventRefreshUsers    = "refreshUsers"
	EventPresenceChanged = "presenceChanged"
)

// Event is the envelope pushed to connected clients.
type Event struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
	UserIDs []int    `json:"user_ids,omitempty"`
}

// NewMessageEvent wraps a freshly persisted message for push delivery.
func NewMessageEvent(msg Message) Event {
	return Event{Type: EventNewMessage, Message: &msg}
}

// RefreshUsersEvent tells a client to refetch its sidebar.
func RefreshUsersEvent() Event {
	return Event{Type: EventRefreshUsers}
}

// PresenceChangedEvent carries the full set of online user ids.
func PresenceChangedEvent(ids []int) Event {
	return Event{Type: EventPresenceChanged, UserIDs: ids}
}
