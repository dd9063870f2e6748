package domain

// EventType server push event name
type EventType string

const (
	// EventOnlineMembers snapshot sent to a newly joined connection
	EventOnlineMembers EventType = "online-members"
	// EventMemberOnline identity came online
	EventMemberOnline EventType = "member-online"
	// EventMemberOffline identity went offline
	EventMemberOffline EventType = "member-offline"
	// EventUserTyping typing relay
	EventUserTyping EventType = "user-typing"
	// EventNewMessage new / uploaded message
	EventNewMessage EventType = "new-message"
	// EventMessageEdited edited message
	EventMessageEdited EventType = "message-edited"
	// EventMessageDeleted deleted message id
	EventMessageDeleted EventType = "message-deleted"
	// EventMessageReadUpdate read receipt
	EventMessageReadUpdate EventType = "message-read-update"
	// EventError protocol error
	EventError EventType = "error"
)

// Event server push frame
type Event struct {
	Type    EventType   `json:"event"`
	Payload interface{} `json:"payload"`
}

// OnlineMembersPayload payload of online-members
type OnlineMembersPayload struct {
	Members []int64 `json:"members"`
}

// PresencePayload payload of member-online / member-offline
type PresencePayload struct {
	MemberID int64 `json:"memberId"`
}

// TypingPayload payload of user-typing, addressed by stable id
type TypingPayload struct {
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

// MessageDeletedPayload payload of message-deleted
type MessageDeletedPayload struct {
	MessageID uint64 `json:"messageId"`
}

// ReadUpdatePayload payload of message-read-update
type ReadUpdatePayload struct {
	MessageID uint64 `json:"messageId"`
	ReadBy    int64  `json:"readBy"`
}

// ErrorPayload payload of error
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewEvent build event
func NewEvent(t EventType, payload interface{}) Event {
	return Event{Type: t, Payload: payload}
}
