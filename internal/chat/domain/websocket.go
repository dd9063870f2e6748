package domain

// Action websocket request action
type Action string

const (
	// Join websocket action join
	Join Action = "join"
	// Typing websocket action typing
	Typing Action = "typing"
	// SendMessage websocket action send_message
	SendMessage Action = "send_message"
	// EditMessage websocket action edit_message
	EditMessage Action = "edit_message"
	// DeleteMessage websocket action delete_message
	DeleteMessage Action = "delete_message"
	// ReadMessage websocket action read_message
	ReadMessage Action = "read_message"
)

// WSRequest websocket Request
type WSRequest struct {
	Action      string  `json:"action"`
	RequestID   string  `json:"request_id,omitempty"`
	MemberID    int64   `json:"member_id,omitempty"`
	Content     string  `json:"content,omitempty"`
	ReplyTo     *uint64 `json:"reply_to,omitempty"`
	MessageID   uint64  `json:"message_id,omitempty"`
	IsTyping    bool    `json:"is_typing,omitempty"`
	DisplayName string  `json:"display_name,omitempty"`
}

// WSResponse websocket ack of a WSRequest
type WSResponse struct {
	Action    string                 `json:"action"`
	RequestID string                 `json:"request_id,omitempty"`
	Success   bool                   `json:"success"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Error     string                 `json:"error,omitempty"`
}
