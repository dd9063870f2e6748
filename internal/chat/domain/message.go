package domain

import "time"

const (
	// DefaultListLimit plain list page size
	DefaultListLimit = 50
	// DefaultSearchLimit search page size
	DefaultSearchLimit = 20
	// MaxListLimit upper bound of one page
	MaxListLimit = 200
)

// Message 團隊聊天訊息 (table team_chats)
// sender_id 建立後不可變更, 已讀狀態另存 message_read_status
type Message struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SenderID  int64     `gorm:"column:sender_id;not null;index" json:"senderId"`
	Body      string    `gorm:"column:message;type:text;not null" json:"message"`
	ReplyTo   *uint64   `gorm:"column:reply_to" json:"replyTo"`
	FileURL   *string   `gorm:"column:file_url" json:"fileUrl"`
	FileName  *string   `gorm:"column:file_name" json:"fileName"`
	FileSize  *int64    `gorm:"column:file_size" json:"fileSize"`
	IsEdited  bool      `gorm:"column:is_edited;not null;default:false" json:"isEdited"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName gorm table name
func (Message) TableName() string {
	return "team_chats"
}

// Attachment return file part, nil when message has no file
func (m Message) Attachment() *Attachment {
	if m.FileURL == nil {
		return nil
	}
	a := &Attachment{URL: *m.FileURL}
	if m.FileName != nil {
		a.Name = *m.FileName
	}
	if m.FileSize != nil {
		a.Size = *m.FileSize
	}
	return a
}

// Attachment uploaded file metadata
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// NewMessage append input, id & timestamps are assigned by the store
type NewMessage struct {
	SenderID   int64
	Body       string
	ReplyTo    *uint64
	Attachment *Attachment
}

// ListFilter list / search condition
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}

// Normalize fill default page size and clamp range
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
		if f.Search != "" {
			f.Limit = DefaultSearchLimit
		}
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// ReadReceipt 已讀紀錄 (table message_read_status)
type ReadReceipt struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	MessageID uint64    `gorm:"column:message_id;not null;uniqueIndex:idx_read_message_user" json:"messageId"`
	MemberID  int64     `gorm:"column:user_id;not null;uniqueIndex:idx_read_message_user" json:"userId"`
	ReadAt    time.Time `gorm:"column:read_at;not null" json:"readAt"`
}

// TableName gorm table name
func (ReadReceipt) TableName() string {
	return "message_read_status"
}

// EnrichedMessage message with sender presentation data
type EnrichedMessage struct {
	Message
	SenderName string `json:"senderName"`
	SenderRole string `json:"senderRole"`
}
