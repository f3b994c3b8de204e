package entities

import "time"

const (
	MessageStatusReceived  = "received"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
)

// Message is unique per (conversation, protocol message id). TextContent and
// MediaCaption hold encrypted tokens, never plaintext.
type Message struct {
	ID             string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_messages_conversation_message,priority:1"`
	MessageID      string    `json:"message_id" gorm:"type:varchar(128);not null;uniqueIndex:idx_messages_conversation_message,priority:2;index"`
	FromMe         bool      `json:"from_me" gorm:"not null;default:false"`
	SenderPhone    string    `json:"sender_phone" gorm:"type:varchar(32)"`
	TextContent    *string   `json:"text_content" gorm:"type:text"`
	HasMedia       bool      `json:"has_media" gorm:"not null;default:false"`
	MediaType      *string   `json:"media_type" gorm:"type:varchar(20)"`
	MediaCaption   *string   `json:"media_caption" gorm:"type:text"`
	MediaFileName  *string   `json:"media_file_name" gorm:"type:varchar(255)"`
	Timestamp      time.Time `json:"timestamp" gorm:"index"`
	Status         string    `json:"status" gorm:"type:varchar(20);not null"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}
