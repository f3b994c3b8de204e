package entities

import "time"

type Conversation struct {
	ID            string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	WorkspaceID   string    `json:"workspace_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_conversations_workspace_contact,priority:1"`
	ContactID     string    `json:"contact_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_conversations_workspace_contact,priority:2"`
	LastMessageAt time.Time `json:"last_message_at" gorm:"index"`
	UnreadCount   int       `json:"unread_count" gorm:"not null;default:0"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Contact Contact `json:"contact" gorm:"foreignKey:ContactID"`
}

func (Conversation) TableName() string {
	return "conversations"
}
