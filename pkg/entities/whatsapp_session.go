package entities

import (
	"time"
)

const (
	SessionStatusDisconnected = "disconnected"
	SessionStatusConnecting   = "connecting"
	SessionStatusConnected    = "connected"
	SessionStatusError        = "error"
)

// WhatsAppSession is the durable record of one named WhatsApp connection in a workspace.
type WhatsAppSession struct {
	ID              uint       `json:"-" gorm:"primaryKey"`
	SessionID       string     `json:"session_id" gorm:"type:varchar(128);uniqueIndex;not null"`
	SessionName     string     `json:"session_name" gorm:"type:varchar(255);not null;uniqueIndex:idx_wa_sessions_workspace_name,priority:2"`
	WorkspaceID     string     `json:"workspace_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_wa_sessions_workspace_name,priority:1"`
	Status          string     `json:"status" gorm:"type:varchar(20);not null;default:'disconnected';index"`
	QRCode          string     `json:"qr_code" gorm:"type:text"`
	PhoneNumber     string     `json:"phone_number" gorm:"type:varchar(32)"`
	LastConnectedAt *time.Time `json:"last_connected_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (WhatsAppSession) TableName() string {
	return "whatsapp_sessions"
}
