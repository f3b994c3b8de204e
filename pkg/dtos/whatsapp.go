package dtos

import "time"

type CreateSessionDTO struct {
	SessionID   string `json:"session_id" binding:"omitempty,max=128"`
	SessionName string `json:"session_name" binding:"required,max=255"`
}

type SessionDTO struct {
	SessionID       string     `json:"session_id"`
	SessionName     string     `json:"session_name"`
	Status          string     `json:"status"`
	QRCode          string     `json:"qr_code,omitempty"`
	PhoneNumber     string     `json:"phone_number,omitempty"`
	LastConnectedAt *time.Time `json:"last_connected_at,omitempty"`
}

type SendMessageDTO struct {
	PhoneNumber string `json:"phone_number" binding:"required,isphone"`
	Message     string `json:"message" binding:"required"`
}

type MessageDTO struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	FromMe         bool      `json:"from_me"`
	SenderPhone    string    `json:"sender_phone"`
	Text           string    `json:"text,omitempty"`
	HasMedia       bool      `json:"has_media"`
	MediaType      string    `json:"media_type,omitempty"`
	MediaCaption   string    `json:"media_caption,omitempty"`
	MediaFileName  string    `json:"media_file_name,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Status         string    `json:"status"`
}

type ContactDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

type ConversationDTO struct {
	ID            string     `json:"id"`
	Contact       ContactDTO `json:"contact"`
	LastMessageAt time.Time  `json:"last_message_at"`
	UnreadCount   int        `json:"unread_count"`
}

type ConversationPageDTO struct {
	Page          int               `json:"page"`
	TotalPages    int               `json:"total_pages"`
	Conversations []ConversationDTO `json:"conversations"`
}
