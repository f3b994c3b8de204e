package entities

import "time"

// Contact is unique per (workspace, phone number). PhoneNumber holds digits only.
type Contact struct {
	ID                string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	WorkspaceID       string    `json:"workspace_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_contacts_workspace_phone,priority:1"`
	PhoneNumber       string    `json:"phone_number" gorm:"type:varchar(32);not null;uniqueIndex:idx_contacts_workspace_phone,priority:2"`
	Name              string    `json:"name" gorm:"type:varchar(255)"`
	ProfilePictureURL string    `json:"profile_picture_url" gorm:"type:text"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}
