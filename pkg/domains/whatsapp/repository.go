package whatsapp

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/wacrm/pkg/entities"
	"github.com/wacrm/pkg/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	// Transaction runs fn against a repository bound to a single database transaction.
	Transaction(ctx context.Context, fn func(r Repository) error) error

	CountOtherSessions(ctx context.Context, workspaceID, sessionID, sessionName string) (int64, error)
	UpsertSession(ctx context.Context, session entities.WhatsAppSession) (replacedID string, err error)
	GetSession(ctx context.Context, sessionID string) (entities.WhatsAppSession, error)
	ListSessions(ctx context.Context, workspaceID string) ([]entities.WhatsAppSession, error)
	ListSessionsByStatus(ctx context.Context, statuses ...string) ([]entities.WhatsAppSession, error)
	UpdateSession(ctx context.Context, sessionID string, fields map[string]interface{}) error
	DeleteSession(ctx context.Context, sessionID string) error

	UpsertContact(ctx context.Context, workspaceID, phone, pushName string, inbound bool) (entities.Contact, error)
	EnsureConversation(ctx context.Context, workspaceID, contactID string, at time.Time) (entities.Conversation, error)
	InsertMessage(ctx context.Context, message *entities.Message) (bool, error)
	BumpConversation(ctx context.Context, conversationID string, at time.Time, inbound bool) error
	AdvanceMessageStatus(ctx context.Context, workspaceID string, messageIDs []string, status string) (int64, error)

	ListConversations(ctx context.Context, workspaceID string, page int) ([]entities.Conversation, int, error)
	GetConversation(ctx context.Context, workspaceID, conversationID string) (entities.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]entities.Message, error)
	ResetUnread(ctx context.Context, conversationID string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) Repository {
	return &repository{
		db: db,
	}
}

func (r *repository) Transaction(ctx context.Context, fn func(r Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: tx})
	})
}

// CountOtherSessions counts workspace sessions that a create for (sessionID, sessionName) would not replace.
func (r *repository) CountOtherSessions(ctx context.Context, workspaceID, sessionID, sessionName string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entities.WhatsAppSession{}).
		Where("workspace_id = ? AND session_id <> ? AND session_name <> ?", workspaceID, sessionID, sessionName).
		Count(&count).Error
	return count, err
}

var sessionColumns = []string{"session_id", "session_name", "workspace_id", "status", "qr_code", "phone_number"}

// UpsertSession writes session keyed by its session id, taking over any
// record that already holds the same (workspace, name) pair. The id of a
// taken-over record is returned so its live handle and credentials can be released.
func (r *repository) UpsertSession(ctx context.Context, session entities.WhatsAppSession) (string, error) {
	var replaced string
	err := r.Transaction(ctx, func(rr Repository) error {
		tx := rr.(*repository).db.WithContext(ctx)

		var byID, byName entities.WhatsAppSession
		errID := tx.Where("session_id = ?", session.SessionID).First(&byID).Error
		if errID != nil && !errors.Is(errID, gorm.ErrRecordNotFound) {
			return errID
		}
		errName := tx.Where("workspace_id = ? AND session_name = ?", session.WorkspaceID, session.SessionName).First(&byName).Error
		if errName != nil && !errors.Is(errName, gorm.ErrRecordNotFound) {
			return errName
		}

		foundID, foundName := errID == nil, errName == nil
		if foundName && byName.SessionID != session.SessionID {
			replaced = byName.SessionID
			if foundID {
				if err := tx.Delete(&byName).Error; err != nil {
					return err
				}
			} else {
				byID = byName
				foundID = true
			}
		}

		if !foundID {
			return tx.Create(&session).Error
		}
		return tx.Model(&byID).Select(sessionColumns).Updates(&session).Error
	})
	return replaced, err
}

func (r *repository) GetSession(ctx context.Context, sessionID string) (entities.WhatsAppSession, error) {
	var session entities.WhatsAppSession
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return session, ErrSessionNotFound
	}
	return session, err
}

func (r *repository) ListSessions(ctx context.Context, workspaceID string) ([]entities.WhatsAppSession, error) {
	var sessions []entities.WhatsAppSession
	err := r.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).Order("created_at ASC").Find(&sessions).Error
	return sessions, err
}

func (r *repository) ListSessionsByStatus(ctx context.Context, statuses ...string) ([]entities.WhatsAppSession, error) {
	var sessions []entities.WhatsAppSession
	err := r.db.WithContext(ctx).Where("status IN ?", statuses).Order("created_at ASC").Find(&sessions).Error
	return sessions, err
}

func (r *repository) UpdateSession(ctx context.Context, sessionID string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&entities.WhatsAppSession{}).Where("session_id = ?", sessionID).Updates(fields).Error
}

func (r *repository) DeleteSession(ctx context.Context, sessionID string) error {
	res := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&entities.WhatsAppSession{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// UpsertContact creates the contact on first sight. The stored name only ever
// comes from inbound push names; outbound traffic starts it as the phone number
// and never overwrites it.
func (r *repository) UpsertContact(ctx context.Context, workspaceID, phone, pushName string, inbound bool) (entities.Contact, error) {
	useName := inbound && pushName != ""

	contact := entities.Contact{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		PhoneNumber: phone,
		Name:        phone,
	}
	if useName {
		contact.Name = pushName
	}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "phone_number"}},
		DoNothing: true,
	}).Create(&contact)
	if res.Error != nil {
		return contact, res.Error
	}
	if res.RowsAffected == 1 {
		return contact, nil
	}

	var existing entities.Contact
	if err := r.db.WithContext(ctx).Where("workspace_id = ? AND phone_number = ?", workspaceID, phone).First(&existing).Error; err != nil {
		return existing, err
	}

	updates := map[string]interface{}{"updated_at": time.Now()}
	if useName {
		updates["name"] = pushName
		existing.Name = pushName
	}
	if err := r.db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
		return existing, err
	}
	return existing, nil
}

func (r *repository) EnsureConversation(ctx context.Context, workspaceID, contactID string, at time.Time) (entities.Conversation, error) {
	conversation := entities.Conversation{
		ID:            uuid.NewString(),
		WorkspaceID:   workspaceID,
		ContactID:     contactID,
		LastMessageAt: at,
	}

	res := r.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "contact_id"}},
		DoNothing: true,
	}).Create(&conversation)
	if res.Error != nil {
		return conversation, res.Error
	}
	if res.RowsAffected == 1 {
		return conversation, nil
	}

	var existing entities.Conversation
	err := r.db.WithContext(ctx).Where("workspace_id = ? AND contact_id = ?", workspaceID, contactID).First(&existing).Error
	return existing, err
}

// InsertMessage reports whether a new row was written. An existing
// (conversation, message id) pair is left untouched and loaded into message.
func (r *repository) InsertMessage(ctx context.Context, message *entities.Message) (bool, error) {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "message_id"}},
		DoNothing: true,
	}).Create(message)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	var existing entities.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND message_id = ?", message.ConversationID, message.MessageID).
		First(&existing).Error
	if err != nil {
		return false, err
	}
	*message = existing
	return false, nil
}

func (r *repository) BumpConversation(ctx context.Context, conversationID string, at time.Time, inbound bool) error {
	updates := map[string]interface{}{"last_message_at": at}
	if inbound {
		updates["unread_count"] = gorm.Expr("unread_count + ?", 1)
	}
	return r.db.WithContext(ctx).Model(&entities.Conversation{}).Where("id = ?", conversationID).Updates(updates).Error
}

// statusPredecessors lists the states a receipt may advance from.
var statusPredecessors = map[string][]string{
	entities.MessageStatusDelivered: {entities.MessageStatusSent},
	entities.MessageStatusRead:      {entities.MessageStatusSent, entities.MessageStatusDelivered},
}

func (r *repository) AdvanceMessageStatus(ctx context.Context, workspaceID string, messageIDs []string, status string) (int64, error) {
	from, ok := statusPredecessors[status]
	if !ok || len(messageIDs) == 0 {
		return 0, nil
	}

	conversations := r.db.Model(&entities.Conversation{}).Select("id").Where("workspace_id = ?", workspaceID)
	res := r.db.WithContext(ctx).Model(&entities.Message{}).
		Where("message_id IN ? AND from_me = ? AND status IN ?", messageIDs, true, from).
		Where("conversation_id IN (?)", conversations).
		Update("status", status)
	return res.RowsAffected, res.Error
}

func (r *repository) ListConversations(ctx context.Context, workspaceID string, page int) ([]entities.Conversation, int, error) {
	var conversations []entities.Conversation
	pages, err := utils.Pagination(&conversations, page, r.db, ctx, func(db *gorm.DB) *gorm.DB {
		return db.Preload("Contact").Order("last_message_at DESC")
	}, "workspace_id = ?", workspaceID)
	return conversations, pages, err
}

func (r *repository) GetConversation(ctx context.Context, workspaceID, conversationID string) (entities.Conversation, error) {
	var conversation entities.Conversation
	err := r.db.WithContext(ctx).Preload("Contact").
		Where("workspace_id = ? AND id = ?", workspaceID, conversationID).
		First(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return conversation, ErrConversationNotFound
	}
	return conversation, err
}

func (r *repository) ListMessages(ctx context.Context, conversationID string) ([]entities.Message, error) {
	var messages []entities.Message
	err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("timestamp ASC").Find(&messages).Error
	return messages, err
}

func (r *repository) ResetUnread(ctx context.Context, conversationID string) error {
	return r.db.WithContext(ctx).Model(&entities.Conversation{}).Where("id = ?", conversationID).Update("unread_count", 0).Error
}
