package whatsapp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/wacrm/pkg/crypto"
	"github.com/wacrm/pkg/entities"
	"go.uber.org/zap"
)

// Drop reasons reported by the ingestion filter.
const (
	DropHistory    = "history"
	DropNoIdentity = "no_identity"
	DropGroup      = "group"
	DropStale      = "stale"
	DropEmpty      = "empty"
	DropUnresolved = "unresolved"
	DropSelf       = "self"
)

// SessionContext is the per-session state the filter needs, captured from the registry entry.
type SessionContext struct {
	SessionID   string
	WorkspaceID string
	OwnPhone    string
	ConnectedAt time.Time
}

// Record is a normalized message ready to be persisted.
type Record struct {
	WorkspaceID  string
	ContactPhone string
	PushName     string
	FromMe       bool
	SenderPhone  string
	MessageID    string
	Content      Content
	Timestamp    time.Time
	Status       string
}

type Pipeline struct {
	repo   Repository
	crypto crypto.Gateway
	log    *zap.Logger
}

func NewPipeline(repo Repository, gateway crypto.Gateway, log *zap.Logger) *Pipeline {
	return &Pipeline{repo: repo, crypto: gateway, log: log}
}

// IngestBatch filters and persists a batch. A failing message is logged and
// skipped; the rest of the batch still goes through. It returns the number of
// newly written rows.
func (p *Pipeline) IngestBatch(ctx context.Context, sc SessionContext, batch MessagesEvent) int {
	written := 0
	for _, msg := range batch.Messages {
		rec, reason := p.Filter(sc, batch.Kind, msg)
		if reason != "" {
			messagesDropped.WithLabelValues(reason).Inc()
			p.log.Debug("message dropped",
				zap.String("session_id", sc.SessionID),
				zap.String("message_id", msg.ID),
				zap.String("reason", reason))
			continue
		}

		inserted, err := p.persistSafe(ctx, rec)
		if err != nil {
			p.log.Error("failed to ingest message",
				zap.String("session_id", sc.SessionID),
				zap.String("message_id", msg.ID),
				zap.Error(err))
			continue
		}
		if inserted {
			written++
		}
	}
	return written
}

// Filter applies the ingestion rules in order and returns either a record or
// the reason the message was dropped.
func (p *Pipeline) Filter(sc SessionContext, kind BatchKind, msg InboundMessage) (Record, string) {
	if kind != BatchNotify {
		return Record{}, DropHistory
	}
	if msg.RemoteJID == "" {
		return Record{}, DropNoIdentity
	}
	if isGroupJID(msg.RemoteJID) {
		return Record{}, DropGroup
	}
	if !sc.ConnectedAt.IsZero() && msg.Timestamp.Before(sc.ConnectedAt.Truncate(time.Second)) {
		return Record{}, DropStale
	}

	content := DecodeContent(msg.Message)
	if content.IsEmpty() {
		return Record{}, DropEmpty
	}

	phone, ok := phoneFromJID(msg.RemoteJID)
	if !ok {
		phone, ok = phoneFromJID(msg.Participant)
	}
	if !ok {
		return Record{}, DropUnresolved
	}
	if sc.OwnPhone != "" && phone == sc.OwnPhone {
		return Record{}, DropSelf
	}

	rec := Record{
		WorkspaceID:  sc.WorkspaceID,
		ContactPhone: phone,
		PushName:     msg.PushName,
		FromMe:       msg.FromMe,
		SenderPhone:  phone,
		MessageID:    msg.ID,
		Content:      content,
		Timestamp:    msg.Timestamp,
		Status:       entities.MessageStatusReceived,
	}
	if msg.FromMe {
		rec.SenderPhone = sc.OwnPhone
		rec.Status = entities.MessageStatusSent
	}
	if rec.MessageID == "" {
		rec.MessageID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	return rec, ""
}

func (p *Pipeline) persistSafe(ctx context.Context, rec Record) (inserted bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while persisting message: %v", r)
		}
	}()
	_, inserted, err = p.Persist(ctx, rec)
	return inserted, err
}

// Persist writes contact, conversation and message in one transaction. A
// message already stored for the conversation is left as is and reported
// with inserted=false.
func (p *Pipeline) Persist(ctx context.Context, rec Record) (entities.Message, bool, error) {
	if rec.MessageID == "" {
		rec.MessageID = uuid.NewString()
	}
	message := entities.Message{
		ID:          uuid.NewString(),
		MessageID:   rec.MessageID,
		FromMe:      rec.FromMe,
		SenderPhone: rec.SenderPhone,
		HasMedia:    rec.Content.HasMedia(),
		Timestamp:   rec.Timestamp,
		Status:      rec.Status,
	}

	if text := rec.Content.DisplayText(); text != "" {
		token, err := p.crypto.Encrypt(text)
		if err != nil {
			return message, false, errors.Wrap(err, "encrypt text")
		}
		message.TextContent = &token
	}
	if rec.Content.HasMedia() {
		kind := rec.Content.Kind.String()
		message.MediaType = &kind
		if rec.Content.Caption != "" {
			token, err := p.crypto.Encrypt(rec.Content.Caption)
			if err != nil {
				return message, false, errors.Wrap(err, "encrypt caption")
			}
			message.MediaCaption = &token
		}
		if rec.Content.FileName != "" {
			name := rec.Content.FileName
			message.MediaFileName = &name
		}
	}

	inbound := !rec.FromMe
	var inserted bool
	err := p.repo.Transaction(ctx, func(tx Repository) error {
		contact, err := tx.UpsertContact(ctx, rec.WorkspaceID, rec.ContactPhone, rec.PushName, inbound)
		if err != nil {
			return errors.Wrap(err, "upsert contact")
		}
		conversation, err := tx.EnsureConversation(ctx, rec.WorkspaceID, contact.ID, rec.Timestamp)
		if err != nil {
			return errors.Wrap(err, "ensure conversation")
		}

		message.ConversationID = conversation.ID
		inserted, err = tx.InsertMessage(ctx, &message)
		if err != nil {
			return errors.Wrap(err, "insert message")
		}
		if !inserted {
			return nil
		}
		return errors.Wrap(tx.BumpConversation(ctx, conversation.ID, rec.Timestamp, inbound), "bump conversation")
	})
	if err != nil {
		return message, false, err
	}
	if inserted {
		messagesIngested.WithLabelValues(direction(rec.FromMe)).Inc()
	}
	return message, inserted, nil
}

// ApplyReceipt moves outbound messages forward to the delivered or read state.
func (p *Pipeline) ApplyReceipt(ctx context.Context, sc SessionContext, receipt ReceiptEvent) (int64, error) {
	var status string
	switch receipt.Status {
	case ReceiptDelivered:
		status = entities.MessageStatusDelivered
	case ReceiptRead:
		status = entities.MessageStatusRead
	default:
		return 0, nil
	}
	return p.repo.AdvanceMessageStatus(ctx, sc.WorkspaceID, receipt.MessageIDs, status)
}
