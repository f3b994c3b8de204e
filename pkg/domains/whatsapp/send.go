package whatsapp

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/wacrm/pkg/entities"
	"go.uber.org/zap"
)

const minPhoneDigits = 7

// SendMessage dispatches text through the live connection and stores the
// outbound message right away instead of waiting for the protocol echo.
func (m *Manager) SendMessage(ctx context.Context, sessionID, phoneNumber, text string) (entities.Message, error) {
	entry, ok := m.registry.Get(sessionID)
	if !ok || entry.Status != entities.SessionStatusConnected {
		return entities.Message{}, ErrSessionNotConnected
	}

	phone := NormalizePhone(phoneNumber)
	if len(phone) < minPhoneDigits {
		return entities.Message{}, ErrInvalidPhone
	}
	if strings.TrimSpace(text) == "" {
		return entities.Message{}, errors.New("message text is empty")
	}

	receipt, err := entry.conn.SendText(ctx, phone, text)
	if err != nil {
		return entities.Message{}, errors.Wrap(err, "send message")
	}
	if receipt.Timestamp.IsZero() {
		receipt.Timestamp = time.Now()
	}

	message, _, err := m.pipeline.Persist(ctx, Record{
		WorkspaceID:  entry.WorkspaceID,
		ContactPhone: phone,
		FromMe:       true,
		SenderPhone:  entry.Phone,
		MessageID:    receipt.ID,
		Content:      Content{Kind: KindText, Text: text},
		Timestamp:    receipt.Timestamp,
		Status:       entities.MessageStatusSent,
	})
	if err != nil {
		m.log.Error("message sent but not stored",
			zap.String("session_id", sessionID),
			zap.String("message_id", receipt.ID),
			zap.Error(err))
		return message, errors.Wrap(err, "store sent message")
	}
	return message, nil
}
