package whatsapp

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/wacrm/pkg/crypto"
	"github.com/wacrm/pkg/dtos"
	"github.com/wacrm/pkg/entities"
	"github.com/wacrm/pkg/state"
)

// Service is the workspace-scoped surface used by the HTTP handlers. The
// workspace comes from the request context; sessions and conversations of
// other workspaces behave as if they did not exist.
type Service interface {
	CreateSession(ctx context.Context, req dtos.CreateSessionDTO) (*dtos.SessionDTO, error)
	ListSessions(ctx context.Context) ([]dtos.SessionDTO, error)
	GetSession(ctx context.Context, sessionID string) (*dtos.SessionDTO, error)
	DisconnectSession(ctx context.Context, sessionID string) error
	ReconnectSession(ctx context.Context, sessionID string) (*dtos.SessionDTO, error)
	DeleteSession(ctx context.Context, sessionID string) error
	SendMessage(ctx context.Context, sessionID string, req dtos.SendMessageDTO) (*dtos.MessageDTO, error)
	ListConversations(ctx context.Context, page int) (*dtos.ConversationPageDTO, error)
	ListMessages(ctx context.Context, conversationID string) ([]dtos.MessageDTO, error)
	MarkConversationRead(ctx context.Context, conversationID string) error
}

type service struct {
	manager *Manager
	repo    Repository
	crypto  crypto.Gateway
}

func NewService(manager *Manager, repo Repository, gateway crypto.Gateway) Service {
	return &service{
		manager: manager,
		repo:    repo,
		crypto:  gateway,
	}
}

func workspaceFrom(ctx context.Context) (string, error) {
	workspaceID := state.CurrentWorkspace(ctx)
	if workspaceID == "" {
		return "", ErrWorkspaceRequired
	}
	return workspaceID, nil
}

// owned loads a session and hides it when it belongs to another workspace.
func (s *service) owned(ctx context.Context, sessionID string) (entities.WhatsAppSession, error) {
	workspaceID, err := workspaceFrom(ctx)
	if err != nil {
		return entities.WhatsAppSession{}, err
	}
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return session, err
	}
	if session.WorkspaceID != workspaceID {
		return entities.WhatsAppSession{}, ErrSessionNotFound
	}
	return session, nil
}

func (s *service) CreateSession(ctx context.Context, req dtos.CreateSessionDTO) (*dtos.SessionDTO, error) {
	workspaceID, err := workspaceFrom(ctx)
	if err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	} else if existing, err := s.repo.GetSession(ctx, sessionID); err == nil && existing.WorkspaceID != workspaceID {
		return nil, ErrSessionNotFound
	} else if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	descriptor, err := s.manager.CreateSession(ctx, sessionID, req.SessionName, workspaceID)
	if err != nil {
		return nil, err
	}
	return toSessionDTO(descriptor), nil
}

func (s *service) ListSessions(ctx context.Context) ([]dtos.SessionDTO, error) {
	workspaceID, err := workspaceFrom(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := s.repo.ListSessions(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	out := make([]dtos.SessionDTO, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, *toSessionDTO(s.manager.describe(session)))
	}
	return out, nil
}

func (s *service) GetSession(ctx context.Context, sessionID string) (*dtos.SessionDTO, error) {
	session, err := s.owned(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return toSessionDTO(s.manager.describe(session)), nil
}

func (s *service) DisconnectSession(ctx context.Context, sessionID string) error {
	if _, err := s.owned(ctx, sessionID); err != nil {
		return err
	}
	return s.manager.DisconnectSession(ctx, sessionID)
}

func (s *service) ReconnectSession(ctx context.Context, sessionID string) (*dtos.SessionDTO, error) {
	if _, err := s.owned(ctx, sessionID); err != nil {
		return nil, err
	}
	descriptor, err := s.manager.ReconnectSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return toSessionDTO(descriptor), nil
}

func (s *service) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.owned(ctx, sessionID); err != nil {
		return err
	}
	return s.manager.DeleteSessionPermanently(ctx, sessionID)
}

func (s *service) SendMessage(ctx context.Context, sessionID string, req dtos.SendMessageDTO) (*dtos.MessageDTO, error) {
	if _, err := s.owned(ctx, sessionID); err != nil {
		return nil, err
	}
	message, err := s.manager.SendMessage(ctx, sessionID, req.PhoneNumber, req.Message)
	if err != nil {
		return nil, err
	}
	dto := s.toMessageDTO(message)
	return &dto, nil
}

func (s *service) ListConversations(ctx context.Context, page int) (*dtos.ConversationPageDTO, error) {
	workspaceID, err := workspaceFrom(ctx)
	if err != nil {
		return nil, err
	}
	conversations, pages, err := s.repo.ListConversations(ctx, workspaceID, page)
	if err != nil {
		return nil, err
	}

	out := &dtos.ConversationPageDTO{
		Page:          page,
		TotalPages:    pages,
		Conversations: make([]dtos.ConversationDTO, 0, len(conversations)),
	}
	for _, c := range conversations {
		out.Conversations = append(out.Conversations, dtos.ConversationDTO{
			ID: c.ID,
			Contact: dtos.ContactDTO{
				ID:          c.Contact.ID,
				Name:        c.Contact.Name,
				PhoneNumber: c.Contact.PhoneNumber,
			},
			LastMessageAt: c.LastMessageAt,
			UnreadCount:   c.UnreadCount,
		})
	}
	return out, nil
}

func (s *service) ListMessages(ctx context.Context, conversationID string) ([]dtos.MessageDTO, error) {
	workspaceID, err := workspaceFrom(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetConversation(ctx, workspaceID, conversationID); err != nil {
		return nil, err
	}
	messages, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	out := make([]dtos.MessageDTO, 0, len(messages))
	for _, m := range messages {
		out = append(out, s.toMessageDTO(m))
	}
	return out, nil
}

func (s *service) MarkConversationRead(ctx context.Context, conversationID string) error {
	workspaceID, err := workspaceFrom(ctx)
	if err != nil {
		return err
	}
	if _, err := s.repo.GetConversation(ctx, workspaceID, conversationID); err != nil {
		return err
	}
	return s.repo.ResetUnread(ctx, conversationID)
}

func toSessionDTO(d SessionDescriptor) *dtos.SessionDTO {
	return &dtos.SessionDTO{
		SessionID:       d.SessionID,
		SessionName:     d.SessionName,
		Status:          d.Status,
		QRCode:          d.QRCode,
		PhoneNumber:     d.PhoneNumber,
		LastConnectedAt: d.LastConnectedAt,
	}
}

func (s *service) toMessageDTO(m entities.Message) dtos.MessageDTO {
	dto := dtos.MessageDTO{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		MessageID:      m.MessageID,
		FromMe:         m.FromMe,
		SenderPhone:    m.SenderPhone,
		HasMedia:       m.HasMedia,
		Timestamp:      m.Timestamp,
		Status:         m.Status,
	}
	if m.TextContent != nil {
		dto.Text = s.crypto.Decrypt(*m.TextContent)
	}
	if m.MediaType != nil {
		dto.MediaType = *m.MediaType
	}
	if m.MediaCaption != nil {
		dto.MediaCaption = s.crypto.Decrypt(*m.MediaCaption)
	}
	if m.MediaFileName != nil {
		dto.MediaFileName = *m.MediaFileName
	}
	return dto
}
