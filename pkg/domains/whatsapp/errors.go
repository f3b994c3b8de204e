package whatsapp

import "github.com/pkg/errors"

var (
	ErrQuotaExceeded         = errors.New("session limit reached for this workspace")
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionNotConnected   = errors.New("session is not connected")
	ErrConnectionSetupFailed = errors.New("failed to set up WhatsApp connection")
	ErrInvalidPhone          = errors.New("invalid phone number")
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrWorkspaceRequired     = errors.New("workspace is required")
	ErrManagerStopped        = errors.New("session manager is shutting down")

	// ErrTransientDisconnect marks recoverable closures. It never leaves the manager.
	ErrTransientDisconnect = errors.New("transient disconnect")
)
