package constant

const (
	SESSION_CREATED       = "WhatsApp session created, scan the QR code to pair"
	SESSION_RETRIEVED     = "Session retrieved successfully"
	SESSIONS_RETRIEVED    = "Sessions retrieved successfully"
	SESSION_RECONNECTING  = "WhatsApp session is reconnecting"
	WHATSAPP_DISCONNECTED = "WhatsApp disconnected successfully"
	SESSION_DELETED       = "WhatsApp session deleted permanently"
	MESSAGE_SENT          = "Message sent successfully"

	CONVERSATIONS_RETRIEVED = "Conversations retrieved successfully"
	MESSAGES_RETRIEVED      = "Messages retrieved successfully"
	CONVERSATION_READ       = "Conversation marked as read"

	WORKSPACE_REQUIRED = "workspace is required"
)
