package whatsapp

import (
	"context"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
)

// Event is one item of a connection's ordered event stream.
type Event interface {
	isEvent()
}

// QREvent carries a fresh pairing payload.
type QREvent struct {
	Code string
}

// OpenEvent reports a completed pairing or resume.
type OpenEvent struct {
	Phone string
}

// ClosedEvent reports that the connection went away. LoggedOut and Replaced
// closures are terminal; everything else is retried with backoff.
type ClosedEvent struct {
	LoggedOut bool
	// Replaced means another client took over the same device.
	Replaced bool
	Reason   string
}

// CredsUpdateEvent asks the manager to persist the connection's credential material.
type CredsUpdateEvent struct{}

type BatchKind int

const (
	// BatchNotify is live delivery.
	BatchNotify BatchKind = iota
	// BatchHistory is backfill or sync delivery.
	BatchHistory
)

type MessagesEvent struct {
	Kind     BatchKind
	Messages []InboundMessage
}

type ReceiptStatus int

const (
	ReceiptDelivered ReceiptStatus = iota + 1
	ReceiptRead
)

type ReceiptEvent struct {
	MessageIDs []string
	Status     ReceiptStatus
}

func (QREvent) isEvent()          {}
func (OpenEvent) isEvent()        {}
func (ClosedEvent) isEvent()      {}
func (CredsUpdateEvent) isEvent() {}
func (MessagesEvent) isEvent()    {}
func (ReceiptEvent) isEvent()     {}

// InboundMessage is a protocol message as delivered by the connection, before
// any filtering. RemoteJID is the chat identity, Participant the alternate
// sender identity used when the chat identity is not a phone number.
type InboundMessage struct {
	ID          string
	RemoteJID   string
	Participant string
	FromMe      bool
	PushName    string
	Timestamp   time.Time
	Message     *waE2E.Message
}

// SendReceipt is what the protocol layer returns for a dispatched message.
type SendReceipt struct {
	ID        string
	Timestamp time.Time
}

// Credentials is opaque per-session key material owned by a CredentialStore.
type Credentials interface {
	SessionID() string
}

// CredentialStore keeps the material needed to resume a session without re-pairing.
type CredentialStore interface {
	LoadOrInit(ctx context.Context, sessionID string) (Credentials, error)
	Persist(ctx context.Context, sessionID string, creds Credentials) error
	Remove(ctx context.Context, sessionID string) error
}

// Conn is one live protocol connection.
type Conn interface {
	// Events is closed once the connection is closed.
	Events() <-chan Event
	Connect(ctx context.Context) error
	SendText(ctx context.Context, phone, text string) (SendReceipt, error)
	Logout(ctx context.Context) error
	// Close is safe to call more than once.
	Close()
}

type Dialer interface {
	Dial(ctx context.Context, sessionID string, creds Credentials) (Conn, error)
}
