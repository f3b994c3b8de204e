package wa

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/wacrm/pkg/domains/whatsapp"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

const eventBuffer = 64

// Dialer opens whatsmeow clients for sessions.
type Dialer struct {
	log *zap.Logger
}

// NewDialer sets the device name shown in the phone's linked devices list.
func NewDialer(deviceName string, log *zap.Logger) *Dialer {
	store.SetOSInfo(deviceName, store.GetWAVersion())
	return &Dialer{log: log}
}

func (d *Dialer) Dial(ctx context.Context, sessionID string, creds whatsapp.Credentials) (whatsapp.Conn, error) {
	device, ok := creds.(*Device)
	if !ok {
		return nil, errors.Errorf("unexpected credentials type %T", creds)
	}

	log := d.log.With(zap.String("session_id", sessionID))
	client := whatsmeow.NewClient(device.device, NewLogger(log.Named("client")))
	// reconnects are scheduled by the session manager
	client.EnableAutoReconnect = false

	c := &conn{
		client: client,
		log:    log,
		events: make(chan whatsapp.Event, eventBuffer),
		done:   make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.handlerID = client.AddEventHandler(c.handle)
	return c, nil
}

type conn struct {
	client    *whatsmeow.Client
	log       *zap.Logger
	handlerID uint32

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards closing events against concurrent pushes.
	mu        sync.RWMutex
	events    chan whatsapp.Event
	done      chan struct{}
	closeOnce sync.Once
	closed    bool
}

func (c *conn) Events() <-chan whatsapp.Event {
	return c.events
}

// Connect starts the websocket. Unpaired devices get a QR channel first, as whatsmeow requires.
func (c *conn) Connect(ctx context.Context) error {
	if c.client.Store.ID != nil {
		return c.client.Connect()
	}

	qrChan, err := c.client.GetQRChannel(ctx)
	if err != nil {
		return errors.Wrap(err, "get QR channel")
	}
	if err := c.client.Connect(); err != nil {
		return err
	}
	go c.forwardQR(qrChan)
	return nil
}

func (c *conn) forwardQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			c.push(whatsapp.QREvent{Code: item.Code})
		case "success":
		case "timeout":
			c.push(whatsapp.ClosedEvent{Reason: "QR code was not scanned in time"})
		default:
			reason := item.Event
			if item.Error != nil {
				reason = item.Error.Error()
			}
			c.push(whatsapp.ClosedEvent{Reason: reason})
		}
	}
}

func (c *conn) SendText(ctx context.Context, phone, text string) (whatsapp.SendReceipt, error) {
	to := types.NewJID(phone, types.DefaultUserServer)
	resp, err := c.client.SendMessage(ctx, to, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return whatsapp.SendReceipt{}, err
	}
	return whatsapp.SendReceipt{ID: string(resp.ID), Timestamp: resp.Timestamp}, nil
}

func (c *conn) Logout(ctx context.Context) error {
	if !c.client.IsLoggedIn() {
		return errors.New("not logged in")
	}
	return c.client.Logout(ctx)
}

func (c *conn) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.done)
		c.client.RemoveEventHandler(c.handlerID)
		c.client.Disconnect()

		c.mu.Lock()
		c.closed = true
		close(c.events)
		c.mu.Unlock()
	})
}

func (c *conn) push(ev whatsapp.Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *conn) handle(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		phone := ""
		if c.client.Store.ID != nil {
			phone = c.client.Store.ID.User
		}
		c.push(whatsapp.OpenEvent{Phone: phone})
	case *events.PairSuccess:
		c.log.Info("device paired", zap.String("jid", v.ID.String()), zap.String("platform", v.Platform))
		c.push(whatsapp.CredsUpdateEvent{})
	case *events.PushNameSetting:
		c.push(whatsapp.CredsUpdateEvent{})
	case *events.Disconnected:
		c.push(whatsapp.ClosedEvent{Reason: "connection lost"})
	case *events.LoggedOut:
		c.push(whatsapp.ClosedEvent{LoggedOut: true, Reason: v.Reason.String()})
	case *events.ConnectFailure:
		c.push(whatsapp.ClosedEvent{LoggedOut: v.Reason.IsLoggedOut(), Reason: v.Reason.String()})
	case *events.StreamReplaced:
		c.push(whatsapp.ClosedEvent{Replaced: true, Reason: "stream replaced"})
	case *events.TemporaryBan:
		c.push(whatsapp.ClosedEvent{Reason: v.String()})
	case *events.Message:
		kind := whatsapp.BatchNotify
		if v.SourceWebMsg != nil {
			kind = whatsapp.BatchHistory
		}
		c.push(whatsapp.MessagesEvent{Kind: kind, Messages: []whatsapp.InboundMessage{c.inbound(v)}})
	case *events.HistorySync:
		c.push(whatsapp.MessagesEvent{Kind: whatsapp.BatchHistory, Messages: historyMessages(v)})
	case *events.Receipt:
		status, ok := receiptStatus(v.Type)
		if !ok {
			return
		}
		ids := make([]string, 0, len(v.MessageIDs))
		for _, id := range v.MessageIDs {
			ids = append(ids, string(id))
		}
		c.push(whatsapp.ReceiptEvent{MessageIDs: ids, Status: status})
	}
}

func (c *conn) inbound(v *events.Message) whatsapp.InboundMessage {
	return whatsapp.InboundMessage{
		ID:          string(v.Info.ID),
		RemoteJID:   v.Info.Chat.String(),
		Participant: c.alternate(v.Info),
		FromMe:      v.Info.IsFromMe,
		PushName:    v.Info.PushName,
		Timestamp:   v.Info.Timestamp,
		Message:     v.Message,
	}
}

// alternate finds a phone-number identity for chats addressed by LID.
func (c *conn) alternate(info types.MessageInfo) string {
	if info.Chat.Server == types.HiddenUserServer {
		if pn, ok := c.resolveLID(info.Chat); ok {
			return pn.String()
		}
	}
	if info.IsFromMe {
		return ""
	}
	sender := info.Sender.ToNonAD()
	if sender.Server == types.HiddenUserServer {
		if pn, ok := c.resolveLID(sender); ok {
			return pn.String()
		}
	}
	return sender.String()
}

func (c *conn) resolveLID(lid types.JID) (types.JID, bool) {
	if c.client.Store.LIDs == nil {
		return types.JID{}, false
	}
	pn, err := c.client.Store.LIDs.GetPNForLID(c.ctx, lid)
	if err != nil || pn.IsEmpty() {
		return types.JID{}, false
	}
	return pn, true
}

func historyMessages(v *events.HistorySync) []whatsapp.InboundMessage {
	var out []whatsapp.InboundMessage
	for _, conv := range v.Data.GetConversations() {
		for _, hm := range conv.GetMessages() {
			if msg := hm.GetMessage(); msg != nil {
				out = append(out, fromWebMessage(conv.GetID(), msg))
			}
		}
	}
	return out
}

func fromWebMessage(chat string, msg *waWeb.WebMessageInfo) whatsapp.InboundMessage {
	key := msg.GetKey()
	return whatsapp.InboundMessage{
		ID:          key.GetID(),
		RemoteJID:   chat,
		Participant: key.GetParticipant(),
		FromMe:      key.GetFromMe(),
		PushName:    msg.GetPushName(),
		Timestamp:   time.Unix(int64(msg.GetMessageTimestamp()), 0),
		Message:     msg.GetMessage(),
	}
}

func receiptStatus(t types.ReceiptType) (whatsapp.ReceiptStatus, bool) {
	switch t {
	case types.ReceiptTypeDelivered:
		return whatsapp.ReceiptDelivered, true
	case types.ReceiptTypeRead:
		return whatsapp.ReceiptRead, true
	}
	return 0, false
}

var _ whatsapp.Dialer = (*Dialer)(nil)
