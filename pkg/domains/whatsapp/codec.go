package whatsapp

import (
	"strings"

	"go.mau.fi/whatsmeow/proto/waE2E"
)

type ContentKind int

const (
	KindNone ContentKind = iota
	KindText
	KindImage
	KindVideo
	KindDocument
	KindAudio
)

func (k ContentKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindDocument:
		return "document"
	case KindAudio:
		return "audio"
	default:
		return "none"
	}
}

// Content is the normalized form of a protocol message payload.
type Content struct {
	Kind     ContentKind
	Text     string
	Caption  string
	FileName string
	MimeType string
}

// DecodeContent picks the first populated field in priority order: plain text,
// extended text, image, video, document, audio.
func DecodeContent(msg *waE2E.Message) Content {
	if msg == nil {
		return Content{}
	}

	if text := msg.GetConversation(); text != "" {
		return Content{Kind: KindText, Text: text}
	}
	if text := msg.GetExtendedTextMessage().GetText(); text != "" {
		return Content{Kind: KindText, Text: text}
	}
	if img := msg.GetImageMessage(); img != nil {
		return Content{Kind: KindImage, Caption: img.GetCaption(), MimeType: img.GetMimetype()}
	}
	if vid := msg.GetVideoMessage(); vid != nil {
		return Content{Kind: KindVideo, Caption: vid.GetCaption(), MimeType: vid.GetMimetype()}
	}
	if doc := msg.GetDocumentMessage(); doc != nil {
		name := doc.GetFileName()
		if name == "" {
			name = doc.GetTitle()
		}
		return Content{Kind: KindDocument, Caption: doc.GetCaption(), FileName: name, MimeType: doc.GetMimetype()}
	}
	if aud := msg.GetAudioMessage(); aud != nil {
		return Content{Kind: KindAudio, MimeType: aud.GetMimetype()}
	}
	return Content{}
}

func (c Content) HasMedia() bool {
	switch c.Kind {
	case KindImage, KindVideo, KindDocument, KindAudio:
		return true
	}
	return false
}

// DisplayText is the text stored on the message row. Media kinds are prefixed
// with a label so list views can tell them apart.
func (c Content) DisplayText() string {
	switch c.Kind {
	case KindText:
		return c.Text
	case KindImage:
		if c.Caption == "" {
			return ""
		}
		return "[Image] " + c.Caption
	case KindVideo:
		if c.Caption == "" {
			return ""
		}
		return "[Video] " + c.Caption
	case KindDocument:
		name := c.FileName
		if name == "" {
			name = "document"
		}
		text := "[Document] " + name
		if c.Caption != "" {
			text += "\n" + c.Caption
		}
		return text
	case KindAudio:
		return "[Audio]"
	}
	return ""
}

// IsEmpty reports a message with neither text nor an attachment.
func (c Content) IsEmpty() bool {
	return strings.TrimSpace(c.DisplayText()) == "" && !c.HasMedia()
}
