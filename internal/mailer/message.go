package mailer

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
	"time"

	"pagenotify/internal/types"
)

// HeaderKind distinguishes the semantic categories of mail headers so
// transports can serialize and fold them correctly.
type HeaderKind int

const (
	// HeaderText is a free-text header.
	HeaderText HeaderKind = iota
	// HeaderAddressList holds one or more mail addresses (To, Cc, Reply-To).
	HeaderAddressList
	// HeaderMailbox holds exactly one mailbox (Sender).
	HeaderMailbox
	// HeaderIdentifier holds a message identifier (Message-Id, In-Reply-To).
	HeaderIdentifier
	// HeaderPath holds a return path (Return-Path).
	HeaderPath
)

// Header is a single outbound header with its resolved kind.
type Header struct {
	Name  string
	Kind  HeaderKind
	Value string
}

// Message is a fully composed outbound email, ready for a Transport.
type Message struct {
	From        types.Address
	To          []types.Address
	Subject     string
	Text        string
	HTML        string
	Headers     []Header
	Attachments []types.Attachment
	// MessageID is the tracking token in <token@domain> form, assigned by
	// the dispatch engine. Transports emit it as the Message-ID header.
	MessageID string
	// Date is stamped at composition time.
	Date time.Time
}

// ZeroWidthSpace substitutes for an empty subject. Some transports reject
// messages with an empty Subject header outright; a zero-width space passes
// their validation while remaining visually empty.
const ZeroWidthSpace = "​"

// Pseudo headers consumed by the composer and never transmitted verbatim.
const (
	// HeaderListUnsubscribe carries the unsubscribe URL; it is rewritten
	// into the mail system's native List-Unsubscribe header and optionally
	// an inline footer link.
	HeaderListUnsubscribe = "X-Notifications-ListUnsubscribe"
	// HeaderTrackingURL carries the open-tracking pixel URL; when tracking
	// is enabled it becomes an inline 1x1 image at the end of the HTML body.
	HeaderTrackingURL = "X-Notifications-TrackingUrl"
)

// reservedHeaders are always system-assigned and never taken from
// caller-supplied header maps. Names are compared case-insensitively.
var reservedHeaders = map[string]struct{}{
	"from":                      {},
	"return-path":               {},
	"date":                      {},
	"message-id":                {},
	"mime-version":              {},
	"content-type":              {},
	"content-transfer-encoding": {},
}

// headerKinds maps recognized header names to their semantic kind.
// Unrecognized names fall through to HeaderText.
var headerKinds = map[string]HeaderKind{
	"to":          HeaderAddressList,
	"cc":          HeaderAddressList,
	"bcc":         HeaderAddressList,
	"reply-to":    HeaderAddressList,
	"sender":      HeaderMailbox,
	"message-id":  HeaderIdentifier,
	"in-reply-to": HeaderIdentifier,
	"references":  HeaderIdentifier,
	"return-path": HeaderPath,
}

// KindForHeader returns the semantic kind for a header name.
func KindForHeader(name string) HeaderKind {
	if kind, ok := headerKinds[strings.ToLower(name)]; ok {
		return kind
	}
	return HeaderText
}

const trackingPixelImg = `<img alt="" border="0" width="1" height="1" src=%q style="height:1px;width:1px;border-width:0;margin:0;padding:0;" />`

// Composer builds outbound messages from rule data and per-recipient
// rendering, applying the header injection rules and the tracking and
// unsubscribe augmentation the feature toggles select.
type Composer struct {
	baseHost          string
	inlineUnsubscribe bool
	trackingPixel     bool
	clock             types.Clock
}

// ComposerConfig holds the composer's settings.
type ComposerConfig struct {
	// BaseHost is prefixed onto relative image URLs in HTML bodies,
	// e.g. "https://wiki.example.org".
	BaseHost string
	// InlineUnsubscribe appends a plain unsubscribe link to HTML bodies.
	InlineUnsubscribe bool
	// TrackingPixel appends the 1x1 open-tracking image to HTML bodies.
	TrackingPixel bool
	// Clock stamps the message date; defaults to the real clock.
	Clock types.Clock
}

// NewComposer creates a Composer.
func NewComposer(cfg ComposerConfig) *Composer {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Composer{
		baseHost:          cfg.BaseHost,
		inlineUnsubscribe: cfg.InlineUnsubscribe,
		trackingPixel:     cfg.TrackingPixel,
		clock:             clock,
	}
}

// ComposeParams carries everything Compose needs for one message.
type ComposeParams struct {
	From        types.Address
	To          []types.Address
	Subject     string
	Text        string
	HTML        string
	Attachments []types.Attachment
	Headers     map[string]string
	MessageID   string
}

// Compose builds an outbound message:
//
//   - Reserved headers in p.Headers are dropped; they are always
//     system-assigned.
//   - The X-Notifications-ListUnsubscribe pseudo header is rewritten into
//     List-Unsubscribe, plus an inline footer link when that toggle is on.
//   - The X-Notifications-TrackingUrl pseudo header becomes an inline 1x1
//     image when tracking is on, and is otherwise discarded.
//   - An empty subject is replaced with a single zero-width space.
//   - An HTML body is run through image URL absolutization; when no
//     plaintext alternative was supplied one is derived from the HTML.
//
// Compose must not be called when transport resolution failed; the caller
// aggregates that error instead.
func (c *Composer) Compose(p ComposeParams) (*Message, error) {
	if len(p.To) == 0 {
		return nil, types.NewAppError(types.ErrCodeComposeFailed, "message has no recipients", nil)
	}
	if p.From.Email == "" {
		return nil, types.NewAppError(types.ErrCodeComposeFailed, "message has no sender", nil)
	}

	msg := &Message{
		From:        p.From,
		To:          p.To,
		Subject:     p.Subject,
		Text:        p.Text,
		HTML:        p.HTML,
		Attachments: p.Attachments,
		MessageID:   p.MessageID,
		Date:        c.clock.Now(),
	}

	if msg.Subject == "" {
		msg.Subject = ZeroWidthSpace
	}

	for name, value := range p.Headers {
		lower := strings.ToLower(name)
		if _, reserved := reservedHeaders[lower]; reserved {
			continue
		}
		switch {
		case strings.EqualFold(name, HeaderListUnsubscribe):
			msg.Headers = append(msg.Headers, Header{
				Name:  "List-Unsubscribe",
				Kind:  HeaderText,
				Value: value,
			})
			if c.inlineUnsubscribe && msg.HTML != "" {
				link := strings.Trim(value, "<>")
				msg.HTML += fmt.Sprintf(
					`<p style="font-size:smaller">If you no longer wish to receive this notification, <a href=%q>unsubscribe here</a>.</p>`,
					link,
				)
			}
		case strings.EqualFold(name, HeaderTrackingURL):
			if c.trackingPixel && msg.HTML != "" {
				msg.HTML += fmt.Sprintf(trackingPixelImg, value)
			}
		default:
			msg.Headers = append(msg.Headers, Header{
				Name:  name,
				Kind:  KindForHeader(name),
				Value: value,
			})
		}
	}

	if msg.HTML != "" {
		absolutized, err := AbsolutizeImageURLs(c.baseHost, msg.HTML)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeComposeFailed, "post-processing html body", err)
		}
		msg.HTML = absolutized

		if msg.Text == "" {
			msg.Text = HTMLToText(msg.HTML)
		}
	}

	if msg.Text == "" && msg.HTML == "" {
		return nil, types.NewAppError(types.ErrCodeComposeFailed, "message has no body", nil)
	}

	return msg, nil
}

// Bytes renders the message to RFC 5322 wire form for transports that
// transmit raw messages (SMTP relay, local sendmail).
func (m *Message) Bytes() []byte {
	var b strings.Builder

	writeHeader(&b, "From", m.From.String())
	tos := make([]string, len(m.To))
	for i, to := range m.To {
		tos[i] = to.String()
	}
	writeHeader(&b, "To", strings.Join(tos, ", "))
	writeHeader(&b, "Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	writeHeader(&b, "Date", m.Date.Format(time.RFC1123Z))
	if m.MessageID != "" {
		writeHeader(&b, "Message-ID", m.MessageID)
	}
	for _, h := range m.Headers {
		writeHeader(&b, h.Name, h.Value)
	}
	writeHeader(&b, "MIME-Version", "1.0")

	bodyBoundary := fmt.Sprintf("alt-%x", m.Date.UnixNano())
	mixedBoundary := fmt.Sprintf("mix-%x", m.Date.UnixNano()+1)

	if len(m.Attachments) > 0 {
		writeHeader(&b, "Content-Type", fmt.Sprintf("multipart/mixed; boundary=%s", mixedBoundary))
		b.WriteString("\r\n")
		b.WriteString("--" + mixedBoundary + "\r\n")
	}

	m.writeBody(&b, bodyBoundary)

	for _, att := range m.Attachments {
		b.WriteString("--" + mixedBoundary + "\r\n")
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		writeHeader(&b, "Content-Type", contentType)
		writeHeader(&b, "Content-Transfer-Encoding", "base64")
		writeHeader(&b, "Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))
		b.WriteString("\r\n")
		writeBase64(&b, att.Data)
	}
	if len(m.Attachments) > 0 {
		b.WriteString("--" + mixedBoundary + "--\r\n")
	}

	return []byte(b.String())
}

// writeBody writes the text/html body section, as multipart/alternative
// when both forms are present.
func (m *Message) writeBody(b *strings.Builder, boundary string) {
	switch {
	case m.Text != "" && m.HTML != "":
		writeHeader(b, "Content-Type", fmt.Sprintf("multipart/alternative; boundary=%s", boundary))
		b.WriteString("\r\n")
		b.WriteString("--" + boundary + "\r\n")
		writeHeader(b, "Content-Type", "text/plain; charset=UTF-8")
		b.WriteString("\r\n")
		b.WriteString(m.Text)
		b.WriteString("\r\n")
		b.WriteString("--" + boundary + "\r\n")
		writeHeader(b, "Content-Type", "text/html; charset=UTF-8")
		b.WriteString("\r\n")
		b.WriteString(m.HTML)
		b.WriteString("\r\n")
		b.WriteString("--" + boundary + "--\r\n")
	case m.HTML != "":
		writeHeader(b, "Content-Type", "text/html; charset=UTF-8")
		b.WriteString("\r\n")
		b.WriteString(m.HTML)
		b.WriteString("\r\n")
	default:
		writeHeader(b, "Content-Type", "text/plain; charset=UTF-8")
		b.WriteString("\r\n")
		b.WriteString(m.Text)
		b.WriteString("\r\n")
	}
}

func writeHeader(b *strings.Builder, name, value string) {
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}

// writeBase64 writes base64 data wrapped at 76 columns per RFC 2045.
func writeBase64(b *strings.Builder, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		b.WriteString(encoded[:76])
		b.WriteString("\r\n")
		encoded = encoded[76:]
	}
	if encoded != "" {
		b.WriteString(encoded)
		b.WriteString("\r\n")
	}
}
