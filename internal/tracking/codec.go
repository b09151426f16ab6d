// Package tracking mints and decodes the reversible message identifiers
// embedded in sent email, and serves the HTTP endpoints those identifiers
// point back at.
package tracking

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pagenotify/internal/types"
)

// Token is a decoded tracking identifier.
type Token struct {
	NotificationID int64
	UserID         int64
	// Timestamp is the dispatch run time in types.TimestampLayout form,
	// kept as the original string so events round-trip it verbatim.
	Timestamp string
}

// Codec encodes the (rule, user, run time) triple into a Message-ID
// shaped token and builds the URLs embedded in outgoing mail.
type Codec struct {
	// domain is the right-hand side of the minted identifiers; the mail
	// server identity host, falling back to the public URL's host.
	domain string
	// baseURL is the public root the events server is reachable under,
	// without a trailing slash.
	baseURL string
}

// NewCodec creates a Codec. idHost may be empty, in which case publicHost
// is used for the identifier domain.
func NewCodec(idHost, publicHost, publicURL string) *Codec {
	domain := idHost
	if domain == "" {
		domain = publicHost
	}
	return &Codec{
		domain:  domain,
		baseURL: strings.TrimRight(publicURL, "/"),
	}
}

// Encode returns the full bracketed identifier
// "<base64(notificationID|userID|timestamp)@domain>", valid as an email
// Message-ID header value.
func (c *Codec) Encode(notificationID, userID int64, at time.Time) string {
	payload := fmt.Sprintf("%d|%d|%s", notificationID, userID, at.UTC().Format(types.TimestampLayout))
	return fmt.Sprintf("<%s@%s>", base64.StdEncoding.EncodeToString([]byte(payload)), c.domain)
}

// Decode parses a token back into its triple. It accepts both the full
// bracketed "<token@domain>" form and the bare base64 token: everything
// from the first "@" on is discarded before decoding.
func (c *Codec) Decode(token string) (Token, error) {
	raw := strings.TrimPrefix(token, "<")
	if at := strings.Index(raw, "@"); at >= 0 {
		raw = raw[:at]
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Token{}, types.NewAppError(types.ErrCodeTokenMalformed, "tracking token is not valid base64", err)
	}
	parts := strings.Split(string(decoded), "|")
	if len(parts) != 3 {
		return Token{}, types.NewAppError(types.ErrCodeTokenMalformed,
			fmt.Sprintf("tracking token payload has %d fields, want 3", len(parts)), nil)
	}
	notificationID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Token{}, types.NewAppError(types.ErrCodeTokenMalformed, "tracking token notification id is not numeric", err)
	}
	userID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Token{}, types.NewAppError(types.ErrCodeTokenMalformed, "tracking token user id is not numeric", err)
	}
	return Token{
		NotificationID: notificationID,
		UserID:         userID,
		Timestamp:      parts[2],
	}, nil
}

// TrackingURL builds the pixel URL for a sent message.
func (c *Codec) TrackingURL(notificationID int64, token string) string {
	return fmt.Sprintf("%s/events/%d?action=tracking&msgId=%s", c.baseURL, notificationID, urlToken(token))
}

// UnsubscribeURL builds the per-rule unsubscribe URL.
func (c *Codec) UnsubscribeURL(notificationID int64) string {
	return fmt.Sprintf("%s/events/%d?action=unsubscribe", c.baseURL, notificationID)
}

// urlToken strips the angle brackets and domain so the query parameter
// carries only the base64 payload, query-escaped.
func urlToken(token string) string {
	raw := strings.TrimPrefix(token, "<")
	if at := strings.Index(raw, "@"); at >= 0 {
		raw = raw[:at]
	}
	return url.QueryEscape(raw)
}
