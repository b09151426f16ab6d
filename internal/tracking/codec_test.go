package tracking

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagenotify/internal/types"
)

func testCodec() *Codec {
	return NewCodec("mail.example.test", "wiki.example.test", "https://wiki.example.test")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := testCodec()
	at := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

	token := c.Encode(12, 345, at)
	assert.True(t, strings.HasPrefix(token, "<"))
	assert.True(t, strings.HasSuffix(token, "@mail.example.test>"))

	decoded, err := c.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, int64(12), decoded.NotificationID)
	assert.Equal(t, int64(345), decoded.UserID)
	assert.Equal(t, "2026-03-02 08:30:00", decoded.Timestamp)
}

func TestEncodeFallsBackToPublicHost(t *testing.T) {
	c := NewCodec("", "wiki.example.test", "https://wiki.example.test")
	token := c.Encode(1, 2, time.Now())
	assert.True(t, strings.HasSuffix(token, "@wiki.example.test>"))
}

func TestDecodeBareToken(t *testing.T) {
	c := testCodec()
	payload := base64.StdEncoding.EncodeToString([]byte("8|99|2026-01-15 06:00:00"))

	decoded, err := c.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, int64(8), decoded.NotificationID)
	assert.Equal(t, int64(99), decoded.UserID)
}

func TestDecodeMalformed(t *testing.T) {
	c := testCodec()

	tests := []struct {
		name  string
		token string
	}{
		{"not base64", "<!!not-base64!!@mail.example.test>"},
		{"two fields", base64.StdEncoding.EncodeToString([]byte("1|2"))},
		{"four fields", base64.StdEncoding.EncodeToString([]byte("1|2|3|4"))},
		{"non numeric notification id", base64.StdEncoding.EncodeToString([]byte("x|2|2026-01-15 06:00:00"))},
		{"non numeric user id", base64.StdEncoding.EncodeToString([]byte("1|y|2026-01-15 06:00:00"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode(tt.token)
			require.Error(t, err)
			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, types.ErrCodeTokenMalformed, appErr.Code)
		})
	}
}

func TestURLs(t *testing.T) {
	c := testCodec()
	at := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	token := c.Encode(12, 345, at)

	unsub := c.UnsubscribeURL(12)
	assert.Equal(t, "https://wiki.example.test/events/12?action=unsubscribe", unsub)

	trackURL := c.TrackingURL(12, token)
	assert.True(t, strings.HasPrefix(trackURL, "https://wiki.example.test/events/12?action=tracking&msgId="))
	// The query parameter carries only the payload, never the brackets or
	// the domain.
	assert.NotContains(t, trackURL, "<")
	assert.NotContains(t, trackURL, "mail.example.test")
}
