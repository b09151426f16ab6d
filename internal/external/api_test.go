package external

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagenotify/internal/mailer"
	"pagenotify/internal/types"
)

func TestAPIBuilderRegistryMatchesResolverTable(t *testing.T) {
	// Every +api/+https scheme the resolver can produce (other than SES,
	// which has its own SDK transport) must have a request builder.
	for _, scheme := range []string{
		"sendgrid+api", "mailgun+api", "mailgun+https", "postmark+api",
		"mandrill+api", "mailjet+api", "sendinblue+api", "ohmysmtp+api",
	} {
		_, ok := apiBuilders[scheme]
		assert.True(t, ok, "missing builder for %s", scheme)
	}
}

func TestBuildSendGridRequest(t *testing.T) {
	msg := testMessage()
	req, err := buildSendGridRequest(msg, "SG.abc", "")
	require.NoError(t, err)

	assert.Equal(t, "https://api.sendgrid.com/v3/mail/send", req.url)
	assert.Equal(t, "application/json", req.contentType)
	assert.Equal(t, "Bearer SG.abc", req.headers["Authorization"])

	var payload struct {
		Personalizations []struct {
			To []struct {
				Email string `json:"email"`
			} `json:"to"`
		} `json:"personalizations"`
		From struct {
			Email string `json:"email"`
		} `json:"from"`
		Subject string `json:"subject"`
		Content []struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"content"`
		Headers map[string]string `json:"headers"`
	}
	require.NoError(t, json.Unmarshal(req.body, &payload))
	require.Len(t, payload.Personalizations, 1)
	assert.Equal(t, "user@example.test", payload.Personalizations[0].To[0].Email)
	assert.Equal(t, "noreply@example.test", payload.From.Email)
	assert.Equal(t, "Weekly digest", payload.Subject)
	require.Len(t, payload.Content, 2)
	assert.Equal(t, "text/plain", payload.Content[0].Type)
	assert.Equal(t, "text/html", payload.Content[1].Type)
	assert.Equal(t, "<abc@example.test>", payload.Headers["Message-ID"])
}

func TestBuildMailgunRequest(t *testing.T) {
	msg := testMessage()
	req, err := buildMailgunRequest(msg, "key-abc", "mg.example.test")
	require.NoError(t, err)

	assert.Equal(t, "https://api.mailgun.net/v3/mg.example.test/messages", req.url)
	assert.True(t, strings.HasPrefix(req.contentType, "multipart/form-data"))

	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("api:key-abc"))
	assert.Equal(t, wantAuth, req.headers["Authorization"])

	body := string(req.body)
	assert.Contains(t, body, "Weekly digest")
	assert.Contains(t, body, "user@example.test")
	assert.Contains(t, body, "<b>html</b>")
}

func TestBuildPostmarkRequest(t *testing.T) {
	msg := testMessage()
	req, err := buildPostmarkRequest(msg, "pm-token", "")
	require.NoError(t, err)

	assert.Equal(t, "https://api.postmarkapp.com/email", req.url)
	assert.Equal(t, "pm-token", req.headers["X-Postmark-Server-Token"])

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.body, &payload))
	assert.Equal(t, "user@example.test", payload["To"])
	assert.Equal(t, "plain", payload["TextBody"])
	assert.Equal(t, "<b>html</b>", payload["HtmlBody"])
}

func TestBuildMandrillRequestCarriesKeyInBody(t *testing.T) {
	msg := testMessage()
	req, err := buildMandrillRequest(msg, "md-key", "")
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.body, &payload))
	assert.Equal(t, "md-key", payload["key"])
	assert.Empty(t, req.headers)
}

func TestBuildMailjetRequestBasicAuth(t *testing.T) {
	msg := testMessage()
	req, err := buildMailjetRequest(msg, "ak", "sk")
	require.NoError(t, err)

	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("ak:sk"))
	assert.Equal(t, wantAuth, req.headers["Authorization"])
}

func TestNewAPITransportUnknownScheme(t *testing.T) {
	_, err := NewAPITransport(mailer.ConnectionSpec{Scheme: "pigeon+api"}, nopLogger{})
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeTransportUnsupported, appErr.Code)
}

func TestTextHeadersIncludesMessageID(t *testing.T) {
	msg := testMessage()
	msg.Headers = []mailer.Header{{Name: "List-Unsubscribe", Kind: mailer.HeaderText, Value: "<https://x>"}}

	h := textHeaders(msg)
	assert.Equal(t, "<abc@example.test>", h["Message-ID"])
	assert.Equal(t, "<https://x>", h["List-Unsubscribe"])
}
