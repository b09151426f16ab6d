package external

import (
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagenotify/internal/mailer"
	"pagenotify/internal/types"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...any)        {}
func (nopLogger) Error(string, ...any)       {}
func (nopLogger) Warn(string, ...any)        {}
func (n nopLogger) With(...any) types.Logger { return n }

func testMessage() *mailer.Message {
	return &mailer.Message{
		From:      types.Address{Email: "noreply@example.test", Name: "Notifications"},
		To:        []types.Address{{Email: "user@example.test"}},
		Subject:   "Weekly digest",
		Text:      "plain",
		HTML:      "<b>html</b>",
		MessageID: "<abc@example.test>",
		Date:      time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
}

func TestNewTransportMapping(t *testing.T) {
	tests := []struct {
		name   string
		spec   mailer.ConnectionSpec
		verify func(t *testing.T, tr mailer.Transport, err error)
	}{
		{
			name: "sendmail selects local transport",
			spec: mailer.ConnectionSpec{Scheme: "sendmail", Host: mailer.DefaultEndpoint},
			verify: func(t *testing.T, tr mailer.Transport, err error) {
				require.NoError(t, err)
				assert.IsType(t, &LocalTransport{}, tr)
			},
		},
		{
			name: "native selects local transport",
			spec: mailer.ConnectionSpec{Scheme: "native", Host: mailer.DefaultEndpoint},
			verify: func(t *testing.T, tr mailer.Transport, err error) {
				require.NoError(t, err)
				assert.IsType(t, &LocalTransport{}, tr)
			},
		},
		{
			name: "provider smtp mode selects smtp transport",
			spec: mailer.ConnectionSpec{
				Scheme:   "sendgrid+smtp",
				Username: types.SecretString("SG.abc"),
				Host:     mailer.DefaultEndpoint,
			},
			verify: func(t *testing.T, tr mailer.Transport, err error) {
				require.NoError(t, err)
				assert.IsType(t, &SMTPTransport{}, tr)
			},
		},
		{
			name: "provider api mode selects api transport",
			spec: mailer.ConnectionSpec{
				Scheme:   "sendgrid+api",
				Username: types.SecretString("SG.abc"),
				Host:     mailer.DefaultEndpoint,
			},
			verify: func(t *testing.T, tr mailer.Transport, err error) {
				require.NoError(t, err)
				assert.IsType(t, &APITransport{}, tr)
			},
		},
		{
			name: "unknown scheme is unsupported",
			spec: mailer.ConnectionSpec{Scheme: "pigeon+api"},
			verify: func(t *testing.T, _ mailer.Transport, err error) {
				require.Error(t, err)
				var appErr *types.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, types.ErrCodeTransportUnsupported, appErr.Code)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTransport(tt.spec, nopLogger{})
			tt.verify(t, tr, err)
		})
	}
}

func TestNewSMTPTransportCredentials(t *testing.T) {
	// SendGrid relay fixes the username and uses the key as password.
	tr := NewSMTPTransport(mailer.ConnectionSpec{
		Scheme:   "sendgrid+smtp",
		Username: types.SecretString("SG.abc"),
		Host:     mailer.DefaultEndpoint,
	}, nopLogger{})
	assert.Equal(t, "smtp.sendgrid.net:587", tr.addr)
	assert.Equal(t, "apikey", tr.username)
	assert.Equal(t, "SG.abc", tr.password)

	// Single-credential providers reuse the credential as password.
	tr = NewSMTPTransport(mailer.ConnectionSpec{
		Scheme:   "gmail+smtp",
		Username: types.SecretString("app-pass"),
		Host:     mailer.DefaultEndpoint,
	}, nopLogger{})
	assert.Equal(t, "smtp.gmail.com:587", tr.addr)
	assert.Equal(t, "app-pass", tr.username)
	assert.Equal(t, "app-pass", tr.password)

	// An explicit host wins over the provider endpoint table.
	tr = NewSMTPTransport(mailer.ConnectionSpec{
		Scheme:   "smtp",
		Username: types.SecretString("u"),
		Password: types.SecretString("p"),
		Host:     "mail.internal:2525",
	}, nopLogger{})
	assert.Equal(t, "mail.internal:2525", tr.addr)
}

func TestSMTPTransportSend(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotBody []byte

	tr := NewSMTPTransport(mailer.ConnectionSpec{
		Scheme:   "smtp",
		Username: types.SecretString("u"),
		Password: types.SecretString("p"),
		Host:     "mail.internal:587",
	}, nopLogger{})
	tr.sendMail = func(addr string, _ smtp.Auth, from string, to []string, body []byte) error {
		gotAddr, gotFrom, gotTo, gotBody = addr, from, to, body
		return nil
	}

	err := tr.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "mail.internal:587", gotAddr)
	assert.Equal(t, "noreply@example.test", gotFrom)
	assert.Equal(t, []string{"user@example.test"}, gotTo)
	assert.Contains(t, string(gotBody), "Subject: Weekly digest")
}

func TestSMTPTransportSendFailure(t *testing.T) {
	tr := NewSMTPTransport(mailer.ConnectionSpec{
		Scheme:   "smtp",
		Username: types.SecretString("u"),
		Password: types.SecretString("p"),
		Host:     "mail.internal:587",
	}, nopLogger{})
	tr.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("550 mailbox unavailable")
	}

	err := tr.Send(context.Background(), testMessage())
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeTransportSendFailed, appErr.Code)
}

func TestSMTPTransportCancelledContext(t *testing.T) {
	tr := NewSMTPTransport(mailer.ConnectionSpec{
		Scheme:   "smtp",
		Username: types.SecretString("u"),
		Password: types.SecretString("p"),
		Host:     "mail.internal:587",
	}, nopLogger{})
	tr.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be attempted after cancellation")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := tr.Send(ctx, testMessage())
	require.Error(t, err)
}
