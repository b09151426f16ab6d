package external

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagenotify/internal/config"
	"pagenotify/internal/types"
)

func localConfig() *config.Config {
	return &config.Config{
		Environment: "local",
		Server:      config.ServerConfig{PublicURL: "https://wiki.example.test"},
		Mailer: config.MailerConfig{
			Provider:    "sendmail",
			ConfJSON:    "{}",
			FromAddress: "noreply@example.test",
		},
	}
}

func TestNewRegistryStubMode(t *testing.T) {
	reg, err := NewRegistry(localConfig(), nopLogger{})
	require.NoError(t, err)

	require.NotNil(t, reg.Transport)
	require.NoError(t, reg.TransportErr)
	assert.IsType(t, &StubTransport{}, reg.Transport)
	assert.IsType(t, &StubPlatform{}, reg.Platform.Renderer)

	// The stubs are functional enough for an end-to-end local dry run.
	ids, err := reg.Platform.Membership.UsersInGroups(context.Background(), []string{"editor"}, 100)
	require.NoError(t, err)
	assert.NotEmpty(t, ids)

	contact, err := reg.Platform.Users.GetUserContact(context.Background(), ids[0])
	require.NoError(t, err)
	assert.True(t, contact.HasEmail())
}

func TestNewRegistryTransportErrorIsNonFatal(t *testing.T) {
	cfg := localConfig()
	cfg.Environment = "prod"
	cfg.Platform.APIURL = "https://wiki.example.test/api.php"
	cfg.Mailer.Provider = "sendgrid"
	cfg.Mailer.ConfJSON = `{"transport":"api"}` // key missing

	reg, err := NewRegistry(cfg, nopLogger{})
	require.NoError(t, err)

	assert.Nil(t, reg.Transport)
	require.Error(t, reg.TransportErr)
	var appErr *types.AppError
	require.ErrorAs(t, reg.TransportErr, &appErr)
	assert.Equal(t, types.ErrCodeTransportUnsupported, appErr.Code)

	// The platform side is still usable; only sending is disabled.
	assert.NotNil(t, reg.Platform.Renderer)
}

func TestStubTransportRecordsMessages(t *testing.T) {
	stub := NewStubTransport(nopLogger{})
	msg := testMessage()

	require.NoError(t, stub.Send(context.Background(), msg))
	require.Len(t, stub.Sent(), 1)
	assert.Equal(t, msg.MessageID, stub.Sent()[0].MessageID)
}
