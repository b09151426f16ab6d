package external

import (
	"context"
	"fmt"
	"sync"

	"pagenotify/internal/cms"
	"pagenotify/internal/mailer"
	"pagenotify/internal/types"
)

// ---------------------------------------------------------------------------
// Stub implementations for local/test mode. They log actions instead of
// calling real services so the engine boots without platform or provider
// credentials.
// ---------------------------------------------------------------------------

// StubTransport logs outbound messages instead of delivering them. It also
// records them so local smoke tests can inspect what would have been sent.
type StubTransport struct {
	logger types.Logger

	mu   sync.Mutex
	sent []*mailer.Message
}

// NewStubTransport creates a StubTransport.
func NewStubTransport(logger types.Logger) *StubTransport {
	return &StubTransport{logger: logger}
}

// Send records the message and logs it.
func (t *StubTransport) Send(_ context.Context, msg *mailer.Message) error {
	t.mu.Lock()
	t.sent = append(t.sent, msg)
	t.mu.Unlock()

	tos := make([]string, len(msg.To))
	for i, to := range msg.To {
		tos[i] = to.Email
	}
	t.logger.Info("stub transport: suppressing send",
		"to", tos, "subject", msg.Subject, "message_id", msg.MessageID)
	return nil
}

// Sent returns a copy of the recorded messages.
func (t *StubTransport) Sent() []*mailer.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*mailer.Message, len(t.sent))
	copy(out, t.sent)
	return out
}

// StubPlatform is a fixed in-memory implementation of the cms contracts.
type StubPlatform struct {
	logger types.Logger
}

// NewStubPlatform creates a stub platform adapter.
func NewStubPlatform(logger types.Logger) *StubPlatform {
	return &StubPlatform{logger: logger}
}

// RenderPage returns a fixed HTML body naming the page and locale.
func (s *StubPlatform) RenderPage(_ context.Context, pageID int64, locale string) (string, error) {
	s.logger.Info("stub platform: render page", "page_id", pageID, "locale", locale)
	return fmt.Sprintf("<p>Stub content for page %d (%s)</p>", pageID, locale), nil
}

// RenderInline echoes the markup wrapped in a paragraph.
func (s *StubPlatform) RenderInline(_ context.Context, markup string, _ string) (string, error) {
	return "<p>" + markup + "</p>", nil
}

// PurgePage logs the purge and succeeds.
func (s *StubPlatform) PurgePage(_ context.Context, pageID int64) error {
	s.logger.Info("stub platform: purge page", "page_id", pageID)
	return nil
}

// UsersInGroups returns a small fixed membership.
func (s *StubPlatform) UsersInGroups(_ context.Context, groups []string, _ int) ([]int64, error) {
	s.logger.Info("stub platform: users in groups", "groups", groups)
	return []int64{1, 2, 3}, nil
}

// GetUserContact returns a deterministic contact per user id.
func (s *StubPlatform) GetUserContact(_ context.Context, userID int64) (types.UserContact, error) {
	return types.UserContact{
		ID:     userID,
		Email:  fmt.Sprintf("user%d@example.test", userID),
		Name:   fmt.Sprintf("User %d", userID),
		Locale: "en",
	}, nil
}

// UserHasPermission grants every capability in stub mode.
func (s *StubPlatform) UserHasPermission(_ context.Context, _ int64, _ string) (bool, error) {
	return true, nil
}

var (
	_ cms.PageRenderer      = (*StubPlatform)(nil)
	_ cms.MembershipService = (*StubPlatform)(nil)
	_ cms.UserDirectory     = (*StubPlatform)(nil)
	_ mailer.Transport      = (*StubTransport)(nil)
)
