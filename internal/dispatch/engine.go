// Package dispatch orchestrates one rule's delivery run: recipient
// resolution, content rendering, skip evaluation, per-recipient send, and
// the aggregate delivery record.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"pagenotify/internal/cms"
	"pagenotify/internal/mailer"
	"pagenotify/internal/render"
	"pagenotify/internal/types"
)

// ContentRenderer is the slice of the render adapter the engine uses.
type ContentRenderer interface {
	RenderPage(ctx context.Context, pageID int64, locale string) (render.Rendered, error)
	RenderSubject(ctx context.Context, template string, locale string) (string, error)
}

// SentStore records aggregate deliveries and answers the must-differ check.
type SentStore interface {
	Insert(ctx context.Context, rec *types.SentRecord) error
	LatestText(ctx context.Context, notificationID int64) (string, error)
}

// UnsubscribeStore loads the per-rule unsubscribe set.
type UnsubscribeStore interface {
	UserIDs(ctx context.Context, notificationID int64) (map[int64]struct{}, error)
}

// TokenCodec mints the per-recipient message identifier and the tracking
// and unsubscribe URLs embedded in each message.
type TokenCodec interface {
	Encode(notificationID, userID int64, at time.Time) string
	TrackingURL(notificationID int64, token string) string
	UnsubscribeURL(notificationID int64) string
}

// EngineConfig wires an Engine.
type EngineConfig struct {
	Resolver      *RecipientResolver
	Renderer      ContentRenderer
	Users         cms.UserDirectory
	Sent          SentStore
	Unsubscribes  UnsubscribeStore
	Composer      *mailer.Composer
	Transport     mailer.Transport
	TransportErr  error
	Codec         TokenCodec
	From          types.Address
	DefaultLocale string
	Clock         types.Clock
	Logger        types.Logger
}

// Engine runs the per-rule dispatch state machine. One Engine serves a
// whole scheduler run and is not safe for concurrent DispatchRule calls on
// the same rule; the driver invokes it sequentially.
type Engine struct {
	cfg EngineConfig
}

// NewEngine creates an Engine. A nil Clock selects the real clock; an
// empty DefaultLocale selects "en".
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = "en"
	}
	return &Engine{cfg: cfg}
}

// DispatchRule delivers one rule to its eligible recipients. It returns
// the ids of users a message was actually sent to and the accumulated
// error strings: rule-level aborts and per-recipient send failures share
// the list, distinguished by message text. A skip outcome is reported but
// is not a failure.
//
// A single recipient's failure never stops the loop; cancellation of ctx
// takes effect between recipients, never mid-send.
func (e *Engine) DispatchRule(ctx context.Context, rule *types.NotificationRule) (sentUserIDs []int64, errs []string) {
	fail := func(format string, args ...any) ([]int64, []string) {
		return nil, append(errs, fmt.Sprintf("notification %d (%s): %s", rule.ID, rule.Subject, fmt.Sprintf(format, args...)))
	}

	recipients, err := e.cfg.Resolver.Resolve(ctx, rule.Groups)
	if err != nil {
		return fail("membership query failed: %v", err)
	}
	if len(recipients) == 0 {
		return fail("no recipients resolved for groups %v", rule.Groups)
	}

	// Canonical render in the system locale. This text feeds the skip
	// check and the delivery record; recipients get their own render.
	canonical, err := e.cfg.Renderer.RenderPage(ctx, rule.PageID, e.cfg.DefaultLocale)
	if err != nil {
		return fail("rendering page %d: %v", rule.PageID, err)
	}

	previous, err := e.cfg.Sent.LatestText(ctx, rule.ID)
	if err != nil {
		return fail("loading last sent text: %v", err)
	}
	if ShouldSkip(rule.SkipStrategy, rule.SkipText, canonical.Text, previous, rule.MustDiffer) {
		return fail("skipped by policy (strategy %q)", rule.SkipStrategy)
	}

	// Transport misconfiguration is detected at startup but reported per
	// rule, so the run log names every rule it affected.
	if e.cfg.TransportErr != nil {
		return fail("transport unavailable: %v", e.cfg.TransportErr)
	}

	unsubscribed, err := e.cfg.Unsubscribes.UserIDs(ctx, rule.ID)
	if err != nil {
		return fail("loading unsubscribe set: %v", err)
	}

	now := e.cfg.Clock.Now()
	unsubURL := e.cfg.Codec.UnsubscribeURL(rule.ID)

	for _, userID := range recipients {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Sprintf("notification %d: run cancelled: %v", rule.ID, err))
			break
		}
		if _, skip := unsubscribed[userID]; skip {
			continue
		}
		sent, err := e.sendToUser(ctx, rule, userID, now, unsubURL)
		if err != nil {
			errs = append(errs, fmt.Sprintf("notification %d, user %d: %v", rule.ID, userID, err))
			e.cfg.Logger.Warn("recipient send failed",
				"notification_id", rule.ID, "user_id", userID, "error", err.Error())
			continue
		}
		if sent {
			sentUserIDs = append(sentUserIDs, userID)
		}
	}

	if len(sentUserIDs) > 0 {
		rec := &types.SentRecord{
			NotificationID: rule.ID,
			Text:           canonical.Text,
			Recipients:     len(sentUserIDs),
			CreatedAt:      now,
		}
		if err := e.cfg.Sent.Insert(ctx, rec); err != nil {
			errs = append(errs, fmt.Sprintf("notification %d: recording delivery: %v", rule.ID, err))
		}
	}
	return sentUserIDs, errs
}

// sendToUser delivers one message. sent is false when the user is outside
// the audience (no confirmed address); such users are neither recorded nor
// reported as failures.
func (e *Engine) sendToUser(ctx context.Context, rule *types.NotificationRule, userID int64, runAt time.Time, unsubURL string) (sent bool, err error) {
	contact, err := e.cfg.Users.GetUserContact(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("looking up contact: %w", err)
	}
	if !contact.HasEmail() {
		return false, nil
	}

	locale := contact.Locale
	if locale == "" {
		locale = e.cfg.DefaultLocale
	}

	body, err := e.cfg.Renderer.RenderPage(ctx, rule.PageID, locale)
	if err != nil {
		return false, fmt.Errorf("rendering page for locale %q: %w", locale, err)
	}
	subject, err := e.cfg.Renderer.RenderSubject(ctx, rule.Subject, locale)
	if err != nil {
		return false, fmt.Errorf("rendering subject: %w", err)
	}

	token := e.cfg.Codec.Encode(rule.ID, userID, runAt)
	msg, err := e.cfg.Composer.Compose(mailer.ComposeParams{
		From:      e.cfg.From,
		To:        []types.Address{{Email: contact.Email, Name: contact.Name}},
		Subject:   subject,
		Text:      body.Text,
		HTML:      body.HTML,
		MessageID: token,
		Headers: map[string]string{
			mailer.HeaderListUnsubscribe: "<" + unsubURL + ">",
			mailer.HeaderTrackingURL:     e.cfg.Codec.TrackingURL(rule.ID, token),
		},
	})
	if err != nil {
		return false, fmt.Errorf("composing message: %w", err)
	}
	if err := e.cfg.Transport.Send(ctx, msg); err != nil {
		return false, types.NewAppError(types.ErrCodeTransportSendFailed, "sending message", err)
	}
	return true, nil
}
