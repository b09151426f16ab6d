package external

import (
	"context"
	"fmt"
	"net/smtp"
	"os/exec"
	"strings"

	"pagenotify/internal/mailer"
	"pagenotify/internal/types"
)

// NewTransport maps a resolved connection spec to a concrete transport.
// The scheme encodes the (provider, mode) pair the resolver validated;
// an unmapped scheme is a programming error in the resolver table and is
// reported as transport_unsupported.
func NewTransport(spec mailer.ConnectionSpec, logger types.Logger) (mailer.Transport, error) {
	switch {
	case spec.Scheme == "sendmail" || spec.Scheme == "native":
		return &LocalTransport{logger: logger}, nil
	case spec.Scheme == "smtp" || strings.HasSuffix(spec.Scheme, "+smtp"):
		return NewSMTPTransport(spec, logger), nil
	case spec.Scheme == "ses+api" || spec.Scheme == "ses+https":
		return NewSESTransport(spec, logger)
	case strings.HasSuffix(spec.Scheme, "+api") || strings.HasSuffix(spec.Scheme, "+https"):
		return NewAPITransport(spec, logger)
	default:
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeTransportUnsupported,
			"transport not supported",
			nil,
			map[string]any{"scheme": spec.Scheme},
		)
	}
}

// ---------------------------------------------------------------------------
// Local delivery (sendmail / native)
// ---------------------------------------------------------------------------

// sendmailPath is the conventional location of the local MTA submission
// binary. -t reads the recipient list from the message headers; -i keeps a
// lone dot from terminating the input.
var sendmailPath = "/usr/sbin/sendmail"

// LocalTransport delivers through the host's sendmail binary. Used by the
// "sendmail" and "native" providers, which need no credentials.
type LocalTransport struct {
	logger types.Logger
}

// Send pipes the rendered message into sendmail.
func (t *LocalTransport) Send(ctx context.Context, msg *mailer.Message) error {
	cmd := exec.CommandContext(ctx, sendmailPath, "-t", "-i")
	cmd.Stdin = strings.NewReader(string(msg.Bytes()))
	if out, err := cmd.CombinedOutput(); err != nil {
		return types.NewAppError(
			types.ErrCodeTransportSendFailed,
			fmt.Sprintf("sendmail failed: %s", strings.TrimSpace(string(out))),
			err,
		)
	}
	t.logger.Info("message handed to local MTA", "message_id", msg.MessageID)
	return nil
}

// ---------------------------------------------------------------------------
// SMTP relay (generic smtp and every provider's +smtp mode)
// ---------------------------------------------------------------------------

// smtpEndpoints maps a +smtp scheme to the provider's canonical submission
// endpoint, used when the spec's host is the default sentinel.
var smtpEndpoints = map[string]string{
	"ses+smtp":        "email-smtp.us-east-1.amazonaws.com:587",
	"gmail+smtp":      "smtp.gmail.com:587",
	"mandrill+smtp":   "smtp.mandrillapp.com:587",
	"mailgun+smtp":    "smtp.mailgun.org:587",
	"mailjet+smtp":    "in-v3.mailjet.com:587",
	"postmark+smtp":   "smtp.postmarkapp.com:587",
	"sendgrid+smtp":   "smtp.sendgrid.net:587",
	"sendinblue+smtp": "smtp-relay.sendinblue.com:587",
	"ohmysmtp+smtp":   "smtp.ohmysmtp.com:587",
}

// SMTPTransport relays messages through an SMTP submission endpoint with
// PLAIN authentication. STARTTLS negotiation is handled by net/smtp when
// the server advertises it.
type SMTPTransport struct {
	addr     string
	username string
	password string
	logger   types.Logger

	// sendMail is swappable for tests; defaults to smtp.SendMail.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPTransport builds an SMTP transport from the resolved spec.
// Single-credential providers authenticate with the credential as both
// username and password; SendGrid's relay additionally fixes the username
// to the literal "apikey" per its submission contract.
func NewSMTPTransport(spec mailer.ConnectionSpec, logger types.Logger) *SMTPTransport {
	addr := spec.Host
	if addr == mailer.DefaultEndpoint || addr == "" {
		addr = smtpEndpoints[spec.Scheme]
	}

	username := spec.Username.Unmask()
	password := spec.Password.Unmask()
	if password == "" {
		password = username
	}
	if spec.Scheme == "sendgrid+smtp" {
		username = "apikey"
	}

	return &SMTPTransport{
		addr:     addr,
		username: username,
		password: password,
		logger:   logger,
		sendMail: smtp.SendMail,
	}
}

// Send transmits the message over SMTP. The context deadline is advisory
// only: an in-flight transmission is allowed to complete.
func (t *SMTPTransport) Send(ctx context.Context, msg *mailer.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.addr == "" {
		return types.NewAppError(types.ErrCodeTransportUnsupported,
			"no smtp endpoint for transport", nil)
	}

	host := t.addr
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	auth := smtp.PlainAuth("", t.username, t.password, host)

	rcpts := make([]string, len(msg.To))
	for i, to := range msg.To {
		rcpts[i] = to.Email
	}

	if err := t.sendMail(t.addr, auth, msg.From.Email, rcpts, msg.Bytes()); err != nil {
		return types.NewAppError(types.ErrCodeTransportSendFailed, "smtp send failed", err)
	}
	t.logger.Info("message relayed via smtp", "endpoint", t.addr, "message_id", msg.MessageID)
	return nil
}
