package external

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"pagenotify/internal/mailer"
	"pagenotify/internal/types"
)

// SESAPI is the subset of the SES v2 client used by SESTransport.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESTransport delivers through the AWS SES v2 API. Selected by the
// "amazon" provider in api or http mode; the spec's username/password are
// the access key pair.
type SESTransport struct {
	api    SESAPI
	logger types.Logger
}

// NewSESTransport builds the SES client from the resolved spec's access
// key pair. The region falls back to the SDK's default resolution chain.
func NewSESTransport(spec mailer.ConnectionSpec, logger types.Logger) (*SESTransport, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				spec.Username.Unmask(),
				spec.Password.Unmask(),
				"",
			),
		),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeTransportUnsupported,
			"loading aws config for ses transport", err)
	}
	return &SESTransport{api: sesv2.NewFromConfig(awsCfg), logger: logger}, nil
}

// NewSESTransportWithAPI creates an SESTransport with a pre-configured
// SESAPI. Useful for testing with a mock SES interface.
func NewSESTransportWithAPI(api SESAPI, logger types.Logger) *SESTransport {
	return &SESTransport{api: api, logger: logger}
}

// Send transmits the message through SES SendEmail with simple content.
func (t *SESTransport) Send(ctx context.Context, msg *mailer.Message) error {
	dests := make([]string, len(msg.To))
	for i, to := range msg.To {
		dests[i] = to.Email
	}

	body := &sestypes.Body{}
	if msg.Text != "" {
		body.Text = &sestypes.Content{Data: aws.String(msg.Text)}
	}
	if msg.HTML != "" {
		body.Html = &sestypes.Content{Data: aws.String(msg.HTML)}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From.String()),
		Destination:      &sestypes.Destination{ToAddresses: dests},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(msg.Subject)},
				Body:    body,
			},
		},
	}

	out, err := t.api.SendEmail(ctx, input)
	if err != nil {
		return types.NewAppError(types.ErrCodeTransportSendFailed, "ses send failed", err)
	}
	t.logger.Info("message sent via ses",
		"provider_message_id", aws.ToString(out.MessageId),
		"message_id", msg.MessageID,
	)
	return nil
}
