package ses

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/smithy-go"

	"github.com/lattiq/mailkit/internal/core"
)

// api is the subset of the SES client used by the transport.
type api interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// Transport implements core.Transport for AWS SES.
type Transport struct {
	client api
	config core.TransportSettings
}

// NewTransport creates a new AWS SES transport.
func NewTransport(settings core.TransportSettings) (core.Transport, error) {
	region := settings.Get("region")
	if region == "" {
		return nil, core.NewValidationError("region", "AWS region is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}

	// Override with explicit credentials if provided
	if accessKey := settings.Get("access_key"); accessKey != "" {
		secretKey := settings.Get("secret_key")
		if secretKey == "" {
			return nil, core.NewValidationError("secret_key", "secret key is required when access key is provided")
		}
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, settings.Get("session_token")),
		))
	}

	cfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, core.NewTransportError("aws_ses", "config_error", "failed to load AWS config: "+err.Error(), err)
	}

	client := ses.NewFromConfig(cfg, func(o *ses.Options) {
		if endpoint := settings.Get("endpoint"); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &Transport{
		client: client,
		config: settings,
	}, nil
}

// Send delivers a message using the SES SendEmail API.
func (t *Transport) Send(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	if len(msg.Attachments) > 0 {
		return nil, core.NewTransportError(t.Name(), "unsupported", "attachments are not supported by SendEmail", nil)
	}

	from, err := msg.Sender()
	if err != nil {
		return nil, err
	}
	rcpt, err := msg.Recipients()
	if err != nil {
		return nil, err
	}

	input := &ses.SendEmailInput{
		Source: aws.String(from.String()),
		Destination: &types.Destination{
			ToAddresses: core.FormatAddresses(rcpt.To),
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{},
		},
	}

	if len(rcpt.CC) > 0 {
		input.Destination.CcAddresses = core.FormatAddresses(rcpt.CC)
	}
	if len(rcpt.BCC) > 0 {
		input.Destination.BccAddresses = core.FormatAddresses(rcpt.BCC)
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}

	if msg.Text != "" {
		input.Message.Body.Text = &types.Content{
			Data:    aws.String(msg.Text),
			Charset: aws.String("UTF-8"),
		}
	}
	if msg.HTML != "" {
		input.Message.Body.Html = &types.Content{
			Data:    aws.String(msg.HTML),
			Charset: aws.String("UTF-8"),
		}
	}

	configSet := msg.Metadata["configuration_set"]
	if configSet == "" {
		configSet = t.config.Get("configuration_set")
	}
	if configSet != "" {
		input.ConfigurationSetName = aws.String(configSet)
	}

	for name, value := range msg.Metadata {
		if name == "configuration_set" {
			continue
		}
		input.Tags = append(input.Tags, types.MessageTag{
			Name:  aws.String(name),
			Value: aws.String(value),
		})
	}

	output, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return nil, t.wrapError(err)
	}

	id := aws.ToString(output.MessageId)
	return &core.SendResult{
		Response:  "250 Ok " + id,
		MessageID: id,
		Transport: t.Name(),
		Timestamp: time.Now(),
	}, nil
}

// wrapError classifies SES API errors; throttling is reported as temporary.
func (t *Transport) wrapError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "Throttling", "ThrottlingException":
			return core.NewTemporaryTransportError(t.Name(), apiErr.ErrorCode(), apiErr.ErrorMessage(), err)
		default:
			return core.NewTransportError(t.Name(), apiErr.ErrorCode(), apiErr.ErrorMessage(), err)
		}
	}
	return core.NewTransportError(t.Name(), "send_error", "failed to send email: "+err.Error(), err)
}

// ValidateConfig validates the transport configuration.
func (t *Transport) ValidateConfig() error {
	if t.config.Get("region") == "" {
		return core.NewValidationError("region", "AWS region is required")
	}
	return nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "aws_ses"
}

// Close is a no-op, the SDK client holds no session.
func (t *Transport) Close() error {
	return nil
}
