package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
)

// SESTransport delivers mail through AWS SES.
type SESTransport struct {
	client *ses.Client
	logger *zap.Logger
}

// NewSESTransport loads the default AWS config for the region and
// builds an SES client. Credentials come from the environment.
func NewSESTransport(ctx context.Context, region string, logger *zap.Logger) (*SESTransport, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &SESTransport{
		client: ses.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

func (t *SESTransport) Deliver(ctx context.Context, msg *Outbound) (*Receipt, error) {
	body := &types.Body{}
	if msg.HTML != "" {
		body.Html = &types.Content{
			Data:    aws.String(msg.HTML),
			Charset: aws.String("UTF-8"),
		}
	}
	if msg.Text != "" {
		body.Text = &types.Content{
			Data:    aws.String(msg.Text),
			Charset: aws.String("UTF-8"),
		}
	}

	input := &ses.SendEmailInput{
		Source: aws.String(msg.From),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: body,
		},
	}

	result, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return nil, &DeliveryError{
			Permanent: isPermanentSESError(err),
			Err:       fmt.Errorf("ses send: %w", err),
		}
	}

	t.logger.Info("mail delivered via SES",
		zap.String("to", msg.To),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return &Receipt{MessageID: aws.ToString(result.MessageId)}, nil
}

// isPermanentSESError classifies SES failures that retrying cannot fix.
func isPermanentSESError(err error) bool {
	var notVerified *types.MailFromDomainNotVerifiedException
	if errors.As(err, &notVerified) {
		return true
	}
	var rejected *types.MessageRejected
	return errors.As(err, &rejected)
}
