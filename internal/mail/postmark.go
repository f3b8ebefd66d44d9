package mail

import (
	"context"
	"fmt"

	"github.com/mrz1836/postmark"
	"go.uber.org/zap"
)

// Postmark API error codes that retrying cannot fix.
// 300: invalid email request, 406: inactive recipient.
const (
	postmarkInvalidEmail      = 300
	postmarkInactiveRecipient = 406
)

// PostmarkTransport delivers mail through Postmark's transactional API.
type PostmarkTransport struct {
	client *postmark.Client
	logger *zap.Logger
}

// NewPostmarkTransport builds a Postmark-backed transport. The server
// token is required; the account token is only needed for account-level
// endpoints and may be empty here.
func NewPostmarkTransport(serverToken, accountToken string, logger *zap.Logger) (*PostmarkTransport, error) {
	if serverToken == "" {
		return nil, fmt.Errorf("postmark server token is required")
	}
	return &PostmarkTransport{
		client: postmark.NewClient(serverToken, accountToken),
		logger: logger,
	}, nil
}

func (t *PostmarkTransport) Deliver(ctx context.Context, msg *Outbound) (*Receipt, error) {
	resp, err := t.client.SendEmail(ctx, postmark.Email{
		From:     msg.From,
		To:       msg.To,
		Subject:  msg.Subject,
		HTMLBody: msg.HTML,
		TextBody: msg.Text,
	})
	if err != nil {
		return nil, &DeliveryError{Err: fmt.Errorf("postmark send: %w", err)}
	}
	if resp.ErrorCode > 0 {
		permanent := resp.ErrorCode == postmarkInvalidEmail || resp.ErrorCode == postmarkInactiveRecipient
		return nil, &DeliveryError{
			Permanent: permanent,
			Err:       fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message),
		}
	}

	t.logger.Info("mail delivered via Postmark",
		zap.String("to", msg.To),
		zap.String("message_id", resp.MessageID),
	)

	return &Receipt{MessageID: resp.MessageID}, nil
}
