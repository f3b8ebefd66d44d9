package mail

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transport hands a composed message to a mail provider.
// Implementations: SES, Postmark, and a log transport for development.
type Transport interface {
	Deliver(ctx context.Context, msg *Outbound) (*Receipt, error)
}

// LogTransport logs messages instead of sending them. Used in
// development and as the fallback when no provider is configured.
type LogTransport struct {
	logger *zap.Logger
}

// NewLogTransport creates a transport that only logs.
func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Deliver(ctx context.Context, msg *Outbound) (*Receipt, error) {
	receipt := &Receipt{MessageID: uuid.New().String()}
	t.logger.Info("mail delivered (log transport)",
		zap.String("message_id", receipt.MessageID),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("html_bytes", len(msg.HTML)),
	)
	return receipt, nil
}
