package mail

import (
	"context"

	"go.uber.org/zap"

	"github.com/avisolabs/aviso/internal/circuitbreaker"
)

// ProtectedTransport wraps a Transport with a circuit breaker. When the
// provider starts failing, the circuit opens and deliveries fail fast
// as retryable DeliveryErrors instead of piling onto a dead endpoint.
// Permanent failures (bad recipient) do not trip the breaker.
type ProtectedTransport struct {
	transport Transport
	breaker   *circuitbreaker.CircuitBreaker
	logger    *zap.Logger
}

// NewProtectedTransport wraps transport with breaker.
func NewProtectedTransport(transport Transport, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *ProtectedTransport {
	return &ProtectedTransport{
		transport: transport,
		breaker:   breaker,
		logger:    logger,
	}
}

func (p *ProtectedTransport) Deliver(ctx context.Context, msg *Outbound) (*Receipt, error) {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit open, rejecting delivery",
			zap.String("breaker", p.breaker.Name()),
			zap.String("to", msg.To),
		)
		return nil, &DeliveryError{Err: circuitbreaker.ErrCircuitOpen}
	}

	receipt, err := p.transport.Deliver(ctx, msg)
	if err != nil {
		if derr := asDeliveryError(err); derr.Permanent {
			// The provider is healthy, the message is not.
			p.breaker.RecordSuccess()
		} else {
			p.breaker.RecordFailure()
		}
		return nil, err
	}

	p.breaker.RecordSuccess()
	return receipt, nil
}
