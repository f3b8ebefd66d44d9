package mail

import (
	"errors"
	"fmt"
)

// ErrInvalidMessage reports a message the dispatcher refuses to compose:
// missing recipient, missing subject, or no body at all. Caller-fixable,
// never retried.
var ErrInvalidMessage = errors.New("invalid mail message")

// DeliveryError wraps a transport-level failure. Permanent failures
// (rejected recipient, authentication refused) are surfaced immediately;
// everything else is considered transient and eligible for retry until
// the attempt budget runs out.
type DeliveryError struct {
	Permanent bool
	Err       error
}

func (e *DeliveryError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("delivery failed (%s): %v", kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// asDeliveryError normalizes any transport error into a *DeliveryError.
// Unclassified errors count as transient.
func asDeliveryError(err error) *DeliveryError {
	var derr *DeliveryError
	if errors.As(err, &derr) {
		return derr
	}
	return &DeliveryError{Err: err}
}
