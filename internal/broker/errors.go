package broker

import (
	"errors"
	"strings"
)

// Sentinel errors surfaced by broker implementations. Concrete gateways
// wrap the raw broker message around these so callers can branch with
// errors.Is without parsing vendor strings.
var (
	ErrNotLoggedIn         = errors.New("broker: session not established")
	ErrRateLimited         = errors.New("broker: too many requests")
	ErrTriggerPriceRule    = errors.New("broker: trigger price rejected for stoploss order")
	ErrModifyLimitExceeded = errors.New("broker: maximum allowed order modifications exceeded")
	ErrOrderNotFound       = errors.New("broker: order not found")
	ErrInstrumentNotFound  = errors.New("broker: instrument not found")
)

// rawMessageSentinels maps broker reject/throttle message fragments to
// their sentinel. Classify uses case-sensitive substring matching because
// the upstream messages are stable verbatim strings.
var rawMessageSentinels = []struct {
	fragment string
	sentinel error
}{
	{"Too many requests", ErrRateLimited},
	{"Trigger price for stoploss", ErrTriggerPriceRule},
	{"Maximum allowed order modifications exceeded", ErrModifyLimitExceeded},
}

// Classify wraps err with the sentinel matching its message, if any.
// Errors that already carry a sentinel pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, s := range rawMessageSentinels {
		if errors.Is(err, s.sentinel) {
			return err
		}
	}
	msg := err.Error()
	for _, s := range rawMessageSentinels {
		if strings.Contains(msg, s.fragment) {
			return errors.Join(s.sentinel, err)
		}
	}
	return err
}
