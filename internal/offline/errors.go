package offline

import "errors"

var (
	// ErrUnknownKind is returned for an operation kind no handler is registered for.
	ErrUnknownKind = errors.New("unknown operation kind")
	// ErrInvalidPayload is returned when a payload is not a JSON object.
	ErrInvalidPayload = errors.New("invalid operation payload")
)

// permanent reports whether replaying the operation again can never succeed.
func permanent(err error) bool {
	return errors.Is(err, ErrUnknownKind) || errors.Is(err, ErrInvalidPayload)
}
