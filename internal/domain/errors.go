package domain

import "errors"

var (
	// ErrValidation marks a submission with missing or malformed required fields.
	ErrValidation = errors.New("validation failed")
	// ErrUnsupportedMedia marks a submission whose content type is neither JSON nor plain text.
	ErrUnsupportedMedia = errors.New("unsupported content type")
	// ErrDecode marks a poison message whose payload can never be decoded.
	ErrDecode = errors.New("undecodable message payload")
	// ErrMalformedEnvelope marks a push body without a message or message data.
	ErrMalformedEnvelope = errors.New("malformed push envelope")
	// ErrPublish marks a failed hand-off to the broker.
	ErrPublish = errors.New("publish failed")
	// ErrStoreUnavailable marks a store write that may succeed on redelivery.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrUnstorable marks a record the store refuses on content, such as a NUL in text.
	ErrUnstorable = errors.New("record cannot be stored")
	// ErrMissingKey marks a record without tenant_id or log_id.
	ErrMissingKey = errors.New("missing tenant_id or log_id")
	// ErrFaultInjected is the deliberate single-shot crash used to exercise redelivery.
	ErrFaultInjected = errors.New("injected fault")
	// ErrPushRejected marks a push the endpoint refused permanently.
	ErrPushRejected = errors.New("push rejected by endpoint")
)

// IsPermanent reports whether err can never be fixed by redelivery.
// Permanent failures are acknowledged (drained); everything else is left
// for the broker to redeliver.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrMissingKey) ||
		errors.Is(err, ErrUnstorable) ||
		errors.Is(err, ErrMalformedEnvelope) ||
		errors.Is(err, ErrPushRejected)
}
