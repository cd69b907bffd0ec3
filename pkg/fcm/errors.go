package fcm

import "errors"

// Construction errors.
var (
	ErrInvalidTarget            = errors.New("target identifier must not be empty")
	ErrInvalidColorFormat       = errors.New("color must be in #rrggbb format")
	ErrInvalidClickActionURL    = errors.New("click action must be a valid URL")
	ErrClickActionRequiresHTTPS = errors.New("click action URL must use https")
	ErrCannotBeSilenced         = errors.New("notification cannot be silenced")
	ErrReservedField            = errors.New("field is managed by the message")
)

// Aggregation errors, returned by AddTarget.
var (
	ErrUnknownTargetType   = errors.New("unknown target type")
	ErrMixedTargetTypes    = errors.New("mixed target types are not supported")
	ErrDeviceLimitExceeded = errors.New("device limit exceeded")
	ErrTooManyTopics       = errors.New("topic limit exceeded")
)

// Errors that depend on the final shape of the message and surface from Serialize.
var (
	ErrMissingTargets               = errors.New("message must have at least one target")
	ErrMissingCondition             = errors.New("condition pattern is required for multiple topics")
	ErrConditionTargetCountMismatch = errors.New("topic count does not match condition placeholders")
)

var ErrCannotMakeSilentMessageWithLoudNotification = errors.New("silent message cannot carry a notification that cannot be silenced")
