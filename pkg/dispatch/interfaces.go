package dispatch

import (
	"context"

	"github.com/tinywideclouds/go-fcm-gateway/pkg/fcm"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// Transport delivers a built FCM message.
// It returns a human-readable receipt and the registration tokens the gateway
// reported as permanently invalid. A non-nil error means the send may be retried.
// A retry resends the whole message, so tokens that already succeeded can be
// notified twice: delivery is at-least-once.
type Transport interface {
	Send(ctx context.Context, msg *fcm.Message) (string, []string, error)
}

// TopicManager subscribes registration tokens to topics and removes them again.
type TopicManager interface {
	SubscribeToTopic(ctx context.Context, topic string, tokens []string) error
	UnsubscribeFromTopic(ctx context.Context, topic string, tokens []string) error
}

// Gateway is everything the service needs from an FCM backend.
type Gateway interface {
	Transport
	TopicManager
}

// Dispatcher defines the contract for a component that delivers a notification
// directly to a batch of platform tokens (e.g. Apple's APNS).
type Dispatcher interface {
	Dispatch(ctx context.Context, tokens []string, n fcm.Notification, data map[string]any) (string, []string, error)
}

// WebDispatcher delivers a notification to Web Push subscriptions and returns
// the subscriptions that no longer exist.
type WebDispatcher interface {
	Dispatch(ctx context.Context, subs []WebSubscription, n fcm.Notification, data map[string]any) (string, []WebSubscription, error)
}

// TokenStore defines the contract for managing user devices.
// It allows the service to remember "where" to send notifications for a user.
type TokenStore interface {
	// RegisterToken adds or updates a native push token. It is an upsert.
	RegisterToken(ctx context.Context, user urn.URN, platform Platform, token string) error
	UnregisterToken(ctx context.Context, user urn.URN, platform Platform, token string) error

	RegisterWeb(ctx context.Context, user urn.URN, sub WebSubscription) error
	UnregisterWeb(ctx context.Context, user urn.URN, endpoint string) error

	// Fetch returns every registered device of the user, grouped by delivery path.
	Fetch(ctx context.Context, user urn.URN) (*Devices, error)
}
