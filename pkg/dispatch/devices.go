package dispatch

import "fmt"

// Platform identifies the delivery path of a native push token.
type Platform string

const (
	// PlatformFCM tokens are delivered through the FCM gateway (Android, iOS via FCM, JS SDK).
	PlatformFCM Platform = "fcm"
	// PlatformAPNS tokens are delivered straight to Apple.
	PlatformAPNS Platform = "apns"
)

// ParsePlatform validates a platform name taken from a request.
func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(s); p {
	case PlatformFCM, PlatformAPNS:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported platform %q", s)
	}
}

// WebSubscription is a browser Push API subscription.
type WebSubscription struct {
	Endpoint string `json:"endpoint" firestore:"endpoint"`
	Keys     struct {
		P256dh []byte `json:"p256dh" firestore:"p256dh"`
		Auth   []byte `json:"auth" firestore:"auth"`
	} `json:"keys" firestore:"keys"`
}

// Devices groups the registered devices of one user by delivery path.
type Devices struct {
	FCMTokens        []string          `json:"fcm_tokens"`
	APNSTokens       []string          `json:"apns_tokens"`
	WebSubscriptions []WebSubscription `json:"web_subscriptions"`
}

func (d *Devices) Empty() bool {
	return len(d.FCMTokens) == 0 && len(d.APNSTokens) == 0 && len(d.WebSubscriptions) == 0
}
