// Package apns provides the client for the Apple Push Notification Service.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"github.com/tinywideclouds/go-fcm-gateway/pkg/fcm"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

type Dispatcher struct {
	client APNSClient
	topic  string // The App Bundle ID (e.g. com.tinywide.messenger)
	logger *slog.Logger
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw string content of the .p8 file
	P8KeyContent string
	// Sandbox routes pushes to the development gateway.
	Sandbox bool
}

// NewDispatcher creates a configured APNS dispatcher.
// It parses the P8 key immediately to fail fast on startup if credentials are bad.
func NewDispatcher(cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	tokenSource := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	client := apns2.NewTokenClient(tokenSource)
	if cfg.Sandbox {
		client = client.Development()
	} else {
		client = client.Production()
	}

	return &Dispatcher{
		client: client,
		topic:  cfg.BundleID,
		logger: logger.With("component", "APNSDispatcher"),
	}, nil
}

// Dispatch sends the notification to a batch of APNs tokens.
// A nil or silenced notification is delivered as a background push.
// Note: APNs HTTP/2 API is unary (one request per token). There is no "Multicast" endpoint.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	tokens []string,
	n fcm.Notification,
	data map[string]any,
) (string, []string, error) {
	if len(tokens) == 0 {
		return "skipped: no tokens", nil, nil
	}

	f := fcm.FieldsOf(n)
	silent := n == nil || f.Silent
	body := buildPayload(f, silent, data)

	pushType := apns2.PushTypeAlert
	priority := apns2.PriorityHigh
	if silent {
		pushType = apns2.PushTypeBackground
		priority = apns2.PriorityLow
	}

	var invalidTokens []string
	successCount := 0
	failureCount := 0

	for _, deviceToken := range tokens {
		if err := ctx.Err(); err != nil {
			return "", invalidTokens, err
		}

		notification := &apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       d.topic,
			Payload:     body,
			PushType:    pushType,
			Priority:    priority,
		}

		res, err := d.client.Push(notification)
		if err != nil {
			d.logger.Error("APNs transport failed", "token", deviceToken, "err", err)
			failureCount++
			continue
		}

		if res.Sent() {
			successCount++
			continue
		}

		failureCount++
		switch res.Reason {
		case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
			invalidTokens = append(invalidTokens, deviceToken)
		default:
			// The token may be fine; TopicDisallowed and PayloadEmpty point at our configuration.
			d.logger.Warn("APNs rejected notification", "reason", res.Reason, "status", res.StatusCode)
		}
	}

	receipt := fmt.Sprintf("success:%d invalid:%d total_fail:%d", successCount, len(invalidTokens), failureCount)
	return receipt, invalidTokens, nil
}

func buildPayload(f fcm.Fields, silent bool, data map[string]any) *payload.Payload {
	builder := payload.NewPayload()
	if silent {
		builder.ContentAvailable()
	} else {
		if f.Title != "" {
			builder.AlertTitle(f.Title)
		}
		if f.SubTitle != "" {
			builder.AlertSubtitle(f.SubTitle)
		}
		if f.Body != "" {
			builder.AlertBody(f.Body)
		}
		if f.BodyLocKey != "" {
			builder.AlertLocKey(f.BodyLocKey).AlertLocArgs(f.BodyLocArgs)
		}
		if f.TitleLocKey != "" {
			builder.AlertTitleLocKey(f.TitleLocKey).AlertTitleLocArgs(f.TitleLocArgs)
		}
		if f.Sound != "" {
			builder.Sound(f.Sound)
		}
		if f.Badge != nil {
			if *f.Badge == 0 {
				builder.ZeroBadge()
			} else {
				builder.Badge(*f.Badge)
			}
		}
		if f.ClickAction != "" {
			builder.Category(f.ClickAction)
		}
		if f.ContentAvailable {
			builder.ContentAvailable()
		}
	}

	for k, v := range data {
		builder.Custom(k, v)
	}
	return builder
}
