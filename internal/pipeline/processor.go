package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-fcm-gateway/internal/metrics"
	"github.com/tinywideclouds/go-fcm-gateway/pkg/dispatch"
	"github.com/tinywideclouds/go-fcm-gateway/pkg/fcm"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// NewProcessor creates the logic that handles the "Fan-Out".
//
// Directly addressed requests go straight to the FCM gateway. Recipient
// requests are resolved through the token store and fanned out to FCM, APNs
// and Web Push; tokens a backend reports as dead are unregistered.
// apnsDispatcher and webDispatcher may be nil when those paths are disabled.
func NewProcessor(
	gateway dispatch.Transport,
	apnsDispatcher dispatch.Dispatcher,
	webDispatcher dispatch.WebDispatcher,
	tokenStore dispatch.TokenStore,
	m *metrics.Metrics,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[dispatch.SendRequest] {

	return func(ctx context.Context, original messagepipeline.Message, request *dispatch.SendRequest) error {
		procLogger := logger.With(
			"request_id", request.ID,
			"pubsub_msg_id", original.ID,
		)

		if request.IsDirect() {
			return sendDirect(ctx, gateway, request, m, procLogger)
		}

		user, err := request.Recipient()
		if err != nil {
			procLogger.Error("Dropping request with invalid recipient", "err", err)
			m.Dropped.Inc()
			return nil
		}
		procLogger = procLogger.With("recipient_id", user.String())

		devices, err := tokenStore.Fetch(ctx, user)
		if err != nil {
			procLogger.Error("Failed to fetch device tokens", "err", err)
			return err
		}
		if devices.Empty() {
			procLogger.Info("No devices registered for user; dropping notification.")
			return nil
		}

		// Path A: FCM
		for start := 0; start < len(devices.FCMTokens); start += fcm.MaxDevices {
			batch := devices.FCMTokens[start:min(start+fcm.MaxDevices, len(devices.FCMTokens))]
			msg, err := request.BuildDeviceMessage(batch)
			if err != nil {
				procLogger.Error("Dropping request, FCM message cannot be built", "err", err)
				m.Dropped.Inc()
				return nil
			}

			receipt, invalidTokens, err := gateway.Send(ctx, msg)
			m.Record(metrics.PathFCM, len(invalidTokens), err)
			cleanupTokens(ctx, tokenStore, user, dispatch.PlatformFCM, invalidTokens, procLogger)
			if err != nil {
				procLogger.Error("FCM Dispatch failed", "err", err)
				return err // Retryable
			}
			procLogger.Info("FCM Dispatched", "receipt", receipt)
		}

		if len(devices.APNSTokens) == 0 && len(devices.WebSubscriptions) == 0 {
			return nil
		}

		n, data, err := request.Content()
		if err != nil {
			procLogger.Error("Dropping request, notification cannot be built", "err", err)
			m.Dropped.Inc()
			return nil
		}

		// Path B: APNs
		if len(devices.APNSTokens) > 0 {
			if apnsDispatcher == nil {
				procLogger.Warn("APNs tokens registered but APNs is disabled", "count", len(devices.APNSTokens))
			} else {
				receipt, invalidTokens, err := apnsDispatcher.Dispatch(ctx, devices.APNSTokens, n, data)
				m.Record(metrics.PathAPNS, len(invalidTokens), err)
				cleanupTokens(ctx, tokenStore, user, dispatch.PlatformAPNS, invalidTokens, procLogger)
				if err != nil {
					procLogger.Error("APNs Dispatch failed", "err", err)
					return err
				}
				procLogger.Info("APNs Dispatched", "receipt", receipt)
			}
		}

		// Path C: Web (VAPID)
		if len(devices.WebSubscriptions) > 0 {
			if webDispatcher == nil {
				procLogger.Warn("Web subscriptions registered but Web Push is disabled", "count", len(devices.WebSubscriptions))
				return nil
			}
			receipt, invalidSubs, err := webDispatcher.Dispatch(ctx, devices.WebSubscriptions, n, data)
			m.Record(metrics.PathWeb, len(invalidSubs), err)

			if len(invalidSubs) > 0 {
				procLogger.Info("Cleaning up invalid Web subscriptions", "count", len(invalidSubs))
				for _, sub := range invalidSubs {
					if err := tokenStore.UnregisterWeb(ctx, user, sub.Endpoint); err != nil {
						procLogger.Warn("Failed to delete Web subscription", "endpoint", sub.Endpoint, "err", err)
					}
				}
			}

			if err != nil {
				procLogger.Error("Web Dispatch failed", "err", err)
				return err
			}
			procLogger.Info("Web Dispatched", "receipt", receipt)
		}

		return nil
	}
}

func sendDirect(ctx context.Context, gateway dispatch.Transport, request *dispatch.SendRequest, m *metrics.Metrics, logger *slog.Logger) error {
	msg, err := request.BuildMessage()
	if err != nil {
		logger.Error("Dropping request, FCM message cannot be built", "err", err)
		m.Dropped.Inc()
		return nil
	}

	path := metrics.PathFCM
	if msg.TargetType() == fcm.KindTopic {
		path = metrics.PathTopic
	}

	receipt, invalidTokens, err := gateway.Send(ctx, msg)
	m.Record(path, len(invalidTokens), err)
	if len(invalidTokens) > 0 {
		// No owner is known for raw tokens, so there is nothing to unregister.
		logger.Warn("FCM reported invalid tokens on a direct request", "tokens", invalidTokens)
	}
	if err != nil {
		logger.Error("FCM Dispatch failed", "err", err)
		return err
	}
	logger.Info("FCM Dispatched", "receipt", receipt, "path", path)
	return nil
}

func cleanupTokens(ctx context.Context, store dispatch.TokenStore, user urn.URN, platform dispatch.Platform, tokens []string, logger *slog.Logger) {
	if len(tokens) == 0 {
		return
	}
	logger.Info("Cleaning up invalid tokens", "platform", platform, "count", len(tokens))
	for _, t := range tokens {
		if err := store.UnregisterToken(ctx, user, platform, t); err != nil {
			logger.Warn("Failed to delete token", "platform", platform, "token", t, "err", err)
		}
	}
}
