package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	firebase "firebase.google.com/go/v4"

	"github.com/tinywideclouds/go-fcm-gateway/internal/platform/apns"
	fcmadmin "github.com/tinywideclouds/go-fcm-gateway/internal/platform/firebase"
	"github.com/tinywideclouds/go-fcm-gateway/internal/platform/legacy"
	"github.com/tinywideclouds/go-fcm-gateway/internal/platform/web"
	"github.com/tinywideclouds/go-fcm-gateway/notificationservice"
	"github.com/tinywideclouds/go-fcm-gateway/notificationservice/config"
	"github.com/tinywideclouds/go-fcm-gateway/pkg/dispatch"
)

// newBackends builds the FCM gateway for the configured mode plus the
// optional APNs and Web Push dispatchers. Disabled paths stay nil.
func newBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notificationservice.Backends, error) {
	var backends notificationservice.Backends

	gateway, err := newGateway(ctx, cfg, logger)
	if err != nil {
		return backends, err
	}
	backends.Gateway = gateway

	if cfg.APNS.Enabled {
		d, err := apns.NewDispatcher(apns.Config{
			KeyID:        cfg.APNS.KeyID,
			TeamID:       cfg.APNS.TeamID,
			BundleID:     cfg.APNS.BundleID,
			P8KeyContent: cfg.APNS.P8Key,
			Sandbox:      cfg.APNS.Sandbox,
		}, logger)
		if err != nil {
			return backends, fmt.Errorf("apns dispatcher: %w", err)
		}
		backends.APNS = d
		logger.Info("APNs Dispatcher enabled", "bundle_id", cfg.APNS.BundleID, "sandbox", cfg.APNS.Sandbox)
	}

	if cfg.Vapid.PrivateKey == "" || cfg.Vapid.PublicKey == "" {
		logger.Warn("VAPID keys missing in configuration. Web Push disabled.")
	} else {
		backends.Web = web.NewDispatcher(cfg.Vapid, logger)
		logger.Info("Web Dispatcher enabled", "public_key", cfg.Vapid.PublicKey)
	}

	return backends, nil
}

func newGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) (dispatch.Gateway, error) {
	switch cfg.Gateway.Mode {
	case config.GatewayModeAdmin:
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID})
		if err != nil {
			return nil, fmt.Errorf("firebase app: %w", err)
		}
		client, err := fbApp.Messaging(ctx)
		if err != nil {
			return nil, fmt.Errorf("firebase messaging client: %w", err)
		}
		return fcmadmin.NewGateway(client, logger), nil

	default:
		client, err := legacy.NewClient(legacy.Config{
			APIKey:            cfg.Gateway.APIKey,
			SendURL:           cfg.Gateway.SendURL,
			SubscribeURL:      cfg.Gateway.SubscribeURL,
			UnsubscribeURL:    cfg.Gateway.UnsubscribeURL,
			Timeout:           time.Duration(cfg.Gateway.TimeoutSeconds) * time.Second,
			RequestsPerSecond: cfg.Gateway.RequestsPerSecond,
		}, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("legacy fcm client: %w", err)
		}
		return legacy.NewDispatcher(client, logger), nil
	}
}
