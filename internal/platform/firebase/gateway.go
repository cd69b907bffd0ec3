// Package firebase delivers gateway messages through the Firebase Admin SDK.
package firebase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/tinywideclouds/go-fcm-gateway/pkg/fcm"
)

const (
	// multicastLimit is the largest token batch SendEachForMulticast accepts.
	multicastLimit = 500
	// topicBatchLimit is the largest token batch the topic management API accepts.
	topicBatchLimit = 1000
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it.
type MessagingClient interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
	UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
}

type Gateway struct {
	client MessagingClient
	logger *slog.Logger
}

func NewGateway(client MessagingClient, logger *slog.Logger) *Gateway {
	return &Gateway{
		client: client,
		logger: logger.With("component", "FirebaseGateway"),
	}
}

// Send delivers msg. Device messages go out in multicast batches and report
// the tokens Firebase rejected; topic messages go out as a single send.
func (g *Gateway) Send(ctx context.Context, msg *fcm.Message) (string, []string, error) {
	if len(msg.Targets()) == 0 {
		return "", nil, fcm.ErrMissingTargets
	}
	if _, ok := msg.DelayWhileIdle(); ok {
		g.logger.Debug("delay_while_idle has no Admin SDK equivalent, ignoring")
	}
	if len(msg.Extras()) > 0 {
		g.logger.Debug("extra fields are not sent through the Admin SDK", "count", len(msg.Extras()))
	}

	if msg.TargetType() == fcm.KindTopic {
		return g.sendTopic(ctx, msg)
	}
	return g.sendDevices(ctx, msg)
}

func (g *Gateway) sendTopic(ctx context.Context, msg *fcm.Message) (string, []string, error) {
	m, err := toMessage(msg)
	if err != nil {
		return "", nil, err
	}
	targets := msg.Targets()
	if len(targets) == 1 {
		m.Topic = targets[0].Value()
	} else {
		condition, err := msg.TopicCondition()
		if err != nil {
			return "", nil, err
		}
		m.Condition = condition
	}

	id, err := g.client.Send(ctx, m)
	if err != nil {
		if messaging.IsInvalidArgument(err) {
			g.logger.Error("FCM rejected topic message as InvalidArgument (dropping)", "err", err)
			return "skipped: invalid_argument", nil, nil
		}
		return "", nil, fmt.Errorf("fcm transport failed: %w", err)
	}
	return id, nil, nil
}

func (g *Gateway) sendDevices(ctx context.Context, msg *fcm.Message) (string, []string, error) {
	m, err := toMessage(msg)
	if err != nil {
		return "", nil, err
	}
	tokens := msg.Tokens()

	var invalidTokens []string
	successCount := 0
	retryableErrors := 0

	for start := 0; start < len(tokens); start += multicastLimit {
		batch := tokens[start:min(start+multicastLimit, len(tokens))]
		mm := &messaging.MulticastMessage{
			Tokens:       batch,
			Data:         m.Data,
			Notification: m.Notification,
			Android:      m.Android,
			APNS:         m.APNS,
			Webpush:      m.Webpush,
		}

		br, err := g.client.SendEachForMulticast(ctx, mm)
		if err != nil {
			if messaging.IsInvalidArgument(err) {
				g.logger.Error("FCM rejected batch as InvalidArgument (dropping)", "err", err, "batch_start", start)
				continue
			}
			return "", nil, fmt.Errorf("fcm transport failed: %w", err)
		}

		successCount += br.SuccessCount
		for idx, resp := range br.Responses {
			if resp.Success {
				continue
			}
			if messaging.IsInvalidArgument(resp.Error) || messaging.IsRegistrationTokenNotRegistered(resp.Error) {
				invalidTokens = append(invalidTokens, batch[idx])
				continue
			}
			retryableErrors++
		}
	}

	if retryableErrors > 0 {
		return "", invalidTokens, fmt.Errorf("batch had %d retryable errors", retryableErrors)
	}

	receipt := fmt.Sprintf("success:%d invalid:%d", successCount, len(invalidTokens))
	return receipt, invalidTokens, nil
}

func (g *Gateway) SubscribeToTopic(ctx context.Context, topic string, tokens []string) error {
	return g.manageTopic(ctx, "subscribe", topic, tokens, g.client.SubscribeToTopic)
}

func (g *Gateway) UnsubscribeFromTopic(ctx context.Context, topic string, tokens []string) error {
	return g.manageTopic(ctx, "unsubscribe", topic, tokens, g.client.UnsubscribeFromTopic)
}

type topicFunc func(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)

func (g *Gateway) manageTopic(ctx context.Context, op, topic string, tokens []string, call topicFunc) error {
	if _, err := fcm.NewTopicTarget(topic); err != nil {
		return err
	}
	if len(tokens) == 0 {
		return fmt.Errorf("%s %s: no registration tokens", op, topic)
	}

	for start := 0; start < len(tokens); start += topicBatchLimit {
		batch := tokens[start:min(start+topicBatchLimit, len(tokens))]
		resp, err := call(ctx, batch, topic)
		if err != nil {
			return fmt.Errorf("%s %s: %w", op, topic, err)
		}
		if resp.FailureCount > 0 {
			for _, e := range resp.Errors {
				g.logger.Warn("Topic management failed for token",
					"op", op, "topic", topic, "token_index", start+e.Index, "reason", e.Reason)
			}
		}
	}
	return nil
}

// toMessage maps everything except the addressing onto an Admin SDK message.
func toMessage(msg *fcm.Message) (*messaging.Message, error) {
	data, err := stringData(msg.Data())
	if err != nil {
		return nil, err
	}
	f := fcm.FieldsOf(msg.Notification())

	m := &messaging.Message{
		Data:    data,
		Android: androidConfig(msg, f),
		APNS:    apnsConfig(msg, f),
		Webpush: webpushConfig(msg, f),
	}
	if msg.Notification() != nil && !f.Silent && !msg.IsSilent() {
		m.Notification = &messaging.Notification{Title: f.Title, Body: f.Body}
	}
	return m, nil
}

func androidConfig(msg *fcm.Message, f fcm.Fields) *messaging.AndroidConfig {
	cfg := &messaging.AndroidConfig{
		CollapseKey: msg.CollapseKey(),
		Priority:    msg.Priority(),
	}
	if ttl, ok := msg.TimeToLive(); ok {
		d := time.Duration(ttl) * time.Second
		cfg.TTL = &d
	}
	if msg.Notification() != nil && !f.Silent {
		cfg.Notification = &messaging.AndroidNotification{
			Title:        f.Title,
			Body:         f.Body,
			Icon:         f.Icon,
			Color:        f.Color,
			Sound:        f.Sound,
			Tag:          f.Tag,
			ClickAction:  f.ClickAction,
			BodyLocKey:   f.BodyLocKey,
			BodyLocArgs:  f.BodyLocArgs,
			TitleLocKey:  f.TitleLocKey,
			TitleLocArgs: f.TitleLocArgs,
			ChannelID:    f.ChannelID,
		}
	}
	return cfg
}

func apnsConfig(msg *fcm.Message, f fcm.Fields) *messaging.APNSConfig {
	headers := map[string]string{}
	if key := msg.CollapseKey(); key != "" {
		headers["apns-collapse-id"] = key
	}

	aps := &messaging.Aps{}
	switch {
	case msg.IsSilent() || f.Silent:
		aps.ContentAvailable = true
		headers["apns-push-type"] = "background"
		headers["apns-priority"] = "5"
	case msg.Notification() != nil:
		aps.Alert = &messaging.ApsAlert{
			Title:        f.Title,
			SubTitle:     f.SubTitle,
			Body:         f.Body,
			LocKey:       f.BodyLocKey,
			LocArgs:      f.BodyLocArgs,
			TitleLocKey:  f.TitleLocKey,
			TitleLocArgs: f.TitleLocArgs,
		}
		aps.Badge = f.Badge
		aps.Sound = f.Sound
		aps.Category = f.ClickAction
		aps.ContentAvailable = f.ContentAvailable
		if msg.Priority() == fcm.PriorityHigh {
			headers["apns-priority"] = "10"
		}
	default:
		return nil
	}

	cfg := &messaging.APNSConfig{Payload: &messaging.APNSPayload{Aps: aps}}
	if len(headers) > 0 {
		cfg.Headers = headers
	}
	return cfg
}

func webpushConfig(msg *fcm.Message, f fcm.Fields) *messaging.WebpushConfig {
	if msg.Notification() == nil || f.Silent {
		return nil
	}
	cfg := &messaging.WebpushConfig{
		Notification: &messaging.WebpushNotification{
			Title: f.Title,
			Body:  f.Body,
			Icon:  f.Icon,
			Tag:   f.Tag,
		},
	}
	if _, ok := msg.Notification().(*fcm.WebNotification); ok && f.ClickAction != "" {
		cfg.FCMOptions = &messaging.WebpushFCMOptions{Link: f.ClickAction}
	}
	if ttl, ok := msg.TimeToLive(); ok {
		cfg.Headers = map[string]string{"TTL": fmt.Sprint(ttl)}
	}
	return cfg
}

// stringData flattens the data map: strings pass through, everything else is
// JSON encoded.
func stringData(data map[string]any) (map[string]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("data field %q: %w", k, err)
		}
		out[k] = string(b)
	}
	return out, nil
}
