package legacy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-fcm-gateway/pkg/fcm"
)

// Per-token error codes of the legacy send endpoint.
const (
	errNotRegistered       = "NotRegistered"
	errInvalidRegistration = "InvalidRegistration"
	errMismatchSenderID    = "MismatchSenderId"
	errUnavailable         = "Unavailable"
	errInternalServerError = "InternalServerError"
	errDeviceRateExceeded  = "DeviceMessageRateExceeded"
	errTopicsRateExceeded  = "TopicsMessageRateExceeded"
)

type sendResult struct {
	MessageID      string `json:"message_id,omitempty"`
	RegistrationID string `json:"registration_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// sendResponse covers both shapes the send endpoint answers with: the
// per-token results of a device message and the single id of a topic message.
type sendResponse struct {
	MulticastID  int64        `json:"multicast_id"`
	Success      int          `json:"success"`
	Failure      int          `json:"failure"`
	CanonicalIDs int          `json:"canonical_ids"`
	Results      []sendResult `json:"results"`
	MessageID    int64        `json:"message_id"`
	Error        string       `json:"error"`
}

type topicResponse struct {
	Results []struct {
		Error string `json:"error,omitempty"`
	} `json:"results"`
}

// Dispatcher interprets legacy responses for the service pipeline.
// It satisfies dispatch.Gateway.
type Dispatcher struct {
	client *Client
	logger *slog.Logger
}

func NewDispatcher(client *Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger.With("component", "LegacyFCMDispatcher"),
	}
}

// Send delivers msg and reports the tokens FCM will never accept again.
// A non-nil error means the message should be redelivered.
func (d *Dispatcher) Send(ctx context.Context, msg *fcm.Message) (string, []string, error) {
	resp, err := d.client.Send(ctx, msg)
	if err != nil {
		return "", nil, fmt.Errorf("fcm transport failed: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		d.logger.Error("FCM rejected message as malformed (dropping)", "body", string(resp.Body))
		return "skipped: bad_request", nil, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", nil, fmt.Errorf("fcm returned status %d: %s", resp.StatusCode, resp.Body)
	}

	var sr sendResponse
	if err := json.Unmarshal(resp.Body, &sr); err != nil {
		return "", nil, fmt.Errorf("failed to decode fcm response: %w", err)
	}

	if msg.TargetType() == fcm.KindTopic {
		return d.topicReceipt(sr)
	}
	return d.deviceReceipt(msg.Tokens(), sr)
}

func (d *Dispatcher) topicReceipt(sr sendResponse) (string, []string, error) {
	switch sr.Error {
	case "":
		return fmt.Sprintf("message_id:%d", sr.MessageID), nil, nil
	case errTopicsRateExceeded, errUnavailable, errInternalServerError:
		return "", nil, fmt.Errorf("topic send failed: %s", sr.Error)
	default:
		d.logger.Error("FCM rejected topic message (dropping)", "error", sr.Error)
		return "skipped: " + sr.Error, nil, nil
	}
}

func (d *Dispatcher) deviceReceipt(tokens []string, sr sendResponse) (string, []string, error) {
	var invalidTokens []string
	retryableErrors := 0

	for idx, result := range sr.Results {
		if idx >= len(tokens) {
			break
		}
		switch result.Error {
		case "":
			if result.RegistrationID != "" {
				d.logger.Info("FCM reported a canonical token", "token", tokens[idx], "canonical", result.RegistrationID)
			}
		case errNotRegistered, errInvalidRegistration, errMismatchSenderID:
			invalidTokens = append(invalidTokens, tokens[idx])
		case errUnavailable, errInternalServerError, errDeviceRateExceeded:
			retryableErrors++
		default:
			d.logger.Warn("FCM rejected token", "token", tokens[idx], "error", result.Error)
		}
	}

	if retryableErrors > 0 {
		return "", invalidTokens, fmt.Errorf("batch had %d retryable errors", retryableErrors)
	}

	receipt := fmt.Sprintf("success:%d invalid:%d", sr.Success, len(invalidTokens))
	return receipt, invalidTokens, nil
}

func (d *Dispatcher) SubscribeToTopic(ctx context.Context, topic string, tokens []string) error {
	resp, err := d.client.SubscribeToTopic(ctx, topic, tokens)
	if err != nil {
		return err
	}
	return d.checkTopicResponse("subscribe", topic, tokens, resp)
}

func (d *Dispatcher) UnsubscribeFromTopic(ctx context.Context, topic string, tokens []string) error {
	resp, err := d.client.UnsubscribeFromTopic(ctx, topic, tokens)
	if err != nil {
		return err
	}
	return d.checkTopicResponse("unsubscribe", topic, tokens, resp)
}

func (d *Dispatcher) checkTopicResponse(op, topic string, tokens []string, resp *Response) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: status %d: %s", op, topic, resp.StatusCode, resp.Body)
	}

	var tr topicResponse
	if err := json.Unmarshal(resp.Body, &tr); err != nil {
		d.logger.Warn("Could not decode topic management response", "op", op, "err", err)
		return nil
	}
	for idx, result := range tr.Results {
		if result.Error != "" && idx < len(tokens) {
			d.logger.Warn("Topic management failed for token",
				"op", op, "topic", topic, "token", tokens[idx], "reason", result.Error)
		}
	}
	return nil
}
