// Package legacy talks to the FCM legacy HTTP endpoints with a server API key.
package legacy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tinywideclouds/go-fcm-gateway/pkg/fcm"
	"golang.org/x/time/rate"
)

const (
	DefaultSendURL        = "https://fcm.googleapis.com/fcm/send"
	DefaultSubscribeURL   = "https://iid.googleapis.com/iid/v1:batchAdd"
	DefaultUnsubscribeURL = "https://iid.googleapis.com/iid/v1:batchRemove"

	defaultTimeout = 10 * time.Second
)

var (
	ErrMissingAPIKey = errors.New("fcm server api key is required")
	ErrNoTokens      = errors.New("at least one registration token is required")
)

// Config holds the endpoints and credentials of the legacy API.
// Empty URLs fall back to the public Google endpoints, so a proxy only needs
// to override the ones it fronts.
type Config struct {
	APIKey         string
	SendURL        string
	SubscribeURL   string
	UnsubscribeURL string
	Timeout        time.Duration
	// RequestsPerSecond throttles outgoing calls. Zero disables throttling.
	RequestsPerSecond int
}

// Response is the raw HTTP answer of an FCM endpoint.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient validates cfg and fills in the default endpoints.
// A nil httpClient gets a client with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.SendURL == "" {
		cfg.SendURL = DefaultSendURL
	}
	if cfg.SubscribeURL == "" {
		cfg.SubscribeURL = DefaultSubscribeURL
	}
	if cfg.UnsubscribeURL == "" {
		cfg.UnsubscribeURL = DefaultUnsubscribeURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger.With("component", "LegacyFCMClient"),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestsPerSecond)
	}
	return c, nil
}

// Send posts the serialized message to the send endpoint.
func (c *Client) Send(ctx context.Context, msg *fcm.Message) (*Response, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}
	return c.post(ctx, c.cfg.SendURL, body)
}

func (c *Client) SubscribeToTopic(ctx context.Context, topic string, tokens []string) (*Response, error) {
	return c.manageTopic(ctx, c.cfg.SubscribeURL, topic, tokens)
}

func (c *Client) UnsubscribeFromTopic(ctx context.Context, topic string, tokens []string) (*Response, error) {
	return c.manageTopic(ctx, c.cfg.UnsubscribeURL, topic, tokens)
}

func (c *Client) manageTopic(ctx context.Context, url, topic string, tokens []string) (*Response, error) {
	target, err := fcm.NewTopicTarget(topic)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, ErrNoTokens
	}

	body, err := json.Marshal(struct {
		To                 string   `json:"to"`
		RegistrationTokens []string `json:"registration_tokens"`
	}{
		To:                 target.TopicPath(),
		RegistrationTokens: tokens,
	})
	if err != nil {
		return nil, err
	}
	return c.post(ctx, url, body)
}

func (c *Client) post(ctx context.Context, url string, body []byte) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "key="+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fcm request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read fcm response: %w", err)
	}
	c.logger.Debug("FCM call completed", "url", url, "status", resp.StatusCode)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}
