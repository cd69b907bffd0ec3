// Package dispatch contains the public contracts of the gateway: the request
// published to the ingestion topic and the interfaces of its delivery backends.
package dispatch

import (
	"errors"
	"fmt"
	"maps"

	"github.com/tinywideclouds/go-fcm-gateway/pkg/fcm"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

var (
	ErrNoRecipient         = errors.New("request has no recipient")
	ErrAmbiguousRecipient  = errors.New("request must use exactly one of recipient_id, tokens or topics")
	ErrUnsupportedPlatform = errors.New("unsupported notification platform")
)

// Notification platforms accepted in NotificationSpec.Platform.
const (
	NotificationGeneric = "generic"
	NotificationAndroid = "android"
	NotificationIOS     = "ios"
	NotificationWeb     = "web"
)

// SendRequest is the JSON document publishers put on the ingestion topic.
// A request is addressed to a user (resolved through the TokenStore), to
// explicit registration tokens, or to up to three topics joined by Condition.
type SendRequest struct {
	ID          string   `json:"id,omitempty"`
	RecipientID string   `json:"recipient_id,omitempty"`
	Tokens      []string `json:"tokens,omitempty"`
	Topics      []string `json:"topics,omitempty"`
	Condition   string   `json:"condition,omitempty"`

	Notification   *NotificationSpec `json:"notification,omitempty"`
	Data           map[string]any    `json:"data,omitempty"`
	CollapseKey    string            `json:"collapse_key,omitempty"`
	Priority       string            `json:"priority,omitempty"`
	TimeToLive     *int              `json:"time_to_live,omitempty"`
	DelayWhileIdle *bool             `json:"delay_while_idle,omitempty"`
	Silent         bool              `json:"silent,omitempty"`
}

// NotificationSpec describes a notification independently of its variant.
// Fields that the selected platform does not support are ignored.
type NotificationSpec struct {
	Platform     string   `json:"platform,omitempty"`
	Title        string   `json:"title,omitempty"`
	Body         string   `json:"body,omitempty"`
	ClickAction  string   `json:"click_action,omitempty"`
	Sound        string   `json:"sound,omitempty"`
	Tag          string   `json:"tag,omitempty"`
	Icon         string   `json:"icon,omitempty"`
	Color        string   `json:"color,omitempty"`
	ChannelID    string   `json:"android_channel_id,omitempty"`
	SubTitle     string   `json:"sub_title,omitempty"`
	Badge        *int     `json:"badge,omitempty"`
	BodyLocKey   string   `json:"body_loc_key,omitempty"`
	BodyLocArgs  []string `json:"body_loc_args,omitempty"`
	TitleLocKey  string   `json:"title_loc_key,omitempty"`
	TitleLocArgs []string `json:"title_loc_args,omitempty"`
}

// IsDirect reports whether the request carries its own FCM targets.
func (r *SendRequest) IsDirect() bool {
	return r.RecipientID == ""
}

// Recipient parses the recipient URN of a user-addressed request.
func (r *SendRequest) Recipient() (urn.URN, error) {
	return urn.Parse(r.RecipientID)
}

// Validate checks addressing and notification fields without building targets.
func (r *SendRequest) Validate() error {
	modes := 0
	if r.RecipientID != "" {
		modes++
		if _, err := r.Recipient(); err != nil {
			return fmt.Errorf("invalid recipient_id: %w", err)
		}
	}
	if len(r.Tokens) > 0 {
		modes++
	}
	if len(r.Topics) > 0 {
		modes++
	}
	switch {
	case modes == 0:
		return ErrNoRecipient
	case modes > 1:
		return ErrAmbiguousRecipient
	}

	if r.Notification != nil {
		if _, err := r.Notification.Build(); err != nil {
			return fmt.Errorf("invalid notification: %w", err)
		}
	}
	return nil
}

// BuildMessage builds the message of a directly addressed request. The result
// is known to serialize.
func (r *SendRequest) BuildMessage() (*fcm.Message, error) {
	targets := make([]fcm.Target, 0, len(r.Tokens)+len(r.Topics))
	for _, token := range r.Tokens {
		t, err := fcm.NewDeviceTarget(token)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	for _, name := range r.Topics {
		t, err := fcm.NewTopicTarget(name)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return r.build(targets)
}

// BuildDeviceMessage builds the message for tokens resolved from the TokenStore.
func (r *SendRequest) BuildDeviceMessage(tokens []string) (*fcm.Message, error) {
	targets := make([]fcm.Target, 0, len(tokens))
	for _, token := range tokens {
		t, err := fcm.NewDeviceTarget(token)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return r.build(targets)
}

func (r *SendRequest) build(targets []fcm.Target) (*fcm.Message, error) {
	if len(targets) == 0 {
		return nil, ErrNoRecipient
	}
	msg, err := fcm.NewMessage(targets[0])
	if err != nil {
		return nil, err
	}
	if err := msg.AddTargets(targets[1:]...); err != nil {
		return nil, err
	}

	if r.Silent {
		if err := msg.SetSilent(); err != nil {
			return nil, err
		}
	}
	if r.Notification != nil {
		n, err := r.Notification.Build()
		if err != nil {
			return nil, err
		}
		if err := msg.SetNotification(n); err != nil {
			return nil, err
		}
	}

	msg.SetCondition(r.Condition).
		SetCollapseKey(r.CollapseKey).
		SetPriority(r.Priority).
		SetData(r.Data)
	if r.TimeToLive != nil {
		msg.SetTimeToLive(*r.TimeToLive)
	}
	if r.DelayWhileIdle != nil {
		if *r.DelayWhileIdle {
			msg.EnableDelayWhileIdle()
		} else {
			msg.DisableDelayWhileIdle()
		}
	}

	// Condition errors only surface once the final target set is known.
	if _, err := msg.Serialize(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Content builds the notification and data for transports that deliver them
// without FCM addressing (APNs, Web Push). Silence is applied the same way a
// Message applies it.
func (r *SendRequest) Content() (fcm.Notification, map[string]any, error) {
	var n fcm.Notification
	if r.Notification != nil {
		built, err := r.Notification.Build()
		if err != nil {
			return nil, nil, err
		}
		n = built
	}
	if r.Silent && n != nil {
		if err := n.SetSilent(); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", fcm.ErrCannotMakeSilentMessageWithLoudNotification, err)
		}
	}
	return n, maps.Clone(r.Data), nil
}

// Build creates the notification variant named by Platform.
func (s *NotificationSpec) Build() (fcm.Notification, error) {
	switch s.Platform {
	case "", NotificationGeneric:
		n := fcm.NewNotification(s.Title, s.Body).
			SetClickAction(s.ClickAction).
			SetSound(s.Sound).
			SetTag(s.Tag).
			SetAndroidIcon(s.Icon).
			SetBodyLocalization(s.BodyLocKey, s.BodyLocArgs...).
			SetTitleLocalization(s.TitleLocKey, s.TitleLocArgs...)
		if s.Badge != nil {
			n.SetIOSBadge(*s.Badge)
		}
		return n, nil

	case NotificationAndroid:
		n := fcm.NewAndroidNotification(s.Title, s.Body).
			SetClickAction(s.ClickAction).
			SetSound(s.Sound).
			SetTag(s.Tag).
			SetIcon(s.Icon).
			SetChannelID(s.ChannelID).
			SetBodyLocalization(s.BodyLocKey, s.BodyLocArgs...).
			SetTitleLocalization(s.TitleLocKey, s.TitleLocArgs...)
		if err := n.SetColor(s.Color); err != nil {
			return nil, err
		}
		return n, nil

	case NotificationIOS:
		n := fcm.NewIOSNotification(s.Title, s.Body).
			SetClickAction(s.ClickAction).
			SetSound(s.Sound).
			SetSubTitle(s.SubTitle).
			SetBodyLocalization(s.BodyLocKey, s.BodyLocArgs...).
			SetTitleLocalization(s.TitleLocKey, s.TitleLocArgs...)
		if s.Badge != nil {
			n.SetBadge(*s.Badge)
		}
		return n, nil

	case NotificationWeb:
		n, err := fcm.NewWebNotification(s.Title, s.Body, s.ClickAction)
		if err != nil {
			return nil, err
		}
		return n.SetIcon(s.Icon), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, s.Platform)
	}
}
