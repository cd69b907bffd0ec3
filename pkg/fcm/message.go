package fcm

import (
	"fmt"
	"maps"
	"strings"
)

// Per-message recipient limits of the legacy HTTP protocol.
// https://firebase.google.com/docs/cloud-messaging/http-server-ref#send-downstream
const (
	MaxTopics  = 3
	MaxDevices = 1000
)

const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

const conditionPlaceholder = "%s"

// reservedFields are written by the Message itself and cannot be set as extras.
var reservedFields = map[string]struct{}{
	"to":               {},
	"registration_ids": {},
	"condition":        {},
	"time_to_live":     {},
	"delay_while_idle": {},
	"collapse_key":     {},
	"data":             {},
	"priority":         {},
	"notification":     {},
}

// Message is a downstream message under construction. It is a mutable builder
// owned by a single goroutine; it performs no I/O.
type Message struct {
	targets      []Target
	targetType   TargetKind
	notification Notification

	collapseKey    string
	priority       string
	data           map[string]any
	condition      string
	timeToLive     *int
	delayWhileIdle *bool
	silent         bool

	extras *Payload
}

// NewMessage creates a message addressed to seed. The target kind of the
// message is fixed by the seed.
func NewMessage(seed Target) (*Message, error) {
	m := &Message{}
	if err := m.AddTarget(seed); err != nil {
		return nil, err
	}
	return m, nil
}

// AddTarget appends a recipient. A failed call leaves the message unchanged.
func (m *Message) AddTarget(t Target) error {
	if t == nil {
		return fmt.Errorf("%w: nil target", ErrUnknownTargetType)
	}
	kind := t.Kind()
	if kind != KindDevice && kind != KindTopic {
		return fmt.Errorf("%w: %T", ErrUnknownTargetType, t)
	}
	if t.Value() == "" {
		return fmt.Errorf("%w: %s target", ErrInvalidTarget, kind)
	}
	if len(m.targets) > 0 && kind != m.targetType {
		return fmt.Errorf("%w: message addresses %s targets, got a %s", ErrMixedTargetTypes, m.targetType, kind)
	}

	switch kind {
	case KindDevice:
		if len(m.targets) >= MaxDevices {
			return fmt.Errorf("%w: at most %d devices per message", ErrDeviceLimitExceeded, MaxDevices)
		}
	case KindTopic:
		if len(m.targets) >= MaxTopics {
			return fmt.Errorf("%w: at most %d topics per message", ErrTooManyTopics, MaxTopics)
		}
	}

	m.targets = append(m.targets, t)
	m.targetType = kind
	return nil
}

// AddTargets adds each target in order and stops at the first failure. Targets
// added before the failure are kept.
func (m *Message) AddTargets(targets ...Target) error {
	for i, t := range targets {
		if err := m.AddTarget(t); err != nil {
			return fmt.Errorf("target %d: %w", i, err)
		}
	}
	return nil
}

// SetNotification attaches n, replacing any previous notification. On a silent
// message n is silenced first; a nil n detaches the notification.
func (m *Message) SetNotification(n Notification) error {
	if n == nil {
		m.notification = nil
		return nil
	}
	if m.silent {
		if !n.CanBeSilenced() {
			return ErrCannotMakeSilentMessageWithLoudNotification
		}
		if err := n.SetSilent(); err != nil {
			return err
		}
	}
	m.notification = n
	return nil
}

// SetSilent marks the message silent and silences the attached notification.
func (m *Message) SetSilent() error {
	if m.notification != nil {
		if !m.notification.CanBeSilenced() {
			return ErrCannotMakeSilentMessageWithLoudNotification
		}
		if err := m.notification.SetSilent(); err != nil {
			return err
		}
	}
	m.silent = true
	return nil
}

// SetCondition sets the boolean pattern used when addressing several topics.
// Each %s is replaced, in target order, by "'<topic>' in topics":
//
//	"%s && %s"         devices subscribed to both topics
//	"%s && (%s || %s)" topic 1 and either topic 2 or topic 3
func (m *Message) SetCondition(pattern string) *Message {
	m.condition = pattern
	return m
}

func (m *Message) SetCollapseKey(key string) *Message {
	m.collapseKey = key
	return m
}

func (m *Message) SetPriority(priority string) *Message {
	m.priority = priority
	return m
}

func (m *Message) SetData(data map[string]any) *Message {
	m.data = maps.Clone(data)
	return m
}

// SetTimeToLive sets how long, in seconds, the message is kept while the device is offline.
func (m *Message) SetTimeToLive(seconds int) *Message {
	m.timeToLive = &seconds
	return m
}

func (m *Message) EnableDelayWhileIdle() *Message {
	v := true
	m.delayWhileIdle = &v
	return m
}

func (m *Message) DisableDelayWhileIdle() *Message {
	v := false
	m.delayWhileIdle = &v
	return m
}

// SetExtra sets an arbitrary root field such as dry_run or mutable_content.
func (m *Message) SetExtra(key string, value any) error {
	if _, ok := reservedFields[key]; ok {
		return fmt.Errorf("%w: %q", ErrReservedField, key)
	}
	if m.extras == nil {
		m.extras = newPayload()
	}
	m.extras.Set(key, value)
	return nil
}

func (m *Message) Extra(key string) (any, bool) {
	if m.extras == nil {
		return nil, false
	}
	return m.extras.Get(key)
}

func (m *Message) DeleteExtra(key string) *Message {
	if m.extras != nil {
		m.extras.Delete(key)
	}
	return m
}

// Extras returns a copy of the extra root fields.
func (m *Message) Extras() map[string]any {
	out := make(map[string]any)
	if m.extras == nil {
		return out
	}
	for pair := m.extras.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = pair.Value
	}
	return out
}

func (m *Message) Targets() []Target          { return append([]Target(nil), m.targets...) }
func (m *Message) TargetType() TargetKind     { return m.targetType }
func (m *Message) Notification() Notification { return m.notification }
func (m *Message) IsSilent() bool             { return m.silent }
func (m *Message) Condition() string          { return m.condition }
func (m *Message) CollapseKey() string        { return m.collapseKey }
func (m *Message) Priority() string           { return m.priority }
func (m *Message) Data() map[string]any       { return maps.Clone(m.data) }

// TimeToLive reports the time to live in seconds and whether it was set.
func (m *Message) TimeToLive() (int, bool) {
	if m.timeToLive == nil {
		return 0, false
	}
	return *m.timeToLive, true
}

// DelayWhileIdle reports the flag and whether it was ever set.
func (m *Message) DelayWhileIdle() (bool, bool) {
	if m.delayWhileIdle == nil {
		return false, false
	}
	return *m.delayWhileIdle, true
}

// Tokens returns the registration tokens of a device message in insertion
// order, or nil for a topic message.
func (m *Message) Tokens() []string {
	if m.targetType != KindDevice {
		return nil
	}
	tokens := make([]string, len(m.targets))
	for i, t := range m.targets {
		tokens[i] = t.Value()
	}
	return tokens
}

// TopicCondition expands the condition pattern for a multi-topic message.
func (m *Message) TopicCondition() (string, error) {
	if len(m.targets) == 0 {
		return "", ErrMissingTargets
	}
	if m.targetType != KindTopic {
		return "", fmt.Errorf("%w: conditions only apply to topics", ErrMixedTargetTypes)
	}
	count := len(m.targets)
	if count > MaxTopics {
		return "", fmt.Errorf("%w: at most %d topics per message, got %d", ErrTooManyTopics, MaxTopics, count)
	}
	if m.condition == "" {
		return "", ErrMissingCondition
	}
	if n := strings.Count(m.condition, conditionPlaceholder); n != count {
		return "", fmt.Errorf("%w: pattern %q has %d placeholders, got %d topics",
			ErrConditionTargetCountMismatch, m.condition, n, count)
	}

	parts := strings.Split(m.condition, conditionPlaceholder)
	var b strings.Builder
	b.WriteString(parts[0])
	for i, part := range parts[1:] {
		fmt.Fprintf(&b, "'%s' in topics", m.targets[i].Value())
		b.WriteString(part)
	}
	return b.String(), nil
}

// Serialize builds the wire object: the addressing field first, then the
// optional fields that were set, then extras.
func (m *Message) Serialize() (*Payload, error) {
	p := newPayload()
	if err := m.serializeTarget(p); err != nil {
		return nil, err
	}

	if ttl, ok := m.TimeToLive(); ok {
		p.Set("time_to_live", ttl)
	}
	if delay, ok := m.DelayWhileIdle(); ok {
		p.Set("delay_while_idle", delay)
	}
	setString(p, "collapse_key", m.collapseKey)
	if len(m.data) > 0 {
		p.Set("data", maps.Clone(m.data))
	}
	setString(p, "priority", m.priority)
	if m.notification != nil {
		p.Set("notification", m.notification.Serialize())
	}

	if m.extras != nil {
		for pair := m.extras.Oldest(); pair != nil; pair = pair.Next() {
			p.Set(pair.Key, pair.Value)
		}
	}
	return p, nil
}

func (m *Message) serializeTarget(p *Payload) error {
	if len(m.targets) == 0 {
		return ErrMissingTargets
	}
	single := len(m.targets) == 1
	switch {
	case m.targetType == KindTopic && single:
		p.Set("to", topicPrefix+m.targets[0].Value())
	case m.targetType == KindTopic:
		condition, err := m.TopicCondition()
		if err != nil {
			return err
		}
		p.Set("condition", condition)
	case single:
		p.Set("to", m.targets[0].Value())
	default:
		p.Set("registration_ids", m.Tokens())
	}
	return nil
}

// MarshalJSON encodes the serialized message, keeping field order.
func (m *Message) MarshalJSON() ([]byte, error) {
	p, err := m.Serialize()
	if err != nil {
		return nil, err
	}
	return p.MarshalJSON()
}
