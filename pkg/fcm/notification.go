// Package fcm assembles, validates and serializes messages for the Firebase Cloud
// Messaging legacy HTTP protocol.
//
// A Message addresses either devices or topics, never both, and may carry one
// Notification. Notifications come in platform variants (generic, Android, iOS,
// Web) that differ in which fields they emit and whether they can be delivered
// silently. Serialization omits every field left at its zero value.
package fcm

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Payload is an insertion-ordered JSON object. It marshals with its keys in the
// order they were set, which keeps wire output stable.
type Payload = orderedmap.OrderedMap[string, any]

func newPayload() *Payload {
	return orderedmap.New[string, any]()
}

// Notification is the user-visible (or silent) part of a Message.
type Notification interface {
	// Serialize returns the wire fields of the notification, omitting unset ones.
	Serialize() *Payload
	IsSilent() bool
	CanBeSilenced() bool
	// SetSilent suppresses the visible presentation, or returns ErrCannotBeSilenced.
	SetSilent() error
}

// content holds the fields every variant shares.
type content struct {
	title       string
	body        string
	clickAction string
}

func (c *content) Title() string       { return c.title }
func (c *content) Body() string        { return c.body }
func (c *content) ClickAction() string { return c.clickAction }

func (c *content) serialize(p *Payload) {
	setString(p, "title", c.title)
	setString(p, "body", c.body)
	setString(p, "click_action", c.clickAction)
}

// localization carries the string-resource keys used by device platforms.
type localization struct {
	bodyLocKey   string
	bodyLocArgs  []string
	titleLocKey  string
	titleLocArgs []string
}

func (l *localization) setBody(key string, args []string) {
	l.bodyLocKey = key
	l.bodyLocArgs = cloneStrings(args)
}

func (l *localization) setTitle(key string, args []string) {
	l.titleLocKey = key
	l.titleLocArgs = cloneStrings(args)
}

func (l *localization) serialize(p *Payload) {
	setString(p, "body_loc_key", l.bodyLocKey)
	setStrings(p, "body_loc_args", l.bodyLocArgs)
	setString(p, "title_loc_key", l.titleLocKey)
	setStrings(p, "title_loc_args", l.titleLocArgs)
}

// GenericNotification is the cross-platform payload. Silencing it drops sound
// and badge and requests a background (content-available) delivery instead.
type GenericNotification struct {
	content
	localization
	sound            string
	tag              string
	androidIcon      string
	iosBadge         int
	contentAvailable *bool
	silent           bool
}

func NewNotification(title, body string) *GenericNotification {
	return &GenericNotification{content: content{title: title, body: body}}
}

func (n *GenericNotification) SetTitle(title string) *GenericNotification {
	n.title = title
	return n
}

func (n *GenericNotification) SetBody(body string) *GenericNotification {
	n.body = body
	return n
}

func (n *GenericNotification) SetClickAction(action string) *GenericNotification {
	n.clickAction = action
	return n
}

func (n *GenericNotification) SetSound(sound string) *GenericNotification {
	n.sound = sound
	return n
}

func (n *GenericNotification) SetTag(tag string) *GenericNotification {
	n.tag = tag
	return n
}

// SetAndroidIcon names the drawable resource shown on Android.
func (n *GenericNotification) SetAndroidIcon(icon string) *GenericNotification {
	n.androidIcon = icon
	return n
}

// SetIOSBadge sets the app icon badge on iOS. Values <= 0 are not sent.
func (n *GenericNotification) SetIOSBadge(badge int) *GenericNotification {
	n.iosBadge = badge
	return n
}

func (n *GenericNotification) EnableContentAvailable() *GenericNotification {
	v := true
	n.contentAvailable = &v
	return n
}

func (n *GenericNotification) DisableContentAvailable() *GenericNotification {
	v := false
	n.contentAvailable = &v
	return n
}

func (n *GenericNotification) SetBodyLocalization(key string, args ...string) *GenericNotification {
	n.localization.setBody(key, args)
	return n
}

func (n *GenericNotification) SetTitleLocalization(key string, args ...string) *GenericNotification {
	n.localization.setTitle(key, args)
	return n
}

func (n *GenericNotification) IsSilent() bool      { return n.silent }
func (n *GenericNotification) CanBeSilenced() bool { return true }

func (n *GenericNotification) SetSilent() error {
	n.silent = true
	return nil
}

func (n *GenericNotification) Serialize() *Payload {
	p := newPayload()
	n.content.serialize(p)
	if !n.silent {
		setString(p, "sound", n.sound)
	}
	setString(p, "tag", n.tag)
	switch {
	case n.silent:
		p.Set("content_available", true)
	case n.contentAvailable != nil:
		p.Set("content_available", *n.contentAvailable)
	}
	if !n.silent && n.iosBadge > 0 {
		p.Set("badge", n.iosBadge)
	}
	setString(p, "icon", n.androidIcon)
	n.localization.serialize(p)
	return p
}

func setString(p *Payload, key, value string) {
	if value != "" {
		p.Set(key, value)
	}
}

func setStrings(p *Payload, key string, values []string) {
	if len(values) > 0 {
		p.Set(key, cloneStrings(values))
	}
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
