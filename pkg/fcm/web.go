package fcm

import (
	"fmt"
	"net/url"
)

// WebNotification targets the JavaScript SDK. Every URL it carries must be https.
type WebNotification struct {
	content
	icon string
}

// NewWebNotification validates clickAction like SetClickAction does.
func NewWebNotification(title, body, clickAction string) (*WebNotification, error) {
	n := &WebNotification{content: content{title: title, body: body}}
	if err := n.SetClickAction(clickAction); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *WebNotification) SetTitle(title string) *WebNotification {
	n.title = title
	return n
}

func (n *WebNotification) SetBody(body string) *WebNotification {
	n.body = body
	return n
}

// SetIcon sets the URL of the notification icon.
func (n *WebNotification) SetIcon(icon string) *WebNotification {
	n.icon = icon
	return n
}

// SetClickAction sets the page opened on click. An empty value clears it.
func (n *WebNotification) SetClickAction(action string) error {
	if err := checkHTTPSURL(action); err != nil {
		return err
	}
	n.clickAction = action
	return nil
}

func (n *WebNotification) Icon() string { return n.icon }

func (n *WebNotification) IsSilent() bool      { return false }
func (n *WebNotification) CanBeSilenced() bool { return false }

func (n *WebNotification) SetSilent() error {
	return fmt.Errorf("%w: web notifications are always displayed", ErrCannotBeSilenced)
}

func (n *WebNotification) Serialize() *Payload {
	p := newPayload()
	n.content.serialize(p)
	setString(p, "icon", n.icon)
	return p
}

func checkHTTPSURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: got %q", ErrInvalidClickActionURL, raw)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: got %q", ErrClickActionRequiresHTTPS, raw)
	}
	return nil
}
