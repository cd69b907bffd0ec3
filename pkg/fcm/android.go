package fcm

import (
	"fmt"
	"regexp"
)

var rgbColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// AndroidNotification is always shown to the user: an Android push carrying a
// notification payload is never silent. Send a data-only Message instead.
type AndroidNotification struct {
	content
	localization
	sound     string
	channelID string
	icon      string
	tag       string
	color     string
}

func NewAndroidNotification(title, body string) *AndroidNotification {
	return &AndroidNotification{content: content{title: title, body: body}}
}

func (n *AndroidNotification) SetTitle(title string) *AndroidNotification {
	n.title = title
	return n
}

func (n *AndroidNotification) SetBody(body string) *AndroidNotification {
	n.body = body
	return n
}

// SetClickAction names the intent filter launched when the user taps the notification.
func (n *AndroidNotification) SetClickAction(action string) *AndroidNotification {
	n.clickAction = action
	return n
}

// SetSound accepts "default" or a sound resource bundled in /res/raw/.
func (n *AndroidNotification) SetSound(sound string) *AndroidNotification {
	n.sound = sound
	return n
}

// SetChannelID selects the notification channel (Android O+). The app must have
// created the channel, otherwise the manifest default is used.
func (n *AndroidNotification) SetChannelID(id string) *AndroidNotification {
	n.channelID = id
	return n
}

func (n *AndroidNotification) SetIcon(icon string) *AndroidNotification {
	n.icon = icon
	return n
}

// SetTag replaces an already displayed notification carrying the same tag.
func (n *AndroidNotification) SetTag(tag string) *AndroidNotification {
	n.tag = tag
	return n
}

// SetColor sets the icon color. An empty value clears it.
func (n *AndroidNotification) SetColor(color string) error {
	if color != "" && !rgbColor.MatchString(color) {
		return fmt.Errorf("%w: expected something like '#6563a4', got %q", ErrInvalidColorFormat, color)
	}
	n.color = color
	return nil
}

func (n *AndroidNotification) SetBodyLocalization(key string, args ...string) *AndroidNotification {
	n.localization.setBody(key, args)
	return n
}

func (n *AndroidNotification) SetTitleLocalization(key string, args ...string) *AndroidNotification {
	n.localization.setTitle(key, args)
	return n
}

func (n *AndroidNotification) IsSilent() bool      { return false }
func (n *AndroidNotification) CanBeSilenced() bool { return false }

func (n *AndroidNotification) SetSilent() error {
	return fmt.Errorf("%w: an android notification is always shown to the user", ErrCannotBeSilenced)
}

func (n *AndroidNotification) Serialize() *Payload {
	p := newPayload()
	n.content.serialize(p)
	setString(p, "sound", n.sound)
	n.localization.serialize(p)
	setString(p, "android_channel_id", n.channelID)
	setString(p, "icon", n.icon)
	setString(p, "tag", n.tag)
	setString(p, "color", n.color)
	return p
}
