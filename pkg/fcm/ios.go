package fcm

// IOSNotification targets APNs through FCM. A silent iOS notification drops
// sound and badge and is delivered as content-available: 1.
type IOSNotification struct {
	content
	localization
	sound    string
	badge    *int
	subTitle string
	silent   bool
}

func NewIOSNotification(title, body string) *IOSNotification {
	return &IOSNotification{content: content{title: title, body: body}}
}

func (n *IOSNotification) SetTitle(title string) *IOSNotification {
	n.title = title
	return n
}

func (n *IOSNotification) SetBody(body string) *IOSNotification {
	n.body = body
	return n
}

// SetClickAction maps to the APNs category.
func (n *IOSNotification) SetClickAction(action string) *IOSNotification {
	n.clickAction = action
	return n
}

func (n *IOSNotification) SetSound(sound string) *IOSNotification {
	n.sound = sound
	return n
}

// SetBadge sets the home screen badge. Zero removes the badge.
func (n *IOSNotification) SetBadge(badge int) *IOSNotification {
	n.badge = &badge
	return n
}

// ClearBadge leaves the badge on the device unchanged.
func (n *IOSNotification) ClearBadge() *IOSNotification {
	n.badge = nil
	return n
}

func (n *IOSNotification) SetSubTitle(subTitle string) *IOSNotification {
	n.subTitle = subTitle
	return n
}

func (n *IOSNotification) SetBodyLocalization(key string, args ...string) *IOSNotification {
	n.localization.setBody(key, args)
	return n
}

func (n *IOSNotification) SetTitleLocalization(key string, args ...string) *IOSNotification {
	n.localization.setTitle(key, args)
	return n
}

// Badge reports the badge value and whether one was set.
func (n *IOSNotification) Badge() (int, bool) {
	if n.badge == nil {
		return 0, false
	}
	return *n.badge, true
}

func (n *IOSNotification) IsSilent() bool      { return n.silent }
func (n *IOSNotification) CanBeSilenced() bool { return true }

func (n *IOSNotification) SetSilent() error {
	n.silent = true
	return nil
}

func (n *IOSNotification) Serialize() *Payload {
	p := newPayload()
	n.content.serialize(p)
	if !n.silent {
		setString(p, "sound", n.sound)
	}
	n.localization.serialize(p)
	if n.silent {
		p.Set("content-available", 1)
	} else if n.badge != nil {
		p.Set("badge", *n.badge)
	}
	setString(p, "sub_title", n.subTitle)
	return p
}
