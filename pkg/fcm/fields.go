package fcm

// Fields is a flat view of a serialized notification. Transports that speak a
// different wire format map it onto their own payload types.
type Fields struct {
	Title            string
	Body             string
	ClickAction      string
	Sound            string
	Tag              string
	Icon             string
	Color            string
	ChannelID        string
	SubTitle         string
	Badge            *int
	ContentAvailable bool
	BodyLocKey       string
	BodyLocArgs      []string
	TitleLocKey      string
	TitleLocArgs     []string
	Silent           bool
}

// FieldsOf reads the fields a notification would put on the wire.
// A nil notification yields the zero Fields.
func FieldsOf(n Notification) Fields {
	if n == nil {
		return Fields{}
	}
	p := n.Serialize()
	f := Fields{
		Title:        stringField(p, "title"),
		Body:         stringField(p, "body"),
		ClickAction:  stringField(p, "click_action"),
		Sound:        stringField(p, "sound"),
		Tag:          stringField(p, "tag"),
		Icon:         stringField(p, "icon"),
		Color:        stringField(p, "color"),
		ChannelID:    stringField(p, "android_channel_id"),
		SubTitle:     stringField(p, "sub_title"),
		BodyLocKey:   stringField(p, "body_loc_key"),
		BodyLocArgs:  stringsField(p, "body_loc_args"),
		TitleLocKey:  stringField(p, "title_loc_key"),
		TitleLocArgs: stringsField(p, "title_loc_args"),
		Silent:       n.IsSilent(),
	}
	if v, ok := p.Get("badge"); ok {
		if badge, ok := v.(int); ok {
			f.Badge = &badge
		}
	}
	if v, ok := p.Get("content_available"); ok {
		f.ContentAvailable, _ = v.(bool)
	}
	if _, ok := p.Get("content-available"); ok {
		f.ContentAvailable = true
	}
	return f
}

func stringField(p *Payload, key string) string {
	v, _ := p.Get(key)
	s, _ := v.(string)
	return s
}

func stringsField(p *Payload, key string) []string {
	v, _ := p.Get(key)
	s, _ := v.([]string)
	return cloneStrings(s)
}
