package fcm

import "fmt"

// TargetKind discriminates the recipients a Message can address.
type TargetKind int

const (
	KindUnknown TargetKind = iota
	KindDevice
	KindTopic
)

func (k TargetKind) String() string {
	switch k {
	case KindDevice:
		return "device"
	case KindTopic:
		return "topic"
	default:
		return "unknown"
	}
}

// Target is an addressable recipient of a Message.
type Target interface {
	Kind() TargetKind
	// Value is the identifying string: a registration token or a topic name.
	Value() string
}

// DeviceTarget addresses a single registered app instance.
type DeviceTarget struct {
	token string
}

func NewDeviceTarget(token string) (DeviceTarget, error) {
	if token == "" {
		return DeviceTarget{}, fmt.Errorf("%w: empty device token", ErrInvalidTarget)
	}
	return DeviceTarget{token: token}, nil
}

func (t DeviceTarget) Token() string    { return t.token }
func (t DeviceTarget) Value() string    { return t.token }
func (t DeviceTarget) Kind() TargetKind { return KindDevice }

// TopicTarget addresses every device subscribed to a topic.
type TopicTarget struct {
	name string
}

func NewTopicTarget(name string) (TopicTarget, error) {
	if name == "" {
		return TopicTarget{}, fmt.Errorf("%w: empty topic name", ErrInvalidTarget)
	}
	return TopicTarget{name: name}, nil
}

func (t TopicTarget) Name() string     { return t.name }
func (t TopicTarget) Value() string    { return t.name }
func (t TopicTarget) Kind() TargetKind { return KindTopic }

// TopicPath is the "to" form used for a single topic, e.g. /topics/news.
func (t TopicTarget) TopicPath() string { return topicPrefix + t.name }

const topicPrefix = "/topics/"
