package ndk

import (
	ndkpb "github.com/nokia/srlinux-ndk-go/ndk"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Notification kinds the agent distinguishes.
const (
	KindConfig  = "config"
	KindUnknown = "unknown"
)

// Notification is one event delivered on a notification stream.
type Notification struct {
	// Kind is the name of the populated subscription type ("config",
	// "intf", "lldp_neighbor", ...).
	Kind string
	// JsPath and JSON are set for config notifications.
	JsPath string
	JSON   string
}

type notificationReceiver interface {
	Recv() (*ndkpb.NotificationStreamResponse, error)
}

// Stream is an open notification stream.
type Stream struct {
	recv notificationReceiver
}

// Recv blocks until the next batch of notifications arrives.
func (s *Stream) Recv() ([]Notification, error) {
	resp, err := s.recv.Recv()
	if err != nil {
		return nil, err
	}
	out := make([]Notification, 0, len(resp.GetNotification()))
	for _, n := range resp.GetNotification() {
		if n == nil {
			continue
		}
		out = append(out, convert(n))
	}
	return out, nil
}

func convert(n *ndkpb.Notification) Notification {
	if cfg := n.GetConfig(); cfg != nil {
		return Notification{
			Kind:   KindConfig,
			JsPath: cfg.GetKey().GetJsPath(),
			JSON:   cfg.GetData().GetJson(),
		}
	}
	return Notification{Kind: populatedKind(n)}
}

// populatedKind names the first message field set on n, which for a
// notification is the member of its subscription-type oneof.
func populatedKind(n *ndkpb.Notification) string {
	kind := KindUnknown
	n.ProtoReflect().Range(func(fd protoreflect.FieldDescriptor, _ protoreflect.Value) bool {
		if fd.Kind() == protoreflect.MessageKind {
			kind = string(fd.Name())
			return false
		}
		return true
	})
	return kind
}
