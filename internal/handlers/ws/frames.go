package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/theposch/mainstream-sub002/internal/realtime"
	"go.uber.org/zap"
)

var ErrUnknownFrame = errors.New("unknown frame type")

// MessageContext is what a client frame needs to act on the connection.
type MessageContext struct {
	Client *ClientConnection
	Hub    *Hub
	Logger *zap.Logger
}

// Message is a decoded client frame.
type Message interface {
	FrameType() string
	Process(ctx *MessageContext) error
}

// clientFrames maps a frame's "type" to the struct it decodes into.
var clientFrames = map[string]reflect.Type{}

func init() {
	registerFrames(&MessageSubscribe{}, &MessageUnsubscribe{}, &MessagePing{})
}

func registerFrames(msgs ...Message) {
	for _, msg := range msgs {
		clientFrames[msg.FrameType()] = reflect.TypeOf(msg).Elem()
	}
}

// ClientFrameTypes lists the frame types a client may send, sorted.
func ClientFrameTypes() []string {
	types := make([]string, 0, len(clientFrames))
	for t := range clientFrames {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Decode reads one client frame. Fields such as scope sit beside "type", so
// the whole frame is unmarshalled into the registered struct.
func Decode(data []byte) (Message, error) {
	var head realtime.Frame
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	t, ok := clientFrames[head.Type]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownFrame, head.Type)
	}
	msg := reflect.New(t).Interface().(Message)
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// MessagePing is a client keepalive; the hub answers with pong.
type MessagePing struct{}

func (m *MessagePing) FrameType() string { return realtime.FramePing }

func (m *MessagePing) Process(ctx *MessageContext) error {
	return ctx.Hub.Send(ctx.Client, realtime.Frame{Type: realtime.FramePong})
}

// MessageSubscribe asks for change frames on one scope.
type MessageSubscribe struct {
	Scope string `json:"scope"`
}

func (m *MessageSubscribe) FrameType() string { return realtime.FrameSubscribe }

func (m *MessageSubscribe) Process(ctx *MessageContext) error {
	return ctx.Hub.Subscribe(ctx.Client, m.Scope)
}

type MessageUnsubscribe struct {
	Scope string `json:"scope"`
}

func (m *MessageUnsubscribe) FrameType() string { return realtime.FrameUnsubscribe }

func (m *MessageUnsubscribe) Process(ctx *MessageContext) error {
	return ctx.Hub.Unsubscribe(ctx.Client, m.Scope)
}
