package realtime

import "encoding/json"

// Frame types on the /ws connection. Clients send subscribe, unsubscribe and
// ping; the server sends the rest.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"

	FrameSubscribed   = "subscribed"
	FrameUnsubscribed = "unsubscribed"
	FrameChange       = "change"
	FramePong         = "pong"
	FrameError        = "error"
)

// Error codes carried in error frames.
const (
	CodeInvalidScope = "invalid_scope"
	CodeInvalidFrame = "invalid_frame"
	CodeLagged       = "lagged"
	CodeTooManySubs  = "too_many_subscriptions"
)

// Frame is one websocket message in either direction.
type Frame struct {
	Type    string          `json:"type"`
	Scope   string          `json:"scope,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ChangeFrame wraps an already validated event for delivery.
func ChangeFrame(scope string, ev ChangeEvent) (Frame, error) {
	payload, err := EncodeJSON(ev)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameChange, Scope: scope, Payload: payload}, nil
}

func ErrorFrame(scope, code, message string) Frame {
	payload, _ := json.Marshal(ErrorPayload{Code: code, Message: message})
	return Frame{Type: FrameError, Scope: scope, Payload: payload}
}
