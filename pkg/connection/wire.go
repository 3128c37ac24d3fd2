package connection

import "encoding/json"

// FrameType discriminates the JSON frames exchanged on the realtime
// socket.
type FrameType string

const (
	// Client to server.
	FrameSubscribe   FrameType = "subscribe"
	FrameUnsubscribe FrameType = "unsubscribe"
	FramePong        FrameType = "pong"

	// Server to client.
	FrameSubscribed FrameType = "subscribed"
	FrameInsert     FrameType = "insert"
	FrameUpdate     FrameType = "update"
	FrameDelete     FrameType = "delete"
	FramePing       FrameType = "ping"
	FrameError      FrameType = "error"
)

// Frame is the single wire envelope for the realtime protocol. Ref is a
// client-generated subscription identifier; the server echoes it on
// acknowledgements, pushes, and subscription-scoped errors.
type Frame struct {
	Type   FrameType       `json:"type"`
	Ref    string          `json:"ref,omitempty"`
	Topic  string          `json:"topic,omitempty"`
	Filter *Filter         `json:"filter,omitempty"`
	Record json.RawMessage `json:"record,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ActionFor maps a server push frame type to the Record action.
// The second return is false for non-push frames.
func ActionFor(t FrameType) (Action, bool) {
	switch t {
	case FrameInsert:
		return ActionInsert, true
	case FrameUpdate:
		return ActionUpdate, true
	case FrameDelete:
		return ActionDelete, true
	default:
		return "", false
	}
}
