package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/conneroisu/livecanvas/internal/session"
	"github.com/conneroisu/livecanvas/internal/types"
)

// Message types sent to the browser.
const (
	MessageConnected        = "connected"
	MessagePatch            = "patch"
	MessageSessionRestarted = "session_restarted"
	MessageSessionClosed    = "session_closed"
)

// Message is one frame sent to the browser.
type Message struct {
	Type      string                 `json:"type" msgpack:"type"`
	SessionID string                 `json:"session_id" msgpack:"session_id"`
	Sequence  int                    `json:"sequence,omitempty" msgpack:"sequence,omitempty"`
	Patch     map[string]interface{} `json:"patch,omitempty" msgpack:"patch,omitempty"`
	Timestamp time.Time              `json:"timestamp" msgpack:"timestamp"`
}

// MessageFromEvent converts a session event. ok is false for events the
// browser does not care about.
func MessageFromEvent(event session.Event) (msg Message, ok bool, err error) {
	msg = Message{SessionID: event.SessionID, Timestamp: event.Timestamp}

	switch event.Type {
	case session.EventChanged:
		fields, err := types.PatchFields(event.Patch)
		if err != nil {
			return Message{}, false, fmt.Errorf("encode patch: %w", err)
		}
		msg.Type = MessagePatch
		msg.Patch = fields
		if event.Change != nil {
			msg.Sequence = event.Change.Sequence
		}
	case session.EventRestarted:
		msg.Type = MessageSessionRestarted
	case session.EventClosed, session.EventEvicted:
		msg.Type = MessageSessionClosed
	default:
		return Message{}, false, nil
	}

	return msg, true, nil
}

// Encoding selects the frame format of a client.
type Encoding int

const (
	EncodingJSON Encoding = iota
	EncodingMsgpack
)

// ParseEncoding reads the encoding query parameter. Empty means JSON.
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "", "json":
		return EncodingJSON, nil
	case "msgpack":
		return EncodingMsgpack, nil
	default:
		return EncodingJSON, fmt.Errorf("unsupported encoding %q", s)
	}
}

func (e Encoding) String() string {
	if e == EncodingMsgpack {
		return "msgpack"
	}
	return "json"
}

func (e Encoding) messageType() websocket.MessageType {
	if e == EncodingMsgpack {
		return websocket.MessageBinary
	}
	return websocket.MessageText
}

func (e Encoding) encode(msg Message) ([]byte, error) {
	if e == EncodingMsgpack {
		return msgpack.Marshal(msg)
	}
	return json.Marshal(msg)
}

// Client represents a WebSocket client subscribed to one session.
type Client struct {
	conn      *websocket.Conn
	sessionID string
	encoding  Encoding
	ip        string
	send      chan Message
	done      chan struct{}
}
