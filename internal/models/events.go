package models

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// Inbound event type tags.
const (
	InMessage     = "message"
	InTyping      = "action:typing"
	InTypingShort = "typing"
	InRead        = "action:read"
	InReadShort   = "read"
	InPing        = "ping"
)

// Outbound event type tags.
const (
	OutMessageType     = "message"
	OutTypingType      = "typing"
	OutMessageReadType = "message-read"
	OutUserOnlineType  = "user-online"
	OutUserOfflineType = "user-offline"
	OutErrorType       = "error"
)

// InboundEvent is one client frame after decoding. The concrete types below are the only
// implementations; UnknownEvent carries tags this server does not understand.
type InboundEvent interface {
	inbound()
}

// MessageEvent asks the server to persist and deliver a message.
type MessageEvent struct {
	Context string `json:"context"`
	To      string `json:"to"`
	Content string `json:"content"`
	Date    *int64 `json:"date,omitempty"` // client clock, informational only
}

// TypingEvent is a typing indicator.
type TypingEvent struct {
	Context string `json:"context"`
	To      string `json:"to"`
}

// ReadEvent acknowledges a message.
type ReadEvent struct {
	MessageID string `json:"messageId"`
}

// PingEvent is the liveness heartbeat. An empty frame or a bare {} decodes to it as well.
type PingEvent struct{}

// UnknownEvent keeps the tag of an unrecognized frame. Type is empty when a frame with
// fields carries no tag.
type UnknownEvent struct {
	Type string
}

func (MessageEvent) inbound() {}
func (TypingEvent) inbound()  {}
func (ReadEvent) inbound()    {}
func (PingEvent) inbound()    {}
func (UnknownEvent) inbound() {}

// DecodeInbound parses a raw client frame into its variant.
func DecodeInbound(raw []byte) (InboundEvent, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return PingEvent{}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}
	if len(fields) == 0 {
		return PingEvent{}, nil
	}

	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}

	switch envelope.Type {
	case InMessage:
		var ev MessageEvent
		if err := json.Unmarshal(trimmed, &ev); err != nil {
			return nil, errors.Wrap(err, "decode message")
		}
		return ev, nil
	case InTyping, InTypingShort:
		var ev TypingEvent
		if err := json.Unmarshal(trimmed, &ev); err != nil {
			return nil, errors.Wrap(err, "decode typing")
		}
		return ev, nil
	case InRead, InReadShort:
		var ev ReadEvent
		if err := json.Unmarshal(trimmed, &ev); err != nil {
			return nil, errors.Wrap(err, "decode read")
		}
		return ev, nil
	case InPing:
		return PingEvent{}, nil
	default:
		return UnknownEvent{Type: envelope.Type}, nil
	}
}

// OutMessage is the live form of a persisted message.
type OutMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	From    string `json:"from"`
	Content string `json:"content"`
	Date    int64  `json:"date"`
}

// OutTyping is a relayed typing indicator.
type OutTyping struct {
	Type string `json:"type"`
	From string `json:"from"`
}

// OutMessageRead is the receipt sent to a message's sender.
type OutMessageRead struct {
	Type      string `json:"type"`
	By        string `json:"by"`
	MessageID string `json:"messageId"`
}

// OutUserOnline is sent on connect with the identity, and on liveness pings without it.
type OutUserOnline struct {
	Type     string `json:"type"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// OutUserOffline is sent to the session's rooms on disconnect.
type OutUserOffline struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// OutError is delivered only to the session whose event failed.
type OutError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewOutMessage(m *Message) OutMessage {
	return OutMessage{Type: OutMessageType, ID: m.ID, From: m.From, Content: m.Content, Date: m.Date}
}
