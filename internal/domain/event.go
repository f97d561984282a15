package domain

import "fmt"

// InboundEvent is the closed set of chat events the processor handles.
// Webhook payloads are parsed into one of these variants before any
// business logic runs, so downstream code never touches loose JSON.
type InboundEvent interface {
	Token() string
	User() string
	Kind() string
}

// TextMessage is an interactive text event from a chat user.
type TextMessage struct {
	DeliveryToken string
	UserID        string
	Text          string
}

// Token returns the one-time delivery token of the event.
func (m TextMessage) Token() string { return m.DeliveryToken }

// User returns the sender id.
func (m TextMessage) User() string { return m.UserID }

// Kind reports the message kind.
func (m TextMessage) Kind() string { return "text" }

// OtherMessage is any recognized-but-non-text event (stickers, images,
// follows). It still consumes its delivery token and gets a status reply.
type OtherMessage struct {
	DeliveryToken string
	UserID        string
	MessageKind   string
}

// Token returns the one-time delivery token of the event.
func (m OtherMessage) Token() string { return m.DeliveryToken }

// User returns the sender id.
func (m OtherMessage) User() string { return m.UserID }

// Kind reports the message kind.
func (m OtherMessage) Kind() string { return m.MessageKind }

// RawEvent mirrors the loose shape the chat platform posts to the webhook.
type RawEvent struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Source     struct {
		UserID string `json:"userId"`
	} `json:"source"`
	Message struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
}

// ParseEvent validates a raw webhook event into a closed variant.
// Events without a delivery token or sender cannot be replied to or
// deduplicated and are rejected here.
func ParseEvent(raw RawEvent) (InboundEvent, error) {
	if raw.ReplyToken == "" {
		return nil, fmt.Errorf("%w: event missing reply token", ErrInvalidArgument)
	}
	if raw.Source.UserID == "" {
		return nil, fmt.Errorf("%w: event missing sender", ErrInvalidArgument)
	}
	if raw.Type == "message" && raw.Message.Type == "text" {
		return TextMessage{DeliveryToken: raw.ReplyToken, UserID: raw.Source.UserID, Text: raw.Message.Text}, nil
	}
	kind := raw.Message.Type
	if kind == "" {
		kind = raw.Type
	}
	return OtherMessage{DeliveryToken: raw.ReplyToken, UserID: raw.Source.UserID, MessageKind: kind}, nil
}
