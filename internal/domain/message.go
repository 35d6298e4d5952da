package domain

import "time"

// MessageType tags an outbound message body.
type MessageType string

const (
	MessageText        MessageType = "text"
	MessageImage       MessageType = "image"
	MessageVideo       MessageType = "video"
	MessageAudio       MessageType = "audio"
	MessageDocument    MessageType = "document"
	MessageTemplate    MessageType = "template"
	MessageButton      MessageType = "button"
	MessageQuickReply  MessageType = "quick_reply"
	MessageInteractive MessageType = "interactive"
	MessageReaction    MessageType = "reaction"
	MessageTyping      MessageType = "typing"
	MessageThread      MessageType = "thread"
	MessageEmbed       MessageType = "embed"
	MessageLocation    MessageType = "location"
)

// IsMedia reports whether t is one of the media kinds.
func (t MessageType) IsMedia() bool {
	switch t {
	case MessageImage, MessageVideo, MessageAudio, MessageDocument:
		return true
	}
	return false
}

// MessageBody is the sealed set of outbound payload variants. Each provider
// keeps a table from MessageType to formatter; a type missing from the table
// is rejected with UnsupportedMessageTypeError.
type MessageBody interface {
	MessageType() MessageType
	body()
}

// OutboundMessage is a channel-agnostic send request.
type OutboundMessage struct {
	To      string
	Body    MessageBody
	Options SendOptions
}

// Type returns the tag of the message body, or "" when the body is nil.
func (m OutboundMessage) Type() MessageType {
	if m.Body == nil {
		return ""
	}
	return m.Body.MessageType()
}

// SendOptions carries optional per-message settings.
type SendOptions struct {
	ReplyToID     string
	Caption       string
	Locale        string
	PreviewURL    bool
	MessagingType string // Messenger: RESPONSE | UPDATE | MESSAGE_TAG
	Tag           string
	Components    []map[string]any
}

type TextBody struct {
	Text string
}

// MediaBody covers image, video, audio and document sends. A Kind outside
// those four yields an empty MessageType, which no provider accepts.
type MediaBody struct {
	Kind     MessageType
	URL      string
	MediaID  string
	Caption  string
	Filename string
}

// TemplateBody is a structured template. Messenger-family providers render
// Elements as a generic template; WhatsApp renders Name/Language/Components as
// an approved message template.
type TemplateBody struct {
	Name       string
	Language   string
	Components []map[string]any
	Elements   []TemplateElement
}

type TemplateElement struct {
	Title         string   `json:"title"`
	Subtitle      string   `json:"subtitle,omitempty"`
	ImageURL      string   `json:"image_url,omitempty"`
	DefaultAction *Button  `json:"default_action,omitempty"`
	Buttons       []Button `json:"buttons,omitempty"`
}

// Button is a generic button description. Type may be left empty and is then
// inferred from the populated fields.
type Button struct {
	Type    string `json:"type,omitempty"`
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Payload string `json:"payload,omitempty"`
	Phone   string `json:"phone,omitempty"`
	ID      string `json:"id,omitempty"`
	Style   int    `json:"style,omitempty"`
}

type ButtonBody struct {
	Text    string
	Buttons []Button
}

type QuickReply struct {
	Title    string
	Payload  string
	ImageURL string
}

type QuickReplyBody struct {
	Text    string
	Replies []QuickReply
}

// InteractiveBody is a rich interactive message: reply buttons or a list on
// WhatsApp, message components on Discord.
type InteractiveBody struct {
	Kind       string // button | list
	Header     string
	Text       string
	Footer     string
	Buttons    []Button
	ButtonText string
	Sections   []ListSection
}

type ListSection struct {
	Title string
	Rows  []ListRow
}

type ListRow struct {
	ID          string
	Title       string
	Description string
}

type ReactionBody struct {
	MessageID string
	Emoji     string
}

type TypingBody struct {
	On bool
}

// ThreadBody starts a thread, from MessageID when set, and posts Text into it.
type ThreadBody struct {
	Name      string
	Text      string
	MessageID string
}

type EmbedBody struct {
	Title       string
	Description string
	URL         string
	Color       int
	ImageURL    string
	Fields      []EmbedField
	Footer      string
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type LocationBody struct {
	Latitude  float64
	Longitude float64
	Name      string
	Address   string
}

func (TextBody) MessageType() MessageType        { return MessageText }
func (TemplateBody) MessageType() MessageType    { return MessageTemplate }
func (ButtonBody) MessageType() MessageType      { return MessageButton }
func (QuickReplyBody) MessageType() MessageType  { return MessageQuickReply }
func (InteractiveBody) MessageType() MessageType { return MessageInteractive }
func (ReactionBody) MessageType() MessageType    { return MessageReaction }
func (TypingBody) MessageType() MessageType      { return MessageTyping }
func (ThreadBody) MessageType() MessageType      { return MessageThread }
func (EmbedBody) MessageType() MessageType       { return MessageEmbed }
func (LocationBody) MessageType() MessageType    { return MessageLocation }

func (b MediaBody) MessageType() MessageType {
	if !b.Kind.IsMedia() {
		return ""
	}
	return b.Kind
}

func (TextBody) body()        {}
func (MediaBody) body()       {}
func (TemplateBody) body()    {}
func (ButtonBody) body()      {}
func (QuickReplyBody) body()  {}
func (InteractiveBody) body() {}
func (ReactionBody) body()    {}
func (TypingBody) body()      {}
func (ThreadBody) body()      {}
func (EmbedBody) body()       {}
func (LocationBody) body()    {}

// SendResult is the normalized outcome of a send.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// EventType classifies a normalized inbound event.
type EventType string

const (
	EventText         EventType = "text"
	EventPostback     EventType = "postback"
	EventAttachment   EventType = "attachment"
	EventReferral     EventType = "referral"
	EventReaction     EventType = "reaction"
	EventRead         EventType = "read"
	EventDelivery     EventType = "delivery"
	EventInteractive  EventType = "interactive"
	EventSlashCommand EventType = "slash_command"
	EventButton       EventType = "button"
	EventSelectMenu   EventType = "select_menu"
	EventStandby      EventType = "standby"
	EventUnknown      EventType = "unknown"
)

type Sender struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

type Attachment struct {
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
	MediaID  string `json:"mediaId,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// InboundEvent is a normalized webhook sub-event. It is built once and handed
// to the MessageManager; the gateway never mutates or retains it afterwards.
type InboundEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Channel     ChannelType    `json:"channel"`
	ChannelID   string         `json:"channelId"`
	From        Sender         `json:"from"`
	To          string         `json:"to,omitempty"`
	MessageID   string         `json:"messageId,omitempty"`
	MessageType string         `json:"messageType,omitempty"`
	Content     string         `json:"content,omitempty"`
	Payload     string         `json:"payload,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	ReplyToID   string         `json:"replyToId,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// PayloadID returns the canonical identifier a user selected: the postback
// payload, button/list reply id, component custom id or command name.
func (e InboundEvent) PayloadID() string {
	switch e.Type {
	case EventPostback, EventInteractive, EventButton, EventSelectMenu, EventSlashCommand:
		return e.Payload
	case EventText:
		if qr, ok := e.Metadata["quick_reply_payload"].(string); ok {
			return qr
		}
	}
	return ""
}

// MessageStatus is a delivery state reported by a platform.
type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

// UserProfile is a best-effort platform profile.
type UserProfile struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Locale      string `json:"locale,omitempty"`
}
