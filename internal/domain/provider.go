package domain

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// WebhookRequest is the raw inbound delivery as received by the HTTP layer.
type WebhookRequest struct {
	Body    []byte
	Headers http.Header
}

// Provider is the contract every channel implementation fulfils.
//
// Initialize has two conventions that callers already rely on: Facebook and
// Instagram report rejected credentials as (false, nil); WhatsApp and Discord
// return (false, err) with err wrapping ErrInvalidCredentials.
type Provider interface {
	Type() ChannelType
	Capabilities() Capabilities
	Credentials(ch *Channel) CredentialBundle

	Initialize(ctx context.Context, ch *Channel) (bool, error)
	Verify(req WebhookRequest, secret string) bool
	HandleChallenge(query url.Values, verifyToken string) (string, bool)

	// Send never returns an error for platform-level rejections; those come
	// back as SendResult{Success: false}. Errors are reserved for unsupported
	// types, missing credentials and transport failures.
	Send(ctx context.Context, ch *Channel, msg OutboundMessage) (SendResult, error)

	// ProcessWebhook fans a raw payload out into normalized events, handing
	// each to mgr in payload order. Failures are logged per sub-event and
	// never abort the batch.
	ProcessWebhook(ctx context.Context, mgr MessageManager, payload []byte, headers http.Header) []InboundEvent

	UserProfile(ctx context.Context, ch *Channel, userID string) (*UserProfile, error)
}

// MediaProvider is implemented by providers with a two-phase media API.
type MediaProvider interface {
	UploadMedia(ctx context.Context, ch *Channel, sourceURL, mimeType string) (string, error)
	DownloadMedia(ctx context.Context, ch *Channel, mediaID string, w io.Writer) (string, error)
}

// MessageManager is the persistence collaborator fed by ProcessWebhook.
type MessageManager interface {
	ReceiveMessage(ctx context.Context, channelID string, ev InboundEvent) error
	// UpdateMessageStatus takes the platform timestamp in Unix milliseconds,
	// or 0 when the platform did not report one.
	UpdateMessageStatus(ctx context.Context, platformMessageID string, status MessageStatus, timestampMillis int64) error
}

// ChannelStore resolves multi-tenant account identifiers to local channels.
type ChannelStore interface {
	FindByBusinessAccountID(ctx context.Context, accountID string) (*Channel, error)
}

// Capabilities is the static feature declaration of a provider.
type Capabilities struct {
	TextMessages     bool `json:"textMessages"`
	MediaMessages    bool `json:"mediaMessages"`
	Templates        bool `json:"templates"`
	Buttons          bool `json:"buttons"`
	QuickReplies     bool `json:"quickReplies"`
	Interactive      bool `json:"interactive"`
	Reactions        bool `json:"reactions"`
	Typing           bool `json:"typing"`
	Threads          bool `json:"threads"`
	Embeds           bool `json:"embeds"`
	SlashCommands    bool `json:"slashCommands"`
	Stories          bool `json:"stories"`
	IceBreakers      bool `json:"iceBreakers"`
	LocationMessages bool `json:"locationMessages"`
	ReadReceipts     bool `json:"readReceipts"`
}

// Allows reports whether a message of type t may be sent.
func (c Capabilities) Allows(t MessageType) bool {
	switch t {
	case MessageText:
		return c.TextMessages
	case MessageImage, MessageVideo, MessageAudio, MessageDocument:
		return c.MediaMessages
	case MessageTemplate:
		return c.Templates
	case MessageButton:
		return c.Buttons
	case MessageQuickReply:
		return c.QuickReplies
	case MessageInteractive:
		return c.Interactive
	case MessageReaction:
		return c.Reactions
	case MessageTyping:
		return c.Typing
	case MessageThread:
		return c.Threads
	case MessageEmbed:
		return c.Embeds
	case MessageLocation:
		return c.LocationMessages
	}
	return false
}

// Map returns the capability set keyed by feature name.
func (c Capabilities) Map() map[string]bool {
	return map[string]bool{
		"textMessages":     c.TextMessages,
		"mediaMessages":    c.MediaMessages,
		"templates":        c.Templates,
		"buttons":          c.Buttons,
		"quickReplies":     c.QuickReplies,
		"interactive":      c.Interactive,
		"reactions":        c.Reactions,
		"typing":           c.Typing,
		"threads":          c.Threads,
		"embeds":           c.Embeds,
		"slashCommands":    c.SlashCommands,
		"stories":          c.Stories,
		"iceBreakers":      c.IceBreakers,
		"locationMessages": c.LocationMessages,
		"readReceipts":     c.ReadReceipts,
	}
}
