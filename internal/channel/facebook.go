package channel

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"botgateway/internal/domain"
)

// MetaConfig configures the Facebook and Instagram providers.
type MetaConfig struct {
	Graph GraphConfig
	// Store resolves entry ids to local channels. Optional for Facebook.
	Store  domain.ChannelStore
	Logger *slog.Logger
}

// Facebook implements the Messenger platform on the Graph API.
type Facebook struct {
	messengerCore
}

var facebookCapabilities = domain.Capabilities{
	TextMessages:  true,
	MediaMessages: true,
	Templates:     true,
	Buttons:       true,
	QuickReplies:  true,
	Reactions:     true,
	Typing:        true,
	IceBreakers:   true,
	ReadReceipts:  true,
}

func NewFacebook(cfg MetaConfig) *Facebook {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Graph.Logger = logger
	return &Facebook{messengerCore{
		platform: domain.ChannelFacebook,
		graph:    newGraphClient(domain.ChannelFacebook, cfg.Graph),
		store:    cfg.Store,
		logger:   logger,
		rules:    facebookCredentialRules,
		formatters: map[domain.MessageType]messengerFormatter{
			domain.MessageText:       formatMessengerText,
			domain.MessageImage:      formatMessengerMedia,
			domain.MessageVideo:      formatMessengerMedia,
			domain.MessageAudio:      formatMessengerMedia,
			domain.MessageDocument:   formatMessengerMedia,
			domain.MessageTemplate:   formatMessengerTemplate,
			domain.MessageButton:     formatMessengerButtons,
			domain.MessageQuickReply: formatMessengerQuickReplies,
			domain.MessageReaction:   formatMessengerReaction,
			domain.MessageTyping:     formatMessengerTyping,
		},
	}}
}

func (f *Facebook) Capabilities() domain.Capabilities { return facebookCapabilities }

// Initialize checks the page token against /me. A rejected token yields
// (false, nil).
func (f *Facebook) Initialize(ctx context.Context, ch *domain.Channel) (bool, error) {
	creds := f.Credentials(ch)
	if creds.AccessToken == "" {
		f.logger.Warn("facebook channel has no access token", "channel_id", channelID(ch))
		return false, nil
	}
	return f.graph.validateToken(ctx, "/me", creds.AccessToken, "id,name")
}

func (f *Facebook) Send(ctx context.Context, ch *domain.Channel, msg domain.OutboundMessage) (domain.SendResult, error) {
	creds := f.Credentials(ch)
	return f.sendTo(ctx, messagesPath(creds.PageID), creds.AccessToken, msg)
}

// SendGenericTemplate sends a generic template carousel. More than ten
// elements are truncated to ten.
func (f *Facebook) SendGenericTemplate(ctx context.Context, ch *domain.Channel, to string, elements []domain.TemplateElement) (domain.SendResult, error) {
	return f.Send(ctx, ch, domain.OutboundMessage{
		To:   to,
		Body: domain.TemplateBody{Elements: elements},
	})
}

// ProcessWebhook resolves each entry's page to a local channel, falling back
// to the page id when no channel is registered for it.
func (f *Facebook) ProcessWebhook(ctx context.Context, mgr domain.MessageManager, payload []byte, _ http.Header) []domain.InboundEvent {
	return f.process(ctx, mgr, payload, func(ctx context.Context, pageID string) (string, bool) {
		if ch, err := f.lookupChannel(ctx, pageID); err == nil {
			return ch.ID, true
		}
		return pageID, true
	})
}

func (f *Facebook) UserProfile(ctx context.Context, ch *domain.Channel, userID string) (*domain.UserProfile, error) {
	var out struct {
		ID         string `json:"id"`
		FirstName  string `json:"first_name"`
		LastName   string `json:"last_name"`
		ProfilePic string `json:"profile_pic"`
		Locale     string `json:"locale"`
	}
	if err := f.profile(ctx, f.Credentials(ch).AccessToken, userID, "first_name,last_name,profile_pic", &out); err != nil {
		return nil, err
	}
	p := &domain.UserProfile{
		ID:        firstNonEmpty(out.ID, userID),
		FirstName: out.FirstName,
		LastName:  out.LastName,
		AvatarURL: out.ProfilePic,
		Locale:    out.Locale,
	}
	p.DisplayName = joinName(out.FirstName, out.LastName)
	return p, nil
}

func messagesPath(accountID string) string {
	if accountID == "" {
		return "/me/messages"
	}
	return "/" + url.PathEscape(accountID) + "/messages"
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}

func channelID(ch *domain.Channel) string {
	if ch == nil {
		return ""
	}
	return ch.ID
}
