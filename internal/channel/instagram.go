package channel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"botgateway/internal/domain"
)

// Instagram implements Instagram messaging on the Graph API. Inbound entries
// are resolved to a local channel by business account id before processing.
type Instagram struct {
	messengerCore
}

var instagramCapabilities = domain.Capabilities{
	TextMessages:  true,
	MediaMessages: true,
	Templates:     true,
	QuickReplies:  true,
	Reactions:     true,
	Typing:        true,
	Stories:       true,
	IceBreakers:   true,
	ReadReceipts:  true,
}

func NewInstagram(cfg MetaConfig) *Instagram {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Graph.Logger = logger
	return &Instagram{messengerCore{
		platform: domain.ChannelInstagram,
		graph:    newGraphClient(domain.ChannelInstagram, cfg.Graph),
		store:    cfg.Store,
		logger:   logger,
		rules:    instagramCredentialRules,
		formatters: map[domain.MessageType]messengerFormatter{
			domain.MessageText:       formatMessengerText,
			domain.MessageImage:      formatMessengerMedia,
			domain.MessageVideo:      formatMessengerMedia,
			domain.MessageAudio:      formatMessengerMedia,
			domain.MessageTemplate:   formatMessengerTemplate,
			domain.MessageQuickReply: formatMessengerQuickReplies,
			domain.MessageReaction:   formatMessengerReaction,
			domain.MessageTyping:     formatMessengerTyping,
		},
	}}
}

func (i *Instagram) Capabilities() domain.Capabilities { return instagramCapabilities }

// Initialize checks the token against the Instagram account. A rejected token
// yields (false, nil).
func (i *Instagram) Initialize(ctx context.Context, ch *domain.Channel) (bool, error) {
	creds := i.Credentials(ch)
	if creds.AccessToken == "" {
		i.logger.Warn("instagram channel has no access token", "channel_id", channelID(ch))
		return false, nil
	}
	path := "/me"
	if creds.BusinessAccountID != "" {
		path = "/" + creds.BusinessAccountID
	}
	return i.graph.validateToken(ctx, path, creds.AccessToken, "id,username")
}

func (i *Instagram) Send(ctx context.Context, ch *domain.Channel, msg domain.OutboundMessage) (domain.SendResult, error) {
	creds := i.Credentials(ch)
	return i.sendTo(ctx, messagesPath(creds.BusinessAccountID), creds.AccessToken, msg)
}

// ProcessWebhook skips entries whose account is not registered. Without a
// store the entry id is used as the channel id.
func (i *Instagram) ProcessWebhook(ctx context.Context, mgr domain.MessageManager, payload []byte, _ http.Header) []domain.InboundEvent {
	return i.process(ctx, mgr, payload, func(ctx context.Context, accountID string) (string, bool) {
		if i.store == nil {
			return accountID, true
		}
		ch, err := i.lookupChannel(ctx, accountID)
		if err != nil {
			if errors.Is(err, domain.ErrChannelNotFound) {
				i.logger.Warn("no channel for instagram account", "account_id", accountID)
			} else {
				i.logger.Warn("instagram channel lookup failed", "account_id", accountID, "err", err)
			}
			return "", false
		}
		return ch.ID, true
	})
}

func (i *Instagram) UserProfile(ctx context.Context, ch *domain.Channel, userID string) (*domain.UserProfile, error) {
	var out struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Username   string `json:"username"`
		ProfilePic string `json:"profile_pic"`
	}
	if err := i.profile(ctx, i.Credentials(ch).AccessToken, userID, "name,username,profile_pic", &out); err != nil {
		return nil, err
	}
	return &domain.UserProfile{
		ID:          firstNonEmpty(out.ID, userID),
		Username:    out.Username,
		DisplayName: firstNonEmpty(out.Name, out.Username),
		AvatarURL:   out.ProfilePic,
	}, nil
}
