// Package gateway is the single entry point for webhook delivery and
// outbound sends across all channel providers.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"botgateway/internal/channel"
	"botgateway/internal/domain"
	"botgateway/internal/metrics"
)

// ErrUnauthorized is returned when a webhook fails signature verification.
var ErrUnauthorized = errors.New("webhook verification failed")

// ChannelLookup loads a stored channel by its local id.
type ChannelLookup interface {
	GetChannel(ctx context.Context, id string) (*domain.Channel, error)
}

// AppCredentials are the app-level secrets used for webhooks that are not
// bound to a single channel.
type AppCredentials struct {
	AppSecret   string
	VerifyToken string
	PublicKey   string
}

type Config struct {
	Registry *channel.Registry
	Channels ChannelLookup
	Manager  domain.MessageManager
	Apps     map[domain.ChannelType]AppCredentials
	Metrics  *metrics.Gateway
	Logger   *slog.Logger
}

type Gateway struct {
	registry *channel.Registry
	channels ChannelLookup
	manager  domain.MessageManager
	apps     map[domain.ChannelType]AppCredentials
	metrics  *metrics.Gateway
	logger   *slog.Logger
}

func New(cfg Config) (*Gateway, error) {
	if cfg.Registry == nil {
		return nil, errors.New("gateway: registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	apps := cfg.Apps
	if apps == nil {
		apps = map[domain.ChannelType]AppCredentials{}
	}
	return &Gateway{
		registry: cfg.Registry,
		channels: cfg.Channels,
		manager:  cfg.Manager,
		apps:     apps,
		metrics:  cfg.Metrics,
		logger:   logger,
	}, nil
}

// HandleChallenge answers a subscription handshake with the app-level verify
// token.
func (g *Gateway) HandleChallenge(t domain.ChannelType, query url.Values) (string, bool) {
	p, err := g.registry.Get(t)
	if err != nil {
		return "", false
	}
	return p.HandleChallenge(query, g.apps[t].VerifyToken)
}

// HandleChannelChallenge answers a handshake with the channel's own verify
// token, falling back to the app-level one.
func (g *Gateway) HandleChannelChallenge(ctx context.Context, channelID string, query url.Values) (string, bool) {
	ch, p, err := g.channelProvider(ctx, channelID)
	if err != nil {
		g.logger.Warn("challenge for unknown channel", "channel_id", channelID, "err", err)
		return "", false
	}
	token := p.Credentials(ch).VerifyToken
	if token == "" {
		token = g.apps[ch.Type].VerifyToken
	}
	return p.HandleChallenge(query, token)
}

// Verify authenticates a webhook for provider t with secret.
func (g *Gateway) Verify(t domain.ChannelType, req domain.WebhookRequest, secret string) bool {
	p, err := g.registry.Get(t)
	if err != nil {
		return false
	}
	return p.Verify(req, secret)
}

// HandleWebhook verifies an app-level delivery and normalizes it. It returns
// ErrUnauthorized when verification fails; sub-event failures never surface.
func (g *Gateway) HandleWebhook(ctx context.Context, t domain.ChannelType, req domain.WebhookRequest) ([]domain.InboundEvent, error) {
	p, err := g.registry.Get(t)
	if err != nil {
		return nil, err
	}
	g.metrics.WebhookReceived(string(t))
	if !p.Verify(req, appSecret(t, g.apps[t])) {
		g.metrics.WebhookRejected(string(t))
		g.logger.Warn("webhook rejected", "provider", t)
		return nil, ErrUnauthorized
	}
	events := p.ProcessWebhook(ctx, g.manager, req.Body, req.Headers)
	g.metrics.EventsProcessed(string(t), len(events))
	return events, nil
}

// HandleChannelWebhook verifies a delivery addressed to one channel with that
// channel's secret. Every event is attributed to the channel.
func (g *Gateway) HandleChannelWebhook(ctx context.Context, channelID string, req domain.WebhookRequest) ([]domain.InboundEvent, error) {
	ch, p, err := g.channelProvider(ctx, channelID)
	if err != nil {
		return nil, err
	}
	g.metrics.WebhookReceived(string(ch.Type))

	creds := p.Credentials(ch)
	secret := creds.AppSecret
	if ch.Type == domain.ChannelDiscord {
		secret = creds.PublicKey
	}
	if secret == "" {
		secret = appSecret(ch.Type, g.apps[ch.Type])
	}
	if !p.Verify(req, secret) {
		g.metrics.WebhookRejected(string(ch.Type))
		g.logger.Warn("webhook rejected", "provider", ch.Type, "channel_id", ch.ID)
		return nil, ErrUnauthorized
	}

	var mgr domain.MessageManager
	if g.manager != nil {
		mgr = boundManager{MessageManager: g.manager, channelID: ch.ID}
	}
	events := p.ProcessWebhook(ctx, mgr, req.Body, req.Headers)
	for i := range events {
		events[i].ChannelID = ch.ID
	}
	g.metrics.EventsProcessed(string(ch.Type), len(events))
	return events, nil
}

func appSecret(t domain.ChannelType, app AppCredentials) string {
	if t == domain.ChannelDiscord {
		return app.PublicKey
	}
	return app.AppSecret
}

// boundManager attributes received events to a fixed channel.
type boundManager struct {
	domain.MessageManager
	channelID string
}

func (m boundManager) ReceiveMessage(ctx context.Context, _ string, ev domain.InboundEvent) error {
	ev.ChannelID = m.channelID
	return m.MessageManager.ReceiveMessage(ctx, m.channelID, ev)
}

// Send dispatches msg through the provider serving ch.
func (g *Gateway) Send(ctx context.Context, ch *domain.Channel, msg domain.OutboundMessage) (domain.SendResult, error) {
	p, err := g.registry.ForChannel(ch)
	if err != nil {
		return domain.SendResult{Error: err.Error()}, err
	}

	start := time.Now()
	res, err := p.Send(ctx, ch, msg)
	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
	case !res.Success:
		outcome = "rejected"
	}
	g.metrics.SendCompleted(string(ch.Type), outcome, time.Since(start))
	if err != nil {
		g.logger.Warn("send failed", "channel", ch.Type, "channel_id", ch.ID, "type", msg.Type(), "err", err)
	} else {
		g.logger.Debug("send completed", "channel", ch.Type, "channel_id", ch.ID, "success", res.Success, "message_id", res.MessageID)
	}
	return res, err
}

// SendToChannel loads channelID and sends msg through it.
func (g *Gateway) SendToChannel(ctx context.Context, channelID string, msg domain.OutboundMessage) (domain.SendResult, error) {
	ch, err := g.channel(ctx, channelID)
	if err != nil {
		return domain.SendResult{Error: err.Error()}, err
	}
	return g.Send(ctx, ch, msg)
}

// Initialize validates ch's credentials. See domain.Provider for the two
// failure conventions.
func (g *Gateway) Initialize(ctx context.Context, ch *domain.Channel) (bool, error) {
	p, err := g.registry.ForChannel(ch)
	if err != nil {
		return false, err
	}
	return p.Initialize(ctx, ch)
}

// Capabilities returns the static feature set of provider t.
func (g *Gateway) Capabilities(t domain.ChannelType) (domain.Capabilities, error) {
	p, err := g.registry.Get(t)
	if err != nil {
		return domain.Capabilities{}, err
	}
	return p.Capabilities(), nil
}

// Supports reports whether provider t advertises message type mt. Callers
// use it to reject a request before Send.
func (g *Gateway) Supports(t domain.ChannelType, mt domain.MessageType) bool {
	caps, err := g.Capabilities(t)
	return err == nil && caps.Allows(mt)
}

func (g *Gateway) UserProfile(ctx context.Context, ch *domain.Channel, userID string) (*domain.UserProfile, error) {
	p, err := g.registry.ForChannel(ch)
	if err != nil {
		return nil, err
	}
	return p.UserProfile(ctx, ch, userID)
}

func (g *Gateway) UploadMedia(ctx context.Context, ch *domain.Channel, sourceURL, mimeType string) (string, error) {
	mp, err := g.mediaProvider(ch)
	if err != nil {
		return "", err
	}
	return mp.UploadMedia(ctx, ch, sourceURL, mimeType)
}

func (g *Gateway) DownloadMedia(ctx context.Context, ch *domain.Channel, mediaID string, w io.Writer) (string, error) {
	mp, err := g.mediaProvider(ch)
	if err != nil {
		return "", err
	}
	return mp.DownloadMedia(ctx, ch, mediaID, w)
}

// ResolveChannel maps a platform account id to its local channel.
func (g *Gateway) ResolveChannel(ctx context.Context, t domain.ChannelType, accountID string) (*domain.Channel, error) {
	_, ch, err := g.registry.Resolve(ctx, t, accountID)
	return ch, err
}

// Types lists the channel types the gateway serves.
func (g *Gateway) Types() []domain.ChannelType {
	return g.registry.Types()
}

func (g *Gateway) mediaProvider(ch *domain.Channel) (domain.MediaProvider, error) {
	p, err := g.registry.ForChannel(ch)
	if err != nil {
		return nil, err
	}
	mp, ok := p.(domain.MediaProvider)
	if !ok {
		return nil, fmt.Errorf("%s media transfer: %w", ch.Type, domain.ErrUnsupportedOperation)
	}
	return mp, nil
}

func (g *Gateway) channel(ctx context.Context, id string) (*domain.Channel, error) {
	if g.channels == nil {
		return nil, fmt.Errorf("channel %s: %w", id, domain.ErrChannelNotFound)
	}
	ch, err := g.channels.GetChannel(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", id, err)
	}
	if ch == nil {
		return nil, fmt.Errorf("channel %s: %w", id, domain.ErrChannelNotFound)
	}
	return ch, nil
}

func (g *Gateway) channelProvider(ctx context.Context, id string) (*domain.Channel, domain.Provider, error) {
	ch, err := g.channel(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	p, err := g.registry.ForChannel(ch)
	if err != nil {
		return nil, nil, err
	}
	return ch, p, nil
}
