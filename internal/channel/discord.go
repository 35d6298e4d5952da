package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"botgateway/internal/domain"
	"botgateway/internal/ratelimit"
	"botgateway/internal/signature"

	"github.com/bwmarrin/discordgo"
)

const (
	discordMaxMsgLen       = 2000
	discordMaxButtonsInRow = 5
	discordThreadArchive   = 1440 // minutes
)

// discordSession is the subset of *discordgo.Session the provider calls.
type discordSession interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	MessageThreadStartComplex(channelID, messageID string, data *discordgo.ThreadStart, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ThreadStartComplex(channelID string, data *discordgo.ThreadStart, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
}

var _ discordSession = (*discordgo.Session)(nil)

// DiscordConfig configures the Discord provider.
type DiscordConfig struct {
	// Store resolves guild ids to local channels.
	Store domain.ChannelStore
	// Limiter gates sends per bot:destination. Built from RateLimit when nil.
	Limiter   *ratelimit.Limiter
	RateLimit ratelimit.Config
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Discord implements the Discord REST and interactions API. Sends pass
// through the per-destination rate limiter.
type Discord struct {
	store   domain.ChannelStore
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	senders map[domain.MessageType]discordSender

	mu         sync.Mutex
	sessions   map[string]discordSession // token fingerprint -> session
	newSession func(token string) (discordSession, error)
}

var discordCapabilities = domain.Capabilities{
	TextMessages:  true,
	MediaMessages: true,
	Buttons:       true,
	Interactive:   true,
	Reactions:     true,
	Typing:        true,
	Threads:       true,
	Embeds:        true,
	SlashCommands: true,
}

func NewDiscord(cfg DiscordConfig) *Discord {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.New(cfg.RateLimit)
	}
	timeout := cfg.Timeout
	d := &Discord{
		store:    cfg.Store,
		limiter:  limiter,
		logger:   logger,
		sessions: make(map[string]discordSession),
		newSession: func(token string) (discordSession, error) {
			s, err := discordgo.New("Bot " + token)
			if err != nil {
				return nil, err
			}
			s.Client = SharedHTTPClient(timeout)
			return s, nil
		},
	}
	d.senders = map[domain.MessageType]discordSender{
		domain.MessageText:        d.sendText,
		domain.MessageEmbed:       d.sendEmbed,
		domain.MessageInteractive: d.sendComponents,
		domain.MessageButton:      d.sendComponents,
		domain.MessageThread:      d.sendThread,
		domain.MessageReaction:    d.sendReaction,
		domain.MessageTyping:      d.sendTyping,
		domain.MessageImage:       d.sendMedia,
		domain.MessageVideo:       d.sendMedia,
		domain.MessageAudio:       d.sendMedia,
		domain.MessageDocument:    d.sendMedia,
	}
	return d
}

func (d *Discord) Type() domain.ChannelType { return domain.ChannelDiscord }

func (d *Discord) Capabilities() domain.Capabilities { return discordCapabilities }

func (d *Discord) Credentials(ch *domain.Channel) domain.CredentialBundle {
	return discordCredentialRules.extract(ch)
}

// Verify checks the Ed25519 interaction signature. secret is the
// application's hex public key.
func (d *Discord) Verify(req domain.WebhookRequest, secret string) bool {
	return signature.VerifyEd25519(req.Body, req.Headers, secret)
}

// HandleChallenge always declines; Discord proves ownership with a signed
// PING interaction instead.
func (d *Discord) HandleChallenge(url.Values, string) (string, bool) { return "", false }

func (d *Discord) session(token string) (discordSession, error) {
	key := fingerprint(token)
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sessions[key]; ok {
		return s, nil
	}
	s, err := d.newSession(token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	d.sessions[key] = s
	return s, nil
}

// Initialize fetches the bot user. A rejected token is returned as an error
// wrapping domain.ErrInvalidCredentials.
func (d *Discord) Initialize(ctx context.Context, ch *domain.Channel) (bool, error) {
	token := d.Credentials(ch).BotToken
	if token == "" {
		return false, fmt.Errorf("discord: %w: bot token is required", domain.ErrInvalidCredentials)
	}
	s, err := d.session(token)
	if err != nil {
		return false, err
	}
	u, err := s.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		err = discordError("GET users/@me", err)
		var apiErr *domain.RemoteAPIError
		if errors.As(err, &apiErr) && apiErr.Unauthorized() {
			return false, fmt.Errorf("discord: %w: %w", domain.ErrInvalidCredentials, err)
		}
		return false, err
	}
	d.logger.Info("discord bot verified", "channel_id", channelID(ch), "bot", u.Username)
	return true, nil
}

// discordError maps a discordgo failure onto the gateway error taxonomy.
func discordError(op string, err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		e := &domain.RemoteAPIError{Platform: domain.ChannelDiscord}
		if restErr.Response != nil {
			e.StatusCode = restErr.Response.StatusCode
		}
		if restErr.Message != nil {
			e.Code = restErr.Message.Code
			e.Message = restErr.Message.Message
		}
		if e.Message == "" {
			e.Message = strings.TrimSpace(string(restErr.ResponseBody))
		}
		return e
	}
	return &domain.NetworkError{Op: op, Err: err}
}

// --- Outbound ---

// discordCall is one rate-limited send in flight.
type discordCall struct {
	ctx     context.Context
	session discordSession
	wait    func() error
}

func (c *discordCall) opts() []discordgo.RequestOption {
	return []discordgo.RequestOption{discordgo.WithContext(c.ctx)}
}

type discordSender func(c *discordCall, msg domain.OutboundMessage) (string, error)

// Send dispatches by message type. Types without a dedicated sender are sent
// as plain text rather than rejected.
func (d *Discord) Send(ctx context.Context, ch *domain.Channel, msg domain.OutboundMessage) (domain.SendResult, error) {
	token := d.Credentials(ch).BotToken
	if token == "" {
		err := fmt.Errorf("discord: %w: bot token is required", domain.ErrInvalidCredentials)
		return domain.SendResult{Error: err.Error()}, err
	}
	if msg.To == "" {
		err := errors.New("discord: destination channel is required")
		return domain.SendResult{Error: err.Error()}, err
	}
	s, err := d.session(token)
	if err != nil {
		return domain.SendResult{Error: err.Error()}, err
	}

	if msg.Body == nil || msg.Type() == "" {
		err := &domain.UnsupportedMessageTypeError{Type: msg.Type()}
		return domain.SendResult{Error: err.Error()}, err
	}
	send, ok := d.senders[msg.Type()]
	if !ok {
		send = d.sendFallbackText
	}
	key := ratelimit.Key(fingerprint(token), msg.To)
	call := &discordCall{
		ctx:     ctx,
		session: s,
		wait:    func() error { return d.limiter.Wait(ctx, key) },
	}

	id, err := send(call, msg)
	if err != nil {
		d.logger.Warn("send failed", "provider", domain.ChannelDiscord, "type", msg.Type(), "err", err)
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) {
			err = discordError("send", err)
		}
	}
	return sendResult(id, err)
}

func replyReference(to string, opts domain.SendOptions) *discordgo.MessageReference {
	if opts.ReplyToID == "" {
		return nil
	}
	return &discordgo.MessageReference{MessageID: opts.ReplyToID, ChannelID: to}
}

// postText sends text split at the platform limit. Only the first chunk
// carries the reply reference. It returns the first message id.
func (d *Discord) postText(c *discordCall, to, text string, opts domain.SendOptions) (string, error) {
	if isBlank(text) {
		return "", errors.New("text message requires content")
	}
	var firstID string
	for i, chunk := range splitMessage(text, discordMaxMsgLen) {
		if err := c.wait(); err != nil {
			return firstID, err
		}
		data := &discordgo.MessageSend{Content: chunk}
		if i == 0 {
			data.Reference = replyReference(to, opts)
		}
		m, err := c.session.ChannelMessageSendComplex(to, data, c.opts()...)
		if err != nil {
			return firstID, err
		}
		if i == 0 && m != nil {
			firstID = m.ID
		}
	}
	return firstID, nil
}

func (d *Discord) postComplex(c *discordCall, to string, data *discordgo.MessageSend) (string, error) {
	if err := c.wait(); err != nil {
		return "", err
	}
	m, err := c.session.ChannelMessageSendComplex(to, data, c.opts()...)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", nil
	}
	return m.ID, nil
}

func (d *Discord) sendText(c *discordCall, msg domain.OutboundMessage) (string, error) {
	b, err := bodyAs[domain.TextBody](msg.Body)
	if err != nil {
		return "", err
	}
	return d.postText(c, msg.To, b.Text, msg.Options)
}

func (d *Discord) sendFallbackText(c *discordCall, msg domain.OutboundMessage) (string, error) {
	return d.postText(c, msg.To, plainText(msg.Body), msg.Options)
}

func (d *Discord) sendEmbed(c *discordCall, msg domain.OutboundMessage) (string, error) {
	b, err := bodyAs[domain.EmbedBody](msg.Body)
	if err != nil {
		return "", err
	}
	embed := &discordgo.MessageEmbed{
		Title:       b.Title,
		Description: b.Description,
		URL:         b.URL,
		Color:       b.Color,
	}
	if b.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: b.ImageURL}
	}
	if b.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: b.Footer}
	}
	for _, f := range b.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return d.postComplex(c, msg.To, &discordgo.MessageSend{
		Content:   msg.Options.Caption,
		Embeds:    []*discordgo.MessageEmbed{embed},
		Reference: replyReference(msg.To, msg.Options),
	})
}

func (d *Discord) sendComponents(c *discordCall, msg domain.OutboundMessage) (string, error) {
	var text string
	var components []discordgo.MessageComponent
	switch b := msg.Body.(type) {
	case domain.InteractiveBody:
		text = b.Text
		if b.Kind == "list" {
			components = []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{selectMenu(b)}}}
		} else {
			components = buttonRows(b.Buttons)
		}
	case domain.ButtonBody:
		text = b.Text
		components = buttonRows(b.Buttons)
	}
	if isBlank(text) && len(components) == 0 {
		return "", errors.New("interactive message requires content or components")
	}
	return d.postComplex(c, msg.To, &discordgo.MessageSend{
		Content:    text,
		Components: components,
		Reference:  replyReference(msg.To, msg.Options),
	})
}

func buttonRows(buttons []domain.Button) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	var row []discordgo.MessageComponent
	for _, b := range buttons {
		btn := discordgo.Button{Label: b.Title}
		switch {
		case b.URL != "":
			btn.Style = discordgo.LinkButton
			btn.URL = b.URL
		default:
			btn.Style = discordgo.PrimaryButton
			if b.Style > 0 {
				btn.Style = discordgo.ButtonStyle(b.Style)
			}
			btn.CustomID = firstNonEmpty(b.ID, b.Payload, b.Title)
		}
		row = append(row, btn)
		if len(row) == discordMaxButtonsInRow {
			rows = append(rows, discordgo.ActionsRow{Components: row})
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, discordgo.ActionsRow{Components: row})
	}
	return rows
}

func selectMenu(b domain.InteractiveBody) discordgo.SelectMenu {
	menu := discordgo.SelectMenu{
		CustomID:    firstNonEmpty(b.Header, "select"),
		Placeholder: b.ButtonText,
	}
	for _, s := range b.Sections {
		for _, r := range s.Rows {
			menu.Options = append(menu.Options, discordgo.SelectMenuOption{
				Label:       r.Title,
				Value:       r.ID,
				Description: r.Description,
			})
		}
	}
	return menu
}

func (d *Discord) sendMedia(c *discordCall, msg domain.OutboundMessage) (string, error) {
	b, err := bodyAs[domain.MediaBody](msg.Body)
	if err != nil {
		return "", err
	}
	if b.URL == "" {
		return "", fmt.Errorf("%s message requires a url", b.Kind)
	}
	if b.Kind == domain.MessageImage {
		return d.postComplex(c, msg.To, &discordgo.MessageSend{
			Content:   firstNonEmpty(b.Caption, msg.Options.Caption),
			Embeds:    []*discordgo.MessageEmbed{{Image: &discordgo.MessageEmbedImage{URL: b.URL}}},
			Reference: replyReference(msg.To, msg.Options),
		})
	}
	text := b.URL
	if caption := firstNonEmpty(b.Caption, msg.Options.Caption); caption != "" {
		text = caption + "\n" + b.URL
	}
	return d.postText(c, msg.To, text, msg.Options)
}

func (d *Discord) sendThread(c *discordCall, msg domain.OutboundMessage) (string, error) {
	b, err := bodyAs[domain.ThreadBody](msg.Body)
	if err != nil {
		return "", err
	}
	name := truncate(firstNonEmpty(b.Name, b.Text, "Thread"), 100)
	if err := c.wait(); err != nil {
		return "", err
	}

	var thread *discordgo.Channel
	if b.MessageID != "" {
		thread, err = c.session.MessageThreadStartComplex(msg.To, b.MessageID, &discordgo.ThreadStart{
			Name:                name,
			AutoArchiveDuration: discordThreadArchive,
		}, c.opts()...)
	} else {
		thread, err = c.session.ThreadStartComplex(msg.To, &discordgo.ThreadStart{
			Name:                name,
			AutoArchiveDuration: discordThreadArchive,
			Type:                discordgo.ChannelTypeGuildPublicThread,
		}, c.opts()...)
	}
	if err != nil {
		return "", err
	}
	if isBlank(b.Text) {
		return thread.ID, nil
	}
	return d.postText(c, thread.ID, b.Text, domain.SendOptions{})
}

func (d *Discord) sendReaction(c *discordCall, msg domain.OutboundMessage) (string, error) {
	b, err := bodyAs[domain.ReactionBody](msg.Body)
	if err != nil {
		return "", err
	}
	if b.MessageID == "" || b.Emoji == "" {
		return "", errors.New("reaction requires a message id and emoji")
	}
	if err := c.wait(); err != nil {
		return "", err
	}
	return b.MessageID, c.session.MessageReactionAdd(msg.To, b.MessageID, b.Emoji, c.opts()...)
}

func (d *Discord) sendTyping(c *discordCall, msg domain.OutboundMessage) (string, error) {
	b, err := bodyAs[domain.TypingBody](msg.Body)
	if err != nil {
		return "", err
	}
	if !b.On {
		// Typing expires on its own after a few seconds.
		return "", nil
	}
	return "", c.session.ChannelTyping(msg.To, c.opts()...)
}

// plainText extracts a readable rendition of any body.
func plainText(body domain.MessageBody) string {
	switch b := body.(type) {
	case domain.TextBody:
		return b.Text
	case domain.QuickReplyBody:
		return b.Text
	case domain.TemplateBody:
		if len(b.Elements) > 0 {
			return strings.TrimSpace(b.Elements[0].Title + "\n" + b.Elements[0].Subtitle)
		}
		return b.Name
	case domain.LocationBody:
		return strings.TrimSpace(fmt.Sprintf("%s %s (%f, %f)", b.Name, b.Address, b.Latitude, b.Longitude))
	}
	return ""
}

func (d *Discord) UserProfile(ctx context.Context, ch *domain.Channel, userID string) (*domain.UserProfile, error) {
	token := d.Credentials(ch).BotToken
	if token == "" {
		return nil, fmt.Errorf("discord: %w: bot token is required", domain.ErrInvalidCredentials)
	}
	s, err := d.session(token)
	if err != nil {
		return nil, err
	}
	u, err := s.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, discordError("GET users/"+userID, err)
	}
	return &domain.UserProfile{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: firstNonEmpty(u.GlobalName, u.Username),
		AvatarURL:   u.AvatarURL(""),
		Locale:      u.Locale,
	}, nil
}

// --- Inbound ---

// discordEnvelope is the relay shape {"type": "MESSAGE_CREATE", "data": ...}.
// A payload whose type is numeric is a raw interaction.
type discordEnvelope struct {
	Type json.RawMessage `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (d *Discord) ProcessWebhook(ctx context.Context, mgr domain.MessageManager, payload []byte, _ http.Header) []domain.InboundEvent {
	var ev *domain.InboundEvent
	err := guard(d.logger, "discord event", func() error {
		var nerr error
		ev, nerr = normalizeDiscord(payload)
		return nerr
	})
	if err != nil {
		d.logger.Warn("sub-event skipped", "provider", domain.ChannelDiscord, "err", err)
		return nil
	}
	if ev == nil {
		return nil
	}

	guildID, _ := ev.Metadata["guild_id"].(string)
	ev.ChannelID = d.resolveChannel(ctx, guildID, ev.To)
	if mgr != nil {
		if err := mgr.ReceiveMessage(ctx, ev.ChannelID, *ev); err != nil {
			d.logger.Warn("receive message failed", "provider", domain.ChannelDiscord, "channel_id", ev.ChannelID, "err", err)
		}
	}
	return []domain.InboundEvent{*ev}
}

func (d *Discord) resolveChannel(ctx context.Context, guildID, discordChannelID string) string {
	if d.store != nil && guildID != "" {
		ch, err := d.store.FindByBusinessAccountID(ctx, guildID)
		if err == nil && ch != nil {
			return ch.ID
		}
		if err != nil && !errors.Is(err, domain.ErrChannelNotFound) {
			d.logger.Warn("discord channel lookup failed", "guild_id", guildID, "err", err)
		}
	}
	return discordChannelID
}

// normalizeDiscord returns nil for payloads that carry no user event, such as
// PING, bot-authored messages and unknown dispatch types.
func normalizeDiscord(payload []byte) (*domain.InboundEvent, error) {
	var env discordEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if len(env.Type) == 0 {
		return nil, errors.New("payload has no type")
	}

	if env.Type[0] != '"' {
		return normalizeInteraction(payload)
	}
	var dispatch string
	if err := json.Unmarshal(env.Type, &dispatch); err != nil {
		return nil, fmt.Errorf("decode type: %w", err)
	}
	switch dispatch {
	case "MESSAGE_CREATE":
		return normalizeDiscordMessage(env.Data)
	case "INTERACTION_CREATE":
		return normalizeInteraction(env.Data)
	}
	return nil, nil
}

func normalizeDiscordMessage(raw json.RawMessage) (*domain.InboundEvent, error) {
	var m discordgo.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if m.Author != nil && m.Author.Bot {
		return nil, nil
	}

	ev := &domain.InboundEvent{
		ID:        newEventID(),
		Type:      domain.EventText,
		Channel:   domain.ChannelDiscord,
		From:      discordFrom(m.Author, m.Member),
		To:        m.ChannelID,
		MessageID: m.ID,
		Content:   m.Content,
		Timestamp: m.Timestamp.UTC(),
		Metadata:  map[string]any{"raw": raw, "guild_id": m.GuildID},
	}
	if m.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if m.MessageReference != nil {
		ev.ReplyToID = m.MessageReference.MessageID
	}
	for _, a := range m.Attachments {
		ev.Attachments = append(ev.Attachments, domain.Attachment{
			Type:     attachmentKind(a.ContentType),
			URL:      a.URL,
			MediaID:  a.ID,
			MimeType: a.ContentType,
			Filename: a.Filename,
		})
	}
	if len(ev.Attachments) > 0 && ev.Content == "" {
		ev.Type = domain.EventAttachment
	}
	return ev, nil
}

func attachmentKind(contentType string) string {
	kind, _, _ := strings.Cut(contentType, "/")
	switch kind {
	case "image", "video", "audio":
		return kind
	}
	return "file"
}

func normalizeInteraction(raw json.RawMessage) (*domain.InboundEvent, error) {
	var in discordgo.Interaction
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode interaction: %w", err)
	}

	ev := &domain.InboundEvent{
		ID:        newEventID(),
		Channel:   domain.ChannelDiscord,
		From:      discordFrom(in.User, in.Member),
		To:        in.ChannelID,
		MessageID: in.ID,
		Timestamp: time.Now().UTC(),
		Metadata: map[string]any{
			"raw":               raw,
			"guild_id":          in.GuildID,
			"interaction_id":    in.ID,
			"interaction_token": in.Token,
			"application_id":    in.AppID,
		},
	}
	if in.Message != nil {
		ev.ReplyToID = in.Message.ID
	}

	switch in.Type {
	case discordgo.InteractionPing, discordgo.InteractionApplicationCommandAutocomplete:
		return nil, nil
	case discordgo.InteractionApplicationCommand:
		data := in.ApplicationCommandData()
		ev.Type = domain.EventSlashCommand
		ev.Payload = data.Name
		ev.Content = commandLine(data.Name, data.Options)
	case discordgo.InteractionMessageComponent:
		data := in.MessageComponentData()
		ev.Payload = data.CustomID
		ev.Metadata["component_type"] = int(data.ComponentType)
		if data.ComponentType == discordgo.ButtonComponent {
			ev.Type = domain.EventButton
		} else {
			ev.Type = domain.EventSelectMenu
			ev.Content = strings.Join(data.Values, ",")
			ev.Metadata["values"] = data.Values
		}
	case discordgo.InteractionModalSubmit:
		data := in.ModalSubmitData()
		ev.Type = domain.EventInteractive
		ev.Payload = data.CustomID
	default:
		ev.Type = domain.EventUnknown
		ev.MessageType = in.Type.String()
	}
	return ev, nil
}

func commandLine(name string, opts []*discordgo.ApplicationCommandInteractionDataOption) string {
	parts := []string{"/" + name}
	var walk func(opts []*discordgo.ApplicationCommandInteractionDataOption)
	walk = func(opts []*discordgo.ApplicationCommandInteractionDataOption) {
		for _, o := range opts {
			switch o.Type {
			case discordgo.ApplicationCommandOptionSubCommand, discordgo.ApplicationCommandOptionSubCommandGroup:
				parts = append(parts, o.Name)
				walk(o.Options)
			default:
				if o.Value != nil {
					parts = append(parts, fmt.Sprint(o.Value))
				}
			}
		}
	}
	walk(opts)
	return strings.Join(parts, " ")
}

func discordFrom(u *discordgo.User, m *discordgo.Member) domain.Sender {
	if u == nil && m != nil {
		u = m.User
	}
	if u == nil {
		return domain.Sender{}
	}
	s := domain.Sender{ID: u.ID, Username: u.Username}
	nick := ""
	if m != nil {
		nick = m.Nick
	}
	s.DisplayName = firstNonEmpty(nick, u.GlobalName, u.Username)
	return s
}

// InteractionResponse returns the synchronous reply an interactions endpoint
// must send for payload: a pong for PING, otherwise a deferred
// acknowledgement. ok is false when payload is not a raw interaction.
func InteractionResponse(payload []byte) (resp *discordgo.InteractionResponse, ok bool) {
	var probe struct {
		Type json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil || len(probe.Type) == 0 || probe.Type[0] == '"' {
		return nil, false
	}
	var kind discordgo.InteractionType
	if err := json.Unmarshal(probe.Type, &kind); err != nil {
		return nil, false
	}
	switch kind {
	case discordgo.InteractionPing:
		return &discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong}, true
	case discordgo.InteractionMessageComponent:
		return &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}, true
	}
	return &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}, true
}
