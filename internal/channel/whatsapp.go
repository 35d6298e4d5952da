package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"

	"botgateway/internal/domain"
	"botgateway/internal/signature"

	"github.com/go-resty/resty/v2"
)

const (
	maxReplyButtons = 3

	// DefaultMaxUploadBytes is the Cloud API ceiling for any media kind
	// (documents); images, audio and video have lower per-kind limits.
	DefaultMaxUploadBytes = 100 << 20
)

// WhatsAppConfig configures the WhatsApp Cloud API provider.
type WhatsAppConfig struct {
	Graph GraphConfig
	// MaxUploadBytes caps the source fetched by UploadMedia. Zero takes
	// DefaultMaxUploadBytes.
	MaxUploadBytes int64
	// Store resolves business account ids to local channels.
	Store  domain.ChannelStore
	Logger *slog.Logger
}

// WhatsApp implements the WhatsApp Business Cloud API.
type WhatsApp struct {
	graph      *graphClient
	media      *resty.Client
	maxUpload  int64
	store      domain.ChannelStore
	logger     *slog.Logger
	formatters map[domain.MessageType]waFormatter
}

var whatsappCapabilities = domain.Capabilities{
	TextMessages:     true,
	MediaMessages:    true,
	Templates:        true,
	Buttons:          true,
	Interactive:      true,
	Reactions:        true,
	LocationMessages: true,
	ReadReceipts:     true,
}

func NewWhatsApp(cfg WhatsAppConfig) *WhatsApp {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Graph.Logger = logger
	g := newGraphClient(domain.ChannelWhatsApp, cfg.Graph)
	graphCfg := cfg.Graph.withDefaults()
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &WhatsApp{
		graph:     g,
		media:     newRESTClient("", graphCfg.MediaTimeout, graphCfg.MaxRetries),
		maxUpload: cfg.MaxUploadBytes,
		store:     cfg.Store,
		logger:    logger,
		formatters: map[domain.MessageType]waFormatter{
			domain.MessageText:        formatWAText,
			domain.MessageImage:       formatWAMedia,
			domain.MessageVideo:       formatWAMedia,
			domain.MessageAudio:       formatWAMedia,
			domain.MessageDocument:    formatWAMedia,
			domain.MessageTemplate:    formatWATemplate,
			domain.MessageInteractive: formatWAInteractive,
			domain.MessageButton:      formatWAButtons,
			domain.MessageReaction:    formatWAReaction,
			domain.MessageLocation:    formatWALocation,
		},
	}
}

func (w *WhatsApp) Type() domain.ChannelType { return domain.ChannelWhatsApp }

func (w *WhatsApp) Capabilities() domain.Capabilities { return whatsappCapabilities }

func (w *WhatsApp) Credentials(ch *domain.Channel) domain.CredentialBundle {
	return whatsappCredentialRules.extract(ch)
}

// Initialize checks the phone number id against the Cloud API. A rejected
// token is returned as an error wrapping domain.ErrInvalidCredentials.
func (w *WhatsApp) Initialize(ctx context.Context, ch *domain.Channel) (bool, error) {
	creds := w.Credentials(ch)
	if creds.AccessToken == "" || creds.PhoneNumberID == "" {
		return false, fmt.Errorf("whatsapp: %w: access token and phone number id are required", domain.ErrInvalidCredentials)
	}

	var out struct {
		VerifiedName       string `json:"verified_name"`
		DisplayPhoneNumber string `json:"display_phone_number"`
	}
	err := w.graph.get(ctx, "/"+url.PathEscape(creds.PhoneNumberID), creds.AccessToken,
		map[string]string{"fields": "verified_name,display_phone_number"}, &out)
	if err != nil {
		var apiErr *domain.RemoteAPIError
		if errors.As(err, &apiErr) {
			return false, fmt.Errorf("whatsapp: %w: %w", domain.ErrInvalidCredentials, err)
		}
		return false, err
	}
	w.logger.Info("whatsapp channel verified", "channel_id", channelID(ch), "name", out.VerifiedName)
	return true, nil
}

func (w *WhatsApp) Verify(req domain.WebhookRequest, secret string) bool {
	return signature.VerifyHubSignature(req.Body, req.Headers, secret)
}

func (w *WhatsApp) HandleChallenge(query url.Values, verifyToken string) (string, bool) {
	return handleHubChallenge(query, verifyToken)
}

// --- Outbound ---

type waFormatter func(body domain.MessageBody, opts domain.SendOptions) (map[string]any, error)

func (w *WhatsApp) Send(ctx context.Context, ch *domain.Channel, msg domain.OutboundMessage) (domain.SendResult, error) {
	format, ok := w.formatters[msg.Type()]
	if !ok {
		err := &domain.UnsupportedMessageTypeError{Type: msg.Type()}
		return domain.SendResult{Error: err.Error()}, err
	}
	creds := w.Credentials(ch)
	if creds.AccessToken == "" || creds.PhoneNumberID == "" {
		err := fmt.Errorf("whatsapp: %w: access token and phone number id are required", domain.ErrInvalidCredentials)
		return domain.SendResult{Error: err.Error()}, err
	}
	to := FormatPhoneNumber(msg.To)
	if to == "" {
		err := fmt.Errorf("whatsapp: invalid recipient %q", msg.To)
		return domain.SendResult{Error: err.Error()}, err
	}

	content, err := format(msg.Body, msg.Options)
	if err != nil {
		err = fmt.Errorf("whatsapp: format %s: %w", msg.Type(), err)
		return domain.SendResult{Error: err.Error()}, err
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
	}
	for k, v := range content {
		payload[k] = v
	}
	if msg.Options.ReplyToID != "" && msg.Type() != domain.MessageReaction {
		payload["context"] = map[string]any{"message_id": msg.Options.ReplyToID}
	}

	var out waSendResponse
	err = w.graph.post(ctx, "/"+url.PathEscape(creds.PhoneNumberID)+"/messages", creds.AccessToken, payload, &out)
	if err != nil {
		w.logger.Warn("send failed", "provider", domain.ChannelWhatsApp, "type", msg.Type(), "err", err)
	}
	var messageID string
	if len(out.Messages) > 0 {
		messageID = out.Messages[0].ID
	}
	return sendResult(messageID, err)
}

// MarkAsRead marks an inbound message as read, which also shows the blue
// ticks to the sender.
func (w *WhatsApp) MarkAsRead(ctx context.Context, ch *domain.Channel, messageID string) error {
	creds := w.Credentials(ch)
	if creds.AccessToken == "" || creds.PhoneNumberID == "" {
		return fmt.Errorf("whatsapp: %w: access token and phone number id are required", domain.ErrInvalidCredentials)
	}
	return w.graph.post(ctx, "/"+url.PathEscape(creds.PhoneNumberID)+"/messages", creds.AccessToken, map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}, nil)
}

// UserProfile is not offered by the Cloud API; names arrive with inbound
// messages instead.
func (w *WhatsApp) UserProfile(_ context.Context, _ *domain.Channel, _ string) (*domain.UserProfile, error) {
	return nil, fmt.Errorf("whatsapp user profile: %w", domain.ErrUnsupportedOperation)
}

type waSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func formatWAText(body domain.MessageBody, opts domain.SendOptions) (map[string]any, error) {
	b, err := bodyAs[domain.TextBody](body)
	if err != nil {
		return nil, err
	}
	if isBlank(b.Text) {
		return nil, errors.New("text message requires text")
	}
	return map[string]any{
		"type": "text",
		"text": map[string]any{"body": b.Text, "preview_url": opts.PreviewURL},
	}, nil
}

func formatWAMedia(body domain.MessageBody, opts domain.SendOptions) (map[string]any, error) {
	b, err := bodyAs[domain.MediaBody](body)
	if err != nil {
		return nil, err
	}
	media := map[string]any{}
	switch {
	case b.MediaID != "":
		media["id"] = b.MediaID
	case b.URL != "":
		media["link"] = b.URL
	default:
		return nil, fmt.Errorf("%s message requires a url or media id", b.Kind)
	}
	caption := firstNonEmpty(b.Caption, opts.Caption)
	if caption != "" && b.Kind != domain.MessageAudio {
		media["caption"] = caption
	}
	if b.Kind == domain.MessageDocument {
		name := b.Filename
		if name == "" && b.URL != "" {
			name = path.Base(b.URL)
		}
		if name != "" && name != "." && name != "/" {
			media["filename"] = name
		}
	}
	return map[string]any{"type": string(b.Kind), string(b.Kind): media}, nil
}

func formatWATemplate(body domain.MessageBody, opts domain.SendOptions) (map[string]any, error) {
	b, err := bodyAs[domain.TemplateBody](body)
	if err != nil {
		return nil, err
	}
	if b.Name == "" {
		return nil, errors.New("template message requires a template name")
	}
	lang := firstNonEmpty(b.Language, opts.Locale, "en_US")
	tpl := map[string]any{
		"name":     b.Name,
		"language": map[string]any{"code": lang},
	}
	components := b.Components
	if len(components) == 0 {
		components = opts.Components
	}
	if len(components) > 0 {
		tpl["components"] = components
	}
	return map[string]any{"type": "template", "template": tpl}, nil
}

func formatWAInteractive(body domain.MessageBody, _ domain.SendOptions) (map[string]any, error) {
	b, err := bodyAs[domain.InteractiveBody](body)
	if err != nil {
		return nil, err
	}
	if isBlank(b.Text) {
		return nil, errors.New("interactive message requires body text")
	}
	var interactive map[string]any
	switch b.Kind {
	case "list":
		if len(b.Sections) == 0 {
			return nil, errors.New("list message requires at least one section")
		}
		sections := make([]map[string]any, 0, len(b.Sections))
		for _, s := range b.Sections {
			rows := make([]map[string]any, 0, len(s.Rows))
			for _, r := range s.Rows {
				row := map[string]any{"id": r.ID, "title": truncate(r.Title, 24)}
				if r.Description != "" {
					row["description"] = truncate(r.Description, 72)
				}
				rows = append(rows, row)
			}
			sec := map[string]any{"rows": rows}
			if s.Title != "" {
				sec["title"] = s.Title
			}
			sections = append(sections, sec)
		}
		interactive = map[string]any{
			"type": "list",
			"body": map[string]any{"text": b.Text},
			"action": map[string]any{
				"button":   firstNonEmpty(b.ButtonText, "Options"),
				"sections": sections,
			},
		}
	case "", "button":
		buttons, err := waReplyButtons(b.Buttons)
		if err != nil {
			return nil, err
		}
		interactive = map[string]any{
			"type":   "button",
			"body":   map[string]any{"text": b.Text},
			"action": map[string]any{"buttons": buttons},
		}
	default:
		return nil, fmt.Errorf("unknown interactive kind %q", b.Kind)
	}
	if b.Header != "" {
		interactive["header"] = map[string]any{"type": "text", "text": b.Header}
	}
	if b.Footer != "" {
		interactive["footer"] = map[string]any{"text": b.Footer}
	}
	return map[string]any{"type": "interactive", "interactive": interactive}, nil
}

// formatWAButtons renders a generic button message as interactive reply
// buttons.
func formatWAButtons(body domain.MessageBody, opts domain.SendOptions) (map[string]any, error) {
	b, err := bodyAs[domain.ButtonBody](body)
	if err != nil {
		return nil, err
	}
	return formatWAInteractive(domain.InteractiveBody{Kind: "button", Text: b.Text, Buttons: b.Buttons}, opts)
}

func waReplyButtons(buttons []domain.Button) ([]map[string]any, error) {
	if len(buttons) == 0 {
		return nil, errors.New("button message requires at least one button")
	}
	if len(buttons) > maxReplyButtons {
		buttons = buttons[:maxReplyButtons]
	}
	out := make([]map[string]any, 0, len(buttons))
	for _, btn := range buttons {
		id := firstNonEmpty(btn.ID, btn.Payload, btn.Title)
		out = append(out, map[string]any{
			"type":  "reply",
			"reply": map[string]any{"id": id, "title": truncate(btn.Title, 20)},
		})
	}
	return out, nil
}

func formatWAReaction(body domain.MessageBody, _ domain.SendOptions) (map[string]any, error) {
	b, err := bodyAs[domain.ReactionBody](body)
	if err != nil {
		return nil, err
	}
	if b.MessageID == "" {
		return nil, errors.New("reaction requires a message id")
	}
	return map[string]any{
		"type":     "reaction",
		"reaction": map[string]any{"message_id": b.MessageID, "emoji": b.Emoji},
	}, nil
}

func formatWALocation(body domain.MessageBody, _ domain.SendOptions) (map[string]any, error) {
	b, err := bodyAs[domain.LocationBody](body)
	if err != nil {
		return nil, err
	}
	loc := map[string]any{"latitude": b.Latitude, "longitude": b.Longitude}
	if b.Name != "" {
		loc["name"] = b.Name
	}
	if b.Address != "" {
		loc["address"] = b.Address
	}
	return map[string]any{"type": "location", "location": loc}, nil
}

// --- Media ---

// UploadMedia fetches sourceURL and uploads it to the Cloud API, returning the
// platform media id.
func (w *WhatsApp) UploadMedia(ctx context.Context, ch *domain.Channel, sourceURL, mimeType string) (string, error) {
	creds := w.Credentials(ch)
	if creds.AccessToken == "" || creds.PhoneNumberID == "" {
		return "", &domain.MediaTransferError{Direction: domain.Upload, Phase: "credentials", Err: domain.ErrInvalidCredentials}
	}
	ctx, cancel := context.WithTimeout(ctx, w.graph.mediaTimeout)
	defer cancel()

	resp, err := w.media.R().SetContext(ctx).SetDoNotParseResponse(true).Get(sourceURL)
	if err != nil {
		return "", &domain.MediaTransferError{Direction: domain.Upload, Phase: "fetch source", Err: err}
	}
	raw := resp.RawBody()
	defer raw.Close()
	if resp.IsError() {
		return "", &domain.MediaTransferError{Direction: domain.Upload, Phase: "fetch source",
			Err: fmt.Errorf("source returned %d", resp.StatusCode())}
	}
	if n := resp.RawResponse.ContentLength; n > w.maxUpload {
		return "", &domain.MediaTransferError{Direction: domain.Upload, Phase: "fetch source",
			Err: fmt.Errorf("source is %d bytes, limit is %d", n, w.maxUpload)}
	}
	content, err := io.ReadAll(io.LimitReader(raw, w.maxUpload+1))
	if err != nil {
		return "", &domain.MediaTransferError{Direction: domain.Upload, Phase: "fetch source",
			Err: &domain.NetworkError{Op: "GET " + sourceURL, Err: err}}
	}
	if int64(len(content)) > w.maxUpload {
		return "", &domain.MediaTransferError{Direction: domain.Upload, Phase: "fetch source",
			Err: fmt.Errorf("source exceeds %d bytes", w.maxUpload)}
	}
	if mimeType == "" {
		mimeType = resp.Header().Get("Content-Type")
	}
	filename := path.Base(sourceURL)
	if u, perr := url.Parse(sourceURL); perr == nil && u.Path != "" {
		filename = path.Base(u.Path)
	}

	req, err := w.graph.request(ctx, creds.AccessToken)
	if err != nil {
		return "", &domain.MediaTransferError{Direction: domain.Upload, Phase: "upload", Err: err}
	}
	var out struct {
		ID string `json:"id"`
	}
	apiErr := &graphErrorEnvelope{}
	up, err := req.
		SetFormData(map[string]string{"messaging_product": "whatsapp", "type": mimeType}).
		SetFileReader("file", filename, bytes.NewReader(content)).
		SetResult(&out).
		SetError(apiErr).
		Post("/" + url.PathEscape(creds.PhoneNumberID) + "/media")
	if err != nil {
		return "", &domain.MediaTransferError{Direction: domain.Upload, Phase: "upload",
			Err: &domain.NetworkError{Op: "POST media", Err: err}}
	}
	if up.IsError() {
		return "", &domain.MediaTransferError{Direction: domain.Upload, Phase: "upload", Err: w.graph.remoteError(up, apiErr)}
	}
	if out.ID == "" {
		return "", &domain.MediaTransferError{Direction: domain.Upload, Phase: "upload", Err: errors.New("response carried no media id")}
	}
	return out.ID, nil
}

// DownloadMedia resolves mediaID to its short-lived URL and streams the
// content into dst. It returns the content MIME type.
func (w *WhatsApp) DownloadMedia(ctx context.Context, ch *domain.Channel, mediaID string, dst io.Writer) (string, error) {
	creds := w.Credentials(ch)
	if creds.AccessToken == "" {
		return "", &domain.MediaTransferError{Direction: domain.Download, Phase: "credentials", Err: domain.ErrInvalidCredentials}
	}
	ctx, cancel := context.WithTimeout(ctx, w.graph.mediaTimeout)
	defer cancel()

	var info struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := w.graph.get(ctx, "/"+url.PathEscape(mediaID), creds.AccessToken, nil, &info); err != nil {
		return "", &domain.MediaTransferError{Direction: domain.Download, Phase: "resolve url", Err: err}
	}
	if info.URL == "" {
		return "", &domain.MediaTransferError{Direction: domain.Download, Phase: "resolve url", Err: errors.New("response carried no url")}
	}

	resp, err := w.media.R().
		SetContext(ctx).
		SetAuthToken(creds.AccessToken).
		SetDoNotParseResponse(true).
		Get(info.URL)
	if err != nil {
		return "", &domain.MediaTransferError{Direction: domain.Download, Phase: "fetch content", Err: err}
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.IsError() {
		return "", &domain.MediaTransferError{Direction: domain.Download, Phase: "fetch content",
			Err: fmt.Errorf("media host returned %d", resp.StatusCode())}
	}
	if _, err := io.Copy(dst, body); err != nil {
		return "", &domain.MediaTransferError{Direction: domain.Download, Phase: "fetch content", Err: err}
	}
	return firstNonEmpty(info.MimeType, resp.Header().Get("Content-Type")), nil
}

// --- Inbound ---

type waPayload struct {
	Object string    `json:"object"`
	Entry  []waEntry `json:"entry"`
}

type waEntry struct {
	ID      string     `json:"id"`
	Changes []waChange `json:"changes"`
}

type waChange struct {
	Value waValue `json:"value"`
	Field string  `json:"field"`
}

type waValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         waMetadata        `json:"metadata"`
	Contacts         []waContact       `json:"contacts"`
	Messages         []json.RawMessage `json:"messages"`
	Statuses         []json.RawMessage `json:"statuses"`
}

type waMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type waContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type waMessage struct {
	From      string          `json:"from"`
	ID        string          `json:"id"`
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Text      *waText         `json:"text,omitempty"`
	Image     *waMedia        `json:"image,omitempty"`
	Video     *waMedia        `json:"video,omitempty"`
	Audio     *waMedia        `json:"audio,omitempty"`
	Document  *waMedia        `json:"document,omitempty"`
	Sticker   *waMedia        `json:"sticker,omitempty"`
	Location  *waLocation     `json:"location,omitempty"`
	Contacts  json.RawMessage `json:"contacts,omitempty"`
	Interact  *waInteractive  `json:"interactive,omitempty"`
	Button    *waButton       `json:"button,omitempty"`
	Reaction  *waReaction     `json:"reaction,omitempty"`
	Context   *waContext      `json:"context,omitempty"`
}

type waText struct {
	Body string `json:"body"`
}

type waMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

type waLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
}

type waInteractive struct {
	Type        string   `json:"type"`
	ButtonReply *waReply `json:"button_reply,omitempty"`
	ListReply   *waReply `json:"list_reply,omitempty"`
}

type waReply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type waButton struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

type waReaction struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type waContext struct {
	From string `json:"from"`
	ID   string `json:"id"`
}

type waStatus struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Timestamp   string    `json:"timestamp"`
	RecipientID string    `json:"recipient_id"`
	Errors      []waError `json:"errors"`
}

type waError struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// ProcessWebhook walks entry[].changes[] and handles only "messages" changes.
// Within a change, messages are handed over before statuses.
func (w *WhatsApp) ProcessWebhook(ctx context.Context, mgr domain.MessageManager, payload []byte, _ http.Header) []domain.InboundEvent {
	var p waPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		w.logger.Warn("webhook payload rejected", "provider", domain.ChannelWhatsApp, "err", err)
		return nil
	}

	var events []domain.InboundEvent
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			channelID := w.resolveChannel(ctx, entry.ID, change.Value.Metadata.PhoneNumberID)
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}

			for _, raw := range change.Value.Messages {
				var ev domain.InboundEvent
				err := guard(w.logger, "whatsapp message", func() error {
					var nerr error
					ev, nerr = normalizeWhatsAppMessage(channelID, change.Value.Metadata, names, raw)
					if nerr != nil {
						return nerr
					}
					if mgr != nil {
						if err := mgr.ReceiveMessage(ctx, channelID, ev); err != nil {
							w.logger.Warn("receive message failed", "provider", domain.ChannelWhatsApp, "channel_id", channelID, "err", err)
						}
					}
					events = append(events, ev)
					return nil
				})
				if err != nil {
					w.logger.Warn("sub-event skipped", "provider", domain.ChannelWhatsApp, "err", err)
				}
			}

			for _, raw := range change.Value.Statuses {
				err := guard(w.logger, "whatsapp status", func() error {
					return w.applyStatus(ctx, mgr, raw)
				})
				if err != nil {
					w.logger.Warn("sub-event skipped", "provider", domain.ChannelWhatsApp, "err", err)
				}
			}
		}
	}
	return events
}

func (w *WhatsApp) resolveChannel(ctx context.Context, accountID, phoneNumberID string) string {
	if w.store != nil && accountID != "" {
		ch, err := w.store.FindByBusinessAccountID(ctx, accountID)
		if err == nil && ch != nil {
			return ch.ID
		}
		if err != nil && !errors.Is(err, domain.ErrChannelNotFound) {
			w.logger.Warn("whatsapp channel lookup failed", "account_id", accountID, "err", err)
		}
	}
	return firstNonEmpty(phoneNumberID, accountID)
}

func (w *WhatsApp) applyStatus(ctx context.Context, mgr domain.MessageManager, raw json.RawMessage) error {
	var st waStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	if st.ID == "" {
		return errors.New("status without message id")
	}
	status := domain.MessageStatus(st.Status)
	switch status {
	case domain.MessageSent, domain.MessageDelivered, domain.MessageRead:
	case domain.MessageFailed:
		for _, e := range st.Errors {
			w.logger.Warn("whatsapp message failed", "message_id", st.ID, "code", e.Code, "title", e.Title, "detail", e.Message)
		}
	default:
		w.logger.Debug("whatsapp status ignored", "message_id", st.ID, "status", st.Status)
		return nil
	}
	if mgr == nil {
		return nil
	}
	return mgr.UpdateMessageStatus(ctx, st.ID, status, unixSecondsToMillis(st.Timestamp))
}

// normalizeWhatsAppMessage turns one value.messages[] element into an event.
// Unrecognized types still produce an event carrying the raw type.
func normalizeWhatsAppMessage(channelID string, meta waMetadata, names map[string]string, raw json.RawMessage) (domain.InboundEvent, error) {
	var m waMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return domain.InboundEvent{}, fmt.Errorf("decode message: %w", err)
	}

	ev := domain.InboundEvent{
		ID:          newEventID(),
		Channel:     domain.ChannelWhatsApp,
		ChannelID:   channelID,
		From:        domain.Sender{ID: m.From, DisplayName: names[m.From]},
		To:          meta.PhoneNumberID,
		MessageID:   m.ID,
		MessageType: m.Type,
		Timestamp:   millisToTime(unixSecondsToMillis(m.Timestamp)),
		Metadata:    map[string]any{"raw": raw},
	}
	if m.Context != nil {
		ev.ReplyToID = m.Context.ID
	}

	switch m.Type {
	case "text":
		ev.Type = domain.EventText
		if m.Text != nil {
			ev.Content = m.Text.Body
		}
	case "image", "video", "audio", "document", "sticker":
		ev.Type = domain.EventAttachment
		if media := m.mediaFor(m.Type); media != nil {
			ev.Content = media.Caption
			ev.Attachments = []domain.Attachment{{
				Type:     m.Type,
				MediaID:  media.ID,
				MimeType: media.MimeType,
				Filename: media.Filename,
				Caption:  media.Caption,
			}}
		}
	case "location":
		ev.Type = domain.EventAttachment
		ev.Attachments = []domain.Attachment{{Type: "location"}}
		if loc := m.Location; loc != nil {
			ev.Content = firstNonEmpty(loc.Name, loc.Address)
			ev.Metadata["location"] = map[string]any{
				"latitude":  loc.Latitude,
				"longitude": loc.Longitude,
				"name":      loc.Name,
				"address":   loc.Address,
			}
		}
	case "contacts":
		ev.Type = domain.EventAttachment
		ev.Attachments = []domain.Attachment{{Type: "contacts"}}
		ev.Metadata["contacts"] = m.Contacts
	case "interactive":
		ev.Type = domain.EventInteractive
		if m.Interact != nil {
			reply := m.Interact.ButtonReply
			if reply == nil {
				reply = m.Interact.ListReply
			}
			if reply != nil {
				ev.Payload = reply.ID
				ev.Content = reply.Title
			}
			ev.Metadata["interactive_type"] = m.Interact.Type
		}
	case "button":
		ev.Type = domain.EventButton
		if m.Button != nil {
			ev.Payload = m.Button.Payload
			ev.Content = m.Button.Text
		}
	case "reaction":
		ev.Type = domain.EventReaction
		if m.Reaction != nil {
			ev.ReplyToID = m.Reaction.MessageID
			ev.Content = m.Reaction.Emoji
		}
	default:
		ev.Type = domain.EventUnknown
	}
	return ev, nil
}

func (m *waMessage) mediaFor(kind string) *waMedia {
	switch kind {
	case "image":
		return m.Image
	case "video":
		return m.Video
	case "audio":
		return m.Audio
	case "document":
		return m.Document
	case "sticker":
		return m.Sticker
	}
	return nil
}
