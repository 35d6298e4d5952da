package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"botgateway/internal/domain"
	"botgateway/internal/signature"
)

const (
	maxGenericElements = 10
	maxTemplateButtons = 3
	maxQuickReplies    = 13
)

// --- Outbound ---

// messengerFormatter renders one message variant into a Send API body.
type messengerFormatter func(to string, body domain.MessageBody, opts domain.SendOptions) (map[string]any, error)

func messengerEnvelope(to string, opts domain.SendOptions) map[string]any {
	msgType := opts.MessagingType
	if msgType == "" {
		msgType = "RESPONSE"
	}
	env := map[string]any{
		"recipient":      map[string]any{"id": to},
		"messaging_type": msgType,
	}
	if opts.Tag != "" {
		env["tag"] = opts.Tag
	}
	return env
}

func withMessage(to string, opts domain.SendOptions, message map[string]any) map[string]any {
	if opts.ReplyToID != "" {
		message["reply_to"] = map[string]any{"mid": opts.ReplyToID}
	}
	env := messengerEnvelope(to, opts)
	env["message"] = message
	return env
}

func formatMessengerText(to string, body domain.MessageBody, opts domain.SendOptions) (map[string]any, error) {
	b, err := bodyAs[domain.TextBody](body)
	if err != nil {
		return nil, err
	}
	if isBlank(b.Text) {
		return nil, errors.New("text message requires text")
	}
	return withMessage(to, opts, map[string]any{"text": b.Text}), nil
}

func messengerAttachmentType(kind domain.MessageType) string {
	if kind == domain.MessageDocument {
		return "file"
	}
	return string(kind)
}

func formatMessengerMedia(to string, body domain.MessageBody, opts domain.SendOptions) (map[string]any, error) {
	b, err := bodyAs[domain.MediaBody](body)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{}
	switch {
	case b.MediaID != "":
		payload["attachment_id"] = b.MediaID
	case b.URL != "":
		payload["url"] = b.URL
		payload["is_reusable"] = true
	default:
		return nil, fmt.Errorf("%s message requires a url or media id", b.Kind)
	}
	return withMessage(to, opts, map[string]any{
		"attachment": map[string]any{
			"type":    messengerAttachmentType(b.Kind),
			"payload": payload,
		},
	}), nil
}

// genericTemplatePayload builds a generic template. The platform accepts at
// most ten elements; extra elements are dropped rather than rejected.
func genericTemplatePayload(elements []domain.TemplateElement) map[string]any {
	if len(elements) > maxGenericElements {
		elements = elements[:maxGenericElements]
	}
	out := make([]map[string]any, 0, len(elements))
	for _, el := range elements {
		e := map[string]any{"title": el.Title}
		if el.Subtitle != "" {
			e["subtitle"] = el.Subtitle
		}
		if el.ImageURL != "" {
			e["image_url"] = el.ImageURL
		}
		if el.DefaultAction != nil {
			e["default_action"] = map[string]any{"type": "web_url", "url": el.DefaultAction.URL}
		}
		if len(el.Buttons) > 0 {
			e["buttons"] = formatButtons(el.Buttons)
		}
		out = append(out, e)
	}
	return map[string]any{
		"template_type": "generic",
		"elements":      out,
	}
}

func formatMessengerTemplate(to string, body domain.MessageBody, opts domain.SendOptions) (map[string]any, error) {
	b, err := bodyAs[domain.TemplateBody](body)
	if err != nil {
		return nil, err
	}
	if len(b.Elements) == 0 {
		return nil, errors.New("template message requires at least one element")
	}
	return withMessage(to, opts, map[string]any{
		"attachment": map[string]any{
			"type":    "template",
			"payload": genericTemplatePayload(b.Elements),
		},
	}), nil
}

func formatMessengerButtons(to string, body domain.MessageBody, opts domain.SendOptions) (map[string]any, error) {
	b, err := bodyAs[domain.ButtonBody](body)
	if err != nil {
		return nil, err
	}
	if len(b.Buttons) == 0 {
		return nil, errors.New("button message requires at least one button")
	}
	buttons := b.Buttons
	if len(buttons) > maxTemplateButtons {
		buttons = buttons[:maxTemplateButtons]
	}
	return withMessage(to, opts, map[string]any{
		"attachment": map[string]any{
			"type": "template",
			"payload": map[string]any{
				"template_type": "button",
				"text":          b.Text,
				"buttons":       formatButtons(buttons),
			},
		},
	}), nil
}

func formatMessengerQuickReplies(to string, body domain.MessageBody, opts domain.SendOptions) (map[string]any, error) {
	b, err := bodyAs[domain.QuickReplyBody](body)
	if err != nil {
		return nil, err
	}
	replies := b.Replies
	if len(replies) > maxQuickReplies {
		replies = replies[:maxQuickReplies]
	}
	qrs := make([]map[string]any, 0, len(replies))
	for _, r := range replies {
		qr := map[string]any{
			"content_type": "text",
			"title":        truncate(r.Title, 20),
			"payload":      r.Payload,
		}
		if r.Payload == "" {
			qr["payload"] = r.Title
		}
		if r.ImageURL != "" {
			qr["image_url"] = r.ImageURL
		}
		qrs = append(qrs, qr)
	}
	return withMessage(to, opts, map[string]any{
		"text":          b.Text,
		"quick_replies": qrs,
	}), nil
}

func formatMessengerReaction(to string, body domain.MessageBody, _ domain.SendOptions) (map[string]any, error) {
	b, err := bodyAs[domain.ReactionBody](body)
	if err != nil {
		return nil, err
	}
	if b.MessageID == "" {
		return nil, errors.New("reaction requires a message id")
	}
	action := "react"
	if b.Emoji == "" {
		action = "unreact"
	}
	return map[string]any{
		"recipient":     map[string]any{"id": to},
		"sender_action": action,
		"payload": map[string]any{
			"message_id": b.MessageID,
			"reaction":   b.Emoji,
		},
	}, nil
}

func formatMessengerTyping(to string, body domain.MessageBody, _ domain.SendOptions) (map[string]any, error) {
	b, err := bodyAs[domain.TypingBody](body)
	if err != nil {
		return nil, err
	}
	action := "typing_off"
	if b.On {
		action = "typing_on"
	}
	return map[string]any{
		"recipient":     map[string]any{"id": to},
		"sender_action": action,
	}, nil
}

// formatButtons maps generic buttons onto the Messenger button types. An
// explicit known type wins; otherwise the populated fields decide.
func formatButtons(buttons []domain.Button) []map[string]any {
	out := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		out = append(out, formatButton(b))
	}
	return out
}

func formatButton(b domain.Button) map[string]any {
	switch b.Type {
	case "web_url":
		return map[string]any{"type": "web_url", "url": b.URL, "title": b.Title}
	case "postback":
		return map[string]any{"type": "postback", "title": b.Title, "payload": b.Payload}
	case "phone_number":
		return map[string]any{"type": "phone_number", "title": b.Title, "payload": firstNonEmpty(b.Phone, b.Payload)}
	case "account_link":
		return map[string]any{"type": "account_link", "url": b.URL}
	case "account_unlink":
		return map[string]any{"type": "account_unlink"}
	}

	switch {
	case b.Phone != "":
		return map[string]any{"type": "phone_number", "title": b.Title, "payload": b.Phone}
	case b.Payload != "":
		return map[string]any{"type": "postback", "title": b.Title, "payload": b.Payload}
	case b.URL != "":
		return map[string]any{"type": "web_url", "url": b.URL, "title": b.Title}
	}
	return map[string]any{"type": "postback", "title": b.Title, "payload": b.Title}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// --- Inbound ---

type messengerPayload struct {
	Object string           `json:"object"`
	Entry  []messengerEntry `json:"entry"`
}

type messengerEntry struct {
	ID        string            `json:"id"`
	Time      int64             `json:"time"`
	Messaging []json.RawMessage `json:"messaging"`
	Standby   []json.RawMessage `json:"standby"`
}

type messengerParty struct {
	ID string `json:"id"`
}

type messagingEvent struct {
	Sender    messengerParty     `json:"sender"`
	Recipient messengerParty     `json:"recipient"`
	Timestamp int64              `json:"timestamp"`
	Message   *messengerMessage  `json:"message"`
	Postback  *messengerPostback `json:"postback"`
	Reaction  *messengerReaction `json:"reaction"`
	Read      *messengerRead     `json:"read"`
	Delivery  *messengerDelivery `json:"delivery"`
	Referral  *messengerReferral `json:"referral"`
}

type messengerMessage struct {
	Mid         string                `json:"mid"`
	Text        string                `json:"text"`
	IsEcho      bool                  `json:"is_echo"`
	QuickReply  *messengerQuickReply  `json:"quick_reply"`
	ReplyTo     *messengerReplyTo     `json:"reply_to"`
	Attachments []messengerAttachment `json:"attachments"`
	Referral    *messengerReferral    `json:"referral"`
}

type messengerQuickReply struct {
	Payload string `json:"payload"`
}

type messengerReplyTo struct {
	Mid string `json:"mid"`
}

type messengerAttachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"payload"`
}

type messengerPostback struct {
	Mid      string             `json:"mid"`
	Title    string             `json:"title"`
	Payload  string             `json:"payload"`
	Referral *messengerReferral `json:"referral"`
}

type messengerReaction struct {
	Mid      string `json:"mid"`
	Action   string `json:"action"`
	Reaction string `json:"reaction"`
	Emoji    string `json:"emoji"`
}

type messengerRead struct {
	Watermark int64  `json:"watermark"`
	Mid       string `json:"mid"`
}

type messengerDelivery struct {
	Mids      []string `json:"mids"`
	Watermark int64    `json:"watermark"`
}

type messengerReferral struct {
	Ref    string `json:"ref"`
	Source string `json:"source"`
	Type   string `json:"type"`
	AdID   string `json:"ad_id"`
}

// statusUpdate is a delivery-state side effect of a sub-event.
type statusUpdate struct {
	messageID string
	status    domain.MessageStatus
	millis    int64
}

// normalized is the outcome of one sub-event: at most one event plus any
// status updates.
type normalized struct {
	event    *domain.InboundEvent
	statuses []statusUpdate
}

// messagingRule matches and normalizes one kind of messaging sub-event. The
// rules are evaluated in order and the first match wins.
type messagingRule struct {
	kind  string
	match func(ev *messagingEvent) bool
	build func(ev *messagingEvent, base domain.InboundEvent) normalized
}

var messagingRules = []messagingRule{
	{
		kind:  "echo",
		match: func(ev *messagingEvent) bool { return ev.Message != nil && ev.Message.IsEcho },
		build: func(*messagingEvent, domain.InboundEvent) normalized { return normalized{} },
	},
	{
		kind:  "postback",
		match: func(ev *messagingEvent) bool { return ev.Postback != nil },
		build: func(ev *messagingEvent, e domain.InboundEvent) normalized {
			e.Type = domain.EventPostback
			e.MessageID = ev.Postback.Mid
			e.Content = ev.Postback.Title
			e.Payload = ev.Postback.Payload
			if r := ev.Postback.Referral; r != nil {
				e.Metadata["referral"] = referralMetadata(r)
			}
			return normalized{event: &e}
		},
	},
	{
		kind:  "reaction",
		match: func(ev *messagingEvent) bool { return ev.Reaction != nil },
		build: func(ev *messagingEvent, e domain.InboundEvent) normalized {
			e.Type = domain.EventReaction
			e.ReplyToID = ev.Reaction.Mid
			e.Content = ev.Reaction.Emoji
			e.Payload = ev.Reaction.Reaction
			e.Metadata["action"] = ev.Reaction.Action
			return normalized{event: &e}
		},
	},
	{
		kind:  "read",
		match: func(ev *messagingEvent) bool { return ev.Read != nil },
		build: func(ev *messagingEvent, _ domain.InboundEvent) normalized {
			// A watermark-only receipt names no message, and the
			// MessageManager updates status by platform message id only.
			if ev.Read.Mid == "" {
				return normalized{}
			}
			ts := ev.Read.Watermark
			if ts == 0 {
				ts = ev.Timestamp
			}
			return normalized{statuses: []statusUpdate{{messageID: ev.Read.Mid, status: domain.MessageRead, millis: ts}}}
		},
	},
	{
		kind:  "delivery",
		match: func(ev *messagingEvent) bool { return ev.Delivery != nil },
		build: func(ev *messagingEvent, _ domain.InboundEvent) normalized {
			ts := ev.Delivery.Watermark
			if ts == 0 {
				ts = ev.Timestamp
			}
			n := normalized{}
			for _, mid := range ev.Delivery.Mids {
				n.statuses = append(n.statuses, statusUpdate{messageID: mid, status: domain.MessageDelivered, millis: ts})
			}
			return n
		},
	},
	{
		kind:  "attachment",
		match: func(ev *messagingEvent) bool { return ev.Message != nil && len(ev.Message.Attachments) > 0 },
		build: func(ev *messagingEvent, e domain.InboundEvent) normalized {
			e.Type = domain.EventAttachment
			e.MessageID = ev.Message.Mid
			e.Content = ev.Message.Text
			for _, a := range ev.Message.Attachments {
				e.Attachments = append(e.Attachments, domain.Attachment{
					Type:    a.Type,
					URL:     a.Payload.URL,
					Caption: a.Payload.Title,
				})
			}
			if ev.Message.ReplyTo != nil {
				e.ReplyToID = ev.Message.ReplyTo.Mid
			}
			return normalized{event: &e}
		},
	},
	{
		kind:  "text",
		match: func(ev *messagingEvent) bool { return ev.Message != nil && ev.Message.Text != "" },
		build: func(ev *messagingEvent, e domain.InboundEvent) normalized {
			e.Type = domain.EventText
			e.MessageID = ev.Message.Mid
			e.Content = ev.Message.Text
			if qr := ev.Message.QuickReply; qr != nil {
				e.Metadata["quick_reply_payload"] = qr.Payload
			}
			if ev.Message.ReplyTo != nil {
				e.ReplyToID = ev.Message.ReplyTo.Mid
			}
			if r := ev.Message.Referral; r != nil {
				e.Metadata["referral"] = referralMetadata(r)
			}
			return normalized{event: &e}
		},
	},
	{
		kind:  "referral",
		match: func(ev *messagingEvent) bool { return ev.Referral != nil },
		build: func(ev *messagingEvent, e domain.InboundEvent) normalized {
			e.Type = domain.EventReferral
			e.Payload = ev.Referral.Ref
			e.Metadata["referral"] = referralMetadata(ev.Referral)
			return normalized{event: &e}
		},
	},
}

func referralMetadata(r *messengerReferral) map[string]string {
	m := map[string]string{"ref": r.Ref, "source": r.Source, "type": r.Type}
	if r.AdID != "" {
		m["ad_id"] = r.AdID
	}
	return m
}

// normalizeMessaging turns one entry.messaging[] element into at most one
// event. It is a pure function of its inputs.
func normalizeMessaging(platform domain.ChannelType, channelID string, raw json.RawMessage) (normalized, string, error) {
	var ev messagingEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return normalized{}, "", fmt.Errorf("decode messaging event: %w", err)
	}

	for _, rule := range messagingRules {
		if !rule.match(&ev) {
			continue
		}
		base := domain.InboundEvent{
			ID:        newEventID(),
			Channel:   platform,
			ChannelID: channelID,
			From:      domain.Sender{ID: ev.Sender.ID},
			To:        ev.Recipient.ID,
			Timestamp: millisToTime(ev.Timestamp),
			Metadata:  map[string]any{"raw": raw},
		}
		return rule.build(&ev, base), rule.kind, nil
	}
	return normalized{}, "unknown", nil
}

// --- Shared provider core ---

// messengerCore is the Graph API dialect shared by Facebook and Instagram.
type messengerCore struct {
	platform   domain.ChannelType
	graph      *graphClient
	store      domain.ChannelStore
	logger     *slog.Logger
	rules      credentialRules
	formatters map[domain.MessageType]messengerFormatter
}

func (c *messengerCore) Type() domain.ChannelType { return c.platform }

func (c *messengerCore) Credentials(ch *domain.Channel) domain.CredentialBundle {
	return c.rules.extract(ch)
}

func (c *messengerCore) Verify(req domain.WebhookRequest, secret string) bool {
	return signature.VerifyHubSignature(req.Body, req.Headers, secret)
}

func (c *messengerCore) HandleChallenge(query url.Values, verifyToken string) (string, bool) {
	return handleHubChallenge(query, verifyToken)
}

// handleHubChallenge answers the Meta subscription handshake. It has no side
// effects.
func handleHubChallenge(query url.Values, verifyToken string) (string, bool) {
	if query == nil || verifyToken == "" {
		return "", false
	}
	if query.Get("hub.mode") != "subscribe" || query.Get("hub.verify_token") != verifyToken {
		return "", false
	}
	return query.Get("hub.challenge"), true
}

func (c *messengerCore) sendTo(ctx context.Context, path, token string, msg domain.OutboundMessage) (domain.SendResult, error) {
	format, ok := c.formatters[msg.Type()]
	if !ok {
		err := &domain.UnsupportedMessageTypeError{Type: msg.Type()}
		return domain.SendResult{Error: err.Error()}, err
	}
	if token == "" {
		err := fmt.Errorf("%s: %w: missing access token", c.platform, domain.ErrInvalidCredentials)
		return domain.SendResult{Error: err.Error()}, err
	}
	if msg.To == "" {
		err := fmt.Errorf("%s: recipient is required", c.platform)
		return domain.SendResult{Error: err.Error()}, err
	}
	payload, err := format(msg.To, msg.Body, msg.Options)
	if err != nil {
		err = fmt.Errorf("%s: format %s: %w", c.platform, msg.Type(), err)
		return domain.SendResult{Error: err.Error()}, err
	}

	var out struct {
		RecipientID string `json:"recipient_id"`
		MessageID   string `json:"message_id"`
	}
	err = c.graph.post(ctx, path, token, payload, &out)
	if err != nil {
		c.logger.Warn("send failed", "provider", c.platform, "type", msg.Type(), "err", err)
	}
	return sendResult(out.MessageID, err)
}

// channelResolver maps an entry id to a local channel id. ok=false skips the
// entry.
type channelResolver func(ctx context.Context, entryID string) (channelID string, ok bool)

// process fans a Messenger-style payload out over entry[].messaging[] and
// entry[].standby[], in array order. One failing sub-event is logged and
// skipped.
func (c *messengerCore) process(ctx context.Context, mgr domain.MessageManager, payload []byte, resolve channelResolver) []domain.InboundEvent {
	var p messengerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("webhook payload rejected", "provider", c.platform, "err", err)
		return nil
	}

	var events []domain.InboundEvent
	for _, entry := range p.Entry {
		channelID, ok := resolve(ctx, entry.ID)
		if !ok {
			continue
		}
		for _, raw := range entry.Messaging {
			if ev := c.handleSubEvent(ctx, mgr, channelID, raw, false); ev != nil {
				events = append(events, *ev)
			}
		}
		for _, raw := range entry.Standby {
			if ev := c.handleSubEvent(ctx, mgr, channelID, raw, true); ev != nil {
				events = append(events, *ev)
			}
		}
	}
	return events
}

func (c *messengerCore) handleSubEvent(ctx context.Context, mgr domain.MessageManager, channelID string, raw json.RawMessage, standby bool) *domain.InboundEvent {
	var out *domain.InboundEvent
	err := guard(c.logger, string(c.platform)+" messaging event", func() error {
		n, kind, err := normalizeMessaging(c.platform, channelID, raw)
		if err != nil {
			return err
		}
		for _, st := range n.statuses {
			if mgr == nil {
				continue
			}
			if err := mgr.UpdateMessageStatus(ctx, st.messageID, st.status, st.millis); err != nil {
				c.logger.Warn("status update failed", "provider", c.platform, "message_id", st.messageID, "err", err)
			}
		}
		if n.event == nil {
			return nil
		}
		ev := n.event
		if standby {
			ev.Metadata["standby_type"] = string(ev.Type)
			ev.Type = domain.EventStandby
		}
		ev.Metadata["event_kind"] = kind
		if mgr != nil {
			if err := mgr.ReceiveMessage(ctx, channelID, *ev); err != nil {
				c.logger.Warn("receive message failed", "provider", c.platform, "channel_id", channelID, "err", err)
			}
		}
		out = ev
		return nil
	})
	if err != nil {
		c.logger.Warn("sub-event skipped", "provider", c.platform, "err", err)
	}
	return out
}

func (c *messengerCore) lookupChannel(ctx context.Context, accountID string) (*domain.Channel, error) {
	if c.store == nil {
		return nil, domain.ErrChannelNotFound
	}
	ch, err := c.store.FindByBusinessAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, domain.ErrChannelNotFound
	}
	return ch, nil
}

func (c *messengerCore) profile(ctx context.Context, token, userID, fields string, out any) error {
	if token == "" {
		return fmt.Errorf("%s: %w: missing access token", c.platform, domain.ErrInvalidCredentials)
	}
	return c.graph.call(ctx, http.MethodGet, "/"+url.PathEscape(userID), token, map[string]string{"fields": fields}, nil, out)
}
