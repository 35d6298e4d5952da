package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"botgateway/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fbChannel() *domain.Channel {
	return &domain.Channel{
		ID:          "ch-fb",
		Type:        domain.ChannelFacebook,
		Credentials: map[string]string{"access_token": "page-token", "page_id": "PAGE1"},
	}
}

func TestHandleChallenge(t *testing.T) {
	q := func(mode, token, challenge string) url.Values {
		return url.Values{"hub.mode": {mode}, "hub.verify_token": {token}, "hub.challenge": {challenge}}
	}
	tests := []struct {
		name     string
		query    url.Values
		expected string
		want     string
		ok       bool
	}{
		{"match", q("subscribe", "t", "c"), "t", "c", true},
		{"wrong token", q("subscribe", "t", "c"), "x", "", false},
		{"wrong mode", q("unsubscribe", "t", "c"), "t", "", false},
		{"case sensitive token", q("subscribe", "T", "c"), "t", "", false},
		{"empty expected", q("subscribe", "", "c"), "", "", false},
		{"nil query", nil, "t", "", false},
	}
	fb := NewFacebook(MetaConfig{Logger: testLogger()})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := fb.HandleChallenge(tt.query, tt.expected)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)

			again, _ := fb.HandleChallenge(tt.query, tt.expected)
			assert.Equal(t, got, again)
		})
	}
}

func TestFormatButtons(t *testing.T) {
	tests := []struct {
		name string
		in   domain.Button
		want map[string]any
	}{
		{"payload implies postback", domain.Button{Title: "Yes", Payload: "YES"},
			map[string]any{"type": "postback", "title": "Yes", "payload": "YES"}},
		{"url implies web_url", domain.Button{Title: "Site", URL: "https://example.com"},
			map[string]any{"type": "web_url", "title": "Site", "url": "https://example.com"}},
		{"phone implies phone_number", domain.Button{Title: "Call", Phone: "+15550100"},
			map[string]any{"type": "phone_number", "title": "Call", "payload": "+15550100"}},
		{"explicit type wins", domain.Button{Type: "web_url", Title: "Go", URL: "https://x.test", Payload: "P"},
			map[string]any{"type": "web_url", "title": "Go", "url": "https://x.test"}},
		{"account link", domain.Button{Type: "account_link", URL: "https://login.test"},
			map[string]any{"type": "account_link", "url": "https://login.test"}},
		{"account unlink", domain.Button{Type: "account_unlink"},
			map[string]any{"type": "account_unlink"}},
		{"bare title", domain.Button{Title: "Hi"},
			map[string]any{"type": "postback", "title": "Hi", "payload": "Hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatButtons([]domain.Button{tt.in})
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestSendGenericTemplate_TruncatesToTen(t *testing.T) {
	srv := newGraphServer(t, http.StatusOK, `{"recipient_id":"U1","message_id":"mid.1"}`)
	fb := NewFacebook(MetaConfig{Graph: graphConfig(srv.URL), Logger: testLogger()})

	elements := make([]domain.TemplateElement, 15)
	for i := range elements {
		elements[i] = domain.TemplateElement{Title: fmt.Sprintf("item %d", i)}
	}
	res, err := fb.SendGenericTemplate(context.Background(), fbChannel(), "U1", elements)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "mid.1", res.MessageID)

	req := srv.last()
	assert.Equal(t, "/v18.0/PAGE1/messages", req.Path)
	assert.Equal(t, "Bearer page-token", req.Auth)
	payload := req.Body["message"].(map[string]any)["attachment"].(map[string]any)["payload"].(map[string]any)
	assert.Equal(t, "generic", payload["template_type"])
	assert.Len(t, payload["elements"], 10)
}

func TestFacebookSend_Text(t *testing.T) {
	srv := newGraphServer(t, http.StatusOK, `{"message_id":"mid.2"}`)
	fb := NewFacebook(MetaConfig{Graph: graphConfig(srv.URL), Logger: testLogger()})

	res, err := fb.Send(context.Background(), fbChannel(), domain.OutboundMessage{
		To:      "U1",
		Body:    domain.TextBody{Text: "hello"},
		Options: domain.SendOptions{ReplyToID: "mid.0"},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)

	body := srv.last().Body
	assert.Equal(t, "RESPONSE", body["messaging_type"])
	assert.Equal(t, map[string]any{"id": "U1"}, body["recipient"])
	msg := body["message"].(map[string]any)
	assert.Equal(t, "hello", msg["text"])
	assert.Equal(t, map[string]any{"mid": "mid.0"}, msg["reply_to"])
}

func TestFacebookSend_QuickRepliesCapped(t *testing.T) {
	srv := newGraphServer(t, http.StatusOK, `{"message_id":"mid.3"}`)
	fb := NewFacebook(MetaConfig{Graph: graphConfig(srv.URL), Logger: testLogger()})

	replies := make([]domain.QuickReply, 20)
	for i := range replies {
		replies[i] = domain.QuickReply{Title: fmt.Sprintf("r%d", i)}
	}
	_, err := fb.Send(context.Background(), fbChannel(), domain.OutboundMessage{
		To:   "U1",
		Body: domain.QuickReplyBody{Text: "pick", Replies: replies},
	})
	require.NoError(t, err)
	assert.Len(t, srv.last().Body["message"].(map[string]any)["quick_replies"], maxQuickReplies)
}

func TestFacebookSend_Reaction(t *testing.T) {
	srv := newGraphServer(t, http.StatusOK, `{}`)
	fb := NewFacebook(MetaConfig{Graph: graphConfig(srv.URL), Logger: testLogger()})

	_, err := fb.Send(context.Background(), fbChannel(), domain.OutboundMessage{
		To:   "U1",
		Body: domain.ReactionBody{MessageID: "mid.9", Emoji: "love"},
	})
	require.NoError(t, err)
	body := srv.last().Body
	assert.Equal(t, "react", body["sender_action"])
	assert.Equal(t, map[string]any{"message_id": "mid.9", "reaction": "love"}, body["payload"])
}

func TestFacebookSend_PlatformRejection(t *testing.T) {
	srv := newGraphServer(t, http.StatusBadRequest,
		`{"error":{"message":"(#100) No matching user found","type":"OAuthException","code":100,"fbtrace_id":"abc"}}`)
	fb := NewFacebook(MetaConfig{Graph: graphConfig(srv.URL), Logger: testLogger()})

	res, err := fb.Send(context.Background(), fbChannel(), domain.OutboundMessage{To: "U1", Body: domain.TextBody{Text: "hi"}})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "(#100) No matching user found", res.Error)
}

func TestFacebookSend_Unsupported(t *testing.T) {
	fb := NewFacebook(MetaConfig{Logger: testLogger()})
	res, err := fb.Send(context.Background(), fbChannel(), domain.OutboundMessage{To: "U1", Body: domain.EmbedBody{Title: "x"}})
	require.ErrorIs(t, err, domain.ErrUnsupportedMessageType)
	assert.False(t, res.Success)

	var typed *domain.UnsupportedMessageTypeError
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, domain.MessageEmbed, typed.Type)
}

func TestFacebookSend_MediaWithTextKindRejected(t *testing.T) {
	fb := NewFacebook(MetaConfig{Logger: testLogger()})
	res, err := fb.Send(context.Background(), fbChannel(), domain.OutboundMessage{
		To:   "U1",
		Body: domain.MediaBody{Kind: domain.MessageText, URL: "https://x/a.png"},
	})
	require.ErrorIs(t, err, domain.ErrUnsupportedMessageType)
	assert.False(t, res.Success)
}

func TestMessengerFormatters_WrongBody(t *testing.T) {
	tests := []struct {
		name   string
		format messengerFormatter
	}{
		{"text", formatMessengerText},
		{"media", formatMessengerMedia},
		{"template", formatMessengerTemplate},
		{"buttons", formatMessengerButtons},
		{"quick replies", formatMessengerQuickReplies},
		{"reaction", formatMessengerReaction},
		{"typing", formatMessengerTyping},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.format("U1", domain.LocationBody{}, domain.SendOptions{})
			assert.ErrorIs(t, err, domain.ErrUnsupportedMessageType)
		})
	}
}

func TestFacebookSend_MissingToken(t *testing.T) {
	fb := NewFacebook(MetaConfig{Logger: testLogger()})
	_, err := fb.Send(context.Background(), &domain.Channel{Type: domain.ChannelFacebook},
		domain.OutboundMessage{To: "U1", Body: domain.TextBody{Text: "hi"}})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestFacebookSend_NetworkFailure(t *testing.T) {
	srv := newGraphServer(t, http.StatusOK, `{}`)
	base := srv.URL
	srv.Close()
	fb := NewFacebook(MetaConfig{Graph: graphConfig(base), Logger: testLogger()})

	res, err := fb.Send(context.Background(), fbChannel(), domain.OutboundMessage{To: "U1", Body: domain.TextBody{Text: "hi"}})
	var netErr *domain.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.False(t, res.Success)
}

func TestFacebookInitialize(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		srv := newGraphServer(t, http.StatusOK, `{"id":"PAGE1","name":"Shop"}`)
		fb := NewFacebook(MetaConfig{Graph: graphConfig(srv.URL), Logger: testLogger()})
		ok, err := fb.Initialize(context.Background(), fbChannel())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "/v18.0/me", srv.last().Path)
	})
	t.Run("rejected token returns false without error", func(t *testing.T) {
		srv := newGraphServer(t, http.StatusUnauthorized, `{"error":{"message":"Invalid OAuth access token","code":190}}`)
		fb := NewFacebook(MetaConfig{Graph: graphConfig(srv.URL), Logger: testLogger()})
		ok, err := fb.Initialize(context.Background(), fbChannel())
		require.NoError(t, err)
		assert.False(t, ok)
	})
	t.Run("missing token", func(t *testing.T) {
		fb := NewFacebook(MetaConfig{Logger: testLogger()})
		ok, err := fb.Initialize(context.Background(), &domain.Channel{})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestFacebookUserProfile(t *testing.T) {
	srv := newGraphServer(t, http.StatusOK, `{"id":"U1","first_name":"Ada","last_name":"Lovelace","profile_pic":"https://img.test/a.png"}`)
	fb := NewFacebook(MetaConfig{Graph: graphConfig(srv.URL), Logger: testLogger()})

	p, err := fb.UserProfile(context.Background(), fbChannel(), "U1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", p.DisplayName)
	assert.Equal(t, "https://img.test/a.png", p.AvatarURL)
	assert.Contains(t, srv.last().Query, "fields=first_name%2Clast_name%2Cprofile_pic")
}

func messengerWebhook(pageID string, events ...string) []byte {
	body := `{"object":"page","entry":[{"id":"` + pageID + `","time":1700000000000,"messaging":[`
	for i, ev := range events {
		if i > 0 {
			body += ","
		}
		body += ev
	}
	return []byte(body + `]}]}`)
}

const fbParties = `"sender":{"id":"U1"},"recipient":{"id":"PAGE1"},"timestamp":1700000000000`

func TestFacebookProcessWebhook_EchoProducesNothing(t *testing.T) {
	fb := NewFacebook(MetaConfig{Logger: testLogger()})
	mgr := &recordingManager{}

	events := fb.ProcessWebhook(context.Background(), mgr,
		messengerWebhook("PAGE1", `{`+fbParties+`,"message":{"mid":"m1","text":"sent by page","is_echo":true}}`), nil)

	assert.Empty(t, events)
	assert.Empty(t, mgr.order)
}

func TestFacebookProcessWebhook_Classification(t *testing.T) {
	tests := []struct {
		name  string
		event string
		want  domain.EventType
	}{
		{"postback beats message", `{` + fbParties + `,"postback":{"title":"Start","payload":"GET_STARTED"},"message":{"mid":"m1","text":"x"}}`, domain.EventPostback},
		{"reaction", `{` + fbParties + `,"reaction":{"mid":"m1","action":"react","reaction":"love","emoji":"❤"}}`, domain.EventReaction},
		{"attachments beat text", `{` + fbParties + `,"message":{"mid":"m2","text":"look","attachments":[{"type":"image","payload":{"url":"https://cdn.test/i.jpg"}}]}}`, domain.EventAttachment},
		{"text", `{` + fbParties + `,"message":{"mid":"m3","text":"hello"}}`, domain.EventText},
		{"referral", `{` + fbParties + `,"referral":{"ref":"promo","source":"SHORTLINK","type":"OPEN_THREAD"}}`, domain.EventReferral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := NewFacebook(MetaConfig{Logger: testLogger()})
			mgr := &recordingManager{}
			events := fb.ProcessWebhook(context.Background(), mgr, messengerWebhook("PAGE1", tt.event), nil)
			require.Len(t, events, 1)
			assert.Equal(t, tt.want, events[0].Type)
			assert.Equal(t, "U1", events[0].From.ID)
			assert.Equal(t, "PAGE1", events[0].ChannelID)
			assert.NotNil(t, events[0].Metadata["raw"])
			require.Len(t, mgr.received, 1)
			assert.Empty(t, mgr.statuses)
		})
	}
}

func TestFacebookProcessWebhook_DeliveryUpdatesEveryMid(t *testing.T) {
	fb := NewFacebook(MetaConfig{Logger: testLogger()})
	mgr := &recordingManager{}

	events := fb.ProcessWebhook(context.Background(), mgr,
		messengerWebhook("PAGE1", `{`+fbParties+`,"delivery":{"mids":["m1","m2"],"watermark":1700000000500}}`), nil)

	assert.Empty(t, events)
	assert.Empty(t, mgr.received)
	assert.Equal(t, []statusCall{
		{"m1", domain.MessageDelivered, 1700000000500},
		{"m2", domain.MessageDelivered, 1700000000500},
	}, mgr.statuses)
}

func TestFacebookProcessWebhook_Read(t *testing.T) {
	fb := NewFacebook(MetaConfig{Logger: testLogger()})
	mgr := &recordingManager{}

	events := fb.ProcessWebhook(context.Background(), mgr, messengerWebhook("PAGE1",
		`{`+fbParties+`,"read":{"watermark":1700000000900}}`,
		`{`+fbParties+`,"read":{"watermark":1700000000900,"mid":"m7"}}`,
	), nil)

	assert.Empty(t, events)
	assert.Empty(t, mgr.received)
	assert.Equal(t, []statusCall{{"m7", domain.MessageRead, 1700000000900}}, mgr.statuses)
}

func TestFacebookProcessWebhook_QuickReplyIsText(t *testing.T) {
	fb := NewFacebook(MetaConfig{Logger: testLogger()})
	events := fb.ProcessWebhook(context.Background(), nil, messengerWebhook("PAGE1",
		`{`+fbParties+`,"message":{"mid":"m1","text":"Red","quick_reply":{"payload":"COLOR_RED"}}}`), nil)

	require.Len(t, events, 1)
	assert.Equal(t, domain.EventText, events[0].Type)
	assert.Equal(t, "Red", events[0].Content)
	assert.Equal(t, "COLOR_RED", events[0].Metadata["quick_reply_payload"])
	assert.Equal(t, "COLOR_RED", events[0].PayloadID())
}

func TestFacebookProcessWebhook_BadSubEventIsolated(t *testing.T) {
	fb := NewFacebook(MetaConfig{Logger: testLogger()})
	mgr := &recordingManager{}

	events := fb.ProcessWebhook(context.Background(), mgr, messengerWebhook("PAGE1",
		`"not an object"`,
		`{`+fbParties+`,"message":{"mid":"m1","text":"first"}}`,
		`{`+fbParties+`,"message":{"mid":"m2","text":"second"}}`,
	), nil)

	require.Len(t, events, 2)
	assert.Equal(t, []string{"receive:m1", "receive:m2"}, mgr.order)
}

func TestFacebookProcessWebhook_Standby(t *testing.T) {
	fb := NewFacebook(MetaConfig{Logger: testLogger()})
	payload := []byte(`{"object":"page","entry":[{"id":"PAGE1","standby":[{` + fbParties + `,"message":{"mid":"m1","text":"to other app"}}]}]}`)

	events := fb.ProcessWebhook(context.Background(), nil, payload, nil)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventStandby, events[0].Type)
	assert.Equal(t, "text", events[0].Metadata["standby_type"])
}

func TestFacebookProcessWebhook_ResolvesChannelFromStore(t *testing.T) {
	store := mapStore{"PAGE1": {ID: "local-7", Type: domain.ChannelFacebook}}
	fb := NewFacebook(MetaConfig{Store: store, Logger: testLogger()})
	mgr := &recordingManager{}

	events := fb.ProcessWebhook(context.Background(), mgr,
		messengerWebhook("PAGE1", `{`+fbParties+`,"message":{"mid":"m1","text":"hi"}}`), nil)
	require.Len(t, events, 1)
	assert.Equal(t, "local-7", events[0].ChannelID)
}

func TestFacebookProcessWebhook_Garbage(t *testing.T) {
	fb := NewFacebook(MetaConfig{Logger: testLogger()})
	assert.Empty(t, fb.ProcessWebhook(context.Background(), &recordingManager{}, []byte("{nope"), nil))
}

func TestInstagramProcessWebhook_StoreLookup(t *testing.T) {
	store := mapStore{"IG1": {ID: "ig-local", Type: domain.ChannelInstagram}}
	ig := NewInstagram(MetaConfig{Store: store, Logger: testLogger()})
	mgr := &recordingManager{}

	payload := []byte(`{"object":"instagram","entry":[
		{"id":"IG1","messaging":[{"sender":{"id":"S1"},"recipient":{"id":"IG1"},"timestamp":1,"message":{"mid":"a","text":"hi"}}]},
		{"id":"IG-UNKNOWN","messaging":[{"sender":{"id":"S2"},"recipient":{"id":"IG-UNKNOWN"},"timestamp":1,"message":{"mid":"b","text":"lost"}}]}
	]}`)
	events := ig.ProcessWebhook(context.Background(), mgr, payload, nil)

	require.Len(t, events, 1)
	assert.Equal(t, "ig-local", events[0].ChannelID)
	assert.Equal(t, domain.ChannelInstagram, events[0].Channel)
	assert.Equal(t, []string{"receive:a"}, mgr.order)
}

func TestInstagramProcessWebhook_NoStoreUsesEntryID(t *testing.T) {
	ig := NewInstagram(MetaConfig{Logger: testLogger()})
	payload := []byte(`{"object":"instagram","entry":[{"id":"IG1","messaging":[{"sender":{"id":"S1"},"recipient":{"id":"IG1"},"timestamp":1,"message":{"mid":"a","text":"hi"}}]}]}`)

	events := ig.ProcessWebhook(context.Background(), nil, payload, nil)
	require.Len(t, events, 1)
	assert.Equal(t, "IG1", events[0].ChannelID)
}

func TestInstagramSend(t *testing.T) {
	srv := newGraphServer(t, http.StatusOK, `{"message_id":"ig.mid"}`)
	ig := NewInstagram(MetaConfig{Graph: graphConfig(srv.URL), Logger: testLogger()})
	ch := &domain.Channel{Type: domain.ChannelInstagram, AccessToken: "legacy-token", BusinessAccountID: "IG1"}

	res, err := ig.Send(context.Background(), ch, domain.OutboundMessage{To: "S1", Body: domain.TextBody{Text: "hi"}})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "/v18.0/IG1/messages", srv.last().Path)
	assert.Equal(t, "Bearer legacy-token", srv.last().Auth)

	_, err = ig.Send(context.Background(), ch, domain.OutboundMessage{To: "S1", Body: domain.ButtonBody{Text: "x", Buttons: []domain.Button{{Title: "a"}}}})
	assert.ErrorIs(t, err, domain.ErrUnsupportedMessageType)
	assert.False(t, ig.Capabilities().Allows(domain.MessageButton))
}

func TestInstagramInitialize_Rejected(t *testing.T) {
	srv := newGraphServer(t, http.StatusBadRequest, `{"error":{"message":"Invalid OAuth access token","code":190}}`)
	ig := NewInstagram(MetaConfig{Graph: graphConfig(srv.URL), Logger: testLogger()})

	ok, err := ig.Initialize(context.Background(), &domain.Channel{AccessToken: "t", BusinessAccountID: "IG1"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "/v18.0/IG1", srv.last().Path)
}
