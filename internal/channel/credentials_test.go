package channel

import (
	"testing"

	"botgateway/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestCredentialRules_NestedWinsOverLegacy(t *testing.T) {
	ch := &domain.Channel{
		Credentials: map[string]string{"access_token": "nested", "page_id": "P-nested"},
		AccessToken: "legacy",
		PageID:      "P-legacy",
		AppSecret:   "legacy-secret",
	}
	b := facebookCredentialRules.extract(ch)
	assert.Equal(t, "nested", b.AccessToken)
	assert.Equal(t, "P-nested", b.PageID)
	assert.Equal(t, "legacy-secret", b.AppSecret)
}

func TestCredentialRules_LegacyFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		rules credentialRules
		ch    *domain.Channel
		want  domain.CredentialBundle
	}{
		{
			name:  "facebook page id from business account",
			rules: facebookCredentialRules,
			ch:    &domain.Channel{AccessToken: "t", BusinessAccountID: "B1"},
			want:  domain.CredentialBundle{AccessToken: "t", PageID: "B1"},
		},
		{
			name:  "app secret from webhook secret",
			rules: facebookCredentialRules,
			ch:    &domain.Channel{WebhookSecret: "whs"},
			want:  domain.CredentialBundle{AppSecret: "whs"},
		},
		{
			name:  "page access token alias",
			rules: instagramCredentialRules,
			ch:    &domain.Channel{Credentials: map[string]string{"page_access_token": "pat", "instagram_account_id": "IG9"}},
			want:  domain.CredentialBundle{AccessToken: "pat", BusinessAccountID: "IG9"},
		},
		{
			name:  "whatsapp waba alias",
			rules: whatsappCredentialRules,
			ch:    &domain.Channel{Credentials: map[string]string{"waba_id": "W1"}, PhoneNumberID: "PN"},
			want:  domain.CredentialBundle{BusinessAccountID: "W1", PhoneNumberID: "PN"},
		},
		{
			name:  "discord token falls back to access token",
			rules: discordCredentialRules,
			ch:    &domain.Channel{AccessToken: "bot", Credentials: map[string]string{"client_id": "APP", "guild_id": "G"}},
			want:  domain.CredentialBundle{BotToken: "bot", ApplicationID: "APP", BusinessAccountID: "G"},
		},
		{
			name:  "nil channel",
			rules: whatsappCredentialRules,
			ch:    nil,
			want:  domain.CredentialBundle{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rules.extract(tt.ch))
		})
	}
}

func TestCredentialRules_EmptyNestedValueFallsThrough(t *testing.T) {
	ch := &domain.Channel{
		Credentials: map[string]string{"bot_token": ""},
		BotToken:    "legacy-bot",
	}
	assert.Equal(t, "legacy-bot", discordCredentialRules.extract(ch).BotToken)
}
