package channel

import "botgateway/internal/domain"

// credentialSource reads one candidate value from a channel.
type credentialSource func(ch *domain.Channel) string

// nested reads the first non-empty key of the channel's credentials object.
func nested(keys ...string) credentialSource {
	return func(ch *domain.Channel) string {
		for _, k := range keys {
			if v := ch.Credential(k); v != "" {
				return v
			}
		}
		return ""
	}
}

// legacy reads a top-level channel field.
func legacy(get func(ch *domain.Channel) string) credentialSource {
	return func(ch *domain.Channel) string { return get(ch) }
}

var (
	legacyAccessToken   = legacy(func(ch *domain.Channel) string { return ch.AccessToken })
	legacyAppSecret     = legacy(func(ch *domain.Channel) string { return ch.AppSecret })
	legacyWebhookSecret = legacy(func(ch *domain.Channel) string { return ch.WebhookSecret })
	legacyPageID        = legacy(func(ch *domain.Channel) string { return ch.PageID })
	legacyPhoneNumberID = legacy(func(ch *domain.Channel) string { return ch.PhoneNumberID })
	legacyBusinessID    = legacy(func(ch *domain.Channel) string { return ch.BusinessAccountID })
	legacyBotToken      = legacy(func(ch *domain.Channel) string { return ch.BotToken })
	legacyPublicKey     = legacy(func(ch *domain.Channel) string { return ch.PublicKey })
)

// credentialRule fills one bundle field from an ordered list of sources;
// the first non-empty source wins.
type credentialRule struct {
	field   string
	sources []credentialSource
	assign  func(b *domain.CredentialBundle, v string)
}

type credentialRules []credentialRule

func (rules credentialRules) extract(ch *domain.Channel) domain.CredentialBundle {
	var b domain.CredentialBundle
	if ch == nil {
		return b
	}
	for _, r := range rules {
		for _, src := range r.sources {
			if v := src(ch); v != "" {
				r.assign(&b, v)
				break
			}
		}
	}
	return b
}

func accessTokenRule() credentialRule {
	return credentialRule{
		field:   "access_token",
		sources: []credentialSource{nested("access_token", "page_access_token"), legacyAccessToken},
		assign:  func(b *domain.CredentialBundle, v string) { b.AccessToken = v },
	}
}

func appSecretRule() credentialRule {
	return credentialRule{
		field:   "app_secret",
		sources: []credentialSource{nested("app_secret", "webhook_secret"), legacyAppSecret, legacyWebhookSecret},
		assign:  func(b *domain.CredentialBundle, v string) { b.AppSecret = v },
	}
}

func verifyTokenRule() credentialRule {
	return credentialRule{
		field:   "verify_token",
		sources: []credentialSource{nested("verify_token")},
		assign:  func(b *domain.CredentialBundle, v string) { b.VerifyToken = v },
	}
}

var facebookCredentialRules = credentialRules{
	accessTokenRule(),
	appSecretRule(),
	verifyTokenRule(),
	{
		field:   "page_id",
		sources: []credentialSource{nested("page_id"), legacyPageID, legacyBusinessID},
		assign:  func(b *domain.CredentialBundle, v string) { b.PageID = v },
	},
}

var instagramCredentialRules = credentialRules{
	accessTokenRule(),
	appSecretRule(),
	verifyTokenRule(),
	{
		field:   "business_account_id",
		sources: []credentialSource{nested("business_account_id", "instagram_account_id", "ig_user_id"), legacyBusinessID},
		assign:  func(b *domain.CredentialBundle, v string) { b.BusinessAccountID = v },
	},
	{
		field:   "page_id",
		sources: []credentialSource{nested("page_id"), legacyPageID},
		assign:  func(b *domain.CredentialBundle, v string) { b.PageID = v },
	},
}

var whatsappCredentialRules = credentialRules{
	accessTokenRule(),
	appSecretRule(),
	verifyTokenRule(),
	{
		field:   "phone_number_id",
		sources: []credentialSource{nested("phone_number_id"), legacyPhoneNumberID},
		assign:  func(b *domain.CredentialBundle, v string) { b.PhoneNumberID = v },
	},
	{
		field:   "business_account_id",
		sources: []credentialSource{nested("business_account_id", "waba_id"), legacyBusinessID},
		assign:  func(b *domain.CredentialBundle, v string) { b.BusinessAccountID = v },
	},
}

var discordCredentialRules = credentialRules{
	{
		field:   "bot_token",
		sources: []credentialSource{nested("bot_token", "token"), legacyBotToken, legacyAccessToken},
		assign:  func(b *domain.CredentialBundle, v string) { b.BotToken = v },
	},
	{
		field:   "public_key",
		sources: []credentialSource{nested("public_key"), legacyPublicKey},
		assign:  func(b *domain.CredentialBundle, v string) { b.PublicKey = v },
	},
	{
		field:   "application_id",
		sources: []credentialSource{nested("application_id", "client_id")},
		assign:  func(b *domain.CredentialBundle, v string) { b.ApplicationID = v },
	},
	{
		field:   "guild_id",
		sources: []credentialSource{nested("guild_id"), legacyBusinessID},
		assign:  func(b *domain.CredentialBundle, v string) { b.BusinessAccountID = v },
	},
}
