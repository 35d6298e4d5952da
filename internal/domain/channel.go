package domain

import "time"

// ChannelType identifies the external messaging network a channel is connected to.
type ChannelType string

const (
	ChannelFacebook  ChannelType = "facebook"
	ChannelInstagram ChannelType = "instagram"
	ChannelWhatsApp  ChannelType = "whatsapp"
	ChannelDiscord   ChannelType = "discord"
)

// ChannelTypes lists every supported channel type.
func ChannelTypes() []ChannelType {
	return []ChannelType{ChannelFacebook, ChannelInstagram, ChannelWhatsApp, ChannelDiscord}
}

// Valid reports whether t is a supported channel type.
func (t ChannelType) Valid() bool {
	switch t {
	case ChannelFacebook, ChannelInstagram, ChannelWhatsApp, ChannelDiscord:
		return true
	}
	return false
}

type ChannelStatus string

const (
	StatusActive   ChannelStatus = "active"
	StatusInactive ChannelStatus = "inactive"
	StatusError    ChannelStatus = "error"
)

// Channel is the stored configuration of a connected account. It is owned by the
// persistence layer; the gateway only reads it.
//
// Credentials is the preferred location for secrets. The top-level credential
// fields are legacy columns still present on older rows.
type Channel struct {
	ID            string            `json:"id"`
	Type          ChannelType       `json:"type"`
	Name          string            `json:"name"`
	Credentials   map[string]string `json:"credentials,omitempty"`
	WebhookSecret string            `json:"webhook_secret,omitempty"`
	Status        ChannelStatus     `json:"status"`

	AccessToken       string `json:"access_token,omitempty"`
	AppSecret         string `json:"app_secret,omitempty"`
	PageID            string `json:"page_id,omitempty"`
	PhoneNumberID     string `json:"phone_number_id,omitempty"`
	BusinessAccountID string `json:"business_account_id,omitempty"`
	BotToken          string `json:"bot_token,omitempty"`
	PublicKey         string `json:"public_key,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Credential returns the nested credential stored under key, or "".
func (c *Channel) Credential(key string) string {
	if c == nil || c.Credentials == nil {
		return ""
	}
	return c.Credentials[key]
}

// CredentialBundle is the provider-shaped view of a channel's secrets.
type CredentialBundle struct {
	AccessToken       string
	AppSecret         string
	VerifyToken       string
	PageID            string
	PhoneNumberID     string
	BusinessAccountID string
	BotToken          string
	PublicKey         string
	ApplicationID     string
}
