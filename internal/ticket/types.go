// Package ticket holds the support-ticket chat model shared by the relay and the chat client:
// provider message variants, the presentation record, the channel directory and the
// deduplication ledger.
package ticket

import (
	"strings"
	"time"
)

// Role tags who a rendered message is attributed to.
type Role string

const (
	RoleVisitor Role = "website"
	RoleSupport Role = "support"
	RoleSystem  Role = "system"
)

// String returns the role as a plain string.
func (r Role) String() string {
	return string(r)
}

// Attachment is a file carried by a rendered message.
type Attachment struct {
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
	IsImage     bool   `json:"isImage"`
}

// Message is the presentation-ready chat record delivered to subscribers.
type Message struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channelId,omitempty"`
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	Role        Role         `json:"role"`
	Sender      string       `json:"sender"`
	SenderID    string       `json:"senderId,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Temporary   bool         `json:"temporary,omitempty"`
	Action      string       `json:"action,omitempty"`
	Packages    []Package    `json:"packages,omitempty"`
}

// FirstAttachmentURL returns the URL of the first attachment, or empty string.
func (m Message) FirstAttachmentURL() string {
	if len(m.Attachments) == 0 {
		return ""
	}
	return strings.TrimSpace(m.Attachments[0].URL)
}

// IsEmpty reports whether the message has neither text nor attachments.
func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == "" && len(m.Attachments) == 0
}

// ProviderAuthor is the author block of a relayed provider message.
type ProviderAuthor struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"globalName,omitempty"`
	Bot        bool   `json:"bot,omitempty"`
}

// ProviderAttachment is an attachment as reported by the provider.
type ProviderAttachment struct {
	ID          string `json:"id,omitempty"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
}

// EmbedField is a name/value pair of a structured provider message.
type EmbedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// EmbedTypeRich marks embeds authored by a bot, as opposed to link previews.
const EmbedTypeRich = "rich"

// ProviderEmbed is a structured block attached to a provider message.
type ProviderEmbed struct {
	Type        string       `json:"type,omitempty"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

func (e ProviderEmbed) isRich() bool {
	t := strings.TrimSpace(e.Type)
	return t == "" || t == EmbedTypeRich
}

func (e ProviderEmbed) hasContent() bool {
	return strings.TrimSpace(e.Title) != "" || strings.TrimSpace(e.Description) != "" || len(e.Fields) > 0
}

// ProviderMessage is the relay wire shape of one provider message.
// Timestamp is kept as text so a malformed value cannot fail a whole batch decode.
type ProviderMessage struct {
	ID              string               `json:"id"`
	ChannelID       string               `json:"channelId,omitempty"`
	Content         string               `json:"content"`
	Timestamp       string               `json:"timestamp,omitempty"`
	Author          *ProviderAuthor      `json:"author,omitempty"`
	Attachments     []ProviderAttachment `json:"attachments,omitempty"`
	Embeds          []ProviderEmbed      `json:"embeds,omitempty"`
	Mentions        []string             `json:"mentions,omitempty"`
	MentionRoles    []string             `json:"mentionRoles,omitempty"`
	ReplyToAuthorID string               `json:"replyToAuthorId,omitempty"`
	IsFromWebsite   bool                 `json:"isFromWebsite,omitempty"`
	IsFromDiscord   bool                 `json:"isFromDiscord,omitempty"`
}

// AuthorID returns the author identity or empty string when the author block is missing.
func (m ProviderMessage) AuthorID() string {
	if m.Author == nil {
		return ""
	}
	return strings.TrimSpace(m.Author.ID)
}

// Kind classifies the shape of a provider message.
type Kind int

const (
	KindEmpty Kind = iota
	KindText
	KindAttachment
	KindMixed
	KindSystem
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindAttachment:
		return "attachment"
	case KindMixed:
		return "mixed"
	case KindSystem:
		return "system"
	default:
		return "empty"
	}
}

// Kind returns the variant of the message. A bot-authored message carrying a rich embed and no
// files is a system notice; otherwise the variant follows text and attachment presence.
func (m ProviderMessage) Kind() Kind {
	hasText := strings.TrimSpace(m.Content) != ""
	hasFiles := len(m.Attachments) > 0
	if !hasFiles && m.Author != nil && m.Author.Bot {
		for _, embed := range m.Embeds {
			if embed.isRich() && embed.hasContent() {
				return KindSystem
			}
		}
	}
	switch {
	case hasText && hasFiles:
		return KindMixed
	case hasFiles:
		return KindAttachment
	case hasText:
		return KindText
	default:
		return KindEmpty
	}
}

// Identities are the provider identities the formatter and relevance filter classify against.
type Identities struct {
	BotID         string
	SupportID     string
	SupportRoleID string
	SupportName   string
}
