package ticket

import (
	"path"
	"strings"
	"time"
)

const (
	VisitorLabel        = "You"
	GenericSupportLabel = "Support Team"
	SystemLabel         = "System"
	defaultSupportLabel = "CCD Support"
)

var imageContentTypes = []string{
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/gif",
	"image/webp",
}

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// Formatter turns provider messages into presentation records. It is pure.
type Formatter struct {
	ids Identities
}

func NewFormatter(ids Identities) *Formatter {
	if strings.TrimSpace(ids.SupportName) == "" {
		ids.SupportName = defaultSupportLabel
	}
	return &Formatter{ids: ids}
}

// Identities returns the identities this formatter classifies against.
func (f *Formatter) Identities() Identities {
	return f.ids
}

// Format converts one provider message. Missing fields fall back to safe defaults.
func (f *Formatter) Format(pm ProviderMessage) Message {
	msg := Message{
		ID:          strings.TrimSpace(pm.ID),
		ChannelID:   strings.TrimSpace(pm.ChannelID),
		Content:     pm.Content,
		Timestamp:   parseTimestamp(pm.Timestamp),
		SenderID:    pm.AuthorID(),
		Attachments: formatAttachments(pm.Attachments),
	}

	if pm.Kind() == KindSystem {
		msg.Role = RoleSystem
		msg.Sender = SystemLabel
		msg.Content, msg.Fields = renderEmbeds(pm.Content, pm.Embeds)
		return msg
	}

	msg.Role, msg.Sender = f.classify(pm)
	return msg
}

// FormatAll formats a batch, preserving order.
func (f *Formatter) FormatAll(items []ProviderMessage) []Message {
	out := make([]Message, 0, len(items))
	for _, item := range items {
		out = append(out, f.Format(item))
	}
	return out
}

func (f *Formatter) classify(pm ProviderMessage) (Role, string) {
	authorID := pm.AuthorID()
	if pm.IsFromWebsite || (authorID != "" && authorID == strings.TrimSpace(f.ids.BotID)) {
		return RoleVisitor, VisitorLabel
	}
	if pm.IsFromDiscord || (authorID != "" && authorID == strings.TrimSpace(f.ids.SupportID)) {
		return RoleSupport, f.ids.SupportName
	}
	return RoleSupport, GenericSupportLabel
}

func formatAttachments(items []ProviderAttachment) []Attachment {
	if len(items) == 0 {
		return nil
	}
	out := make([]Attachment, 0, len(items))
	for _, item := range items {
		out = append(out, Attachment{
			Filename:    item.Filename,
			URL:         item.URL,
			ContentType: item.ContentType,
			Size:        item.Size,
			IsImage:     IsImageAttachment(item.ContentType, item.Filename),
		})
	}
	return out
}

// IsImageAttachment matches the content type against the image allow-list and falls back to
// the filename extension when no content type is known.
func IsImageAttachment(contentType, filename string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct != "" {
		for _, prefix := range imageContentTypes {
			if strings.HasPrefix(ct, prefix) {
				return true
			}
		}
		return false
	}
	_, ok := imageExtensions[strings.ToLower(path.Ext(strings.TrimSpace(filename)))]
	return ok
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Unix(0, 0).UTC()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Unix(0, 0).UTC()
}

func renderEmbeds(content string, embeds []ProviderEmbed) (string, []EmbedField) {
	var lines []string
	var fields []EmbedField
	for _, embed := range embeds {
		if !embed.isRich() {
			continue
		}
		if title := strings.TrimSpace(embed.Title); title != "" {
			lines = append(lines, title)
		}
		if desc := strings.TrimSpace(embed.Description); desc != "" {
			lines = append(lines, desc)
		}
		for _, field := range embed.Fields {
			name := strings.TrimSpace(field.Name)
			value := strings.TrimSpace(field.Value)
			if name == "" && value == "" {
				continue
			}
			fields = append(fields, EmbedField{Name: name, Value: value})
			lines = append(lines, name+": "+value)
		}
	}
	if len(lines) == 0 {
		return strings.TrimSpace(content), fields
	}
	return strings.Join(lines, "\n"), fields
}
