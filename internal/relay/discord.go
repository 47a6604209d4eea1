package relay

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/ccdsupport/ticketdesk/internal/ticket"
)

const discordMaxLength = 2000

// DiscordAPI is the subset of *discordgo.Session the relay calls.
type DiscordAPI interface {
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
}

// OpenSession builds a REST-only session for the bot token. An empty token yields a nil session,
// which leaves the relay unconfigured.
func OpenSession(token string) (*discordgo.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	token = strings.TrimPrefix(token, "Bot ")
	return discordgo.New("Bot " + token)
}

// truncateRunes limits text to max characters, ending it with "..." when cut.
func truncateRunes(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	if max <= 3 {
		return string([]rune(text)[:max])
	}
	return string([]rune(text)[:max-3]) + "..."
}

func truncateDiscordText(text string) string {
	return truncateRunes(text, discordMaxLength)
}

func truncateField(text string, max int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "-"
	}
	return truncateRunes(text, max)
}

// convertMessage maps a discordgo message to the relay wire shape.
func convertMessage(m *discordgo.Message, ids ticket.Identities) ticket.ProviderMessage {
	if m == nil {
		return ticket.ProviderMessage{}
	}
	out := ticket.ProviderMessage{
		ID:           m.ID,
		ChannelID:    m.ChannelID,
		Content:      m.Content,
		MentionRoles: append([]string(nil), m.MentionRoles...),
	}
	if !m.Timestamp.IsZero() {
		out.Timestamp = m.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	if m.Author != nil {
		out.Author = &ticket.ProviderAuthor{
			ID:         m.Author.ID,
			Username:   m.Author.Username,
			GlobalName: m.Author.GlobalName,
			Bot:        m.Author.Bot,
		}
		out.IsFromWebsite = ids.BotID != "" && m.Author.ID == ids.BotID
		out.IsFromDiscord = ids.SupportID != "" && m.Author.ID == ids.SupportID
	}
	for _, att := range m.Attachments {
		if att == nil {
			continue
		}
		out.Attachments = append(out.Attachments, ticket.ProviderAttachment{
			ID:          att.ID,
			Filename:    att.Filename,
			URL:         att.URL,
			ContentType: att.ContentType,
			Size:        int64(att.Size),
		})
	}
	for _, embed := range m.Embeds {
		if embed == nil {
			continue
		}
		pe := ticket.ProviderEmbed{
			Type:        string(embed.Type),
			Title:       embed.Title,
			Description: embed.Description,
		}
		for _, field := range embed.Fields {
			if field == nil {
				continue
			}
			pe.Fields = append(pe.Fields, ticket.EmbedField{Name: field.Name, Value: field.Value})
		}
		out.Embeds = append(out.Embeds, pe)
	}
	for _, mention := range m.Mentions {
		if mention != nil {
			out.Mentions = append(out.Mentions, mention.ID)
		}
	}
	if m.ReferencedMessage != nil && m.ReferencedMessage.Author != nil {
		out.ReplyToAuthorID = m.ReferencedMessage.Author.ID
	}
	return out
}

func convertMessages(items []*discordgo.Message, ids ticket.Identities) []ticket.ProviderMessage {
	out := make([]ticket.ProviderMessage, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, convertMessage(item, ids))
	}
	ticket.SortProviderMessages(out)
	return out
}

func isTicketTextChannel(ch *discordgo.Channel, categoryID string) bool {
	return ch != nil && ch.Type == discordgo.ChannelTypeGuildText && ch.ParentID == categoryID
}

const ticketMemberPermissions = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionReadMessageHistory |
	discordgo.PermissionAttachFiles |
	discordgo.PermissionEmbedLinks

func ticketOverwrites(guildID, supportRoleID, botID string) []*discordgo.PermissionOverwrite {
	overwrites := []*discordgo.PermissionOverwrite{
		{
			ID:   guildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
	}
	if supportRoleID != "" {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    supportRoleID,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: ticketMemberPermissions,
		})
	}
	if botID != "" {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    botID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: ticketMemberPermissions,
		})
	}
	return overwrites
}
