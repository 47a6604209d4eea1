package ticket

import "strings"

// IsRenderable reports whether a provider message carries anything to show.
func IsRenderable(pm ProviderMessage) bool {
	return pm.Kind() != KindEmpty
}

// IsRelevant reports whether a message belongs in the visitor's conversation: it is authored by
// the website bot or the support identity, or it mentions or replies to the support identity.
func IsRelevant(pm ProviderMessage, ids Identities) bool {
	if pm.IsFromWebsite || pm.IsFromDiscord {
		return true
	}
	authorID := pm.AuthorID()
	botID := strings.TrimSpace(ids.BotID)
	supportID := strings.TrimSpace(ids.SupportID)
	roleID := strings.TrimSpace(ids.SupportRoleID)

	if authorID != "" && (authorID == botID || authorID == supportID) {
		return true
	}
	if supportID != "" {
		if strings.TrimSpace(pm.ReplyToAuthorID) == supportID {
			return true
		}
		for _, id := range pm.Mentions {
			if strings.TrimSpace(id) == supportID {
				return true
			}
		}
		if strings.Contains(pm.Content, "<@"+supportID+">") || strings.Contains(pm.Content, "<@!"+supportID+">") {
			return true
		}
	}
	if roleID != "" {
		for _, id := range pm.MentionRoles {
			if strings.TrimSpace(id) == roleID {
				return true
			}
		}
	}
	return false
}

// FilterMessages keeps renderable messages and, unless initial is set, only relevant ones.
func FilterMessages(items []ProviderMessage, ids Identities, initial bool) []ProviderMessage {
	out := make([]ProviderMessage, 0, len(items))
	for _, item := range items {
		if !IsRenderable(item) {
			continue
		}
		if !initial && !IsRelevant(item, ids) {
			continue
		}
		out = append(out, item)
	}
	return out
}
