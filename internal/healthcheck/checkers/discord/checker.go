package discordchecker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ccdsupport/ticketdesk/internal/healthcheck"
	"github.com/ccdsupport/ticketdesk/internal/protocol"
	"github.com/ccdsupport/ticketdesk/internal/ticket"
)

const (
	checkTypeToken    = "discord.token"
	checkTypeBotUser  = "discord.bot_user"
	checkTypeCategory = "discord.category"
)

// Relay is the part of the relay service the checker inspects.
type Relay interface {
	Configured() bool
	Identities(ctx context.Context) ticket.Identities
	ListCategoryChannels(ctx context.Context, guildID, categoryID string) ([]protocol.ChannelInfo, error)
}

// Checker verifies that the bot token works and the ticket category is reachable.
type Checker struct {
	logger *slog.Logger
	relay  Relay
}

// NewChecker creates a Discord health checker.
func NewChecker(log *slog.Logger, relay Relay) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger: log.With(slog.String("checker", "healthcheck_discord")),
		relay:  relay,
	}
}

// ListChecks evaluates the Discord checks. Without a token only the token check is reported.
func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	if c.relay == nil || !c.relay.Configured() {
		return []healthcheck.CheckResult{{
			ID:      checkTypeToken,
			Type:    checkTypeToken,
			Status:  healthcheck.StatusError,
			Summary: "Discord bot token is not configured.",
		}}
	}
	checks := []healthcheck.CheckResult{{
		ID:      checkTypeToken,
		Type:    checkTypeToken,
		Status:  healthcheck.StatusOK,
		Summary: "Discord bot token is configured.",
	}}

	ids := c.relay.Identities(ctx)
	botUser := healthcheck.CheckResult{
		ID:      checkTypeBotUser,
		Type:    checkTypeBotUser,
		Status:  healthcheck.StatusOK,
		Summary: "Bot user resolved.",
	}
	if ids.BotID == "" {
		botUser.Status = healthcheck.StatusWarn
		botUser.Summary = "Bot user could not be resolved; sent messages may be misclassified."
	} else {
		botUser.Metadata = map[string]any{"bot_id": ids.BotID}
	}
	if ids.SupportID == "" && ids.SupportRoleID == "" {
		botUser.Status = healthcheck.StatusWarn
		botUser.Detail = "no support user or role configured"
	}
	checks = append(checks, botUser)

	category := healthcheck.CheckResult{
		ID:     checkTypeCategory,
		Type:   checkTypeCategory,
		Status: healthcheck.StatusOK,
	}
	channels, err := c.relay.ListCategoryChannels(ctx, "", "")
	if err != nil {
		c.logger.Warn("category check failed", slog.Any("error", err))
		category.Status = healthcheck.StatusError
		category.Summary = "Ticket category is not reachable."
		category.Detail = err.Error()
	} else {
		category.Summary = fmt.Sprintf("Ticket category holds %d channels.", len(channels))
		category.Metadata = map[string]any{"channel_count": len(channels)}
	}
	return append(checks, category)
}
