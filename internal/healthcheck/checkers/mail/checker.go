package mailchecker

import (
	"context"

	"github.com/ccdsupport/ticketdesk/internal/config"
	"github.com/ccdsupport/ticketdesk/internal/healthcheck"
)

const checkTypeMail = "mail.smtp"

// Checker reports whether ticket confirmation emails are configured.
type Checker struct {
	cfg config.MailConfig
}

func NewChecker(cfg config.MailConfig) *Checker {
	return &Checker{cfg: cfg}
}

func (c *Checker) ListChecks(context.Context) []healthcheck.CheckResult {
	if !c.cfg.Enabled() {
		return []healthcheck.CheckResult{{
			ID:      checkTypeMail,
			Type:    checkTypeMail,
			Status:  healthcheck.StatusWarn,
			Summary: "Confirmation emails are disabled.",
		}}
	}
	return []healthcheck.CheckResult{{
		ID:       checkTypeMail,
		Type:     checkTypeMail,
		Status:   healthcheck.StatusOK,
		Summary:  "Confirmation emails are enabled.",
		Metadata: map[string]any{"host": c.cfg.Host, "port": c.cfg.Port},
	}}
}
