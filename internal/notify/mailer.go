// Package notify sends the ticket confirmation email to the visitor.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	mail "github.com/wneessen/go-mail"

	"github.com/ccdsupport/ticketdesk/internal/config"
	"github.com/ccdsupport/ticketdesk/internal/protocol"
	"github.com/ccdsupport/ticketdesk/internal/ticket"
)

// Sender delivers a composed message.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer implements relay.Notifier over SMTP.
type Mailer struct {
	cfg    config.MailConfig
	sender Sender
	logger *slog.Logger
}

// NewMailer returns nil when mail is not configured.
func NewMailer(log *slog.Logger, cfg config.MailConfig) (*Mailer, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	port := cfg.Port
	if port <= 0 {
		port = config.DefaultMailPort
	}
	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	if port == 465 {
		opts = append(opts, mail.WithSSLPort(false))
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return NewMailerWithSender(log, cfg, client), nil
}

// NewMailerWithSender builds a Mailer around an existing sender.
func NewMailerWithSender(log *slog.Logger, cfg config.MailConfig, sender Sender) *Mailer {
	if log == nil {
		log = slog.Default()
	}
	return &Mailer{
		cfg:    cfg,
		sender: sender,
		logger: log.With(slog.String("component", "notify")),
	}
}

// TicketCreated emails the ticket token to the address on the order.
func (m *Mailer) TicketCreated(ctx context.Context, info protocol.OrderInfo, channelID string) error {
	to := strings.TrimSpace(info.Email)
	if to == "" {
		return nil
	}
	msg, err := m.compose(info)
	if err != nil {
		return err
	}
	if err := m.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	m.logger.Info("ticket confirmation sent", slog.String("channel_id", channelID), slog.String("order", info.OrderNumber))
	return nil
}

func (m *Mailer) compose(info protocol.OrderInfo) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(strings.TrimSpace(info.Email)); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}
	msg.Subject(confirmationSubject(info))
	msg.SetBodyString(mail.TypeTextPlain, confirmationBody(info))
	msg.SetMessageID()
	return msg, nil
}

func confirmationSubject(info protocol.OrderInfo) string {
	return "Your support ticket " + info.OrderNumber
}

func confirmationBody(info protocol.OrderInfo) string {
	var b strings.Builder
	b.WriteString("Thanks for reaching out. Your support ticket is open.\n\n")
	fmt.Fprintf(&b, "Ticket: %s\n", ticket.ChannelName(info.OrderNumber))
	if project := strings.TrimSpace(info.ProjectName); project != "" {
		fmt.Fprintf(&b, "Project: %s\n", project)
	}
	b.WriteString("\nUse the ticket number above to reopen the conversation at any time.\n")
	return b.String()
}
