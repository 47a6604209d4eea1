package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/ccdsupport/ticketdesk/internal/client"
	"github.com/ccdsupport/ticketdesk/internal/config"
	"github.com/ccdsupport/ticketdesk/internal/logger"
	"github.com/ccdsupport/ticketdesk/internal/packages"
	"github.com/ccdsupport/ticketdesk/internal/storage/providers/localfs"
	"github.com/ccdsupport/ticketdesk/internal/ticket"
)

var chatCmd = &cobra.Command{
	Use:   "chat <ticket>",
	Short: "Join a ticket conversation from the terminal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runChat(ctx, cfg, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func newClientSession(cfg config.Config) (*client.Session, error) {
	provider, err := localfs.New(cfg.Client.StateDir)
	if err != nil {
		return nil, err
	}
	relay := client.NewHTTPRelay(logger.L, cfg.Client.RelayURL, cfg.Client.RequestTimeout())
	return client.NewSession(logger.L, relay, client.Options{
		Identities: ticket.Identities{
			BotID:       cfg.Client.BotUserID,
			SupportID:   cfg.Client.SupportUserID,
			SupportName: cfg.Client.SupportName,
		},
		PollInterval:   cfg.Client.PollInterval(),
		RequestTimeout: cfg.Client.RequestTimeout(),
		Packages:       packages.NewStore(provider),
	}), nil
}

func runChat(ctx context.Context, cfg config.Config, token string, in io.Reader, out io.Writer) error {
	session, err := newClientSession(cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	res, err := session.ValidateChannel(ctx, token)
	if err != nil {
		return fmt.Errorf("validate ticket: %w", err)
	}
	if !res.Valid {
		return fmt.Errorf("ticket %q: %w", token, ticket.ErrChannelNotFound)
	}
	p := &printer{out: out}
	if pkg, ok, err := session.SelectedPackage(ctx, token); err == nil && ok {
		p.linef("* package: %s (%s)", pkg.Name, pkg.Price)
	}
	session.Subscribe(token, p.message)
	p.linef("* connected to %s, type /quit to leave", ticket.ChannelName(token))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleChatLine(ctx, session, token, strings.TrimSpace(line), p); quit {
				return nil
			}
		}
	}
}

func handleChatLine(ctx context.Context, session *client.Session, token, line string, p *printer) bool {
	switch {
	case line == "":
		return false
	case line == "/quit":
		return true
	case strings.HasPrefix(line, "/upload "):
		files, err := readUploadFiles(strings.Fields(strings.TrimPrefix(line, "/upload ")))
		if err != nil {
			p.linef("! %v", err)
			return false
		}
		msgs, err := session.UploadFiles(ctx, token, files)
		var upErr *client.UploadError
		if errors.As(err, &upErr) {
			msgs = upErr.Succeeded
		}
		for _, msg := range msgs {
			p.message(msg)
		}
		if err != nil {
			p.linef("! %v", err)
		}
	case strings.HasPrefix(line, "/package "):
		pkg, err := session.SelectPackage(ctx, token, strings.TrimSpace(strings.TrimPrefix(line, "/package ")))
		if err != nil {
			p.linef("! %v", err)
			return false
		}
		p.linef("* package set to %s", pkg.Name)
	default:
		msg, err := session.SendMessage(ctx, token, line)
		if err != nil {
			p.linef("! message not sent: %v", err)
			return false
		}
		p.message(msg)
	}
	return false
}

func readUploadFiles(paths []string) ([]client.UploadFile, error) {
	files := make([]client.UploadFile, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		data, err := ticket.ReadAllWithLimit(f, ticket.MaxUploadBytes)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		files = append(files, client.UploadFile{
			Name:        filepath.Base(path),
			ContentType: ticket.NormalizeContentType(mimetype.Detect(data).String()),
			Data:        data,
		})
	}
	return files, nil
}

type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) linef(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) message(msg ticket.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stamp := msg.Timestamp.Local().Format("15:04")
	if msg.Content != "" {
		fmt.Fprintf(p.out, "[%s] %s: %s\n", stamp, msg.Sender, msg.Content)
	} else {
		fmt.Fprintf(p.out, "[%s] %s:\n", stamp, msg.Sender)
	}
	for _, field := range msg.Fields {
		fmt.Fprintf(p.out, "    %s: %s\n", field.Name, field.Value)
	}
	for _, att := range msg.Attachments {
		fmt.Fprintf(p.out, "    [file] %s %s\n", att.Filename, att.URL)
	}
	for _, pkg := range msg.Packages {
		fmt.Fprintf(p.out, "    /package %s  %s %s\n", pkg.ID, pkg.Name, pkg.Price)
	}
}
