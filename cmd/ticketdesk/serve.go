package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/ccdsupport/ticketdesk/internal/config"
	"github.com/ccdsupport/ticketdesk/internal/handlers"
	"github.com/ccdsupport/ticketdesk/internal/healthcheck"
	discordchecker "github.com/ccdsupport/ticketdesk/internal/healthcheck/checkers/discord"
	mailchecker "github.com/ccdsupport/ticketdesk/internal/healthcheck/checkers/mail"
	"github.com/ccdsupport/ticketdesk/internal/logger"
	"github.com/ccdsupport/ticketdesk/internal/notify"
	"github.com/ccdsupport/ticketdesk/internal/relay"
	"github.com/ccdsupport/ticketdesk/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		runServe()
		return nil
	},
}

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDiscordAPI,
			provideRelayService,
			provideServerHandler(providePingHandler),
			provideServerHandler(handlers.NewRelayHandler),
			provideServerHandler(provideStreamHandler),
			provideServer,
		),
		fx.Invoke(
			startNotifier,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

// provideDiscordAPI returns a nil API when no bot token is configured; the relay then answers
// every request with a configuration error instead of refusing to start.
func provideDiscordAPI(log *slog.Logger, cfg config.Config) (relay.DiscordAPI, error) {
	session, err := relay.OpenSession(cfg.Discord.BotToken)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	if session == nil {
		log.Warn("discord bot token is not configured; relay endpoints will return errors")
		return nil, nil
	}
	return session, nil
}

func provideRelayService(log *slog.Logger, api relay.DiscordAPI, cfg config.Config) *relay.Service {
	return relay.NewService(log, api, relay.Settings{
		GuildID:       cfg.Discord.GuildID,
		CategoryID:    cfg.Discord.CategoryID,
		SupportRoleID: cfg.Discord.SupportRoleID,
		SupportUserID: cfg.Discord.SupportUserID,
		SupportName:   cfg.Discord.SupportName,
		Timeout:       cfg.Discord.RequestTimeout(),
	})
}

func providePingHandler(log *slog.Logger, service *relay.Service, cfg config.Config) *handlers.PingHandler {
	return handlers.NewPingHandler(log, service, []healthcheck.Checker{
		discordchecker.NewChecker(log, service),
		mailchecker.NewChecker(cfg.Mail),
	})
}

func provideStreamHandler(log *slog.Logger, service *relay.Service, cfg config.Config) *handlers.StreamHandler {
	return handlers.NewStreamHandler(log, service, cfg.Client.PollInterval(), cfg.Discord.RequestTimeout())
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers...)
}

func startNotifier(log *slog.Logger, cfg config.Config, service *relay.Service) error {
	mailer, err := notify.NewMailer(log, cfg.Mail)
	if err != nil {
		return fmt.Errorf("mailer: %w", err)
	}
	if mailer != nil {
		service.SetNotifier(mailer)
		log.Info("ticket confirmation emails enabled", slog.String("smtp_host", cfg.Mail.Host))
	}
	return nil
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("starting ticketdesk relay", slog.String("version", Version))
			go func() {
				if err := srv.Start(); err != nil {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
