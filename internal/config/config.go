package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath         = "config.toml"
	DefaultHTTPAddr           = ":8080"
	DefaultRelayURL           = "http://127.0.0.1:8080"
	DefaultSupportName        = "CCD Support"
	DefaultPollIntervalMS     = 1000
	DefaultRequestTimeoutSecs = 15
	DefaultStateDir           = ".ticketdesk"
	DefaultMailPort           = 587

	// BotTokenEnv overrides discord.bot_token when set.
	BotTokenEnv = "DISCORD_BOT_TOKEN"
)

type Config struct {
	Log     LogConfig     `toml:"log"`
	Server  ServerConfig  `toml:"server"`
	Discord DiscordConfig `toml:"discord"`
	Client  ClientConfig  `toml:"client"`
	Mail    MailConfig    `toml:"mail"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// DiscordConfig holds the relay's provider credentials and the default ticket placement.
type DiscordConfig struct {
	BotToken              string `toml:"bot_token"`
	GuildID               string `toml:"guild_id"`
	CategoryID            string `toml:"category_id"`
	SupportRoleID         string `toml:"support_role_id"`
	SupportUserID         string `toml:"support_user_id"`
	SupportName           string `toml:"support_name"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// RequestTimeout returns the per-call timeout for provider requests.
func (c DiscordConfig) RequestTimeout() time.Duration {
	return secondsOrDefault(c.RequestTimeoutSeconds)
}

// ClientConfig configures the chat client side of the relay.
type ClientConfig struct {
	RelayURL              string `toml:"relay_url"`
	PollIntervalMS        int    `toml:"poll_interval_ms"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	StateDir              string `toml:"state_dir"`
	BotUserID             string `toml:"bot_user_id"`
	SupportUserID         string `toml:"support_user_id"`
	SupportName           string `toml:"support_name"`
}

func (c ClientConfig) PollInterval() time.Duration {
	if c.PollIntervalMS <= 0 {
		return DefaultPollIntervalMS * time.Millisecond
	}
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

func (c ClientConfig) RequestTimeout() time.Duration {
	return secondsOrDefault(c.RequestTimeoutSeconds)
}

// MailConfig enables ticket confirmation emails when Host is set.
type MailConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
}

func (c MailConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != "" && strings.TrimSpace(c.From) != ""
}

func secondsOrDefault(seconds int) time.Duration {
	if seconds <= 0 {
		return DefaultRequestTimeoutSecs * time.Second
	}
	return time.Duration(seconds) * time.Second
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Discord: DiscordConfig{
			SupportName:           DefaultSupportName,
			RequestTimeoutSeconds: DefaultRequestTimeoutSecs,
		},
		Client: ClientConfig{
			RelayURL:              DefaultRelayURL,
			PollIntervalMS:        DefaultPollIntervalMS,
			RequestTimeoutSeconds: DefaultRequestTimeoutSecs,
			StateDir:              defaultStateDir(),
			SupportName:           DefaultSupportName,
		},
		Mail: MailConfig{
			Port: DefaultMailPort,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	if token := strings.TrimSpace(os.Getenv(BotTokenEnv)); token != "" {
		cfg.Discord.BotToken = token
	}
	if strings.TrimSpace(cfg.Discord.SupportName) == "" {
		cfg.Discord.SupportName = DefaultSupportName
	}
	if strings.TrimSpace(cfg.Client.SupportName) == "" {
		cfg.Client.SupportName = cfg.Discord.SupportName
	}
	if strings.TrimSpace(cfg.Client.StateDir) == "" {
		cfg.Client.StateDir = defaultStateDir()
	}
	if strings.TrimSpace(cfg.Client.SupportUserID) == "" {
		cfg.Client.SupportUserID = cfg.Discord.SupportUserID
	}
	return cfg, nil
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return DefaultStateDir
	}
	return filepath.Join(home, DefaultStateDir)
}
