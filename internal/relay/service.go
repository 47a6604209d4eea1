// Package relay performs the authenticated Discord calls behind the public relay endpoints:
// ticket channel creation, channel validation, message listing, text sends and file uploads.
package relay

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ccdsupport/ticketdesk/internal/logger"
	"github.com/ccdsupport/ticketdesk/internal/protocol"
	"github.com/ccdsupport/ticketdesk/internal/ticket"
)

const (
	defaultTimeout    = 15 * time.Second
	ticketEmbedColor  = 0xF7931A
	embedFieldMaxLen  = 1024
	orderNumberLength = 8

	channelTopicMaxLength = 1024
	// botLookupRetry is how long a failed bot user lookup is remembered.
	botLookupRetry = 30 * time.Second
)

// Settings carries the default ticket placement and identities.
type Settings struct {
	GuildID       string
	CategoryID    string
	SupportRoleID string
	SupportUserID string
	SupportName   string
	Timeout       time.Duration
}

// Notifier is told about newly created tickets.
type Notifier interface {
	TicketCreated(ctx context.Context, info protocol.OrderInfo, channelID string) error
}

// FileUpload is one file to post as its own message.
type FileUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

// ValidateResult is the outcome of resolving a ticket token.
type ValidateResult struct {
	Valid     bool
	ChannelID string
	Messages  []ticket.ProviderMessage
}

type Service struct {
	api      DiscordAPI
	settings Settings
	logger   *slog.Logger
	notifier Notifier

	botLookup   singleflight.Group
	mu          sync.Mutex
	botID       string
	botFailedAt time.Time
}

func NewService(log *slog.Logger, api DiscordAPI, settings Settings) *Service {
	if log == nil {
		log = slog.Default()
	}
	if settings.Timeout <= 0 {
		settings.Timeout = defaultTimeout
	}
	return &Service{
		api:      api,
		settings: settings,
		logger:   log.With(slog.String("component", "relay")),
	}
}

// SetNotifier installs the ticket-created notifier.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Configured reports whether a provider credential is available.
func (s *Service) Configured() bool {
	return s != nil && s.api != nil
}

// Identities returns the identities used for classification, resolving the bot user once.
func (s *Service) Identities(ctx context.Context) ticket.Identities {
	return ticket.Identities{
		BotID:         s.resolveBotID(ctx),
		SupportID:     strings.TrimSpace(s.settings.SupportUserID),
		SupportRoleID: strings.TrimSpace(s.settings.SupportRoleID),
		SupportName:   s.settings.SupportName,
	}
}

// resolveBotID looks the bot user up once. Concurrent callers share one request and a failure is
// remembered for botLookupRetry; the lock is never held across the call.
func (s *Service) resolveBotID(ctx context.Context) string {
	if s.api == nil {
		return ""
	}
	s.mu.Lock()
	id, failedAt := s.botID, s.botFailedAt
	s.mu.Unlock()
	if id != "" {
		return id
	}
	if !failedAt.IsZero() && time.Since(failedAt) < botLookupRetry {
		return ""
	}
	v, _, _ := s.botLookup.Do("@me", func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
		defer cancel()
		user, err := s.api.User("@me", discordgo.WithContext(callCtx))
		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil || user == nil || user.ID == "" {
			s.botFailedAt = time.Now()
			if err != nil {
				s.logger.Warn("resolve bot user failed", slog.Any("error", err))
			}
			return "", nil
		}
		s.botID = user.ID
		s.botFailedAt = time.Time{}
		return user.ID, nil
	})
	id, _ = v.(string)
	return id
}

// CreateChannel opens a ticket channel under the support category and posts the order summary.
func (s *Service) CreateChannel(ctx context.Context, info protocol.OrderInfo) (protocol.CreateChannelResponse, error) {
	if !s.Configured() {
		return protocol.CreateChannelResponse{}, ErrNotConfigured
	}
	guildID := firstNonEmpty(info.GuildID, s.settings.GuildID)
	categoryID := firstNonEmpty(info.CategoryID, s.settings.CategoryID)
	roleID := firstNonEmpty(info.SupportRoleID, s.settings.SupportRoleID)
	if guildID == "" {
		return protocol.CreateChannelResponse{}, fmt.Errorf("%w: guild id is required", ErrInvalidRequest)
	}

	info.OrderNumber = strings.TrimSpace(info.OrderNumber)
	if info.OrderNumber == "" {
		info.OrderNumber = generateOrderNumber()
	}
	name := ticket.ChannelName(info.OrderNumber)
	if custom := ticket.NormalizeToken(info.ChannelName); custom != "" {
		name = ticket.ChannelName(custom)
	}

	ids := s.Identities(ctx)
	callCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()
	ch, err := s.api.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                ticketTopic(info),
		ParentID:             categoryID,
		PermissionOverwrites: ticketOverwrites(guildID, roleID, ids.BotID),
	}, discordgo.WithContext(callCtx))
	if err != nil {
		s.logger.Error("create channel failed", slog.String("name", name), slog.Any("error", err))
		return protocol.CreateChannelResponse{}, fmt.Errorf("create channel: %w", err)
	}
	s.logger.Info("ticket channel created", slog.String("channel_id", ch.ID), slog.String("name", name))

	if _, err := s.api.ChannelMessageSendComplex(ch.ID, orderSummary(info, roleID), discordgo.WithContext(callCtx)); err != nil {
		s.logger.Warn("post order summary failed", slog.String("channel_id", ch.ID), slog.Any("error", err))
	}

	if s.notifier != nil && strings.TrimSpace(info.Email) != "" {
		go func(info protocol.OrderInfo, channelID string) {
			notifyCtx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()
			if err := s.notifier.TicketCreated(notifyCtx, info, channelID); err != nil {
				s.logger.Warn("ticket notification failed", slog.String("channel_id", channelID), slog.Any("error", err))
			}
		}(info, ch.ID)
	}

	return protocol.CreateChannelResponse{
		Success:     true,
		ChannelID:   ch.ID,
		OrderNumber: info.OrderNumber,
	}, nil
}

// ValidateChannel resolves a ticket token to an existing channel under the support category.
// When withMessages is set the most recent message page is returned too.
func (s *Service) ValidateChannel(ctx context.Context, ticketID string, withMessages bool) (ValidateResult, error) {
	if !s.Configured() {
		return ValidateResult{}, ErrNotConfigured
	}
	token := ticket.NormalizeToken(ticketID)
	if token == "" {
		return ValidateResult{}, fmt.Errorf("%w: ticket id is required", ErrInvalidRequest)
	}
	channels, err := s.guildChannels(ctx, s.settings.GuildID)
	if err != nil {
		return ValidateResult{}, err
	}
	want := ticket.ChannelName(token)
	var match *discordgo.Channel
	for _, ch := range channels {
		if isTicketTextChannel(ch, s.settings.CategoryID) && strings.EqualFold(ch.Name, want) {
			match = ch
			break
		}
	}
	if match == nil {
		s.logger.Info("ticket not found", slog.String("ticket", token))
		return ValidateResult{Valid: false}, nil
	}
	result := ValidateResult{Valid: true, ChannelID: match.ID}
	if !withMessages {
		return result, nil
	}
	msgs, _, err := s.ListMessages(ctx, protocol.MessagesRequest{
		ChannelID:     match.ID,
		IsInitialLoad: true,
		Limit:         protocol.DefaultMessageLimit,
	})
	if err != nil {
		return ValidateResult{}, err
	}
	result.Messages = msgs
	return result, nil
}

// ListMessages returns renderable messages strictly after req.After, oldest first. Unless this is
// the initial load, unrelated channel chatter is dropped. The returned cursor is the newest message
// identifier scanned, filtered or not, so a page of chatter never stalls the caller.
func (s *Service) ListMessages(ctx context.Context, req protocol.MessagesRequest) ([]ticket.ProviderMessage, string, error) {
	if !s.Configured() {
		return nil, "", ErrNotConfigured
	}
	channelID := strings.TrimSpace(req.ChannelID)
	if channelID == "" {
		return nil, "", fmt.Errorf("%w: channel id is required", ErrInvalidRequest)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = protocol.DefaultMessageLimit
	}
	if limit > protocol.MaxMessageLimit {
		limit = protocol.MaxMessageLimit
	}
	ids := s.Identities(ctx)
	callCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()
	after := strings.TrimSpace(req.After)
	items, err := s.api.ChannelMessages(channelID, limit, "", after, "", discordgo.WithContext(callCtx))
	if err != nil {
		return nil, "", fmt.Errorf("list messages: %w", err)
	}
	converted := convertMessages(items, ids)
	cursor := after
	for _, item := range converted {
		cursor = ticket.NewestID(cursor, item.ID)
	}
	return ticket.FilterMessages(converted, ids, req.IsInitialLoad), cursor, nil
}

// SendMessage posts visitor text as the bot identity.
func (s *Service) SendMessage(ctx context.Context, channelID, content string) (ticket.ProviderMessage, error) {
	if !s.Configured() {
		return ticket.ProviderMessage{}, ErrNotConfigured
	}
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return ticket.ProviderMessage{}, fmt.Errorf("%w: channel id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(content) == "" {
		return ticket.ProviderMessage{}, ticket.ErrEmptyMessage
	}
	ids := s.Identities(ctx)
	callCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()
	msg, err := s.api.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:         truncateDiscordText(content),
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
	}, discordgo.WithContext(callCtx))
	if err != nil {
		s.logger.Error("send message failed", slog.String("channel_id", channelID), slog.Any("error", err))
		return ticket.ProviderMessage{}, fmt.Errorf("send message: %w", err)
	}
	s.logger.Info("message relayed", slog.String("channel_id", channelID), slog.String("text", logger.SummarizeText(content)))
	out := convertMessage(msg, ids)
	out.IsFromWebsite = true
	return out, nil
}

// Upload posts every file as its own message, concurrently. If any file fails the returned error
// is an *UploadError and the messages that did post are still returned.
func (s *Service) Upload(ctx context.Context, channelID string, files []FileUpload) ([]ticket.ProviderMessage, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, fmt.Errorf("%w: channel id is required", ErrInvalidRequest)
	}
	meta := make([]ticket.UploadFile, 0, len(files))
	for i := range files {
		files[i].ContentType = detectContentType(files[i])
		meta = append(meta, ticket.UploadFile{Name: files[i].Name, ContentType: files[i].ContentType, Size: int64(len(files[i].Data))})
	}
	if err := ticket.ValidateUploads(meta); err != nil {
		return nil, err
	}

	ids := s.Identities(ctx)
	posted := make([]ticket.ProviderMessage, len(files))
	failures := make([]error, len(files))
	var g errgroup.Group
	for i, file := range files {
		g.Go(func() error {
			msg, err := s.postFile(ctx, channelID, file, ids)
			if err != nil {
				failures[i] = err
				return err
			}
			posted[i] = msg
			return nil
		})
	}
	waitErr := g.Wait()

	succeeded := make([]ticket.ProviderMessage, 0, len(files))
	var failed []FileError
	for i := range files {
		if failures[i] != nil {
			failed = append(failed, FileError{Name: files[i].Name, Err: failures[i]})
			continue
		}
		succeeded = append(succeeded, posted[i])
	}
	if waitErr != nil {
		s.logger.Error("upload partially failed",
			slog.String("channel_id", channelID),
			slog.Int("failed", len(failed)),
			slog.Int("succeeded", len(succeeded)),
			slog.Any("error", waitErr),
		)
		return succeeded, &UploadError{Failed: failed, Succeeded: succeeded}
	}
	return succeeded, nil
}

func (s *Service) postFile(ctx context.Context, channelID string, file FileUpload, ids ticket.Identities) (ticket.ProviderMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()
	msg, err := s.api.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Files: []*discordgo.File{{
			Name:        file.Name,
			ContentType: file.ContentType,
			Reader:      bytes.NewReader(file.Data),
		}},
	}, discordgo.WithContext(callCtx))
	if err != nil {
		return ticket.ProviderMessage{}, fmt.Errorf("upload %s: %w", file.Name, err)
	}
	out := convertMessage(msg, ids)
	out.IsFromWebsite = true
	return out, nil
}

// ListCategoryChannels lists the text channels under a category ordered by position.
func (s *Service) ListCategoryChannels(ctx context.Context, guildID, categoryID string) ([]protocol.ChannelInfo, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	guildID = firstNonEmpty(guildID, s.settings.GuildID)
	categoryID = firstNonEmpty(categoryID, s.settings.CategoryID)
	if guildID == "" || categoryID == "" {
		return nil, fmt.Errorf("%w: guild id and category id are required", ErrInvalidRequest)
	}
	channels, err := s.guildChannels(ctx, guildID)
	if err != nil {
		return nil, err
	}
	out := make([]protocol.ChannelInfo, 0, len(channels))
	for _, ch := range channels {
		if !isTicketTextChannel(ch, categoryID) {
			continue
		}
		out = append(out, protocol.ChannelInfo{
			ID:            ch.ID,
			Name:          ch.Name,
			Topic:         ch.Topic,
			Position:      ch.Position,
			LastMessageID: ch.LastMessageID,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *Service) guildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	if strings.TrimSpace(guildID) == "" {
		return nil, fmt.Errorf("%w: guild id is required", ErrInvalidRequest)
	}
	callCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()
	channels, err := s.api.GuildChannels(guildID, discordgo.WithContext(callCtx))
	if err != nil {
		return nil, fmt.Errorf("list guild channels: %w", err)
	}
	return channels, nil
}

func orderSummary(info protocol.OrderInfo, roleID string) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Type:      discordgo.EmbedTypeRich,
		Title:     "New ticket " + info.OrderNumber,
		Color:     ticketEmbedColor,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Order Number", Value: truncateField(info.OrderNumber, embedFieldMaxLen), Inline: true},
			{Name: "Type", Value: truncateField(info.Type, embedFieldMaxLen), Inline: true},
			{Name: "Project", Value: truncateField(info.ProjectName, embedFieldMaxLen)},
			{Name: "Email", Value: truncateField(info.Email, embedFieldMaxLen)},
			{Name: "Details", Value: truncateField(info.Details, embedFieldMaxLen)},
		},
	}
	send := &discordgo.MessageSend{
		Embeds:          []*discordgo.MessageEmbed{embed},
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
	}
	if roleID != "" {
		send.Content = "<@&" + roleID + "> new support ticket"
		send.AllowedMentions.Roles = []string{roleID}
	}
	return send
}

func ticketTopic(info protocol.OrderInfo) string {
	topic := "Support ticket " + info.OrderNumber
	if project := strings.TrimSpace(info.ProjectName); project != "" {
		topic += " - " + project
	}
	if utf8.RuneCountInString(topic) > channelTopicMaxLength {
		topic = string([]rune(topic)[:channelTopicMaxLength])
	}
	return topic
}

func generateOrderNumber() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(id[:orderNumberLength])
}

// detectContentType keeps a declared type and sniffs the payload otherwise.
func detectContentType(file FileUpload) string {
	ct := ticket.NormalizeContentType(file.ContentType)
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if len(file.Data) == 0 {
		return http.DetectContentType(file.Data)
	}
	return ticket.NormalizeContentType(mimetype.Detect(file.Data).String())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
