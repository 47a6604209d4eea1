// Package client is the chat-client side of the relay: it resolves ticket tokens, polls channels
// for new messages, deduplicates deliveries and sends visitor text and files.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ccdsupport/ticketdesk/internal/logger"
	"github.com/ccdsupport/ticketdesk/internal/packages"
	"github.com/ccdsupport/ticketdesk/internal/protocol"
	"github.com/ccdsupport/ticketdesk/internal/ticket"
)

const (
	DefaultPollInterval   = time.Second
	DefaultRequestTimeout = 15 * time.Second

	packageSelectorPrompt = "Choose a package for this ticket"
)

// MessageHandler receives delivered messages. Calls for one channel are sequential and in
// provider order.
type MessageHandler func(ticket.Message)

// Options configures a Session.
type Options struct {
	Identities     ticket.Identities
	PollInterval   time.Duration
	RequestTimeout time.Duration
	Catalog        []ticket.Package
	// Packages persists package selections. Optional.
	Packages *packages.Store
}

// ValidateResult is the outcome of ValidateChannel.
type ValidateResult struct {
	Valid     bool
	ChannelID string
	Messages  []ticket.Message
}

// Session owns the client-side state of one chat widget: the channel directory, the
// deduplication ledger, subscriber callbacks and running pollers.
type Session struct {
	relay     Relay
	formatter *ticket.Formatter
	directory *ticket.Directory
	ledger    *ticket.Ledger
	opts      Options
	logger    *slog.Logger

	mu         sync.Mutex
	pollers    map[string]*poller
	cursors    map[string]string
	selections map[string]ticket.Package
}

type poller struct {
	channelID string
	handler   MessageHandler
	initial   []ticket.Message
	cancel    context.CancelFunc
	done      chan struct{}
	// deliverMu is held while handlers run; Unsubscribe takes it to wait out a delivery.
	deliverMu sync.Mutex
}

func NewSession(log *slog.Logger, relay Relay, opts Options) *Session {
	if log == nil {
		log = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Catalog == nil {
		opts.Catalog = ticket.DefaultCatalog
	}
	return &Session{
		relay:      relay,
		formatter:  ticket.NewFormatter(opts.Identities),
		directory:  ticket.NewDirectory(),
		ledger:     ticket.NewLedger(),
		opts:       opts,
		logger:     log.With(slog.String("component", "chat_client")),
		pollers:    map[string]*poller{},
		cursors:    map[string]string{},
		selections: map[string]ticket.Package{},
	}
}

// Directory exposes the token to channel mapping.
func (s *Session) Directory() *ticket.Directory {
	return s.directory
}

// Ledger exposes the deduplication ledger.
func (s *Session) Ledger() *ticket.Ledger {
	return s.ledger
}

// Catalog returns the packages offered by the selector.
func (s *Session) Catalog() []ticket.Package {
	return s.opts.Catalog
}

// CreateTicket opens a new ticket channel and registers it in the directory.
func (s *Session) CreateTicket(ctx context.Context, info protocol.OrderInfo) (protocol.CreateChannelResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()
	resp, err := s.relay.CreateChannel(callCtx, info)
	if err != nil {
		return protocol.CreateChannelResponse{}, err
	}
	if !resp.Success || strings.TrimSpace(resp.ChannelID) == "" {
		return resp, fmt.Errorf("create ticket: relay returned no channel")
	}
	s.directory.Put(resp.OrderNumber, resp.ChannelID, nil)
	s.logger.Info("ticket created", slog.String("ticket", resp.OrderNumber), slog.String("channel_id", resp.ChannelID))
	return resp, nil
}

// ValidateChannel resolves a ticket token. On a match the directory is updated and the ledger is
// seeded with the returned history; on a miss nothing changes. Polling is not started.
func (s *Session) ValidateChannel(ctx context.Context, token string) (ValidateResult, error) {
	normalized := ticket.NormalizeToken(token)
	if normalized == "" {
		return ValidateResult{}, fmt.Errorf("%w: empty ticket id", ticket.ErrChannelNotFound)
	}
	callCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()
	resp, err := s.relay.ValidateChannel(callCtx, normalized)
	if err != nil {
		return ValidateResult{}, err
	}
	if !resp.Valid || strings.TrimSpace(resp.ChannelID) == "" {
		s.logger.Info("ticket not found", slog.String("ticket", normalized))
		return ValidateResult{Valid: false}, nil
	}

	items := append([]ticket.ProviderMessage(nil), resp.Messages...)
	ticket.SortProviderMessages(items)
	cursor := ""
	msgs := make([]ticket.Message, 0, len(items))
	for _, item := range items {
		cursor = ticket.NewestID(cursor, item.ID)
		if !ticket.IsRenderable(item) {
			continue
		}
		msgs = append(msgs, s.formatter.Format(item))
	}

	s.directory.Put(normalized, resp.ChannelID, msgs)
	s.ledger.Seed(msgs)
	s.advanceCursor(resp.ChannelID, cursor)
	s.logger.Info("ticket validated",
		slog.String("ticket", normalized),
		slog.String("channel_id", resp.ChannelID),
		slog.Int("messages", len(msgs)),
	)
	return ValidateResult{Valid: true, ChannelID: resp.ChannelID, Messages: msgs}, nil
}

// Subscribe registers handler for the token's channel and starts polling it. Initial history not
// yet handed to any handler is delivered first. It returns false when the token was never
// validated. Subscribing an already polled channel replaces its handler without starting a second
// loop.
func (s *Session) Subscribe(token string, handler MessageHandler) bool {
	entry, ok := s.directory.Lookup(token)
	if !ok || handler == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, running := s.pollers[entry.ChannelID]; running {
		p.handler = handler
		return true
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{
		channelID: entry.ChannelID,
		handler:   handler,
		initial:   entry.Initial,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.pollers[entry.ChannelID] = p
	go s.run(ctx, p)
	s.logger.Debug("polling started", slog.String("ticket", entry.Token), slog.String("channel_id", entry.ChannelID))
	return true
}

// Unsubscribe stops polling the token's channel and drops its handler. A fetch in flight is
// allowed to finish but its result is discarded; once Unsubscribe returns the handler is not called
// again. It must not be called from inside a handler. Directory and ledger are kept.
func (s *Session) Unsubscribe(token string) {
	channelID, ok := s.directory.ChannelID(token)
	if !ok {
		return
	}
	s.mu.Lock()
	p, running := s.pollers[channelID]
	if running {
		delete(s.pollers, channelID)
	}
	s.mu.Unlock()
	if running {
		p.cancel()
		p.waitDelivery()
		s.logger.Debug("polling stopped", slog.String("channel_id", channelID))
	}
}

// Polling reports whether the token's channel has a running poller.
func (s *Session) Polling(token string) bool {
	channelID, ok := s.directory.ChannelID(token)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, running := s.pollers[channelID]
	return running
}

// Cursor returns the after cursor used for the channel's next fetch.
func (s *Session) Cursor(channelID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[channelID]
}

// SendMessage posts visitor text to the token's channel. The package selector command is answered
// locally with a synthesized message. On failure the optimistic claim is released and the error is
// returned; there is no retry.
func (s *Session) SendMessage(ctx context.Context, token, content string) (ticket.Message, error) {
	channelID, ok := s.directory.ChannelID(token)
	if !ok {
		return ticket.Message{}, ticket.ErrChannelNotFound
	}
	if ticket.IsPackageSelectorRequest(content) {
		return s.packageSelectorMessage(channelID), nil
	}
	if strings.TrimSpace(content) == "" {
		return ticket.Message{}, ticket.ErrEmptyMessage
	}

	tempFP := ticket.TempFingerprint(content, "")
	s.ledger.AddPending(tempFP)

	callCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()
	pm, err := s.relay.SendMessage(callCtx, channelID, content)
	if err != nil {
		s.ledger.ReleasePending(tempFP)
		s.logger.Warn("send failed", slog.String("channel_id", channelID), slog.Any("error", err))
		return ticket.Message{}, err
	}
	pm.IsFromWebsite = true
	if pm.ChannelID == "" {
		pm.ChannelID = channelID
	}
	msg := s.formatter.Format(pm)
	s.ledger.Confirm(msg, tempFP)
	s.logger.Debug("message sent", slog.String("channel_id", channelID), slog.String("text", logger.SummarizeText(content)))
	return msg, nil
}

// UploadFiles posts each file as its own message, concurrently. The whole selection is validated
// before any request. If any file fails an *UploadError is returned listing both the failures and
// the files that did post.
func (s *Session) UploadFiles(ctx context.Context, token string, files []UploadFile) ([]ticket.Message, error) {
	channelID, ok := s.directory.ChannelID(token)
	if !ok {
		return nil, ticket.ErrChannelNotFound
	}
	meta := make([]ticket.UploadFile, 0, len(files))
	for _, f := range files {
		meta = append(meta, f.meta())
	}
	if err := ticket.ValidateUploads(meta); err != nil {
		return nil, err
	}

	results := make([][]ticket.Message, len(files))
	failures := make([]error, len(files))
	var g errgroup.Group
	for i, file := range files {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
			defer cancel()
			items, err := s.relay.Upload(callCtx, channelID, file)
			if err != nil {
				failures[i] = err
				return err
			}
			msgs := make([]ticket.Message, 0, len(items))
			for _, item := range items {
				item.IsFromWebsite = true
				msg := s.formatter.Format(item)
				s.ledger.Record(msg)
				msgs = append(msgs, msg)
			}
			results[i] = msgs
			return nil
		})
	}
	waitErr := g.Wait()

	var (
		succeeded []ticket.Message
		failed    []FileError
	)
	for i := range files {
		if failures[i] != nil {
			failed = append(failed, FileError{Name: files[i].Name, Err: failures[i]})
			continue
		}
		succeeded = append(succeeded, results[i]...)
	}
	if waitErr != nil {
		s.logger.Warn("upload failed",
			slog.String("channel_id", channelID),
			slog.Int("failed", len(failed)),
			slog.Int("succeeded", len(files)-len(failed)),
		)
		return nil, &UploadError{Failed: failed, Succeeded: succeeded}
	}
	return succeeded, nil
}

// SelectPackage pins a catalog package to the token's channel and persists the choice.
func (s *Session) SelectPackage(ctx context.Context, token, packageID string) (ticket.Package, error) {
	channelID, ok := s.directory.ChannelID(token)
	if !ok {
		return ticket.Package{}, ticket.ErrChannelNotFound
	}
	pkg, ok := ticket.FindPackage(s.opts.Catalog, packageID)
	if !ok {
		return ticket.Package{}, fmt.Errorf("%w: %s", ticket.ErrUnknownPackage, packageID)
	}
	if s.opts.Packages != nil {
		if _, err := s.opts.Packages.Save(ctx, channelID, pkg); err != nil {
			return ticket.Package{}, err
		}
	}
	s.mu.Lock()
	s.selections[channelID] = pkg
	s.mu.Unlock()
	return pkg, nil
}

// SelectedPackage returns the package pinned to the token's channel. Without an explicit choice it
// falls back to the persisted one, then to the plan marker of the channel's order summary.
func (s *Session) SelectedPackage(ctx context.Context, token string) (ticket.Package, bool, error) {
	entry, ok := s.directory.Lookup(token)
	if !ok {
		return ticket.Package{}, false, ticket.ErrChannelNotFound
	}
	s.mu.Lock()
	pkg, ok := s.selections[entry.ChannelID]
	s.mu.Unlock()
	if ok {
		return pkg, true, nil
	}
	if s.opts.Packages != nil {
		sel, found, err := s.opts.Packages.Get(ctx, entry.ChannelID)
		if err != nil {
			return ticket.Package{}, false, err
		}
		if found {
			s.mu.Lock()
			s.selections[entry.ChannelID] = sel.Package
			s.mu.Unlock()
			return sel.Package, true, nil
		}
	}
	pkg, ok = ticket.InferPackage(entry.Initial, s.opts.Catalog)
	return pkg, ok, nil
}

// Logout stops every poller and clears the directory, the ledger and cached selections.
func (s *Session) Logout() {
	s.mu.Lock()
	running := s.pollers
	s.pollers = map[string]*poller{}
	s.cursors = map[string]string{}
	s.selections = map[string]ticket.Package{}
	s.mu.Unlock()
	for _, p := range running {
		p.cancel()
	}
	s.directory.Reset()
	s.ledger.Reset()
	s.logger.Info("session reset", slog.Int("pollers_stopped", len(running)))
}

// Close stops every poller and waits for them to exit.
func (s *Session) Close() {
	s.mu.Lock()
	running := s.pollers
	s.pollers = map[string]*poller{}
	s.mu.Unlock()
	for _, p := range running {
		p.cancel()
	}
	for _, p := range running {
		<-p.done
	}
}

func (s *Session) packageSelectorMessage(channelID string) ticket.Message {
	return ticket.Message{
		ID:        "local-" + uuid.NewString(),
		ChannelID: channelID,
		Content:   packageSelectorPrompt,
		Timestamp: time.Now().UTC(),
		Role:      ticket.RoleSystem,
		Sender:    ticket.SystemLabel,
		Temporary: true,
		Action:    ticket.ActionPackageSelector,
		Packages:  append([]ticket.Package(nil), s.opts.Catalog...),
	}
}

func (s *Session) run(ctx context.Context, p *poller) {
	defer close(p.done)

	s.deliver(p, p.initial, s.ledger.Replay)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx, p)
		}
	}
}

// poll runs one fetch. Ticks that fire while it is in flight are dropped by the ticker, so each
// channel has at most one outstanding request.
func (s *Session) poll(ctx context.Context, p *poller) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()
	after := s.Cursor(p.channelID)
	resp, err := s.relay.Messages(callCtx, protocol.MessagesRequest{
		ChannelID: p.channelID,
		After:     after,
		Limit:     protocol.DefaultMessageLimit,
	})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Warn("poll failed", slog.String("channel_id", p.channelID), slog.Any("error", err))
		return
	}

	items := append([]ticket.ProviderMessage(nil), resp.Messages...)
	ticket.SortProviderMessages(items)

	s.mu.Lock()
	if s.pollers[p.channelID] != p {
		s.mu.Unlock()
		return
	}
	newest := ticket.NewestID(after, resp.Cursor)
	delivered := make([]ticket.Message, 0, len(items))
	for _, item := range items {
		newest = ticket.NewestID(newest, item.ID)
		if !ticket.IsRenderable(item) {
			continue
		}
		msg := s.formatter.Format(item)
		if !s.ledger.Admit(msg) {
			continue
		}
		delivered = append(delivered, msg)
	}
	s.cursors[p.channelID] = ticket.NewestID(s.cursors[p.channelID], newest)
	s.mu.Unlock()

	s.deliver(p, delivered, nil)
}

// waitDelivery blocks until a handler call in progress returns.
func (p *poller) waitDelivery() {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()
}

// deliver hands msgs to the poller's current handler, stopping as soon as the poller is no longer
// registered. accept, when set, filters each message right before it is handed over.
func (s *Session) deliver(p *poller, msgs []ticket.Message, accept func(ticket.Message) bool) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()
	for _, msg := range msgs {
		handler := s.activeHandler(p)
		if handler == nil {
			return
		}
		if accept != nil && !accept(msg) {
			continue
		}
		handler(msg)
	}
}

func (s *Session) activeHandler(p *poller) MessageHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollers[p.channelID] != p {
		return nil
	}
	return p.handler
}

func (s *Session) advanceCursor(channelID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[channelID] = ticket.NewestID(s.cursors[channelID], id)
}
