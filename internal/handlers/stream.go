package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ccdsupport/ticketdesk/internal/client"
	"github.com/ccdsupport/ticketdesk/internal/protocol"
	"github.com/ccdsupport/ticketdesk/internal/relay"
	"github.com/ccdsupport/ticketdesk/internal/ticket"
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const streamWriteTimeout = 10 * time.Second

// StreamHandler pushes a ticket's messages to the browser over a WebSocket. Each connection runs
// its own chat session against the relay service, so delivery keeps the same dedup and cursor
// rules as the polling client.
type StreamHandler struct {
	service      *relay.Service
	pollInterval time.Duration
	timeout      time.Duration
	logger       *slog.Logger
}

func NewStreamHandler(log *slog.Logger, service *relay.Service, pollInterval, timeout time.Duration) *StreamHandler {
	return &StreamHandler{
		service:      service,
		pollInterval: pollInterval,
		timeout:      timeout,
		logger:       log.With(slog.String("handler", "stream")),
	}
}

func (h *StreamHandler) Register(e *echo.Echo) {
	e.GET(protocol.PathStream, h.Stream)
}

type streamConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *streamConn) send(event protocol.StreamEvent) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return c.ws.WriteJSON(event)
}

// Stream godoc
// @Summary Stream ticket messages
// @Description Upgrade to a WebSocket that pushes new ticket messages and accepts text to send
// @Tags relay
// @Param ticketId query string true "Ticket id"
// @Success 101
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /relay/stream [get]
func (h *StreamHandler) Stream(c echo.Context) error {
	if !h.service.Configured() {
		return echo.NewHTTPError(http.StatusInternalServerError, relay.ErrNotConfigured.Error())
	}
	token := ticket.NormalizeToken(c.QueryParam("ticketId"))
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ticketId is required")
	}
	ws, err := streamUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	conn := &streamConn{ws: ws}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	session := client.NewSession(h.logger, NewServiceRelay(h.service), client.Options{
		Identities:     h.service.Identities(ctx),
		PollInterval:   h.pollInterval,
		RequestTimeout: h.timeout,
	})
	defer session.Close()

	res, err := session.ValidateChannel(ctx, token)
	if err != nil {
		_ = conn.send(protocol.StreamEvent{Type: protocol.StreamEventError, Error: err.Error()})
		return nil
	}
	if !res.Valid {
		_ = conn.send(protocol.StreamEvent{Type: protocol.StreamEventError, Error: ticket.ErrChannelNotFound.Error()})
		return nil
	}
	if err := conn.send(protocol.StreamEvent{Type: protocol.StreamEventReady}); err != nil {
		return nil
	}
	session.Subscribe(token, func(msg ticket.Message) {
		if err := conn.send(protocol.StreamEvent{Type: protocol.StreamEventMessage, Message: &msg}); err != nil {
			h.logger.Debug("stream write failed", slog.Any("error", err))
			cancel()
		}
	})
	h.logger.Info("stream opened", slog.String("ticket", token), slog.String("channel_id", res.ChannelID))

	for {
		var cmd protocol.StreamCommand
		if err := ws.ReadJSON(&cmd); err != nil {
			h.logger.Info("stream closed", slog.String("ticket", token))
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		if strings.TrimSpace(cmd.Content) == "" {
			continue
		}
		msg, err := session.SendMessage(ctx, token, cmd.Content)
		if err != nil {
			_ = conn.send(protocol.StreamEvent{Type: protocol.StreamEventError, Error: err.Error()})
			continue
		}
		if err := conn.send(protocol.StreamEvent{Type: protocol.StreamEventMessage, Message: &msg}); err != nil {
			return nil
		}
	}
}

// ServiceRelay serves client.Relay straight from the relay service, without an HTTP hop.
type ServiceRelay struct {
	service *relay.Service
}

func NewServiceRelay(service *relay.Service) *ServiceRelay {
	return &ServiceRelay{service: service}
}

func (r *ServiceRelay) CreateChannel(ctx context.Context, info protocol.OrderInfo) (protocol.CreateChannelResponse, error) {
	return r.service.CreateChannel(ctx, info)
}

func (r *ServiceRelay) ValidateChannel(ctx context.Context, ticketID string) (protocol.ValidateChannelResponse, error) {
	res, err := r.service.ValidateChannel(ctx, ticketID, true)
	if err != nil {
		return protocol.ValidateChannelResponse{}, err
	}
	return protocol.ValidateChannelResponse{Valid: res.Valid, ChannelID: res.ChannelID, Messages: res.Messages}, nil
}

func (r *ServiceRelay) Messages(ctx context.Context, req protocol.MessagesRequest) (protocol.MessagesResponse, error) {
	items, cursor, err := r.service.ListMessages(ctx, req)
	if err != nil {
		return protocol.MessagesResponse{}, err
	}
	return protocol.MessagesResponse{Messages: items, Cursor: cursor}, nil
}

func (r *ServiceRelay) SendMessage(ctx context.Context, channelID, content string) (ticket.ProviderMessage, error) {
	return r.service.SendMessage(ctx, channelID, content)
}

func (r *ServiceRelay) Upload(ctx context.Context, channelID string, file client.UploadFile) ([]ticket.ProviderMessage, error) {
	return r.service.Upload(ctx, channelID, []relay.FileUpload{{
		Name:        file.Name,
		ContentType: file.ContentType,
		Data:        file.Data,
	}})
}

func (r *ServiceRelay) CategoryChannels(ctx context.Context, guildID, categoryID string) ([]protocol.ChannelInfo, error) {
	return r.service.ListCategoryChannels(ctx, guildID, categoryID)
}
