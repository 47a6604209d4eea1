package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ccdsupport/ticketdesk/internal/protocol"
	"github.com/ccdsupport/ticketdesk/internal/relay"
	"github.com/ccdsupport/ticketdesk/internal/ticket"
)

// uploadBodyLimit covers a full selection of maximum-size files plus form overhead.
const uploadBodyLimit = "96M"

// RelayHandler exposes the Discord relay as public CORS endpoints.
type RelayHandler struct {
	service *relay.Service
	logger  *slog.Logger
}

func NewRelayHandler(log *slog.Logger, service *relay.Service) *RelayHandler {
	return &RelayHandler{
		service: service,
		logger:  log.With(slog.String("handler", "relay")),
	}
}

func (h *RelayHandler) Register(e *echo.Echo) {
	e.Any(protocol.PathCreateChannel, h.endpoint(h.CreateChannel))
	e.Any(protocol.PathValidateChannel, h.endpoint(h.ValidateChannel))
	e.Any(protocol.PathMessages, h.endpoint(h.ListMessages))
	e.Any(protocol.PathSendMessage, h.endpoint(h.SendMessage))
	e.Any(protocol.PathUpload, h.endpoint(h.Upload), middleware.BodyLimit(uploadBodyLimit))
	e.Any(protocol.PathCategoryChannels, h.endpoint(h.ListCategoryChannels))
}

// endpoint applies the behavior shared by every relay route: CORS headers, an empty 200 for
// preflight, 405 for anything but POST and a configuration error when no bot token is set.
func (h *RelayHandler) endpoint(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Response().Header()
		header.Set(echo.HeaderAccessControlAllowOrigin, "*")
		header.Set(echo.HeaderAccessControlAllowHeaders, echo.HeaderContentType)
		header.Set(echo.HeaderAccessControlAllowMethods, "POST, OPTIONS")

		switch c.Request().Method {
		case http.MethodOptions:
			return c.NoContent(http.StatusOK)
		case http.MethodPost:
		default:
			return echo.NewHTTPError(http.StatusMethodNotAllowed, "method not allowed")
		}
		if !h.service.Configured() {
			return echo.NewHTTPError(http.StatusInternalServerError, relay.ErrNotConfigured.Error())
		}
		return next(c)
	}
}

// CreateChannel godoc
// @Summary Create ticket channel
// @Description Create a private ticket channel under the support category and post the order summary
// @Tags relay
// @Param payload body protocol.CreateChannelRequest true "Order info"
// @Success 200 {object} protocol.CreateChannelResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /relay/create-channel [post]
func (h *RelayHandler) CreateChannel(c echo.Context) error {
	var req protocol.CreateChannelRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	resp, err := h.service.CreateChannel(c.Request().Context(), req.OrderInfo)
	if err != nil {
		return relayError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// ValidateChannel godoc
// @Summary Validate ticket
// @Description Resolve a ticket id to its channel and return the latest message page
// @Tags relay
// @Param payload body protocol.ValidateChannelRequest true "Ticket id"
// @Success 200 {object} protocol.ValidateChannelResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /relay/validate-channel [post]
func (h *RelayHandler) ValidateChannel(c echo.Context) error {
	var req protocol.ValidateChannelRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := h.service.ValidateChannel(c.Request().Context(), req.TicketID, true)
	if err != nil {
		return relayError(err)
	}
	return c.JSON(http.StatusOK, protocol.ValidateChannelResponse{
		Valid:     res.Valid,
		ChannelID: res.ChannelID,
		Messages:  res.Messages,
	})
}

// ListMessages godoc
// @Summary List messages
// @Description List messages strictly after a cursor, oldest first
// @Tags relay
// @Param payload body protocol.MessagesRequest true "Channel and cursor"
// @Success 200 {object} protocol.MessagesResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /relay/messages [post]
func (h *RelayHandler) ListMessages(c echo.Context) error {
	var req protocol.MessagesRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	items, cursor, err := h.service.ListMessages(c.Request().Context(), req)
	if err != nil {
		return relayError(err)
	}
	if items == nil {
		items = []ticket.ProviderMessage{}
	}
	return c.JSON(http.StatusOK, protocol.MessagesResponse{Messages: items, Cursor: cursor})
}

// SendMessage godoc
// @Summary Send message
// @Description Post visitor text to a ticket channel as the bot
// @Tags relay
// @Param payload body protocol.SendMessageRequest true "Message"
// @Success 200 {object} protocol.SendMessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /relay/send-message [post]
func (h *RelayHandler) SendMessage(c echo.Context) error {
	var req protocol.SendMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	msg, err := h.service.SendMessage(c.Request().Context(), req.ChannelID, req.Content)
	if err != nil {
		return relayError(err)
	}
	return c.JSON(http.StatusOK, protocol.SendMessageResponse{Message: msg})
}

// Upload godoc
// @Summary Upload files
// @Description Post each file as its own message in the ticket channel
// @Tags relay
// @Accept multipart/form-data
// @Param channelId formData string true "Channel id"
// @Param files formData file true "Files"
// @Success 200 {object} protocol.UploadResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} protocol.UploadResponse
// @Router /relay/upload [post]
func (h *RelayHandler) Upload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form")
	}
	channelID := strings.TrimSpace(firstFormValue(form, protocol.FormFieldChannelID))
	if channelID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "channelId is required")
	}
	headers := form.File[protocol.FormFieldFiles]
	if len(headers) == 0 {
		headers = form.File["file"]
	}
	if len(headers) > ticket.MaxUploadFiles {
		return echo.NewHTTPError(http.StatusBadRequest, ticket.ErrTooManyFiles.Error())
	}
	files := make([]relay.FileUpload, 0, len(headers))
	for _, fh := range headers {
		file, err := readFormFile(fh)
		if err != nil {
			return relayError(err)
		}
		files = append(files, file)
	}

	msgs, err := h.service.Upload(c.Request().Context(), channelID, files)
	if err != nil {
		var upErr *relay.UploadError
		if errors.As(err, &upErr) {
			return c.JSON(http.StatusInternalServerError, protocol.UploadResponse{
				Success:  false,
				Messages: nonNil(upErr.Succeeded),
				Failed:   upErr.FailedNames(),
				Error:    upErr.Error(),
			})
		}
		return relayError(err)
	}
	return c.JSON(http.StatusOK, protocol.UploadResponse{Success: true, Messages: nonNil(msgs)})
}

// ListCategoryChannels godoc
// @Summary List category channels
// @Description List the text channels under a category ordered by position
// @Tags relay
// @Param payload body protocol.CategoryChannelsRequest true "Guild and category"
// @Success 200 {object} protocol.CategoryChannelsResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /relay/category-channels [post]
func (h *RelayHandler) ListCategoryChannels(c echo.Context) error {
	var req protocol.CategoryChannelsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	channels, err := h.service.ListCategoryChannels(c.Request().Context(), req.GuildID, req.CategoryID)
	if err != nil {
		return relayError(err)
	}
	if channels == nil {
		channels = []protocol.ChannelInfo{}
	}
	return c.JSON(http.StatusOK, protocol.CategoryChannelsResponse{Channels: channels})
}

func readFormFile(fh *multipart.FileHeader) (relay.FileUpload, error) {
	if fh.Size > ticket.MaxUploadBytes {
		return relay.FileUpload{}, fmt.Errorf("%w: %s", ticket.ErrFileTooLarge, fh.Filename)
	}
	f, err := fh.Open()
	if err != nil {
		return relay.FileUpload{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := ticket.ReadAllWithLimit(f, ticket.MaxUploadBytes)
	if err != nil {
		return relay.FileUpload{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return relay.FileUpload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Data:        data,
	}, nil
}

func firstFormValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func nonNil(items []ticket.ProviderMessage) []ticket.ProviderMessage {
	if items == nil {
		return []ticket.ProviderMessage{}
	}
	return items
}

// relayError maps service errors to HTTP errors. Input problems are 400, the rest 500.
func relayError(err error) error {
	switch {
	case errors.Is(err, relay.ErrInvalidRequest),
		errors.Is(err, ticket.ErrEmptyMessage),
		errors.Is(err, ticket.ErrNoFiles),
		errors.Is(err, ticket.ErrTooManyFiles),
		errors.Is(err, ticket.ErrFileTooLarge),
		errors.Is(err, ticket.ErrUnsupportedType):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
