package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/ccdsupport/ticketdesk/internal/logger"
	"github.com/ccdsupport/ticketdesk/internal/protocol"
	"github.com/ccdsupport/ticketdesk/internal/ticket"
)

// maxResponseBytes bounds relay response bodies.
const maxResponseBytes = 16 << 20

// UploadFile is one file selected for upload.
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

func (f UploadFile) meta() ticket.UploadFile {
	return ticket.UploadFile{Name: f.Name, ContentType: f.ContentType, Size: int64(len(f.Data))}
}

// Relay is the set of relay endpoints the session calls.
type Relay interface {
	CreateChannel(ctx context.Context, info protocol.OrderInfo) (protocol.CreateChannelResponse, error)
	ValidateChannel(ctx context.Context, ticketID string) (protocol.ValidateChannelResponse, error)
	Messages(ctx context.Context, req protocol.MessagesRequest) (protocol.MessagesResponse, error)
	SendMessage(ctx context.Context, channelID, content string) (ticket.ProviderMessage, error)
	Upload(ctx context.Context, channelID string, file UploadFile) ([]ticket.ProviderMessage, error)
	CategoryChannels(ctx context.Context, guildID, categoryID string) ([]protocol.ChannelInfo, error)
}

// HTTPRelay calls the relay endpoints over HTTP.
type HTTPRelay struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPRelay returns a relay client for baseURL. timeout bounds every request.
func NewHTTPRelay(log *slog.Logger, baseURL string, timeout time.Duration) *HTTPRelay {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPRelay{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("component", "relay_client")),
	}
}

func (r *HTTPRelay) CreateChannel(ctx context.Context, info protocol.OrderInfo) (protocol.CreateChannelResponse, error) {
	var out protocol.CreateChannelResponse
	err := r.postJSON(ctx, protocol.PathCreateChannel, protocol.CreateChannelRequest{OrderInfo: info}, &out)
	return out, err
}

func (r *HTTPRelay) ValidateChannel(ctx context.Context, ticketID string) (protocol.ValidateChannelResponse, error) {
	var out protocol.ValidateChannelResponse
	err := r.postJSON(ctx, protocol.PathValidateChannel, protocol.ValidateChannelRequest{TicketID: ticketID}, &out)
	return out, err
}

func (r *HTTPRelay) Messages(ctx context.Context, req protocol.MessagesRequest) (protocol.MessagesResponse, error) {
	var out protocol.MessagesResponse
	err := r.postJSON(ctx, protocol.PathMessages, req, &out)
	return out, err
}

func (r *HTTPRelay) SendMessage(ctx context.Context, channelID, content string) (ticket.ProviderMessage, error) {
	var out protocol.SendMessageResponse
	err := r.postJSON(ctx, protocol.PathSendMessage, protocol.SendMessageRequest{ChannelID: channelID, Content: content}, &out)
	return out.Message, err
}

func (r *HTTPRelay) CategoryChannels(ctx context.Context, guildID, categoryID string) ([]protocol.ChannelInfo, error) {
	var out protocol.CategoryChannelsResponse
	err := r.postJSON(ctx, protocol.PathCategoryChannels, protocol.CategoryChannelsRequest{GuildID: guildID, CategoryID: categoryID}, &out)
	return out.Channels, err
}

// Upload posts a single file as a multipart form.
func (r *HTTPRelay) Upload(ctx context.Context, channelID string, file UploadFile) ([]ticket.ProviderMessage, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField(protocol.FormFieldChannelID, channelID); err != nil {
		return nil, err
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, protocol.FormFieldFiles, file.Name))
	contentType := strings.TrimSpace(file.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, err
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	var out protocol.UploadResponse
	if err := r.do(ctx, protocol.PathUpload, form.FormDataContentType(), &body, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (r *HTTPRelay) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.do(ctx, path, "application/json", bytes.NewReader(body), out)
}

func (r *HTTPRelay) do(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	url := r.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("relay %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := ticket.ReadAllWithLimit(resp.Body, maxResponseBytes)
	if err != nil {
		return fmt.Errorf("relay %s: read response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure protocol.ErrorResponse
		_ = json.Unmarshal(respBody, &failure)
		msg := failure.Error
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		r.logger.Debug("relay error", slog.String("path", path), slog.Int("status", resp.StatusCode), slog.String("body_prefix", logger.SummarizeText(string(respBody))))
		return &RelayError{Path: path, Status: resp.StatusCode, Message: msg}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("relay %s: decode response: %w", path, err)
	}
	return nil
}
