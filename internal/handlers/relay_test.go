package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccdsupport/ticketdesk/internal/healthcheck"
	discordchecker "github.com/ccdsupport/ticketdesk/internal/healthcheck/checkers/discord"
	"github.com/ccdsupport/ticketdesk/internal/protocol"
	"github.com/ccdsupport/ticketdesk/internal/relay"
)

type stubDiscord struct {
	mu       sync.Mutex
	channels []*discordgo.Channel
	messages []*discordgo.Message
	sent     int
	failFile string
}

func (s *stubDiscord) GuildChannels(string, ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	return s.channels, nil
}

func (s *stubDiscord) GuildChannelCreateComplex(_ string, data discordgo.GuildChannelCreateData, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: "900", Name: data.Name}, nil
}

func (s *stubDiscord) ChannelMessages(string, int, string, string, string, ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages, nil
}

func (s *stubDiscord) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	msg := &discordgo.Message{
		ID:        "50" + strings.Repeat("0", s.sent),
		ChannelID: channelID,
		Content:   data.Content,
		Author:    &discordgo.User{ID: "bot", Bot: true},
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, f := range data.Files {
		if f.Name == s.failFile {
			return nil, errors.New("rejected by discord")
		}
		msg.Attachments = append(msg.Attachments, &discordgo.MessageAttachment{Filename: f.Name, URL: "https://cdn.example/" + f.Name, ContentType: f.ContentType})
	}
	return msg, nil
}

func (s *stubDiscord) User(string, ...discordgo.RequestOption) (*discordgo.User, error) {
	return &discordgo.User{ID: "bot", Bot: true}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRelayEcho(api relay.DiscordAPI) *echo.Echo {
	log := discardLogger()
	svc := relay.NewService(log, api, relay.Settings{GuildID: "g1", CategoryID: "cat", SupportUserID: "staff"})
	e := echo.New()
	e.Validator = NewRequestValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)
	NewRelayHandler(log, svc).Register(e)
	return e
}

func serve(e *echo.Echo, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestRelayPreflight(t *testing.T) {
	e := newRelayEcho(&stubDiscord{})
	rec := serve(e, http.MethodOptions, protocol.PathSendMessage, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rec.Body.String())
	}
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "Content-Type", rec.Header().Get(echo.HeaderAccessControlAllowHeaders))
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get(echo.HeaderAccessControlAllowMethods))
}

func TestRelayRejectsOtherMethods(t *testing.T) {
	e := newRelayEcho(&stubDiscord{})
	rec := serve(e, http.MethodGet, protocol.PathMessages, nil, "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestRelayMissingToken(t *testing.T) {
	e := newRelayEcho(nil)
	rec := serve(e, http.MethodPost, protocol.PathValidateChannel, strings.NewReader(`{"ticketId":"abc"}`), echo.MIMEApplicationJSON)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	assert.Equal(t, relay.ErrNotConfigured.Error(), decodeError(t, rec))
}

func TestRelayValidateChannel(t *testing.T) {
	api := &stubDiscord{
		channels: []*discordgo.Channel{{ID: "c1", Name: "ticket-abc123", Type: discordgo.ChannelTypeGuildText, ParentID: "cat"}},
		messages: []*discordgo.Message{{ID: "1", Content: "Welcome", Author: &discordgo.User{ID: "staff"}}},
	}
	e := newRelayEcho(api)

	rec := serve(e, http.MethodPost, protocol.PathValidateChannel, strings.NewReader(`{"ticketId":"ticket-ABC123"}`), echo.MIMEApplicationJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp protocol.ValidateChannelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.Equal(t, "c1", resp.ChannelID)
	require.Len(t, resp.Messages, 1)
	assert.True(t, resp.Messages[0].IsFromDiscord)

	rec = serve(e, http.MethodPost, protocol.PathValidateChannel, strings.NewReader(`{"ticketId":"nope"}`), echo.MIMEApplicationJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = protocol.ValidateChannelResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
}

func TestRelayValidationErrors(t *testing.T) {
	e := newRelayEcho(&stubDiscord{})
	rec := serve(e, http.MethodPost, protocol.PathSendMessage, strings.NewReader(`{"channelId":"c1"}`), echo.MIMEApplicationJSON)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	assert.Contains(t, decodeError(t, rec), "Content")
}

func TestRelaySendMessage(t *testing.T) {
	e := newRelayEcho(&stubDiscord{})
	rec := serve(e, http.MethodPost, protocol.PathSendMessage, strings.NewReader(`{"channelId":"c1","content":"Hi there"}`), echo.MIMEApplicationJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp protocol.SendMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Hi there", resp.Message.Content)
	assert.True(t, resp.Message.IsFromWebsite)
}

func multipartBody(t *testing.T, channelID string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField(protocol.FormFieldChannelID, channelID))
	for name, content := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
		h.Set("Content-Type", "text/plain")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestRelayUpload(t *testing.T) {
	e := newRelayEcho(&stubDiscord{})
	body, ct := multipartBody(t, "c1", map[string]string{"a.txt": "alpha", "b.txt": "beta"})
	rec := serve(e, http.MethodPost, protocol.PathUpload, body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp protocol.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.Messages, 2)
}

func TestRelayUploadPartialFailure(t *testing.T) {
	e := newRelayEcho(&stubDiscord{failFile: "b.txt"})
	body, ct := multipartBody(t, "c1", map[string]string{"a.txt": "alpha", "b.txt": "beta"})
	rec := serve(e, http.MethodPost, protocol.PathUpload, body, ct)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp protocol.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
	assert.Equal(t, []string{"b.txt"}, resp.Failed)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "a.txt", resp.Messages[0].Attachments[0].Filename)
}

func TestRelayUploadRequiresChannel(t *testing.T) {
	e := newRelayEcho(&stubDiscord{})
	body, ct := multipartBody(t, "", map[string]string{"a.txt": "alpha"})
	rec := serve(e, http.MethodPost, protocol.PathUpload, body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRelayCategoryChannels(t *testing.T) {
	api := &stubDiscord{
		channels: []*discordgo.Channel{
			{ID: "2", Name: "ticket-b", Type: discordgo.ChannelTypeGuildText, ParentID: "cat", Position: 2},
			{ID: "1", Name: "ticket-a", Type: discordgo.ChannelTypeGuildText, ParentID: "cat", Position: 1},
		},
	}
	e := newRelayEcho(api)
	rec := serve(e, http.MethodPost, protocol.PathCategoryChannels, strings.NewReader(`{}`), echo.MIMEApplicationJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp protocol.CategoryChannelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Channels, 2)
	assert.Equal(t, "1", resp.Channels[0].ID)
}

func TestPing(t *testing.T) {
	log := discardLogger()
	e := echo.New()
	svc := relay.NewService(log, nil, relay.Settings{})
	NewPingHandler(log, svc, []healthcheck.Checker{discordchecker.NewChecker(log, svc)}).Register(e)

	rec := serve(e, http.MethodGet, "/ping", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp PingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "missing_token", resp.Discord)

	rec = serve(e, http.MethodHead, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(e, http.MethodGet, "/health/checks", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var report healthcheck.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, healthcheck.StatusError, report.Status)
	require.Len(t, report.Checks, 1)
	assert.Equal(t, "discord.token", report.Checks[0].ID)
}
