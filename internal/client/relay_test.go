package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccdsupport/ticketdesk/internal/protocol"
	"github.com/ccdsupport/ticketdesk/internal/ticket"
)

func newTestRelay(t *testing.T, handler http.HandlerFunc) *HTTPRelay {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPRelay(slog.New(slog.NewTextHandler(io.Discard, nil)), srv.URL+"/", time.Second)
}

func TestHTTPRelayMessages(t *testing.T) {
	relay := newTestRelay(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != protocol.PathMessages || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req protocol.MessagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.ChannelID != "c1" || req.After != "10" {
			t.Errorf("unexpected body %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(protocol.MessagesResponse{
			Messages: []ticket.ProviderMessage{{ID: "11", Content: "hi"}},
			Cursor:   "12",
		})
	})

	resp, err := relay.Messages(context.Background(), protocol.MessagesRequest{ChannelID: "c1", After: "10"})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "hi", resp.Messages[0].Content)
	assert.Equal(t, "12", resp.Cursor)
}

func TestHTTPRelayErrorBody(t *testing.T) {
	relay := newTestRelay(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"discord bot token is not configured"}`))
	})

	_, err := relay.SendMessage(context.Background(), "c1", "hello")
	var relayErr *RelayError
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, http.StatusInternalServerError, relayErr.Status)
	assert.Equal(t, "discord bot token is not configured", relayErr.Message)
}

func TestHTTPRelayUploadMultipart(t *testing.T) {
	relay := newTestRelay(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.FormValue(protocol.FormFieldChannelID); got != "c1" {
			t.Errorf("channel id = %q", got)
		}
		files := r.MultipartForm.File[protocol.FormFieldFiles]
		if len(files) != 1 || files[0].Filename != "notes.txt" || files[0].Header.Get("Content-Type") != "text/plain" {
			t.Errorf("unexpected files %+v", files)
		}
		_ = json.NewEncoder(w).Encode(protocol.UploadResponse{
			Success:  true,
			Messages: []ticket.ProviderMessage{{ID: "7", Attachments: []ticket.ProviderAttachment{{Filename: "notes.txt"}}}},
		})
	})

	msgs, err := relay.Upload(context.Background(), "c1", UploadFile{Name: "notes.txt", ContentType: "text/plain", Data: []byte("hello")})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "7", msgs[0].ID)
}
