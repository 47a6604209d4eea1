// Package protocol defines the JSON contract between the chat client and the relay endpoints.
package protocol

import "github.com/ccdsupport/ticketdesk/internal/ticket"

// Relay routes.
const (
	PathCreateChannel    = "/relay/create-channel"
	PathValidateChannel  = "/relay/validate-channel"
	PathMessages         = "/relay/messages"
	PathSendMessage      = "/relay/send-message"
	PathUpload           = "/relay/upload"
	PathCategoryChannels = "/relay/category-channels"
	PathStream           = "/relay/stream"
)

// Multipart field names of the upload endpoint.
const (
	FormFieldFiles     = "files"
	FormFieldChannelID = "channelId"
)

const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 100
)

// OrderInfo is the quote/order form submitted when a ticket is opened.
type OrderInfo struct {
	OrderNumber   string `json:"orderNumber" validate:"omitempty,max=32"`
	ProjectName   string `json:"projectName" validate:"max=200"`
	Email         string `json:"email" validate:"omitempty,email"`
	Details       string `json:"details" validate:"max=4000"`
	Type          string `json:"type" validate:"max=64"`
	GuildID       string `json:"guildId,omitempty"`
	CategoryID    string `json:"categoryId,omitempty"`
	SupportRoleID string `json:"supportRoleId,omitempty"`
	ChannelName   string `json:"channelName,omitempty" validate:"omitempty,max=90"`
}

type CreateChannelRequest struct {
	OrderInfo OrderInfo `json:"orderInfo"`
}

type CreateChannelResponse struct {
	Success     bool   `json:"success"`
	ChannelID   string `json:"channelId"`
	OrderNumber string `json:"orderNumber"`
}

type ValidateChannelRequest struct {
	TicketID string `json:"ticketId" validate:"required,max=100"`
}

type ValidateChannelResponse struct {
	Valid     bool                     `json:"valid"`
	ChannelID string                   `json:"channelId,omitempty"`
	Messages  []ticket.ProviderMessage `json:"messages,omitempty"`
}

type MessagesRequest struct {
	ChannelID     string `json:"channelId" validate:"required"`
	After         string `json:"after,omitempty"`
	IsInitialLoad bool   `json:"isInitialLoad,omitempty"`
	Limit         int    `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
}

// MessagesResponse carries the page and the newest identifier the relay scanned, which callers use
// as their next after cursor.
type MessagesResponse struct {
	Messages []ticket.ProviderMessage `json:"messages"`
	Cursor   string                   `json:"cursor,omitempty"`
}

type SendMessageRequest struct {
	ChannelID string `json:"channelId" validate:"required"`
	Content   string `json:"content" validate:"required,max=4000"`
}

type SendMessageResponse struct {
	Message ticket.ProviderMessage `json:"message"`
}

// UploadResponse is returned by the upload endpoint. On failure Error is set and Messages lists
// the files that did reach the provider.
type UploadResponse struct {
	Success  bool                     `json:"success"`
	Messages []ticket.ProviderMessage `json:"messages"`
	Failed   []string                 `json:"failed,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

type CategoryChannelsRequest struct {
	GuildID    string `json:"guildId"`
	CategoryID string `json:"categoryId"`
}

type ChannelInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Topic         string `json:"topic,omitempty"`
	Position      int    `json:"position"`
	LastMessageID string `json:"lastMessageId,omitempty"`
}

type CategoryChannelsResponse struct {
	Channels []ChannelInfo `json:"channels"`
}

// ErrorResponse is the body of every non-2xx relay response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StreamEvent is one frame pushed over the relay stream.
type StreamEvent struct {
	Type    string          `json:"type"`
	Message *ticket.Message `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

const (
	StreamEventMessage = "message"
	StreamEventReady   = "ready"
	StreamEventError   = "error"
)

// StreamCommand is a frame sent by the browser over the relay stream.
type StreamCommand struct {
	Content string `json:"content"`
}
