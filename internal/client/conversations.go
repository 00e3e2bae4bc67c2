package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/lfmelo/dealdesk/internal/domain"
	"github.com/lfmelo/dealdesk/internal/transport"
)

// ConversationClient translates conversation and message operations onto
// the authority's endpoints.
type ConversationClient struct {
	api    *transport.Client
	userID string
}

// NewConversationClient creates a client. userID identifies the current
// user; message ownership is derived from it.
func NewConversationClient(api *transport.Client, userID string) *ConversationClient {
	return &ConversationClient{api: api, userID: userID}
}

// List fetches all conversations for the current user.
func (c *ConversationClient) List(ctx context.Context) ([]domain.Conversation, error) {
	data, err := c.api.Get(ctx, "/conversations")
	if err != nil {
		return nil, err
	}
	var wires []conversationWire
	if err := json.Unmarshal(data, &wires); err != nil {
		return nil, transport.NewDecodeError("conversations", err)
	}
	out := make([]domain.Conversation, 0, len(wires))
	for _, w := range wires {
		conv, err := w.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, nil
}

// Get fetches a single conversation.
func (c *ConversationClient) Get(ctx context.Context, id string) (domain.Conversation, error) {
	data, err := c.api.Get(ctx, "/conversations/"+url.PathEscape(id))
	if err != nil {
		return domain.Conversation{}, err
	}
	var w conversationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.Conversation{}, transport.NewDecodeError("conversation", err)
	}
	return w.toDomain()
}

// Create opens a conversation with a participant, optionally sending an
// initial message. The server creates the conversation record.
func (c *ConversationClient) Create(ctx context.Context, participantID, initialMessage string) (domain.Conversation, error) {
	body := map[string]string{"participantId": participantID}
	if initialMessage != "" {
		body["initialMessage"] = initialMessage
	}
	data, err := c.api.Post(ctx, "/conversations", body,
		transport.WithIdempotencyKey(uuid.NewString()))
	if err != nil {
		return domain.Conversation{}, err
	}
	var w conversationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.Conversation{}, transport.NewDecodeError("conversation", err)
	}
	return w.toDomain()
}

// MarkRead tells the authority the conversation was read.
func (c *ConversationClient) MarkRead(ctx context.Context, id string) error {
	_, err := c.api.Post(ctx, "/conversations/"+url.PathEscape(id)+"/read", nil)
	return err
}

// Messages fetches one page of a conversation's history. Zero page/limit
// fall back to the authority defaults (page 1, 50 per page).
func (c *ConversationClient) Messages(ctx context.Context, conversationID string, page, limit int) (domain.MessagePage, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	path := fmt.Sprintf("/conversations/%s/messages?page=%d&limit=%d",
		url.PathEscape(conversationID), page, limit)
	data, err := c.api.Get(ctx, path)
	if err != nil {
		return domain.MessagePage{}, err
	}
	var pw pageWire
	if err := json.Unmarshal(data, &pw); err != nil {
		return domain.MessagePage{}, transport.NewDecodeError("messages", err)
	}
	result := domain.MessagePage{
		Total:   pw.Total,
		Page:    pw.Page,
		Limit:   pw.Limit,
		HasMore: pw.HasMore,
	}
	for _, w := range pw.Data {
		msg, err := w.toDomain(c.userID)
		if err != nil {
			return domain.MessagePage{}, err
		}
		result.Messages = append(result.Messages, msg)
	}
	return result, nil
}

// SendMessage posts a message: JSON when text-only, multipart when carrying
// attachments.
func (c *ConversationClient) SendMessage(ctx context.Context, conversationID, text string, attachments []domain.FileUpload) (domain.Message, error) {
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	key := transport.WithIdempotencyKey(uuid.NewString())

	var data json.RawMessage
	var err error
	if len(attachments) == 0 {
		data, err = c.api.Post(ctx, path, map[string]string{"text": text}, key)
	} else {
		fields := []transport.FormField{{Name: "text", Value: text}}
		data, err = c.api.Upload(ctx, path, fields, uploads("attachments", attachments), key)
	}
	if err != nil {
		return domain.Message{}, err
	}

	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.Message{}, transport.NewDecodeError("message", err)
	}
	return w.toDomain(c.userID)
}
