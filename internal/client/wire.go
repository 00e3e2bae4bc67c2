// Package client maps domain operations onto the authority's REST endpoints.
// Clients are stateless translators: one endpoint template per operation,
// wire timestamps parsed fail-fast into temporal values.
package client

import (
	"fmt"
	"time"

	"github.com/lfmelo/dealdesk/internal/domain"
	"github.com/lfmelo/dealdesk/internal/transport"
)

type conversationWire struct {
	ID            string `json:"id"`
	ParticipantID string `json:"participantId"`
	Participant   string `json:"participant"`
	LastMessage   string `json:"lastMessage"`
	Timestamp     string `json:"timestamp"`
	UnreadCount   int    `json:"unreadCount"`
	IsOnline      bool   `json:"isOnline,omitempty"`
	LastSeen      string `json:"lastSeen,omitempty"`
	OrderID       string `json:"orderId,omitempty"`
}

func (w conversationWire) toDomain() (domain.Conversation, error) {
	ts, err := parseStamp("conversation.timestamp", w.Timestamp)
	if err != nil {
		return domain.Conversation{}, err
	}
	lastSeen, err := parseOptionalStamp("conversation.lastSeen", w.LastSeen)
	if err != nil {
		return domain.Conversation{}, err
	}
	return domain.Conversation{
		ID:            w.ID,
		ParticipantID: w.ParticipantID,
		Participant:   w.Participant,
		LastMessage:   w.LastMessage,
		Timestamp:     ts,
		UnreadCount:   w.UnreadCount,
		IsOnline:      w.IsOnline,
		LastSeen:      lastSeen,
		OrderID:       w.OrderID,
	}, nil
}

type attachmentWire struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type messageWire struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversationId"`
	Text           string           `json:"text"`
	Sender         string           `json:"sender"`
	SenderID       string           `json:"senderId"`
	Timestamp      string           `json:"timestamp"`
	Status         string           `json:"status,omitempty"`
	Attachments    []attachmentWire `json:"attachments,omitempty"`
}

// toDomain translates a wire message. Ownership is derived from the sender
// identity against the current user, never read from the wire: a hostile
// payload must not be able to claim our side of the conversation.
func (w messageWire) toDomain(userID string) (domain.Message, error) {
	ts, err := parseStamp("message.timestamp", w.Timestamp)
	if err != nil {
		return domain.Message{}, err
	}
	status := domain.MessageStatus(w.Status)
	if status == "" {
		status = domain.MessageSent
	}
	msg := domain.Message{
		ID:             w.ID,
		ConversationID: w.ConversationID,
		Text:           w.Text,
		Sender:         w.Sender,
		SenderID:       w.SenderID,
		Timestamp:      ts,
		IsOwn:          userID != "" && w.SenderID == userID,
		Status:         status,
	}
	for _, a := range w.Attachments {
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			ID:       a.ID,
			Kind:     domain.AttachmentKind(a.Type),
			URL:      a.URL,
			Filename: a.Filename,
			Size:     a.Size,
		})
	}
	return msg, nil
}

type pageWire struct {
	Data    []messageWire `json:"data"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	Limit   int           `json:"limit"`
	HasMore bool          `json:"hasMore"`
}

type evidenceWire struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	URL        string `json:"url"`
	Filename   string `json:"filename"`
	UploadedAt string `json:"uploadedAt"`
}

type timelineWire struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Timestamp   string         `json:"timestamp"`
	Actor       string         `json:"actor"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type disputeWire struct {
	ID          string         `json:"id"`
	OrderID     string         `json:"orderId"`
	Status      string         `json:"status"`
	Reason      string         `json:"reason"`
	Description string         `json:"description"`
	Amount      string         `json:"amount"`
	CreatedAt   string         `json:"createdAt"`
	UpdatedAt   string         `json:"updatedAt"`
	Evidence    []evidenceWire `json:"evidence"`
	Timeline    []timelineWire `json:"timeline"`
}

func (w disputeWire) toDomain() (domain.Dispute, error) {
	status, ok := domain.NormalizeDisputeStatus(w.Status)
	if !ok {
		return domain.Dispute{}, transport.NewDecodeError("dispute.status",
			fmt.Errorf("unknown status %q", w.Status))
	}
	createdAt, err := parseStamp("dispute.createdAt", w.CreatedAt)
	if err != nil {
		return domain.Dispute{}, err
	}
	updatedAt, err := parseStamp("dispute.updatedAt", w.UpdatedAt)
	if err != nil {
		return domain.Dispute{}, err
	}

	d := domain.Dispute{
		ID:          w.ID,
		OrderID:     w.OrderID,
		Status:      status,
		Reason:      w.Reason,
		Description: w.Description,
		Amount:      w.Amount,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
	for _, e := range w.Evidence {
		uploadedAt, err := parseStamp("evidence.uploadedAt", e.UploadedAt)
		if err != nil {
			return domain.Dispute{}, err
		}
		d.Evidence = append(d.Evidence, domain.Evidence{
			ID:         e.ID,
			Kind:       domain.EvidenceKind(e.Type),
			URL:        e.URL,
			Filename:   e.Filename,
			UploadedAt: uploadedAt,
		})
	}
	for _, ev := range w.Timeline {
		ts, err := parseStamp("timeline.timestamp", ev.Timestamp)
		if err != nil {
			return domain.Dispute{}, err
		}
		d.Timeline = append(d.Timeline, domain.TimelineEvent{
			ID:          ev.ID,
			Kind:        domain.TimelineKind(ev.Type),
			Description: ev.Description,
			Timestamp:   ts,
			Actor:       ev.Actor,
			Metadata:    ev.Metadata,
		})
	}
	return d, nil
}

// parseStamp parses a required RFC3339 wire timestamp. A malformed value
// fails the whole response rather than silently zeroing.
func parseStamp(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, transport.NewDecodeError(field, fmt.Errorf("missing timestamp"))
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, transport.NewDecodeError(field, err)
	}
	return ts, nil
}

func parseOptionalStamp(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	ts, err := parseStamp(field, value)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func uploads(field string, files []domain.FileUpload) []transport.FilePart {
	parts := make([]transport.FilePart, 0, len(files))
	for _, f := range files {
		parts = append(parts, transport.FilePart{
			Field:       field,
			Filename:    f.Name,
			ContentType: f.ContentType,
			Data:        f.Data,
		})
	}
	return parts
}
