package domain

import "time"

// Conversation is the list-view summary of a chat with one participant.
type Conversation struct {
	ID            string
	ParticipantID string
	Participant   string
	LastMessage   string
	Timestamp     time.Time
	UnreadCount   int
	IsOnline      bool
	LastSeen      *time.Time
	OrderID       string
}

// ConversationPatch is a partial local update applied by UpdateLocal.
// Nil fields are left untouched.
type ConversationPatch struct {
	LastMessage *string
	Timestamp   *time.Time
	UnreadCount *int
	IsOnline    *bool
	LastSeen    *time.Time
}

// Apply merges the patch into c.
func (p ConversationPatch) Apply(c *Conversation) {
	if p.LastMessage != nil {
		c.LastMessage = *p.LastMessage
	}
	if p.Timestamp != nil {
		c.Timestamp = *p.Timestamp
	}
	if p.UnreadCount != nil {
		c.UnreadCount = *p.UnreadCount
	}
	if p.IsOnline != nil {
		c.IsOnline = *p.IsOnline
	}
	if p.LastSeen != nil {
		c.LastSeen = p.LastSeen
	}
}

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	// MessagePending is local-only: an optimistic send that the server has
	// not acknowledged yet.
	MessagePending   MessageStatus = "pending"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
)

var statusRank = map[MessageStatus]int{
	MessagePending:   0,
	MessageSent:      1,
	MessageDelivered: 2,
	MessageRead:      3,
}

// Advance returns the further-along of the two statuses. Delivery state is
// monotonic: sent -> delivered -> read, never backwards.
func (s MessageStatus) Advance(to MessageStatus) MessageStatus {
	if statusRank[to] > statusRank[s] {
		return to
	}
	return s
}

// AttachmentKind classifies a message attachment.
type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentDocument AttachmentKind = "document"
	AttachmentVideo    AttachmentKind = "video"
)

// Attachment is a file carried by a message.
type Attachment struct {
	ID       string
	Kind     AttachmentKind
	URL      string
	Filename string
	Size     int64
}

// Message is a single message inside a conversation.
type Message struct {
	ID             string
	ConversationID string
	Text           string
	Sender         string
	SenderID       string
	Timestamp      time.Time
	IsOwn          bool
	Status         MessageStatus
	Attachments    []Attachment
}

// MessagePage is one page of a conversation's message history.
type MessagePage struct {
	Messages []Message
	Total    int
	Page     int
	Limit    int
	HasMore  bool
}

// FileUpload is an outgoing file destined for a multipart request.
type FileUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

// EvidenceKind classifies a piece of dispute evidence.
type EvidenceKind string

const (
	EvidenceImage    EvidenceKind = "image"
	EvidenceDocument EvidenceKind = "document"
)

// Evidence is an uploaded file attached to a dispute.
type Evidence struct {
	ID         string
	Kind       EvidenceKind
	URL        string
	Filename   string
	UploadedAt time.Time
}

// TimelineKind classifies a dispute timeline entry.
type TimelineKind string

const (
	TimelineCreated       TimelineKind = "created"
	TimelineStatusChange  TimelineKind = "status_change"
	TimelineComment       TimelineKind = "comment"
	TimelineEvidenceAdded TimelineKind = "evidence_added"
	TimelineResolved      TimelineKind = "resolved"
)

// TimelineEvent is one entry in a dispute's server-maintained audit trail.
type TimelineEvent struct {
	ID          string
	Kind        TimelineKind
	Description string
	Timestamp   time.Time
	Actor       string
	Metadata    map[string]any
}

// Dispute is an order dispute with its evidence and timeline.
type Dispute struct {
	ID          string
	OrderID     string
	Status      DisputeStatus
	Reason      string
	Description string
	Amount      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Evidence    []Evidence
	Timeline    []TimelineEvent
}

// DisputePatch is a partial dispute update sent to the authority via PATCH.
// The server returns the full updated record; clients never merge locally.
type DisputePatch struct {
	Reason      *string `json:"reason,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
}
