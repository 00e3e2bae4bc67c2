// Package store holds the in-memory state the rest of the process reads:
// conversations, the active conversation's messages, and disputes. Stores
// own their mutation rules; consumers observe changes through the bus and
// read immutable snapshots.
package store

// Event kinds published by the stores. Subscribers filter by prefix, e.g.
// "messages." for everything message-related.
const (
	EventConversationsUpdated    = "conversations.updated"
	EventConversationsLoadFailed = "conversations.load_failed"
	EventConversationRead        = "conversations.read"

	EventMessagesUpdated    = "messages.updated"
	EventMessagesLoadFailed = "messages.load_failed"
	EventMessageSendPending = "messages.send_pending"
	EventMessageSendAck     = "messages.send_ack"
	EventMessageSendFailed  = "messages.send_failed"

	EventDisputesUpdated    = "disputes.updated"
	EventDisputesLoadFailed = "disputes.load_failed"
	EventDisputeCreated     = "disputes.created"
	EventDisputeReplaced    = "disputes.replaced"
)
