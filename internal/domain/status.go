package domain

import "slices"

// DisputeStatus is the server-owned lifecycle state of a dispute.
type DisputeStatus string

const (
	DisputePendingVerification DisputeStatus = "pending_verification"
	DisputeInReview            DisputeStatus = "in_review"
	DisputeAwaitingSeller      DisputeStatus = "awaiting_seller"
	DisputeResolved            DisputeStatus = "resolved"
	DisputeRejected            DisputeStatus = "rejected"
)

// NormalizeDisputeStatus maps wire aliases onto canonical statuses. The
// authority emits "waiting_seller" in some responses.
func NormalizeDisputeStatus(s string) (DisputeStatus, bool) {
	switch DisputeStatus(s) {
	case DisputePendingVerification, DisputeInReview, DisputeAwaitingSeller,
		DisputeResolved, DisputeRejected:
		return DisputeStatus(s), true
	}
	if s == "waiting_seller" {
		return DisputeAwaitingSeller, true
	}
	return "", false
}

// validTransitions mirrors the server's dispute state machine. The client
// never advances a status locally; this table only gates which actions are
// offered for the current status.
var validTransitions = map[DisputeStatus][]DisputeStatus{
	DisputePendingVerification: {DisputeInReview, DisputeRejected},
	DisputeInReview:            {DisputeAwaitingSeller, DisputeResolved, DisputeRejected},
	DisputeAwaitingSeller:      {DisputeInReview, DisputeResolved, DisputeRejected},
	DisputeResolved:            {},
	DisputeRejected:            {},
}

// CanTransition reports whether the server may legally move a dispute from
// one status to another.
func CanTransition(from, to DisputeStatus) bool {
	return slices.Contains(validTransitions[from], to)
}

// Terminal reports whether no further status transition is possible.
func (s DisputeStatus) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// DisputeAction is a user-facing operation offered for a dispute.
type DisputeAction string

const (
	ActionRespond     DisputeAction = "respond"
	ActionCancel      DisputeAction = "cancel"
	ActionAddEvidence DisputeAction = "add_evidence"
	ActionComment     DisputeAction = "comment"
)

// AvailableActions returns the actions a consumer may offer for a dispute in
// the given status. Seller responses are only accepted while the dispute
// waits on the seller; cancellation only before review concludes.
func AvailableActions(s DisputeStatus) []DisputeAction {
	if s.Terminal() {
		return nil
	}
	actions := []DisputeAction{ActionAddEvidence, ActionComment}
	if s == DisputeAwaitingSeller {
		actions = append(actions, ActionRespond)
	}
	if s == DisputePendingVerification || s == DisputeInReview {
		actions = append(actions, ActionCancel)
	}
	return actions
}
