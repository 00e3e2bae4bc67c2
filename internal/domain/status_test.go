package domain

import (
	"slices"
	"testing"
)

func TestNormalizeDisputeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want DisputeStatus
		ok   bool
	}{
		{"pending_verification", DisputePendingVerification, true},
		{"in_review", DisputeInReview, true},
		{"awaiting_seller", DisputeAwaitingSeller, true},
		{"waiting_seller", DisputeAwaitingSeller, true},
		{"resolved", DisputeResolved, true},
		{"rejected", DisputeRejected, true},
		{"open", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeDisputeStatus(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizeDisputeStatus(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []DisputeStatus{DisputeResolved, DisputeRejected} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
		if actions := AvailableActions(s); len(actions) != 0 {
			t.Errorf("%s should offer no actions, got %v", s, actions)
		}
	}
	for _, s := range []DisputeStatus{DisputePendingVerification, DisputeInReview, DisputeAwaitingSeller} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestAvailableActions(t *testing.T) {
	if got := AvailableActions(DisputeAwaitingSeller); !slices.Contains(got, ActionRespond) {
		t.Errorf("awaiting_seller should offer respond, got %v", got)
	}
	if got := AvailableActions(DisputeInReview); slices.Contains(got, ActionRespond) {
		t.Errorf("in_review should not offer respond, got %v", got)
	}
	for _, s := range []DisputeStatus{DisputePendingVerification, DisputeInReview} {
		if got := AvailableActions(s); !slices.Contains(got, ActionCancel) {
			t.Errorf("%s should offer cancel, got %v", s, got)
		}
	}
	if got := AvailableActions(DisputeAwaitingSeller); slices.Contains(got, ActionCancel) {
		t.Errorf("awaiting_seller should not offer cancel, got %v", got)
	}
}

func TestCanTransition(t *testing.T) {
	if !CanTransition(DisputeInReview, DisputeResolved) {
		t.Error("in_review -> resolved should be legal")
	}
	if CanTransition(DisputeResolved, DisputeInReview) {
		t.Error("resolved is terminal, no transitions out")
	}
	if CanTransition(DisputePendingVerification, DisputeAwaitingSeller) {
		t.Error("pending_verification -> awaiting_seller skips review")
	}
}

func TestMessageStatusAdvance(t *testing.T) {
	tests := []struct {
		from, to, want MessageStatus
	}{
		{MessageSent, MessageDelivered, MessageDelivered},
		{MessageDelivered, MessageRead, MessageRead},
		{MessageRead, MessageSent, MessageRead},
		{MessageDelivered, MessageSent, MessageDelivered},
		{MessagePending, MessageSent, MessageSent},
	}
	for _, tt := range tests {
		if got := tt.from.Advance(tt.to); got != tt.want {
			t.Errorf("%s.Advance(%s) = %s, want %s", tt.from, tt.to, got, tt.want)
		}
	}
}
