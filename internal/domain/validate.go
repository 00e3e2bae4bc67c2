package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MinDisputeDescription is the minimum description length accepted at
// dispute creation, enforced locally before any network call.
const MinDisputeDescription = 20

// ValidationError is a local, pre-network rejection of an operation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// CreateDisputeInput is the payload for opening a new dispute.
type CreateDisputeInput struct {
	OrderID     string
	Reason      string
	Description string
}

// Validate checks the input locally. It fails fast so that invalid payloads
// never reach the network.
func (in CreateDisputeInput) Validate() error {
	if strings.TrimSpace(in.OrderID) == "" {
		return &ValidationError{Field: "orderId", Reason: "is required"}
	}
	if strings.TrimSpace(in.Reason) == "" {
		return &ValidationError{Field: "reason", Reason: "is required"}
	}
	if utf8.RuneCountInString(strings.TrimSpace(in.Description)) < MinDisputeDescription {
		return &ValidationError{
			Field:  "description",
			Reason: fmt.Sprintf("must be at least %d characters", MinDisputeDescription),
		}
	}
	return nil
}
