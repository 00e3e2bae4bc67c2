package client

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/google/uuid"
	"github.com/lfmelo/dealdesk/internal/domain"
	"github.com/lfmelo/dealdesk/internal/transport"
)

// DisputeClient translates dispute operations onto the authority's
// endpoints.
type DisputeClient struct {
	api *transport.Client
}

// NewDisputeClient creates a client.
func NewDisputeClient(api *transport.Client) *DisputeClient {
	return &DisputeClient{api: api}
}

// List fetches disputes, filtered server-side when status is non-nil.
func (c *DisputeClient) List(ctx context.Context, status *domain.DisputeStatus) ([]domain.Dispute, error) {
	path := "/disputes"
	if status != nil {
		path += "?status=" + url.QueryEscape(string(*status))
	}
	data, err := c.api.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	var wires []disputeWire
	if err := json.Unmarshal(data, &wires); err != nil {
		return nil, transport.NewDecodeError("disputes", err)
	}
	out := make([]domain.Dispute, 0, len(wires))
	for _, w := range wires {
		d, err := w.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Get fetches a single dispute.
func (c *DisputeClient) Get(ctx context.Context, id string) (domain.Dispute, error) {
	data, err := c.api.Get(ctx, "/disputes/"+url.PathEscape(id))
	if err != nil {
		return domain.Dispute{}, err
	}
	return decodeDispute(data)
}

// Create files a new dispute as multipart: orderId, reason, description,
// then one part per evidence file. The idempotency key keeps retried
// creates from double-filing.
func (c *DisputeClient) Create(ctx context.Context, input domain.CreateDisputeInput, evidence []domain.FileUpload) (domain.Dispute, error) {
	fields := []transport.FormField{
		{Name: "orderId", Value: input.OrderID},
		{Name: "reason", Value: input.Reason},
		{Name: "description", Value: input.Description},
	}
	data, err := c.api.Upload(ctx, "/disputes", fields, uploads("evidence", evidence),
		transport.WithIdempotencyKey(uuid.NewString()))
	if err != nil {
		return domain.Dispute{}, err
	}
	return decodeDispute(data)
}

// Update PATCHes a partial dispute; the server returns the full record.
func (c *DisputeClient) Update(ctx context.Context, id string, patch domain.DisputePatch) (domain.Dispute, error) {
	data, err := c.api.Patch(ctx, "/disputes/"+url.PathEscape(id), patch)
	if err != nil {
		return domain.Dispute{}, err
	}
	return decodeDispute(data)
}

// AddEvidence uploads files onto an existing dispute and returns the
// server's full updated record (the server also appends a timeline event).
func (c *DisputeClient) AddEvidence(ctx context.Context, id string, files []domain.FileUpload) (domain.Dispute, error) {
	data, err := c.api.Upload(ctx, "/disputes/"+url.PathEscape(id)+"/evidence",
		nil, uploads("evidence", files),
		transport.WithIdempotencyKey(uuid.NewString()))
	if err != nil {
		return domain.Dispute{}, err
	}
	return decodeDispute(data)
}

// AddComment posts a comment and returns the full updated dispute.
func (c *DisputeClient) AddComment(ctx context.Context, id, comment string) (domain.Dispute, error) {
	data, err := c.api.Post(ctx, "/disputes/"+url.PathEscape(id)+"/comments",
		map[string]string{"comment": comment},
		transport.WithIdempotencyKey(uuid.NewString()))
	if err != nil {
		return domain.Dispute{}, err
	}
	return decodeDispute(data)
}

func decodeDispute(data json.RawMessage) (domain.Dispute, error) {
	var w disputeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.Dispute{}, transport.NewDecodeError("dispute", err)
	}
	return w.toDomain()
}
