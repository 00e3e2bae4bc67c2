package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lfmelo/dealdesk/internal/domain"
)

// evidenceRow / timelineRow are the JSON column encodings. time.Time
// marshals as RFC3339, so the cache round-trips the same precision the wire
// carries.
type evidenceRow struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	URL        string    `json:"url"`
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type timelineRow struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Description string         `json:"description"`
	Timestamp   time.Time      `json:"timestamp"`
	Actor       string         `json:"actor"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// UpsertDispute inserts or replaces one cached dispute.
func (db *DB) UpsertDispute(d domain.Dispute) error {
	evidence, timeline, err := encodeDisputeColumns(d)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		INSERT INTO disputes (id, order_id, status, reason, description, amount, created_at, updated_at, evidence, timeline, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			order_id = excluded.order_id,
			status = excluded.status,
			reason = excluded.reason,
			description = excluded.description,
			amount = excluded.amount,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			evidence = excluded.evidence,
			timeline = excluded.timeline,
			cached_at = excluded.cached_at`,
		d.ID, d.OrderID, string(d.Status), d.Reason, d.Description, d.Amount,
		d.CreatedAt.UnixMilli(), d.UpdatedAt.UnixMilli(), evidence, timeline,
		time.Now().UnixMilli())
	return err
}

// ReplaceDisputes swaps the whole cached dispute snapshot.
func (db *DB) ReplaceDisputes(disputes []domain.Dispute) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM disputes`); err != nil {
		return fmt.Errorf("clear disputes: %w", err)
	}
	now := time.Now().UnixMilli()
	for _, d := range disputes {
		evidence, timeline, err := encodeDisputeColumns(d)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO disputes (id, order_id, status, reason, description, amount, created_at, updated_at, evidence, timeline, cached_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.OrderID, string(d.Status), d.Reason, d.Description, d.Amount,
			d.CreatedAt.UnixMilli(), d.UpdatedAt.UnixMilli(), evidence, timeline, now); err != nil {
			return fmt.Errorf("insert dispute %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// ListDisputes returns cached disputes, most recently created first.
func (db *DB) ListDisputes() ([]domain.Dispute, error) {
	rows, err := db.Query(`
		SELECT id, order_id, status, reason, description, amount, created_at, updated_at, evidence, timeline
		FROM disputes
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var disputes []domain.Dispute
	for rows.Next() {
		var d domain.Dispute
		var status, evidence, timeline string
		var createdAt, updatedAt int64
		if err := rows.Scan(&d.ID, &d.OrderID, &status, &d.Reason, &d.Description,
			&d.Amount, &createdAt, &updatedAt, &evidence, &timeline); err != nil {
			return nil, err
		}
		d.Status = domain.DisputeStatus(status)
		d.CreatedAt = time.UnixMilli(createdAt)
		d.UpdatedAt = time.UnixMilli(updatedAt)

		var evRows []evidenceRow
		if err := json.Unmarshal([]byte(evidence), &evRows); err != nil {
			return nil, fmt.Errorf("decode evidence for %s: %w", d.ID, err)
		}
		for _, e := range evRows {
			d.Evidence = append(d.Evidence, domain.Evidence{
				ID: e.ID, Kind: domain.EvidenceKind(e.Kind), URL: e.URL,
				Filename: e.Filename, UploadedAt: e.UploadedAt,
			})
		}
		var tlRows []timelineRow
		if err := json.Unmarshal([]byte(timeline), &tlRows); err != nil {
			return nil, fmt.Errorf("decode timeline for %s: %w", d.ID, err)
		}
		for _, ev := range tlRows {
			d.Timeline = append(d.Timeline, domain.TimelineEvent{
				ID: ev.ID, Kind: domain.TimelineKind(ev.Kind), Description: ev.Description,
				Timestamp: ev.Timestamp, Actor: ev.Actor, Metadata: ev.Metadata,
			})
		}
		disputes = append(disputes, d)
	}
	return disputes, rows.Err()
}

func encodeDisputeColumns(d domain.Dispute) (string, string, error) {
	evRows := make([]evidenceRow, 0, len(d.Evidence))
	for _, e := range d.Evidence {
		evRows = append(evRows, evidenceRow{
			ID: e.ID, Kind: string(e.Kind), URL: e.URL,
			Filename: e.Filename, UploadedAt: e.UploadedAt,
		})
	}
	tlRows := make([]timelineRow, 0, len(d.Timeline))
	for _, ev := range d.Timeline {
		tlRows = append(tlRows, timelineRow{
			ID: ev.ID, Kind: string(ev.Kind), Description: ev.Description,
			Timestamp: ev.Timestamp, Actor: ev.Actor, Metadata: ev.Metadata,
		})
	}
	evidence, err := json.Marshal(evRows)
	if err != nil {
		return "", "", fmt.Errorf("encode evidence: %w", err)
	}
	timeline, err := json.Marshal(tlRows)
	if err != nil {
		return "", "", fmt.Errorf("encode timeline: %w", err)
	}
	return string(evidence), string(timeline), nil
}
