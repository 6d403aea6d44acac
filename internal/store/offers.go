// ABOUTME: Sales offers made to customers and the reactions tracked against them
// ABOUTME: Reactions are append-only; an offer's own row is written once

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Offer statuses.
const (
	OfferDraft  = "draft"
	OfferSent   = "sent"
	OfferSigned = "signed"
)

// Offer is a priced proposal sent to a customer.
type Offer struct {
	ID         int64      `json:"id"`
	CustomerID int64      `json:"customer_id"`
	CreatedAt  time.Time  `json:"created_at"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	Status     string     `json:"status"`
	NetValue   float64    `json:"net_value"`
	GrossValue float64    `json:"gross_value"`
	Currency   string     `json:"currency"`
	Content    string     `json:"content,omitempty"`
	SignURL    string     `json:"sign_url,omitempty"`
	SignedAt   *time.Time `json:"signed_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// OfferReaction is one tracked customer interaction with an offer, such as
// opening the document or signing it.
type OfferReaction struct {
	ID           int64     `json:"id"`
	OfferID      int64     `json:"offer_id"`
	ReactionType string    `json:"reaction_type"`
	OccurredAt   time.Time `json:"occurred_at"`
	IPAddress    string    `json:"ip_address,omitempty"`
	Device       string    `json:"device,omitempty"`
	SecondsSpent *int64    `json:"seconds_spent,omitempty"`
	Notes        string    `json:"notes,omitempty"`
}

// CreateOffer inserts an offer and returns its id.
func (s *SQLiteStore) CreateOffer(ctx context.Context, o *Offer) (int64, error) {
	prepareOffer(o)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO offers (customer_id, created_at, valid_until, status, net_value, gross_value, currency, content, sign_url, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.CustomerID,
		o.CreatedAt.UTC().Format(time.RFC3339),
		nullTime(o.ValidUntil),
		o.Status,
		o.NetValue,
		o.GrossValue,
		o.Currency,
		nullString(o.Content),
		nullString(o.SignURL),
		nullString(o.Notes),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return 0, fmt.Errorf("inserting offer: %w", ErrConstraint)
		}
		return 0, fmt.Errorf("inserting offer: %w", err)
	}
	return s.assignID(res, &o.ID, "offer")
}

func prepareOffer(o *Offer) {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if o.Status == "" {
		o.Status = OfferDraft
	}
	if o.Currency == "" {
		o.Currency = "PLN"
	}
}

// GetOffer retrieves an offer by ID.
// Returns ErrNotFound if the offer doesn't exist.
func (s *SQLiteStore) GetOffer(ctx context.Context, id int64) (*Offer, error) {
	var (
		o                       Offer
		createdAt               string
		validUntil, signedAt    sql.NullString
		content, signURL, notes sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, created_at, valid_until, status, net_value, gross_value, currency, content, sign_url, signed_at, notes
		FROM offers WHERE id = ?
	`, id).Scan(&o.ID, &o.CustomerID, &createdAt, &validUntil, &o.Status, &o.NetValue, &o.GrossValue, &o.Currency, &content, &signURL, &signedAt, &notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("offer %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying offer: %w", err)
	}

	o.Content, o.SignURL, o.Notes = content.String, signURL.String, notes.String
	if o.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if o.ValidUntil, err = parseNullTime(validUntil); err != nil {
		return nil, err
	}
	if o.SignedAt, err = parseNullTime(signedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

// MarkOfferSigned sets the offer's status to signed at the given time.
func (s *SQLiteStore) MarkOfferSigned(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE offers SET status = ?, signed_at = ? WHERE id = ?`,
		OfferSigned, at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating offer: %w", err)
	}
	return requireAffected(res, "offer", id)
}

// RecordOfferReaction appends a reaction and returns its id.
func (s *SQLiteStore) RecordOfferReaction(ctx context.Context, r *OfferReaction) (int64, error) {
	if r.OccurredAt.IsZero() {
		r.OccurredAt = time.Now().UTC()
	}

	var spent any
	if r.SecondsSpent != nil {
		spent = *r.SecondsSpent
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO offer_reactions (offer_id, reaction_type, occurred_at, ip_address, device, seconds_spent, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		r.OfferID,
		r.ReactionType,
		r.OccurredAt.UTC().Format(time.RFC3339),
		nullString(r.IPAddress),
		nullString(r.Device),
		spent,
		nullString(r.Notes),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return 0, fmt.Errorf("inserting offer reaction: %w", ErrConstraint)
		}
		return 0, fmt.Errorf("inserting offer reaction: %w", err)
	}
	return s.assignID(res, &r.ID, "offer reaction")
}

// ListOfferReactions returns an offer's reactions, oldest first.
func (s *SQLiteStore) ListOfferReactions(ctx context.Context, offerID int64) ([]OfferReaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, offer_id, reaction_type, occurred_at, ip_address, device, seconds_spent, notes
		FROM offer_reactions WHERE offer_id = ? ORDER BY occurred_at, id
	`, offerID)
	if err != nil {
		return nil, fmt.Errorf("querying offer reactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []OfferReaction{}
	for rows.Next() {
		var (
			r                 OfferReaction
			occurredAt        string
			ip, device, notes sql.NullString
			spent             sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.OfferID, &r.ReactionType, &occurredAt, &ip, &device, &spent, &notes); err != nil {
			return nil, fmt.Errorf("scanning offer reaction: %w", err)
		}
		r.IPAddress, r.Device, r.Notes = ip.String, device.String, notes.String
		if spent.Valid {
			v := spent.Int64
			r.SecondsSpent = &v
		}
		if r.OccurredAt, err = time.Parse(time.RFC3339, occurredAt); err != nil {
			return nil, fmt.Errorf("parsing occurred_at: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating offer reactions: %w", err)
	}
	return out, nil
}
