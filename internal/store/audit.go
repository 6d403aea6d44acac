// ABOUTME: Audit log of integrator workflow outcomes
// ABOUTME: Records which actor ran which workflow against which entity and whether it succeeded

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction names an audited integrator workflow.
type AuditAction string

const (
	AuditRegisterCustomer      AuditAction = "register_customer"
	AuditRegisterBuilding      AuditAction = "register_building"
	AuditRegisterDevice        AuditAction = "register_device"
	AuditLinkDeviceState       AuditAction = "link_device_state"
	AuditCrossCheck            AuditAction = "cross_check"
	AuditRecordCommunication   AuditAction = "record_communication"
	AuditAnalyzeTranscript     AuditAction = "analyze_transcript"
	AuditUpdateWealthScore     AuditAction = "update_wealth_score"
	AuditRegisterServiceTicket AuditAction = "register_service_ticket"
	AuditCreateOffer           AuditAction = "create_offer"
	AuditRecordOfferReaction   AuditAction = "record_offer_reaction"
)

// Audit outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// auditTimeLayout is fixed-width so ts compares correctly as text.
const auditTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// AuditEntry is one audited workflow run.
type AuditEntry struct {
	ID         uuid.UUID      `json:"id"`
	Actor      string         `json:"actor"`
	Action     AuditAction    `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Outcome    string         `json:"outcome"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// AuditFilter narrows ListAuditLog. Zero values match everything.
type AuditFilter struct {
	Since      *time.Time
	Until      *time.Time
	Actor      string
	Action     AuditAction
	TargetType string
	TargetID   string
	Limit      int // default 100, max 1000
}

// AppendAuditLog appends an entry, filling ID, Timestamp and Outcome when unset.
func (s *SQLiteStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	prepareAuditEntry(e)

	var detail any
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		detail = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (audit_id, actor, action, target_type, target_id, ts, outcome, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID.String(),
		e.Actor,
		string(e.Action),
		e.TargetType,
		e.TargetID,
		e.Timestamp.UTC().Format(auditTimeLayout),
		e.Outcome,
		detail,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("inserting audit entry: %w", ErrConstraint)
		}
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit log",
		"id", e.ID,
		"actor", e.Actor,
		"action", e.Action,
		"target", e.TargetType+"/"+e.TargetID,
		"outcome", e.Outcome,
	)
	return nil
}

func prepareAuditEntry(e *AuditEntry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeOK
	}
}

// normalizeAuditLimit applies default (100) and cap (1000) to audit limit.
func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// ListAuditLog returns entries matching the filter, newest first.
func (s *SQLiteStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	query := `
		SELECT audit_id, actor, action, target_type, target_id, ts, outcome, detail_json
		FROM audit_log WHERE 1=1`
	var args []any
	if f.Since != nil {
		query += ` AND ts >= ?`
		args = append(args, f.Since.UTC().Format(auditTimeLayout))
	}
	if f.Until != nil {
		query += ` AND ts <= ?`
		args = append(args, f.Until.UTC().Format(auditTimeLayout))
	}
	if f.Actor != "" {
		query += ` AND actor = ?`
		args = append(args, f.Actor)
	}
	if f.Action != "" {
		query += ` AND action = ?`
		args = append(args, string(f.Action))
	}
	if f.TargetType != "" {
		query += ` AND target_type = ?`
		args = append(args, f.TargetType)
	}
	if f.TargetID != "" {
		query += ` AND target_id = ?`
		args = append(args, f.TargetID)
	}
	query += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, normalizeAuditLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []*AuditEntry{}
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}

func scanAuditEntry(scanner rowScanner) (*AuditEntry, error) {
	var (
		e              AuditEntry
		id, action, ts string
		detailJSON     *string
	)
	if err := scanner.Scan(&id, &e.Actor, &action, &e.TargetType, &e.TargetID, &ts, &e.Outcome, &detailJSON); err != nil {
		return nil, fmt.Errorf("scanning audit entry: %w", err)
	}

	var err error
	if e.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parsing audit id: %w", err)
	}
	e.Action = AuditAction(action)
	if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	if detailJSON != nil {
		if err := json.Unmarshal([]byte(*detailJSON), &e.Detail); err != nil {
			return nil, fmt.Errorf("unmarshaling detail: %w", err)
		}
	}
	return &e, nil
}
