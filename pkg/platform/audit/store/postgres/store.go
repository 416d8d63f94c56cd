package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit/outbox"
	txcontext "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/tx"
)

// Store implements audit.Store on postgres. Compliance entries are also queued in
// audit_outbox in the same statement; the outbox relay publishes them to Kafka.
// Both log tables reject UPDATE and DELETE through triggers.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFrom(ctx, s.db)
}

// AppendWorkflow inserts a workflow log row and sets entry.ID.
func (s *Store) AppendWorkflow(ctx context.Context, entry *audit.WorkflowEntry) error {
	details, err := marshalMap(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal workflow details: %w", err)
	}

	query := `
		INSERT INTO workflow_log (
			application_id, identity_id, stage, action, outcome,
			actor_type, actor_id, details, request_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err = s.execer(ctx).QueryRowContext(ctx, query,
		nullableUUID(uuid.UUID(entry.ApplicationID)),
		nullableUUID(uuid.UUID(entry.IdentityID)),
		entry.Stage,
		string(entry.Action),
		string(entry.Outcome),
		string(entry.ActorType),
		entry.ActorID,
		details,
		entry.RequestID,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("insert workflow entry: %w", err)
	}
	return nil
}

// AppendCompliance inserts a compliance row and its outbox message atomically and
// sets entry.ID.
func (s *Store) AppendCompliance(ctx context.Context, entry *audit.ComplianceEntry) error {
	oldValues, err := marshalNullableMap(entry.OldValues)
	if err != nil {
		return fmt.Errorf("marshal old values: %w", err)
	}
	newValues, err := marshalNullableMap(entry.NewValues)
	if err != nil {
		return fmt.Errorf("marshal new values: %w", err)
	}
	payload, err := json.Marshal(outbox.PayloadFrom(*entry))
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	query := `
		WITH entry AS (
			INSERT INTO compliance_audit_log (
				action, resource_type, resource_id, old_values, new_values,
				actor, ip, user_agent, device, compliance_level, request_id, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id, created_at
		)
		INSERT INTO audit_outbox (entry_id, event_key, payload, created_at)
		SELECT id, $3, jsonb_set($13::jsonb, '{id}', to_jsonb(id)), created_at FROM entry
		RETURNING entry_id
	`
	err = s.execer(ctx).QueryRowContext(ctx, query,
		string(entry.Action),
		entry.ResourceType,
		entry.ResourceID,
		oldValues,
		newValues,
		entry.Actor,
		entry.IP,
		entry.UserAgent,
		entry.Device,
		string(entry.ComplianceLevel),
		entry.RequestID,
		entry.CreatedAt,
		payload,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("insert compliance entry: %w", err)
	}
	return nil
}

const workflowColumns = `
	id, application_id, identity_id, stage, action, outcome,
	actor_type, actor_id, details, request_id, created_at
`

// ListWorkflowByApplication returns an application's workflow history oldest first.
func (s *Store) ListWorkflowByApplication(ctx context.Context, applicationID id.ApplicationID) ([]audit.WorkflowEntry, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_log WHERE application_id = $1 ORDER BY created_at, id`
	return s.queryWorkflow(ctx, query, uuid.UUID(applicationID))
}

// ListWorkflowByIdentity returns an identity's workflow history oldest first.
func (s *Store) ListWorkflowByIdentity(ctx context.Context, identityID id.IdentityID) ([]audit.WorkflowEntry, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_log WHERE identity_id = $1 ORDER BY created_at, id`
	return s.queryWorkflow(ctx, query, uuid.UUID(identityID))
}

// ListComplianceByResource returns the compliance history of one resource oldest first.
func (s *Store) ListComplianceByResource(ctx context.Context, resourceType, resourceID string) ([]audit.ComplianceEntry, error) {
	query := `
		SELECT id, action, resource_type, resource_id, old_values, new_values,
			   actor, ip, user_agent, device, compliance_level, request_id, created_at
		FROM compliance_audit_log
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY created_at, id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, resourceType, resourceID)
	if err != nil {
		return nil, fmt.Errorf("query compliance entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.ComplianceEntry
	for rows.Next() {
		var (
			e                    audit.ComplianceEntry
			action, level        string
			oldValues, newValues []byte
		)
		if err := rows.Scan(&e.ID, &action, &e.ResourceType, &e.ResourceID, &oldValues, &newValues,
			&e.Actor, &e.IP, &e.UserAgent, &e.Device, &level, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan compliance entry: %w", err)
		}
		e.Action = audit.ComplianceAction(action)
		e.ComplianceLevel = audit.ComplianceLevel(level)
		if e.OldValues, err = unmarshalMap(oldValues); err != nil {
			return nil, err
		}
		if e.NewValues, err = unmarshalMap(newValues); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate compliance entries: %w", err)
	}
	return entries, nil
}

func (s *Store) queryWorkflow(ctx context.Context, query string, arg any) ([]audit.WorkflowEntry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query workflow entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.WorkflowEntry
	for rows.Next() {
		var (
			e                          audit.WorkflowEntry
			applicationID, identityID  *uuid.UUID
			action, outcome, actorType string
			details                    []byte
		)
		if err := rows.Scan(&e.ID, &applicationID, &identityID, &e.Stage, &action, &outcome,
			&actorType, &e.ActorID, &details, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow entry: %w", err)
		}
		if applicationID != nil {
			e.ApplicationID = id.ApplicationID(*applicationID)
		}
		if identityID != nil {
			e.IdentityID = id.IdentityID(*identityID)
		}
		e.Action = audit.WorkflowAction(action)
		e.Outcome = audit.Outcome(outcome)
		e.ActorType = id.ActorType(actorType)
		if e.Details, err = unmarshalMap(details); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow entries: %w", err)
	}
	return entries, nil
}

// FetchPending returns unpublished outbox messages in insertion order.
func (s *Store) FetchPending(ctx context.Context, limit int) ([]outbox.Message, error) {
	query := `
		SELECT id, event_key, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var msgs []outbox.Message
	for rows.Next() {
		var m outbox.Message
		if err := rows.Scan(&m.ID, &m.Key, &m.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkPublished stamps the given outbox messages as delivered.
func (s *Store) MarkPublished(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE audit_outbox SET published_at = $2 WHERE id = ANY($1)`,
		pq.Array(ids), at,
	)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

func nullableUUID(u uuid.UUID) *uuid.UUID {
	if u == uuid.Nil {
		return nil
	}
	return &u
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// marshalNullableMap returns an untyped nil for nil maps so the column stores NULL.
func marshalNullableMap(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalMap(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal audit json: %w", err)
	}
	return m, nil
}
