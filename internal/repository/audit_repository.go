package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wastetrack/wastetrack/internal/database"
	"github.com/wastetrack/wastetrack/internal/model"
)

// AuditRepository persists audit records. It only inserts and reads; the
// table itself rejects updates and deletes.
type AuditRepository struct {
	db *database.Postgres
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *database.Postgres) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends an audit record
func (r *AuditRepository) Insert(ctx context.Context, rec *model.AuditRecord) error {
	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit_records (id, action, actor_account_id, initiator_account_id,
		    status, ip, device, method, metadata, server_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Action,
		rec.ActorAccountID,
		rec.InitiatorAccountID,
		rec.Status,
		rec.IP,
		rec.Device,
		nullString(string(rec.Method)),
		metadataJSON,
		rec.ServerTimestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// List returns records matching filter, newest first
func (r *AuditRepository) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.ActorAccountID != "" {
		args = append(args, filter.ActorAccountID)
		where = append(where, fmt.Sprintf("actor_account_id = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	if filter.InitiatorAccountID != "" {
		args = append(args, filter.InitiatorAccountID)
		where = append(where, fmt.Sprintf("initiator_account_id = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)

	query := `SELECT id, action, actor_account_id, initiator_account_id, status, ip, device,
		method, metadata, server_timestamp FROM audit_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY server_timestamp DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var out []*model.AuditRecord
	for rows.Next() {
		var (
			rec          model.AuditRecord
			actor        sql.NullString
			initiator    sql.NullString
			method       sql.NullString
			metadataJSON []byte
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Action,
			&actor,
			&initiator,
			&rec.Status,
			&rec.IP,
			&rec.Device,
			&method,
			&metadataJSON,
			&rec.ServerTimestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		if actor.Valid {
			rec.ActorAccountID = &actor.String
		}
		if initiator.Valid {
			rec.InitiatorAccountID = &initiator.String
		}
		rec.Method = model.AuthMethod(method.String)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
			}
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
