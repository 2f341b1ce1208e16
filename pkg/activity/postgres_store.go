package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresRecorder implements Recorder using PostgreSQL. The table is
// insert-only; there is deliberately no update or delete path.
type PostgresRecorder struct {
	db *sql.DB
}

func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (r *PostgresRecorder) Append(ctx context.Context, e Entry) error {
	var meta []byte
	if e.Metadata != nil {
		var err error
		meta, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal activity metadata: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contract_activity (id, tenant_id, contract_id, type, description, actor, ts, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.TenantID, e.ContractID, e.Type, e.Description, e.Actor, e.Timestamp, meta)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) ListByContract(ctx context.Context, tenantID, contractID string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, contract_id, type, description, actor, ts, metadata
		FROM contract_activity
		WHERE tenant_id = $1 AND contract_id = $2
		ORDER BY ts ASC`,
		tenantID, contractID)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ContractID, &e.Type, &e.Description, &e.Actor, &e.Timestamp, &meta); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode activity metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
