package contract

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/clauseworks/contractd/pkg/fault"
)

// PostgresStore implements Store using PostgreSQL. Terms, parties, and
// metadata are stored as JSONB; the version column carries the optimistic
// concurrency token.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const contractColumns = `id, tenant_id, type, title, content, terms, parties,
	start_date, end_date, value, currency, auto_renewal, renewal_period_months,
	metadata, status, renewal_status, activated_at, terminated_at,
	signature_workflow_id, created_at, updated_at, version`

func (s *PostgresStore) Create(ctx context.Context, c *Contract) error {
	terms, parties, meta, err := encodeJSONFields(c)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contracts (`+contractColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		c.ID, c.TenantID, c.Type, c.Title, c.Content, terms, parties,
		c.StartDate, c.EndDate, nullDecimal(c.Value), c.Currency, c.AutoRenewal, c.RenewalPeriodMonths,
		meta, c.Status, c.RenewalStatus, c.ActivatedAt, c.TerminatedAt,
		c.SignatureWorkflowID, c.CreatedAt, c.UpdatedAt, c.Version)
	if err != nil {
		return fmt.Errorf("insert contract: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID, id string) (*Contract, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+contractColumns+` FROM contracts WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	c, err := scanContract(row)
	if err == sql.ErrNoRows {
		return nil, fault.NotFound("contract %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get contract: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Update(ctx context.Context, c *Contract) error {
	terms, parties, meta, err := encodeJSONFields(c)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE contracts SET
			type = $3, title = $4, content = $5, terms = $6, parties = $7,
			start_date = $8, end_date = $9, value = $10, currency = $11,
			auto_renewal = $12, renewal_period_months = $13, metadata = $14,
			status = $15, renewal_status = $16, activated_at = $17,
			terminated_at = $18, signature_workflow_id = $19, updated_at = $20,
			version = version + 1
		WHERE tenant_id = $1 AND id = $2 AND version = $21`,
		c.TenantID, c.ID,
		c.Type, c.Title, c.Content, terms, parties,
		c.StartDate, c.EndDate, nullDecimal(c.Value), c.Currency,
		c.AutoRenewal, c.RenewalPeriodMonths, meta,
		c.Status, c.RenewalStatus, c.ActivatedAt,
		c.TerminatedAt, c.SignatureWorkflowID, c.UpdatedAt,
		c.Version)
	if err != nil {
		return fmt.Errorf("update contract: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update contract: %w", err)
	}
	if n == 0 {
		// Either the row is gone or a concurrent writer bumped the version.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM contracts WHERE tenant_id = $1 AND id = $2)",
			c.TenantID, c.ID).Scan(&exists); err != nil {
			return fmt.Errorf("update contract: %w", err)
		}
		if !exists {
			return fault.NotFound("contract %s not found", c.ID)
		}
		return fault.Conflict("contract %s was modified concurrently", c.ID)
	}
	c.Version++
	return nil
}

func (s *PostgresStore) List(ctx context.Context, tenantID string, f Filter) ([]*Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE tenant_id = $1`
	args := []any{tenantID}

	add := func(clause string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(" AND %s $%d", clause, len(args))
	}
	if f.Status != "" {
		add("status =", string(f.Status))
	}
	if f.Type != "" {
		add("type =", string(f.Type))
	}
	if f.ClientID != "" {
		// Match the id of any CLIENT-role party.
		add(`parties @> `, fmt.Sprintf(`[{"id": %q, "role": "CLIENT"}]`, f.ClientID))
	}
	if f.EndDateFrom != nil {
		add("end_date >=", *f.EndDateFrom)
	}
	if f.EndDateTo != nil {
		add("end_date <=", *f.EndDateTo)
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	var out []*Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner) (*Contract, error) {
	var (
		c             Contract
		terms         []byte
		parties       []byte
		meta          []byte
		value         decimal.NullDecimal
		sqlEnd        sql.NullTime
		sqlActivated  sql.NullTime
		sqlTerminated sql.NullTime
	)
	err := row.Scan(&c.ID, &c.TenantID, &c.Type, &c.Title, &c.Content, &terms, &parties,
		&c.StartDate, &sqlEnd, &value, &c.Currency, &c.AutoRenewal, &c.RenewalPeriodMonths,
		&meta, &c.Status, &c.RenewalStatus, &sqlActivated, &sqlTerminated,
		&c.SignatureWorkflowID, &c.CreatedAt, &c.UpdatedAt, &c.Version)
	if err != nil {
		return nil, err
	}

	if len(terms) > 0 {
		if err := json.Unmarshal(terms, &c.Terms); err != nil {
			return nil, fmt.Errorf("decode terms: %w", err)
		}
	}
	if len(parties) > 0 {
		if err := json.Unmarshal(parties, &c.Parties); err != nil {
			return nil, fmt.Errorf("decode parties: %w", err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if value.Valid {
		v := value.Decimal
		c.Value = &v
	}
	if sqlEnd.Valid {
		t := sqlEnd.Time
		c.EndDate = &t
	}
	if sqlActivated.Valid {
		t := sqlActivated.Time
		c.ActivatedAt = &t
	}
	if sqlTerminated.Valid {
		t := sqlTerminated.Time
		c.TerminatedAt = &t
	}
	return &c, nil
}

func encodeJSONFields(c *Contract) (terms, parties, meta []byte, err error) {
	if terms, err = json.Marshal(c.Terms); err != nil {
		return nil, nil, nil, fmt.Errorf("encode terms: %w", err)
	}
	if parties, err = json.Marshal(c.Parties); err != nil {
		return nil, nil, nil, fmt.Errorf("encode parties: %w", err)
	}
	if c.Metadata != nil {
		if meta, err = json.Marshal(c.Metadata); err != nil {
			return nil, nil, nil, fmt.Errorf("encode metadata: %w", err)
		}
	}
	return terms, parties, meta, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
