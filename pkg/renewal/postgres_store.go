package renewal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/clauseworks/contractd/pkg/fault"
)

// uniqueViolation is the Postgres error code for unique constraint
// violations; the pending-proposal partial unique index surfaces through it.
const uniqueViolation = "23505"

// PostgresRuleStore implements RuleStore using PostgreSQL. The position
// column is a bigserial, so insertion order falls out of the sequence.
type PostgresRuleStore struct {
	db *sql.DB
}

func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

const ruleColumns = `id, tenant_id, name, active, contract_types, trigger_kind,
	trigger_days, renewal_type, auto_approve, renewal_period_months,
	price_adjustment, conditions, notifications, position, created_at, updated_at`

func (s *PostgresRuleStore) Create(ctx context.Context, r *Rule) error {
	types, adj, cond, notif, err := encodeRuleFields(r)
	if err != nil {
		return err
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO renewal_rules (id, tenant_id, name, active, contract_types,
			trigger_kind, trigger_days, renewal_type, auto_approve,
			renewal_period_months, price_adjustment, conditions, notifications,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING position`,
		r.ID, r.TenantID, r.Name, r.Active, types,
		r.Trigger, r.TriggerDays, r.RenewalType, r.AutoApprove,
		r.RenewalPeriodMonths, adj, cond, notif,
		r.CreatedAt, r.UpdatedAt).Scan(&r.Position)
	if err != nil {
		return fmt.Errorf("insert renewal rule: %w", err)
	}
	return nil
}

func (s *PostgresRuleStore) Get(ctx context.Context, tenantID, id string) (*Rule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM renewal_rules WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, fault.NotFound("renewal rule %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get renewal rule: %w", err)
	}
	return r, nil
}

func (s *PostgresRuleStore) Update(ctx context.Context, r *Rule) error {
	types, adj, cond, notif, err := encodeRuleFields(r)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE renewal_rules SET
			name = $3, active = $4, contract_types = $5, trigger_kind = $6,
			trigger_days = $7, renewal_type = $8, auto_approve = $9,
			renewal_period_months = $10, price_adjustment = $11,
			conditions = $12, notifications = $13, updated_at = $14
		WHERE tenant_id = $1 AND id = $2`,
		r.TenantID, r.ID,
		r.Name, r.Active, types, r.Trigger,
		r.TriggerDays, r.RenewalType, r.AutoApprove,
		r.RenewalPeriodMonths, adj,
		cond, notif, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update renewal rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update renewal rule: %w", err)
	}
	if n == 0 {
		return fault.NotFound("renewal rule %s not found", r.ID)
	}
	return nil
}

func (s *PostgresRuleStore) Delete(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM renewal_rules WHERE tenant_id = $1 AND id = $2", tenantID, id)
	if err != nil {
		return fmt.Errorf("delete renewal rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete renewal rule: %w", err)
	}
	if n == 0 {
		return fault.NotFound("renewal rule %s not found", id)
	}
	return nil
}

func (s *PostgresRuleStore) List(ctx context.Context, tenantID string) ([]*Rule, error) {
	return s.list(ctx,
		`SELECT `+ruleColumns+` FROM renewal_rules WHERE tenant_id = $1 ORDER BY position ASC`,
		tenantID)
}

func (s *PostgresRuleStore) ListActive(ctx context.Context, tenantID string) ([]*Rule, error) {
	return s.list(ctx,
		`SELECT `+ruleColumns+` FROM renewal_rules WHERE tenant_id = $1 AND active ORDER BY position ASC`,
		tenantID)
}

func (s *PostgresRuleStore) list(ctx context.Context, query string, args ...any) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list renewal rules: %w", err)
	}
	defer rows.Close()

	var out []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan renewal rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var (
		r     Rule
		types []byte
		adj   []byte
		cond  []byte
		notif []byte
	)
	err := row.Scan(&r.ID, &r.TenantID, &r.Name, &r.Active, &types, &r.Trigger,
		&r.TriggerDays, &r.RenewalType, &r.AutoApprove, &r.RenewalPeriodMonths,
		&adj, &cond, &notif, &r.Position, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(types) > 0 {
		if err := json.Unmarshal(types, &r.ContractTypes); err != nil {
			return nil, fmt.Errorf("decode contract types: %w", err)
		}
	}
	if len(adj) > 0 {
		r.PriceAdjustment = &PriceAdjustment{}
		if err := json.Unmarshal(adj, r.PriceAdjustment); err != nil {
			return nil, fmt.Errorf("decode price adjustment: %w", err)
		}
	}
	if len(cond) > 0 {
		r.Conditions = &Conditions{}
		if err := json.Unmarshal(cond, r.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions: %w", err)
		}
	}
	if len(notif) > 0 {
		if err := json.Unmarshal(notif, &r.Notifications); err != nil {
			return nil, fmt.Errorf("decode notifications: %w", err)
		}
	}
	return &r, nil
}

func encodeRuleFields(r *Rule) (types, adj, cond, notif []byte, err error) {
	if types, err = json.Marshal(r.ContractTypes); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode contract types: %w", err)
	}
	if r.PriceAdjustment != nil {
		if adj, err = json.Marshal(r.PriceAdjustment); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("encode price adjustment: %w", err)
		}
	}
	if r.Conditions != nil {
		if cond, err = json.Marshal(r.Conditions); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("encode conditions: %w", err)
		}
	}
	if notif, err = json.Marshal(r.Notifications); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode notifications: %w", err)
	}
	return types, adj, cond, notif, nil
}

// PostgresProposalStore implements ProposalStore using PostgreSQL. The
// at-most-one-PENDING invariant is a partial unique index:
//
//	CREATE UNIQUE INDEX renewal_proposals_one_pending
//	ON renewal_proposals (tenant_id, contract_id) WHERE status = 'PENDING';
//
// so racing creators lose with a unique violation, surfaced as a conflict
// fault.
type PostgresProposalStore struct {
	db *sql.DB
}

func NewPostgresProposalStore(db *sql.DB) *PostgresProposalStore {
	return &PostgresProposalStore{db: db}
}

const proposalColumns = `id, tenant_id, contract_id, rule_id, current_end_date,
	proposed_start_date, proposed_end_date, renewal_period_months, renewal_type,
	current_value, proposed_value, adjustment_note, status, notes,
	decline_reason, approved_by, declined_by, processed_at, created_at`

func (s *PostgresProposalStore) Create(ctx context.Context, p *Proposal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO renewal_proposals (`+proposalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		p.ID, p.TenantID, p.ContractID, nullString(p.RuleID), p.CurrentEndDate,
		p.ProposedStartDate, p.ProposedEndDate, p.RenewalPeriodMonths, p.RenewalType,
		nullProposalDecimal(p.CurrentValue), nullProposalDecimal(p.ProposedValue), p.AdjustmentNote, p.Status, p.Notes,
		p.DeclineReason, p.ApprovedBy, p.DeclinedBy, p.ProcessedAt, p.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fault.Conflict("contract %s already has a pending renewal proposal", p.ContractID).Wrap(err)
		}
		return fmt.Errorf("insert renewal proposal: %w", err)
	}
	return nil
}

func (s *PostgresProposalStore) Get(ctx context.Context, tenantID, id string) (*Proposal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM renewal_proposals WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	p, err := scanProposal(row)
	if err == sql.ErrNoRows {
		return nil, fault.NotFound("renewal proposal %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get renewal proposal: %w", err)
	}
	return p, nil
}

func (s *PostgresProposalStore) UpdateFromPending(ctx context.Context, p *Proposal) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE renewal_proposals SET
			proposed_end_date = $3, proposed_value = $4, status = $5, notes = $6,
			decline_reason = $7, approved_by = $8, declined_by = $9, processed_at = $10
		WHERE tenant_id = $1 AND id = $2 AND status = 'PENDING'`,
		p.TenantID, p.ID,
		p.ProposedEndDate, nullProposalDecimal(p.ProposedValue), p.Status, p.Notes,
		p.DeclineReason, p.ApprovedBy, p.DeclinedBy, p.ProcessedAt)
	if err != nil {
		return fmt.Errorf("update renewal proposal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update renewal proposal: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM renewal_proposals WHERE tenant_id = $1 AND id = $2)",
			p.TenantID, p.ID).Scan(&exists); err != nil {
			return fmt.Errorf("update renewal proposal: %w", err)
		}
		if !exists {
			return fault.NotFound("renewal proposal %s not found", p.ID)
		}
		return fault.Conflict("renewal proposal %s is no longer pending", p.ID)
	}
	return nil
}

func (s *PostgresProposalStore) List(ctx context.Context, tenantID string, f ProposalFilter) ([]*Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM renewal_proposals WHERE tenant_id = $1`
	args := []any{tenantID}

	if f.ContractID != "" {
		args = append(args, f.ContractID)
		query += fmt.Sprintf(" AND contract_id = $%d", len(args))
	}
	if f.RuleID != "" {
		args = append(args, f.RuleID)
		query += fmt.Sprintf(" AND rule_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list renewal proposals: %w", err)
	}
	defer rows.Close()

	var out []*Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan renewal proposal: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresProposalStore) ExistsForContract(ctx context.Context, tenantID, contractID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM renewal_proposals WHERE tenant_id = $1 AND contract_id = $2)",
		tenantID, contractID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check proposals for contract: %w", err)
	}
	return exists, nil
}

func (s *PostgresProposalStore) HasPendingForRule(ctx context.Context, tenantID, ruleID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM renewal_proposals WHERE tenant_id = $1 AND rule_id = $2 AND status = 'PENDING')",
		tenantID, ruleID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending proposals for rule: %w", err)
	}
	return exists, nil
}

func scanProposal(row rowScanner) (*Proposal, error) {
	var (
		p           Proposal
		ruleID      sql.NullString
		currentVal  decimal.NullDecimal
		proposedVal decimal.NullDecimal
		processedAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.TenantID, &p.ContractID, &ruleID, &p.CurrentEndDate,
		&p.ProposedStartDate, &p.ProposedEndDate, &p.RenewalPeriodMonths, &p.RenewalType,
		&currentVal, &proposedVal, &p.AdjustmentNote, &p.Status, &p.Notes,
		&p.DeclineReason, &p.ApprovedBy, &p.DeclinedBy, &processedAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}

	p.RuleID = ruleID.String
	if currentVal.Valid {
		v := currentVal.Decimal
		p.CurrentValue = &v
	}
	if proposedVal.Valid {
		v := proposedVal.Decimal
		p.ProposedValue = &v
	}
	if processedAt.Valid {
		t := processedAt.Time
		p.ProcessedAt = &t
	}
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullProposalDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
