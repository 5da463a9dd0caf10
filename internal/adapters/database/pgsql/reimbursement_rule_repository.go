package pgsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pass-culture/finance_backend/internal/apperrors"
	"github.com/pass-culture/finance_backend/internal/core/domain"
	portsrepo "github.com/pass-culture/finance_backend/internal/core/ports/repositories"
)

type PgxReimbursementRuleRepository struct {
	BaseRepository
}

func newPgxReimbursementRuleRepository(pool *pgxpool.Pool) portsrepo.ReimbursementRuleRepositoryFacade {
	return &PgxReimbursementRuleRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.ReimbursementRuleRepositoryFacade = (*PgxReimbursementRuleRepository)(nil)

const ruleColumns = `
	rule_id, kind, offerer_id, category_id, amount, rate, timespan_start, timespan_end,
	created_at, created_by, last_updated_at, last_updated_by`

func scanRule(row pgx.Row) (*domain.CustomReimbursementRule, error) {
	var rule domain.CustomReimbursementRule
	err := row.Scan(
		&rule.RuleID,
		&rule.Kind,
		&rule.OffererID,
		&rule.CategoryID,
		&rule.Amount,
		&rule.Rate,
		&rule.Timespan.Start,
		&rule.Timespan.End,
		&rule.CreatedAt,
		&rule.CreatedBy,
		&rule.LastUpdatedAt,
		&rule.LastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// FindRuleByID retrieves a custom reimbursement rule by its ID.
func (r *PgxReimbursementRuleRepository) FindRuleByID(ctx context.Context, ruleID string) (*domain.CustomReimbursementRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM custom_reimbursement_rules WHERE rule_id = $1;`
	rule, err := scanRule(r.Pool.QueryRow(ctx, query, ruleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find rule by ID %s: %w", ruleID, err)
	}
	return rule, nil
}

// ListRulesByOfferer retrieves every rule scoped to an offerer.
func (r *PgxReimbursementRuleRepository) ListRulesByOfferer(ctx context.Context, offererID string) ([]domain.CustomReimbursementRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM custom_reimbursement_rules
		WHERE offerer_id = $1
		ORDER BY timespan_start;
	`
	return r.queryRules(ctx, query, offererID)
}

// ListApplicableRules retrieves the rules matching the booking's offerer and
// category whose timespan contains the booking date. The timespan is
// half-open: a rule ending at the booking date no longer applies.
func (r *PgxReimbursementRuleRepository) ListApplicableRules(ctx context.Context, offererID, categoryID string, bookingDate time.Time) ([]domain.CustomReimbursementRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM custom_reimbursement_rules
		WHERE offerer_id = $1
		  AND (category_id IS NULL OR category_id = $2)
		  AND timespan_start <= $3
		  AND (timespan_end IS NULL OR timespan_end > $3)
		ORDER BY timespan_start;
	`
	return r.queryRules(ctx, query, offererID, categoryID, bookingDate)
}

func (r *PgxReimbursementRuleRepository) queryRules(ctx context.Context, query string, args ...any) ([]domain.CustomReimbursementRule, error) {
	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reimbursement rules: %w", err)
	}
	defer rows.Close()

	rules := []domain.CustomReimbursementRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reimbursement rule row: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reimbursement rule rows: %w", err)
	}
	return rules, nil
}

// SaveRule persists a new custom rule.
func (r *PgxReimbursementRuleRepository) SaveRule(ctx context.Context, rule domain.CustomReimbursementRule) error {
	query := `
		INSERT INTO custom_reimbursement_rules (rule_id, kind, offerer_id, category_id, amount, rate,
		                                        timespan_start, timespan_end,
		                                        created_at, created_by, last_updated_at, last_updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
	`
	_, err := r.Pool.Exec(ctx, query,
		rule.RuleID,
		rule.Kind,
		rule.OffererID,
		rule.CategoryID,
		rule.Amount,
		rule.Rate,
		rule.Timespan.Start,
		rule.Timespan.End,
		rule.CreatedAt,
		rule.CreatedBy,
		rule.LastUpdatedAt,
		rule.LastUpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicate
		}
		return fmt.Errorf("failed to insert rule %s: %w", rule.RuleID, err)
	}
	return nil
}

// TerminateRule closes a rule's validity timespan.
func (r *PgxReimbursementRuleRepository) TerminateRule(ctx context.Context, ruleID string, end time.Time, updatedBy string, updatedAt time.Time) error {
	query := `
		UPDATE custom_reimbursement_rules
		SET timespan_end = $2, last_updated_at = $3, last_updated_by = $4
		WHERE rule_id = $1;
	`
	cmdTag, err := r.Pool.Exec(ctx, query, ruleID, end, updatedAt, updatedBy)
	if err != nil {
		return fmt.Errorf("failed to terminate rule %s: %w", ruleID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
