package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"pagenotify/internal/types"
)

// RuleRepository provides data access for the notifications table, which
// holds the configured notification rules. Writes come from the
// administrative layer; the dispatch engine only reads.
type RuleRepository struct {
	db    DBTX
	cache *RuleCache
}

// NewRuleRepository creates a RuleRepository backed by the given database
// connection (pool or transaction) and subject cache.
func NewRuleRepository(db DBTX, cache *RuleCache) *RuleRepository {
	if cache == nil {
		cache = NewRuleCache()
	}
	return &RuleRepository{db: db, cache: cache}
}

const ruleColumns = `id, ugroups, page, subject, frequency, must_differ,
	skip_strategy, skip_text, enabled, created_by, created_at, updated_at`

// Create inserts a new rule, stamping created_by and both timestamps.
// The rule's ID is populated from the database on success.
func (r *RuleRepository) Create(ctx context.Context, rule *types.NotificationRule) error {
	if err := rule.Validate(); err != nil {
		return types.NewAppError(types.ErrCodeValidationBadRequest, "invalid notification rule", err)
	}
	row := r.db.QueryRow(ctx,
		`INSERT INTO notifications
		 (ugroups, page, subject, frequency, must_differ, skip_strategy,
		  skip_text, enabled, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		strings.Join(rule.Groups, ","),
		rule.PageID,
		rule.Subject,
		rule.Frequency,
		rule.MustDiffer,
		string(rule.SkipStrategy),
		rule.SkipText,
		rule.Enabled,
		rule.CreatedBy,
	)
	if err := row.Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create notification rule", err)
	}
	r.cache.Put(rule.ID, rule.Subject)
	return nil
}

// Update rewrites all editable fields of an existing rule.
func (r *RuleRepository) Update(ctx context.Context, rule *types.NotificationRule) error {
	if err := rule.Validate(); err != nil {
		return types.NewAppError(types.ErrCodeValidationBadRequest, "invalid notification rule", err)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET
			ugroups = $1, page = $2, subject = $3, frequency = $4,
			must_differ = $5, skip_strategy = $6, skip_text = $7,
			enabled = $8, updated_at = NOW()
		 WHERE id = $9`,
		strings.Join(rule.Groups, ","),
		rule.PageID,
		rule.Subject,
		rule.Frequency,
		rule.MustDiffer,
		string(rule.SkipStrategy),
		rule.SkipText,
		rule.Enabled,
		rule.ID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update notification rule", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRule, "notification rule not found", nil)
	}
	r.cache.Invalidate(rule.ID)
	r.cache.Put(rule.ID, rule.Subject)
	return nil
}

// Delete removes a rule and, in the same transaction, every unsubscribe
// record that references it.
func (r *RuleRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete notification rule", err)
	}
	if err := NewUnsubscribeRepository(tx).DeleteForRule(ctx, id); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit rule deletion", err)
	}
	r.cache.Invalidate(id)
	return nil
}

// GetByID returns a single rule.
func (r *RuleRepository) GetByID(ctx context.Context, id int64) (*types.NotificationRule, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM notifications WHERE id = $1`, id)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRule, "notification rule not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load notification rule", err)
	}
	return rule, nil
}

// List returns all rules ordered by id, for the admin surfaces.
func (r *RuleRepository) List(ctx context.Context) ([]types.NotificationRule, error) {
	return r.listWhere(ctx, `SELECT `+ruleColumns+` FROM notifications ORDER BY id`)
}

// ListEnabled returns all rules with enabled = true, ordered by id. This is
// the scheduler driver's rule source.
func (r *RuleRepository) ListEnabled(ctx context.Context) ([]types.NotificationRule, error) {
	return r.listWhere(ctx, `SELECT `+ruleColumns+` FROM notifications WHERE enabled ORDER BY id`)
}

func (r *RuleRepository) listWhere(ctx context.Context, sql string, args ...any) ([]types.NotificationRule, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list notification rules", err)
	}
	defer rows.Close()

	var rules []types.NotificationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification rule", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate notification rules", err)
	}
	return rules, nil
}

// Subject returns the rule's subject, consulting the in-process cache first.
// Used by the events endpoints to confirm an unsubscribe by name.
func (r *RuleRepository) Subject(ctx context.Context, id int64) (string, error) {
	if s, ok := r.cache.SubjectByID(id); ok {
		return s, nil
	}
	var subject string
	err := r.db.QueryRow(ctx,
		`SELECT subject FROM notifications WHERE id = $1`, id).Scan(&subject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundRule, "notification rule not found", err)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to load rule subject", err)
	}
	r.cache.Put(id, subject)
	return subject, nil
}

// IDFromSubject returns the id of the rule with the given subject,
// consulting the cache first.
func (r *RuleRepository) IDFromSubject(ctx context.Context, subject string) (int64, error) {
	if id, ok := r.cache.IDBySubject(subject); ok {
		return id, nil
	}
	var id int64
	err := r.db.QueryRow(ctx,
		`SELECT id FROM notifications WHERE subject = $1 LIMIT 1`, subject).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, types.NewAppError(types.ErrCodeNotFoundRule, "notification rule not found", err)
		}
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to resolve rule by subject", err)
	}
	r.cache.Put(id, subject)
	return id, nil
}

// scanRule scans a rule from a row with the ruleColumns column order.
// Groups are stored as a comma-joined list, mirroring the admin form input.
func scanRule(row pgx.Row) (*types.NotificationRule, error) {
	var rule types.NotificationRule
	var groups, strategy string
	if err := row.Scan(
		&rule.ID,
		&groups,
		&rule.PageID,
		&rule.Subject,
		&rule.Frequency,
		&rule.MustDiffer,
		&strategy,
		&rule.SkipText,
		&rule.Enabled,
		&rule.CreatedBy,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if groups != "" {
		rule.Groups = strings.Split(groups, ",")
	}
	rule.SkipStrategy = types.SkipStrategy(strategy)
	return &rule, nil
}
