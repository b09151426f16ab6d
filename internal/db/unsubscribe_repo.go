package db

import (
	"context"

	"pagenotify/internal/types"
)

// UnsubscribeRepository provides data access for notifications_unsubscribe.
// Presence of a (notification_id, user_id) row permanently excludes that
// user from that rule until the row is removed.
type UnsubscribeRepository struct {
	db DBTX
}

// NewUnsubscribeRepository creates an UnsubscribeRepository backed by the
// given connection.
func NewUnsubscribeRepository(db DBTX) *UnsubscribeRepository {
	return &UnsubscribeRepository{db: db}
}

// Insert records an unsubscribe. Inserting the same pair twice leaves
// exactly one row; the conflict is treated as success.
func (r *UnsubscribeRepository) Insert(ctx context.Context, notificationID, userID int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO notifications_unsubscribe (notification_id, user_id, created_at, updated_at)
		 VALUES ($1, $2, NOW(), NOW())
		 ON CONFLICT (notification_id, user_id) DO NOTHING`,
		notificationID, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert unsubscribe record", err)
	}
	return nil
}

// Exists reports whether the user has unsubscribed from the rule.
func (r *UnsubscribeRepository) Exists(ctx context.Context, notificationID, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM notifications_unsubscribe
			WHERE notification_id = $1 AND user_id = $2
		 )`,
		notificationID, userID,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check unsubscribe record", err)
	}
	return exists, nil
}

// UserIDs returns the set of users who unsubscribed from the rule. The
// dispatch engine loads the set once per run instead of querying per
// recipient.
func (r *UnsubscribeRepository) UserIDs(ctx context.Context, notificationID int64) (map[int64]struct{}, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id FROM notifications_unsubscribe WHERE notification_id = $1`,
		notificationID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list unsubscribed users", err)
	}
	defer rows.Close()

	ids := map[int64]struct{}{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan unsubscribed user", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate unsubscribed users", err)
	}
	return ids, nil
}

// DeleteForRule removes all unsubscribe records for a rule. Called from the
// rule deletion transaction.
func (r *UnsubscribeRepository) DeleteForRule(ctx context.Context, notificationID int64) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM notifications_unsubscribe WHERE notification_id = $1`,
		notificationID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete unsubscribe records", err)
	}
	return nil
}
