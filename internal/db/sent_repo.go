package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"pagenotify/internal/types"
)

// SentRepository provides data access for the notifications_sent table, the
// per-run aggregate delivery log. One row is written per dispatch run of a
// rule; the newest row's text is the oracle for the must-differ check.
type SentRepository struct {
	db DBTX
}

// NewSentRepository creates a SentRepository backed by the given connection.
func NewSentRepository(db DBTX) *SentRepository {
	return &SentRepository{db: db}
}

// Insert writes the run's aggregate record. The insert is conflict-ignoring
// on (notification_id, created_at): a concurrent duplicate run does not
// raise, it silently keeps the first row. That race is a documented
// limitation of the aggregate sent log, not something this layer hides.
func (r *SentRepository) Insert(ctx context.Context, rec *types.SentRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO notifications_sent (notification_id, text, recipients, created_at)
		 VALUES ($1, $2, $3, COALESCE($4, NOW()))
		 ON CONFLICT (notification_id, created_at) DO NOTHING`,
		rec.NotificationID,
		rec.Text,
		rec.Recipients,
		nilIfZeroTime(rec.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert sent record", err)
	}
	return nil
}

// LatestText returns the text of the most recent sent record for the rule,
// or "" when the rule has never been sent.
func (r *SentRepository) LatestText(ctx context.Context, notificationID int64) (string, error) {
	var text string
	err := r.db.QueryRow(ctx,
		`SELECT text FROM notifications_sent
		 WHERE notification_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		notificationID,
	).Scan(&text)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to load last sent text", err)
	}
	return text, nil
}

// ListByRule returns the send history for a rule, newest first, for the
// admin history surface.
func (r *SentRepository) ListByRule(ctx context.Context, notificationID int64, limit int) ([]types.SentRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT notification_id, text, recipients, created_at
		 FROM notifications_sent
		 WHERE notification_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		notificationID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list sent records", err)
	}
	defer rows.Close()

	var recs []types.SentRecord
	for rows.Next() {
		var rec types.SentRecord
		if err := rows.Scan(&rec.NotificationID, &rec.Text, &rec.Recipients, &rec.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan sent record", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate sent records", err)
	}
	return recs, nil
}
