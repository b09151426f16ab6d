package db

import (
	"context"

	"pagenotify/internal/types"
)

// EventRepository provides data access for notifications_events, the
// open-tracking log. Events are insert-only; duplicate opens of the same
// message are collapsed by the natural key.
type EventRepository struct {
	db DBTX
}

// NewEventRepository creates an EventRepository backed by the given
// connection.
func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// Insert records an engagement event. Duplicate (message_id, type) pairs
// are not double-counted; the conflict is treated as success.
func (r *EventRepository) Insert(ctx context.Context, ev *types.EngagementEvent) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO notifications_events
		 (notification_id, notification_datetime, message_id, type, created_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
		 ON CONFLICT (message_id, type) DO NOTHING`,
		ev.NotificationID,
		ev.NotificationDatetime,
		ev.MessageID,
		ev.Type,
		nilIfZeroTime(ev.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert engagement event", err)
	}
	return nil
}

// ListRecent returns the newest events across all rules for the activity
// surface.
func (r *EventRepository) ListRecent(ctx context.Context, limit int) ([]types.EngagementEvent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT notification_id, notification_datetime, message_id, type, created_at
		 FROM notifications_events
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list engagement events", err)
	}
	defer rows.Close()

	var events []types.EngagementEvent
	for rows.Next() {
		var ev types.EngagementEvent
		if err := rows.Scan(&ev.NotificationID, &ev.NotificationDatetime, &ev.MessageID, &ev.Type, &ev.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan engagement event", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate engagement events", err)
	}
	return events, nil
}
