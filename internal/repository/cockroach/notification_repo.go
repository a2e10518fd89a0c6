package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatgrid-backend/internal/domain"
)

// NotificationRepository handles notification data operations.
// The table is append-only: rows are only ever created, read-marked or
// deleted, never edited. Duplicate deliveries create duplicate rows.
type NotificationRepository struct {
	db *pgxpool.Pool
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a new notification
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (notification_id, user_id, type, payload, is_read)
		VALUES ($1, $2, $3, $4, false)
		RETURNING created_at
	`

	err := r.db.QueryRow(ctx, query,
		n.ID,
		n.UserID,
		n.Type,
		[]byte(n.Payload),
	).Scan(&n.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// ListByUser retrieves a page of the user's notifications, newest first.
// A non-nil lastID continues from just past that row (keyset pagination);
// an unknown lastID yields an empty page.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, lastID *uuid.UUID, limit int) ([]domain.Notification, error) {
	query := `
		SELECT notification_id, user_id, type, payload, is_read, created_at
		FROM notifications
		WHERE user_id = $1
	`
	args := []interface{}{userID}

	if lastID != nil {
		query += `
		  AND (created_at, notification_id) < (
			SELECT created_at, notification_id FROM notifications
			WHERE notification_id = $2 AND user_id = $1
		  )
		`
		args = append(args, *lastID)
	}

	query += fmt.Sprintf(`
		ORDER BY created_at DESC, notification_id DESC
		LIMIT $%d
	`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// GetUnread retrieves all unread notifications for a user, newest first
func (r *NotificationRepository) GetUnread(ctx context.Context, userID uuid.UUID) ([]domain.Notification, error) {
	query := `
		SELECT notification_id, user_id, type, payload, is_read, created_at
		FROM notifications
		WHERE user_id = $1 AND is_read = false
		ORDER BY created_at DESC, notification_id DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unread notifications: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// MarkRead marks the given notifications as read. The update is scoped to the
// owning user: ids belonging to other users are left untouched. Returns how
// many rows actually changed.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `
		UPDATE notifications
		SET is_read = true
		WHERE user_id = $1 AND notification_id = ANY($2) AND is_read = false
	`

	result, err := r.db.Exec(ctx, query, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications as read: %w", err)
	}

	return result.RowsAffected(), nil
}

// Delete removes the given notifications, scoped to the owning user.
// Returns how many rows were deleted.
func (r *NotificationRepository) Delete(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `DELETE FROM notifications WHERE user_id = $1 AND notification_id = ANY($2)`

	result, err := r.db.Exec(ctx, query, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications: %w", err)
	}

	return result.RowsAffected(), nil
}

func scanNotifications(rows pgx.Rows) ([]domain.Notification, error) {
	var notifications []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var payload []byte
		err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.Type,
			&payload,
			&n.IsRead,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Payload = payload
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
