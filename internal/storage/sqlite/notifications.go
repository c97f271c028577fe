package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tracker/internal/models"
)

// CreateNotification persists a notification for its recipient.
func (s *Store) CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	if n.Type == "" {
		return models.Notification{}, models.Invalid("type", "notification type must not be empty")
	}
	created := n.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO notifications(user_id, actor_id, type, message, related_id, related_type, read, created_at)
        VALUES(?, ?, ?, ?, ?, ?, 0, ?)`,
		n.UserID, nullInt(n.ActorID), n.Type, n.Message, nullInt(n.RelatedID), n.RelatedType, toMicros(created))
	if err != nil {
		return models.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Notification{}, fmt.Errorf("notification id: %w", err)
	}
	return s.GetNotification(ctx, id)
}

// GetNotification fetches a notification by id.
func (s *Store) GetNotification(ctx context.Context, id int64) (models.Notification, error) {
	n, err := scanNotification(s.db.QueryRowContext(ctx, `SELECT id, user_id, actor_id, type, message, related_id, related_type, read, created_at
        FROM notifications WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Notification{}, models.NotFoundf("notification %d", id)
	}
	if err != nil {
		return models.Notification{}, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, user_id, actor_id, type, message, related_id, related_type, read, created_at FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flags a notification as read. Only its recipient may do so.
func (s *Store) MarkNotificationRead(ctx context.Context, id, userID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.NotFoundf("notification %d for user %d", id, userID)
	}
	return nil
}

func scanNotification(row scanner) (models.Notification, error) {
	var (
		n                  models.Notification
		actorID, relatedID sql.NullInt64
		created            int64
	)
	if err := row.Scan(&n.ID, &n.UserID, &actorID, &n.Type, &n.Message, &relatedID, &n.RelatedType, &n.Read, &created); err != nil {
		return models.Notification{}, err
	}
	n.ActorID = intPtr(actorID)
	n.RelatedID = intPtr(relatedID)
	n.CreatedAt = fromMicros(created)
	return n, nil
}
