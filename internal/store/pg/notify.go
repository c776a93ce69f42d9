package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"leadline.io/internal/crm"
)

const notificationColumns = `id, message, severity, read, link, user_id, created_at`

func insertNotification(ctx context.Context, tx *sql.Tx, note *crm.Notification) error {
	_, err := tx.ExecContext(ctx, `
		insert into notifications (id, message, severity, read, link, user_id, created_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, note.ID, note.Message, note.Severity, note.Read, note.Link, note.UserID, note.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: user %s does not exist", crm.ErrValidation, note.UserID)
		}
		return err
	}
	return nil
}

func (s *Store) CreateNotification(ctx context.Context, note *crm.Notification) error {
	tx, err := begin(ctx, s.db)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertNotification(ctx, tx, note); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListNotifications(ctx context.Context, userID string, f crm.NotificationFilter) ([]crm.Notification, error) {
	query := `select ` + notificationColumns + ` from notifications where user_id = $1`
	args := []any{userID}
	if f.UnreadOnly {
		query += ` and read = false`
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(` order by created_at desc, id desc limit $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []crm.Notification
	for rows.Next() {
		var note crm.Notification
		if err := rows.Scan(
			&note.ID, &note.Message, &note.Severity, &note.Read,
			&note.Link, &note.UserID, &note.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, note)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, userID string) error {
	var recipient string
	err := s.db.QueryRowContext(ctx, `select user_id from notifications where id = $1`, id).Scan(&recipient)
	if errors.Is(err, sql.ErrNoRows) {
		return crm.ErrNotFound
	}
	if err != nil {
		return err
	}
	if recipient != userID {
		return crm.ErrForbidden
	}
	_, err = s.db.ExecContext(ctx, `update notifications set read = true where id = $1`, id)
	return err
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `update notifications set read = true where user_id = $1 and read = false`, userID)
	return err
}

func (s *Store) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from notifications where user_id = $1 and read = false`, userID).Scan(&n)
	return n, err
}
