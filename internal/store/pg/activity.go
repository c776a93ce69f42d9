package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"leadline.io/internal/crm"
)

const activityColumns = `id, type, description, metadata, lead_id, user_id, created_at, updated_at`

func marshalMetadata(meta map[string]any) (any, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode activity metadata: %w", err)
	}
	return raw, nil
}

func scanActivity(row interface{ Scan(...any) error }) (crm.Activity, error) {
	var (
		act crm.Activity
		raw []byte
	)
	err := row.Scan(
		&act.ID, &act.Type, &act.Description, &raw,
		&act.LeadID, &act.UserID, &act.CreatedAt, &act.UpdatedAt,
	)
	if err != nil {
		return crm.Activity{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &act.Metadata); err != nil {
			return crm.Activity{}, fmt.Errorf("decode activity metadata: %w", err)
		}
	}
	return act, nil
}

func insertActivity(ctx context.Context, tx *sql.Tx, act *crm.Activity) error {
	meta, err := marshalMetadata(act.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		insert into activities (id, type, description, metadata, lead_id, user_id, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, act.ID, act.Type, act.Description, meta, act.LeadID, act.UserID, act.CreatedAt, act.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: lead %s does not exist", crm.ErrNotFound, act.LeadID)
		}
		return err
	}
	return nil
}

func (s *Store) CreateActivity(ctx context.Context, act *crm.Activity, note *crm.Notification) error {
	tx, err := begin(ctx, s.db)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertActivity(ctx, tx, act); err != nil {
		return err
	}
	if note != nil {
		if err := insertNotification(ctx, tx, note); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetActivity(ctx context.Context, id string) (crm.Activity, error) {
	row := s.db.QueryRowContext(ctx, `select `+activityColumns+` from activities where id = $1`, id)
	act, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return crm.Activity{}, crm.ErrNotFound
	}
	if err != nil {
		return crm.Activity{}, err
	}
	return act, nil
}

func (s *Store) ListActivities(ctx context.Context, f crm.ActivityFilter) ([]crm.Activity, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.LeadID != "" {
		where = append(where, "lead_id = "+arg(f.LeadID))
	}
	if f.Type != "" {
		where = append(where, "type = "+arg(string(f.Type)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from activities`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(
		`select %s from activities%s order by created_at desc, id desc limit %s offset %s`,
		activityColumns, clause, arg(f.Limit), arg(f.Offset),
	)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []crm.Activity
	for rows.Next() {
		act, err := scanActivity(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, act)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (s *Store) UpdateActivity(ctx context.Context, act *crm.Activity) error {
	meta, err := marshalMetadata(act.Metadata)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		update activities set description=$2, metadata=$3, updated_at=$4 where id = $1
	`, act.ID, act.Description, meta, act.UpdatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return crm.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteActivity(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from activities where id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return crm.ErrNotFound
	}
	return nil
}
