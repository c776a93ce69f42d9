package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"leadline.io/internal/crm"
)

// Sort columns admitted into ORDER BY. Anything else falls back to created_at.
var leadSortColumns = map[string]string{
	"name":       "name",
	"email":      "email",
	"company":    "company",
	"status":     "status",
	"value":      "value",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

const leadColumns = `id, name, email, phone, company, status, source, value, notes, owner_id, created_at, updated_at`

func scanLead(row interface{ Scan(...any) error }) (crm.Lead, error) {
	var (
		lead  crm.Lead
		owner sql.NullString
	)
	err := row.Scan(
		&lead.ID, &lead.Name, &lead.Email, &lead.Phone, &lead.Company,
		&lead.Status, &lead.Source, &lead.Value, &lead.Notes, &owner,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		return crm.Lead{}, err
	}
	lead.OwnerID = fromNullable(owner)
	return lead, nil
}

func (s *Store) CreateLead(ctx context.Context, lead *crm.Lead, act *crm.Activity, note *crm.Notification) error {
	tx, err := begin(ctx, s.db)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into leads (id, name, email, phone, company, status, source, value, notes, owner_id, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, lead.ID, lead.Name, lead.Email, lead.Phone, lead.Company, lead.Status, lead.Source,
		lead.Value, lead.Notes, nullable(lead.OwnerID), lead.CreatedAt, lead.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: owner %s does not exist", crm.ErrValidation, lead.OwnerID)
		}
		return err
	}
	if act != nil {
		if err := insertActivity(ctx, tx, act); err != nil {
			return err
		}
	}
	if note != nil {
		if err := insertNotification(ctx, tx, note); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetLead(ctx context.Context, id string) (crm.Lead, error) {
	row := s.db.QueryRowContext(ctx, `select `+leadColumns+` from leads where id = $1`, id)
	lead, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return crm.Lead{}, crm.ErrNotFound
	}
	if err != nil {
		return crm.Lead{}, err
	}
	return lead, nil
}

func (s *Store) ListLeads(ctx context.Context, f crm.LeadFilter) ([]crm.Lead, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.OwnerID != "" {
		where = append(where, "owner_id = "+arg(f.OwnerID))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		pattern := "%" + search + "%"
		p := arg(pattern)
		where = append(where, fmt.Sprintf("(name ilike %s or email ilike %s or company ilike %s)", p, p, p))
	}
	clause := ""
	if len(where) > 0 {
		clause = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from leads`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	col, ok := leadSortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "desc"
	if strings.EqualFold(f.SortDir, "asc") {
		dir = "asc"
	}
	query := fmt.Sprintf(
		`select %s from leads%s order by %s %s, id %s limit %s offset %s`,
		leadColumns, clause, col, dir, dir, arg(f.Limit), arg(f.Offset),
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []crm.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (s *Store) UpdateLead(ctx context.Context, lead *crm.Lead, acts []crm.Activity, notes []crm.Notification) error {
	tx, err := begin(ctx, s.db)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update leads
		set name=$2, email=$3, phone=$4, company=$5, status=$6, source=$7,
		    value=$8, notes=$9, owner_id=$10, updated_at=$11
		where id = $1
	`, lead.ID, lead.Name, lead.Email, lead.Phone, lead.Company, lead.Status, lead.Source,
		lead.Value, lead.Notes, nullable(lead.OwnerID), lead.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: owner %s does not exist", crm.ErrValidation, lead.OwnerID)
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return crm.ErrNotFound
	}

	for i := range acts {
		if err := insertActivity(ctx, tx, &acts[i]); err != nil {
			return err
		}
	}
	for i := range notes {
		if err := insertNotification(ctx, tx, &notes[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) DeleteLead(ctx context.Context, id string) error {
	// Activities go with the lead via ON DELETE CASCADE.
	res, err := s.db.ExecContext(ctx, `delete from leads where id = $1`, id)
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
