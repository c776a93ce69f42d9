package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"leadline.io/internal/crm"
)

const userColumns = `id, name, email, password_hash, role, active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (crm.User, error) {
	var u crm.User
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash,
		&u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, user *crm.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, name, email, password_hash, role, active, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Role, user.Active, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: email %s already registered", crm.ErrConflict, user.Email)
		}
		return err
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (crm.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return crm.User{}, crm.ErrNotFound
	}
	if err != nil {
		return crm.User{}, err
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (crm.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return crm.User{}, crm.ErrNotFound
	}
	if err != nil {
		return crm.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, user *crm.User) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set name=$2, email=$3, password_hash=$4, role=$5, active=$6, updated_at=$7
		where id = $1
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Role, user.Active, user.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: email %s already registered", crm.ErrConflict, user.Email)
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
	return nil
}
