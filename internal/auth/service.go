package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leadline.io/internal/crm"
	"leadline.io/internal/ids"
)

const defaultTokenTTL = 24 * time.Hour

// Service resolves credentials to identities and manages user profiles.
type Service struct {
	store    crm.Store
	now      func() time.Time
	tokenTTL time.Duration
}

// NewService constructs the identity service over the shared store.
func NewService(store crm.Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	return &Service{
		store:    store,
		now:      func() time.Time { return time.Now().UTC() },
		tokenTTL: defaultTokenTTL,
	}, nil
}

// RegisterInput is a new user registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     crm.Role
}

// ProfileUpdate is a partial self-service profile update. The role is absent
// on purpose: users never change their own role.
type ProfileUpdate struct {
	Name     *string
	Email    *string
	Password *string
}

// Register creates an active user. The role defaults to sales_executive.
func (s *Service) Register(ctx context.Context, in RegisterInput) (crm.User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return crm.User{}, fmt.Errorf("%w: name is required", crm.ErrValidation)
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return crm.User{}, err
	}
	if len(in.Password) < 6 {
		return crm.User{}, fmt.Errorf("%w: password must be at least 6 characters", crm.ErrValidation)
	}
	role := in.Role
	if role == "" {
		role = crm.RoleSalesExec
	}
	if !role.Valid() {
		return crm.User{}, fmt.Errorf("%w: unsupported role %q", crm.ErrValidation, in.Role)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return crm.User{}, err
	}

	now := s.now()
	user := crm.User{
		ID:           ids.New(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, &user); err != nil {
		return crm.User{}, err
	}
	return user, nil
}

// Login verifies credentials and issues a bearer token. Bad credentials and
// deactivated accounts are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (crm.User, string, time.Time, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return crm.User{}, "", time.Time{}, err
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, crm.ErrNotFound) {
			return crm.User{}, "", time.Time{}, crm.ErrUnauthenticated
		}
		return crm.User{}, "", time.Time{}, err
	}
	if !user.Active {
		return crm.User{}, "", time.Time{}, crm.ErrUnauthenticated
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return crm.User{}, "", time.Time{}, crm.ErrUnauthenticated
	}

	token, err := GenerateToken(user.ID, user.Role, s.tokenTTL)
	if err != nil {
		return crm.User{}, "", time.Time{}, err
	}
	return user, token, s.now().Add(s.tokenTTL), nil
}

// Authenticate resolves a bearer token to a live principal. The user row is
// re-read on every call so a deactivated user loses access immediately.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := ParseAndValidate(token)
	if err != nil {
		return Principal{}, crm.ErrUnauthenticated
	}
	user, err := s.store.GetUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, crm.ErrNotFound) {
			return Principal{}, crm.ErrUnauthenticated
		}
		return Principal{}, err
	}
	if !user.Active {
		return Principal{}, crm.ErrUnauthenticated
	}
	return Principal{ID: user.ID, Name: user.Name, Role: user.Role}, nil
}

// Profile returns the user row for the authenticated actor.
func (s *Service) Profile(ctx context.Context, userID string) (crm.User, error) {
	return s.store.GetUser(ctx, userID)
}

// UpdateProfile applies a partial self-service update.
func (s *Service) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (crm.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return crm.User{}, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return crm.User{}, fmt.Errorf("%w: name is required", crm.ErrValidation)
		}
		user.Name = name
	}
	if upd.Email != nil {
		email, err := normalizeEmail(*upd.Email)
		if err != nil {
			return crm.User{}, err
		}
		user.Email = email
	}
	if upd.Password != nil {
		if len(*upd.Password) < 6 {
			return crm.User{}, fmt.Errorf("%w: password must be at least 6 characters", crm.ErrValidation)
		}
		hash, err := HashPassword(*upd.Password)
		if err != nil {
			return crm.User{}, err
		}
		user.PasswordHash = hash
	}
	user.UpdatedAt = s.now()
	if err := s.store.UpdateUser(ctx, &user); err != nil {
		return crm.User{}, err
	}
	return user, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 || !strings.Contains(email[at+1:], ".") {
		return "", fmt.Errorf("%w: valid email is required", crm.ErrValidation)
	}
	return email, nil
}
