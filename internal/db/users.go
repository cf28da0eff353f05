package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// PrimaryAdmin is the username that can never be deleted.
const PrimaryAdmin = "admin"

type Role string

const (
	RoleUser     Role = "user"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleUser, RoleOperator, RoleAdmin:
		return r, true
	default:
		return "", false
	}
}

type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

// NewUser is a signup request. ID is optional.
type NewUser struct {
	ID          string `json:"-"`
	Username    string `json:"username" validate:"required"`
	Password    string `json:"password" validate:"required,max=72"`
	DisplayName string `json:"displayName" validate:"required"`
	Role        Role   `json:"role" validate:"required,oneof=user operator admin"`
}

func (s *Store) CreateUser(ctx context.Context, nu NewUser) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u := User{ID: nu.ID, Username: nu.Username, DisplayName: nu.DisplayName, Role: nu.Role}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, display_name, role) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Username, string(hash), u.DisplayName, string(u.Role))
	if isUniqueViolation(err) {
		return User{}, fmt.Errorf("username %s: %w", u.Username, ErrConflict)
	}
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Authenticate checks a username/password pair. Unknown users and wrong
// passwords both yield ErrInvalidCredentials.
func (s *Store) Authenticate(ctx context.Context, username, password string) (User, error) {
	var (
		u    User
		role string
		hash string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, display_name, role, password_hash FROM users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.DisplayName, &role, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	u.Role = Role(role)
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, display_name, role FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUser(row rowScanner) (User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &role); err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	u.Role = Role(role)
	return u, nil
}

func (s *Store) UpdateUserRole(ctx context.Context, id string, role Role) (User, error) {
	var u User
	var r string
	err := s.db.QueryRowContext(ctx,
		`UPDATE users SET role = $2 WHERE id = $1 RETURNING id, username, display_name, role`, id, string(role)).
		Scan(&u.ID, &u.Username, &u.DisplayName, &r)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("update user role: %w", err)
	}
	u.Role = Role(r)
	return u, nil
}

// DeleteUser removes an account and, through the schema, its trips. The
// primary admin account is refused with ErrForbidden.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var username string
		err := tx.QueryRowContext(ctx, `SELECT username FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&username)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lookup user: %w", err)
		}
		if username == PrimaryAdmin {
			return fmt.Errorf("cannot delete the primary admin account: %w", ErrForbidden)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}
