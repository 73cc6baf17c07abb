package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
)

var (
	ErrUserNotFound = errors.New("user not found")
)

// Directory looks up portal accounts. It enriches review views and fills
// in missing user ids; it is never authoritative for upload status.
type Directory interface {
	FindByIdentity(ctx context.Context, identity string) (*User, error)
	List(ctx context.Context) ([]*User, error)
}

// Repository is the Postgres-backed Directory.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a user and fills in the generated id and timestamp.
func (r *Repository) Create(ctx context.Context, user *User) error {
	if user.Role == "" {
		user.Role = RoleUser
	}
	var id int64
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO users (email, role) VALUES ($1, $2)
		RETURNING id, created_at
	`, user.Identity, user.Role).Scan(&id, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.ID = strconv.FormatInt(id, 10)
	return nil
}

// FindByIdentity retrieves a user by e-mail identity.
func (r *Repository) FindByIdentity(ctx context.Context, identity string) (*User, error) {
	var (
		id   int64
		user = &User{}
	)
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, email, role, created_at FROM users WHERE email = $1
	`, identity).Scan(&id, &user.Identity, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.ID = strconv.FormatInt(id, 10)
	return user, nil
}

// List returns every user ordered by e-mail.
func (r *Repository) List(ctx context.Context) ([]*User, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, email, role, created_at FROM users ORDER BY email
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var id int64
		user := &User{}
		if err := rows.Scan(&id, &user.Identity, &user.Role, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user.ID = strconv.FormatInt(id, 10)
		users = append(users, user)
	}
	return users, rows.Err()
}
