package database

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirectory(
		&User{Identity: "bob@example.com"},
		&User{ID: "42", Identity: "alice@example.com", Role: RoleAdmin},
	)

	alice, err := d.FindByIdentity(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "42", alice.ID)
	assert.True(t, alice.IsAdmin())

	bob, err := d.FindByIdentity(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, bob.ID)
	assert.Equal(t, RoleUser, bob.Role)

	_, err = d.FindByIdentity(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	users, err := d.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice@example.com", users[0].Identity)

	// returned values are copies
	alice.Role = RoleUser
	again, _ := d.FindByIdentity(ctx, "alice@example.com")
	assert.Equal(t, RoleAdmin, again.Role)
}

func TestRepository_Postgres(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := New(ctx, url)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.RunMigrations(ctx))
	require.NoError(t, db.RunMigrations(ctx), "migrations must be idempotent")

	repo := NewRepository(db)
	identity := fmt.Sprintf("it-%d@example.com", time.Now().UnixNano())
	u := &User{Identity: identity, Role: RoleAdmin}
	require.NoError(t, repo.Create(ctx, u))
	assert.NotEmpty(t, u.ID)

	found, err := repo.FindByIdentity(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)
	assert.True(t, found.IsAdmin())

	_, err = repo.FindByIdentity(ctx, "missing-"+identity)
	assert.ErrorIs(t, err, ErrUserNotFound)

	users, err := repo.List(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, users)
}
