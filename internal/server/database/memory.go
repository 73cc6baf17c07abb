package database

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryDirectory is a Directory held in memory. It backs tests and runs
// without a configured database.
type MemoryDirectory struct {
	mu     sync.RWMutex
	users  map[string]*User
	nextID int64
}

// NewMemoryDirectory creates a directory seeded with users. Seed users
// without an id get one assigned.
func NewMemoryDirectory(seed ...*User) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]*User)}
	for _, u := range seed {
		d.Add(u)
	}
	return d
}

// Add inserts or replaces a user.
func (d *MemoryDirectory) Add(u *User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cp := *u
	if cp.ID == "" {
		d.nextID++
		cp.ID = strconv.FormatInt(d.nextID, 10)
	}
	if cp.Role == "" {
		cp.Role = RoleUser
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	d.users[cp.Identity] = &cp
}

func (d *MemoryDirectory) FindByIdentity(_ context.Context, identity string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[identity]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (d *MemoryDirectory) List(_ context.Context) ([]*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*User, 0, len(d.users))
	for _, u := range d.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}
