package taskstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// DefaultTTL is how long an untouched task record stays reachable.
// Every write refreshes the countdown.
const DefaultTTL = 1800 * time.Second

var (
	ErrNotFound = errors.New("task not found")
	ErrConflict = errors.New("task already exists")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// State is a snapshot of a single task record. Status moves strictly forward:
// pending → processing → completed|error. Progress is meaningful only while
// processing, File only when completed, Error only on error.
type State struct {
	Status     Status    `json:"status"`
	Progress   int       `json:"progress"`
	File       string    `json:"file,omitempty"`
	Error      string    `json:"error,omitempty"`
	SitemapURL string    `json:"sitemap_url,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// Patch mutates selected fields of a stored State during Update.
type Patch func(*State)

func WithStatus(s Status) Patch {
	return func(st *State) { st.Status = s }
}

func WithProgress(p int) Patch {
	return func(st *State) { st.Progress = p }
}

func WithFile(path string) Patch {
	return func(st *State) { st.File = path }
}

func WithError(msg string) Patch {
	return func(st *State) { st.Error = msg }
}

// Store keeps task records for their TTL. Implementations must be safe for
// concurrent use from unrelated tasks; per-key writes are last-writer-wins,
// which is sufficient since a single worker owns each record over its lifetime.
type Store interface {
	// Create inserts a fresh record. ErrConflict if the id is taken.
	Create(ctx context.Context, id string, initial State, ttl time.Duration) error
	// Get returns the current snapshot or ErrNotFound. Never existed,
	// expired and purged all look the same to the caller.
	Get(ctx context.Context, id string) (*State, error)
	// Update applies patches to the existing record and refreshes its TTL.
	// ErrNotFound when the record is gone; callers treat that as recoverable.
	Update(ctx context.Context, id string, ttl time.Duration, patches ...Patch) error
	// Delete removes the record. Deleting an absent id is a no-op.
	Delete(ctx context.Context, id string) error
}
