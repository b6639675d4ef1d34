// Package store persists meeting job records. Writes are atomic per job:
// a concurrent reader sees either the previous record or the new one,
// never a partially updated mix of fields.
package store

import (
	"context"

	"github.com/meetbrief/meetbrief/pkg/meeting"
)

// Store is the coordinator's persistence boundary. Only the coordinator
// writes; workers never touch the store directly.
type Store interface {
	// Create persists a new job record.
	Create(ctx context.Context, job *meeting.Job) error

	// Get returns a copy of the job, or ErrNotFound.
	Get(ctx context.Context, id string) (*meeting.Job, error)

	// Update replaces the whole job record in one atomic write.
	Update(ctx context.Context, job *meeting.Job) error

	// Delete removes the job record.
	Delete(ctx context.Context, id string) error

	// List returns copies of all job records, newest first.
	List(ctx context.Context) ([]*meeting.Job, error)
}
