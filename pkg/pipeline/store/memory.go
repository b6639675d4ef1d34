package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	mberrors "github.com/meetbrief/meetbrief/pkg/errors"
	"github.com/meetbrief/meetbrief/pkg/meeting"
)

// MemoryStore keeps job records in process memory. Every record crossing
// the boundary is deep-copied, so readers never observe a write in
// progress.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*meeting.Job
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*meeting.Job)}
}

// Create persists a new job record.
func (s *MemoryStore) Create(ctx context.Context, job *meeting.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s: already exists", job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get returns a copy of the job, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, id string) (*meeting.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, mberrors.ErrNotFound)
	}
	return job.Clone(), nil
}

// Update replaces the whole job record.
func (s *MemoryStore) Update(ctx context.Context, job *meeting.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("job %s: %w", job.ID, mberrors.ErrNotFound)
	}
	c := job.Clone()
	c.UpdatedAt = time.Now()
	s.jobs[job.ID] = c
	return nil
}

// Delete removes the job record.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return fmt.Errorf("job %s: %w", id, mberrors.ErrNotFound)
	}
	delete(s.jobs, id)
	return nil
}

// List returns copies of all job records, newest first.
func (s *MemoryStore) List(ctx context.Context) ([]*meeting.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]*meeting.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.Clone())
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
