package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"sitesave/types"
)

var (
	// ErrDuplicateToken is returned when a token is already registered.
	ErrDuplicateToken = errors.New("duplicate token")

	// ErrJobNotFound is returned when no job exists for a token.
	ErrJobNotFound = errors.New("job not found")
)

// JobRegistry is the concurrency-safe store of per-token job state. It is the
// only shared mutable state in the service: the pipeline writes through
// Update, HTTP handlers read snapshots through Get.
type JobRegistry interface {
	Create(token, website string) (*types.DownloadJob, error)
	Get(token string) (*types.DownloadJob, bool)
	Update(token string, mutate func(*types.DownloadJob)) (*types.DownloadJob, error)
	Delete(token string)
	All() []*types.DownloadJob
	StartSweeper(ctx context.Context, ttl time.Duration, onEvict func(types.DownloadJob))
}

// jobRegistry implements JobRegistry with a single coarse lock. One token is
// written by exactly one pipeline, so contention is per-token only and a
// RWMutex is plenty.
type jobRegistry struct {
	jobs map[string]*types.DownloadJob
	mu   sync.RWMutex
}

// NewJobRegistry creates an empty registry
func NewJobRegistry() JobRegistry {
	return &jobRegistry{
		jobs: make(map[string]*types.DownloadJob),
	}
}

// Create inserts a new record with status processing. The record is visible
// to concurrent readers as soon as Create returns.
func (r *jobRegistry) Create(token, website string) (*types.DownloadJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[token]; exists {
		return nil, ErrDuplicateToken
	}

	job := &types.DownloadJob{
		Token:     token,
		Status:    types.JobStatusProcessing,
		Progress:  "Starting download...",
		Website:   website,
		StartTime: time.Now(),
	}
	r.jobs[token] = job

	snapshot := *job
	return &snapshot, nil
}

// Get returns a snapshot copy of the record. Readers never observe a
// half-applied update because copies are taken under the lock.
func (r *jobRegistry) Get(token string) (*types.DownloadJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, exists := r.jobs[token]
	if !exists {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// Update applies mutate under exclusive access, serializing same-token
// writers. Terminal records are immutable: mutate is not applied and the
// unchanged snapshot is returned.
func (r *jobRegistry) Update(token string, mutate func(*types.DownloadJob)) (*types.DownloadJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.jobs[token]
	if !exists {
		return nil, ErrJobNotFound
	}
	if !job.Terminal() {
		mutate(job)
	}
	snapshot := *job
	return &snapshot, nil
}

// Delete removes a record. Unknown tokens are a no-op.
func (r *jobRegistry) Delete(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, token)
}

// All returns snapshot copies of every record
func (r *jobRegistry) All() []*types.DownloadJob {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]*types.DownloadJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	return jobs
}

// StartSweeper evicts terminal records older than ttl on a fixed interval.
// onEvict runs outside the registry lock so callers can reclaim archives on
// disk without stalling readers.
func (r *jobRegistry) StartSweeper(ctx context.Context, ttl time.Duration, onEvict func(types.DownloadJob)) {
	interval := ttl / 10
	if interval < time.Second {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, job := range r.sweep(ttl) {
					if onEvict != nil {
						onEvict(job)
					}
				}
			}
		}
	}()
}

// sweep removes expired terminal records and returns copies of what it evicted
func (r *jobRegistry) sweep(ttl time.Duration) []types.DownloadJob {
	cutoff := time.Now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []types.DownloadJob
	for token, job := range r.jobs {
		if !job.Terminal() || job.CompletedAt == nil || job.CompletedAt.After(cutoff) {
			continue
		}
		evicted = append(evicted, *job)
		delete(r.jobs, token)
	}
	return evicted
}
