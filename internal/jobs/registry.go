package jobs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tikzflow/internal/config"
	"tikzflow/internal/services"
)

// Registry is the system of record for job state.
//
// Create always succeeds for a valid id and replaces any prior record,
// returning a generation strictly greater than any it handed out before.
// Update applies only when generation matches the current record; a stale
// writer gets (false, nil).
type Registry interface {
	Create(ctx context.Context, id string, meta Meta) (uint64, error)
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, id string, generation uint64, patch Patch) (bool, error)
	List(ctx context.Context, statuses ...Status) ([]*Job, error)
	Stats(ctx context.Context) (map[Status]int, error)
	Close() error
}

// Open builds the registry selected by cfg.Registry.Backend.
func Open(cfg *config.Config) (Registry, error) {
	switch cfg.Registry.Backend {
	case config.RegistryBackendSQLite:
		return OpenSQLite(cfg.RegistryPath())
	case config.RegistryBackendMemory, "":
		return NewMemoryRegistry(), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "jobs", "open",
			fmt.Sprintf("unknown registry backend %q", cfg.Registry.Backend), nil)
	}
}

// MemoryRegistry keeps jobs in a mutex-guarded map. State does not survive
// a restart.
type MemoryRegistry struct {
	mu         sync.RWMutex
	jobs       map[string]*Job
	generation uint64
	now        func() time.Time
}

// NewMemoryRegistry returns an empty in-process registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		jobs: make(map[string]*Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRegistry) Create(_ context.Context, id string, meta Meta) (uint64, error) {
	id, err := normalizeID(id)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.jobs[id] = newJob(id, meta, r.generation, r.now())
	return r.generation, nil
}

func (r *MemoryRegistry) Get(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[strings.TrimSpace(id)]
	if !ok {
		return nil, notFound(id)
	}
	return job.clone(), nil
}

func (r *MemoryRegistry) Update(_ context.Context, id string, generation uint64, patch Patch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[strings.TrimSpace(id)]
	if !ok {
		return false, missingOnUpdate(id)
	}
	if job.Generation != generation {
		return false, nil
	}
	next := job.clone()
	if err := next.apply(patch, r.now()); err != nil {
		return false, err
	}
	r.jobs[next.ID] = next
	return true, nil
}

func (r *MemoryRegistry) List(_ context.Context, statuses ...Status) ([]*Job, error) {
	filter := statusFilter(statuses)
	r.mu.RLock()
	out := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if filter != nil {
			if _, ok := filter[job.Status]; !ok {
				continue
			}
		}
		out = append(out, job.clone())
	}
	r.mu.RUnlock()
	sortJobs(out)
	return out, nil
}

func (r *MemoryRegistry) Stats(_ context.Context) (map[Status]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := make(map[Status]int, len(allStatuses))
	for _, job := range r.jobs {
		stats[job.Status]++
	}
	return stats, nil
}

// Close is a no-op.
func (r *MemoryRegistry) Close() error { return nil }

func normalizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", services.Wrap(services.ErrValidation, "jobs", "create", "job id is required", nil)
	}
	return id, nil
}

func notFound(id string) error {
	return services.Wrap(services.ErrNotFound, "jobs", "get", fmt.Sprintf("job %s not found", id), nil)
}

func missingOnUpdate(id string) error {
	return services.Wrap(services.ErrInvariant, "jobs", "update",
		fmt.Sprintf("job %s has no record", id), nil)
}

func statusFilter(statuses []Status) map[Status]struct{} {
	if len(statuses) == 0 {
		return nil
	}
	filter := make(map[Status]struct{}, len(statuses))
	for _, s := range statuses {
		filter[s] = struct{}{}
	}
	return filter
}

// sortJobs orders newest first, breaking ties by id.
func sortJobs(list []*Job) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
