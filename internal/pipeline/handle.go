package pipeline

import "context"

// Handle observes one background run. Production callers may ignore it.
type Handle struct {
	jobID      string
	generation uint64
	done       chan struct{}

	// written before done is closed
	applied bool
}

func newHandle(jobID string, generation uint64) *Handle {
	return &Handle{jobID: jobID, generation: generation, done: make(chan struct{})}
}

// JobID returns the job the run belongs to.
func (h *Handle) JobID() string { return h.jobID }

// Generation returns the registry generation the run writes against.
func (h *Handle) Generation() uint64 { return h.generation }

// Done is closed once the run has recorded its outcome.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Applied reports whether the run's terminal update reached the registry.
// It is false when a newer submission superseded the run. Only meaningful
// after Done is closed.
func (h *Handle) Applied() bool {
	select {
	case <-h.done:
		return h.applied
	default:
		return false
	}
}
