package pipeline

import (
	"context"

	"tikzflow/internal/jobs"
	"tikzflow/internal/logging"
	"tikzflow/internal/stage"
)

// StatusSummary represents lightweight orchestrator diagnostics.
type StatusSummary struct {
	Running        bool
	InFlight       int
	StaleUpdates   uint64
	LastError      string
	LastJob        *jobs.Job
	JobStats       map[jobs.Status]int
	ProviderHealth map[string]stage.Health
}

// Status returns the latest orchestrator information.
func (o *Orchestrator) Status(ctx context.Context) StatusSummary {
	o.mu.RLock()
	summary := StatusSummary{
		Running:  o.running,
		InFlight: o.inFlight,
	}
	if o.lastErr != nil {
		summary.LastError = o.lastErr.Error()
	}
	if o.lastJob != nil {
		copy := *o.lastJob
		summary.LastJob = &copy
	}
	o.mu.RUnlock()
	summary.StaleUpdates = o.staleUpdates.Load()

	stats, err := o.registry.Stats(ctx)
	if err != nil {
		o.logger.Warn("failed to read job stats", logging.Error(err))
	}
	summary.JobStats = stats

	providers := []struct {
		name     string
		provider any
	}{
		{"images", o.images},
		{"conversion", o.converter},
		{"render", o.renderer},
		{"export", o.exporter},
	}
	summary.ProviderHealth = make(map[string]stage.Health, len(providers))
	for _, p := range providers {
		if p.provider == nil {
			continue
		}
		summary.ProviderHealth[p.name] = stage.Check(ctx, p.name, p.provider)
	}
	return summary
}

func (o *Orchestrator) setLastError(err error) {
	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()
}

func (o *Orchestrator) setLastJob(job *jobs.Job) {
	o.mu.Lock()
	if job != nil {
		copy := *job
		o.lastJob = &copy
	} else {
		o.lastJob = nil
	}
	o.mu.Unlock()
}
