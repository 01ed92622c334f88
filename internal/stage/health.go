package stage

import "context"

// Health summarizes the readiness of a provider.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// Check returns the provider's health, or a ready record when it does not
// implement HealthChecker.
func Check(ctx context.Context, name string, provider any) Health {
	if hc, ok := provider.(HealthChecker); ok {
		h := hc.HealthCheck(ctx)
		if h.Name == "" {
			h.Name = name
		}
		return h
	}
	return Healthy(name)
}
