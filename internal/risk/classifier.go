package risk

import "predictra/internal/machine"

// Classify buckets a health score into a machine status. Boundaries are
// inclusive on the upper side: 30 is warning, 60 is healthy.
func Classify(healthScore int) machine.HealthStatus {
	switch {
	case healthScore < 30:
		return machine.HealthCritical
	case healthScore < 60:
		return machine.HealthWarning
	default:
		return machine.HealthHealthy
	}
}
