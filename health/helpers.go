package health

import (
	"fmt"
	"time"
)

func newStatus(component, state, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a new healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, StateHealthy, message)
}

// NewUnhealthy creates a new unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StateUnhealthy, message)
}

// NewDegraded creates a new degraded status
func NewDegraded(component, message string) Status {
	return newStatus(component, StateDegraded, message)
}

// Queue reports a queue's occupancy against its high-water mark: healthy
// below the mark, degraded at or above it, unhealthy at twice the mark or
// more, where producers are no longer being held back.
func Queue(name string, length, highWater int) Status {
	var s Status
	switch {
	case highWater <= 0 || length < highWater:
		s = NewHealthy(name, fmt.Sprintf("%d queued", length))
	case length < 2*highWater:
		s = NewDegraded(name, fmt.Sprintf("%d queued, at high-water mark %d", length, highWater))
	default:
		s = NewUnhealthy(name, fmt.Sprintf("%d queued, twice the high-water mark %d", length, highWater))
	}
	return s.WithMetrics(&Metrics{QueueLength: length, HighWater: highWater})
}

// Aggregate creates a status by aggregating sub-statuses: unhealthy if any
// is unhealthy, else degraded if any is degraded, else healthy.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "No sub-components to aggregate")
	}

	hasUnhealthy, hasDegraded := false, false
	for _, sub := range subStatuses {
		switch {
		case sub.IsUnhealthy():
			hasUnhealthy = true
		case sub.IsDegraded():
			hasDegraded = true
		}
	}

	var status Status
	switch {
	case hasUnhealthy:
		status = NewUnhealthy(component, "One or more sub-components are unhealthy")
	case hasDegraded:
		status = NewDegraded(component, "One or more sub-components are degraded")
	default:
		status = NewHealthy(component, "All sub-components are healthy")
	}

	status.SubStatuses = make([]Status, len(subStatuses))
	copy(status.SubStatuses, subStatuses)
	return status
}
