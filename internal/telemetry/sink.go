package telemetry

import (
	"sync"

	"github.com/netwatchlab/failover-gateway/internal/model"
)

// defaultIncidentCap bounds the in-memory incident ring
const defaultIncidentCap = 256

// Sink receives controller incidents. Latency samples are not recorded
// here; they live only in the controller's telemetry windows. The memory
// implementation is the production one; tests may inject their own.
type Sink interface {
	RecordIncident(inc model.Incident)
	Incidents(limit int) []model.Incident
}

// MemorySink is a bounded in-memory incident ring, newest first on read
type MemorySink struct {
	mu        sync.Mutex
	cap       int
	incidents []model.Incident
}

// NewMemorySink creates a sink holding at most cap incidents
func NewMemorySink(cap int) *MemorySink {
	if cap <= 0 {
		cap = defaultIncidentCap
	}
	return &MemorySink{cap: cap}
}

// RecordIncident appends an incident, evicting the oldest on overflow
func (s *MemorySink) RecordIncident(inc model.Incident) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.incidents) == s.cap {
		copy(s.incidents, s.incidents[1:])
		s.incidents = s.incidents[:s.cap-1]
	}
	s.incidents = append(s.incidents, inc)
}

// Incidents returns up to limit incidents, most recent first. A limit of
// 0 or less returns everything buffered.
func (s *MemorySink) Incidents(limit int) []model.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.incidents)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]model.Incident, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.incidents[i])
	}
	return out
}
