package telemetry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netwatchlab/failover-gateway/internal/model"
)

func incident(id string) model.Incident {
	return model.Incident{
		ID:        id,
		Kind:      model.IncidentFailover,
		Severity:  model.SeverityMedium,
		Timestamp: time.Unix(1700000000, 0),
	}
}

func TestMemorySink_NewestFirst(t *testing.T) {
	s := NewMemorySink(10)

	s.RecordIncident(incident("a"))
	s.RecordIncident(incident("b"))
	s.RecordIncident(incident("c"))

	got := s.Incidents(0)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[2].ID)
}

func TestMemorySink_Limit(t *testing.T) {
	s := NewMemorySink(10)
	for i := 0; i < 5; i++ {
		s.RecordIncident(incident(fmt.Sprintf("i%d", i)))
	}

	got := s.Incidents(2)
	require.Len(t, got, 2)
	assert.Equal(t, "i4", got[0].ID)
	assert.Equal(t, "i3", got[1].ID)
}

func TestMemorySink_Bounded(t *testing.T) {
	s := NewMemorySink(3)
	for i := 0; i < 10; i++ {
		s.RecordIncident(incident(fmt.Sprintf("i%d", i)))
	}

	got := s.Incidents(0)
	require.Len(t, got, 3)
	assert.Equal(t, "i9", got[0].ID)
	assert.Equal(t, "i7", got[2].ID)
}
