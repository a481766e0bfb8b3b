package model

import "time"

// NodeHealth is a downstream node's most recent resource report
type NodeHealth struct {
	CPU        float64   `json:"cpu"`        // utilisation in [0,1]
	BufferPct  float64   `json:"buffer_pct"` // buffer fill in [0,1]
	ReportedAt time.Time `json:"reported_at"`
}
