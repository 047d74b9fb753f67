// Package health provides service health evaluation and status reporting.
package health

import "time"

// Status represents the overall health state of the healing service.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// Report contains the full health report served to operators.
type Report struct {
	Status       Status            `json:"status"`
	Requests     int               `json:"requests"`
	SuccessRate  float64           `json:"success_rate"`
	CacheHitRate float64           `json:"cache_hit_rate"`
	CacheEntries int               `json:"cache_entries"`
	Circuits     map[string]string `json:"circuits"`
	CheckedAt    time.Time         `json:"checked_at"`
}
