// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ChainHealth contains health metrics for a specific chain.
type ChainHealth struct {
	ChainID   string       `json:"chain_id"`
	Status    SystemStatus `json:"status"`
	Head      uint64       `json:"head"`
	LatencyMS int64        `json:"latency_ms"`
	Error     string       `json:"error,omitempty"`
}

// ComponentHealth reports one dependency such as the store or NATS.
type ComponentHealth struct {
	Name   string       `json:"name"`
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus     SystemStatus               `json:"system_status"`
	Chains           map[string]ChainHealth     `json:"chains"`
	Components       map[string]ComponentHealth `json:"components"`
	ActiveExecutions int                        `json:"active_executions"`
}

// Worst returns the more severe of two statuses.
func Worst(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
