package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/burnrelay/internal/core/clock"
	"github.com/vietddude/burnrelay/internal/core/domain"
)

const (
	checkInterval   = 10 * time.Second
	slowHeadLatency = 2 * time.Second
)

// HeadFetcher reads the latest block or slot of a chain.
type HeadFetcher interface {
	LatestHead(ctx context.Context) (uint64, error)
}

// Check pings one dependency. Critical dependencies take the whole
// service down when they fail, the rest only degrade it.
type Check struct {
	Name     string
	Critical bool
	Ping     func(ctx context.Context) error
}

// ExecutionCounter reports how many plans this process is driving.
type ExecutionCounter interface {
	Active() int
}

// Monitor aggregates health status from chains and infrastructure.
type Monitor struct {
	chains     map[domain.ChainID]HeadFetcher
	checks     []Check
	executions ExecutionCounter
	clock      clock.Clock
	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. executions may be nil.
func NewMonitor(chains map[domain.ChainID]HeadFetcher, checks []Check, executions ExecutionCounter, clk clock.Clock) *Monitor {
	if clk == nil {
		clk = clock.New()
	}
	return &Monitor{
		chains:     chains,
		checks:     checks,
		executions: executions,
		clock:      clk,
	}
}

// CheckHealth pings every chain and dependency. Results are cached for a
// few seconds so health polling does not hammer the RPC providers.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if m.lastReport != nil && now.Sub(m.lastCheck) < checkInterval {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Chains:       make(map[string]ChainHealth, len(m.chains)),
		Components:   make(map[string]ComponentHealth, len(m.checks)),
	}

	for id, fetcher := range m.chains {
		h := ChainHealth{ChainID: string(id), Status: StatusHealthy}
		start := time.Now()
		head, err := fetcher.LatestHead(ctx)
		h.LatencyMS = time.Since(start).Milliseconds()
		switch {
		case err != nil:
			h.Status = StatusDegraded
			h.Error = err.Error()
		case time.Duration(h.LatencyMS)*time.Millisecond > slowHeadLatency:
			h.Status = StatusDegraded
			h.Head = head
		default:
			h.Head = head
		}
		report.Chains[h.ChainID] = h
		report.SystemStatus = Worst(report.SystemStatus, h.Status)
	}

	for _, c := range m.checks {
		h := ComponentHealth{Name: c.Name, Status: StatusHealthy}
		if err := c.Ping(ctx); err != nil {
			h.Error = err.Error()
			h.Status = StatusDegraded
			if c.Critical {
				h.Status = StatusCritical
			}
		}
		report.Components[c.Name] = h
		report.SystemStatus = Worst(report.SystemStatus, h.Status)
	}

	if m.executions != nil {
		report.ActiveExecutions = m.executions.Active()
	}

	m.lastCheck = now
	m.lastReport = &report
	return report
}
