package provider

import (
	"strings"
	"sync"
	"time"
)

// ProviderStatus represents the health state of a provider.
type ProviderStatus int

const (
	StatusHealthy   ProviderStatus = iota // Provider is working normally
	StatusDegraded                        // Provider is slow but working
	StatusThrottled                       // Provider is rate limiting
	StatusBlocked                         // Provider has blocked this client
)

func (s ProviderStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// MonitorStats holds monitoring statistics for a provider.
type MonitorStats struct {
	Status           ProviderStatus `json:"status"`
	AverageLatency   time.Duration  `json:"average_latency"`
	ThrottleCount429 int            `json:"throttle_count_429"`
	ThrottleCount403 int            `json:"throttle_count_403"`
	Requests         int            `json:"requests"`
}

// ProviderMonitor tracks provider latency and throttling. Burn traffic is
// low volume, so there is no quota accounting; a provider is taken out of
// rotation only while it is actively throttling or blocking us.
type ProviderMonitor struct {
	mu sync.RWMutex

	// Response time tracking, ring of the last maxLatencyWindow samples
	latencies        []time.Duration
	maxLatencyWindow int
	next             int
	requests         int

	// Throttle tracking
	status429Count   int
	status403Count   int
	throttlePatterns []string
	throttledUntil   time.Time
	blockedUntil     time.Time

	// Thresholds
	slowResponseThreshold time.Duration
	throttleThreshold     int

	now func() time.Time
}

// NewProviderMonitor creates a new monitor with default settings.
func NewProviderMonitor() *ProviderMonitor {
	return &ProviderMonitor{
		latencies:        make([]time.Duration, 0, 100),
		maxLatencyWindow: 100,
		throttlePatterns: []string{
			"rate limit exceeded",
			"too many requests",
			"daily request count exceeded",
			"project rate limit",
			"monthly quota exceeded",
		},
		slowResponseThreshold: 3 * time.Second,
		throttleThreshold:     3,
		now:                   time.Now,
	}
}

// RecordRequest records a successful request with its latency.
func (pm *ProviderMonitor) RecordRequest(latency time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.requests++
	if len(pm.latencies) < pm.maxLatencyWindow {
		pm.latencies = append(pm.latencies, latency)
		return
	}
	pm.latencies[pm.next] = latency
	pm.next = (pm.next + 1) % pm.maxLatencyWindow
}

// RecordThrottle records a rate limiting or blocking response.
func (pm *ProviderMonitor) RecordThrottle(statusCode int, retryAfter string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	now := pm.now()
	switch statusCode {
	case 429:
		pm.status429Count++
		wait := time.Minute
		if d, err := time.ParseDuration(strings.TrimSpace(retryAfter) + "s"); err == nil && d > 0 {
			wait = d
		}
		if pm.status429Count >= pm.throttleThreshold {
			pm.throttledUntil = now.Add(wait)
		}
	case 403:
		pm.status403Count++
		pm.blockedUntil = now.Add(10 * time.Minute)
	}
}

// DetectThrottlePattern checks if a message contains throttle patterns.
func (pm *ProviderMonitor) DetectThrottlePattern(message string) bool {
	lowerMsg := strings.ToLower(message)
	for _, pattern := range pm.throttlePatterns {
		if strings.Contains(lowerMsg, pattern) {
			return true
		}
	}
	return false
}

// CheckProviderStatus returns the current status of the provider.
func (pm *ProviderMonitor) CheckProviderStatus() ProviderStatus {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.statusLocked()
}

func (pm *ProviderMonitor) statusLocked() ProviderStatus {
	now := pm.now()
	if now.Before(pm.blockedUntil) {
		return StatusBlocked
	}
	if now.Before(pm.throttledUntil) {
		return StatusThrottled
	}
	if len(pm.latencies) > 10 && pm.averageLocked() > pm.slowResponseThreshold {
		return StatusDegraded
	}
	return StatusHealthy
}

func (pm *ProviderMonitor) averageLocked() time.Duration {
	if len(pm.latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, lat := range pm.latencies {
		total += lat
	}
	return total / time.Duration(len(pm.latencies))
}

// GetRetryAfter returns remaining time before retry is allowed.
func (pm *ProviderMonitor) GetRetryAfter() time.Duration {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	until := pm.throttledUntil
	if pm.blockedUntil.After(until) {
		until = pm.blockedUntil
	}
	if remaining := until.Sub(pm.now()); remaining > 0 {
		return remaining
	}
	return 0
}

// GetStats returns current monitoring statistics.
func (pm *ProviderMonitor) GetStats() MonitorStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return MonitorStats{
		Status:           pm.statusLocked(),
		AverageLatency:   pm.averageLocked(),
		ThrottleCount429: pm.status429Count,
		ThrottleCount403: pm.status403Count,
		Requests:         pm.requests,
	}
}
