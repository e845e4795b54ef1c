package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for the engine's moving parts.
type Metrics struct {
	mu              sync.Mutex
	requestCount    map[string]int64
	errorCount      map[string]int64
	sweepCount      int64
	violationCount  map[string]int64
	escalationCount map[string]int64
	dispatchCount   map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]int64),
		errorCount:      make(map[string]int64),
		violationCount:  make(map[string]int64),
		escalationCount: make(map[string]int64),
		dispatchCount:   make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordSweep counts completed detector sweeps.
func (m *Metrics) RecordSweep() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepCount++
}

// RecordViolation counts detected violations per kind and severity.
func (m *Metrics) RecordViolation(kind, severity string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violationCount[kind+"|"+severity]++
}

// RecordEscalation counts escalations per reason.
func (m *Metrics) RecordEscalation(reason string, automatic bool) {
	if m == nil {
		return
	}
	key := reason
	if automatic {
		key += "|auto"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalationCount[key]++
}

// RecordDispatch counts delivery outcomes per channel and terminal status.
func (m *Metrics) RecordDispatch(channel, status string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatchCount[channel+"|"+status]++
}
