package services

import (
	"sync"
	"sync/atomic"
)

// Metrics counts hub and ingest activity for /api/health.
type Metrics struct {
	activeClients atomic.Int32
	violations    atomic.Int64

	wsConnections atomic.Int64
	wsMessages    atomic.Int64
	wsBroadcasts  atomic.Int64
	wsErrors      atomic.Int64
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

func NewMetrics() *Metrics {
	return &Metrics{}
}

func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = NewMetrics()
	})
	return metricsInstance
}

func (m *Metrics) IncrementViolations() {
	m.violations.Add(1)
}

func (m *Metrics) GetTotalViolations() int64 {
	return m.violations.Load()
}

func (m *Metrics) SetActiveClients(count int) {
	m.activeClients.Store(int32(count))
}

func (m *Metrics) GetActiveClients() int {
	return int(m.activeClients.Load())
}

func (m *Metrics) IncrementConnections() {
	m.wsConnections.Add(1)
}

func (m *Metrics) DecrementConnections() {
	m.wsConnections.Add(-1)
}

func (m *Metrics) IncrementMessages() {
	m.wsMessages.Add(1)
}

func (m *Metrics) IncrementBroadcasts() {
	m.wsBroadcasts.Add(1)
}

// GetBroadcasts returns total broadcast fan-outs since start.
func (m *Metrics) GetBroadcasts() int64 {
	return m.wsBroadcasts.Load()
}

func (m *Metrics) IncrementErrors() {
	m.wsErrors.Add(1)
}

func (m *Metrics) GetErrors() int64 {
	return m.wsErrors.Load()
}
