package memory

import (
	"sync"
	"time"

	"paygate/pkg/metrics"
)

// MemoryCollector implements MetricsCollector for in-memory testing.
type MemoryCollector struct {
	mu sync.RWMutex

	circuits map[string]*CircuitMetrics
	sinks    map[string]*SinkMetrics

	// keyed by "biller/true" or "biller/false"
	threeDSRetries map[string]int64
	// keyed by "biller/kind/status"
	transactions map[string]int64
	// keyed by "backend/operation"
	repoOps    map[string]int64
	repoErrors map[string]int64
}

// CircuitMetrics holds metrics for one biller+operation circuit.
type CircuitMetrics struct {
	Calls           int64
	CallsByResult   map[string]int64
	Fallbacks       int64
	FallbacksByType map[string]int64

	CircuitState metrics.CircuitState
	CircuitOpens int64

	Latencies []time.Duration
}

// SinkMetrics holds metrics for one async sink.
type SinkMetrics struct {
	QueueDepth    int
	DroppedEvents int64
	Writes        int64
	WriteErrors   int64
	Latencies     []time.Duration
}

// NewMemoryCollector creates a new in-memory metrics collector.
func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{
		circuits:       make(map[string]*CircuitMetrics),
		sinks:          make(map[string]*SinkMetrics),
		threeDSRetries: make(map[string]int64),
		transactions:   make(map[string]int64),
		repoOps:        make(map[string]int64),
		repoErrors:     make(map[string]int64),
	}
}

// circuit must be called with mu held.
func (mc *MemoryCollector) circuit(name string) *CircuitMetrics {
	cm, ok := mc.circuits[name]
	if !ok {
		cm = &CircuitMetrics{
			CallsByResult:   make(map[string]int64),
			FallbacksByType: make(map[string]int64),
		}
		mc.circuits[name] = cm
	}
	return cm
}

// sink must be called with mu held.
func (mc *MemoryCollector) sink(name string) *SinkMetrics {
	sm, ok := mc.sinks[name]
	if !ok {
		sm = &SinkMetrics{}
		mc.sinks[name] = sm
	}
	return sm
}

// RecordBillerCall records one wrapped biller call.
func (mc *MemoryCollector) RecordBillerCall(circuit string, result string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	cm := mc.circuit(circuit)
	cm.Calls++
	cm.CallsByResult[result]++
	cm.Latencies = append(cm.Latencies, duration)
}

// RecordFallback records a call replaced by the aborted fallback.
func (mc *MemoryCollector) RecordFallback(circuit string, errorType string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	cm := mc.circuit(circuit)
	cm.Fallbacks++
	cm.FallbacksByType[errorType]++
}

// RecordCircuitState records the current circuit breaker state.
func (mc *MemoryCollector) RecordCircuitState(circuit string, state metrics.CircuitState) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	cm := mc.circuit(circuit)
	oldState := cm.CircuitState
	cm.CircuitState = state

	// Count transitions to open
	if oldState != metrics.CircuitOpen && state == metrics.CircuitOpen {
		cm.CircuitOpens++
	}
}

// RecordThreeDSRetry records a protocol retry.
func (mc *MemoryCollector) RecordThreeDSRetry(biller string, withThreeDS bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := biller + "/false"
	if withThreeDS {
		key = biller + "/true"
	}
	mc.threeDSRetries[key]++
}

// RecordTransaction records a processed transaction.
func (mc *MemoryCollector) RecordTransaction(biller string, kind string, status string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.transactions[biller+"/"+kind+"/"+status]++
}

// RecordRepositoryOp records a repository operation.
func (mc *MemoryCollector) RecordRepositoryOp(backend string, operation string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := backend + "/" + operation
	mc.repoOps[key]++
	if !success {
		mc.repoErrors[key]++
	}
}

// RecordQueueDepth records the current async sink queue depth.
func (mc *MemoryCollector) RecordQueueDepth(sink string, depth int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.sink(sink).QueueDepth = depth
}

// RecordEventDropped records a dropped observability event.
func (mc *MemoryCollector) RecordEventDropped(sink string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.sink(sink).DroppedEvents++
}

// RecordSinkWrite records an observability writer call.
func (mc *MemoryCollector) RecordSinkWrite(sink string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	sm := mc.sink(sink)
	sm.Writes++
	if !success {
		sm.WriteErrors++
	}
	sm.Latencies = append(sm.Latencies, duration)
}

// GetCircuitMetrics returns a copy of the metrics for one circuit, or nil.
func (mc *MemoryCollector) GetCircuitMetrics(circuit string) *CircuitMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	cm, ok := mc.circuits[circuit]
	if !ok {
		return nil
	}
	out := *cm
	out.CallsByResult = copyCounts(cm.CallsByResult)
	out.FallbacksByType = copyCounts(cm.FallbacksByType)
	out.Latencies = append([]time.Duration(nil), cm.Latencies...)
	return &out
}

// GetSinkMetrics returns a copy of the metrics for one sink, or nil.
func (mc *MemoryCollector) GetSinkMetrics(sink string) *SinkMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	sm, ok := mc.sinks[sink]
	if !ok {
		return nil
	}
	out := *sm
	out.Latencies = append([]time.Duration(nil), sm.Latencies...)
	return &out
}

// ThreeDSRetries returns how many retries were recorded for a biller in one
// direction.
func (mc *MemoryCollector) ThreeDSRetries(biller string, withThreeDS bool) int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if withThreeDS {
		return mc.threeDSRetries[biller+"/true"]
	}
	return mc.threeDSRetries[biller+"/false"]
}

// Transactions returns the count for one biller, kind and status.
func (mc *MemoryCollector) Transactions(biller, kind, status string) int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return mc.transactions[biller+"/"+kind+"/"+status]
}

// RepositoryOps returns the operation and error counts for one backend operation.
func (mc *MemoryCollector) RepositoryOps(backend, operation string) (ops, errs int64) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	key := backend + "/" + operation
	return mc.repoOps[key], mc.repoErrors[key]
}

// Reset clears all collected metrics.
func (mc *MemoryCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.circuits = make(map[string]*CircuitMetrics)
	mc.sinks = make(map[string]*SinkMetrics)
	mc.threeDSRetries = make(map[string]int64)
	mc.transactions = make(map[string]int64)
	mc.repoOps = make(map[string]int64)
	mc.repoErrors = make(map[string]int64)
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
