package resilience

import (
	"sort"
	"sync"

	"paygate/pkg/metrics"
)

// Key identifies one circuit. An empty Operation in an override applies to
// every operation of the biller.
type Key struct {
	Biller    string
	Operation string
}

// String renders the circuit name, e.g. "rocketgate.charge-new-card".
func (k Key) String() string {
	return k.Biller + "." + k.Operation
}

// CircuitStatus is a point-in-time view of one circuit.
type CircuitStatus struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Requests uint32 `json:"requests"`
	Failures uint32 `json:"failures"`
}

// Registry lazily creates one Command per biller+operation so each pair
// keeps its own counters.
type Registry struct {
	mu        sync.RWMutex
	commands  map[Key]*Command
	defaults  Config
	overrides map[Key]Config
	metrics   metrics.MetricsCollector
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithOverride merges cfg over the defaults for key. Use an empty Operation
// to target a whole biller.
func WithOverride(key Key, cfg Config) RegistryOption {
	return func(r *Registry) {
		r.overrides[key] = cfg
	}
}

// WithMetrics sets the collector handed to every command.
func WithMetrics(mc metrics.MetricsCollector) RegistryOption {
	return func(r *Registry) {
		if mc != nil {
			r.metrics = mc
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(defaults Config, opts ...RegistryOption) *Registry {
	r := &Registry{
		commands:  make(map[Key]*Command),
		defaults:  defaults,
		overrides: make(map[Key]Config),
		metrics:   metrics.NoOpCollector{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Command returns the command for key, creating it on first use.
func (r *Registry) Command(key Key) *Command {
	r.mu.RLock()
	cmd, ok := r.commands[key]
	r.mu.RUnlock()
	if ok {
		return cmd
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cmd, ok := r.commands[key]; ok {
		return cmd
	}
	cmd = NewCommandWithMetrics(key.String(), r.configFor(key), r.metrics)
	r.commands[key] = cmd
	return cmd
}

// configFor resolves defaults, then the biller override, then the
// operation override.
func (r *Registry) configFor(key Key) Config {
	cfg := r.defaults
	if o, ok := r.overrides[Key{Biller: key.Biller}]; ok {
		cfg = cfg.Merge(o)
	}
	if o, ok := r.overrides[key]; ok {
		cfg = cfg.Merge(o)
	}
	return cfg
}

// States returns every known circuit sorted by name.
func (r *Registry) States() []CircuitStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CircuitStatus, 0, len(r.commands))
	for _, cmd := range r.commands {
		counts := cmd.Counts()
		out = append(out, CircuitStatus{
			Name:     cmd.Name(),
			State:    cmd.State().String(),
			Requests: counts.Requests,
			Failures: counts.TotalFailures,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
