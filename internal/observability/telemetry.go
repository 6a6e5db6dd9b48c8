package observability

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
)

// TelemetrySystem is the process-wide metric registry. It stays nil until
// InitTelemetry runs; health checks report degraded telemetry when nil.
var TelemetrySystem *Telemetry

// PrometheusExporter serves TelemetrySystem in Prometheus text exposition
// format. Nil until InitTelemetry runs.
var PrometheusExporter *Exporter

// Telemetry is a registry of named counters. Metric names are exported
// prefixed with the service name.
type Telemetry struct {
	service string

	mu       sync.RWMutex
	counters map[string]*Counter
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

// Add increments the counter.
func (c *Counter) Add(delta int64) {
	c.value.Add(delta)
}

// Value returns the current count.
func (c *Counter) Value() int64 {
	return c.value.Load()
}

// InitTelemetry creates the telemetry system and its exporter.
func InitTelemetry(service string) error {
	if service == "" {
		return fmt.Errorf("telemetry service name must not be empty")
	}
	t := &Telemetry{
		service:  service,
		counters: make(map[string]*Counter),
	}
	TelemetrySystem = t
	PrometheusExporter = &Exporter{telemetry: t}
	return nil
}

// Counter returns the counter registered under name, creating it on first
// use. help is recorded on creation and ignored afterwards.
func (t *Telemetry) Counter(name, help string) *Counter {
	t.mu.RLock()
	c, ok := t.counters[name]
	t.mu.RUnlock()
	if ok {
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.counters[name]; ok {
		return c
	}
	c = &Counter{name: name, help: help}
	t.counters[name] = c
	return c
}

// Count adds delta to the named counter on the global telemetry system.
// It is a no-op when telemetry is not initialized, so instrumented code
// paths need no nil checks.
func Count(name, help string, delta int64) {
	if TelemetrySystem == nil {
		return
	}
	TelemetrySystem.Counter(name, help).Add(delta)
}

// Exporter renders the telemetry registry in Prometheus text exposition
// format (version 0.0.4).
type Exporter struct {
	telemetry *Telemetry
}

// Handler returns the /metrics endpoint handler.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := e.telemetry

		t.mu.RLock()
		names := make([]string, 0, len(t.counters))
		for name := range t.counters {
			names = append(names, name)
		}
		sort.Strings(names)

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		for _, name := range names {
			c := t.counters[name]
			full := t.service + "_" + name
			if c.help != "" {
				fmt.Fprintf(w, "# HELP %s %s\n", full, c.help)
			}
			fmt.Fprintf(w, "# TYPE %s counter\n", full)
			fmt.Fprintf(w, "%s %d\n", full, c.Value())
		}
		t.mu.RUnlock()
	})
}
