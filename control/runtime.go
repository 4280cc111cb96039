// File: control/runtime.go
// Author: momentics <momentics@gmail.com>
//
// Runtime ties a running IoMultiplexer to the ambient config/metrics/debug
// registries, for live inspection by an embedding application.

package control

import "github.com/2217936322/llfio/mux"

// Runtime exposes a multiplexer's live state through the same
// config/metrics/debug registries the rest of the library uses.
type Runtime struct {
	mux     mux.IoMultiplexer
	metrics *MetricsRegistry
	debug   *DebugProbes
	config  *ConfigStore
}

// Attach wires m into a fresh Runtime, registering a "pending_io" debug
// probe and refreshing the "total_pending_io" metric on demand.
func Attach(m mux.IoMultiplexer) *Runtime {
	r := &Runtime{
		mux:     m,
		metrics: NewMetricsRegistry(),
		debug:   NewDebugProbes(),
		config:  NewConfigStore(),
	}
	r.debug.RegisterProbe("pending_io", func() any {
		return m.PendingCount()
	})
	RegisterPlatformProbes(r.debug)
	r.config.OnReload(TriggerHotReload)
	return r
}

// Stats returns a point-in-time snapshot of the multiplexer's counters.
func (r *Runtime) Stats() map[string]any {
	r.metrics.Set("total_pending_io", r.mux.PendingCount())
	return r.metrics.GetSnapshot()
}

// RegisterDebugProbe exposes an additional named probe alongside the
// built-in pending_io one.
func (r *Runtime) RegisterDebugProbe(name string, fn func() any) {
	r.debug.RegisterProbe(name, fn)
}

// DumpState returns every registered probe's current output.
func (r *Runtime) DumpState() map[string]any {
	return r.debug.DumpState()
}

// Config exposes the runtime's own hot-reloadable configuration store.
func (r *Runtime) Config() *ConfigStore { return r.config }
