package vm

import (
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("loom.vm")

// ---------------------------------------------------------------------------
// Runtime: shared state for a family of Fibers
// ---------------------------------------------------------------------------

// Options configures a Runtime. Zero numeric fields take the defaults from
// DefaultOptions, so Options{} is a cached, unprofiled runtime.
type Options struct {
	MaxFrames     int // frame-pointer stack capacity per Fiber
	InitialLocals int // initial size of a Fiber's locals array
	MaxLocals     int // hard bound on a Fiber's locals array

	DisableCache bool // resolve every host call from scratch
	CacheSize    int  // call cache slots
	MaxProbe     int  // linear probe distance before evicting

	Profile bool // count method invocations
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		MaxFrames:     1024,
		InitialLocals: 4096,
		MaxLocals:     1 << 20,
		CacheSize:     1024,
		MaxProbe:      8,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxFrames <= 0 {
		o.MaxFrames = d.MaxFrames
	}
	if o.InitialLocals <= 0 {
		o.InitialLocals = d.InitialLocals
	}
	if o.MaxLocals <= 0 {
		o.MaxLocals = d.MaxLocals
	}
	if o.MaxLocals < o.InitialLocals {
		o.MaxLocals = o.InitialLocals
	}
	if o.CacheSize <= 0 {
		o.CacheSize = d.CacheSize
	}
	if o.MaxProbe < 0 {
		o.MaxProbe = d.MaxProbe
	}
	return o
}

// Runtime owns what Fibers share: the host type registry, the call cache,
// the class table and the optional profiler. A Runtime is safe for
// concurrent use by any number of Fibers.
type Runtime struct {
	opts     Options
	hosts    *HostTypes
	classes  *ClassTable
	cache    *CallCache // nil when caching is disabled
	profiler *Profiler  // nil unless profiling is enabled
}

// NewRuntime creates a runtime with the primitive host types registered.
func NewRuntime(opts Options) *Runtime {
	opts = opts.withDefaults()
	rt := &Runtime{
		opts:    opts,
		hosts:   NewHostTypes(),
		classes: NewClassTable(),
	}
	if !opts.DisableCache {
		rt.cache = NewCallCache(opts.CacheSize, opts.MaxProbe)
	}
	if opts.Profile {
		rt.profiler = NewProfiler()
	}

	rt.registerPrimitives()

	log.Debugf("runtime created: max-frames=%d max-locals=%d cache=%v size=%d probe=%d",
		opts.MaxFrames, opts.MaxLocals, !opts.DisableCache, opts.CacheSize, opts.MaxProbe)
	return rt
}

func (rt *Runtime) registerPrimitives() {
	rt.registerObjectPrimitives()
	rt.registerBooleanPrimitives()
	rt.registerIntegerPrimitives()
	rt.registerFloatPrimitives()
	rt.registerStringPrimitives()
	rt.registerListPrimitives()
	rt.registerDictionaryPrimitives()
}

// Options returns the effective options.
func (rt *Runtime) Options() Options {
	return rt.opts
}

// HostTypes returns the host type registry.
func (rt *Runtime) HostTypes() *HostTypes {
	return rt.hosts
}

// Classes returns the class table.
func (rt *Runtime) Classes() *ClassTable {
	return rt.classes
}

// Profiler returns the profiler, or nil when profiling is disabled.
func (rt *Runtime) Profiler() *Profiler {
	return rt.profiler
}

// CacheStats returns call cache statistics. The zero value is returned
// when caching is disabled.
func (rt *Runtime) CacheStats() CacheStats {
	if rt.cache == nil {
		return CacheStats{}
	}
	return rt.cache.Stats()
}

// FlushCallCache drops every cached call-site resolution. Call it after
// defining host methods while Fibers may already have run.
func (rt *Runtime) FlushCallCache() {
	if rt.cache != nil {
		rt.cache.Flush()
		log.Debug("call cache flushed")
	}
}
