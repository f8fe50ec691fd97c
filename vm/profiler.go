package vm

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Profiler counts compiled method invocations across every Fiber of a
// Runtime. Counting is lock-free after a method's first invocation.

// MethodProfile holds profiling data for a single method.
type MethodProfile struct {
	Method          *CompiledMethod
	InvocationCount atomic.Uint64
	IsHot           atomic.Bool // set once the count crosses HotThreshold
}

// Profiler manages per-method profiles.
type Profiler struct {
	methodProfiles sync.Map // *CompiledMethod -> *MethodProfile

	// HotThreshold is the invocation count at which a method is marked hot.
	HotThreshold uint64

	// OnHot, when set, is called once per method as it becomes hot.
	OnHot func(m *CompiledMethod, profile *MethodProfile)

	hotMethodCount atomic.Uint64
}

// NewProfiler creates a profiler with the default threshold.
func NewProfiler() *Profiler {
	return &Profiler{HotThreshold: 100}
}

// RecordMethodInvocation increments the invocation count for a method.
// Returns true if this invocation caused the method to become hot.
func (p *Profiler) RecordMethodInvocation(method *CompiledMethod) bool {
	if method == nil {
		return false
	}
	v, ok := p.methodProfiles.Load(method)
	if !ok {
		v, _ = p.methodProfiles.LoadOrStore(method, &MethodProfile{Method: method})
	}
	profile := v.(*MethodProfile)

	count := profile.InvocationCount.Add(1)
	if count < p.HotThreshold || !profile.IsHot.CompareAndSwap(false, true) {
		return false
	}
	p.hotMethodCount.Add(1)
	if p.OnHot != nil {
		p.OnHot(method, profile)
	}
	return true
}

// Count returns how many times method has been invoked.
func (p *Profiler) Count(method *CompiledMethod) uint64 {
	if v, ok := p.methodProfiles.Load(method); ok {
		return v.(*MethodProfile).InvocationCount.Load()
	}
	return 0
}

// IsMethodHot reports whether method crossed the hot threshold.
func (p *Profiler) IsMethodHot(method *CompiledMethod) bool {
	if v, ok := p.methodProfiles.Load(method); ok {
		return v.(*MethodProfile).IsHot.Load()
	}
	return false
}

// ProfilerStats summarizes the profiler.
type ProfilerStats struct {
	MethodsProfiled  int
	HotMethods       uint64
	TotalInvocations uint64
}

// Stats returns a summary.
func (p *Profiler) Stats() ProfilerStats {
	var s ProfilerStats
	p.methodProfiles.Range(func(_, v any) bool {
		s.MethodsProfiled++
		s.TotalInvocations += v.(*MethodProfile).InvocationCount.Load()
		return true
	})
	s.HotMethods = p.hotMethodCount.Load()
	return s
}

// MethodCount pairs a method with its invocation count.
type MethodCount struct {
	Method *CompiledMethod
	Count  uint64
}

// Top returns the n most invoked methods, most invoked first.
func (p *Profiler) Top(n int) []MethodCount {
	var all []MethodCount
	p.methodProfiles.Range(func(k, v any) bool {
		all = append(all, MethodCount{Method: k.(*CompiledMethod), Count: v.(*MethodProfile).InvocationCount.Load()})
		return true
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].Method.id < all[j].Method.id
	})
	if n < len(all) {
		all = all[:n]
	}
	return all
}

// Reset clears all profiles.
func (p *Profiler) Reset() {
	p.methodProfiles.Range(func(k, _ any) bool {
		p.methodProfiles.Delete(k)
		return true
	})
	p.hotMethodCount.Store(0)
}
