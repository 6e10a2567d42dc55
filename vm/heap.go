package vm

import (
	"time"
)

// ---------------------------------------------------------------------------
// Heap: arena of objects plus a mark-and-sweep collector
// ---------------------------------------------------------------------------

// slot is one arena cell. gen is bumped every time the slot is reused so
// stale references can be detected.
type slot struct {
	obj *Object
	gen uint32
}

// HeapStats holds collector statistics.
type HeapStats struct {
	Live         int
	Allocated    uint64 // total allocations since creation
	Freed        uint64 // total objects reclaimed
	Collections  uint64
	Deferred     uint64 // automatic collections postponed by the scope lock
	Pinned       int
	Threshold    int
	LastDuration time.Duration
}

// Heap owns every object of a VM. Objects live in a generational slot map
// and are addressed by Ref values; the allocation list records which slots
// are occupied.
type Heap struct {
	slots []slot
	free  []uint32
	live  []uint32 // allocation list

	threshold    int
	minThreshold int
	growth       float64

	lockDepth int
	pins      map[Value]int // keep-alive table

	stats HeapStats
}

func newHeap(cfg Config) *Heap {
	return &Heap{
		threshold:    cfg.GCThreshold,
		minThreshold: cfg.GCThreshold,
		growth:       cfg.GCGrowthFactor,
		pins:         make(map[Value]int),
	}
}

// alloc stores obj in a free slot and returns a reference to it. alloc never
// collects; collection only happens at dispatch safe points.
func (h *Heap) alloc(obj *Object) Value {
	var idx uint32
	if n := len(h.free); n > 0 {
		idx = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		idx = uint32(len(h.slots))
		h.slots = append(h.slots, slot{})
	}
	s := &h.slots[idx]
	s.gen++
	if s.gen > maxGen {
		s.gen = 1
	}
	s.obj = obj
	h.live = append(h.live, idx)
	h.stats.Allocated++
	return FromRef(Ref{Index: idx, Gen: s.gen})
}

// get resolves v. It returns false for immediates.
func (h *Heap) get(v Value) (*Object, bool) {
	r, ok := v.AsRef()
	if !ok {
		return nil, false
	}
	if int(r.Index) >= len(h.slots) {
		panic(&InvariantViolation{Reason: "heap reference out of range"})
	}
	s := h.slots[r.Index]
	if s.obj == nil || s.gen != r.Gen {
		panic(&InvariantViolation{Reason: "dangling heap reference " + v.String()})
	}
	return s.obj, true
}

// valid reports whether v is a live heap reference.
func (h *Heap) valid(v Value) bool {
	r, ok := v.AsRef()
	if !ok || int(r.Index) >= len(h.slots) {
		return false
	}
	s := h.slots[r.Index]
	return s.obj != nil && s.gen == r.Gen
}

// Len returns the number of live objects.
func (h *Heap) Len() int { return len(h.live) }

func (h *Heap) shouldCollect() bool { return len(h.live) >= h.threshold }

// ---------------------------------------------------------------------------
// Scope lock
// ---------------------------------------------------------------------------

// ScopeGuard is returned by Heap.Lock. Release it on every exit path,
// normally with defer:
//
//	defer vm.Heap().Lock().Release()
type ScopeGuard struct {
	h *Heap
}

// Lock suppresses automatic collection until the returned guard is
// released. Locks nest.
func (h *Heap) Lock() ScopeGuard {
	h.lockDepth++
	return ScopeGuard{h: h}
}

// Release ends the locked window.
func (g ScopeGuard) Release() {
	if g.h.lockDepth <= 0 {
		panic(&InvariantViolation{Reason: "scope lock released more times than taken"})
	}
	g.h.lockDepth--
}

// Locked reports whether a scope lock is held.
func (h *Heap) Locked() bool { return h.lockDepth > 0 }

// ---------------------------------------------------------------------------
// Keep-alive table
// ---------------------------------------------------------------------------

// Handle is an external reference created by VM.Pin.
type Handle struct {
	v Value
}

// Value returns the pinned value.
func (h Handle) Value() Value { return h.v }

func (h *Heap) pin(v Value) Handle {
	if v.IsRef() {
		h.pins[v]++
	}
	return Handle{v: v}
}

// unpin drops one external reference. Entries are removed lazily by the
// next collection once their count reaches zero.
func (h *Heap) unpin(hd Handle) {
	if n := h.pins[hd.v]; n > 0 {
		h.pins[hd.v] = n - 1
	}
}

func (h *Heap) pinCount(v Value) int { return h.pins[v] }

// ---------------------------------------------------------------------------
// Mark and sweep
// ---------------------------------------------------------------------------

// collect runs one full cycle. roots must call mark for every root value;
// finalize is called once for each object about to be freed.
func (h *Heap) collect(roots func(mark func(Value)), finalize func(*Object)) int {
	if h.lockDepth > 0 {
		panic(&InvariantViolation{Reason: "collection triggered while the scope lock is held"})
	}
	start := time.Now()

	var work []*Object
	mark := func(v Value) {
		obj, ok := h.get(v)
		if !ok || obj.marked {
			return
		}
		obj.marked = true
		work = append(work, obj)
	}

	for v, n := range h.pins {
		if n <= 0 {
			delete(h.pins, v)
			continue
		}
		mark(v)
	}
	roots(mark)

	for len(work) > 0 {
		obj := work[len(work)-1]
		work = work[:len(work)-1]
		if obj.Attrs != nil {
			obj.Attrs.trace(mark)
		}
		if t, ok := obj.Payload.(tracer); ok {
			t.trace(mark)
		}
	}

	kept := make([]uint32, 0, len(h.live))
	var dead []uint32
	for _, idx := range h.live {
		obj := h.slots[idx].obj
		if obj.marked {
			obj.marked = false
			kept = append(kept, idx)
			continue
		}
		dead = append(dead, idx)
	}
	h.live = kept

	// Finalizers see every dead object intact; none is reused until all
	// have run.
	h.lockDepth++
	for _, idx := range dead {
		finalize(h.slots[idx].obj)
	}
	h.lockDepth--
	for _, idx := range dead {
		h.slots[idx].obj = nil
		h.free = append(h.free, idx)
	}

	next := int(float64(len(h.live)) * h.growth)
	if next < h.minThreshold {
		next = h.minThreshold
	}
	h.threshold = next

	h.stats.Collections++
	h.stats.Freed += uint64(len(dead))
	h.stats.LastDuration = time.Since(start)
	return len(dead)
}

// Stats returns a snapshot of the collector statistics.
func (h *Heap) Stats() HeapStats {
	s := h.stats
	s.Live = len(h.live)
	s.Threshold = h.threshold
	for _, n := range h.pins {
		if n > 0 {
			s.Pinned++
		}
	}
	return s
}

// ---------------------------------------------------------------------------
// VM integration
// ---------------------------------------------------------------------------

// markRoots marks every root of the VM: live frames, modules, the type
// registry, materialized code constants.
func (vm *VM) markRoots(mark func(Value)) {
	for _, f := range vm.frames {
		f.trace(mark)
	}
	for _, m := range vm.modules {
		mark(m)
	}
	mark(vm.builtins)
	vm.types.trace(mark)
	for _, cs := range vm.codes {
		for _, v := range cs.consts {
			mark(v)
		}
	}
	for _, v := range vm.extraRoots {
		mark(v)
	}
	if vm.heap.valid(vm.lastError) {
		mark(vm.lastError)
	}
}

func (vm *VM) finalize(obj *Object) {
	for c := obj.Type; c != NoType; c = vm.types.Get(c).Base {
		fin := vm.types.Get(c).Finalizer
		if fin == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					if iv, ok := r.(*InvariantViolation); ok {
						panic(iv)
					}
					vm.log.Warning("finalizer panicked", "vm", vm.id.String(), "type", vm.types.Get(obj.Type).Name, "panic", r)
				}
			}()
			fin(vm, obj)
		}()
		return
	}
}

// collect runs a full cycle and logs it.
func (vm *VM) collect(reason string) int {
	before := vm.heap.Len()
	freed := vm.heap.collect(vm.markRoots, vm.finalize)
	vm.log.Debug("collection",
		"vm", vm.id.String(),
		"reason", reason,
		"before", before,
		"freed", freed,
		"after", vm.heap.Len(),
		"threshold", vm.heap.threshold,
		"duration", vm.heap.stats.LastDuration)
	return freed
}

// safePoint collects if the allocation threshold has been crossed. Called
// by the dispatch loop before instructions that may allocate; postponed
// while a scope lock is held.
func (vm *VM) safePoint() {
	if !vm.heap.shouldCollect() {
		return
	}
	if vm.heap.Locked() {
		vm.heap.stats.Deferred++
		vm.log.Debug("collection deferred", "vm", vm.id.String(), "live", vm.heap.Len())
		return
	}
	vm.collect("threshold")
}
