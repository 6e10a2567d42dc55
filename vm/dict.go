package vm

import (
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Dict: insertion-ordered hash map keyed by value
// ---------------------------------------------------------------------------

// dictKey is the hashable identity of a key. Numbers that compare equal
// share a key (1, 1.0 and True); strings and tuples hash by content; other
// objects by identity. Lookup matches keys that are identical or equal.
// NaN is an immediate with a single canonical encoding, so every NaN is the
// same value and all of them find the same entry even though nan != nan.
type dictKey struct {
	kind uint8
	n    uint64
	s    string
}

const (
	keyInt uint8 = iota + 1
	keyFloat
	keySingleton
	keyStr
	keyTuple
	keyRef
)

type dictEntry struct {
	key   Value
	value Value
	live  bool
}

// Dict is the payload of dict objects.
type Dict struct {
	index   map[dictKey]int
	entries []dictEntry
	dead    int
}

func newDict() *Dict {
	return &Dict{index: make(map[dictKey]int)}
}

// Len returns the number of live entries.
func (d *Dict) Len() int { return len(d.entries) - d.dead }

func (d *Dict) trace(mark func(Value)) {
	for _, e := range d.entries {
		if e.live {
			mark(e.key)
			mark(e.value)
		}
	}
}

// keyOf computes the hash identity of v, raising TypeError for unhashable
// values.
func (vm *VM) keyOf(v Value) dictKey {
	switch {
	case v.IsInt():
		return dictKey{kind: keyInt, n: uint64(v.Int())}
	case v == True:
		return dictKey{kind: keyInt, n: 1}
	case v == False:
		return dictKey{kind: keyInt, n: 0}
	case v.IsFloat():
		f := v.Float()
		if f == math.Trunc(f) && f >= float64(MinInt) && f <= float64(MaxInt) {
			return dictKey{kind: keyInt, n: uint64(int64(f))}
		}
		return dictKey{kind: keyFloat, n: math.Float64bits(f)}
	case v.IsSingleton():
		return dictKey{kind: keySingleton, n: uint64(v)}
	}

	obj, _ := vm.heap.get(v)
	switch p := obj.Payload.(type) {
	case *String:
		return dictKey{kind: keyStr, s: p.S}
	case *Tuple:
		var sb strings.Builder
		for _, item := range p.Items {
			k := vm.keyOf(item)
			sb.WriteByte(k.kind)
			sb.WriteString(strconv.FormatUint(k.n, 16))
			sb.WriteByte(':')
			sb.WriteString(strconv.Itoa(len(k.s)))
			sb.WriteByte(':')
			sb.WriteString(k.s)
		}
		return dictKey{kind: keyTuple, s: sb.String()}
	case *List, *Dict:
		vm.Raisef(vm.exc.typeErr, "unhashable type: '%s'", vm.types.Get(obj.Type).Name)
	}
	return dictKey{kind: keyRef, n: uint64(v)}
}

func (d *Dict) get(vm *VM, k Value) (Value, bool) {
	i, ok := d.index[vm.keyOf(k)]
	if !ok {
		return Null, false
	}
	return d.entries[i].value, true
}

func (d *Dict) set(vm *VM, k, v Value) {
	key := vm.keyOf(k)
	if i, ok := d.index[key]; ok {
		d.entries[i].value = v
		return
	}
	d.index[key] = len(d.entries)
	d.entries = append(d.entries, dictEntry{key: k, value: v, live: true})
}

func (d *Dict) delete(vm *VM, k Value) bool {
	key := vm.keyOf(k)
	i, ok := d.index[key]
	if !ok {
		return false
	}
	delete(d.index, key)
	d.entries[i] = dictEntry{key: Null, value: Null}
	d.dead++
	if d.dead > 8 && d.dead*2 > len(d.entries) {
		d.compact(vm)
	}
	return true
}

func (d *Dict) compact(vm *VM) {
	live := make([]dictEntry, 0, d.Len())
	for _, e := range d.entries {
		if e.live {
			live = append(live, e)
		}
	}
	d.entries = live
	d.dead = 0
	d.index = make(map[dictKey]int, len(live))
	for i, e := range live {
		d.index[vm.keyOf(e.key)] = i
	}
}

// keys returns a snapshot of the keys in insertion order.
func (d *Dict) keys() []Value {
	out := make([]Value, 0, d.Len())
	for _, e := range d.entries {
		if e.live {
			out = append(out, e.key)
		}
	}
	return out
}

// Range calls fn for every entry in insertion order until fn returns
// false.
func (d *Dict) Range(fn func(k, v Value) bool) {
	for _, e := range d.entries {
		if e.live && !fn(e.key, e.value) {
			return
		}
	}
}

// NewDict allocates an empty dict.
func (vm *VM) NewDict() Value {
	return vm.heap.alloc(&Object{Type: vm.tid.dict, Payload: newDict()})
}

func (vm *VM) dictPayload(v Value) *Dict {
	if obj, ok := vm.heap.get(v); ok {
		if d, ok := obj.Payload.(*Dict); ok {
			return d
		}
	}
	vm.Raisef(vm.exc.typeErr, "expected dict, got '%s'", vm.TypeName(v))
	return nil
}

// DictGet looks up key in a dict value.
func (vm *VM) DictGet(d, key Value) (v Value, ok bool, err error) {
	err = vm.protect(func() { v, ok = vm.dictPayload(d).get(vm, key) })
	return v, ok, err
}

// DictSet stores key: value in a dict value.
func (vm *VM) DictSet(d, key, value Value) error {
	return vm.protect(func() { vm.dictPayload(d).set(vm, key, value) })
}
