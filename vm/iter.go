package vm

import (
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Iteration protocol
// ---------------------------------------------------------------------------

// Iterator is the payload of builtin iterators over lists, tuples,
// strings, ranges and dict key snapshots.
type Iterator struct {
	src  Value
	pos  int64
	keys []Value // dict iteration snapshot
}

func (it *Iterator) trace(mark func(Value)) {
	mark(it.src)
	for _, k := range it.keys {
		mark(k)
	}
}

func (vm *VM) newIterator(src Value, keys []Value) Value {
	return vm.heap.alloc(&Object{Type: vm.tid.iterator, Payload: &Iterator{src: src, keys: keys}})
}

// getIter returns an iterator over v.
func (vm *VM) getIter(v Value) Value {
	obj, ok := vm.heap.get(v)
	if !ok {
		vm.Raisef(vm.exc.typeErr, "'%s' object is not iterable", vm.TypeName(v))
	}
	if !vm.overrides(obj, vm.wk.iter) {
		switch p := obj.Payload.(type) {
		case *List, *Tuple, *String, *Range:
			return vm.newIterator(v, nil)
		case *Dict:
			return vm.newIterator(v, p.keys())
		case *Iterator, *Generator:
			return v
		}
	}
	if m, ok := vm.types.Resolve(obj.Type, vm.wk.iter); ok {
		it := vm.call(m, []Value{v}, nil)
		if _, ok := vm.types.Resolve(vm.typeOf(it), vm.wk.next); !ok && !vm.isBuiltinIterator(it) {
			vm.Raisef(vm.exc.typeErr, "iter() returned non-iterator of type '%s'", vm.TypeName(it))
		}
		return it
	}
	if _, ok := vm.types.Resolve(obj.Type, vm.wk.next); ok {
		return v
	}
	vm.Raisef(vm.exc.typeErr, "'%s' object is not iterable", vm.TypeName(v))
	return Null
}

func (vm *VM) isBuiltinIterator(v Value) bool {
	obj, ok := vm.heap.get(v)
	if !ok {
		return false
	}
	switch obj.Payload.(type) {
	case *Iterator, *Generator:
		return true
	}
	return false
}

// iterNext produces the next item of iterator it. ok is false once the
// iterator is exhausted.
func (vm *VM) iterNext(it Value) (Value, bool) {
	obj, ok := vm.heap.get(it)
	if !ok {
		vm.Raisef(vm.exc.typeErr, "'%s' object is not an iterator", vm.TypeName(it))
	}
	switch p := obj.Payload.(type) {
	case *Iterator:
		return vm.builtinNext(p)
	case *Generator:
		return vm.nextGenerator(p)
	}
	m, ok := vm.types.Resolve(obj.Type, vm.wk.next)
	if !ok {
		vm.Raisef(vm.exc.typeErr, "'%s' object is not an iterator", vm.TypeName(it))
	}
	return vm.callNext(m, it)
}

// callNext calls a guest __next__, translating StopIteration into
// exhaustion.
func (vm *VM) callNext(m, it Value) (v Value, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			rs, isRaised := r.(*raised)
			if !isRaised || !vm.types.IsSubtype(vm.typeOf(rs.exc), vm.exc.stopIteration) {
				panic(r)
			}
			v, ok = Null, false
		}
	}()
	return vm.call(m, []Value{it}, nil), true
}

func (vm *VM) builtinNext(it *Iterator) (Value, bool) {
	if it.keys != nil {
		if it.pos >= int64(len(it.keys)) {
			return Null, false
		}
		k := it.keys[it.pos]
		it.pos++
		return k, true
	}
	obj, _ := vm.heap.get(it.src)
	switch p := obj.Payload.(type) {
	case *List:
		if it.pos >= int64(len(p.Items)) {
			return Null, false
		}
		v := p.Items[it.pos]
		it.pos++
		return v, true
	case *Tuple:
		if it.pos >= int64(len(p.Items)) {
			return Null, false
		}
		v := p.Items[it.pos]
		it.pos++
		return v, true
	case *String:
		if it.pos >= int64(len(p.S)) {
			return Null, false
		}
		r, size := utf8.DecodeRuneInString(p.S[it.pos:])
		it.pos += int64(size)
		return vm.NewString(string(r)), true
	case *Range:
		if it.pos >= p.length() {
			return Null, false
		}
		v := p.at(it.pos)
		it.pos++
		return FromInt(v), true
	case *Dict:
		// Empty dict iterated before any key existed.
		return Null, false
	}
	return Null, false
}

// collectItems drains an iterable into a slice. The returned values are
// unrooted; the scope lock is held while they accumulate.
func (vm *VM) collectItems(v Value) []Value {
	if obj, ok := vm.heap.get(v); ok && !vm.overrides(obj, vm.wk.iter) {
		switch p := obj.Payload.(type) {
		case *List:
			return append([]Value(nil), p.Items...)
		case *Tuple:
			return append([]Value(nil), p.Items...)
		}
	}
	it := vm.getIter(v)
	var items []Value
	guard := vm.heap.Lock()
	defer guard.Release()
	for {
		x, ok := vm.iterNext(it)
		if !ok {
			return items
		}
		items = append(items, x)
	}
}

// unpack returns exactly n items of v.
func (vm *VM) unpack(v Value, n int) []Value {
	items := vm.collectItems(v)
	switch {
	case len(items) < n:
		vm.Raisef(vm.exc.typeErr, "not enough values to unpack (expected %d, got %d)", n, len(items))
	case len(items) > n:
		vm.Raisef(vm.exc.typeErr, "too many values to unpack (expected %d)", n)
	}
	return items
}
