package vm

// ---------------------------------------------------------------------------
// Table: open-addressed Name -> Value map
// ---------------------------------------------------------------------------

// Table is the name resolution table used for object attributes, module
// globals, function locals and type dictionaries.
//
// Keys are interned Names; the zero Name marks an empty slot. Probing is
// linear and deletion uses backward shifting, so the table never holds
// tombstones. Capacity is a power of two and doubles once the load factor
// passes tableMaxLoad.
type Table struct {
	keys  []Name
	vals  []Value
	count int
	shift uint8  // 32 - log2(capacity)
	mult  uint32 // multiplicative hash constant
}

const (
	tableMinCap    = 8
	tableMaxLoadN  = 2 // load factor numerator (2/3)
	tableMaxLoadD  = 3
	defaultHashMul = 2654435769 // 2^32 / phi
)

// perfectHashCandidates is the fixed set of multipliers tried by
// OptimizeHash.
var perfectHashCandidates = [...]uint32{
	2654435769, 2246822519, 3266489917, 668265263,
	374761393, 2870177450, 3735928559, 1640531527,
}

// NewTable creates a table sized for at least hint entries.
func NewTable(hint int) *Table {
	capacity := tableMinCap
	for capacity*tableMaxLoadN < hint*tableMaxLoadD {
		capacity <<= 1
	}
	t := &Table{mult: defaultHashMul}
	t.alloc(capacity)
	return t
}

func (t *Table) alloc(capacity int) {
	t.keys = make([]Name, capacity)
	t.vals = make([]Value, capacity)
	t.shift = uint8(32 - log2(capacity))
	t.count = 0
}

func log2(n int) int {
	r := 0
	for n > 1 {
		n >>= 1
		r++
	}
	return r
}

func (t *Table) home(n Name) int {
	return int((uint32(n) * t.mult) >> t.shift)
}

func (t *Table) mask() int { return len(t.keys) - 1 }

// Len returns the number of entries.
func (t *Table) Len() int { return t.count }

// Cap returns the number of slots.
func (t *Table) Cap() int { return len(t.keys) }

// Get returns the value bound to n.
func (t *Table) Get(n Name) (Value, bool) {
	m := t.mask()
	for i := t.home(n); ; i = (i + 1) & m {
		k := t.keys[i]
		if k == n {
			return t.vals[i], true
		}
		if k == 0 {
			return Null, false
		}
	}
}

// Contains reports whether n is bound.
func (t *Table) Contains(n Name) bool {
	_, ok := t.Get(n)
	return ok
}

// Set binds n to v, inserting or overwriting.
func (t *Table) Set(n Name, v Value) {
	if n == 0 {
		panic("Table.Set: zero name")
	}
	m := t.mask()
	for i := t.home(n); ; i = (i + 1) & m {
		k := t.keys[i]
		if k == n {
			t.vals[i] = v
			return
		}
		if k == 0 {
			t.keys[i] = n
			t.vals[i] = v
			t.count++
			if t.count*tableMaxLoadD > len(t.keys)*tableMaxLoadN {
				t.rehash(len(t.keys)*2, t.mult)
			}
			return
		}
	}
}

// Erase removes n, returning whether it was present. Later entries of the
// same probe run are shifted back so lookups stay correct without
// tombstones.
func (t *Table) Erase(n Name) bool {
	m := t.mask()
	i := t.home(n)
	for {
		k := t.keys[i]
		if k == 0 {
			return false
		}
		if k == n {
			break
		}
		i = (i + 1) & m
	}
	t.count--
	for {
		t.keys[i] = 0
		t.vals[i] = Null
		j := i
		for {
			j = (j + 1) & m
			k := t.keys[j]
			if k == 0 {
				return true
			}
			h := t.home(k)
			// k may move into the hole at i unless its home lies
			// cyclically in (i, j].
			if (j > i && (h <= i || h > j)) || (j < i && h <= i && h > j) {
				t.keys[i] = k
				t.vals[i] = t.vals[j]
				i = j
				break
			}
		}
	}
}

// Merge copies every entry of other into t, overwriting existing bindings.
func (t *Table) Merge(other *Table) {
	other.Range(func(n Name, v Value) bool {
		t.Set(n, v)
		return true
	})
}

// Range calls fn for every entry until fn returns false.
func (t *Table) Range(fn func(n Name, v Value) bool) {
	for i, k := range t.keys {
		if k == 0 {
			continue
		}
		if !fn(k, t.vals[i]) {
			return
		}
	}
}

// Names returns the bound names in slot order.
func (t *Table) Names() []Name {
	out := make([]Name, 0, t.count)
	for _, k := range t.keys {
		if k != 0 {
			out = append(out, k)
		}
	}
	return out
}

// Copy returns an independent copy of t.
func (t *Table) Copy() *Table {
	c := &Table{
		keys:  append([]Name(nil), t.keys...),
		vals:  append([]Value(nil), t.vals...),
		count: t.count,
		shift: t.shift,
		mult:  t.mult,
	}
	return c
}

// Clear removes every entry, keeping the capacity.
func (t *Table) Clear() {
	for i := range t.keys {
		t.keys[i] = 0
		t.vals[i] = Null
	}
	t.count = 0
}

func (t *Table) rehash(capacity int, mult uint32) {
	oldKeys, oldVals := t.keys, t.vals
	t.mult = mult
	t.alloc(capacity)
	m := t.mask()
	for idx, k := range oldKeys {
		if k == 0 {
			continue
		}
		i := t.home(k)
		for t.keys[i] != 0 {
			i = (i + 1) & m
		}
		t.keys[i] = k
		t.vals[i] = oldVals[idx]
		t.count++
	}
}

// probeCost returns the total number of extra probes needed to find every
// current key if the table used mult.
func (t *Table) probeCost(mult uint32) int {
	occupied := make([]bool, len(t.keys))
	m := t.mask()
	cost := 0
	for _, k := range t.keys {
		if k == 0 {
			continue
		}
		i := int((uint32(k) * mult) >> t.shift)
		for occupied[i] {
			i = (i + 1) & m
			cost++
		}
		occupied[i] = true
	}
	return cost
}

// OptimizeHash recomputes the hash multiplier for a table that is expected
// to become read-mostly. It picks, from a fixed candidate set, the
// multiplier with the fewest probe collisions for the current keys, and
// returns the resulting collision count.
func (t *Table) OptimizeHash() int {
	best, bestCost := t.mult, t.probeCost(t.mult)
	for _, c := range perfectHashCandidates {
		if bestCost == 0 {
			break
		}
		if cost := t.probeCost(c); cost < bestCost {
			best, bestCost = c, cost
		}
	}
	if best != t.mult {
		t.rehash(len(t.keys), best)
	}
	return bestCost
}

// trace marks every value in the table.
func (t *Table) trace(mark func(Value)) {
	for i, k := range t.keys {
		if k != 0 {
			mark(t.vals[i])
		}
	}
}
