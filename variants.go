// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package streamagg

import (
	"sort"
	"sync"
)

// entry is one group's slot: its encoded key, the key's hash, and
// the place holding its aggregate state. A nil Place denotes
// "not yet created" or "already destroyed" (§3 invariants).
type entry struct {
	key   []byte
	hash  uint64
	Place []byte
}

// staticBuckets is the fixed sub-table count for static two-level
// variants, selected by the high bits of the hash (§3, §4.B step
// "static-bucket two-level"). 256 matches the common choice in the
// original source's two-level hash tables.
const staticBuckets = 256

// table is the interface every hash-table family implements (§3
// "Variants ... a tagged union selecting one of roughly thirty
// hash-table specialisations", §4.D). A single Go interface plus a
// handful of concrete implementations stands in for the ~30
// template instantiations, per §9's "enum + match" guidance.
type table interface {
	kind() methodKind
	size() int
	bytes() int64

	// find returns the existing entry for (key, hash), or nil.
	find(key []byte, hash uint64) *entry

	// emplace returns the entry for (key, hash), creating one via
	// newPlace if absent. inserted reports whether a new entry was
	// created.
	emplace(key []byte, hash uint64, newPlace func() ([]byte, error)) (e *entry, inserted bool, err error)

	// forEach walks every live entry (Place != nil).
	forEach(fn func(*entry))

	// isTwoLevel / bucketCount / bucket expose per-partition access
	// for two-level tables; single-level tables report bucketCount
	// 1 and bucket(0) == themselves wrapped trivially.
	isTwoLevel() bool
	bucketCount() int
	bucket(i int) table
}

// ---- without_key ----

// withoutKeyTable is the degenerate single-group table (§4.B step 1,
// glossary "Without-key").
type withoutKeyTable struct {
	mu sync.Mutex
	e  entry
}

func newWithoutKeyTable() *withoutKeyTable { return &withoutKeyTable{} }

func (t *withoutKeyTable) kind() methodKind { return methodWithoutKey }
func (t *withoutKeyTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.e.Place == nil {
		return 0
	}
	return 1
}
func (t *withoutKeyTable) bytes() int64 { return int64(len(t.e.Place)) }

func (t *withoutKeyTable) find(key []byte, hash uint64) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.e.Place == nil {
		return nil
	}
	return &t.e
}

func (t *withoutKeyTable) emplace(key []byte, hash uint64, newPlace func() ([]byte, error)) (*entry, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.e.Place != nil {
		return &t.e, false, nil
	}
	place, err := newPlace()
	if err != nil {
		return nil, false, err
	}
	t.e = entry{Place: place}
	return &t.e, true, nil
}

func (t *withoutKeyTable) forEach(fn func(*entry)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.e.Place != nil {
		fn(&t.e)
	}
}

func (t *withoutKeyTable) isTwoLevel() bool   { return false }
func (t *withoutKeyTable) bucketCount() int   { return 1 }
func (t *withoutKeyTable) bucket(i int) table { return t }

// ---- single-level keyed table (fixed/string/packed/serialized) ----
//
// Rather than the teacher's specialized in-place layouts per key
// width (vm/radix64.go's radixTree64 is one such specialization),
// this implementation stores every keyed method family in the same
// map[string]*entry keyed by the method's encoded key bytes (see
// method.go's encodeKeys); what differs between methodKind values
// is only *which bytes get encoded and how the method is chosen*,
// not the storage container (see DESIGN.md).
type hashTable struct {
	mu      sync.Mutex
	m       methodKind
	entries map[string]*entry
	order   []*entry // insertion order, for deterministic forEach
	size_   int64    // running byte estimate for two-level threshold checks
}

func newHashTable(m methodKind) *hashTable {
	return &hashTable{m: m, entries: make(map[string]*entry)}
}

func (t *hashTable) kind() methodKind { return t.m }
func (t *hashTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
func (t *hashTable) bytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size_
}

func (t *hashTable) find(key []byte, hash uint64) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[string(key)]
}

func (t *hashTable) emplace(key []byte, hash uint64, newPlace func() ([]byte, error)) (*entry, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[string(key)]; ok {
		return e, false, nil
	}
	place, err := newPlace()
	if err != nil {
		return nil, false, err
	}
	e := &entry{key: append([]byte(nil), key...), hash: hash, Place: place}
	t.entries[string(e.key)] = e
	t.order = append(t.order, e)
	t.size_ += int64(len(e.key) + len(place))
	return e, true, nil
}

func (t *hashTable) forEach(fn func(*entry)) {
	t.mu.Lock()
	order := t.order
	t.mu.Unlock()
	for _, e := range order {
		if e.Place != nil {
			fn(e)
		}
	}
}

func (t *hashTable) isTwoLevel() bool   { return false }
func (t *hashTable) bucketCount() int   { return 1 }
func (t *hashTable) bucket(i int) table { return t }

// remove deletes key from the table without destroying its state
// (callers are responsible for that); used by Convert to drop groups
// whose state it destroyed while the Variants is kept.
func (t *hashTable) remove(key []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, string(key))
}

// ---- static-bucket two-level ----

// twoLevelTable partitions a single-level table's entries into
// staticBuckets sub-tables selected by the high bits of the hash
// (§3, §4.B "static-bucket two-level companion").
type twoLevelTable struct {
	m       methodKind
	buckets [staticBuckets]*hashTable
}

func newTwoLevelTable(m methodKind) *twoLevelTable {
	t := &twoLevelTable{m: m}
	for i := range t.buckets {
		t.buckets[i] = newHashTable(m)
	}
	return t
}

func bucketIndex(hash uint64) int {
	return int(hash>>56) % staticBuckets
}

func (t *twoLevelTable) kind() methodKind { return t.m }
func (t *twoLevelTable) size() int {
	n := 0
	for _, b := range t.buckets {
		n += b.size()
	}
	return n
}
func (t *twoLevelTable) bytes() int64 {
	var n int64
	for _, b := range t.buckets {
		n += b.bytes()
	}
	return n
}

func (t *twoLevelTable) find(key []byte, hash uint64) *entry {
	return t.buckets[bucketIndex(hash)].find(key, hash)
}

func (t *twoLevelTable) emplace(key []byte, hash uint64, newPlace func() ([]byte, error)) (*entry, bool, error) {
	return t.buckets[bucketIndex(hash)].emplace(key, hash, newPlace)
}

func (t *twoLevelTable) forEach(fn func(*entry)) {
	for _, b := range t.buckets {
		b.forEach(fn)
	}
}

func (t *twoLevelTable) isTwoLevel() bool { return true }
func (t *twoLevelTable) bucketCount() int { return staticBuckets }
func (t *twoLevelTable) bucket(i int) table {
	return t.buckets[i]
}

// convertSingleToTwoLevel walks a single-level table and reinserts
// every entry into a fresh two-level table, per §4.D
// "convert_to_two_level ... single-level is walked and each entry
// reinserted ... then the single-level is dropped".
func convertSingleToTwoLevel(src *hashTable) *twoLevelTable {
	dst := newTwoLevelTable(src.m)
	src.forEach(func(e *entry) {
		b := dst.buckets[bucketIndex(e.hash)]
		b.mu.Lock()
		b.entries[string(e.key)] = e
		b.order = append(b.order, e)
		b.size_ += int64(len(e.key) + len(e.Place))
		b.mu.Unlock()
	})
	return dst
}

// ---- time-bucket two-level ----

// timeBucketTable partitions entries by the window-start/end key
// value itself rather than by hash bits, so that an entire window's
// entries live in one sub-table and can be evicted/spilled together
// (§3 "time-bucket two-level", §4.J). Sub-tables are created lazily
// as new window values are observed.
type timeBucketTable struct {
	mu      sync.Mutex
	m       methodKind
	windows map[int64]*hashTable
	order   []int64
}

func newTimeBucketTable(m methodKind) *timeBucketTable {
	return &timeBucketTable{m: m, windows: make(map[int64]*hashTable)}
}

func (t *timeBucketTable) windowOf(key []byte) int64 {
	return decodeWindowKey(key)
}

func (t *timeBucketTable) sub(win int64) *hashTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.windows[win]
	if !ok {
		s = newHashTable(t.m)
		t.windows[win] = s
		t.order = append(t.order, win)
	}
	return s
}

func (t *timeBucketTable) kind() methodKind { return t.m }
func (t *timeBucketTable) size() int {
	t.mu.Lock()
	wins := append([]int64(nil), t.order...)
	subs := make([]*hashTable, len(wins))
	for i, w := range wins {
		subs[i] = t.windows[w]
	}
	t.mu.Unlock()
	n := 0
	for _, s := range subs {
		n += s.size()
	}
	return n
}
func (t *timeBucketTable) bytes() int64 {
	t.mu.Lock()
	subs := make([]*hashTable, 0, len(t.windows))
	for _, s := range t.windows {
		subs = append(subs, s)
	}
	t.mu.Unlock()
	var n int64
	for _, s := range subs {
		n += s.bytes()
	}
	return n
}

func (t *timeBucketTable) find(key []byte, hash uint64) *entry {
	win := t.windowOf(key)
	t.mu.Lock()
	s, ok := t.windows[win]
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return s.find(key, hash)
}

func (t *timeBucketTable) emplace(key []byte, hash uint64, newPlace func() ([]byte, error)) (*entry, bool, error) {
	win := t.windowOf(key)
	return t.sub(win).emplace(key, hash, newPlace)
}

func (t *timeBucketTable) forEach(fn func(*entry)) {
	t.mu.Lock()
	wins := append([]int64(nil), t.order...)
	t.mu.Unlock()
	for _, w := range wins {
		t.mu.Lock()
		s := t.windows[w]
		t.mu.Unlock()
		s.forEach(fn)
	}
}

func (t *timeBucketTable) isTwoLevel() bool { return true }
func (t *timeBucketTable) bucketCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}
func (t *timeBucketTable) bucket(i int) table {
	t.mu.Lock()
	w := t.order[i]
	t.mu.Unlock()
	return t.sub(w)
}

// windowsBefore returns the window keys <= watermark, in ascending
// order, used by EvictBefore (§4.J).
func (t *timeBucketTable) windowsBefore(watermark int64) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []int64
	for _, w := range t.order {
		if w <= watermark {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *timeBucketTable) dropWindow(win int64) *hashTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.windows[win]
	delete(t.windows, win)
	for i, w := range t.order {
		if w == win {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return s
}

// decodeWindowKey extracts the int64 window value from a key
// encoded by encodeKeys, assuming the window column is encoded
// first (the same assumption executor.go makes: GroupKeyCols[0] is
// the window column; nothing checks it).
func decodeWindowKey(key []byte) int64 {
	if len(key) < 9 || key[0] == 0 {
		return 0
	}
	return int64(leUint64(key[1:9]))
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// ---- Variants container ----

// Variants is the tagged container described in §3/§4.D: a chosen
// table family plus the arenas backing its places and a
// non-owning back-pointer to the aggregator that knows how to
// create/destroy/merge those places.
type Variants struct {
	agg   *Aggregator
	Arena *Arena
	T     table

	mu            sync.Mutex
	noMoreKeys    bool // overflow-mode "any" has kicked in
	overflowPlace []byte
}

// newVariants creates an empty Variants using m as the chosen method.
func newVariants(agg *Aggregator, m methodKind) *Variants {
	v := &Variants{agg: agg, Arena: NewArena()}
	v.T = newTableFor(m)
	return v
}

func newTableFor(m methodKind) table {
	switch m {
	case methodWithoutKey:
		return newWithoutKeyTable()
	default:
		return newHashTable(m)
	}
}

// Empty reports whether v currently holds no groups and no overflow
// place.
func (v *Variants) Empty() bool {
	return v.T == nil || (v.T.size() == 0 && v.overflowPlace == nil)
}

// Size is the number of distinct groups currently resident.
func (v *Variants) Size() int {
	if v.T == nil {
		return 0
	}
	return v.T.size()
}

// IsTwoLevel reports whether the active table is two-level.
func (v *Variants) IsTwoLevel() bool {
	return v.T != nil && v.T.isTwoLevel()
}

// isConvertibleToTwoLevel reports whether the active method has a
// two-level companion (without_key does not, §4.B family list).
func (v *Variants) isConvertibleToTwoLevel() bool {
	return v.T != nil && v.T.kind() != methodWithoutKey && !v.T.isTwoLevel()
}

// ConvertToTwoLevel performs the one-way single -> two-level
// conversion described in §3/§4.D. It is a no-op if already
// two-level or not convertible.
func (v *Variants) ConvertToTwoLevel() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.isConvertibleToTwoLevel() {
		return
	}
	if ht, ok := v.T.(*hashTable); ok {
		if v.agg != nil && v.agg.params.GroupBy.IsWindow() {
			tb := newTimeBucketTable(ht.m)
			ht.forEach(func(e *entry) {
				win := decodeWindowKey(e.key)
				sub := tb.sub(win)
				sub.mu.Lock()
				sub.entries[string(e.key)] = e
				sub.order = append(sub.order, e)
				sub.size_ += int64(len(e.key) + len(e.Place))
				sub.mu.Unlock()
			})
			v.T = tb
			return
		}
		v.T = convertSingleToTwoLevel(ht)
	}
}

// NoMoreKeys reports whether the variants has switched into
// no-more-keys mode (OverflowAny, §4.E step 5, §7).
func (v *Variants) NoMoreKeys() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.noMoreKeys
}

func (v *Variants) setNoMoreKeys() {
	v.mu.Lock()
	v.noMoreKeys = true
	v.mu.Unlock()
}

// overflowEntry returns the single dedicated place every row folds
// into once NoMoreKeys has been set (§4.E step 5, §7 "sentinel
// overflow row"), creating it on first use.
func (v *Variants) overflowEntry() (*entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.overflowPlace == nil {
		place, err := createPlace(v.Arena, v.agg.layout, v.agg.funcs)
		if err != nil {
			return nil, err
		}
		v.overflowPlace = place
	}
	return &entry{Place: v.overflowPlace}, nil
}

// destroy walks every place v owns and runs Destroy on each
// aggregate's slot, then drops the table (§3 lifecycle: "finally
// destroyed ... aggregator walks every slot").
func (v *Variants) destroy() {
	if v.agg == nil || v.T == nil {
		return
	}
	v.T.forEach(func(e *entry) {
		destroyPlace(e.Place, v.agg.layout, v.agg.funcs, false)
		e.Place = nil
	})
	if v.overflowPlace != nil {
		destroyPlace(v.overflowPlace, v.agg.layout, v.agg.funcs, false)
		v.overflowPlace = nil
	}
}
