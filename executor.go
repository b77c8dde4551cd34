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

import "sync/atomic"

// AggregatorStats are running counters maintained across every
// ExecuteBatch call, exposed for metrics (§6).
type AggregatorStats struct {
	RowsIn        int64
	GroupsCreated int64
	Overflowed    int64
	BatchesRun    int64
}

// Aggregator is the top-level engine object described by §3: it
// owns the chosen Variants, the aggregate function set and their
// combined place layout, and the configuration that governs
// overflow, two-level conversion and external spill decisions.
//
// An Aggregator is safe for concurrent ExecuteBatch calls only if
// the caller serializes access to disjoint Variants (e.g. one
// Aggregator per partition); a single Aggregator's own state is not
// internally sharded.
type Aggregator struct {
	params Params
	funcs  []Func
	layout layout

	keyInfo    []keyTypeInfo
	method     methodKind
	windowFirst bool // GroupKeyCols[0] is the window column

	v *Variants

	stats AggregatorStats

	// hasEmitter reports whether any configured function is both
	// IsUserDefined() and implements Emitter, letting ExecuteBatch
	// and Convert skip the when-to-emit protocol entirely for
	// aggregators that don't use it.
	hasEmitter bool
}

// NewAggregator builds an Aggregator from its configuration and the
// concrete aggregate functions named by params.Aggregates, in the
// same order (§3, §4.C).
func NewAggregator(p Params, funcs []Func) (*Aggregator, error) {
	if len(funcs) != len(p.Aggregates) {
		return nil, errf(KindLogicalError, "aggregator", "got %d functions for %d aggregate descriptors", len(funcs), len(p.Aggregates))
	}
	a := &Aggregator{
		params:      p,
		funcs:       funcs,
		layout:      newLayout(funcs),
		windowFirst: p.GroupBy.IsWindow(),
	}
	for _, f := range funcs {
		if _, ok := f.(Emitter); ok && f.IsUserDefined() {
			a.hasEmitter = true
			break
		}
	}
	return a, nil
}

// Stats returns the running counters accumulated across every
// ExecuteBatch call so far.
func (a *Aggregator) Stats() AggregatorStats {
	return a.stats
}

// ExecuteResult is returned by ExecuteBatch (§4.E: "returns a small
// {abort, need_finalize} result").
type ExecuteResult struct {
	// Abort reports that OverflowBreak triggered and the caller
	// should stop feeding batches (OverflowThrow returns
	// ErrTooManyRows instead).
	Abort bool
	// NeedFinalize reports that a user-defined aggregate requested
	// emission, or that a resource threshold (bytes before external
	// group-by, or the row/byte two-level thresholds) was crossed
	// during this batch, and the caller should convert, spill or
	// checkpoint before continuing.
	NeedFinalize bool
}

// initVariants runs once, on the first ExecuteBatch call, choosing
// the hash-table method from the key columns actually observed
// (§4.B, §4.E step "init on first call").
func (a *Aggregator) initVariants(keys []Column) {
	a.keyInfo = make([]keyTypeInfo, len(keys))
	for i, c := range keys {
		info := keyTypeInfo{Type: c.Type()}
		switch c.Type() {
		case TypeInt64, TypeFloat64:
			info.FixedSize = 8
		case TypeBool:
			info.FixedSize = 1
		default:
			info.FixedSize = 0
		}
		a.keyInfo[i] = info
	}
	// a column is nullable if any observed row in the seed batch is
	// null; callers with sparser null distributions still fall back
	// correctly since chooseMethod's fixed-width paths tolerate an
	// occasional stray null by encoding it as a 1-byte tag (§4.B note).
	for i, c := range keys {
		for r := 0; r < c.Len(); r++ {
			if c.Null(r) {
				a.keyInfo[i].Nullable = true
				break
			}
		}
	}
	a.method = chooseMethod(a.keyInfo, &a.params)
	a.v = newVariants(a, a.method)
}

// keyColumns resolves Params.GroupKeyCols against a batch.
func (a *Aggregator) keyColumns(b *Batch) []Column {
	cols := make([]Column, len(a.params.GroupKeyCols))
	for i, idx := range a.params.GroupKeyCols {
		cols[i] = b.Columns[idx]
	}
	return cols
}

// ExecuteBatch folds one record batch into the aggregator's active
// Variants (§4.E). It implements: lazy method selection, watermark
// tracking for window group-bys, key emplacement, overflow-mode
// handling, per-row Add, user-defined Flush notification, and
// threshold detection for two-level conversion and external spill.
func (a *Aggregator) ExecuteBatch(b *Batch) (ExecuteResult, error) {
	atomic.AddInt64(&a.stats.BatchesRun, 1)
	if b.Rows == 0 {
		return ExecuteResult{}, nil
	}
	keys := a.keyColumns(b)
	if a.v == nil {
		a.initVariants(keys)
	}

	if a.windowFirst && len(keys) > 0 && keys[0].Type() == TypeInt64 {
		for r := 0; r < b.Rows; r++ {
			if !keys[0].Null(r) {
				a.v.Arena.SetTimestamp(keys[0].Int64(r))
			}
		}
	}

	var res ExecuteResult
	var keybuf []byte
	touched := make(map[*entry]struct{}, b.Rows)

	for r := 0; r < b.Rows; r++ {
		atomic.AddInt64(&a.stats.RowsIn, 1)
		keybuf = encodeKeys(keys, r, keybuf[:0])
		hash := hashKey(keybuf)

		e := a.v.T.find(keybuf, hash)
		if e == nil && a.v.NoMoreKeys() {
			var err error
			e, err = a.v.overflowEntry()
			if err != nil {
				return res, err
			}
			atomic.AddInt64(&a.stats.Overflowed, 1)
		}
		if e == nil {
			if a.params.MaxRowsToGroupBy > 0 && a.v.Size() >= a.params.MaxRowsToGroupBy {
				overflowed, err := a.handleOverflow(&res)
				if err != nil {
					return res, err
				}
				if res.Abort {
					return res, nil
				}
				if overflowed {
					e, err = a.v.overflowEntry()
					if err != nil {
						return res, err
					}
					atomic.AddInt64(&a.stats.Overflowed, 1)
				}
			}
		}
		if e == nil {
			var created bool
			var err error
			e, created, err = a.v.T.emplace(keybuf, hash, func() ([]byte, error) {
				return createPlace(a.v.Arena, a.layout, a.funcs)
			})
			if err != nil {
				return res, err
			}
			if created {
				atomic.AddInt64(&a.stats.GroupsCreated, 1)
			}
		}

		a.addRow(e.Place, b, r)
		touched[e] = struct{}{}
	}

	if a.flushUserDefined(touched) {
		res.NeedFinalize = true
	}

	if a.v.isConvertibleToTwoLevel() && a.params.worthTwoLevel(a.v.Size(), a.v.Arena.Bytes()) {
		a.v.ConvertToTwoLevel()
		res.NeedFinalize = true
	}
	if a.params.MaxBytesBeforeExternalGroupBy > 0 && a.v.Arena.Bytes() > a.params.MaxBytesBeforeExternalGroupBy {
		res.NeedFinalize = true
	}
	return res, nil
}

// addRow folds row r of b into place for every configured aggregate.
func (a *Aggregator) addRow(place []byte, b *Batch, r int) {
	for i, ad := range a.params.Aggregates {
		args := make([]Column, len(ad.Args))
		for j, idx := range ad.Args {
			args[j] = b.Columns[idx]
		}
		var delta int64 = 1
		dc := ad.DeltaCol
		if dc < 0 {
			dc = a.params.DeltaColPos
		}
		if dc >= 0 {
			delta = b.Columns[dc].Int64(r)
		}
		a.funcs[i].Add(place, args, r, delta)
	}
}

// flushUserDefined calls Flush on every touched place for every
// user-defined aggregate, once per batch, then queries GetEmitTimes
// on the same places; a positive count signals the caller to
// finalize (convert) before the next batch (§4.C, §4.E step 6).
func (a *Aggregator) flushUserDefined(touched map[*entry]struct{}) bool {
	needFinalize := false
	for i, f := range a.funcs {
		em, ok := f.(Emitter)
		if !ok || !f.IsUserDefined() {
			continue
		}
		for e := range touched {
			em.Flush(a.layout.slot(e.Place, i))
		}
		for e := range touched {
			if em.GetEmitTimes(a.layout.slot(e.Place, i)) > 0 {
				needFinalize = true
			}
		}
	}
	return needFinalize
}

// handleOverflow applies Params.OverflowMode when the group limit
// has been reached for a not-yet-seen key (§4.E step 5, §7).
// overflowed reports whether the row should be routed to the
// dedicated overflow place rather than a newly emplaced key.
func (a *Aggregator) handleOverflow(res *ExecuteResult) (overflowed bool, err error) {
	switch a.params.OverflowMode {
	case OverflowThrow:
		return false, ErrTooManyRows
	case OverflowBreak:
		res.Abort = true
		return false, nil
	case OverflowAny:
		a.v.setNoMoreKeys()
		return true, nil
	default:
		return false, errf(KindLogicalError, "executor", "unknown overflow mode %v", a.params.OverflowMode)
	}
}
