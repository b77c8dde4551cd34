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

// Row is one input row's arguments to an aggregate function,
// addressed by column index within a Batch.
type Row = int

// Func is the per-function contract every aggregate must implement
// (§3 "Aggregate function", §4.C).
//
// Implementations must be safe to call concurrently on places that
// live in disjoint partitions (two-level buckets); the engine never
// calls methods of the same Func concurrently on the same place.
type Func interface {
	// Name identifies the function for diagnostics and checkpoint
	// compatibility checks.
	Name() string

	// Size and Align describe the state this function keeps at
	// its offset within a place.
	Size() int
	Align() int

	// ResultType names the column type InsertResult produces.
	ResultType() ColumnType

	// Create initializes state at place[offset:offset+Size()].
	// It must be safe for Create to fail (e.g. allocation failure
	// propagated from a nested structure); on failure the executor
	// unwinds by calling Destroy on every already-created aggregate
	// at lower offsets in the same place (§4.C, §7).
	Create(place []byte) error

	// Add folds one row into place's state. args holds the
	// resolved argument columns for this aggregate, row is the
	// row index within those columns. delta is 1, or the row's value
	// in the configured delta column (AggDesc.DeltaCol or
	// Params.DeltaColPos): a negative delta means "retract" for
	// aggregates that support it.
	Add(place []byte, args []Column, row int, delta int64)

	// AddBatch folds rows [begin,end) of args into the places
	// named by places[begin:end], one place pointer per row,
	// avoiding a virtual call per row.
	AddBatch(places [][]byte, args []Column, begin, end int, delta []int64)

	// Merge combines src's state into dst's state in place.
	Merge(dst, src []byte)

	// Destroy releases any resources (e.g. off-arena heap data)
	// held by the state at place. Destroy is idempotent-safe only
	// if HasTrivialDestructor; otherwise it must be called exactly
	// once per Create.
	Destroy(place []byte)

	// InsertResult materializes the final value of place's state
	// into the output column out.
	InsertResult(place []byte, out ColumnBuilder)

	// Serialize appends place's state to dst for spill/checkpoint.
	Serialize(dst []byte, place []byte) []byte
	// Deserialize reads a previously-Serialize'd state from src
	// into a freshly Create'd place, returning the remaining bytes.
	Deserialize(place []byte, src []byte) ([]byte, error)

	// IsState reports whether the function is a "-State" combinator:
	// on final emit, ownership of the state is transferred to the
	// output column rather than destroyed (§7).
	IsState() bool
	// HasTrivialDestructor reports whether Destroy is a no-op,
	// letting the executor/merger skip bookkeeping for it.
	HasTrivialDestructor() bool
	// IsUserDefined reports whether the function participates in
	// the when-to-emit protocol (§4.C, §4.E step 6).
	IsUserDefined() bool
}

// Emitter is implemented by user-defined (IsUserDefined() == true)
// functions that decide for themselves when their result should be
// emitted.
type Emitter interface {
	// Flush is called after every batch on every touched place.
	Flush(place []byte)
	// GetEmitTimes returns how many times this group's row should
	// be duplicated on the next trigger; 0 means "not yet".
	GetEmitTimes(place []byte) int
}

// layout computes, once per aggregator, the fixed byte offset and
// total size of a place holding every aggregate's state back to
// back, padded for alignment (§3 "Aggregate place").
type layout struct {
	offsets []int
	size    int
}

func newLayout(funcs []Func) layout {
	l := layout{offsets: make([]int, len(funcs))}
	off := 0
	for i, f := range funcs {
		a := f.Align()
		if a <= 0 {
			a = 1
		}
		if rem := off % a; rem != 0 {
			off += a - rem
		}
		l.offsets[i] = off
		off += f.Size()
	}
	l.size = off
	return l
}

func (l layout) slot(place []byte, i int) []byte {
	start := l.offsets[i]
	return place[start:]
}

// createPlace allocates size bytes for l from ar and runs Create on
// every function in order, unwinding (destroying 0..k-1) if any
// Create fails (§4.C, §7).
func createPlace(ar *Arena, l layout, funcs []Func) ([]byte, error) {
	place, err := ar.Alloc(l.size, 8)
	if err != nil {
		return nil, err
	}
	for i, f := range funcs {
		if err := f.Create(l.slot(place, i)); err != nil {
			for j := i - 1; j >= 0; j-- {
				funcs[j].Destroy(l.slot(place, j))
			}
			return nil, err
		}
	}
	return place, nil
}

// destroyPlace runs Destroy on every function's slot of place. When
// final is true (a completed final-emit conversion), a function
// whose IsState() reports true is left alone: its InsertResult call
// already handed the state's ownership to the output column, so
// destroying it here would free memory the caller now owns (§7
// "ownership transfers to the output column -- do not destroy").
// final is always false for merge/window/restore call sites, which
// never run InsertResult and so never transfer ownership.
func destroyPlace(place []byte, l layout, funcs []Func, final bool) {
	if place == nil {
		return
	}
	for i, f := range funcs {
		if final && f.IsState() {
			continue
		}
		if f.HasTrivialDestructor() {
			continue
		}
		f.Destroy(l.slot(place, i))
	}
}

// mergePlace merges src into dst for every function.
func mergePlace(dst, src []byte, l layout, funcs []Func) {
	for i, f := range funcs {
		f.Merge(l.slot(dst, i), l.slot(src, i))
	}
}
