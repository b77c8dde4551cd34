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

import "testing"

func newWindowAggregator(t *testing.T) *Aggregator {
	t.Helper()
	p := Params{
		GroupKeyCols: []int{0, 1},
		Aggregates:   []AggDesc{{Args: []int{2}, DeltaCol: -1, Result: "total"}},
		DeltaColPos:  -1,
		GroupBy:      GroupByWindowStart,
	}
	a, err := NewAggregator(p, []Func{&countingSumFunc{}})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

// TestEvictBeforeRemovesOldWindows covers watermark-driven eviction:
// after forcing a two-level time-bucket conversion, windows at or
// before the watermark are dropped along with their groups.
func TestEvictBeforeRemovesOldWindows(t *testing.T) {
	a := newWindowAggregator(t)
	b := &Batch{
		Rows: 4,
		Columns: []Column{
			int64Column(100, 100, 200, 300),
			stringColumn("a", "b", "a", "a"),
			int64Column(1, 2, 3, 4),
		},
	}
	if _, err := a.ExecuteBatch(b); err != nil {
		t.Fatal(err)
	}
	a.v.ConvertToTwoLevel()
	if !a.v.IsTwoLevel() {
		t.Fatal("want two-level after explicit conversion")
	}

	st := a.EvictBefore(150)
	if st.Removed != 2 {
		t.Fatalf("Removed = %d, want 2 (window 100 has two groups)", st.Removed)
	}
	if st.Remaining != 2 {
		t.Fatalf("Remaining = %d, want 2", st.Remaining)
	}
	tb := a.v.T.(*timeBucketTable)
	if tb.bucketCount() != 2 {
		t.Fatalf("bucketCount() = %d, want 2 remaining windows", tb.bucketCount())
	}
}

// TestEvictBeforeHonorsRetentionFloor covers
// Params.StreamingWindowCount as a retention floor: even windows at
// or below the watermark survive if evicting them would drop below
// the configured minimum number of resident windows.
func TestEvictBeforeHonorsRetentionFloor(t *testing.T) {
	a := newWindowAggregator(t)
	a.params.StreamingWindowCount = 2
	b := &Batch{
		Rows: 3,
		Columns: []Column{
			int64Column(100, 200, 300),
			stringColumn("a", "a", "a"),
			int64Column(1, 2, 3),
		},
	}
	if _, err := a.ExecuteBatch(b); err != nil {
		t.Fatal(err)
	}
	a.v.ConvertToTwoLevel()

	st := a.EvictBefore(300)
	tb := a.v.T.(*timeBucketTable)
	if tb.bucketCount() != 2 {
		t.Fatalf("bucketCount() = %d, want 2 kept by the retention floor", tb.bucketCount())
	}
	if st.Removed != 1 {
		t.Fatalf("Removed = %d, want 1", st.Removed)
	}
}

// TestEvictBeforeNullKeySlotNoSpecialRetention documents the
// low-cardinality open question decision: a null-valued non-window
// group key sharing a window with other entries is evicted exactly
// like any other entry in that window, with no special-casing.
func TestEvictBeforeNullKeySlotNoSpecialRetention(t *testing.T) {
	a := newWindowAggregator(t)
	b := &Batch{
		Rows: 2,
		Columns: []Column{
			int64Column(100, 100),
			stringColumn("x", "").nullAt(1),
			int64Column(1, 2),
		},
	}
	if _, err := a.ExecuteBatch(b); err != nil {
		t.Fatal(err)
	}
	a.v.ConvertToTwoLevel()

	st := a.EvictBefore(100)
	if st.Removed != 2 {
		t.Fatalf("Removed = %d, want 2 (null-key entry evicted along with its window)", st.Removed)
	}
	if st.Remaining != 0 {
		t.Fatalf("Remaining = %d, want 0", st.Remaining)
	}
}

// TestEvictBeforeNonWindowIsNoOp covers that EvictBefore is
// documented as a no-op outside window group-bys.
func TestEvictBeforeNonWindowIsNoOp(t *testing.T) {
	a := newTestSumAggregator(t)
	if _, err := a.ExecuteBatch(&Batch{Rows: 1, Columns: []Column{stringColumn("x"), int64Column(1)}}); err != nil {
		t.Fatal(err)
	}
	st := a.EvictBefore(1 << 40)
	if st.Removed != 0 {
		t.Fatalf("Removed = %d, want 0 for a non-window aggregator", st.Removed)
	}
	if a.v.Size() != 1 {
		t.Fatal("non-window EvictBefore must not touch existing groups")
	}
}
