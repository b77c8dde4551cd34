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

package funcs

import (
	"testing"

	"github.com/SnellerInc/streamagg"
)

func TestMinFindsSmallest(t *testing.T) {
	m := Min(0)
	place := make([]byte, m.Size())
	m.Create(place)
	col := float64Col(5, 1, 3)
	for r := 0; r < 3; r++ {
		m.Add(place, []streamagg.Column{col}, r, 1)
	}
	var out captureBuilder
	m.InsertResult(place, &out)
	if out.f64 != 1 {
		t.Fatalf("min = %v, want 1", out.f64)
	}
}

func TestMaxFindsLargest(t *testing.T) {
	m := Max(0)
	place := make([]byte, m.Size())
	m.Create(place)
	col := float64Col(5, 1, 3)
	for r := 0; r < 3; r++ {
		m.Add(place, []streamagg.Column{col}, r, 1)
	}
	var out captureBuilder
	m.InsertResult(place, &out)
	if out.f64 != 5 {
		t.Fatalf("max = %v, want 5", out.f64)
	}
}

func TestMinMaxEmptyIsNull(t *testing.T) {
	m := Min(0)
	place := make([]byte, m.Size())
	m.Create(place)
	var out captureBuilder
	out.isNull = false
	m.InsertResult(place, &out)
	if !out.isNull {
		t.Fatal("want null result for an empty min")
	}
}

// TestMinMaxIgnoresRetraction covers the non-retractable contract:
// a negative delta must not affect the running extremum.
func TestMinMaxIgnoresRetraction(t *testing.T) {
	m := Min(0)
	place := make([]byte, m.Size())
	m.Create(place)
	col := float64Col(5, -100)
	m.Add(place, []streamagg.Column{col}, 0, 1)
	m.Add(place, []streamagg.Column{col}, 1, -1)
	var out captureBuilder
	m.InsertResult(place, &out)
	if out.f64 != 5 {
		t.Fatalf("min = %v, want 5 (retraction must be ignored)", out.f64)
	}
}

func TestMinMaxMerge(t *testing.T) {
	m := Max(0)
	a := make([]byte, m.Size())
	b := make([]byte, m.Size())
	m.Create(a)
	m.Create(b)
	m.Add(a, []streamagg.Column{float64Col(2)}, 0, 1)
	m.Add(b, []streamagg.Column{float64Col(9)}, 0, 1)
	m.Merge(a, b)
	var out captureBuilder
	m.InsertResult(a, &out)
	if out.f64 != 9 {
		t.Fatalf("merged max = %v, want 9", out.f64)
	}
}

func TestMinMaxSerializeDeserialize(t *testing.T) {
	m := Min(0)
	place := make([]byte, m.Size())
	m.Create(place)
	m.Add(place, []streamagg.Column{float64Col(4)}, 0, 1)
	buf := m.Serialize(nil, place)
	restored := make([]byte, m.Size())
	m.Create(restored)
	if _, err := m.Deserialize(restored, buf); err != nil {
		t.Fatal(err)
	}
	var out captureBuilder
	m.InsertResult(restored, &out)
	if out.f64 != 4 {
		t.Fatalf("restored min = %v, want 4", out.f64)
	}
}
