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
	"math"
	"testing"

	"github.com/SnellerInc/streamagg"
)

func TestSumAddAndMerge(t *testing.T) {
	s := Sum{Arg: 0}
	place := make([]byte, s.Size())
	if err := s.Create(place); err != nil {
		t.Fatal(err)
	}
	col := float64Col(1, 2, 3)
	args := []streamagg.Column{col}
	for r := 0; r < 3; r++ {
		s.Add(place, args, r, 1)
	}
	var out captureBuilder
	s.InsertResult(place, &out)
	if out.f64 != 6 {
		t.Fatalf("sum = %v, want 6", out.f64)
	}

	other := make([]byte, s.Size())
	s.Create(other)
	s.Add(other, []streamagg.Column{float64Col(10)}, 0, 1)
	s.Merge(place, other)
	out = captureBuilder{}
	s.InsertResult(place, &out)
	if out.f64 != 16 {
		t.Fatalf("merged sum = %v, want 16", out.f64)
	}
}

func TestSumSkipsNull(t *testing.T) {
	s := Sum{Arg: 0}
	place := make([]byte, s.Size())
	s.Create(place)
	col := float64Col(5, 0).nullAt(1)
	for r := 0; r < 2; r++ {
		s.Add(place, []streamagg.Column{col}, r, 1)
	}
	var out captureBuilder
	s.InsertResult(place, &out)
	if out.f64 != 5 {
		t.Fatalf("sum = %v, want 5 (null skipped)", out.f64)
	}
}

func TestSumSerializeDeserializeRoundTrip(t *testing.T) {
	s := Sum{Arg: 0}
	place := make([]byte, s.Size())
	s.Create(place)
	s.Add(place, []streamagg.Column{float64Col(7.5)}, 0, 1)

	buf := s.Serialize(nil, place)
	restored := make([]byte, s.Size())
	s.Create(restored)
	rest, err := s.Deserialize(restored, buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Fatalf("leftover bytes %v", rest)
	}
	var out captureBuilder
	s.InsertResult(restored, &out)
	if out.f64 != 7.5 {
		t.Fatalf("restored sum = %v, want 7.5", out.f64)
	}
}

// TestSumCompensatedAccuracy covers the Kahan-Babushka-Neumaier
// scheme's reason for existing: a long run of additions with wildly
// different magnitudes stays accurate where naive summation drifts.
func TestSumCompensatedAccuracy(t *testing.T) {
	s := Sum{Arg: 0}
	place := make([]byte, s.Size())
	s.Create(place)
	col := float64Col(1e16, 1, -1e16)
	for r := 0; r < 3; r++ {
		s.Add(place, []streamagg.Column{col}, r, 1)
	}
	var out captureBuilder
	s.InsertResult(place, &out)
	if math.Abs(out.f64-1) > 1e-9 {
		t.Fatalf("compensated sum = %v, want ~1", out.f64)
	}
}
