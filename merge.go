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

import "github.com/SnellerInc/streamagg/internal/workerpool"

// MergeFrom folds every source Aggregator's Variants into a's,
// leaving the sources empty (§4.G "merger"). All sources must share
// a's method tag; ErrCannotMergeDifferentVariants is returned
// otherwise. Sources with no data are skipped; if a itself has no
// data and exactly one source does, that source's Variants is
// adopted directly rather than walked entry by entry (§5
// "single-input reuse").
func (a *Aggregator) MergeFrom(sources []*Aggregator, workers int) error {
	live := make([]*Variants, 0, len(sources))
	merged := make([]*Aggregator, 0, len(sources))
	for _, s := range sources {
		if s == nil || s.v == nil || s.v.Empty() {
			continue
		}
		if a.v == nil && len(live) == 0 {
			// a has no data: it takes the method and key types of the
			// first source with data, which later sources must match.
			a.method, a.keyInfo = s.method, s.keyInfo
		} else if s.method != a.method {
			return errf(KindCannotMergeDifferentVariants, "merge", "cannot merge %v into %v", s.method, a.method)
		}
		live = append(live, s.v)
		merged = append(merged, s)
	}
	if len(live) == 0 {
		return nil
	}
	if a.v == nil && len(live) == 1 {
		a.v = live[0]
		a.v.agg = a
		merged[0].v = nil
		return nil
	}
	if a.v == nil {
		a.v = newVariants(a, a.method)
	}

	anyTwoLevel := a.v.IsTwoLevel()
	for _, v := range live {
		if v.IsTwoLevel() {
			anyTwoLevel = true
			break
		}
	}
	if anyTwoLevel {
		a.v.ConvertToTwoLevel()
		for _, v := range live {
			v.ConvertToTwoLevel()
		}
	}

	for i, v := range live {
		if err := a.mergeOne(v, workers); err != nil {
			return err
		}
		merged[i].v = nil
	}
	return nil
}

// mergeOne folds src into a.v, bucket by bucket in parallel when
// both are two-level, splicing src's arena onto a.v's afterward
// (§5 "arena ownership... splicing").
func (a *Aggregator) mergeOne(src *Variants, workers int) error {
	if wk, ok := a.v.T.(*withoutKeyTable); ok {
		sk := src.T.(*withoutKeyTable)
		if e := sk.find(nil, 0); e != nil {
			dst := wk.find(nil, 0)
			if dst == nil {
				var err error
				dst, _, err = wk.emplace(nil, 0, func() ([]byte, error) {
					return createPlace(a.v.Arena, a.layout, a.funcs)
				})
				if err != nil {
					return err
				}
			}
			mergePlace(dst.Place, e.Place, a.layout, a.funcs)
			destroyPlace(e.Place, a.layout, a.funcs, false)
			sk.e.Place = nil
		}
	} else {
		// Each source bucket's entries are routed into a.v.T by key,
		// not by positional bucket index: the two tables' partition
		// functions (hash high-bits for static two-level, window
		// value for time-bucket two-level) are only guaranteed to
		// agree on *which* partition a key belongs to, not on having
		// the same number of partitions (a time-bucket table's
		// window set can differ between src and dst).
		n := src.T.bucketCount()
		err := workerpool.RunErr(n, workers, func(i int) error {
			var mergeErr error
			src.T.bucket(i).forEach(func(e *entry) {
				if mergeErr != nil {
					return
				}
				dst, _, err := a.v.T.emplace(e.key, e.hash, func() ([]byte, error) {
					return createPlace(a.v.Arena, a.layout, a.funcs)
				})
				if err != nil {
					mergeErr = err
					return
				}
				if dst.Place != nil && dst != e {
					mergePlace(dst.Place, e.Place, a.layout, a.funcs)
					destroyPlace(e.Place, a.layout, a.funcs, false)
					e.Place = nil
				}
			})
			return mergeErr
		})
		if err != nil {
			return err
		}
	}

	if src.overflowPlace != nil {
		if a.v.overflowPlace == nil {
			a.v.overflowPlace = src.overflowPlace
		} else {
			mergePlace(a.v.overflowPlace, src.overflowPlace, a.layout, a.funcs)
			destroyPlace(src.overflowPlace, a.layout, a.funcs, false)
		}
		src.overflowPlace = nil
		a.v.noMoreKeys = a.v.noMoreKeys || src.noMoreKeys
	}

	a.v.Arena.absorb(src.Arena)
	return nil
}
