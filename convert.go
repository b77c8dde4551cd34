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
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/exp/slices"

	"github.com/SnellerInc/streamagg/internal/workerpool"
)

// Convert materializes the aggregator's current Variants into one
// or more Blocks (§4.F). ActionStreamingEmit produces final blocks
// (InsertResult values); every other Action produces intermediate
// blocks (serialized aggregate state, for a later merge/restore).
// Per-bucket conversion runs in parallel across up to workers
// goroutines when the active table is two-level; workers <= 0 uses
// every available core.
//
// States are destroyed after conversion according to
// Action.clearsStates(Params.KeepState), the overflow place's
// included; the overflow place is emitted as its own trailing Block
// with Block.IsOverflow set (§7). When states are cleared, groups a
// final block withholds (see blockFromEntries) keep their state and
// the Variants is kept for them; otherwise the Variants is dropped.
func (a *Aggregator) Convert(action Action, workers int) ([]*Block, error) {
	if a.v == nil {
		return nil, ErrEmptyData
	}
	final := action == ActionStreamingEmit
	clears := action.clearsStates(a.params.KeepState)

	n := a.v.T.bucketCount()
	blocks := make([]*Block, n)
	withheld := make([]bool, n)
	err := workerpool.RunErr(n, workers, func(i int) error {
		var entries []*entry
		a.v.T.bucket(i).forEach(func(e *entry) {
			entries = append(entries, e)
		})
		if len(entries) == 0 {
			return nil
		}
		// Sort by encoded key so a block's row order is stable across
		// runs, independent of map iteration order or goroutine
		// scheduling within the bucket.
		slices.SortFunc(entries, func(x, y *entry) bool {
			return bytes.Compare(x.key, y.key) < 0
		})
		blk, emitted, err := a.blockFromEntries(entries, final)
		if err != nil {
			return err
		}
		blk.BucketNum = int32(i)
		if n == 1 {
			blk.BucketNum = -1
		}
		blocks[i] = blk
		if clears {
			for j, e := range entries {
				if final && !emitted[j] {
					// A user-defined aggregate hasn't reached its next
					// emit threshold for this group yet; its state
					// must survive into the next tick (§4.F).
					withheld[i] = true
					continue
				}
				destroyPlace(e.Place, a.layout, a.funcs, final)
				e.Place = nil
				if ht, ok := a.v.T.bucket(i).(*hashTable); ok {
					ht.remove(e.key)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := blocks[:0]
	for _, b := range blocks {
		if b != nil {
			out = append(out, b)
		}
	}

	if ofp := a.v.overflowPlace; ofp != nil {
		blk, err := a.blockFromPlace(ofp, final)
		if err != nil {
			return nil, err
		}
		blk.BucketNum = -1
		blk.IsOverflow = true
		out = append(out, blk)
		if clears {
			destroyPlace(ofp, a.layout, a.funcs, final)
			a.v.overflowPlace = nil
		}
	}

	if clears && !slices.Contains(withheld, true) {
		a.v = nil
	}
	return out, nil
}

// blockFromEntries builds one Block from a slice of live entries
// sharing the same bucket. The returned emitted slice parallels
// entries and reports, for a final block, whether each entry's row
// was actually written to blk: a user-defined aggregate that hasn't
// reached its next emit threshold withholds its group entirely
// (§4.F), in which case emitted[j] is false and the entry's place
// must not be destroyed by the caller.
func (a *Aggregator) blockFromEntries(entries []*entry, final bool) (*Block, []bool, error) {
	blk := a.newResultBlock(final)
	nk := len(a.params.GroupKeyCols)
	emitted := make([]bool, len(entries))
	for j, e := range entries {
		repeat := 1
		if final && a.hasEmitter {
			repeat = a.emitTimes(e.Place)
			if repeat <= 0 {
				continue
			}
		}
		emitted[j] = true
		for n := 0; n < repeat; n++ {
			rest := e.key
			for i := 0; i < nk; i++ {
				rest = decodeKeyValue(rest, a.keyInfo[i].Type, blk.Columns[i])
			}
			a.appendAggregateValues(blk, e.Place, final)
		}
	}
	return blk, emitted, nil
}

// emitTimes asks place's user-defined (Emitter) aggregates how many
// times their group's row should be repeated on this trigger,
// duplicating the key row accordingly (§4.F). The first Emitter
// found is authoritative; an aggregator mixing more than one
// emit-driven aggregate is expected to keep them in lockstep.
func (a *Aggregator) emitTimes(place []byte) int {
	for i, f := range a.funcs {
		em, ok := f.(Emitter)
		if !ok || !f.IsUserDefined() {
			continue
		}
		return em.GetEmitTimes(a.layout.slot(place, i))
	}
	return 1
}

// blockFromPlace builds a single-row Block for the overflow place,
// whose group-by key columns are always null (§7: "the overflow
// row carries null keys").
func (a *Aggregator) blockFromPlace(place []byte, final bool) (*Block, error) {
	blk := a.newResultBlock(final)
	nk := len(a.params.GroupKeyCols)
	for i := 0; i < nk; i++ {
		blk.Columns[i].AppendNull()
	}
	a.appendAggregateValues(blk, place, final)
	return blk, nil
}

func (a *Aggregator) newResultBlock(final bool) *Block {
	blk := &Block{}
	nk := len(a.params.GroupKeyCols)
	for i := 0; i < nk; i++ {
		name := fmt.Sprintf("key%d", i)
		if idx := a.params.GroupKeyCols[i]; idx >= 0 && idx < len(a.params.InputSchema) {
			name = a.params.InputSchema[idx]
		}
		blk.Names = append(blk.Names, name)
		blk.Types = append(blk.Types, a.keyInfo[i].Type)
		blk.Columns = append(blk.Columns, newSliceColumn(a.keyInfo[i].Type))
	}
	for _, ad := range a.params.Aggregates {
		blk.Names = append(blk.Names, ad.Result)
		blk.Types = append(blk.Types, TypeBytes)
		blk.Columns = append(blk.Columns, newSliceColumn(TypeBytes))
	}
	if final {
		for i, f := range a.funcs {
			blk.Types[nk+i] = f.ResultType()
			blk.Columns[nk+i] = newSliceColumn(f.ResultType())
		}
	}
	return blk
}

// appendAggregateValues appends one result row's worth of aggregate
// columns: InsertResult values when final, or Serialize'd state
// blobs otherwise.
func (a *Aggregator) appendAggregateValues(blk *Block, place []byte, final bool) {
	nk := len(a.params.GroupKeyCols)
	for i, f := range a.funcs {
		col := blk.Columns[nk+i]
		if final {
			f.InsertResult(a.layout.slot(place, i), col)
			continue
		}
		var buf []byte
		buf = f.Serialize(buf, a.layout.slot(place, i))
		col.AppendBytes(buf)
	}
}

// decodeKeyValue reverses encodeOne for a single column of the
// given type, appending the decoded value (or null) to col and
// returning the remaining buffer.
func decodeKeyValue(buf []byte, typ ColumnType, col ColumnBuilder) []byte {
	if len(buf) == 0 || buf[0] == 0 {
		col.AppendNull()
		if len(buf) == 0 {
			return buf
		}
		return buf[1:]
	}
	body := buf[1:]
	switch typ {
	case TypeInt64:
		col.AppendInt64(int64(binary.LittleEndian.Uint64(body[:8])))
		return body[8:]
	case TypeFloat64:
		col.AppendFloat64(math.Float64frombits(binary.LittleEndian.Uint64(body[:8])))
		return body[8:]
	case TypeBool:
		col.AppendBool(body[0] != 0)
		return body[1:]
	case TypeString:
		n := binary.LittleEndian.Uint64(body[:8])
		col.AppendString(string(body[8 : 8+n]))
		return body[8+n:]
	case TypeBytes:
		n := binary.LittleEndian.Uint64(body[:8])
		col.AppendBytes(body[8 : 8+n])
		return body[8+n:]
	default:
		return body
	}
}
