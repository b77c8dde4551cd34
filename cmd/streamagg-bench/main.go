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

// Command streamagg-bench drives an Aggregator against synthetic
// data, exercising the full execute/convert/checkpoint/spill cycle
// from the command line.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/SnellerInc/streamagg"
	"github.com/SnellerInc/streamagg/internal/funcs"
)

func fatalf(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(1)
}

type stderrLogger struct{}

func (stderrLogger) Printf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "streamagg: "+f+"\n", args...)
}

// genColumn is a plain in-memory streamagg.Column over one typed
// slice, used to hand synthetic batches to the aggregator without
// pulling in a columnar store.
type genColumn struct {
	typ streamagg.ColumnType
	str []string
	f64 []float64
}

func (c *genColumn) Type() streamagg.ColumnType { return c.typ }
func (c *genColumn) Len() int {
	if c.typ == streamagg.TypeString {
		return len(c.str)
	}
	return len(c.f64)
}
func (c *genColumn) Null(int) bool         { return false }
func (c *genColumn) Int64(i int) int64     { return int64(c.f64[i]) }
func (c *genColumn) Float64(i int) float64 { return c.f64[i] }
func (c *genColumn) String(i int) string   { return c.str[i] }
func (c *genColumn) Bool(int) bool         { return false }
func (c *genColumn) Bytes(int) []byte      { return nil }

// genBatch builds one Batch of n rows cycling through numKeys
// distinct group keys, starting the value sequence at offset.
func genBatch(n, numKeys, offset int) *streamagg.Batch {
	keys := make([]string, n)
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		keys[i] = "key-" + strconv.Itoa((offset+i)%numKeys)
		vals[i] = float64((offset + i) % 97)
	}
	return &streamagg.Batch{
		Rows: n,
		Columns: []streamagg.Column{
			&genColumn{typ: streamagg.TypeString, str: keys},
			&genColumn{typ: streamagg.TypeFloat64, f64: vals},
		},
	}
}

func printBlocks(blocks []*streamagg.Block) {
	for bi, blk := range blocks {
		fmt.Printf("block %d: bucket=%d overflow=%v rows=%d\n", bi, blk.BucketNum, blk.IsOverflow, blk.Rows())
		for row := 0; row < blk.Rows(); row++ {
			fmt.Printf("  ")
			for ci, name := range blk.Names {
				col, ok := blk.Columns[ci].(streamagg.Column)
				if !ok {
					fmt.Printf("%s=<unreadable> ", name)
					continue
				}
				if col.Null(row) {
					fmt.Printf("%s=null ", name)
					continue
				}
				switch blk.Types[ci] {
				case streamagg.TypeString:
					fmt.Printf("%s=%s ", name, col.String(row))
				case streamagg.TypeInt64:
					fmt.Printf("%s=%d ", name, col.Int64(row))
				default:
					fmt.Printf("%s=%g ", name, col.Float64(row))
				}
			}
			fmt.Println()
		}
	}
}

func main() {
	rows := flag.Int("rows", 10000, "total synthetic rows to feed")
	numKeys := flag.Int("keys", 16, "distinct group-by keys")
	batchSize := flag.Int("batch", 1000, "rows per ExecuteBatch call")
	workers := flag.Int("workers", 0, "Convert/MergeFrom worker count (0 = unbounded)")
	presetPath := flag.String("preset", "", "optional YAML preset file")
	checkpointPath := flag.String("checkpoint", "", "if set, checkpoint to this file and recover from it before printing")
	spillDir := flag.String("spill", "", "if set, spill to this directory and restore before printing")
	flag.Parse()

	p := streamagg.Params{
		GroupKeyCols: []int{0},
		Aggregates: []streamagg.AggDesc{
			{Func: funcs.Sum{Arg: 0}, Args: []int{1}, DeltaCol: -1, Result: "total"},
			{Func: funcs.Count{Arg: -1}, Args: nil, DeltaCol: -1, Result: "n"},
			{Func: funcs.Min(0), Args: []int{1}, DeltaCol: -1, Result: "min_value"},
			{Func: funcs.Max(0), Args: []int{1}, DeltaCol: -1, Result: "max_value"},
		},
		MaxRowsToGroupBy: 0,
		OverflowMode:     streamagg.OverflowThrow,
		DeltaColPos:      -1,
		KeepState:        true,
		Logger:           stderrLogger{},
	}

	if *presetPath != "" {
		preset, err := streamagg.LoadPreset(*presetPath)
		if err != nil {
			fatalf("loading preset: %s", err)
		}
		if err := preset.Apply(&p); err != nil {
			fatalf("applying preset: %s", err)
		}
	}
	if *spillDir != "" {
		p.TempDiskPath = *spillDir
	}

	aggFuncs := make([]streamagg.Func, len(p.Aggregates))
	for i, ad := range p.Aggregates {
		aggFuncs[i] = ad.Func
	}

	a, err := streamagg.NewAggregator(p, aggFuncs)
	if err != nil {
		fatalf("creating aggregator: %s", err)
	}

	fed := 0
	for fed < *rows {
		n := *batchSize
		if fed+n > *rows {
			n = *rows - fed
		}
		b := genBatch(n, *numKeys, fed)
		res, err := a.ExecuteBatch(b)
		if err != nil {
			fatalf("executing batch at row %d: %s", fed, err)
		}
		if res.Abort {
			fatalf("aggregation aborted at row %d (overflow)", fed)
		}
		fed += n
	}

	stats := a.Stats()
	fmt.Fprintf(os.Stderr, "fed %d rows in %d batches, %d groups created, %d overflowed\n",
		stats.RowsIn, stats.BatchesRun, stats.GroupsCreated, stats.Overflowed)

	if *checkpointPath != "" {
		f, err := os.Create(*checkpointPath)
		if err != nil {
			fatalf("creating checkpoint file: %s", err)
		}
		err = a.Checkpoint(f)
		f.Close()
		if err != nil {
			fatalf("checkpointing: %s", err)
		}
		f, err = os.Open(*checkpointPath)
		if err != nil {
			fatalf("reopening checkpoint file: %s", err)
		}
		defer f.Close()
		a, err = streamagg.Recover(f, p, aggFuncs)
		if err != nil {
			fatalf("recovering checkpoint: %s", err)
		}
	}

	if *spillDir != "" {
		path, err := a.Spill()
		if err != nil {
			fatalf("spilling: %s", err)
		}
		a, err = streamagg.Restore(path, p, aggFuncs)
		if err != nil {
			fatalf("restoring spill: %s", err)
		}
		os.Remove(path)
	}

	blocks, err := a.Convert(streamagg.ActionStreamingEmit, *workers)
	if err != nil {
		fatalf("converting: %s", err)
	}
	printBlocks(blocks)
}
