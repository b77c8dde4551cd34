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

// Package workerpool runs a fixed-size fleet of goroutines over a
// fixed number of buckets, each goroutine pulling the next unclaimed
// bucket index off a shared cursor until none remain. It is the
// concurrency primitive behind per-bucket parallel conversion and
// merge (the engine's §4.F "per-bucket conversion may run in
// parallel across the bucket dimension").
package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Run fans out across n buckets using up to workers goroutines, each
// repeatedly claiming the next bucket via an atomic cursor rather
// than a fixed partition, so that goroutines which draw cheap
// buckets pick up more work instead of idling (work-stealing by
// cursor, grounded on tenant/dcache/worker.go's queue-pull pattern).
// fn is called exactly once per bucket in [0,n). If workers <= 0,
// runtime.GOMAXPROCS(0) is used.
func Run(n, workers int, fn func(bucket int)) {
	if n <= 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var cursor int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= n {
					return
				}
				fn(i)
			}
		}()
	}
	wg.Wait()
}

// RunErr is Run for functions that can fail; the error of the
// lowest-numbered failing bucket is returned after every goroutine
// has finished (work in
// flight is not cancelled early, matching the engine's rule that a
// bucket's conversion is never partially applied).
func RunErr(n, workers int, fn func(bucket int) error) error {
	if n <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}

	errs := make([]error, n)
	if workers <= 1 {
		for i := 0; i < n; i++ {
			errs[i] = fn(i)
		}
	} else {
		var cursor int64
		var wg sync.WaitGroup
		wg.Add(workers)
		for w := 0; w < workers; w++ {
			go func() {
				defer wg.Done()
				for {
					i := int(atomic.AddInt64(&cursor, 1)) - 1
					if i >= n {
						return
					}
					errs[i] = fn(i)
				}
			}()
		}
		wg.Wait()
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
