/*
Copyright © 2019 the GridStat authors.
This file is part of GridStat.

GridStat is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

GridStat is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with GridStat.  If not, see <http://www.gnu.org/licenses/>.
*/

package gridstat

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// DumpConfig configures the streaming aggregation engine.
type DumpConfig struct {
	// BufferSize is the number of consecutive time steps held in memory
	// at once. Total resident data is
	// BufferSize × grid size × feature count samples, independent of the
	// length of the time series.
	BufferSize int
	// ThreadCount is the number of parallel workers.
	ThreadCount int
	// SkipEmpty omits output records for which no feature had a single
	// non-fill sample. When false such records report the float32
	// max/min sentinels unchanged.
	SkipEmpty bool
}

// completionPollInterval is how often the chunk driver re-checks the
// completion counter while draining in-flight tasks.
const completionPollInterval = 5 * time.Millisecond

// A featureBuffer couples one feature of one dataset with the reusable
// buffer its chunks are loaded into. The buffer is overwritten in place
// at every chunk; the engine's RWMutex and completion barrier keep the
// load phase and the workers' read phase apart.
type featureBuffer struct {
	Feature
	file   *GridFile
	ny, nx int
	vals   []float32
}

// An aggTask asks a worker to aggregate all features for one region at
// one time step of the currently loaded chunk.
type aggTask struct {
	local  int // time index within the chunk buffer
	global int // time index within the full series
	region int
}

// An aggRecord is one completed (region, time) aggregate: min and max
// per feature, in feature order.
type aggRecord struct {
	stamp  int64
	region int
	vals   []float32
	empty  bool
}

// Aggregate computes, for every region in the assignment file and every
// time step of the given datasets, the minimum and maximum of each
// dataset variable over the region's grid cells, and writes the results
// to w as CSV lines. Records are written as workers complete them and
// are not globally ordered.
func Aggregate(cfg DumpConfig, indexFile string, dataFiles []string, w io.Writer) error {
	f, err := os.Open(indexFile)
	if err != nil {
		return fmt.Errorf("gridstat: opening index file: %v", err)
	}
	regions, err := ReadAssignments(f)
	f.Close()
	if err != nil {
		return err
	}

	var stamps []int64
	var features []*featureBuffer
	for i, name := range dataFiles {
		g, err := OpenGridFile(name)
		if err != nil {
			return err
		}
		defer g.Close()
		if i == 0 {
			if stamps, err = g.TimeStamps(); err != nil {
				return err
			}
		}
		ff, err := g.Features()
		if err != nil {
			return err
		}
		for _, feat := range ff {
			ny, nx, err := g.GridShape(feat.Var)
			if err != nil {
				return err
			}
			if err := checkCellBounds(regions, g.Name(), ny, nx); err != nil {
				return err
			}
			features = append(features, &featureBuffer{
				Feature: feat,
				file:    g,
				ny:      ny,
				nx:      nx,
				vals:    make([]float32, cfg.BufferSize*ny*nx),
			})
		}
	}
	if len(features) == 0 {
		return fmt.Errorf("gridstat: no aggregatable variables in %v", dataFiles)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprint(bw, "gis_join,timestamp")
	for _, fb := range features {
		fmt.Fprintf(bw, ",min_%s,max_%s", fb.Name, fb.Name)
	}
	fmt.Fprintln(bw)

	// bufLock separates the sequential chunk-load phase (write lock)
	// from the parallel compute phase (read locks).
	var bufLock sync.RWMutex
	var completed int64

	tasks := make(chan aggTask)
	records := make(chan aggRecord)

	var wg sync.WaitGroup
	for i := 0; i < cfg.ThreadCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tk := range tasks {
				bufLock.RLock()
				records <- aggregateCells(regions[tk.region].Cells, features, tk, stamps)
				bufLock.RUnlock()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for rec := range records {
			if !(cfg.SkipEmpty && rec.empty) {
				if err := writeRecord(bw, regions[rec.region].ID, rec); err != nil {
					log.Printf("gridstat: dropping record for region %s: %v",
						regions[rec.region].ID, err)
				}
			}
			// Count even dropped records so the chunk barrier
			// cannot wait forever.
			atomic.AddInt64(&completed, 1)
		}
	}()

	var issued int64
	var loadErr error
	for t0 := 0; t0 < len(stamps); t0 += cfg.BufferSize {
		n := len(stamps) - t0
		if n > cfg.BufferSize {
			n = cfg.BufferSize
		}

		bufLock.Lock()
		for _, fb := range features {
			if err := fb.file.ReadSlab(fb.Var, t0, n, fb.vals); err != nil {
				loadErr = err
				break
			}
		}
		bufLock.Unlock()
		if loadErr != nil {
			break
		}

		for lt := 0; lt < n; lt++ {
			for r := range regions {
				tasks <- aggTask{local: lt, global: t0 + lt, region: r}
				issued++
			}
		}

		// The next chunk load overwrites the shared buffers, so block
		// until every task issued so far has been consumed.
		for atomic.LoadInt64(&completed) < issued {
			time.Sleep(completionPollInterval)
		}
	}

	close(tasks)
	wg.Wait()
	close(records)
	<-done

	if loadErr != nil {
		return loadErr
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("gridstat: writing records: %v", err)
	}
	return nil
}

// aggregateCells computes the per-feature extrema over the given cells at
// the task's time step. Samples equal to a feature's fill value are
// excluded; a feature with no non-fill samples keeps the initial
// sentinel extrema.
func aggregateCells(cells [][2]int, features []*featureBuffer, tk aggTask, stamps []int64) aggRecord {
	rec := aggRecord{
		stamp:  stamps[tk.global],
		region: tk.region,
		vals:   make([]float32, 0, 2*len(features)),
		empty:  true,
	}
	for _, fb := range features {
		min := float32(math.MaxFloat32)
		max := float32(-math.MaxFloat32)
		base := tk.local * fb.ny * fb.nx
		for _, c := range cells {
			v := fb.vals[base+c[1]*fb.nx+c[0]]
			if v == fb.Fill {
				continue
			}
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
			rec.empty = false
		}
		rec.vals = append(rec.vals, min, max)
	}
	return rec
}

func writeRecord(w io.Writer, id string, rec aggRecord) error {
	if _, err := fmt.Fprintf(w, "%s,%d", id, rec.stamp); err != nil {
		return err
	}
	for _, v := range rec.vals {
		if _, err := fmt.Fprintf(w, ",%.3f", v); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

// checkCellBounds verifies that every assigned cell lies inside the
// ny × nx grid of the named dataset.
func checkCellBounds(regions []RegionCells, name string, ny, nx int) error {
	for _, r := range regions {
		for _, c := range r.Cells {
			if c[0] < 0 || c[0] >= nx || c[1] < 0 || c[1] >= ny {
				return fmt.Errorf("gridstat: region %s: cell (%d, %d) is outside the %d×%d grid of %s",
					r.ID, c[0], c[1], nx, ny, name)
			}
		}
	}
	return nil
}
