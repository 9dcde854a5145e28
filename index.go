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
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/op"
	"github.com/ctessum/sparse"
)

// IndexConfig configures the spatial index builder.
type IndexConfig struct {
	// BufferSize is the number of candidate regions, ordered by centroid
	// distance, that are kept per grid cell for exact geometry testing.
	BufferSize int
	// ThreadCount is the number of parallel workers.
	ThreadCount int
}

// lonOffset maps dataset longitudes indexed on [0, 360) to the signed
// convention used by polygon datasets.
const lonOffset = 360.

// A candidate is a region paired with the distance from its centroid to
// the center of the grid cell under consideration.
type candidate struct {
	distance float64
	region   *Region
}

// BuildIndex determines, for every cell of the grid described by the lon
// and lat coordinate axes, which regions the cell belongs to, and writes
// one assignment line per match to w in the form "<x> <y> <region_id>".
// Cells are distributed over cfg.ThreadCount workers, so the emitted lines
// are not globally ordered.
func BuildIndex(cfg IndexConfig, regions []Region, lon, lat *sparse.DenseArray, w io.Writer) error {
	if len(lon.Elements) < 2 || len(lat.Elements) < 2 {
		return fmt.Errorf("gridstat: coordinate axes must have at least 2 values; have %d×%d",
			len(lon.Elements), len(lat.Elements))
	}
	lonDelta := lon.Elements[1] - lon.Elements[0]
	latDelta := lat.Elements[1] - lat.Elements[0]

	tasks := make(chan [2]int)
	results := make(chan Assignment)

	var matchErr error
	var matchErrOnce sync.Once

	var wg sync.WaitGroup
	for i := 0; i < cfg.ThreadCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buffer := make([]candidate, 0, cfg.BufferSize+1)
			for cell := range tasks {
				x, y := cell[0], cell[1]
				rect := cellRect(lon.Elements[x]-lonOffset, lat.Elements[y], lonDelta, latDelta)
				center := rect.Centroid()

				buffer = buffer[:0]
				for j := range regions {
					r := &regions[j]
					d := op.Distance(center, r.Centroid)

					// Find the insertion position, scanning backward
					// while the new distance is smaller than the tail.
					pos := len(buffer)
					for pos != 0 && d < buffer[pos-1].distance {
						pos--
					}
					if pos >= cfg.BufferSize {
						continue
					}
					buffer = append(buffer, candidate{})
					copy(buffer[pos+1:], buffer[pos:])
					buffer[pos] = candidate{distance: d, region: r}
					if len(buffer) > cfg.BufferSize {
						buffer = buffer[:cfg.BufferSize]
					}
				}

				for _, c := range buffer {
					match, err := regionMatchesCell(c.region.Boundary, rect)
					if err != nil {
						matchErrOnce.Do(func() {
							matchErr = fmt.Errorf("gridstat: testing cell (%d, %d) against region %s: %v",
								x, y, c.region.ID, err)
						})
						continue
					}
					if match {
						results <- Assignment{X: x, Y: y, ID: c.region.ID}
					}
				}
			}
		}()
	}

	// A single consumer owns the output stream.
	var writeErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		bw := bufio.NewWriter(w)
		for a := range results {
			if _, err := fmt.Fprintf(bw, "%d %d %s\n", a.X, a.Y, a.ID); err != nil && writeErr == nil {
				writeErr = err
			}
		}
		if err := bw.Flush(); err != nil && writeErr == nil {
			writeErr = err
		}
	}()

	for x := 0; x < len(lon.Elements); x++ {
		for y := 0; y < len(lat.Elements); y++ {
			tasks <- [2]int{x, y}
		}
	}
	close(tasks)
	wg.Wait()
	close(results)
	<-done

	if matchErr != nil {
		return matchErr
	}
	if writeErr != nil {
		return fmt.Errorf("gridstat: writing assignments: %v", writeErr)
	}
	return nil
}

// cellRect returns the geographic footprint of a grid cell whose
// lower-left corner is at (x, y).
func cellRect(x, y, dx, dy float64) geom.Polygon {
	return geom.Polygon{{
		{X: x, Y: y},
		{X: x + dx, Y: y},
		{X: x + dx, Y: y + dy},
		{X: x, Y: y + dy},
		{X: x, Y: y},
	}}
}

// regionMatchesCell reports whether the region boundary overlaps the cell
// rectangle, is contained by it, or contains it. Checking all three
// relations captures regions smaller than, larger than, and straddling a
// grid cell.
func regionMatchesCell(boundary, cell geom.Polygon) (bool, error) {
	if isect := boundary.Intersection(cell); isect.Area() > 0 {
		return true, nil
	}
	if in, err := op.Within(boundary, cell); in || err != nil {
		return in, err
	}
	return op.Within(cell, boundary)
}
