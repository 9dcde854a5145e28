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
	"sort"
	"strconv"
	"strings"
)

// An Assignment records that grid cell (X, Y) belongs to the region
// with the given ID. X indexes the longitude axis and Y the latitude
// axis.
type Assignment struct {
	X, Y int
	ID   string
}

// RegionCells lists the grid cells assigned to one region.
type RegionCells struct {
	ID    string
	Cells [][2]int
}

// ReadAssignments parses assignment lines in the format written by
// BuildIndex and groups the cells by region. The result is independent of
// the order of the input lines: regions are sorted by ID and each cell
// list by (x, y). Blank lines are skipped; anything else that is not a
// well-formed triple is an error.
func ReadAssignments(r io.Reader) ([]RegionCells, error) {
	byID := make(map[string][][2]int)
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("gridstat: assignment line %d: want 3 fields; have %d",
				lineno, len(fields))
		}
		x, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("gridstat: assignment line %d: %v", lineno, err)
		}
		y, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("gridstat: assignment line %d: %v", lineno, err)
		}
		byID[fields[2]] = append(byID[fields[2]], [2]int{x, y})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("gridstat: reading assignments: %v", err)
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	regions := make([]RegionCells, len(ids))
	for i, id := range ids {
		cells := byID[id]
		sort.Slice(cells, func(a, b int) bool {
			if cells[a][0] != cells[b][0] {
				return cells[a][0] < cells[b][0]
			}
			return cells[a][1] < cells[b][1]
		})
		regions[i] = RegionCells{ID: id, Cells: cells}
	}
	return regions, nil
}
