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
	"fmt"
	"sort"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

// A Region is a named polygonal area that grid cells are matched against,
// for example an administrative boundary. Only the outer ring of the first
// polygon in each shapefile record is kept; holes and secondary polygons
// are dropped.
type Region struct {
	ID       string
	Centroid geom.Point
	Boundary geom.Polygon
}

// LoadRegions reads all records from the given polygon shapefile.
// idField names the string attribute that uniquely identifies each region.
// The returned regions are sorted by ID; a record with a missing or empty
// identifier or with degenerate geometry is an error.
func LoadRegions(filename, idField string) ([]Region, error) {
	d, err := shp.NewDecoder(filename)
	if err != nil {
		return nil, fmt.Errorf("gridstat: opening shapefile '%s': %v", filename, err)
	}
	defer d.Close()

	byID := make(map[string]Region)
	for {
		g, fields, more := d.DecodeRowFields(idField)
		if !more {
			break
		}
		id := strings.TrimSpace(fields[idField])
		if id == "" {
			return nil, fmt.Errorf("gridstat: shapefile '%s': record %d has an empty '%s' attribute",
				filename, len(byID), idField)
		}
		boundary, err := outerRing(g)
		if err != nil {
			return nil, fmt.Errorf("gridstat: shapefile '%s': region %s: %v", filename, id, err)
		}
		byID[id] = Region{
			ID:       id,
			Centroid: boundary.Centroid(),
			Boundary: boundary,
		}
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("gridstat: reading shapefile '%s': %v", filename, err)
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	regions := make([]Region, len(ids))
	for i, id := range ids {
		regions[i] = byID[id]
	}
	return regions, nil
}

// outerRing extracts the outer ring of the first polygon in g.
func outerRing(g geom.Geom) (geom.Polygon, error) {
	var p geom.Polygon
	switch t := g.(type) {
	case geom.Polygon:
		p = t
	case geom.MultiPolygon:
		if len(t) == 0 {
			return nil, fmt.Errorf("multipolygon has no polygons")
		}
		p = t[0]
	default:
		return nil, fmt.Errorf("unsupported geometry type %T", g)
	}
	if len(p) == 0 || len(p[0]) == 0 {
		return nil, fmt.Errorf("polygon has no rings")
	}
	return geom.Polygon{p[0]}, nil
}
