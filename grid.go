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
	"io"
	"os"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// Names of the coordinate variables every gridded dataset is
// expected to carry.
const (
	lonVar  = "lon"
	latVar  = "lat"
	timeVar = "time"
)

// timeEpoch is the reference time of the dataset convention: the time
// axis holds day offsets from 1900-01-01.
var timeEpoch = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// A Feature is one non-dimension variable of a gridded dataset, sampled
// over time and the spatial grid.
type Feature struct {
	// Var is the NetCDF variable name.
	Var string
	// Name is the display name derived from the variable's long_name
	// attribute, used for output column headers.
	Name string
	// Fill is the sentinel value marking missing samples; samples equal
	// to it are excluded from aggregates.
	Fill float32
}

// GridFile is a read-only adapter around a gridded NetCDF dataset.
type GridFile struct {
	f    *cdf.File
	file *os.File
	name string
}

// OpenGridFile opens the NetCDF dataset at filename for reading.
func OpenGridFile(filename string) (*GridFile, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("gridstat: opening dataset: %v", err)
	}
	f, err := cdf.Open(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("gridstat: reading dataset '%s': %v", filename, err)
	}
	return &GridFile{f: f, file: file, name: filename}, nil
}

// Close closes the underlying file.
func (g *GridFile) Close() error { return g.file.Close() }

// Name returns the path the dataset was opened from.
func (g *GridFile) Name() string { return g.name }

// lengths returns the dimension lengths of variable v with the record
// dimension, if any, resolved from the file size.
func (g *GridFile) lengths(v string) ([]int, error) {
	dims := g.f.Header.Lengths(v)
	if dims == nil {
		return nil, fmt.Errorf("gridstat: variable %s not in file %s", v, g.name)
	}
	out := make([]int, len(dims))
	copy(out, dims)
	if len(out) > 0 && out[0] == 0 && g.f.Header.IsRecordVariable(v) {
		fi, err := g.file.Stat()
		if err != nil {
			return nil, fmt.Errorf("gridstat: %v", err)
		}
		out[0] = int(g.f.Header.NumRecs(fi.Size()))
	}
	return out, nil
}

// Axis reads the full contents of the coordinate variable named name.
func (g *GridFile) Axis(name string) (*sparse.DenseArray, error) {
	dims, err := g.lengths(name)
	if err != nil {
		return nil, err
	}
	n := 1
	for _, d := range dims {
		n *= d
	}
	begin := make([]int, len(dims))
	r := g.f.Reader(name, begin, dims)
	buf := g.f.Header.ZeroValue(name, n)
	if _, err := r.Read(buf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("gridstat: reading variable %s from %s: %v", name, g.name, err)
	}
	data := sparse.ZerosDense(dims...)
	switch b := buf.(type) {
	case []float64:
		copy(data.Elements, b)
	case []float32:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	case []int32:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	case []int16:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("gridstat: variable %s in %s has unsupported type %T",
			name, g.name, buf)
	}
	return data, nil
}

// CoordinateAxes reads the dataset's 1-D longitude and latitude
// coordinate variables.
func (g *GridFile) CoordinateAxes() (lon, lat *sparse.DenseArray, err error) {
	if lon, err = g.Axis(lonVar); err != nil {
		return nil, nil, err
	}
	if lat, err = g.Axis(latVar); err != nil {
		return nil, nil, err
	}
	return lon, lat, nil
}

// TimeStamps reads the dataset's time axis and converts the day offsets
// to Unix epoch seconds.
func (g *GridFile) TimeStamps() ([]int64, error) {
	days, err := g.Axis(timeVar)
	if err != nil {
		return nil, err
	}
	stamps := make([]int64, len(days.Elements))
	for i, d := range days.Elements {
		stamps[i] = timeEpoch.AddDate(0, 0, int(d)).Unix()
	}
	return stamps, nil
}

// Features enumerates the dataset's non-dimension variables in declaration
// order. Every feature variable must be of NetCDF type float and declare
// long_name and _FillValue attributes; anything else is an error because
// the file does not match the assumed dataset convention.
func (g *GridFile) Features() ([]Feature, error) {
	dimNames := make(map[string]struct{})
	for _, d := range g.f.Header.Dimensions("") {
		dimNames[d] = struct{}{}
	}
	var features []Feature
	for _, v := range g.f.Header.Variables() {
		if _, ok := dimNames[v]; ok {
			continue
		}
		if _, ok := g.f.Header.ZeroValue(v, 1).([]float32); !ok {
			return nil, fmt.Errorf("gridstat: variable %s in %s is not of type float",
				v, g.name)
		}
		longName, ok := g.f.Header.GetAttribute(v, "long_name").(string)
		if !ok {
			return nil, fmt.Errorf("gridstat: variable %s in %s: long_name attribute not found",
				v, g.name)
		}
		fill, err := fillValue(g.f.Header.GetAttribute(v, "_FillValue"))
		if err != nil {
			return nil, fmt.Errorf("gridstat: variable %s in %s: %v", v, g.name, err)
		}
		features = append(features, Feature{
			Var:  v,
			Name: featureName(longName),
			Fill: fill,
		})
	}
	return features, nil
}

// fillValue converts a _FillValue attribute value to float32.
func fillValue(attr interface{}) (float32, error) {
	switch a := attr.(type) {
	case []float32:
		if len(a) > 0 {
			return a[0], nil
		}
	case []float64:
		if len(a) > 0 {
			return float32(a[0]), nil
		}
	case []int32:
		if len(a) > 0 {
			return float32(a[0]), nil
		}
	case []int16:
		if len(a) > 0 {
			return float32(a[0]), nil
		}
	case nil:
		return 0, fmt.Errorf("fill value not found")
	default:
		return 0, fmt.Errorf("unsupported fill value type %T", attr)
	}
	return 0, fmt.Errorf("fill value is empty")
}

func featureName(longName string) string {
	return strings.Replace(strings.ToLower(strings.TrimSpace(longName)), " ", "_", -1)
}

// GridShape returns the latitude and longitude dimension lengths of
// variable v, which must have time, latitude, and longitude dimensions,
// outermost first.
func (g *GridFile) GridShape(v string) (ny, nx int, err error) {
	dims, err := g.lengths(v)
	if err != nil {
		return 0, 0, err
	}
	if len(dims) != 3 {
		return 0, 0, fmt.Errorf("gridstat: variable %s in %s has %d dimensions; want 3",
			v, g.name, len(dims))
	}
	return dims[1], dims[2], nil
}

// ReadSlab reads the samples of variable v covering time steps
// [t0, t0+n) and the full spatial extent into vals, overwriting its
// previous contents. vals must hold at least n samples per time step
// times the spatial grid size.
func (g *GridFile) ReadSlab(v string, t0, n int, vals []float32) error {
	dims, err := g.lengths(v)
	if err != nil {
		return err
	}
	inner := 1
	for _, d := range dims[1:] {
		inner *= d
	}
	want := n * inner
	if want > len(vals) {
		return fmt.Errorf("gridstat: reading variable %s from %s: buffer holds %d samples; need %d",
			v, g.name, len(vals), want)
	}
	begin := make([]int, len(dims))
	end := make([]int, len(dims))
	begin[0], end[0] = t0, t0+n
	r := g.f.Reader(v, begin, end)
	nread, err := r.Read(vals[:want])
	if err != nil && err != io.EOF {
		return fmt.Errorf("gridstat: reading variable %s from %s: %v", v, g.name, err)
	}
	if nread != want {
		return fmt.Errorf("gridstat: reading variable %s from %s: read %d of %d samples",
			v, g.name, nread, want)
	}
	return nil
}

// Describe writes a summary of the dataset's dimensions, variables, and
// attributes to w.
func (g *GridFile) Describe(w io.Writer) error {
	dims := g.f.Header.Dimensions("")
	lens := g.f.Header.Lengths("")
	if _, err := fmt.Fprintf(w, "%s:\n", g.name); err != nil {
		return err
	}
	for i, d := range dims {
		if _, err := fmt.Fprintf(w, "  dimension %s = %d\n", d, lens[i]); err != nil {
			return err
		}
	}
	for _, v := range g.f.Header.Variables() {
		if _, err := fmt.Fprintf(w, "  variable %s (%s)\n",
			v, strings.Join(g.f.Header.Dimensions(v), ", ")); err != nil {
			return err
		}
		for _, a := range g.f.Header.Attributes(v) {
			if _, err := fmt.Fprintf(w, "    %s = %v\n",
				a, g.f.Header.GetAttribute(v, a)); err != nil {
				return err
			}
		}
	}
	return nil
}
