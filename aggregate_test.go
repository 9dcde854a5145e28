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
	"bytes"
	"fmt"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"
)

func writeIndexFile(t *testing.T, filename, contents string) {
	t.Helper()
	if err := ioutil.WriteFile(filename, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
}

// splitRecords separates an aggregation CSV into its header and its
// sorted data lines. Records are emitted by concurrent workers, so
// their order carries no meaning.
func splitRecords(t *testing.T, out string) (header string, records []string) {
	t.Helper()
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) == 0 {
		t.Fatal("empty output")
	}
	records = lines[1:]
	sort.Strings(records)
	return lines[0], records
}

func TestAggregate(t *testing.T) {
	dir, err := ioutil.TempDir("", "gridstat")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	index := filepath.Join(dir, "index.txt")
	writeIndexFile(t, index, "0 0 G1\n1 0 G1\n0 1 G2\n1 1 G2\n")

	data := filepath.Join(dir, "tmax.nc")
	writeTestDataset(t, data, []int32{0, 1}, []float64{50, 51}, []float64{370, 371},
		[]testVar{{name: "tmax", longName: "Maximum Temperature", fill: -9999,
			data: []float32{
				1, 3, 100, 200, // day 0, rows y=0 then y=1
				-9999, 3.5, 7, -2, // day 1
			}}})

	var buf bytes.Buffer
	cfg := DumpConfig{BufferSize: 1, ThreadCount: 2}
	if err := Aggregate(cfg, index, []string{data}, &buf); err != nil {
		t.Fatal(err)
	}

	header, records := splitRecords(t, buf.String())
	if want := "gis_join,timestamp,min_maximum_temperature,max_maximum_temperature"; header != want {
		t.Errorf("header: have %q, want %q", header, want)
	}
	want := []string{
		"G1,-2208902400,3.500,3.500", // fill sample excluded
		"G1,-2208988800,1.000,3.000",
		"G2,-2208902400,-2.000,7.000",
		"G2,-2208988800,100.000,200.000",
	}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("have %v, want %v", records, want)
	}
}

// A region whose every sample equals the fill value reports the
// initial sentinel extrema, unless SkipEmpty drops the record.
func TestAggregateAllFill(t *testing.T) {
	dir, err := ioutil.TempDir("", "gridstat")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	index := filepath.Join(dir, "index.txt")
	writeIndexFile(t, index, "0 0 G1\n1 1 G2\n")

	data := filepath.Join(dir, "tmax.nc")
	writeTestDataset(t, data, []int32{0}, []float64{50, 51}, []float64{370, 371},
		[]testVar{{name: "tmax", longName: "Maximum Temperature", fill: -9999,
			data: []float32{-9999, 0, 0, 2}}})

	var buf bytes.Buffer
	if err := Aggregate(DumpConfig{BufferSize: 1, ThreadCount: 1}, index, []string{data}, &buf); err != nil {
		t.Fatal(err)
	}
	_, records := splitRecords(t, buf.String())
	want := []string{
		fmt.Sprintf("G1,-2208988800,%.3f,%.3f", float32(math.MaxFloat32), float32(-math.MaxFloat32)),
		"G2,-2208988800,2.000,2.000",
	}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("have %v, want %v", records, want)
	}

	buf.Reset()
	cfg := DumpConfig{BufferSize: 1, ThreadCount: 1, SkipEmpty: true}
	if err := Aggregate(cfg, index, []string{data}, &buf); err != nil {
		t.Fatal(err)
	}
	_, records = splitRecords(t, buf.String())
	if want := []string{"G2,-2208988800,2.000,2.000"}; !reflect.DeepEqual(records, want) {
		t.Errorf("skip-empty: have %v, want %v", records, want)
	}
}

// The chunk size bounds memory but must not change the results: a
// 2-step buffer over a 5-step series produces the same records as a
// buffer holding the whole series.
func TestAggregateChunkInvariance(t *testing.T) {
	dir, err := ioutil.TempDir("", "gridstat")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	index := filepath.Join(dir, "index.txt")
	writeIndexFile(t, index, "0 0 G1\n1 0 G1\n0 1 G2\n")

	times := []int32{0, 1, 2, 3, 4}
	tmaxData := make([]float32, 5*2*2)
	prData := make([]float32, 5*2*2)
	for i := range tmaxData {
		tmaxData[i] = float32(i % 17)
		prData[i] = float32((i * 7) % 13)
	}
	tmax := filepath.Join(dir, "tmax.nc")
	writeTestDataset(t, tmax, times, []float64{50, 51}, []float64{370, 371},
		[]testVar{{name: "tmax", longName: "Maximum Temperature", fill: -9999, data: tmaxData}})
	pr := filepath.Join(dir, "pr.nc")
	writeTestDataset(t, pr, times, []float64{50, 51}, []float64{370, 371},
		[]testVar{{name: "pr", longName: "Precipitation", fill: -1, data: prData}})

	run := func(bufferSize int) (string, []string) {
		var buf bytes.Buffer
		cfg := DumpConfig{BufferSize: bufferSize, ThreadCount: 3}
		if err := Aggregate(cfg, index, []string{tmax, pr}, &buf); err != nil {
			t.Fatal(err)
		}
		return splitRecords(t, buf.String())
	}

	chunkedHeader, chunked := run(2)
	wholeHeader, whole := run(250)

	wantHeader := "gis_join,timestamp," +
		"min_maximum_temperature,max_maximum_temperature,min_precipitation,max_precipitation"
	if chunkedHeader != wantHeader {
		t.Errorf("header: have %q, want %q", chunkedHeader, wantHeader)
	}
	if chunkedHeader != wholeHeader {
		t.Errorf("headers differ: %q vs %q", chunkedHeader, wholeHeader)
	}
	if !reflect.DeepEqual(chunked, whole) {
		t.Errorf("chunked records differ from whole-series records:\n%v\nvs\n%v", chunked, whole)
	}
	if have, want := len(chunked), 2*len(times); have != want {
		t.Errorf("record count: have %d, want %d", have, want)
	}
}

func TestAggregateCellOutOfBounds(t *testing.T) {
	dir, err := ioutil.TempDir("", "gridstat")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	index := filepath.Join(dir, "index.txt")
	writeIndexFile(t, index, "5 0 G1\n")

	data := filepath.Join(dir, "tmax.nc")
	writeTestDataset(t, data, []int32{0}, []float64{50, 51}, []float64{370, 371},
		[]testVar{{name: "tmax", longName: "Maximum Temperature", fill: -9999,
			data: make([]float32, 4)}})

	var buf bytes.Buffer
	if err := Aggregate(DumpConfig{BufferSize: 1, ThreadCount: 1}, index, []string{data}, &buf); err == nil {
		t.Error("want an error for a cell outside the dataset grid")
	}
}
