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

// Command gridstat is a command-line interface for matching gridded
// datasets to polygonal regions and aggregating statistics over them.
package main

import (
	"fmt"
	"os"

	"github.com/spatialstats/gridstat/gridstatutil"
)

func main() {
	if err := gridstatutil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
