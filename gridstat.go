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

// Package gridstat matches the cells of regular latitude/longitude grids
// in NetCDF datasets to polygonal regions from shapefiles, and streams
// per-region minimum/maximum statistics of the gridded variables over
// time without holding a full time series in memory.
package gridstat

// Version gives the version number.
const Version = "0.3.0"
