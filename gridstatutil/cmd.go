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

// Package gridstatutil holds the command-line interface for GridStat.
package gridstatutil

import (
	"fmt"
	"os"
	"time"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialstats/gridstat"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var logger *logrus.Logger

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	logger = logrus.StandardLogger()
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	// Options are the configuration options available to GridStat.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "thread-count",
			usage: `
              thread-count specifies the number of parallel workers used
              to process grid cells or (time, region) pairs.`,
			shorthand:  "t",
			defaultVal: 8,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "id-field",
			usage: `
              id-field names the shapefile attribute holding the unique
              string identifier of each region.`,
			defaultVal: "GEOID10",
			flagsets:   []*pflag.FlagSet{indexCmd.Flags()},
		},
		{
			name: "skip-empty",
			usage: `
              skip-empty omits output records for which every variable had
              only fill-value samples. By default such records report the
              float32 max/min sentinels unchanged.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{dumpCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("GRIDSTAT")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}

	// The buffer-size defaults differ between commands, so the flag is
	// registered per flag set and bound to the configuration when a
	// command runs.
	indexCmd.Flags().IntP("buffer-size", "b", 5, `
              buffer-size is the number of candidate regions kept per grid
              cell, ordered by centroid distance, for exact geometry tests.`)
	dumpCmd.Flags().IntP("buffer-size", "b", 250, `
              buffer-size is the number of consecutive time steps held in
              memory at once.`)

	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(indexCmd)
	Root.AddCommand(dumpCmd)
	Root.AddCommand(infoCmd)
}

// intOption returns the value of an integer option, converting from the
// string form that environment variables and configuration files may
// carry.
func intOption(name string) int {
	return cast.ToInt(Cfg.Get(name))
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("gridstat: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// bindBufferSize points the buffer-size configuration key at the flag of
// the command being run.
func bindBufferSize(cmd *cobra.Command, _ []string) error {
	return Cfg.BindPFlag("buffer-size", cmd.Flags().Lookup("buffer-size"))
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "gridstat",
	Short: "Per-region statistics of gridded datasets.",
	Long: `GridStat matches the cells of regular latitude/longitude grids in NetCDF
datasets to polygonal regions from shapefiles, and streams per-region
minimum/maximum statistics of the gridded variables over time.

Configuration can be changed by using a configuration file (and providing
the path to the file using the --config flag), by using command-line
arguments, or by setting environment variables in the format 'GRIDSTAT_var'
where 'var' is the name of the variable to be set.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of GridStat.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("GridStat v%s\n", gridstat.Version)
	},
	DisableAutoGenTag: true,
}

// indexCmd builds the spatial index between a polygon dataset and a grid.
var indexCmd = &cobra.Command{
	Use:   "index <shapefile> <gridfile>",
	Short: "Match grid cells to regions.",
	Long: `index determines, for every cell of the gridfile's coordinate grid, which
regions of the shapefile the cell belongs to, and prints one line per
assignment to standard output in the form '<x> <y> <region_id>'.`,
	Args:    cobra.ExactArgs(2),
	PreRunE: bindBufferSize,
	RunE: func(cmd *cobra.Command, args []string) error {
		regions, err := gridstat.LoadRegions(args[0], Cfg.GetString("id-field"))
		if err != nil {
			return err
		}
		logger.Infof("Loaded %d regions from %s.", len(regions), args[0])

		g, err := gridstat.OpenGridFile(args[1])
		if err != nil {
			return err
		}
		defer g.Close()
		lon, lat, err := g.CoordinateAxes()
		if err != nil {
			return err
		}
		logger.Infof("Indexing a %d×%d grid.", len(lon.Elements), len(lat.Elements))

		cfg := gridstat.IndexConfig{
			BufferSize:  intOption("buffer-size"),
			ThreadCount: intOption("thread-count"),
		}
		return gridstat.BuildIndex(cfg, regions, lon, lat, os.Stdout)
	},
	DisableAutoGenTag: true,
}

// dumpCmd streams per-region aggregates of one or more datasets.
var dumpCmd = &cobra.Command{
	Use:   "dump <index-file> <data-file>...",
	Short: "Stream per-region min/max statistics.",
	Long: `dump reads the assignments in index-file (as produced by 'gridstat index')
and prints, for every region and time step, the minimum and maximum of
each variable in the given data files over the region's grid cells, as
CSV lines on standard output. Time steps are processed in bounded-size
chunks so memory use is independent of the length of the time series.`,
	Args:    cobra.MinimumNArgs(2),
	PreRunE: bindBufferSize,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := gridstat.DumpConfig{
			BufferSize:  intOption("buffer-size"),
			ThreadCount: intOption("thread-count"),
			SkipEmpty:   Cfg.GetBool("skip-empty"),
		}
		return gridstat.Aggregate(cfg, args[0], args[1:], os.Stdout)
	},
	DisableAutoGenTag: true,
}

// infoCmd describes the contents of gridded datasets.
var infoCmd = &cobra.Command{
	Use:   "info <data-file>...",
	Short: "Describe gridded datasets.",
	Long: `info lists the dimensions, variables, and attributes of the given NetCDF
datasets.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range args {
			g, err := gridstat.OpenGridFile(name)
			if err != nil {
				return err
			}
			err = g.Describe(os.Stdout)
			g.Close()
			if err != nil {
				return err
			}
		}
		return nil
	},
	DisableAutoGenTag: true,
}
