/*
Copyright © 2022 the hypercc authors.
This file is part of hypercc.

hypercc is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

hypercc is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with hypercc.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package hyperccutil implements the hypercc command line interface.
package hyperccutil

import (
	"fmt"

	hypercc "github.com/TerpstraS/hyper-notebooks"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds the configuration and the commands of a hypercc program.
type Cfg struct {
	*viper.Viper

	Root, versionCmd, calibrateCmd, detectCmd, selectCmd *cobra.Command

	// Log receives the messages of the commands.
	Log *logrus.Logger

	options []option
}

type option struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

// InitializeConfig creates the commands and configuration options of
// hypercc.
func InitializeConfig() *Cfg {
	cfg := &Cfg{
		Viper: viper.New(),
		Log:   logrus.New(),
	}
	cfg.Log.Formatter = &logrus.TextFormatter{FullTimestamp: true}

	cfg.Root = &cobra.Command{
		Use:   "hypercc",
		Short: "An edge detector for abrupt shifts in climate model output.",
		Long: `hypercc finds abrupt shifts in gridded climate model output by treating
the (time, latitude, longitude) record as a volume and running a Canny edge
detector on it. Use the subcommands specified below to access the
functionality.

Refer to the subcommand documentation for configuration options and default
settings. Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using command-line
arguments, or by setting environment variables in the format 'HYPERCC_var'
where 'var' is the name of the variable to be set. File names may contain
environment variables.`,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return cfg.setConfig() },
	}

	cfg.versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Long:  "version prints the version number of this version of hypercc.",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("hypercc v%s\n", hypercc.Version)
		},
		DisableAutoGenTag: true,
	}

	cfg.calibrateCmd = &cobra.Command{
		Use:   "calibrate",
		Short: "Calibrate the detector on a control run.",
		Long: `calibrate computes the distribution of the time and space gradients of
a control run (ControlFile) and saves it to CalibrationFile, from which
detect derives the hysteresis thresholds and the space-time aspect ratio.`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings(cfg.Viper)
			if err != nil {
				return err
			}
			_, err = Calibrate(s, cfg.Log)
			return err
		},
	}

	cfg.detectCmd = &cobra.Command{
		Use:   "detect",
		Short: "Detect abrupt shifts.",
		Long: `detect finds edges in the variable of InputFile, labels them, scores their
abruptness and saves the results to OutputFile. The detector is calibrated on
ControlFile if it is given, or read from CalibrationFile otherwise. If neither
is given, HysteresisUpper and HysteresisLower are used with Sobel weights of
SobelDeltaT in time and SobelDeltaT times ScalingFactor in space.`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings(cfg.Viper)
			if err != nil {
				return err
			}
			_, err = Detect(s, cfg.Log)
			return err
		},
	}

	cfg.selectCmd = &cobra.Command{
		Use:   "select",
		Short: "Select one month or the annual means.",
		Long: `select saves the time steps of the given Month of the variable in
InputFile, or the annual means if Month is 13, to OutputFile.`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings(cfg.Viper)
			if err != nil {
				return err
			}
			if s.Month == 0 {
				return fmt.Errorf("hypercc: select needs a Month between 1 and %d", hypercc.AnnualMeanMonth)
			}
			return Select(s, cfg.Log)
		},
	}

	cfg.Root.AddCommand(cfg.versionCmd, cfg.calibrateCmd, cfg.detectCmd, cfg.selectCmd)

	all := []*pflag.FlagSet{cfg.calibrateCmd.Flags(), cfg.detectCmd.Flags(), cfg.selectCmd.Flags()}
	detector := []*pflag.FlagSet{cfg.calibrateCmd.Flags(), cfg.detectCmd.Flags()}

	cfg.options = []option{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum level of the log messages: one of
              debug, info, warning or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{cfg.Root.PersistentFlags()},
		},
		{
			name: "InputFile",
			usage: `
              InputFile is the path to the NetCDF file with the model
              output to be analyzed.`,
			shorthand:  "i",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.detectCmd.Flags(), cfg.selectCmd.Flags()},
		},
		{
			name: "ControlFile",
			usage: `
              ControlFile is the path to the NetCDF file with the control
              run used for calibration.`,
			defaultVal: "",
			flagsets:   detector,
		},
		{
			name: "CalibrationFile",
			usage: `
              CalibrationFile is the path where calibrate saves the
              calibration and where detect reads it from.`,
			defaultVal: "",
			flagsets:   detector,
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path where the results are saved.`,
			shorthand:  "o",
			defaultVal: "hypercc_output.nc",
			flagsets:   []*pflag.FlagSet{cfg.detectCmd.Flags(), cfg.selectCmd.Flags()},
		},
		{
			name: "Variable",
			usage: `
              Variable is the name of the (time, lat, lon) variable in
              the input files.`,
			shorthand:  "v",
			defaultVal: "tas",
			flagsets:   all,
		},
		{
			name: "LatName",
			usage: `
              LatName is the name of the latitude variable.`,
			defaultVal: "lat",
			flagsets:   all,
		},
		{
			name: "LonName",
			usage: `
              LonName is the name of the longitude variable.`,
			defaultVal: "lon",
			flagsets:   all,
		},
		{
			name: "TimeName",
			usage: `
              TimeName is the name of the time variable.`,
			defaultVal: "time",
			flagsets:   all,
		},
		{
			name: "Month",
			usage: `
              Month selects the time steps of one month (1-12) of the
              input files, or their annual means (13). 0 keeps every
              time step.`,
			shorthand:  "m",
			defaultVal: 0,
			flagsets:   all,
		},
		{
			name: "TaperWidth",
			usage: `
              TaperWidth is the width, in cells along time, latitude and
              longitude, of the window used to fill missing values.`,
			defaultVal: []int{0, 5, 5},
			flagsets:   detector,
		},
		{
			name: "TaperIterations",
			usage: `
              TaperIterations is the number of times missing values are
              filled.`,
			defaultVal: 50,
			flagsets:   detector,
		},
		{
			name: "SigmaT",
			usage: `
              SigmaT is the standard deviation of the Gaussian smoothing
              in time.`,
			defaultVal: "10 year",
			flagsets:   detector,
		},
		{
			name: "SigmaD",
			usage: `
              SigmaD is the standard deviation of the Gaussian smoothing
              in space.`,
			defaultVal: "100 km",
			flagsets:   detector,
		},
		{
			name: "SobelDeltaT",
			usage: `
              SobelDeltaT is the time scale of the Sobel operator.`,
			defaultVal: "10 year",
			flagsets:   detector,
		},
		{
			name: "ScalingFactor",
			usage: `
              ScalingFactor is the speed that converts SobelDeltaT into
              the distance scale of the Sobel operator for calibration, and
              for detection without calibration.`,
			defaultVal: "30 km/year",
			flagsets:   detector,
		},
		{
			name: "CalibrationQuartile",
			usage: `
              CalibrationQuartile selects the minimum (0), a quartile (1-3)
              or the maximum (4) of the control run gradients for
              calibration.`,
			defaultVal: 3,
			flagsets:   detector,
		},
		{
			name: "HysteresisUpper",
			usage: `
              HysteresisUpper is the upper threshold of the edge detector,
              used when it is not calibrated.`,
			defaultVal: 0.6,
			flagsets:   []*pflag.FlagSet{cfg.detectCmd.Flags()},
		},
		{
			name: "HysteresisLower",
			usage: `
              HysteresisLower is the lower threshold of the edge detector,
              used when it is not calibrated.`,
			defaultVal: 0.3,
			flagsets:   []*pflag.FlagSet{cfg.detectCmd.Flags()},
		},
		{
			name: "MinComponentSize",
			usage: `
              MinComponentSize is the size, in cells, up to which connected
              groups of edges are discarded.`,
			defaultVal: 100,
			flagsets:   []*pflag.FlagSet{cfg.detectCmd.Flags()},
		},
		{
			name: "CutoffLength",
			usage: `
              CutoffLength is the number of time steps on each side of an
              edge left out of the abruptness fits.`,
			defaultVal: 2,
			flagsets:   []*pflag.FlagSet{cfg.detectCmd.Flags()},
		},
		{
			name: "ChunkMaxLength",
			usage: `
              ChunkMaxLength is the largest number of time steps on each
              side of an edge used in the abruptness fits.`,
			defaultVal: 30,
			flagsets:   []*pflag.FlagSet{cfg.detectCmd.Flags()},
		},
		{
			name: "ChunkMinLength",
			usage: `
              ChunkMinLength is the smallest number of time steps on each
              side of an edge needed for its abruptness to be scored.`,
			defaultVal: 15,
			flagsets:   []*pflag.FlagSet{cfg.detectCmd.Flags()},
		},
		{
			name: "GuardBand",
			usage: `
              GuardBand is the number of time steps at each end of the
              record in which no edges are detected.`,
			defaultVal: 10,
			flagsets:   []*pflag.FlagSet{cfg.detectCmd.Flags()},
		},
	}

	// Set the prefix for configuration environment variables.
	cfg.SetEnvPrefix("HYPERCC")
	cfg.AutomaticEnv()

	for _, option := range cfg.options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case []int:
				set.IntSliceP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			default:
				panic("invalid argument type")
			}
			cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
	return cfg
}

// setConfig finds and reads in the configuration file, if there is one,
// and sets the log level.
func (cfg *Cfg) setConfig() error {
	if cfgpath := cfg.GetString("config"); cfgpath != "" {
		cfg.SetConfigFile(cfgpath)
		if err := cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("hypercc: problem reading configuration file: %v", err)
		}
	}
	level, err := logrus.ParseLevel(cfg.GetString("LogLevel"))
	if err != nil {
		return fmt.Errorf("hypercc: LogLevel: %v", err)
	}
	cfg.Log.SetLevel(level)
	return nil
}
