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

package hyperccutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	hypercc "github.com/TerpstraS/hyper-notebooks"
	"github.com/ctessum/unit"
	"github.com/lnashier/viper"
	"github.com/spf13/cast"
)

// Settings holds the parsed configuration of a hypercc command.
type Settings struct {
	InputFile, ControlFile, OutputFile, CalibrationFile string

	Variable hypercc.VariableSpec

	// Month selects the time steps of one month (1-12) or the annual
	// means (hypercc.AnnualMeanMonth). 0 keeps every time step.
	Month int

	Detector hypercc.Config

	// DeltaT and DeltaD are the time and distance scales of the
	// physical Sobel operator.
	DeltaT, DeltaD *unit.Unit
}

// settings reads the command settings from cfg.
func settings(cfg *viper.Viper) (*Settings, error) {
	s := &Settings{
		InputFile:       os.ExpandEnv(cfg.GetString("InputFile")),
		ControlFile:     os.ExpandEnv(cfg.GetString("ControlFile")),
		OutputFile:      os.ExpandEnv(cfg.GetString("OutputFile")),
		CalibrationFile: os.ExpandEnv(cfg.GetString("CalibrationFile")),
		Variable: hypercc.VariableSpec{
			Name: os.ExpandEnv(cfg.GetString("Variable")),
			Lat:  os.ExpandEnv(cfg.GetString("LatName")),
			Lon:  os.ExpandEnv(cfg.GetString("LonName")),
			Time: os.ExpandEnv(cfg.GetString("TimeName")),
		},
		Month: cfg.GetInt("Month"),
	}
	if s.Variable.Name == "" {
		return nil, fmt.Errorf("hypercc: you need to specify the Variable configuration variable")
	}
	if s.Month < 0 || s.Month > hypercc.AnnualMeanMonth {
		return nil, fmt.Errorf("hypercc: Month=%d but should be between 0 and %d", s.Month, hypercc.AnnualMeanMonth)
	}

	d, err := detectorConfig(cfg)
	if err != nil {
		return nil, err
	}
	s.Detector = d

	s.DeltaT, err = parseQuantityVar(cfg, "SobelDeltaT", unit.Second)
	if err != nil {
		return nil, err
	}
	sf, err := parseQuantityVar(cfg, "ScalingFactor", unit.MeterPerSecond)
	if err != nil {
		return nil, err
	}
	s.DeltaD = unit.Mul(s.DeltaT, sf)
	return s, nil
}

// detectorConfig unmarshals the detector settings in cfg. Sobel weights
// and hysteresis thresholds are left for the caller to set.
func detectorConfig(cfg *viper.Viper) (hypercc.Config, error) {
	c := hypercc.DefaultConfig()
	width, err := toIntSliceE(cfg.Get("TaperWidth"))
	if err != nil {
		return c, fmt.Errorf("hypercc: TaperWidth: %v", err)
	}
	if len(width) != 3 {
		return c, fmt.Errorf("hypercc: TaperWidth needs 3 values (time, lat, lon) but has %d", len(width))
	}
	copy(c.TaperWidth[:], width)
	c.TaperIterations = cfg.GetInt("TaperIterations")

	sigmaT, err := parseQuantityVar(cfg, "SigmaT", unit.Second)
	if err != nil {
		return c, err
	}
	sigmaD, err := parseQuantityVar(cfg, "SigmaD", unit.Meter)
	if err != nil {
		return c, err
	}
	c.SmoothingScales = [3]*unit.Unit{sigmaT, sigmaD, sigmaD.Clone()}

	c.CalibrationQuartile = cfg.GetInt("CalibrationQuartile")
	c.HysteresisUpper = cfg.GetFloat64("HysteresisUpper")
	c.HysteresisLower = cfg.GetFloat64("HysteresisLower")
	c.MinComponentSize = cfg.GetInt("MinComponentSize")
	c.CutoffLength = cfg.GetInt("CutoffLength")
	c.ChunkMaxLength = cfg.GetInt("ChunkMaxLength")
	c.ChunkMinLength = cfg.GetInt("ChunkMinLength")
	c.GuardBand = cfg.GetInt("GuardBand")
	return c, nil
}

// parseQuantityVar parses the configuration variable name as a quantity
// with dimensions d.
func parseQuantityVar(cfg *viper.Viper, name string, d unit.Dimensions) (*unit.Unit, error) {
	u, err := ParseQuantity(os.ExpandEnv(cfg.GetString(name)))
	if err != nil {
		return nil, fmt.Errorf("hypercc: %s: %v", name, err)
	}
	if err := u.Check(d); err != nil {
		return nil, fmt.Errorf("hypercc: %s: %v", name, err)
	}
	return u, nil
}

var quantityPattern = regexp.MustCompile(`^\s*([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)\s*([A-Za-z/]+)\s*$`)

// quantityUnits are the unit names accepted by ParseQuantity, with their
// values in SI units.
var quantityUnits = map[string]*unit.Unit{
	"s":        unit.New(1, unit.Second),
	"second":   unit.New(1, unit.Second),
	"seconds":  unit.New(1, unit.Second),
	"day":      unit.New(86400, unit.Second),
	"days":     unit.New(86400, unit.Second),
	"yr":       hypercc.Year,
	"year":     hypercc.Year,
	"years":    hypercc.Year,
	"m":        unit.New(1, unit.Meter),
	"meter":    unit.New(1, unit.Meter),
	"meters":   unit.New(1, unit.Meter),
	"km":       hypercc.Kilometer,
	"m/s":      unit.New(1, unit.MeterPerSecond),
	"km/s":     unit.New(1000, unit.MeterPerSecond),
	"km/day":   unit.New(1000.0/86400, unit.MeterPerSecond),
	"km/yr":    unit.New(1000/hypercc.Year.Value(), unit.MeterPerSecond),
	"km/year":  unit.New(1000/hypercc.Year.Value(), unit.MeterPerSecond),
	"m/year":   unit.New(1/hypercc.Year.Value(), unit.MeterPerSecond),
	"m/yr":     unit.New(1/hypercc.Year.Value(), unit.MeterPerSecond),
	"m/day":    unit.New(1.0/86400, unit.MeterPerSecond),
	"meter/s":  unit.New(1, unit.MeterPerSecond),
	"meters/s": unit.New(1, unit.MeterPerSecond),
}

// ParseQuantity parses a physical quantity such as "10 year", "100 km" or
// "30 km/year" and returns it in SI units.
func ParseQuantity(s string) (*unit.Unit, error) {
	m := quantityPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("invalid quantity %q: should be a number followed by a unit, "+
			"for example \"10 year\"", s)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid quantity %q: %v", s, err)
	}
	u, ok := quantityUnits[strings.ToLower(m[2])]
	if !ok {
		return nil, fmt.Errorf("invalid quantity %q: unknown unit %q", s, m[2])
	}
	return unit.Mul(unit.New(v, unit.Dimless), u), nil
}

// toIntSliceE converts s to a slice of integers. s may be a list read from
// a configuration file or, if it was set from a command line argument or an
// environment variable, a string such as "[0,5,5]" or "0,5,5".
func toIntSliceE(s interface{}) ([]int, error) {
	str, ok := s.(string)
	if !ok {
		return cast.ToIntSliceE(s)
	}
	str = strings.TrimSpace(str)
	if !strings.HasPrefix(str, "[") {
		str = "[" + str + "]"
	}
	var o []int
	if err := json.Unmarshal([]byte(str), &o); err != nil {
		return nil, err
	}
	return o, nil
}

// checkInputFile makes sure that an input file is specified and exists.
func checkInputFile(name, f string) error {
	if f == "" {
		return fmt.Errorf("hypercc: you need to specify the %s configuration variable", name)
	}
	if _, err := os.Stat(f); err != nil {
		return fmt.Errorf("hypercc: %s: %v", name, err)
	}
	return nil
}

// checkOutputFile makes sure that an output file is specified and its
// directory exists.
func checkOutputFile(name, f string) error {
	if f == "" {
		return fmt.Errorf("hypercc: you need to specify the %s configuration variable", name)
	}
	if _, err := os.Stat(filepath.Dir(f)); err != nil {
		return fmt.Errorf("hypercc: the %s directory doesn't exist: %v", name, err)
	}
	return nil
}
