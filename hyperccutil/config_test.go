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
	"math"
	"testing"

	hypercc "github.com/TerpstraS/hyper-notebooks"
	"github.com/ctessum/unit"
	"github.com/kr/pretty"
)

func similar(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

func TestParseQuantity(t *testing.T) {
	year := hypercc.Year.Value()
	tests := []struct {
		in   string
		val  float64
		dims unit.Dimensions
	}{
		{in: "10 year", val: 10 * year, dims: unit.Second},
		{in: "2.5yr", val: 2.5 * year, dims: unit.Second},
		{in: "1 day", val: 86400, dims: unit.Second},
		{in: " 100 km ", val: 1e5, dims: unit.Meter},
		{in: "1e3 m", val: 1e3, dims: unit.Meter},
		{in: "0 km", val: 0, dims: unit.Meter},
		{in: "30 km/year", val: 30e3 / year, dims: unit.MeterPerSecond},
		{in: "1 KM/DAY", val: 1e3 / 86400, dims: unit.MeterPerSecond},
		{in: "-3 m/s", val: -3, dims: unit.MeterPerSecond},
	}
	for _, test := range tests {
		u, err := ParseQuantity(test.in)
		if err != nil {
			t.Errorf("%q: %v", test.in, err)
			continue
		}
		if !similar(u.Value(), test.val) {
			t.Errorf("%q: value = %g, want %g", test.in, u.Value(), test.val)
		}
		if err := u.Check(test.dims); err != nil {
			t.Errorf("%q: %v", test.in, err)
		}
	}

	for _, in := range []string{"", "year", "10", "10 parsecs", "ten km", "10 km km"} {
		if _, err := ParseQuantity(in); err == nil {
			t.Errorf("%q: expected an error", in)
		}
	}

	// The shared unit values are not modified.
	if _, err := ParseQuantity("5 year"); err != nil {
		t.Fatal(err)
	}
	if hypercc.Year.Value() != year {
		t.Error("ParseQuantity modified hypercc.Year")
	}
}

func TestToIntSliceE(t *testing.T) {
	want := []int{0, 5, 5}
	for _, in := range []interface{}{"[0,5,5]", "0,5,5", " [0, 5, 5] ", []int{0, 5, 5},
		[]interface{}{int64(0), int64(5), int64(5)}} {
		have, err := toIntSliceE(in)
		if err != nil {
			t.Errorf("%#v: %v", in, err)
			continue
		}
		if diff := pretty.Diff(have, want); len(diff) > 0 {
			t.Errorf("%#v: %v", in, diff)
		}
	}
	if _, err := toIntSliceE("[0,five]"); err == nil {
		t.Error("expected an error")
	}
}

func TestSettings(t *testing.T) {
	cfg := InitializeConfig()
	s, err := settings(cfg.Viper)
	if err != nil {
		t.Fatal(err)
	}
	year := hypercc.Year.Value()
	if s.Variable.Name != "tas" || s.Variable.Time != "time" || s.Month != 0 {
		t.Errorf("settings = %+v", s)
	}
	if s.Detector.TaperWidth != [3]int{0, 5, 5} || s.Detector.TaperIterations != 50 {
		t.Errorf("taper = %v, %d", s.Detector.TaperWidth, s.Detector.TaperIterations)
	}
	if !similar(s.Detector.SmoothingScales[0].Value(), 10*year) ||
		s.Detector.SmoothingScales[1].Value() != 1e5 || s.Detector.SmoothingScales[2].Value() != 1e5 {
		t.Errorf("smoothing = %v", s.Detector.SmoothingScales)
	}
	if !similar(s.DeltaT.Value(), 10*year) {
		t.Errorf("delta t = %v", s.DeltaT)
	}
	if err := s.DeltaD.Check(unit.Meter); err != nil || !similar(s.DeltaD.Value(), 3e5) {
		t.Errorf("delta d = %v (%v)", s.DeltaD, err)
	}
	if s.Detector.CalibrationQuartile != 3 || s.Detector.HysteresisUpper != 0.6 ||
		s.Detector.HysteresisLower != 0.3 || s.Detector.MinComponentSize != 100 ||
		s.Detector.GuardBand != 10 || s.Detector.ChunkMaxLength != 30 {
		t.Errorf("detector = %+v", s.Detector)
	}

	t.Setenv("HYPERCC_MONTH", "7")
	t.Setenv("HYPERCC_DATA", "/data")
	cfg = InitializeConfig()
	cfg.Set("InputFile", "$HYPERCC_DATA/tas.nc")
	cfg.Set("TaperWidth", "1,2,3")
	s, err = settings(cfg.Viper)
	if err != nil {
		t.Fatal(err)
	}
	if s.Month != 7 || s.InputFile != "/data/tas.nc" || s.Detector.TaperWidth != [3]int{1, 2, 3} {
		t.Errorf("month = %d, input = %s, taper = %v", s.Month, s.InputFile, s.Detector.TaperWidth)
	}
}

func TestSettingsErrors(t *testing.T) {
	tests := map[string]map[string]interface{}{
		"sigma t dimensions":  {"SigmaT": "10 km"},
		"sigma d dimensions":  {"SigmaD": "10 year"},
		"delta t":             {"SobelDeltaT": "ten years"},
		"scaling factor":      {"ScalingFactor": "30 km"},
		"month":               {"Month": 14},
		"taper width":         {"TaperWidth": []int{1, 2}},
		"taper width parsing": {"TaperWidth": "[1,x,3]"},
		"variable":            {"Variable": ""},
	}
	for name, vars := range tests {
		cfg := InitializeConfig()
		for k, v := range vars {
			cfg.Set(k, v)
		}
		if _, err := settings(cfg.Viper); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}
