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

package hypercc

import (
	"errors"
	"testing"

	"github.com/ctessum/unit"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// stepConfig returns settings under which a jump of 10 in noise of 0.1
// is detected as a single edge cell.
func stepConfig() Config {
	cfg := DefaultConfig()
	cfg.TaperIterations = 0
	cfg.SmoothingScales = [3]*unit.Unit{years(2), nil, nil}
	cfg.SobelWeights = [3]*unit.Unit{years(1), km(10), km(10)}
	cfg.HysteresisUpper = 0.7
	cfg.HysteresisLower = 0.6
	cfg.MinComponentSize = 0
	return cfg
}

func TestDetector(t *testing.T) {
	g := testGrid(t, 60)
	f := stepField(g, 0.1, 10, 30, 1)
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	d, err := NewDetector(stepConfig(), nil, log)
	if err != nil {
		t.Fatal(err)
	}
	r, err := d.Run(g, f)
	if err != nil {
		t.Fatal(err)
	}
	if n := r.Edges.Count(); n != 1 {
		t.Fatalf("have %d edge cells, want 1", n)
	}
	var edge int
	for e, v := range r.Edges.Elements {
		if v {
			edge = e
		}
	}
	tt, i, j := edge/32, (edge/8)%4, edge%8
	if i != 1 || j != 3 || (tt != 29 && tt != 30) {
		t.Errorf("edge at (%d, %d, %d), want (29 or 30, 1, 3)", tt, i, j)
	}
	if len(r.Components) != 1 || r.Components[0].Size != 1 || r.Components[0].First != tt {
		t.Errorf("components = %+v", r.Components)
	}
	if s := r.Abruptness.Max.Get(1, 3); s < 10 {
		t.Errorf("abruptness = %g, want > 10", s)
	}
	if r.Abruptness.MaxIndex[1*8+3] != tt {
		t.Errorf("max abruptness index = %d, want %d", r.Abruptness.MaxIndex[1*8+3], tt)
	}
	if r.Smoothed == nil || r.Gradient == nil || r.Labels == nil {
		t.Error("missing intermediate results")
	}
	if f.Data.Elements[g.Index(30, 1, 3)] < 9 {
		t.Error("input field modified")
	}

	var summary, debug bool
	for _, e := range hook.AllEntries() {
		if e.Message == "hypercc: detection summary" {
			summary = true
			if e.Data["edge cells"] != 1 {
				t.Errorf("summary edge cells = %v", e.Data["edge cells"])
			}
			if e.Data["periodic"] != true || e.Data["bounds"] == nil {
				t.Errorf("summary grid = %v, %v", e.Data["periodic"], e.Data["bounds"])
			}
		}
		if e.Level == logrus.DebugLevel {
			debug = true
		}
	}
	if !summary || !debug {
		t.Errorf("summary logged: %v; steps logged: %v", summary, debug)
	}
}

func TestDetectorSmallComponents(t *testing.T) {
	g := testGrid(t, 60)
	cfg := stepConfig()
	cfg.MinComponentSize = DefaultConfig().MinComponentSize
	log, _ := test.NewNullLogger()
	d, err := NewDetector(cfg, nil, log)
	if err != nil {
		t.Fatal(err)
	}
	r, err := d.Run(g, stepField(g, 0.1, 10, 30, 1))
	if err != nil {
		t.Fatal(err)
	}
	if r.Edges.Count() == 0 {
		t.Fatal("step not detected")
	}
	if len(r.Components) != 0 {
		t.Errorf("have %d components, want 0", len(r.Components))
	}
	for i, v := range r.Abruptness.Max.Elements {
		if v != 0 {
			t.Errorf("abruptness %g at cell %d of a discarded component", v, i)
		}
	}
	if r.Abruptness.MaxIndex[1*8+3] != -1 {
		t.Errorf("max abruptness index = %d, want -1", r.Abruptness.MaxIndex[1*8+3])
	}
}

func TestLabelComponentsRegional(t *testing.T) {
	regional, err := NewGrid([]float64{-15, -5, 5, 15}, []float64{0, 10, 20, 30, 40, 50, 60, 70},
		yearly(1950, 5))
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []struct {
		g    *Grid
		want int
	}{
		{g: testGrid(t, 5), want: 1},
		{g: regional, want: 2},
	} {
		edges := NewMask(5, 4, 8)
		edges.Set(true, 2, 1, 0)
		edges.Set(true, 2, 1, 7)
		r := &Run{Grid: c.g, Edges: edges}
		if err := LabelComponents(0)(r); err != nil {
			t.Fatal(err)
		}
		if len(r.Components) != c.want {
			t.Errorf("periodic %v: have %d components, want %d",
				c.g.Periodic(), len(r.Components), c.want)
		}
	}
}

func TestDetectorNoEdges(t *testing.T) {
	g := testGrid(t, 60)
	f := noiseField(g, 0.1, 2)
	log, _ := test.NewNullLogger()
	d, err := NewDetector(stepConfig(), nil, log)
	if err != nil {
		t.Fatal(err)
	}
	r, err := d.Run(g, f)
	if err != nil {
		t.Fatal(err)
	}
	if n := r.Edges.Count(); n != 0 {
		t.Errorf("have %d edge cells in noise, want 0", n)
	}
	if len(r.Components) != 0 {
		t.Errorf("have %d components", len(r.Components))
	}
}

func TestDetectorCalibrated(t *testing.T) {
	g := testGrid(t, 60)
	control := noiseField(g, 0.1, 3)
	cfg := DefaultConfig()
	cfg.SmoothingScales = [3]*unit.Unit{years(2), km(500), km(500)}
	smoothed, err := SmoothControl(cfg, g, control)
	if err != nil {
		t.Fatal(err)
	}
	c, err := Calibrate(cfg.CalibrationQuartile, g, smoothed, Year, unit.Mul(Kilometer, unit.New(100, unit.Dimless)))
	if err != nil {
		t.Fatal(err)
	}
	cfg = c.Apply(cfg, Year)
	cfg.MinComponentSize = 0
	log, _ := test.NewNullLogger()
	d, err := NewDetector(cfg, nil, log)
	if err != nil {
		t.Fatal(err)
	}
	r, err := d.Run(g, stepField(g, 0.1, 10, 30, 4))
	if err != nil {
		t.Fatal(err)
	}
	for e, v := range r.Edges.Elements {
		if tt := e / 32; v && (tt < cfg.GuardBand || tt >= 60-cfg.GuardBand) {
			t.Errorf("edge in guard band at time step %d", tt)
		}
	}
	if !r.Edges.Get(30, 1, 3) && !r.Edges.Get(29, 1, 3) {
		t.Error("step not detected")
	}

	if _, err := SmoothControl(cfg, g, nil); !errors.Is(err, ErrNoControl) {
		t.Errorf("err = %v, want ErrNoControl", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := stepConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	cfg = DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("default config without thresholds should not be valid")
	}
	tests := map[string]func(c *Config){
		"taper width":      func(c *Config) { c.TaperWidth[1] = -1 },
		"taper iterations": func(c *Config) { c.TaperIterations = -1 },
		"smoothing":        func(c *Config) { c.SmoothingScales[0] = km(1) },
		"negative scale":   func(c *Config) { c.SmoothingScales[2] = km(-1) },
		"weights":          func(c *Config) { c.SobelWeights[1] = nil },
		"quartile":         func(c *Config) { c.CalibrationQuartile = 5 },
		"thresholds":       func(c *Config) { c.HysteresisLower = 1 },
		"guard band":       func(c *Config) { c.GuardBand = -1 },
		"min size":         func(c *Config) { c.MinComponentSize = -1 },
		"chunk":            func(c *Config) { c.ChunkMinLength = 40 },
	}
	for name, modify := range tests {
		c := stepConfig()
		modify(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected an error", name)
		}
		if _, err := NewDetector(c, nil, nil); err == nil {
			t.Errorf("%s: NewDetector accepted an invalid config", name)
		}
	}
}

func TestDetectorErrors(t *testing.T) {
	g := testGrid(t, 60)
	d, err := NewDetector(stepConfig(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	f := NewField(testGrid(t, 59))
	if _, err := d.Run(g, f); !errors.Is(err, ErrShape) {
		t.Errorf("err = %v, want ErrShape", err)
	}

	fail := errors.New("step failed")
	d.Steps = append([]Step{func(*Run) error { return fail }}, d.Steps...)
	if _, err := d.Run(g, NewField(g)); !errors.Is(err, fail) {
		t.Errorf("err = %v, want the step error", err)
	}

	// Steps that depend on earlier results fail without them.
	for _, s := range []Step{ComputeGradient([3]*unit.Unit{}), EdgeDetection(nil, HysteresisParams{}),
		LabelComponents(0), ScoreAbruptness(AbruptnessParams{})} {
		d := &Detector{Steps: []Step{s}, Log: logrus.New()}
		if _, err := d.Run(g, NewField(g)); err == nil {
			t.Error("expected an error")
		}
	}
}
