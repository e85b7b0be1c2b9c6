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
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/ctessum/unit"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Calibration holds the distribution of the gradients of a control run,
// which is used to choose the hysteresis thresholds and the aspect ratio
// between space and time for the detection run. Index q of each array
// holds the minimum (0), the quartiles (1-3) or the maximum (4).
type Calibration struct {
	// Quartile is the index of the summary statistic used for the
	// thresholds and the aspect ratio.
	Quartile int

	// Time is the distribution of the magnitude of the time gradient
	// [field units per second].
	Time [5]float64

	// Distance is the distribution of the magnitude of the spatial
	// gradient [field units per meter].
	Distance [5]float64

	// Gamma is Time/Distance for each entry: the speed [m/s] at which a
	// typical spatial gradient moves to produce a typical time gradient.
	Gamma [5]float64
}

// Calibrate computes the gradient distribution of the smoothed control
// field with a physical Sobel operator with weights (deltaT, deltaD, deltaD)
// and returns the calibration for the given quartile index (0 to 4). Masked
// and non-finite cells of the control field are left out of the
// distribution.
func Calibrate(quartile int, g *Grid, control *Field, deltaT, deltaD *unit.Unit) (*Calibration, error) {
	if quartile < 0 || quartile > 4 {
		return nil, fmt.Errorf("hypercc: calibration quartile %d: %w", quartile, ErrQuartile)
	}
	if control == nil || control.Data == nil {
		return nil, fmt.Errorf("hypercc: %w", ErrNoControl)
	}
	if err := checkPositive("calibration time scale", deltaT, unit.Second); err != nil {
		return nil, err
	}
	if err := checkPositive("calibration distance scale", deltaD, unit.Meter); err != nil {
		return nil, err
	}
	sb, err := SobelFilter(g, control, Weights([3]*unit.Unit{deltaT, deltaD, deltaD}))
	if err != nil {
		return nil, fmt.Errorf("hypercc: calibration: %w", err)
	}

	dt, dd := deltaT.Value(), deltaD.Value()
	var tgrad, dgrad []float64
	for i := range control.Data.Elements {
		if control.Invalid(i) {
			continue
		}
		t := math.Abs(sb.Raw(0, i)) / dt
		d := math.Hypot(sb.Raw(1, i), sb.Raw(2, i)) / dd
		if math.IsNaN(t) || math.IsInf(t, 0) || math.IsNaN(d) || math.IsInf(d, 0) {
			continue
		}
		tgrad = append(tgrad, t)
		dgrad = append(dgrad, d)
	}
	if len(tgrad) == 0 {
		return nil, fmt.Errorf("hypercc: control run has no valid cells: %w", ErrDegenerateCalibration)
	}

	c := &Calibration{
		Quartile: quartile,
		Time:     fiveNumber(tgrad),
		Distance: fiveNumber(dgrad),
	}
	c.setGamma()
	if err := c.check(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Calibration) setGamma() {
	for q := range c.Gamma {
		c.Gamma[q] = c.Time[q] / c.Distance[q]
	}
}

func (c *Calibration) check() error {
	if c.Quartile < 0 || c.Quartile > 4 {
		return fmt.Errorf("hypercc: calibration quartile %d: %w", c.Quartile, ErrQuartile)
	}
	g := c.Gamma[c.Quartile]
	if !(g > 0) || math.IsInf(g, 0) {
		return fmt.Errorf("hypercc: aspect ratio %g at quartile %d (time gradient %g, "+
			"distance gradient %g): %w", g, c.Quartile, c.Time[c.Quartile],
			c.Distance[c.Quartile], ErrDegenerateCalibration)
	}
	return nil
}

// fiveNumber returns the minimum, the three quartiles and the maximum of x.
// x is sorted in place.
func fiveNumber(x []float64) [5]float64 {
	sort.Float64s(x)
	return [5]float64{
		floats.Min(x),
		stat.Quantile(0.25, stat.LinInterp, x, nil),
		stat.Quantile(0.5, stat.LinInterp, x, nil),
		stat.Quantile(0.75, stat.LinInterp, x, nil),
		floats.Max(x),
	}
}

// ScalingFactor returns the calibrated aspect ratio between space and time.
func (c *Calibration) ScalingFactor() *unit.Unit {
	return unit.New(c.Gamma[c.Quartile], unit.MeterPerSecond)
}

// Thresholds returns the upper and lower hysteresis thresholds for a Sobel
// operator with weights c.Weights(deltaT): the magnitude of a gradient
// whose time and spatial parts are both at the calibration quartile, and
// half of that.
func (c *Calibration) Thresholds(deltaT *unit.Unit) (upper, lower float64) {
	q := c.Quartile
	upper = math.Hypot(c.Distance[q]*c.Gamma[q], c.Time[q]) * deltaT.Value()
	return upper, upper / 2
}

// Weights returns the calibrated Sobel weights for the given time scale:
// deltaT for time and deltaT times the scaling factor for both spatial axes.
func (c *Calibration) Weights(deltaT *unit.Unit) [3]*unit.Unit {
	d := unit.Mul(deltaT, c.ScalingFactor())
	return [3]*unit.Unit{deltaT.Clone(), d, d.Clone()}
}

// Apply returns a copy of cfg with the Sobel weights and hysteresis
// thresholds set from the calibration.
func (c *Calibration) Apply(cfg Config, deltaT *unit.Unit) Config {
	cfg.CalibrationQuartile = c.Quartile
	cfg.SobelWeights = c.Weights(deltaT)
	cfg.HysteresisUpper, cfg.HysteresisLower = c.Thresholds(deltaT)
	return cfg
}

// calibrationFile is the on-disk form of a Calibration. Gamma is derived
// and may be infinite, so it is not stored.
type calibrationFile struct {
	Quartile int
	Time     []float64
	Distance []float64
}

// WriteCalibration writes c to w in TOML format.
func WriteCalibration(w io.Writer, c *Calibration) error {
	f := calibrationFile{
		Quartile: c.Quartile,
		Time:     c.Time[:],
		Distance: c.Distance[:],
	}
	if err := toml.NewEncoder(w).Encode(f); err != nil {
		return fmt.Errorf("hypercc: writing calibration: %v", err)
	}
	return nil
}

// ReadCalibration reads a calibration written by WriteCalibration.
func ReadCalibration(r io.Reader) (*Calibration, error) {
	var f calibrationFile
	if _, err := toml.DecodeReader(r, &f); err != nil {
		return nil, fmt.Errorf("hypercc: reading calibration: %v", err)
	}
	if len(f.Time) != 5 || len(f.Distance) != 5 {
		return nil, fmt.Errorf("hypercc: reading calibration: want 5 time and distance "+
			"values, have %d and %d", len(f.Time), len(f.Distance))
	}
	c := &Calibration{Quartile: f.Quartile}
	copy(c.Time[:], f.Time)
	copy(c.Distance[:], f.Distance)
	c.setGamma()
	if err := c.check(); err != nil {
		return nil, err
	}
	return c, nil
}

// checkPositive returns an error if u is nil, not positive or does not
// have dimensions d.
func checkPositive(name string, u *unit.Unit, d unit.Dimensions) error {
	if u == nil {
		return fmt.Errorf("hypercc: %s is missing: %w", name, ErrScale)
	}
	if err := u.Check(d); err != nil {
		return fmt.Errorf("hypercc: %s: %v: %w", name, err, ErrScale)
	}
	if !(u.Value() > 0) || math.IsInf(u.Value(), 0) {
		return fmt.Errorf("hypercc: %s %v must be positive: %w", name, u, ErrScale)
	}
	return nil
}
