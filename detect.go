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
	"time"

	"github.com/ctessum/unit"
	"github.com/sirupsen/logrus"
)

// Config holds the settings of the edge detector.
type Config struct {
	// TaperWidth is the width, in cells along the (time, lat, lon) axes,
	// of the window used to fill masked cells before smoothing.
	TaperWidth [3]int

	// TaperIterations is the number of times the masked cells are filled.
	TaperIterations int

	// SmoothingScales are the standard deviations of the Gaussian filter
	// along the (time, lat, lon) axes.
	SmoothingScales [3]*unit.Unit

	// SobelWeights are the physical weights of the gradient along the
	// (time, lat, lon) axes, usually (Δt, Δt·γ, Δt·γ) for a time scale
	// Δt and a scaling factor γ. If all are nil the gradient is per pixel.
	SobelWeights [3]*unit.Unit

	// CalibrationQuartile is the index (0-4) of the control-run gradient
	// distribution that is used for calibration.
	CalibrationQuartile int

	// HysteresisUpper and HysteresisLower are the thresholds on the weighted
	// gradient magnitude of the hysteresis edge detection.
	HysteresisUpper, HysteresisLower float64

	// MinComponentSize is the size, in cells, up to which connected edge
	// components are discarded.
	MinComponentSize int

	CutoffLength   int
	ChunkMaxLength int
	ChunkMinLength int

	// GuardBand is the number of time steps at each end of the record in
	// which edges are not detected.
	GuardBand int
}

// DefaultConfig returns the default configuration. Thresholds and Sobel
// weights are not set; they come from calibration or the user.
func DefaultConfig() Config {
	return Config{
		TaperWidth:      [3]int{0, 5, 5},
		TaperIterations: 50,
		SmoothingScales: [3]*unit.Unit{
			unit.New(10*secondsPerYear, unit.Second),
			unit.New(100e3, unit.Meter),
			unit.New(100e3, unit.Meter),
		},
		CalibrationQuartile: 3,
		MinComponentSize:    100,
		CutoffLength:        2,
		ChunkMaxLength:      30,
		ChunkMinLength:      15,
		GuardBand:           10,
	}
}

func (c *Config) hysteresis() HysteresisParams {
	return HysteresisParams{Upper: c.HysteresisUpper, Lower: c.HysteresisLower, GuardBand: c.GuardBand}
}

func (c *Config) abruptness() AbruptnessParams {
	return AbruptnessParams{
		CutoffLength:   c.CutoffLength,
		ChunkMaxLength: c.ChunkMaxLength,
		ChunkMinLength: c.ChunkMinLength,
	}
}

// Validate returns an error if c is not a valid configuration.
func (c *Config) Validate() error {
	for k, w := range c.TaperWidth {
		if w < 0 {
			return fmt.Errorf("hypercc: negative %s taper width %d", axisNames[k], w)
		}
	}
	if c.TaperIterations < 0 {
		return fmt.Errorf("hypercc: negative number of taper iterations %d", c.TaperIterations)
	}
	dims := [3]unit.Dimensions{unit.Second, unit.Meter, unit.Meter}
	for k, s := range c.SmoothingScales {
		if s == nil {
			continue
		}
		if err := s.Check(dims[k]); err != nil {
			return fmt.Errorf("hypercc: %s smoothing scale: %v: %w", axisNames[k], err, ErrScale)
		}
		if s.Value() < 0 {
			return fmt.Errorf("hypercc: %s smoothing scale %v is negative: %w", axisNames[k], s, ErrScale)
		}
	}
	if c.weighted() {
		for k, w := range c.SobelWeights {
			if err := checkPositive(axisNames[k]+" sobel weight", w, dims[k]); err != nil {
				return err
			}
		}
	}
	if c.CalibrationQuartile < 0 || c.CalibrationQuartile > 4 {
		return fmt.Errorf("hypercc: calibration quartile %d: %w", c.CalibrationQuartile, ErrQuartile)
	}
	if err := c.hysteresis().check(); err != nil {
		return err
	}
	if c.MinComponentSize < 0 {
		return fmt.Errorf("hypercc: negative minimum component size %d", c.MinComponentSize)
	}
	return c.abruptness().check()
}

func (c *Config) weighted() bool {
	for _, w := range c.SobelWeights {
		if w != nil {
			return true
		}
	}
	return false
}

// Run holds the state of one detection run. Each step reads the results
// of the steps before it and adds its own.
type Run struct {
	Grid  *Grid
	Input *Field

	Tapered    *Field
	Smoothed   *Field
	Gradient   *Gradient
	Edges      *Mask
	Labels     *Labels
	Sizes      []int // component sizes before filtering
	Components []Component
	Abruptness *AbruptnessField

	Log logrus.FieldLogger
}

// Step is one stage of a detection run.
type Step func(*Run) error

// Result holds the results of a detection run.
type Result struct {
	Smoothed   *Field
	Gradient   *Gradient
	Edges      *Mask
	Labels     *Labels
	Components []Component
	Abruptness *AbruptnessField
}

// Detector runs a sequence of steps on a field.
type Detector struct {
	Steps []Step

	// Log receives progress information. It defaults to
	// logrus.StandardLogger().
	Log logrus.FieldLogger
}

// NewDetector returns a detector that tapers, smooths, differentiates,
// detects edges, labels them and scores their abruptness according to cfg,
// using kernel for the hysteresis edge detection. A nil kernel means the
// canny kernel, periodic in longitude if the grid is, and a nil log means
// logrus.StandardLogger().
func NewDetector(cfg Config, kernel EdgeKernel, log logrus.FieldLogger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		Steps: []Step{
			TaperMaskedArea(cfg.TaperWidth, cfg.TaperIterations),
			Smooth(cfg.SmoothingScales),
			ComputeGradient(cfg.SobelWeights),
			EdgeDetection(kernel, cfg.hysteresis()),
			LabelComponents(cfg.MinComponentSize),
			ScoreAbruptness(cfg.abruptness()),
			LogProgress(),
		},
		Log: log,
	}, nil
}

// Run runs the steps of d in order on field f with grid g. It stops at the
// first error.
func (d *Detector) Run(g *Grid, f *Field) (*Result, error) {
	if err := g.checkRectangular(); err != nil {
		return nil, err
	}
	if err := f.Check(g); err != nil {
		return nil, err
	}
	log := d.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Run{Grid: g, Input: f.Copy(), Log: log}
	start := time.Now()
	for i, s := range d.Steps {
		stepStart := time.Now()
		if err := s(r); err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{
			"step":     i + 1,
			"of":       len(d.Steps),
			"duration": time.Since(stepStart),
		}).Debug("hypercc: step finished")
	}
	log.WithField("duration", time.Since(start)).Info("hypercc: detection finished")
	return &Result{
		Smoothed:   r.Smoothed,
		Gradient:   r.Gradient,
		Edges:      r.Edges,
		Labels:     r.Labels,
		Components: r.Components,
		Abruptness: r.Abruptness,
	}, nil
}

// TaperMaskedArea returns a step that fills the masked cells of the input.
// See Taper.
func TaperMaskedArea(width [3]int, iterations int) Step {
	return func(r *Run) error {
		r.Tapered = Taper(r.Input, width, iterations)
		return nil
	}
}

// Smooth returns a step that smooths the tapered field, or the input if
// there is no tapered field. See GaussianFilter.
func Smooth(sigma [3]*unit.Unit) Step {
	return func(r *Run) error {
		in := r.Tapered
		if in == nil {
			in = r.Input
		}
		s, err := GaussianFilter(r.Grid, in, sigma)
		if err != nil {
			return err
		}
		r.Smoothed = s
		return nil
	}
}

// ComputeGradient returns a step that computes the gradient of the smoothed
// field. Edges are thinned along the gradient direction on the pixel grid
// and thresholded on the magnitude of the gradient weighted by weights, so
// both are computed and combined. If all weights are nil the magnitude is
// per pixel.
func ComputeGradient(weights [3]*unit.Unit) Step {
	return func(r *Run) error {
		if r.Smoothed == nil {
			return fmt.Errorf("hypercc: gradient requires a smoothed field")
		}
		var opts []SobelOption
		for _, w := range weights {
			if w != nil {
				opts = append(opts, Weights(weights))
				break
			}
		}
		physical, err := SobelFilter(r.Grid, r.Smoothed, opts...)
		if err != nil {
			return err
		}
		pixel, err := SobelFilter(r.Grid, r.Smoothed, Physical(false))
		if err != nil {
			return err
		}
		r.Gradient = CombineGradients(physical, pixel)
		return nil
	}
}

// EdgeDetection returns a step that finds the edges in the gradient.
// See DetectEdges.
func EdgeDetection(kernel EdgeKernel, p HysteresisParams) Step {
	return func(r *Run) error {
		if r.Gradient == nil {
			return fmt.Errorf("hypercc: edge detection requires a gradient")
		}
		k := kernel
		if k == nil {
			k = gridKernel(r.Grid)
		}
		e, err := DetectEdges(r.Gradient, r.Input.Mask, k, p)
		if err != nil {
			return err
		}
		r.Edges = e
		return nil
	}
}

// LabelComponents returns a step that labels the connected edge components
// and discards the ones with no more than minSize cells. Longitude wraps
// around on periodic grids.
func LabelComponents(minSize int) Step {
	return func(r *Run) error {
		if r.Edges == nil {
			return fmt.Errorf("hypercc: labeling requires edges")
		}
		var l *Labels
		l, r.Sizes = Label(r.Edges, r.Grid.Periodic())
		r.Labels = FilterComponents(l, r.Sizes, minSize)
		r.Components = Components(r.Labels, r.Grid)
		return nil
	}
}

// ScoreAbruptness returns a step that computes the abruptness of every
// edge cell from the input field. Once the edges are labeled, only the
// cells of the kept components are scored. See Abruptness.
func ScoreAbruptness(p AbruptnessParams) Step {
	return func(r *Run) error {
		if r.Edges == nil {
			return fmt.Errorf("hypercc: abruptness requires edges")
		}
		a, err := Abruptness(r.Grid, r.Input, keptEdges(r), p)
		if err != nil {
			return err
		}
		r.Abruptness = a
		return nil
	}
}

// keptEdges returns the edge cells that belong to a kept component, or
// every edge cell if the edges have not been labeled.
func keptEdges(r *Run) *Mask {
	if r.Labels == nil {
		return r.Edges
	}
	m := NewMask(r.Edges.Shape...)
	for i, id := range r.Labels.Elements {
		m.Elements[i] = id != 0
	}
	return m
}

// LogProgress returns a step that logs a summary of the run so far.
func LogProgress() Step {
	return func(r *Run) error {
		fields := logrus.Fields{
			"shape":    r.Grid.Shape(),
			"bounds":   r.Grid.Bounds(),
			"periodic": r.Grid.Periodic(),
		}
		if r.Edges != nil {
			fields["edge cells"] = r.Edges.Count()
		}
		if r.Sizes != nil {
			fields["components"] = len(r.Sizes) - 1
			fields["kept components"] = len(r.Components)
		}
		if r.Abruptness != nil {
			var n int
			var max float64
			for _, v := range r.Abruptness.Max.Elements {
				if v > 0 {
					n++
				}
				if v > max {
					max = v
				}
			}
			fields["abrupt cells"] = n
			fields["max abruptness"] = max
		}
		r.Log.WithFields(fields).Info("hypercc: detection summary")
		return nil
	}
}

// SmoothControl tapers and smooths a control run with the settings of cfg,
// as needed for Calibrate.
func SmoothControl(cfg Config, g *Grid, control *Field) (*Field, error) {
	if control == nil || control.Data == nil {
		return nil, fmt.Errorf("hypercc: %w", ErrNoControl)
	}
	if err := g.checkRectangular(); err != nil {
		return nil, err
	}
	if err := control.Check(g); err != nil {
		return nil, err
	}
	t := Taper(control, cfg.TaperWidth, cfg.TaperIterations)
	return GaussianFilter(g, t, cfg.SmoothingScales)
}
