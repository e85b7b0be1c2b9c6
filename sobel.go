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
	"math"

	"github.com/ctessum/sparse"
	"github.com/ctessum/unit"
)

// Gradient is the output of the Sobel operator. For an array with n
// dimensions it holds n+1 components of the same shape as the input:
// components 0 to n-1 are the unit direction of the gradient along each
// axis and component n is the inverse of the gradient magnitude. Where the
// magnitude is zero the direction is zero and the last component is +Inf.
type Gradient struct {
	Shape      []int
	Components []*sparse.DenseArray
}

// Dims returns the number of spatial and temporal dimensions of g.
func (g *Gradient) Dims() int { return len(g.Components) - 1 }

// Magnitude returns the length of the gradient vector at flat index i.
func (g *Gradient) Magnitude(i int) float64 {
	return 1 / g.Components[g.Dims()].Elements[i]
}

// Raw returns the un-normalized gradient component along axis at flat
// index i.
func (g *Gradient) Raw(axis, i int) float64 {
	inv := g.Components[g.Dims()].Elements[i]
	if math.IsInf(inv, 1) {
		return 0
	}
	return g.Components[axis].Elements[i] / inv
}

// Copy returns a deep copy of g.
func (g *Gradient) Copy() *Gradient {
	o := &Gradient{Shape: append([]int(nil), g.Shape...)}
	for _, c := range g.Components {
		o.Components = append(o.Components, c.Copy())
	}
	return o
}

// CombineGradients returns a gradient with the direction of pixel and the
// magnitude of physical. This is used to find edges on the pixel grid while
// thresholding on physically scaled magnitudes. The inputs must have the
// same shape.
func CombineGradients(physical, pixel *Gradient) *Gradient {
	if !sameShape(physical.Shape, pixel.Shape) || physical.Dims() != pixel.Dims() {
		panic(fmt.Errorf("hypercc: cannot combine gradients of shape %v and %v",
			physical.Shape, pixel.Shape))
	}
	o := pixel.Copy()
	n := o.Dims()
	o.Components[n] = physical.Components[n].Copy()
	return o
}

// SobelOption configures the Sobel operator.
type SobelOption func(*sobelConfig)

type sobelConfig struct {
	weights     *[3]*unit.Unit
	physical    bool
	variability *[3]float64
}

// Weights sets the physical weight of each (time, lat, lon) axis. The
// derivative along each axis is multiplied by weight/resolution, turning it
// into a dimensionless change over the weight. Each weight must have the
// dimensions of the corresponding grid resolution.
func Weights(w [3]*unit.Unit) SobelOption {
	return func(c *sobelConfig) { c.weights = &w }
}

// Physical sets whether the longitudinal derivative is divided by the
// cosine of the latitude to correct for the convergence of the meridians.
// The default is true.
func Physical(p bool) SobelOption {
	return func(c *sobelConfig) { c.physical = p }
}

// Variability sets a divisor for the derivative along each axis, applied
// before normalization.
func Variability(v [3]float64) SobelOption {
	return func(c *sobelConfig) { c.variability = &v }
}

// SobelFilter computes the Sobel gradient of the (time, lat, lon) field f.
// Time and latitude are reflected at their edges and longitude is periodic.
// Without weights each derivative is scaled by 1/16, the sum of the
// smoothing weights, so a unit ramp has a gradient of 2.
func SobelFilter(g *Grid, f *Field, opts ...SobelOption) (*Gradient, error) {
	if err := g.checkRectangular(); err != nil {
		return nil, err
	}
	if err := f.Check(g); err != nil {
		return nil, err
	}
	c := sobelConfig{physical: true}
	for _, o := range opts {
		o(&c)
	}
	scale, err := c.scales(g.Resolution(), 1./16, []int{0, 1, 2})
	if err != nil {
		return nil, err
	}
	var variability []float64
	if c.variability != nil {
		variability = c.variability[:]
	}
	var cos []float64
	if c.physical {
		cos = g.cosLat()
	}
	return sobel(f.Data.Elements, f.Data.Shape, []boundary{reflect, reflect, periodic},
		scale, variability, cos), nil
}

// SobelFilter2D computes the Sobel gradient of a single (lat, lon) slice of
// data on grid g. The time weight and time variability of the options are
// ignored. Without weights each derivative is scaled by 1/8, so a unit ramp
// has a gradient of 1.
func SobelFilter2D(g *Grid, data *sparse.DenseArray, opts ...SobelOption) (*Gradient, error) {
	if err := g.checkRectangular(); err != nil {
		return nil, err
	}
	if !sameShape(data.Shape, g.Shape()[1:]) {
		return nil, fmt.Errorf("hypercc: slice shape %v, grid shape %v: %w",
			data.Shape, g.Shape()[1:], ErrShape)
	}
	c := sobelConfig{physical: true}
	for _, o := range opts {
		o(&c)
	}
	scale, err := c.scales(g.Resolution(), 1./8, []int{1, 2})
	if err != nil {
		return nil, err
	}
	var variability []float64
	if c.variability != nil {
		variability = c.variability[1:]
	}
	var cos []float64
	if c.physical {
		cos = g.cosLat()
	}
	return sobel(data.Elements, data.Shape, []boundary{reflect, periodic},
		scale, variability, cos), nil
}

// scales returns the factor for each of the given axes.
func (c sobelConfig) scales(res [3]*unit.Unit, base float64, axes []int) ([]float64, error) {
	o := make([]float64, len(axes))
	for k, a := range axes {
		o[k] = base
		if c.weights == nil {
			continue
		}
		w := c.weights[a]
		if w == nil || w.Value() <= 0 {
			return nil, fmt.Errorf("hypercc: sobel %s weight %v must be positive: %w",
				axisNames[a], w, ErrScale)
		}
		s, err := pixelScale(w, res[a], axisNames[a])
		if err != nil {
			return nil, fmt.Errorf("hypercc: sobel weight: %w", err)
		}
		o[k] = base * s
	}
	if c.variability != nil {
		for _, a := range axes {
			if v := c.variability[a]; !(v > 0) {
				return nil, fmt.Errorf("hypercc: sobel %s variability %g must be positive: %w",
					axisNames[a], v, ErrScale)
			}
		}
	}
	return o, nil
}

// sobel computes the normalized Sobel gradient of a row-major array whose
// last two axes are latitude and longitude. If cos is not nil the
// longitude component of each latitude row is divided by cos.
func sobel(in []float64, shape []int, modes []boundary, scale, variability, cos []float64) *Gradient {
	n := len(shape)
	derivative := []float64{-1, 0, 1}
	smooth := []float64{1, 2, 1}
	g := &Gradient{Shape: append([]int(nil), shape...)}
	tmp := make([]float64, len(in))
	for axis := 0; axis < n; axis++ {
		out := sparse.ZerosDense(shape...)
		// Alternate between the buffers so that the last pass ends in out.
		buf := [2][]float64{tmp, out.Elements}
		src := in
		for k := 0; k < n; k++ {
			w := smooth
			if k == axis {
				w = derivative
			}
			dst := buf[1-(n-1-k)%2]
			correlate1d(src, dst, shape, k, fixed(w), modes[k])
			src = dst
		}
		f := scale[axis]
		if variability != nil {
			f /= variability[axis]
		}
		out.Scale(f)
		g.Components = append(g.Components, out)
	}

	nlat, nlon := shape[n-2], shape[n-1]
	if cos != nil {
		lon := g.Components[n-1].Elements
		for e := range lon {
			lon[e] /= cos[(e/nlon)%nlat]
		}
	}

	inv := sparse.ZerosDense(shape...)
	for e := range in {
		var sum float64
		for k := 0; k < n; k++ {
			v := g.Components[k].Elements[e]
			sum += v * v
		}
		norm := math.Sqrt(sum)
		if norm == 0 {
			inv.Elements[e] = math.Inf(1)
			continue
		}
		for k := 0; k < n; k++ {
			g.Components[k].Elements[e] /= norm
		}
		inv.Elements[e] = 1 / norm
	}
	g.Components = append(g.Components, inv)
	return g
}
