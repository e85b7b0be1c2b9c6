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

var axisNames = [3]string{"time", "latitude", "longitude"}

// GaussianFilter smooths f with an anisotropic Gaussian kernel whose
// standard deviations along the (time, lat, lon) axes are given in physical
// units: a duration for time and distances for latitude and longitude. A nil
// or zero sigma leaves the field unchanged along that axis.
//
// Because a degree of longitude shrinks toward the poles, the longitude
// pass is done row by row with the pixel sigma of each row divided by the
// cosine of its latitude (see LonSigma). Longitude is treated as periodic;
// the time and latitude axes are reflected at their edges.
//
// The mask of f is carried over to the result.
func GaussianFilter(g *Grid, f *Field, sigma [3]*unit.Unit) (*Field, error) {
	if err := g.checkRectangular(); err != nil {
		return nil, err
	}
	if err := f.Check(g); err != nil {
		return nil, err
	}
	res := g.Resolution()
	var s [3]float64
	for k := range sigma {
		var err error
		s[k], err = pixelScale(sigma[k], res[k], axisNames[k])
		if err != nil {
			return nil, fmt.Errorf("hypercc: gaussian filter: %w", err)
		}
	}

	shape := f.Data.Shape
	nlat := shape[1]
	tmp := make([]float64, len(f.Data.Elements))
	lonKernels := make([][]float64, nlat)
	for i, sl := range LonSigma(g, s[2]) {
		lonKernels[i] = gaussianKernel(sl)
	}
	correlate1d(f.Data.Elements, tmp, shape, 2, func(line int) []float64 {
		return lonKernels[line%nlat]
	}, periodic)

	tmp2 := make([]float64, len(tmp))
	correlate1d(tmp, tmp2, shape, 0, fixed(gaussianKernel(s[0])), reflect)
	correlate1d(tmp2, tmp, shape, 1, fixed(gaussianKernel(s[1])), reflect)

	o := &Field{Data: sparse.ZerosDense(shape...)}
	o.Data.Elements = tmp
	if f.Mask != nil {
		o.Mask = append([]bool(nil), f.Mask...)
	}
	return o, nil
}

// LonSigma returns the pixel standard deviation of the longitude smoothing
// for each latitude row of g, given the pixel standard deviation sLon at the
// equator. The sigma of a row is sLon divided by the cosine of its latitude,
// capped at the number of longitude points, so it grows toward the poles.
func LonSigma(g *Grid, sLon float64) []float64 {
	nlon := float64(len(g.Lon))
	o := make([]float64, len(g.Lat))
	for i, c := range g.cosLat() {
		if sLon <= 0 {
			continue
		}
		if c <= 0 {
			o[i] = nlon
			continue
		}
		o[i] = math.Min(nlon, sLon/c)
	}
	return o
}

// pixelScale converts the physical scale s along an axis into a number of
// pixels of the given resolution. A nil scale is zero.
func pixelScale(s, resolution *unit.Unit, axis string) (float64, error) {
	if s == nil {
		return 0, nil
	}
	if !unit.DimensionsMatch(s, resolution) {
		return 0, fmt.Errorf("%s scale %v does not have dimensions of %v: %w",
			axis, s, resolution.Dimensions(), ErrScale)
	}
	if s.Value() < 0 || math.IsNaN(s.Value()) {
		return 0, fmt.Errorf("%s scale %v is negative: %w", axis, s, ErrScale)
	}
	if s.Value() == 0 {
		return 0, nil
	}
	if resolution.Value() == 0 {
		return 0, fmt.Errorf("%s scale %v: axis has a single point: %w", axis, s, ErrScale)
	}
	return unit.Div(s, resolution).Value(), nil
}
