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

	"github.com/TerpstraS/hyper-notebooks/science/canny"
)

// EdgeKernel is the hysteresis part of the edge detector. It works on
// gradient volumes laid out as described in package canny.
type EdgeKernel interface {
	// Thin returns the voxels that are local maxima of the gradient
	// magnitude along the gradient direction.
	Thin(v *canny.Volume) []bool

	// DoubleThreshold returns the voxels in mask that are connected to a
	// voxel with a*|g| >= 1 through voxels with b*|g| >= 1.
	DoubleThreshold(v *canny.Volume, mask []bool, a, b float64) []bool
}

// DefaultKernel is the edge kernel used when none is specified. Longitude
// is periodic.
var DefaultKernel EdgeKernel = canny.Kernel{Periodic: true}

// gridKernel returns the canny kernel for g, periodic in longitude if g
// covers the full circle.
func gridKernel(g *Grid) EdgeKernel {
	return canny.Kernel{Periodic: g.Periodic()}
}

// HysteresisParams holds the settings of the hysteresis edge detection.
type HysteresisParams struct {
	Upper, Lower float64

	// GuardBand is the number of time steps at the start and end of the
	// record where no edges are reported.
	GuardBand int
}

func (p HysteresisParams) check() error {
	if !(p.Upper > 0) || !(p.Lower > 0) {
		return fmt.Errorf("hypercc: hysteresis thresholds (%g, %g) must be positive", p.Upper, p.Lower)
	}
	if p.Lower > p.Upper {
		return fmt.Errorf("hypercc: lower hysteresis threshold %g is larger than upper threshold %g",
			p.Lower, p.Upper)
	}
	if p.GuardBand < 0 {
		return fmt.Errorf("hypercc: negative guard band %d", p.GuardBand)
	}
	return nil
}

// DetectEdges finds edges in the gradient field grad of a (time, lat, lon)
// field: the thinned gradient maxima, excluding cells where dataMask is true
// and the first and last p.GuardBand time steps, are thresholded with
// hysteresis. dataMask may be nil.
func DetectEdges(grad *Gradient, dataMask []bool, k EdgeKernel, p HysteresisParams) (*Mask, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	if grad.Dims() != 3 {
		return nil, fmt.Errorf("hypercc: edge detection needs a 3-D gradient, have %d-D: %w",
			grad.Dims(), ErrShape)
	}
	if k == nil {
		k = DefaultKernel
	}
	v := packVolume(grad)
	thin := unpackMask(v, k.Thin(v))

	nt := grad.Shape[0]
	plane := len(thin.Elements) / nt
	for i := range thin.Elements {
		t := i / plane
		if t < p.GuardBand || t >= nt-p.GuardBand || (dataMask != nil && dataMask[i]) {
			thin.Elements[i] = false
		}
	}
	edges := k.DoubleThreshold(v, packMask(v, thin), 1/p.Upper, 1/p.Lower)
	return unpackMask(v, edges), nil
}

// packVolume converts a (time, lat, lon) gradient into a volume with
// x = lon, y = lat and z = time.
func packVolume(g *Gradient) *canny.Volume {
	nt, nlat, nlon := g.Shape[0], g.Shape[1], g.Shape[2]
	v := canny.NewVolume(nlon, nlat, nt)
	c := g.Components
	for t := 0; t < nt; t++ {
		for i := 0; i < nlat; i++ {
			for j := 0; j < nlon; j++ {
				e := (t*nlat+i)*nlon + j
				v.Set(j, i, t, c[0].Elements[e], c[1].Elements[e], c[2].Elements[e], c[3].Elements[e])
			}
		}
	}
	return v
}

// packMask converts a (time, lat, lon) mask to the voxel order of v.
func packMask(v *canny.Volume, m *Mask) []bool {
	o := make([]bool, v.Len())
	for t := 0; t < v.Nz; t++ {
		for i := 0; i < v.Ny; i++ {
			for j := 0; j < v.Nx; j++ {
				o[v.Index(j, i, t)] = m.Elements[(t*v.Ny+i)*v.Nx+j]
			}
		}
	}
	return o
}

// unpackMask converts a mask in the voxel order of v to (time, lat, lon).
func unpackMask(v *canny.Volume, m []bool) *Mask {
	o := NewMask(v.Nz, v.Ny, v.Nx)
	for t := 0; t < v.Nz; t++ {
		for i := 0; i < v.Ny; i++ {
			for j := 0; j < v.Nx; j++ {
				o.Elements[(t*v.Ny+i)*v.Nx+j] = m[v.Index(j, i, t)]
			}
		}
	}
	return o
}
