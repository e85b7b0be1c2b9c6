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

// Package canny provides the hysteresis part of a three dimensional Canny
// edge detector: non-maximum suppression ("thinning") along the gradient
// direction and double thresholding with connectivity tracking.
//
// Volumes are laid out with x slowest and the four gradient components
// fastest, so the component c of voxel (x, y, z) is stored at
// ((x*Ny+y)*Nz+z)*4 + c. The components are the unit gradient direction
// along z, y and x followed by the inverse of the gradient magnitude.
package canny

import (
	"fmt"
	"math"
	"runtime"
	"sync"
)

// Components of a voxel.
const (
	DZ = iota
	DY
	DX
	InvMagnitude
	NumComponents
)

// Volume is a three dimensional field of gradient vectors.
type Volume struct {
	Nx, Ny, Nz int
	Data       []float64
}

// NewVolume returns a zero volume of the given size.
func NewVolume(nx, ny, nz int) *Volume {
	return &Volume{Nx: nx, Ny: ny, Nz: nz, Data: make([]float64, nx*ny*nz*NumComponents)}
}

// Len returns the number of voxels in v.
func (v *Volume) Len() int { return v.Nx * v.Ny * v.Nz }

// Index returns the voxel index of (x, y, z).
func (v *Volume) Index(x, y, z int) int { return (x*v.Ny+y)*v.Nz + z }

// Set sets the gradient direction and inverse magnitude of voxel (x, y, z).
func (v *Volume) Set(x, y, z int, dz, dy, dx, invMag float64) {
	i := v.Index(x, y, z) * NumComponents
	v.Data[i+DZ], v.Data[i+DY], v.Data[i+DX], v.Data[i+InvMagnitude] = dz, dy, dx, invMag
}

// Magnitude returns the gradient magnitude of voxel i, which is zero where
// the inverse magnitude is infinite.
func (v *Volume) Magnitude(i int) float64 {
	inv := v.Data[i*NumComponents+InvMagnitude]
	if math.IsInf(inv, 1) || inv == 0 || math.IsNaN(inv) {
		return 0
	}
	return 1 / inv
}

func (v *Volume) check() {
	if len(v.Data) != v.Len()*NumComponents {
		panic(fmt.Errorf("canny: volume %dx%dx%d has %d values, want %d",
			v.Nx, v.Ny, v.Nz, len(v.Data), v.Len()*NumComponents))
	}
}

// Kernel is an edge kernel. If Periodic is true, the x axis wraps around.
type Kernel struct {
	Periodic bool
}

// neighbor returns the voxel index of (x+dx, y+dy, z+dz) and whether it
// is inside the volume.
func (k Kernel) neighbor(v *Volume, x, y, z, dx, dy, dz int) (int, bool) {
	x, y, z = x+dx, y+dy, z+dz
	if y < 0 || y >= v.Ny || z < 0 || z >= v.Nz {
		return 0, false
	}
	if x < 0 || x >= v.Nx {
		if !k.Periodic {
			return 0, false
		}
		x = (x%v.Nx + v.Nx) % v.Nx
	}
	return v.Index(x, y, z), true
}

// Thin returns a mask that is true for voxels whose gradient magnitude is
// positive and is not smaller than that of both neighbors along the gradient
// direction rounded to the nearest of the 26 neighbor directions. Neighbors
// outside of the volume have zero magnitude.
func (k Kernel) Thin(v *Volume) []bool {
	v.check()
	out := make([]bool, v.Len())
	nprocs := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			for x := pp; x < v.Nx; x += nprocs {
				for y := 0; y < v.Ny; y++ {
					for z := 0; z < v.Nz; z++ {
						i := v.Index(x, y, z)
						m := v.Magnitude(i)
						if m <= 0 {
							continue
						}
						d := v.Data[i*NumComponents : (i+1)*NumComponents]
						ox := int(math.Round(d[DX]))
						oy := int(math.Round(d[DY]))
						oz := int(math.Round(d[DZ]))
						out[i] = m >= k.magnitudeAt(v, x, y, z, ox, oy, oz) &&
							m >= k.magnitudeAt(v, x, y, z, -ox, -oy, -oz)
					}
				}
			}
			wg.Done()
		}(pp)
	}
	wg.Wait()
	return out
}

func (k Kernel) magnitudeAt(v *Volume, x, y, z, dx, dy, dz int) float64 {
	if dx == 0 && dy == 0 && dz == 0 {
		return 0
	}
	n, ok := k.neighbor(v, x, y, z, dx, dy, dz)
	if !ok {
		return 0
	}
	return v.Magnitude(n)
}

// DoubleThreshold returns the voxels inside mask that are connected to a
// strong voxel through a chain of weak voxels, where all voxels in the chain
// are inside mask. A voxel is strong if a times its magnitude is at least
// one and weak if b times its magnitude is at least one, so a = 1/upper and
// b = 1/lower for thresholds upper > lower. Connectivity includes all 26
// neighbors.
func (k Kernel) DoubleThreshold(v *Volume, mask []bool, a, b float64) []bool {
	v.check()
	if len(mask) != v.Len() {
		panic(fmt.Errorf("canny: mask has %d values, want %d", len(mask), v.Len()))
	}
	out := make([]bool, v.Len())
	weak := func(i int) bool { return mask[i] && b*v.Magnitude(i) >= 1 }

	var stack []int
	for i := range out {
		if !mask[i] || out[i] || a*v.Magnitude(i) < 1 {
			continue
		}
		out[i] = true
		stack = append(stack[:0], i)
		for len(stack) > 0 {
			c := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y, z := c/(v.Ny*v.Nz), (c/v.Nz)%v.Ny, c%v.Nz
			for dx := -1; dx <= 1; dx++ {
				for dy := -1; dy <= 1; dy++ {
					for dz := -1; dz <= 1; dz++ {
						if dx == 0 && dy == 0 && dz == 0 {
							continue
						}
						n, ok := k.neighbor(v, x, y, z, dx, dy, dz)
						if !ok || out[n] || !weak(n) {
							continue
						}
						out[n] = true
						stack = append(stack, n)
					}
				}
			}
		}
	}
	return out
}
