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

// Taper fills masked cells of f with the mean of the known cells around
// them, so that the smoothing filter does not see a hard step at the edge
// of the masked area. Each of the given number of iterations replaces every
// masked cell with the mean of the known cells inside a box window of
// width[axis] cells along each (time, lat, lon) axis. Known cells are the
// valid cells and the masked cells that were filled by an earlier iteration.
// The longitude window wraps around.
//
// The returned field is a copy. Valid cells and the mask are not changed.
func Taper(f *Field, width [3]int, iterations int) *Field {
	o := f.Copy()
	if !f.Masked() || iterations <= 0 {
		return o
	}
	shape := f.Data.Shape
	nt, nlat, nlon := shape[0], shape[1], shape[2]

	known := make([]bool, len(f.Mask))
	for i, m := range f.Mask {
		known[i] = !m
	}

	var r [3]int
	for k, w := range width {
		if w > 1 {
			r[k] = w / 2
		}
	}

	next := make([]float64, len(o.Data.Elements))
	nextKnown := make([]bool, len(known))
	for it := 0; it < iterations; it++ {
		copy(next, o.Data.Elements)
		copy(nextKnown, known)
		for t := 0; t < nt; t++ {
			for i := 0; i < nlat; i++ {
				for j := 0; j < nlon; j++ {
					c := (t*nlat+i)*nlon + j
					if !f.Mask[c] {
						continue
					}
					var sum float64
					var n int
					for dt := -r[0]; dt <= r[0]; dt++ {
						tt := t + dt
						if tt < 0 || tt >= nt {
							continue
						}
						for di := -r[1]; di <= r[1]; di++ {
							ii := i + di
							if ii < 0 || ii >= nlat {
								continue
							}
							for dj := -r[2]; dj <= r[2]; dj++ {
								jj := wrap(j+dj, nlon)
								k := (tt*nlat+ii)*nlon + jj
								if known[k] {
									sum += o.Data.Elements[k]
									n++
								}
							}
						}
					}
					if n > 0 {
						next[c] = sum / float64(n)
						nextKnown[c] = true
					}
				}
			}
		}
		copy(o.Data.Elements, next)
		copy(known, nextKnown)
	}
	return o
}

// wrap returns i modulo n in the range [0, n).
func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
