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
	"math"
	"runtime"
	"sync"
)

// boundary specifies how an array is extended beyond its edges when a
// filter window reaches past them.
type boundary int

const (
	// reflect extends the array by mirroring about the edge of the last
	// element (d c b a | a b c d | d c b a).
	reflect boundary = iota

	// periodic extends the array by wrapping around to the opposite edge
	// (a b c d | a b c d | a b c d).
	periodic
)

// extend maps the possibly out-of-range index k onto [0, n) according to b.
func (b boundary) extend(k, n int) int {
	if k >= 0 && k < n {
		return k
	}
	if b == periodic {
		return wrap(k, n)
	}
	k = wrap(k, 2*n)
	if k >= n {
		k = 2*n - 1 - k
	}
	return k
}

// lines describes the one-dimensional lines through a row-major array
// along one axis.
type lines struct {
	n      int // number of lines
	length int // elements per line
	stride int // distance between consecutive elements of a line
	inner  int // product of the dimensions after the axis
}

func newLines(shape []int, axis int) lines {
	l := lines{length: shape[axis], stride: 1, inner: 1}
	total := 1
	for _, s := range shape {
		total *= s
	}
	for _, s := range shape[axis+1:] {
		l.stride *= s
	}
	l.inner = l.stride
	l.n = total / l.length
	return l
}

// start returns the flat index of the first element of line i.
func (l lines) start(i int) int {
	return (i/l.inner)*l.inner*l.length + i%l.inner
}

// correlate1d correlates every line of in along axis with the weights
// returned by kernel for that line and stores the result in out. A nil
// kernel copies the line. The weights have odd length and are centered.
// in and out must not overlap.
func correlate1d(in, out []float64, shape []int, axis int, kernel func(line int) []float64, b boundary) {
	l := newLines(shape, axis)
	stripe(l.n, func(line int) {
		s := l.start(line)
		w := kernel(line)
		if len(w) <= 1 {
			c := 1.
			if len(w) == 1 {
				c = w[0]
			}
			for k := 0; k < l.length; k++ {
				out[s+k*l.stride] = c * in[s+k*l.stride]
			}
			return
		}
		r := len(w) / 2
		for k := 0; k < l.length; k++ {
			var sum float64
			for m, wm := range w {
				if wm == 0 {
					continue
				}
				kk := b.extend(k+m-r, l.length)
				sum += wm * in[s+kk*l.stride]
			}
			out[s+k*l.stride] = sum
		}
	})
}

// fixed returns a kernel function that uses the same weights for every line.
func fixed(w []float64) func(int) []float64 {
	return func(int) []float64 { return w }
}

// gaussianKernel returns a normalized Gaussian kernel with standard deviation
// sigma truncated at four standard deviations. It returns nil for sigma <= 0.
func gaussianKernel(sigma float64) []float64 {
	if sigma <= 0 {
		return nil
	}
	r := int(4*sigma + 0.5)
	w := make([]float64, 2*r+1)
	var sum float64
	for i := range w {
		x := float64(i - r)
		w[i] = math.Exp(-0.5 * x * x / (sigma * sigma))
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// stripe calls f for every i in [0, n), distributing the calls over
// one goroutine per processor. Calls must write to disjoint memory.
func stripe(n int, f func(i int)) {
	nprocs := runtime.GOMAXPROCS(0)
	if nprocs > n {
		nprocs = n
	}
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			for ii := pp; ii < n; ii += nprocs {
				f(ii)
			}
			wg.Done()
		}(pp)
	}
	wg.Wait()
}
