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

	"github.com/GaryBoone/GoStats/stats"
	"github.com/ctessum/sparse"
)

// AbruptnessParams holds the lengths, in time steps, of the windows
// on either side of an edge that are compared to compute its abruptness.
type AbruptnessParams struct {
	// CutoffLength is the number of time steps on either side of the
	// edge that are left out. The edge itself is always left out.
	CutoffLength int

	// ChunkMaxLength is the maximum number of time steps in each window.
	ChunkMaxLength int

	// ChunkMinLength is the minimum number of valid time steps in each
	// window. Edges with a shorter window on either side get a score of 0.
	ChunkMinLength int
}

func (p AbruptnessParams) check() error {
	if p.CutoffLength < 0 {
		return fmt.Errorf("hypercc: negative cutoff length %d", p.CutoffLength)
	}
	if p.ChunkMinLength < 2 {
		return fmt.Errorf("hypercc: minimum chunk length %d must be at least 2", p.ChunkMinLength)
	}
	if p.ChunkMaxLength < p.ChunkMinLength {
		return fmt.Errorf("hypercc: maximum chunk length %d is smaller than minimum chunk length %d",
			p.ChunkMaxLength, p.ChunkMinLength)
	}
	return nil
}

// AbruptnessField holds the abruptness of the detected edges.
type AbruptnessField struct {
	// Score is the abruptness of each edge cell, with dimensions
	// (time, lat, lon). It is 0 away from edges.
	Score *sparse.DenseArray

	// Max is the maximum score over time of each (lat, lon) cell.
	Max *sparse.DenseArray

	// MaxIndex is the time index of Max for each cell, in (lat, lon) order.
	// The earliest index is used for ties. It is -1 where no edge has a
	// positive score.
	MaxIndex []int
}

// MaxYear returns the calendar year of the maximum abruptness of each
// (lat, lon) cell, or 0 where there is none.
func (a *AbruptnessField) MaxYear(g *Grid) *sparse.DenseArray {
	o := sparse.ZerosDense(a.Max.Shape...)
	for i, t := range a.MaxIndex {
		if t >= 0 {
			o.Elements[i] = float64(g.Dates[t].Year())
		}
	}
	return o
}

// Abruptness scores each edge cell of data by fitting a straight line to
// the time series of the cell before and after the edge and comparing the
// offsets of the two lines at the time of the edge with the noise around
// them:
//
//	score = |b_before - b_after| / ((std_before + std_after) / 2)
//
// where b is the intercept of the fit with time measured in years from the
// edge and std is the population standard deviation of the samples in the
// window. The before window ends CutoffLength steps before the edge and has
// at most ChunkMaxLength steps; the after window starts CutoffLength steps
// after the edge. Masked and non-finite samples are left out. When the
// noise is zero the score is +Inf, unless the offsets are equal.
func Abruptness(g *Grid, data *Field, edges *Mask, p AbruptnessParams) (*AbruptnessField, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	if err := data.Check(g); err != nil {
		return nil, err
	}
	if !sameShape(edges.Shape, g.Shape()) {
		return nil, fmt.Errorf("hypercc: edge mask shape %v, grid shape %v: %w",
			edges.Shape, g.Shape(), ErrShape)
	}
	nt, nlat, nlon := len(g.Dates), len(g.Lat), len(g.Lon)
	years := g.Years()
	a := &AbruptnessField{
		Score:    sparse.ZerosDense(nt, nlat, nlon),
		Max:      sparse.ZerosDense(nlat, nlon),
		MaxIndex: make([]int, nlat*nlon),
	}
	plane := nlat * nlon
	stripe(plane, func(cell int) {
		for t := 0; t < nt; t++ {
			if edges.Elements[t*plane+cell] {
				a.Score.Elements[t*plane+cell] = scoreEdge(data, years, cell, plane, t, p)
			}
		}
		a.MaxIndex[cell] = -1
		for t := 0; t < nt; t++ {
			s := a.Score.Elements[t*plane+cell]
			if s > 0 && s > a.Max.Elements[cell] {
				a.Max.Elements[cell] = s
				a.MaxIndex[cell] = t
			}
		}
	})
	return a, nil
}

// scoreEdge returns the abruptness of an edge at time step t of the
// given (lat, lon) cell.
func scoreEdge(data *Field, years []float64, cell, plane, t int, p AbruptnessParams) float64 {
	nt := len(years)
	beforeEnd := t - p.CutoffLength
	beforeStart := beforeEnd - p.ChunkMaxLength
	if beforeStart < 0 {
		beforeStart = 0
	}
	afterStart := t + p.CutoffLength + 1
	afterEnd := afterStart + p.ChunkMaxLength
	if afterEnd > nt {
		afterEnd = nt
	}
	if beforeEnd-beforeStart < p.ChunkMinLength || afterEnd-afterStart < p.ChunkMinLength {
		return 0
	}
	x1, y1 := window(data, years, cell, plane, t, beforeStart, beforeEnd)
	x2, y2 := window(data, years, cell, plane, t, afterStart, afterEnd)
	if len(y1) < p.ChunkMinLength || len(y2) < p.ChunkMinLength {
		return 0
	}
	_, b1, _, _, _, _ := stats.LinearRegression(x1, y1)
	_, b2, _, _, _, _ := stats.LinearRegression(x2, y2)
	noise := (stats.StatsPopulationStandardDeviation(y1) + stats.StatsPopulationStandardDeviation(y2)) / 2
	jump := math.Abs(b1 - b2)
	switch {
	case math.IsNaN(jump):
		return 0
	case noise == 0 && jump == 0:
		return 0
	case noise == 0:
		return math.Inf(1)
	}
	return jump / noise
}

// window returns the valid samples of a cell in the time steps [start, end),
// with the time in years relative to time step t.
func window(data *Field, years []float64, cell, plane, t, start, end int) (x, y []float64) {
	for k := start; k < end; k++ {
		i := k*plane + cell
		if data.Invalid(i) {
			continue
		}
		x = append(x, years[k]-years[t])
		y = append(y, data.Data.Elements[i])
	}
	return x, y
}
