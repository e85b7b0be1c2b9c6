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

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// AnnualMeanMonth selects the annual mean in SelectMonth.
const AnnualMeanMonth = 13

// SelectMonth returns the time steps of f that fall in the given calendar
// month (1-12), making a yearly series out of a monthly one. Month 13
// (AnnualMeanMonth) returns the annual mean instead.
func SelectMonth(g *Grid, f *Field, month int) (*Grid, *Field, error) {
	if month == AnnualMeanMonth {
		return AnnualMean(g, f)
	}
	if month < 1 || month > 12 {
		return nil, nil, fmt.Errorf("hypercc: month %d must be between 1 and %d", month, AnnualMeanMonth)
	}
	if err := f.Check(g); err != nil {
		return nil, nil, err
	}
	var steps []int
	for t, d := range g.Dates {
		if d.Month() == time.Month(month) {
			steps = append(steps, t)
		}
	}
	if len(steps) == 0 {
		return nil, nil, fmt.Errorf("hypercc: no time steps in month %d", month)
	}
	dates := make([]time.Time, len(steps))
	plane := len(g.Lat) * len(g.Lon)
	o := &Field{Data: sparse.ZerosDense(len(steps), len(g.Lat), len(g.Lon))}
	if f.Mask != nil {
		o.Mask = make([]bool, len(steps)*plane)
	}
	for k, t := range steps {
		dates[k] = g.Dates[t]
		copy(o.Data.Elements[k*plane:(k+1)*plane], f.Data.Elements[t*plane:(t+1)*plane])
		if f.Mask != nil {
			copy(o.Mask[k*plane:(k+1)*plane], f.Mask[t*plane:(t+1)*plane])
		}
	}
	og, err := NewGrid(g.Lat, g.Lon, dates)
	if err != nil {
		return nil, nil, err
	}
	return og, o, nil
}

// AnnualMean returns the mean of f over each calendar year, dated at the
// first of July. Masked samples are left out of the mean; a cell is masked
// in the result where all of its samples in a year are masked.
func AnnualMean(g *Grid, f *Field) (*Grid, *Field, error) {
	if err := f.Check(g); err != nil {
		return nil, nil, err
	}
	var years []int
	var groups [][]int
	for t, d := range g.Dates {
		if n := len(years); n == 0 || years[n-1] != d.Year() {
			years = append(years, d.Year())
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], t)
	}
	plane := len(g.Lat) * len(g.Lon)
	o := &Field{Data: sparse.ZerosDense(len(years), len(g.Lat), len(g.Lon))}
	var masked bool
	mask := make([]bool, len(years)*plane)
	dates := make([]time.Time, len(years))
	vals := make([]float64, 0, 12)
	for k, steps := range groups {
		dates[k] = time.Date(years[k], time.July, 1, 0, 0, 0, 0, time.UTC)
		for c := 0; c < plane; c++ {
			vals = vals[:0]
			for _, t := range steps {
				if !f.Invalid(t*plane + c) {
					vals = append(vals, f.Data.Elements[t*plane+c])
				}
			}
			if len(vals) == 0 {
				mask[k*plane+c] = true
				masked = true
				continue
			}
			o.Data.Elements[k*plane+c] = floats.Sum(vals) / float64(len(vals))
		}
	}
	if masked {
		o.Mask = mask
	}
	og, err := NewGrid(g.Lat, g.Lon, dates)
	if err != nil {
		return nil, nil, err
	}
	return og, o, nil
}
