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
	"sort"
	"time"

	"github.com/ctessum/geom"
)

// Label assigns a label to each connected group of true cells of the
// (time, lat, lon) mask m, where cells are connected through faces, edges
// and corners (26-connectivity). If periodic is true the first and last
// longitude columns are neighbors. Labels are numbered from 1 in the
// order in which their first cell appears in the array; 0 marks the
// background. The returned sizes slice holds the number of cells with each
// label and has length n+1 for n labels.
func Label(m *Mask, periodic bool) (*Labels, []int) {
	nt, nlat, nlon := m.Shape[0], m.Shape[1], m.Shape[2]
	l := &Labels{Shape: append([]int(nil), m.Shape...), Elements: make([]int, len(m.Elements))}
	sizes := []int{0}
	var stack []int
	for start, v := range m.Elements {
		if !v || l.Elements[start] != 0 {
			continue
		}
		id := len(sizes)
		sizes = append(sizes, 0)
		l.Elements[start] = id
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			c := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			sizes[id]++
			t, i, j := c/(nlat*nlon), (c/nlon)%nlat, c%nlon
			for dt := -1; dt <= 1; dt++ {
				tt := t + dt
				if tt < 0 || tt >= nt {
					continue
				}
				for di := -1; di <= 1; di++ {
					ii := i + di
					if ii < 0 || ii >= nlat {
						continue
					}
					for dj := -1; dj <= 1; dj++ {
						jj := j + dj
						if jj < 0 || jj >= nlon {
							if !periodic {
								continue
							}
							jj = wrap(jj, nlon)
						}
						n := (tt*nlat+ii)*nlon + jj
						if m.Elements[n] && l.Elements[n] == 0 {
							l.Elements[n] = id
							stack = append(stack, n)
						}
					}
				}
			}
		}
	}
	return l, sizes
}

// FilterComponents returns a copy of l in which the labels of components
// with no more than minSize cells are set to 0. The remaining labels keep
// their values.
func FilterComponents(l *Labels, sizes []int, minSize int) *Labels {
	o := &Labels{Shape: append([]int(nil), l.Shape...), Elements: make([]int, len(l.Elements))}
	for i, id := range l.Elements {
		if id > 0 && sizes[id] > minSize {
			o.Elements[i] = id
		}
	}
	return o
}

// Component summarizes one labeled edge.
type Component struct {
	ID   int
	Size int // number of cells

	// First and Last are the first and last time steps of the component.
	First, Last         int
	FirstDate, LastDate time.Time

	// Bounds is the longitude/latitude extent of the component.
	Bounds *geom.Bounds
}

// Components returns a summary of every nonzero label in l, ordered by
// label.
func Components(l *Labels, g *Grid) []Component {
	nlat, nlon := l.Shape[1], l.Shape[2]
	index := make(map[int]int)
	var o []Component
	for e, id := range l.Elements {
		if id == 0 {
			continue
		}
		t, i, j := e/(nlat*nlon), (e/nlon)%nlat, e%nlon
		k, ok := index[id]
		if !ok {
			k = len(o)
			index[id] = k
			o = append(o, Component{ID: id, First: t, Last: t, Bounds: geom.NewBounds()})
		}
		c := &o[k]
		c.Size++
		if t < c.First {
			c.First = t
		}
		if t > c.Last {
			c.Last = t
		}
		c.Bounds.Extend(geom.NewBoundsPoint(geom.Point{X: g.Lon[j], Y: g.Lat[i]}))
	}
	for k := range o {
		o[k].FirstDate = g.Dates[o[k].First]
		o[k].LastDate = g.Dates[o[k].Last]
	}
	sort.Slice(o, func(i, j int) bool { return o[i].ID < o[j].ID })
	return o
}
