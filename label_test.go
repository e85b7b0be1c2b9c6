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

import "testing"

func TestLabel(t *testing.T) {
	m := NewMask(3, 4, 8)
	// Two cells that touch diagonally across the date line.
	m.Set(true, 0, 0, 0)
	m.Set(true, 1, 1, 7)
	// A separate block of 2x2x2 cells.
	for tt := 1; tt < 3; tt++ {
		for i := 2; i < 4; i++ {
			for j := 3; j < 5; j++ {
				m.Set(true, tt, i, j)
			}
		}
	}

	l, sizes := Label(m, true)
	if len(sizes) != 3 || sizes[0] != 0 || sizes[1] != 2 || sizes[2] != 8 {
		t.Fatalf("periodic sizes = %v, want [0 2 8]", sizes)
	}
	if l.Get(0, 0, 0) != 1 || l.Get(1, 1, 7) != 1 || l.Get(2, 3, 4) != 2 || l.Get(0, 3, 3) != 0 {
		t.Errorf("unexpected labels")
	}

	_, sizes = Label(m, false)
	if len(sizes) != 4 || sizes[1] != 1 || sizes[2] != 1 || sizes[3] != 8 {
		t.Errorf("bounded sizes = %v, want [0 1 1 8]", sizes)
	}
}

func TestFilterComponents(t *testing.T) {
	g := testGrid(t, 30)
	m := NewMask(g.Shape()...)
	// A small component of 5 cells and a large one of 200.
	for tt := 0; tt < 5; tt++ {
		m.Set(true, tt, 0, 0)
	}
	n := 0
	for tt := 5; tt < 30 && n < 200; tt++ {
		for j := 0; j < 8 && n < 200; j++ {
			m.Set(true, tt, 3, j)
			n++
		}
	}
	l, sizes := Label(m, true)
	if len(sizes) != 3 || sizes[1] != 5 || sizes[2] != 200 {
		t.Fatalf("sizes = %v", sizes)
	}
	kept := FilterComponents(l, sizes, 100)
	if kept.Get(0, 0, 0) != 0 {
		t.Error("small component not removed")
	}
	if kept.Get(5, 3, 0) != 2 {
		t.Errorf("large component label = %d, want 2", kept.Get(5, 3, 0))
	}
	if l.Get(0, 0, 0) != 1 {
		t.Error("input labels modified")
	}
	if all := FilterComponents(l, sizes, 5); all.Get(0, 0, 0) != 0 {
		t.Error("component of exactly the minimum size kept")
	}

	cs := Components(kept, g)
	if len(cs) != 1 {
		t.Fatalf("have %d components, want 1", len(cs))
	}
	c := cs[0]
	if c.ID != 2 || c.Size != 200 || c.First != 5 || c.Last != 29 {
		t.Errorf("component = %+v", c)
	}
	if c.FirstDate.Year() != 1955 || c.LastDate.Year() != 1979 {
		t.Errorf("dates = %v, %v", c.FirstDate, c.LastDate)
	}
	if c.Bounds.Min.X != 0 || c.Bounds.Max.X != 315 || c.Bounds.Min.Y != 15 || c.Bounds.Max.Y != 15 {
		t.Errorf("bounds = %+v", c.Bounds)
	}

	if max := kept.Max(); max.Get(3, 0) != 2 || max.Get(0, 0) != 0 {
		t.Errorf("max labels = %v", max.Elements)
	}
}
