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
	"errors"
	"math"
	"testing"

	"github.com/ctessum/sparse"
	"github.com/ctessum/unit"
)

func TestSobelTimeRamp(t *testing.T) {
	g := testGrid(t, 6)
	f := NewField(g)
	for tt := 0; tt < 6; tt++ {
		for i := 0; i < 4; i++ {
			for j := 0; j < 8; j++ {
				f.Data.Elements[g.Index(tt, i, j)] = float64(tt)
			}
		}
	}
	sb, err := SobelFilter(g, f)
	if err != nil {
		t.Fatal(err)
	}
	if sb.Dims() != 3 || len(sb.Components) != 4 {
		t.Fatalf("have %d components", len(sb.Components))
	}
	for _, test := range []struct {
		t   int
		mag float64
	}{
		{t: 0, mag: 1}, // reflected boundary
		{t: 2, mag: 2},
		{t: 3, mag: 2},
		{t: 5, mag: 1},
	} {
		e := g.Index(test.t, 2, 5)
		if absDifferent(sb.Magnitude(e), test.mag) {
			t.Errorf("t=%d: magnitude = %g, want %g", test.t, sb.Magnitude(e), test.mag)
		}
		if absDifferent(sb.Components[0].Elements[e], 1) ||
			absDifferent(sb.Components[1].Elements[e], 0) ||
			absDifferent(sb.Components[2].Elements[e], 0) {
			t.Errorf("t=%d: direction = (%g, %g, %g)", test.t, sb.Components[0].Elements[e],
				sb.Components[1].Elements[e], sb.Components[2].Elements[e])
		}
		if absDifferent(sb.Raw(0, e), test.mag) {
			t.Errorf("t=%d: raw = %g, want %g", test.t, sb.Raw(0, e), test.mag)
		}
	}
}

func TestSobelZero(t *testing.T) {
	g := testGrid(t, 3)
	sb, err := SobelFilter(g, NewField(g))
	if err != nil {
		t.Fatal(err)
	}
	for e := 0; e < g.Len(); e++ {
		if !math.IsInf(sb.Components[3].Elements[e], 1) {
			t.Fatalf("cell %d: inverse magnitude = %g, want +Inf", e, sb.Components[3].Elements[e])
		}
		for k := 0; k < 3; k++ {
			if sb.Components[k].Elements[e] != 0 {
				t.Fatalf("cell %d: component %d = %g", e, k, sb.Components[k].Elements[e])
			}
		}
		if sb.Magnitude(e) != 0 || sb.Raw(0, e) != 0 {
			t.Fatalf("cell %d: nonzero magnitude", e)
		}
	}
}

// lonRamp returns a field that increases by one per longitude column.
func lonRamp(g *Grid) *Field {
	f := NewField(g)
	for e := range f.Data.Elements {
		f.Data.Elements[e] = float64(e % len(g.Lon))
	}
	return f
}

func TestSobelPhysical(t *testing.T) {
	g := testGrid(t, 3)
	f := lonRamp(g)
	pixel, err := SobelFilter(g, f, Physical(false))
	if err != nil {
		t.Fatal(err)
	}
	physical, err := SobelFilter(g, f)
	if err != nil {
		t.Fatal(err)
	}
	for i, lat := range g.Lat {
		e := g.Index(1, i, 3)
		if absDifferent(pixel.Raw(2, e), 2) {
			t.Errorf("lat %g: pixel gradient = %g, want 2", lat, pixel.Raw(2, e))
		}
		want := 2 / math.Cos(lat*math.Pi/180)
		if absDifferent(physical.Raw(2, e), want) {
			t.Errorf("lat %g: physical gradient = %g, want %g", lat, physical.Raw(2, e), want)
		}
	}
	// The ramp jumps back from 7 to 0 across the date line.
	e := g.Index(1, 0, 0)
	if absDifferent(pixel.Raw(2, e), 1-7) {
		t.Errorf("wrapped gradient = %g, want -6", pixel.Raw(2, e))
	}
}

func TestSobelWeights(t *testing.T) {
	g := testGrid(t, 3)
	f := lonRamp(g)
	res := g.Resolution()
	w := [3]*unit.Unit{res[0], res[1], unit.Mul(res[2], unit.New(3, unit.Dimless))}
	sb, err := SobelFilter(g, f, Weights(w), Physical(false))
	if err != nil {
		t.Fatal(err)
	}
	e := g.Index(1, 1, 4)
	if absDifferent(sb.Raw(2, e), 6) {
		t.Errorf("weighted gradient = %g, want 6", sb.Raw(2, e))
	}
	sb, err = SobelFilter(g, f, Weights(w), Physical(false), Variability([3]float64{1, 1, 2}))
	if err != nil {
		t.Fatal(err)
	}
	if absDifferent(sb.Raw(2, e), 3) {
		t.Errorf("gradient with variability = %g, want 3", sb.Raw(2, e))
	}

	for name, opt := range map[string]SobelOption{
		"dimensions":  Weights([3]*unit.Unit{res[1], res[1], res[2]}),
		"missing":     Weights([3]*unit.Unit{res[0], nil, res[2]}),
		"variability": Variability([3]float64{1, 0, 1}),
	} {
		if _, err := SobelFilter(g, f, opt); !errors.Is(err, ErrScale) {
			t.Errorf("%s: err = %v, want ErrScale", name, err)
		}
	}
}

func TestSobel2D(t *testing.T) {
	g := testGrid(t, 1)
	d := sparse.ZerosDense(4, 8)
	for i := 0; i < 4; i++ {
		for j := 0; j < 8; j++ {
			d.Set(float64(i), i, j)
		}
	}
	sb, err := SobelFilter2D(g, d)
	if err != nil {
		t.Fatal(err)
	}
	if sb.Dims() != 2 {
		t.Fatalf("dims = %d", sb.Dims())
	}
	e := 1*8 + 2
	if absDifferent(sb.Magnitude(e), 1) || absDifferent(sb.Components[0].Elements[e], 1) {
		t.Errorf("magnitude = %g, direction = %g", sb.Magnitude(e), sb.Components[0].Elements[e])
	}
	if _, err := SobelFilter2D(g, sparse.ZerosDense(3, 8)); !errors.Is(err, ErrShape) {
		t.Errorf("err = %v, want ErrShape", err)
	}
}

func TestCombineGradients(t *testing.T) {
	g := testGrid(t, 3)
	f := lonRamp(g)
	physical, err := SobelFilter(g, f, Weights([3]*unit.Unit{years(1), km(100), km(100)}))
	if err != nil {
		t.Fatal(err)
	}
	pixel, err := SobelFilter(g, f, Physical(false))
	if err != nil {
		t.Fatal(err)
	}
	c := CombineGradients(physical, pixel)
	for e := 0; e < g.Len(); e++ {
		for k := 0; k < 3; k++ {
			if c.Components[k].Elements[e] != pixel.Components[k].Elements[e] {
				t.Fatalf("cell %d: direction %d not from pixel gradient", e, k)
			}
		}
		if c.Components[3].Elements[e] != physical.Components[3].Elements[e] {
			t.Fatalf("cell %d: magnitude not from physical gradient", e)
		}
	}
	c.Components[3].Elements[0] = -1
	if physical.Components[3].Elements[0] == -1 {
		t.Error("combined gradient aliases input")
	}
}
