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
	"fmt"
	"math"

	"github.com/ctessum/sparse"
)

// Errors returned by the detector. They are wrapped with additional
// context, so use errors.Is to test for them.
var (
	// ErrNotRectangular is returned when a grid is not uniformly spaced.
	ErrNotRectangular = errors.New("grid is not rectangular")

	// ErrShape is returned when the shape of a field does not match its grid.
	ErrShape = errors.New("field shape does not match grid")

	// ErrNoControl is returned when calibration is requested without
	// a control data set.
	ErrNoControl = errors.New("calibration requires a control data set")

	// ErrQuartile is returned for a calibration quartile outside of [0, 4].
	ErrQuartile = errors.New("calibration quartile must be between 0 and 4")

	// ErrScale is returned for a physical scale that is negative, zero
	// where a positive value is required, or that has the wrong dimensions.
	ErrScale = errors.New("invalid physical scale")

	// ErrDegenerateCalibration is returned when the control run does not
	// provide a usable gradient distribution at the requested quartile.
	ErrDegenerateCalibration = errors.New("degenerate calibration")
)

// Field is a gridded scalar field with dimensions (time, lat, lon).
type Field struct {
	Data *sparse.DenseArray

	// Mask is true where data are missing or invalid, for example
	// land cells in an ocean variable. A nil Mask means that all cells
	// are valid.
	Mask []bool
}

// NewField returns a zero-valued field with no mask for the given grid.
func NewField(g *Grid) *Field {
	return &Field{Data: sparse.ZerosDense(g.Shape()...)}
}

// Copy returns a deep copy of f.
func (f *Field) Copy() *Field {
	o := &Field{Data: sparse.ZerosDense(f.Data.Shape...)}
	copy(o.Data.Elements, f.Data.Elements)
	if f.Mask != nil {
		o.Mask = make([]bool, len(f.Mask))
		copy(o.Mask, f.Mask)
	}
	return o
}

// Invalid returns whether element i is masked or not a finite number.
func (f *Field) Invalid(i int) bool {
	if f.Mask != nil && f.Mask[i] {
		return true
	}
	v := f.Data.Elements[i]
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// Masked returns whether any element of f is masked.
func (f *Field) Masked() bool {
	for _, m := range f.Mask {
		if m {
			return true
		}
	}
	return false
}

// Check returns an error if the shape of f does not match g.
func (f *Field) Check(g *Grid) error {
	if f == nil || f.Data == nil {
		return fmt.Errorf("hypercc: missing field data: %w", ErrShape)
	}
	if !sameShape(f.Data.Shape, g.Shape()) {
		return fmt.Errorf("hypercc: field shape %v, grid shape %v: %w",
			f.Data.Shape, g.Shape(), ErrShape)
	}
	if f.Mask != nil && len(f.Mask) != len(f.Data.Elements) {
		return fmt.Errorf("hypercc: mask length %d, data length %d: %w",
			len(f.Mask), len(f.Data.Elements), ErrShape)
	}
	return nil
}

// Mask is a boolean array, such as the cells where edges were detected.
type Mask struct {
	Shape    []int
	Elements []bool
}

// NewMask returns an all-false mask with the given shape.
func NewMask(shape ...int) *Mask {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return &Mask{Shape: append([]int(nil), shape...), Elements: make([]bool, n)}
}

// Get returns the value at the given index.
func (m *Mask) Get(index ...int) bool {
	return m.Elements[flatIndex(m.Shape, index)]
}

// Set sets the value at the given index.
func (m *Mask) Set(val bool, index ...int) {
	m.Elements[flatIndex(m.Shape, index)] = val
}

// Count returns the number of true elements.
func (m *Mask) Count() int {
	var n int
	for _, v := range m.Elements {
		if v {
			n++
		}
	}
	return n
}

// Sum returns the number of true elements along the first dimension
// for each position in the remaining dimensions, for example the number
// of edge years in each grid cell.
func (m *Mask) Sum() *sparse.DenseArray {
	o := sparse.ZerosDense(m.Shape[1:]...)
	n := len(o.Elements)
	for i, v := range m.Elements {
		if v {
			o.Elements[i%n]++
		}
	}
	return o
}

// Labels holds integer component labels, where 0 is the background.
type Labels struct {
	Shape    []int
	Elements []int
}

// Get returns the label at the given index.
func (l *Labels) Get(index ...int) int {
	return l.Elements[flatIndex(l.Shape, index)]
}

// Max returns the maximum label along the first dimension for each
// position in the remaining dimensions.
func (l *Labels) Max() *sparse.DenseArray {
	o := sparse.ZerosDense(l.Shape[1:]...)
	n := len(o.Elements)
	for i, v := range l.Elements {
		if float64(v) > o.Elements[i%n] {
			o.Elements[i%n] = float64(v)
		}
	}
	return o
}

func flatIndex(shape, index []int) int {
	if len(index) != len(shape) {
		panic(fmt.Errorf("hypercc: index %v does not match shape %v", index, shape))
	}
	var i int
	for k, s := range shape {
		if index[k] < 0 || index[k] >= s {
			panic(fmt.Errorf("hypercc: index %v out of range for shape %v", index, shape))
		}
		i = i*s + index[k]
	}
	return i
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
