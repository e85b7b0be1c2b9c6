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

// Package hypercc detects abrupt, spatially coherent shifts in gridded
// (time, latitude, longitude) climate time series using a three
// dimensional Canny-style edge detector.
package hypercc

import (
	"fmt"
	"math"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/unit"
)

// Version is the version of hypercc.
const Version = "0.1.0"

const (
	earthRadius    = 6371.0e3               // m
	secondsPerDay  = 24. * 3600.            // s
	secondsPerYear = 365.25 * secondsPerDay // s, Julian year

	// rectangularTolerance is the maximum relative deviation
	// of a coordinate spacing from the mean spacing.
	rectangularTolerance = 1.e-4
)

// Year is a Julian year.
var Year = unit.New(secondsPerYear, unit.Second)

// Kilometer is 1000 meters.
var Kilometer = unit.New(1000, unit.Meter)

// Grid describes the geometry of a (time, lat, lon) data set.
// A Grid should not be modified after it is created.
type Grid struct {
	Lat   []float64   // latitude of each row [degrees north]
	Lon   []float64   // longitude of each column [degrees east]
	Dates []time.Time // date of each time step
}

// NewGrid creates a new grid from the given coordinates.
func NewGrid(lat, lon []float64, dates []time.Time) (*Grid, error) {
	if len(lat) == 0 || len(lon) == 0 || len(dates) == 0 {
		return nil, fmt.Errorf("hypercc: grid must have at least one point along each axis "+
			"(time=%d, lat=%d, lon=%d)", len(dates), len(lat), len(lon))
	}
	for _, l := range lat {
		if l < -90 || l > 90 {
			return nil, fmt.Errorf("hypercc: latitude %g is out of range", l)
		}
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return nil, fmt.Errorf("hypercc: dates must be strictly increasing; "+
				"date %d (%v) is not after %v", i, dates[i], dates[i-1])
		}
	}
	return &Grid{Lat: lat, Lon: lon, Dates: dates}, nil
}

// Shape returns the number of time steps, latitude rows and longitude
// columns in the grid.
func (g *Grid) Shape() []int {
	return []int{len(g.Dates), len(g.Lat), len(g.Lon)}
}

// Len returns the total number of cells in the grid.
func (g *Grid) Len() int {
	return len(g.Dates) * len(g.Lat) * len(g.Lon)
}

// Index returns the flat index of cell (t, i, j).
func (g *Grid) Index(t, i, j int) int {
	return (t*len(g.Lat)+i)*len(g.Lon) + j
}

// Resolution returns the physical size of a pixel along each axis:
// the mean time step, the latitudinal distance between rows, and the
// longitudinal distance between columns at the equator.
func (g *Grid) Resolution() [3]*unit.Unit {
	var dt float64
	if n := len(g.Dates); n > 1 {
		dt = g.Dates[n-1].Sub(g.Dates[0]).Seconds() / float64(n-1)
	}
	return [3]*unit.Unit{
		unit.New(dt, unit.Second),
		unit.New(math.Abs(meanSpacing(g.Lat))*math.Pi/180*earthRadius, unit.Meter),
		unit.New(math.Abs(meanSpacing(g.Lon))*math.Pi/180*earthRadius, unit.Meter),
	}
}

// Rectangular returns whether latitudes and longitudes are uniformly
// spaced. The filters require a rectangular grid.
func (g *Grid) Rectangular() bool {
	return uniform(g.Lat) && uniform(g.Lon)
}

// Periodic returns whether the longitudes span the full circle, so that
// the last column neighbors the first.
func (g *Grid) Periodic() bool {
	if len(g.Lon) < 2 {
		return false
	}
	span := meanSpacing(g.Lon) * float64(len(g.Lon))
	return math.Abs(math.Abs(span)-360) < 360*rectangularTolerance*float64(len(g.Lon))
}

// Date returns the date of time step i.
func (g *Grid) Date(i int) time.Time { return g.Dates[i] }

// Years returns the time of each step as a fractional calendar year.
func (g *Grid) Years() []float64 {
	o := make([]float64, len(g.Dates))
	for i, d := range g.Dates {
		o[i] = decimalYear(d)
	}
	return o
}

// Bounds returns the longitude/latitude extent of the grid.
func (g *Grid) Bounds() *geom.Bounds {
	b := geom.NewBounds()
	for _, lat := range []float64{g.Lat[0], g.Lat[len(g.Lat)-1]} {
		for _, lon := range []float64{g.Lon[0], g.Lon[len(g.Lon)-1]} {
			b.Extend(geom.NewBoundsPoint(geom.Point{X: lon, Y: lat}))
		}
	}
	return b
}

// cosLat returns the cosine of each latitude.
func (g *Grid) cosLat() []float64 {
	o := make([]float64, len(g.Lat))
	for i, lat := range g.Lat {
		o[i] = math.Cos(lat / 180 * math.Pi)
	}
	return o
}

func (g *Grid) checkRectangular() error {
	if !g.Rectangular() {
		return fmt.Errorf("hypercc: %w", ErrNotRectangular)
	}
	return nil
}

func decimalYear(d time.Time) float64 {
	start := time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, d.Location())
	end := start.AddDate(1, 0, 0)
	return float64(d.Year()) + d.Sub(start).Seconds()/end.Sub(start).Seconds()
}

func meanSpacing(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return (x[len(x)-1] - x[0]) / float64(len(x)-1)
}

func uniform(x []float64) bool {
	if len(x) < 2 {
		return false
	}
	d := meanSpacing(x)
	if d == 0 {
		return false
	}
	for i := 1; i < len(x); i++ {
		if math.Abs((x[i]-x[i-1])-d) > math.Abs(d)*rectangularTolerance {
			return false
		}
	}
	return true
}
