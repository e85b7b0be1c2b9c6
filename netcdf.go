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
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// VariableSpec specifies the names of a gridded variable and its
// coordinate variables in a NetCDF file.
type VariableSpec struct {
	Name string

	// Names of the coordinate variables. Empty names default to
	// "lat", "lon" and "time".
	Lat, Lon, Time string
}

func (s VariableSpec) withDefaults() VariableSpec {
	if s.Lat == "" {
		s.Lat = "lat"
	}
	if s.Lon == "" {
		s.Lon = "lon"
	}
	if s.Time == "" {
		s.Time = "time"
	}
	return s
}

// LoadNetCDF reads the grid and the (time, lat, lon) variable described by
// spec from the NetCDF file in rw. The time variable must have a CF "units"
// attribute such as "days since 1850-01-01". Values equal to the
// "_FillValue" or "missing_value" attribute of the variable, and values
// that are not finite, are masked and set to zero. "scale_factor" and
// "add_offset" attributes are applied.
//
// If the time dimension is the record dimension, rw must have a
// Stat method, as *os.File does, so that the number of records can be
// determined.
func LoadNetCDF(rw cdf.ReaderWriterAt, spec VariableSpec) (*Grid, *Field, error) {
	spec = spec.withDefaults()
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, nil, fmt.Errorf("hypercc: opening netcdf file: %v", err)
	}
	numRecs := int64(-1)
	if s, ok := rw.(interface{ Stat() (os.FileInfo, error) }); ok {
		fi, err := s.Stat()
		if err != nil {
			return nil, nil, fmt.Errorf("hypercc: reading netcdf file size: %v", err)
		}
		numRecs = f.Header.NumRecs(fi.Size())
	}
	r := ncfReader{f: f, numRecs: numRecs}

	lat, err := r.read1D(spec.Lat)
	if err != nil {
		return nil, nil, err
	}
	lon, err := r.read1D(spec.Lon)
	if err != nil {
		return nil, nil, err
	}
	tv, err := r.read1D(spec.Time)
	if err != nil {
		return nil, nil, err
	}
	dates, err := decodeTime(tv, attrString(f.Header, spec.Time, "units"),
		attrString(f.Header, spec.Time, "calendar"))
	if err != nil {
		return nil, nil, fmt.Errorf("hypercc: decoding %s: %v", spec.Time, err)
	}
	g, err := NewGrid(lat, lon, dates)
	if err != nil {
		return nil, nil, err
	}

	dims := f.Header.Dimensions(spec.Name)
	if dims == nil {
		return nil, nil, fmt.Errorf("hypercc: variable %s is not in the netcdf file", spec.Name)
	}
	if len(dims) != 3 {
		return nil, nil, fmt.Errorf("hypercc: variable %s has dimensions %v; want 3 dimensions "+
			"(time, lat, lon)", spec.Name, dims)
	}
	data, err := r.read(spec.Name)
	if err != nil {
		return nil, nil, err
	}
	shape := g.Shape()
	if len(data.Elements) != g.Len() {
		return nil, nil, fmt.Errorf("hypercc: variable %s has shape %v; grid shape is %v: %w",
			spec.Name, data.Shape, shape, ErrShape)
	}

	h := f.Header
	fills := []float64{}
	for _, a := range []string{"_FillValue", "missing_value"} {
		if v, ok := attrFloat(h, spec.Name, a); ok {
			fills = append(fills, v)
		}
	}
	scale, ok := attrFloat(h, spec.Name, "scale_factor")
	if !ok {
		scale = 1
	}
	offset, _ := attrFloat(h, spec.Name, "add_offset")

	fld := &Field{Data: sparse.ZerosDense(shape...), Mask: make([]bool, g.Len())}
	var masked bool
	for i, v := range data.Elements {
		bad := math.IsNaN(v) || math.IsInf(v, 0)
		for _, fv := range fills {
			if v == fv {
				bad = true
			}
		}
		if bad {
			fld.Mask[i] = true
			masked = true
			continue
		}
		fld.Data.Elements[i] = v*scale + offset
	}
	if !masked {
		fld.Mask = nil
	}
	return g, fld, nil
}

type ncfReader struct {
	f       *cdf.File
	numRecs int64
}

// lengths returns the dimension lengths of v, with the record dimension
// resolved to the number of records.
func (r ncfReader) lengths(v string) ([]int, error) {
	l := r.f.Header.Lengths(v)
	if l == nil {
		return nil, fmt.Errorf("hypercc: variable %s is not in the netcdf file", v)
	}
	l = append([]int(nil), l...)
	if r.f.Header.IsRecordVariable(v) {
		if r.numRecs < 0 {
			return nil, fmt.Errorf("hypercc: cannot determine the number of records of %s", v)
		}
		l[0] = int(r.numRecs)
	}
	return l, nil
}

func (r ncfReader) read(v string) (*sparse.DenseArray, error) {
	end, err := r.lengths(v)
	if err != nil {
		return nil, err
	}
	n := 1
	for _, e := range end {
		n *= e
	}
	o := sparse.ZerosDense(end...)
	if n == 0 {
		return o, nil
	}
	rd := r.f.Reader(v, make([]int, len(end)), end)
	buf := rd.Zero(n)
	if _, err := rd.Read(buf); err != nil {
		return nil, fmt.Errorf("hypercc: reading netcdf variable %s: %v", v, err)
	}
	if err := toFloat64(buf, o.Elements); err != nil {
		return nil, fmt.Errorf("hypercc: reading netcdf variable %s: %v", v, err)
	}
	return o, nil
}

func (r ncfReader) read1D(v string) ([]float64, error) {
	d, err := r.read(v)
	if err != nil {
		return nil, err
	}
	if len(d.Shape) != 1 {
		return nil, fmt.Errorf("hypercc: coordinate variable %s has %d dimensions; want 1",
			v, len(d.Shape))
	}
	return d.Elements, nil
}

func toFloat64(buf interface{}, o []float64) error {
	switch b := buf.(type) {
	case []float64:
		copy(o, b)
	case []float32:
		for i, v := range b {
			o[i] = float64(v)
		}
	case []int32:
		for i, v := range b {
			o[i] = float64(v)
		}
	case []int16:
		for i, v := range b {
			o[i] = float64(v)
		}
	case []uint8:
		for i, v := range b {
			o[i] = float64(v)
		}
	default:
		return fmt.Errorf("unsupported data type %T", buf)
	}
	return nil
}

func attrString(h *cdf.Header, v, a string) string {
	s, _ := h.GetAttribute(v, a).(string)
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

// attrFloat returns the first value of a numeric attribute.
func attrFloat(h *cdf.Header, v, a string) (float64, bool) {
	switch b := h.GetAttribute(v, a).(type) {
	case []float64:
		if len(b) > 0 {
			return b[0], true
		}
	case []float32:
		if len(b) > 0 {
			return float64(b[0]), true
		}
	case []int32:
		if len(b) > 0 {
			return float64(b[0]), true
		}
	case []int16:
		if len(b) > 0 {
			return float64(b[0]), true
		}
	case []uint8:
		if len(b) > 0 {
			return float64(b[0]), true
		}
	}
	return 0, false
}

var timeUnits = regexp.MustCompile(`^\s*(\w+)\s+since\s+(.+?)\s*$`)

// decodeTime converts CF time values to dates.
func decodeTime(values []float64, units, calendar string) ([]time.Time, error) {
	m := timeUnits.FindStringSubmatch(units)
	if m == nil {
		return nil, fmt.Errorf("invalid time units %q", units)
	}
	var step float64
	switch strings.ToLower(m[1]) {
	case "days", "day", "d":
		step = secondsPerDay
	case "hours", "hour", "h":
		step = 3600
	case "minutes", "minute", "min":
		step = 60
	case "seconds", "second", "s":
		step = 1
	default:
		return nil, fmt.Errorf("unsupported time unit %q", m[1])
	}
	ref, err := parseReferenceDate(m[2])
	if err != nil {
		return nil, err
	}
	o := make([]time.Time, len(values))
	switch strings.ToLower(calendar) {
	case "", "standard", "gregorian", "proleptic_gregorian":
		for i, v := range values {
			o[i] = addSeconds(ref, v*step)
		}
	case "noleap", "365_day":
		for i, v := range values {
			o[i] = addSecondsNoLeap(ref, v*step)
		}
	default:
		return nil, fmt.Errorf("unsupported calendar %q", calendar)
	}
	return o, nil
}

var referenceLayouts = []string{
	"2006-1-2 15:4:5",
	"2006-1-2T15:4:5",
	"2006-1-2 15:4:5.999999999",
	"2006-1-2T15:4:5Z",
	"2006-1-2 15:4",
	"2006-1-2",
}

func parseReferenceDate(s string) (time.Time, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), " UTC")
	if i := strings.Index(s, " +"); i > 0 {
		s = s[:i]
	}
	for _, l := range referenceLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid reference date %q", s)
}

// addSeconds returns ref plus s seconds, rounded to the nearest second.
// Whole days are added separately to avoid overflowing time.Duration.
func addSeconds(ref time.Time, s float64) time.Time {
	days := math.Floor(s / secondsPerDay)
	rem := s - days*secondsPerDay
	return ref.AddDate(0, 0, int(days)).Add(time.Duration(math.Round(rem)) * time.Second)
}

var noLeapMonthStart = [13]int{0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334, 365}

// addSecondsNoLeap returns ref plus s seconds in a calendar without
// leap days.
func addSecondsNoLeap(ref time.Time, s float64) time.Time {
	sod := float64(ref.Hour()*3600+ref.Minute()*60+ref.Second()) + s
	days := math.Floor(sod / secondsPerDay)
	sod -= days * secondsPerDay
	doy := noLeapMonthStart[ref.Month()-1] + ref.Day() - 1
	if ref.Month() == time.February && ref.Day() == 29 {
		doy--
	}
	total := doy + int(days)
	year := ref.Year() + floorDiv(total, 365)
	doy = total - floorDiv(total, 365)*365
	month := 1
	for doy >= noLeapMonthStart[month] {
		month++
	}
	day := doy - noLeapMonthStart[month-1] + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).
		Add(time.Duration(math.Round(sod)) * time.Second)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// WriteField writes f to w as a NetCDF file that can be read with
// LoadNetCDF using spec. Time is written in days since the start of the
// year of the first date.
func WriteField(w *os.File, g *Grid, f *Field, spec VariableSpec) error {
	if err := f.Check(g); err != nil {
		return err
	}
	spec = spec.withDefaults()
	h := newGridHeader(g, spec)
	h.AddVariable(spec.Name, []string{spec.Time, spec.Lat, spec.Lon}, []float32{0})
	fill := []float32{cdfFillFloat}
	h.AddAttribute(spec.Name, "_FillValue", fill)
	h.Define()

	cf, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("hypercc: creating netcdf file: %v", err)
	}
	if err := writeGridVars(cf, g, spec); err != nil {
		return err
	}
	data := make([]float32, len(f.Data.Elements))
	for i, v := range f.Data.Elements {
		if f.Mask != nil && f.Mask[i] {
			data[i] = cdfFillFloat
			continue
		}
		data[i] = float32(v)
	}
	if err := writeNCFVar(cf, spec.Name, data); err != nil {
		return err
	}
	return cdf.UpdateNumRecs(w)
}

// WriteNetCDF writes the results of a detection run on grid g to w.
// attrs are added as global attributes.
func WriteNetCDF(w *os.File, g *Grid, r *Result, attrs map[string]string) error {
	spec := VariableSpec{}.withDefaults()
	h := newGridHeader(g, spec)
	if _, ok := attrs["comment"]; !ok {
		h.AddAttribute("", "comment", "hypercc edge detection results")
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.AddAttribute("", k, attrs[k])
	}
	tll := []string{spec.Time, spec.Lat, spec.Lon}
	ll := []string{spec.Lat, spec.Lon}

	type variable struct {
		name, description, units string
		dims                     []string
		data                     interface{}
	}
	nt, nlat, nlon := len(g.Dates), len(g.Lat), len(g.Lon)
	vars := []variable{
		{"edges", "1 where an edge was detected", "1", tll, boolToUint8(r.Edges.Elements)},
		{"labels", "label of the connected edge component", "1", tll, intToInt32(r.Labels.Elements)},
		{"edge_count", "number of time steps that are part of an edge", "1", ll,
			toInt32(r.Edges.Sum().Elements)},
		{"max_label", "largest component label over time", "1", ll, toInt32(r.Labels.Max().Elements)},
		{"abruptness", "abruptness of each edge cell", "1", tll, toFloat32(r.Abruptness.Score.Elements)},
		{"max_abruptness", "maximum abruptness over time", "1", ll, toFloat32(r.Abruptness.Max.Elements)},
		{"max_year", "year of the maximum abruptness, 0 where there is none", "year", ll,
			toInt32(r.Abruptness.MaxYear(g).Elements)},
	}
	if r.Smoothed != nil {
		vars = append(vars, variable{"smoothed", "tapered and smoothed input", "", tll,
			toFloat32(r.Smoothed.Data.Elements)})
	}
	if r.Gradient != nil {
		mag := make([]float64, nt*nlat*nlon)
		for i := range mag {
			if m := r.Gradient.Magnitude(i); !math.IsInf(m, 0) {
				mag[i] = m
			}
		}
		vars = append(vars, variable{"gradient_magnitude", "weighted Sobel gradient magnitude", "1",
			tll, toFloat32(mag)})
	}
	for _, v := range vars {
		h.AddVariable(v.name, v.dims, v.data)
		h.AddAttribute(v.name, "description", v.description)
		if v.units != "" {
			h.AddAttribute(v.name, "units", v.units)
		}
	}
	h.Define()

	cf, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("hypercc: creating netcdf file: %v", err)
	}
	if err := writeGridVars(cf, g, spec); err != nil {
		return err
	}
	for _, v := range vars {
		if err := writeNCFVar(cf, v.name, v.data); err != nil {
			return err
		}
	}
	return cdf.UpdateNumRecs(w)
}

// cdfFillFloat is the default NetCDF fill value for floats.
const cdfFillFloat = float32(9.9692099683868690e+36)

func newGridHeader(g *Grid, spec VariableSpec) *cdf.Header {
	h := cdf.NewHeader([]string{spec.Time, spec.Lat, spec.Lon},
		[]int{len(g.Dates), len(g.Lat), len(g.Lon)})
	h.AddVariable(spec.Time, []string{spec.Time}, []float64{0})
	h.AddAttribute(spec.Time, "units", fmt.Sprintf("days since %04d-01-01 00:00:00", g.Dates[0].Year()))
	h.AddAttribute(spec.Time, "calendar", "standard")
	h.AddVariable(spec.Lat, []string{spec.Lat}, []float64{0})
	h.AddAttribute(spec.Lat, "units", "degrees_north")
	h.AddVariable(spec.Lon, []string{spec.Lon}, []float64{0})
	h.AddAttribute(spec.Lon, "units", "degrees_east")
	return h
}

func writeGridVars(f *cdf.File, g *Grid, spec VariableSpec) error {
	ref := time.Date(g.Dates[0].Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	days := make([]float64, len(g.Dates))
	for i, d := range g.Dates {
		days[i] = float64(d.Unix()-ref.Unix()) / secondsPerDay
	}
	if err := writeNCFVar(f, spec.Time, days); err != nil {
		return err
	}
	if err := writeNCFVar(f, spec.Lat, g.Lat); err != nil {
		return err
	}
	return writeNCFVar(f, spec.Lon, g.Lon)
}

func writeNCFVar(f *cdf.File, name string, data interface{}) error {
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("hypercc: writing variable %s to netcdf file: %v", name, err)
	}
	return nil
}

func toFloat32(d []float64) []float32 {
	o := make([]float32, len(d))
	for i, v := range d {
		o[i] = float32(v)
	}
	return o
}

func toInt32(d []float64) []int32 {
	o := make([]int32, len(d))
	for i, v := range d {
		o[i] = int32(v)
	}
	return o
}

func intToInt32(d []int) []int32 {
	o := make([]int32, len(d))
	for i, v := range d {
		o[i] = int32(v)
	}
	return o
}

func boolToUint8(d []bool) []uint8 {
	o := make([]uint8, len(d))
	for i, v := range d {
		if v {
			o[i] = 1
		}
	}
	return o
}
