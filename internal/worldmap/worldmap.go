// Package worldmap renders a satellite record as an ASCII world map with the
// satellite's ground position marked and a side panel of its fields.
package worldmap

import (
	"fmt"
	"iter"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/signalsfoundry/satellite-agent/internal/satellite"
)

// DefaultGlyph marks the satellite position.
const DefaultGlyph = "#"

// Style decorates glyphs for the output target. Nil functions leave the glyph
// untouched.
type Style struct {
	// Marker decorates the glyph drawn on the map.
	Marker func(string) string
	// Legend decorates the glyph quoted in the side panel.
	Legend func(string) string
}

// Plain draws bare glyphs.
var Plain = Style{}

// ANSI draws a blinking bright-green marker and a bright-green legend.
var ANSI = Style{
	Marker: sgr("5;92"),
	Legend: sgr("92"),
}

func sgr(code string) func(string) string {
	return func(s string) string { return "\033[" + code + "m" + s + "\033[00m" }
}

// Options controls rendering.
type Options struct {
	Glyph string
	Style Style
}

func (o Options) glyph() string {
	if o.Glyph == "" {
		return DefaultGlyph
	}
	return o.Glyph
}

func apply(f func(string) string, s string) string {
	if f == nil {
		return s
	}
	return f(s)
}

// Project maps a geographic position onto a map cell. Latitude 90 lands on
// row 0 and -90 on the last row; longitude -180 lands on column 0 and 180 on
// the last column. Halfway cases round to even. Out-of-range input is clamped
// onto the map.
func Project(lat, lon float64) (row, col int) {
	row = interpolate(lat, 90, -90, 0, Height-1)
	col = interpolate(lon, -180, 180, 0, Width-1)
	return row, col
}

func interpolate(x, inMin, inMax float64, outMin, outMax int) int {
	if math.IsNaN(x) {
		x = (inMin + inMax) / 2
	}
	v := math.RoundToEven((x-inMin)*float64(outMax-outMin)/(inMax-inMin) + float64(outMin))
	lo, hi := float64(min(outMin, outMax)), float64(max(outMin, outMax))
	return int(math.Max(lo, math.Min(hi, v)))
}

// Canvas is a mutable copy of the world map. Each cell holds one glyph,
// possibly wrapped in styling escapes.
type Canvas struct {
	cells [Height][]string
}

// NewCanvas returns a fresh copy of the base map.
func NewCanvas() *Canvas {
	c := &Canvas{}
	for i, line := range baseMap {
		row := make([]string, 0, Width)
		for _, r := range line {
			row = append(row, string(r))
		}
		c.cells[i] = row
	}
	return c
}

// Set replaces the cell at row, col. Positions outside the map are ignored.
func (c *Canvas) Set(row, col int, glyph string) {
	if row < 0 || row >= Height || col < 0 || col >= len(c.cells[row]) {
		return
	}
	c.cells[row][col] = glyph
}

// Row returns line i of the canvas.
func (c *Canvas) Row(i int) string {
	return strings.Join(c.cells[i], "")
}

// Panel messages shown when no record is available.
const (
	LostConnection   = "We have lost connection to the space station"
	ContactAstronaut = "Please contact your local astronaut!"
)

// Lines renders rec as the 25 map lines. The sequence is computed lazily from
// a fresh canvas on every iteration, so it can be ranged over repeatedly. A
// nil record, or one without a name, renders the map without a marker and
// with the lost-connection message on lines 1 and 2.
func Lines(rec *satellite.Record, opts Options) iter.Seq[string] {
	return func(yield func(string) bool) {
		canvas := NewCanvas()
		var panel []string
		if rec == nil || rec.Name == "" {
			panel = []string{LostConnection, ContactAstronaut}
		} else {
			row, col := Project(rec.Latitude, rec.Longitude)
			canvas.Set(row, col, apply(opts.Style.Marker, opts.glyph()))
			panel = fields(rec, opts)
		}

		for i := 0; i < Height; i++ {
			line := canvas.Row(i)
			if p := i - 1; p >= 0 && p < len(panel) {
				line += "\t" + panel[p]
			}
			if !yield(line) {
				return
			}
		}
	}
}

// Render collects Lines into a slice.
func Render(rec *satellite.Record, opts Options) []string {
	return slices.Collect(Lines(rec, opts))
}

func fields(rec *satellite.Record, opts Options) []string {
	f := satellite.FormatFloat
	return []string{
		label("Name", rec.Name),
		label("Id", strconv.FormatInt(rec.ID, 10)),
		label("Timestamp", strconv.FormatInt(rec.Timestamp, 10)),
		label("Latitude", f(rec.Latitude)),
		label("Longitude", f(rec.Longitude)),
		label("Altitude", f(rec.Altitude)),
		label("Velocity", f(rec.Velocity)),
		label("Visibility", rec.Visibility),
		label("Footprint", f(rec.Footprint)),
		label("Daynum", f(rec.Daynum)),
		label("Solar lat.", f(rec.SolarLat)),
		label("Solar lon.", f(rec.SolarLon)),
		label("Units", rec.Units),
		label("Character", apply(opts.Style.Legend, "'"+opts.glyph()+"'")),
	}
}

func label(name, value string) string {
	return fmt.Sprintf("%-12s: %s", name, value)
}
