package satellite

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	gosat "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/satellite-agent/internal/clock"
)

// DefaultTLEURL serves the current element set for the ISS.
const DefaultTLEURL = "https://api.wheretheiss.at/v1/satellites/25544/tles"

// Elements is a parsed two-line element set ready for SGP4 propagation.
type Elements struct {
	ID    int64
	Name  string
	Line1 string
	Line2 string

	sat gosat.Satellite
}

// ParseElements validates the TLE lines and initialises the SGP4 model.
//
// go-satellite calls log.Fatal on malformed input, so the line format is
// checked before handing the lines over.
func ParseElements(id int64, name, line1, line2 string) (*Elements, error) {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for NORAD %d: %w", id, err)
	}

	sat := gosat.TLEToSat(line1, line2, gosat.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for NORAD %d: code=%d %s", id, sat.Error, sat.ErrorStr)
	}
	return &Elements{ID: id, Name: name, Line1: line1, Line2: line2, sat: sat}, nil
}

func validateTLELines(line1, line2 string) error {
	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// Propagate computes the Record for time t with the same fields the
// tracking API serves.
func (e *Elements) Propagate(t time.Time) (*Record, error) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	pos, vel := gosat.Propagate(e.sat, year, int(month), day, hour, min, sec)
	if !finite(pos) || !finite(vel) {
		return nil, fmt.Errorf("sgp4 propagation failed for NORAD %d: output is NaN/Inf", e.ID)
	}
	if mag := norm(pos); mag < 6200.0 || mag > 50000.0 {
		return nil, fmt.Errorf("sgp4 propagation failed for NORAD %d: unreasonable position magnitude %.1f km", e.ID, mag)
	}

	gmst := gosat.GSTimeFromDate(year, int(month), day, hour, min, sec)
	altitude, _, ll := gosat.ECIToLLA(pos, gmst)
	jd := gosat.JDay(year, int(month), day, hour, min, sec)

	sun := sunPosition(jd)
	solarLat, solarLon := subsolarPoint(sun, gmst)
	visibility := "daylight"
	if eclipsed(pos, sun) {
		visibility = "eclipsed"
	}

	return &Record{
		Name:       e.Name,
		ID:         e.ID,
		Timestamp:  t.Unix(),
		Latitude:   degrees(ll.Latitude),
		Longitude:  normalizeLongitude(degrees(ll.Longitude)),
		Altitude:   altitude,
		Velocity:   norm(vel) * 3600,
		Visibility: visibility,
		Footprint:  footprint(altitude),
		Daynum:     jd,
		SolarLat:   solarLat,
		SolarLon:   solarLon,
		Units:      "kilometers",
	}, nil
}

func finite(v gosat.Vector3) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// tleResponse is the body served by the tracking API's /tles endpoint.
type tleResponse struct {
	ID    json.Number `json:"id"`
	Name  string      `json:"name"`
	Line1 string      `json:"line1"`
	Line2 string      `json:"line2"`
}

// TLESource propagates positions locally from an element set fetched from
// the tracking API. Elements are re-fetched once they are older than the
// refresh period.
type TLESource struct {
	url        string
	httpClient *http.Client
	clock      clock.Clock
	refresh    time.Duration

	mu        sync.Mutex
	elements  *Elements
	fetchedAt time.Time
}

// NewTLESource creates a TLESource. Zero values select DefaultTLEURL, a 10s
// timeout, a 6h refresh and the real clock.
func NewTLESource(url string, timeout, refresh time.Duration, clk clock.Clock) *TLESource {
	if url == "" {
		url = DefaultTLEURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if refresh <= 0 {
		refresh = 6 * time.Hour
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &TLESource{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		clock:      clk,
		refresh:    refresh,
	}
}

// Name implements Source.
func (s *TLESource) Name() string { return "tle" }

// Fetch implements Source.
func (s *TLESource) Fetch(ctx context.Context) (*Record, error) {
	elements, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return elements.Propagate(s.clock.Now())
}

// current returns cached elements, refreshing them when they are stale. A
// failed refresh falls back to the stale set if one exists.
func (s *TLESource) current(ctx context.Context) (*Elements, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.elements != nil && now.Sub(s.fetchedAt) < s.refresh {
		return s.elements, nil
	}

	elements, err := s.fetchElements(ctx)
	if err != nil {
		if s.elements != nil {
			return s.elements, nil
		}
		return nil, err
	}
	s.elements = elements
	s.fetchedAt = now
	return elements, nil
}

func (s *TLESource) fetchElements(ctx context.Context) (*Elements, error) {
	body, err := getJSON(ctx, s.httpClient, s.url)
	if err != nil {
		return nil, err
	}
	var resp tleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: tle: %v", ErrDecode, err)
	}
	id, err := strconv.ParseInt(resp.ID.String(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: tle id %q: %v", ErrDecode, resp.ID, err)
	}
	return ParseElements(id, resp.Name, resp.Line1, resp.Line2)
}
