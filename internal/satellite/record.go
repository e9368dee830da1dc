// Package satellite models the tracked satellite's position record and the
// sources that produce it.
package satellite

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrDecode is returned when a payload cannot be turned into a Record.
	ErrDecode = errors.New("decode satellite record")
	// ErrUnexpectedStatus is returned when the tracking API answers with a
	// non-200 status.
	ErrUnexpectedStatus = errors.New("unexpected status from tracking API")
)

// Record is one snapshot of the satellite's position as served by the
// tracking API. A Record is never mutated after it has been produced.
type Record struct {
	Name       string  `json:"name"`
	ID         int64   `json:"id"`
	Timestamp  int64   `json:"timestamp"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Altitude   float64 `json:"altitude"`
	Velocity   float64 `json:"velocity"`
	Visibility string  `json:"visibility"`
	Footprint  float64 `json:"footprint"`
	Daynum     float64 `json:"daynum"`
	SolarLat   float64 `json:"solar_lat"`
	SolarLon   float64 `json:"solar_lon"`
	Units      string  `json:"units"`
}

// wireRecord mirrors Record with pointers on the keys that must be present.
type wireRecord struct {
	Name       *string     `json:"name"`
	ID         json.Number `json:"id"`
	Timestamp  json.Number `json:"timestamp"`
	Latitude   *float64    `json:"latitude"`
	Longitude  *float64    `json:"longitude"`
	Altitude   float64     `json:"altitude"`
	Velocity   float64     `json:"velocity"`
	Visibility string      `json:"visibility"`
	Footprint  float64     `json:"footprint"`
	Daynum     float64     `json:"daynum"`
	SolarLat   float64     `json:"solar_lat"`
	SolarLon   float64     `json:"solar_lon"`
	Units      string      `json:"units"`
}

// Decode parses the tracking API's flat JSON object. name, latitude and
// longitude are mandatory; every other key defaults to its zero value.
func Decode(data []byte) (*Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	switch {
	case w.Name == nil:
		return nil, fmt.Errorf("%w: missing name", ErrDecode)
	case w.Latitude == nil:
		return nil, fmt.Errorf("%w: missing latitude", ErrDecode)
	case w.Longitude == nil:
		return nil, fmt.Errorf("%w: missing longitude", ErrDecode)
	}

	id, err := parseInt(w.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: id: %v", ErrDecode, err)
	}
	ts, err := parseInt(w.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", ErrDecode, err)
	}

	return &Record{
		Name:       *w.Name,
		ID:         id,
		Timestamp:  ts,
		Latitude:   *w.Latitude,
		Longitude:  *w.Longitude,
		Altitude:   w.Altitude,
		Velocity:   w.Velocity,
		Visibility: w.Visibility,
		Footprint:  w.Footprint,
		Daynum:     w.Daynum,
		SolarLat:   w.SolarLat,
		SolarLon:   w.SolarLon,
		Units:      w.Units,
	}, nil
}

// parseInt accepts integral numbers and floats with no fractional part
// ("1364069476.0" is seen from some mirrors of the API).
func parseInt(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	if v, err := n.Int64(); err == nil {
		return v, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("%s is not an integer", n)
	}
	return int64(f), nil
}

// FieldValue is the leaf shape the state datastore expects for each YANG leaf.
type FieldValue struct {
	Value string `json:"value"`
}

// Fields flattens the record into key -> {"value": "<string>"} pairs. Every
// field, numeric or not, is rendered as a string.
func (r *Record) Fields() map[string]FieldValue {
	return map[string]FieldValue{
		"name":       {Value: r.Name},
		"id":         {Value: strconv.FormatInt(r.ID, 10)},
		"timestamp":  {Value: strconv.FormatInt(r.Timestamp, 10)},
		"latitude":   {Value: FormatFloat(r.Latitude)},
		"longitude":  {Value: FormatFloat(r.Longitude)},
		"altitude":   {Value: FormatFloat(r.Altitude)},
		"velocity":   {Value: FormatFloat(r.Velocity)},
		"visibility": {Value: r.Visibility},
		"footprint":  {Value: FormatFloat(r.Footprint)},
		"daynum":     {Value: FormatFloat(r.Daynum)},
		"solar_lat":  {Value: FormatFloat(r.SolarLat)},
		"solar_lon":  {Value: FormatFloat(r.SolarLon)},
		"units":      {Value: r.Units},
	}
}

// TelemetryJSON encodes Fields as the JSON document pushed to the datastore.
func (r *Record) TelemetryJSON() (string, error) {
	b, err := json.Marshal(r.Fields())
	if err != nil {
		return "", fmt.Errorf("encode telemetry: %w", err)
	}
	return string(b), nil
}

// FormatFloat renders v with the fewest digits that round-trip, without an
// exponent (408.5 -> "408.5", 27600 -> "27600").
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
