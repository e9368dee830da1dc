package agent

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultInterval is the poll interval used until configuration says otherwise.
const DefaultInterval = 10 * time.Second

// IntervalCell holds the poll interval. The notification listener writes it
// and the poller reads it right before each sleep.
type IntervalCell struct {
	v atomic.Int64
}

// NewIntervalCell returns a cell holding d, or DefaultInterval when d <= 0.
func NewIntervalCell(d time.Duration) *IntervalCell {
	c := &IntervalCell{}
	if d <= 0 {
		d = DefaultInterval
	}
	c.v.Store(int64(d))
	return c
}

// Load returns the current interval.
func (c *IntervalCell) Load() time.Duration {
	return time.Duration(c.v.Load())
}

// Store replaces the interval. Non-positive values are rejected and reported
// as false.
func (c *IntervalCell) Store(d time.Duration) bool {
	if d <= 0 {
		return false
	}
	c.v.Store(int64(d))
	return true
}

// configPayload is the JSON document carried by a configuration notification
// for the satellite container.
type configPayload struct {
	Interval *struct {
		Value json.RawMessage `json:"value"`
	} `json:"interval"`
}

// parseIntervalUpdate extracts interval.value, in seconds, from a config
// notification payload. The value may be a JSON number or a numeric string.
// ok is false when the payload carries no usable interval.
func parseIntervalUpdate(payload string) (d time.Duration, ok bool) {
	var p configPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return 0, false
	}
	if p.Interval == nil || len(p.Interval.Value) == 0 {
		return 0, false
	}

	raw := strings.TrimSpace(string(p.Interval.Value))
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return 0, false
	}
	if seconds > math.MaxInt64/float64(time.Second) {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}
