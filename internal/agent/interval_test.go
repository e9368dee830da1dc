package agent

import (
	"sync"
	"testing"
	"time"
)

func TestIntervalCellDefaults(t *testing.T) {
	if got := NewIntervalCell(0).Load(); got != DefaultInterval {
		t.Fatalf("Load() = %v, want %v", got, DefaultInterval)
	}
	if got := NewIntervalCell(5 * time.Second).Load(); got != 5*time.Second {
		t.Fatalf("Load() = %v, want 5s", got)
	}
}

func TestIntervalCellRejectsNonPositive(t *testing.T) {
	c := NewIntervalCell(5 * time.Second)
	if c.Store(0) || c.Store(-time.Second) {
		t.Fatalf("Store accepted a non-positive interval")
	}
	if got := c.Load(); got != 5*time.Second {
		t.Fatalf("Load() = %v after rejected stores, want 5s", got)
	}
}

func TestIntervalCellConcurrentAccess(t *testing.T) {
	c := NewIntervalCell(time.Second)
	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			c.Store(time.Duration(n) * time.Second)
		}(i)
		go func() {
			defer wg.Done()
			if d := c.Load(); d < time.Second || d > 8*time.Second {
				t.Errorf("torn read: %v", d)
			}
		}()
	}
	wg.Wait()
}

func TestParseIntervalUpdate(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    time.Duration
		ok      bool
	}{
		{"number", `{"interval":{"value":20}}`, 20 * time.Second, true},
		{"numeric string", `{"interval":{"value":"15"}}`, 15 * time.Second, true},
		{"fractional", `{"interval":{"value":2.5}}`, 2500 * time.Millisecond, true},
		{"other keys ignored", `{"name":{"value":"x"},"interval":{"value":7}}`, 7 * time.Second, true},
		{"missing interval", `{"name":{"value":"x"}}`, 0, false},
		{"missing value", `{"interval":{}}`, 0, false},
		{"zero", `{"interval":{"value":0}}`, 0, false},
		{"negative", `{"interval":{"value":-3}}`, 0, false},
		{"not a number", `{"interval":{"value":"soon"}}`, 0, false},
		{"malformed json", `{"interval":`, 0, false},
		{"empty", ``, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := parseIntervalUpdate(tc.payload)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("parseIntervalUpdate(%q) = %v, %v; want %v, %v", tc.payload, got, ok, tc.want, tc.ok)
			}
		})
	}
}
