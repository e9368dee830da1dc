package agent

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DumpState returns a human-readable description of the agent for
// debugging.
func (a *Agent) DumpState() string {
	a.mu.Lock()
	state, appID, streamID, cycles, lastErr := a.state, a.appID, a.streamID, a.cycles, a.lastErr
	a.mu.Unlock()

	var buf strings.Builder
	fmt.Fprintf(&buf, "Agent: satellite (source: %s)\n", a.source.Name())
	fmt.Fprintf(&buf, "State: %s\n", state)
	fmt.Fprintf(&buf, "App ID: %d\n", appID)
	fmt.Fprintf(&buf, "Stream ID: %d\n", streamID)
	fmt.Fprintf(&buf, "JS Path: %s\n", a.jsPath)
	fmt.Fprintf(&buf, "Poll Interval: %s\n", a.interval.Load())
	fmt.Fprintf(&buf, "Poll Cycles: %d\n", cycles)

	if rec, at, ok := a.mirror.Last(); ok {
		buf.WriteString("Last Published Record:\n")
		fmt.Fprintf(&buf, "  At: %s\n", at.UTC().Format(time.RFC3339))
		fmt.Fprintf(&buf, "  Name: %s (%d)\n", rec.Name, rec.ID)
		fmt.Fprintf(&buf, "  Position: %.4f, %.4f @ %.2f %s\n", rec.Latitude, rec.Longitude, rec.Altitude, rec.Units)
		fmt.Fprintf(&buf, "  Visibility: %s\n", rec.Visibility)
	} else {
		buf.WriteString("  (nothing published yet)\n")
	}

	if lastErr != nil {
		fmt.Fprintf(&buf, "Last Error: %v\n", lastErr)
	}
	return buf.String()
}

// DebugHandler serves DumpState as plain text.
func (a *Agent) DebugHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprint(w, a.DumpState())
	})
}
