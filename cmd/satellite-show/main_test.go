package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/signalsfoundry/satellite-agent/internal/logging"
	"github.com/signalsfoundry/satellite-agent/internal/worldmap"
)

const mirrored = `{"name":"iss","id":25544,"timestamp":1700000000,"latitude":0,"longitude":0,
"altitude":408.5,"velocity":27600.1,"visibility":"daylight","footprint":4500,
"daynum":2460264.5,"solar_lat":-19.4,"solar_lon":12.3,"units":"kilometers"}`

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func render(t *testing.T, vars map[string]string) []string {
	t.Helper()
	var buf bytes.Buffer
	show(context.Background(), &buf, env(vars), http.DefaultClient, logging.Noop())
	return strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
}

func TestShowRendersMirroredRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(mirrored))
	}))
	defer srv.Close()

	lines := render(t, map[string]string{"SATELLITE_STATE_URL": srv.URL, "SATELLITE_SHOW_COLOR": "false"})
	if len(lines) != worldmap.Height+2 {
		t.Fatalf("got %d lines, want %d", len(lines), worldmap.Height+2)
	}
	border := strings.Repeat("=", borderWidth)
	if lines[0] != border || lines[len(lines)-1] != border {
		t.Fatalf("missing borders: %q / %q", lines[0], lines[len(lines)-1])
	}
	mapLines := lines[1 : len(lines)-1]
	if got := mapLines[12][36:37]; got != worldmap.DefaultGlyph {
		t.Fatalf("marker at (12,36) = %q", got)
	}
	if !strings.Contains(mapLines[1], "Name        : iss") {
		t.Fatalf("panel line 1 = %q", mapLines[1])
	}
	if strings.Contains(strings.Join(lines, "\n"), "\033[") {
		t.Fatalf("plain output contains ANSI escapes")
	}
}

func TestShowPlaceholderOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no satellite record published yet", http.StatusNotFound)
	}))
	defer srv.Close()

	for name, url := range map[string]string{
		"not found":   srv.URL,
		"unreachable": "http://127.0.0.1:1/satellite",
	} {
		t.Run(name, func(t *testing.T) {
			lines := render(t, map[string]string{"SATELLITE_STATE_URL": url})
			mapLines := lines[1 : len(lines)-1]
			if len(mapLines) != worldmap.Height {
				t.Fatalf("got %d map lines", len(mapLines))
			}
			if !strings.HasSuffix(mapLines[1], worldmap.LostConnection) || !strings.HasSuffix(mapLines[2], worldmap.ContactAstronaut) {
				t.Fatalf("placeholder missing:\n%s", strings.Join(mapLines[:3], "\n"))
			}
		})
	}
}

func TestShowColorByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(mirrored))
	}))
	defer srv.Close()

	lines := render(t, map[string]string{"SATELLITE_STATE_URL": srv.URL})
	if !strings.Contains(lines[13], "\033[5;92m#\033[00m") {
		t.Fatalf("expected blinking marker on map row 12, got %q", lines[13])
	}
}

func TestColorEnabled(t *testing.T) {
	cases := map[string]bool{"": true, "1": true, "true": true, "false": false, "0": false, "maybe": true}
	for in, want := range cases {
		if got := colorEnabled(in); got != want {
			t.Fatalf("colorEnabled(%q) = %v, want %v", in, got, want)
		}
	}
}
