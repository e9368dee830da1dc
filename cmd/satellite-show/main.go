// Command satellite-show prints the last satellite record published by the
// agent as an ASCII world map. It always exits 0; when the record cannot be
// obtained the map carries the lost-connection placeholder instead.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/satellite-agent/internal/logging"
	"github.com/signalsfoundry/satellite-agent/internal/satellite"
	"github.com/signalsfoundry/satellite-agent/internal/worldmap"
)

const (
	defaultStateURL = "http://127.0.0.1:9090/satellite"
	fetchTimeout    = 5 * time.Second
	borderWidth     = 80
	maxBody         = 1 << 20
)

func main() {
	ctx := context.Background()
	// Diagnostics go to stderr so they never interleave with the map.
	log := logging.NewWithWriter(os.Stderr, logging.Config{
		Level:  envOr(os.Getenv, "LOG_LEVEL", "warn"),
		Format: os.Getenv("LOG_FORMAT"),
	})
	show(ctx, os.Stdout, os.Getenv, &http.Client{Timeout: fetchTimeout}, log)
}

// show fetches the record and writes the bordered map to w.
func show(ctx context.Context, w io.Writer, getenv func(string) string, client *http.Client, log logging.Logger) {
	url := envOr(getenv, "SATELLITE_STATE_URL", defaultStateURL)
	opts := worldmap.Options{Style: worldmap.Plain}
	if colorEnabled(getenv("SATELLITE_SHOW_COLOR")) {
		opts.Style = worldmap.ANSI
	}

	rec, err := fetch(ctx, client, url)
	if err != nil {
		log.Warn(ctx, "no satellite record available", logging.String("url", url), logging.Err(err))
		rec = nil
	}

	border := strings.Repeat("=", borderWidth)
	fmt.Fprintln(w, border)
	for line := range worldmap.Lines(rec, opts) {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, border)
}

func fetch(ctx context.Context, client *http.Client, url string) (*satellite.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: %s", url, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return satellite.Decode(body)
}

func colorEnabled(v string) bool {
	if v == "" {
		return true
	}
	on, err := strconv.ParseBool(v)
	return err != nil || on
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}
