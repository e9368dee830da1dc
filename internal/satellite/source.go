package satellite

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultAPIURL is the position endpoint for the ISS (NORAD 25544).
const DefaultAPIURL = "https://api.wheretheiss.at/v1/satellites/25544"

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 1 << 20

// Source produces the current satellite Record.
type Source interface {
	Fetch(ctx context.Context) (*Record, error)
	// Name identifies the source in logs and metrics.
	Name() string
}

// APISource fetches position records from the tracking API over HTTP.
type APISource struct {
	url        string
	httpClient *http.Client
}

// NewAPISource creates an APISource for url. An empty url selects
// DefaultAPIURL and a zero timeout selects 10 seconds.
func NewAPISource(url string, timeout time.Duration) *APISource {
	if url == "" {
		url = DefaultAPIURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &APISource{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name implements Source.
func (s *APISource) Name() string { return "api" }

// URL returns the configured endpoint.
func (s *APISource) URL() string { return s.url }

// Fetch performs one GET against the tracking API and decodes the answer.
func (s *APISource) Fetch(ctx context.Context) (*Record, error) {
	body, err := getJSON(ctx, s.httpClient, s.url)
	if err != nil {
		return nil, err
	}
	return Decode(body)
}

func getJSON(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}
