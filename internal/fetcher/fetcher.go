package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/backyonatan-alt/conflictwatch/internal/config"
	"github.com/backyonatan-alt/conflictwatch/internal/metrics"
)

const userAgent = "conflictwatch/1.0"

// Output file names under the data directory.
const (
	ACLEDFile = "acled_data.json"
	VIIRSFile = "viirs_data.json"
)

var tracer = otel.Tracer("github.com/backyonatan-alt/conflictwatch/internal/fetcher")

// Fetcher holds the shared HTTP client and config for the ACLED and VIIRS fetchers.
// Requests are issued one at a time; a Fetcher is not meant for concurrent runs.
type Fetcher struct {
	client  *http.Client
	cfg     *config.Config
	metrics *metrics.Metrics
	now     func() time.Time
}

// New builds a Fetcher. m may be nil.
func New(cfg *config.Config, m *metrics.Metrics) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout:   cfg.HTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cfg:     cfg,
		metrics: m,
		now:     time.Now,
	}
}

// ACLEDPath is where the event fetcher writes its record set.
func (f *Fetcher) ACLEDPath() string {
	return filepath.Join(f.cfg.DataDir, ACLEDFile)
}

// VIIRSPath is where the snapshot fetcher writes its response.
func (f *Fetcher) VIIRSPath() string {
	return filepath.Join(f.cfg.DataDir, VIIRSFile)
}

// get issues one GET and returns the body of a 2xx response.
func (f *Fetcher) get(ctx context.Context, source string, u *url.URL) ([]byte, error) {
	safeURL := redactURL(u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", source, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	slog.Debug("http get", "source", source, "url", safeURL)

	resp, err := f.client.Do(req)
	if err != nil {
		f.metrics.ObserveRequest(source, 0)
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = safeURL
		}
		return nil, &TransportError{Source: source, URL: safeURL, Err: err}
	}
	defer resp.Body.Close()

	f.metrics.ObserveRequest(source, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Source: source, URL: safeURL, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			Source:     source,
			URL:        safeURL,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
	return body, nil
}

// writeJSON serializes v to path, creating the parent directory and
// overwriting any previous file.
func writeJSON(path string, v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return len(data), nil
}

// redactURL hides the API key so URLs can be logged and returned in errors.
func redactURL(u *url.URL) string {
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
	}
	c := *u
	c.RawQuery = q.Encode()
	return c.String()
}
