package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/codes"

	"github.com/backyonatan-alt/conflictwatch/internal/model"
)

// FetchVIIRS performs a single GET against the configured endpoint and
// writes the response JSON, unchanged, to VIIRSPath.
func (f *Fetcher) FetchVIIRS(ctx context.Context) (model.RunResult, error) {
	res := model.RunResult{
		RunID:     uuid.NewString(),
		Source:    model.SourceVIIRS,
		Path:      f.VIIRSPath(),
		StartedAt: f.now(),
	}

	viirs := f.cfg.VIIRS
	if err := viirs.Validate(); err != nil {
		return res, &ConfigError{Source: model.SourceVIIRS, Err: err}
	}
	u, err := url.Parse(viirs.URL)
	if err != nil {
		return res, &ConfigError{Source: model.SourceVIIRS, Err: fmt.Errorf("VIIRS_URL: %w", err)}
	}
	if len(viirs.Params) > 0 {
		q := u.Query()
		for k, v := range viirs.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	ctx, span := tracer.Start(ctx, "viirs.fetch")
	defer span.End()

	slog.Info("fetching viirs snapshot", "url", redactURL(u))

	body, err := f.get(ctx, model.SourceVIIRS, u)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "viirs request failed")
		res.FinishedAt = f.now()
		return res, err
	}
	if !gjson.ValidBytes(body) {
		err := &FormatError{Source: model.SourceVIIRS, Err: fmt.Errorf("invalid JSON body")}
		span.RecordError(err)
		span.SetStatus(codes.Error, "viirs parse failed")
		res.FinishedAt = f.now()
		return res, err
	}
	res.Pages = 1
	res.Records = countRecords(body)
	f.metrics.ObservePage(model.SourceVIIRS, res.Records)

	n, err := writeJSON(res.Path, json.RawMessage(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "viirs write failed")
		res.FinishedAt = f.now()
		return res, err
	}
	res.Written = true
	res.FinishedAt = f.now()

	slog.Info("viirs result", "records", res.Records, "path", res.Path, "bytes", n)
	return res, nil
}

// countRecords counts top-level array elements, or the features of a
// GeoJSON collection. Any other document counts as one record.
func countRecords(body []byte) int {
	root := gjson.ParseBytes(body)
	if root.IsArray() {
		return len(root.Array())
	}
	if features := root.Get("features"); features.IsArray() {
		return len(features.Array())
	}
	return 1
}
