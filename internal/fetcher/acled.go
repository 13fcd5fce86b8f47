package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/backyonatan-alt/conflictwatch/internal/model"
)

// FetchACLED pulls every event for each window between the configured start
// date and today and writes them to ACLEDPath as one JSON array. An empty
// record set is not written. Any request or parse failure aborts the run
// and nothing is written.
func (f *Fetcher) FetchACLED(ctx context.Context) (model.RunResult, error) {
	res := model.RunResult{
		RunID:     uuid.NewString(),
		Source:    model.SourceACLED,
		Path:      f.ACLEDPath(),
		StartedAt: f.now(),
	}

	acled := f.cfg.ACLED
	if err := acled.Validate(); err != nil {
		return res, &ConfigError{Source: model.SourceACLED, Err: err}
	}

	windows := Windows(acled.WindowMode, acled.StartDate, res.StartedAt)
	res.Windows = len(windows)

	ctx, span := tracer.Start(ctx, "acled.fetch", trace.WithAttributes(
		attribute.String("acled.country", acled.Country),
		attribute.String("acled.window_mode", acled.WindowMode),
		attribute.Int("acled.windows", len(windows)),
	))
	defer span.End()

	slog.Info("fetching acled events",
		"country", acled.Country,
		"from", acled.StartDate.Format(model.DateLayout),
		"windows", len(windows),
		"mode", acled.WindowMode,
	)

	var set model.RecordSet
	for _, w := range windows {
		for page, err := range f.Pages(ctx, w) {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "acled page failed")
				res.FinishedAt = f.now()
				return res, err
			}
			res.Pages++
			set = append(set, page.Records...)
		}
	}
	res.Records = len(set)
	span.SetAttributes(attribute.Int("acled.records", res.Records), attribute.Int("acled.pages", res.Pages))

	if len(set) == 0 {
		slog.Info("acled: no data, nothing written", "windows", res.Windows, "pages", res.Pages)
		res.FinishedAt = f.now()
		return res, nil
	}

	n, err := writeJSON(res.Path, set)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "acled write failed")
		res.FinishedAt = f.now()
		return res, err
	}
	res.Written = true
	res.FinishedAt = f.now()

	slog.Info("acled result", "records", res.Records, "pages", res.Pages, "path", res.Path, "bytes", n)
	return res, nil
}

// Pages lazily yields the pages of one window. The offset starts at 0 and
// advances by the number of records on each page. Iteration ends after the
// first empty page, after MaxPages requests, or at the first error, which is
// yielded once.
func (f *Fetcher) Pages(ctx context.Context, w model.FetchWindow) iter.Seq2[model.Page, error] {
	maxPages := f.cfg.ACLED.MaxPages
	return func(yield func(model.Page, error) bool) {
		offset := 0
		for i := 0; i < maxPages; i++ {
			records, err := f.fetchACLEDPage(ctx, w, offset)
			if err != nil {
				yield(model.Page{Window: w, Offset: offset}, err)
				return
			}
			f.metrics.ObservePage(model.SourceACLED, len(records))

			if !yield(model.Page{Window: w, Offset: offset, Records: records}, nil) {
				return
			}
			if len(records) == 0 {
				return
			}
			offset += len(records)
		}
		slog.Warn("acled page cap reached", "window", w.String(), "max_pages", maxPages, "offset", offset)
	}
}

func (f *Fetcher) fetchACLEDPage(ctx context.Context, w model.FetchWindow, offset int) ([]model.Record, error) {
	acled := f.cfg.ACLED

	u, err := url.Parse(acled.BaseURL)
	if err != nil {
		return nil, &ConfigError{Source: model.SourceACLED, Err: fmt.Errorf("ACLED_BASE_URL: %w", err)}
	}
	q := u.Query()
	q.Set("key", acled.Credentials.APIKey)
	q.Set("email", acled.Credentials.Email)
	q.Set("country", acled.Country)
	q.Set("event_date", w.Filter())
	q.Set("event_date_where", "BETWEEN")
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(acled.PageLimit))
	u.RawQuery = q.Encode()

	body, err := f.get(ctx, model.SourceACLED, u)
	if err != nil {
		return nil, err
	}

	records, err := extractRecords(body, acled.RecordsField)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			te.URL = redactURL(u)
			return nil, te
		}
		return nil, &FormatError{Source: model.SourceACLED, Err: err}
	}

	slog.Debug("acled page", "window", w.String(), "offset", offset, "records", len(records))
	return records, nil
}

// extractRecords returns the elements of the array at field (a gjson path)
// as raw JSON. A body with "success": false is an API-level rejection and is
// reported as a TransportError carrying the body.
func extractRecords(body []byte, field string) ([]model.Record, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON body")
	}
	if ok := gjson.GetBytes(body, "success"); ok.Exists() && ok.Type == gjson.False {
		status := int(gjson.GetBytes(body, "status").Int())
		if status == 0 {
			status = http.StatusOK
		}
		return nil, &TransportError{
			Source:     model.SourceACLED,
			StatusCode: status,
			Err:        fmt.Errorf("api reported failure"),
			Body:       strings.TrimSpace(string(body)),
		}
	}

	res := gjson.GetBytes(body, field)
	if !res.Exists() {
		return nil, fmt.Errorf("missing %q field", field)
	}
	if !res.IsArray() {
		return nil, fmt.Errorf("%q is not an array", field)
	}

	var records []model.Record
	res.ForEach(func(_, v gjson.Result) bool {
		records = append(records, json.RawMessage(v.Raw))
		return true
	})
	return records, nil
}
