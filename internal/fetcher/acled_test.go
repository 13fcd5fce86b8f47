package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backyonatan-alt/conflictwatch/internal/config"
	"github.com/backyonatan-alt/conflictwatch/internal/model"
)

// acledStub serves pages whose size is decided by pageSize(window, offset).
type acledStub struct {
	mu       sync.Mutex
	requests []stubRequest
	pageSize func(window string, offset int) int
}

type stubRequest struct {
	window string
	offset int
	query  map[string]string
}

func (s *acledStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		offset, err := strconv.Atoi(q.Get("offset"))
		if err != nil {
			t.Errorf("bad offset %q", q.Get("offset"))
		}
		window := q.Get("event_date")

		s.mu.Lock()
		flat := map[string]string{}
		for k := range q {
			flat[k] = q.Get(k)
		}
		s.requests = append(s.requests, stubRequest{window: window, offset: offset, query: flat})
		s.mu.Unlock()

		n := s.pageSize(window, offset)
		records := make([]string, 0, n)
		for i := 0; i < n; i++ {
			records = append(records, fmt.Sprintf(`{"event_id_cnty":"%s#%d","fatalities":"0"}`, window, offset+i))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":200,"success":true,"count":%d,"data":[%s]}`, n, strings.Join(records, ","))
	}
}

func (s *acledStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func newTestFetcher(t *testing.T, acledURL string) *Fetcher {
	t.Helper()
	cfg := &config.Config{
		DataDir: t.TempDir(),
		ACLED: config.ACLEDConfig{
			Credentials:  model.Credentials{APIKey: "test-key", Email: "analyst@example.org"},
			BaseURL:      acledURL,
			Country:      "Ukraine",
			StartDate:    date(2022, 1, 1),
			PageLimit:    500,
			MaxPages:     10,
			WindowMode:   config.WindowModeDaily,
			RecordsField: "data",
		},
	}
	f := New(cfg, nil)
	f.now = func() time.Time { return time.Date(2022, 1, 3, 12, 0, 0, 0, time.UTC) }
	return f
}

func readRecords(t *testing.T, path string) []map[string]any {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestFetchACLEDAccumulatesEveryPage(t *testing.T) {
	sizes := map[string][]int{
		"2022-01-01|2022-01-01": {500, 120, 0},
		"2022-01-02|2022-01-02": {0},
		"2022-01-03|2022-01-03": {3, 0},
	}
	stub := &acledStub{pageSize: func(window string, offset int) int {
		pages := sizes[window]
		consumed := 0
		for _, n := range pages {
			if consumed == offset {
				return n
			}
			consumed += n
		}
		return 0
	}}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	res, err := f.FetchACLED(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 623, res.Records)
	assert.Equal(t, 6, res.Pages)
	assert.Equal(t, 3, res.Windows)
	assert.True(t, res.Written)
	assert.Equal(t, 6, stub.count())
	assert.NotEmpty(t, res.RunID)

	records := readRecords(t, res.Path)
	require.Len(t, records, 623)
	assert.Equal(t, "2022-01-01|2022-01-01#0", records[0]["event_id_cnty"])
	assert.Equal(t, "2022-01-01|2022-01-01#500", records[500]["event_id_cnty"])
	assert.Equal(t, "2022-01-03|2022-01-03#2", records[622]["event_id_cnty"])

	// offsets advance by the number of records returned
	assert.Equal(t, []int{0, 500, 620}, []int{stub.requests[0].offset, stub.requests[1].offset, stub.requests[2].offset})
}

func TestFetchACLEDSendsQueryParameters(t *testing.T) {
	stub := &acledStub{pageSize: func(string, int) int { return 0 }}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	_, err := f.FetchACLED(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, stub.requests)
	q := stub.requests[0].query
	assert.Equal(t, "test-key", q["key"])
	assert.Equal(t, "analyst@example.org", q["email"])
	assert.Equal(t, "Ukraine", q["country"])
	assert.Equal(t, "2022-01-01|2022-01-01", q["event_date"])
	assert.Equal(t, "BETWEEN", q["event_date_where"])
	assert.Equal(t, "0", q["offset"])
	assert.Equal(t, "500", q["limit"])
}

func TestFetchACLEDFirstPageThenEmpty(t *testing.T) {
	stub := &acledStub{pageSize: func(_ string, offset int) int {
		if offset == 0 {
			return 500
		}
		return 0
	}}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	f.cfg.ACLED.StartDate = date(2022, 1, 3)

	res, err := f.FetchACLED(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 500, res.Records)
	assert.Equal(t, 2, stub.count())
	assert.Len(t, readRecords(t, res.Path), 500)
}

func TestPagesStopsAtIterationCap(t *testing.T) {
	stub := &acledStub{pageSize: func(string, int) int { return 2 }}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	f.cfg.ACLED.MaxPages = 4

	pages := 0
	for page, err := range f.Pages(context.Background(), model.FetchWindow{Start: date(2022, 1, 1), End: date(2022, 1, 1)}) {
		require.NoError(t, err)
		assert.Equal(t, pages*2, page.Offset)
		pages++
	}
	assert.Equal(t, 4, pages)
	assert.Equal(t, 4, stub.count())
}

func TestPagesEmptyFirstPageIssuesOneRequest(t *testing.T) {
	stub := &acledStub{pageSize: func(string, int) int { return 0 }}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	pages := 0
	for page, err := range f.Pages(context.Background(), model.FetchWindow{Start: date(2022, 1, 1), End: date(2022, 1, 1)}) {
		require.NoError(t, err)
		assert.Empty(t, page.Records)
		pages++
	}
	assert.Equal(t, 1, pages)
	assert.Equal(t, 1, stub.count())
}

func TestPagesStopsWhenConsumerBreaks(t *testing.T) {
	stub := &acledStub{pageSize: func(string, int) int { return 10 }}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	for range f.Pages(context.Background(), model.FetchWindow{Start: date(2022, 1, 1), End: date(2022, 1, 1)}) {
		break
	}
	assert.Equal(t, 1, stub.count())
}

func TestFetchACLEDEmptyRunWritesNothing(t *testing.T) {
	stub := &acledStub{pageSize: func(string, int) int { return 0 }}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	res, err := f.FetchACLED(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Written)
	assert.Equal(t, 0, res.Records)
	assert.Equal(t, 3, stub.count())
	_, statErr := os.Stat(res.Path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestFetchACLEDEmptyRunKeepsPreviousFile(t *testing.T) {
	stub := &acledStub{pageSize: func(string, int) int { return 0 }}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	require.NoError(t, os.WriteFile(f.ACLEDPath(), []byte(`[{"old":true}]`), 0o644))

	_, err := f.FetchACLED(context.Background())
	require.NoError(t, err)

	b, err := os.ReadFile(f.ACLEDPath())
	require.NoError(t, err)
	assert.Equal(t, `[{"old":true}]`, string(b))
}

func TestFetchACLEDMissingCredentialsMakesNoRequests(t *testing.T) {
	stub := &acledStub{pageSize: func(string, int) int { return 1 }}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	f.cfg.ACLED.Credentials.APIKey = ""

	_, err := f.FetchACLED(context.Background())
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	var missing *config.MissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "ACLED_API_KEY", missing.Key)
	assert.Equal(t, 0, stub.count())
}

func TestFetchACLEDHTTPErrorAbortsRun(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("event_date") == "2022-01-02|2022-01-02" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"not found"}`))
			return
		}
		if r.URL.Query().Get("offset") == "0" {
			w.Write([]byte(`{"success":true,"data":[{"event_id_cnty":"UKR1"}]}`))
			return
		}
		w.Write([]byte(`{"success":true,"data":[]}`))
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	res, err := f.FetchACLED(context.Background())

	var te *TransportError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, http.StatusNotFound, te.StatusCode)
	assert.Contains(t, te.Body, "not found")
	assert.Contains(t, err.Error(), "acled API error: 404")
	assert.Contains(t, te.URL, "key=REDACTED")
	assert.NotContains(t, te.URL, "test-key")

	assert.False(t, res.Written)
	assert.Equal(t, int32(3), calls.Load(), "run must stop at the failing request")
	_, statErr := os.Stat(f.ACLEDPath())
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestFetchACLEDNetworkErrorHidesKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	f := newTestFetcher(t, srv.URL)
	_, err := f.FetchACLED(context.Background())

	var te *TransportError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, 0, te.StatusCode)
	assert.NotContains(t, err.Error(), "test-key")
}

func TestFetchACLEDMalformedResponse(t *testing.T) {
	for name, body := range map[string]string{
		"not json":       `<html>maintenance</html>`,
		"missing field":  `{"success":true,"count":0}`,
		"field not list": `{"success":true,"data":{"event":1}}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			f := newTestFetcher(t, srv.URL)
			_, err := f.FetchACLED(context.Background())

			var fe *FormatError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, model.SourceACLED, fe.Source)
			_, statErr := os.Stat(f.ACLEDPath())
			assert.True(t, errors.Is(statErr, os.ErrNotExist))
		})
	}
}

func TestFetchACLEDAPIReportedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":403,"success":false,"error":[{"status":403,"message":"Access denied"}]}`))
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	_, err := f.FetchACLED(context.Background())

	var te *TransportError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, 403, te.StatusCode)
	assert.Contains(t, te.Body, "Access denied")
	assert.NotContains(t, te.URL, "test-key")
}

func TestFetchACLEDRangeModeUsesOneOffsetLoop(t *testing.T) {
	stub := &acledStub{pageSize: func(_ string, offset int) int {
		if offset < 4 {
			return 2
		}
		return 0
	}}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	f.cfg.ACLED.WindowMode = config.WindowModeRange

	res, err := f.FetchACLED(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Windows)
	assert.Equal(t, 4, res.Records)
	assert.Equal(t, 3, stub.count())
	assert.Equal(t, "2022-01-01|2022-01-03", stub.requests[0].window)
}

func TestExtractRecordsKeepsRawBytes(t *testing.T) {
	records, err := extractRecords([]byte(`{"data":[{"a": 1.50, "b":"x"}, 12345678901234567890]}`), "data")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, `{"a": 1.50, "b":"x"}`, string(records[0]))
	assert.Equal(t, `12345678901234567890`, string(records[1]))
}
