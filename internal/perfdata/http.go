package perfdata

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/warren/pkg/types"
)

// BodyBuilder renders one checkable's result into a bulk-protocol request
// body fragment (an InfluxDB line-protocol line, an Elasticsearch bulk
// NDJSON pair, ...). An empty return suppresses the send.
type BodyBuilder func(checkableID string, c *types.Checkable, result *types.CheckResult) []byte

// HTTPBulkWriter is a Writer that POSTs one record per check result to an
// HTTP bulk-ingest endpoint (InfluxDB v2 /api/v2/write, Elasticsearch
// _bulk), retrying on 429/502/503/504 and honoring Retry-After; any other
// non-2xx status is logged and dropped rather than retried forever.
type HTTPBulkWriter struct {
	*Writer

	client      *http.Client
	url         string
	headers     map[string]string
	build       BodyBuilder
	maxAttempts int
}

// NewHTTPBulkWriter builds an HTTPBulkWriter posting rendered bodies to
// url with the given headers (e.g. Authorization, Content-Type).
func NewHTTPBulkWriter(name string, capacity int, url string, headers map[string]string, build BodyBuilder) *HTTPBulkWriter {
	return &HTTPBulkWriter{
		Writer:      NewWriter(name, capacity),
		client:      &http.Client{Timeout: 10 * time.Second},
		url:         url,
		headers:     headers,
		build:       build,
		maxAttempts: 5,
	}
}

// Write implements internal/checkresult.PerfSink.
func (w *HTTPBulkWriter) Write(checkableID string, c *types.Checkable, result *types.CheckResult) {
	body := w.build(checkableID, c, result)
	if len(body) == 0 {
		return
	}
	w.Enqueue(Task{Fn: func(ctx context.Context) error { return w.send(ctx, body) }})
}

func (w *HTTPBulkWriter) send(ctx context.Context, body []byte) error {
	var lastErr error

	for attempt := 0; attempt < w.maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		for k, v := range w.headers {
			req.Header.Set(k, v)
		}

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = err
			if !w.waitRetry(ctx, attempt, "") {
				return lastErr
			}
			continue
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		if !retryableStatus(resp.StatusCode) {
			return fmt.Errorf("perfdata http writer: non-retryable status %d", resp.StatusCode)
		}

		lastErr = fmt.Errorf("perfdata http writer: status %d", resp.StatusCode)
		if !w.waitRetry(ctx, attempt, resp.Header.Get("Retry-After")) {
			return lastErr
		}
	}

	return lastErr
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func (w *HTTPBulkWriter) waitRetry(ctx context.Context, attempt int, retryAfter string) bool {
	d := retryAfterDuration(retryAfter)
	if d == 0 {
		d = backoffForAttempt(attempt)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func backoffForAttempt(attempt int) time.Duration {
	d := time.Second
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > 30*time.Second {
			return 30 * time.Second
		}
	}
	return d
}

func retryAfterDuration(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

// InfluxDBLineBuilder renders perfdata points as InfluxDB v2 line
// protocol: "<measurement>,checkable=<id> <label>=<value> <unix-nanos>".
func InfluxDBLineBuilder(measurement string) BodyBuilder {
	return func(checkableID string, _ *types.Checkable, result *types.CheckResult) []byte {
		if len(result.PerfData) == 0 {
			return nil
		}
		var buf bytes.Buffer
		ts := result.ExecutionEnd.UnixNano()
		for _, pd := range result.PerfData {
			fmt.Fprintf(&buf, "%s,checkable=%s %s=%v %d\n",
				measurement, influxEscape(checkableID), influxEscape(pd.Label), pd.Value, ts)
		}
		return buf.Bytes()
	}
}

func influxEscape(s string) string {
	s = strings.ReplaceAll(s, " ", "\\ ")
	s = strings.ReplaceAll(s, ",", "\\,")
	return s
}

// ElasticsearchBulkBuilder renders the check result as one Elasticsearch
// _bulk action/source NDJSON pair indexing into index.
func ElasticsearchBulkBuilder(index string) BodyBuilder {
	return func(checkableID string, _ *types.Checkable, result *types.CheckResult) []byte {
		var buf bytes.Buffer
		fmt.Fprintf(&buf, `{"index":{"_index":%q}}`+"\n", index)
		fmt.Fprintf(&buf, `{"checkable":%q,"state":%d,"output":%q,"timestamp":%q}`+"\n",
			checkableID, int(result.State), result.Output, result.ExecutionEnd.UTC().Format(time.RFC3339))
		return buf.Bytes()
	}
}
