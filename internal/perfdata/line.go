package perfdata

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/warren/pkg/types"
)

// RecordBuilder renders a CheckResult for one checkable into zero or
// more wire-ready lines.
type RecordBuilder func(checkableID string, c *types.Checkable, result *types.CheckResult) []byte

// LineWriter is a Writer paired with a ReconnectingSink for line-oriented
// protocols (Graphite, OpenTSDB, GELF): plain TCP(/TLS), one record per
// line, no response expected.
type LineWriter struct {
	*Writer
	sink  *ReconnectingSink
	build RecordBuilder
}

// NewLineWriter builds a LineWriter that dials via dial and renders
// records with build.
func NewLineWriter(name string, capacity int, dial Dialer, build RecordBuilder) *LineWriter {
	return &LineWriter{
		Writer: NewWriter(name, capacity),
		sink:   NewReconnectingSink(dial),
		build:  build,
	}
}

// Write implements internal/checkresult.PerfSink.
func (w *LineWriter) Write(checkableID string, c *types.Checkable, result *types.CheckResult) {
	data := w.build(checkableID, c, result)
	if len(data) == 0 {
		return
	}
	w.Enqueue(Task{Fn: func(ctx context.Context) error { return w.sink.Send(data) }})
}

// Disconnect stops the underlying sink and discards queued work.
func (w *LineWriter) Disconnect() {
	w.Stop()
	w.sink.Disconnect()
}

// GraphiteRecordBuilder renders each perfdata point as one
// "<prefix>.<checkable>.<label> <value> <unix-ts>\n" line, Graphite's
// plaintext protocol.
func GraphiteRecordBuilder(prefix string) RecordBuilder {
	return func(checkableID string, c *types.Checkable, result *types.CheckResult) []byte {
		if len(result.PerfData) == 0 {
			return nil
		}
		var buf bytes.Buffer
		ts := result.ExecutionEnd.Unix()
		base := graphiteSanitize(checkableID)
		for _, pd := range result.PerfData {
			fmt.Fprintf(&buf, "%s.%s.%s %v %d\n", prefix, base, graphiteSanitize(pd.Label), pd.Value, ts)
		}
		return buf.Bytes()
	}
}

func graphiteSanitize(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "!", ".")
	return s
}

// OpenTSDBRecordBuilder renders each perfdata point as one
// "put <metric> <ts> <value> host=<checkable>\n" line, OpenTSDB's
// plaintext `put` protocol.
func OpenTSDBRecordBuilder() RecordBuilder {
	return func(checkableID string, c *types.Checkable, result *types.CheckResult) []byte {
		if len(result.PerfData) == 0 {
			return nil
		}
		var buf bytes.Buffer
		ts := result.ExecutionEnd.Unix()
		for _, pd := range result.PerfData {
			fmt.Fprintf(&buf, "put icinga.%s %d %v host=%s", pd.Label, ts, pd.Value, checkableID)
			if c != nil && c.Zone != "" {
				fmt.Fprintf(&buf, " zone=%s", c.Zone)
			}
			buf.WriteByte('\n')
		}
		return buf.Bytes()
	}
}

// GELFRecordBuilder renders the check result as one GELF-ish JSON
// document terminated by a NUL byte, the framing GELF TCP input expects.
func GELFRecordBuilder(defaultHost string) RecordBuilder {
	return func(checkableID string, c *types.Checkable, result *types.CheckResult) []byte {
		host := defaultHost
		if c != nil && c.Host != "" {
			host = c.Host
		}
		var buf bytes.Buffer
		fmt.Fprintf(&buf, `{"version":"1.1","host":%q,"short_message":%q,"timestamp":%d,"_checkable":%q,"_state":%d}`,
			host, result.Output, result.ExecutionEnd.Unix(), checkableID, int(result.State))
		buf.WriteByte(0)
		return buf.Bytes()
	}
}
