package perfdata

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/pkg/types"
)

func TestNewOTLPWriterBuildsMeterProvider(t *testing.T) {
	srv := httptest.NewServer(nil)
	defer srv.Close()

	endpoint := strings.TrimPrefix(srv.URL, "http://")
	w, err := NewOTLPWriter("otlp-test", 10, OTLPConfig{
		Endpoint:       endpoint,
		Insecure:       true,
		ServiceName:    "warren-checker",
		ServiceVersion: "test",
		InstanceID:     "node-1",
	})
	require.NoError(t, err)
	require.NotNil(t, w.meter)
}

func TestOTLPWriterGaugeForCachesInstrument(t *testing.T) {
	srv := httptest.NewServer(nil)
	defer srv.Close()

	endpoint := strings.TrimPrefix(srv.URL, "http://")
	w, err := NewOTLPWriter("otlp-test", 10, OTLPConfig{Endpoint: endpoint, Insecure: true, ServiceName: "warren-checker"})
	require.NoError(t, err)

	g1, err := w.gaugeFor("rta")
	require.NoError(t, err)
	g2, err := w.gaugeFor("rta")
	require.NoError(t, err)
	require.Equal(t, g1, g2)
}

func TestOTLPWriterWriteSkipsEmptyPerfData(t *testing.T) {
	srv := httptest.NewServer(nil)
	defer srv.Close()

	endpoint := strings.TrimPrefix(srv.URL, "http://")
	w, err := NewOTLPWriter("otlp-test", 10, OTLPConfig{Endpoint: endpoint, Insecure: true, ServiceName: "warren-checker"})
	require.NoError(t, err)

	w.Write("host1", nil, &types.CheckResult{})
	require.Equal(t, 0, w.QueueDepth())
}
