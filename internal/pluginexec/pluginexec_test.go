package pluginexec

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/pkg/types"
)

func TestExecuteParsesOKWithPerfdata(t *testing.T) {
	e := New()
	c := &types.Checkable{
		CheckCommand: `echo 'all good|time=0.123s;1;2;0;5' && exit 0`,
	}
	result := e.Execute(context.Background(), c)
	require.Equal(t, types.StateOK, result.State)
	require.Equal(t, "all good", result.Output)
	require.Len(t, result.PerfData, 1)
	require.Equal(t, "time", result.PerfData[0].Label)
	require.InDelta(t, 0.123, result.PerfData[0].Value, 0.0001)
	require.Equal(t, "s", result.PerfData[0].Unit)
}

func TestExecuteMapsExitCodeToState(t *testing.T) {
	e := New()
	c := &types.Checkable{CheckCommand: `echo critical && exit 2`}
	result := e.Execute(context.Background(), c)
	require.Equal(t, types.StateCritical, result.State)
	require.Equal(t, "critical", result.Output)
}

func TestExecuteHandlesMissingCommand(t *testing.T) {
	e := New()
	result := e.Execute(context.Background(), &types.Checkable{})
	require.Equal(t, types.StateUnknown, result.State)
}

func TestSplitPluginOutputWithoutPerfdata(t *testing.T) {
	output, perfdata := splitPluginOutput("just text\n")
	require.Equal(t, "just text", output)
	require.Empty(t, perfdata)
}

func TestExecuteRunsHTTPCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := New()
	c := &types.Checkable{CheckCommand: httpCheckPrefix + srv.URL}
	result := e.Execute(context.Background(), c)
	require.Equal(t, types.StateOK, result.State)
}

func TestExecuteRunsTCPCheck(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	e := New()
	c := &types.Checkable{CheckCommand: tcpCheckPrefix + ln.Addr().String()}
	result := e.Execute(context.Background(), c)
	require.Equal(t, types.StateOK, result.State)
}

func TestExecuteRunsTCPCheckUnreachable(t *testing.T) {
	e := New()
	c := &types.Checkable{CheckCommand: tcpCheckPrefix + "127.0.0.1:1"}
	result := e.Execute(context.Background(), c)
	require.Equal(t, types.StateCritical, result.State)
}

func TestParsePerfDataMultiplePoints(t *testing.T) {
	points := parsePerfData("load1=0.5;1;2 load5=1.2;;;0;10")
	require.Len(t, points, 2)
	require.Equal(t, "load1", points[0].Label)
	require.NotNil(t, points[0].Warn)
	require.Equal(t, "load5", points[1].Label)
	require.NotNil(t, points[1].Min)
	require.NotNil(t, points[1].Max)
}
