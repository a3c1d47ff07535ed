package pluginexec

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/warren/pkg/health"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/types"
)

const (
	httpCheckPrefix = "http::"
	tcpCheckPrefix  = "tcp::"
)

// Executor runs a Checkable's CheckCommand as a local process and parses
// its output into a types.CheckResult, implementing
// scheduler.CheckExecutor.
type Executor struct{}

// New builds an Executor.
func New() *Executor { return &Executor{} }

// Execute runs c.CheckCommand, honoring c.CheckTimeout (falling back to
// ctx's deadline when unset), and maps the process's exit code onto a
// ServiceState the way every Nagios-compatible plugin contract does:
// 0 OK, 1 Warning, 2 Critical, anything else Unknown.
func (e *Executor) Execute(ctx context.Context, c *types.Checkable) *types.CheckResult {
	start := time.Now()
	result := &types.CheckResult{
		CheckableID:    c.ID(),
		ExecutionStart: start,
		Active:         true,
	}

	if strings.TrimSpace(c.CheckCommand) == "" {
		result.State = types.StateUnknown
		result.Output = "no check command configured"
		result.ExecutionEnd = time.Now()
		return result
	}

	if c.CheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.CheckTimeout)
		defer cancel()
	}

	switch {
	case strings.HasPrefix(c.CheckCommand, httpCheckPrefix):
		return e.executeHealthChecker(ctx, result, health.NewHTTPChecker(strings.TrimPrefix(c.CheckCommand, httpCheckPrefix)))
	case strings.HasPrefix(c.CheckCommand, tcpCheckPrefix):
		return e.executeHealthChecker(ctx, result, health.NewTCPChecker(strings.TrimPrefix(c.CheckCommand, tcpCheckPrefix)))
	}

	// Run through a shell so plugin definitions can use arguments,
	// quoting and pipes exactly as Nagios-style plugin commands expect.
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", c.CheckCommand)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result.ExecutionEnd = time.Now()

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		result.State = types.StateCritical
		result.Output = "check timed out after " + time.Since(start).String()
		return result
	case err == nil:
		result.State = types.StateOK
	default:
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.State = stateFromExitCode(exitErr.ExitCode())
		} else {
			result.State = types.StateUnknown
			result.Output = "exec failed: " + err.Error()
			log.WithComponent("pluginexec").Warn().Err(err).Str("checkable", result.CheckableID).Msg("plugin exec failed")
			return result
		}
	}

	output, perfdata := splitPluginOutput(stdout.String())
	if output == "" && stderr.Len() > 0 {
		output = strings.TrimSpace(stderr.String())
	}
	result.Output = output
	result.PerfData = parsePerfData(perfdata)
	return result
}

// executeHealthChecker runs a pkg/health.Checker (HTTP or TCP reachability,
// no perfdata) and maps its boolean result onto OK/Critical, the same
// binary outcome Icinga2's check_http/check_tcp ultimately report.
func (e *Executor) executeHealthChecker(ctx context.Context, result *types.CheckResult, checker health.Checker) *types.CheckResult {
	hr := checker.Check(ctx)
	result.ExecutionEnd = time.Now()
	result.Output = hr.Message
	if hr.Healthy {
		result.State = types.StateOK
	} else {
		result.State = types.StateCritical
	}
	return result
}

func stateFromExitCode(code int) types.ServiceState {
	switch code {
	case 0:
		return types.StateOK
	case 1:
		return types.StateWarning
	case 2:
		return types.StateCritical
	default:
		return types.StateUnknown
	}
}

// splitPluginOutput separates a plugin's first output line into the
// human-readable message and its "|"-delimited perfdata tail.
func splitPluginOutput(raw string) (output, perfdata string) {
	line := strings.SplitN(strings.TrimSpace(raw), "\n", 2)[0]
	if idx := strings.Index(line, "|"); idx >= 0 {
		return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:])
	}
	return line, ""
}

// parsePerfData parses "label=value[unit][;warn[;crit[;min[;max]]]] ..."
// tokens per the plugin perfdata format.
func parsePerfData(raw string) []types.PerfDataPoint {
	if raw == "" {
		return nil
	}
	var points []types.PerfDataPoint
	for _, tok := range strings.Fields(raw) {
		eq := strings.Index(tok, "=")
		if eq < 0 {
			continue
		}
		label := tok[:eq]
		rest := tok[eq+1:]
		fields := strings.Split(rest, ";")

		value, unit := splitValueUnit(fields[0])
		p := types.PerfDataPoint{Label: label, Value: value, Unit: unit}
		if len(fields) > 1 {
			p.Warn = parseFloatPtr(fields[1])
		}
		if len(fields) > 2 {
			p.Crit = parseFloatPtr(fields[2])
		}
		if len(fields) > 3 {
			p.Min = parseFloatPtr(fields[3])
		}
		if len(fields) > 4 {
			p.Max = parseFloatPtr(fields[4])
		}
		points = append(points, p)
	}
	return points
}

func splitValueUnit(s string) (float64, string) {
	i := 0
	for i < len(s) && (s[i] == '-' || s[i] == '+' || s[i] == '.' || (s[i] >= '0' && s[i] <= '9')) {
		i++
	}
	value, _ := strconv.ParseFloat(s[:i], 64)
	return value, s[i:]
}

func parseFloatPtr(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
