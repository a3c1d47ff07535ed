// Package pluginexec runs a Checkable's CheckCommand as a Nagios-plugin
// style external process and turns its exit code, stdout and perfdata
// string into a types.CheckResult, the same exec-and-parse shape
// pkg/health's ExecChecker uses for container health probes, generalized
// to the plugin output contract (exit code 0/1/2/3, "|"-delimited
// perfdata on the first output line).
//
// CheckCommand values prefixed with "http::" or "tcp::" skip the shell
// entirely and run through pkg/health's HTTPChecker/TCPChecker instead,
// reusing its reachability probes for checks that don't need a plugin
// binary on disk.
package pluginexec
