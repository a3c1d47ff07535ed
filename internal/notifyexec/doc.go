// Package notifyexec runs a Notification's Command as a local process,
// the notification-side counterpart to internal/pluginexec: instead of
// parsing plugin output into a CheckResult, it passes the checkable and
// event context in through the environment, Icinga2's NotificationCommand
// convention, and only cares about the exit code.
package notifyexec
