package notifyexec

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/cuemby/warren/pkg/types"
)

const defaultTimeout = 30 * time.Second

// Sender runs a Notification's Command with the event context passed
// through NOTIFICATION_*-prefixed environment variables, implementing
// notification.Sender.
type Sender struct {
	Timeout time.Duration
}

// New builds a Sender with the default command timeout.
func New() *Sender {
	return &Sender{Timeout: defaultTimeout}
}

// Send runs n.Command for every configured user, one process per user,
// matching Icinga2's per-user NotificationCommand fan-out.
func (s *Sender) Send(n *types.Notification, c *types.Checkable, eventType types.NotificationType) error {
	if n.Command == "" {
		return fmt.Errorf("notification %s has no command configured", n.ID)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	env := commandEnv(n, c, eventType)
	users := n.Users
	if len(users) == 0 {
		users = []string{""}
	}

	var firstErr error
	for _, user := range users {
		if err := s.run(n.Command, append(env, "NOTIFICATION_USER="+user), timeout); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Sender) run(command string, env []string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Env = append(os.Environ(), env...)
	return cmd.Run()
}

func commandEnv(n *types.Notification, c *types.Checkable, eventType types.NotificationType) []string {
	output := ""
	if c.LastCheckResult != nil {
		output = c.LastCheckResult.Output
	}
	return []string{
		"NOTIFICATION_TYPE=" + notificationTypeName(eventType),
		"NOTIFICATION_CHECKABLE=" + c.ID(),
		"NOTIFICATION_HOSTNAME=" + c.Host,
		"NOTIFICATION_STATE=" + c.State.String(),
		"NOTIFICATION_OUTPUT=" + output,
		"NOTIFICATION_ATTEMPT=" + strconv.Itoa(c.Attempt),
	}
}

func notificationTypeName(t types.NotificationType) string {
	switch t {
	case types.NotifyProblem:
		return "Problem"
	case types.NotifyRecovery:
		return "Recovery"
	case types.NotifyAcknowledgement:
		return "Acknowledgement"
	case types.NotifyDowntimeStart:
		return "DowntimeStart"
	case types.NotifyDowntimeEnd:
		return "DowntimeEnd"
	case types.NotifyDowntimeRemoved:
		return "DowntimeRemoved"
	case types.NotifyFlappingStart:
		return "FlappingStart"
	case types.NotifyFlappingEnd:
		return "FlappingEnd"
	case types.NotifyCustom:
		return "Custom"
	default:
		return "Unknown"
	}
}
