package configseed

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/warren/internal/registry"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/security"
	"github.com/cuemby/warren/pkg/storage"
	"github.com/cuemby/warren/pkg/types"
)

// resource is the generic envelope every seed document shares.
type resource struct {
	Kind     string       `yaml:"kind"`
	Metadata resourceMeta `yaml:"metadata"`
	Spec     yaml.Node    `yaml:"spec"`
}

type resourceMeta struct {
	Name string `yaml:"name"`
}

type hostSpec struct {
	CheckCommand     string        `yaml:"checkCommand"`
	CheckInterval    time.Duration `yaml:"checkInterval"`
	RetryInterval    time.Duration `yaml:"retryInterval"`
	CheckTimeout     time.Duration `yaml:"checkTimeout"`
	MaxCheckAttempts int           `yaml:"maxCheckAttempts"`
	CheckPeriod      string        `yaml:"checkPeriod"`
	Zone             string        `yaml:"zone"`
	CommandEndpoint  string        `yaml:"commandEndpoint"`
}

type serviceSpec struct {
	hostSpec `yaml:",inline"`
	Host     string   `yaml:"host"`
	Parents  []string `yaml:"parents"`
}

type notificationSpec struct {
	CheckableID      string        `yaml:"checkableId"`
	Command          string        `yaml:"command"`
	Users            []string      `yaml:"users"`
	TimePeriod       string        `yaml:"timePeriod"`
	Types            []string      `yaml:"types"`
	States           []string      `yaml:"states"`
	BeginAttempt     int           `yaml:"beginAttempt"`
	EndAttempt       int           `yaml:"endAttempt"`
	ReminderInterval time.Duration `yaml:"reminderInterval"`
}

type timePeriodSpec struct {
	Ranges []struct {
		Weekday   int `yaml:"weekday"`
		StartHour int `yaml:"startHour"`
		StartMin  int `yaml:"startMin"`
		EndHour   int `yaml:"endHour"`
		EndMin    int `yaml:"endMin"`
	} `yaml:"ranges"`
}

type zoneSpec struct {
	ParentZone string   `yaml:"parentZone"`
	Endpoints  []string `yaml:"endpoints"`
	Local      bool     `yaml:"local"`
}

type endpointSpec struct {
	Zone string `yaml:"zone"`
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

type apiUserSpec struct {
	ClientCN    string   `yaml:"clientCN"`
	Password    string   `yaml:"password"`
	Permissions []string `yaml:"permissions"`
}

// Load decodes every YAML document in r and feeds the resulting objects
// into reg, then fires reg.FireAllConfigLoaded. If store is non-nil,
// ApiUser resources are also persisted so the facade can authenticate
// across restarts.
func Load(r io.Reader, reg *registry.Registry, store storage.Store) error {
	logger := log.WithComponent("configseed")
	dec := yaml.NewDecoder(r)

	for {
		var res resource
		err := dec.Decode(&res)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("configseed: decode document: %w", err)
		}
		if res.Kind == "" {
			continue
		}

		if err := loadOne(&res, reg, store); err != nil {
			return fmt.Errorf("configseed: %s %q: %w", res.Kind, res.Metadata.Name, err)
		}
		logger.Debug().Str("kind", res.Kind).Str("name", res.Metadata.Name).Msg("seeded object")
	}

	reg.FireAllConfigLoaded()
	return nil
}

func loadOne(res *resource, reg *registry.Registry, store storage.Store) error {
	switch res.Kind {
	case "Host":
		var spec hostSpec
		if err := res.Spec.Decode(&spec); err != nil {
			return err
		}
		c := buildCheckable(types.KindHost, res.Metadata.Name, res.Metadata.Name, spec)
		_, err := reg.AddCheckable(c)
		return err

	case "Service":
		var spec serviceSpec
		if err := res.Spec.Decode(&spec); err != nil {
			return err
		}
		c := buildCheckable(types.KindService, res.Metadata.Name, spec.Host, spec.hostSpec)
		for _, p := range spec.Parents {
			c.ParentDependencies = append(c.ParentDependencies, types.Dependency{
				ParentID:    p,
				StateFilter: []types.ServiceState{types.StateOK},
			})
		}
		_, err := reg.AddCheckable(c)
		return err

	case "Notification":
		var spec notificationSpec
		if err := res.Spec.Decode(&spec); err != nil {
			return err
		}
		n := &types.Notification{
			ID:               res.Metadata.Name,
			CheckableID:      spec.CheckableID,
			Command:          spec.Command,
			Users:            spec.Users,
			TimePeriod:       spec.TimePeriod,
			TypeFilter:       typeFilterFromNames(spec.Types),
			StateFilter:      statesFromNames(spec.States),
			BeginAttempt:     spec.BeginAttempt,
			EndAttempt:       spec.EndAttempt,
			ReminderInterval: spec.ReminderInterval,
		}
		return reg.AddNotification(n)

	case "TimePeriod":
		var spec timePeriodSpec
		if err := res.Spec.Decode(&spec); err != nil {
			return err
		}
		p := &types.TimePeriod{Name: res.Metadata.Name}
		for _, r := range spec.Ranges {
			p.Ranges = append(p.Ranges, types.TimeRange{
				Weekday:   time.Weekday(r.Weekday),
				StartHour: r.StartHour,
				StartMin:  r.StartMin,
				EndHour:   r.EndHour,
				EndMin:    r.EndMin,
			})
		}
		reg.AddTimePeriod(p)
		return nil

	case "Zone":
		var spec zoneSpec
		if err := res.Spec.Decode(&spec); err != nil {
			return err
		}
		reg.AddZone(&types.Zone{
			Name:       res.Metadata.Name,
			ParentZone: spec.ParentZone,
			Endpoints:  spec.Endpoints,
			Local:      spec.Local,
		})
		return nil

	case "Endpoint":
		var spec endpointSpec
		if err := res.Spec.Decode(&spec); err != nil {
			return err
		}
		reg.AddEndpoint(&types.Endpoint{
			Name: res.Metadata.Name,
			Zone: spec.Zone,
			Host: spec.Host,
			Port: spec.Port,
		})
		return nil

	case "ApiUser":
		var spec apiUserSpec
		if err := res.Spec.Decode(&spec); err != nil {
			return err
		}
		u := &types.APIUser{Name: res.Metadata.Name, ClientCN: spec.ClientCN, Permissions: spec.Permissions}
		if spec.Password != "" {
			hash, err := security.HashPassword(spec.Password)
			if err != nil {
				return err
			}
			u.PasswordHash = hash
		}
		if store != nil {
			return store.SaveAPIUser(u)
		}
		return nil

	default:
		return fmt.Errorf("unsupported resource kind %q", res.Kind)
	}
}

func buildCheckable(kind types.CheckableKind, name, host string, spec hostSpec) *types.Checkable {
	maxAttempts := spec.MaxCheckAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	checkInterval := spec.CheckInterval
	if checkInterval <= 0 {
		checkInterval = time.Minute
	}
	retryInterval := spec.RetryInterval
	if retryInterval <= 0 {
		retryInterval = 10 * time.Second
	}
	return &types.Checkable{
		Kind:                 kind,
		Name:                 name,
		Host:                 host,
		CheckCommand:         spec.CheckCommand,
		CheckInterval:        checkInterval,
		RetryInterval:        retryInterval,
		CheckTimeout:         spec.CheckTimeout,
		MaxCheckAttempts:     maxAttempts,
		State:                types.StateOK,
		StateType:            types.StateTypeHard,
		Attempt:              1,
		ActiveChecksEnabled:  true,
		NotificationsEnabled: true,
		FlappingEnabled:      true,
		CheckPeriod:          spec.CheckPeriod,
		Zone:                 spec.Zone,
		CommandEndpoint:      spec.CommandEndpoint,
	}
}

const allNotificationTypes = types.NotificationProblem | types.NotificationRecovery |
	types.NotificationAcknowledgement | types.NotificationDowntimeStart | types.NotificationDowntimeEnd |
	types.NotificationDowntimeRemoved | types.NotificationFlappingStart | types.NotificationFlappingEnd |
	types.NotificationCustom

func typeFilterFromNames(names []string) types.NotificationBitmask {
	if len(names) == 0 {
		return allNotificationTypes
	}
	var mask types.NotificationBitmask
	for _, n := range names {
		mask |= notificationTypeByName(n).Bit()
	}
	return mask
}

func notificationTypeByName(name string) types.NotificationType {
	switch name {
	case "Problem":
		return types.NotifyProblem
	case "Recovery":
		return types.NotifyRecovery
	case "Acknowledgement":
		return types.NotifyAcknowledgement
	case "DowntimeStart":
		return types.NotifyDowntimeStart
	case "DowntimeEnd":
		return types.NotifyDowntimeEnd
	case "DowntimeRemoved":
		return types.NotifyDowntimeRemoved
	case "FlappingStart":
		return types.NotifyFlappingStart
	case "FlappingEnd":
		return types.NotifyFlappingEnd
	default:
		return types.NotifyCustom
	}
}

func statesFromNames(names []string) []types.ServiceState {
	if len(names) == 0 {
		return nil
	}
	states := make([]types.ServiceState, 0, len(names))
	for _, n := range names {
		switch n {
		case "OK":
			states = append(states, types.StateOK)
		case "Warning":
			states = append(states, types.StateWarning)
		case "Critical":
			states = append(states, types.StateCritical)
		case "Unknown":
			states = append(states, types.StateUnknown)
		}
	}
	return states
}
