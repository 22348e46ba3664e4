package actuator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"github.com/jamesprial/unraid-spindown/internal/config"
)

// devicePlaceholder is replaced by the device node path in command args.
const devicePlaceholder = "{device}"

const devicePrefix = "/dev/"

// validDevice matches kernel block device names (sdb, nvme0n1, dm-3, md1p1).
var validDevice = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// presets maps config presets to their argv templates.
var presets = map[string][]string{
	// ATA and SCSI/SAS drives, smartctl 7.2 or newer.
	config.PresetSmartctl: {"smartctl", "-s", "standby,now", devicePlaceholder},
	config.PresetHdparm:   {"hdparm", "-y", devicePlaceholder},
}

// checkPresets read the power mode without spinning the disk up. smartctl
// exits with status 2 when -n standby finds the disk parked.
var checkPresets = map[string][]string{
	config.PresetSmartctl: {"smartctl", "-n", "standby", "-i", devicePlaceholder},
	config.PresetHdparm:   {"hdparm", "-C", devicePlaceholder},
}

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Compile-time interface checks.
var (
	_ Actuator     = (*CommandActuator)(nil)
	_ PowerChecker = (*CommandActuator)(nil)
)

// CommandActuator implements Actuator by running an external command such as
// smartctl or hdparm, optionally through sudo or doas.
type CommandActuator struct {
	argv      []string
	checkArgv []string
	useSudo   bool

	lookPath func(string) (string, error)
	euid     func() int
	run      runFunc

	mu       sync.Mutex
	resolved []string
}

// NewCommandActuator builds a CommandActuator from cfg. The command itself is
// resolved on first use so a missing binary surfaces as an ActuatorError.
func NewCommandActuator(cfg config.ActuatorConfig) (*CommandActuator, error) {
	var argv, checkArgv []string
	switch cfg.Preset {
	case config.PresetCustom:
		if cfg.Command == "" {
			return nil, fmt.Errorf("actuator: custom preset needs a command")
		}
		argv = withDevice(cfg.Command, cfg.Args)
		if len(cfg.CheckArgs) > 0 {
			checkArgv = withDevice(cfg.Command, cfg.CheckArgs)
		}
	default:
		tmpl, ok := presets[cfg.Preset]
		if !ok {
			return nil, fmt.Errorf("actuator: unknown preset %q", cfg.Preset)
		}
		argv = append([]string(nil), tmpl...)
		checkArgv = append([]string(nil), checkPresets[cfg.Preset]...)
	}
	if !cfg.CheckPower {
		checkArgv = nil
	}

	return &CommandActuator{
		argv:      argv,
		checkArgv: checkArgv,
		useSudo:   cfg.UseSudo,
		lookPath: exec.LookPath,
		euid:     os.Geteuid,
		run:      runCommand,
	}, nil
}

// Spindown runs the configured command for device. ctx bounds the command's
// lifetime; the process is killed when ctx expires.
func (a *CommandActuator) Spindown(ctx context.Context, device string) error {
	if !validDevice.MatchString(device) {
		return &ActuatorError{Device: device, Err: fmt.Errorf("invalid device name %q", device)}
	}

	out, err := a.exec(ctx, a.argv, device)
	if err != nil {
		return &ActuatorError{Device: device, Output: string(out), Err: err}
	}
	return nil
}

// PowerMode asks the drive for its power mode with a query that does not
// spin it up. It returns PowerUnknown without running anything when no check
// command is configured.
func (a *CommandActuator) PowerMode(ctx context.Context, device string) (PowerMode, error) {
	if a.checkArgv == nil {
		return PowerUnknown, nil
	}
	if !validDevice.MatchString(device) {
		return PowerUnknown, &ActuatorError{Device: device, Err: fmt.Errorf("invalid device name %q", device)}
	}

	out, err := a.exec(ctx, a.checkArgv, device)
	// smartctl reports standby through a non-zero exit, so the output wins.
	if mode := parsePowerMode(string(out)); mode != PowerUnknown {
		return mode, nil
	}
	if err != nil {
		return PowerUnknown, &ActuatorError{Device: device, Output: string(out), Err: err}
	}
	return PowerUnknown, nil
}

// exec runs argv for device through the resolved prefix. Both argv
// templates share argv[0], so one resolution serves both.
func (a *CommandActuator) exec(ctx context.Context, argv []string, device string) ([]byte, error) {
	prefix, err := a.resolve()
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, len(prefix)+len(argv))
	args = append(args, prefix[1:]...)
	for _, arg := range argv[1:] {
		args = append(args, strings.ReplaceAll(arg, devicePlaceholder, devicePrefix+device))
	}

	out, err := a.run(ctx, prefix[0], args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return out, err
	}
	return out, nil
}

// parsePowerMode understands smartctl -n standby -i and hdparm -C output.
func parsePowerMode(out string) PowerMode {
	for _, line := range strings.Split(strings.ToLower(out), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "device is in standby"), strings.HasPrefix(line, "device is in sleep"):
			return PowerStandby
		case strings.HasPrefix(line, "drive state is:"), strings.HasPrefix(line, "power mode is:"):
			_, value, _ := strings.Cut(line, ":")
			value = strings.TrimSpace(value)
			if strings.HasPrefix(value, "standby") || strings.HasPrefix(value, "sleep") {
				return PowerStandby
			}
			if value != "" && value != "unknown" {
				return PowerActive
			}
		}
	}
	return PowerUnknown
}

// resolve locates the command binary and, when needed, the privilege helper.
// It returns the argv prefix: [sudo, command] or [command].
func (a *CommandActuator) resolve() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.resolved != nil {
		return a.resolved, nil
	}

	cmdPath, err := a.lookPath(a.argv[0])
	if err != nil {
		return nil, fmt.Errorf("%s is not installed", a.argv[0])
	}

	prefix := []string{cmdPath}
	if a.useSudo && a.euid() != 0 {
		helper, err := a.lookPath("sudo")
		if err != nil {
			// Try doas, if sudo is not available
			helper, err = a.lookPath("doas")
			if err != nil {
				return nil, errors.New("sudo nor doas is available")
			}
		}
		prefix = []string{helper, cmdPath}
	}

	a.resolved = prefix
	return prefix, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// withDevice builds a custom argv, appending the device node when args do not
// place it themselves.
func withDevice(command string, args []string) []string {
	argv := append([]string{command}, args...)
	if !containsPlaceholder(args) {
		argv = append(argv, devicePlaceholder)
	}
	return argv
}

func containsPlaceholder(args []string) bool {
	for _, a := range args {
		if strings.Contains(a, devicePlaceholder) {
			return true
		}
	}
	return false
}

// Compile-time interface check.
var _ Actuator = DryRun{}

// DryRun implements Actuator by logging the spindown it would have issued.
type DryRun struct{}

// Spindown logs and returns nil.
func (DryRun) Spindown(_ context.Context, device string) error {
	log.Printf("%s: dry-run, not spinning down", device)
	return nil
}
