package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jamesprial/unraid-spindown/internal/config"
	"github.com/tvrzna/go-utils/args"
)

var buildVersion string

// cliOptions holds command-line settings. Zero values mean "not given";
// given values win over the config file and the environment.
type cliOptions struct {
	configPath  string
	timeout     int
	interval    int
	filename    string
	dryRun      bool
	verbose     bool
	showHelp    bool
	showVersion bool
	errs        []string
}

func parseArgs(osArgs []string) cliOptions {
	var o cliOptions
	if len(osArgs) > 0 {
		osArgs = osArgs[1:]
	}

	args.ParseArgs(osArgs, func(arg, value string) {
		switch arg {
		case "-h", "--help":
			o.showHelp = true
		case "-v", "--version":
			o.showVersion = true
		case "-c", "--config":
			o.configPath = value
		case "-t", "--timeout":
			o.timeout = o.positive(arg, value)
		case "-i", "--interval":
			o.interval = o.positive(arg, value)
		case "-f", "--filename":
			o.filename = value
		case "-n", "--dry-run":
			o.dryRun = true
		case "-V", "--verbose":
			o.verbose = true
		default:
			if strings.HasPrefix(arg, "-") {
				o.errs = append(o.errs, fmt.Sprintf("unknown option %s", arg))
			}
		}
	})
	return o
}

func (o *cliOptions) positive(arg, value string) int {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		o.errs = append(o.errs, fmt.Sprintf("%s needs a positive integer, got %q", arg, value))
		return 0
	}
	return n
}

// apply copies the given options onto cfg.
func (o cliOptions) apply(cfg *config.Config) {
	if o.timeout > 0 {
		cfg.Daemon.TimeoutMinutes = o.timeout
	}
	if o.interval > 0 {
		cfg.Daemon.IntervalSeconds = o.interval
	}
	if o.filename != "" {
		cfg.Daemon.StateFile = o.filename
	}
	if o.dryRun {
		cfg.Actuator.DryRun = true
	}
	if o.verbose {
		cfg.Daemon.Verbose = true
	}
}

func version() string {
	if buildVersion == "" {
		return "develop"
	}
	return buildVersion
}

func printHelp(w io.Writer) {
	fmt.Fprintf(w, `Usage: spindownd [options]
Options:
	-h, --help			print this help
	-v, --version			print version
	-c, --config PATH		config file (default %s, or $SPINDOWN_CONFIG_PATH)
	-t, --timeout MINUTES		idle time before a disk is spun down (default 25)
	-i, --interval SECONDS		polling interval (default 10)
	-f, --filename PATH		state file (default /config/spindown-state.json)
	-n, --dry-run			log spindowns instead of issuing them
	-V, --verbose			log every idle check
`, defaultConfigPath)
}
