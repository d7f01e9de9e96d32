package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/gocircum/nordconnect/core"
	"github.com/gocircum/nordconnect/core/config"
	"github.com/gocircum/nordconnect/core/display"
	"github.com/gocircum/nordconnect/core/filter"
	"github.com/gocircum/nordconnect/interfaces"
	"github.com/gocircum/nordconnect/pkg/logging"
)

const usage = `usage: nordconnect [-config path] [-log-level level] [-log-format format] <command> [flags]

commands:
  connect   connect to the best matching server, or to -server
  list      list servers, countries, areas, categories or features
  kill      terminate the tunnel recorded by a previous connect`

var listTopics = []string{"servers", "countries", "areas", "categories", "features"}

type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// command is one parsed subcommand.
type command interface {
	name() string
	needsRoot() bool
	run(ctx context.Context, engine interfaces.Engine, cfg *config.FileConfig, out io.Writer, logger logging.Logger) error
}

// stringList is a repeatable, comma separated flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

type criteriaFlags struct {
	countries  stringList
	areas      stringList
	categories stringList
	features   stringList
	names      stringList
	netflix    bool
	load       int
	match      string
	top        int
	best       bool
}

func (f *criteriaFlags) register(fs *flag.FlagSet) {
	fs.Var(&f.countries, "country", "Country code to match, repeatable (e.g. us,de)")
	fs.Var(&f.areas, "area", "Area (city) to match, repeatable")
	fs.Var(&f.categories, "category", "Category tag to match, repeatable (standard, p2p, double, obfuscated, onion, dedicated)")
	fs.Var(&f.features, "feature", "Feature to match, repeatable (e.g. openvpn_udp)")
	fs.Var(&f.names, "name", "Glob pattern on the server domain, repeatable (e.g. 'de1*')")
	fs.BoolVar(&f.netflix, "netflix", false, "Only servers tagged for netflix")
	fs.IntVar(&f.load, "load", -1, "Load threshold in percent; -1 uses connect.load from the config")
	fs.StringVar(&f.match, "match", "", "How -load is compared: max, min or equal")
	fs.IntVar(&f.top, "top", 0, "Keep only the N best servers; 0 keeps every reachable match")
	fs.BoolVar(&f.best, "best", false, "Keep only the single best server")
}

func (f *criteriaFlags) criteria() (filter.Criteria, error) {
	c := filter.Criteria{
		Countries:   f.countries,
		Areas:       f.areas,
		Categories:  f.categories,
		Features:    f.features,
		Names:       f.names,
		NetflixOnly: f.netflix,
		LoadMatch:   filter.LoadMatch(f.match),
		TopN:        f.top,
		Best:        f.best,
	}
	switch c.LoadMatch {
	case "", filter.MatchMax, filter.MatchMin, filter.MatchEqual:
	default:
		return filter.Criteria{}, fmt.Errorf("unknown load match %q: must be one of max, min, equal", f.match)
	}
	if f.load >= 0 {
		c.LoadThreshold = filter.Threshold(f.load)
	}
	if err := c.Validate(); err != nil {
		return filter.Criteria{}, err
	}
	return c, nil
}

type connectCommand struct {
	server     string
	criteria   filter.Criteria
	protocol   string
	daemon     bool
	options    string
	maxRetries *int
}

func (c *connectCommand) name() string    { return "connect" }
func (c *connectCommand) needsRoot() bool { return true }

func (c *connectCommand) request(cfg *config.FileConfig) core.ConnectRequest {
	server := c.server
	if server == "" {
		server = cfg.Connect.DefaultServer
	}
	return core.ConnectRequest{
		Server:     server,
		Criteria:   c.criteria,
		Protocol:   c.protocol,
		Daemon:     c.daemon,
		Options:    c.options,
		MaxRetries: c.maxRetries,
	}
}

func (c *connectCommand) run(ctx context.Context, engine interfaces.Engine, cfg *config.FileConfig, out io.Writer, logger logging.Logger) error {
	res, err := engine.Connect(ctx, c.request(cfg))
	if err != nil {
		return err
	}
	if c.daemon {
		fmt.Fprintf(out, "openvpn is running in the background (pid %d); stop it with 'nordconnect kill'\n", res.Outcome.PID)
		return nil
	}

	logger.Info("Tunnel is up. Press Ctrl+C to disconnect.", "domain", res.Outcome.Candidate.Domain)
	err = engine.Wait(ctx)
	if ctx.Err() != nil {
		logger.Info("Received shutdown signal, stopping tunnel...")
		if stopErr := engine.Stop(); stopErr != nil {
			logger.Error("Error stopping tunnel", "error", stopErr)
		}
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("tunnel exited: %w", err)
	}
	logger.Info("Tunnel closed.")
	return nil
}

type listCommand struct {
	topic    string
	criteria filter.Criteria
}

func (c *listCommand) name() string    { return "list" }
func (c *listCommand) needsRoot() bool { return false }

func (c *listCommand) run(ctx context.Context, engine interfaces.Engine, _ *config.FileConfig, out io.Writer, _ logging.Logger) error {
	if c.topic == "servers" {
		servers, err := engine.ListServers(ctx, c.criteria)
		if err != nil {
			return err
		}
		return display.PrintServers(out, servers)
	}

	cat, err := engine.Catalog(ctx)
	if err != nil {
		return err
	}
	switch c.topic {
	case "countries":
		return display.PrintValues(out, "Countries", cat.Countries())
	case "areas":
		return display.PrintValues(out, "Areas", cat.Areas())
	case "categories":
		return display.PrintValues(out, "Categories", cat.Categories())
	default:
		return display.PrintValues(out, "Features", cat.Features())
	}
}

type killCommand struct{}

func (killCommand) name() string    { return "kill" }
func (killCommand) needsRoot() bool { return true }

func (killCommand) run(ctx context.Context, engine interfaces.Engine, _ *config.FileConfig, out io.Writer, _ logging.Logger) error {
	if err := engine.Kill(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Tunnel terminated.")
	return nil
}

// errUsage marks command line mistakes.
var errUsage = errors.New("invalid usage")

func usageError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// parseArgs turns the command line (without the program name) into options
// and a typed command.
func parseArgs(args []string, errOut io.Writer) (globalOptions, command, error) {
	var opts globalOptions
	fs := flag.NewFlagSet("nordconnect", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Usage = func() { fmt.Fprintln(errOut, usage) }
	fs.StringVar(&opts.configPath, "config", "", "Path to the YAML configuration file (default "+config.DefaultPath+")")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&opts.logFormat, "log-format", "", "Log format (console, json)")
	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return opts, nil, usageError("expected 'connect', 'list' or 'kill' subcommands")
	}

	var (
		cmd command
		err error
	)
	switch rest[0] {
	case "connect":
		cmd, err = parseConnect(rest[1:], errOut)
	case "list":
		cmd, err = parseList(rest[1:], errOut)
	case "kill":
		if len(rest) > 1 {
			return opts, nil, usageError("kill takes no arguments")
		}
		cmd = killCommand{}
	default:
		return opts, nil, usageError("unknown command %q", rest[0])
	}
	return opts, cmd, err
}

func parseConnect(args []string, errOut io.Writer) (*connectCommand, error) {
	var (
		cf         criteriaFlags
		cmd        connectCommand
		tcp, udp   bool
		maxRetries int
	)
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	fs.SetOutput(errOut)
	cf.register(fs)
	fs.StringVar(&cmd.server, "server", "", "Server domain to connect to, or 'best' (default connect.default_server)")
	fs.BoolVar(&tcp, "tcp", false, "Use openvpn over TCP")
	fs.BoolVar(&udp, "udp", false, "Use openvpn over UDP")
	fs.BoolVar(&cmd.daemon, "daemon", false, "Run openvpn in the background")
	fs.StringVar(&cmd.options, "openvpn", "", "Extra openvpn arguments, quoted as on a shell")
	fs.IntVar(&maxRetries, "max-retries", -1, "Maximum connection attempts; 0 is unbounded, -1 uses connect.max_retries")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch rest := fs.Args(); {
	case len(rest) > 1:
		return nil, usageError("connect takes at most one server argument, got %d", len(rest))
	case len(rest) == 1 && cmd.server != "":
		return nil, usageError("server given both as -server and as argument")
	case len(rest) == 1:
		cmd.server = rest[0]
	}

	switch {
	case tcp && udp:
		return nil, usageError("-tcp and -udp are mutually exclusive")
	case tcp:
		cmd.protocol = "tcp"
	case udp:
		cmd.protocol = "udp"
	}
	if maxRetries >= 0 {
		cmd.maxRetries = &maxRetries
	}

	criteria, err := cf.criteria()
	if err != nil {
		return nil, usageError("%v", err)
	}
	cmd.criteria = criteria
	return &cmd, nil
}

func parseList(args []string, errOut io.Writer) (*listCommand, error) {
	cmd := listCommand{topic: "servers"}
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd.topic = args[0]
		args = args[1:]
	}
	valid := false
	for _, t := range listTopics {
		valid = valid || t == cmd.topic
	}
	if !valid {
		return nil, usageError("unknown list topic %q, expected one of %s", cmd.topic, strings.Join(listTopics, ", "))
	}

	cf := criteriaFlags{load: -1}
	fs := flag.NewFlagSet("list "+cmd.topic, flag.ContinueOnError)
	fs.SetOutput(errOut)
	if cmd.topic == "servers" {
		cf.register(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, usageError("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	criteria, err := cf.criteria()
	if err != nil {
		return nil, usageError("%v", err)
	}
	cmd.criteria = criteria
	return &cmd, nil
}
