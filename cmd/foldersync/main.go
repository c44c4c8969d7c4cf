package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/foldersync/internal/config"
	"github.com/bamsammich/foldersync/internal/engine"
	"github.com/bamsammich/foldersync/internal/filter"
	"github.com/bamsammich/foldersync/internal/logsink"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// filterFlag is a custom pflag.Value that preserves CLI ordering of
// --exclude and --include rules by appending to a shared filter.Chain.
type filterFlag struct {
	chain   *filter.Chain
	include bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "string" }

func (f *filterFlag) Set(val string) error {
	if f.include {
		return f.chain.AddInclude(val)
	}
	return f.chain.AddExclude(val)
}

type options struct {
	chain       *filter.Chain
	filterFile  string
	bwLimitStr  string
	verify      bool
	once        bool
	verbose     bool
	noColor     bool
	showVersion bool
}

func run(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := options{chain: filter.NewChain()}

	rootCmd := &cobra.Command{
		Use:   "foldersync [flags] <source> <replica> <interval-seconds> <log-file>",
		Short: "Keep a replica folder identical to a source folder",
		Long: `foldersync periodically makes <replica> an exact copy of <source>.
Files and folders missing from the replica are created, changed files are
copied over, and anything in the replica that no longer exists in the source
is removed. Every change is appended to <log-file> and echoed to stdout.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				return nil
			}
			return cobra.ExactArgs(4)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				fmt.Fprintf(cmd.OutOrStdout(), "foldersync %s\n", version)
				return nil
			}
			return runSync(cmd, args, &opts)
		},
	}

	flags := rootCmd.Flags()
	flags.Var(&filterFlag{chain: opts.chain}, "exclude", "exclude paths matching `PATTERN` (repeatable)")
	flags.Var(&filterFlag{chain: opts.chain, include: true}, "include", "include paths matching `PATTERN` (repeatable)")
	flags.StringVar(&opts.filterFile, "filter-file", "", "read include/exclude rules from `FILE`")
	flags.BoolVar(&opts.verify, "verify", false, "re-hash every copied file and compare it to the source")
	flags.StringVar(&opts.bwLimitStr, "bwlimit", "", "limit copy bandwidth (e.g. 10MB, 1.5GiB) per second")
	flags.BoolVar(&opts.once, "once", false, "run a single pass and exit")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug details to the console")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored console output")
	flags.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	flags.SortFlags = false
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "exclude" || f.Name == "include" {
			f.NoOptDefVal = ""
		}
	})

	rootCmd.AddCommand(newDocsCmd())
	return rootCmd
}

func runSync(cmd *cobra.Command, args []string, opts *options) error {
	settings, err := parseSettings(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("%w: config file: %w", config.ErrInvalid, err)
	}
	applyConfigDefaults(cmd, cfg.Defaults, opts)

	// Rules from the config file come after CLI rules so the CLI wins.
	for _, p := range cfg.Defaults.Exclude {
		if err := opts.chain.AddExclude(p); err != nil {
			return fmt.Errorf("config exclude: %w", err)
		}
	}
	for _, p := range cfg.Defaults.Include {
		if err := opts.chain.AddInclude(p); err != nil {
			return fmt.Errorf("config include: %w", err)
		}
	}
	if opts.filterFile != "" {
		if err := opts.chain.LoadFile(opts.filterFile); err != nil {
			return fmt.Errorf("filter file: %w", err)
		}
	}

	var bwLimit int64
	if opts.bwLimitStr != "" {
		n, err := humanize.ParseBytes(opts.bwLimitStr)
		if err != nil {
			return fmt.Errorf("invalid --bwlimit: %w", err)
		}
		bwLimit = int64(n)
	}

	consoleLevel := slog.LevelInfo
	if opts.verbose {
		consoleLevel = slog.LevelDebug
	}
	logger := logsink.New(settings.LogFile, cmd.OutOrStdout(), slog.LevelInfo, logsink.ConsoleOptions{
		Level:   consoleLevel,
		NoColor: opts.noColor,
	})
	slog.SetDefault(logger)

	logger.Debug("starting",
		"source", settings.SourceRoot,
		"replica", settings.ReplicaRoot,
		"interval", settings.Interval,
		"log_file", settings.LogFile,
		"filters", opts.chain.Len(),
		"verify", opts.verify,
		"bwlimit", bwLimit,
	)

	eng := engine.New(engine.Config{
		SourceRoot:  settings.SourceRoot,
		ReplicaRoot: settings.ReplicaRoot,
		Logger:      logger,
		Filter:      opts.chain,
		Verify:      opts.verify,
		BWLimit:     bwLimit,
	})
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.once {
		if res := eng.RunOnce(ctx); res.Err != nil {
			return &exitError{code: 1}
		}
		return nil
	}

	sched := engine.NewScheduler(eng, nil, logger)
	err = sched.RunForever(ctx, settings.Interval)
	logger.Debug("stopped", "passes", sched.Passes(), "failures", sched.Failures())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// parseSettings turns the four positional arguments into validated settings.
func parseSettings(args []string) (config.Settings, error) {
	secs, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return config.Settings{}, fmt.Errorf("%w: interval %q is not a whole number of seconds", config.ErrInvalid, args[2])
	}
	settings := config.Settings{
		SourceRoot:  args[0],
		ReplicaRoot: args[1],
		Interval:    time.Duration(secs) * time.Second,
		LogFile:     args[3],
	}
	if err := settings.Normalize(); err != nil {
		return config.Settings{}, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	if err := settings.Validate(); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(cmd *cobra.Command, defaults config.DefaultsConfig, opts *options) {
	if !cmd.Flags().Changed("verify") && defaults.Verify != nil {
		opts.verify = *defaults.Verify
	}
	if !cmd.Flags().Changed("no-color") && defaults.NoColor != nil {
		opts.noColor = *defaults.NoColor
	}
	if !cmd.Flags().Changed("bwlimit") && defaults.BWLimit != nil {
		opts.bwLimitStr = *defaults.BWLimit
	}
	if !cmd.Flags().Changed("filter-file") && defaults.FilterFile != nil {
		opts.filterFile = *defaults.FilterFile
	}
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
