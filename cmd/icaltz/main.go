package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/tartampluch/icaltz/internal/config"
	"github.com/tartampluch/icaltz/internal/engine"
	"github.com/tartampluch/icaltz/internal/report"
	"github.com/tartampluch/icaltz/internal/server"
	"github.com/tartampluch/icaltz/internal/zone"
	"github.com/tartampluch/icaltz/internal/zonedb"
)

// main is the application entry point.
// It delegates execution to runMain so that deferred calls run before the
// process exits: os.Exit() does not run defers.
func main() {
	os.Exit(runMain())
}

// runMain loads the settings, runs the command line and maps the outcome to
// an exit code.
func runMain() int {
	settings := config.Load()

	// Cancel on SIGINT (Ctrl+C) or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(settings).ExecuteContext(ctx); err != nil {
		slog.Error(config.ErrAppFailed,
			config.LogKeyComponent, config.CompMain,
			config.LogKeyError, err,
		)
		return config.ExitCodeError
	}
	return config.ExitCodeSuccess
}

// options holds the global flags. Defaults come from config.Settings.
type options struct {
	config.Settings
	debug     bool
	logFormat string
}

// app bundles the dependencies shared by the subcommands.
type app struct {
	resolver *engine.Resolver
	zones    *zonedb.Registry
	reporter *report.Reporter
}

func newRootCmd(s config.Settings) *cobra.Command {
	opts := &options{Settings: s, logFormat: config.LogFormatText}

	root := &cobra.Command{
		Use:           config.AppName,
		Short:         config.CmdDescRoot,
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := setupLogging(cmd.ErrOrStderr(), opts.debug, opts.logFormat); err != nil {
				return err
			}
			logStartupInfo()
			return nil
		},
	}
	root.SetVersionTemplate(fmt.Sprintf(config.MsgVersionOutput,
		config.AppName, config.Version, config.Commit, config.Date, runtime.GOOS, runtime.GOARCH))

	pf := root.PersistentFlags()
	pf.StringVar(&opts.Zone, config.FlagZone, s.Zone, config.FlagDescZone)
	pf.StringVar(&opts.Policy, config.FlagPolicy, s.Policy, config.FlagDescPolicy)
	pf.StringVar(&opts.Language, config.FlagLang, s.Language, config.FlagDescLang)
	pf.StringVar(&opts.ZonesFile, config.FlagZonesFile, s.ZonesFile, config.FlagDescZonesFile)
	pf.StringVar(&opts.ZonesURL, config.FlagZonesURL, s.ZonesURL, config.FlagDescZonesURL)
	pf.BoolVar(&opts.debug, config.FlagDebug, false, config.FlagDescDebug)
	pf.StringVar(&opts.logFormat, config.FlagLogFormat, config.LogFormatText, config.FlagDescLogFormat)

	root.AddCommand(
		newResolveCmd(opts),
		newFileCmd(opts),
		newNowCmd(opts),
		newZonesCmd(opts),
		newServeCmd(opts),
	)
	return root
}

func newResolveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   config.CmdUseResolve,
		Short: config.CmdDescResolve,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}

			results := make([]engine.Result, 0, len(args))
			for i, arg := range args {
				res := engine.Result{Line: i + 1, Input: arg}
				res.Instant, res.Err = a.resolver.Resolve(cmd.Context(), arg)
				results = append(results, res)
			}
			return a.write(cmd.OutOrStdout(), results)
		},
	}
}

func newFileCmd(opts *options) *cobra.Command {
	var ics bool
	cmd := &cobra.Command{
		Use:   config.CmdUseFile,
		Short: config.CmdDescFile,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}

			path := args[0]
			var rd io.Reader = cmd.InOrStdin()
			if path != config.StdinPath {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("%s: %w", config.ErrOpenInput, err)
				}
				defer func() { _ = f.Close() }()
				rd = f
			}

			var results []engine.Result
			if ics || strings.EqualFold(filepath.Ext(path), config.ExtICS) {
				results, err = a.resolver.ResolveCalendar(cmd.Context(), rd)
			} else {
				results, err = a.resolver.ResolveStream(cmd.Context(), rd)
			}
			if err != nil {
				return err
			}
			return a.write(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().BoolVar(&ics, config.FlagICS, false, config.FlagDescICS)
	return cmd
}

func newNowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   config.CmdUseNow,
		Short: config.CmdDescNow,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}

			var id string
			if len(args) == 1 {
				id = args[0]
			}
			inst, err := a.resolver.Now(id)
			if err != nil {
				return err
			}
			res := engine.Result{Input: inst.Time.UTC().Format(config.UTCDateLayout), Instant: inst}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), a.reporter.Result(res))
			return err
		},
	}
}

func newZonesCmd(opts *options) *cobra.Command {
	var ics bool
	cmd := &cobra.Command{
		Use:   config.CmdUseZones,
		Short: config.CmdDescZones,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}

			zones := a.zones.Zones()
			if len(args) > 0 {
				zones = zones[:0:0]
				for _, id := range args {
					tz, err := a.zones.Lookup(id)
					if err != nil {
						return err
					}
					zones = append(zones, tz)
				}
			}

			if ics {
				return zonedb.Encode(cmd.OutOrStdout(), zones)
			}
			return a.reporter.WriteZones(cmd.OutOrStdout(), zones)
		},
	}
	cmd.Flags().BoolVar(&ics, config.FlagICS, false, config.FlagDescICSOut)
	return cmd
}

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   config.CmdServe,
		Short: config.CmdDescServe,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}
			srv := server.NewZoneServer(opts.Listen, a.resolver, a.zones)
			if err := srv.Start(cmd.Context()); err != nil {
				return err
			}
			slog.Info(config.MsgAppStop, config.LogKeyComponent, config.CompMain)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Listen, config.FlagListen, opts.Listen, config.FlagDescListen)
	return cmd
}

// build wires the zone database, the resolver and the reporter from the
// options. Extra zones from --zones-file and --zones-url shadow the built-in
// table.
func (o *options) build(ctx context.Context) (*app, error) {
	policy, err := zone.ParsePolicy(o.Policy)
	if err != nil {
		return nil, err
	}

	zones := zonedb.NewRegistry(zonedb.Builtin())
	if o.ZonesFile != "" {
		if _, err := zones.LoadFile(o.ZonesFile); err != nil {
			return nil, err
		}
	}
	if o.ZonesURL != "" {
		if _, err := zones.LoadRemote(ctx, zonedb.NewHTTPFetcher(), o.ZonesURL); err != nil {
			return nil, err
		}
	}

	slog.Debug(config.MsgZonesReady,
		config.LogKeyComponent, config.CompMain,
		config.LogKeyCount, len(zones.Zones()),
		config.LogKeyZone, o.Zone,
		config.LogKeyPolicy, policy.String(),
	)

	return &app{
		resolver: &engine.Resolver{
			Zones:  zones,
			Clock:  engine.RealClock{},
			Policy: policy,
			Target: o.Zone,
		},
		zones:    zones,
		reporter: report.New(o.Language),
	}, nil
}

// write prints the results and fails when any of them did not resolve, so the
// exit code reflects partial failures.
func (a *app) write(w io.Writer, results []engine.Result) error {
	if err := a.reporter.WriteResults(w, results); err != nil {
		return err
	}
	if stats := engine.Summarize(results); stats.Failed > 0 {
		return fmt.Errorf("%s: %d/%d", config.ErrSomeFailed, stats.Failed, stats.Total)
	}
	return nil
}

// logStartupInfo logs environment details useful for debugging.
func logStartupInfo() {
	slog.Debug(config.MsgAppStarting,
		config.LogKeyComponent, config.CompMain,
		slog.Group(config.LogKeyBuild,
			slog.String(config.LogKeyApp, config.AppName),
			slog.String(config.LogKeyVersion, config.Version),
			slog.String(config.LogKeyCommit, config.Commit),
			slog.String(config.LogKeyGoVer, runtime.Version()),
		),
		slog.Group(config.LogKeyEnv,
			slog.String(config.LogKeyOS, runtime.GOOS),
			slog.String(config.LogKeyArch, runtime.GOARCH),
			slog.Int(config.LogKeyPID, os.Getpid()),
		),
	)
}

// setupLogging configures the default slog logger on w: tint for a human
// console, JSON for machines.
func setupLogging(w io.Writer, debugMode bool, format string) error {
	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	switch format {
	case config.LogFormatText:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			AddSource:  debugMode,
			TimeFormat: time.TimeOnly,
		})
	case config.LogFormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     level,
			AddSource: debugMode,
		})
	default:
		return fmt.Errorf("%s: %q", config.ErrLogFormat, format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}
