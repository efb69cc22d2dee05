package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/ritzau/impact-analyzer/pkg/analysis"
	"github.com/ritzau/impact-analyzer/pkg/config"
	"github.com/ritzau/impact-analyzer/pkg/finder"
	"github.com/ritzau/impact-analyzer/pkg/frontend"
	"github.com/ritzau/impact-analyzer/pkg/logging"
	"github.com/ritzau/impact-analyzer/pkg/metrics"
	"github.com/ritzau/impact-analyzer/pkg/model"
	"github.com/ritzau/impact-analyzer/pkg/output"
	"github.com/ritzau/impact-analyzer/pkg/pubsub"
	"github.com/ritzau/impact-analyzer/pkg/session"
	"github.com/ritzau/impact-analyzer/pkg/storage"
	"github.com/ritzau/impact-analyzer/pkg/watcher"
	"github.com/ritzau/impact-analyzer/pkg/web"
)

const usage = `Usage: impact-analyzer [flags] [changed source files...]

Computes which compilation units must be recompiled after the given source
files changed. Without persisted state every source is compiled once.

Flags:
`

func main() {
	flags := pflag.NewFlagSet("impact-analyzer", pflag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	flags.StringP("workspace", "w", ".", "Workspace root")
	flags.String("state_dir", "", "Directory of the persisted analyzer state (default <workspace>/.impact-analyzer)")
	flags.Bool("in_memory", false, "Keep state in memory only")
	flags.Int("max_rounds", 100, "Round cap before a session fails as non-converging")
	flags.Int("workers", runtime.GOMAXPROCS(0), "Parallel classify/expand workers")
	flags.String("frontend", "", "Front-end command line, reads units as JSON on stdin")
	flags.StringSlice("extensions", finder.DefaultExtensions, "Source file extensions")
	flags.StringSlice("classpath", nil, "Classpath entries the sources compile against")
	flags.StringP("format", "f", "text", "Plan output format: text, json or yaml")
	flags.Bool("full", false, "Discard persisted state and compile every source")
	flags.Bool("watch", false, "Watch sources and analyze every batch of changes")
	flags.Bool("web", false, "Serve the HTTP API")
	flags.Int("port", 8080, "Port for the HTTP API")
	flags.String("verbosity", "", "Log level: trace, debug, info, warn, error")
	flags.CountP("verbose", "v", "Increase verbosity (-v debug, -vv trace)")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	logging.SetLevel(logging.ParseLevel(cfg.Verbosity, cfg.VerboseCnt))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flags.Args()); err != nil {
		if _, ok := session.AsFailure(err); !ok {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string) error {
	if cfg.Frontend == "" {
		return errors.New("no front-end configured (set --frontend or frontend in impact-analyzer.toml)")
	}

	storeCfg := storage.DefaultConfig(cfg.StateDir)
	if cfg.InMemory {
		storeCfg = storage.InMemoryConfig()
	}
	store, err := storage.Open(storeCfg)
	if err != nil {
		return err
	}
	defer store.Close()

	publisher := pubsub.NewBroker()
	defer publisher.Close()

	compiler := frontend.NewCompiler(frontend.NewExecutor(), cfg.Workspace, cfg.Frontend, cfg.Classpath)
	runner := analysis.NewRunner(analysis.Options{
		Workspace:  cfg.Workspace,
		Extensions: cfg.Extensions,
		Classpath:  cfg.Classpath,
		MaxRounds:  cfg.MaxRounds,
		Workers:    cfg.Workers,
	}, store, compiler, metrics.Default(), pubsub.NewSessionObserver(publisher))

	changed, err := unitKeys(cfg.Workspace, args)
	if err != nil {
		return err
	}

	if !cfg.Watch && !cfg.WebMode {
		return analyzeOnce(ctx, cfg, runner, changed)
	}

	g, ctx := errgroup.WithContext(ctx)

	// Bring the state up to date before serving or watching
	g.Go(func() error {
		plan, err := watcher.RunWithFallback(ctx, runner, analysis.Request{
			Changed: changed,
			Full:    cfg.Full,
			Reason:  "initial analysis",
		})
		report(cfg.Format, plan, err)
		return nil
	})

	if cfg.WebMode {
		server := web.NewServer(runner, publisher, nil)
		g.Go(func() error {
			return server.Start(ctx, fmt.Sprintf(":%d", cfg.Port))
		})
	}

	if cfg.Watch {
		fw, err := watcher.NewFileWatcher(cfg.Workspace, cfg.Extensions)
		if err != nil {
			return err
		}
		if err := fw.Start(ctx); err != nil {
			return err
		}
		debouncer := watcher.NewDebouncer(fw.Events(), 300*time.Millisecond, 2*time.Second)
		debouncer.Start(ctx)
		g.Go(func() error {
			watcher.Watch(ctx, debouncer.Output(), fw.Workspace(), runner, func(plan *session.Plan, err error) {
				report(cfg.Format, plan, err)
			})
			return nil
		})
	}

	return g.Wait()
}

// analyzeOnce runs one session and prints the plan
func analyzeOnce(ctx context.Context, cfg *config.Config, runner *analysis.Runner, changed []model.UnitKey) error {
	reason := fmt.Sprintf("%d files changed", len(changed))
	if cfg.Full {
		reason = "full rebuild requested"
	}
	plan, err := runner.Run(ctx, analysis.Request{Changed: changed, Full: cfg.Full, Reason: reason})
	report(cfg.Format, plan, err)
	return err
}

func report(format string, plan *session.Plan, err error) {
	if err := output.Write(os.Stdout, format, output.NewReport(plan, err)); err != nil {
		logging.Error("failed to write report", "error", err)
	}
}

// unitKeys maps command-line paths, relative to the working directory, to unit keys
func unitKeys(workspace string, args []string) ([]model.UnitKey, error) {
	root, err := filepath.Abs(workspace)
	if err != nil {
		return nil, err
	}
	units := make([]model.UnitKey, 0, len(args))
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		unit, err := finder.UnitKeyFor(root, abs)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, nil
}
