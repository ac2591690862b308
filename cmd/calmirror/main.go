// CalMirror keeps one person's three calendars consistent by mirroring each
// event into the other two: workplace (Dooray) events mirror fully visible,
// personal (Google, iCloud) events mirror as content-hidden busy blocks.
//
// Usage:
//
//	calmirror sync   [--config <path>] [--verbose]  # single mirror pass then exit
//	calmirror daemon [--config <path>] [--verbose]  # run on the configured schedule
//	calmirror status [--config <path>]              # show calendars & mapping count
//	calmirror version                               # print version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/njoerd114/calmirror/internal/caldav"
	"github.com/njoerd114/calmirror/internal/config"
	"github.com/njoerd114/calmirror/internal/dooray"
	"github.com/njoerd114/calmirror/internal/googlecal"
	"github.com/njoerd114/calmirror/internal/model"
	"github.com/njoerd114/calmirror/internal/store"
	syncp "github.com/njoerd114/calmirror/internal/sync"
	"github.com/njoerd114/calmirror/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// maxErrorLines bounds how many example errors the CLI prints; the total
// count is always shown so large failure bursts stay readable.
const maxErrorLines = 3

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return printUsage()
	}

	switch cmd := os.Args[1]; cmd {
	case "sync":
		return runSync(os.Args[2:], false)
	case "daemon":
		return runSync(os.Args[2:], true)
	case "status":
		return runStatus(os.Args[2:])
	case "version":
		fmt.Println("calmirror", version)
		return nil
	default:
		return fmt.Errorf("unknown command %q — run 'calmirror' for usage", cmd)
	}
}

func printUsage() error {
	fmt.Fprintln(os.Stderr, "CalMirror — mirror events across Dooray, Google, and iCloud calendars")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  calmirror sync   [--config ...] [--verbose]  Single mirror pass then exit")
	fmt.Fprintln(os.Stderr, "  calmirror daemon [--config ...] [--verbose]  Run on the configured schedule")
	fmt.Fprintln(os.Stderr, "  calmirror status [--config ...]              Show calendars & mapping count")
	fmt.Fprintln(os.Stderr, "  calmirror version                            Print version")
	os.Exit(1)
	return nil // unreachable
}

// runSync handles both "sync" and "daemon".
func runSync(args []string, daemon bool) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	cfgPath := fs.String("config", defaultCfg, "path to config.yaml")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return startSync(*cfgPath, *verbose, daemon)
}

// runStatus prints the connected calendars and current mapping count.
func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	cfgPath := fs.String("config", defaultCfg, "path to config.yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	fmt.Println("CalMirror Status")
	fmt.Println("────────────────")

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Printf("  Config:    %s (invalid: %v)\n", *cfgPath, err)
		return nil
	}
	fmt.Printf("  Config:    %s ✓\n", *cfgPath)
	fmt.Printf("  Calendars: dooray (%s), google (%s), icloud (%s)\n",
		markWorkplace(cfg, "dooray"), markWorkplace(cfg, "google"), markWorkplace(cfg, "icloud"))
	fmt.Printf("  Workplace: %s (mirrors public, others mirror private)\n", cfg.Workplace)
	fmt.Printf("  Window:    %d days back, %d days forward\n", cfg.Window.DaysBack, cfg.Window.DaysForward)
	fmt.Printf("  Schedule:  %s\n", cfg.Schedule)

	st, closeStore, err := openStore(cfg, logger)
	if err != nil {
		fmt.Printf("  Mappings:  store unavailable (%v)\n", err)
		return nil
	}
	defer closeStore()

	count, err := st.Count(context.Background())
	if err != nil {
		fmt.Printf("  Mappings:  count unavailable (%v)\n", err)
		return nil
	}
	fmt.Printf("  Mappings:  %d (%s backend)\n", count, cfg.Store.Backend)
	return nil
}

func markWorkplace(cfg *config.Config, id string) string {
	if cfg.Workplace == id {
		return "workplace"
	}
	return "personal"
}

// startSync is the shared implementation for sync and daemon modes.
func startSync(cfgPath string, verbose, daemon bool) error {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config from %q: %w", cfgPath, err)
	}
	logger.Info("config loaded",
		"workplace", cfg.Workplace,
		"window_back_days", cfg.Window.DaysBack,
		"window_forward_days", cfg.Window.DaysForward,
		"store", cfg.Store.Backend,
	)

	// --- Telemetry (optional) ------------------------------------------------

	if cfg.Telemetry != nil {
		telCfg := telemetry.Config{
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			Insecure:     cfg.Telemetry.Insecure,
			ServiceName:  cfg.Telemetry.ServiceName,
			Headers:      cfg.Telemetry.Headers,
		}
		shutdownTel, err := telemetry.Setup(context.Background(), telCfg)
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTel(flushCtx); err != nil {
					logger.Error("telemetry shutdown error", "error", err)
				}
			}()
		}
	}

	// --- Mapping store -------------------------------------------------------

	st, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// --- Calendar adapters ---------------------------------------------------

	calendars := map[model.CalendarID]syncp.Calendar{
		dooray.ID: dooray.NewAdapter(cfg.Dooray.BaseURL, cfg.Dooray.Token, cfg.Dooray.CalendarID,
			logger.With("calendar", dooray.ID)),
		googlecal.ID: googlecal.NewAdapter(cfg.Google.ClientID, cfg.Google.ClientSecret,
			cfg.Google.RefreshToken, cfg.Google.CalendarID, logger.With("calendar", googlecal.ID)),
		caldav.ID: caldav.NewAdapter(cfg.CalDAV.URL, cfg.CalDAV.Username, cfg.CalDAV.Password,
			logger.With("calendar", caldav.ID)),
	}

	// --- Engine --------------------------------------------------------------

	policy := syncp.Policy{Workplace: model.CalendarID(cfg.Workplace)}
	window := syncp.Window{DaysBack: cfg.Window.DaysBack, DaysForward: cfg.Window.DaysForward}

	reconciler, err := syncp.NewReconciler(calendars, policy, window, st, logger)
	if err != nil {
		return fmt.Errorf("building reconciler: %w", err)
	}
	engine := syncp.NewEngine(reconciler, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if !daemon {
		logger.Info("running single mirror pass")
		res := engine.RunOnce(ctx)
		renderResult(res)
		return nil
	}

	logger.Info("daemon starting", "schedule", cfg.Schedule)
	if err := engine.Run(ctx, cfg.Schedule); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("sync engine: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// openStore builds the configured mapping-store backend.
func openStore(cfg *config.Config, logger *slog.Logger) (syncp.MappingStore, func(), error) {
	switch cfg.Store.Backend {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			var err error
			if path, err = config.DefaultSQLitePath(); err != nil {
				return nil, nil, fmt.Errorf("resolving store path: %w", err)
			}
		}
		st, err := store.OpenSQLite(path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening mapping store at %q: %w", path, err)
		}
		logger.Info("mapping store opened", "backend", "sqlite", "path", path)
		return st, func() {
			if err := st.Close(); err != nil {
				logger.Error("closing mapping store", "error", err)
			}
		}, nil

	default:
		path := cfg.Store.Path
		if path == "" {
			path = store.DefaultFilePath
		}
		st := store.OpenFile(path, logger)
		logger.Info("mapping store opened", "backend", "file", "path", path)
		return st, func() { _ = st.Close() }, nil
	}
}

// renderResult prints the pass summary: counts plus a few example error
// lines and the total error count.
func renderResult(res syncp.Result) {
	fmt.Printf("created=%d updated=%d deleted=%d errors=%d\n",
		res.Created, res.Updated, res.Deleted, len(res.Errors))

	for i, e := range res.Errors {
		if i == maxErrorLines {
			fmt.Printf("  … and %d more error(s)\n", len(res.Errors)-maxErrorLines)
			break
		}
		fmt.Printf("  %s\n", e)
	}
}
