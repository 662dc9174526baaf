package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/realtime-session-analyzer/internal/config"
	"github.com/tjfontaine/realtime-session-analyzer/internal/report"
	"github.com/tjfontaine/realtime-session-analyzer/internal/runtime"
	"github.com/tjfontaine/realtime-session-analyzer/internal/server"
	"github.com/tjfontaine/realtime-session-analyzer/internal/storage"
	"github.com/tjfontaine/realtime-session-analyzer/internal/storage/memory"
	"github.com/tjfontaine/realtime-session-analyzer/internal/storage/sqlite"
	"github.com/tjfontaine/realtime-session-analyzer/internal/telemetry"
	"github.com/tjfontaine/realtime-session-analyzer/internal/transcript"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var (
		configPath  = flag.String("config", "", "path to config file (yaml)")
		profileName = flag.String("profile", "", "analysis profile (overrides config)")
		inputPath   = flag.String("input", "", "session log file to analyze, - for stdin")
		dbPath      = flag.String("db", "", "sqlite archive path (overrides config)")
		serve       = flag.Bool("serve", false, "start the report server after analyzing")
		port        = flag.Int("port", 0, "report server port (overrides config)")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *profileName != "" {
		cfg.Profile = *profileName
	}
	if *dbPath != "" {
		cfg.Storage.DSN = *dbPath
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(cfg.Telemetry.Service, logger)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open archive: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if *inputPath != "" {
		if err := analyze(ctx, cfg, store, *inputPath, logger); err != nil {
			log.Fatalf("Analysis failed: %v", err)
		}
	} else if !*serve {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -input to analyze a log, -serve to browse the archive")
		flag.Usage()
		os.Exit(2)
	}

	if *serve {
		srv := server.New(cfg.Server.Port, logger, store)
		if err := srv.Start(); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}
}

func openStore(cfg *config.Config) (storage.RunStore, error) {
	if cfg.Storage.DSN == "" {
		return memory.New(), nil
	}
	return sqlite.New(cfg.Storage.DSN)
}

func analyze(ctx context.Context, cfg *config.Config, store storage.RunStore, inputPath string, logger *slog.Logger) error {
	profile, split, err := cfg.ResolveProfile(cfg.Profile)
	if err != nil {
		return err
	}

	var opts []runtime.Option
	if counter, err := transcript.NewCounter(); err != nil {
		logger.Warn("token counting disabled", slog.String("error", err.Error()))
	} else {
		opts = append(opts, runtime.WithTokenCounter(counter))
	}

	in := os.Stdin
	source := "stdin"
	if inputPath != "-" {
		f, err := os.Open(inputPath)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
		source = inputPath
	}

	analyzer := runtime.New(profile, split, logger, opts...)
	res, err := analyzer.Analyze(ctx, in, source)
	if err != nil {
		return err
	}

	if err := report.Render(os.Stdout, res); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	if err := store.SaveRun(ctx, res.StorageRun()); err != nil {
		return fmt.Errorf("archive run: %w", err)
	}
	logger.Info("run archived", slog.String("run_id", res.RunID))
	return nil
}
