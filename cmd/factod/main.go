package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"factod/internal/common/fsutil"
	"factod/internal/compile"
	"factod/internal/config"
	"factod/internal/httpapi"
	"factod/internal/queue"
	"factod/internal/stats"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (.yaml, .json or .toml)")
	addr := flag.String("addr", "", "HTTP listen address, e.g. :3000 (overrides config)")
	compilerBin := flag.String("compiler", "", "Path to the compiler binary (overrides config)")
	flag.Parse()

	var cfg config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			l := zerolog.New(os.Stderr)
			l.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
		}
		cfg = loaded
	}
	cfg = config.FromEnv(cfg)
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *compilerBin != "" {
		cfg.CompilerBin = *compilerBin
	}
	cfg = config.WithDefaults(cfg)

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(lvl)
	if cfg.Debug {
		logger = logger.Level(zerolog.DebugLevel)
	}

	statsPath, err := fsutil.ExpandHome(cfg.StatsFile)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.StatsFile).Msg("cannot resolve stats file")
	}
	compilerPath, err := fsutil.ExpandHome(cfg.CompilerBin)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.CompilerBin).Msg("cannot resolve compiler path")
	}

	st := stats.Open(statsPath, logger.With().Str("component", "stats").Logger())
	q := queue.New(queue.Config{
		Capacity: cfg.MaxQueueSize,
		Timeout:  cfg.QueueTimeout(),
	})
	svc := compile.NewService(q, st, compile.NewSubprocessCompiler(compilerPath), compile.Config{
		MaxSourceLength: cfg.MaxSourceLength,
		Hooks: compile.Hooks{
			CompilationDone: httpapi.ObserveCompilation,
			QueueDepth:      httpapi.SetQueueDepth,
		},
	}, logger.With().Str("component", "compile").Logger())

	httpapi.SetLogger(logger.With().Str("component", "http").Logger())
	httpapi.SetCORSOptions(true, cfg.Origins())
	httpapi.SetMaxBodyBytes(int64(cfg.MaxSourceLength) + 64*1024)

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	mux := httpapi.NewMux(svc, httpapi.Options{
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow(),
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("compiler", cfg.CompilerBin).Msg("factod listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("shutting down")
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown error")
	}
}
