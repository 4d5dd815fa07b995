package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	log "log/slog"

	"murmur/companion/internal/api"
	"murmur/companion/internal/config"
	"murmur/companion/internal/echo"
	"murmur/companion/internal/health"
	"murmur/companion/internal/loop"
	"murmur/companion/internal/silence"
	"murmur/companion/internal/store"
	"murmur/companion/internal/supervisor"
	"murmur/companion/internal/turn"
	"murmur/companion/internal/voicews"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	fs := config.Flags()
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	envFile, _ := fs.GetString("env")
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load(envFile)

	cfg := config.Load(fs)

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevelMap[cfg.Server.LogLevel],
		TimeFormat: time.Kitchen,
	})))
	logger := log.Default()

	if cfg.Deepgram.APIKey == "" {
		log.Warn("DEEPGRAM_API_KEY not set; recognition will fail")
	}
	if cfg.Auth.TokenSecret == "" {
		log.Error("AUTH_TOKEN_SECRET not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := store.New(cfg.Events.Max)
	h := api.NewHandlers(cfg, st, nil, logger)

	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(h))
	mux.Handle("/metrics", promhttp.Handler())

	// Voice socket and control dispatcher
	reg := voicews.NewRegistry()
	wss := voicews.NewServer(cfg, st, reg, turnConfig(cfg), logger)
	disp := loop.New(st, cfg.Turn.EchoCooldown)
	wss.OnAttach = func(id string, c *turn.Coordinator) { disp.Attach(id, c) }
	wss.OnDetach = func(id string, c *turn.Coordinator) { disp.Detach(id, c) }
	wss.OnMessage = disp.OnMessage
	mux.HandleFunc("/ws/voice", wss.HandleVoiceWS)

	// gRPC health service mirrors recognizer readiness
	hs := grpchealth.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	go health.Watch(ctx, cfg, hs, 30*time.Second, logger)
	lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		log.Error("grpc listen failed", "port", cfg.Server.GRPCPort, "err", err)
		os.Exit(1)
	}
	go func() {
		if err := gs.Serve(lis); err != nil {
			log.Error("grpc server error", "err", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received; stopping server")
		// Close voice sockets before draining HTTP
		reg.CloseAll("server shutdown")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
		gs.GracefulStop()
	}()

	log.Info("server starting", "addr", addr, "grpc_port", cfg.Server.GRPCPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "err", err)
		os.Exit(1)
	}
}

func turnConfig(cfg config.Config) turn.Config {
	tc := turn.DefaultConfig()
	if m, err := silence.ParseMode(cfg.Turn.Mode); err == nil {
		tc.Mode = m
	} else {
		log.Warn("unknown mode, using default", "mode", cfg.Turn.Mode)
	}
	tc.Thresholds = silence.Thresholds{
		silence.ModeNormal:    cfg.Turn.SilenceNormal,
		silence.ModeUnhurried: cfg.Turn.SilenceUnhurried,
		silence.ModeDictation: silence.Never,
	}
	tc.Watchdog = cfg.Turn.Watchdog
	tc.Supervisor = supervisor.Config{
		RestartDelay:  cfg.Turn.RestartDelay,
		MaxBackoff:    cfg.Turn.MaxBackoff,
		FailureWindow: supervisor.DefaultConfig().FailureWindow,
		StallTimeout:  cfg.Turn.StartTimeout,
	}
	tc.Echo = echo.Config{
		MinEchoLen:   cfg.Turn.MinEchoLen,
		EchoMemory:   cfg.Turn.EchoMemory,
		RepeatWindow: cfg.Turn.RepeatWindow,
		Denylist:     echo.DefaultDenylist(),
	}
	if len(cfg.Turn.Denylist) > 0 {
		tc.Echo.Denylist = cfg.Turn.Denylist
	}
	return tc
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug("http", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}
