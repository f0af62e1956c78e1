package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"threestep-go/internal/client"
	"threestep-go/internal/config"
	"threestep-go/internal/handler"
	"threestep-go/internal/httpmsg"
	"threestep-go/internal/metrics"
	"threestep-go/internal/middleware"
	"threestep-go/internal/model"
	"threestep-go/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	_ = godotenv.Load()

	var cli config.CLI
	ctx := kong.Parse(&cli,
		kong.Name("threestep"),
		kong.Description("Replays a token-protected request: fetch token, send, build the result request."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	switch ctx.Command() {
	case "run <request>":
		os.Exit(runOnce(&cli))
	default:
		serve(&cli)
	}
}

func serve(cli *config.CLI) {
	fx.New(
		fx.Provide(
			func() *config.CLI { return cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			func(cfg *config.Config) *slog.Logger { return newLogger(cfg, os.Stdout) },
			metrics.New,
			newEcho,
			client.NewRawClient,
			newSink,
			newOrchestrator,
			handler.NewRunHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, announce, startServer),
	).Run()
}

// runOnce performs a single exchange from the command line. The result
// request goes to stdout; progress and failures go to stderr.
func runOnce(cli *config.CLI) int {
	failed := color.New(color.FgRed, color.Bold)

	cfg, err := config.Load(cli)
	if err != nil {
		failed.Fprintln(os.Stderr, "✗", err)
		return 2
	}
	logger := newLogger(cfg, os.Stderr)

	raw, err := os.ReadFile(cli.Run.Request)
	if err != nil {
		failed.Fprintln(os.Stderr, "✗ read request:", err)
		return 2
	}

	fallback := model.Target{Host: cfg.Target.Host, Port: cfg.Target.Port, TLS: cfg.Target.TLS}
	target, err := service.ResolveTarget(model.Target{}, fallback, raw)
	if err != nil {
		failed.Fprintln(os.Stderr, "✗", err)
		return 2
	}

	o := newOrchestrator(client.NewRawClient(cfg, logger, nil), newSink(cfg, logger), cfg, nil)

	color.New(color.FgCyan).Fprintf(os.Stderr, "→ %s against %s\n", handler.ActionName, target.Addr())

	timeout := time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second * 3
	runCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := o.Run(runCtx, "", &model.Message{Service: target, Request: raw})
	if err != nil {
		failed.Fprintln(os.Stderr, "✗", err)
		return 1
	}
	color.New(color.FgGreen).Fprintln(os.Stderr, "✓ result request ready")
	fmt.Fprint(os.Stdout, result.String())

	if !cli.Run.Fetch {
		fmt.Fprintln(os.Stdout)
		return 0
	}

	resp, err := o.FetchResult(runCtx, target, result)
	if err != nil {
		failed.Fprintln(os.Stderr, "✗", err)
		return 1
	}
	color.New(color.FgGreen).Fprintf(os.Stderr, "✓ result response %d\n", resp.StatusCode())
	fmt.Fprint(os.Stdout, "\n\n", string(resp.Raw), "\n")
	return 0
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		h = slog.NewJSONHandler(w, opts)
	}

	return slog.New(h)
}

// newSink sends orchestrator progress to the main logger and failures to stderr.
func newSink(cfg *config.Config, logger *slog.Logger) *service.LogSink {
	return service.NewLogSink(logger, newLogger(cfg, os.Stderr))
}

func newOrchestrator(c *client.RawClient, sink *service.LogSink, cfg *config.Config, m *metrics.Metrics) *service.Orchestrator {
	h := httpmsg.Helpers{}
	return service.NewOrchestrator(c, h, h, sink, service.ProtocolFromConfig(cfg), m)
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadTimeout = 30 * time.Second
	// A run makes three upstream round trips, each bounded by the upstream timeout.
	e.Server.WriteTimeout = time.Duration(cfg.Upstream.TimeoutSeconds)*3*time.Second + 10*time.Second
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m))
	}
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(middleware.SecurityHeaders())

	if cfg.Server.RateLimit.Enabled {
		e.Use(middleware.RateLimit(cfg.Server.RateLimit.RequestsPerSecond))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	return e
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func announce(cfg *config.Config, logger *slog.Logger) {
	logger.Info("3 step request loaded",
		"extension", handler.ExtensionName,
		"action", handler.ActionName,
		"endpoint", cfg.Protocol.EndpointPath,
		"config", cfg.FilePath(),
	)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server", "addr", addr)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return e.Shutdown(ctx)
		},
	})
}
