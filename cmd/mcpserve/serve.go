package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/mnehpets/mcpserve/auth"
	"github.com/mnehpets/mcpserve/config"
	"github.com/mnehpets/mcpserve/endpoint"
	"github.com/mnehpets/mcpserve/mcp"
	"github.com/mnehpets/mcpserve/middleware"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.ListenAddr = listen
			}
			log, flush, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer flush()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides listen_addr)")
	return cmd
}

// serve runs the HTTP server until ctx is done, then shuts it down.
func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if cfg.TraceStdout {
		shutdown, err := installStdoutTracer()
		if err != nil {
			return err
		}
		defer shutdown()
	}

	h, err := newHandler(ctx, cfg, log, reg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.ListenAddr), zap.String("path", cfg.Path))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

// newHandler builds the routes: the MCP endpoint at cfg.Path behind the
// processor chain, a health check and, when configured, Prometheus metrics.
func newHandler(ctx context.Context, cfg *config.Config, log *zap.Logger, reg *prometheus.Registry) (http.Handler, error) {
	server := mcp.New(
		mcp.WithServerInfo(cfg.Server.Name, cfg.Server.Version),
		mcp.WithLogger(log.Sugar().With("module", "mcp")),
	)

	metrics, err := middleware.NewMetricsProcessor(reg, "mcpserve")
	if err != nil {
		return nil, err
	}

	security := []middleware.SecurityHeadersOption{}
	if len(cfg.CORSOrigins) > 0 {
		security = append(security, middleware.WithCORS(middleware.NewMCPCORSConfig(cfg.CORSOrigins...)))
	}

	processors := []endpoint.Processor{
		middleware.NewLoggingProcessor(log),
		middleware.NewTracingProcessor(otel.GetTracerProvider()),
		metrics,
		middleware.NewSecurityHeadersProcessor(security...),
		middleware.NewBodyLimitProcessor(cfg.MaxBodyBytes),
	}
	if cfg.RateLimit.RPS > 0 {
		processors = append(processors, middleware.NewRateLimitProcessor(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	if cfg.Auth.Enabled() {
		v, err := newVerifier(ctx, cfg.Auth)
		if err != nil {
			return nil, err
		}
		processors = append(processors, auth.NewBearerProcessor(v, cfg.Auth.Realm))
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, endpoint.Handler(server.Endpoint, processors...))
	mux.HandleFunc("GET /healthz", endpoint.HandleFunc(server.HealthEndpoint))
	if cfg.MetricsPath != "" {
		mux.Handle("GET "+cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	return mux, nil
}

func newVerifier(ctx context.Context, ac config.AuthConfig) (auth.TokenVerifier, error) {
	if ac.JWKSFile != "" {
		keys, err := auth.LoadKeySet(ac.JWKSFile)
		if err != nil {
			return nil, err
		}
		return auth.NewStaticVerifier(ac.Issuer, ac.Audience, keys)
	}
	return auth.NewDiscoveryVerifier(ctx, ac.Issuer, ac.Audience)
}

// installStdoutTracer sets a global tracer provider that writes spans to
// stderr as JSON.
func installStdoutTracer() (func(), error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, errors.Wrap(err, "stdout trace exporter")
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = tp.Shutdown(ctx)
		otel.SetTracerProvider(prev)
	}, nil
}
