package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/SmitUplenchwar2687/admit/internal/clock"
	"github.com/SmitUplenchwar2687/admit/internal/config"
	"github.com/SmitUplenchwar2687/admit/internal/events"
	"github.com/SmitUplenchwar2687/admit/internal/interceptor"
	"github.com/SmitUplenchwar2687/admit/internal/log"
	"github.com/SmitUplenchwar2687/admit/internal/recorder"
	"github.com/SmitUplenchwar2687/admit/internal/server"
)

const shutdownTimeout = 5 * time.Second

// serveOptions are the server command settings that are not part of the
// config file.
type serveOptions struct {
	configFile string
	recordFile string
	workers    int
	// ready, when set, is called once every listener is bound.
	ready func(httpAddr, grpcAddr string)
}

func newServerCmd() *cobra.Command {
	var (
		lf            limiterFlags
		addr          string
		grpcAddr      string
		drainInterval time.Duration
		redisAddr     string
		opts          serveOptions
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the admit HTTP (and optional gRPC) server",
		Long: `Starts an HTTP server that answers admission checks.

Endpoints:
  GET  /                  Service info (JSON)
  GET  /dashboard         Live dashboard
  GET  /health            Health check
  GET  /api/status        Active algorithm and queue depth
  GET  /api/check         Check using the client key (X-API-Key or IP)
  GET  /api/check/{key}   Check a specific key
  POST /api/enqueue/{key} Enqueue a key (leaky_bucket only)
  GET  /metrics           Prometheus metrics
  WS   /ws                Live decision events

With --grpc-addr a gRPC health service is served behind the admission
interceptors. With --config the file is watched and the limiter is rebuilt
whenever it changes; flag overrides apply to the initial load only.`,
		Example: `  admit server
  admit server --addr :9090 --algorithm sliding_window_log --capacity 100 --window 1m
  admit server --algorithm leaky_bucket --capacity 50 --rate 10 --drain-interval 1s
  admit server --config admit.yaml --grpc-addr :9091 --redis-addr localhost:6379
  admit server --record traffic.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := lf.load(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Server.Addr = addr
			}
			if flags.Changed("grpc-addr") {
				cfg.Server.GRPCAddr = grpcAddr
			}
			if flags.Changed("drain-interval") {
				cfg.Server.DrainInterval = drainInterval
			}
			if flags.Changed("redis-addr") {
				cfg.Events.RedisAddr = redisAddr
			}
			opts.configFile = lf.configFile

			if err := log.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, opts)
		},
	}

	def := config.Default().Server
	lf.bind(cmd)
	cmd.Flags().StringVar(&addr, "addr", def.Addr, "HTTP address to listen on")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC address to listen on (disabled when empty)")
	cmd.Flags().DurationVar(&drainInterval, "drain-interval", 0, "drain the leaky bucket in the background this often")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "", "publish decisions to Redis pub/sub at this address")
	cmd.Flags().StringVar(&opts.recordFile, "record", "", "record traffic to JSON file (exported on shutdown)")
	cmd.Flags().IntVar(&opts.workers, "workers", server.DefaultWorkers, "leaky bucket handlers")

	return cmd
}

// runServer serves until ctx is cancelled, then shuts everything down.
func runServer(ctx context.Context, cfg config.Config, opts serveOptions) error {
	logger := log.Logger()

	srvOpts := server.Options{Workers: opts.workers}
	if opts.recordFile != "" {
		srvOpts.Recorder = recorder.New(nil)
	}
	if cfg.Events.RedisAddr != "" {
		sink, err := events.DialRedis(ctx, cfg.Events.RedisAddr, cfg.Events.RedisChannel)
		if err != nil {
			return err
		}
		defer sink.Close()
		srvOpts.Sinks = append(srvOpts.Sinks, sink)
		logger.Info("publishing decisions to redis",
			zap.String("addr", cfg.Events.RedisAddr), zap.String("channel", sink.Channel()))
	}

	srv, err := server.New(cfg.Server.Addr, cfg.Limiter, clock.NewRealClock(), srvOpts)
	if err != nil {
		return err
	}

	httpLn, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.Addr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		if err := srv.StartOnListener(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var (
		grpcServer *grpc.Server
		grpcBound  string
	)
	if cfg.Server.GRPCAddr != "" {
		grpcLn, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			shutdownHTTP(srv)
			return fmt.Errorf("listening on %s: %w", cfg.Server.GRPCAddr, err)
		}
		grpcBound = grpcLn.Addr().String()

		grpcServer = grpc.NewServer(
			grpc.ChainUnaryInterceptor(interceptor.Unary(srv, nil)),
			grpc.ChainStreamInterceptor(interceptor.Stream(srv, nil)),
		)
		healthpb.RegisterHealthServer(grpcServer, health.NewServer())
		go func() {
			logger.Info("admit grpc listening", zap.String("addr", grpcBound))
			if err := grpcServer.Serve(grpcLn); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	var scheduler *server.DrainScheduler
	if cfg.Server.DrainInterval > 0 {
		if scheduler, err = server.NewDrainScheduler(cfg.Server.DrainInterval, srv.Drain); err != nil {
			shutdownHTTP(srv)
			return err
		}
		scheduler.Start()
	}

	if opts.configFile != "" {
		watcher, err := config.NewWatcher(opts.configFile, config.DefaultDebounce)
		if err != nil {
			logger.Warn("config hot reload disabled", zap.Error(err))
		} else {
			defer watcher.Close()
			go func() {
				_ = watcher.Run(ctx, func(next config.Config) {
					if err := srv.Reload(next.Limiter); err != nil {
						logger.Error("applying reloaded config", zap.Error(err))
					}
				})
			}()
		}
	}

	if opts.ready != nil {
		opts.ready(httpLn.Addr().String(), grpcBound)
	}

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn("stopping drain scheduler", zap.Error(err))
		}
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}

	if srvOpts.Recorder != nil {
		logger.Info("exporting records",
			zap.Int("count", srvOpts.Recorder.Len()), zap.String("path", opts.recordFile))
		if err := srvOpts.Recorder.ExportFile(opts.recordFile); err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func shutdownHTTP(srv *server.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
