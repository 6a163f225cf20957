package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/usaschooldata/schooldata/internal/logctx"
	"github.com/usaschooldata/schooldata/internal/remote"
	"github.com/usaschooldata/schooldata/internal/server"
)

var (
	listenAddr  string
	metricsAddr string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the membership gRPC contract from local partitions",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":9090", "gRPC listen address")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := session.Context(cmd.Context())
	logger := logctx.FromContext(ctx)

	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listenAddr, err)
	}

	sm := server.NewShutdownManager(server.DefaultShutdownConfig())
	opts := append(remote.ServerOptions(), grpc.ChainUnaryInterceptor(sm.UnaryInterceptor(), logRequests(ctx)))
	srv := grpc.NewServer(opts...)
	remote.RegisterMembershipServer(srv, server.NewMembershipService(session.Local()))

	if metricsAddr != "" && session.Registry() != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(session.Registry(), promhttp.HandlerOpts{}))
		httpSrv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
		sm.RegisterCloser(server.CloserFunc(func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		}))
		logger.Info().Str("addr", metricsAddr).Msg("metrics server listening")
	}

	return sm.Serve(ctx, srv, lis)
}

// logRequests attaches the session logger to every call and logs failures.
func logRequests(base context.Context) grpc.UnaryServerInterceptor {
	logger := logctx.FromContext(base)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(logctx.WithLogger(ctx, logger), req)
		ev := logger.Debug()
		if err != nil {
			ev = logger.Warn().Err(err)
		}
		ev.Str("method", info.FullMethod).Dur("took", time.Since(start)).Msg("rpc")
		return resp, err
	}
}
