package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/edgefirst-dev/jwt"
	"github.com/edgefirst-dev/jwt/metrics/export/prometheus"
)

var jwksCmd = &cobra.Command{
	Use:   "jwks",
	Short: "Print the public signing key set",
	Example: `  # Print the key set served to verifiers
  jwtkeys jwks > jwks.json`,
	Args: cobra.NoArgs,
	RunE: jwksCmdRun,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the public key set and metrics over HTTP",
	Example: `  # Serve /.well-known/jwks.json and /metrics on :8080
  jwtkeys serve --listen=:8080 --redis-addr=localhost:6379`,
	Args: cobra.NoArgs,
	RunE: serveCmdRun,
}

type serveFlags struct {
	listen string
	maxAge time.Duration
}

var serveArgs = newServeFlags()

func newServeFlags() serveFlags {
	return serveFlags{listen: ":8080", maxAge: 5 * time.Minute}
}

func init() {
	serveCmd.Flags().StringVar(&serveArgs.listen, "listen", serveArgs.listen,
		"Address to listen on.")
	serveCmd.Flags().DurationVar(&serveArgs.maxAge, "max-age", serveArgs.maxAge,
		"Cache-Control max-age for the key set; zero sends no-store.")

	rootCmd.AddCommand(jwksCmd)
	rootCmd.AddCommand(serveCmd)
}

func jwksCmdRun(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	set, err := issuer.JWKS(ctx)
	if err != nil {
		return fmt.Errorf("failed to load key set: %w", err)
	}
	return printJSON(cmd, set)
}

func newRouter(iss *jwt.Issuer, maxAge time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/.well-known/jwks.json", iss.JWKSHandler(maxAge))
	r.Method(http.MethodHead, "/.well-known/jwks.json", iss.JWKSHandler(maxAge))
	reg := promclient.NewRegistry()
	reg.MustRegister(
		prometheus.NewCollector(iss),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := iss.SigningKeys(r.Context()); err != nil {
			http.Error(w, "keys unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func serveCmdRun(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              serveArgs.listen,
		Handler:           newRouter(issuer, serveArgs.maxAge),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	cmd.Printf("► serving key set on %s\n", serveArgs.listen)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
