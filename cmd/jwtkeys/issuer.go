package main

import (
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/edgefirst-dev/jwt"
	"github.com/edgefirst-dev/jwt/storage/memory"
)

var (
	issuer  *jwt.Issuer
	closers []func()
)

func setupIssuer(cmd *cobra.Command, _ []string) error {
	if err := loadEnvFile(rootArgs.envFile); err != nil {
		return err
	}
	cfg, err := loadConfig(rootArgs.configPath)
	if err != nil {
		return err
	}
	addr := resolve(&cfg, rootArgs)

	logger, syncLogger, err := newLogger(rootArgs.logLevel)
	if err != nil {
		return err
	}
	closers = append(closers, syncLogger)

	b := jwt.New().WithConfig(cfg).WithLogger(logger)
	if cmd == serveCmd {
		b.WithMetricsEnabled(true)
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		closers = append(closers, func() { _ = client.Close() })
		b.WithRedis(client)
		logger.V(1).Info("using redis", "addr", addr, "prefix", cfg.Storage.RedisPrefix)
	} else {
		logger.Info("no redis address configured; keys are kept in memory for this run")
		b.WithStorage(memory.New())
	}

	iss, err := b.Build()
	if err != nil {
		return err
	}
	issuer = iss
	closers = append(closers, iss.Close)
	return nil
}

// closeIssuer releases everything setupIssuer opened, newest first.
func closeIssuer() {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	closers = nil
	issuer = nil
}
