package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/edgefirst-dev/jwt"
)

const (
	envRedisAddr     = "JWT_REDIS_ADDR"
	envStoragePrefix = "JWT_STORAGE_PREFIX"
	envNamespace     = "JWT_NAMESPACE"
	envIssuer        = "JWT_ISSUER"
	envAudience      = "JWT_AUDIENCE"
)

// loadEnvFile loads path into the process environment without overriding variables
// that are already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// loadConfig reads a YAML file over jwt.DefaultConfig. An empty path yields the defaults.
func loadConfig(path string) (jwt.Config, error) {
	cfg := jwt.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// resolve applies environment variables, then flags, over cfg and returns the Redis
// address to use.
func resolve(cfg *jwt.Config, args rootFlags) string {
	pick := func(flag, env, current string) string {
		if flag != "" {
			return flag
		}
		if v := os.Getenv(env); v != "" {
			return v
		}
		return current
	}

	cfg.Storage.RedisPrefix = pick(args.prefix, envStoragePrefix, cfg.Storage.RedisPrefix)
	cfg.Keys.Namespace = pick(args.namespace, envNamespace, cfg.Keys.Namespace)
	cfg.Token.Issuer = pick(args.issuer, envIssuer, cfg.Token.Issuer)
	cfg.Token.Audience = pick(args.audience, envAudience, cfg.Token.Audience)
	return pick(args.redisAddr, envRedisAddr, "")
}

func marshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
