package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	VERSION = "0.0.0-dev.0"
)

var rootCmd = &cobra.Command{
	Use:           "jwtkeys",
	Version:       VERSION,
	SilenceUsage:  true,
	SilenceErrors: true,
	Short:         "Manage JWT signing and encryption keys stored in Redis",
	Long: `jwtkeys inspects and rotates the key pairs an Issuer keeps in storage, publishes the
public key set, and signs, verifies, or decodes tokens with them.

Keys are read from Redis when --redis-addr or JWT_REDIS_ADDR is set. Without Redis an
in-memory store is used and keys last for a single invocation.`,
	PersistentPreRunE: setupIssuer,
}

type rootFlags struct {
	timeout    time.Duration
	configPath string
	envFile    string
	redisAddr  string
	prefix     string
	namespace  string
	issuer     string
	audience   string
	logLevel   string
}

var rootArgs = newRootFlags()

func newRootFlags() rootFlags {
	return rootFlags{
		timeout:  time.Minute,
		envFile:  ".env",
		logLevel: "warn",
	}
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&rootArgs.timeout, "timeout", rootArgs.timeout,
		"The length of time to wait before giving up on the current operation.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.configPath, "config", "",
		"Path to a YAML configuration file.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.envFile, "env-file", rootArgs.envFile,
		"Path to a .env file loaded before reading JWT_* variables. Missing files are ignored.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.redisAddr, "redis-addr", "",
		"Redis address holding the keys (overrides "+envRedisAddr+").")
	rootCmd.PersistentFlags().StringVar(&rootArgs.prefix, "prefix", "",
		"Redis key prefix (overrides "+envStoragePrefix+").")
	rootCmd.PersistentFlags().StringVar(&rootArgs.namespace, "namespace", "",
		"Key namespace inside the store (overrides "+envNamespace+").")
	rootCmd.PersistentFlags().StringVar(&rootArgs.issuer, "issuer", "",
		"Token issuer set on signed tokens and required on verification (overrides "+envIssuer+").")
	rootCmd.PersistentFlags().StringVar(&rootArgs.audience, "audience", "",
		"Token audience set on signed tokens and required on verification (overrides "+envAudience+").")
	rootCmd.PersistentFlags().StringVar(&rootArgs.logLevel, "log-level", rootArgs.logLevel,
		"Log level: debug, info, warn, or error.")
	rootCmd.SetOut(os.Stdout)
}

func main() {
	err := rootCmd.Execute()
	closeIssuer()
	if err != nil {
		rootCmd.PrintErrf("✗ %v\n", err)
		os.Exit(1)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := marshalIndent(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
