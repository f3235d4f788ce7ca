// Package main is the entry point for the bigipctl binary, a CLI for
// importing ASM policies onto BIG-IP devices.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bigipctl/bigipctl/pkg/config"
	"github.com/bigipctl/bigipctl/pkg/guard"
	"github.com/bigipctl/bigipctl/pkg/telemetry"
)

const passwordEnvVar = "BIGIP_PASSWORD"

func main() {
	// Credentials commonly live in a local .env during development.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bigipctl",
		Short: "Declarative ASM policy imports for BIG-IP devices",
		Long: `bigipctl imports Application Security Manager (ASM) policies onto
BIG-IP devices from local files or inline XML, and waits for the
device-side import task to complete.

Example:
  bigipctl import --name app1 --source ./policies/app1.xml --force`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("pretty", false, "Human-readable log output")
	rootCmd.PersistentFlags().String("address", "", "Device management address")
	rootCmd.PersistentFlags().String("username", "", "Device username")
	rootCmd.PersistentFlags().String("password", "", "Device password (prefer "+passwordEnvVar+")")
	rootCmd.PersistentFlags().Bool("token-auth", false, "Use X-F5-Auth-Token authentication")
	rootCmd.PersistentFlags().Bool("skip-verify", false, "Skip TLS certificate verification")

	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newSyncCmd())

	return rootCmd
}

// buildConfig merges the optional config file with root flag overrides.
func buildConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if v, _ := cmd.Flags().GetString("address"); v != "" {
		cfg.Device.Address = v
	}
	if v, _ := cmd.Flags().GetString("username"); v != "" {
		cfg.Device.Username = v
	}
	if v, _ := cmd.Flags().GetString("password"); v != "" {
		cfg.Device.Password = v
	}
	if cfg.Device.Password == "" {
		cfg.Device.Password = os.Getenv(passwordEnvVar)
	}
	if cmd.Flags().Changed("token-auth") {
		cfg.Device.TokenAuth, _ = cmd.Flags().GetBool("token-auth")
	}
	if cmd.Flags().Changed("skip-verify") {
		cfg.Device.SkipVerify, _ = cmd.Flags().GetBool("skip-verify")
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if cmd.Flags().Changed("pretty") {
		cfg.Log.Pretty, _ = cmd.Flags().GetBool("pretty")
	}

	if cfg.Device.Address == "" {
		return config.Config{}, fmt.Errorf("no device address configured. Set --address or device.address in the config file")
	}
	return cfg, nil
}

// setupTelemetry starts the tracer provider and returns its shutdown hook.
func setupTelemetry(ctx context.Context, cfg config.Config) (func(), error) {
	shutdown, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "bigipctl",
		Endpoint:    cfg.Telemetry.Endpoint,
		Environment: cfg.Telemetry.Environment,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	return func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(flushCtx)
	}, nil
}

// loadGuard compiles the admission policy named by the config, if any.
func loadGuard(ctx context.Context, cfg config.GuardConfig) (*guard.Guard, error) {
	if cfg.PolicyFile == "" {
		return nil, nil
	}
	module, err := os.ReadFile(cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("read guard policy: %w", err)
	}
	return guard.New(ctx, guard.Options{Module: string(module), Query: cfg.Query})
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
