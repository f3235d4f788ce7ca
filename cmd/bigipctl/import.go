package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/bigipctl/bigipctl/internal/poll"
	"github.com/bigipctl/bigipctl/pkg/bigip"
	"github.com/bigipctl/bigipctl/pkg/config"
	"github.com/bigipctl/bigipctl/pkg/domain"
	"github.com/bigipctl/bigipctl/pkg/importer"
	"github.com/bigipctl/bigipctl/pkg/logging"
)

func newImportCmd() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import a single ASM policy from a file or inline XML",
		RunE:  runImport,
	}

	importCmd.Flags().String("name", "", "Policy name to create or overwrite (required)")
	importCmd.Flags().String("source", "", "Path to a policy file, XML or binary")
	importCmd.Flags().String("inline", "", "Policy content as an inline XML string")
	importCmd.Flags().String("policy-type", "", "Policy type: security or parent")
	importCmd.Flags().String("parent-policy", "", "Parent policy to attach the import to")
	importCmd.Flags().Bool("retain-inheritance-settings", false, "Retain settings when attached to a parent policy")
	importCmd.Flags().Bool("base64", false, "Inline content is base64 encoded")
	importCmd.Flags().String("encoding", "", "Application language of the imported policy")
	importCmd.Flags().String("partition", "", "Device partition (default Common, or $"+domain.PartitionEnvVar+")")
	importCmd.Flags().Bool("force", false, "Overwrite an existing policy with the same name")
	importCmd.Flags().Bool("dry-run", false, "Report the hypothetical diff without touching the device")

	_ = importCmd.MarkFlagRequired("name")
	importCmd.MarkFlagsMutuallyExclusive("source", "inline")

	return importCmd
}

func runImport(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	spec, err := specFromFlags(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	flushTraces, err := setupTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer flushTraces()

	admission, err := loadGuard(ctx, cfg.Guard)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	client, err := bigip.NewClient(bigip.Options{
		Address:    cfg.Device.Address,
		Username:   cfg.Device.Username,
		Password:   cfg.Device.Password,
		TokenAuth:  cfg.Device.TokenAuth,
		SkipVerify: cfg.Device.SkipVerify,
		Timeout:    cfg.Device.Timeout,
		Logger:     logger,
		Metrics:    bigip.NewMetrics(registry),
	})
	if err != nil {
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	im := importer.New(client, importer.Options{
		Poll:         pollConfig(cfg.Import),
		UploadSettle: cfg.Import.UploadSettle,
		DryRun:       dryRun,
		Guard:        admission,
		Logger:       logger,
		Metrics:      importer.NewMetrics(registry),
	})

	diff, err := im.Run(ctx, spec)
	if err != nil {
		return err
	}

	return printDiff(diff)
}

// specFromFlags builds the import spec, treating unset boolean flags as
// "leave the device default".
func specFromFlags(cmd *cobra.Command) (domain.PolicySpec, error) {
	flags := cmd.Flags()

	name, _ := flags.GetString("name")
	opts := []domain.SpecOption{}

	if v, _ := flags.GetString("source"); v != "" {
		opts = append(opts, domain.WithSource(v))
	}
	if v, _ := flags.GetString("inline"); v != "" {
		opts = append(opts, domain.WithInline(v))
	}
	if v, _ := flags.GetString("policy-type"); v != "" {
		opts = append(opts, domain.WithPolicyType(domain.PolicyType(v)))
	}
	if v, _ := flags.GetString("parent-policy"); v != "" {
		opts = append(opts, domain.WithParentPolicy(v))
	}
	if v, _ := flags.GetString("partition"); v != "" {
		opts = append(opts, domain.WithPartition(v))
	}
	if v, _ := flags.GetString("encoding"); v != "" {
		opts = append(opts, domain.WithEncoding(v))
	}
	if flags.Changed("retain-inheritance-settings") {
		v, _ := flags.GetBool("retain-inheritance-settings")
		opts = append(opts, domain.WithRetainInheritanceSettings(v))
	}
	if flags.Changed("base64") {
		v, _ := flags.GetBool("base64")
		opts = append(opts, domain.WithBase64(v))
	}
	if v, _ := flags.GetBool("force"); v {
		opts = append(opts, domain.WithForce(true))
	}

	return domain.NewPolicySpec(name, opts...)
}

func pollConfig(cfg config.ImportConfig) poll.Config {
	return poll.Config{
		Interval:    cfg.PollInterval,
		MaxInterval: cfg.PollMaxInterval,
		Multiplier:  cfg.PollMultiplier,
		Jitter:      cfg.PollJitter,
		Timeout:     cfg.PollTimeout,
	}
}

func printDiff(diff domain.DiffResult) error {
	out, err := json.MarshalIndent(diff, "", "  ")
	if err != nil {
		return fmt.Errorf("encode diff: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}
