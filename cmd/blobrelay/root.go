package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/blobrelay/internal/cli"
	"github.com/aretw0/blobrelay/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "blobrelay",
	Short: "blobrelay moves objects from cloud storage to SFTP",
	Long: `blobrelay fetches a named object from Azure Blob Storage or S3-compatible storage
and delivers it to an SFTP server, as a checkpointed workflow with retries.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("env-file", ".env", "Dotenv file loaded before the environment is read")
	rootCmd.PersistentFlags().String("config", "", "Optional config file (yaml, json or toml)")
	rootCmd.PersistentFlags().Bool("debug", false, "Log every lifecycle event")
}

// loadApp reads the configuration selected by the persistent flags and wires the engine.
func loadApp(ctx context.Context, cmd *cobra.Command, opts ...cli.AppOption) (*cli.App, *config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	configFile, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")

	cfg, err := config.Load(config.Options{EnvFile: envFile, ConfigFile: configFile})
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	opts = append([]cli.AppOption{cli.WithDebugHooks(debug)}, opts...)
	app, err := cli.NewApp(ctx, cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return app, cfg, nil
}
