package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/blobrelay/internal/cli"
	"github.com/spf13/cobra"
)

var errTransfersFailed = errors.New("one or more transfers failed")

var runCmd = &cobra.Command{
	Use:   "run <object-id>...",
	Short: "Transfer one or more objects and wait for the outcome",
	Long: `Runs a transfer per object id in the foreground and prints the final
state of each instance. An interrupted run leaves its instances resumable.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, _, err := loadApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := seedFromFile(cmd, app, args); err != nil {
			return err
		}

		concurrency, _ := cmd.Flags().GetInt("concurrency")
		output, _ := cmd.Flags().GetString("output")

		instances, err := cli.RunTransfers(ctx, app.Engine, cli.RunOptions{
			ObjectIDs:   args,
			Concurrency: concurrency,
			Logger:      app.Logger,
		})
		if rerr := cli.RenderInstances(cmd.OutOrStdout(), output, instances...); rerr != nil {
			return rerr
		}
		if err != nil {
			return err
		}
		if !cli.AllSucceeded(instances) {
			return errTransfersFailed
		}
		return nil
	},
}

// seedFromFile loads a local file into the in-memory bucket, so a delivery
// target can be exercised without cloud storage.
func seedFromFile(cmd *cobra.Command, app *cli.App, objectIDs []string) error {
	path, _ := cmd.Flags().GetString("from-file")
	if path == "" {
		return nil
	}
	if app.Bucket == nil {
		return errors.New("--from-file requires STORAGE_BACKEND=memory")
	}
	if len(objectIDs) != 1 {
		return errors.New("--from-file takes exactly one object id")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	app.Bucket.Put(objectIDs[0], content)
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntP("concurrency", "c", 4, "Maximum transfers running at once")
	runCmd.Flags().StringP("output", "o", cli.FormatYAML, "Output format (yaml|json)")
	runCmd.Flags().String("from-file", "", "Serve the object from a local file (memory storage only)")
}

