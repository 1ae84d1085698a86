package main

import (
	"errors"
	"fmt"

	"github.com/aretw0/blobrelay/internal/cli"
	"github.com/aretw0/blobrelay/pkg/domain"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <instance-id>...",
	Short: "Show the last checkpoint of one or more instances",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := loadApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		instances := make([]*domain.Instance, 0, len(args))
		for _, id := range args {
			inst, err := app.Engine.Status(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("error loading instance '%s': %w", id, err)
			}
			instances = append(instances, inst)
		}
		output, _ := cmd.Flags().GetString("output")
		return cli.RenderInstances(cmd.OutOrStdout(), output, instances...)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored instances",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := loadApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		ids, err := app.Engine.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing instances: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintln(out, "No instances found.")
			return nil
		}
		for _, id := range ids {
			inst, err := app.Engine.Status(cmd.Context(), id)
			if err != nil {
				fmt.Fprintf(out, "- %s\n", id)
				continue
			}
			fmt.Fprintf(out, "- %s %s %s\n", id, inst.Status(), inst.ObjectID)
		}
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge <instance-id>...",
	Short: "Remove one or more instances and their history",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := loadApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		var errs []error
		for _, id := range args {
			if err := app.Engine.Purge(cmd.Context(), id); err != nil {
				errs = append(errs, fmt.Errorf("error removing '%s': %w", id, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed instance '%s'\n", id)
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, listCmd, purgeCmd)
	statusCmd.Flags().StringP("output", "o", cli.FormatYAML, "Output format (yaml|json)")
}
