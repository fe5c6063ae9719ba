package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/redbco/redb-persist/cmd/persistctl/internal/report"
	"github.com/redbco/redb-persist/cmd/persistctl/internal/session"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List stored types and ownership edges",
	Long:  `Display the stored types with their tables and object counts, followed by a summary of the ownership edges.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := session.Open(cmd.Context(), settings)
		if err != nil {
			return err
		}
		defer k.Close()

		columns, _ := cmd.Flags().GetBool("columns")
		return report.Inspect(cmd.Context(), k, os.Stdout, columns)
	},
}

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate [type...]",
	Short: "Bring stored tables in line with the declared types",
	Long: "Plan the schema changes each declared type needs and apply them. " +
		"Without arguments every declared type is migrated.",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := session.Open(cmd.Context(), settings)
		if err != nil {
			return err
		}
		defer k.Close()

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		return report.Migrate(cmd.Context(), k, os.Stdout, dryRun, args)
	},
}

// countCmd represents the count command
var countCmd = &cobra.Command{
	Use:   "count [type]",
	Short: "Count stored objects of a type",
	Long:  `Count the stored objects of a type, subtypes included, and optionally aggregate properties with --agg func:property.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := session.Open(cmd.Context(), settings)
		if err != nil {
			return err
		}
		defer k.Close()

		aggs, _ := cmd.Flags().GetStringSlice("agg")
		return report.Count(cmd.Context(), k, os.Stdout, args[0], aggs)
	},
}

// copyCmd represents the copy command
var copyCmd = &cobra.Command{
	Use:   "copy",
	Short: "Copy every stored object to another database",
	Long:  `Copy the schema and all stored objects into the database named by --to. Pins are carried over.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")

		from, err := session.Open(cmd.Context(), settings)
		if err != nil {
			return err
		}
		defer from.Close()

		target := settings
		target.URL = to
		dst, err := session.Open(cmd.Context(), target)
		if err != nil {
			return err
		}
		defer dst.Close()

		return report.Copy(cmd.Context(), from, dst, os.Stdout)
	},
}

func setupCommands() {
	inspectCmd.Flags().Bool("columns", false, "Show the stored columns of each table")

	migrateCmd.Flags().Bool("dry-run", false, "Print the planned changes without applying them")

	countCmd.Flags().StringSlice("agg", nil, "Aggregate to compute, as func:property (sum, avg, min, max)")

	copyCmd.Flags().String("to", "", "Connection URL of the target database")
	copyCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(inspectCmd, migrateCmd, countCmd, copyCmd)
}
