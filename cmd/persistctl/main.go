package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	// Dialects register themselves with the adapter registry.
	_ "github.com/redbco/redb-persist/pkg/adapter/mssql"
	_ "github.com/redbco/redb-persist/pkg/adapter/mysql"
	_ "github.com/redbco/redb-persist/pkg/adapter/oracle"
	_ "github.com/redbco/redb-persist/pkg/adapter/postgres"
	_ "github.com/redbco/redb-persist/pkg/adapter/sqlite"

	"github.com/redbco/redb-persist/cmd/persistctl/internal/session"
)

var (
	settings session.Settings

	// Build information, set with -ldflags.
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func printVersionInfo() {
	fmt.Printf("persistctl %s\n", Version)
	fmt.Printf("Built: %s, from commit: %s\n", BuildTime, GitCommit)
	fmt.Printf("Go version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "persistctl",
	Short: "Inspect and maintain object stores",
	Long: "A CLI for object stores kept by the persistence kernel: inspect stored types, " +
		"plan and apply schema migrations, count objects and copy a store to another database.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Lookup("version").Changed {
			printVersionInfo()
			return nil
		}
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&settings.ConfigFile, "config", "", "Path to config file")
	flags.StringVar(&settings.URL, "url", "", "Database connection URL, overrides database.url")
	flags.StringVar(&settings.ShapesFile, "shapes", "", "Path to the YAML file declaring the stored types")
	flags.BoolVar(&settings.AskPassword, "ask-password", false, "Prompt for the database password")

	rootCmd.Flags().Bool("version", false, "Show version information and exit")

	setupCommands()
}

func main() {
	Execute()
}
