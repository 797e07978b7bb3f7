package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// DefaultConfigPath is used when --config is not given.
const DefaultConfigPath = "imagesdemo.yaml"

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version

	rootCmd := &cobra.Command{
		Use:   "imagesdemo",
		Short: "Store people and their pictures in SQLite",
		Long: `imagesdemo stores named people with optional pictures in a local SQLite
database through the object-relational persistence layer.

Typical use:
  - init writes a configuration and creates the schema
  - populate replaces the stored people with the pictures of a directory
  - list, next, and export read them back
  - watch re-populates whenever the directory changes`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default "+DefaultConfigPath+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newPopulateCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newNextCommand())
	rootCmd.AddCommand(newExportCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newSchemaCommand())

	return rootCmd
}

func resolvedConfigPath() string {
	if configPath == "" {
		return DefaultConfigPath
	}
	return configPath
}
