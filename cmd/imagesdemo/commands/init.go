package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/config"
)

func newInitCommand() *cobra.Command {
	var (
		dbPath string
		txMode string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration and create the database schema",
		Long: `Write a default configuration file and create the database with one table
per mapped type. An existing configuration is kept unless --force is given.`,
		Example: `  # Initialize in the current directory
  imagesdemo init

  # Keep the whole handle in one transaction
  imagesdemo init --db data/images.db --tx-mode handle`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolvedConfigPath()
			log.Info().
				Str("config", path).
				Bool("force", force).
				Msg("Initializing images demo")

			cfg := config.Default()
			_, statErr := os.Stat(path)
			exists := statErr == nil
			if exists && !force {
				loaded, err := config.Load(path)
				if err != nil {
					return err
				}
				cfg = loaded
				fmt.Printf("✓ Using existing config: %s\n", path)
			} else {
				if statErr != nil && !errors.Is(statErr, os.ErrNotExist) {
					return fmt.Errorf("failed to check config: %w", statErr)
				}
				if dbPath != "" {
					cfg.Database.Path = dbPath
				}
				if txMode != "" {
					cfg.Pool.TxMode = txMode
				}
				if err := cfg.Validate(); err != nil {
					return err
				}
				if err := cfg.Write(path); err != nil {
					return err
				}
				fmt.Printf("✓ Wrote config: %s\n", path)
			}

			if verbose {
				cfg.Telemetry.Logging.Level = "debug"
			}
			cfg.Telemetry.ServiceVersion = buildVersion

			a, err := openAppWith(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.store.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("✓ Database ready: %s\n", cfg.Database.Path)
			for _, e := range entries {
				fmt.Printf("✓ Table %s for %s\n", e.TableName, e.TypeName)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "database file path")
	cmd.Flags().StringVar(&txMode, "tx-mode", "", "transaction mode (operation or handle)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration")

	return cmd
}
