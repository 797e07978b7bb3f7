package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Show the table definitions and the schema catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.store.Catalog(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			for _, ddl := range a.store.DDL() {
				fmt.Fprintf(w, "%s;\n\n", ddl)
			}
			for _, e := range entries {
				fmt.Fprintf(w, "-- %s -> %s (created %s)\n", e.TypeName, e.TableName, e.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}
