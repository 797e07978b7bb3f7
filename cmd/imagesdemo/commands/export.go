package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "export <dir>",
		Short:   "Write the stored pictures to a directory",
		Example: `  imagesdemo export ./out`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			written, err := a.gallery.Export(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, path := range written {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", path)
			}
			return nil
		},
	}
}
