package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/gallery"
)

func newNextCommand() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show the next stored person",
		Long: `Show one stored person per run, cycling through them in insertion order
and wrapping to the first after the last. The position is kept next to the
database file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			cursor := gallery.NewCursor(gallery.CursorPath(a.cfg.Database.Path))
			if reset {
				if err := cursor.Reset(); err != nil {
					return err
				}
			}

			people, err := a.gallery.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(people) == 0 {
				return fmt.Errorf("no people stored, run populate first")
			}

			idx, err := cursor.Next(len(people))
			if err != nil {
				return err
			}
			return printPerson(cmd.OutOrStdout(), people[idx], idx, len(people))
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "start again from the first person")
	return cmd
}
