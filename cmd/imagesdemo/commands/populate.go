package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/gallery"
)

func newPopulateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "populate <dir>",
		Short: "Replace the stored people with the pictures of a directory",
		Long: `Delete every stored person and insert one person per picture in the
directory, named after the file. When the directory holds a people.txt,
its names are used in order and names without a picture are stored
without one. The stored set is read back and printed.`,
		Example: `  imagesdemo populate ./pictures`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			people, err := gallery.Scan(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			loaded, err := a.gallery.Replace(cmd.Context(), people)
			if err != nil {
				return fmt.Errorf("failed to populate: %w", err)
			}
			log.Info().Int("people", len(loaded)).Str("dir", args[0]).Msg("Populated")

			if err := gallery.NewCursor(gallery.CursorPath(a.cfg.Database.Path)).Reset(); err != nil {
				return err
			}
			return printPeople(cmd.OutOrStdout(), loaded)
		},
	}
	return cmd
}
