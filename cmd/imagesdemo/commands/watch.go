package commands

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/gallery"
)

func newWatchCommand() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Re-populate whenever a picture directory changes",
		Long: `Populate from the directory, then watch it and populate again whenever a
picture or people.txt is added, changed, or removed. Runs until interrupted.
With metrics enabled in the configuration the endpoint stays up meanwhile.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			populate := func(ctx context.Context) error {
				people, err := gallery.Scan(dir)
				if err != nil {
					log.Warn().Err(err).Str("dir", dir).Msg("Skipping change")
					return nil
				}
				loaded, err := a.gallery.Replace(ctx, people)
				if err != nil {
					log.Error().Err(err).Msg("Populate failed")
					return nil
				}
				log.Info().Int("people", len(loaded)).Msg("Populated")
				return nil
			}

			if err := populate(cmd.Context()); err != nil {
				return err
			}
			log.Info().Str("dir", dir).Dur("debounce", debounce).Msg("Watching for changes")
			return gallery.Watch(cmd.Context(), dir, debounce, populate)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", gallery.DefaultDebounce, "quiet period before re-populating")
	return cmd
}
