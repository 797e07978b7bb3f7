package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/model"
)

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the stored people",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			people, err := a.gallery.List(cmd.Context())
			if err != nil {
				return err
			}
			return printPeople(cmd.OutOrStdout(), people)
		},
	}
}

type personView struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	HasPicture bool   `json:"has_picture"`
	Size       int    `json:"picture_bytes"`
}

func viewOf(p *model.Person) personView {
	return personView{ID: p.ID, Name: p.Name, HasPicture: p.HasPicture(), Size: p.Picture.Len()}
}

func printPeople(w io.Writer, people []*model.Person) error {
	if jsonOutput {
		views := make([]personView, 0, len(people))
		for _, p := range people {
			views = append(views, viewOf(p))
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	if len(people) == 0 {
		fmt.Fprintln(w, "No people stored")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPICTURE")
	for _, p := range people {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", p.ID, p.Name, p.Picture)
	}
	return tw.Flush()
}

func printPerson(w io.Writer, p *model.Person, index, total int) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(viewOf(p))
	}
	_, err := fmt.Fprintf(w, "[%d/%d] %d %s %s\n", index+1, total, p.ID, p.Name, p.Picture)
	return err
}
