// Package gallery implements the images demo on top of the handle pool:
// loading people and pictures from a directory, replacing the stored set,
// reading it back, and exporting pictures.
package gallery

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/model"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/pool"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/telemetry"
)

// PeopleFile lists names, one per line, in a picture directory. People whose
// name matches no image file are stored without a picture.
const PeopleFile = "people.txt"

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".bmp": true,
}

// IsImage reports whether path has a picture file extension.
func IsImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Scan reads a picture directory. With a PeopleFile the listed names are
// returned in file order; otherwise every image becomes one person named after
// the file, sorted by name.
func Scan(dir string) ([]*model.Person, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read picture directory: %w", err)
	}

	images := make(map[string]string)
	var names []string
	for _, e := range entries {
		if e.IsDir() || !IsImage(e.Name()) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if _, dup := images[strings.ToLower(name)]; dup {
			return nil, fmt.Errorf("more than one picture for %q", name)
		}
		images[strings.ToLower(name)] = filepath.Join(dir, e.Name())
		names = append(names, name)
	}

	listed, err := readPeopleFile(filepath.Join(dir, PeopleFile))
	if err != nil {
		return nil, err
	}
	if listed != nil {
		names = listed
	} else {
		sort.Strings(names)
	}

	people := make([]*model.Person, 0, len(names))
	for _, name := range names {
		var picture []byte
		if path, ok := images[strings.ToLower(name)]; ok {
			if picture, err = os.ReadFile(path); err != nil {
				return nil, fmt.Errorf("failed to read picture of %s: %w", name, err)
			}
		}
		people = append(people, model.NewPerson(name, picture))
	}
	return people, nil
}

// readPeopleFile returns the names in path, or nil when it does not exist.
func readPeopleFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", PeopleFile, err)
	}
	defer f.Close()

	names := []string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", PeopleFile, err)
	}
	return names, nil
}

// Gallery runs the demo operations through a pool.
type Gallery struct {
	pool *pool.Pool
	log  *telemetry.Logger
}

// New creates a gallery over an initialized pool.
func New(p *pool.Pool, tel *telemetry.Telemetry) *Gallery {
	return &Gallery{
		pool: p,
		log:  telemetry.OrNop(tel).Logger.NewComponentLogger("gallery"),
	}
}

// Replace deletes every stored person, inserts people in one batch, and
// returns the stored set as read back. All three steps use one handle.
func (g *Gallery) Replace(ctx context.Context, people []*model.Person) ([]*model.Person, error) {
	var loaded []*model.Person
	err := g.pool.With(ctx, func(h *pool.Handle) error {
		removed, err := h.DeleteAll(ctx, model.PersonType)
		if err != nil {
			return err
		}
		if _, err := h.InsertBatch(ctx, model.PersonType, model.PersonRecords(people)); err != nil {
			return err
		}
		loaded, err = readAll(ctx, h)
		if err != nil {
			return err
		}
		g.log.WithHandle(h.ID()).Infof("replaced %d people with %d", removed, len(loaded))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loaded, nil
}

// List returns every stored person in insertion order.
func (g *Gallery) List(ctx context.Context) ([]*model.Person, error) {
	var people []*model.Person
	err := g.pool.With(ctx, func(h *pool.Handle) error {
		var err error
		people, err = readAll(ctx, h)
		return err
	})
	return people, err
}

// Export writes every present picture to dir and returns the files written.
// File names are "<id>-<name><ext>", the extension sniffed from the content.
func (g *Gallery) Export(ctx context.Context, dir string) ([]string, error) {
	people, err := g.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	var written []string
	for _, p := range people {
		if !p.HasPicture() {
			continue
		}
		name := fmt.Sprintf("%d-%s%s", p.ID, safeName(p.Name), extensionFor(p.Picture.Bytes()))
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, p.Picture.Bytes(), 0o644); err != nil {
			return written, fmt.Errorf("failed to write picture of %s: %w", p.Name, err)
		}
		written = append(written, path)
	}
	g.log.Infof("exported %d pictures to %s", len(written), dir)
	return written, nil
}

func readAll(ctx context.Context, h *pool.Handle) ([]*model.Person, error) {
	var people []*model.Person
	for rec, err := range h.QueryAll(ctx, model.PersonType) {
		if err != nil {
			return nil, err
		}
		p, err := model.PersonFromRecord(rec)
		if err != nil {
			return nil, err
		}
		people = append(people, p)
	}
	return people, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func safeName(name string) string {
	s := strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "_")
	if s == "" {
		return "person"
	}
	return s
}

func extensionFor(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	default:
		return ".bin"
	}
}
