package gallery

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Cursor remembers the position of the "next" command between runs.
type Cursor struct {
	path string
}

// NewCursor stores its position in path.
func NewCursor(path string) *Cursor {
	return &Cursor{path: path}
}

// CursorPath returns the cursor file kept next to a database file.
func CursorPath(dbPath string) string {
	return dbPath + ".cursor"
}

// Position returns the stored position, 0 when none has been saved.
func (c *Cursor) Position() (int, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cursor: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}

// Next returns the index to show from n records and advances the cursor,
// wrapping to the first record after the last.
func (c *Cursor) Next(n int) (int, error) {
	if n <= 0 {
		return 0, errors.New("no records to show")
	}
	pos, err := c.Position()
	if err != nil {
		return 0, err
	}
	idx := pos % n
	if err := os.WriteFile(c.path, []byte(strconv.Itoa((idx+1)%n)), 0o644); err != nil {
		return 0, fmt.Errorf("failed to save cursor: %w", err)
	}
	return idx, nil
}

// Reset rewinds the cursor to the first record.
func (c *Cursor) Reset() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}
	return nil
}
