package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ferdousbhai/create-fastreact/internal/storage"
)

// DefaultFileName is the ledger's file name within the project directory.
const DefaultFileName = "feature_list.json"

// PathFor returns the ledger path for a project directory.
func PathFor(projectDir string) string {
	return filepath.Join(projectDir, DefaultFileName)
}

// Exists reports whether a ledger file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// nested is the categorised on-disk shape.
type nested struct {
	Categories []struct {
		Name     string    `json:"name"`
		Category string    `json:"category"`
		Features []Feature `json:"features"`
	} `json:"categories"`
}

// Load reads and decodes the ledger at path. A missing file yields
// ErrNotFound; undecodable content yields a *CorruptError.
func Load(path string) (Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	l, err := Decode(data)
	if err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	return l, nil
}

// Decode parses either ledger shape.
func Decode(data []byte) (Ledger, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty document")
	}

	switch trimmed[0] {
	case '[':
		var l Ledger
		if err := json.Unmarshal(trimmed, &l); err != nil {
			return nil, err
		}
		if l == nil {
			l = Ledger{}
		}
		return l, nil
	case '{':
		var n nested
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return nil, err
		}
		if n.Categories == nil {
			return nil, errors.New(`object form requires a "categories" array`)
		}
		l := Ledger{}
		for _, group := range n.Categories {
			name := group.Category
			if name == "" {
				name = group.Name
			}
			for _, f := range group.Features {
				if f.Category == "" {
					f.Category = name
				}
				l = append(l, f)
			}
		}
		return l, nil
	default:
		return nil, errors.New("expected a JSON array or object")
	}
}

// Snapshot returns the ledger at path, or nil when it is absent or
// unreadable. The error is non-nil only for corruption or I/O failures so the
// caller can log it; nil-with-nil means the file does not exist.
func Snapshot(path string) (*Ledger, error) {
	l, err := Load(path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

// Save writes l to path in the flat form with two-space indentation. The
// write is atomic.
func Save(path string, l Ledger) error {
	if l == nil {
		l = Ledger{}
	}
	return storage.WriteFileAtomic(path, 0644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(l)
	})
}
