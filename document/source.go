package document

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Found is a raw document located by a Source.
type Found struct {
	Data     []byte
	Location string
}

// Source looks up referenced documents in one repository. A ref is a
// "/"-rooted path without file extension, e.g. "/service/web". Lookup
// returns ok=false when the repository does not contain the ref.
type Source interface {
	Lookup(ctx context.Context, ref string) (Found, bool, error)
	String() string
}

// Extensions lists the file extensions tried for a ref, in order.
var Extensions = []string{".yml", ".yaml"}

// DirSource is a repository rooted at a local directory.
type DirSource struct {
	Root string
}

var _ Source = DirSource{}

// Lookup resolves ref below Root.
func (s DirSource) Lookup(_ context.Context, ref string) (Found, bool, error) {
	rel, err := CleanRef(ref)
	if err != nil {
		return Found{}, false, err
	}
	for _, ext := range Extensions {
		path := filepath.Join(s.Root, filepath.FromSlash(rel)+ext)
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Found{}, false, fmt.Errorf("document: read %s: %w", path, err)
		}
		return Found{Data: data, Location: path}, true, nil
	}
	return Found{}, false, nil
}

func (s DirSource) String() string { return s.Root }

// CleanRef normalizes a ref into a relative slash path and rejects refs that
// escape the repository root.
func CleanRef(ref string) (string, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return "", fmt.Errorf("document: empty ref")
	}
	cleaned := strings.TrimPrefix(filepathClean("/"+strings.TrimPrefix(trimmed, "/")), "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("document: ref %q does not name a document", ref)
	}
	return cleaned, nil
}

// filepathClean cleans a slash path independent of the host separator.
func filepathClean(p string) string {
	return filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))
}
