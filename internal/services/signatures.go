package services

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trailhead/waivers/internal/signature"
)

// SignatureFiles stores signature PNGs under an upload root. Paths handed
// back are relative to that root, slash-separated.
type SignatureFiles struct {
	Root string
}

// Save decodes a PNG data URL (or bare base64) and writes it as
// subdir/name.png.
func (f SignatureFiles) Save(subdir, name, dataURL string) (string, error) {
	data, err := signature.Bytes(dataURL)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(f.Root, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "mkdir uploads dir")
	}
	filename := name + ".png"
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		return "", errors.Wrap(err, "write signature")
	}
	return filepath.ToSlash(filepath.Join(subdir, filename)), nil
}

// Remove deletes a file saved earlier; missing files are ignored.
func (f SignatureFiles) Remove(rel string) {
	if rel == "" {
		return
	}
	_ = os.Remove(filepath.Join(f.Root, filepath.FromSlash(rel)))
}

// Path joins rel onto the root, refusing paths that climb out of it.
func (f SignatureFiles) Path(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || clean == ".." || filepath.IsAbs(clean) || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("invalid upload path %q", rel)
	}
	return filepath.Join(f.Root, clean), nil
}
