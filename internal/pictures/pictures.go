// Package pictures stores resized profile pictures on disk.
package pictures

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"budget-tracker/internal/models"

	"github.com/disintegration/imaging"
)

// Size is the bounding box, in pixels, a stored picture is fitted into.
const Size = 125

// URLPrefix is where the picture directory is served from.
const URLPrefix = "/static/profile_pictures/"

// ErrUnsupportedImage is returned for files that are not an accepted image type.
var ErrUnsupportedImage = errors.New("unsupported image type")

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// Store writes pictures into a directory.
type Store struct {
	dir string
}

// NewStore returns a store writing into dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Save decodes the uploaded image, fits it into a Size×Size box keeping its
// aspect ratio and writes it under a random name with the original extension.
// The returned value is the file name, not a path.
func (s *Store) Save(r io.Reader, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowedExtensions[ext] {
		return "", ErrUnsupportedImage
	}

	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	name, err := randomName(ext)
	if err != nil {
		return "", fmt.Errorf("generate file name: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("create picture directory: %w", err)
	}

	thumb := imaging.Fit(img, Size, Size, imaging.Lanczos)
	if err := imaging.Save(thumb, filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("save picture: %w", err)
	}
	return name, nil
}

// URL returns the public path of a stored picture.
func URL(name string) string {
	return URLPrefix + path.Base(name)
}

func randomName(ext string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b) + ext, nil
}

// Remove deletes a stored picture. The default picture is never removed.
func (s *Store) Remove(name string) {
	if name == "" || name == models.DefaultPicture {
		return
	}
	_ = os.Remove(filepath.Join(s.dir, filepath.Base(name)))
}
