// Package storage keeps uploaded covers, photos and book files on local disk.
//
// Files land under <root>/uploads/<category>/<uuid><ext> and are addressed by
// the public path /uploads/<category>/<uuid><ext>, which is what the catalog
// stores in its rows.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	CategoryCovers         = "covers"
	CategoryAuthorPhotos   = "pfps/author"
	CategoryPublisherLogos = "pfps/publisher"
	CategoryUserPhotos     = "pfps/user"
	CategoryDigitalFiles   = "files/digital"
	CategoryAudioFiles     = "files/audio"
	CategoryDefault        = "files"
)

const (
	uploadsDir   = "uploads"
	publicPrefix = "/" + uploadsDir + "/"
)

const (
	PlaceholderCover     = "/uploads/covers/no_cover_available.png"
	PlaceholderAuthor    = "/uploads/pfps/author/DefaultAuthor.png"
	PlaceholderPublisher = "/uploads/pfps/publisher/DefaultPublisher.png"
	PlaceholderUser      = "/uploads/pfps/user/DefaultUser.png"
)

var (
	ErrEmptyFile   = errors.New("uploaded file is empty")
	ErrInvalidPath = errors.New("path is outside the uploads directory")
)

var knownCategories = map[string]bool{
	CategoryCovers:         true,
	CategoryAuthorPhotos:   true,
	CategoryPublisherLogos: true,
	CategoryUserPhotos:     true,
	CategoryDigitalFiles:   true,
	CategoryAudioFiles:     true,
	CategoryDefault:        true,
}

var placeholders = map[string]bool{
	PlaceholderCover:     true,
	PlaceholderAuthor:    true,
	PlaceholderPublisher: true,
	PlaceholderUser:      true,
}

// Storage is what the catalog services need from the upload store.
type Storage interface {
	Upload(ctx context.Context, r io.Reader, originalName, category string) (string, error)
	Delete(ctx context.Context, publicPath string) (bool, error)
	Exists(publicPath string) bool
	Resolve(publicPath string) (string, error)
}

// FileStorage is the local-disk Storage.
type FileStorage struct {
	root string
}

// NewFileStorage prepares <root>/uploads.
func NewFileStorage(root string) (*FileStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve uploads root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, uploadsDir), 0755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &FileStorage{root: abs}, nil
}

// Root returns the directory that contains the uploads tree.
func (s *FileStorage) Root() string {
	return s.root
}

// IsPlaceholder reports whether p is one of the shipped default images.
func IsPlaceholder(p string) bool {
	return placeholders[p]
}

// NormalizeCategory maps unknown categories to the default one.
func NormalizeCategory(category string) string {
	category = strings.Trim(category, "/")
	if knownCategories[category] {
		return category
	}
	return CategoryDefault
}

// Upload copies r into a freshly named file and returns its public path.
func (s *FileStorage) Upload(ctx context.Context, r io.Reader, originalName, category string) (string, error) {
	if r == nil {
		return "", ErrEmptyFile
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	category = NormalizeCategory(category)
	dir := filepath.Join(s.root, uploadsDir, filepath.FromSlash(category))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create category dir: %w", err)
	}

	name := uuid.New().String() + strings.ToLower(filepath.Ext(originalName))

	tmpFile, err := os.CreateTemp(dir, "upload_tmp_")
	if err != nil {
		return "", err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if written == 0 {
		return "", ErrEmptyFile
	}
	if err := tmpFile.Close(); err != nil {
		return "", err
	}

	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}

	return publicPrefix + category + "/" + name, nil
}

// Delete removes the file behind publicPath. It returns false without an
// error when there is nothing to delete: empty paths, placeholders and
// files that are already gone.
func (s *FileStorage) Delete(ctx context.Context, publicPath string) (bool, error) {
	if publicPath == "" || IsPlaceholder(publicPath) {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	full, err := s.Resolve(publicPath)
	if err != nil {
		return false, nil
	}

	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("delete upload: %w", err)
	}
	return true, nil
}

// Exists reports whether publicPath points at a regular file.
func (s *FileStorage) Exists(publicPath string) bool {
	full, err := s.Resolve(publicPath)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && info.Mode().IsRegular()
}

// Resolve turns a public path into an absolute path on disk.
func (s *FileStorage) Resolve(publicPath string) (string, error) {
	cleaned := path.Clean("/" + strings.TrimSpace(publicPath))
	if !strings.HasPrefix(cleaned, publicPrefix) {
		return "", ErrInvalidPath
	}

	base := filepath.Join(s.root, uploadsDir)
	full := filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(cleaned, "/")))
	rel, err := filepath.Rel(base, full)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", ErrInvalidPath
	}
	return full, nil
}
