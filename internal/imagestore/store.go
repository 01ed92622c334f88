package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"tikzflow/internal/fileutil"
	"tikzflow/internal/services"
)

// AllowedContentTypes lists the upload media types accepted by Save.
var AllowedContentTypes = []string{"image/png", "image/jpeg", "image/jpg"}

var extensionForType = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
}

var allowedExtensions = map[string]struct{}{".png": {}, ".jpg": {}, ".jpeg": {}}

// Image describes a stored upload.
type Image struct {
	ID         string
	Filename   string
	Path       string
	Size       int64
	SHA256     string
	UploadedAt time.Time
}

// Store keeps uploaded images in a single directory as <id><ext>.
type Store struct {
	dir      string
	maxBytes int64
	newID    func() string
}

// New returns a Store rooted at dir. maxBytes <= 0 disables the size cap.
func New(dir string, maxBytes int64) *Store {
	return &Store{dir: dir, maxBytes: maxBytes, newID: func() string { return uuid.NewString() }}
}

// Dir returns the upload directory.
func (s *Store) Dir() string { return s.dir }

// Save validates and stores an upload, returning its assigned id.
func (s *Store) Save(ctx context.Context, originalName, contentType string, r io.Reader) (Image, error) {
	if err := ctx.Err(); err != nil {
		return Image{}, err
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if _, ok := extensionForType[contentType]; !ok {
		return Image{}, services.Wrap(services.ErrValidation, "upload", "content type",
			fmt.Sprintf("Invalid file type. Allowed types: %s", strings.Join(AllowedContentTypes, ", ")), nil)
	}
	ext := strings.ToLower(filepath.Ext(originalName))
	if _, ok := allowedExtensions[ext]; !ok {
		ext = extensionForType[contentType]
	}

	id := s.newID()
	filename := id + ext
	path := filepath.Join(s.dir, filename)
	result, err := fileutil.WriteStreamAtomic(path, r, s.maxBytes, 0o644)
	if err != nil {
		if errors.Is(err, fileutil.ErrTooLarge) {
			return Image{}, services.Wrap(services.ErrValidation, "upload", "size",
				fmt.Sprintf("File too large. Maximum size: %dMB", s.maxBytes/(1024*1024)), nil)
		}
		return Image{}, fmt.Errorf("store upload: %w", err)
	}
	return Image{
		ID:         id,
		Filename:   filename,
		Path:       path,
		Size:       result.Size,
		SHA256:     result.SHA256,
		UploadedAt: time.Now(),
	}, nil
}

// Resolve maps an image id to the stored file path.
func (s *Store) Resolve(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", services.Wrap(services.ErrNotFound, "imagestore", "resolve", "Image not found", nil)
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", services.Wrap(services.ErrNotFound, "imagestore", "resolve", "Image not found", nil)
		}
		return "", fmt.Errorf("read upload dir: %w", err)
	}
	prefix := id + "."
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		if _, ok := allowedExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			return filepath.Join(s.dir, entry.Name()), nil
		}
	}
	return "", services.Wrap(services.ErrNotFound, "imagestore", "resolve", "Image not found", nil)
}
