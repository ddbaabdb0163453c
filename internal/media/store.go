package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidImage is returned when the payload cannot be decoded.
var ErrInvalidImage = errors.New("invalid image payload")

// Store turns a raw image payload into a stable reference URL. The
// messaging core persists only the reference.
type Store interface {
	Upload(ctx context.Context, payload string) (string, error)
}

// DiskStore writes decoded images under an upload directory served as
// static files.
type DiskStore struct {
	dir     string
	baseURL string
}

// NewDiskStore ensures the upload directory exists and returns the store.
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Upload accepts a base64 image, optionally with a data-URL prefix, writes
// it to disk and returns its URL.
func (s *DiskStore) Upload(ctx context.Context, payload string) (string, error) {
	ext, raw := splitDataURL(payload)
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(data) == 0 {
		return "", ErrInvalidImage
	}

	filename := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.dir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}

	return s.baseURL + "/uploads/" + filename, nil
}

// splitDataURL strips a "data:image/<type>;base64," prefix when present and
// picks a file extension from the declared type.
func splitDataURL(payload string) (string, string) {
	if !strings.HasPrefix(payload, "data:") {
		return ".png", payload
	}

	rest, raw, ok := strings.Cut(payload, ",")
	if !ok {
		return ".png", payload
	}

	ext := ".png"
	if mime, _, found := strings.Cut(strings.TrimPrefix(rest, "data:"), ";"); found {
		switch mime {
		case "image/jpeg", "image/jpg":
			ext = ".jpg"
		case "image/gif":
			ext = ".gif"
		case "image/webp":
			ext = ".webp"
		}
	}
	return ext, raw
}
