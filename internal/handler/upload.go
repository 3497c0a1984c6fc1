package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/donation-market/internal/service"
)

// ImagesPrefix is the URL prefix uploaded photos are served under.
const ImagesPrefix = "/images"

var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// PhotoStore saves uploaded photos under Dir with random names.
type PhotoStore struct {
	Dir      string
	MaxBytes int64
}

// Save stores the file sent in field and returns its public path.  It
// returns nil when the request carries no such file.
func (s *PhotoStore) Save(c echo.Context, field string) (*string, error) {
	if s == nil || !isMultipart(c) {
		return nil, nil
	}
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s upload", service.ErrInvalidInput, field)
	}
	if s.MaxBytes > 0 && fh.Size > s.MaxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", service.ErrInvalidInput, field, s.MaxBytes)
	}
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	ext, ok := imageExt[http.DetectContentType(head[:n])]
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a jpeg, png, gif or webp image", service.ErrInvalidInput, field)
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, err
	}
	name := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(s.Dir, name))
	if err != nil {
		return nil, err
	}
	defer dst.Close()
	if _, err := dst.Write(head[:n]); err != nil {
		return nil, err
	}
	if _, err := io.Copy(dst, src); err != nil {
		return nil, err
	}
	path := ImagesPrefix + "/" + name
	return &path, nil
}
