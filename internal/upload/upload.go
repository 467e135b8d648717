// Package upload stores listing images and returns the URL they are served at.
//
// Two backends implement Store: DiskStore (default, served by the app under
// /uploads) and S3Store (public bucket URLs). Both receive an already
// validated image; Save does the checks once for either backend.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/sakif/game-market/internal/apperror"
)

// MaxImageSize is the largest accepted upload: 10 MB.
const MaxImageSize = 10 << 20

// sniffLen is how many bytes http.DetectContentType looks at.
const sniffLen = 512

// Store persists an image under key and returns its public URL.
// Delete removes a stored image; a missing key is not an error.
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// Image is a stored upload: Key addresses it in the Store, URL is where
// clients fetch it.
type Image struct {
	Key string
	URL string
}

// Save validates an uploaded image and hands it to store.
//
// An image must be at most MaxImageSize bytes and be image/* both by its
// declared Content-Type and by its actual leading bytes; a PNG renamed to
// .txt passes, a script renamed to .png does not. Rejections come back as a
// validation error on field "image".
func Save(ctx context.Context, store Store, file multipart.File, header *multipart.FileHeader, now time.Time) (Image, error) {
	if header.Size > MaxImageSize {
		return Image{}, apperror.ValidationFailed("image", "image must be 10MB or smaller")
	}
	if !isImage(header.Header.Get("Content-Type")) {
		return Image{}, apperror.ValidationFailed("image", "only image files are allowed")
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Image{}, fmt.Errorf("upload: reading image: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return Image{}, apperror.ValidationFailed("image", "image is empty")
	}

	sniffed := http.DetectContentType(head)
	if !isImage(sniffed) {
		return Image{}, apperror.ValidationFailed("image", "only image files are allowed")
	}

	key := ObjectKey(header.Filename, now)
	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), file), MaxImageSize)
	url, err := store.Put(ctx, key, sniffed, body)
	if err != nil {
		return Image{}, fmt.Errorf("upload: storing image: %w", err)
	}
	return Image{Key: key, URL: url}, nil
}

func isImage(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}

// ObjectKey names a stored image "<unix-millis>-<sanitized original name>".
func ObjectKey(filename string, now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), sanitize(filename))
}

const maxNameLen = 100

// sanitize keeps the base name and replaces anything outside [A-Za-z0-9._-],
// so the key is safe both as a file name and as a URL path segment.
func sanitize(filename string) string {
	// Browsers on Windows may send the full client path.
	name := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.TrimLeft(b.String(), ".")
	if len(out) > maxNameLen {
		out = out[len(out)-maxNameLen:]
	}
	if out == "" {
		return "image"
	}
	return out
}
