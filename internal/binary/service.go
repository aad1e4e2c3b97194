// Package binary stores files uploaded into binary node fields. Files are
// kept on the local filesystem with an optional thumbnail variant; their
// metadata lives in the node field they were uploaded to.
package binary

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	// Register standard image decoders so image.Decode recognizes them.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/fmteixeira/mesh-ui/internal/node"
)

const (
	// maxUploadSize is the maximum allowed upload file size (10 MiB).
	maxUploadSize = 10 << 20

	// thumbSize bounds both thumbnail dimensions.
	thumbSize = 256
)

// mimeToExtension maps the accepted MIME types to canonical file extensions.
// Extensions come from the detected type, never from the client filename.
var mimeToExtension = map[string]string{
	"image/jpeg":       ".jpg",
	"image/png":        ".png",
	"image/gif":        ".gif",
	"image/webp":       ".webp",
	"application/pdf":  ".pdf",
	"text/plain":       ".txt",
	"text/csv":         ".csv",
	"application/json": ".json",
}

// AllowedMIMEType reports whether files of this type may be uploaded.
func AllowedMIMEType(mimeType string) bool {
	_, ok := mimeToExtension[mimeType]
	return ok
}

// IsImageMIME reports whether the type is an image that gets a thumbnail.
func IsImageMIME(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/") && AllowedMIMEType(mimeType)
}

// mimeFromExtension is the reverse of mimeToExtension, used when serving.
func mimeFromExtension(filename string) string {
	dot := strings.LastIndexByte(filename, '.')
	if dot == -1 {
		return ""
	}
	ext := filename[dot:]
	for m, e := range mimeToExtension {
		if e == ext {
			return m
		}
	}
	return ""
}

// Attacher records binary metadata on a node. *node.Service satisfies it.
type Attacher interface {
	AttachBinary(ctx context.Context, project, nodeUUID, lang, field string, bin node.Binary, editorID string) (*node.Node, error)
}

// Target identifies the binary field an upload is stored in.
type Target struct {
	Project  string
	NodeUUID string
	Language string
	Field    string
}

// UploadError is a user-facing upload validation error.
type UploadError struct {
	Message string
}

func (e *UploadError) Error() string {
	return e.Message
}

// Service stores uploads and attaches them to nodes.
type Service struct {
	storage *LocalStorage
	nodes   Attacher
}

// NewService creates a binary Service.
func NewService(storage *LocalStorage, nodes Attacher) *Service {
	return &Service{storage: storage, nodes: nodes}
}

// Upload validates and stores a file, generates a thumbnail for images and
// records the file in the target binary field. On failure to attach, stored
// files are removed again.
func (s *Service) Upload(ctx context.Context, target Target, headerMIME string, r io.Reader, editorID string) (*node.Node, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if len(data) > maxUploadSize {
		return nil, &UploadError{Message: fmt.Sprintf("file size exceeds maximum of %d bytes", maxUploadSize)}
	}
	if len(data) == 0 {
		return nil, &UploadError{Message: "file is empty"}
	}

	mimeType := detectMIME(data, headerMIME)
	if !AllowedMIMEType(mimeType) {
		return nil, &UploadError{Message: fmt.Sprintf("MIME type '%s' is not allowed", mimeType)}
	}

	sum := sha256.Sum256(data)
	bin := node.Binary{
		FileName: uuid.NewString() + mimeToExtension[mimeType],
		MimeType: mimeType,
		Size:     int64(len(data)),
		SHA256:   hex.EncodeToString(sum[:]),
	}

	if err := s.storage.Save(VariantOriginal, bin.FileName, data); err != nil {
		return nil, fmt.Errorf("saving original file: %w", err)
	}
	if IsImageMIME(mimeType) {
		s.processThumbnail(&bin, data)
	}

	n, err := s.nodes.AttachBinary(ctx, target.Project, target.NodeUUID, target.Language, target.Field, bin, editorID)
	if err != nil {
		s.cleanupFiles(bin)
		return nil, err
	}
	return n, nil
}

// detectMIME sniffs the content type. The client header is consulted only
// when sniffing cannot identify the content, or to refine text/plain into a
// more specific text format. Specific disallowed types such as text/html are
// never overridden by the header.
func detectMIME(data []byte, headerMIME string) string {
	detected := stripParams(http.DetectContentType(data[:min(512, len(data))]))
	headerMIME = stripParams(headerMIME)

	switch {
	case detected == "application/octet-stream" && AllowedMIMEType(headerMIME):
		return headerMIME
	case detected == "text/plain" && (headerMIME == "text/csv" || headerMIME == "application/json"):
		return headerMIME
	}
	return detected
}

func stripParams(mimeType string) string {
	if idx := strings.IndexByte(mimeType, ';'); idx != -1 {
		mimeType = mimeType[:idx]
	}
	return strings.TrimSpace(mimeType)
}

// processThumbnail reads the image dimensions and stores a thumbnail bounded
// by thumbSize. Failures are logged and leave the upload without thumbnail.
func (s *Service) processThumbnail(bin *node.Binary, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic during thumbnail generation",
				"filename", bin.FileName, "panic", fmt.Sprintf("%v", r))
		}
	}()

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		slog.Warn("failed to decode image for thumbnail", "filename", bin.FileName, "error", err)
		return
	}
	bounds := img.Bounds()
	bin.Width, bin.Height = bounds.Dx(), bounds.Dy()

	thumb := img
	if bin.Width > thumbSize || bin.Height > thumbSize {
		thumb = imaging.Fit(img, thumbSize, thumbSize, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, formatFromMIME(bin.MimeType)); err != nil {
		slog.Warn("failed to encode thumbnail", "filename", bin.FileName, "error", err)
		return
	}

	name := replaceExt(bin.FileName, thumbExtension(bin.MimeType))
	if err := s.storage.Save(VariantThumb, name, buf.Bytes()); err != nil {
		slog.Warn("failed to save thumbnail", "filename", bin.FileName, "error", err)
		return
	}
	bin.Thumbnail = name
}

// cleanupFiles removes the original and thumbnail files of an upload.
func (s *Service) cleanupFiles(bin node.Binary) {
	if err := s.storage.Delete(VariantOriginal, bin.FileName); err != nil {
		slog.Warn("failed to clean up original file", "filename", bin.FileName, "error", err)
	}
	if bin.Thumbnail != "" {
		if err := s.storage.Delete(VariantThumb, bin.Thumbnail); err != nil {
			slog.Warn("failed to clean up thumbnail", "filename", bin.Thumbnail, "error", err)
		}
	}
}

// formatFromMIME returns the imaging format for thumbnails. imaging cannot
// encode WebP, so PNG is used for it.
func formatFromMIME(mimeType string) imaging.Format {
	switch mimeType {
	case "image/png", "image/webp":
		return imaging.PNG
	case "image/gif":
		return imaging.GIF
	default:
		return imaging.JPEG
	}
}

// thumbExtension returns the file extension matching formatFromMIME.
func thumbExtension(mimeType string) string {
	switch mimeType {
	case "image/png", "image/webp":
		return ".png"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

// replaceExt replaces the file extension on filename with newExt.
func replaceExt(filename, newExt string) string {
	ext := strings.LastIndex(filename, ".")
	if ext == -1 {
		return filename + newExt
	}
	return filename[:ext] + newExt
}
