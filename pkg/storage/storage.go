package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// ErrUnsupportedFileType rejects uploads whose sniffed content type is
// not on the allow list.
var ErrUnsupportedFileType = fmt.Errorf("unsupported file type")

var allowedMIMEPrefixes = []string{
	"image/", "video/", "audio/",
	"application/pdf", "application/zip",
	"application/msword", "application/vnd",
	"text/",
}

// Service stores section and assignment files in Cloudinary.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a storage service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client: cld,
		folder: cfg.Folder,
		logger: logger.With().Str("component", "storage").Logger(),
	}, nil
}

// Store sniffs the payload's content type, rejects disallowed kinds and
// uploads the rest, returning a secure URL.
func (s *Service) Store(ctx context.Context, name string, reader io.Reader) (string, error) {
	sniffed, recycled, err := sniff(reader)
	if err != nil {
		return "", err
	}
	if !allowedType(sniffed) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, sniffed)
	}

	folder := strings.Trim(s.folder, "/")
	params := uploader.UploadParams{
		Folder:       folder,
		PublicID:     buildPublicID(name),
		ResourceType: "auto",
	}

	result, err := s.client.Upload.Upload(ctx, recycled, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload asset: %w", err)
	}

	s.logger.Info().
		Str("public_id", result.PublicID).
		Str("content_type", sniffed).
		Msg("file uploaded")

	return result.SecureURL, nil
}

// Delete removes the stored object behind a previously returned URL.
// Failures are logged, never fatal: the database row wins over the
// blob, and orphaned blobs are cheaper than broken references.
func (s *Service) Delete(ctx context.Context, fileURL string) {
	publicID := publicIDFromURL(fileURL)
	if publicID == "" {
		return
	}

	_, err := s.client.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		s.logger.Warn().Err(err).Str("public_id", publicID).Msg("file delete failed")
		return
	}

	s.logger.Info().Str("public_id", publicID).Msg("file deleted")
}

// sniff reads the first bytes to detect the MIME type and returns a
// reader that replays them in front of the rest of the stream.
func sniff(reader io.Reader) (string, io.Reader, error) {
	header := make([]byte, 3072)
	n, err := io.ReadFull(reader, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", nil, err
	}
	header = header[:n]

	detected := mimetype.Detect(header)
	return detected.String(), io.MultiReader(strings.NewReader(string(header)), reader), nil
}

func allowedType(contentType string) bool {
	for _, prefix := range allowedMIMEPrefixes {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}

func buildPublicID(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, base)

	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("upload-%d", time.Now().Unix())
	}

	return fmt.Sprintf("%s-%d", base, time.Now().Unix())
}

// publicIDFromURL recovers the public id (folder path plus bare file
// name) from a Cloudinary delivery URL.
func publicIDFromURL(fileURL string) string {
	parsed, err := url.Parse(fileURL)
	if err != nil || parsed.Path == "" {
		return ""
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	uploadIdx := -1
	for i, segment := range segments {
		if segment == "upload" {
			uploadIdx = i
			break
		}
	}
	if uploadIdx == -1 || uploadIdx+1 >= len(segments) {
		return ""
	}

	rest := segments[uploadIdx+1:]
	// Skip the version segment (v123456...) when present.
	if len(rest) > 1 && strings.HasPrefix(rest[0], "v") {
		allDigits := len(rest[0]) > 1
		for _, r := range rest[0][1:] {
			if r < '0' || r > '9' {
				allDigits = false
				break
			}
		}
		if allDigits {
			rest = rest[1:]
		}
	}
	if len(rest) == 0 {
		return ""
	}

	joined := path.Join(rest...)
	return strings.TrimSuffix(joined, filepath.Ext(joined))
}
