package storage

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jo-hoe/insightboard/internal/common"
	"github.com/jo-hoe/insightboard/internal/util"
)

var (
	ErrNoFile          = errors.New("no file provided")
	ErrEmptyFile       = errors.New("file is empty")
	ErrTooLarge        = errors.New("file exceeds upload limit")
	ErrUnsupportedType = errors.New("unsupported content type")
)

// sniffLen matches the amount of data mimetype inspects by default.
const sniffLen = 3072

// Uploader handles spooling audio uploads to disk before they are forwarded.
type Uploader struct {
	baseDir string
}

var allowedAudioMimes = map[string]string{
	common.MimeAudioMPEG: ".mp3",
	"audio/mp3":          ".mp3",
	common.MimeAudioMP4:  ".m4a",
	"audio/x-m4a":        ".m4a",
	"audio/aac":          ".aac",
	"audio/x-aac":        ".aac",
	common.MimeAudioWAV:  ".wav",
	"audio/x-wav":        ".wav",
	"audio/wave":         ".wav",
	common.MimeAudioOGG:  ".ogg",
	"application/ogg":    ".ogg",
	common.MimeAudioWebM: ".webm",
	"video/webm":         ".webm",
	common.MimeAudioFLAC: ".flac",
	"audio/x-flac":       ".flac",
	"audio/amr":          ".amr",
	// Phone recorders often save voice memos in an MP4 container.
	"video/mp4": ".m4a",
}

// NewUploader creates an uploader that stores to baseDir/uploads.
func NewUploader(baseDir string) *Uploader {
	return &Uploader{baseDir: filepath.Join(baseDir, common.UploadsDirName)}
}

// SaveMultipartAudio validates and stores an uploaded recording to disk.
// The content type is sniffed from the data; the declared header and the file
// extension are only consulted when sniffing is inconclusive.
// It returns the file path, a cleanup function deleting it, and the mime type.
// The caller should always invoke the cleanup function when the file is no longer needed.
func (u *Uploader) SaveMultipartAudio(fileHeader *multipart.FileHeader, maxBytes int64) (string, func() error, string, error) {
	if fileHeader == nil {
		return "", nil, "", ErrNoFile
	}
	if fileHeader.Size == 0 {
		return "", nil, "", ErrEmptyFile
	}
	if maxBytes > 0 && fileHeader.Size > maxBytes {
		return "", nil, "", fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, fileHeader.Size, maxBytes)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", nil, "", fmt.Errorf("open uploaded file: %w", err)
	}
	defer func() { _ = src.Close() }()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return "", nil, "", ErrEmptyFile
	}

	mimeType := detectAudioMime(head, fileHeader.Header.Get(common.HeaderContentType), fileHeader.Filename)
	if !isAllowedAudioMime(mimeType) {
		return "", nil, "", fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}

	if err := os.MkdirAll(u.baseDir, 0o750); err != nil {
		return "", nil, "", fmt.Errorf("ensure uploads dir: %w", err)
	}

	filename := common.SpoolFilePrefix + util.NewID() + pickExtension(mimeType, fileHeader.Filename)
	dstPath := filepath.Join(u.baseDir, filename)

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return "", nil, "", fmt.Errorf("create tmp file: %w", err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := dst.Write(head); err != nil {
		_ = os.Remove(dstPath)
		return "", nil, "", fmt.Errorf("copy upload: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(dstPath)
		return "", nil, "", fmt.Errorf("copy upload: %w", err)
	}

	cleanup := func() error {
		return os.Remove(dstPath)
	}
	return dstPath, cleanup, mimeType, nil
}

func detectAudioMime(head []byte, declared, filename string) string {
	detected := mimetype.Detect(head)
	for m := detected; m != nil; m = m.Parent() {
		if isAllowedAudioMime(m.String()) {
			return normalizeMime(m.String())
		}
	}
	// Some clients set application/octet-stream for uploads; treat it as unknown and fall back to extension.
	if d := normalizeMime(declared); d != "" && d != "application/octet-stream" && isAllowedAudioMime(d) {
		return d
	}
	if byExt := normalizeMime(mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))); isAllowedAudioMime(byExt) {
		return byExt
	}
	return normalizeMime(detected.String())
}

func normalizeMime(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return mt
}

func isAllowedAudioMime(mimeType string) bool {
	_, ok := allowedAudioMimes[normalizeMime(mimeType)]
	return ok
}

func pickExtension(mimeType, original string) string {
	if ext, ok := allowedAudioMimes[normalizeMime(mimeType)]; ok {
		return ext
	}
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" {
		return ".bin"
	}
	return ext
}
