// Package audio validates and encodes reference audio uploads. The backend
// exchanges audio as base64-encoded WAV, so validation happens on the raw
// bytes before any encoding work is done.
package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// MaxUploadBytes caps reference audio uploads at 10MB.
const MaxUploadBytes = 10 * 1024 * 1024

var (
	ErrFileTooLarge      = errors.New("file size exceeds 10MB limit")
	ErrUnsupportedFormat = errors.New("only WAV and MP3 formats are supported")
)

var allowedMIMETypes = []string{"audio/wav", "audio/wave", "audio/x-wav", "audio/mp3", "audio/mpeg"}

// ValidateUpload checks size and format by extension or MIME type. The size
// check runs first so an oversized file is rejected before any base64 work.
func ValidateUpload(filename, mimeType string, size int64) error {
	if size > MaxUploadBytes {
		return ErrFileTooLarge
	}

	name := strings.ToLower(filename)
	if strings.HasSuffix(name, ".wav") || strings.HasSuffix(name, ".mp3") {
		return nil
	}
	for _, allowed := range allowedMIMETypes {
		if strings.Contains(mimeType, allowed) {
			return nil
		}
	}
	return ErrUnsupportedFormat
}

// EncodeUpload validates the upload and returns its base64 encoding.
func EncodeUpload(filename, mimeType string, data []byte) (string, error) {
	if err := ValidateUpload(filename, mimeType, int64(len(data))); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode reverses EncodeUpload for playback and download paths.
func Decode(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	return data, nil
}

// FormatDuration renders seconds as m:ss for display.
func FormatDuration(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
