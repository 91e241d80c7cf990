package model

import (
	"path/filepath"
	"strings"
)

// LegalDisclaimer is appended to every assistant answer, including fallbacks.
const LegalDisclaimer = "This is for informational purposes only, not legal advice. For specific legal matters, consult a qualified lawyer."

// AllowedExtensions are the file types accepted for upload.
var AllowedExtensions = []string{"pdf", "txt", "doc", "docx"}

// MaxFileSizeBytes caps uploads at 10MB.
const MaxFileSizeBytes = 10 * 1024 * 1024

// FileExtension returns the lowercased extension of filename without the dot.
func FileExtension(filename string) string {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	return strings.ToLower(ext)
}

// IsAllowedExtension reports whether the filename has an accepted extension.
func IsAllowedExtension(filename string) bool {
	ext := FileExtension(filename)
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// IsWithinSizeLimit reports whether sizeBytes fits the upload cap.
func IsWithinSizeLimit(sizeBytes int64) bool {
	return sizeBytes > 0 && sizeBytes <= MaxFileSizeBytes
}
