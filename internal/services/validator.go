package services

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Statement formats the parser reads
const (
	FormatCSV  = "CSV"
	FormatXLSX = "XLSX"
)

// ValidationResult is the outcome of checking an uploaded statement
type ValidationResult struct {
	Valid        bool     `json:"valid"`
	DetectedType string   `json:"detected_type,omitempty"`
	ContentType  string   `json:"content_type"`
	Size         int64    `json:"size"`
	Errors       []string `json:"errors"`
}

// Err joins the validation errors, or returns nil for a valid file
func (r *ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return errors.New(strings.Join(r.Errors, "; "))
}

// FileValidator rejects uploads the statement parser cannot read
type FileValidator struct {
	maxSizeBytes int64
}

var (
	zipMagic = []byte{0x50, 0x4B, 0x03, 0x04}
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// Content types browsers and banks send for each format. Windows browsers
// label CSV files as the legacy Excel type.
var contentTypesByFormat = map[string]map[string]bool{
	FormatCSV: {
		"text/csv":                 true,
		"text/plain":               true,
		"application/csv":          true,
		"application/vnd.ms-excel": true,
	},
	FormatXLSX: {
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	},
}

var formatsByExtension = map[string]string{
	".csv":  FormatCSV,
	".txt":  FormatCSV,
	".xlsx": FormatXLSX,
}

// NewFileValidator creates a validator with the given size limit
func NewFileValidator(maxSizeBytes int64) *FileValidator {
	return &FileValidator{maxSizeBytes: maxSizeBytes}
}

// ValidateFile reads the whole upload and checks name, size, content type and
// content. The bytes are returned so the caller can parse them.
func (v *FileValidator) ValidateFile(reader io.Reader, filename, contentType string) (*ValidationResult, []byte, error) {
	result := &ValidationResult{
		Valid:       true,
		ContentType: contentType,
		Errors:      []string{},
	}
	fail := func(err error) {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
	}

	// 1. Filename and extension
	if err := v.ValidateFilename(filename); err != nil {
		fail(err)
	}

	// 2. Size, reading at most one byte past the limit
	data, err := io.ReadAll(io.LimitReader(reader, v.maxSizeBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}
	result.Size = int64(len(data))
	if err := v.ValidateFileSize(result.Size); err != nil {
		fail(err)
		return result, nil, nil
	}

	// 3. Content sniffing
	detected, err := v.DetectFormat(data)
	if err != nil {
		fail(err)
		return result, nil, nil
	}
	result.DetectedType = detected

	// 4. Extension and declared content type must agree with the content
	if want, ok := formatsByExtension[strings.ToLower(filepath.Ext(filename))]; ok && want != detected {
		fail(fmt.Errorf("file content is %s but the extension says %s", detected, want))
	}
	if contentType != "" && !contentTypesByFormat[detected][contentType] {
		fail(fmt.Errorf("content type %s does not match %s content", contentType, detected))
	}

	return result, data, nil
}

// ValidateFilename rejects unsafe names and unsupported extensions
func (v *FileValidator) ValidateFilename(filename string) error {
	if filename == "" {
		return errors.New("filename cannot be empty")
	}
	if strings.Contains(filename, "..") {
		return errors.New("filename contains path traversal")
	}
	if strings.Contains(filename, "\x00") {
		return errors.New("filename contains null bytes")
	}
	if strings.HasPrefix(filename, "/") || strings.HasPrefix(filename, "\\") {
		return errors.New("filename cannot be absolute path")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return errors.New("filename must have an extension")
	}
	if _, ok := formatsByExtension[ext]; !ok {
		return fmt.Errorf("unsupported file extension: %s (upload a CSV or XLSX statement)", ext)
	}
	return nil
}

// ValidateFileSize checks the size is within limits
func (v *FileValidator) ValidateFileSize(size int64) error {
	if size <= 0 {
		return errors.New("empty file")
	}
	if size > v.maxSizeBytes {
		return fmt.Errorf("file exceeds maximum allowed size (%d bytes)", v.maxSizeBytes)
	}
	return nil
}

// DetectFormat sniffs the statement format from the first bytes
func (v *FileValidator) DetectFormat(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty file")
	}
	if bytes.HasPrefix(data, zipMagic) {
		return FormatXLSX, nil
	}
	if isTextContent(data) {
		return FormatCSV, nil
	}
	return "", errors.New("unsupported file type based on content")
}

// isTextContent checks the first 512 bytes look like UTF-8 text
func isTextContent(data []byte) bool {
	sample := bytes.TrimPrefix(data, utf8BOM)
	if len(sample) > 512 {
		sample = sample[:512]
		// A rune cut at the boundary is not binary content
		for i := 0; i < utf8.UTFMax-1 && !utf8.Valid(sample); i++ {
			sample = sample[:len(sample)-1]
		}
	}
	if len(sample) == 0 || bytes.IndexByte(sample, 0x00) >= 0 || !utf8.Valid(sample) {
		return false
	}

	control := 0
	for _, r := range string(sample) {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			control++
		}
	}
	return float64(control)/float64(len(sample)) < 0.05
}

// IsStatementContentType reports whether a declared content type can carry a statement
func IsStatementContentType(contentType string) bool {
	for _, types := range contentTypesByFormat {
		if types[contentType] {
			return true
		}
	}
	return false
}
