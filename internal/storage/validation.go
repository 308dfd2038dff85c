package storage

import (
	"fmt"
	"strings"
)

// AllowedResumeContentTypes defines the accepted resume MIME types.
var AllowedResumeContentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// AllowedResumeExtensions is checked independently of the declared MIME type.
var AllowedResumeExtensions = map[string]bool{
	"pdf":  true,
	"doc":  true,
	"docx": true,
}

// NormalizeContentType drops parameters like charset and lowercases.
func NormalizeContentType(contentType string) string {
	normalized := strings.Split(contentType, ";")[0]
	return strings.TrimSpace(strings.ToLower(normalized))
}

// ValidateContentType checks if the content type is allowed.
func ValidateContentType(contentType string) error {
	if !AllowedResumeContentTypes[NormalizeContentType(contentType)] {
		return fmt.Errorf("content type %q is not allowed", contentType)
	}
	return nil
}

// ResumeExtension extracts the lowercased extension from the last path segment of filename
// and checks it against the allow-list.
func ResumeExtension(filename string) (string, error) {
	name := filename
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	dot := strings.LastIndex(name, ".")
	if dot < 0 || dot == len(name)-1 {
		return "", fmt.Errorf("file name %q has no extension", filename)
	}
	ext := strings.ToLower(name[dot+1:])
	if !AllowedResumeExtensions[ext] {
		return "", fmt.Errorf("file extension %q is not allowed", ext)
	}
	return ext, nil
}
