package storage

import (
	"context"
	"fmt"
	"time"
)

// Metadata keys attached to every stored resume.
const (
	MetaOriginalFilename = "original-filename"
	MetaLeadID           = "lead-id"
)

// BlobStore persists resume bytes under caller-chosen keys and mints download links.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// ResumeKey returns the storage key for a lead's resume.
func ResumeKey(leadID, ext string) string {
	return fmt.Sprintf("resumes/%s.%s", leadID, ext)
}
