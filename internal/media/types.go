// Package media records video files and moves their bytes in and out of storage.
package media

import (
	"errors"
	"time"
)

// Provenance says where a media file came from.
type Provenance string

const (
	ProvenanceManual Provenance = "manual"
	ProvenanceAI     Provenance = "ai"
)

// Bucket is the storage bucket every media object lives in.
const Bucket = "media"

// ErrNotFound is returned when a media record does not exist.
var ErrNotFound = errors.New("media not found")

// Media is an immutable stored video plus what produced it.
type Media struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"owner_id"`
	Backend        string     `json:"backend"`
	Bucket         string     `json:"bucket"`
	Key            string     `json:"key"`
	FileName       string     `json:"file_name"`
	MimeType       string     `json:"mime_type"`
	Size           int64      `json:"size"`
	Provenance     Provenance `json:"provenance"`
	Prompt         string     `json:"prompt,omitempty"`
	EnhancedPrompt string     `json:"enhanced_prompt,omitempty"`
	Caption        string     `json:"caption,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
