package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docreader/constants"
)

// Document is an uploaded source file and the text extracted from it.
type Document struct {
	ID             uuid.UUID                `json:"id" sql:"id"`
	Filename       string                   `json:"filename" sql:"filename"`
	MimeType       string                   `json:"mime_type" sql:"mime_type"`
	SizeBytes      int64                    `json:"size_bytes" sql:"size_bytes"`
	StorageLocator string                   `json:"storage_locator" sql:"storage_locator"`
	PageCount      *int64                   `json:"page_count,omitempty" sql:"page_count"`
	Status         constants.DocumentStatus `json:"status" sql:"status"`
	ExtractedText  *string                  `json:"extracted_text,omitempty" sql:"extracted_text"`
	OCRConfidence  *float64                 `json:"ocr_confidence,omitempty" sql:"ocr_confidence"`
	LowQuality     bool                     `json:"low_quality" sql:"low_quality"`
	ErrorMessage   *string                  `json:"error_message,omitempty" sql:"error_message"`
	UploadedAt     time.Time                `json:"uploaded_at" sql:"uploaded_at"`
	ProcessedAt    *time.Time               `json:"processed_at,omitempty" sql:"processed_at"`
	UpdatedAt      time.Time                `json:"updated_at" sql:"updated_at"`
}

// HasText reports whether extraction produced any stored text.
func (d *Document) HasText() bool {
	return d.ExtractedText != nil && *d.ExtractedText != ""
}
