package entity

import (
	"time"

	"github.com/google/uuid"
)

// TextChunk is one persisted segment of a document's extracted text.
type TextChunk struct {
	ID                 uuid.UUID `json:"id" sql:"id"`
	DocumentID         uuid.UUID `json:"document_id" sql:"document_id"`
	ChunkIndex         int64     `json:"chunk_index" sql:"chunk_index"`
	Content            string    `json:"content" sql:"content"`
	StartPage          int64     `json:"start_page" sql:"start_page"`
	EndPage            int64     `json:"end_page" sql:"end_page"`
	WordCount          int64     `json:"word_count" sql:"word_count"`
	CharCount          int64     `json:"char_count" sql:"char_count"`
	ReadingTimeSeconds int64     `json:"reading_time_seconds" sql:"reading_time_seconds"`
	CreatedAt          time.Time `json:"created_at" sql:"created_at"`
}
