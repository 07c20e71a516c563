package models

import (
	"time"

	"github.com/google/uuid"
)

type DocumentType string

const (
	DocumentTypeCV         DocumentType = "cv"
	DocumentTypeSubmission DocumentType = "submission"
)

// Document holds the extracted text of an uploaded CV or project submission.
type Document struct {
	ID               uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	DocType          DocumentType `gorm:"type:text;not null" json:"doc_type"`
	OriginalFileName string       `gorm:"type:text" json:"original_filename"`
	FilePath         string       `gorm:"type:text" json:"file_path"`
	Content          string       `gorm:"type:text;not null" json:"-"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func (d *Document) TableName() string {
	return "documents"
}
