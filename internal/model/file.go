package model

import "time"

// FileType classifies exam materials.
type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypePDF   FileType = "pdf"
)

// File is a material attached to an exam. ContentRef is opaque to everything
// except the material storage that produced it.
type File struct {
	ID          int64     `json:"id"`
	ExamID      int64     `json:"exam_id"`
	DisplayName string    `json:"display_name"`
	Filename    string    `json:"filename"`
	ContentRef  string    `json:"-"`
	FileType    FileType  `json:"file_type"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
}

// UpdateFileRequest renames or reorders a material.
type UpdateFileRequest struct {
	DisplayName string `json:"display_name" binding:"required,max=200"`
	SortOrder   *int   `json:"sort_order" binding:"omitempty,min=0"`
}
