package model

import "time"

// DateLayout is the wire and storage format of an exam date.
const DateLayout = "2006-01-02"

// Exam is a named examination event. At most one exam is active at a time.
type Exam struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Date      *time.Time `json:"date"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
}

// ExamStats is one row of the admin dashboard.
type ExamStats struct {
	ExamID           int64      `json:"exam_id"`
	Name             string     `json:"name"`
	Date             *time.Time `json:"date"`
	IsActive         bool       `json:"is_active"`
	TotalCredentials int        `json:"total_credentials"`
	UsedCredentials  int        `json:"used_credentials"`
}

// CreateExamRequest is the payload for creating or renaming an exam.
type CreateExamRequest struct {
	Name string `json:"name" binding:"required,max=200"`
	Date string `json:"date" binding:"omitempty,datetime=2006-01-02"`
}

// ParseDate converts the optional request date into a date value.
func (r CreateExamRequest) ParseDate() (*time.Time, error) {
	if r.Date == "" {
		return nil, nil
	}
	d, err := time.Parse(DateLayout, r.Date)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
