package model

// PrincipalKind distinguishes examinee and admin sessions.
type PrincipalKind string

const (
	PrincipalExaminee PrincipalKind = "examinee"
	PrincipalAdmin    PrincipalKind = "admin"
)

// Principal is the identity carried by a session.
// For examinees SubjectID is the consumed credential and ExamID is fixed at login.
type Principal struct {
	Kind      PrincipalKind `json:"kind"`
	SubjectID int64         `json:"subject_id"`
	Username  string        `json:"username"`
	ExamID    int64         `json:"exam_id,omitempty"`
	ExamName  string        `json:"exam_name,omitempty"`
}
