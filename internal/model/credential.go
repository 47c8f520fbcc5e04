package model

import "time"

// Credential is a single-use examinee login bound to one exam.
// Password is kept in plaintext so admins can print and hand it out.
type Credential struct {
	ID           int64      `json:"id"`
	ExamID       int64      `json:"exam_id"`
	ExamName     string     `json:"exam_name,omitempty"`
	Username     string     `json:"username"`
	Password     string     `json:"password"`
	ExamineeName *string    `json:"examinee_name"`
	IsUsed       bool       `json:"is_used"`
	UsedAt       *time.Time `json:"used_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// GeneratedCredential is returned once per row by batch generation.
type GeneratedCredential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CredentialCount summarises an exam's credentials.
type CredentialCount struct {
	Total int `json:"total"`
	Used  int `json:"used"`
}

// GenerateCredentialsRequest is the payload for batch generation.
type GenerateCredentialsRequest struct {
	ExamID int64  `json:"exam_id" binding:"required,gt=0"`
	Count  int    `json:"count" binding:"required,min=1,max=100"`
	Prefix string `json:"prefix" binding:"omitempty,max=20,alphanum"`
}

// CreateCredentialRequest is the payload for a manually entered credential.
type CreateCredentialRequest struct {
	ExamID       int64  `json:"exam_id" binding:"required,gt=0"`
	Username     string `json:"username" binding:"required,max=50"`
	Password     string `json:"password" binding:"required,max=50"`
	ExamineeName string `json:"examinee_name" binding:"max=200"`
}

// UpdateCredentialRequest renames the examinee a credential was handed to.
type UpdateCredentialRequest struct {
	ExamineeName string `json:"examinee_name" binding:"max=200"`
}

// LoginRequest is the payload for both examinee and admin login.
type LoginRequest struct {
	Username string `json:"username" binding:"required,max=100"`
	Password string `json:"password" binding:"required,max=128"`
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	Principal *Principal `json:"principal"`
}

// CredentialEvent is broadcast to the exam monitor when a credential is consumed.
type CredentialEvent struct {
	ExamID       int64     `json:"exam_id"`
	CredentialID int64     `json:"credential_id"`
	Username     string    `json:"username"`
	ExamineeName *string   `json:"examinee_name"`
	UsedAt       time.Time `json:"used_at"`
}
