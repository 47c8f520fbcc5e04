package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/model"
)

// Batch generation bounds.
const (
	MinBatchSize = 1
	MaxBatchSize = 100
)

// CredentialService mints and manages single-use examinee credentials.
type CredentialService struct {
	credentials CredentialStore
	exams       ExamStore
	now         func() time.Time
	log         zerolog.Logger
}

// NewCredentialService creates a new CredentialService.
func NewCredentialService(credentials CredentialStore, exams ExamStore, log zerolog.Logger) *CredentialService {
	return &CredentialService{
		credentials: credentials,
		exams:       exams,
		now:         time.Now,
		log:         log.With().Str("component", "credential_service").Logger(),
	}
}

// GenerateBatch mints count credentials for an exam, numbering on from the
// exam's existing credentials. The batch is all-or-nothing.
func (s *CredentialService) GenerateBatch(ctx context.Context, examID int64, count int, prefix string) ([]model.GeneratedCredential, error) {
	if examID <= 0 {
		return nil, &ValidationError{Field: "exam_id", Message: "must be a positive id"}
	}
	if count < MinBatchSize || count > MaxBatchSize {
		return nil, &ValidationError{Field: "count", Message: "must be between 1 and 100"}
	}

	if _, err := s.exams.GetByID(ctx, examID); err != nil {
		return nil, storeErr("get exam", "exam", err)
	}

	existing, err := s.credentials.CountByExam(ctx, examID)
	if err != nil {
		return nil, storeErr("count credentials", "credential", err)
	}

	creds := make([]model.Credential, count)
	out := make([]model.GeneratedCredential, count)
	for i := 0; i < count; i++ {
		password, err := GeneratePassword()
		if err != nil {
			return nil, &PersistenceError{Op: "generate password", Err: err}
		}
		username := FormatUsername(examID, existing+i+1, prefix)
		creds[i] = model.Credential{ExamID: examID, Username: username, Password: password}
		out[i] = model.GeneratedCredential{Username: username, Password: password}
	}

	if err := s.credentials.InsertBatch(ctx, creds); err != nil {
		return nil, storeErr("insert credentials", "username", err)
	}

	s.log.Info().Int64("exam_id", examID).Int("count", count).Msg("Credentials generated")
	return out, nil
}

// CreateOne stores a manually chosen credential.
func (s *CredentialService) CreateOne(ctx context.Context, examID int64, username, password, examineeName string) (*model.Credential, error) {
	username = strings.ToUpper(strings.TrimSpace(username))
	password = strings.TrimSpace(password)
	if examID <= 0 {
		return nil, &ValidationError{Field: "exam_id", Message: "must be a positive id"}
	}
	if username == "" {
		return nil, &ValidationError{Field: "username", Message: "is required"}
	}
	if password == "" {
		return nil, &ValidationError{Field: "password", Message: "is required"}
	}

	if _, err := s.exams.GetByID(ctx, examID); err != nil {
		return nil, storeErr("get exam", "exam", err)
	}

	c := &model.Credential{
		ExamID:       examID,
		Username:     username,
		Password:     password,
		ExamineeName: optionalString(examineeName),
	}
	if err := s.credentials.Create(ctx, c); err != nil {
		return nil, storeErr("create credential", "username", err)
	}
	return c, nil
}

// Consume marks a credential used exactly once. A second call, or a call
// that loses a race, fails with ErrAlreadyUsed.
func (s *CredentialService) Consume(ctx context.Context, id int64) (time.Time, error) {
	at := s.now().UTC()
	ok, err := s.credentials.MarkUsed(ctx, id, at)
	if err != nil {
		return time.Time{}, &PersistenceError{Op: "consume credential", Err: err}
	}
	if !ok {
		return time.Time{}, ErrAlreadyUsed
	}
	return at, nil
}

// Reset makes a used credential available again.
func (s *CredentialService) Reset(ctx context.Context, id int64) error {
	return storeErr("reset credential", "credential", s.credentials.Reset(ctx, id))
}

// UpdateExamineeName records who a credential was handed to. Empty clears it.
func (s *CredentialService) UpdateExamineeName(ctx context.Context, id int64, name string) error {
	return storeErr("update credential", "credential", s.credentials.UpdateExamineeName(ctx, id, optionalString(name)))
}

// Delete removes one credential.
func (s *CredentialService) Delete(ctx context.Context, id int64) error {
	return storeErr("delete credential", "credential", s.credentials.Delete(ctx, id))
}

// DeleteByExam removes every credential of an exam.
func (s *CredentialService) DeleteByExam(ctx context.Context, examID int64) (int64, error) {
	n, err := s.credentials.DeleteByExam(ctx, examID)
	if err != nil {
		return 0, storeErr("delete credentials", "credential", err)
	}
	s.log.Info().Int64("exam_id", examID).Int64("deleted", n).Msg("Credentials deleted")
	return n, nil
}

// ListByExam returns an exam's credentials with used/total counts.
func (s *CredentialService) ListByExam(ctx context.Context, examID int64) ([]model.Credential, model.CredentialCount, error) {
	if _, err := s.exams.GetByID(ctx, examID); err != nil {
		return nil, model.CredentialCount{}, storeErr("get exam", "exam", err)
	}

	creds, err := s.credentials.ListByExam(ctx, examID)
	if err != nil {
		return nil, model.CredentialCount{}, storeErr("list credentials", "credential", err)
	}

	count := model.CredentialCount{Total: len(creds)}
	for _, c := range creds {
		if c.IsUsed {
			count.Used++
		}
	}
	if creds == nil {
		creds = []model.Credential{}
	}
	return creds, count, nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
