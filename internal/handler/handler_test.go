package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/handler"
	"github.com/stemsi/exam-portal/internal/middleware"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/repository/sqlite"
	"github.com/stemsi/exam-portal/internal/router"
	"github.com/stemsi/exam-portal/internal/service"
	"github.com/stemsi/exam-portal/internal/storage"
	"github.com/stemsi/exam-portal/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memSessions struct {
	mu   sync.Mutex
	live map[string]bool
}

func (s *memSessions) Save(_ context.Context, jti string, _ *model.Principal, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[jti] = true
	return nil
}

func (s *memSessions) Exists(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[jti], nil
}

func (s *memSessions) Delete(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, jti)
	return nil
}

type nopEvents struct{}

func (nopEvents) PublishCredentialConsumed(context.Context, *model.CredentialEvent) error { return nil }

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

type testServer struct {
	t      *testing.T
	engine *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validator.Setup()

	dir := t.TempDir()
	cfg := &config.Config{
		GinMode:          gin.TestMode,
		SessionSecret:    "handler-test",
		SessionTTL:       time.Hour,
		BcryptCost:       bcrypt.MinCost,
		AdminUsername:    "admin",
		AdminPassword:    "admin123",
		MaxUploadBytes:   1 << 20,
		APIRatePerMinute: 1000,
	}

	db, err := sqlite.Open(context.Background(), filepath.Join(dir, "portal.sqlite"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := zerolog.Nop()
	exams := sqlite.NewExamRepository(db)
	creds := sqlite.NewCredentialRepository(db)
	admins := sqlite.NewAdminRepository(db)
	files := sqlite.NewFileRepository(db)
	materials := storage.NewLocal(filepath.Join(dir, "uploads"))

	authService := service.NewAuthService(cfg, creds, exams, admins,
		&memSessions{live: map[string]bool{}}, nopEvents{}, service.NewLoginLimiter(), log)
	examService := service.NewExamService(exams, files, materials, log)
	fileService := service.NewFileService(files, exams, materials, cfg.MaxUploadBytes, log)

	_, err = authService.EnsureDefaultAdmin(context.Background())
	require.NoError(t, err)

	handlers := &router.Handlers{
		Auth:       handler.NewAuthHandler(authService, false, log),
		Portal:     handler.NewPortalHandler(authService, fileService, log),
		Admin:      handler.NewAdminHandler(authService, log),
		Exam:       handler.NewExamHandler(examService, log),
		Credential: handler.NewCredentialHandler(service.NewCredentialService(creds, exams, log), log),
		File:       handler.NewFileHandler(fileService, log),
		Dashboard:  handler.NewDashboardHandler(examService, log),
		Monitor:    handler.NewMonitorHandler(nil, examService, log, nil),
	}
	return &testServer{t: t, engine: router.SetupRouter(authService, middleware.NewRateLimiter(cfg.APIRatePerMinute), handlers, cfg)}
}

func (s *testServer) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "192.0.2.10:5555"
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) json(method, path string, body interface{}, token string) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := s.do(req, token)

	var env envelope
	if w.Header().Get("Content-Type") != "" && bytes.HasPrefix(w.Body.Bytes(), []byte("{")) {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (s *testServer) login(path, username, password string) string {
	s.t.Helper()
	w, env := s.json(http.MethodPost, path, model.LoginRequest{Username: username, Password: password}, "")
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var out model.LoginResponse
	require.NoError(s.t, json.Unmarshal(env.Data, &out))
	return out.Token
}

func (s *testServer) createExam(token, name string) int64 {
	s.t.Helper()
	w, env := s.json(http.MethodPost, "/api/v1/admin/exams", model.CreateExamRequest{Name: name}, token)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		Exam model.Exam `json:"exam"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &out))
	return out.Exam.ID
}

func (s *testServer) generate(token string, examID int64, count int, prefix string) []model.GeneratedCredential {
	s.t.Helper()
	w, env := s.json(http.MethodPost, "/api/v1/admin/credentials/generate",
		model.GenerateCredentialsRequest{ExamID: examID, Count: count, Prefix: prefix}, token)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		Credentials []model.GeneratedCredential `json:"credentials"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &out))
	return out.Credentials
}

func (s *testServer) upload(token string, examID int64, filename, contentType string, body []byte) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(s.t, mw.WriteField("exam_id", fmt.Sprint(examID)))
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(s.t, err)
	_, _ = part.Write(body)
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(req, token)
}

func fileID(t *testing.T, w *httptest.ResponseRecorder) int64 {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var out struct {
		File model.File `json:"file"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out.File.ID
}

func TestExamineeFlow(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("/api/v1/auth/admin/login", "admin", "admin123")

	examID := s.createExam(admin, "Physics")
	otherID := s.createExam(admin, "Chemistry")
	creds := s.generate(admin, examID, 2, "phy")
	require.Equal(t, "PHY001", creds[0].Username)

	w := s.upload(admin, examID, "booklet.pdf", "application/pdf", []byte("%PDF-own"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ownFile := fileID(t, w)
	w = s.upload(admin, otherID, "other.pdf", "application/pdf", []byte("%PDF-other"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	otherFile := fileID(t, w)

	// Inactive exam rejects the login with the generic code.
	w, env := s.json(http.MethodPost, "/api/v1/auth/login", model.LoginRequest{Username: creds[0].Username, Password: creds[0].Password}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "LOGIN_REJECTED", env.Error.Code)

	w, _ = s.json(http.MethodPost, fmt.Sprintf("/api/v1/admin/exams/%d/activate", examID), nil, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = s.json(http.MethodPost, "/api/v1/auth/login", model.LoginRequest{Username: "phy001", Password: creds[0].Password}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var session model.LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.Equal(t, examID, session.Principal.ExamID)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	// The cookie alone authenticates.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/exam/data", nil)
	req.AddCookie(cookie)
	w = s.do(req, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var data struct {
		Exam  struct{ Name string } `json:"exam"`
		Files []model.File         `json:"files"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "Physics", data.Exam.Name)
	require.Len(t, data.Files, 1)
	assert.Equal(t, ownFile, data.Files[0].ID)

	w = s.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/exam/files/%d", ownFile), nil), session.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-own", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "booklet.pdf")

	w, env = s.json(http.MethodGet, fmt.Sprintf("/api/v1/exam/files/%d", otherFile), nil, session.Token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	w, _ = s.json(http.MethodGet, "/api/v1/exam/files/99999", nil, session.Token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Credentials are single use.
	w, env = s.json(http.MethodPost, "/api/v1/auth/login", model.LoginRequest{Username: creds[0].Username, Password: creds[0].Password}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "LOGIN_REJECTED", env.Error.Code)

	// Role separation.
	w, env = s.json(http.MethodGet, "/api/v1/admin/dashboard", nil, session.Token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "ADMIN_ACCESS_ONLY", env.Error.Code)
	w, env = s.json(http.MethodGet, "/api/v1/exam/data", nil, admin)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "EXAMINEE_ACCESS_ONLY", env.Error.Code)

	// Dashboard reflects usage.
	w, env = s.json(http.MethodGet, "/api/v1/admin/dashboard", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	var dash struct {
		ActiveExam *model.Exam       `json:"active_exam"`
		Exams      []model.ExamStats `json:"exams"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &dash))
	require.NotNil(t, dash.ActiveExam)
	assert.Equal(t, examID, dash.ActiveExam.ID)
	for _, st := range dash.Exams {
		if st.ExamID == examID {
			assert.Equal(t, 2, st.TotalCredentials)
			assert.Equal(t, 1, st.UsedCredentials)
		}
	}

	// Logout revokes the session.
	w, _ = s.json(http.MethodPost, "/api/v1/auth/logout", nil, session.Token)
	require.Equal(t, http.StatusOK, w.Code)
	w, env = s.json(http.MethodGet, "/api/v1/exam/data", nil, session.Token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "SESSION_REVOKED", env.Error.Code)
}

func TestLoginLockout(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < service.LoginMaxAttempts; i++ {
		w, _ := s.json(http.MethodPost, "/api/v1/auth/login", model.LoginRequest{Username: "NOBODY", Password: "x"}, "")
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w, env := s.json(http.MethodPost, "/api/v1/auth/login", model.LoginRequest{Username: "NOBODY", Password: "x"}, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", env.Error.Code)
	assert.Equal(t, "15", env.Error.Fields["retry_after_minutes"])
	assert.Equal(t, "900", w.Header().Get("Retry-After"))

	// Admin login from the same address has its own counter.
	token := s.login("/api/v1/auth/admin/login", "admin", "admin123")
	assert.NotEmpty(t, token)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	w, env := s.json(http.MethodGet, "/api/v1/admin/exams", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "TOKEN_REQUIRED", env.Error.Code)

	w, env = s.json(http.MethodGet, "/api/v1/admin/exams", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "TOKEN_INVALID", env.Error.Code)
}

func TestAdminValidation(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("/api/v1/auth/admin/login", "admin", "admin123")
	examID := s.createExam(admin, "Bio")

	w, env := s.json(http.MethodPost, "/api/v1/admin/credentials/generate",
		model.GenerateCredentialsRequest{ExamID: examID, Count: 101}, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "count")

	w, env = s.json(http.MethodPost, "/api/v1/admin/credentials/generate",
		model.GenerateCredentialsRequest{ExamID: 9999, Count: 1}, admin)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	w, _ = s.json(http.MethodPost, "/api/v1/admin/exams/abc/activate", nil, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.json(http.MethodPost, "/api/v1/admin/credentials",
		model.CreateCredentialRequest{ExamID: examID, Username: "dup", Password: "p"}, admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w, env = s.json(http.MethodPost, "/api/v1/admin/credentials",
		model.CreateCredentialRequest{ExamID: examID, Username: "DUP", Password: "q"}, admin)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	w = s.upload(admin, examID, "notes.txt", "text/plain", []byte("hi"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "UNSUPPORTED_FILE_TYPE")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/files/upload", bytes.NewBufferString("exam_id=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = s.do(req, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "FILE_REQUIRED")
}

func TestCredentialManagement(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("/api/v1/auth/admin/login", "admin", "admin123")
	examID := s.createExam(admin, "Geo")
	creds := s.generate(admin, examID, 3, "")

	w, _ := s.json(http.MethodPost, fmt.Sprintf("/api/v1/admin/exams/%d/activate", examID), nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	s.login("/api/v1/auth/login", creds[0].Username, creds[0].Password)

	w, env := s.json(http.MethodGet, fmt.Sprintf("/api/v1/admin/exams/%d/credentials", examID), nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Credentials []model.Credential    `json:"credentials"`
		Count       model.CredentialCount `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, model.CredentialCount{Total: 3, Used: 1}, list.Count)
	used := list.Credentials[0]
	require.True(t, used.IsUsed)

	w, _ = s.json(http.MethodPut, fmt.Sprintf("/api/v1/admin/credentials/%d", used.ID),
		model.UpdateCredentialRequest{ExamineeName: "Rina"}, admin)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.json(http.MethodPost, fmt.Sprintf("/api/v1/admin/credentials/%d/reset", used.ID), nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	s.login("/api/v1/auth/login", creds[0].Username, creds[0].Password)

	w, _ = s.json(http.MethodDelete, fmt.Sprintf("/api/v1/admin/credentials/%d", used.ID), nil, admin)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = s.json(http.MethodDelete, fmt.Sprintf("/api/v1/admin/exams/%d/credentials", examID), nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	var deleted struct {
		Deleted int64 `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &deleted))
	assert.Equal(t, int64(2), deleted.Deleted)
}

func TestChangePassword(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("/api/v1/auth/admin/login", "admin", "admin123")

	w, env := s.json(http.MethodPost, "/api/v1/admin/change-password", model.ChangePasswordRequest{
		CurrentPassword: "admin123", NewPassword: "newpass1", ConfirmPassword: "different",
	}, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Error.Fields, "confirm_password")

	w, _ = s.json(http.MethodPost, "/api/v1/admin/change-password", model.ChangePasswordRequest{
		CurrentPassword: "admin123", NewPassword: "newpass1", ConfirmPassword: "newpass1",
	}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	s.login("/api/v1/auth/admin/login", "admin", "newpass1")
}
