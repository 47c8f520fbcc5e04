package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// Token errors returned by Authenticate.
var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrSessionRevoked = errors.New("session revoked")
)

const minAdminPasswordLength = 6

// Claims extends JWT standard claims with the session principal.
type Claims struct {
	jwt.RegisteredClaims
	Principal model.Principal `json:"principal"`
}

// LoginInput is one login attempt. ClientKey identifies the caller for
// rate limiting, normally the client IP.
type LoginInput struct {
	Username  string
	Password  string
	ClientKey string
}

// IssuedSession is returned after a successful login.
type IssuedSession struct {
	Token     string
	ExpiresAt time.Time
	Principal *model.Principal
}

// AuthService runs the examinee and admin login protocols and manages sessions.
type AuthService struct {
	cfg         *config.Config
	credentials *CredentialService
	credStore   CredentialStore
	exams       ExamStore
	admins      AdminStore
	sessions    SessionStore
	events      EventPublisher
	limiter     *LoginLimiter
	now         func() time.Time
	log         zerolog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	cfg *config.Config,
	credStore CredentialStore,
	exams ExamStore,
	admins AdminStore,
	sessions SessionStore,
	events EventPublisher,
	limiter *LoginLimiter,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		cfg:         cfg,
		credentials: NewCredentialService(credStore, exams, log),
		credStore:   credStore,
		exams:       exams,
		admins:      admins,
		sessions:    sessions,
		events:      events,
		limiter:     limiter,
		now:         time.Now,
		log:         log.With().Str("component", "auth_service").Logger(),
	}
}

// Login authenticates an examinee with a single-use credential and binds the
// session to the credential's exam. Wrong username and wrong password are
// indistinguishable to the caller and both count toward the lockout.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*IssuedSession, error) {
	username := strings.ToUpper(strings.TrimSpace(in.Username))
	if username == "" {
		return nil, &ValidationError{Field: "username", Message: "is required"}
	}
	if in.Password == "" {
		return nil, &ValidationError{Field: "password", Message: "is required"}
	}

	key := examineeLimiterKey(in.ClientKey)
	if err := s.limiter.Allow(key); err != nil {
		return nil, err
	}

	cred, err := s.credStore.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		s.limiter.RecordFailure(key)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get credential", Err: err}
	}

	// Examinee passwords are stored and compared in plaintext so admins can
	// reprint them. Admin passwords are bcrypt hashed.
	if subtle.ConstantTimeCompare([]byte(cred.Password), []byte(in.Password)) != 1 {
		s.limiter.RecordFailure(key)
		return nil, ErrInvalidCredentials
	}

	if cred.IsUsed {
		return nil, ErrAlreadyUsed
	}

	exam, err := s.exams.GetByID(ctx, cred.ExamID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, &PersistenceError{Op: "get exam", Err: err}
	}
	if exam == nil || !exam.IsActive {
		return nil, ErrExamInactive
	}

	usedAt, err := s.credentials.Consume(ctx, cred.ID)
	if err != nil {
		return nil, err
	}

	s.limiter.Clear(key)

	principal := &model.Principal{
		Kind:      model.PrincipalExaminee,
		SubjectID: cred.ID,
		Username:  cred.Username,
		ExamID:    exam.ID,
		ExamName:  exam.Name,
	}
	session, err := s.issue(ctx, principal)
	if err != nil {
		return nil, err
	}

	ev := &model.CredentialEvent{
		ExamID:       exam.ID,
		CredentialID: cred.ID,
		Username:     cred.Username,
		ExamineeName: cred.ExamineeName,
		UsedAt:       usedAt,
	}
	if err := s.events.PublishCredentialConsumed(ctx, ev); err != nil {
		s.log.Warn().Err(err).Int64("exam_id", exam.ID).Msg("Failed to publish credential event")
	}

	s.log.Info().Str("username", cred.Username).Int64("exam_id", exam.ID).Msg("Examinee logged in")
	return session, nil
}

// AdminLogin authenticates an administrator against a bcrypt hash.
func (s *AuthService) AdminLogin(ctx context.Context, in LoginInput) (*IssuedSession, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, &ValidationError{Field: "username", Message: "is required"}
	}
	if in.Password == "" {
		return nil, &ValidationError{Field: "password", Message: "is required"}
	}

	key := adminLimiterKey(in.ClientKey)
	if err := s.limiter.Allow(key); err != nil {
		return nil, err
	}

	admin, err := s.admins.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		s.limiter.RecordFailure(key)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get admin", Err: err}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(in.Password)); err != nil {
		s.limiter.RecordFailure(key)
		return nil, ErrInvalidCredentials
	}

	s.limiter.Clear(key)

	session, err := s.issue(ctx, &model.Principal{
		Kind:      model.PrincipalAdmin,
		SubjectID: admin.ID,
		Username:  admin.Username,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("username", admin.Username).Msg("Admin logged in")
	return session, nil
}

// Authenticate validates a session token and confirms the session is still live.
func (s *AuthService) Authenticate(ctx context.Context, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.SessionSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, ErrTokenInvalid
	}

	live, err := s.sessions.Exists(ctx, claims.ID)
	if err != nil {
		return nil, &PersistenceError{Op: "check session", Err: err}
	}
	if !live {
		return nil, ErrSessionRevoked
	}
	return claims, nil
}

// Logout ends the session identified by claims.
func (s *AuthService) Logout(ctx context.Context, claims *Claims) error {
	if err := s.sessions.Delete(ctx, claims.ID); err != nil {
		return &PersistenceError{Op: "delete session", Err: err}
	}
	return nil
}

// AuthorizeMaterial allows a principal to read only files of its own exam.
// Admins may read any file.
func (s *AuthService) AuthorizeMaterial(p *model.Principal, f *model.File) error {
	if p == nil || f == nil {
		return ErrForbidden
	}
	if p.Kind == model.PrincipalAdmin {
		return nil
	}
	if p.Kind != model.PrincipalExaminee || p.ExamID != f.ExamID {
		return ErrForbidden
	}
	return nil
}

// GetAdmin retrieves an admin profile.
func (s *AuthService) GetAdmin(ctx context.Context, id int64) (*model.Admin, error) {
	a, err := s.admins.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("get admin", "admin", err)
	}
	return a, nil
}

// ChangeAdminPassword replaces an admin's password after verifying the current one.
func (s *AuthService) ChangeAdminPassword(ctx context.Context, adminID int64, current, next, confirm string) error {
	switch {
	case current == "":
		return &ValidationError{Field: "current_password", Message: "is required"}
	case next == "":
		return &ValidationError{Field: "new_password", Message: "is required"}
	case confirm == "":
		return &ValidationError{Field: "confirm_password", Message: "is required"}
	case next != confirm:
		return &ValidationError{Field: "confirm_password", Message: "does not match new_password"}
	case len(next) < minAdminPasswordLength:
		return &ValidationError{Field: "new_password", Message: fmt.Sprintf("must be at least %d characters", minAdminPasswordLength)}
	}

	admin, err := s.GetAdmin(ctx, adminID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(current)); err != nil {
		return &ValidationError{Field: "current_password", Message: "is incorrect"}
	}

	hash, err := s.HashPassword(next)
	if err != nil {
		return &PersistenceError{Op: "hash password", Err: err}
	}
	if err := s.admins.UpdatePasswordHash(ctx, adminID, hash); err != nil {
		return storeErr("update password", "admin", err)
	}

	s.log.Info().Int64("admin_id", adminID).Msg("Admin password changed")
	return nil
}

// CreateAdmin adds an administrator with a freshly hashed password.
func (s *AuthService) CreateAdmin(ctx context.Context, username, password string) (*model.Admin, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, &ValidationError{Field: "username", Message: "is required"}
	}
	if len(password) < minAdminPasswordLength {
		return nil, &ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minAdminPasswordLength)}
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, &PersistenceError{Op: "hash password", Err: err}
	}
	a := &model.Admin{Username: username, PasswordHash: hash}
	if err := s.admins.Create(ctx, a); err != nil {
		return nil, storeErr("create admin", "admin", err)
	}
	return a, nil
}

// EnsureDefaultAdmin creates the configured bootstrap admin when no admin exists.
// It reports whether an admin was created.
func (s *AuthService) EnsureDefaultAdmin(ctx context.Context) (bool, error) {
	n, err := s.admins.Count(ctx)
	if err != nil {
		return false, &PersistenceError{Op: "count admins", Err: err}
	}
	if n > 0 {
		return false, nil
	}

	if _, err := s.CreateAdmin(ctx, s.cfg.AdminUsername, s.cfg.AdminPassword); err != nil {
		return false, err
	}
	s.log.Warn().Str("username", s.cfg.AdminUsername).Msg("Default admin created, change its password")
	return true, nil
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// SessionTTL is how long an issued session stays valid.
func (s *AuthService) SessionTTL() time.Duration {
	return s.cfg.SessionTTL
}

// issue signs a token for p and registers its session.
func (s *AuthService) issue(ctx context.Context, p *model.Principal) (*IssuedSession, error) {
	jti := uuid.New().String()
	now := s.now()
	expiresAt := now.Add(s.cfg.SessionTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   fmt.Sprintf("%s:%d", p.Kind, p.SubjectID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Principal: *p,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.SessionSecret))
	if err != nil {
		return nil, &PersistenceError{Op: "sign token", Err: err}
	}

	if err := s.sessions.Save(ctx, jti, p, s.cfg.SessionTTL); err != nil {
		return nil, &PersistenceError{Op: "store session", Err: err}
	}

	return &IssuedSession{Token: signed, ExpiresAt: expiresAt, Principal: p}, nil
}

func examineeLimiterKey(clientKey string) string {
	return "examinee:" + clientKey
}

func adminLimiterKey(clientKey string) string {
	return "admin:" + clientKey
}
