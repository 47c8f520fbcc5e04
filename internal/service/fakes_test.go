package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/repository"
)

// memDB backs every in-memory store so cascades and stats see one state.
type memDB struct {
	mu          sync.Mutex
	nextID      int64
	exams       map[int64]model.Exam
	credentials map[int64]model.Credential
	admins      map[int64]model.Admin
	files       map[int64]model.File
}

func newMemDB() *memDB {
	return &memDB{
		exams:       map[int64]model.Exam{},
		credentials: map[int64]model.Credential{},
		admins:      map[int64]model.Admin{},
		files:       map[int64]model.File{},
	}
}

func (db *memDB) id() int64 {
	db.nextID++
	return db.nextID
}

// ─── Exams ──────────────────────────────────────────────────────────

type memExams struct{ db *memDB }

func (s memExams) GetByID(_ context.Context, id int64) (*model.Exam, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e, ok := s.db.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (s memExams) GetActive(_ context.Context) (*model.Exam, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, e := range s.db.exams {
		if e.IsActive {
			return &e, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s memExams) List(_ context.Context) ([]model.Exam, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []model.Exam
	for _, e := range s.db.exams {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s memExams) Create(_ context.Context, e *model.Exam) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e.ID = s.db.id()
	e.CreatedAt = time.Now()
	s.db.exams[e.ID] = *e
	return nil
}

func (s memExams) Update(_ context.Context, e *model.Exam) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.exams[e.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Name, cur.Date = e.Name, e.Date
	s.db.exams[e.ID] = cur
	return nil
}

func (s memExams) SetActive(_ context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.exams[id]; !ok {
		return repository.ErrNotFound
	}
	for k, e := range s.db.exams {
		e.IsActive = k == id
		s.db.exams[k] = e
	}
	return nil
}

func (s memExams) Deactivate(_ context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e, ok := s.db.exams[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.IsActive = false
	s.db.exams[id] = e
	return nil
}

func (s memExams) Delete(_ context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.exams[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.db.exams, id)
	for k, c := range s.db.credentials {
		if c.ExamID == id {
			delete(s.db.credentials, k)
		}
	}
	for k, f := range s.db.files {
		if f.ExamID == id {
			delete(s.db.files, k)
		}
	}
	return nil
}

func (s memExams) Stats(_ context.Context) ([]model.ExamStats, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []model.ExamStats
	for _, e := range s.db.exams {
		st := model.ExamStats{ExamID: e.ID, Name: e.Name, Date: e.Date, IsActive: e.IsActive}
		for _, c := range s.db.credentials {
			if c.ExamID == e.ID {
				st.TotalCredentials++
				if c.IsUsed {
					st.UsedCredentials++
				}
			}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExamID < out[j].ExamID })
	return out, nil
}

// ─── Credentials ────────────────────────────────────────────────────

type memCredentials struct {
	db *memDB

	// failGet makes GetByUsername fail with a storage error.
	failGet error
}

func (s *memCredentials) usernameTaken(username string) bool {
	for _, c := range s.db.credentials {
		if c.Username == username {
			return true
		}
	}
	return false
}

func (s *memCredentials) CountByExam(_ context.Context, examID int64) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for _, c := range s.db.credentials {
		if c.ExamID == examID {
			n++
		}
	}
	return n, nil
}

func (s *memCredentials) InsertBatch(_ context.Context, creds []model.Credential) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	seen := map[string]bool{}
	for _, c := range creds {
		if seen[c.Username] || s.usernameTaken(c.Username) {
			return repository.ErrDuplicate
		}
		seen[c.Username] = true
	}
	for i := range creds {
		creds[i].ID = s.db.id()
		creds[i].CreatedAt = time.Now()
		s.db.credentials[creds[i].ID] = creds[i]
	}
	return nil
}

func (s *memCredentials) Create(_ context.Context, c *model.Credential) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.usernameTaken(c.Username) {
		return repository.ErrDuplicate
	}
	c.ID = s.db.id()
	c.CreatedAt = time.Now()
	s.db.credentials[c.ID] = *c
	return nil
}

func (s *memCredentials) GetByUsername(_ context.Context, username string) (*model.Credential, error) {
	if s.failGet != nil {
		return nil, s.failGet
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, c := range s.db.credentials {
		if c.Username == username {
			c.ExamName = s.db.exams[c.ExamID].Name
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memCredentials) MarkUsed(_ context.Context, id int64, at time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.credentials[id]
	if !ok || c.IsUsed {
		return false, nil
	}
	c.IsUsed = true
	c.UsedAt = &at
	s.db.credentials[id] = c
	return true, nil
}

func (s *memCredentials) Reset(_ context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.credentials[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.IsUsed = false
	c.UsedAt = nil
	s.db.credentials[id] = c
	return nil
}

func (s *memCredentials) UpdateExamineeName(_ context.Context, id int64, name *string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.credentials[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.ExamineeName = name
	s.db.credentials[id] = c
	return nil
}

func (s *memCredentials) Delete(_ context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.credentials[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.db.credentials, id)
	return nil
}

func (s *memCredentials) DeleteByExam(_ context.Context, examID int64) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for k, c := range s.db.credentials {
		if c.ExamID == examID {
			delete(s.db.credentials, k)
			n++
		}
	}
	return n, nil
}

func (s *memCredentials) ListByExam(_ context.Context, examID int64) ([]model.Credential, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []model.Credential
	for _, c := range s.db.credentials {
		if c.ExamID == examID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *memCredentials) get(id int64) model.Credential {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.credentials[id]
}

// ─── Admins ─────────────────────────────────────────────────────────

type memAdmins struct{ db *memDB }

func (s memAdmins) GetByID(_ context.Context, id int64) (*model.Admin, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	a, ok := s.db.admins[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (s memAdmins) GetByUsername(_ context.Context, username string) (*model.Admin, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, a := range s.db.admins {
		if a.Username == username {
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s memAdmins) Create(_ context.Context, a *model.Admin) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, existing := range s.db.admins {
		if existing.Username == a.Username {
			return repository.ErrDuplicate
		}
	}
	a.ID = s.db.id()
	a.CreatedAt = time.Now()
	s.db.admins[a.ID] = *a
	return nil
}

func (s memAdmins) UpdatePasswordHash(_ context.Context, id int64, hash string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	a, ok := s.db.admins[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.PasswordHash = hash
	s.db.admins[id] = a
	return nil
}

func (s memAdmins) Count(_ context.Context) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return len(s.db.admins), nil
}

// ─── Files ──────────────────────────────────────────────────────────

type memFiles struct {
	db *memDB

	// failCreate makes Create fail with a storage error.
	failCreate error
}

func (s *memFiles) Create(_ context.Context, f *model.File) error {
	if s.failCreate != nil {
		return s.failCreate
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	max := 0
	for _, existing := range s.db.files {
		if existing.ExamID == f.ExamID && existing.SortOrder > max {
			max = existing.SortOrder
		}
	}
	f.ID = s.db.id()
	f.SortOrder = max + 1
	f.CreatedAt = time.Now()
	s.db.files[f.ID] = *f
	return nil
}

func (s *memFiles) GetByID(_ context.Context, id int64) (*model.File, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	f, ok := s.db.files[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &f, nil
}

func (s *memFiles) ListByExam(_ context.Context, examID int64) ([]model.File, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []model.File
	for _, f := range s.db.files {
		if f.ExamID == examID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memFiles) Update(_ context.Context, f *model.File) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.files[f.ID]; !ok {
		return repository.ErrNotFound
	}
	s.db.files[f.ID] = *f
	return nil
}

func (s *memFiles) Delete(_ context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.files[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.db.files, id)
	return nil
}

func (s *memFiles) ContentRefsByExam(_ context.Context, examID int64) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []string
	for _, f := range s.db.files {
		if f.ExamID == examID {
			out = append(out, f.ContentRef)
		}
	}
	return out, nil
}

// ─── Material storage ───────────────────────────────────────────────

type memStorage struct {
	mu         sync.Mutex
	n          int
	objects    map[string][]byte
	failRemove error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (s *memStorage) Save(_ context.Context, body io.Reader, ext string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	ref := fmt.Sprintf("obj-%d%s", s.n, ext)
	s.objects[ref] = data
	return ref, nil
}

func (s *memStorage) Path(ref string) (string, error) {
	return "/mem/" + ref, nil
}

func (s *memStorage) Remove(_ context.Context, ref string) error {
	if s.failRemove != nil {
		return s.failRemove
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, ref)
	return nil
}

func (s *memStorage) has(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[ref]
	return ok
}

func (s *memStorage) content(ref string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.objects[ref])
}

func (s *memStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// ─── Sessions and events ────────────────────────────────────────────

type memSessions struct {
	mu   sync.Mutex
	live map[string]model.Principal
}

func newMemSessions() *memSessions {
	return &memSessions{live: map[string]model.Principal{}}
}

func (s *memSessions) Save(_ context.Context, jti string, p *model.Principal, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[jti] = *p
	return nil
}

func (s *memSessions) Exists(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live[jti]
	return ok, nil
}

func (s *memSessions) Delete(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, jti)
	return nil
}

type memEvents struct {
	mu     sync.Mutex
	events []model.CredentialEvent
	fail   error
}

func (p *memEvents) PublishCredentialConsumed(_ context.Context, ev *model.CredentialEvent) error {
	if p.fail != nil {
		return p.fail
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *ev)
	return nil
}

func (p *memEvents) published() []model.CredentialEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.CredentialEvent(nil), p.events...)
}

var errStoreDown = errors.New("store unavailable")
