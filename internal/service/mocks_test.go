package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jardiel79162-commits/remixhub/internal/apperror"
	"github.com/jardiel79162-commits/remixhub/internal/model"
	"github.com/jardiel79162-commits/remixhub/internal/repository"
)

// =========================================================================
// MOCK REPOSITORIES
// =========================================================================
//
// Hand-written in-memory implementations of the repository interfaces. The
// services only see the interfaces, so these swap in transparently. Each mock
// also exposes error-injection fields (forceErr...) so tests can simulate a
// failing database at a specific step.
//
// The remix job goroutine and the test both touch these maps, so every method
// takes the mutex — the mocks must be as safe as the real store.

type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User

	forceErrSetCredits error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

// addUser seeds a user directly, bypassing Create.
func (m *mockUserRepo) addUser(id, email string, credits int) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &model.User{ID: id, Email: email, Credits: credits, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.users[id] = u
	return u
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return apperror.Conflict("user", user.Email)
		}
	}
	user.ID = fmt.Sprintf("user-%d", len(m.users)+1)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *u
	return &result, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (m *mockUserRepo) SetCredits(_ context.Context, userID string, credits int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceErrSetCredits != nil {
		return m.forceErrSetCredits
	}
	u, ok := m.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	u.Credits = credits
	return nil
}

func (m *mockUserRepo) SetCPF(_ context.Context, userID, cpf string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	u.CPF = cpf
	return nil
}

func (m *mockUserRepo) credits(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].Credits
}

type mockRemixRepo struct {
	mu     sync.Mutex
	jobs   map[string]*model.RemixJob
	nextID int

	forceErrCreate error
}

func newMockRemixRepo() *mockRemixRepo {
	return &mockRemixRepo{jobs: make(map[string]*model.RemixJob)}
}

// addJob seeds a record directly, keeping the given CreatedAt (quota tests
// need to backdate jobs into and out of the window).
func (m *mockRemixRepo) addJob(userID, status string, createdAt time.Time) *model.RemixJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	job := &model.RemixJob{
		ID:        fmt.Sprintf("remix-%d", m.nextID),
		UserID:    userID,
		Status:    status,
		CreatedAt: createdAt,
	}
	m.jobs[job.ID] = job
	return job
}

func (m *mockRemixRepo) Create(_ context.Context, job *model.RemixJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceErrCreate != nil {
		return m.forceErrCreate
	}
	m.nextID++
	job.ID = fmt.Sprintf("remix-%d", m.nextID)
	job.CreatedAt = time.Now()
	stored := *job
	m.jobs[job.ID] = &stored
	return nil
}

func (m *mockRemixRepo) GetByID(_ context.Context, id string) (*model.RemixJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, apperror.NotFound("remix", id)
	}
	result := *job
	return &result, nil
}

func (m *mockRemixRepo) ListByUser(_ context.Context, userID string, opts repository.ListOptions) ([]model.RemixJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]model.RemixJob, 0)
	for _, j := range m.jobs {
		if j.UserID == userID {
			result = append(result, *j)
		}
	}
	sort.Slice(result, func(i, k int) bool { return result[i].CreatedAt.After(result[k].CreatedAt) })
	if opts.Offset >= len(result) {
		return []model.RemixJob{}, nil
	}
	result = result[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (m *mockRemixRepo) ListStartedSince(_ context.Context, userID string, since time.Time) ([]model.RemixJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]model.RemixJob, 0)
	for _, j := range m.jobs {
		if j.UserID != userID {
			continue
		}
		if j.Status != model.RemixStatusProcessing && j.Status != model.RemixStatusCompleted {
			continue
		}
		if j.CreatedAt.Before(since) {
			continue
		}
		result = append(result, *j)
	}
	sort.Slice(result, func(i, k int) bool { return result[i].CreatedAt.Before(result[k].CreatedAt) })
	return result, nil
}

func (m *mockRemixRepo) SaveLogs(_ context.Context, id string, logs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return apperror.NotFound("remix", id)
	}
	job.Logs = append([]string(nil), logs...)
	return nil
}

func (m *mockRemixRepo) SetCompleted(_ context.Context, id string, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return apperror.NotFound("remix", id)
	}
	job.Status = model.RemixStatusCompleted
	job.CompletedAt = &completedAt
	return nil
}

func (m *mockRemixRepo) SetError(_ context.Context, id, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return apperror.NotFound("remix", id)
	}
	job.Status = model.RemixStatusError
	job.ErrorMessage = message
	now := time.Now()
	job.CompletedAt = &now
	return nil
}

func (m *mockRemixRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return apperror.NotFound("remix", id)
	}
	delete(m.jobs, id)
	return nil
}

func (m *mockRemixRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// only returns the single stored job; fails the test if there isn't exactly one.
func (m *mockRemixRepo) only(t *testing.T) *model.RemixJob {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.jobs) != 1 {
		t.Fatalf("expected exactly 1 remix record, got %d", len(m.jobs))
	}
	for _, j := range m.jobs {
		result := *j
		return &result
	}
	return nil
}

type mockPaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*model.Payment
	nextID   int
}

func newMockPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{payments: make(map[string]*model.Payment)}
}

func (m *mockPaymentRepo) Create(_ context.Context, p *model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = fmt.Sprintf("pay-%d", m.nextID)
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	if p.Status == "" {
		p.Status = model.PaymentStatusPending
	}
	stored := *p
	m.payments[p.ID] = &stored
	return nil
}

func (m *mockPaymentRepo) GetByID(_ context.Context, id string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, apperror.NotFound("payment", id)
	}
	result := *p
	return &result, nil
}

func (m *mockPaymentRepo) SetMPPaymentID(_ context.Context, id, mpPaymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return apperror.NotFound("payment", id)
	}
	p.MPPaymentID = mpPaymentID
	return nil
}

func (m *mockPaymentRepo) SetStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return apperror.NotFound("payment", id)
	}
	p.Status = status
	return nil
}

func (m *mockPaymentRepo) FindNewestPending(_ context.Context, userID string, credits int) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var newest *model.Payment
	for _, p := range m.payments {
		if p.UserID != userID || p.CreditsPurchased != credits || p.Status != model.PaymentStatusPending {
			continue
		}
		if newest == nil || p.CreatedAt.After(newest.CreatedAt) {
			newest = p
		}
	}
	if newest == nil {
		return nil, apperror.NotFound("payment", fmt.Sprintf("pending/%s/%d", userID, credits))
	}
	result := *newest
	return &result, nil
}

func (m *mockPaymentRepo) get(t *testing.T, id string) *model.Payment {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		t.Fatalf("payment %s not found in mock", id)
	}
	result := *p
	return &result
}

// testLogger returns a logger that stays quiet unless something goes wrong.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// compile-time checks that the mocks track the real interfaces
var (
	_ repository.UserRepository    = (*mockUserRepo)(nil)
	_ repository.RemixRepository   = (*mockRemixRepo)(nil)
	_ repository.PaymentRepository = (*mockPaymentRepo)(nil)
)
