package users

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/zappro/internal/common"
	"github.com/dmitrijs2005/zappro/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps users in process memory. It backs development
// runs without a database and service tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]string
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    map[string]*models.User{},
		byEmail: map[string]string{},
		now:     time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[user.Email]; ok {
		return nil, common.ErrorAlreadyExists
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := r.now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	stored := *user
	r.byID[user.ID] = &stored
	r.byEmail[user.Email] = user.ID
	return user, nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u := *r.byID[id]
	return &u, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u := *stored
	return &u, nil
}

func (r *MemoryRepository) UpdatePasswordHash(_ context.Context, id string, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	stored.PasswordHash = hash
	stored.UpdatedAt = r.now().UTC()
	return nil
}
