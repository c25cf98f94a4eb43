package adapters

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/satriahrh/ami/domain/entities"
	"github.com/satriahrh/ami/domain/repositories"
)

// MemoryChatRepository keeps chat history in process memory. It backs local
// development when no MongoDB is configured.
type MemoryChatRepository struct {
	mu      sync.RWMutex
	records map[string]*entities.ChatRecord   // id -> record
	byUser  map[string][]*entities.ChatRecord // user_id -> records, oldest first
}

var _ repositories.ChatRepository = (*MemoryChatRepository)(nil)

// NewMemoryChatRepository creates an empty in-memory chat repository
func NewMemoryChatRepository() *MemoryChatRepository {
	return &MemoryChatRepository{
		records: make(map[string]*entities.ChatRecord),
		byUser:  make(map[string][]*entities.ChatRecord),
	}
}

// Save implements repositories.ChatRepository
func (m *MemoryChatRepository) Save(ctx context.Context, record *entities.ChatRecord) error {
	if record == nil {
		return errors.New("chat record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	stored := *record
	m.records[stored.ID] = &stored
	m.byUser[stored.UserID] = append(m.byUser[stored.UserID], &stored)
	return nil
}

// ListByUser implements repositories.ChatRepository
func (m *MemoryChatRepository) ListByUser(ctx context.Context, userID string, opts repositories.ListOptions) ([]*entities.ChatRecord, int64, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = 50
	}

	m.mu.RLock()
	all := make([]*entities.ChatRecord, len(m.byUser[userID]))
	copy(all, m.byUser[userID])
	m.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := int64(len(all))
	start := (opts.Page - 1) * opts.Limit
	if start >= len(all) {
		return []*entities.ChatRecord{}, total, nil
	}
	end := start + opts.Limit
	if end > len(all) {
		end = len(all)
	}

	page := make([]*entities.ChatRecord, 0, end-start)
	for _, r := range all[start:end] {
		cp := *r
		page = append(page, &cp)
	}
	return page, total, nil
}

// Delete implements repositories.ChatRepository
func (m *MemoryChatRepository) Delete(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[id]
	if !ok || record.UserID != userID {
		return repositories.ErrNotFound
	}

	delete(m.records, id)
	owned := m.byUser[userID]
	for i, r := range owned {
		if r.ID == id {
			m.byUser[userID] = append(owned[:i], owned[i+1:]...)
			break
		}
	}
	return nil
}

// MemoryProfileRepository serves profiles registered in process memory
type MemoryProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]entities.UserProfile
}

var _ repositories.ProfileRepository = (*MemoryProfileRepository)(nil)

// NewMemoryProfileRepository creates an empty in-memory profile repository
func NewMemoryProfileRepository() *MemoryProfileRepository {
	return &MemoryProfileRepository{profiles: make(map[string]entities.UserProfile)}
}

// Put registers or replaces the profile of a user
func (m *MemoryProfileRepository) Put(userID string, profile entities.UserProfile) error {
	if err := profile.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[userID] = profile
	return nil
}

// GetProfile implements repositories.ProfileRepository
func (m *MemoryProfileRepository) GetProfile(ctx context.Context, userID string) (*entities.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	profile, ok := m.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &profile, nil
}
