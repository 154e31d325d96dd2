package settings

import (
	"context"
	"errors"
	"sync"
)

// Store persists user settings.
type Store interface {
	ByUser(ctx context.Context, userID string) (UserSettings, error)
	Upsert(ctx context.Context, s UserSettings) error
}

// Resolve returns the user's stored settings, falling back to Default when no
// row exists yet.
func Resolve(ctx context.Context, store Store, userID string) (UserSettings, error) {
	s, err := store.ByUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Default(userID), nil
	}
	if err != nil {
		return UserSettings{}, err
	}
	return s, nil
}

// LanguageSource adapts a Store to the narrow language lookup the call
// service needs.
type LanguageSource struct {
	Store Store
}

func (l LanguageSource) SummaryLanguage(ctx context.Context, userID string) (string, error) {
	s, err := Resolve(ctx, l.Store, userID)
	if err != nil {
		return "", err
	}
	return s.SummaryLanguage, nil
}

// MemoryStore keeps settings in a map for tests.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]UserSettings
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[string]UserSettings{}}
}

func (m *MemoryStore) ByUser(_ context.Context, userID string) (UserSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[userID]
	if !ok {
		return UserSettings{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Upsert(_ context.Context, s UserSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.UserID] = s
	return nil
}
