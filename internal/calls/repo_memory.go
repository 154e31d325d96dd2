package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and early development.
// It mirrors the FK-ordered cascade semantics of the Postgres store.
type MemoryStore struct {
	mu sync.Mutex

	Calls          map[string]Call
	Transcriptions map[string]Transcription
	Summaries      map[string]Summary
	Notifications  map[string]Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Calls:          map[string]Call{},
		Transcriptions: map[string]Transcription{},
		Summaries:      map[string]Summary{},
		Notifications:  map[string]Notification{},
	}
}

func (m *MemoryStore) CreateCall(ctx context.Context, c Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.Calls {
		if existing.StorageKey == c.StorageKey {
			return ErrDuplicateKey
		}
	}
	m.Calls[c.ID] = c
	return nil
}

func (m *MemoryStore) GetCall(ctx context.Context, id string) (Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Calls[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) GetCallByStorageKey(ctx context.Context, key string) (Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Calls {
		if c.StorageKey == key {
			return c, nil
		}
	}
	return Call{}, ErrNotFound
}

func (m *MemoryStore) ListCallsByUser(ctx context.Context, userID string, page, pageSize int) ([]Call, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]Call, 0)
	for _, c := range m.Calls {
		if c.UserID == userID {
			all = append(all, c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	start := (page - 1) * pageSize
	if start >= total {
		return []Call{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (m *MemoryStore) CountCallsCreatedBetween(ctx context.Context, userID string, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c.UserID != userID {
			continue
		}
		if c.CreatedAt.Before(from) || !c.CreatedAt.Before(to) {
			continue
		}
		n++
	}
	return n, nil
}

func (m *MemoryStore) UpdateCallStatus(ctx context.Context, id string, status CallStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Calls[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	m.Calls[id] = c
	return nil
}

func (m *MemoryStore) SetCallFailed(ctx context.Context, id, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Calls[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = CallStatusFailed
	c.ErrorMessage = TruncateError(errorMessage)
	c.UpdatedAt = time.Now().UTC()
	m.Calls[id] = c
	return nil
}

func (m *MemoryStore) MarkCallTranscribed(ctx context.Context, id, language string, durationSeconds float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Calls[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = CallStatusTranscribed
	c.LanguageDetected = language
	c.DurationSeconds = durationSeconds
	c.UpdatedAt = time.Now().UTC()
	m.Calls[id] = c
	return nil
}

func (m *MemoryStore) ResetForReprocess(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Calls[id]
	if !ok {
		return ErrNotFound
	}
	m.deleteChildrenLocked(id)
	c.Status = CallStatusUploaded
	c.ErrorMessage = ""
	c.LanguageDetected = ""
	c.UpdatedAt = time.Now().UTC()
	m.Calls[id] = c
	return nil
}

func (m *MemoryStore) DeleteCallTree(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Calls[id]; !ok {
		return ErrNotFound
	}
	m.deleteChildrenLocked(id)
	delete(m.Calls, id)
	return nil
}

// deleteChildrenLocked mirrors FK order: notifications -> summaries -> transcriptions.
func (m *MemoryStore) deleteChildrenLocked(callID string) {
	for sid, s := range m.Summaries {
		if s.CallID != callID {
			continue
		}
		for nid, n := range m.Notifications {
			if n.SummaryID == sid {
				delete(m.Notifications, nid)
			}
		}
		delete(m.Summaries, sid)
	}
	for tid, t := range m.Transcriptions {
		if t.CallID == callID {
			delete(m.Transcriptions, tid)
		}
	}
}

func (m *MemoryStore) CreateTranscription(ctx context.Context, t Transcription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.Transcriptions {
		if existing.CallID == t.CallID {
			return ErrDuplicateKey
		}
	}
	m.Transcriptions[t.ID] = t
	return nil
}

func (m *MemoryStore) GetTranscription(ctx context.Context, id string) (Transcription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Transcriptions[id]
	if !ok {
		return Transcription{}, ErrNotFound
	}
	return t, nil
}

func (m *MemoryStore) GetTranscriptionByCall(ctx context.Context, callID string) (Transcription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.Transcriptions {
		if t.CallID == callID {
			return t, nil
		}
	}
	return Transcription{}, ErrNotFound
}

func (m *MemoryStore) CreateSummary(ctx context.Context, s Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Summaries[s.ID] = s
	return nil
}

func (m *MemoryStore) GetSummary(ctx context.Context, id string) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Summaries[id]
	if !ok {
		return Summary{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) LatestSummaryByCall(ctx context.Context, callID string) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest Summary
	found := false
	for _, s := range m.Summaries {
		if s.CallID != callID {
			continue
		}
		if !found || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
			found = true
		}
	}
	if !found {
		return Summary{}, ErrNotFound
	}
	return latest, nil
}

func (m *MemoryStore) CreateNotification(ctx context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notifications[n.ID] = n
	return nil
}

func (m *MemoryStore) GetNotification(ctx context.Context, id string) (Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.Notifications[id]
	if !ok {
		return Notification{}, ErrNotFound
	}
	return n, nil
}

func (m *MemoryStore) UpdateNotification(ctx context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Notifications[n.ID]; !ok {
		return ErrNotFound
	}
	m.Notifications[n.ID] = n
	return nil
}

func (m *MemoryStore) ListNotificationsBySummary(ctx context.Context, summaryID string) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, 0)
	for _, n := range m.Notifications {
		if n.SummaryID == summaryID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListNotificationsByUser(ctx context.Context, userID string, page, pageSize int) ([]Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]Notification, 0)
	for _, n := range m.Notifications {
		s, ok := m.Summaries[n.SummaryID]
		if !ok {
			continue
		}
		c, ok := m.Calls[s.CallID]
		if !ok || c.UserID != userID {
			continue
		}
		all = append(all, n)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	start := (page - 1) * pageSize
	if start >= total {
		return []Notification{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}
