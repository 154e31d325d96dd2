package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// Memory is an in-process Gateway for tests. Signed URLs are fake but stable.
type Memory struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte

	// FailDelete makes Delete return an error while leaving objects intact.
	FailDelete bool
}

func NewMemory(bucket string) *Memory {
	return &Memory{bucket: bucket, objects: map[string][]byte{}}
}

func (m *Memory) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *Memory) SignedReadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("storage: no object %s", key)
	}
	return "https://" + m.bucket + ".test/" + key + "?sig=read", nil
}

func (m *Memory) SignedPutURL(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://" + m.bucket + ".test/" + key + "?sig=put", nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	if m.FailDelete {
		return errors.New("storage: delete unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *Memory) Bucket() string { return m.bucket }

// Has reports whether an object exists, for test assertions.
func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}
