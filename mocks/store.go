package mocks

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"felicity/storage"
)

type storedFile struct {
	info storage.FileInfo
	body []byte
}

// MemoryStore is a storage.Store kept in a map.
type MemoryStore struct {
	mu    sync.Mutex
	files map[string]storedFile
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{files: map[string]storedFile{}} }

func (m *MemoryStore) Put(_ context.Context, info storage.FileInfo, r io.Reader) (storage.FileInfo, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return storage.FileInfo{}, err
	}
	info.ID = uuid.NewString()
	info.Size = int64(len(body))
	info.UploadedAt = time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[info.ID] = storedFile{info: info, body: body}
	return info, nil
}

func (m *MemoryStore) Stat(_ context.Context, id string) (storage.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return storage.FileInfo{}, storage.ErrNotFound
	}
	return f.info, nil
}

func (m *MemoryStore) Open(_ context.Context, id string) (io.ReadCloser, storage.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return nil, storage.FileInfo{}, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(f.body)), f.info, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.files, id)
	return nil
}

// Len reports how many files are stored.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}
