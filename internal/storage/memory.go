package storage

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// Object is a stored blob with its declared metadata.
type Object struct {
	Data         []byte
	ContentType  string
	CacheControl string
}

// MemoryStore keeps objects in process. Writes copy the input; reads copy the
// output. Useful for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object // bucket/path -> object
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Object), now: time.Now}
}

func memKey(bucket, path string) string { return bucket + "/" + path }

// Put stores data, overwriting an existing object only when opts.Upsert.
func (m *MemoryStore) Put(ctx context.Context, bucket, path string, data []byte, opts PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey(bucket, path)
	if _, exists := m.objects[key]; exists && !opts.Upsert {
		return ErrObjectExists
	}
	m.objects[key] = Object{
		Data:         append([]byte(nil), data...),
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
	}
	return nil
}

// Sign returns a memory:// URL carrying the expiry as a unix timestamp.
func (m *MemoryStore) Sign(ctx context.Context, bucket, path string, expiry time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	_, ok := m.objects[memKey(bucket, path)]
	m.mu.RUnlock()
	if !ok {
		return "", ErrObjectNotFound
	}
	u := url.URL{Scheme: "memory", Host: bucket, Path: "/" + path}
	q := u.Query()
	q.Set("expires", fmt.Sprintf("%d", m.now().Add(expiry).Unix()))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Get returns a copy of the stored object.
func (m *MemoryStore) Get(bucket, path string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[memKey(bucket, path)]
	if !ok {
		return Object{}, false
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return obj, true
}

// Len is the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
