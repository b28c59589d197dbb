// Package backup stores workflow definition snapshots outside the database.
package backup

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/linkflow-ai/flowmirror/internal/pkg/config"
)

const (
	StoreNone   = "none"
	StoreMemory = "memory"
	StoreS3     = "s3"
)

// Store is a flat key/value blob store.
type Store interface {
	Name() string
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, data []byte) error
	// DeletePrefix removes every object under prefix and returns how many
	// were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// WorkflowPrefix is the key prefix shared by every snapshot of a workflow.
func WorkflowPrefix(root, providerID, remoteWorkflowID string) string {
	return path.Join(root, providerID, remoteWorkflowID) + "/"
}

func SnapshotKey(root, providerID, remoteWorkflowID string, version int) string {
	return fmt.Sprintf("%sv%d.json", WorkflowPrefix(root, providerID, remoteWorkflowID), version)
}

// NewStore builds the store named by cfg.Store.
func NewStore(ctx context.Context, cfg config.BackupConfig, s3cfg config.S3Config) (Store, error) {
	switch strings.ToLower(cfg.Store) {
	case "", StoreNone:
		return NoopStore{}, nil
	case StoreMemory:
		return NewMemoryStore(), nil
	case StoreS3:
		return NewS3Store(ctx, s3cfg)
	default:
		return nil, fmt.Errorf("unknown backup store %q", cfg.Store)
	}
}

// NoopStore keeps nothing. Backups still refresh workflow content in the
// database.
type NoopStore struct{}

func (NoopStore) Name() string                                      { return StoreNone }
func (NoopStore) Exists(context.Context, string) (bool, error)      { return false, nil }
func (NoopStore) Put(context.Context, string, []byte) error         { return nil }
func (NoopStore) DeletePrefix(context.Context, string) (int, error) { return 0, nil }

type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Name() string { return StoreMemory }

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			delete(s.objects, key)
			n++
		}
	}
	return n, nil
}

// Keys lists stored keys in order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[key]
	return b, ok
}
