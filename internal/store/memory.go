package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and standalone runs.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]string
	topics   map[string]uint64
	nextID   uint64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]string),
		topics:   make(map[string]uint64),
		nextID:   1,
	}
}

func (s *MemoryStore) AuthenticateAccount(ctx context.Context, login, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.accounts[strings.TrimSpace(login)]
	if !ok || stored != password {
		return ErrBadCredentials
	}
	return nil
}

func (s *MemoryStore) CreateAccount(ctx context.Context, login, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := strings.TrimSpace(login)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[key]; ok {
		return ErrLoginExists
	}
	s.accounts[key] = password
	return nil
}

func (s *MemoryStore) CreateTopic(ctx context.Context, name string) (Topic, error) {
	if err := ctx.Err(); err != nil {
		return Topic{}, err
	}
	key := strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.topics[key]; ok {
		return Topic{}, ErrTopicExists
	}
	id := s.nextID
	s.nextID++
	s.topics[key] = id
	return Topic{ID: id, Name: key}, nil
}

func (s *MemoryStore) GetTopic(ctx context.Context, id uint64) (Topic, error) {
	if err := ctx.Err(); err != nil {
		return Topic{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, topicID := range s.topics {
		if topicID == id {
			return Topic{ID: id, Name: name}, nil
		}
	}
	return Topic{}, ErrTopicNotFound
}

func (s *MemoryStore) ListTopics(ctx context.Context) ([]Topic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Topic, 0, len(s.topics))
	for name, id := range s.topics {
		out = append(out, Topic{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
