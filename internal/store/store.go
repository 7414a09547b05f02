package store

import (
	"context"
	"errors"
)

var (
	ErrBadCredentials = errors.New("store: login or password incorrect")
	ErrLoginExists    = errors.New("store: login exists")
	ErrTopicExists    = errors.New("store: topic exists")
	ErrTopicNotFound  = errors.New("store: topic not found")
)

// Topic is durable topic metadata.
type Topic struct {
	ID   uint64
	Name string
}

// Store is the synchronous persistence boundary the session engine calls
// into. Implementations must be safe for concurrent use and serialize
// their own access.
type Store interface {
	// AuthenticateAccount verifies credentials. ErrBadCredentials on mismatch.
	AuthenticateAccount(ctx context.Context, login, password string) error
	// CreateAccount registers a new account. ErrLoginExists on duplicate login.
	CreateAccount(ctx context.Context, login, password string) error
	// CreateTopic persists a new named topic. ErrTopicExists on duplicate name.
	CreateTopic(ctx context.Context, name string) (Topic, error)
	// GetTopic resolves one topic by id. ErrTopicNotFound when absent.
	GetTopic(ctx context.Context, id uint64) (Topic, error)
	// ListTopics returns all topics ordered by id.
	ListTopics(ctx context.Context) ([]Topic, error)
}
