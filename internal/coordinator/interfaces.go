package coordinator

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"storysync/internal/domain"
)

// Gateway is the remote authoritative data source.
type Gateway interface {
	ListStories(ctx context.Context, opts domain.ListOptions) ([]domain.Story, error)
	GetStory(ctx context.Context, id string) (*domain.Story, error)
	CreateStory(ctx context.Context, draft domain.StoryDraft) error
}

// StoryStore is the local persistent store for story records.
type StoryStore interface {
	Get(ctx context.Context, id string) (*domain.Story, error)
	GetAll(ctx context.Context) ([]domain.Story, error)
	Put(ctx context.Context, story domain.Story) error
	Delete(ctx context.Context, id string) error
	ReplaceAll(ctx context.Context, stories []domain.Story) error
	Count(ctx context.Context) (int, error)
}

// Publisher emits sync events for downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event domain.SyncEvent) error
	Close() error
}
