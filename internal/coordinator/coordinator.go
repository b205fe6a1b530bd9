package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"storysync/internal/config"
	"storysync/internal/domain"
	"storysync/internal/gateway"
	"storysync/internal/metrics"
)

// User-visible messages. The read path surfaces these when both the
// network and the local store come up empty; the write path prefers the
// gateway's own message.
const (
	msgNoOfflineData = "no offline data available"
	msgNotAvailable  = "story not available offline"
	msgCreateFailed  = "failed to add story"
	msgSaveFailed    = "failed to save story to favorites"
	msgRemoveFailed  = "failed to remove story from favorites"
	msgListFavFailed = "failed to load favorites"
)

// Service is the data synchronization coordinator. Reads try the
// network first, write results through to the local store, and fall
// back to stored data when the network is unavailable; every result is
// tagged with its provenance. No operation returns a Go error or
// panics: failures are reported through the result envelope.
type Service struct {
	gateway   Gateway
	store     StoryStore
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	config    config.SyncConfig
}

func NewService(
	gw Gateway,
	store StoryStore,
	publisher Publisher,
	logger *slog.Logger,
	m *metrics.Metrics,
	cfg config.SyncConfig,
) *Service {
	return &Service{
		gateway:   gw,
		store:     store,
		publisher: publisher,
		logger:    logger.With("component", "coordinator"),
		metrics:   m,
		config:    cfg,
	}
}

// FetchList returns a page of stories. On gateway success the result
// replaces the local store's full contents and is tagged "api"; on
// gateway failure the entire store is returned tagged "indexeddb". Only
// when both are empty does the call fail, and it is not retried.
func (s *Service) FetchList(ctx context.Context, opts domain.ListOptions) domain.Result[[]domain.Story] {
	stories, err := s.gateway.ListStories(ctx, opts)
	if err == nil {
		if storeErr := s.store.ReplaceAll(ctx, stories); storeErr != nil {
			// Live data is still good; the offline copy is just stale.
			s.logger.Warn("failed to mirror stories locally", "error", storeErr)
		} else {
			s.metrics.StoriesSynced(len(stories))
		}
		s.publishEvent(ctx, domain.SyncEvent{
			Action:    "refresh",
			Count:     len(stories),
			Timestamp: time.Now().UTC(),
		})
		return domain.Ok(stories, domain.SourceAPI)
	}

	s.logger.Warn("gateway list failed, reading local store", "error", err)
	s.metrics.StoreFallback("list")

	cached, storeErr := s.store.GetAll(ctx)
	if storeErr != nil {
		s.logger.Error("local store read failed", "error", storeErr)
		return domain.Fail[[]domain.Story](msgNoOfflineData)
	}
	if len(cached) == 0 {
		return domain.Fail[[]domain.Story](msgNoOfflineData)
	}

	return domain.Ok(cached, domain.SourceLocal)
}

// FetchOne returns a single story by id, with the same two-tier pattern
// as FetchList at record granularity.
func (s *Service) FetchOne(ctx context.Context, id string) domain.Result[*domain.Story] {
	story, err := s.gateway.GetStory(ctx, id)
	if err == nil {
		if storeErr := s.store.Put(ctx, *story); storeErr != nil {
			s.logger.Warn("failed to mirror story locally", "id", id, "error", storeErr)
		}
		return domain.Ok(story, domain.SourceAPI)
	}

	s.logger.Warn("gateway detail failed, reading local store", "id", id, "error", err)
	s.metrics.StoreFallback("detail")

	cached, storeErr := s.store.Get(ctx, id)
	if storeErr != nil {
		return domain.Fail[*domain.Story](msgNotAvailable)
	}

	return domain.Ok(cached, domain.SourceLocal)
}

// Create submits a new story. This always goes to the gateway: there is
// no offline queueing of writes, so creating a story while the network
// is down is a hard failure with the gateway's message when it has one.
func (s *Service) Create(ctx context.Context, draft domain.StoryDraft) domain.Result[struct{}] {
	if err := s.gateway.CreateStory(ctx, draft); err != nil {
		s.logger.Warn("create story failed", "error", err)

		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return domain.Fail[struct{}](apiErr.Message)
		}
		return domain.Fail[struct{}](msgCreateFailed)
	}

	s.publishEvent(ctx, domain.SyncEvent{
		Action:    "create",
		Count:     1,
		Timestamp: time.Now().UTC(),
	})

	return domain.Result[struct{}]{Message: "story added successfully"}
}

// SaveFavorite stores a story through the same path as a fetched one;
// there is no favorite flag, so a later full-list refresh that does not
// include the story will wipe it (documented limitation).
func (s *Service) SaveFavorite(ctx context.Context, story domain.Story) domain.Result[struct{}] {
	if err := s.store.Put(ctx, story); err != nil {
		s.logger.Error("save favorite failed", "id", story.ID, "error", err)
		return domain.Fail[struct{}](msgSaveFailed)
	}
	return domain.Result[struct{}]{Message: "story saved to favorites"}
}

// RemoveFavorite deletes a story from the local store.
func (s *Service) RemoveFavorite(ctx context.Context, id string) domain.Result[struct{}] {
	if err := s.store.Delete(ctx, id); err != nil {
		s.logger.Error("remove favorite failed", "id", id, "error", err)
		return domain.Fail[struct{}](msgRemoveFailed)
	}
	return domain.Result[struct{}]{Message: "story removed from favorites"}
}

// ListFavorites returns everything in the local store.
func (s *Service) ListFavorites(ctx context.Context) domain.Result[[]domain.Story] {
	stories, err := s.store.GetAll(ctx)
	if err != nil {
		s.logger.Error("list favorites failed", "error", err)
		return domain.Fail[[]domain.Story](msgListFavFailed)
	}
	return domain.Ok(stories, domain.SourceLocal)
}

// Refresh is the scheduler entry point: it performs a list fetch with
// the configured filters to keep the offline store warm and reports
// stats. This is the only coordinator method returning a Go error.
func (s *Service) Refresh(ctx context.Context) (*domain.SyncStats, error) {
	start := time.Now()

	result := s.FetchList(ctx, domain.ListOptions{
		Size:         s.config.PageSize,
		WithLocation: s.config.WithLocation,
	})
	if result.Error {
		return nil, errors.New(result.Message)
	}

	stats := &domain.SyncStats{
		Fetched:  len(result.Data),
		Source:   result.Source,
		Duration: time.Since(start),
	}
	if result.Source == domain.SourceAPI {
		stats.Stored = len(result.Data)
	}

	s.logger.Info("refresh completed",
		"fetched", stats.Fetched,
		"stored", stats.Stored,
		"source", stats.Source,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *Service) publishEvent(ctx context.Context, event domain.SyncEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish sync event", "action", event.Action, "error", err)
	}
}
