package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"storysync/internal/config"
	"storysync/internal/coordinator/mocks"
	"storysync/internal/domain"
	"storysync/internal/gateway"
	"storysync/internal/storage/sqlite"
)

type CoordinatorTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	gateway   *mocks.MockGateway
	store     *mocks.MockStoryStore
	publisher *mocks.MockPublisher

	service *Service
	cfg     config.SyncConfig
	logger  *slog.Logger
}

func (s *CoordinatorTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.gateway = mocks.NewMockGateway(s.ctrl)
	s.store = mocks.NewMockStoryStore(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.cfg = config.SyncConfig{
		Interval:     5 * time.Minute,
		PageSize:     20,
		WithLocation: true,
	}

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.service = NewService(s.gateway, s.store, s.publisher, s.logger, nil, s.cfg)
}

func (s *CoordinatorTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestCoordinatorTestSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorTestSuite))
}

func makeStory(id string) domain.Story {
	return domain.Story{
		ID:          id,
		Name:        "Author " + id,
		Description: "description for " + id,
		PhotoURL:    "https://photos.example.com/" + id + ".jpg",
		CreatedAt:   time.Date(2026, 5, 12, 9, 30, 0, 0, time.UTC),
	}
}

func (s *CoordinatorTestSuite) TestFetchList_NetworkSuccess() {
	ctx := context.Background()
	page := []domain.Story{makeStory("s1")}
	opts := domain.ListOptions{Size: 10}

	s.gateway.EXPECT().ListStories(ctx, opts).Return(page, nil)
	s.store.EXPECT().ReplaceAll(ctx, page).Return(nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil)

	result := s.service.FetchList(ctx, opts)

	s.False(result.Error)
	s.Equal(domain.SourceAPI, result.Source)
	s.Len(result.Data, 1)
	s.Equal("s1", result.Data[0].ID)
}

func (s *CoordinatorTestSuite) TestFetchList_NetworkFailureFallsBackToStore() {
	ctx := context.Background()
	cached := []domain.Story{makeStory("s1")}

	s.gateway.EXPECT().ListStories(ctx, gomock.Any()).Return(nil, errors.New("connection refused"))
	s.store.EXPECT().GetAll(ctx).Return(cached, nil)

	result := s.service.FetchList(ctx, domain.ListOptions{})

	s.False(result.Error)
	s.Equal(domain.SourceLocal, result.Source)
	s.Len(result.Data, 1)
	s.Equal("s1", result.Data[0].ID)
}

func (s *CoordinatorTestSuite) TestFetchList_BothEmpty() {
	ctx := context.Background()

	s.gateway.EXPECT().ListStories(ctx, gomock.Any()).Return(nil, errors.New("connection refused"))
	s.store.EXPECT().GetAll(ctx).Return(nil, nil)

	result := s.service.FetchList(ctx, domain.ListOptions{})

	s.True(result.Error)
	s.Equal("no offline data available", result.Message)
	s.Empty(result.Source)
}

func (s *CoordinatorTestSuite) TestFetchList_StoreFailureDuringFallback() {
	ctx := context.Background()

	s.gateway.EXPECT().ListStories(ctx, gomock.Any()).Return(nil, errors.New("timeout"))
	s.store.EXPECT().GetAll(ctx).Return(nil, errors.New("database is locked"))

	result := s.service.FetchList(ctx, domain.ListOptions{})

	s.True(result.Error)
	s.Equal("no offline data available", result.Message)
}

func (s *CoordinatorTestSuite) TestFetchList_WriteThroughFailureStillReturnsLiveData() {
	ctx := context.Background()
	page := []domain.Story{makeStory("s1")}

	s.gateway.EXPECT().ListStories(ctx, gomock.Any()).Return(page, nil)
	s.store.EXPECT().ReplaceAll(ctx, page).Return(errors.New("disk full"))
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil)

	result := s.service.FetchList(ctx, domain.ListOptions{})

	s.False(result.Error)
	s.Equal(domain.SourceAPI, result.Source)
}

func (s *CoordinatorTestSuite) TestFetchList_PublisherNil() {
	ctx := context.Background()
	page := []domain.Story{makeStory("s1")}

	service := NewService(s.gateway, s.store, nil, s.logger, nil, s.cfg)

	s.gateway.EXPECT().ListStories(ctx, gomock.Any()).Return(page, nil)
	s.store.EXPECT().ReplaceAll(ctx, page).Return(nil)

	result := service.FetchList(ctx, domain.ListOptions{})

	s.False(result.Error)
	s.Equal(domain.SourceAPI, result.Source)
}

func (s *CoordinatorTestSuite) TestFetchOne_NetworkSuccess() {
	ctx := context.Background()
	story := makeStory("s1")

	s.gateway.EXPECT().GetStory(ctx, "s1").Return(&story, nil)
	s.store.EXPECT().Put(ctx, story).Return(nil)

	result := s.service.FetchOne(ctx, "s1")

	s.False(result.Error)
	s.Equal(domain.SourceAPI, result.Source)
	s.Equal("s1", result.Data.ID)
}

func (s *CoordinatorTestSuite) TestFetchOne_NetworkFailureFallsBackToStore() {
	ctx := context.Background()
	story := makeStory("s1")

	s.gateway.EXPECT().GetStory(ctx, "s1").Return(nil, errors.New("connection refused"))
	s.store.EXPECT().Get(ctx, "s1").Return(&story, nil)

	result := s.service.FetchOne(ctx, "s1")

	s.False(result.Error)
	s.Equal(domain.SourceLocal, result.Source)
	s.Equal("s1", result.Data.ID)
}

func (s *CoordinatorTestSuite) TestFetchOne_AbsentEverywhere() {
	ctx := context.Background()

	s.gateway.EXPECT().GetStory(ctx, "s1").Return(nil, errors.New("connection refused"))
	s.store.EXPECT().Get(ctx, "s1").Return(nil, sqlite.ErrNotFound)

	result := s.service.FetchOne(ctx, "s1")

	s.True(result.Error)
	s.Equal("story not available offline", result.Message)
}

func (s *CoordinatorTestSuite) TestCreate_Success() {
	ctx := context.Background()
	draft := domain.StoryDraft{Description: "hello", Photo: []byte{1}, PhotoName: "p.jpg"}

	s.gateway.EXPECT().CreateStory(ctx, draft).Return(nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil)

	result := s.service.Create(ctx, draft)

	s.False(result.Error)
	s.Empty(result.Source)
}

func (s *CoordinatorTestSuite) TestCreate_SurfacesGatewayMessageVerbatim() {
	ctx := context.Background()
	draft := domain.StoryDraft{Description: "hello"}

	s.gateway.EXPECT().CreateStory(ctx, draft).Return(&gateway.APIError{Message: `"photo" is required`})

	result := s.service.Create(ctx, draft)

	s.True(result.Error)
	s.Equal(`"photo" is required`, result.Message)
}

func (s *CoordinatorTestSuite) TestCreate_OfflineIsHardFailure() {
	ctx := context.Background()
	draft := domain.StoryDraft{Description: "hello"}

	s.gateway.EXPECT().CreateStory(ctx, draft).Return(errors.New("dial tcp: no route to host"))

	result := s.service.Create(ctx, draft)

	s.True(result.Error)
	s.Equal("failed to add story", result.Message)
}

func (s *CoordinatorTestSuite) TestSaveFavorite() {
	ctx := context.Background()
	story := makeStory("s1")

	s.store.EXPECT().Put(ctx, story).Return(nil)

	result := s.service.SaveFavorite(ctx, story)
	s.False(result.Error)
}

func (s *CoordinatorTestSuite) TestSaveFavorite_StoreFailure() {
	ctx := context.Background()
	story := makeStory("s1")

	s.store.EXPECT().Put(ctx, story).Return(errors.New("quota exceeded"))

	result := s.service.SaveFavorite(ctx, story)
	s.True(result.Error)
	s.Equal("failed to save story to favorites", result.Message)
}

func (s *CoordinatorTestSuite) TestRemoveFavorite() {
	ctx := context.Background()

	s.store.EXPECT().Delete(ctx, "s1").Return(nil)

	result := s.service.RemoveFavorite(ctx, "s1")
	s.False(result.Error)
}

func (s *CoordinatorTestSuite) TestListFavorites() {
	ctx := context.Background()
	cached := []domain.Story{makeStory("s1"), makeStory("s2")}

	s.store.EXPECT().GetAll(ctx).Return(cached, nil)

	result := s.service.ListFavorites(ctx)
	s.False(result.Error)
	s.Equal(domain.SourceLocal, result.Source)
	s.Len(result.Data, 2)
}

func (s *CoordinatorTestSuite) TestListFavorites_StoreFailure() {
	ctx := context.Background()

	s.store.EXPECT().GetAll(ctx).Return(nil, errors.New("database is locked"))

	result := s.service.ListFavorites(ctx)
	s.True(result.Error)
	s.Equal("failed to load favorites", result.Message)
}

func (s *CoordinatorTestSuite) TestRefresh() {
	ctx := context.Background()
	page := []domain.Story{makeStory("s1"), makeStory("s2")}

	s.gateway.EXPECT().ListStories(ctx, domain.ListOptions{Size: 20, WithLocation: true}).Return(page, nil)
	s.store.EXPECT().ReplaceAll(ctx, page).Return(nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil)

	stats, err := s.service.Refresh(ctx)

	s.NoError(err)
	s.Equal(2, stats.Fetched)
	s.Equal(2, stats.Stored)
	s.Equal(domain.SourceAPI, stats.Source)
}

func (s *CoordinatorTestSuite) TestRefresh_TotalUnavailability() {
	ctx := context.Background()

	s.gateway.EXPECT().ListStories(ctx, gomock.Any()).Return(nil, errors.New("offline"))
	s.store.EXPECT().GetAll(ctx).Return(nil, nil)

	stats, err := s.service.Refresh(ctx)

	s.Error(err)
	s.Nil(stats)
	s.Contains(err.Error(), "no offline data")
}

// Write-through and wipe semantics against the real store.

func TestCoordinatorWithRealStore(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "storysync.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	service := NewService(gw, store, nil, logger, nil, config.SyncConfig{PageSize: 20})

	t.Run("successful list fetch mirrors the page exactly", func(t *testing.T) {
		page := []domain.Story{makeStory("s1"), makeStory("s2")}
		gw.EXPECT().ListStories(ctx, gomock.Any()).Return(page, nil)

		result := service.FetchList(ctx, domain.ListOptions{})
		if result.Error {
			t.Fatalf("unexpected error: %s", result.Message)
		}

		stored, err := store.GetAll(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(stored) != len(page) {
			t.Fatalf("store has %d stories, want %d", len(stored), len(page))
		}
	})

	t.Run("favorite not in next page is wiped by refresh", func(t *testing.T) {
		// Favorites share the stories collection with no flag, so a
		// full-list replace drops any favorite missing from the page.
		favorite := makeStory("fav1")
		if result := service.SaveFavorite(ctx, favorite); result.Error {
			t.Fatalf("save favorite failed: %s", result.Message)
		}

		page := []domain.Story{makeStory("s3")}
		gw.EXPECT().ListStories(ctx, gomock.Any()).Return(page, nil)

		if result := service.FetchList(ctx, domain.ListOptions{}); result.Error {
			t.Fatalf("fetch list failed: %s", result.Message)
		}

		if _, err := store.Get(ctx, "fav1"); err == nil {
			t.Fatal("favorite survived the refresh, expected it to be wiped")
		}
	})

	t.Run("offline detail read serves the mirrored record", func(t *testing.T) {
		gw.EXPECT().GetStory(ctx, "s3").Return(nil, errors.New("offline"))

		result := service.FetchOne(ctx, "s3")
		if result.Error {
			t.Fatalf("unexpected error: %s", result.Message)
		}
		if result.Source != domain.SourceLocal {
			t.Fatalf("source = %s, want %s", result.Source, domain.SourceLocal)
		}
	})
}
