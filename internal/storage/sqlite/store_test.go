package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"storysync/internal/domain"
)

type StoryStoreTestSuite struct {
	suite.Suite
	ctx   context.Context
	store *StoryStore
}

func (s *StoryStoreTestSuite) SetupTest() {
	s.ctx = context.Background()

	store, err := Open(filepath.Join(s.T().TempDir(), "storysync.db"))
	s.Require().NoError(err)
	s.store = store
}

func (s *StoryStoreTestSuite) TearDownTest() {
	_ = s.store.Close()
}

func TestStoryStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoryStoreTestSuite))
}

func ptr(v float64) *float64 { return &v }

func makeStory(id string) domain.Story {
	return domain.Story{
		ID:          id,
		Name:        "Author " + id,
		Description: "description for " + id,
		PhotoURL:    "https://photos.example.com/" + id + ".jpg",
		CreatedAt:   time.Date(2026, 5, 12, 9, 30, 0, 0, time.UTC),
	}
}

func (s *StoryStoreTestSuite) TestPutAndGet() {
	story := makeStory("s1")
	story.Lat = ptr(-6.2)
	story.Lon = ptr(106.8)

	s.Require().NoError(s.store.Put(s.ctx, story))

	got, err := s.store.Get(s.ctx, "s1")
	s.Require().NoError(err)
	s.Equal(story.ID, got.ID)
	s.Equal(story.Name, got.Name)
	s.Equal(story.PhotoURL, got.PhotoURL)
	s.Require().NotNil(got.Lat)
	s.Require().NotNil(got.Lon)
	s.InDelta(-6.2, *got.Lat, 1e-9)
	s.InDelta(106.8, *got.Lon, 1e-9)
	s.True(story.CreatedAt.Equal(got.CreatedAt))
}

func (s *StoryStoreTestSuite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, "nope")
	s.ErrorIs(err, ErrNotFound)
}

func (s *StoryStoreTestSuite) TestPutReplacesByID() {
	story := makeStory("s1")
	s.Require().NoError(s.store.Put(s.ctx, story))

	story.Description = "edited"
	s.Require().NoError(s.store.Put(s.ctx, story))

	got, err := s.store.Get(s.ctx, "s1")
	s.Require().NoError(err)
	s.Equal("edited", got.Description)

	count, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *StoryStoreTestSuite) TestDelete() {
	s.Require().NoError(s.store.Put(s.ctx, makeStory("s1")))
	s.Require().NoError(s.store.Delete(s.ctx, "s1"))

	_, err := s.store.Get(s.ctx, "s1")
	s.ErrorIs(err, ErrNotFound)

	// deleting a missing id is not an error
	s.NoError(s.store.Delete(s.ctx, "s1"))
}

func (s *StoryStoreTestSuite) TestReplaceAll() {
	s.Require().NoError(s.store.Put(s.ctx, makeStory("old")))

	page := []domain.Story{makeStory("s1"), makeStory("s2"), makeStory("s3")}
	s.Require().NoError(s.store.ReplaceAll(s.ctx, page))

	stories, err := s.store.GetAll(s.ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"s1", "s2", "s3"}, storyIDs(stories))

	_, err = s.store.Get(s.ctx, "old")
	s.ErrorIs(err, ErrNotFound)
}

func (s *StoryStoreTestSuite) TestReplaceAllIdempotent() {
	page := []domain.Story{makeStory("s1"), makeStory("s2")}

	s.Require().NoError(s.store.ReplaceAll(s.ctx, page))
	s.Require().NoError(s.store.ReplaceAll(s.ctx, page))

	count, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(len(page), count)

	stories, err := s.store.GetAll(s.ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"s1", "s2"}, storyIDs(stories))
}

func (s *StoryStoreTestSuite) TestReplaceAllWithEmptyPageClears() {
	s.Require().NoError(s.store.Put(s.ctx, makeStory("s1")))
	s.Require().NoError(s.store.ReplaceAll(s.ctx, nil))

	count, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, count)
}

func (s *StoryStoreTestSuite) TestReplaceAllFailurePartwayRollsBack() {
	s.Require().NoError(s.store.Put(s.ctx, makeStory("old-1")))
	s.Require().NoError(s.store.Put(s.ctx, makeStory("old-2")))

	// A duplicate id in the incoming page fails the second insert after
	// the clear and the first insert have already run inside the tx.
	err := s.store.ReplaceAll(s.ctx, []domain.Story{
		makeStory("new-1"),
		makeStory("new-1"),
	})
	s.Require().Error(err)
	s.ErrorContains(err, "replace all")
	s.ErrorContains(err, "new-1")

	stories, getErr := s.store.GetAll(s.ctx)
	s.Require().NoError(getErr)
	s.ElementsMatch([]string{"old-1", "old-2"}, storyIDs(stories))
}

func (s *StoryStoreTestSuite) TestReplaceAllCancelledContextLeavesStoreIntact() {
	s.Require().NoError(s.store.Put(s.ctx, makeStory("old-1")))

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	err := s.store.ReplaceAll(ctx, []domain.Story{makeStory("new-1")})
	s.Require().Error(err)

	stories, getErr := s.store.GetAll(s.ctx)
	s.Require().NoError(getErr)
	s.ElementsMatch([]string{"old-1"}, storyIDs(stories))
}

func (s *StoryStoreTestSuite) TestGetAllEmpty() {
	stories, err := s.store.GetAll(s.ctx)
	s.Require().NoError(err)
	s.Empty(stories)
}

func (s *StoryStoreTestSuite) TestOpenIdempotent() {
	path := filepath.Join(s.T().TempDir(), "reopen.db")

	first, err := Open(path)
	s.Require().NoError(err)
	s.Require().NoError(first.Put(s.ctx, makeStory("s1")))
	s.Require().NoError(first.Close())

	second, err := Open(path)
	s.Require().NoError(err)
	defer second.Close()

	got, err := second.Get(s.ctx, "s1")
	s.Require().NoError(err)
	s.Equal("s1", got.ID)
}

func storyIDs(stories []domain.Story) []string {
	ids := make([]string, 0, len(stories))
	for _, story := range stories {
		ids = append(ids, story.ID)
	}
	return ids
}
