package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"storysync/internal/domain"
)

// schemaVersion is tracked via PRAGMA user_version so a future upgrade
// can migrate in place.
const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS stories (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL,
	photo_url   TEXT NOT NULL,
	lat         REAL,
	lon         REAL,
	created_at  TEXT NOT NULL
)`

// ErrNotFound is returned by Get when no record exists for the id.
var ErrNotFound = errors.New("story not found")

// StoryStore is the local persistent store: a single keyed collection of
// story records over an embedded SQLite database. All operations open
// the schema on demand and are safe for a single logical writer.
type StoryStore struct {
	db *sqlx.DB
}

// Open connects to the database file (created if absent), applies the
// schema, and records the schema version. Idempotent.
func Open(path string) (*StoryStore, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// modernc's driver serializes access per connection; a single
	// connection avoids SQLITE_BUSY between concurrent operations.
	db.SetMaxOpenConns(1)

	store := &StoryStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// NewStoryStore wraps an already-open database, applying the schema.
// Used by tests and callers that manage the connection themselves.
func NewStoryStore(db *sqlx.DB) (*StoryStore, error) {
	store := &StoryStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *StoryStore) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	if err := s.db.Get(&version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version < schemaVersion {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
	}

	return nil
}

// Close closes the underlying database.
func (s *StoryStore) Close() error {
	return s.db.Close()
}

// storyRow maps a table row; created_at is stored as RFC 3339 text.
type storyRow struct {
	ID          string   `db:"id"`
	Name        string   `db:"name"`
	Description string   `db:"description"`
	PhotoURL    string   `db:"photo_url"`
	Lat         *float64 `db:"lat"`
	Lon         *float64 `db:"lon"`
	CreatedAt   string   `db:"created_at"`
}

func toRow(story domain.Story) storyRow {
	return storyRow{
		ID:          story.ID,
		Name:        story.Name,
		Description: story.Description,
		PhotoURL:    story.PhotoURL,
		Lat:         story.Lat,
		Lon:         story.Lon,
		CreatedAt:   story.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (r storyRow) toDomain() domain.Story {
	createdAt, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
	return domain.Story{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		PhotoURL:    r.PhotoURL,
		Lat:         r.Lat,
		Lon:         r.Lon,
		CreatedAt:   createdAt,
	}
}

const upsertQuery = `
	INSERT INTO stories (id, name, description, photo_url, lat, lon, created_at)
	VALUES (:id, :name, :description, :photo_url, :lat, :lon, :created_at)
	ON CONFLICT (id) DO UPDATE SET
		name = excluded.name,
		description = excluded.description,
		photo_url = excluded.photo_url,
		lat = excluded.lat,
		lon = excluded.lon,
		created_at = excluded.created_at`

// Put upserts a story by id, replacing any prior value in place.
func (s *StoryStore) Put(ctx context.Context, story domain.Story) error {
	if _, err := sqlx.NamedExecContext(ctx, s.executor(ctx), upsertQuery, toRow(story)); err != nil {
		return fmt.Errorf("put story %s: %w", story.ID, err)
	}
	return nil
}

// Get returns the story with the given id, or ErrNotFound.
func (s *StoryStore) Get(ctx context.Context, id string) (*domain.Story, error) {
	var row storyRow
	err := sqlx.GetContext(ctx, s.executor(ctx), &row,
		"SELECT id, name, description, photo_url, lat, lon, created_at FROM stories WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get story %s: %w", id, err)
	}

	story := row.toDomain()
	return &story, nil
}

// GetAll returns an unordered snapshot of every stored story.
func (s *StoryStore) GetAll(ctx context.Context) ([]domain.Story, error) {
	var rows []storyRow
	err := sqlx.SelectContext(ctx, s.executor(ctx), &rows,
		"SELECT id, name, description, photo_url, lat, lon, created_at FROM stories")
	if err != nil {
		return nil, fmt.Errorf("get all stories: %w", err)
	}

	stories := make([]domain.Story, 0, len(rows))
	for _, row := range rows {
		stories = append(stories, row.toDomain())
	}
	return stories, nil
}

// Delete removes the story with the given id. Deleting a missing id is
// not an error.
func (s *StoryStore) Delete(ctx context.Context, id string) error {
	if _, err := s.executor(ctx).ExecContext(ctx, "DELETE FROM stories WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete story %s: %w", id, err)
	}
	return nil
}

const insertQuery = `
	INSERT INTO stories (id, name, description, photo_url, lat, lon, created_at)
	VALUES (:id, :name, :description, :photo_url, :lat, :lon, :created_at)`

// ReplaceAll clears the collection and inserts every record of the new
// page in one transaction. The clear completes before any insert begins
// and the call resolves only after every insert has completed; a failure
// partway (a duplicate id in the page included) rolls the whole
// replacement back, leaving the prior contents intact.
func (s *StoryStore) ReplaceAll(ctx context.Context, stories []domain.Story) error {
	err := s.withTx(ctx, func(txCtx context.Context) error {
		if _, err := s.executor(txCtx).ExecContext(txCtx, "DELETE FROM stories"); err != nil {
			return fmt.Errorf("clear stories: %w", err)
		}
		for _, story := range stories {
			if _, err := sqlx.NamedExecContext(txCtx, s.executor(txCtx), insertQuery, toRow(story)); err != nil {
				return fmt.Errorf("insert story %s: %w", story.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace all: %w", err)
	}
	return nil
}

// Count returns the number of stored stories.
func (s *StoryStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, s.executor(ctx), &count, "SELECT COUNT(*) FROM stories"); err != nil {
		return 0, fmt.Errorf("count stories: %w", err)
	}
	return count, nil
}

// Clear removes every stored story.
func (s *StoryStore) Clear(ctx context.Context) error {
	if _, err := s.executor(ctx).ExecContext(ctx, "DELETE FROM stories"); err != nil {
		return fmt.Errorf("clear stories: %w", err)
	}
	return nil
}
