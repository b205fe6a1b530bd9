package domain

import "time"

// Story is the content record mirrored between the remote API and the
// local store. ID is the primary key everywhere; a put by an existing
// ID replaces the prior value (last-write-wins, no versioning).
type Story struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	PhotoURL    string    `json:"photoUrl" db:"photo_url"`
	Lat         *float64  `json:"lat,omitempty" db:"lat"`
	Lon         *float64  `json:"lon,omitempty" db:"lon"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// HasLocation reports whether both coordinates are set. Lat and Lon are
// either both present or both absent.
func (s Story) HasLocation() bool {
	return s.Lat != nil && s.Lon != nil
}

// ListOptions are the pagination and location filters for list reads.
type ListOptions struct {
	Page         int
	Size         int
	WithLocation bool
}

// StoryDraft is the payload for creating a new story. The photo is sent
// as a multipart file part; coordinates are optional as a pair.
type StoryDraft struct {
	Description string
	Photo       []byte
	PhotoName   string
	Lat         *float64
	Lon         *float64
}
