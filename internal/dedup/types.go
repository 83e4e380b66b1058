package dedup

import (
	"time"

	"github.com/spigell/hh-checkpoint/internal/identity"
)

// Key is the composite identity of an evaluation.
type Key struct {
	Posting identity.PostingKey `json:"posting_key"`
	Query   identity.QueryKey   `json:"query_key"`
	Profile identity.ProfileKey `json:"profile_key"`
}

// PostingSnapshot is a denormalized copy of a posting taken at match time.
type PostingSnapshot struct {
	SourceID    string `json:"source_id,omitempty"`
	URL         string `json:"url,omitempty"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
}

// Score is a single named dimension of an evaluation, 0..10.
type Score struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// Record is a stored evaluation. Records are append-only.
type Record struct {
	ID        int64           `json:"id"`
	Key       Key             `json:"key"`
	Posting   PostingSnapshot `json:"posting"`
	Scores    []Score         `json:"scores"`
	Reasoning string          `json:"reasoning"`
	// Overall is evaluator-authoritative and is not necessarily the mean of Scores.
	Overall   int       `json:"overall"`
	CreatedAt time.Time `json:"created_at"`
}

// SortBy selects the ordering of Query results.
type SortBy string

const (
	SortByScore   SortBy = "score"
	SortByDate    SortBy = "date"
	SortByCompany SortBy = "company"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// Filter describes a Query. Zero values mean "no constraint".
type Filter struct {
	QueryKey         identity.QueryKey   `json:"query_key,omitempty"`
	ProfileKey       identity.ProfileKey `json:"profile_key,omitempty"`
	MinScore         *int                `json:"min_score,omitempty"`
	LocationContains string              `json:"location_substring,omitempty"`
	DateFrom         time.Time           `json:"date_from,omitempty"`
	DateTo           time.Time           `json:"date_to,omitempty"`
	SortBy           SortBy              `json:"sort_by,omitempty"`
	Page             int                 `json:"page,omitempty"`
	PageSize         int                 `json:"page_size,omitempty"`
}

// Page is one page of Query results.
type Page struct {
	TotalCount int      `json:"total_count"`
	Items      []Record `json:"items"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
}

func (f Filter) normalized() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	switch f.SortBy {
	case SortByScore, SortByDate, SortByCompany:
	default:
		f.SortBy = SortByDate
	}
	return f
}
