package headhunter

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/hh-checkpoint/internal/acquisition"
	"github.com/spigell/hh-checkpoint/internal/dedup"
	"github.com/spigell/hh-checkpoint/internal/extraction"
	"github.com/spigell/hh-checkpoint/internal/utils"
)

// SourceConfig tunes how search pages are turned into postings.
type SourceConfig struct {
	// Params are the base search parameters; Text is replaced by the query.
	Params SearchParams
	// Detailed fetches every vacancy to get its full description.
	Detailed bool
	// Delay is waited before every request after the first one.
	Delay time.Duration
}

// Source serves hh.ru search results page by page.
type Source struct {
	client *Client
	cfg    SourceConfig
	logger *zap.Logger
}

var _ acquisition.Source = (*Source)(nil)

func NewSource(client *Client, cfg SourceConfig, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{client: client, cfg: cfg, logger: logger}
}

// FetchPage returns the postings of the 1-based page. Past the last page
// it returns an empty slice.
func (s *Source) FetchPage(ctx context.Context, query string, page int) ([]acquisition.Posting, error) {
	if page > 1 {
		if err := utils.WaitFor(ctx, s.cfg.Delay); err != nil {
			return nil, err
		}
	}

	params := s.cfg.Params
	params.Text = query

	result, err := s.client.SearchPage(ctx, params, page-1)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("search page received",
		zap.String("query", query),
		zap.Int("page", page),
		zap.Int("pages", result.Pages),
		zap.Int("found", result.Found),
		zap.Int("items", result.Vacancies.Len()),
	)

	if page > result.Pages {
		return nil, nil
	}

	postings := make([]acquisition.Posting, 0, result.Vacancies.Len())
	for _, vacancy := range result.Vacancies.Items {
		if vacancy == nil || vacancy.Archived {
			continue
		}

		if s.cfg.Detailed {
			if err := utils.WaitFor(ctx, s.cfg.Delay); err != nil {
				return nil, err
			}
			full, err := s.client.GetVacancy(ctx, vacancy.ID)
			if err != nil {
				s.logger.Warn("fetching detailed vacancy failed, using search snippet",
					zap.String("vacancy_id", vacancy.ID),
					zap.Error(err),
				)
			} else {
				vacancy = full
			}
		}

		postings = append(postings, ToPosting(vacancy))
	}

	return postings, nil
}

// ToPosting maps a vacancy to a posting snapshot. The public vacancy page
// is the identifier.
func ToPosting(v *Vacancy) acquisition.Posting {
	description := extraction.PlainText(v.Description)
	if description == "" {
		description = extraction.PlainText(v.Summary())
	}

	url := strings.TrimSpace(v.AlternateURL)

	return acquisition.Posting{
		RawID: url,
		Snapshot: dedup.PostingSnapshot{
			SourceID:    v.ID,
			URL:         url,
			Title:       strings.TrimSpace(v.Name),
			Company:     strings.TrimSpace(v.Employer.Name),
			Location:    strings.TrimSpace(v.Area.Name),
			Description: description,
		},
	}
}
