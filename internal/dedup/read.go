package dedup

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/hh-checkpoint/internal/identity"
)

const selectRecordSQL = `
	SELECT id, posting_key, query_key, profile_key, source_id, url, title, company,
	       location, description, scores, reasoning, overall, created_at
	FROM evaluations`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec        Record
		posting    string
		query      string
		profile    string
		scoresJSON string
		createdAt  int64
	)

	err := row.Scan(&rec.ID, &posting, &query, &profile,
		&rec.Posting.SourceID, &rec.Posting.URL, &rec.Posting.Title, &rec.Posting.Company,
		&rec.Posting.Location, &rec.Posting.Description,
		&scoresJSON, &rec.Reasoning, &rec.Overall, &createdAt)
	if err != nil {
		return nil, err
	}

	rec.Key = Key{
		Posting: identity.PostingKey(posting),
		Query:   identity.QueryKey(query),
		Profile: identity.ProfileKey(profile),
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()

	if err := json.Unmarshal([]byte(scoresJSON), &rec.Scores); err != nil {
		return nil, fmt.Errorf("decode scores of record %d: %w", rec.ID, err)
	}

	return &rec, nil
}

// Exists reports whether an evaluation is stored under k. It uses the unique index.
func (s *Store) Exists(ctx context.Context, k Key) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM evaluations
		WHERE posting_key = ? AND query_key = ? AND profile_key = ?
		LIMIT 1
	`, string(k.Posting), string(k.Query), string(k.Profile)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("exists", err)
	}
	return true, nil
}

// Get returns the record stored under k, or nil when there is none.
func (s *Store) Get(ctx context.Context, k Key) (*Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, selectRecordSQL+` WHERE posting_key = ? AND query_key = ? AND profile_key = ?`,
		string(k.Posting), string(k.Query), string(k.Profile),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	return rec, nil
}

// Query runs a filtered, sorted and paginated query. Filtering, ordering and
// paging are done by SQLite.
func (s *Store) Query(ctx context.Context, f Filter) (*Page, error) {
	f = f.normalized()
	where, args := buildWhere(f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM evaluations`+where, args...).Scan(&total); err != nil {
		return nil, unavailable("query: count", err)
	}

	page := &Page{
		TotalCount: total,
		Items:      []Record{},
		Page:       f.Page,
		PageSize:   f.PageSize,
	}

	offset := (f.Page - 1) * f.PageSize
	if total == 0 || offset >= total {
		return page, nil
	}

	query := selectRecordSQL + where + ` ORDER BY ` + orderClause(f.SortBy) + ` LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, f.PageSize, offset)...)
	if err != nil {
		return nil, unavailable("query", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, unavailable("query: scan", err)
		}
		page.Items = append(page.Items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query: iterate", err)
	}

	return page, nil
}

func buildWhere(f Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)

	if f.QueryKey != "" {
		clauses = append(clauses, "query_key = ?")
		args = append(args, string(f.QueryKey))
	}
	if f.ProfileKey != "" {
		clauses = append(clauses, "profile_key = ?")
		args = append(args, string(f.ProfileKey))
	}
	if f.MinScore != nil {
		clauses = append(clauses, "overall >= ?")
		args = append(args, *f.MinScore)
	}
	if loc := strings.TrimSpace(f.LocationContains); loc != "" {
		// SQLite folds only ASCII, so the match runs against the Go-folded column.
		clauses = append(clauses, "instr(location_folded, ?) > 0")
		args = append(args, foldLocation(loc))
	}
	if !f.DateFrom.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.DateFrom.UnixNano())
	}
	if !f.DateTo.IsZero() {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.DateTo.UnixNano())
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func orderClause(sortBy SortBy) string {
	switch sortBy {
	case SortByScore:
		return "overall DESC, created_at DESC, id DESC"
	case SortByCompany:
		return "company COLLATE NOCASE ASC, id ASC"
	default:
		return "created_at DESC, id DESC"
	}
}

// foldLocation is the case-insensitive form of a location, Cyrillic included.
func foldLocation(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
