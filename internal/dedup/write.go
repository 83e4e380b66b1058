package dedup

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Insert stores rec under its composite key. When a record with the same key
// already exists, the stored record is returned with wasNew=false and rec is
// discarded. Concurrent inserts of one key are resolved inside the transaction.
func (s *Store) Insert(ctx context.Context, rec Record) (Record, bool, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	scores := rec.Scores
	if scores == nil {
		scores = []Score{}
	}

	scoresJSON, err := json.Marshal(scores)
	if err != nil {
		return Record{}, false, fmt.Errorf("dedup: marshal scores: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, false, unavailable("insert: begin tx", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO evaluations
		(posting_key, query_key, profile_key, source_id, url, title, company, location,
		 location_folded, description, scores, reasoning, overall, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (posting_key, query_key, profile_key) DO NOTHING
	`,
		string(rec.Key.Posting), string(rec.Key.Query), string(rec.Key.Profile),
		rec.Posting.SourceID, rec.Posting.URL, rec.Posting.Title, rec.Posting.Company,
		rec.Posting.Location, foldLocation(rec.Posting.Location), rec.Posting.Description,
		string(scoresJSON), rec.Reasoning, rec.Overall, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return Record{}, false, unavailable("insert", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return Record{}, false, unavailable("insert: rows affected", err)
	}

	stored, err := scanRecord(tx.QueryRowContext(ctx, selectRecordSQL+` WHERE posting_key = ? AND query_key = ? AND profile_key = ?`,
		string(rec.Key.Posting), string(rec.Key.Query), string(rec.Key.Profile),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, fmt.Errorf("dedup: insert %s: %w", keyString(rec.Key), ErrIntegrityViolation)
	}
	if err != nil {
		return Record{}, false, unavailable("insert: select stored", err)
	}

	if err := tx.Commit(); err != nil {
		return Record{}, false, unavailable("insert: commit", err)
	}

	wasNew := affected > 0
	if !wasNew {
		s.logger.Debug("evaluation already stored",
			zap.String("posting_key", string(rec.Key.Posting)),
			zap.String("query_key", string(rec.Key.Query)),
			zap.String("profile_key", string(rec.Key.Profile)),
		)
	}

	return *stored, wasNew, nil
}

func keyString(k Key) string {
	return fmt.Sprintf("(%s, %s, %s)", k.Posting, k.Query, k.Profile)
}
