package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/codemind/internal/apperror"
	"github.com/sakif/codemind/internal/model"
	"github.com/sakif/codemind/internal/repository"
)

var _ repository.HistoryRepository = (*HistoryDB)(nil)

// HistoryDB is the history table plus its history_fixes child table.
type HistoryDB struct {
	conn *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const historyColumns = `id, user_id, title, language, framework, styling, prompt,
	enhanced_prompt, generated_code, edited_code, ai_provider, is_favorite, tags,
	view_count, created_at, updated_at`

const summaryColumns = `id, user_id, title, language, framework, styling, prompt,
	ai_provider, is_favorite, tags, view_count, created_at, updated_at`

var sortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"title":     "title",
	"viewCount": "view_count",
	"language":  "language",
}

func historyNotFound() error {
	return apperror.NotFoundMessage("Code history not found")
}

func (h *HistoryDB) Create(ctx context.Context, rec *model.History) error {
	t := now()
	rec.ID = xid.New().String()
	rec.CreatedAt = t
	rec.UpdatedAt = t
	rec.Tags = model.NormalizeTags(rec.Tags)

	tags, err := encodeTags(rec.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}

	_, err = h.conn.ExecContext(ctx,
		`INSERT INTO history (`+historyColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.UserID,
		rec.Title,
		rec.Language,
		rec.Framework,
		rec.Styling,
		rec.Prompt,
		rec.EnhancedPrompt,
		rec.GeneratedCode,
		rec.EditedCode,
		rec.AIProvider,
		rec.IsFavorite,
		tags,
		rec.ViewCount,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating history: %w", err)
	}
	return nil
}

// List returns one page of the owner's records and the total number matching
// the filter. Large text fields are not even selected.
func (h *HistoryDB) List(ctx context.Context, userID string, f repository.HistoryFilter) ([]model.HistorySummary, int, error) {
	where := []string{"user_id = ?"}
	args := []any{userID}

	if f.Language != "" {
		where = append(where, "language = ?")
		args = append(args, f.Language)
	}
	if f.FavoritesOnly {
		where = append(where, "is_favorite = 1")
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + escapeLike(strings.ToLower(s)) + "%"
		where = append(where, `(LOWER(title) LIKE ? ESCAPE '\'
			OR LOWER(prompt) LIKE ? ESCAPE '\'
			OR EXISTS (SELECT 1 FROM json_each(history.tags) WHERE LOWER(json_each.value) LIKE ? ESCAPE '\'))`)
		args = append(args, pattern, pattern, pattern)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := h.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM history WHERE `+clause, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting history: %w", err)
	}

	key, desc := f.SortField()
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	limit, offset := pageBounds(f.Limit, f.Offset)

	rows, err := h.conn.QueryContext(ctx,
		`SELECT `+summaryColumns+` FROM history WHERE `+clause+
			` ORDER BY `+sortColumns[key]+` `+dir+`, id `+dir+` LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing history: %w", err)
	}
	defer rows.Close()

	out := make([]model.HistorySummary, 0, limit)
	for rows.Next() {
		var (
			s    model.HistorySummary
			tags string
		)
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.Title, &s.Language, &s.Framework, &s.Styling, &s.Prompt,
			&s.AIProvider, &s.IsFavorite, &tags, &s.ViewCount, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning history row: %w", err)
		}
		if s.Tags, err = decodeTags(tags); err != nil {
			return nil, 0, fmt.Errorf("sqlite: history %s: %w", s.ID, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating history: %w", err)
	}
	return out, total, nil
}

func (h *HistoryDB) GetByID(ctx context.Context, userID, id string) (*model.History, error) {
	return getHistory(ctx, h.conn, userID, id)
}

func getHistory(ctx context.Context, q queryer, userID, id string) (*model.History, error) {
	var (
		rec  model.History
		tags string
	)
	err := q.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM history WHERE id = ? AND user_id = ?`,
		id, userID,
	).Scan(
		&rec.ID, &rec.UserID, &rec.Title, &rec.Language, &rec.Framework, &rec.Styling,
		&rec.Prompt, &rec.EnhancedPrompt, &rec.GeneratedCode, &rec.EditedCode,
		&rec.AIProvider, &rec.IsFavorite, &tags, &rec.ViewCount, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, historyNotFound()
		}
		return nil, fmt.Errorf("sqlite: getting history %s: %w", id, err)
	}
	if rec.Tags, err = decodeTags(tags); err != nil {
		return nil, fmt.Errorf("sqlite: history %s: %w", id, err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT error, fixed_code, created_at FROM history_fixes
		 WHERE history_id = ? ORDER BY id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading fixes for %s: %w", id, err)
	}
	defer rows.Close()

	rec.FixAttempts = []model.FixAttempt{}
	for rows.Next() {
		var fix model.FixAttempt
		if err := rows.Scan(&fix.Error, &fix.FixedCode, &fix.Timestamp); err != nil {
			return nil, fmt.Errorf("sqlite: scanning fix row: %w", err)
		}
		rec.FixAttempts = append(rec.FixAttempts, fix)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating fixes: %w", err)
	}
	return &rec, nil
}

// IncrementViewCount does not touch updated_at; viewing is not editing.
func (h *HistoryDB) IncrementViewCount(ctx context.Context, userID, id string) (int, error) {
	var views int
	err := h.conn.QueryRowContext(ctx,
		`UPDATE history SET view_count = view_count + 1
		 WHERE id = ? AND user_id = ? RETURNING view_count`,
		id, userID,
	).Scan(&views)
	if err != nil {
		if isNoRows(err) {
			return 0, historyNotFound()
		}
		return 0, fmt.Errorf("sqlite: incrementing views for %s: %w", id, err)
	}
	return views, nil
}

// Update applies upd inside a transaction and returns the stored result.
func (h *HistoryDB) Update(ctx context.Context, userID, id string, upd repository.HistoryUpdate) (*model.History, error) {
	var out *model.History
	err := h.inTx(ctx, func(tx *sql.Tx) error {
		rec, err := getHistory(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if upd.Title != nil {
			rec.Title = *upd.Title
		}
		if upd.EditedCode != nil {
			rec.EditedCode = *upd.EditedCode
		}
		if upd.IsFavorite != nil {
			rec.IsFavorite = *upd.IsFavorite
		}
		if upd.Tags != nil {
			rec.Tags = model.NormalizeTags(upd.Tags)
		}
		rec.UpdatedAt = now()

		tags, err := encodeTags(rec.Tags)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE history SET title = ?, edited_code = ?, is_favorite = ?, tags = ?, updated_at = ?
			 WHERE id = ? AND user_id = ?`,
			rec.Title, rec.EditedCode, rec.IsFavorite, tags, rec.UpdatedAt, id, userID,
		); err != nil {
			return fmt.Errorf("updating history %s: %w", id, err)
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, wrapTxErr("updating history", err)
	}
	return out, nil
}

func (h *HistoryDB) Delete(ctx context.Context, userID, id string) error {
	res, err := h.conn.ExecContext(ctx,
		`DELETE FROM history WHERE id = ? AND user_id = ?`, id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting history %s: %w", id, err)
	}
	return rowsAffectedOrNotFound(res, historyNotFound())
}

func (h *HistoryDB) ToggleFavorite(ctx context.Context, userID, id string) (bool, error) {
	var fav bool
	err := h.conn.QueryRowContext(ctx,
		`UPDATE history SET is_favorite = NOT is_favorite, updated_at = ?
		 WHERE id = ? AND user_id = ? RETURNING is_favorite`,
		now(), id, userID,
	).Scan(&fav)
	if err != nil {
		if isNoRows(err) {
			return false, historyNotFound()
		}
		return false, fmt.Errorf("sqlite: toggling favorite for %s: %w", id, err)
	}
	return fav, nil
}

func (h *HistoryDB) AppendFix(ctx context.Context, userID, id string, fix model.FixAttempt) error {
	if fix.Timestamp.IsZero() {
		fix.Timestamp = now()
	}
	err := h.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE history SET edited_code = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
			fix.FixedCode, now(), id, userID,
		)
		if err != nil {
			return fmt.Errorf("setting edited code on %s: %w", id, err)
		}
		if err := rowsAffectedOrNotFound(res, historyNotFound()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO history_fixes (history_id, error, fixed_code, created_at) VALUES (?, ?, ?, ?)`,
			id, fix.Error, fix.FixedCode, fix.Timestamp.UTC(),
		); err != nil {
			return fmt.Errorf("inserting fix for %s: %w", id, err)
		}
		return nil
	})
	return wrapTxErr("appending fix", err)
}

func (h *HistoryDB) Stats(ctx context.Context, userID string, since time.Time) (*model.HistoryStats, error) {
	stats := &model.HistoryStats{ByLanguage: []model.LanguageCount{}}
	err := h.conn.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(is_favorite), 0),
		        COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0)
		 FROM history WHERE user_id = ?`,
		since.UTC(), userID,
	).Scan(&stats.Total, &stats.Favorites, &stats.RecentActivity)
	if err != nil {
		return nil, fmt.Errorf("sqlite: aggregating history stats: %w", err)
	}

	rows, err := h.conn.QueryContext(ctx,
		`SELECT language, COUNT(*) FROM history WHERE user_id = ? GROUP BY language`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: grouping history by language: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var lc model.LanguageCount
		if err := rows.Scan(&lc.Language, &lc.Count); err != nil {
			return nil, fmt.Errorf("sqlite: scanning language count: %w", err)
		}
		stats.ByLanguage = append(stats.ByLanguage, lc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating language counts: %w", err)
	}
	model.SortLanguageCounts(stats.ByLanguage)
	return stats, nil
}

func (h *HistoryDB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := h.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// wrapTxErr leaves domain errors untouched so their messages reach the
// client, and prefixes everything else.
func wrapTxErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("sqlite: %s: %w", op, err)
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = repository.DefaultPageSize
	}
	if limit > repository.MaxPageSize {
		limit = repository.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
