package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/codemind/internal/apperror"
	"github.com/sakif/codemind/internal/model"
	"github.com/sakif/codemind/internal/repository"
)

var _ repository.ErrorLogRepository = (*ErrorLogDB)(nil)

// ErrorLogDB is the error_logs table. Rows are only ever inserted, apart
// from the resolved flag.
type ErrorLogDB struct {
	conn *sql.DB
}

const errorLogColumns = `id, user_id, history_id, error_type, error_message, code_snippet,
	language, fix_attempted, fix_successful, ai_response, resolved, created_at`

func (e *ErrorLogDB) Create(ctx context.Context, log *model.ErrorLog) error {
	log.ID = xid.New().String()
	log.CreatedAt = now()

	_, err := e.conn.ExecContext(ctx,
		`INSERT INTO error_logs (`+errorLogColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID,
		log.UserID,
		log.HistoryID,
		log.ErrorType,
		log.ErrorMessage,
		log.CodeSnippet,
		log.Language,
		log.FixAttempted,
		log.FixSuccessful,
		log.AIResponse,
		log.Resolved,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating error log: %w", err)
	}
	return nil
}

func (e *ErrorLogDB) ListByUser(ctx context.Context, userID string, limit int) ([]model.ErrorLog, error) {
	limit, _ = pageBounds(limit, 0)

	rows, err := e.conn.QueryContext(ctx,
		`SELECT `+errorLogColumns+` FROM error_logs
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing error logs: %w", err)
	}
	defer rows.Close()

	logs := make([]model.ErrorLog, 0, limit)
	for rows.Next() {
		l, err := scanErrorLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating error logs: %w", err)
	}
	return logs, nil
}

func (e *ErrorLogDB) MarkResolved(ctx context.Context, userID, id string) (*model.ErrorLog, error) {
	row := e.conn.QueryRowContext(ctx,
		`UPDATE error_logs SET resolved = 1 WHERE id = ? AND user_id = ?
		 RETURNING `+errorLogColumns,
		id, userID,
	)
	l, err := scanErrorLog(row)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFoundMessage("Error log not found")
		}
		return nil, err
	}
	return l, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanErrorLog(s scanner) (*model.ErrorLog, error) {
	var l model.ErrorLog
	err := s.Scan(
		&l.ID, &l.UserID, &l.HistoryID, &l.ErrorType, &l.ErrorMessage, &l.CodeSnippet,
		&l.Language, &l.FixAttempted, &l.FixSuccessful, &l.AIResponse, &l.Resolved, &l.CreatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: scanning error log: %w", err)
	}
	return &l, nil
}
