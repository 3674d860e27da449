package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"amsportal/internal/apperr"
	"amsportal/internal/models"
	"amsportal/internal/validation"
)

// NewLog is the input to AddLog. An empty UpdateTime means now.
type NewLog struct {
	AppID       int
	Description string
	UpdateDate  string
	UpdateTime  string
}

// AddLog appends a free-text note to an application's history.
func (s *Store) AddLog(ctx context.Context, in NewLog) error {
	in.Description = strings.TrimSpace(in.Description)
	in.UpdateTime = strings.TrimSpace(in.UpdateTime)

	ve := &validation.ValidationErrors{}
	validation.ValidatePositiveInt(ve, "app_id", in.AppID)
	validation.RequireField(ve, "update_description", in.Description)
	validation.ValidateMaxLength(ve, "update_description", in.Description, validation.MaxStringLength)
	validation.RequireField(ve, "update_date", in.UpdateDate)
	validation.ValidateDate(ve, "update_date", in.UpdateDate)
	validation.ValidateTime(ve, "update_time", in.UpdateTime)
	if ve.HasErrors() {
		return apperr.Validation(ve.Error())
	}

	clock := s.clock()
	if in.UpdateTime != "" {
		clock, _ = validation.NormalizeTime(in.UpdateTime)
	}

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := applicationExists(ctx, tx, in.AppID); err != nil {
			return err
		}
		return s.appendLog(ctx, tx, in.AppID, models.LogNote, in.Description, in.UpdateDate+" "+clock)
	})
}

// ListLogs returns an application's logs, most recent first.
func (s *Store) ListLogs(ctx context.Context, appID int) ([]models.LogEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, app_id, kind, description, update_date, created_at
		FROM application_logs WHERE app_id = ?
		ORDER BY update_date DESC, created_at DESC, id DESC`, appID)
	if err != nil {
		return nil, apperr.Database(fmt.Errorf("list logs: %w", err))
	}
	defer rows.Close()

	logs := []models.LogEntry{}
	for rows.Next() {
		var l models.LogEntry
		if err := rows.Scan(&l.ID, &l.AppID, &l.Kind, &l.Description, &l.UpdateDate, &l.CreatedAt); err != nil {
			return nil, apperr.Database(err)
		}
		l.IsPayment = l.Kind == models.LogPayment
		logs = append(logs, l)
	}
	return logs, apperr.Database(rows.Err())
}

func (s *Store) appendLog(ctx context.Context, tx *sql.Tx, appID int, kind models.LogKind, desc, updateDate string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO application_logs (app_id, kind, description, update_date, created_at)
		VALUES (?, ?, ?, ?, ?)`, appID, kind, desc, updateDate, s.stamp())
	if err != nil {
		return apperr.Database(fmt.Errorf("insert %s log: %w", kind, err))
	}
	return nil
}
