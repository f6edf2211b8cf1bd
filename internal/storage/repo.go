package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var ErrNotFound = errors.New("not found")

func (s *Store) GetSettings(ctx context.Context) (SettingsRow, error) {
	q := s.sql.Select("provider", "enc_api_key", "base_url", "model", "temperature", "updated_at").
		From("settings").
		Where(sq.Eq{"id": 1})
	query, args, err := q.ToSql()
	if err != nil {
		return SettingsRow{}, fmt.Errorf("build get settings query: %w", err)
	}

	var row SettingsRow
	var temperature sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&row.Provider,
		&row.EncAPIKey,
		&row.BaseURL,
		&row.Model,
		&temperature,
		&row.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SettingsRow{}, ErrNotFound
		}
		return SettingsRow{}, fmt.Errorf("get settings: %w", err)
	}
	if temperature.Valid {
		row.Temperature = &temperature.Float64
	}
	return row, nil
}

func (s *Store) UpsertSettings(ctx context.Context, row SettingsRow) error {
	var temperature any
	if row.Temperature != nil {
		temperature = *row.Temperature
	}
	q := s.sql.Insert("settings").
		Columns("id", "provider", "enc_api_key", "base_url", "model", "temperature", "updated_at").
		Values(1, row.Provider, row.EncAPIKey, row.BaseURL, row.Model, temperature, nowExpr(s.driver)).
		Suffix("ON CONFLICT(id) DO UPDATE SET provider=excluded.provider, enc_api_key=excluded.enc_api_key, base_url=excluded.base_url, model=excluded.model, temperature=excluded.temperature, updated_at=excluded.updated_at")

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build upsert settings query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

func (s *Store) LogAction(ctx context.Context, e AuditEntry) error {
	if e.MetaJSON == "" || !json.Valid([]byte(e.MetaJSON)) {
		e.MetaJSON = "{}"
	}

	q := s.sql.Insert("audit_log").
		Columns("container_id", "action", "meta_json").
		Values(e.ContainerID, e.Action, e.MetaJSON)
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) RecentActions(ctx context.Context, containerID string, limit uint64) ([]AuditEntry, error) {
	if limit == 0 {
		limit = 50
	}
	q := s.sql.Select("container_id", "action", "meta_json", "created_at").
		From("audit_log").
		Where(sq.Eq{"container_id": containerID}).
		OrderBy("created_at DESC").
		Limit(limit)
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent actions query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent actions: %w", err)
	}
	defer rows.Close()

	out := make([]AuditEntry, 0)
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ContainerID, &e.Action, &e.MetaJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return out, nil
}

func nowExpr(driver string) any {
	if driver == "postgres" {
		return sq.Expr("NOW()")
	}
	return sq.Expr("CURRENT_TIMESTAMP")
}
