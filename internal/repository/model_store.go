package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ModelHub/internal/domain/models"
	"ModelHub/internal/domain/repository"
)

const modelColumns = "id, name, family, parameters, blob, metrics, forecast_horizon, validation_split, status, error, created_at"

// SQLModelStore implements ModelStore on database/sql for ClickHouse and SQLite.
type SQLModelStore struct {
	db      *sql.DB
	dialect Dialect
}

var _ repository.ModelStore = (*SQLModelStore)(nil)

// NewSQLModelStore creates a model store. The caller owns db unless Close is called.
func NewSQLModelStore(db *sql.DB, d Dialect) *SQLModelStore {
	return &SQLModelStore{db: db, dialect: d}
}

func (s *SQLModelStore) Init(ctx context.Context) error {
	return InitSchema(ctx, s.db, s.dialect)
}

func (s *SQLModelStore) Save(ctx context.Context, rec *models.ModelRecord) error {
	params := string(rec.Parameters)
	if params == "" {
		params = "{}"
	}
	metrics := ""
	if rec.Metrics != nil {
		b, err := json.Marshal(rec.Metrics)
		if err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
		metrics = string(b)
	}
	createdAt := rec.CreatedAt.UTC()
	if rec.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	q := fmt.Sprintf("%s time_series_models (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.dialect.upsert(), modelColumns)
	_, err := s.db.ExecContext(ctx, q,
		rec.ID,
		rec.Name,
		string(rec.Family),
		params,
		rec.Blob,
		metrics,
		rec.ForecastHorizon,
		rec.ValidationSplit,
		string(rec.Status),
		rec.Error,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("save model %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLModelStore) Get(ctx context.Context, id string) (*models.ModelRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", modelColumns, s.dialect.from("time_series_models"))
	rec, err := scanModel(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("model %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get model %s: %w", id, err)
	}
	return rec, nil
}

// List returns records newest first without blobs, plus the total match count.
func (s *SQLModelStore) List(ctx context.Context, f models.ModelFilter) ([]*models.ModelRecord, int64, error) {
	where := ""
	var args []interface{}
	if f.Family != "" {
		where = " WHERE family = ?"
		args = append(args, string(f.Family))
	}
	table := s.dialect.from("time_series_models")

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+table+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count models: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	cols := "id, name, family, parameters, '' AS blob, metrics, forecast_horizon, validation_split, status, error, created_at"
	q := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY created_at DESC, id LIMIT ? OFFSET ?", cols, table, where)
	rows, err := s.db.QueryContext(ctx, q, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	out := make([]*models.ModelRecord, 0, limit)
	for rows.Next() {
		rec, err := scanModel(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan model: %w", err)
		}
		rec.Blob = nil
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

func (s *SQLModelStore) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM time_series_models WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete model %s: %w", id, err)
	}
	return nil
}

func (s *SQLModelStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLModelStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanModel(row rowScanner) (*models.ModelRecord, error) {
	var (
		rec     models.ModelRecord
		family  string
		params  string
		metrics string
		status  string
		blob    []byte
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Name,
		&family,
		&params,
		&blob,
		&metrics,
		&rec.ForecastHorizon,
		&rec.ValidationSplit,
		&status,
		&rec.Error,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.Family = models.Family(family)
	rec.Status = models.RunState(status)
	rec.Parameters = json.RawMessage(params)
	if len(blob) > 0 {
		rec.Blob = blob
	}
	if metrics != "" {
		var m models.EvaluationMetrics
		if err := json.Unmarshal([]byte(metrics), &m); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
		rec.Metrics = &m
	}
	return &rec, nil
}
