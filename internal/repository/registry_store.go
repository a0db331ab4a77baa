package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ModelHub/internal/domain/models"
	"ModelHub/internal/domain/repository"
)

const registryColumns = "id, name, type, framework, parameters, accuracy, description, status, created_at, updated_at"

// SQLRegistry implements RegistryStore on database/sql.
type SQLRegistry struct {
	db      *sql.DB
	dialect Dialect
}

var _ repository.RegistryStore = (*SQLRegistry)(nil)

func NewSQLRegistry(db *sql.DB, d Dialect) *SQLRegistry {
	return &SQLRegistry{db: db, dialect: d}
}

func (r *SQLRegistry) Create(ctx context.Context, e *models.RegistryEntry) error {
	return r.write(ctx, e)
}

// Update rewrites the whole row. ClickHouse keeps the newer version by updated_at.
func (r *SQLRegistry) Update(ctx context.Context, e *models.RegistryEntry) error {
	if _, err := r.Get(ctx, e.ID); err != nil {
		return err
	}
	return r.write(ctx, e)
}

func (r *SQLRegistry) write(ctx context.Context, e *models.RegistryEntry) error {
	params := "{}"
	if len(e.Parameters) > 0 {
		b, err := json.Marshal(e.Parameters)
		if err != nil {
			return fmt.Errorf("%w: parameters: %v", models.ErrInvalidParameter, err)
		}
		params = string(b)
	}
	q := fmt.Sprintf("%s models (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", r.dialect.upsert(), registryColumns)
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.Name,
		e.Type,
		e.Framework,
		params,
		e.Accuracy,
		e.Description,
		e.Status,
		e.CreatedAt.UTC(),
		e.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("write registry entry %s: %w", e.ID, err)
	}
	return nil
}

func (r *SQLRegistry) Get(ctx context.Context, id string) (*models.RegistryEntry, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", registryColumns, r.dialect.from("models"))
	e, err := scanEntry(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("registry entry %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get registry entry %s: %w", id, err)
	}
	return e, nil
}

func (r *SQLRegistry) List(ctx context.Context, f models.RegistryFilter) ([]*models.RegistryEntry, int64, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, f.Type)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.MinAccuracy != nil {
		conds = append(conds, "accuracy >= ?")
		args = append(args, *f.MinAccuracy)
	}
	if f.MaxAccuracy != nil {
		conds = append(conds, "accuracy <= ?")
		args = append(args, *f.MaxAccuracy)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	table := r.dialect.from("models")

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM "+table+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count registry: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY created_at DESC, id LIMIT ? OFFSET ?", registryColumns, table, where)
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list registry: %w", err)
	}
	defer rows.Close()

	out := make([]*models.RegistryEntry, 0, limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan registry entry: %w", err)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (r *SQLRegistry) Delete(ctx context.Context, id string) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM models WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete registry entry %s: %w", id, err)
	}
	return nil
}

func scanEntry(row rowScanner) (*models.RegistryEntry, error) {
	var (
		e       models.RegistryEntry
		params  string
		created time.Time
		updated time.Time
	)
	if err := row.Scan(
		&e.ID,
		&e.Name,
		&e.Type,
		&e.Framework,
		&params,
		&e.Accuracy,
		&e.Description,
		&e.Status,
		&created,
		&updated,
	); err != nil {
		return nil, err
	}
	e.CreatedAt, e.UpdatedAt = created, updated
	if params != "" && params != "{}" {
		if err := json.Unmarshal([]byte(params), &e.Parameters); err != nil {
			return nil, fmt.Errorf("decode parameters: %w", err)
		}
	}
	return &e, nil
}
