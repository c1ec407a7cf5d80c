package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"dataledge/internal/shared/storage/db"
)

const pgUniqueViolation = "23505"

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) CreateDataSource(ctx context.Context, ds DataSource) (DataSource, error) {
	const query = `
INSERT INTO data_sources (name, description, url, type_id, owner_tenant_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`
	err := r.DB.QueryRowContext(ctx, query,
		ds.Name,
		ds.Description,
		ds.URL,
		ds.TypeID,
		ds.OwnerTenantID,
		ds.CreatedAt,
		ds.UpdatedAt,
	).Scan(&ds.ID)
	if err != nil {
		return DataSource{}, err
	}
	return ds, nil
}

func (r *PGRepo) GetDataSource(ctx context.Context, id int64) (DataSource, error) {
	const query = `
SELECT ds.id, ds.name, ds.description, ds.url, ds.type_id, dt.name, ds.owner_tenant_id, ds.created_at, ds.updated_at
FROM data_sources ds
JOIN data_types dt ON dt.id = ds.type_id
WHERE ds.id = $1`
	ds, err := scanDataSource(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DataSource{}, ErrNotFound
		}
		return DataSource{}, err
	}
	return ds, nil
}

// UpdateDataSource never touches owner_tenant_id.
func (r *PGRepo) UpdateDataSource(ctx context.Context, ds DataSource) (DataSource, error) {
	const query = `
UPDATE data_sources
SET name = $1, description = $2, url = $3, type_id = $4, updated_at = $5
WHERE id = $6`
	res, err := r.DB.ExecContext(ctx, query, ds.Name, ds.Description, ds.URL, ds.TypeID, ds.UpdatedAt, ds.ID)
	if err != nil {
		return DataSource{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return DataSource{}, ErrNotFound
	}
	return ds, nil
}

func (r *PGRepo) DeleteDataSource(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM data_sources WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) ListDataSources(ctx context.Context, tenantID string, q Query) ([]DataSource, int64, error) {
	search := strings.TrimSpace(q.Search)
	pattern := "%" + escapeLike(search) + "%"

	const filter = `
FROM data_sources ds
JOIN data_types dt ON dt.id = ds.type_id
WHERE ds.owner_tenant_id = $1
  AND ($2 = '' OR ds.name ILIKE $3 OR ds.description ILIKE $3 OR ds.url ILIKE $3 OR dt.name ILIKE $3)`

	var total int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*)`+filter, tenantID, search, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []DataSource{}, 0, nil
	}

	query := `
SELECT ds.id, ds.name, ds.description, ds.url, ds.type_id, dt.name, ds.owner_tenant_id, ds.created_at, ds.updated_at` + filter + `
ORDER BY ds.created_at DESC, ds.id DESC
LIMIT $4 OFFSET $5`
	rows, err := r.DB.QueryContext(ctx, query, tenantID, search, pattern, q.PageSize, q.offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []DataSource{}
	for rows.Next() {
		ds, err := scanDataSource(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PGRepo) ListTypes(ctx context.Context) ([]DataType, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, name FROM data_types ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []DataType{}
	for rows.Next() {
		var t DataType
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PGRepo) GetType(ctx context.Context, id int64) (DataType, error) {
	var t DataType
	err := r.DB.QueryRowContext(ctx, `SELECT id, name FROM data_types WHERE id = $1`, id).Scan(&t.ID, &t.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DataType{}, ErrNotFound
		}
		return DataType{}, err
	}
	return t, nil
}

func (r *PGRepo) CreateBlob(ctx context.Context, b BlobRecord) (BlobRecord, error) {
	const query = `
INSERT INTO blob_records (file_name, owner_tenant_id, data_source_id, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id`
	err := r.DB.QueryRowContext(ctx, query, b.FileName, b.OwnerTenantID, b.DataSourceID, b.CreatedAt).Scan(&b.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return BlobRecord{}, ErrDuplicate
		}
		return BlobRecord{}, err
	}
	return b, nil
}

func (r *PGRepo) ListBlobs(ctx context.Context, tenantID string, dataSourceID int64, q Query) ([]BlobRecord, int64, error) {
	var total int64
	err := r.DB.QueryRowContext(ctx, `
SELECT COUNT(*) FROM blob_records WHERE owner_tenant_id = $1 AND data_source_id = $2`,
		tenantID, dataSourceID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []BlobRecord{}, 0, nil
	}

	rows, err := r.DB.QueryContext(ctx, `
SELECT id, file_name, created_at, owner_tenant_id, data_source_id
FROM blob_records
WHERE owner_tenant_id = $1 AND data_source_id = $2
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`, tenantID, dataSourceID, q.PageSize, q.offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []BlobRecord{}
	for rows.Next() {
		var b BlobRecord
		if err := rows.Scan(&b.ID, &b.FileName, &b.CreatedAt, &b.OwnerTenantID, &b.DataSourceID); err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PGRepo) BlobFileNames(ctx context.Context, tenantID string, dataSourceID int64) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT file_name FROM blob_records WHERE owner_tenant_id = $1 AND data_source_id = $2 ORDER BY id`,
		tenantID, dataSourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *PGRepo) DeleteBlobsByDataSource(ctx context.Context, dataSourceID int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM blob_records WHERE data_source_id = $1`, dataSourceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PGRepo) DeleteBlobsByName(ctx context.Context, tenantID string, fileNames []string) (int64, error) {
	if len(fileNames) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(fileNames)+1)
	args = append(args, tenantID)
	placeholders := make([]string, 0, len(fileNames))
	for i, name := range fileNames {
		args = append(args, name)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
	}
	query := `DELETE FROM blob_records WHERE owner_tenant_id = $1 AND file_name IN (` + strings.Join(placeholders, ", ") + `)`
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PGRepo) DeleteTenant(ctx context.Context, tenantID string) (TenantPurge, error) {
	var purge TenantPurge
	err := db.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM blob_records
WHERE owner_tenant_id = $1
   OR data_source_id IN (SELECT id FROM data_sources WHERE owner_tenant_id = $1)`, tenantID)
		if err != nil {
			return fmt.Errorf("delete blob records: %w", err)
		}
		if purge.BlobRecords, err = res.RowsAffected(); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `DELETE FROM data_sources WHERE owner_tenant_id = $1`, tenantID)
		if err != nil {
			return fmt.Errorf("delete data sources: %w", err)
		}
		purge.DataSources, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return TenantPurge{}, err
	}
	return purge, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataSource(row rowScanner) (DataSource, error) {
	var ds DataSource
	err := row.Scan(
		&ds.ID,
		&ds.Name,
		&ds.Description,
		&ds.URL,
		&ds.TypeID,
		&ds.TypeName,
		&ds.OwnerTenantID,
		&ds.CreatedAt,
		&ds.UpdatedAt,
	)
	return ds, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

var _ Repo = (*PGRepo)(nil)
