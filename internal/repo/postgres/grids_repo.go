package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/allwinromario/AirQ/internal/domain/grid"
	"github.com/allwinromario/AirQ/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const gridColumns = `id, owner_id, name, source, row_count, col_count, lat_min, lat_max, lon_min, lon_max, value_data, parent_id, method, factor, created_at`

type GridsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewGridsRepo(pool *pgxpool.Pool, prom *observability.Prom) *GridsRepo {
	return &GridsRepo{pool: pool, prom: prom}
}

func (r *GridsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *GridsRepo) Create(ctx context.Context, g grid.Grid) error {
	return r.observe("grids.create", func() error {
		_, err := r.pool.Exec(ctx, `INSERT INTO grids(`+gridColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			g.ID, g.OwnerID, g.Name, g.Source, g.Rows, g.Cols,
			g.LatMin, g.LatMax, g.LonMin, g.LonMax,
			g.Values, g.ParentID, g.Method, g.Factor, g.CreatedAt,
		)
		return err
	})
}

func (r *GridsRepo) GetByID(ctx context.Context, id string) (grid.Grid, error) {
	var g grid.Grid

	err := r.observe("grids.get_by_id", func() error {
		return r.pool.QueryRow(ctx, `SELECT `+gridColumns+` FROM grids WHERE id = $1`, id).Scan(
			&g.ID, &g.OwnerID, &g.Name, &g.Source, &g.Rows, &g.Cols,
			&g.LatMin, &g.LatMax, &g.LonMin, &g.LonMax,
			&g.Values, &g.ParentID, &g.Method, &g.Factor, &g.CreatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return grid.Grid{}, grid.ErrNotFound
		}

		return grid.Grid{}, err
	}

	return g, nil
}

// ListCursor pages an owner's grids newest first. Values are left out of
// listings; a grid body can run to megabytes.
func (r *GridsRepo) ListCursor(ctx context.Context, ownerID string, limit int, afterCreatedAt time.Time, afterID string) ([]grid.Grid, bool, error) {
	var items []grid.Grid

	err := r.observe("grids.list_cursor", func() error {
		rows, err := r.pool.Query(ctx, `
			SELECT id, owner_id, name, source, row_count, col_count, lat_min, lat_max, lon_min, lon_max, parent_id, method, factor, created_at
			FROM grids
			WHERE owner_id = $1
			  AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`, ownerID, afterCreatedAt, afterID, limit+1)

		if err != nil {
			return err
		}

		defer rows.Close()

		for rows.Next() {
			var g grid.Grid

			err = rows.Scan(
				&g.ID, &g.OwnerID, &g.Name, &g.Source, &g.Rows, &g.Cols,
				&g.LatMin, &g.LatMax, &g.LonMin, &g.LonMax,
				&g.ParentID, &g.Method, &g.Factor, &g.CreatedAt,
			)

			if err != nil {
				return err
			}

			items = append(items, g)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, false, err
	}

	hasMore := len(items) > limit

	if hasMore {
		items = items[:limit]
	}

	return items, hasMore, nil
}

func (r *GridsRepo) Delete(ctx context.Context, id, ownerID string) error {
	var affected int64

	err := r.observe("grids.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM grids WHERE id = $1 AND owner_id = $2`, id, ownerID)

		if err != nil {
			return err
		}

		affected = tag.RowsAffected()
		return nil
	})

	if err != nil {
		return err
	}

	if affected == 0 {
		return grid.ErrNotFound
	}

	return nil
}
