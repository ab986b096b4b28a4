package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"driftwatch/internal/types"
)

// RegionRepository provides read access to the region lookup table. Regions
// themselves are owned by the surrounding application; the engine only
// resolves ingestion codes to identifiers.
type RegionRepository struct {
	db DBTX
}

// NewRegionRepository creates a new RegionRepository backed by the given
// database connection (pool or transaction).
func NewRegionRepository(db DBTX) *RegionRepository {
	return &RegionRepository{db: db}
}

// GetByCode resolves an ingestion region code. Returns (nil, nil) when the
// code is unknown; ingestion treats that as a skippable record, not an error.
func (r *RegionRepository) GetByCode(ctx context.Context, code string) (*types.Region, error) {
	var region types.Region
	err := r.db.QueryRow(ctx,
		`SELECT id, code, name FROM regions WHERE code = $1`,
		code,
	).Scan(&region.ID, &region.Code, &region.Name)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to resolve region code", err)
	}
	return &region, nil
}
