package model

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ PricePointsModel = (*defaultPricePointsModel)(nil)

type (
	// PricePointsModel is the durable tier for chart observations. Rows are
	// identified by (asset_id, ts_ms); writes are idempotent upserts and rows
	// are never deleted by the chart engine.
	PricePointsModel interface {
		Upsert(ctx context.Context, row *PricePoints) error
		// UpsertBatch writes one batch in a single transaction. Batches are
		// independent; a failed batch leaves previously committed batches
		// intact.
		UpsertBatch(ctx context.Context, rows []*PricePoints) error
		// RangeByAsset returns rows inside [startMs, endMs] ordered by ts_ms.
		// A limit <= 0 returns the full window.
		RangeByAsset(ctx context.Context, assetID string, startMs, endMs int64, limit int, ascending bool) ([]*PricePoints, error)
		CountByAsset(ctx context.Context, assetID string) (int64, error)
	}

	// PricePoints mirrors the token_price_points table.
	PricePoints struct {
		Id               int64     `db:"id"`
		AssetId          string    `db:"asset_id"`
		CmcId            string    `db:"cmc_id"`
		TsMs             int64     `db:"ts_ms"`
		Price            float64   `db:"price"`
		Volume           float64   `db:"volume"`
		MarketCap        float64   `db:"market_cap"`
		PercentChange24h float64   `db:"percent_change_24h"`
		CreatedAt        time.Time `db:"created_at"`
		UpdatedAt        time.Time `db:"updated_at"`
	}

	defaultPricePointsModel struct {
		conn sqlx.SqlConn
	}
)

// NewPricePointsModel returns a model for the token_price_points table.
func NewPricePointsModel(conn sqlx.SqlConn) PricePointsModel {
	return &defaultPricePointsModel{conn: conn}
}

const upsertPricePointQuery = `
INSERT INTO public.token_price_points (
    asset_id, cmc_id, ts_ms, price, volume, market_cap, percent_change_24h, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, NOW(), NOW()
)
ON CONFLICT (asset_id, ts_ms) DO UPDATE SET
    cmc_id = EXCLUDED.cmc_id,
    price = EXCLUDED.price,
    volume = EXCLUDED.volume,
    market_cap = EXCLUDED.market_cap,
    percent_change_24h = EXCLUDED.percent_change_24h,
    updated_at = NOW();`

func (m *defaultPricePointsModel) Upsert(ctx context.Context, row *PricePoints) error {
	_, err := m.conn.ExecCtx(ctx, upsertPricePointQuery,
		row.AssetId, row.CmcId, row.TsMs, row.Price, row.Volume, row.MarketCap, row.PercentChange24h)
	if err != nil && isUniqueViolation(err) {
		// Concurrent writer landed the same identity first; converged state
		// is what we wanted anyway.
		return nil
	}
	return err
}

func (m *defaultPricePointsModel) UpsertBatch(ctx context.Context, rows []*PricePoints) error {
	if len(rows) == 0 {
		return nil
	}
	return m.conn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		for _, row := range rows {
			if _, err := session.ExecCtx(ctx, upsertPricePointQuery,
				row.AssetId, row.CmcId, row.TsMs, row.Price, row.Volume, row.MarketCap, row.PercentChange24h); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *defaultPricePointsModel) RangeByAsset(ctx context.Context, assetID string, startMs, endMs int64, limit int, ascending bool) ([]*PricePoints, error) {
	order := "ASC"
	if !ascending {
		order = "DESC"
	}
	query := `
SELECT id, asset_id, cmc_id, ts_ms, price, volume, market_cap, percent_change_24h, created_at, updated_at
FROM public.token_price_points
WHERE asset_id = $1 AND ts_ms >= $2 AND ts_ms <= $3
ORDER BY ts_ms ` + order
	args := []any{assetID, startMs, endMs}
	if limit > 0 {
		query += `
LIMIT $4`
		args = append(args, limit)
	}
	var rows []*PricePoints
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rows, nil
}

func (m *defaultPricePointsModel) CountByAsset(ctx context.Context, assetID string) (int64, error) {
	var count int64
	err := m.conn.QueryRowCtx(ctx, &count,
		`SELECT COUNT(*) FROM public.token_price_points WHERE asset_id = $1`, assetID)
	return count, err
}

func isUniqueViolation(err error) bool {
	pgErr, ok := err.(*pq.Error)
	return ok && pgErr.Code == "23505"
}
