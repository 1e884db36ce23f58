package model

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ TokensModel = (*defaultTokensModel)(nil)

type (
	// TokensModel reads the asset catalog maintained by the scraping
	// pipeline. The chart engine only consumes it; rows are owned elsewhere.
	TokensModel interface {
		FindOneByCmcId(ctx context.Context, cmcID string) (*Tokens, error)
		// ListWithCmcId returns every asset that has an upstream id, the set
		// the full reconciliation walks.
		ListWithCmcId(ctx context.Context) ([]*Tokens, error)
	}

	// Tokens mirrors the tokens catalog table.
	Tokens struct {
		Id        string         `db:"id"`
		Name      string         `db:"name"`
		Symbol    string         `db:"symbol"`
		CmcId     sql.NullString `db:"cmc_id"`
		CreatedAt time.Time      `db:"created_at"`
		UpdatedAt time.Time      `db:"updated_at"`
	}

	defaultTokensModel struct {
		conn sqlx.SqlConn
	}
)

// NewTokensModel returns a model for the tokens table.
func NewTokensModel(conn sqlx.SqlConn) TokensModel {
	return &defaultTokensModel{conn: conn}
}

func (m *defaultTokensModel) FindOneByCmcId(ctx context.Context, cmcID string) (*Tokens, error) {
	var row Tokens
	query := `
SELECT id, name, symbol, cmc_id, created_at, updated_at
FROM public.tokens
WHERE cmc_id = $1
LIMIT 1`
	if err := m.conn.QueryRowCtx(ctx, &row, query, cmcID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (m *defaultTokensModel) ListWithCmcId(ctx context.Context) ([]*Tokens, error) {
	var rows []*Tokens
	query := `
SELECT id, name, symbol, cmc_id, created_at, updated_at
FROM public.tokens
WHERE cmc_id IS NOT NULL AND cmc_id <> ''
ORDER BY id`
	if err := m.conn.QueryRowsCtx(ctx, &rows, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rows, nil
}
