package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ferreirogomes/lastro/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const (
	poolColumns    = `id, creator, name, description, total_units, unit_share, total_deposited, total_distributed, created_at`
	depositColumns = `id, pool_id, depositor, amount, status, created_at`
	payoutColumns  = `id, deposit_id, pool_id, asset_id, holder, amount, receipt, status, created_at`
)

// CreatePool grava o pool e todos os seus ativos numa única transação.
func (d *DB) CreatePool(ctx context.Context, pool models.RoyaltyPool, assets []models.Asset, entries []models.LedgerEntry) error {
	return d.inTx(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`INSERT INTO royalty_pools (` + poolColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		_, err := tx.ExecContext(ctx, query,
			pool.ID, pool.Creator, pool.Name, pool.Description, pool.TotalUnits, pool.UnitShare,
			pool.TotalDeposited, pool.TotalDistributed, pool.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("falha ao salvar pool de royalties %s: %w", pool.ID, err)
		}
		for _, a := range assets {
			if err := insertAsset(ctx, tx, a); err != nil {
				return err
			}
		}
		return insertEntries(ctx, tx, entries)
	})
}

// GetPool busca um pool pelo ID.
func (d *DB) GetPool(ctx context.Context, id string) (models.RoyaltyPool, error) {
	var p models.RoyaltyPool
	err := sqlx.GetContext(ctx, d, &p, d.Rebind(`SELECT `+poolColumns+` FROM royalty_pools WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RoyaltyPool{}, ErrNotFound
	}
	if err != nil {
		return models.RoyaltyPool{}, fmt.Errorf("falha ao buscar pool %s: %w", id, err)
	}
	return p, nil
}

// ListPools lista todos os pools, mais recentes primeiro.
func (d *DB) ListPools(ctx context.Context) ([]models.RoyaltyPool, error) {
	var pools []models.RoyaltyPool
	if err := sqlx.SelectContext(ctx, d, &pools, `SELECT `+poolColumns+` FROM royalty_pools ORDER BY created_at DESC, id`); err != nil {
		return nil, fmt.Errorf("falha ao listar pools: %w", err)
	}
	return pools, nil
}

// InsertDeposit grava o marcador de intenção de uma rodada de distribuição.
func (d *DB) InsertDeposit(ctx context.Context, dep models.RoyaltyDeposit) error {
	query := d.Rebind(`INSERT INTO royalty_deposits (` + depositColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := d.ExecContext(ctx, query, dep.ID, dep.PoolID, dep.Depositor, dep.Amount, string(dep.Status), dep.CreatedAt); err != nil {
		return fmt.Errorf("falha ao salvar depósito %s: %w", dep.ID, err)
	}
	return nil
}

// Deposits lista os depósitos de um pool, mais recentes primeiro.
func (d *DB) Deposits(ctx context.Context, poolID string) ([]models.RoyaltyDeposit, error) {
	var deps []models.RoyaltyDeposit
	query := d.Rebind(`SELECT ` + depositColumns + ` FROM royalty_deposits WHERE pool_id = ? ORDER BY created_at DESC, id`)
	if err := sqlx.SelectContext(ctx, d, &deps, query, poolID); err != nil {
		return nil, fmt.Errorf("falha ao listar depósitos do pool %s: %w", poolID, err)
	}
	return deps, nil
}

// GetDeposit busca um depósito pelo ID.
func (d *DB) GetDeposit(ctx context.Context, id string) (models.RoyaltyDeposit, error) {
	var dep models.RoyaltyDeposit
	err := sqlx.GetContext(ctx, d, &dep, d.Rebind(`SELECT `+depositColumns+` FROM royalty_deposits WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RoyaltyDeposit{}, ErrNotFound
	}
	if err != nil {
		return models.RoyaltyDeposit{}, fmt.Errorf("falha ao buscar depósito %s: %w", id, err)
	}
	return dep, nil
}

// InsertPayouts grava as linhas de pagamento de um titular numa única transação.
func (d *DB) InsertPayouts(ctx context.Context, payouts []models.RoyaltyPayout) error {
	return d.inTx(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`INSERT INTO royalty_payouts (` + payoutColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		for _, p := range payouts {
			_, err := tx.ExecContext(ctx, query,
				p.ID, p.DepositID, p.PoolID, p.AssetID, p.Holder, p.Amount, p.Receipt, p.Status, p.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("falha ao salvar pagamento do ativo %s: %w", p.AssetID, err)
			}
		}
		return nil
	})
}

// CloseDeposit marca o depósito como distribuído e acumula os totais do pool.
// A soma é feita em decimal, fora do banco.
func (d *DB) CloseDeposit(ctx context.Context, depositID, poolID string, deposited, distributed decimal.Decimal) error {
	return d.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE royalty_deposits SET status = ? WHERE id = ? AND status = ?`),
			string(models.DepositDistributed), depositID, string(models.DepositDistributing))
		if err != nil {
			return fmt.Errorf("falha ao fechar depósito %s: %w", depositID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("falha ao verificar depósito %s: %w", depositID, err)
		} else if n == 0 {
			return ErrNotFound
		}

		var pool models.RoyaltyPool
		err = sqlx.GetContext(ctx, tx, &pool, tx.Rebind(`SELECT `+poolColumns+` FROM royalty_pools WHERE id = ?`+d.forUpdate()), poolID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("falha ao ler totais do pool %s: %w", poolID, err)
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE royalty_pools SET total_deposited = ?, total_distributed = ? WHERE id = ?`),
			pool.TotalDeposited.Add(deposited), pool.TotalDistributed.Add(distributed), poolID)
		if err != nil {
			return fmt.Errorf("falha ao atualizar totais do pool %s: %w", poolID, err)
		}
		return nil
	})
}

// PayoutsByAsset lista os pagamentos recebidos por um ativo.
func (d *DB) PayoutsByAsset(ctx context.Context, assetID string) ([]models.RoyaltyPayout, error) {
	var payouts []models.RoyaltyPayout
	query := d.Rebind(`SELECT ` + payoutColumns + ` FROM royalty_payouts WHERE asset_id = ? ORDER BY created_at DESC, id`)
	if err := sqlx.SelectContext(ctx, d, &payouts, query, assetID); err != nil {
		return nil, fmt.Errorf("falha ao listar pagamentos do ativo %s: %w", assetID, err)
	}
	return payouts, nil
}

// PayoutsByHolder lista os pagamentos recebidos por um titular.
func (d *DB) PayoutsByHolder(ctx context.Context, holder string) ([]models.RoyaltyPayout, error) {
	var payouts []models.RoyaltyPayout
	query := d.Rebind(`SELECT ` + payoutColumns + ` FROM royalty_payouts WHERE holder = ? ORDER BY created_at DESC, id`)
	if err := sqlx.SelectContext(ctx, d, &payouts, query, holder); err != nil {
		return nil, fmt.Errorf("falha ao listar pagamentos de %s: %w", holder, err)
	}
	return payouts, nil
}

// PayoutsByDeposit lista os pagamentos de uma rodada.
func (d *DB) PayoutsByDeposit(ctx context.Context, depositID string) ([]models.RoyaltyPayout, error) {
	var payouts []models.RoyaltyPayout
	query := d.Rebind(`SELECT ` + payoutColumns + ` FROM royalty_payouts WHERE deposit_id = ? ORDER BY asset_id`)
	if err := sqlx.SelectContext(ctx, d, &payouts, query, depositID); err != nil {
		return nil, fmt.Errorf("falha ao listar pagamentos do depósito %s: %w", depositID, err)
	}
	return payouts, nil
}
