package storage

import (
	"context"
	"fmt"

	"github.com/ferreirogomes/lastro/models"

	"github.com/jmoiron/sqlx"
)

const entryColumns = `id, asset_id, kind, from_identity, to_identity, amount, receipt, link_receipt, sale_number, created_at`

func insertEntries(ctx context.Context, q sqlx.ExtContext, entries []models.LedgerEntry) error {
	query := q.Rebind(`INSERT INTO ledger_entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, e := range entries {
		_, err := q.ExecContext(ctx, query,
			e.ID, e.AssetID, string(e.Kind), e.From, e.To, e.Amount, e.Receipt, e.LinkReceipt, e.SaleNumber, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("falha ao registrar operação %s do ativo %s: %w", e.Kind, e.AssetID, err)
		}
	}
	return nil
}

func receiptExists(ctx context.Context, q sqlx.ExtContext, kind models.EntryKind, receipt string) (bool, error) {
	var n int
	query := q.Rebind(`SELECT COUNT(*) FROM ledger_entries WHERE kind = ? AND receipt = ?`)
	if err := sqlx.GetContext(ctx, q, &n, query, string(kind), receipt); err != nil {
		return false, fmt.Errorf("falha ao verificar recibo %s: %w", receipt, err)
	}
	return n > 0, nil
}

// LedgerEntries retorna o histórico de operações de um ativo, mais recentes primeiro.
func (d *DB) LedgerEntries(ctx context.Context, assetID string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	query := d.Rebind(`SELECT ` + entryColumns + ` FROM ledger_entries WHERE asset_id = ? ORDER BY created_at DESC, id`)
	if err := sqlx.SelectContext(ctx, d, &entries, query, assetID); err != nil {
		return nil, fmt.Errorf("falha ao buscar operações do ativo %s: %w", assetID, err)
	}
	return entries, nil
}

// PartyEntries retorna as operações em que identity é origem ou destino, mais
// recentes primeiro.
func (d *DB) PartyEntries(ctx context.Context, identity string) ([]models.Transaction, error) {
	var txs []models.Transaction
	query := d.Rebind(`SELECT e.id, e.asset_id, e.kind, e.from_identity, e.to_identity, e.amount, e.receipt,
			e.link_receipt, e.sale_number, e.created_at, a.name AS asset_name, COALESCE(a.token_id, '') AS token_id
		FROM ledger_entries e
		JOIN assets a ON a.id = e.asset_id
		WHERE e.from_identity = ? OR e.to_identity = ?
		ORDER BY e.created_at DESC, e.id`)
	if err := sqlx.SelectContext(ctx, d, &txs, query, identity, identity); err != nil {
		return nil, fmt.Errorf("falha ao buscar operações de %s: %w", identity, err)
	}
	return txs, nil
}

// Purchases retorna as vendas de um ativo ordenadas pelo número da venda.
func (d *DB) Purchases(ctx context.Context, assetID string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	query := d.Rebind(`SELECT ` + entryColumns + ` FROM ledger_entries
		WHERE asset_id = ? AND kind = ? ORDER BY sale_number ASC, created_at ASC`)
	if err := sqlx.SelectContext(ctx, d, &entries, query, assetID, string(models.EntryPurchase)); err != nil {
		return nil, fmt.Errorf("falha ao buscar vendas do ativo %s: %w", assetID, err)
	}
	return entries, nil
}
