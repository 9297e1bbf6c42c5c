package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind classifica um registro de auditoria espelhado do ledger.
type EntryKind string

const (
	EntryMint          EntryKind = "mint"
	EntryList          EntryKind = "list"
	EntryRelist        EntryKind = "relist"
	EntryPurchase      EntryKind = "purchase"
	EntryEscrowCreate  EntryKind = "escrow_create"
	EntryEscrowHandoff EntryKind = "escrow_handoff"
	EntryRedeem        EntryKind = "redeem"
)

// LedgerEntry é uma linha append-only que espelha uma operação finalizada no ledger.
// (Kind, Receipt) é único.
type LedgerEntry struct {
	ID          string          `json:"id" db:"id"`
	AssetID     string          `json:"asset_id" db:"asset_id"`
	Kind        EntryKind       `json:"kind" db:"kind"`
	From        string          `json:"from" db:"from_identity"`
	To          string          `json:"to,omitempty" db:"to_identity"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Receipt     string          `json:"receipt" db:"receipt"`
	LinkReceipt string          `json:"link_receipt,omitempty" db:"link_receipt"` // Segundo recibo da mesma operação (ex.: escrow no resgate)
	SaleNumber  int             `json:"sale_number,omitempty" db:"sale_number"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Transaction é um registro do ledger visto por uma das partes, com o ativo a
// que se refere.
type Transaction struct {
	LedgerEntry
	AssetName string `json:"asset_name" db:"asset_name"`
	TokenID   string `json:"token_id" db:"token_id"`
}

// PricePoint é um ponto do histórico de preços de um ativo.
type PricePoint struct {
	SaleNumber int             `json:"sale_number"`
	Price      decimal.Decimal `json:"price"`
	Buyer      string          `json:"buyer"`
	Seller     string          `json:"seller"`
	Receipt    string          `json:"receipt"`
	Date       time.Time       `json:"date"`
}
