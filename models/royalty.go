package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type DepositStatus string

const (
	DepositDistributing DepositStatus = "distributing"
	DepositDistributed  DepositStatus = "distributed"
)

const PayoutCompleted = "completed"

// RoyaltyPool agrupa os ativos que dividem a renda de um criador.
type RoyaltyPool struct {
	ID               string          `json:"id" db:"id"`
	Creator          string          `json:"creator" db:"creator"`
	Name             string          `json:"name" db:"name"`
	Description      string          `json:"description" db:"description"`
	TotalUnits       int             `json:"total_units" db:"total_units"`
	UnitShare        decimal.Decimal `json:"unit_share" db:"unit_share"` // Percentual por unidade
	TotalDeposited   decimal.Decimal `json:"total_deposited" db:"total_deposited"`
	TotalDistributed decimal.Decimal `json:"total_distributed" db:"total_distributed"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// RoyaltyDeposit é o marcador durável de uma rodada de distribuição.
type RoyaltyDeposit struct {
	ID        string          `json:"id" db:"id"`
	PoolID    string          `json:"pool_id" db:"pool_id"`
	Depositor string          `json:"depositor" db:"depositor"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Status    DepositStatus   `json:"status" db:"status"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// RoyaltyPayout registra o pagamento de um ativo em uma rodada.
// Só é criado depois que o pagamento finalizou no ledger.
type RoyaltyPayout struct {
	ID        string          `json:"id" db:"id"`
	DepositID string          `json:"deposit_id" db:"deposit_id"`
	PoolID    string          `json:"pool_id" db:"pool_id"`
	AssetID   string          `json:"asset_id" db:"asset_id"`
	Holder    string          `json:"holder" db:"holder"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Receipt   string          `json:"receipt" db:"receipt"`
	Status    string          `json:"status" db:"status"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
