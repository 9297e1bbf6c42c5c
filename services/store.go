package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ferreirogomes/lastro/models"
	"github.com/ferreirogomes/lastro/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store é o armazenamento de registros usado pelo núcleo. *storage.DB o implementa.
type Store interface {
	InsertAsset(ctx context.Context, asset models.Asset, entries ...models.LedgerEntry) error
	GetAsset(ctx context.Context, id string) (models.Asset, error)
	ApplyTransition(ctx context.Context, asset models.Asset, prev models.AssetStatus, entries ...models.LedgerEntry) error
	ListAssets(ctx context.Context, f storage.AssetFilter) ([]models.Asset, error)
	EscrowGaps(ctx context.Context) ([]models.Asset, error)
	PendingBurns(ctx context.Context) ([]models.Asset, error)
	LedgerEntries(ctx context.Context, assetID string) ([]models.LedgerEntry, error)
	Purchases(ctx context.Context, assetID string) ([]models.LedgerEntry, error)
	PartyEntries(ctx context.Context, identity string) ([]models.Transaction, error)

	CreatePool(ctx context.Context, pool models.RoyaltyPool, assets []models.Asset, entries []models.LedgerEntry) error
	GetPool(ctx context.Context, id string) (models.RoyaltyPool, error)
	ListPools(ctx context.Context) ([]models.RoyaltyPool, error)
	InsertDeposit(ctx context.Context, dep models.RoyaltyDeposit) error
	Deposits(ctx context.Context, poolID string) ([]models.RoyaltyDeposit, error)
	GetDeposit(ctx context.Context, id string) (models.RoyaltyDeposit, error)
	InsertPayouts(ctx context.Context, payouts []models.RoyaltyPayout) error
	CloseDeposit(ctx context.Context, depositID, poolID string, deposited, distributed decimal.Decimal) error
	PayoutsByAsset(ctx context.Context, assetID string) ([]models.RoyaltyPayout, error)
	PayoutsByHolder(ctx context.Context, holder string) ([]models.RoyaltyPayout, error)
	PayoutsByDeposit(ctx context.Context, depositID string) ([]models.RoyaltyPayout, error)
}

var _ Store = (*storage.DB)(nil)

// Receipts reúne os recibos do ledger de uma operação.
type Receipts struct {
	Mint         string `json:"mint,omitempty"`
	Offer        string `json:"offer,omitempty"`
	Sale         string `json:"sale,omitempty"`
	EscrowFinish string `json:"escrow_finish,omitempty"`
	EscrowCreate string `json:"escrow_create,omitempty"`
	Burn         string `json:"burn,omitempty"`
}

func loadAsset(ctx context.Context, db Store, id string) (models.Asset, error) {
	if id == "" {
		return models.Asset{}, invalidArgument("ID do ativo é obrigatório")
	}
	asset, err := db.GetAsset(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Asset{}, newError(CodeNotFound, fmt.Sprintf("ativo %s não encontrado", id), map[string]string{"asset_id": id})
	}
	if err != nil {
		return models.Asset{}, fmt.Errorf("erro ao buscar ativo: %w", err)
	}
	return asset, nil
}

func loadPool(ctx context.Context, db Store, id string) (models.RoyaltyPool, error) {
	if id == "" {
		return models.RoyaltyPool{}, invalidArgument("ID do pool é obrigatório")
	}
	pool, err := db.GetPool(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.RoyaltyPool{}, newError(CodeNotFound, fmt.Sprintf("pool %s não encontrado", id), map[string]string{"pool_id": id})
	}
	if err != nil {
		return models.RoyaltyPool{}, fmt.Errorf("erro ao buscar pool: %w", err)
	}
	return pool, nil
}

// conflict converte a falha da escrita condicional num erro tipado que carrega o recibo já finalizado.
func conflict(assetID, receipt string) *Error {
	return &Error{
		Code:     CodeConflict,
		Message:  fmt.Sprintf("ativo %s foi alterado por outra operação", assetID),
		Metadata: map[string]string{"asset_id": assetID, "receipt": receipt},
		Cause:    storage.ErrStaleAsset,
	}
}

// transition aplica next ao ativo se a transição for válida.
func transition(asset *models.Asset, next models.AssetStatus) error {
	if !asset.Status.Valid() {
		return fmt.Errorf("ativo %s com status gravado desconhecido %q", asset.ID, asset.Status)
	}
	if !asset.Status.CanTransitionTo(next) {
		return wrongStatus(asset.ID, string(asset.Status), string(next))
	}
	asset.Status = next
	return nil
}

func newEntry(assetID string, kind models.EntryKind, receipt string, at time.Time) models.LedgerEntry {
	return models.LedgerEntry{
		ID:        uuid.New().String(),
		AssetID:   assetID,
		Kind:      kind,
		Amount:    decimal.Zero,
		Receipt:   receipt,
		CreatedAt: at,
	}
}

func now() time.Time {
	return time.Now().UTC()
}

func isStale(err error) bool {
	return errors.Is(err, storage.ErrStaleAsset)
}
