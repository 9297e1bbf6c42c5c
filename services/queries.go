package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ferreirogomes/lastro/models"
	"github.com/ferreirogomes/lastro/storage"

	"github.com/shopspring/decimal"
)

// MarketplaceService atende as consultas de leitura. Não chama o ledger.
type MarketplaceService struct {
	DB Store
}

func NewMarketplaceService(db Store) *MarketplaceService {
	return &MarketplaceService{DB: db}
}

// MarketFilter restringe a vitrine do marketplace.
type MarketFilter struct {
	AssetType string
	MaxPrice  *decimal.Decimal
	Sort      storage.AssetSort
}

// Marketplace lista os ativos à venda.
func (s *MarketplaceService) Marketplace(ctx context.Context, f MarketFilter) ([]models.Asset, error) {
	switch f.Sort {
	case "", storage.SortNewest, storage.SortPriceAsc, storage.SortPriceDesc, storage.SortValueDesc, storage.SortMostTraded:
	default:
		return nil, invalidArgument(fmt.Sprintf("ordenação desconhecida: %s", f.Sort))
	}
	return s.DB.ListAssets(ctx, storage.AssetFilter{
		Statuses:  []models.AssetStatus{models.StatusListed},
		AssetType: f.AssetType,
		MaxPrice:  f.MaxPrice,
		Sort:      f.Sort,
	})
}

// AssetDetail é um ativo com sua trilha de auditoria.
type AssetDetail struct {
	Asset         models.Asset           `json:"asset"`
	Entries       []models.LedgerEntry   `json:"entries"`
	Royalties     []models.RoyaltyPayout `json:"royalties,omitempty"`
	EscrowMissing bool                   `json:"escrow_missing"`
}

func (s *MarketplaceService) AssetDetail(ctx context.Context, id string) (AssetDetail, error) {
	asset, err := loadAsset(ctx, s.DB, id)
	if err != nil {
		return AssetDetail{}, err
	}
	entries, err := s.DB.LedgerEntries(ctx, id)
	if err != nil {
		return AssetDetail{}, err
	}
	d := AssetDetail{Asset: asset, Entries: entries, EscrowMissing: asset.EscrowMissing()}
	if asset.IsRoyaltyMember() {
		if d.Royalties, err = s.DB.PayoutsByAsset(ctx, id); err != nil {
			return AssetDetail{}, err
		}
	}
	return d, nil
}

// PriceHistory lista as vendas do ativo pela ordem de venda.
func (s *MarketplaceService) PriceHistory(ctx context.Context, id string) ([]models.PricePoint, error) {
	if _, err := loadAsset(ctx, s.DB, id); err != nil {
		return nil, err
	}
	purchases, err := s.DB.Purchases(ctx, id)
	if err != nil {
		return nil, err
	}
	points := make([]models.PricePoint, len(purchases))
	for i, p := range purchases {
		points[i] = models.PricePoint{
			SaleNumber: p.SaleNumber,
			Price:      p.Amount,
			Buyer:      p.From,
			Seller:     p.To,
			Receipt:    p.Receipt,
			Date:       p.CreatedAt,
		}
	}
	return points, nil
}

// Portfolio são os ativos vivos de um titular.
type Portfolio struct {
	Owner      string          `json:"owner"`
	Assets     []models.Asset  `json:"assets"`
	TotalValue decimal.Decimal `json:"total_value"`
	Backing    decimal.Decimal `json:"backing"`
}

func (s *MarketplaceService) Portfolio(ctx context.Context, owner string) (Portfolio, error) {
	if owner == "" {
		return Portfolio{}, invalidArgument("identidade do titular é obrigatória")
	}
	assets, err := s.DB.ListAssets(ctx, storage.AssetFilter{
		Owner:    owner,
		Statuses: []models.AssetStatus{models.StatusListed, models.StatusOwned},
	})
	if err != nil {
		return Portfolio{}, err
	}
	p := Portfolio{Owner: owner, Assets: assets, TotalValue: decimal.Zero, Backing: decimal.Zero}
	for _, a := range assets {
		p.TotalValue = p.TotalValue.Add(a.MarketValue())
		p.Backing = p.Backing.Add(a.BackingAmount())
	}
	return p, nil
}

// Transactions lista as operações em que a identidade pagou, recebeu ou resgatou.
func (s *MarketplaceService) Transactions(ctx context.Context, identity string) ([]models.Transaction, error) {
	if identity == "" {
		return nil, invalidArgument("identidade é obrigatória")
	}
	return s.DB.PartyEntries(ctx, identity)
}

// CreatorAssets lista tudo o que o criador emitiu, em qualquer status, mais recentes primeiro.
func (s *MarketplaceService) CreatorAssets(ctx context.Context, creator string) ([]models.Asset, error) {
	if creator == "" {
		return nil, invalidArgument("identidade do criador é obrigatória")
	}
	return s.DB.ListAssets(ctx, storage.AssetFilter{Creator: creator})
}

func (s *MarketplaceService) Pools(ctx context.Context) ([]models.RoyaltyPool, error) {
	return s.DB.ListPools(ctx)
}

// PoolDetail é um pool com suas unidades e rodadas.
type PoolDetail struct {
	Pool     models.RoyaltyPool      `json:"pool"`
	Assets   []models.Asset          `json:"assets"`
	Deposits []models.RoyaltyDeposit `json:"deposits"`
	Holders  int                     `json:"holders"` // Titulares distintos fora o criador
}

func (s *MarketplaceService) PoolDetail(ctx context.Context, poolID string) (PoolDetail, error) {
	pool, err := loadPool(ctx, s.DB, poolID)
	if err != nil {
		return PoolDetail{}, err
	}
	assets, err := s.DB.ListAssets(ctx, storage.AssetFilter{PoolID: pool.ID, Sort: storage.SortNewest})
	if err != nil {
		return PoolDetail{}, err
	}
	deposits, err := s.DB.Deposits(ctx, pool.ID)
	if err != nil {
		return PoolDetail{}, err
	}
	holders := make(map[string]struct{})
	for _, a := range assets {
		if a.Owner != pool.Creator && a.Status != models.StatusRedeemed {
			holders[a.Owner] = struct{}{}
		}
	}
	return PoolDetail{Pool: pool, Assets: assets, Deposits: deposits, Holders: len(holders)}, nil
}

// DepositDetail é uma rodada com as linhas pagas.
type DepositDetail struct {
	Deposit models.RoyaltyDeposit  `json:"deposit"`
	Payouts []models.RoyaltyPayout `json:"payouts"`
	Paid    decimal.Decimal        `json:"paid"`
}

// Deposit mostra uma rodada. A diferença entre Amount e Paid é o que não foi
// pago, seja por falha, poeira ou arredondamento.
func (s *MarketplaceService) Deposit(ctx context.Context, poolID, depositID string) (DepositDetail, error) {
	dep, err := s.DB.GetDeposit(ctx, depositID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && dep.PoolID != poolID) {
		return DepositDetail{}, newError(CodeNotFound, fmt.Sprintf("depósito %s não encontrado", depositID), map[string]string{"deposit_id": depositID})
	}
	if err != nil {
		return DepositDetail{}, fmt.Errorf("erro ao buscar depósito: %w", err)
	}
	payouts, err := s.DB.PayoutsByDeposit(ctx, dep.ID)
	if err != nil {
		return DepositDetail{}, err
	}
	d := DepositDetail{Deposit: dep, Payouts: payouts, Paid: decimal.Zero}
	for _, p := range payouts {
		d.Paid = d.Paid.Add(p.Amount)
	}
	return d, nil
}

// RoyaltyEarnings soma os royalties recebidos por um titular.
type RoyaltyEarnings struct {
	Holder  string                 `json:"holder"`
	Total   decimal.Decimal        `json:"total"`
	Payouts []models.RoyaltyPayout `json:"payouts"`
}

func (s *MarketplaceService) RoyaltyEarnings(ctx context.Context, holder string) (RoyaltyEarnings, error) {
	if holder == "" {
		return RoyaltyEarnings{}, invalidArgument("identidade do titular é obrigatória")
	}
	payouts, err := s.DB.PayoutsByHolder(ctx, holder)
	if err != nil {
		return RoyaltyEarnings{}, err
	}
	e := RoyaltyEarnings{Holder: holder, Total: decimal.Zero, Payouts: payouts}
	for _, p := range payouts {
		e.Total = e.Total.Add(p.Amount)
	}
	return e, nil
}

// EscrowGaps lista os ativos lastreados que ficaram sem escrow vivo após uma
// venda e precisam de recriação manual.
func (s *MarketplaceService) EscrowGaps(ctx context.Context) ([]models.Asset, error) {
	return s.DB.EscrowGaps(ctx)
}

// PendingBurns lista os ativos resgatados com burn ainda não confirmado.
func (s *MarketplaceService) PendingBurns(ctx context.Context) ([]models.Asset, error) {
	return s.DB.PendingBurns(ctx)
}
