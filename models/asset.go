package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetStatus é o estado do ativo no ciclo de vida.
type AssetStatus string

const (
	StatusMinted   AssetStatus = "minted"
	StatusListed   AssetStatus = "listed"
	StatusOwned    AssetStatus = "owned"
	StatusRedeemed AssetStatus = "redeemed"
)

// Tipos de ativo conhecidos. Outros valores são aceitos como texto livre.
const (
	AssetTypeDigital = "digital_asset"
	AssetTypeRoyalty = "royalty"
)

var transitions = map[AssetStatus][]AssetStatus{
	StatusMinted: {StatusListed},
	StatusListed: {StatusOwned, StatusRedeemed},
	StatusOwned:  {StatusListed, StatusRedeemed},
}

// CanTransitionTo informa se a transição s -> next é permitida.
// StatusRedeemed é terminal.
func (s AssetStatus) CanTransitionTo(next AssetStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid informa se o status é um dos quatro conhecidos.
func (s AssetStatus) Valid() bool {
	switch s {
	case StatusMinted, StatusListed, StatusOwned, StatusRedeemed:
		return true
	}
	return false
}

// EscrowRef identifica um escrow vivo no ledger.
type EscrowRef struct {
	Owner       string `json:"owner"`       // Conta que financiou o escrow
	Sequence    uint64 `json:"sequence"`    // Sequência usada para finalizar o escrow
	Destination string `json:"destination"` // Conta que recebe o colateral ao finalizar
	Receipt     string `json:"receipt"`     // Último recibo que tocou o escrow
}

// Backing é o colateral de um ativo. Só existe com Amount > 0.
// Escrow nil indica a janela pós-venda em que a recriação do escrow falhou.
type Backing struct {
	Amount decimal.Decimal `json:"amount"`
	Escrow *EscrowRef      `json:"escrow,omitempty"`
}

// Asset é o registro durável de um ativo tokenizado.
type Asset struct {
	ID            string           `json:"id"`
	TokenID       string           `json:"token_id,omitempty"` // Vazio até o mint finalizar
	Creator       string           `json:"creator"`
	AssetType     string           `json:"asset_type"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	ImageURL      string           `json:"image_url,omitempty"`
	MetadataURI   string           `json:"metadata_uri,omitempty"`
	ListPrice     *decimal.Decimal `json:"list_price,omitempty"`
	OfferID       string           `json:"offer_id,omitempty"` // Oferta de venda vigente, se houver
	LastSalePrice decimal.Decimal  `json:"last_sale_price"`
	SaleCount     int              `json:"sale_count"`
	Backing       *Backing         `json:"backing,omitempty"`
	RoyaltyPoolID string           `json:"royalty_pool_id,omitempty"`
	RoyaltyShare  decimal.Decimal  `json:"royalty_share"`
	Status        AssetStatus      `json:"status"`
	Owner         string           `json:"owner"`
	BurnPending   bool             `json:"burn_pending"` // Resgatado, mas o burn ainda não foi confirmado
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// BackingAmount retorna o valor do colateral, zero quando não há lastro.
func (a Asset) BackingAmount() decimal.Decimal {
	if a.Backing == nil {
		return decimal.Zero
	}
	return a.Backing.Amount
}

// IsBacked informa se o ativo tem colateral.
func (a Asset) IsBacked() bool {
	return a.Backing != nil && a.Backing.Amount.IsPositive()
}

// EscrowMissing informa se o ativo anuncia lastro sem escrow vivo.
func (a Asset) EscrowMissing() bool {
	return a.IsBacked() && a.Backing.Escrow == nil && a.Status != StatusRedeemed
}

// IsRoyaltyMember informa se o ativo participa de um pool de royalties.
func (a Asset) IsRoyaltyMember() bool {
	return a.RoyaltyPoolID != ""
}

// MarketValue é o valor usado no portfólio: última venda, senão o preço de lista.
func (a Asset) MarketValue() decimal.Decimal {
	if a.LastSalePrice.IsPositive() {
		return a.LastSalePrice
	}
	if a.ListPrice != nil {
		return *a.ListPrice
	}
	return decimal.Zero
}
