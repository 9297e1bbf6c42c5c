package models

import "github.com/shopspring/decimal"

// Party é uma conta no ledger com a autorização fornecida pelo chamador.
// Credential é opaca para o núcleo; apenas o gateway a interpreta.
type Party struct {
	Identity   string `json:"identity"`
	Credential string `json:"-"`
}

// Offer é uma oferta de venda vigente no ledger.
type Offer struct {
	ID      string          `json:"id"`
	TokenID string          `json:"token_id"`
	Seller  string          `json:"seller"`
	Price   decimal.Decimal `json:"price"`
}

// SaleTag acompanha uma venda até o ledger (memo), permitindo ordenar vendas
// mesmo quando os recibos chegam fora de ordem.
type SaleTag struct {
	AssetID       string          `json:"asset_id"`
	SaleNumber    int             `json:"sale_number"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	PreviousPrice decimal.Decimal `json:"previous_price"`
}

// MintSpec descreve o token a ser emitido.
type MintSpec struct {
	MetadataURI string
	Name        string
	AssetType   string
}
