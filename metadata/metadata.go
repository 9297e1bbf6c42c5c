// Package metadata monta os metadados dos ativos e os grava endereçados por conteúdo.
package metadata

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

const defaultImage = "https://placehold.co/400x400/1a1a2e/e94560?text=LASTRO"

// Attribute segue o formato usual de metadados de NFT.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

// Document é o JSON publicado junto ao token.
type Document struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Image       string            `json:"image"`
	ExternalURL string            `json:"external_url,omitempty"`
	Attributes  []Attribute       `json:"attributes"`
	Properties  map[string]string `json:"properties,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
}

// Params são os dados do ativo usados para montar o documento.
type Params struct {
	Name         string
	Description  string
	ImageURL     string
	AssetType    string
	Creator      string
	Backing      decimal.Decimal
	PoolName     string
	RoyaltyShare decimal.Decimal
	Properties   map[string]string
	ContentType  string
}

// Build monta o documento de metadados. Atributos opcionais só aparecem quando presentes.
func Build(p Params) Document {
	attrs := []Attribute{
		{TraitType: "Asset Type", Value: p.AssetType},
		{TraitType: "Creator", Value: p.Creator},
	}
	if p.Backing.IsPositive() {
		attrs = append(attrs, Attribute{TraitType: "Backing", Value: p.Backing.String()})
	}
	if p.PoolName != "" {
		attrs = append(attrs, Attribute{TraitType: "Royalty Pool", Value: p.PoolName})
	}
	if p.RoyaltyShare.IsPositive() {
		attrs = append(attrs, Attribute{TraitType: "Royalty Percentage", Value: p.RoyaltyShare.String() + "%"})
	}

	image := p.ImageURL
	if image == "" {
		image = defaultImage
	}
	return Document{
		Name:        p.Name,
		Description: p.Description,
		Image:       image,
		Attributes:  attrs,
		Properties:  p.Properties,
		ContentType: p.ContentType,
	}
}

// Marshal serializa o documento. Mapas são ordenados pelo encoding/json, então
// o mesmo documento gera sempre os mesmos bytes e o mesmo CID.
func (d Document) Marshal() ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("falha ao serializar metadados: %w", err)
	}
	return b, nil
}
