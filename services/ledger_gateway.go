package services

import (
	"context"

	"github.com/ferreirogomes/lastro/models"

	"github.com/shopspring/decimal"
)

// LedgerGateway submete operações assinadas ao ledger externo.
//
// Cada chamada finaliza com um recibo ou falha sem efeito colateral; não há
// aplicação parcial. Timeouts são responsabilidade da implementação, que deve
// devolvê-los como falha.
//
// Reexecução: SubmitAcceptOffer é exatamente-uma-vez no ledger (a oferta é
// consumida). SubmitBurn, SubmitPendingBurn e SubmitFinishEscrow falham de forma
// segura quando o token ou o escrow já não existem.
//
// SubmitFinishEscrow e SubmitBurn exigem a autorização da parte: sem uma chave
// que assine por ela, falham antes de qualquer envio. SubmitDirectPayment e SubmitCreateEscrow NÃO
// são idempotentes: repetir após um sucesso duplica o efeito.
type LedgerGateway interface {
	SubmitMint(ctx context.Context, issuer models.Party, desc models.MintSpec) (tokenID, receipt string, err error)
	SubmitOffer(ctx context.Context, seller models.Party, tokenID string, price decimal.Decimal) (offerID, receipt string, err error)
	SubmitAcceptOffer(ctx context.Context, buyer models.Party, offer models.Offer, tag models.SaleTag) (receipt string, err error)
	SubmitDirectPayment(ctx context.Context, from models.Party, to string, amount decimal.Decimal, tag *models.SaleTag) (receipt string, err error)
	SubmitCreateEscrow(ctx context.Context, funder models.Party, amount decimal.Decimal, destination string) (models.EscrowRef, string, error)
	SubmitFinishEscrow(ctx context.Context, finisher models.Party, ref models.EscrowRef) (receipt string, err error)
	SubmitBurn(ctx context.Context, owner models.Party, tokenID string) (receipt string, err error)
	// SubmitPendingBurn reenvia o burn de um token cujo colateral já foi
	// liberado ao dono; a plataforma pode assinar pela delegação que detém.
	SubmitPendingBurn(ctx context.Context, holder, tokenID string) (receipt string, err error)
	// TokenBurned informa se o token não existe mais no ledger.
	TokenBurned(ctx context.Context, tokenID string) (bool, error)
}

// MetadataPinner grava os metadados do ativo em armazenamento endereçado por conteúdo.
type MetadataPinner interface {
	Pin(ctx context.Context, doc []byte) (uri string, err error)
}
