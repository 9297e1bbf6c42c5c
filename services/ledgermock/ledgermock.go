// Package ledgermock é um ledger em memória para testes dos serviços.
//
// Cada operação pode ser configurada para falhar sempre (FailOn), apenas na
// próxima chamada (FailNext) ou, para pagamentos, por destinatário
// (FailPaymentTo). Calls conta as chamadas feitas, inclusive as que falharam.
package ledgermock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ferreirogomes/lastro/models"

	"github.com/shopspring/decimal"
)

// Nomes das operações usados em FailOn, FailNext e Calls.
const (
	OpMint          = "SubmitMint"
	OpOffer         = "SubmitOffer"
	OpAcceptOffer   = "SubmitAcceptOffer"
	OpDirectPayment = "SubmitDirectPayment"
	OpCreateEscrow  = "SubmitCreateEscrow"
	OpFinishEscrow  = "SubmitFinishEscrow"
	OpBurn          = "SubmitBurn"
	OpPendingBurn   = "SubmitPendingBurn"
	OpTokenBurned   = "TokenBurned"
)

var (
	ErrRejected      = errors.New("ledgermock: transação rejeitada")
	ErrOfferConsumed = errors.New("ledgermock: oferta já consumida")
	ErrNoEscrow      = errors.New("ledgermock: escrow inexistente ou já finalizado")
	ErrNoToken       = errors.New("ledgermock: token inexistente")
)

// Payment é um pagamento finalizado.
type Payment struct {
	From    string
	To      string
	Amount  decimal.Decimal
	Receipt string
	Tag     *models.SaleTag
}

// Gateway simula o ledger. O valor zero não é utilizável; use New.
type Gateway struct {
	mu sync.Mutex

	seq      int
	calls    map[string]int
	always   map[string]error
	next     map[string][]error
	payTo    map[string]error
	offers   map[string]models.Offer
	escrows  map[uint64]models.EscrowRef
	amounts  map[uint64]decimal.Decimal
	tokens   map[string]string // tokenID -> dono
	minted   map[string]models.MintSpec
	burned   map[string]bool
	payments []Payment
}

func New() *Gateway {
	return &Gateway{
		calls:   make(map[string]int),
		always:  make(map[string]error),
		next:    make(map[string][]error),
		payTo:   make(map[string]error),
		offers:  make(map[string]models.Offer),
		escrows: make(map[uint64]models.EscrowRef),
		amounts: make(map[uint64]decimal.Decimal),
		tokens:  make(map[string]string),
		minted:  make(map[string]models.MintSpec),
		burned:  make(map[string]bool),
	}
}

// FailOn faz toda chamada de op falhar com err. err nil remove a falha.
func (g *Gateway) FailOn(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.always, op)
		return
	}
	g.always[op] = err
}

// FailNext faz apenas a próxima chamada de op falhar com err.
func (g *Gateway) FailNext(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next[op] = append(g.next[op], err)
}

// FailPaymentTo faz os pagamentos diretos para to falharem.
func (g *Gateway) FailPaymentTo(to string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payTo[to] = err
}

// Calls devolve quantas vezes op foi chamada.
func (g *Gateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// TotalCalls devolve o total de chamadas de submissão e consulta.
func (g *Gateway) TotalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

// Payments devolve os pagamentos diretos finalizados, em ordem.
func (g *Gateway) Payments() []Payment {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Payment(nil), g.payments...)
}

// LiveEscrows devolve quantos escrows ainda não foram finalizados.
func (g *Gateway) LiveEscrows() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.escrows)
}

// TokenOwner devolve o dono do token no ledger.
func (g *Gateway) TokenOwner(tokenID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tokens[tokenID]
}

// Minted devolve a descrição enviada na emissão do token.
func (g *Gateway) Minted(tokenID string) models.MintSpec {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.minted[tokenID]
}

// MarkBurned simula um burn confirmado fora do fluxo normal.
func (g *Gateway) MarkBurned(tokenID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.burned[tokenID] = true
}

// begin registra a chamada e devolve a falha configurada. Deve ser chamada com mu travado.
func (g *Gateway) begin(op string) error {
	g.calls[op]++
	if q := g.next[op]; len(q) > 0 {
		g.next[op] = q[1:]
		return q[0]
	}
	return g.always[op]
}

func (g *Gateway) receipt() string {
	g.seq++
	return fmt.Sprintf("rcpt-%04d", g.seq)
}

func (g *Gateway) SubmitMint(_ context.Context, issuer models.Party, desc models.MintSpec) (string, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpMint); err != nil {
		return "", "", err
	}
	r := g.receipt()
	tokenID := "tok-" + r[len("rcpt-"):]
	g.tokens[tokenID] = issuer.Identity
	g.minted[tokenID] = desc
	return tokenID, r, nil
}

func (g *Gateway) SubmitOffer(_ context.Context, seller models.Party, tokenID string, price decimal.Decimal) (string, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpOffer); err != nil {
		return "", "", err
	}
	if owner, ok := g.tokens[tokenID]; !ok || g.burned[tokenID] {
		return "", "", ErrNoToken
	} else if owner != seller.Identity {
		return "", "", fmt.Errorf("%w: %s não é dono de %s", ErrRejected, seller.Identity, tokenID)
	}
	r := g.receipt()
	offerID := "offer-" + r[len("rcpt-"):]
	g.offers[offerID] = models.Offer{ID: offerID, TokenID: tokenID, Seller: seller.Identity, Price: price}
	return offerID, r, nil
}

func (g *Gateway) SubmitAcceptOffer(_ context.Context, buyer models.Party, offer models.Offer, tag models.SaleTag) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpAcceptOffer); err != nil {
		return "", err
	}
	live, ok := g.offers[offer.ID]
	if !ok {
		return "", ErrOfferConsumed
	}
	delete(g.offers, offer.ID)
	g.tokens[live.TokenID] = buyer.Identity
	r := g.receipt()
	t := tag
	g.payments = append(g.payments, Payment{From: buyer.Identity, To: live.Seller, Amount: live.Price, Receipt: r, Tag: &t})
	return r, nil
}

func (g *Gateway) SubmitDirectPayment(_ context.Context, from models.Party, to string, amount decimal.Decimal, tag *models.SaleTag) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpDirectPayment); err != nil {
		return "", err
	}
	if err := g.payTo[to]; err != nil {
		return "", err
	}
	r := g.receipt()
	g.payments = append(g.payments, Payment{From: from.Identity, To: to, Amount: amount, Receipt: r, Tag: tag})
	return r, nil
}

func (g *Gateway) SubmitCreateEscrow(_ context.Context, funder models.Party, amount decimal.Decimal, destination string) (models.EscrowRef, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpCreateEscrow); err != nil {
		return models.EscrowRef{}, "", err
	}
	r := g.receipt()
	ref := models.EscrowRef{Owner: funder.Identity, Sequence: uint64(g.seq), Destination: destination}
	g.escrows[ref.Sequence] = ref
	g.amounts[ref.Sequence] = amount
	return ref, r, nil
}

func (g *Gateway) SubmitFinishEscrow(_ context.Context, _ models.Party, ref models.EscrowRef) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpFinishEscrow); err != nil {
		return "", err
	}
	if _, ok := g.escrows[ref.Sequence]; !ok {
		return "", ErrNoEscrow
	}
	delete(g.escrows, ref.Sequence)
	delete(g.amounts, ref.Sequence)
	return g.receipt(), nil
}

func (g *Gateway) SubmitBurn(_ context.Context, _ models.Party, tokenID string) (string, error) {
	return g.burn(OpBurn, tokenID)
}

func (g *Gateway) SubmitPendingBurn(_ context.Context, _ string, tokenID string) (string, error) {
	return g.burn(OpPendingBurn, tokenID)
}

func (g *Gateway) burn(op, tokenID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(op); err != nil {
		return "", err
	}
	if _, ok := g.tokens[tokenID]; !ok || g.burned[tokenID] {
		return "", ErrNoToken
	}
	g.burned[tokenID] = true
	return g.receipt(), nil
}

func (g *Gateway) TokenBurned(_ context.Context, tokenID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpTokenBurned); err != nil {
		return false, err
	}
	return g.burned[tokenID], nil
}
