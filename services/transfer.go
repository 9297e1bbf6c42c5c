package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ferreirogomes/lastro/models"
	"github.com/ferreirogomes/lastro/storage"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TransferService executa vendas e a passagem do colateral para o comprador.
type TransferService struct {
	DB     Store
	Ledger LedgerGateway
	log    zerolog.Logger
}

// NewTransferService cria o serviço de transferência de propriedade.
func NewTransferService(db Store, ledger LedgerGateway, logger zerolog.Logger) *TransferService {
	return &TransferService{
		DB:     db,
		Ledger: ledger,
		log:    logger.With().Str("component", "transfer").Logger(),
	}
}

// BuyResult é o resultado de uma compra. Warnings não vazio indica sucesso
// parcial: a venda aconteceu, mas a passagem do escrow não se completou.
type BuyResult struct {
	Asset      models.Asset    `json:"asset"`
	Seller     string          `json:"seller"`
	SaleNumber int             `json:"sale_number"`
	Price      decimal.Decimal `json:"price"`
	Receipts   Receipts        `json:"receipts"`
	Warnings   []string        `json:"warnings,omitempty"`
	Replayed   bool            `json:"replayed,omitempty"` // Venda já estava registrada com o mesmo recibo
}

// Buy compra um ativo listed.
//
// Ordem estrita, cada passo depende do recibo finalizado do anterior:
//  1. venda: aceita a oferta vigente ou, sem oferta, paga diretamente o vendedor
//     pelo preço de lista gravado;
//  2. ativo lastreado: finaliza o escrow antigo (liberando ao vendedor) e cria um
//     novo escrow do vendedor para o comprador com o mesmo valor. Falhas aqui são
//     toleradas e viram avisos, porque a venda já é irreversível;
//  3. grava dono, contagem e preço da venda, condicionado ao status listed;
//  4. grava a auditoria da venda e, se houver, da passagem do escrow.
//
// Uma venda cujo recibo já está registrado não é gravada de novo: o resultado
// volta com Replayed e o ativo atual.
//
// A passagem do escrow assina pelo vendedor sem credencial, então só funciona
// quando o gateway custodia a conta dele (keyring, no caso da Solana). Para
// vendedores não custodiados o resultado normal de revender um ativo lastreado
// é a venda concluída com aviso e o ativo listado em EscrowGaps.
func (s *TransferService) Buy(ctx context.Context, assetID string, buyer models.Party) (BuyResult, error) {
	if buyer.Identity == "" {
		return BuyResult{}, invalidArgument("identidade do comprador é obrigatória")
	}
	asset, err := loadAsset(ctx, s.DB, assetID)
	if err != nil {
		return BuyResult{}, err
	}
	if asset.Status != models.StatusListed {
		return BuyResult{}, wrongStatus(asset.ID, string(asset.Status), string(models.StatusListed))
	}
	if asset.ListPrice == nil {
		return BuyResult{}, invalidArgument(fmt.Sprintf("ativo %s listado sem preço", asset.ID))
	}
	if asset.Owner == buyer.Identity {
		return BuyResult{}, invalidArgument("comprador já é o dono do ativo")
	}

	seller := asset.Owner
	price := *asset.ListPrice
	saleNumber := asset.SaleCount + 1
	tag := models.SaleTag{
		AssetID:       asset.ID,
		SaleNumber:    saleNumber,
		SalePrice:     price,
		PreviousPrice: asset.LastSalePrice,
	}
	res := BuyResult{Seller: seller, SaleNumber: saleNumber, Price: price}

	// 1. Venda.
	var saleReceipt string
	if asset.OfferID != "" {
		saleReceipt, err = s.Ledger.SubmitAcceptOffer(ctx, buyer, models.Offer{
			ID:      asset.OfferID,
			TokenID: asset.TokenID,
			Seller:  seller,
			Price:   price,
		}, tag)
	} else {
		saleReceipt, err = s.Ledger.SubmitDirectPayment(ctx, buyer, seller, price, &tag)
	}
	if err != nil {
		return BuyResult{}, ledgerFailure("venda", err)
	}
	res.Receipts.Sale = saleReceipt
	s.log.Info().Str("asset_id", asset.ID).Str("receipt", saleReceipt).Int("sale_number", saleNumber).Msg("venda finalizada no ledger")

	updated := asset
	if err := transition(&updated, models.StatusOwned); err != nil {
		return BuyResult{}, err
	}
	at := now()
	updated.Owner = buyer.Identity
	updated.SaleCount = saleNumber
	updated.LastSalePrice = price
	updated.OfferID = ""
	updated.UpdatedAt = at

	purchase := newEntry(asset.ID, models.EntryPurchase, saleReceipt, at)
	purchase.From = buyer.Identity
	purchase.To = seller
	purchase.Amount = price
	purchase.SaleNumber = saleNumber
	entries := []models.LedgerEntry{purchase}

	// 2. Passagem do colateral.
	if asset.IsBacked() {
		backing, handoff, warnings := s.handOffEscrow(ctx, asset, buyer.Identity, &res.Receipts)
		updated.Backing = backing
		res.Warnings = append(res.Warnings, warnings...)
		if handoff != nil {
			handoff.CreatedAt = at
			entries = append(entries, *handoff)
		}
	}

	// 3 e 4. Persistência ancorada no recibo da venda.
	err = s.DB.ApplyTransition(ctx, updated, models.StatusListed, entries...)
	switch {
	case errors.Is(err, storage.ErrDuplicateReceipt):
		s.log.Info().Str("asset_id", asset.ID).Str("receipt", saleReceipt).Msg("venda já registrada com este recibo")
		current, loadErr := loadAsset(ctx, s.DB, asset.ID)
		if loadErr != nil {
			return BuyResult{}, loadErr
		}
		res.Asset = current
		res.Replayed = true
		return res, nil
	case isStale(err):
		s.log.Error().Str("asset_id", asset.ID).Str("receipt", saleReceipt).
			Msg("ERRO: venda finalizada no ledger, mas o ativo mudou antes do registro")
		return BuyResult{}, conflict(asset.ID, saleReceipt)
	case err != nil:
		s.log.Error().Err(err).Str("asset_id", asset.ID).Str("receipt", saleReceipt).
			Msg("ERRO: venda finalizada no ledger, mas falha ao salvar registro interno")
		return BuyResult{}, fmt.Errorf("venda enviada, mas falha ao registrar internamente: %w", err)
	}

	res.Asset = updated
	return res, nil
}

// handOffEscrow troca o escrow do vendedor por um novo destinado ao comprador.
// Devolve o lastro atualizado, o registro de auditoria da passagem (nil se o
// novo escrow não foi criado) e os avisos.
func (s *TransferService) handOffEscrow(ctx context.Context, asset models.Asset, buyer string, receipts *Receipts) (*models.Backing, *models.LedgerEntry, []string) {
	var warnings []string
	seller := models.Party{Identity: asset.Owner}
	amount := asset.Backing.Amount
	backing := &models.Backing{Amount: amount}

	old := asset.Backing.Escrow
	if old == nil {
		// Já estava sem escrow desde uma venda anterior: o vendedor atual nunca
		// recebeu colateral para refinanciar.
		s.log.Warn().Str("asset_id", asset.ID).Msg("ativo lastreado segue sem escrow vivo")
		return backing, nil, append(warnings, "ativo lastreado segue sem escrow vivo, requer recriação manual")
	}

	finishReceipt, err := s.Ledger.SubmitFinishEscrow(ctx, seller, *old)
	if err != nil {
		// O escrow pode já ter sido consumido por uma tentativa anterior.
		s.log.Warn().Err(err).Str("asset_id", asset.ID).Uint64("sequence", old.Sequence).Msg("falha ao finalizar escrow antigo")
		warnings = append(warnings, fmt.Sprintf("escrow anterior não finalizado: %v", err))
	} else {
		receipts.EscrowFinish = finishReceipt
	}

	ref, createReceipt, err := s.Ledger.SubmitCreateEscrow(ctx, seller, amount, buyer)
	if err != nil {
		s.log.Warn().Err(err).Str("asset_id", asset.ID).Msg("falha ao recriar escrow para o comprador; ativo sinalizado sem escrow")
		return backing, nil, append(warnings, fmt.Sprintf("escrow não recriado para o comprador, requer recriação manual: %v", err))
	}
	ref.Receipt = createReceipt
	backing.Escrow = &ref
	receipts.EscrowCreate = createReceipt

	entry := newEntry(asset.ID, models.EntryEscrowHandoff, createReceipt, now())
	entry.From = asset.Owner
	entry.To = buyer
	entry.Amount = amount
	entry.LinkReceipt = finishReceipt
	return backing, &entry, warnings
}
