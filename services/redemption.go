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

// RedemptionService troca um ativo lastreado pelo seu colateral.
type RedemptionService struct {
	DB     Store
	Ledger LedgerGateway
	log    zerolog.Logger
}

// NewRedemptionService cria o serviço de resgate.
func NewRedemptionService(db Store, ledger LedgerGateway, logger zerolog.Logger) *RedemptionService {
	return &RedemptionService{
		DB:     db,
		Ledger: ledger,
		log:    logger.With().Str("component", "redemption").Logger(),
	}
}

// RedeemResult é o resultado de um resgate.
type RedeemResult struct {
	Asset    models.Asset    `json:"asset"`
	Redeemed decimal.Decimal `json:"redeemed"`
	Receipts Receipts        `json:"receipts"`
	Warnings []string        `json:"warnings,omitempty"`
}

// Redeem libera o colateral ao dono e destrói o token.
//
// Todas as pré-condições são verificadas antes de qualquer chamada ao ledger.
// Se a finalização do escrow falhar nada muda e a operação pode ser repetida.
// Se o burn falhar depois do escrow finalizado, o ativo é gravado como
// redeemed com BurnPending e o resultado carrega um aviso.
func (s *RedemptionService) Redeem(ctx context.Context, assetID string, owner models.Party) (RedeemResult, error) {
	if owner.Identity == "" {
		return RedeemResult{}, invalidArgument("identidade do dono é obrigatória")
	}
	asset, err := loadAsset(ctx, s.DB, assetID)
	if err != nil {
		return RedeemResult{}, err
	}
	if asset.Status != models.StatusListed && asset.Status != models.StatusOwned {
		return RedeemResult{}, wrongStatus(asset.ID, string(asset.Status), string(models.StatusListed), string(models.StatusOwned))
	}
	if asset.Owner != owner.Identity {
		return RedeemResult{}, unauthorized("somente o dono pode resgatar o ativo")
	}
	if !asset.IsBacked() {
		return RedeemResult{}, newError(CodeNoBacking, fmt.Sprintf("ativo %s não tem lastro para resgatar", asset.ID), map[string]string{"asset_id": asset.ID})
	}
	if asset.Backing.Escrow == nil {
		return RedeemResult{}, newError(CodeEscrowMissing, fmt.Sprintf("ativo %s está sem escrow vivo", asset.ID), map[string]string{"asset_id": asset.ID})
	}

	amount := asset.Backing.Amount
	res := RedeemResult{Redeemed: amount}

	finishReceipt, err := s.Ledger.SubmitFinishEscrow(ctx, owner, *asset.Backing.Escrow)
	if err != nil {
		return RedeemResult{}, ledgerFailure("finalização do escrow", err)
	}
	res.Receipts.EscrowFinish = finishReceipt
	s.log.Info().Str("asset_id", asset.ID).Str("receipt", finishReceipt).Str("amount", amount.String()).Msg("colateral liberado ao dono")

	updated := asset
	if err := transition(&updated, models.StatusRedeemed); err != nil {
		return RedeemResult{}, err
	}
	at := now()
	updated.Backing = nil
	updated.OfferID = ""
	updated.UpdatedAt = at

	entry := newEntry(asset.ID, models.EntryRedeem, finishReceipt, at)
	entry.From = owner.Identity
	entry.To = owner.Identity
	entry.Amount = amount

	burnReceipt, err := s.Ledger.SubmitBurn(ctx, owner, asset.TokenID)
	if err != nil {
		s.log.Warn().Err(err).Str("asset_id", asset.ID).Str("token_id", asset.TokenID).Msg("burn falhou após liberar o colateral; burn fica pendente")
		updated.BurnPending = true
		res.Warnings = append(res.Warnings, fmt.Sprintf("colateral liberado, mas o burn do token ficou pendente: %v", err))
	} else {
		res.Receipts.Burn = burnReceipt
		entry.Receipt = burnReceipt
		entry.LinkReceipt = finishReceipt
	}

	err = s.DB.ApplyTransition(ctx, updated, asset.Status, entry)
	switch {
	case errors.Is(err, storage.ErrDuplicateReceipt):
		current, loadErr := loadAsset(ctx, s.DB, asset.ID)
		if loadErr != nil {
			return RedeemResult{}, loadErr
		}
		res.Asset = current
		return res, nil
	case isStale(err):
		s.log.Error().Str("asset_id", asset.ID).Str("receipt", finishReceipt).
			Msg("ERRO: colateral liberado no ledger, mas o ativo mudou antes do registro")
		return RedeemResult{}, conflict(asset.ID, finishReceipt)
	case err != nil:
		s.log.Error().Err(err).Str("asset_id", asset.ID).Str("receipt", finishReceipt).
			Msg("ERRO: colateral liberado no ledger, mas falha ao salvar registro interno")
		return RedeemResult{}, fmt.Errorf("resgate enviado, mas falha ao registrar internamente: %w", err)
	}

	res.Asset = updated
	return res, nil
}

// ConfirmBurn resolve o burn pendente de um ativo resgatado. Se o token ainda
// existe no ledger, o burn é reenviado. Devolve true quando o token não existe
// mais e a pendência foi limpa.
func (s *RedemptionService) ConfirmBurn(ctx context.Context, assetID string) (bool, error) {
	asset, err := loadAsset(ctx, s.DB, assetID)
	if err != nil {
		return false, err
	}
	if asset.Status != models.StatusRedeemed {
		return false, wrongStatus(asset.ID, string(asset.Status), string(models.StatusRedeemed))
	}
	if !asset.BurnPending {
		return true, nil
	}

	burned, err := s.Ledger.TokenBurned(ctx, asset.TokenID)
	if err != nil {
		return false, ledgerFailure("consulta do token", err)
	}

	var entries []models.LedgerEntry
	if !burned {
		receipt, err := s.Ledger.SubmitPendingBurn(ctx, asset.Owner, asset.TokenID)
		if err != nil {
			return false, ledgerFailure("burn", err)
		}
		e := newEntry(asset.ID, models.EntryRedeem, receipt, now())
		e.From = asset.Owner
		entries = append(entries, e)
	}

	asset.BurnPending = false
	asset.UpdatedAt = now()
	if err := s.DB.ApplyTransition(ctx, asset, models.StatusRedeemed, entries...); err != nil && !errors.Is(err, storage.ErrDuplicateReceipt) {
		return false, fmt.Errorf("falha ao registrar burn confirmado: %w", err)
	}
	s.log.Info().Str("asset_id", asset.ID).Str("token_id", asset.TokenID).Msg("burn confirmado")
	return true, nil
}
