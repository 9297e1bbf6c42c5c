package services

import (
	"context"
	"fmt"

	"github.com/ferreirogomes/lastro/metadata"
	"github.com/ferreirogomes/lastro/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const maxBatch = 100

// LifecycleService emite, lista e relista ativos.
type LifecycleService struct {
	DB     Store
	Ledger LedgerGateway
	Pinner MetadataPinner
	log    zerolog.Logger
}

// NewLifecycleService cria o controlador do ciclo de vida dos ativos.
func NewLifecycleService(db Store, ledger LedgerGateway, pinner MetadataPinner, logger zerolog.Logger) *LifecycleService {
	return &LifecycleService{
		DB:     db,
		Ledger: ledger,
		Pinner: pinner,
		log:    logger.With().Str("component", "lifecycle").Logger(),
	}
}

// MintRequest descreve uma emissão feita por um criador.
type MintRequest struct {
	Creator     models.Party
	AssetType   string
	Name        string
	Description string
	ImageURL    string
	ContentType string
	Properties  map[string]string
	ListPrice   decimal.Decimal
	Backing     decimal.Decimal // Zero para ativos sem lastro
	Quantity    int             // Zero equivale a 1
}

// MintResult é o resultado da emissão de um ativo.
type MintResult struct {
	Asset    models.Asset `json:"asset"`
	Receipts Receipts     `json:"receipts"`
	Warnings []string     `json:"warnings,omitempty"`
}

// unitSpec é um ativo a emitir, já com valores padrão resolvidos.
type unitSpec struct {
	AssetType    string
	Name         string
	Description  string
	ImageURL     string
	ContentType  string
	Properties   map[string]string
	ListPrice    decimal.Decimal
	Backing      decimal.Decimal
	PoolID       string
	PoolName     string
	RoyaltyShare decimal.Decimal
}

func (r MintRequest) validate() error {
	if r.Creator.Identity == "" {
		return invalidArgument("identidade do criador é obrigatória")
	}
	if !r.ListPrice.IsPositive() {
		return invalidArgument("preço de lista deve ser maior que zero")
	}
	if r.Backing.IsNegative() {
		return invalidArgument("lastro não pode ser negativo")
	}
	if r.Quantity < 0 || r.Quantity > maxBatch {
		return invalidArgument(fmt.Sprintf("quantidade deve estar entre 1 e %d", maxBatch))
	}
	return nil
}

// MintAndList emite Quantity ativos e cria a oferta de venda de cada um.
//
// Cada ativo é gravado como minted assim que o mint finaliza, e só passa para
// listed depois que a oferta finaliza. Falha na oferta ou na criação do escrow
// não é erro: o ativo fica gravado e o resultado carrega um aviso. Se o mint de
// uma unidade falhar, as unidades anteriores já gravadas são devolvidas junto
// com o erro.
func (s *LifecycleService) MintAndList(ctx context.Context, req MintRequest) ([]MintResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	qty := req.Quantity
	if qty == 0 {
		qty = 1
	}
	assetType := req.AssetType
	if assetType == "" {
		assetType = models.AssetTypeDigital
	}

	results := make([]MintResult, 0, qty)
	for i := 0; i < qty; i++ {
		name := req.Name
		if name == "" {
			name = fmt.Sprintf("Asset #%d", i+1)
		} else if qty > 1 {
			name = fmt.Sprintf("%s #%d", req.Name, i+1)
		}
		description := req.Description
		if description == "" {
			description = "Ativo digital de " + req.Creator.Identity
		}

		res, err := s.mintAndListOne(ctx, req.Creator, unitSpec{
			AssetType:   assetType,
			Name:        name,
			Description: description,
			ImageURL:    req.ImageURL,
			ContentType: req.ContentType,
			Properties:  req.Properties,
			ListPrice:   req.ListPrice,
			Backing:     req.Backing,
		})
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *LifecycleService) mintAndListOne(ctx context.Context, creator models.Party, u unitSpec) (MintResult, error) {
	asset, entries, res, err := s.mint(ctx, creator, u)
	if err != nil {
		return MintResult{}, err
	}
	if err := s.DB.InsertAsset(ctx, asset, entries...); err != nil {
		// O token já existe no ledger; sem o registro interno ele fica órfão.
		s.log.Error().Err(err).Str("token_id", asset.TokenID).Str("receipt", res.Receipts.Mint).
			Msg("ERRO: token emitido no ledger, mas falha ao salvar registro interno")
		return MintResult{}, fmt.Errorf("token emitido, mas falha ao registrar internamente: %w", err)
	}

	listed, entry, offerReceipt, err := s.list(ctx, creator, asset, u.ListPrice, models.EntryList)
	if err != nil {
		s.log.Warn().Err(err).Str("asset_id", asset.ID).Msg("oferta inicial falhou; ativo permanece minted")
		res.Asset = asset
		res.Warnings = append(res.Warnings, fmt.Sprintf("oferta de venda não criada: %v", err))
		return res, nil
	}
	res.Receipts.Offer = offerReceipt
	if err := s.DB.ApplyTransition(ctx, listed, models.StatusMinted, entry); err != nil {
		s.log.Error().Err(err).Str("asset_id", asset.ID).Str("receipt", offerReceipt).
			Msg("ERRO: oferta criada no ledger, mas falha ao registrar listagem")
		res.Asset = asset
		return res, fmt.Errorf("oferta criada, mas falha ao registrar listagem: %w", err)
	}
	res.Asset = listed
	return res, nil
}

// mint grava os metadados, emite o token e, se houver lastro, cria o escrow
// do criador para ele mesmo. Não persiste nada.
func (s *LifecycleService) mint(ctx context.Context, creator models.Party, u unitSpec) (models.Asset, []models.LedgerEntry, MintResult, error) {
	var res MintResult

	doc, err := metadata.Build(metadata.Params{
		Name:         u.Name,
		Description:  u.Description,
		ImageURL:     u.ImageURL,
		AssetType:    u.AssetType,
		Creator:      creator.Identity,
		Backing:      u.Backing,
		PoolName:     u.PoolName,
		RoyaltyShare: u.RoyaltyShare,
		Properties:   u.Properties,
		ContentType:  u.ContentType,
	}).Marshal()
	if err != nil {
		return models.Asset{}, nil, res, err
	}
	uri, err := s.Pinner.Pin(ctx, doc)
	if err != nil {
		return models.Asset{}, nil, res, fmt.Errorf("falha ao gravar metadados: %w", err)
	}

	tokenID, mintReceipt, err := s.Ledger.SubmitMint(ctx, creator, models.MintSpec{
		MetadataURI: uri,
		Name:        u.Name,
		AssetType:   u.AssetType,
	})
	if err != nil {
		return models.Asset{}, nil, res, ledgerFailure("mint", err)
	}
	res.Receipts.Mint = mintReceipt

	at := now()
	asset := models.Asset{
		ID:            uuid.New().String(),
		TokenID:       tokenID,
		Creator:       creator.Identity,
		AssetType:     u.AssetType,
		Name:          u.Name,
		Description:   u.Description,
		ImageURL:      u.ImageURL,
		MetadataURI:   uri,
		LastSalePrice: decimal.Zero,
		RoyaltyPoolID: u.PoolID,
		RoyaltyShare:  u.RoyaltyShare,
		Status:        models.StatusMinted,
		Owner:         creator.Identity,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
	price := u.ListPrice
	asset.ListPrice = &price

	mintEntry := newEntry(asset.ID, models.EntryMint, mintReceipt, at)
	mintEntry.From = creator.Identity
	entries := []models.LedgerEntry{mintEntry}

	if u.Backing.IsPositive() {
		asset.Backing = &models.Backing{Amount: u.Backing}
		ref, escrowReceipt, err := s.Ledger.SubmitCreateEscrow(ctx, creator, u.Backing, creator.Identity)
		if err != nil {
			s.log.Warn().Err(err).Str("asset_id", asset.ID).Str("token_id", tokenID).
				Msg("escrow de lastro não criado; ativo fica sinalizado sem escrow")
			res.Warnings = append(res.Warnings, fmt.Sprintf("escrow de lastro não criado, requer recriação manual: %v", err))
		} else {
			ref.Receipt = escrowReceipt
			asset.Backing.Escrow = &ref
			res.Receipts.EscrowCreate = escrowReceipt

			e := newEntry(asset.ID, models.EntryEscrowCreate, escrowReceipt, at)
			e.From = creator.Identity
			e.To = creator.Identity
			e.Amount = u.Backing
			entries = append(entries, e)
		}
	}

	s.log.Info().Str("asset_id", asset.ID).Str("token_id", tokenID).Str("receipt", mintReceipt).Msg("token emitido")
	return asset, entries, res, nil
}

// list cria a oferta de venda e devolve o ativo já em listed, sem persistir.
func (s *LifecycleService) list(ctx context.Context, seller models.Party, asset models.Asset, price decimal.Decimal, kind models.EntryKind) (models.Asset, models.LedgerEntry, string, error) {
	if asset.TokenID == "" {
		return models.Asset{}, models.LedgerEntry{}, "", invalidArgument(fmt.Sprintf("ativo %s não tokenizado", asset.ID))
	}
	if err := transition(&asset, models.StatusListed); err != nil {
		return models.Asset{}, models.LedgerEntry{}, "", err
	}

	offerID, receipt, err := s.Ledger.SubmitOffer(ctx, seller, asset.TokenID, price)
	if err != nil {
		return models.Asset{}, models.LedgerEntry{}, "", ledgerFailure("oferta de venda", err)
	}

	at := now()
	asset.OfferID = offerID
	asset.ListPrice = &price
	asset.UpdatedAt = at

	entry := newEntry(asset.ID, kind, receipt, at)
	entry.From = seller.Identity
	entry.Amount = price
	return asset, entry, receipt, nil
}

// RelistResult é o resultado de uma relistagem.
type RelistResult struct {
	Asset    models.Asset `json:"asset"`
	Receipts Receipts     `json:"receipts"`
}

// Relist coloca à venda um ativo owned. Lastro e escrow não mudam.
func (s *LifecycleService) Relist(ctx context.Context, assetID string, owner models.Party, price decimal.Decimal) (RelistResult, error) {
	if owner.Identity == "" {
		return RelistResult{}, invalidArgument("identidade do dono é obrigatória")
	}
	if !price.IsPositive() {
		return RelistResult{}, invalidArgument("preço de lista deve ser maior que zero")
	}
	asset, err := loadAsset(ctx, s.DB, assetID)
	if err != nil {
		return RelistResult{}, err
	}
	if asset.Status != models.StatusOwned {
		return RelistResult{}, wrongStatus(asset.ID, string(asset.Status), string(models.StatusOwned))
	}
	if asset.Owner != owner.Identity {
		return RelistResult{}, unauthorized("somente o dono pode relistar o ativo")
	}

	listed, entry, receipt, err := s.list(ctx, owner, asset, price, models.EntryRelist)
	if err != nil {
		return RelistResult{}, err
	}
	if err := s.DB.ApplyTransition(ctx, listed, models.StatusOwned, entry); err != nil {
		s.log.Error().Err(err).Str("asset_id", asset.ID).Str("receipt", receipt).
			Msg("ERRO: oferta criada no ledger, mas falha ao registrar relistagem")
		if isStale(err) {
			return RelistResult{}, conflict(asset.ID, receipt)
		}
		return RelistResult{}, fmt.Errorf("oferta criada, mas falha ao registrar relistagem: %w", err)
	}

	s.log.Info().Str("asset_id", asset.ID).Str("price", price.String()).Msg("ativo relistado")
	return RelistResult{Asset: listed, Receipts: Receipts{Offer: receipt}}, nil
}
