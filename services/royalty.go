package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/ferreirogomes/lastro/models"
	"github.com/ferreirogomes/lastro/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const maxPoolUnits = 100

var (
	hundred        = decimal.NewFromInt(100)
	defaultDust, _ = decimal.NewFromString("0.000001")
)

// RoyaltyOptions ajusta a política numérica da distribuição.
type RoyaltyOptions struct {
	AmountPlaces  int32           // Casas decimais da menor unidade transferível no ledger
	DustThreshold decimal.Decimal // Titulares abaixo deste valor não são pagos
}

// DefaultRoyaltyOptions são 6 casas decimais e poeira abaixo de 1e-6.
func DefaultRoyaltyOptions() RoyaltyOptions {
	return RoyaltyOptions{AmountPlaces: 6, DustThreshold: defaultDust}
}

// RoyaltyService cria pools de royalties e distribui depósitos entre os titulares.
type RoyaltyService struct {
	DB        Store
	Ledger    LedgerGateway
	Lifecycle *LifecycleService
	opts      RoyaltyOptions
	log       zerolog.Logger
}

// NewRoyaltyService cria o motor de distribuição.
func NewRoyaltyService(db Store, ledger LedgerGateway, lifecycle *LifecycleService, opts RoyaltyOptions, logger zerolog.Logger) *RoyaltyService {
	if opts.AmountPlaces <= 0 {
		opts.AmountPlaces = DefaultRoyaltyOptions().AmountPlaces
	}
	if !opts.DustThreshold.IsPositive() {
		opts.DustThreshold = defaultDust
	}
	return &RoyaltyService{
		DB:        db,
		Ledger:    ledger,
		Lifecycle: lifecycle,
		opts:      opts,
		log:       logger.With().Str("component", "royalty").Logger(),
	}
}

// CreatePoolRequest descreve um pool e suas unidades.
type CreatePoolRequest struct {
	Creator     models.Party
	Name        string
	Description string
	ImageURL    string
	Units       int
	UnitShare   decimal.Decimal // Percentual de cada unidade
	ListPrice   decimal.Decimal
}

// PoolResult é o resultado da criação de um pool.
type PoolResult struct {
	Pool     models.RoyaltyPool `json:"pool"`
	Assets   []models.Asset     `json:"assets"`
	Receipts []Receipts         `json:"receipts"`
}

func (r CreatePoolRequest) validate() error {
	if r.Creator.Identity == "" {
		return invalidArgument("identidade do criador é obrigatória")
	}
	if r.Name == "" {
		return invalidArgument("nome do pool é obrigatório")
	}
	if r.Units < 1 || r.Units > maxPoolUnits {
		return invalidArgument(fmt.Sprintf("unidades devem estar entre 1 e %d", maxPoolUnits))
	}
	if !r.UnitShare.IsPositive() {
		return invalidArgument("participação por unidade deve ser maior que zero")
	}
	if r.UnitShare.Mul(decimal.NewFromInt(int64(r.Units))).GreaterThan(hundred) {
		return invalidArgument("soma das participações não pode passar de 100%")
	}
	if !r.ListPrice.IsPositive() {
		return invalidArgument("preço de lista deve ser maior que zero")
	}
	return nil
}

// CreatePool emite e lista todas as unidades do pool e só então grava o pool
// e seus ativos numa única transação. Se uma chamada ao ledger falhar no meio
// do lote nada é gravado e o erro é um *BatchMintError com os tokens já emitidos.
func (s *RoyaltyService) CreatePool(ctx context.Context, req CreatePoolRequest) (PoolResult, error) {
	if err := req.validate(); err != nil {
		return PoolResult{}, err
	}

	at := now()
	pool := models.RoyaltyPool{
		ID:               uuid.New().String(),
		Creator:          req.Creator.Identity,
		Name:             req.Name,
		Description:      req.Description,
		TotalUnits:       req.Units,
		UnitShare:        req.UnitShare,
		TotalDeposited:   decimal.Zero,
		TotalDistributed: decimal.Zero,
		CreatedAt:        at,
	}

	res := PoolResult{Pool: pool}
	var (
		entries []models.LedgerEntry
		minted  []string
	)
	fail := func(err error) (PoolResult, error) {
		s.log.Error().Err(err).Str("pool_id", pool.ID).Strs("minted", minted).
			Msg("ERRO: criação do pool interrompida; tokens emitidos precisam de limpeza manual")
		return PoolResult{}, &BatchMintError{Minted: minted, Cause: err}
	}

	for i := 0; i < req.Units; i++ {
		asset, mintEntries, mr, err := s.Lifecycle.mint(ctx, req.Creator, unitSpec{
			AssetType:    models.AssetTypeRoyalty,
			Name:         fmt.Sprintf("%s #%d", req.Name, i+1),
			Description:  req.Description,
			ImageURL:     req.ImageURL,
			ListPrice:    req.ListPrice,
			PoolID:       pool.ID,
			PoolName:     pool.Name,
			RoyaltyShare: req.UnitShare,
		})
		if err != nil {
			return fail(err)
		}
		minted = append(minted, asset.TokenID)

		listed, listEntry, offerReceipt, err := s.Lifecycle.list(ctx, req.Creator, asset, req.ListPrice, models.EntryList)
		if err != nil {
			return fail(err)
		}
		mr.Receipts.Offer = offerReceipt

		res.Assets = append(res.Assets, listed)
		res.Receipts = append(res.Receipts, mr.Receipts)
		entries = append(entries, mintEntries...)
		entries = append(entries, listEntry)
	}

	if err := s.DB.CreatePool(ctx, pool, res.Assets, entries); err != nil {
		s.log.Error().Err(err).Str("pool_id", pool.ID).Strs("minted", minted).
			Msg("ERRO: unidades emitidas no ledger, mas falha ao salvar pool")
		return PoolResult{}, fmt.Errorf("pool emitido, mas falha ao registrar internamente: %w", err)
	}

	s.log.Info().Str("pool_id", pool.ID).Int("units", req.Units).Msg("pool de royalties criado")
	return res, nil
}

// PayoutFailure é um titular que não recebeu na rodada.
type PayoutFailure struct {
	Holder  string          `json:"holder"`
	Amount  decimal.Decimal `json:"amount"`
	Receipt string          `json:"receipt,omitempty"` // Preenchido quando o pagamento finalizou mas o registro falhou
	Reason  string          `json:"reason"`
}

// SkippedHolder é um titular cujo valor ficou abaixo do limite de poeira.
type SkippedHolder struct {
	Holder string          `json:"holder"`
	Amount decimal.Decimal `json:"amount"`
}

// DistributionResult é o resultado de uma rodada. Failures não vazio não é
// erro: a rodada fecha mesmo com titulares sem pagamento.
type DistributionResult struct {
	Deposit        models.RoyaltyDeposit  `json:"deposit"`
	Payouts        []models.RoyaltyPayout `json:"payouts"`
	Failures       []PayoutFailure        `json:"failures,omitempty"`
	Skipped        []SkippedHolder        `json:"skipped,omitempty"`
	Holders        int                    `json:"holders"`
	TotalShareHeld decimal.Decimal        `json:"total_share_held"`
	TotalPaid      decimal.Decimal        `json:"total_paid"`
}

// holding agrupa os ativos de um titular no pool.
type holding struct {
	owner  string
	share  decimal.Decimal
	assets []models.Asset
}

// Distribute divide amount entre os titulares externos do pool, na proporção
// da participação que cada um detém.
//
// O depósito é gravado como distributing antes de qualquer pagamento. Cada
// titular recebe um único pagamento, e a falha de um não interrompe os outros.
// Ao final o depósito fecha como distributed e os totais do pool são somados.
func (s *RoyaltyService) Distribute(ctx context.Context, poolID string, amount decimal.Decimal, caller models.Party) (DistributionResult, error) {
	if !amount.IsPositive() {
		return DistributionResult{}, invalidArgument("valor do depósito deve ser maior que zero")
	}
	pool, err := loadPool(ctx, s.DB, poolID)
	if err != nil {
		return DistributionResult{}, err
	}
	if caller.Identity != pool.Creator {
		return DistributionResult{}, unauthorized("somente o criador do pool pode distribuir royalties")
	}

	holdings, totalShare, err := s.holdings(ctx, pool)
	if err != nil {
		return DistributionResult{}, err
	}
	if len(holdings) == 0 || !totalShare.IsPositive() {
		return DistributionResult{}, newError(CodeNoHolders, fmt.Sprintf("pool %s não tem titulares externos", pool.ID), map[string]string{"pool_id": pool.ID})
	}

	deposit := models.RoyaltyDeposit{
		ID:        uuid.New().String(),
		PoolID:    pool.ID,
		Depositor: caller.Identity,
		Amount:    amount,
		Status:    models.DepositDistributing,
		CreatedAt: now(),
	}
	if err := s.DB.InsertDeposit(ctx, deposit); err != nil {
		return DistributionResult{}, fmt.Errorf("falha ao registrar depósito: %w", err)
	}

	res := DistributionResult{
		Deposit:        deposit,
		Holders:        len(holdings),
		TotalShareHeld: totalShare,
		TotalPaid:      decimal.Zero,
	}
	for _, h := range holdings {
		s.payHolder(ctx, pool, deposit, caller, h, totalShare, &res)
	}

	if err := s.DB.CloseDeposit(ctx, deposit.ID, pool.ID, amount, res.TotalPaid); err != nil {
		s.log.Error().Err(err).Str("deposit_id", deposit.ID).Msg("ERRO: pagamentos enviados, mas falha ao fechar depósito")
		return res, fmt.Errorf("falha ao fechar depósito %s: %w", deposit.ID, err)
	}
	res.Deposit.Status = models.DepositDistributed

	s.log.Info().Str("pool_id", pool.ID).Str("deposit_id", deposit.ID).
		Str("amount", amount.String()).Str("paid", res.TotalPaid.String()).
		Int("failures", len(res.Failures)).Int("skipped", len(res.Skipped)).
		Msg("rodada de royalties concluída")
	return res, nil
}

// holdings agrupa por dono os ativos do pool que estão com terceiros, em ordem de identidade.
func (s *RoyaltyService) holdings(ctx context.Context, pool models.RoyaltyPool) ([]holding, decimal.Decimal, error) {
	members, err := s.DB.ListAssets(ctx, storage.AssetFilter{
		PoolID:       pool.ID,
		Statuses:     []models.AssetStatus{models.StatusListed, models.StatusOwned},
		ExcludeOwner: pool.Creator,
	})
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("falha ao carregar ativos do pool: %w", err)
	}

	byOwner := make(map[string]*holding)
	total := decimal.Zero
	for _, a := range members {
		if !a.RoyaltyShare.IsPositive() {
			continue
		}
		h, ok := byOwner[a.Owner]
		if !ok {
			h = &holding{owner: a.Owner, share: decimal.Zero}
			byOwner[a.Owner] = h
		}
		h.share = h.share.Add(a.RoyaltyShare)
		h.assets = append(h.assets, a)
		total = total.Add(a.RoyaltyShare)
	}

	out := make([]holding, 0, len(byOwner))
	for _, h := range byOwner {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].owner < out[j].owner })
	return out, total, nil
}

// payHolder paga um titular e grava uma linha por ativo. O resultado de cada
// titular é acumulado em res.
func (s *RoyaltyService) payHolder(ctx context.Context, pool models.RoyaltyPool, deposit models.RoyaltyDeposit, payer models.Party, h holding, totalShare decimal.Decimal, res *DistributionResult) {
	raw := h.share.Div(totalShare).Mul(deposit.Amount)
	if raw.LessThan(s.opts.DustThreshold) {
		res.Skipped = append(res.Skipped, SkippedHolder{Holder: h.owner, Amount: raw})
		return
	}

	payouts := make([]models.RoyaltyPayout, 0, len(h.assets))
	total := decimal.Zero
	for _, a := range h.assets {
		amt := a.RoyaltyShare.Mul(deposit.Amount).Div(totalShare).Truncate(s.opts.AmountPlaces)
		total = total.Add(amt)
		payouts = append(payouts, models.RoyaltyPayout{
			ID:        uuid.New().String(),
			DepositID: deposit.ID,
			PoolID:    pool.ID,
			AssetID:   a.ID,
			Holder:    h.owner,
			Amount:    amt,
			Status:    models.PayoutCompleted,
		})
	}
	if !total.IsPositive() {
		res.Skipped = append(res.Skipped, SkippedHolder{Holder: h.owner, Amount: raw})
		return
	}

	receipt, err := s.Ledger.SubmitDirectPayment(ctx, payer, h.owner, total, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("deposit_id", deposit.ID).Str("owner", h.owner).Msg("pagamento de royalties falhou")
		res.Failures = append(res.Failures, PayoutFailure{Holder: h.owner, Amount: total, Reason: err.Error()})
		return
	}

	at := now()
	for i := range payouts {
		payouts[i].Receipt = receipt
		payouts[i].CreatedAt = at
	}
	res.TotalPaid = res.TotalPaid.Add(total)
	if err := s.DB.InsertPayouts(ctx, payouts); err != nil {
		// O dinheiro já saiu: conta como pago e fica visível pelo recibo.
		s.log.Error().Err(err).Str("deposit_id", deposit.ID).Str("owner", h.owner).Str("receipt", receipt).
			Msg("ERRO: royalties pagos no ledger, mas falha ao registrar pagamento")
		res.Failures = append(res.Failures, PayoutFailure{
			Holder:  h.owner,
			Amount:  total,
			Receipt: receipt,
			Reason:  fmt.Sprintf("pagamento enviado, mas não registrado: %v", err),
		})
		return
	}
	res.Payouts = append(res.Payouts, payouts...)
}
