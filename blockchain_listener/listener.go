package blockchain_listener

import (
	"context"
	"time"

	"github.com/ferreirogomes/lastro/models"

	"github.com/rs/zerolog"
)

// BurnSource é o que o listener precisa para resolver burns pendentes.
// *services.MarketplaceService e *services.RedemptionService atendem.
type BurnSource interface {
	PendingBurns(ctx context.Context) ([]models.Asset, error)
}

type BurnConfirmer interface {
	ConfirmBurn(ctx context.Context, assetID string) (bool, error)
}

// BlockchainListener acompanha o ledger para fechar resgates cujo burn falhou.
type BlockchainListener struct {
	Source    BurnSource
	Confirmer BurnConfirmer
	Interval  time.Duration
	log       zerolog.Logger
}

// NewBlockchainListener cria o listener. interval <= 0 usa 30s.
func NewBlockchainListener(source BurnSource, confirmer BurnConfirmer, interval time.Duration, logger zerolog.Logger) *BlockchainListener {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &BlockchainListener{
		Source:    source,
		Confirmer: confirmer,
		Interval:  interval,
		log:       logger.With().Str("component", "listener").Logger(),
	}
}

// StartListening roda até ctx ser cancelado, verificando os burns pendentes a cada Interval.
func (l *BlockchainListener) StartListening(ctx context.Context) {
	l.log.Info().Dur("interval", l.Interval).Msg("Iniciando listener da blockchain...")
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	for {
		l.Poll(ctx)
		select {
		case <-ctx.Done():
			l.log.Info().Msg("listener encerrado")
			return
		case <-ticker.C:
		}
	}
}

// Poll faz uma passada sobre os burns pendentes e devolve quantos foram confirmados.
// Falha em um ativo não interrompe os demais.
func (l *BlockchainListener) Poll(ctx context.Context) int {
	pending, err := l.Source.PendingBurns(ctx)
	if err != nil {
		l.log.Error().Err(err).Msg("falha ao listar burns pendentes")
		return 0
	}
	confirmed := 0
	for _, a := range pending {
		if ctx.Err() != nil {
			break
		}
		ok, err := l.Confirmer.ConfirmBurn(ctx, a.ID)
		if err != nil {
			l.log.Warn().Err(err).Str("asset_id", a.ID).Str("token_id", a.TokenID).Msg("burn ainda pendente")
			continue
		}
		if ok {
			confirmed++
		}
	}
	if len(pending) > 0 {
		l.log.Info().Int("pending", len(pending)).Int("confirmed", confirmed).Msg("verificação de burns concluída")
	}
	return confirmed
}
