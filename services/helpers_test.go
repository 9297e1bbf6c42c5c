package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ferreirogomes/lastro/metadata"
	"github.com/ferreirogomes/lastro/models"
	"github.com/ferreirogomes/lastro/services/ledgermock"
	"github.com/ferreirogomes/lastro/storage"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var _ LedgerGateway = (*ledgermock.Gateway)(nil)

var (
	alice = models.Party{Identity: "alice"}
	bob   = models.Party{Identity: "bob"}
	carol = models.Party{Identity: "carol"}
	dave  = models.Party{Identity: "dave"}
)

// harness liga os serviços a um SQLite temporário e ao ledger em memória.
type harness struct {
	db         *storage.DB
	ledger     *ledgermock.Gateway
	pins       *metadata.Store
	lifecycle  *LifecycleService
	transfer   *TransferService
	redemption *RedemptionService
	royalty    *RoyaltyService
	market     *MarketplaceService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "lastro.db") + "?_time_format=sqlite"
	db, err := storage.NewDB(storage.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pins, err := metadata.NewStore("")
	require.NoError(t, err)

	ledger := ledgermock.New()
	logger := zerolog.Nop()
	lifecycle := NewLifecycleService(db, ledger, pins, logger)
	return &harness{
		db:         db,
		ledger:     ledger,
		pins:       pins,
		lifecycle:  lifecycle,
		transfer:   NewTransferService(db, ledger, logger),
		redemption: NewRedemptionService(db, ledger, logger),
		royalty:    NewRoyaltyService(db, ledger, lifecycle, DefaultRoyaltyOptions(), logger),
		market:     NewMarketplaceService(db),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// mintListed emite um ativo de alice já listado.
func (h *harness) mintListed(t *testing.T, price, backing string) models.Asset {
	t.Helper()
	res, err := h.lifecycle.MintAndList(context.Background(), MintRequest{
		Creator:   alice,
		Name:      "Obra",
		ListPrice: dec(price),
		Backing:   dec(backing),
	})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, models.StatusListed, res[0].Asset.Status)
	return res[0].Asset
}

func (h *harness) asset(t *testing.T, id string) models.Asset {
	t.Helper()
	a, err := h.db.GetAsset(context.Background(), id)
	require.NoError(t, err)
	return a
}

func requireCode(t *testing.T, err error, code Code) *Error {
	t.Helper()
	require.Error(t, err)
	var se *Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, code, se.Code, "erro: %v", err)
	return se
}

// staleStore devolve sempre a mesma foto do ativo, simulando uma leitura
// feita antes de uma escrita concorrente.
type staleStore struct {
	Store
	snapshot models.Asset
}

func (s staleStore) GetAsset(_ context.Context, id string) (models.Asset, error) {
	if id == s.snapshot.ID {
		return s.snapshot, nil
	}
	return s.Store.GetAsset(context.Background(), id)
}

// staleOnce devolve a foto do ativo só na primeira leitura; as seguintes vão
// ao banco.
type staleOnce struct {
	Store
	snapshot models.Asset
	served   bool
}

func (s *staleOnce) GetAsset(ctx context.Context, id string) (models.Asset, error) {
	if id == s.snapshot.ID && !s.served {
		s.served = true
		return s.snapshot, nil
	}
	return s.Store.GetAsset(ctx, id)
}

// idempotentSales devolve o recibo da primeira aceitação quando a mesma oferta
// é aceita de novo, como um ledger que deduplica pelo ID da oferta.
type idempotentSales struct {
	*ledgermock.Gateway
	receipts map[string]string
}

func (g *idempotentSales) SubmitAcceptOffer(ctx context.Context, buyer models.Party, offer models.Offer, tag models.SaleTag) (string, error) {
	if receipt, ok := g.receipts[offer.ID]; ok {
		return receipt, nil
	}
	receipt, err := g.Gateway.SubmitAcceptOffer(ctx, buyer, offer, tag)
	if err == nil {
		g.receipts[offer.ID] = receipt
	}
	return receipt, err
}
