package services

import (
	"context"
	"errors"
	"testing"

	"github.com/ferreirogomes/lastro/models"
	"github.com/ferreirogomes/lastro/services/ledgermock"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) createPool(t *testing.T, units int, share string) PoolResult {
	t.Helper()
	res, err := h.royalty.CreatePool(context.Background(), CreatePoolRequest{
		Creator:   alice,
		Name:      "Catalogo",
		Units:     units,
		UnitShare: dec(share),
		ListPrice: dec("5"),
	})
	require.NoError(t, err)
	return res
}

func (h *harness) buyAll(t *testing.T, assets []models.Asset, buyers ...models.Party) {
	t.Helper()
	require.Len(t, buyers, len(assets))
	for i, a := range assets {
		_, err := h.transfer.Buy(context.Background(), a.ID, buyers[i])
		require.NoError(t, err)
	}
}

func TestCreatePoolMintsAndListsUnits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.createPool(t, 4, "2.5")
	require.Len(t, res.Assets, 4)
	require.Len(t, res.Receipts, 4)
	assert.Equal(t, "Catalogo #1", res.Assets[0].Name)

	for _, a := range res.Assets {
		stored := h.asset(t, a.ID)
		assert.Equal(t, models.StatusListed, stored.Status)
		assert.Equal(t, models.AssetTypeRoyalty, stored.AssetType)
		assert.Equal(t, res.Pool.ID, stored.RoyaltyPoolID)
		assert.True(t, stored.RoyaltyShare.Equal(dec("2.5")))
		assert.NotEmpty(t, stored.OfferID)
	}

	pool, err := h.db.GetPool(ctx, res.Pool.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, pool.TotalUnits)
	assert.True(t, pool.TotalDeposited.IsZero())
}

func TestCreatePoolValidation(t *testing.T) {
	h := newHarness(t)

	cases := map[string]CreatePoolRequest{
		"sem criador":      {Name: "P", Units: 1, UnitShare: dec("1"), ListPrice: dec("1")},
		"sem nome":         {Creator: alice, Units: 1, UnitShare: dec("1"), ListPrice: dec("1")},
		"sem unidades":     {Creator: alice, Name: "P", UnitShare: dec("1"), ListPrice: dec("1")},
		"unidades demais":  {Creator: alice, Name: "P", Units: 101, UnitShare: dec("0.5"), ListPrice: dec("1")},
		"participação 0":   {Creator: alice, Name: "P", Units: 1, ListPrice: dec("1")},
		"acima de 100%":    {Creator: alice, Name: "P", Units: 11, UnitShare: dec("10"), ListPrice: dec("1")},
		"preço zero":       {Creator: alice, Name: "P", Units: 1, UnitShare: dec("1")},
		"preço negativo":   {Creator: alice, Name: "P", Units: 1, UnitShare: dec("1"), ListPrice: dec("-1")},
		"participação neg": {Creator: alice, Name: "P", Units: 1, UnitShare: dec("-1"), ListPrice: dec("1")},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.royalty.CreatePool(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
	assert.Equal(t, 0, h.ledger.TotalCalls())
}

func TestCreatePoolExactlyHundredPercent(t *testing.T) {
	h := newHarness(t)
	res := h.createPool(t, 10, "10")
	assert.Len(t, res.Assets, 10)
}

func TestCreatePoolBatchFailureWritesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ledger.FailNext(ledgermock.OpMint, nil)
	h.ledger.FailNext(ledgermock.OpMint, nil)
	h.ledger.FailNext(ledgermock.OpMint, ledgermock.ErrRejected)

	_, err := h.royalty.CreatePool(ctx, CreatePoolRequest{
		Creator:   alice,
		Name:      "Catalogo",
		Units:     5,
		UnitShare: dec("1"),
		ListPrice: dec("5"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBatchMint)

	var batch *BatchMintError
	require.True(t, errors.As(err, &batch))
	assert.Len(t, batch.Minted, 2)

	pools, err := h.market.Pools(ctx)
	require.NoError(t, err)
	assert.Empty(t, pools)
}

func TestDistributeProportionally(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pool := h.createPool(t, 4, "1")
	h.buyAll(t, pool.Assets, bob, bob, bob, carol)

	res, err := h.royalty.Distribute(ctx, pool.Pool.ID, dec("100"), alice)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Holders)
	assert.True(t, res.TotalShareHeld.Equal(dec("4")))
	assert.True(t, res.TotalPaid.Equal(dec("100")), "pago = %s", res.TotalPaid)
	assert.Empty(t, res.Failures)
	assert.Len(t, res.Payouts, 4)
	assert.Equal(t, models.DepositDistributed, res.Deposit.Status)

	// Um pagamento por titular, em ordem de identidade.
	payments := h.ledger.Payments()
	royalties := payments[len(payments)-2:]
	assert.Equal(t, "bob", royalties[0].To)
	assert.True(t, royalties[0].Amount.Equal(dec("75")), "bob = %s", royalties[0].Amount)
	assert.Equal(t, "carol", royalties[1].To)
	assert.True(t, royalties[1].Amount.Equal(dec("25")), "carol = %s", royalties[1].Amount)
	assert.Nil(t, royalties[0].Tag)

	stored, err := h.db.GetPool(ctx, pool.Pool.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalDeposited.Equal(dec("100")))
	assert.True(t, stored.TotalDistributed.Equal(dec("100")))

	earnings, err := h.market.RoyaltyEarnings(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, earnings.Total.Equal(dec("75")))
	assert.Len(t, earnings.Payouts, 3)
}

func TestDistributeExcludesCreatorUnits(t *testing.T) {
	h := newHarness(t)

	pool := h.createPool(t, 4, "1")
	h.buyAll(t, pool.Assets[:1], bob)

	res, err := h.royalty.Distribute(context.Background(), pool.Pool.ID, dec("10"), alice)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Holders)
	require.Len(t, res.Payouts, 1)
	assert.Equal(t, "bob", res.Payouts[0].Holder)
	assert.True(t, res.Payouts[0].Amount.Equal(dec("10")))
}

func TestDistributeContinuesPastFailedHolder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pool := h.createPool(t, 3, "1")
	h.buyAll(t, pool.Assets, bob, carol, dave)
	h.ledger.FailPaymentTo("carol", ledgermock.ErrRejected)

	res, err := h.royalty.Distribute(ctx, pool.Pool.ID, dec("100"), alice)
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "carol", res.Failures[0].Holder)
	assert.True(t, res.Failures[0].Amount.Equal(dec("33.333333")))
	assert.Empty(t, res.Failures[0].Receipt)

	require.Len(t, res.Payouts, 2)
	holders := []string{res.Payouts[0].Holder, res.Payouts[1].Holder}
	assert.ElementsMatch(t, []string{"bob", "dave"}, holders)
	assert.True(t, res.TotalPaid.Equal(dec("66.666666")), "pago = %s", res.TotalPaid)
	assert.Equal(t, models.DepositDistributed, res.Deposit.Status)

	stored, err := h.db.GetPool(ctx, pool.Pool.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalDeposited.Equal(dec("100")))
	assert.True(t, stored.TotalDistributed.Equal(dec("66.666666")))

	detail, err := h.market.Deposit(ctx, pool.Pool.ID, res.Deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DepositDistributed, detail.Deposit.Status)
	assert.True(t, detail.Paid.Equal(dec("66.666666")))
	assert.Len(t, detail.Payouts, 2)
}

func TestDistributeSkipsDust(t *testing.T) {
	h := newHarness(t)

	pool := h.createPool(t, 3, "1")
	h.buyAll(t, pool.Assets, bob, carol, dave)
	payments := len(h.ledger.Payments())

	res, err := h.royalty.Distribute(context.Background(), pool.Pool.ID, dec("0.000002"), alice)
	require.NoError(t, err)
	assert.Len(t, res.Skipped, 3)
	assert.Empty(t, res.Payouts)
	assert.True(t, res.TotalPaid.IsZero())
	assert.Equal(t, payments, len(h.ledger.Payments()))
	assert.Equal(t, models.DepositDistributed, res.Deposit.Status)
}

func TestDistributePreconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pool := h.createPool(t, 2, "1")

	_, err := h.royalty.Distribute(ctx, pool.Pool.ID, dec("10"), alice)
	requireCode(t, err, CodeNoHolders)

	deposits, err := h.db.Deposits(ctx, pool.Pool.ID)
	require.NoError(t, err)
	assert.Empty(t, deposits, "sem titulares nada é gravado")

	h.buyAll(t, pool.Assets[:1], bob)

	_, err = h.royalty.Distribute(ctx, pool.Pool.ID, dec("10"), bob)
	requireCode(t, err, CodeUnauthorized)

	_, err = h.royalty.Distribute(ctx, pool.Pool.ID, dec("0"), alice)
	requireCode(t, err, CodeInvalidArgument)

	_, err = h.royalty.Distribute(ctx, "nope", dec("10"), alice)
	requireCode(t, err, CodeNotFound)
}

func TestDistributeTruncatesToLedgerPlaces(t *testing.T) {
	h := newHarness(t)
	h.royalty = NewRoyaltyService(h.db, h.ledger, h.lifecycle, RoyaltyOptions{AmountPlaces: 2}, zerolog.Nop())

	pool := h.createPool(t, 3, "1")
	h.buyAll(t, pool.Assets, bob, carol, dave)

	res, err := h.royalty.Distribute(context.Background(), pool.Pool.ID, dec("1"), alice)
	require.NoError(t, err)
	require.Len(t, res.Payouts, 3)
	for _, p := range res.Payouts {
		assert.True(t, p.Amount.Equal(dec("0.33")), "%s = %s", p.Holder, p.Amount)
	}
	assert.True(t, res.TotalPaid.Equal(dec("0.99")))
}
