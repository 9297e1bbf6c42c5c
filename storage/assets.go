package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ferreirogomes/lastro/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const assetColumns = `id, token_id, creator, asset_type, name, description, image_url, metadata_uri,
	list_price, offer_id, last_sale_price, sale_count, backing_amount, escrow_owner, escrow_sequence,
	escrow_destination, escrow_receipt, royalty_pool_id, royalty_share, status, owner, burn_pending,
	created_at, updated_at`

// assetRow é o formato plano da tabela assets. O lastro vira o sub-registro models.Backing.
type assetRow struct {
	ID                string              `db:"id"`
	TokenID           sql.NullString      `db:"token_id"`
	Creator           string              `db:"creator"`
	AssetType         string              `db:"asset_type"`
	Name              string              `db:"name"`
	Description       string              `db:"description"`
	ImageURL          string              `db:"image_url"`
	MetadataURI       string              `db:"metadata_uri"`
	ListPrice         decimal.NullDecimal `db:"list_price"`
	OfferID           string              `db:"offer_id"`
	LastSalePrice     decimal.Decimal     `db:"last_sale_price"`
	SaleCount         int                 `db:"sale_count"`
	BackingAmount     decimal.Decimal     `db:"backing_amount"`
	EscrowOwner       sql.NullString      `db:"escrow_owner"`
	EscrowSequence    sql.NullInt64       `db:"escrow_sequence"`
	EscrowDestination sql.NullString      `db:"escrow_destination"`
	EscrowReceipt     sql.NullString      `db:"escrow_receipt"`
	RoyaltyPoolID     sql.NullString      `db:"royalty_pool_id"`
	RoyaltyShare      decimal.Decimal     `db:"royalty_share"`
	Status            string              `db:"status"`
	Owner             string              `db:"owner"`
	BurnPending       bool                `db:"burn_pending"`
	CreatedAt         time.Time           `db:"created_at"`
	UpdatedAt         time.Time           `db:"updated_at"`
}

func (r assetRow) toModel() models.Asset {
	a := models.Asset{
		ID:            r.ID,
		TokenID:       r.TokenID.String,
		Creator:       r.Creator,
		AssetType:     r.AssetType,
		Name:          r.Name,
		Description:   r.Description,
		ImageURL:      r.ImageURL,
		MetadataURI:   r.MetadataURI,
		OfferID:       r.OfferID,
		LastSalePrice: r.LastSalePrice,
		SaleCount:     r.SaleCount,
		RoyaltyPoolID: r.RoyaltyPoolID.String,
		RoyaltyShare:  r.RoyaltyShare,
		Status:        models.AssetStatus(r.Status),
		Owner:         r.Owner,
		BurnPending:   r.BurnPending,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.ListPrice.Valid {
		price := r.ListPrice.Decimal
		a.ListPrice = &price
	}
	if r.BackingAmount.IsPositive() {
		a.Backing = &models.Backing{Amount: r.BackingAmount}
		if r.EscrowOwner.Valid {
			a.Backing.Escrow = &models.EscrowRef{
				Owner:       r.EscrowOwner.String,
				Sequence:    uint64(r.EscrowSequence.Int64),
				Destination: r.EscrowDestination.String,
				Receipt:     r.EscrowReceipt.String,
			}
		}
	}
	return a
}

func newAssetRow(a models.Asset) assetRow {
	r := assetRow{
		ID:            a.ID,
		TokenID:       nullString(a.TokenID),
		Creator:       a.Creator,
		AssetType:     a.AssetType,
		Name:          a.Name,
		Description:   a.Description,
		ImageURL:      a.ImageURL,
		MetadataURI:   a.MetadataURI,
		OfferID:       a.OfferID,
		LastSalePrice: a.LastSalePrice,
		SaleCount:     a.SaleCount,
		BackingAmount: decimal.Zero,
		RoyaltyPoolID: nullString(a.RoyaltyPoolID),
		RoyaltyShare:  a.RoyaltyShare,
		Status:        string(a.Status),
		Owner:         a.Owner,
		BurnPending:   a.BurnPending,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if a.ListPrice != nil {
		r.ListPrice = decimal.NewNullDecimal(*a.ListPrice)
	}
	if a.Backing != nil {
		r.BackingAmount = a.Backing.Amount
		if esc := a.Backing.Escrow; esc != nil {
			r.EscrowOwner = nullString(esc.Owner)
			r.EscrowSequence = sql.NullInt64{Int64: int64(esc.Sequence), Valid: true}
			r.EscrowDestination = nullString(esc.Destination)
			r.EscrowReceipt = nullString(esc.Receipt)
		}
	}
	return r
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// InsertAsset grava um ativo novo junto com seus registros de auditoria.
func (d *DB) InsertAsset(ctx context.Context, asset models.Asset, entries ...models.LedgerEntry) error {
	return d.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertAsset(ctx, tx, asset); err != nil {
			return err
		}
		return insertEntries(ctx, tx, entries)
	})
}

func insertAsset(ctx context.Context, q sqlx.ExtContext, asset models.Asset) error {
	r := newAssetRow(asset)
	query := q.Rebind(`INSERT INTO assets (` + assetColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := q.ExecContext(ctx, query,
		r.ID, r.TokenID, r.Creator, r.AssetType, r.Name, r.Description, r.ImageURL, r.MetadataURI,
		r.ListPrice, r.OfferID, r.LastSalePrice, r.SaleCount, r.BackingAmount, r.EscrowOwner, r.EscrowSequence,
		r.EscrowDestination, r.EscrowReceipt, r.RoyaltyPoolID, r.RoyaltyShare, r.Status, r.Owner, r.BurnPending,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("falha ao salvar ativo %s: %w", asset.ID, err)
	}
	return nil
}

// GetAsset busca um ativo pelo ID.
func (d *DB) GetAsset(ctx context.Context, id string) (models.Asset, error) {
	var r assetRow
	err := sqlx.GetContext(ctx, d, &r, d.Rebind(`SELECT `+assetColumns+` FROM assets WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Asset{}, ErrNotFound
	}
	if err != nil {
		return models.Asset{}, fmt.Errorf("falha ao buscar ativo %s: %w", id, err)
	}
	return r.toModel(), nil
}

// ApplyTransition persiste o novo estado do ativo somente se o status gravado
// ainda for prev, e grava os registros de auditoria na mesma transação.
// Um recibo já registrado retorna ErrDuplicateReceipt sem alterar nada.
func (d *DB) ApplyTransition(ctx context.Context, asset models.Asset, prev models.AssetStatus, entries ...models.LedgerEntry) error {
	return d.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, e := range entries {
			exists, err := receiptExists(ctx, tx, e.Kind, e.Receipt)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateReceipt
			}
		}
		if err := updateAsset(ctx, tx, asset, prev); err != nil {
			return err
		}
		return insertEntries(ctx, tx, entries)
	})
}

func updateAsset(ctx context.Context, q sqlx.ExtContext, asset models.Asset, prev models.AssetStatus) error {
	r := newAssetRow(asset)
	query := q.Rebind(`UPDATE assets SET
		token_id = ?, list_price = ?, offer_id = ?, last_sale_price = ?, sale_count = ?,
		backing_amount = ?, escrow_owner = ?, escrow_sequence = ?, escrow_destination = ?, escrow_receipt = ?,
		status = ?, owner = ?, burn_pending = ?, updated_at = ?
		WHERE id = ? AND status = ?`)
	res, err := q.ExecContext(ctx, query,
		r.TokenID, r.ListPrice, r.OfferID, r.LastSalePrice, r.SaleCount,
		r.BackingAmount, r.EscrowOwner, r.EscrowSequence, r.EscrowDestination, r.EscrowReceipt,
		r.Status, r.Owner, r.BurnPending, r.UpdatedAt,
		r.ID, string(prev),
	)
	if err != nil {
		return fmt.Errorf("falha ao atualizar ativo %s: %w", asset.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("falha ao verificar atualização do ativo %s: %w", asset.ID, err)
	}
	if n == 0 {
		return ErrStaleAsset
	}
	return nil
}

// AssetSort ordena listagens do marketplace.
type AssetSort string

const (
	SortNewest     AssetSort = "newest"
	SortPriceAsc   AssetSort = "price_asc"
	SortPriceDesc  AssetSort = "price_desc"
	SortValueDesc  AssetSort = "value_desc"
	SortMostTraded AssetSort = "most_traded"
)

// AssetFilter restringe ListAssets. Campos vazios não filtram.
type AssetFilter struct {
	Statuses     []models.AssetStatus
	Owner        string
	ExcludeOwner string
	Creator      string
	AssetType    string
	PoolID       string
	MaxPrice     *decimal.Decimal
	Sort         AssetSort
}

// ListAssets lista ativos de acordo com o filtro.
func (d *DB) ListAssets(ctx context.Context, f AssetFilter) ([]models.Asset, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if f.Owner != "" {
		where = append(where, "owner = ?")
		args = append(args, f.Owner)
	}
	if f.ExcludeOwner != "" {
		where = append(where, "owner <> ?")
		args = append(args, f.ExcludeOwner)
	}
	if f.Creator != "" {
		where = append(where, "creator = ?")
		args = append(args, f.Creator)
	}
	if f.AssetType != "" {
		where = append(where, "asset_type = ?")
		args = append(args, f.AssetType)
	}
	if f.PoolID != "" {
		where = append(where, "royalty_pool_id = ?")
		args = append(args, f.PoolID)
	}
	if f.MaxPrice != nil {
		where = append(where, d.numeric("list_price")+" <= "+d.numeric("?"))
		args = append(args, *f.MaxPrice)
	}

	query := `SELECT ` + assetColumns + ` FROM assets`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + d.orderBy(f.Sort)

	var rows []assetRow
	if err := sqlx.SelectContext(ctx, d, &rows, d.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("falha ao listar ativos: %w", err)
	}
	assets := make([]models.Asset, len(rows))
	for i, r := range rows {
		assets[i] = r.toModel()
	}
	return assets, nil
}

func (d *DB) orderBy(s AssetSort) string {
	switch s {
	case SortPriceAsc:
		return d.numeric("list_price") + " ASC, id"
	case SortPriceDesc:
		return d.numeric("list_price") + " DESC, id"
	case SortValueDesc:
		return d.numeric("last_sale_price") + " DESC, id"
	case SortMostTraded:
		return "sale_count DESC, id"
	default:
		return "created_at DESC, id"
	}
}

// EscrowGaps lista ativos que anunciam lastro mas estão sem escrow vivo.
func (d *DB) EscrowGaps(ctx context.Context) ([]models.Asset, error) {
	var rows []assetRow
	query := d.Rebind(`SELECT ` + assetColumns + ` FROM assets
		WHERE ` + d.numeric("backing_amount") + ` > 0 AND escrow_owner IS NULL AND status <> ?
		ORDER BY updated_at, id`)
	if err := sqlx.SelectContext(ctx, d, &rows, query, string(models.StatusRedeemed)); err != nil {
		return nil, fmt.Errorf("falha ao listar ativos sem escrow: %w", err)
	}
	assets := make([]models.Asset, len(rows))
	for i, r := range rows {
		assets[i] = r.toModel()
	}
	return assets, nil
}

// PendingBurns lista ativos resgatados cujo burn ainda não foi confirmado.
func (d *DB) PendingBurns(ctx context.Context) ([]models.Asset, error) {
	var rows []assetRow
	query := d.Rebind(`SELECT ` + assetColumns + ` FROM assets
		WHERE status = ? AND burn_pending = ? ORDER BY updated_at, id`)
	if err := sqlx.SelectContext(ctx, d, &rows, query, string(models.StatusRedeemed), true); err != nil {
		return nil, fmt.Errorf("falha ao listar burns pendentes: %w", err)
	}
	assets := make([]models.Asset, len(rows))
	for i, r := range rows {
		assets[i] = r.toModel()
	}
	return assets, nil
}
