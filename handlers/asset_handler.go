package handlers

import (
	"net/http"

	"github.com/ferreirogomes/lastro/services"
	"github.com/ferreirogomes/lastro/storage"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// AssetHandler lida com requisições HTTP relacionadas a ativos.
type AssetHandler struct {
	Lifecycle  *services.LifecycleService
	Transfer   *services.TransferService
	Redemption *services.RedemptionService
	Market     *services.MarketplaceService
}

// NewAssetHandler cria uma nova instância do handler de ativos.
func NewAssetHandler(l *services.LifecycleService, t *services.TransferService, r *services.RedemptionService, m *services.MarketplaceService) *AssetHandler {
	return &AssetHandler{Lifecycle: l, Transfer: t, Redemption: r, Market: m}
}

type mintRequest struct {
	partyRequest
	AssetType   string            `json:"asset_type"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	ImageURL    string            `json:"image_url"`
	ContentType string            `json:"content_type"`
	Properties  map[string]string `json:"properties"`
	ListPrice   decimal.Decimal   `json:"list_price"`
	Backing     decimal.Decimal   `json:"backing"`
	Quantity    int               `json:"quantity"`
}

// Mint emite e lista um ou mais ativos.
// POST /assets/mint
func (h *AssetHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}

	results, err := h.Lifecycle.MintAndList(r.Context(), services.MintRequest{
		Creator:     req.party(),
		AssetType:   req.AssetType,
		Name:        req.Name,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		ContentType: req.ContentType,
		Properties:  req.Properties,
		ListPrice:   req.ListPrice,
		Backing:     req.Backing,
		Quantity:    req.Quantity,
	})
	if err != nil {
		if len(results) > 0 {
			// Lote interrompido: as unidades já gravadas seguem na resposta.
			writeJSON(w, http.StatusMultiStatus, map[string]any{"assets": results, "error": err.Error()})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"assets": results})
}

// List lista os ativos à venda.
// GET /assets?type=&max_price=&sort=
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := services.MarketFilter{
		AssetType: q.Get("type"),
		Sort:      storage.AssetSort(q.Get("sort")),
	}
	if raw := q.Get("max_price"); raw != "" {
		p, err := decimal.NewFromString(raw)
		if err != nil {
			badRequest(w, err)
			return
		}
		f.MaxPrice = &p
	}

	assets, err := h.Market.Marketplace(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assets)
}

// Get obtém um ativo com sua trilha de auditoria.
// GET /assets/{id}
func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Market.AssetDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// PriceHistory GET /assets/{id}/price-history
func (h *AssetHandler) PriceHistory(w http.ResponseWriter, r *http.Request) {
	points, err := h.Market.PriceHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// Buy compra um ativo listado.
// POST /assets/{id}/buy
func (h *AssetHandler) Buy(w http.ResponseWriter, r *http.Request) {
	var req partyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	res, err := h.Transfer.Buy(r.Context(), chi.URLParam(r, "id"), req.party())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type relistRequest struct {
	partyRequest
	Price decimal.Decimal `json:"price"`
}

// Relist POST /assets/{id}/relist
func (h *AssetHandler) Relist(w http.ResponseWriter, r *http.Request) {
	var req relistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	res, err := h.Lifecycle.Relist(r.Context(), chi.URLParam(r, "id"), req.party(), req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Redeem POST /assets/{id}/redeem
func (h *AssetHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req partyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	res, err := h.Redemption.Redeem(r.Context(), chi.URLParam(r, "id"), req.party())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// EscrowGaps lista ativos lastreados sem escrow vivo.
// GET /assets/escrow-gaps
func (h *AssetHandler) EscrowGaps(w http.ResponseWriter, r *http.Request) {
	assets, err := h.Market.EscrowGaps(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assets)
}
