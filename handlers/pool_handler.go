package handlers

import (
	"net/http"

	"github.com/ferreirogomes/lastro/services"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// PoolHandler lida com pools de royalties.
type PoolHandler struct {
	Royalty *services.RoyaltyService
	Market  *services.MarketplaceService
}

func NewPoolHandler(royalty *services.RoyaltyService, market *services.MarketplaceService) *PoolHandler {
	return &PoolHandler{Royalty: royalty, Market: market}
}

type createPoolRequest struct {
	partyRequest
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	Units       int             `json:"units"`
	UnitShare   decimal.Decimal `json:"unit_share"`
	ListPrice   decimal.Decimal `json:"list_price"`
}

// Create POST /pools
func (h *PoolHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	res, err := h.Royalty.CreatePool(r.Context(), services.CreatePoolRequest{
		Creator:     req.party(),
		Name:        req.Name,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		Units:       req.Units,
		UnitShare:   req.UnitShare,
		ListPrice:   req.ListPrice,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// List GET /pools
func (h *PoolHandler) List(w http.ResponseWriter, r *http.Request) {
	pools, err := h.Market.Pools(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pools)
}

// Get GET /pools/{id}
func (h *PoolHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Market.PoolDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type distributeRequest struct {
	partyRequest
	Amount decimal.Decimal `json:"amount"`
}

// Distribute executa uma rodada de royalties. Falhas por titular vêm no corpo, com status 200.
// POST /pools/{id}/distribute
func (h *PoolHandler) Distribute(w http.ResponseWriter, r *http.Request) {
	var req distributeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	res, err := h.Royalty.Distribute(r.Context(), chi.URLParam(r, "id"), req.Amount, req.party())
	if err != nil {
		if res.Deposit.ID != "" {
			// Pagamentos já saíram; o depósito ficou aberto.
			writeJSON(w, http.StatusInternalServerError, map[string]any{"result": res, "error": err.Error()})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Deposit GET /pools/{id}/deposits/{depositID}
func (h *PoolHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Market.Deposit(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "depositID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
