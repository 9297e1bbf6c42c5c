package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ferreirogomes/lastro/metadata"
	"github.com/ferreirogomes/lastro/services"

	"github.com/go-chi/chi/v5"
)

// HolderHandler lida com consultas por titular e com a leitura de metadados.
type HolderHandler struct {
	Market *services.MarketplaceService
	Docs   MetadataReader
}

// MetadataReader lê documentos gravados por URI ipfs://.
type MetadataReader interface {
	Get(ctx context.Context, uri string) ([]byte, error)
}

func NewHolderHandler(market *services.MarketplaceService, md MetadataReader) *HolderHandler {
	return &HolderHandler{Market: market, Docs: md}
}

// Portfolio GET /holders/{address}/portfolio
func (h *HolderHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	p, err := h.Market.Portfolio(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RoyaltyEarnings GET /holders/{address}/royalty-earnings
func (h *HolderHandler) RoyaltyEarnings(w http.ResponseWriter, r *http.Request) {
	e, err := h.Market.RoyaltyEarnings(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Transactions GET /holders/{address}/transactions
func (h *HolderHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Market.Transactions(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// CreatorAssets GET /creators/{address}/assets
func (h *HolderHandler) CreatorAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.Market.CreatorAssets(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assets)
}

// Metadata devolve o documento gravado no mint.
// GET /metadata/{cid}
func (h *HolderHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "cid"))
	doc, err := h.Docs.Get(r.Context(), "ipfs://"+id)
	switch {
	case errors.Is(err, metadata.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "metadados não encontrados", Code: string(services.CodeNotFound)})
		return
	case err != nil:
		badRequest(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}
