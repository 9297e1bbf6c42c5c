package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// NewRouter monta as rotas da API.
func NewRouter(assets *AssetHandler, pools *PoolHandler, holders *HolderHandler, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Route("/assets", func(r chi.Router) {
		r.Get("/", assets.List)
		r.Post("/mint", assets.Mint)
		r.Get("/escrow-gaps", assets.EscrowGaps)
		r.Get("/{id}", assets.Get)
		r.Get("/{id}/price-history", assets.PriceHistory)
		r.Post("/{id}/buy", assets.Buy)
		r.Post("/{id}/relist", assets.Relist)
		r.Post("/{id}/redeem", assets.Redeem)
	})

	r.Route("/pools", func(r chi.Router) {
		r.Post("/", pools.Create)
		r.Get("/", pools.List)
		r.Get("/{id}", pools.Get)
		r.Post("/{id}/distribute", pools.Distribute)
		r.Get("/{id}/deposits/{depositID}", pools.Deposit)
	})

	r.Route("/holders/{address}", func(r chi.Router) {
		r.Get("/portfolio", holders.Portfolio)
		r.Get("/royalty-earnings", holders.RoyaltyEarnings)
		r.Get("/transactions", holders.Transactions)
	})

	r.Get("/creators/{address}/assets", holders.CreatorAssets)

	r.Get("/metadata/{cid}", holders.Metadata)

	return r
}

// requestLogger registra cada requisição no logger estruturado.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("requisição HTTP")
		})
	}
}
