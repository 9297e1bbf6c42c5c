package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ferreirogomes/lastro/metadata"
	"github.com/ferreirogomes/lastro/services"
	"github.com/ferreirogomes/lastro/services/ledgermock"
	"github.com/ferreirogomes/lastro/storage"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler http.Handler
	ledger  *ledgermock.Gateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "lastro.db") + "?_time_format=sqlite"
	db, err := storage.NewDB(storage.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pins, err := metadata.NewStore("")
	require.NoError(t, err)
	ledger := ledgermock.New()
	logger := zerolog.Nop()

	lifecycle := services.NewLifecycleService(db, ledger, pins, logger)
	transfer := services.NewTransferService(db, ledger, logger)
	redemption := services.NewRedemptionService(db, ledger, logger)
	royalty := services.NewRoyaltyService(db, ledger, lifecycle, services.DefaultRoyaltyOptions(), logger)
	market := services.NewMarketplaceService(db)

	return &testServer{
		handler: NewRouter(
			NewAssetHandler(lifecycle, transfer, redemption, market),
			NewPoolHandler(royalty, market),
			NewHolderHandler(market, pins),
			logger,
		),
		ledger: ledger,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), "corpo: %s", rr.Body.String())
	return v
}

type mintResponse struct {
	Assets []struct {
		Asset struct {
			ID          string `json:"id"`
			Status      string `json:"status"`
			MetadataURI string `json:"metadata_uri"`
		} `json:"asset"`
		Warnings []string `json:"warnings"`
	} `json:"assets"`
}

func (s *testServer) mint(t *testing.T, body string) mintResponse {
	t.Helper()
	rr := s.do(t, http.MethodPost, "/assets/mint", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeBody[mintResponse](t, rr)
}

func TestAssetLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	minted := s.mint(t, `{"address":"alice","name":"Obra","list_price":"10","backing":"2"}`)
	require.Len(t, minted.Assets, 1)
	id := minted.Assets[0].Asset.ID
	assert.Equal(t, "listed", minted.Assets[0].Asset.Status)

	rr := s.do(t, http.MethodGet, "/assets?sort=price_asc&max_price=20", "")
	require.Equal(t, http.StatusOK, rr.Code)
	listed := decodeBody[[]map[string]any](t, rr)
	assert.Len(t, listed, 1)

	rr = s.do(t, http.MethodPost, "/assets/"+id+"/buy", `{"address":"bob"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	bought := decodeBody[map[string]any](t, rr)
	assert.Equal(t, "alice", bought["seller"])
	assert.EqualValues(t, 1, bought["sale_number"])

	rr = s.do(t, http.MethodPost, "/assets/"+id+"/buy", `{"address":"carol"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "wrong_status", decodeBody[errorBody](t, rr).Code)

	rr = s.do(t, http.MethodGet, "/assets/"+id+"/price-history", "")
	require.Equal(t, http.StatusOK, rr.Code)
	history := decodeBody[[]map[string]any](t, rr)
	require.Len(t, history, 1)
	assert.Equal(t, "bob", history[0]["buyer"])

	rr = s.do(t, http.MethodPost, "/assets/"+id+"/redeem", `{"address":"carol"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(t, http.MethodPost, "/assets/"+id+"/redeem", `{"address":"bob"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(t, http.MethodGet, "/assets/"+id, "")
	require.Equal(t, http.StatusOK, rr.Code)
	detail := decodeBody[map[string]any](t, rr)
	asset := detail["asset"].(map[string]any)
	assert.Equal(t, "redeemed", asset["status"])

	rr = s.do(t, http.MethodGet, "/holders/bob/portfolio", "")
	require.Equal(t, http.StatusOK, rr.Code)
	portfolio := decodeBody[map[string]any](t, rr)
	assert.Empty(t, portfolio["assets"])
}

func TestRelistAndEscrowGapsOverHTTP(t *testing.T) {
	s := newTestServer(t)

	s.ledger.FailOn(ledgermock.OpCreateEscrow, ledgermock.ErrRejected)
	minted := s.mint(t, `{"address":"alice","list_price":"5","backing":"1"}`)
	require.NotEmpty(t, minted.Assets[0].Warnings)
	id := minted.Assets[0].Asset.ID

	rr := s.do(t, http.MethodGet, "/assets/escrow-gaps", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]map[string]any](t, rr), 1)

	rr = s.do(t, http.MethodPost, "/assets/"+id+"/redeem", `{"address":"alice"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "escrow_missing", decodeBody[errorBody](t, rr).Code)

	rr = s.do(t, http.MethodPost, "/assets/"+id+"/buy", `{"address":"bob"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodPost, "/assets/"+id+"/relist", `{"address":"bob","price":"9"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestRequestValidationOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/assets/mint", `{"address":"alice","list_price":"1","surpresa":true}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "campo desconhecido")

	rr = s.do(t, http.MethodPost, "/assets/mint", `{"address":"alice","list_price":"0"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_argument", decodeBody[errorBody](t, rr).Code)

	rr = s.do(t, http.MethodGet, "/assets/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodGet, "/assets?max_price=muito", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodGet, "/assets?sort=aleatorio", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	minted := s.mint(t, `{"address":"alice","list_price":"1"}`)
	rr = s.do(t, http.MethodPost, "/assets/"+minted.Assets[0].Asset.ID+"/redeem", `{"address":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "no_backing", decodeBody[errorBody](t, rr).Code)
	assert.Equal(t, 0, s.ledger.Calls(ledgermock.OpFinishEscrow))
}

func TestLedgerFailureIsBadGateway(t *testing.T) {
	s := newTestServer(t)
	s.ledger.FailOn(ledgermock.OpMint, ledgermock.ErrRejected)

	rr := s.do(t, http.MethodPost, "/assets/mint", `{"address":"alice","list_price":"1"}`)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "ledger_failure", decodeBody[errorBody](t, rr).Code)
}

func TestPartialBatchIsMultiStatus(t *testing.T) {
	s := newTestServer(t)
	s.ledger.FailNext(ledgermock.OpMint, nil)
	s.ledger.FailNext(ledgermock.OpMint, ledgermock.ErrRejected)

	rr := s.do(t, http.MethodPost, "/assets/mint", `{"address":"alice","list_price":"1","quantity":3}`)
	assert.Equal(t, http.StatusMultiStatus, rr.Code)
	body := decodeBody[map[string]any](t, rr)
	assert.Len(t, body["assets"], 1)
	assert.NotEmpty(t, body["error"])
}

func TestRoyaltyPoolOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/pools", `{"address":"alice","name":"Catalogo","units":2,"unit_share":"5","list_price":"3"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodeBody[struct {
		Pool struct {
			ID string `json:"id"`
		} `json:"pool"`
		Assets []struct {
			ID string `json:"id"`
		} `json:"assets"`
	}](t, rr)
	require.Len(t, created.Assets, 2)
	poolID := created.Pool.ID

	rr = s.do(t, http.MethodPost, "/pools/"+poolID+"/distribute", `{"address":"alice","amount":"10"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "no_holders", decodeBody[errorBody](t, rr).Code)

	rr = s.do(t, http.MethodPost, "/assets/"+created.Assets[0].ID+"/buy", `{"address":"bob"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodPost, "/pools/"+poolID+"/distribute", `{"address":"bob","amount":"10"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(t, http.MethodPost, "/pools/"+poolID+"/distribute", `{"address":"alice","amount":"10"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	dist := decodeBody[struct {
		Deposit struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"deposit"`
		TotalPaid string `json:"total_paid"`
	}](t, rr)
	assert.Equal(t, "distributed", dist.Deposit.Status)
	assert.Equal(t, "10", dist.TotalPaid)

	rr = s.do(t, http.MethodGet, "/pools/"+poolID+"/deposits/"+dist.Deposit.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "10", decodeBody[map[string]any](t, rr)["paid"])

	rr = s.do(t, http.MethodGet, "/pools/"+poolID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, decodeBody[map[string]any](t, rr)["holders"])

	rr = s.do(t, http.MethodGet, "/pools", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]map[string]any](t, rr), 1)

	rr = s.do(t, http.MethodGet, "/holders/bob/royalty-earnings", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "10", decodeBody[map[string]any](t, rr)["total"])
}

func TestMetadataOverHTTP(t *testing.T) {
	s := newTestServer(t)

	minted := s.mint(t, `{"address":"alice","name":"Documento","list_price":"1"}`)
	uri := minted.Assets[0].Asset.MetadataURI
	require.True(t, strings.HasPrefix(uri, "ipfs://"))

	rr := s.do(t, http.MethodGet, "/metadata/"+strings.TrimPrefix(uri, "ipfs://"), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Documento")
	assert.Contains(t, rr.Header().Get("Cache-Control"), "immutable")

	missing, err := metadata.URI([]byte("ausente"))
	require.NoError(t, err)
	rr = s.do(t, http.MethodGet, "/metadata/"+strings.TrimPrefix(missing, "ipfs://"), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodGet, "/metadata/nao-e-cid", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[services.Code]int{
		services.CodeInvalidArgument: http.StatusBadRequest,
		services.CodeNoBacking:       http.StatusBadRequest,
		services.CodeNoHolders:       http.StatusBadRequest,
		services.CodeUnauthorized:    http.StatusForbidden,
		services.CodeNotFound:        http.StatusNotFound,
		services.CodeWrongStatus:     http.StatusConflict,
		services.CodeEscrowMissing:   http.StatusConflict,
		services.CodeConflict:        http.StatusConflict,
		services.CodeLedgerFailure:   http.StatusBadGateway,
		services.CodeBatchMint:       http.StatusBadGateway,
		services.Code("outro"):       http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, httpStatus(code), "código %s", code)
	}
}

func TestWriteErrorBatchMintCarriesMinted(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, &services.BatchMintError{Minted: []string{"tok-1", "tok-2"}, Cause: errors.New("rpc")})
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	body := decodeBody[errorBody](t, rr)
	assert.Equal(t, "batch_mint", body.Code)
	assert.Equal(t, []string{"tok-1", "tok-2"}, body.Minted)

	rr = httptest.NewRecorder()
	writeError(rr, errors.New("banco caiu"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "erro interno", decodeBody[errorBody](t, rr).Error)
}

func TestHolderTransactionsAndCreatorAssetsOverHTTP(t *testing.T) {
	s := newTestServer(t)

	minted := s.mint(t, `{"address":"alice","name":"Obra","list_price":"10"}`)
	id := minted.Assets[0].Asset.ID
	rr := s.do(t, http.MethodPost, "/assets/"+id+"/buy", `{"address":"bob"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(t, http.MethodGet, "/holders/bob/transactions", "")
	require.Equal(t, http.StatusOK, rr.Code)
	txs := decodeBody[[]map[string]any](t, rr)
	require.Len(t, txs, 1)
	assert.Equal(t, "purchase", txs[0]["kind"])
	assert.Equal(t, "alice", txs[0]["to"])
	assert.Equal(t, "Obra", txs[0]["asset_name"])
	assert.Equal(t, id, txs[0]["asset_id"])

	rr = s.do(t, http.MethodGet, "/creators/alice/assets", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assets := decodeBody[[]map[string]any](t, rr)
	require.Len(t, assets, 1)
	assert.Equal(t, "bob", assets[0]["owner"])

	rr = s.do(t, http.MethodGet, "/creators/bob/assets", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decodeBody[[]map[string]any](t, rr))
}
