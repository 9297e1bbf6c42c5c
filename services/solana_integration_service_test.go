package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ferreirogomes/lastro/models"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func newOfflineSolana(t *testing.T, keyring map[string]string) *SolanaIntegrationService {
	return newSolanaAt(t, "http://127.0.0.1:1", keyring)
}

func newSolanaAt(t *testing.T, url string, keyring map[string]string) *SolanaIntegrationService {
	t.Helper()
	s, err := NewSolanaIntegrationService(SolanaConfig{
		RPCURL:      url,
		FeePayerKey: newKey(t).String(),
		Keyring:     keyring,
	}, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestToLamports(t *testing.T) {
	l, err := toLamports(dec("1.5"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), l)

	l, err = toLamports(dec("0.000000001"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), l)

	_, err = toLamports(dec("0.0000000001"))
	assert.Error(t, err, "fração abaixo de 1 lamport")

	_, err = toLamports(decimal.Zero)
	assert.Error(t, err)

	assert.True(t, fromLamports(2_500_000_000).Equal(dec("2.5")))
}

func TestSaleMemo(t *testing.T) {
	memo := saleMemo(models.SaleTag{AssetID: "a1", SaleNumber: 3, SalePrice: dec("12.5"), PreviousPrice: dec("10")})
	assert.Equal(t, "sale:a1:3:12.5:10", string(memo))
}

func TestMintMemoCarriesTypeAndURI(t *testing.T) {
	memo := mintMemo(models.MintSpec{Name: "Obra", AssetType: "digital", MetadataURI: "ipfs://bafy"})
	assert.Equal(t, "mint:digital:ipfs://bafy", string(memo))
}

func TestNewSolanaIntegrationServiceRejectsBadKeys(t *testing.T) {
	_, err := NewSolanaIntegrationService(SolanaConfig{FeePayerKey: "nao-e-base58"}, zerolog.Nop())
	assert.Error(t, err)

	key := newKey(t)
	other := newKey(t)
	_, err = NewSolanaIntegrationService(SolanaConfig{
		FeePayerKey: newKey(t).String(),
		Keyring:     map[string]string{other.PublicKey().String(): key.String()},
	}, zerolog.Nop())
	assert.Error(t, err, "chave do keyring de outra identidade")
}

func TestSignerForPrefersCredential(t *testing.T) {
	custodied := newKey(t)
	s := newOfflineSolana(t, map[string]string{custodied.PublicKey().String(): custodied.String()})

	key, err := s.signerFor(models.Party{Identity: custodied.PublicKey().String()})
	require.NoError(t, err)
	assert.True(t, key.PublicKey().Equals(custodied.PublicKey()))

	own := newKey(t)
	key, err = s.signerFor(models.Party{Identity: own.PublicKey().String(), Credential: own.String()})
	require.NoError(t, err)
	assert.True(t, key.PublicKey().Equals(own.PublicKey()))

	_, err = s.signerFor(models.Party{Identity: own.PublicKey().String(), Credential: custodied.String()})
	assert.Error(t, err, "credencial de outra conta")

	_, err = s.signerFor(models.Party{Identity: newKey(t).PublicKey().String()})
	assert.Error(t, err, "sem credencial e fora do keyring")

	_, err = s.signerFor(models.Party{Identity: "alice"})
	assert.Error(t, err)
}

func TestEscrowAddressIsDeterministic(t *testing.T) {
	s := newOfflineSolana(t, nil)

	a, err := s.escrowAddress(7)
	require.NoError(t, err)
	b, err := s.escrowAddress(7)
	require.NoError(t, err)
	c, err := s.escrowAddress(8)
	require.NoError(t, err)

	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
}

func TestFinishEscrowOnlyByDestination(t *testing.T) {
	s := newOfflineSolana(t, nil)
	dest := newKey(t).PublicKey().String()

	_, err := s.SubmitFinishEscrow(context.Background(), models.Party{Identity: "outro"}, models.EscrowRef{Sequence: 1, Destination: dest})
	assert.Error(t, err)
}

func TestSubmitRejectsInvalidInputBeforeRPC(t *testing.T) {
	s := newOfflineSolana(t, nil)
	ctx := context.Background()
	payer := newKey(t)
	party := models.Party{Identity: payer.PublicKey().String(), Credential: payer.String()}

	_, err := s.SubmitDirectPayment(ctx, party, "destino-invalido", dec("1"), nil)
	assert.Error(t, err)

	_, _, err = s.SubmitCreateEscrow(ctx, party, dec("0.0000000001"), payer.PublicKey().String())
	assert.Error(t, err)

	_, err = s.TokenBurned(ctx, "token-invalido")
	assert.Error(t, err)
}

// rpcStub responde às chamadas JSON-RPC usadas pelo gateway e guarda as
// transações enviadas.
type rpcStub struct {
	mu      sync.Mutex
	methods []string
	sent    []*solana.Transaction
}

func newRPCStub(t *testing.T) (*rpcStub, string) {
	t.Helper()
	stub := &rpcStub{}
	srv := httptest.NewServer(http.HandlerFunc(stub.serve))
	t.Cleanup(srv.Close)
	return stub, srv.URL
}

func (s *rpcStub) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods = append(s.methods, req.Method)

	slot := map[string]any{"slot": 1}
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	switch req.Method {
	case "getBalance":
		resp["result"] = map[string]any{"context": slot, "value": 2_000_000_000}
	case "getLatestBlockhash":
		resp["result"] = map[string]any{"context": slot, "value": map[string]any{
			"blockhash":            solana.Hash{7}.String(),
			"lastValidBlockHeight": 100,
		}}
	case "sendTransaction":
		tx, err := decodeSent(req.Params)
		if err != nil {
			resp["error"] = map[string]any{"code": -32602, "message": err.Error()}
			break
		}
		s.sent = append(s.sent, tx)
		resp["result"] = tx.Signatures[0].String()
	case "getSignatureStatuses":
		resp["result"] = map[string]any{"context": slot, "value": []any{map[string]any{
			"slot":               1,
			"confirmations":      nil,
			"err":                nil,
			"confirmationStatus": "finalized",
		}}}
	default:
		resp["error"] = map[string]any{"code": -32601, "message": "método não suportado"}
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func decodeSent(params []json.RawMessage) (*solana.Transaction, error) {
	if len(params) == 0 {
		return nil, errors.New("sem transação")
	}
	var encoded string
	if err := json.Unmarshal(params[0], &encoded); err != nil {
		return nil, err
	}
	tx, err := solana.TransactionFromBase64(encoded)
	if err != nil {
		return nil, err
	}
	if len(tx.Signatures) == 0 {
		return nil, errors.New("transação sem assinaturas")
	}
	return tx, nil
}

func (s *rpcStub) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.methods)
}

func (s *rpcStub) lastSent(t *testing.T) *solana.Transaction {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.sent)
	return s.sent[len(s.sent)-1]
}

func TestFinishEscrowRequiresFinisherSignature(t *testing.T) {
	stub, url := newRPCStub(t)
	s := newSolanaAt(t, url, nil)
	ctx := context.Background()
	owner := newKey(t)
	ref := models.EscrowRef{Sequence: 42, Destination: owner.PublicKey().String()}

	_, err := s.SubmitFinishEscrow(ctx, models.Party{Identity: owner.PublicKey().String()}, ref)
	require.Error(t, err)
	assert.Equal(t, 0, stub.calls(), "nada é enviado sem a chave do destino")

	receipt, err := s.SubmitFinishEscrow(ctx, models.Party{Identity: owner.PublicKey().String(), Credential: owner.String()}, ref)
	require.NoError(t, err)
	assert.NotEmpty(t, receipt)

	signers := stub.lastSent(t).Message.Signers()
	assert.True(t, signers.Has(owner.PublicKey()), "destino assina a finalização")
	assert.True(t, signers.Has(s.FeePayer.PublicKey()))
}

func TestSubmitBurnRequiresOwnerSignature(t *testing.T) {
	stub, url := newRPCStub(t)
	s := newSolanaAt(t, url, nil)
	ctx := context.Background()
	owner := newKey(t)
	tokenID := newKey(t).PublicKey().String()

	_, err := s.SubmitBurn(ctx, models.Party{Identity: owner.PublicKey().String()}, tokenID)
	require.Error(t, err)
	assert.Equal(t, 0, stub.calls())

	_, err = s.SubmitBurn(ctx, models.Party{Identity: owner.PublicKey().String(), Credential: owner.String()}, tokenID)
	require.NoError(t, err)
	assert.True(t, stub.lastSent(t).Message.Signers().Has(owner.PublicKey()))
}

func TestSubmitPendingBurnSignsWithDelegation(t *testing.T) {
	stub, url := newRPCStub(t)
	custodied := newKey(t)
	s := newSolanaAt(t, url, map[string]string{custodied.PublicKey().String(): custodied.String()})
	ctx := context.Background()
	tokenID := newKey(t).PublicKey().String()

	holder := newKey(t).PublicKey()
	_, err := s.SubmitPendingBurn(ctx, holder.String(), tokenID)
	require.NoError(t, err)
	signers := stub.lastSent(t).Message.Signers()
	assert.False(t, signers.Has(holder))
	assert.True(t, signers.Has(s.FeePayer.PublicKey()))

	_, err = s.SubmitPendingBurn(ctx, custodied.PublicKey().String(), tokenID)
	require.NoError(t, err)
	assert.True(t, stub.lastSent(t).Message.Signers().Has(custodied.PublicKey()))

	_, err = s.SubmitPendingBurn(ctx, "alice", tokenID)
	assert.Error(t, err)
}
