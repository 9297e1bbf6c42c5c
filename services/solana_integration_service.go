package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ferreirogomes/lastro/models"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	mintAccountSize  = 82 // Tamanho da conta de mint do SPL Token
	lamportPlaces    = 9  // 1 SOL = 1e9 lamports
	confirmInterval  = 500 * time.Millisecond
	defaultRPCWindow = 30 * time.Second
)

// SolanaConfig configura o gateway Solana.
type SolanaConfig struct {
	RPCURL      string
	FeePayerKey string            // Chave base58 da conta da plataforma: paga taxas, é autoridade dos mints e delegada das ofertas
	Keyring     map[string]string // Identidade -> chave base58 das contas custodiadas pela plataforma
	CallTimeout time.Duration
}

// SolanaIntegrationService implementa LedgerGateway sobre a Solana.
//
// Tokens são mints SPL com supply 1. Uma oferta é um approve do token para a
// conta da plataforma, que executa a transferência quando o comprador aceita.
// Escrows são contas derivadas por seed a partir da conta da plataforma,
// financiadas pelo dono do colateral e esvaziadas para o destino ao finalizar.
type SolanaIntegrationService struct {
	RPCClient *rpc.Client
	FeePayer  solana.PrivateKey
	keyring   map[solana.PublicKey]solana.PrivateKey
	timeout   time.Duration
	sequence  atomic.Uint64
	log       zerolog.Logger
}

var _ LedgerGateway = (*SolanaIntegrationService)(nil)

// NewSolanaIntegrationService cria o gateway a partir da configuração.
func NewSolanaIntegrationService(cfg SolanaConfig, logger zerolog.Logger) (*SolanaIntegrationService, error) {
	feePayer, err := solana.PrivateKeyFromBase58(cfg.FeePayerKey)
	if err != nil {
		return nil, fmt.Errorf("falha ao carregar chave privada do Fee Payer: %w", err)
	}
	keyring, err := parseKeyring(cfg.Keyring)
	if err != nil {
		return nil, err
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultRPCWindow
	}
	s := &SolanaIntegrationService{
		RPCClient: rpc.New(cfg.RPCURL),
		FeePayer:  feePayer,
		keyring:   keyring,
		timeout:   timeout,
		log:       logger.With().Str("component", "solana").Logger(),
	}
	s.sequence.Store(uint64(time.Now().UnixNano()))
	return s, nil
}

func parseKeyring(entries map[string]string) (map[solana.PublicKey]solana.PrivateKey, error) {
	keyring := make(map[solana.PublicKey]solana.PrivateKey, len(entries))
	for identity, encoded := range entries {
		key, err := solana.PrivateKeyFromBase58(encoded)
		if err != nil {
			return nil, fmt.Errorf("chave inválida no keyring para %s: %w", identity, err)
		}
		if key.PublicKey().String() != identity {
			return nil, fmt.Errorf("chave do keyring não corresponde à identidade %s", identity)
		}
		keyring[key.PublicKey()] = key
	}
	return keyring, nil
}

// signerFor resolve a chave que assina pela parte: a credencial enviada pelo
// chamador ou, na falta dela, a conta custodiada no keyring.
func (s *SolanaIntegrationService) signerFor(p models.Party) (solana.PrivateKey, error) {
	pub, err := solana.PublicKeyFromBase58(p.Identity)
	if err != nil {
		return nil, fmt.Errorf("identidade %q não é uma chave pública Solana: %w", p.Identity, err)
	}
	if p.Credential != "" {
		key, err := solana.PrivateKeyFromBase58(p.Credential)
		if err != nil {
			return nil, fmt.Errorf("credencial inválida para %s: %w", p.Identity, err)
		}
		if !key.PublicKey().Equals(pub) {
			return nil, fmt.Errorf("credencial não pertence a %s", p.Identity)
		}
		return key, nil
	}
	if key, ok := s.keyring[pub]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("nenhuma chave disponível para assinar por %s", p.Identity)
}

// toLamports converte um valor em SOL para lamports. Frações abaixo de 1 lamport são rejeitadas.
func toLamports(amount decimal.Decimal) (uint64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("valor deve ser positivo: %s", amount)
	}
	shifted := amount.Shift(lamportPlaces)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("valor %s tem mais de %d casas decimais", amount, lamportPlaces)
	}
	return uint64(shifted.IntPart()), nil
}

func fromLamports(lamports uint64) decimal.Decimal {
	return decimal.NewFromInt(int64(lamports)).Shift(-lamportPlaces)
}

func saleMemo(tag models.SaleTag) []byte {
	return []byte(fmt.Sprintf("sale:%s:%d:%s:%s", tag.AssetID, tag.SaleNumber, tag.SalePrice.String(), tag.PreviousPrice.String()))
}

func mintMemo(desc models.MintSpec) []byte {
	return []byte(fmt.Sprintf("mint:%s:%s", desc.AssetType, desc.MetadataURI))
}

func memoInstruction(data []byte, signer solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(solana.MemoProgramID, solana.AccountMetaSlice{
		solana.Meta(signer).SIGNER(),
	}, data)
}

// send monta, assina, envia e aguarda a confirmação de uma transação paga pela plataforma.
func (s *SolanaIntegrationService) send(ctx context.Context, op string, instructions []solana.Instruction, signers ...solana.PrivateKey) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	recent, err := s.RPCClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("falha ao obter blockhash: %w", err)
	}
	tx, err := solana.NewTransaction(instructions, recent.Value.Blockhash, solana.TransactionPayer(s.FeePayer.PublicKey()))
	if err != nil {
		return "", fmt.Errorf("falha ao criar transação de %s: %w", op, err)
	}

	keys := append([]solana.PrivateKey{s.FeePayer}, signers...)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range keys {
			if keys[i].PublicKey().Equals(key) {
				return &keys[i]
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("falha ao assinar transação de %s: %w", op, err)
	}

	sig, err := s.RPCClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", fmt.Errorf("falha ao enviar transação de %s: %w", op, err)
	}
	if err := s.awaitConfirmation(ctx, sig); err != nil {
		return "", fmt.Errorf("transação de %s %s não confirmada: %w", op, sig, err)
	}
	s.log.Debug().Str("op", op).Str("signature", sig.String()).Msg("transação confirmada")
	return sig.String(), nil
}

func (s *SolanaIntegrationService) awaitConfirmation(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(confirmInterval)
	defer ticker.Stop()
	for {
		out, err := s.RPCClient.GetSignatureStatuses(ctx, true, sig)
		if err == nil && out != nil && len(out.Value) > 0 && out.Value[0] != nil {
			status := out.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transação rejeitada: %v", status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *SolanaIntegrationService) accountExists(ctx context.Context, pub solana.PublicKey) (bool, error) {
	_, err := s.RPCClient.GetAccountInfo(ctx, pub)
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("falha ao consultar conta %s: %w", pub, err)
	}
	return true, nil
}

// SubmitMint cria um mint SPL de supply 1 com a plataforma como autoridade e
// cunha o token na conta associada do emissor. O endereço do mint é o tokenID.
func (s *SolanaIntegrationService) SubmitMint(ctx context.Context, issuer models.Party, desc models.MintSpec) (string, string, error) {
	owner, err := solana.PublicKeyFromBase58(issuer.Identity)
	if err != nil {
		return "", "", fmt.Errorf("identidade do emissor inválida: %w", err)
	}
	mint, err := solana.NewRandomPrivateKey()
	if err != nil {
		return "", "", fmt.Errorf("falha ao gerar chave do mint: %w", err)
	}
	rent, err := s.RPCClient.GetMinimumBalanceForRentExemption(ctx, mintAccountSize, rpc.CommitmentFinalized)
	if err != nil {
		return "", "", fmt.Errorf("falha ao obter rent do mint: %w", err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint.PublicKey())
	if err != nil {
		return "", "", fmt.Errorf("falha ao encontrar ATA do emissor: %w", err)
	}

	authority := s.FeePayer.PublicKey()
	instructions := []solana.Instruction{
		system.NewCreateAccountInstruction(rent, mintAccountSize, token.ProgramID, authority, mint.PublicKey()).Build(),
		token.NewInitializeMintInstruction(0, authority, authority, mint.PublicKey(), solana.SysVarRentPubkey).Build(),
		associatedtokenaccount.NewCreateInstruction(authority, owner, mint.PublicKey()).Build(),
		token.NewMintToInstruction(1, mint.PublicKey(), ata, authority, nil).Build(),
		memoInstruction(mintMemo(desc), authority),
	}
	sig, err := s.send(ctx, "mint", instructions, mint)
	if err != nil {
		return "", "", err
	}
	s.log.Info().Str("mint", mint.PublicKey().String()).Str("owner", issuer.Identity).Str("name", desc.Name).Msg("token SPL cunhado")
	return mint.PublicKey().String(), sig, nil
}

// SubmitOffer delega o token à plataforma. A oferta é o próprio approve; seu ID é a assinatura.
func (s *SolanaIntegrationService) SubmitOffer(ctx context.Context, seller models.Party, tokenID string, price decimal.Decimal) (string, string, error) {
	if _, err := toLamports(price); err != nil {
		return "", "", err
	}
	key, err := s.signerFor(seller)
	if err != nil {
		return "", "", err
	}
	mint, err := solana.PublicKeyFromBase58(tokenID)
	if err != nil {
		return "", "", fmt.Errorf("tokenID inválido: %w", err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(key.PublicKey(), mint)
	if err != nil {
		return "", "", fmt.Errorf("falha ao encontrar ATA do vendedor: %w", err)
	}

	sig, err := s.send(ctx, "oferta", []solana.Instruction{
		token.NewApproveInstruction(1, ata, s.FeePayer.PublicKey(), key.PublicKey(), nil).Build(),
		memoInstruction([]byte("offer:"+price.String()), key.PublicKey()),
	}, key)
	if err != nil {
		return "", "", err
	}
	return sig, sig, nil
}

// SubmitAcceptOffer transfere o token pela delegação e paga o vendedor na mesma
// transação. A delegação de 1 unidade é consumida, então um segundo aceite falha.
func (s *SolanaIntegrationService) SubmitAcceptOffer(ctx context.Context, buyer models.Party, offer models.Offer, tag models.SaleTag) (string, error) {
	lamports, err := toLamports(offer.Price)
	if err != nil {
		return "", err
	}
	key, err := s.signerFor(buyer)
	if err != nil {
		return "", err
	}
	mint, err := solana.PublicKeyFromBase58(offer.TokenID)
	if err != nil {
		return "", fmt.Errorf("tokenID inválido: %w", err)
	}
	seller, err := solana.PublicKeyFromBase58(offer.Seller)
	if err != nil {
		return "", fmt.Errorf("identidade do vendedor inválida: %w", err)
	}
	fromATA, _, err := solana.FindAssociatedTokenAddress(seller, mint)
	if err != nil {
		return "", fmt.Errorf("falha ao encontrar ATA do vendedor: %w", err)
	}
	toATA, _, err := solana.FindAssociatedTokenAddress(key.PublicKey(), mint)
	if err != nil {
		return "", fmt.Errorf("falha ao encontrar ATA do comprador: %w", err)
	}

	var instructions []solana.Instruction
	exists, err := s.accountExists(ctx, toATA)
	if err != nil {
		return "", err
	}
	if !exists {
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(s.FeePayer.PublicKey(), key.PublicKey(), mint).Build())
	}
	instructions = append(instructions,
		token.NewTransferInstruction(1, fromATA, toATA, s.FeePayer.PublicKey(), nil).Build(),
		system.NewTransferInstruction(lamports, key.PublicKey(), seller).Build(),
		memoInstruction(saleMemo(tag), key.PublicKey()),
	)
	return s.send(ctx, "venda", instructions, key)
}

// SubmitDirectPayment transfere lamports de from para to.
func (s *SolanaIntegrationService) SubmitDirectPayment(ctx context.Context, from models.Party, to string, amount decimal.Decimal, tag *models.SaleTag) (string, error) {
	lamports, err := toLamports(amount)
	if err != nil {
		return "", err
	}
	key, err := s.signerFor(from)
	if err != nil {
		return "", err
	}
	dest, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return "", fmt.Errorf("destino inválido: %w", err)
	}
	instructions := []solana.Instruction{system.NewTransferInstruction(lamports, key.PublicKey(), dest).Build()}
	if tag != nil {
		instructions = append(instructions, memoInstruction(saleMemo(*tag), key.PublicKey()))
	}
	return s.send(ctx, "pagamento", instructions, key)
}

func escrowSeed(sequence uint64) string {
	return fmt.Sprintf("escrow-%d", sequence)
}

func (s *SolanaIntegrationService) escrowAddress(sequence uint64) (solana.PublicKey, error) {
	return solana.CreateWithSeed(s.FeePayer.PublicKey(), escrowSeed(sequence), solana.SystemProgramID)
}

// SubmitCreateEscrow financia uma conta derivada da plataforma com o colateral.
func (s *SolanaIntegrationService) SubmitCreateEscrow(ctx context.Context, funder models.Party, amount decimal.Decimal, destination string) (models.EscrowRef, string, error) {
	lamports, err := toLamports(amount)
	if err != nil {
		return models.EscrowRef{}, "", err
	}
	if _, err := solana.PublicKeyFromBase58(destination); err != nil {
		return models.EscrowRef{}, "", fmt.Errorf("destino do escrow inválido: %w", err)
	}
	key, err := s.signerFor(funder)
	if err != nil {
		return models.EscrowRef{}, "", err
	}

	seq := s.sequence.Add(1)
	addr, err := s.escrowAddress(seq)
	if err != nil {
		return models.EscrowRef{}, "", fmt.Errorf("falha ao derivar conta de escrow: %w", err)
	}
	sig, err := s.send(ctx, "escrow", []solana.Instruction{
		system.NewTransferInstruction(lamports, key.PublicKey(), addr).Build(),
		memoInstruction([]byte("escrow:"+destination), key.PublicKey()),
	}, key)
	if err != nil {
		return models.EscrowRef{}, "", err
	}
	return models.EscrowRef{Owner: funder.Identity, Sequence: seq, Destination: destination}, sig, nil
}

// SubmitFinishEscrow esvazia a conta de escrow para o destino. Só o destino pode
// finalizar, e a transação leva a assinatura dele num memo. Um escrow já
// finalizado falha por falta de saldo.
func (s *SolanaIntegrationService) SubmitFinishEscrow(ctx context.Context, finisher models.Party, ref models.EscrowRef) (string, error) {
	if finisher.Identity != ref.Destination {
		return "", fmt.Errorf("%s não é o destino do escrow %d", finisher.Identity, ref.Sequence)
	}
	key, err := s.signerFor(finisher)
	if err != nil {
		return "", err
	}
	dest := key.PublicKey()
	addr, err := s.escrowAddress(ref.Sequence)
	if err != nil {
		return "", fmt.Errorf("falha ao derivar conta de escrow: %w", err)
	}
	balance, err := s.RPCClient.GetBalance(ctx, addr, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("falha ao consultar saldo do escrow: %w", err)
	}
	if balance.Value == 0 {
		return "", fmt.Errorf("escrow %d já finalizado", ref.Sequence)
	}

	base := s.FeePayer.PublicKey()
	sig, err := s.send(ctx, "finalização do escrow", []solana.Instruction{
		system.NewTransferWithSeedInstruction(balance.Value, escrowSeed(ref.Sequence), solana.SystemProgramID, addr, base, dest).Build(),
		memoInstruction([]byte(fmt.Sprintf("escrow-finish:%d", ref.Sequence)), dest),
	}, key)
	if err != nil {
		return "", err
	}
	s.log.Info().Uint64("sequence", ref.Sequence).Str("amount", fromLamports(balance.Value).String()).Msg("escrow finalizado")
	return sig, nil
}

// SubmitBurn queima o token com a assinatura do dono.
func (s *SolanaIntegrationService) SubmitBurn(ctx context.Context, owner models.Party, tokenID string) (string, error) {
	key, err := s.signerFor(owner)
	if err != nil {
		return "", err
	}
	return s.burn(ctx, key.PublicKey(), tokenID, key)
}

// SubmitPendingBurn reenvia um burn pendente. Com a conta do dono no keyring
// assina por ela; sem isso, usa a delegação da oferta que a plataforma detém.
func (s *SolanaIntegrationService) SubmitPendingBurn(ctx context.Context, holder, tokenID string) (string, error) {
	ownerPub, err := solana.PublicKeyFromBase58(holder)
	if err != nil {
		return "", fmt.Errorf("identidade do dono inválida: %w", err)
	}
	if key, ok := s.keyring[ownerPub]; ok {
		return s.burn(ctx, ownerPub, tokenID, key)
	}
	return s.burn(ctx, ownerPub, tokenID)
}

func (s *SolanaIntegrationService) burn(ctx context.Context, ownerPub solana.PublicKey, tokenID string, ownerKey ...solana.PrivateKey) (string, error) {
	mint, err := solana.PublicKeyFromBase58(tokenID)
	if err != nil {
		return "", fmt.Errorf("tokenID inválido: %w", err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(ownerPub, mint)
	if err != nil {
		return "", fmt.Errorf("falha ao encontrar ATA do dono: %w", err)
	}
	authority := s.FeePayer.PublicKey()
	if len(ownerKey) > 0 {
		authority = ownerKey[0].PublicKey()
	}
	return s.send(ctx, "burn", []solana.Instruction{
		token.NewBurnInstruction(1, ata, mint, authority, nil).Build(),
	}, ownerKey...)
}

// TokenBurned consulta o supply do mint.
func (s *SolanaIntegrationService) TokenBurned(ctx context.Context, tokenID string) (bool, error) {
	mint, err := solana.PublicKeyFromBase58(tokenID)
	if err != nil {
		return false, fmt.Errorf("tokenID inválido: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	supply, err := s.RPCClient.GetTokenSupply(ctx, mint, rpc.CommitmentFinalized)
	if err != nil {
		return false, fmt.Errorf("falha ao obter supply do token: %w", err)
	}
	return supply.Value != nil && supply.Value.Amount == "0", nil
}
